package game

import (
	"math"
	"testing"
)

// Helper to build a board with every coin parked far from the action so
// individual mechanics can be tested in isolation. Parked coins sit in
// the top-left quadrant clear of pockets and each other.
func setupBareBoard() (*Board, *World) {
	b := NewBoard(DefaultSettings(2))
	for i, c := range b.Coins {
		c.Position = NewVec2(200+float64(i%6)*40, 250+float64(i/6)*40)
		c.Velocity = Vec2{}
	}
	b.Striker.Position = NewVec2(400, 650)
	b.Striker.Velocity = Vec2{}
	return b, NewWorld(b)
}

func TestFrictionDecaysVelocityEachTick(t *testing.T) {
	b, w := setupBareBoard()
	b.Striker.Velocity = NewVec2(10, 0)
	startX := b.Striker.Position.X

	w.AdvanceTick()

	wantV := fix(10 * FrictionCoeff)
	if b.Striker.Velocity.X != wantV {
		t.Errorf("velocity after one tick = %v, want %v", b.Striker.Velocity.X, wantV)
	}
	// Position advances by the post-friction velocity
	if b.Striker.Position.X != fix(startX+wantV) {
		t.Errorf("position after one tick = %v, want %v", b.Striker.Position.X, fix(startX+wantV))
	}
}

func TestSlowDiscSnapsToExactZero(t *testing.T) {
	b, w := setupBareBoard()
	b.Striker.Velocity = NewVec2(0.05, 0)
	startPos := b.Striker.Position

	res := w.AdvanceTick()

	if !b.Striker.Velocity.IsZero() {
		t.Errorf("velocity below rest threshold should snap to zero, got %+v", b.Striker.Velocity)
	}
	// The snap happens before the position update, so the disc must not
	// have crept forward on its final tick.
	if !b.Striker.Position.IsEqualTo(startPos) {
		t.Errorf("position moved on the snapping tick: %+v -> %+v", startPos, b.Striker.Position)
	}
	if !res.AtRest {
		t.Error("tick result should report at rest")
	}
}

func TestShotAlwaysComesToRest(t *testing.T) {
	b, w := setupBareBoard()
	b.Striker.Velocity = NewVec2(MaxStrikerSpeed, MaxStrikerSpeed/3)

	ticks := 0
	for ; ticks < MaxShotTicks; ticks++ {
		if w.AdvanceTick().AtRest {
			break
		}
	}

	if !w.AllAtRest() {
		t.Fatalf("board never settled within %d ticks", MaxShotTicks)
	}
	if !b.Striker.Velocity.IsZero() {
		t.Errorf("at rest but striker velocity = %+v, want exactly zero", b.Striker.Velocity)
	}
	if ticks >= MaxShotTicks {
		t.Errorf("full-power shot took the whole tick budget (%d)", ticks)
	}
}

func TestHeadOnEqualRadiusCollisionSwapsVelocities(t *testing.T) {
	b, w := setupBareBoard()
	a := b.Coins[2]
	c := b.Coins[3]
	a.Position = NewVec2(300, 500)
	a.Velocity = NewVec2(4, 0)
	c.Position = NewVec2(329, 500) // overlapping by 1
	c.Velocity = Vec2{}

	w.resolvePair(a, c)

	// Equal radii: the mover stops, the target inherits the full speed.
	if math.Abs(a.Velocity.X) > 0.01 || math.Abs(a.Velocity.Y) > 0.01 {
		t.Errorf("striking coin should stop after head-on swap, got %+v", a.Velocity)
	}
	if math.Abs(c.Velocity.X-4) > 0.01 {
		t.Errorf("target coin should carry the speed, got %+v", c.Velocity)
	}
	// Overlap resolved: centers pushed at least a radius sum apart
	if d := a.Position.DistanceTo(c.Position); d < fix(a.Radius+c.Radius) {
		t.Errorf("pair still interpenetrating after resolution: dist=%v", d)
	}
}

func TestSeparatingPairIsNotResolved(t *testing.T) {
	b, w := setupBareBoard()
	a := b.Coins[2]
	c := b.Coins[3]
	a.Position = NewVec2(300, 500)
	a.Velocity = NewVec2(-2, 0)
	c.Position = NewVec2(329, 500)
	c.Velocity = NewVec2(2, 0)

	_, hit := w.resolvePair(a, c)

	if hit {
		t.Error("separating pair should be skipped")
	}
	if a.Velocity.X != -2 || c.Velocity.X != 2 {
		t.Errorf("velocities changed on a separating pair: a=%+v c=%+v", a.Velocity, c.Velocity)
	}
}

func TestCoincidentCentersResolveWithoutNaN(t *testing.T) {
	b, w := setupBareBoard()
	a := b.Coins[2]
	c := b.Coins[3]
	a.Position = NewVec2(300, 500)
	a.Velocity = NewVec2(3, 0)
	c.Position = NewVec2(300, 500)
	c.Velocity = Vec2{}

	w.resolvePair(a, c)

	for _, v := range []float64{a.Velocity.X, a.Velocity.Y, c.Velocity.X, c.Velocity.Y, a.Position.X, c.Position.X} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("coincident-center resolution produced a non-finite value")
		}
	}
	// The arbitrary normal still separates them fully
	if d := a.Position.DistanceTo(c.Position); d < fix(a.Radius+c.Radius) {
		t.Errorf("coincident pair not separated: dist=%v", d)
	}
}

func TestWallBounceScalesByRestitution(t *testing.T) {
	b, w := setupBareBoard()
	b.Striker.Position = NewVec2(675, 400)
	b.Striker.Velocity = NewVec2(10, 0)

	w.AdvanceTick()

	hi := fix(SurfaceSize - BoardMargin - StrikerRadius)
	if b.Striker.Position.X != hi {
		t.Errorf("striker should clamp to the wall at %v, got %v", hi, b.Striker.Position.X)
	}
	wantV := fix(-fix(10*FrictionCoeff) * WallRestitution)
	if b.Striker.Velocity.X != wantV {
		t.Errorf("reflected velocity = %v, want %v", b.Striker.Velocity.X, wantV)
	}
}

func TestPocketCaptureRequiresMargin(t *testing.T) {
	b, w := setupBareBoard()

	// 22.6 from the top-left pocket center: inside the capture radius (25)
	inside := b.Coins[2]
	inside.Position = NewVec2(b.Pockets[0].X+16, b.Pockets[0].Y+16)

	// 25.5 from the top-right pocket center: overlapping the rim but not
	// deep enough to drop
	grazing := b.Coins[3]
	grazing.Position = NewVec2(b.Pockets[1].X-18, b.Pockets[1].Y+18)

	res := w.AdvanceTick()

	if !inside.Captured {
		t.Errorf("coin %v from pocket center should capture", inside.Position.DistanceTo(b.Pockets[0]))
	}
	if grazing.Captured {
		t.Errorf("coin %v from pocket center should stay on the board", grazing.Position.DistanceTo(b.Pockets[1]))
	}
	found := false
	for _, id := range res.Captures {
		if id == inside.ID {
			found = true
		}
		if id == grazing.ID {
			t.Error("grazing coin reported in captures")
		}
	}
	if !found {
		t.Error("captured coin missing from tick captures")
	}
}

func TestStrikerPocketShortCircuitsTick(t *testing.T) {
	b, w := setupBareBoard()
	// Striker heading straight into the top-left pocket mouth. The pocket
	// test runs before the wall clamp, so the second step carries it into
	// the capture zone.
	b.Striker.Position = NewVec2(135, 135)
	b.Striker.Velocity = NewVec2(-10, -10)
	// A moving coin elsewhere, to observe the short-circuit
	bystander := b.Coins[5]
	bystander.Position = NewVec2(500, 500)
	bystander.Velocity = NewVec2(5, 0)

	res := w.AdvanceTick()
	if len(res.Captures) != 0 {
		t.Fatalf("striker dropped a tick early, captures=%v", res.Captures)
	}
	beforeX := bystander.Position.X

	res = w.AdvanceTick()

	if len(res.Captures) != 1 || res.Captures[0] != StrikerID {
		t.Fatalf("expected striker capture this tick, got %v", res.Captures)
	}
	if !b.Striker.Captured {
		t.Error("striker disc not marked captured")
	}
	if !w.ShotRecord().StrikerPocketed {
		t.Error("shot record did not flag the pocketed striker")
	}
	// The tick ends at the striker capture: the bystander coin must not
	// have moved during that tick.
	if bystander.Position.X != beforeX {
		t.Errorf("coin advanced on the short-circuited tick: %v -> %v", beforeX, bystander.Position.X)
	}

	// The next tick resumes coin motion as usual.
	w.AdvanceTick()
	if bystander.Position.X <= beforeX {
		t.Error("coin should move again on the tick after the striker capture")
	}
}

func TestCapturedDiscsIgnorePhysics(t *testing.T) {
	b, w := setupBareBoard()
	coin := b.Coins[2]
	coin.Position = NewVec2(300, 500)
	coin.capture()
	pos := coin.Position

	// Overlapping live coin moving through the captured one
	mover := b.Coins[3]
	mover.Position = NewVec2(295, 500)
	mover.Velocity = NewVec2(6, 0)

	for i := 0; i < 50; i++ {
		w.AdvanceTick()
	}

	if !coin.Position.IsEqualTo(pos) {
		t.Errorf("captured coin moved: %+v -> %+v", pos, coin.Position)
	}
	if !coin.Velocity.IsZero() {
		t.Errorf("captured coin gained velocity: %+v", coin.Velocity)
	}
}

func TestStrikerCoinCollisionEmitsEvent(t *testing.T) {
	b, w := setupBareBoard()
	coin := b.Coins[2]
	coin.Position = NewVec2(400, 500)
	b.Striker.Position = NewVec2(400, 560)
	b.Striker.Velocity = NewVec2(0, -10)

	var events []CollisionEvent
	for i := 0; i < 30; i++ {
		res := w.AdvanceTick()
		events = append(events, res.Events...)
		if res.AtRest {
			break
		}
	}

	found := false
	for _, e := range events {
		if e.Type == "striker_hit" && e.TargetID == coin.ID {
			found = true
			if e.Speed <= ImpactSoundSpeed {
				t.Errorf("event speed %v should exceed the emission threshold", e.Speed)
			}
		}
	}
	if !found {
		t.Error("no striker_hit event for a direct striker-coin impact")
	}
}

func TestSimulationIsDeterministic(t *testing.T) {
	run := func() []DiscPosition {
		m, err := NewMatch(DefaultSettings(2))
		if err != nil {
			t.Fatalf("new match: %v", err)
		}
		sum, err := m.PlayShot(-math.Pi/2, 0.9)
		if err != nil {
			t.Fatalf("play shot: %v", err)
		}
		return sum.Positions
	}

	first := run()
	second := run()

	if len(first) != len(second) {
		t.Fatalf("position counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("non-deterministic: disc %d run1=(%.4f,%.4f) run2=(%.4f,%.4f)",
				first[i].ID, first[i].X, first[i].Y, second[i].X, second[i].Y)
		}
	}
}
