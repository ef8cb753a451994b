package game

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func playToRest(t *testing.T, m *Match) {
	t.Helper()
	for i := 0; i < MaxShotTicks && !m.AtRest(); i++ {
		m.AdvanceTick()
	}
	if !m.AtRest() {
		t.Fatal("board did not settle within the tick cap")
	}
}

func TestNewMatchInitialLayout(t *testing.T) {
	m := newTestMatch(t, 2)
	b := m.Board()

	if got := len(b.Coins); got != 24 {
		t.Fatalf("coin count = %d, want 24", got)
	}
	if got := len(b.AllDiscs()); got != 25 {
		t.Fatalf("disc count = %d, want 25", got)
	}
	if !b.Striker.Position.IsEqualTo(b.BaselineCenter(1)) {
		t.Errorf("striker starts at %+v, want %+v", b.Striker.Position, b.BaselineCenter(1))
	}
	queen := b.DiscByID(QueenID)
	if queen.Kind != Queen || !queen.Position.IsEqualTo(NewVec2(SurfaceSize/2, SurfaceSize/2)) {
		t.Errorf("queen = kind %s at %+v, want Queen at board center", queen.Kind, queen.Position)
	}
	light, dark := b.RemainingByColor()
	if light != 11 || dark != 12 {
		t.Errorf("coin split = %d light / %d dark, want 11/12", light, dark)
	}
	if len(b.Pockets) != 4 {
		t.Errorf("pocket count = %d, want 4", len(b.Pockets))
	}

	st := m.State()
	if st.CurrentPlayer != 1 || st.Phase != AwaitingShot || st.FoulCount != 0 {
		t.Errorf("fresh state = %+v", st)
	}
}

func TestNewMatchValidation(t *testing.T) {
	bad := []struct {
		name string
		mod  func(*Settings)
	}{
		{"three players", func(s *Settings) { s.PlayerCount = 3 }},
		{"friction of one", func(s *Settings) { s.Friction = 1.0 }},
		{"zero friction", func(s *Settings) { s.Friction = 0 }},
		{"playfield larger than surface", func(s *Settings) { s.PlayfieldSize = s.SurfaceSize + 100 }},
		{"zero surface", func(s *Settings) { s.SurfaceSize = 0 }},
	}
	for _, tc := range bad {
		s := DefaultSettings(2)
		tc.mod(&s)
		if _, err := NewMatch(s); err == nil {
			t.Errorf("%s: match created from invalid settings", tc.name)
		}
	}

	m, err := NewMatch(DefaultSettings(4))
	if err != nil {
		t.Fatalf("4-player match: %v", err)
	}
	if got := len(m.State().Scores); got != 4 {
		t.Errorf("score slots = %d, want 4", got)
	}
}

func TestPlaceStrikerClampsToBaseline(t *testing.T) {
	m := newTestMatch(t, 2)

	cases := []struct{ in, want float64 }{
		{1, 170},
		{9999, 630},
		{400, 400},
		{170, 170},
	}
	for _, tc := range cases {
		if err := m.PlaceStriker(tc.in); err != nil {
			t.Fatalf("place striker at %v: %v", tc.in, err)
		}
		p := m.Board().Striker.Position
		if p.X != tc.want || p.Y != 650 {
			t.Errorf("striker placed at (%v, %v), want (%v, 650)", p.X, p.Y, tc.want)
		}
	}

	if err := m.PlaceStriker(math.NaN()); !errors.Is(err, ErrInvalidShotParameters) {
		t.Errorf("NaN placement: err = %v, want ErrInvalidShotParameters", err)
	}
}

// A straight shot through an own-color coin lined up with a pocket: the
// coin drops, the shooter scores and keeps the turn, and no foul is
// recorded.
func TestShotDrivesOwnCoinIntoPocket(t *testing.T) {
	m := newTestMatch(t, 2)
	b := m.Board()

	coin := b.DiscByID(coinIDsOfKind(b, RegularLight)[0])
	coin.Position = NewVec2(140, 140)
	b.Striker.Position = NewVec2(240, 240)

	// Striker, coin and the top-left pocket at (100,100) are collinear.
	angle := math.Atan2(-100, -100)
	sum, err := m.PlayShot(angle, 0.4)
	if err != nil {
		t.Fatalf("play shot: %v", err)
	}

	if !reflect.DeepEqual(sum.Captured, []int{coin.ID}) {
		t.Fatalf("captured = %v, want exactly [%d]", sum.Captured, coin.ID)
	}
	if !coin.Captured {
		t.Error("coin should be flagged captured")
	}
	if b.Striker.Captured {
		t.Error("striker should have stopped short of the pocket")
	}
	if !b.QueenOnBoard() {
		t.Error("queen was never in the shot line")
	}

	out := sum.Outcome
	if out.Scores[0] != 1 {
		t.Errorf("player 1 score = %d, want 1", out.Scores[0])
	}
	if out.Foul != "" {
		t.Errorf("foul = %q, want none", out.Foul)
	}
	if out.TurnChanged || out.CurrentPlayer != 1 {
		t.Errorf("shooter keeps the turn, got changed=%v player=%d", out.TurnChanged, out.CurrentPlayer)
	}
	if fc := m.State().FoulCount; fc != 0 {
		t.Errorf("foul counter = %d, want 0", fc)
	}
	if !out.StrikerRespotted || !b.Striker.Position.IsEqualTo(b.BaselineCenter(1)) {
		t.Errorf("striker should be respotted at %+v, got %+v", b.BaselineCenter(1), b.Striker.Position)
	}
	if m.Phase() != AwaitingShot {
		t.Errorf("phase = %s, want %s", m.Phase(), AwaitingShot)
	}

	hit := false
	for _, ev := range sum.Events {
		if ev.Type == "striker_hit" && ev.TargetID == coin.ID {
			hit = true
		}
	}
	if !hit {
		t.Error("no striker_hit event for the contact")
	}
}

func TestOperationsRejectedWhileShotInFlight(t *testing.T) {
	m := newTestMatch(t, 2)

	if err := m.BeginShot(0, 0.3); err != nil {
		t.Fatalf("begin shot: %v", err)
	}

	if err := m.BeginShot(0, 0.3); !errors.Is(err, ErrInvalidShotParameters) {
		t.Errorf("second release: err = %v, want ErrInvalidShotParameters", err)
	}
	if err := m.PlaceStriker(300); !errors.Is(err, ErrShotInFlight) {
		t.Errorf("placement in flight: err = %v, want ErrShotInFlight", err)
	}
	if _, err := m.Snapshot(); !errors.Is(err, ErrShotInFlight) {
		t.Errorf("snapshot in flight: err = %v, want ErrShotInFlight", err)
	}
	if _, err := m.ResolveShot(); !errors.Is(err, ErrShotInFlight) {
		t.Errorf("resolve before rest: err = %v, want ErrShotInFlight", err)
	}

	playToRest(t, m)

	out, err := m.ResolveShot()
	if err != nil {
		t.Fatalf("resolve after rest: %v", err)
	}
	// Shot along the empty bottom lane touches nothing: turn passes.
	if !out.TurnChanged || out.CurrentPlayer != 2 {
		t.Errorf("miss outcome = changed:%v player:%d", out.TurnChanged, out.CurrentPlayer)
	}
	// A second resolve has no shot to consume
	if _, err := m.ResolveShot(); !errors.Is(err, ErrInvalidShotParameters) {
		t.Errorf("double resolve: err = %v, want ErrInvalidShotParameters", err)
	}
}

func cloneSnapshot(s *Snapshot) *Snapshot {
	c := *s
	c.Scores = append([]int(nil), s.Scores...)
	c.Discs = append([]DiscSnapshot(nil), s.Discs...)
	return &c
}

func TestSnapshotRoundTripIsDeterministic(t *testing.T) {
	m1 := newTestMatch(t, 2)

	// Break shot into the cluster to reach a messy mid-game state.
	if _, err := m1.PlayShot(-math.Pi/2, 1.0); err != nil {
		t.Fatalf("break shot: %v", err)
	}

	snap, err := m1.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	m2, err := RestoreMatch(snap)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	// Restoring must reproduce the snapshot bit for bit.
	again, err := m2.Snapshot()
	if err != nil {
		t.Fatalf("snapshot of restored match: %v", err)
	}
	if !reflect.DeepEqual(snap, again) {
		t.Fatal("restored match snapshots differently than its source")
	}

	// The same inputs applied to both matches must produce the same shot.
	sum1, err := m1.PlayShot(2.5, 0.77)
	if err != nil {
		t.Fatalf("second shot on original: %v", err)
	}
	sum2, err := m2.PlayShot(2.5, 0.77)
	if err != nil {
		t.Fatalf("second shot on restored: %v", err)
	}

	if !reflect.DeepEqual(sum1.Captured, sum2.Captured) {
		t.Errorf("captures diverged: %v vs %v", sum1.Captured, sum2.Captured)
	}
	if !reflect.DeepEqual(sum1.Positions, sum2.Positions) {
		t.Error("final positions diverged after restore")
	}
	if !reflect.DeepEqual(m1.State(), m2.State()) {
		t.Errorf("match state diverged:\noriginal %+v\nrestored %+v", m1.State(), m2.State())
	}
	if sum1.Ticks != sum2.Ticks {
		t.Errorf("tick counts diverged: %d vs %d", sum1.Ticks, sum2.Ticks)
	}
}

func TestRestoreRejectsCorruptSnapshots(t *testing.T) {
	base, err := newTestMatch(t, 2).Snapshot()
	if err != nil {
		t.Fatalf("base snapshot: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"unsupported version", func(s *Snapshot) { s.Version = 99 }},
		{"bad player count", func(s *Snapshot) { s.Settings.PlayerCount = 3 }},
		{"friction out of range", func(s *Snapshot) { s.Settings.Friction = 1.0 }},
		{"score count mismatch", func(s *Snapshot) { s.Scores = append(s.Scores, 0) }},
		{"negative score", func(s *Snapshot) { s.Scores[0] = -2 }},
		{"foul count too high", func(s *Snapshot) { s.FoulCount = 3 }},
		{"current player out of range", func(s *Snapshot) { s.CurrentPlayer = 3 }},
		{"winner while awaiting shot", func(s *Snapshot) { s.Winner = 1 }},
		{"mid-shot phase", func(s *Snapshot) { s.Phase = ShotInFlight }},
		{"missing disc", func(s *Snapshot) { s.Discs = s.Discs[:len(s.Discs)-1] }},
		{"duplicate disc id", func(s *Snapshot) { s.Discs[3].ID = s.Discs[2].ID }},
		{"non-finite position", func(s *Snapshot) { s.Discs[5].X = math.NaN() }},
		{"disc off the board", func(s *Snapshot) { s.Discs[5].X = -50 }},
		{"striker captured mid-match", func(s *Snapshot) { s.Discs[0].Captured = true }},
		{"pending cover with queen on board", func(s *Snapshot) { s.PendingQueenCover = true }},
		{"covered queen on board", func(s *Snapshot) { s.QueenCovered = true }},
	}

	for _, tc := range cases {
		snap := cloneSnapshot(base)
		tc.mutate(snap)

		if _, err := RestoreMatch(snap); !errors.Is(err, ErrCorruptSnapshot) {
			t.Errorf("%s: err = %v, want ErrCorruptSnapshot", tc.name, err)
		}

		// In-place restore must leave the receiver untouched on failure.
		m := newTestMatch(t, 2)
		before := m.State()
		if err := m.Restore(snap); !errors.Is(err, ErrCorruptSnapshot) {
			t.Errorf("%s: in-place err = %v, want ErrCorruptSnapshot", tc.name, err)
		}
		if !reflect.DeepEqual(before, m.State()) {
			t.Errorf("%s: failed restore mutated the match", tc.name)
		}
	}
}

func TestRestoreAcceptsFinishedGame(t *testing.T) {
	m := newTestMatch(t, 2)
	light := coinIDsOfKind(m.Board(), RegularLight)
	resolveScripted(t, m, false, light...)
	if m.Phase() != GameOver {
		t.Fatalf("phase = %s, want %s", m.Phase(), GameOver)
	}

	snap, err := m.Snapshot()
	if err != nil {
		t.Fatalf("snapshot of finished game: %v", err)
	}
	restored, err := RestoreMatch(snap)
	if err != nil {
		t.Fatalf("restore of finished game: %v", err)
	}
	if restored.Winner() != 1 || restored.Phase() != GameOver {
		t.Errorf("restored winner=%d phase=%s, want 1 / %s", restored.Winner(), restored.Phase(), GameOver)
	}
}
