package game

import (
	"math"
	"testing"
)

// clearCoinsExcept empties the board down to the listed coins so aim
// casts see a controlled field.
func clearCoinsExcept(b *Board, keep ...int) {
	kept := make(map[int]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	for _, c := range b.Coins {
		if !kept[c.ID] {
			c.capture()
		}
	}
}

func TestAimPreviewHeadOnContact(t *testing.T) {
	m := newTestMatch(t, 2)
	b := m.Board()

	coin := b.DiscByID(coinIDsOfKind(b, RegularLight)[0])
	clearCoinsExcept(b, coin.ID)
	coin.Position = NewVec2(400, 500)

	line := AimPreview(b, -math.Pi/2)

	if line.Wall {
		t.Fatal("preview hit the wall instead of the coin")
	}
	if line.TargetID != coin.ID {
		t.Fatalf("target = %d, want %d", line.TargetID, coin.ID)
	}
	// Contact is the striker center one combined radius short of the coin.
	if line.Contact.X != 400 || math.Abs(line.Contact.Y-535) > 0.1 {
		t.Errorf("contact = %+v, want (400, ~535)", line.Contact)
	}
	if math.Abs(line.Distance-115) > 0.1 {
		t.Errorf("distance = %v, want ~115", line.Distance)
	}
	if !line.TargetDir.IsEqualTo(NewVec2(0, -1)) {
		t.Errorf("target direction = %+v, want (0, -1)", line.TargetDir)
	}
	// Dead-center hit leaves the striker no deflection component.
	if !line.StrikerDir.IsZero() {
		t.Errorf("striker direction = %+v, want zero for a head-on hit", line.StrikerDir)
	}

	// A captured coin is invisible to the cast.
	coin.capture()
	if after := AimPreview(b, -math.Pi/2); !after.Wall || after.TargetID != -1 {
		t.Errorf("preview still targets captured coin: %+v", after)
	}
}

func TestAimPreviewGhostBallSplit(t *testing.T) {
	m := newTestMatch(t, 2)
	b := m.Board()

	coin := b.DiscByID(coinIDsOfKind(b, RegularLight)[0])
	clearCoinsExcept(b, coin.ID)
	coin.Position = NewVec2(380, 500)

	line := AimPreview(b, -math.Pi/2)

	if line.Wall || line.TargetID != coin.ID {
		t.Fatalf("expected a hit on coin %d, got %+v", coin.ID, line)
	}
	// Coin leaves along the center line, up and to the left.
	if line.TargetDir.X >= 0 || line.TargetDir.Y >= 0 {
		t.Errorf("target direction = %+v, want negative on both axes", line.TargetDir)
	}
	// Striker keeps the perpendicular remainder, up and to the right.
	if line.StrikerDir.X <= 0 {
		t.Errorf("striker direction = %+v, want a rightward deflection", line.StrikerDir)
	}
	if dot := line.TargetDir.Dot(line.StrikerDir); math.Abs(dot) > 0.001 {
		t.Errorf("split directions not perpendicular, dot = %v", dot)
	}
	for _, dir := range []Vec2{line.TargetDir, line.StrikerDir} {
		if math.Abs(dir.Magnitude()-1) > 0.001 {
			t.Errorf("direction %+v is not unit length", dir)
		}
	}
}

func TestAimPreviewGrazingPathMisses(t *testing.T) {
	m := newTestMatch(t, 2)
	b := m.Board()

	coin := b.DiscByID(coinIDsOfKind(b, RegularLight)[0])
	clearCoinsExcept(b, coin.ID)
	// Offset by exactly the combined radius: tangent, not a hit.
	coin.Position = NewVec2(365, 500)

	line := AimPreview(b, -math.Pi/2)

	if !line.Wall || line.TargetID != -1 {
		t.Fatalf("tangent path should run to the wall, got %+v", line)
	}
	if !line.Contact.IsEqualTo(NewVec2(400, 120)) {
		t.Errorf("wall contact = %+v, want (400, 120)", line.Contact)
	}
	if line.Distance != 530 {
		t.Errorf("distance = %v, want 530", line.Distance)
	}
}

func TestAimPreviewRunsToWall(t *testing.T) {
	m := newTestMatch(t, 2)
	b := m.Board()
	clearCoinsExcept(b)

	// Straight down from the baseline: 30 units to the inner wall.
	line := AimPreview(b, math.Pi/2)

	if !line.Wall || line.TargetID != -1 {
		t.Fatalf("expected a wall stop, got %+v", line)
	}
	if !line.Contact.IsEqualTo(NewVec2(400, 680)) {
		t.Errorf("wall contact = %+v, want (400, 680)", line.Contact)
	}
	if line.Distance != 30 {
		t.Errorf("distance = %v, want 30", line.Distance)
	}
}

func TestBearingQuadrants(t *testing.T) {
	cases := []struct {
		v    Vec2
		want float64
	}{
		{NewVec2(1, 0), 0},
		{NewVec2(0, 1), 90},
		{NewVec2(-1, 0), 180},
		{NewVec2(0, -1), -90},
	}
	for _, tc := range cases {
		if got := Bearing(tc.v); got != tc.want {
			t.Errorf("Bearing(%+v) = %v, want %v", tc.v, got, tc.want)
		}
	}
}
