package game

import "math"

// Board owns the physical pieces and the fixed geometry: the striker, the
// queen, 23 regular coins, and the four corner pockets. Layout offsets are
// fixed (no random jitter) so every match starts from the identical
// deterministic position.
type Board struct {
	Settings Settings `json:"settings"`
	Striker  *Disc    `json:"striker"`
	Coins    []*Disc  `json:"coins"` // queen first, then regulars in layout order
	Pockets  []Vec2   `json:"pockets"`
}

// Disc IDs are assigned in construction order and never reused: striker 0,
// queen 1, regular coins 2..24.
const (
	StrikerID = 0
	QueenID   = 1
)

// NewBoard builds the standard carrom layout: queen at center, an inner
// ring of 6 coins, a middle ring of 8 and an outer ring of 9, alternating
// colors within each ring. That yields 11 light and 12 dark coins — the
// classic layout is intentionally color-asymmetric.
func NewBoard(s Settings) *Board {
	b := &Board{Settings: s}

	m := s.margin()
	far := fix(s.SurfaceSize - m)
	b.Pockets = []Vec2{
		NewVec2(m, m),
		NewVec2(far, m),
		NewVec2(m, far),
		NewVec2(far, far),
	}

	b.Striker = &Disc{
		ID:       StrikerID,
		Kind:     Striker,
		Position: b.BaselineCenter(1),
		Radius:   s.StrikerRadius,
		Friction: s.Friction,
	}

	center := s.center()
	b.Coins = append(b.Coins, &Disc{
		ID:       QueenID,
		Kind:     Queen,
		Position: center,
		Radius:   s.QueenRadius,
		Friction: s.Friction,
	})

	nextID := QueenID + 1
	addRing := func(count int, ringRadius, angleOffset float64, evenKind, oddKind DiscKind) {
		for i := 0; i < count; i++ {
			angle := fix(float64(i)*2*math.Pi/float64(count) + angleOffset)
			kind := evenKind
			if i%2 == 1 {
				kind = oddKind
			}
			b.Coins = append(b.Coins, &Disc{
				ID:   nextID,
				Kind: kind,
				Position: NewVec2(
					center.X+ringRadius*math.Cos(angle),
					center.Y+ringRadius*math.Sin(angle),
				),
				Radius:   s.CoinRadius,
				Friction: s.Friction,
			})
			nextID++
		}
	}

	// Ring radii in coin radii: 2.5, 4.5, 6.5 (37.5/67.5/97.5 on the
	// standard board).
	addRing(6, fix(2.5*s.CoinRadius), 0, RegularDark, RegularLight)
	addRing(8, fix(4.5*s.CoinRadius), math.Pi/8, RegularLight, RegularDark)
	addRing(9, fix(6.5*s.CoinRadius), math.Pi/9, RegularDark, RegularLight)

	return b
}

// BaselineCenter is the striker's default respot point for a seat: odd
// seats shoot from the bottom baseline, even seats from the top.
func (b *Board) BaselineCenter(seat int) Vec2 {
	return NewVec2(b.Settings.SurfaceSize/2, b.baselineY(seat))
}

func (b *Board) baselineY(seat int) float64 {
	m := b.Settings.margin()
	if seat%2 == 1 {
		return fix(b.Settings.SurfaceSize - m - BaselineInset)
	}
	return fix(m + BaselineInset)
}

// ClampBaselineX bounds a striker placement so it stays on the baseline
// segment, clear of the pocket mouths.
func (b *Board) ClampBaselineX(x float64) float64 {
	m := b.Settings.margin()
	lo := fix(m + b.Settings.StrikerRadius + BaselineInset)
	hi := fix(b.Settings.SurfaceSize - m - b.Settings.StrikerRadius - BaselineInset)
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return fix(x)
}

// PlaceStriker positions the striker on the seat's baseline at the given x
// (clamped), ready for the next shot.
func (b *Board) PlaceStriker(seat int, x float64) {
	b.Striker.respot(NewVec2(b.ClampBaselineX(x), b.baselineY(seat)))
}

// RespotStriker puts the striker back at the center of the seat's baseline.
func (b *Board) RespotStriker(seat int) {
	b.Striker.respot(b.BaselineCenter(seat))
}

// ReturnQueenToCenter undoes a queen capture that went uncovered.
func (b *Board) ReturnQueenToCenter() {
	b.queen().respot(b.Settings.center())
}

func (b *Board) queen() *Disc {
	return b.Coins[0]
}

// QueenOnBoard reports whether the queen is still in play.
func (b *Board) QueenOnBoard() bool {
	return !b.queen().Captured
}

// RemainingByColor counts non-captured regular coins per color.
func (b *Board) RemainingByColor() (light, dark int) {
	for _, c := range b.Coins {
		if c.Captured {
			continue
		}
		switch c.Kind {
		case RegularLight:
			light++
		case RegularDark:
			dark++
		}
	}
	return light, dark
}

// DiscByID finds a disc by its stable ID, or nil.
func (b *Board) DiscByID(id int) *Disc {
	if id == StrikerID {
		return b.Striker
	}
	for _, c := range b.Coins {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// AllDiscs returns every disc, striker first, in stable ID order.
func (b *Board) AllDiscs() []*Disc {
	out := make([]*Disc, 0, len(b.Coins)+1)
	out = append(out, b.Striker)
	out = append(out, b.Coins...)
	return out
}
