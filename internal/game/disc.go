package game

// DiscKind tags the role a disc plays on the board.
type DiscKind string

const (
	RegularLight DiscKind = "LIGHT"
	RegularDark  DiscKind = "DARK"
	Queen        DiscKind = "QUEEN"
	Striker      DiscKind = "STRIKER"
)

// Disc is one circular piece: a coin, the queen, or the striker. Radius and
// Kind never change after construction. A captured disc sits out of motion,
// collision and pocket tests until the rule engine explicitly respots it
// (only the queen ever comes back).
type Disc struct {
	ID       int      `json:"id"`
	Kind     DiscKind `json:"kind"`
	Position Vec2     `json:"position"`
	Velocity Vec2     `json:"velocity"`
	Radius   float64  `json:"radius"`
	Friction float64  `json:"friction"`
	Captured bool     `json:"captured"`
}

// step advances the disc by one tick: friction decays the velocity, speeds
// below the rest threshold snap to exactly zero, then position advances.
// The exact-zero snap is what lets "all at rest" be an equality test
// instead of a tolerance check. Captured discs are a no-op.
func (d *Disc) step(restThreshold float64) {
	if d.Captured {
		return
	}
	if d.Velocity.IsZero() {
		return
	}
	d.Velocity = d.Velocity.Times(d.Friction)
	if d.Velocity.Magnitude() < restThreshold {
		d.Velocity = Vec2{}
		return
	}
	d.Position = d.Position.Plus(d.Velocity)
}

// atRest reports whether the disc is motionless. Captured discs count as
// at rest by definition.
func (d *Disc) atRest() bool {
	return d.Captured || d.Velocity.IsZero()
}

// capture drops the disc into a pocket: motion ends immediately.
func (d *Disc) capture() {
	d.Captured = true
	d.Velocity = Vec2{}
}

// respot places the disc back on the board at the given point.
func (d *Disc) respot(at Vec2) {
	d.Captured = false
	d.Position = at
	d.Velocity = Vec2{}
}
