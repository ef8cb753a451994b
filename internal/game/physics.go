package game

// CollisionEvent is a cosmetic notification for the presentation layer
// (speed drives sound volume client-side). It has no gameplay effect.
type CollisionEvent struct {
	Type     string  `json:"type"`
	DiscID   int     `json:"disc_id"`
	TargetID int     `json:"target_id"`
	Speed    float64 `json:"speed"`
}

// DiscPosition is one entry of a TickResult position report.
type DiscPosition struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// TickResult reports the outcome of one simulation tick.
type TickResult struct {
	Positions []DiscPosition   `json:"positions"`
	Captures  []int            `json:"captures"` // disc IDs captured this tick, in order
	AtRest    bool             `json:"at_rest"`
	Events    []CollisionEvent `json:"events,omitempty"`
}

// ShotRecord accumulates everything captured between a striker release and
// the next all-at-rest. Capture order matters: the rule engine replays it
// in sequence for queen-then-cover scoring.
type ShotRecord struct {
	Captured        []*Disc
	StrikerPocketed bool
}

// CapturedIDs returns the captured disc IDs in capture order.
func (r *ShotRecord) CapturedIDs() []int {
	ids := make([]int, 0, len(r.Captured))
	for _, d := range r.Captured {
		ids = append(ids, d.ID)
	}
	return ids
}

// World advances the board one tick at a time. It owns motion, collision,
// boundary and pocket logic and records captures onto the active
// ShotRecord. It knows nothing about scores or turns.
type World struct {
	board *Board
	shot  *ShotRecord
}

func NewWorld(b *Board) *World {
	return &World{board: b, shot: &ShotRecord{}}
}

func (w *World) Board() *Board {
	return w.board
}

// ResetShotRecord opens a fresh record; called at striker release.
func (w *World) ResetShotRecord() {
	w.shot = &ShotRecord{}
}

// ShotRecord exposes the active record for the rule engine to consume at
// shot end.
func (w *World) ShotRecord() *ShotRecord {
	return w.shot
}

// AdvanceTick performs one simulation step: striker motion and pocket test,
// coin motion, pairwise collision resolution in fixed ascending-ID order,
// coin pocket detection, then the at-rest report. All arithmetic is
// fixed-precision; two runs from equal state produce equal results.
func (w *World) AdvanceTick() TickResult {
	res := TickResult{}
	b := w.board

	striker := b.Striker
	if !striker.Captured {
		striker.step(b.Settings.RestThreshold)
		// The pocket test runs before the wall clamp: a striker heading
		// into a corner must be able to drop, not bounce off the frame
		// first.
		if w.pocketTest(striker) {
			w.shot.StrikerPocketed = true
			res.Captures = append(res.Captures, striker.ID)
			res.Positions = w.positions()
			res.AtRest = w.allAtRest()
			return res
		}
		w.clampToBounds(striker)
	}

	for _, c := range b.Coins {
		c.step(b.Settings.RestThreshold)
		w.clampToBounds(c)
	}

	for _, c := range b.Coins {
		if ev, hit := w.resolvePair(striker, c); hit {
			res.Events = append(res.Events, ev...)
		}
	}
	for i := 0; i < len(b.Coins); i++ {
		for j := i + 1; j < len(b.Coins); j++ {
			w.resolvePair(b.Coins[i], b.Coins[j])
		}
	}

	for _, c := range b.Coins {
		if w.pocketTest(c) {
			w.shot.Captured = append(w.shot.Captured, c)
			res.Captures = append(res.Captures, c.ID)
		}
	}

	res.Positions = w.positions()
	res.AtRest = w.allAtRest()
	return res
}

// AllAtRest reports whether the striker and every non-captured coin have
// exactly zero velocity. The rest-threshold snap in Disc.step guarantees
// this is reached in finitely many ticks.
func (w *World) AllAtRest() bool {
	return w.allAtRest()
}

func (w *World) allAtRest() bool {
	if !w.board.Striker.atRest() {
		return false
	}
	for _, c := range w.board.Coins {
		if !c.atRest() {
			return false
		}
	}
	return true
}

// StopAll zeroes every disc velocity. Used to force a settled board when
// a shot hits the tick cap.
func (w *World) StopAll() {
	w.board.Striker.Velocity = Vec2{}
	for _, c := range w.board.Coins {
		c.Velocity = Vec2{}
	}
}

// CurrentPositions returns the position of every disc, captured or not.
func (w *World) CurrentPositions() []DiscPosition {
	return w.positions()
}

func (w *World) positions() []DiscPosition {
	discs := w.board.AllDiscs()
	out := make([]DiscPosition, 0, len(discs))
	for _, d := range discs {
		out = append(out, DiscPosition{ID: d.ID, X: d.Position.X, Y: d.Position.Y})
	}
	return out
}

// pocketTest captures the disc if its center is deep enough inside any
// pocket. Touching the rim is not enough: the capture margin keeps grazing
// discs on the board.
func (w *World) pocketTest(d *Disc) bool {
	if d.Captured {
		return false
	}
	s := w.board.Settings
	for _, p := range w.board.Pockets {
		if d.Position.DistanceTo(p) < s.PocketRadius-s.CaptureMargin {
			d.capture()
			return true
		}
	}
	return false
}

// clampToBounds bounces the disc off the playfield edges: position clamps
// to the boundary and the crossing axis's velocity reflects, scaled by the
// wall restitution.
func (w *World) clampToBounds(d *Disc) {
	if d.Captured {
		return
	}
	s := w.board.Settings
	m := s.margin()
	lo := fix(m + d.Radius)
	hi := fix(s.SurfaceSize - m - d.Radius)

	if d.Position.X < lo {
		d.Position.X = lo
		d.Velocity.X = fix(-d.Velocity.X * s.WallRestitution)
	} else if d.Position.X > hi {
		d.Position.X = hi
		d.Velocity.X = fix(-d.Velocity.X * s.WallRestitution)
	}
	if d.Position.Y < lo {
		d.Position.Y = lo
		d.Velocity.Y = fix(-d.Velocity.Y * s.WallRestitution)
	} else if d.Position.Y > hi {
		d.Position.Y = hi
		d.Velocity.Y = fix(-d.Velocity.Y * s.WallRestitution)
	}
}

// resolvePair applies the simplified elastic-impulse model to one
// unordered disc pair. Each disc's velocity change is scaled by the OTHER
// disc's radius — an explicit model choice rather than mass physics. The
// pair is also positionally separated by half the overlap each, so
// overlapping discs cannot stick across ticks.
func (w *World) resolvePair(a, b *Disc) ([]CollisionEvent, bool) {
	if a.Captured || b.Captured {
		return nil, false
	}

	delta := b.Position.Minus(a.Position)
	dist := delta.Magnitude()
	sumR := fix(a.Radius + b.Radius)
	if dist >= sumR {
		return nil, false
	}

	n := delta.Normalize()
	if n.IsZero() {
		// Coincident centers: pick an arbitrary separation normal so the
		// math stays total.
		n = NewVec2(1, 0)
	}

	closing := a.Velocity.Minus(b.Velocity).Dot(n)
	if closing < 0 {
		// Already separating; resolving again would pull them back.
		return nil, false
	}

	impulse := fix(2 * closing / sumR)
	a.Velocity = a.Velocity.Minus(n.Times(impulse * b.Radius))
	b.Velocity = b.Velocity.Plus(n.Times(impulse * a.Radius))

	half := fix((sumR - dist) / 2)
	a.Position = a.Position.Minus(n.Times(half))
	b.Position = b.Position.Plus(n.Times(half))

	if (a.Kind == Striker || b.Kind == Striker) && closing > ImpactSoundSpeed {
		ev := CollisionEvent{Type: "striker_hit", DiscID: a.ID, TargetID: b.ID, Speed: closing}
		return []CollisionEvent{ev}, true
	}
	return nil, true
}
