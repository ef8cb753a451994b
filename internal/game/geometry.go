package game

import "math"

// AimLine is the server-side aim preview for a striker shot: where the
// striker first makes contact, which coin it would hit, and the unit
// directions both bodies take after a ghost-ball split. Clients render
// this as the dotted guide line.
type AimLine struct {
	Origin     Vec2    `json:"origin"`
	Contact    Vec2    `json:"contact"` // striker center at first contact
	TargetID   int     `json:"target_id"`
	TargetDir  Vec2    `json:"target_dir"`
	StrikerDir Vec2    `json:"striker_dir"`
	Wall       bool    `json:"wall"`
	Distance   float64 `json:"distance"`
}

// AimPreview casts a ray from the striker along the aim angle and finds
// the first live coin it would strike, using the inflated-radius (ghost
// ball) form of the segment-circle test. With no coin on the path the
// line runs to the inner wall instead.
func AimPreview(b *Board, angle float64) AimLine {
	origin := b.Striker.Position
	dir := NewVec2(math.Cos(angle), math.Sin(angle))
	castLen := 2 * b.Settings.SurfaceSize
	end := origin.Plus(dir.Times(castLen))

	line := AimLine{Origin: origin, TargetID: -1}

	bestT := math.MaxFloat64
	var bestCoin *Disc
	var bestEnter Vec2
	for _, c := range b.Coins {
		if c.Captured {
			continue
		}
		enter, t, ok := segmentCircleEnter(origin, end, c.Position, c.Radius+b.Striker.Radius)
		if !ok || t >= bestT {
			continue
		}
		bestT = t
		bestCoin = c
		bestEnter = enter
	}

	if bestCoin != nil {
		line.Contact = bestEnter
		line.TargetID = bestCoin.ID
		line.Distance = fix(origin.DistanceTo(bestEnter))
		// Ghost-ball split: the coin departs along the center line, the
		// striker keeps the perpendicular remainder of its direction.
		n := bestCoin.Position.Minus(bestEnter).Normalize()
		line.TargetDir = n
		deflect := dir.Minus(n.Times(dir.Dot(n)))
		if !deflect.IsZero() {
			line.StrikerDir = deflect.Normalize()
		}
		return line
	}

	line.Wall = true
	line.Contact = wallPoint(b, origin, dir, castLen)
	line.Distance = fix(origin.DistanceTo(line.Contact))
	return line
}

// segmentCircleEnter returns the entry intersection of segment p1->p2
// with a circle, as a point and its parameter t in [0,1]. Grazing and
// non-intersecting paths report no hit.
func segmentCircleEnter(p1, p2, center Vec2, radius float64) (Vec2, float64, bool) {
	d := p2.Minus(p1)
	f := p1.Minus(center)

	a := fix(d.Dot(d))
	if a == 0 {
		return Vec2{}, 0, false
	}
	bq := fix(2 * d.Dot(f))
	cq := fix(f.Dot(f) - radius*radius)

	discriminant := fix(bq*bq - 4*a*cq)
	if discriminant <= 0 {
		return Vec2{}, 0, false
	}

	sqrtDisc := fix(math.Sqrt(discriminant))
	t := fix((-bq - sqrtDisc) / (2 * a)) // entry root
	if t < 0 || t > 1 {
		return Vec2{}, 0, false
	}
	at := p1.Plus(d.Times(t))
	return NewVec2(at.X, at.Y), t, true
}

// wallPoint walks the aim ray to the first inner wall, inset by the
// striker radius so the preview ends where the striker center would stop.
func wallPoint(b *Board, origin, dir Vec2, castLen float64) Vec2 {
	margin := (b.Settings.SurfaceSize - b.Settings.PlayfieldSize) / 2
	lo := margin + b.Striker.Radius
	hi := margin + b.Settings.PlayfieldSize - b.Striker.Radius

	best := castLen
	if dir.X > 0 {
		best = math.Min(best, (hi-origin.X)/dir.X)
	} else if dir.X < 0 {
		best = math.Min(best, (lo-origin.X)/dir.X)
	}
	if dir.Y > 0 {
		best = math.Min(best, (hi-origin.Y)/dir.Y)
	} else if dir.Y < 0 {
		best = math.Min(best, (lo-origin.Y)/dir.Y)
	}
	if best < 0 {
		best = 0
	}
	return origin.Plus(dir.Times(best))
}

// Bearing converts a direction vector to degrees, the form aim payloads
// use on the wire.
func Bearing(v Vec2) float64 {
	return fix(math.Atan2(v.Y, v.X) * 180 / math.Pi)
}
