package game

import (
	"errors"
	"fmt"
	"math"
)

// ErrShotInFlight rejects operations that need a settled board (snapshot,
// resolve, striker placement) while discs are still moving.
var ErrShotInFlight = errors.New("shot still in flight")

// Match is one playable carrom game: a board, the physics world that
// moves it, and the rule engine that scores it. It is not safe for
// concurrent use; callers serialize access (CarromGameState holds the
// lock on the server side).
type Match struct {
	settings Settings
	board    *Board
	world    *World
	engine   *Engine
}

// NewMatch sets up a fresh board in the standard ring formation with the
// striker on seat 1's baseline.
func NewMatch(settings Settings) (*Match, error) {
	if settings.PlayerCount != 2 && settings.PlayerCount != 4 {
		return nil, fmt.Errorf("player count must be 2 or 4, got %d", settings.PlayerCount)
	}
	if settings.SurfaceSize <= 0 || settings.PlayfieldSize <= 0 || settings.PlayfieldSize > settings.SurfaceSize {
		return nil, fmt.Errorf("invalid board dimensions %vx%v", settings.SurfaceSize, settings.PlayfieldSize)
	}
	if settings.Friction <= 0 || settings.Friction >= 1 {
		return nil, fmt.Errorf("friction must be in (0,1), got %v", settings.Friction)
	}
	board := NewBoard(settings)
	m := &Match{
		settings: settings,
		board:    board,
		world:    NewWorld(board),
	}
	m.engine = newEngine(settings.PlayerCount, board)
	return m, nil
}

func (m *Match) Settings() Settings {
	return m.settings
}

// Board exposes the live board for read access (state payloads, aim
// previews). Mutations go through shots and the rule engine.
func (m *Match) Board() *Board {
	return m.board
}

func (m *Match) State() MatchState {
	return m.engine.State()
}

func (m *Match) Phase() ShotPhase {
	return m.engine.Phase()
}

func (m *Match) CurrentPlayer() int {
	return m.engine.CurrentPlayer()
}

func (m *Match) Winner() int {
	return m.engine.State().Winner
}

// PlaceStriker slides the striker along the current player's baseline
// during aiming. The x coordinate is clamped to the legal span.
func (m *Match) PlaceStriker(x float64) error {
	if m.engine.Phase() != AwaitingShot {
		return fmt.Errorf("%w: striker can only be placed while awaiting a shot", ErrShotInFlight)
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return fmt.Errorf("%w: striker x must be finite", ErrInvalidShotParameters)
	}
	m.board.PlaceStriker(m.engine.CurrentPlayer(), x)
	return nil
}

// BeginShot releases the striker at the given angle (radians) and power
// (0..1, scaled to MaxStrikerSpeed). On success the match enters
// ShotInFlight and ticks advance the physics until everything rests.
func (m *Match) BeginShot(angle, power float64) error {
	if err := m.engine.BeginShot(angle, power); err != nil {
		return err
	}
	speed := power * m.settings.MaxStrikerSpeed
	m.board.Striker.Velocity = NewVec2(math.Cos(angle)*speed, math.Sin(angle)*speed)
	m.world.ResetShotRecord()
	return nil
}

// AdvanceTick runs one fixed physics step. Ticking a settled board is a
// harmless no-op that reports AtRest.
func (m *Match) AdvanceTick() TickResult {
	return m.world.AdvanceTick()
}

// AtRest reports whether every live disc has zero velocity.
func (m *Match) AtRest() bool {
	return m.world.AllAtRest()
}

// ResolveShot applies the completed shot's captures to the match state:
// scoring, queen cover, fouls, turn switch, win detection, striker
// respot. It fails with ErrShotInFlight if discs are still moving.
func (m *Match) ResolveShot() (TurnOutcome, error) {
	if m.engine.Phase() != ShotInFlight {
		return TurnOutcome{}, fmt.Errorf("%w: no shot to resolve in phase %s", ErrInvalidShotParameters, m.engine.Phase())
	}
	if !m.world.AllAtRest() {
		return TurnOutcome{}, ErrShotInFlight
	}
	rec := m.world.ShotRecord()
	out := m.engine.ResolveShot(rec)
	m.world.ResetShotRecord()
	return out, nil
}

// ShotSummary is the full trace of one shot driven by PlayShot: every
// collision event, the captures in order, the tick count, and the rule
// outcome once the board settled.
type ShotSummary struct {
	Ticks     int              `json:"ticks"`
	Events    []CollisionEvent `json:"events"`
	Captured  []int            `json:"captured"`
	Positions []DiscPosition   `json:"positions"`
	Outcome   TurnOutcome      `json:"outcome"`
}

// PlayShot runs one whole shot synchronously: release, tick to rest,
// resolve. MaxShotTicks bounds the loop so a pathological state can
// never spin forever; friction guarantees rest long before that in
// practice, and any residual motion is zeroed before resolution.
func (m *Match) PlayShot(angle, power float64) (*ShotSummary, error) {
	if err := m.BeginShot(angle, power); err != nil {
		return nil, err
	}
	sum := &ShotSummary{}
	for sum.Ticks < MaxShotTicks {
		res := m.world.AdvanceTick()
		sum.Ticks++
		sum.Events = append(sum.Events, res.Events...)
		sum.Positions = res.Positions
		if res.AtRest {
			break
		}
	}
	if !m.world.AllAtRest() {
		m.world.StopAll()
	}
	rec := m.world.ShotRecord()
	sum.Captured = rec.CapturedIDs()
	out := m.engine.ResolveShot(rec)
	m.world.ResetShotRecord()
	sum.Outcome = out
	sum.Positions = m.world.CurrentPositions()
	return sum, nil
}
