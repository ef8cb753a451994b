package game

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidShotParameters rejects a shot with out-of-range power, a
// non-finite angle, or a release outside the aiming phase. The match state
// is untouched on rejection.
var ErrInvalidShotParameters = errors.New("invalid shot parameters")

// ShotPhase is the rule engine's state machine position.
type ShotPhase string

const (
	AwaitingShot   ShotPhase = "AWAITING_SHOT"
	ShotInFlight   ShotPhase = "SHOT_IN_FLIGHT"
	TurnResolution ShotPhase = "TURN_RESOLUTION"
	GameOver       ShotPhase = "GAME_OVER"
)

// MatchState is the authoritative scoring and turn aggregate. It is owned
// exclusively by the rule engine; the physics world never reads it.
type MatchState struct {
	PlayerCount       int       `json:"player_count"`
	CurrentPlayer     int       `json:"current_player"` // seat 1..PlayerCount
	Scores            []int     `json:"scores"`         // seat i -> Scores[i-1]
	QueenPocketed     bool      `json:"queen_pocketed"`
	QueenCovered      bool      `json:"queen_covered"`
	PendingQueenCover bool      `json:"pending_queen_cover"`
	FoulCount         int       `json:"foul_count"`
	Winner            int       `json:"winner"` // 0 none, else winning side (1 light, 2 dark)
	Phase             ShotPhase `json:"phase"`
	Message           string    `json:"message"`
}

// TurnOutcome is the result of resolving one completed shot.
type TurnOutcome struct {
	Message          string `json:"message"`
	CurrentPlayer    int    `json:"current_player"`
	Scores           []int  `json:"scores"`
	Winner           int    `json:"winner"`
	TurnChanged      bool   `json:"turn_changed"`
	Foul             string `json:"foul,omitempty"`
	QueenReturned    bool   `json:"queen_returned"`
	StrikerRespotted bool   `json:"striker_respotted"`
}

// BoardController is the narrow command surface the rule engine holds on
// the physics side. The engine issues intent (return the queen, respot the
// striker); the board performs the geometry. It never touches disc vectors
// directly.
type BoardController interface {
	ReturnQueenToCenter()
	RespotStriker(seat int)
	RemainingByColor() (light, dark int)
	QueenOnBoard() bool
}

// Engine drives the carrom turn/scoring state machine over a board.
type Engine struct {
	state MatchState
	board BoardController
}

func newEngine(playerCount int, board BoardController) *Engine {
	return &Engine{
		state: MatchState{
			PlayerCount:   playerCount,
			CurrentPlayer: 1,
			Scores:        make([]int, playerCount),
			Phase:         AwaitingShot,
		},
		board: board,
	}
}

// State returns a copy of the match state.
func (e *Engine) State() MatchState {
	s := e.state
	s.Scores = append([]int(nil), e.state.Scores...)
	return s
}

func (e *Engine) Phase() ShotPhase {
	return e.state.Phase
}

func (e *Engine) CurrentPlayer() int {
	return e.state.CurrentPlayer
}

// ColorForSeat maps a seat to its assigned coin color: odd seats play
// light, even seats dark. In 4-player mode seats 1 and 3 share the light
// side, 2 and 4 the dark side.
func ColorForSeat(seat int) DiscKind {
	if seat%2 == 1 {
		return RegularLight
	}
	return RegularDark
}

// SideForSeat maps a seat to its side index (1 light, 2 dark), the
// identity a winner is reported as.
func SideForSeat(seat int) int {
	if seat%2 == 1 {
		return 1
	}
	return 2
}

func colorWord(k DiscKind) string {
	if k == RegularLight {
		return "light"
	}
	return "dark"
}

// BeginShot validates the release and transitions AwaitingShot ->
// ShotInFlight. The foul counter is incremented provisionally here; any
// successful own-color or queen capture during the shot resets it.
func (e *Engine) BeginShot(angle, power float64) error {
	if e.state.Phase != AwaitingShot {
		return fmt.Errorf("%w: shot released in phase %s", ErrInvalidShotParameters, e.state.Phase)
	}
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return fmt.Errorf("%w: angle must be finite", ErrInvalidShotParameters)
	}
	if math.IsNaN(power) || math.IsInf(power, 0) || power < 0 || power > 1 {
		return fmt.Errorf("%w: power %v outside [0,1]", ErrInvalidShotParameters, power)
	}
	if power == 0 {
		return fmt.Errorf("%w: power must be positive", ErrInvalidShotParameters)
	}
	e.state.FoulCount++
	e.state.Phase = ShotInFlight
	return nil
}

// ResolveShot consumes a completed shot's record and applies scoring,
// queen-cover logic, foul handling, turn switching and win detection in
// one atomic pass. The shooter is fixed for the whole resolution: captures
// from one shot can never credit another player. Must be called exactly
// once per shot, after the world reports all-at-rest.
func (e *Engine) ResolveShot(rec *ShotRecord) TurnOutcome {
	if e.state.Phase != ShotInFlight {
		return e.outcome(false)
	}
	e.state.Phase = TurnResolution

	shooter := e.state.CurrentPlayer
	ownColor := ColorForSeat(shooter)

	capturedOwn := false
	opponentFoul := false

	for _, d := range rec.Captured {
		switch {
		case d.Kind == Queen:
			e.state.QueenPocketed = true
			e.state.PendingQueenCover = true
			e.state.FoulCount = 0
			e.state.Message = fmt.Sprintf("Player %d pocketed the Queen! Must cover it.", shooter)

		case d.Kind == ownColor:
			e.addScore(shooter, CoinPoints)
			e.state.FoulCount = 0
			capturedOwn = true
			e.state.Message = fmt.Sprintf("Player %d pocketed a %s coin!", shooter, colorWord(d.Kind))
			if e.state.PendingQueenCover {
				e.state.PendingQueenCover = false
				e.state.QueenCovered = true
				e.addScore(shooter, QueenCoverPoints)
				e.state.Message = fmt.Sprintf("Player %d covered the Queen! +3 points", shooter)
			}

		default:
			opponentFoul = true
			e.state.Message = fmt.Sprintf("Player %d pocketed opponent's coin!", shooter)
		}
	}

	// Shot-level decision, after every capture has been applied.
	foul := ""
	turnChanged := false
	queenReturned := false

	switch {
	case rec.StrikerPocketed:
		// Dominant foul, regardless of anything else pocketed this shot.
		foul = "striker_pocketed"
		e.state.Message = "Striker pocketed!"
		queenReturned = e.returnPendingQueen()
		e.switchTurn()
		e.state.FoulCount = 0
		turnChanged = true

	case opponentFoul:
		foul = "opponent_coin"
		e.state.Message = fmt.Sprintf("Player %d pocketed opponent's coin!", shooter)
		queenReturned = e.returnPendingQueen()
		e.switchTurn()
		e.state.FoulCount = 0
		turnChanged = true

	case capturedOwn:
		// Successful shot: the shooter goes again.

	case e.state.PendingQueenCover && len(rec.Captured) > 0:
		// Queen-only shot: the cover chance survives to the next shot,
		// but the turn still passes.
		e.switchTurn()
		turnChanged = true
		e.state.Message = fmt.Sprintf("%s Player %d's turn", e.state.Message, e.state.CurrentPlayer)

	case e.state.FoulCount >= 3:
		foul = "three_fouls"
		e.state.Message = fmt.Sprintf("Player %d committed 3 consecutive fouls!", shooter)
		queenReturned = e.returnPendingQueen()
		e.switchTurn()
		e.state.FoulCount = 0
		turnChanged = true

	default:
		// Capture-free shot: one miss passes the turn. The foul counter
		// keeps its provisional increment and keeps accumulating across
		// turns until a capture resets it or it reaches three.
		queenReturned = e.returnPendingQueen()
		e.switchTurn()
		turnChanged = true
		e.state.Message = fmt.Sprintf("Player %d's turn", e.state.CurrentPlayer)
	}

	// Win detection runs on the board, not the score sheet: a side wins
	// when its color is cleared, no matter whose shot cleared it.
	light, dark := e.board.RemainingByColor()
	if light == 0 {
		e.state.Winner = 1
	} else if dark == 0 {
		e.state.Winner = 2
	}

	respotted := false
	if e.state.Winner != 0 {
		e.state.Phase = GameOver
	} else {
		e.board.RespotStriker(e.state.CurrentPlayer)
		respotted = true
		e.state.Phase = AwaitingShot
	}

	out := e.outcome(turnChanged)
	out.Foul = foul
	out.QueenReturned = queenReturned
	out.StrikerRespotted = respotted
	return out
}

// returnPendingQueen undoes an uncovered queen capture: the queen goes
// back to the board center and the cover obligation is cleared.
func (e *Engine) returnPendingQueen() bool {
	if !e.state.PendingQueenCover || e.state.QueenCovered {
		return false
	}
	e.board.ReturnQueenToCenter()
	e.state.PendingQueenCover = false
	return true
}

func (e *Engine) switchTurn() {
	if e.state.PlayerCount == 2 {
		e.state.CurrentPlayer = 3 - e.state.CurrentPlayer
		return
	}
	e.state.CurrentPlayer = e.state.CurrentPlayer%e.state.PlayerCount + 1
}

func (e *Engine) addScore(seat, points int) {
	e.state.Scores[seat-1] += points
}

func (e *Engine) outcome(turnChanged bool) TurnOutcome {
	return TurnOutcome{
		Message:       e.state.Message,
		CurrentPlayer: e.state.CurrentPlayer,
		Scores:        append([]int(nil), e.state.Scores...),
		Winner:        e.state.Winner,
		TurnChanged:   turnChanged,
	}
}
