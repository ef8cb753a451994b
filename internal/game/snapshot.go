package game

import (
	"errors"
	"fmt"
	"math"
)

// ErrCorruptSnapshot is returned when a snapshot fails validation during
// restore. The match being restored into is left untouched.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// SnapshotVersion is bumped whenever the snapshot layout changes in a way
// old readers cannot handle.
const SnapshotVersion = 1

// DiscSnapshot is one disc's persisted state. Velocities are omitted:
// snapshots are only taken with the board at rest.
type DiscSnapshot struct {
	ID       int      `json:"id"`
	Kind     DiscKind `json:"kind"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Captured bool     `json:"captured"`
}

// Snapshot is a flat, serializable record of a settled match: settings,
// every disc, and the full rule state. It contains no pointers into the
// live match, so it can be marshaled, cached, or persisted as-is.
type Snapshot struct {
	Version           int            `json:"version"`
	Settings          Settings       `json:"settings"`
	CurrentPlayer     int            `json:"current_player"`
	Scores            []int          `json:"scores"`
	QueenPocketed     bool           `json:"queen_pocketed"`
	QueenCovered      bool           `json:"queen_covered"`
	PendingQueenCover bool           `json:"pending_queen_cover"`
	FoulCount         int            `json:"foul_count"`
	Winner            int            `json:"winner"`
	Phase             ShotPhase      `json:"phase"`
	Message           string         `json:"message"`
	Discs             []DiscSnapshot `json:"discs"`
}

// Snapshot captures the full match state. It refuses while a shot is in
// flight: a snapshot must round-trip deterministically, and mid-shot
// velocities are deliberately excluded from the format.
func (m *Match) Snapshot() (*Snapshot, error) {
	phase := m.engine.Phase()
	if phase != AwaitingShot && phase != GameOver {
		return nil, fmt.Errorf("%w: snapshot requires a settled board", ErrShotInFlight)
	}
	st := m.engine.State()
	snap := &Snapshot{
		Version:           SnapshotVersion,
		Settings:          m.settings,
		CurrentPlayer:     st.CurrentPlayer,
		Scores:            st.Scores,
		QueenPocketed:     st.QueenPocketed,
		QueenCovered:      st.QueenCovered,
		PendingQueenCover: st.PendingQueenCover,
		FoulCount:         st.FoulCount,
		Winner:            st.Winner,
		Phase:             st.Phase,
		Message:           st.Message,
	}
	for _, d := range m.board.AllDiscs() {
		snap.Discs = append(snap.Discs, DiscSnapshot{
			ID:       d.ID,
			Kind:     d.Kind,
			X:        d.Position.X,
			Y:        d.Position.Y,
			Captured: d.Captured,
		})
	}
	return snap, nil
}

// RestoreMatch builds a fresh match from a snapshot. Every field is
// validated before anything is constructed; a snapshot that fails any
// check yields ErrCorruptSnapshot with the failing detail.
func RestoreMatch(snap *Snapshot) (*Match, error) {
	if err := validateSnapshot(snap); err != nil {
		return nil, err
	}
	m, err := NewMatch(snap.Settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	for _, ds := range snap.Discs {
		d := m.board.DiscByID(ds.ID)
		d.Position = NewVec2(ds.X, ds.Y)
		d.Velocity = Vec2{}
		d.Captured = ds.Captured
	}
	m.engine.state = MatchState{
		PlayerCount:       snap.Settings.PlayerCount,
		CurrentPlayer:     snap.CurrentPlayer,
		Scores:            append([]int(nil), snap.Scores...),
		QueenPocketed:     snap.QueenPocketed,
		QueenCovered:      snap.QueenCovered,
		PendingQueenCover: snap.PendingQueenCover,
		FoulCount:         snap.FoulCount,
		Winner:            snap.Winner,
		Phase:             snap.Phase,
		Message:           snap.Message,
	}
	return m, nil
}

// Restore swaps this match to the snapshot's state. The swap is atomic:
// on any validation failure the receiver is left exactly as it was.
func (m *Match) Restore(snap *Snapshot) error {
	restored, err := RestoreMatch(snap)
	if err != nil {
		return err
	}
	*m = *restored
	return nil
}

func validateSnapshot(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrCorruptSnapshot)
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, snap.Version)
	}
	s := snap.Settings
	if s.PlayerCount != 2 && s.PlayerCount != 4 {
		return fmt.Errorf("%w: player count %d", ErrCorruptSnapshot, s.PlayerCount)
	}
	if s.SurfaceSize <= 0 || s.PlayfieldSize <= 0 || s.PlayfieldSize > s.SurfaceSize {
		return fmt.Errorf("%w: board dimensions %vx%v", ErrCorruptSnapshot, s.SurfaceSize, s.PlayfieldSize)
	}
	if s.Friction <= 0 || s.Friction >= 1 {
		return fmt.Errorf("%w: friction %v", ErrCorruptSnapshot, s.Friction)
	}
	if s.StrikerRadius <= 0 || s.CoinRadius <= 0 || s.QueenRadius <= 0 || s.PocketRadius <= 0 {
		return fmt.Errorf("%w: non-positive radius", ErrCorruptSnapshot)
	}
	if snap.CurrentPlayer < 1 || snap.CurrentPlayer > s.PlayerCount {
		return fmt.Errorf("%w: current player %d of %d", ErrCorruptSnapshot, snap.CurrentPlayer, s.PlayerCount)
	}
	if len(snap.Scores) != s.PlayerCount {
		return fmt.Errorf("%w: %d scores for %d players", ErrCorruptSnapshot, len(snap.Scores), s.PlayerCount)
	}
	for i, sc := range snap.Scores {
		if sc < 0 {
			return fmt.Errorf("%w: negative score for player %d", ErrCorruptSnapshot, i+1)
		}
	}
	if snap.FoulCount < 0 || snap.FoulCount >= 3 {
		return fmt.Errorf("%w: foul count %d", ErrCorruptSnapshot, snap.FoulCount)
	}
	if snap.Winner < 0 || snap.Winner > 2 {
		return fmt.Errorf("%w: winner %d", ErrCorruptSnapshot, snap.Winner)
	}
	switch snap.Phase {
	case AwaitingShot:
		if snap.Winner != 0 {
			return fmt.Errorf("%w: winner set while awaiting shot", ErrCorruptSnapshot)
		}
	case GameOver:
		if snap.Winner == 0 {
			return fmt.Errorf("%w: game over without winner", ErrCorruptSnapshot)
		}
	default:
		return fmt.Errorf("%w: phase %q not restorable", ErrCorruptSnapshot, snap.Phase)
	}
	if snap.PendingQueenCover && snap.QueenCovered {
		return fmt.Errorf("%w: queen both pending and covered", ErrCorruptSnapshot)
	}

	// The disc set must be exactly the canonical layout: same IDs, same
	// kinds, nothing missing, nothing added.
	canonical := NewBoard(s).AllDiscs()
	if len(snap.Discs) != len(canonical) {
		return fmt.Errorf("%w: %d discs, want %d", ErrCorruptSnapshot, len(snap.Discs), len(canonical))
	}
	seen := make(map[int]bool, len(snap.Discs))
	var queen *DiscSnapshot
	for i := range snap.Discs {
		ds := &snap.Discs[i]
		if ds.ID < 0 || ds.ID >= len(canonical) {
			return fmt.Errorf("%w: disc id %d out of range", ErrCorruptSnapshot, ds.ID)
		}
		if seen[ds.ID] {
			return fmt.Errorf("%w: duplicate disc id %d", ErrCorruptSnapshot, ds.ID)
		}
		seen[ds.ID] = true
		if ds.Kind != canonical[ds.ID].Kind {
			return fmt.Errorf("%w: disc %d kind %s, want %s", ErrCorruptSnapshot, ds.ID, ds.Kind, canonical[ds.ID].Kind)
		}
		if math.IsNaN(ds.X) || math.IsInf(ds.X, 0) || math.IsNaN(ds.Y) || math.IsInf(ds.Y, 0) {
			return fmt.Errorf("%w: disc %d position not finite", ErrCorruptSnapshot, ds.ID)
		}
		if !ds.Captured && (ds.X < 0 || ds.X > s.SurfaceSize || ds.Y < 0 || ds.Y > s.SurfaceSize) {
			return fmt.Errorf("%w: disc %d off the board at (%v, %v)", ErrCorruptSnapshot, ds.ID, ds.X, ds.Y)
		}
		if ds.ID == StrikerID && ds.Captured && snap.Phase != GameOver {
			return fmt.Errorf("%w: striker captured outside game over", ErrCorruptSnapshot)
		}
		if ds.ID == QueenID {
			queen = ds
		}
	}
	// Queen bookkeeping must agree with the queen disc itself.
	if snap.PendingQueenCover && !queen.Captured {
		return fmt.Errorf("%w: pending queen cover with queen on board", ErrCorruptSnapshot)
	}
	if snap.QueenCovered && !queen.Captured {
		return fmt.Errorf("%w: covered queen on board", ErrCorruptSnapshot)
	}
	if queen.Captured && !snap.QueenPocketed {
		return fmt.Errorf("%w: captured queen never marked pocketed", ErrCorruptSnapshot)
	}
	return nil
}
