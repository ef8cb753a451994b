package game

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

// RecordMove appends a non-shot move (forfeit, concede) to the session's
// move log.
func (gm *GameManager) RecordMove(sessionID int, playerID int, moveType string) {
	if gm == nil || gm.db == nil || sessionID == 0 || playerID == 0 {
		return
	}

	// Determine next move number
	var maxMove int
	if err := gm.db.Get(&maxMove, `SELECT COALESCE(MAX(move_number), 0) FROM game_moves WHERE session_id = $1`, sessionID); err != nil {
		log.Printf("[DB] Failed to get max move number for session %d: %v", sessionID, err)
		return
	}
	moveNumber := maxMove + 1

	_, err := gm.db.Exec(`INSERT INTO game_moves (session_id, player_id, move_number, move_type, created_at) VALUES ($1,$2,$3,$4,NOW())`,
		sessionID, playerID, moveNumber, moveType)
	if err != nil {
		log.Printf("[DB] Failed to record move for session %d: %v", sessionID, err)
	}
}

// shotDataRecord is the JSONB payload stored per shot in game_moves.
type shotDataRecord struct {
	Angle    float64 `json:"angle"`
	Power    float64 `json:"power"`
	StrikerX float64 `json:"striker_x,omitempty"`
	Ticks    int     `json:"ticks"`
	Captured []int   `json:"captured"`
	Message  string  `json:"message"`
	Winner   int     `json:"winner,omitempty"`
	NextSeat int     `json:"next_seat"`
	Scores   []int   `json:"scores"`
}

// RecordCarromShot appends one simulated shot to the session's move log,
// with the full shot trace as JSONB.
func (gm *GameManager) RecordCarromShot(sessionID, playerID, shotNumber int, params ShotParams, summary *ShotSummary) {
	if gm == nil || gm.db == nil || sessionID == 0 || playerID == 0 || summary == nil {
		return
	}

	rec := shotDataRecord{
		Angle:    params.Angle,
		Power:    params.Power,
		StrikerX: params.StrikerX,
		Ticks:    summary.Ticks,
		Captured: summary.Captured,
		Message:  summary.Outcome.Message,
		Winner:   summary.Outcome.Winner,
		NextSeat: summary.Outcome.CurrentPlayer,
		Scores:   summary.Outcome.Scores,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("[DB] Failed to marshal shot data for session %d: %v", sessionID, err)
		return
	}

	_, err = gm.db.Exec(`INSERT INTO game_moves (session_id, player_id, move_number, move_type, shot_data, created_at) VALUES ($1,$2,$3,'SHOT',$4::jsonb,NOW())`,
		sessionID, playerID, shotNumber, string(data))
	if err != nil {
		log.Printf("[DB] Failed to record shot for session %d: %v", sessionID, err)
	}
}

// SaveFinalGameState persists the final game state JSON and updates the
// session row with the result.
func (gm *GameManager) SaveFinalGameState(g *CarromGameState) {
	if gm == nil || gm.db == nil || g == nil || g.SessionID == 0 {
		return
	}

	log.Printf("[DB] SaveFinalGameState called for session=%d status=%s winner_side=%d", g.SessionID, g.Status, g.WinnerSide)

	final := map[string]interface{}{
		"id":          g.ID,
		"token":       g.Token,
		"mode":        g.Mode,
		"players":     g.Players,
		"status":      g.Status,
		"winner_side": g.WinnerSide,
		"win_type":    g.WinType,
		"shot_number": g.ShotNumber,
		"discs":       g.discStatesLocked(),
	}
	data, err := json.Marshal(final)
	if err != nil {
		log.Printf("[DB] Failed to marshal final game state for session %d: %v", g.SessionID, err)
		return
	}

	_, err = gm.db.Exec(`INSERT INTO game_states (session_id, game_state, created_at) VALUES ($1, $2::jsonb, NOW())`, g.SessionID, string(data))
	if err != nil {
		log.Printf("[DB] Failed to insert game_states for session %d: %v", g.SessionID, err)
		// continue to attempt update
	}

	if g.Status != StatusCompleted {
		if _, err := gm.db.Exec(`UPDATE game_sessions SET status=$1 WHERE id=$2`, string(g.Status), g.SessionID); err != nil {
			log.Printf("[DB] Failed to update game_sessions status for %d: %v", g.SessionID, err)
		}
		return
	}

	var winnerIDs, allIDs []int
	for _, p := range g.Players {
		if p.DBPlayerID <= 0 {
			continue
		}
		allIDs = append(allIDs, p.DBPlayerID)
		if g.WinnerSide != 0 && SideForSeat(p.Seat) == g.WinnerSide {
			winnerIDs = append(winnerIDs, p.DBPlayerID)
		}
	}

	for _, id := range winnerIDs {
		if _, err := gm.db.Exec(`UPDATE players SET total_games_won = total_games_won + 1 WHERE id = $1`, id); err != nil {
			log.Printf("[DB] Failed to update winner stats for session %d: %v", g.SessionID, err)
		}
	}
	for _, id := range allIDs {
		if _, err := gm.db.Exec(`UPDATE players SET total_games_played = total_games_played + 1 WHERE id = $1`, id); err != nil {
			log.Printf("[DB] Failed to update games_played for session %d: %v", g.SessionID, err)
		}
	}

	var startedAtParam interface{}
	if g.StartedAt != nil {
		startedAtParam = *g.StartedAt
	}
	winnerSide := sql.NullInt64{Int64: int64(g.WinnerSide), Valid: g.WinnerSide != 0}
	if _, err := gm.db.Exec(`UPDATE game_sessions SET status=$1, winner_side=$2, win_type=$3, started_at = COALESCE(started_at, $4), completed_at = NOW() WHERE id = $5`,
		string(StatusCompleted), winnerSide, g.WinType, startedAtParam, g.SessionID); err != nil {
		log.Printf("[DB] Failed to update game_sessions for session %d to completed: %v", g.SessionID, err)
	}

	// Completed games no longer need the hot cache entry refreshed, but
	// spectators may still read it until the TTL runs out.
	gm.saveCarromGameToRedis(g)
}

// MarkSessionStarted updates the session row to IN_PROGRESS and sets started_at if it wasn't set.
func (gm *GameManager) MarkSessionStarted(sessionID int, startedAt time.Time) error {
	if gm == nil || gm.db == nil || sessionID == 0 {
		return nil
	}
	_, err := gm.db.Exec(`UPDATE game_sessions SET status=$1, started_at = COALESCE(started_at, $2) WHERE id=$3`, string(StatusInProgress), startedAt, sessionID)
	if err != nil {
		log.Printf("[DB] Failed to mark session %d as IN_PROGRESS: %v", sessionID, err)
	}
	return err
}

// SaveMatchSnapshot stores a mid-game board snapshot on the session row
// so the match can be resumed later, even across server restarts.
func (gm *GameManager) SaveMatchSnapshot(sessionID int, snap *Snapshot) error {
	if gm == nil || gm.db == nil || sessionID == 0 || snap == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if _, err := gm.db.Exec(`UPDATE game_sessions SET snapshot = $1::jsonb WHERE id = $2`, string(data), sessionID); err != nil {
		log.Printf("[DB] Failed to save snapshot for session %d: %v", sessionID, err)
		return err
	}
	log.Printf("[DB] Saved snapshot for session %d", sessionID)
	return nil
}

// LoadMatchSnapshot reads a previously saved snapshot for a game token.
// Returns sql.ErrNoRows if the session has no saved snapshot.
func (gm *GameManager) LoadMatchSnapshot(gameToken string) (*Snapshot, int, error) {
	if gm == nil || gm.db == nil {
		return nil, 0, sql.ErrNoRows
	}
	var sessionID int
	var raw []byte
	err := gm.db.QueryRowx(`SELECT id, snapshot FROM game_sessions WHERE game_token = $1 AND snapshot IS NOT NULL`, gameToken).Scan(&sessionID, &raw)
	if err != nil {
		return nil, 0, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, 0, ErrCorruptSnapshot
	}
	return &snap, sessionID, nil
}

// PublishGameEvent pushes a cross-process event onto the shared
// game_events channel; every API node's websocket hub relays it to its
// local connections.
func (gm *GameManager) PublishGameEvent(payload map[string]interface{}) {
	if gm == nil || gm.rdb == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[REDIS] Failed to marshal game event: %v", err)
		return
	}
	if err := gm.rdb.Publish(context.Background(), "game_events", b).Err(); err != nil {
		log.Printf("[REDIS] Failed to publish game event: %v", err)
	}
}
