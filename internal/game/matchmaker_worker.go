package game

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/playcarrom/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// QueuedPlayer represents a player waiting in the matchmaking queue
type QueuedPlayer struct {
	ID          int    `db:"id"`
	PlayerID    int    `db:"player_id"`
	Mode        string `db:"mode"`
	QueueToken  string `db:"queue_token"`
	DisplayName string `db:"display_name"`
}

// StartMatchmakerWorker runs a background job to match players from the DB queue
func StartMatchmakerWorker(ctx context.Context, db *sqlx.DB, rdb *redis.Client, cfg *config.Config) {
	interval := time.Duration(cfg.MatchmakerPollSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[MATCHMAKER] Starting matchmaker worker (poll every %v)", interval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[MATCHMAKER] Worker stopped")
			return
		case <-ticker.C:
			processMatchmaking(ctx, db, rdb, cfg)
		}
	}
}

func processMatchmaking(ctx context.Context, db *sqlx.DB, rdb *redis.Client, cfg *config.Config) {
	// Get modes that currently have queued players
	var modes []string
	err := db.Select(&modes, `
		SELECT DISTINCT mode
		FROM matchmaking_queue
		WHERE status = 'queued'
		  AND expires_at > NOW()
		ORDER BY mode
	`)
	if err != nil {
		log.Printf("[MATCHMAKER] Failed to get queued modes: %v", err)
		return
	}

	for _, mode := range modes {
		matchTablesForMode(ctx, db, rdb, cfg, mode)
	}
}

func matchTablesForMode(ctx context.Context, db *sqlx.DB, rdb *redis.Client, cfg *config.Config, mode string) {
	for {
		// Keep seating full tables until the queue runs dry
		matched := tryMatchTable(ctx, db, rdb, cfg, mode)
		if !matched {
			return
		}
	}
}

func tryMatchTable(ctx context.Context, db *sqlx.DB, rdb *redis.Client, cfg *config.Config, mode string) bool {
	seatCount := PlayerCountForMode(mode)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		log.Printf("[MATCHMAKER] Failed to begin transaction: %v", err)
		return false
	}
	defer tx.Rollback()

	// Claim a full table's worth of queued players for this mode.
	// FOR UPDATE SKIP LOCKED ensures atomic claim without blocking
	// other worker instances.
	var players []QueuedPlayer
	err = tx.Select(&players, `
		SELECT mq.id, mq.player_id, mq.mode, mq.queue_token,
		       COALESCE(p.display_name, '') as display_name
		FROM matchmaking_queue mq
		JOIN players p ON mq.player_id = p.id
		WHERE mq.mode = $1
		  AND mq.status = 'queued'
		  AND mq.expires_at > NOW()
		ORDER BY mq.created_at
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`, mode, seatCount)

	if err != nil {
		log.Printf("[MATCHMAKER] Failed to query queued players: %v", err)
		return false
	}

	if len(players) < seatCount {
		return false // Not enough players
	}

	// Check for self-match (same player id twice)
	seen := make(map[int]bool, seatCount)
	for _, p := range players {
		if seen[p.PlayerID] {
			log.Printf("[MATCHMAKER] Skipping self-match for player %d", p.PlayerID)
			return false
		}
		seen[p.PlayerID] = true
	}

	log.Printf("[MATCHMAKER] Seating %d players (mode=%s)", seatCount, mode)

	gameToken := generateGameToken()
	expiryTime := time.Now().Add(time.Duration(cfg.GameExpiryMinutes) * time.Minute)

	// Create game session in DB, with seats in queue order
	ids := make([]interface{}, 4)
	for i := 0; i < 4; i++ {
		if i < len(players) {
			ids[i] = players[i].PlayerID
		} else {
			ids[i] = nil
		}
	}
	var sessionID int
	err = tx.QueryRow(`
		INSERT INTO game_sessions (game_token, mode, player1_id, player2_id, player3_id, player4_id, status, created_at, expiry_time)
		VALUES ($1, $2, $3, $4, $5, $6, 'WAITING', NOW(), $7)
		RETURNING id
	`, gameToken, mode, ids[0], ids[1], ids[2], ids[3], expiryTime).Scan(&sessionID)

	if err != nil {
		log.Printf("[MATCHMAKER] Failed to create game session: %v", err)
		return false
	}

	// Update claimed queue entries to matched
	for _, p := range players {
		if _, err := tx.Exec(`
			UPDATE matchmaking_queue
			SET status = 'matched', matched_at = NOW(), session_id = $1
			WHERE id = $2
		`, sessionID, p.ID); err != nil {
			log.Printf("[MATCHMAKER] Failed to update queue entry %d: %v", p.ID, err)
			return false
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[MATCHMAKER] Failed to commit: %v", err)
		return false
	}

	log.Printf("[MATCHMAKER] ✓ Match created: session=%d token=%s mode=%s", sessionID, gameToken, mode)

	// Create in-memory carrom game for WebSocket play
	game := Manager.CreateGameFromMatch(players, gameToken, mode, sessionID)

	// Tell the waiting clients their table is ready
	if game != nil {
		go notifyMatchFound(cfg, rdb, game)
	}

	return true
}

// notifyMatchFound publishes a match_found event per seat so queue
// pollers and websocket listeners pick up their game link.
func notifyMatchFound(cfg *config.Config, rdb *redis.Client, game *CarromGameState) {
	if rdb == nil {
		return
	}
	for _, p := range game.Players {
		link := ""
		if cfg != nil {
			link = cfg.FrontendURL + "/g/" + game.Token + "?pt=" + p.PlayerToken
		}
		Manager.PublishGameEvent(map[string]interface{}{
			"type":        "match_found",
			"game_token":  game.Token,
			"game_id":     game.ID,
			"mode":        game.Mode,
			"queue_token": p.ID,
			"seat":        p.Seat,
			"game_link":   link,
			"message":     "Table ready! Click link to start game.",
		})
	}
	log.Printf("[MATCHMAKER] Match notifications published for game %s", game.Token)
}

func generateGameToken() string {
	return fmt.Sprintf("g_%d", time.Now().UnixNano())
}
