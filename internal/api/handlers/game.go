package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playcarrom/backend/internal/config"
	"github.com/playcarrom/backend/internal/game"
	"github.com/redis/go-redis/v9"
)

// JoinQueue puts the authenticated player into matchmaking for a mode.
// The durable queue row goes in first; if enough players are already
// waiting in memory the match fires immediately and the response carries
// the game link, otherwise the caller polls the status endpoint.
func JoinQueue(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		pid := c.GetInt("player_id")
		if pid == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req struct {
			Mode string `json:"mode"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Mode == "" {
			req.Mode = game.ModeTwoPlayer
		}
		if game.PlayerCountForMode(req.Mode) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown game mode"})
			return
		}

		var displayName string
		if err := db.Get(&displayName, `SELECT display_name FROM players WHERE id=$1`, pid); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "player not found"})
			return
		}

		// Prevent duplicate active queue entries for the same player
		var existingCount int
		if err := db.Get(&existingCount, `SELECT COUNT(*) FROM matchmaking_queue WHERE player_id=$1 AND status='queued' AND expires_at > NOW()`, pid); err == nil && existingCount > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "player already has an active queue entry"})
			return
		}

		queueToken := generateQueueToken()
		expiresAt := time.Now().Add(time.Duration(cfg.QueueExpiryMinutes) * time.Minute)

		var queueID int
		insertQ := `INSERT INTO matchmaking_queue (player_id, mode, queue_token, status, created_at, expires_at) VALUES ($1,$2,$3,'queued',NOW(),$4) RETURNING id`
		if err := db.QueryRowx(insertQ, pid, req.Mode, queueToken, expiresAt).Scan(&queueID); err != nil {
			log.Printf("[DB] Failed to insert matchmaking_queue for player %d: %v", pid, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue player"})
			return
		}

		if _, err := db.Exec(`UPDATE players SET last_active=NOW() WHERE id=$1`, pid); err != nil {
			log.Printf("[DB] Failed to touch last_active for player %d: %v", pid, err)
		}

		// Try to match immediately from the in-memory queue
		result, err := game.Manager.JoinQueue(queueToken, req.Mode, pid, displayName)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if result != nil {
			var mine *game.MatchedPlayer
			seats := make([]gin.H, 0, len(result.Players))
			for i := range result.Players {
				p := &result.Players[i]
				seats = append(seats, gin.H{"seat": p.Seat, "display_name": p.DisplayName})
				if p.ID == queueToken {
					mine = p
				}
			}
			if mine == nil {
				// Should not happen: the joiner always holds a seat
				log.Printf("[QUEUE] Matched game %s missing joiner %s", result.GameID, queueToken)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "match bookkeeping failed"})
				return
			}

			log.Printf("[QUEUE] Immediate match: game=%s mode=%s player=%d", result.GameID, result.Mode, pid)
			c.JSON(http.StatusOK, gin.H{
				"status":       "matched",
				"game_id":      result.GameID,
				"game_token":   result.GameToken,
				"mode":         result.Mode,
				"queue_token":  queueToken,
				"player_token": mine.Token,
				"game_link":    mine.Link,
				"seat":         mine.Seat,
				"seats":        seats,
				"expires_at":   result.ExpiresAt,
				"session_id":   result.SessionID,
				"message":      "Table ready! Click link to start game.",
			})
			return
		}

		log.Printf("[QUEUE] Player queued: player=%d mode=%s queue_token=%s queue_id=%d", pid, req.Mode, queueToken, queueID)
		c.JSON(http.StatusOK, gin.H{
			"status":      "queued",
			"queue_token": queueToken,
			"queue_id":    queueID,
			"mode":        req.Mode,
			"position":    game.Manager.GetPlayerQueuePosition(queueToken, req.Mode),
			"message":     "Finding players...",
		})
	}
}

// CheckQueueStatus checks if a queued player has been matched
func CheckQueueStatus(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		queueToken := c.Query("queue_token")
		if queueToken == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "queue_token required"})
			return
		}

		// Check if the player is already seated at a table in memory
		if gameState, err := game.Manager.GetGameForPlayer(queueToken); err == nil {
			respondMatched(c, cfg, gameState, queueToken)
			return
		}

		// Worker-matched entries: follow the queue row to its session
		var gameToken string
		err := db.Get(&gameToken, `
			SELECT gs.game_token
			FROM matchmaking_queue mq
			JOIN game_sessions gs ON mq.session_id = gs.id
			WHERE mq.queue_token = $1 AND mq.status = 'matched'
		`, queueToken)
		if err == nil && gameToken != "" {
			if gameState, gerr := game.Manager.GetGameByToken(gameToken); gerr == nil {
				respondMatched(c, cfg, gameState, queueToken)
				return
			}
		}

		// Check if still in queue
		if game.Manager.IsPlayerInQueue(queueToken) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "queued",
				"message": "Still waiting for players...",
			})
			return
		}

		log.Printf("[QUEUE STATUS] Player %s not found in queue or game", queueToken)
		c.JSON(http.StatusOK, gin.H{
			"status":  "not_found",
			"message": "Not in queue. Please join again.",
		})
	}
}

// respondMatched writes the matched response for the given seat
func respondMatched(c *gin.Context, cfg *config.Config, gameState *game.CarromGameState, playerID string) {
	p := gameState.GetPlayerByID(playerID)
	if p == nil {
		c.JSON(http.StatusOK, gin.H{"status": "not_found", "message": "Not seated at this table."})
		return
	}
	gameLink := cfg.FrontendURL + "/g/" + gameState.Token + "?pt=" + p.PlayerToken

	log.Printf("[QUEUE STATUS] Player %s matched! Game: %s", playerID, gameState.ID)
	c.JSON(http.StatusOK, gin.H{
		"status":     "matched",
		"game_id":    gameState.ID,
		"game_token": gameState.Token,
		"mode":       gameState.Mode,
		"game_link":  gameLink,
		"seat":       p.Seat,
		"expires_at": gameState.ExpiresAt,
		"message":    "Table ready! Click link to play.",
	})
}

// GetGameState returns current game state for a player
func GetGameState(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		pt := c.Query("pt")

		gameState, err := game.Manager.GetGameByToken(token)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Game not found",
			})
			return
		}

		if pt == "" {
			// Return basic game info without player-specific data
			c.JSON(http.StatusOK, gin.H{
				"game_id":      gameState.ID,
				"status":       gameState.Status,
				"mode":         gameState.Mode,
				"player_count": gameState.PlayerCount,
				"created_at":   gameState.CreatedAt,
			})
			return
		}

		// pt is the player token handed out at match time
		var playerID string
		for _, p := range gameState.Players {
			if p.PlayerToken == pt || p.ID == pt {
				playerID = p.ID
				break
			}
		}
		if playerID == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid player token"})
			return
		}

		state := gameState.GetGameStateForPlayer(playerID)
		c.JSON(http.StatusOK, state)
	}
}

// GetQueueStatus returns the current matchmaking queue status
func GetQueueStatus(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := game.Manager.GetQueueStatus()
		activeGames := game.Manager.GetActiveGameCount()

		c.JSON(http.StatusOK, gin.H{
			"queue_by_mode": status,
			"active_games":  activeGames,
		})
	}
}

// CreateTestGame creates a game for testing (dev mode only)
func CreateTestGame(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Mode         string   `json:"mode"`
			DisplayNames []string `json:"display_names"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Mode == "" {
			req.Mode = game.ModeTwoPlayer
		}

		gameState, err := game.Manager.CreateTestGame(req.DisplayNames, req.Mode)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		players := make([]gin.H, 0, len(gameState.Players))
		for _, p := range gameState.Players {
			players = append(players, gin.H{
				"id":           p.ID,
				"seat":         p.Seat,
				"color":        p.Color,
				"display_name": p.DisplayName,
				"player_token": p.PlayerToken,
				"game_link":    cfg.FrontendURL + "/g/" + gameState.Token + "?pt=" + p.PlayerToken,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"game_id":    gameState.ID,
			"game_token": gameState.Token,
			"mode":       gameState.Mode,
			"players":    players,
			"message":    "Test game created",
		})
	}
}

// SaveGame snapshots a resting match into the session row so it can be
// resumed later. Only a seated player may save, and only between shots.
func SaveGame(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		pid := c.GetInt("player_id")
		token := c.Param("token")

		gameState, err := game.Manager.GetGameByToken(token)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
			return
		}

		var seated bool
		for _, p := range gameState.Players {
			if p.DBPlayerID == pid {
				seated = true
				break
			}
		}
		if !seated {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a player in this game"})
			return
		}

		if gameState.SessionID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "game has no persistent session"})
			return
		}

		snap, err := gameState.CoreSnapshot()
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		if err := game.Manager.SaveMatchSnapshot(gameState.SessionID, snap); err != nil {
			log.Printf("[DB] Failed to save snapshot for session %d: %v", gameState.SessionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save game"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"saved": true, "session_id": gameState.SessionID})
	}
}

// ResumeGame restores a previously saved snapshot into the live match.
func ResumeGame(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		pid := c.GetInt("player_id")

		var req struct {
			GameToken string `json:"game_token"`
			SessionID int    `json:"session_id"`
		}
		if err := c.BindJSON(&req); err != nil || (req.GameToken == "" && req.SessionID == 0) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "game_token or session_id required"})
			return
		}

		gameToken := req.GameToken
		if gameToken == "" {
			if err := db.Get(&gameToken, `SELECT game_token FROM game_sessions WHERE id=$1`, req.SessionID); err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
		}

		snap, sessionID, err := game.Manager.LoadMatchSnapshot(gameToken)
		if err != nil {
			if errors.Is(err, game.ErrCorruptSnapshot) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "saved snapshot is corrupt"})
				return
			}
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no saved snapshot for this game"})
				return
			}
			log.Printf("[DB] Failed to load snapshot for %s: %v", gameToken, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load snapshot"})
			return
		}

		gameState, err := game.Manager.GetGameByToken(gameToken)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "game is no longer active"})
			return
		}

		var seated bool
		for _, p := range gameState.Players {
			if p.DBPlayerID == pid {
				seated = true
				break
			}
		}
		if !seated {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a player in this game"})
			return
		}

		if err := gameState.RestoreCore(snap); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		gameState.SaveToRedis()

		log.Printf("[RESUME] Session %d restored for game %s by player %d", sessionID, gameToken, pid)
		c.JSON(http.StatusOK, gin.H{"restored": true, "game_token": gameToken, "session_id": sessionID})
	}
}
