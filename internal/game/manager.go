package game

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/playcarrom/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// GameManager manages all active carrom games and matchmaking
type GameManager struct {
	games            map[string]*CarromGameState // keyed by game ID
	playerToGame     map[string]string           // player ID -> game ID
	matchmakingQueue map[string][]QueueEntry     // mode -> queue of players
	rdb              *redis.Client               // Redis client for persistence
	db               *sqlx.DB                    // SQL DB for persistent records
	config           *config.Config              // Application config
	mu               sync.RWMutex
}

// QueueEntry represents a player in the in-memory matchmaking queue
type QueueEntry struct {
	QueueToken  string
	Mode        string
	DBPlayerID  int
	DisplayName string
	JoinedAt    time.Time
}

// MatchedPlayer is one seat assignment in a completed match
type MatchedPlayer struct {
	ID          string
	Token       string
	Link        string
	DisplayName string
	DBPlayerID  int
	Seat        int
}

// MatchResult represents the result of a successful match
type MatchResult struct {
	GameID    string
	GameToken string
	Mode      string
	Players   []MatchedPlayer
	ExpiresAt time.Time
	SessionID int
}

var (
	// Global game manager instance
	Manager *GameManager
)

// InitializeManager initializes the global game manager with Redis, DB and config
func InitializeManager(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) {
	Manager = NewGameManager(db, rdb, cfg)
	// Start background jobs
	go Manager.StartExpiryChecker()
	go Manager.StartDisconnectChecker()
	go Manager.StartQueueExpiryChecker()
}

// NewGameManager creates a new game manager
func NewGameManager(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) *GameManager {
	return &GameManager{
		games:            make(map[string]*CarromGameState),
		playerToGame:     make(map[string]string),
		matchmakingQueue: make(map[string][]QueueEntry),
		rdb:              rdb,
		db:               db,
		config:           cfg,
	}
}

// GetConfig returns the manager's application config.
func (gm *GameManager) GetConfig() *config.Config {
	return gm.config
}

// generateToken generates a secure random token
func generateToken(length int) string {
	bytes := make([]byte, length)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// generateGameID generates a unique game ID
func generateGameID() string {
	return "game_" + generateToken(8)
}

// JoinQueue adds a player to the in-memory matchmaking queue for a mode.
// When the queue holds a full table the match is made immediately; the
// caller gets a MatchResult with every seat's token and link.
func (gm *GameManager) JoinQueue(playerID, mode string, dbPlayerID int, displayName string) (*MatchResult, error) {
	if mode != ModeTwoPlayer && mode != ModeFourPlayer {
		return nil, errors.New("unknown game mode")
	}

	gm.mu.Lock()
	defer gm.mu.Unlock()

	// Check if player is already in a game
	if _, exists := gm.playerToGame[playerID]; exists {
		return nil, errors.New("player already in a game")
	}

	// Check if player is already in queue
	for _, entries := range gm.matchmakingQueue {
		for _, entry := range entries {
			if entry.QueueToken == playerID {
				return nil, errors.New("player already in queue")
			}
		}
	}

	needed := PlayerCountForMode(mode) - 1
	queue := gm.matchmakingQueue[mode]

	// Pick opponents, oldest first, skipping duplicate identities
	var picked []QueueEntry
	var pickedIdx []int
	for i, opponent := range queue {
		if opponent.DBPlayerID > 0 && opponent.DBPlayerID == dbPlayerID {
			continue
		}
		picked = append(picked, opponent)
		pickedIdx = append(pickedIdx, i)
		if len(picked) == needed {
			break
		}
	}

	if len(picked) < needed {
		// Not enough opponents yet, add to queue
		gm.matchmakingQueue[mode] = append(queue, QueueEntry{
			QueueToken:  playerID,
			Mode:        mode,
			DBPlayerID:  dbPlayerID,
			DisplayName: displayName,
			JoinedAt:    time.Now(),
		})
		return nil, nil // No match yet
	}

	// Match found! Remove the picked opponents from the queue
	remaining := make([]QueueEntry, 0, len(queue)-needed)
	skip := make(map[int]bool, needed)
	for _, idx := range pickedIdx {
		skip[idx] = true
	}
	for i, entry := range queue {
		if !skip[i] {
			remaining = append(remaining, entry)
		}
	}
	gm.matchmakingQueue[mode] = remaining

	// Seat order: queued players first (oldest first), joiner last
	seats := make([]SeatInfo, 0, needed+1)
	for _, opp := range picked {
		seats = append(seats, SeatInfo{
			ID:          opp.QueueToken,
			DBPlayerID:  opp.DBPlayerID,
			DisplayName: opp.DisplayName,
			PlayerToken: generateToken(16),
		})
	}
	seats = append(seats, SeatInfo{
		ID:          playerID,
		DBPlayerID:  dbPlayerID,
		DisplayName: displayName,
		PlayerToken: generateToken(16),
	})

	gameID := generateGameID()
	gameToken := generateToken(16)

	game, err := NewCarromGame(gameID, gameToken, mode, seats)
	if err != nil {
		return nil, err
	}

	// DO NOT initialize yet - the board is set up once every player
	// has connected via WebSocket. Game stays in StatusWaiting.
	gm.games[gameID] = game
	for _, s := range seats {
		gm.playerToGame[s.ID] = gameID
	}

	log.Printf("[MATCHMAKING] Game created: %s (mode=%s)", gameID, mode)
	for _, s := range seats {
		log.Printf("[MATCHMAKING] Player %s → Game: %s", s.ID, gameID)
	}

	gm.saveCarromGameToRedis(game)

	// Persist a game_sessions row if every seat has a DB identity
	sessionID := gm.createSessionRowLocked(game)

	baseURL := ""
	if gm.config != nil {
		baseURL = gm.config.FrontendURL
	}
	result := &MatchResult{
		GameID:    gameID,
		GameToken: gameToken,
		Mode:      mode,
		ExpiresAt: game.ExpiresAt,
		SessionID: sessionID,
	}
	for _, p := range game.Players {
		result.Players = append(result.Players, MatchedPlayer{
			ID:          p.ID,
			Token:       p.PlayerToken,
			Link:        baseURL + "/g/" + gameToken + "?pt=" + p.PlayerToken,
			DisplayName: p.DisplayName,
			DBPlayerID:  p.DBPlayerID,
			Seat:        p.Seat,
		})
	}
	return result, nil
}

// createSessionRowLocked inserts the game_sessions row for a freshly
// matched game and stamps the session id onto the in-memory game.
// Returns 0 when the DB is absent or any seat lacks a DB identity.
func (gm *GameManager) createSessionRowLocked(game *CarromGameState) int {
	if gm.db == nil {
		return 0
	}
	for _, p := range game.Players {
		if p.DBPlayerID <= 0 {
			return 0
		}
	}

	ids := make([]interface{}, 4)
	for i := 0; i < 4; i++ {
		if i < len(game.Players) {
			ids[i] = game.Players[i].DBPlayerID
		} else {
			ids[i] = nil
		}
	}

	var sessionID int
	err := gm.db.QueryRowx(`INSERT INTO game_sessions (game_token, mode, player1_id, player2_id, player3_id, player4_id, status, created_at, expiry_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), $8) RETURNING id`,
		game.Token, game.Mode, ids[0], ids[1], ids[2], ids[3], string(StatusWaiting), game.ExpiresAt).Scan(&sessionID)
	if err != nil {
		log.Printf("[DB] Failed to create game_session: %v", err)
		return 0
	}

	for _, p := range game.Players {
		if _, err := gm.db.Exec(`UPDATE matchmaking_queue SET status='matched', matched_at=NOW(), session_id=$1 WHERE queue_token=$2`, sessionID, p.ID); err != nil {
			log.Printf("[DB] Failed to update queue entry (%s): %v", p.ID, err)
		}
	}

	game.SessionID = sessionID
	gm.saveCarromGameToRedis(game)
	return sessionID
}

// LeaveQueue removes a player from the matchmaking queue (by queue token)
func (gm *GameManager) LeaveQueue(queueToken string) bool {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for mode, queue := range gm.matchmakingQueue {
		for i, entry := range queue {
			if entry.QueueToken == queueToken {
				gm.matchmakingQueue[mode] = append(queue[:i], queue[i+1:]...)
				return true
			}
		}
	}
	return false
}

// CreateGameFromMatch creates an in-memory game from a DB-matched group
// (called by the matchmaker worker). Seat order follows queue order.
func (gm *GameManager) CreateGameFromMatch(players []QueuedPlayer, gameToken, mode string, sessionID int) *CarromGameState {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	gameID := generateGameID()
	seats := make([]SeatInfo, 0, len(players))
	for _, qp := range players {
		seats = append(seats, SeatInfo{
			ID:          qp.QueueToken,
			DBPlayerID:  qp.PlayerID,
			DisplayName: qp.DisplayName,
			PlayerToken: generateToken(16),
		})
	}

	game, err := NewCarromGame(gameID, gameToken, mode, seats)
	if err != nil {
		log.Printf("[MATCHMAKER] Failed to create game for token %s: %v", gameToken, err)
		return nil
	}
	game.SessionID = sessionID

	gm.games[gameID] = game
	for _, s := range seats {
		gm.playerToGame[s.ID] = gameID
	}

	log.Printf("[MATCHMAKER] Game created in memory: %s (token=%s mode=%s)", gameID, gameToken, mode)
	for i, qp := range players {
		log.Printf("[MATCHMAKER] Seat %d: %s (db_id=%d) → Game: %s", i+1, qp.QueueToken, qp.PlayerID, gameID)
	}

	gm.saveCarromGameToRedis(game)
	return game
}

// GetGame retrieves a game by ID
func (gm *GameManager) GetGame(gameID string) (*CarromGameState, error) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	game, exists := gm.games[gameID]
	if !exists {
		return nil, errors.New("game not found")
	}
	return game, nil
}

// GetGameByToken retrieves a game by its token, falling back to Redis
// for games this process has not seen (restart, reconnect).
func (gm *GameManager) GetGameByToken(token string) (*CarromGameState, error) {
	gm.mu.RLock()
	for _, game := range gm.games {
		if game.Token == token {
			gm.mu.RUnlock()
			return game, nil
		}
	}
	gm.mu.RUnlock()

	game, err := gm.loadCarromGameFromRedis(token)
	if err != nil {
		return nil, errors.New("game not found")
	}

	// Load into memory and return
	gm.mu.Lock()
	gm.games[game.ID] = game
	for _, p := range game.Players {
		gm.playerToGame[p.ID] = game.ID
	}
	gm.mu.Unlock()

	return game, nil
}

// GetGameForPlayer retrieves the active game for a player
func (gm *GameManager) GetGameForPlayer(playerID string) (*CarromGameState, error) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	gameID, exists := gm.playerToGame[playerID]
	if !exists {
		return nil, errors.New("player not in a game")
	}

	game, exists := gm.games[gameID]
	if !exists {
		return nil, errors.New("game not found")
	}

	return game, nil
}

// EndGame removes a completed game from the manager
func (gm *GameManager) EndGame(gameID string) error {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	game, exists := gm.games[gameID]
	if !exists {
		return errors.New("game not found")
	}

	for _, p := range game.Players {
		delete(gm.playerToGame, p.ID)
	}
	delete(gm.games, gameID)

	return nil
}

// GetQueueStatus returns the number of players waiting in each mode
func (gm *GameManager) GetQueueStatus() map[string]int {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	status := make(map[string]int)
	for mode, queue := range gm.matchmakingQueue {
		status[mode] = len(queue)
	}
	return status
}

// GetActiveGameCount returns the number of active games
func (gm *GameManager) GetActiveGameCount() int {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	return len(gm.games)
}

// IsPlayerInQueue checks if a player (by queue token) is in the matchmaking queue
func (gm *GameManager) IsPlayerInQueue(queueToken string) bool {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	for _, queue := range gm.matchmakingQueue {
		for _, entry := range queue {
			if entry.QueueToken == queueToken {
				return true
			}
		}
	}
	return false
}

// GetPlayerQueuePosition returns the player's position in queue (1-indexed) or 0 if not in queue
func (gm *GameManager) GetPlayerQueuePosition(queueToken, mode string) int {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	if queue, exists := gm.matchmakingQueue[mode]; exists {
		for i, entry := range queue {
			if entry.QueueToken == queueToken {
				return i + 1
			}
		}
	}
	return 0
}

// CleanupExpiredEntries removes queue entries older than the specified duration
func (gm *GameManager) CleanupExpiredEntries(maxAge time.Duration) int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)

	for mode, queue := range gm.matchmakingQueue {
		newQueue := []QueueEntry{}
		for _, entry := range queue {
			if entry.JoinedAt.After(cutoff) {
				newQueue = append(newQueue, entry)
			} else {
				removed++
			}
		}
		gm.matchmakingQueue[mode] = newQueue
	}

	return removed
}

// CreateTestGame creates a game for testing (bypasses matchmaking).
// Every seat is initialized and marked connected so shots can be taken
// immediately.
func (gm *GameManager) CreateTestGame(displayNames []string, mode string) (*CarromGameState, error) {
	count := PlayerCountForMode(mode)
	if len(displayNames) != count {
		return nil, fmt.Errorf("mode %s needs %d players, got %d", mode, count, len(displayNames))
	}

	gm.mu.Lock()
	defer gm.mu.Unlock()

	gameID := generateGameID()
	gameToken := generateToken(16)
	seats := make([]SeatInfo, 0, count)
	for i, name := range displayNames {
		seats = append(seats, SeatInfo{
			ID:          fmt.Sprintf("test_%s_%d", generateToken(4), i+1),
			DisplayName: name,
			PlayerToken: generateToken(16),
		})
	}

	game, err := NewCarromGame(gameID, gameToken, mode, seats)
	if err != nil {
		return nil, err
	}

	gm.games[gameID] = game
	for _, s := range seats {
		gm.playerToGame[s.ID] = gameID
	}

	if err := game.Initialize(); err != nil {
		return nil, err
	}
	for _, p := range game.Players {
		p.Connected = true
		p.ShowedUp = true
	}

	log.Printf("[TEST] Test game created: %s (mode=%s)", gameID, mode)
	gm.saveCarromGameToRedis(game)
	return game, nil
}

// redisGameRecord mirrors the Redis JSON layout of a saved game.
type redisGameRecord struct {
	ID           string          `json:"id"`
	Token        string          `json:"token"`
	Mode         string          `json:"mode"`
	PlayerCount  int             `json:"player_count"`
	Players      []*CarromPlayer `json:"players"`
	PlayerTokens []string        `json:"player_tokens"`
	Status       GameStatus      `json:"status"`
	WinnerSide   int             `json:"winner_side"`
	WinType      string          `json:"win_type"`
	ShotNumber   int             `json:"shot_number"`
	ExpiresAt    time.Time       `json:"expires_at"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	SessionID    int             `json:"session_id"`
	Snapshot     *Snapshot       `json:"snapshot,omitempty"`
}

func (gm *GameManager) saveCarromGameToRedis(game *CarromGameState) error {
	if gm.rdb == nil {
		return nil // No Redis client, skip
	}

	rec := redisGameRecord{
		ID:          game.ID,
		Token:       game.Token,
		Mode:        game.Mode,
		PlayerCount: game.PlayerCount,
		Players:     game.Players,
		Status:      game.Status,
		WinnerSide:  game.WinnerSide,
		WinType:     game.WinType,
		ShotNumber:  game.ShotNumber,
		ExpiresAt:   game.ExpiresAt,
		CreatedAt:   game.CreatedAt,
		StartedAt:   game.StartedAt,
		CompletedAt: game.CompletedAt,
		SessionID:   game.SessionID,
	}
	// Player tokens are json:"-" on the player struct so they never leak
	// into API payloads; carry them separately for reconnect auth.
	for _, p := range game.Players {
		rec.PlayerTokens = append(rec.PlayerTokens, p.PlayerToken)
	}
	if game.match != nil {
		if snap, err := game.match.Snapshot(); err == nil {
			rec.Snapshot = snap
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	ctx := context.Background()
	key := "carrom_game:" + game.Token + ":state"

	// Save with 1 hour expiration
	return gm.rdb.SetEx(ctx, key, data, time.Hour).Err()
}

// loadCarromGameFromRedis restores game state from Redis
func (gm *GameManager) loadCarromGameFromRedis(token string) (*CarromGameState, error) {
	if gm.rdb == nil {
		return nil, errors.New("no redis client")
	}

	ctx := context.Background()
	key := "carrom_game:" + token + ":state"

	data, err := gm.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, errors.New("game not found in redis")
	}
	if err != nil {
		return nil, err
	}

	var rec redisGameRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	if len(rec.Players) == 0 {
		return nil, errors.New("redis record has no players")
	}

	game := &CarromGameState{
		ID:           rec.ID,
		Token:        rec.Token,
		Mode:         rec.Mode,
		PlayerCount:  rec.PlayerCount,
		Players:      rec.Players,
		Status:       rec.Status,
		WinnerSide:   rec.WinnerSide,
		WinType:      rec.WinType,
		ShotNumber:   rec.ShotNumber,
		ExpiresAt:    rec.ExpiresAt,
		CreatedAt:    rec.CreatedAt,
		StartedAt:    rec.StartedAt,
		CompletedAt:  rec.CompletedAt,
		SessionID:    rec.SessionID,
		LastActivity: time.Now(),
	}
	for i, p := range game.Players {
		p.Connected = false // Reset connection status
		p.DisconnectedAt = nil
		if i < len(rec.PlayerTokens) {
			p.PlayerToken = rec.PlayerTokens[i]
		}
	}
	if rec.Snapshot != nil {
		match, err := RestoreMatch(rec.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("restore board from redis: %w", err)
		}
		game.match = match
	}

	return game, nil
}

// StartExpiryChecker runs a background job to check for expired games
func (gm *GameManager) StartExpiryChecker() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		gm.checkExpiredGames()
	}
}

// checkExpiredGames cancels WAITING games whose players never showed up
func (gm *GameManager) checkExpiredGames() {
	gm.mu.RLock()
	now := time.Now()
	var expiredGames []*CarromGameState
	for _, game := range gm.games {
		if game.Status == StatusWaiting && now.After(game.ExpiresAt) {
			expiredGames = append(expiredGames, game)
		}
	}
	gm.mu.RUnlock()

	for _, g := range expiredGames {
		// Re-check under lock to avoid races
		g.mu.RLock()
		isWaiting := g.Status == StatusWaiting
		g.mu.RUnlock()
		if !isWaiting {
			continue
		}

		log.Printf("[EXPIRY] Game %s expired; processing cancellation", g.ID)

		now2 := time.Now()
		g.mu.Lock()
		g.Status = StatusCancelled
		g.CompletedAt = &now2
		g.mu.Unlock()

		gm.mu.Lock()
		for _, p := range g.Players {
			delete(gm.playerToGame, p.ID)
		}
		gm.mu.Unlock()

		if gm.db != nil && g.SessionID > 0 {
			if _, err := gm.db.Exec(`UPDATE game_sessions SET status=$1, completed_at=NOW() WHERE id=$2`, string(StatusCancelled), g.SessionID); err != nil {
				log.Printf("[DB] Failed to update game_sessions for session %d to cancelled: %v", g.SessionID, err)
			}
		}

		// Publish session_cancelled so connected clients hear about it
		if gm.rdb != nil {
			payload := map[string]interface{}{
				"type":       "session_cancelled",
				"game_token": g.Token,
				"game_id":    g.ID,
				"message":    "Game cancelled: not all players joined in time.",
			}
			if b, err := json.Marshal(payload); err != nil {
				log.Printf("[EXPIRY] Failed to marshal session_cancelled event for session %d: %v", g.SessionID, err)
			} else if n, err := gm.rdb.Publish(context.Background(), "game_events", b).Result(); err != nil {
				log.Printf("[EXPIRY] publish session_cancelled failed: %v", err)
			} else {
				log.Printf("[EXPIRY] published session_cancelled: session=%d subscribers=%d", g.SessionID, n)
			}
		}
	}
}

// StartDisconnectChecker runs a background job to check for forfeit due to disconnect
func (gm *GameManager) StartDisconnectChecker() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		gm.checkDisconnectForfeits()
	}
}

// checkDisconnectForfeits forfeits players who disconnected >2 minutes ago
func (gm *GameManager) checkDisconnectForfeits() {
	gm.mu.RLock()
	gamesToCheck := make([]*CarromGameState, 0)
	for _, game := range gm.games {
		if game.Status == StatusInProgress {
			gamesToCheck = append(gamesToCheck, game)
		}
	}
	gm.mu.RUnlock()

	now := time.Now()
	grace := time.Duration(gm.config.DisconnectGracePeriodSecs) * time.Second

	for _, game := range gamesToCheck {
		game.mu.RLock()
		var forfeitPlayerID string
		for _, p := range game.Players {
			if !p.Connected && p.DisconnectedAt != nil && now.Sub(*p.DisconnectedAt) > grace {
				forfeitPlayerID = p.ID
				break
			}
		}
		game.mu.RUnlock()

		if forfeitPlayerID != "" {
			game.ForfeitByDisconnect(forfeitPlayerID)
			log.Printf("[DISCONNECT FORFEIT] Player %s forfeited game %s", forfeitPlayerID, game.ID)
		}
	}
}

// StartQueueExpiryChecker periodically expires stale DB queue entries
func (gm *GameManager) StartQueueExpiryChecker() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if n, err := gm.ExpireQueuedEntries(); err != nil {
			log.Printf("[QUEUE EXPIRY] Error expiring queue entries: %v", err)
		} else if n > 0 {
			log.Printf("[QUEUE EXPIRY] Expired %d queue entries", n)
		}
	}
}

// ExpireQueuedEntries marks timed-out DB queue rows as expired and tells
// the waiting clients via the game_events channel.
func (gm *GameManager) ExpireQueuedEntries() (int, error) {
	if gm.db == nil {
		return 0, nil
	}

	rows, err := gm.db.Queryx(`UPDATE matchmaking_queue SET status='expired' WHERE status='queued' AND expires_at <= NOW() RETURNING queue_token`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	expired := 0
	for rows.Next() {
		var queueToken string
		if err := rows.Scan(&queueToken); err != nil {
			log.Printf("[QUEUE EXPIRY] Row scan error: %v", err)
			continue
		}
		expired++
		gm.LeaveQueue(queueToken)

		if gm.rdb != nil {
			payload := map[string]interface{}{
				"type":        "queue_expired",
				"queue_token": queueToken,
				"message":     "Matchmaking timed out. Please try again.",
			}
			if b, err := json.Marshal(payload); err == nil {
				gm.rdb.Publish(context.Background(), "game_events", b)
			}
		}
	}
	return expired, rows.Err()
}
