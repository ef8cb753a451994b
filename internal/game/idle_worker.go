package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/playcarrom/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// StartIdleWorker starts a background worker that enforces the shot
// clock using Redis sorted sets. The websocket layer arms idle_warning
// and idle_forfeit deadlines whenever the turn changes; this worker
// fires them.
func StartIdleWorker(ctx context.Context, db *sqlx.DB, rdb *redis.Client, cfg *config.Config) {
	if rdb == nil || cfg == nil {
		log.Println("[IDLE] Redis or config missing; idle worker not started")
		return
	}

	log.Println("[IDLE] Idle worker started")
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.IdleWorkerPollInterval) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[IDLE] Idle worker stopping")
				return
			case <-ticker.C:
				now := time.Now().Unix()
				processIdleWarnings(ctx, rdb, cfg, now)
				processIdleForfeits(ctx, rdb, cfg, now)
			}
		}
	}()
}

func processIdleWarnings(ctx context.Context, rdb *redis.Client, cfg *config.Config, now int64) {
	members, err := rdb.ZRangeByScore(ctx, "idle_warning", &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now)}).Result()
	if err != nil {
		log.Printf("[IDLE] Failed to fetch idle warnings: %v", err)
		return
	}
	for _, m := range members {
		// Attempt to remove (race-safe)
		removed, _ := rdb.ZRem(ctx, "idle_warning", m).Result()
		if removed == 0 {
			continue
		}
		last, _ := rdb.Get(ctx, "last_active:"+m).Result()
		lastTs, _ := strconv.ParseInt(last, 10, 64)
		if time.Now().Unix()-lastTs < int64(cfg.IdleWarningSeconds) {
			continue // player acted after this deadline was armed
		}

		gameToken, playerID := parseIdleMember(m)
		if gameToken == "" || playerID == "" {
			continue
		}
		// Only warn if the game is in progress and it's still this
		// player's shot
		g, err := Manager.GetGameByToken(gameToken)
		if err != nil {
			continue
		}
		if g.Status != StatusInProgress || g.CurrentTurnID() != playerID {
			log.Printf("[IDLE] skipping warning for player %s in game %s (status=%s currentTurn=%s)", playerID, gameToken, g.Status, g.CurrentTurnID())
			continue
		}

		forfeitAt := time.Unix(lastTs, 0).Add(time.Duration(cfg.IdleForfeitSeconds) * time.Second)
		remaining := int(time.Until(forfeitAt).Seconds())
		payload := map[string]interface{}{
			"type":              "player_idle_warning",
			"game_token":        gameToken,
			"game_id":           g.ID,
			"player":            playerID,
			"forfeit_at":        forfeitAt.Format(time.RFC3339),
			"remaining_seconds": remaining,
			"message":           "Player idle; will forfeit soon.",
		}
		b, _ := json.Marshal(payload)
		if n, err := rdb.Publish(ctx, "idle_events", b).Result(); err != nil {
			log.Printf("[IDLE] publish warning failed: game=%s player=%s err=%v", gameToken, playerID, err)
		} else {
			log.Printf("[IDLE] published warning: game=%s player=%s subscribers=%d remaining=%d", gameToken, playerID, n, remaining)
		}
	}
}

func processIdleForfeits(ctx context.Context, rdb *redis.Client, cfg *config.Config, now int64) {
	members, err := rdb.ZRangeByScore(ctx, "idle_forfeit", &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now)}).Result()
	if err != nil {
		log.Printf("[IDLE] Failed to fetch idle forfeits: %v", err)
		return
	}
	for _, m := range members {
		removed, _ := rdb.ZRem(ctx, "idle_forfeit", m).Result()
		if removed == 0 {
			continue
		}
		last, _ := rdb.Get(ctx, "last_active:"+m).Result()
		lastTs, _ := strconv.ParseInt(last, 10, 64)
		if time.Now().Unix()-lastTs < int64(cfg.IdleForfeitSeconds) {
			continue
		}

		gameToken, playerID := parseIdleMember(m)
		if gameToken == "" || playerID == "" {
			continue
		}
		g, err := Manager.GetGameByToken(gameToken)
		if err != nil {
			continue
		}
		// Only forfeit if the game is in progress and it's still this
		// player's shot
		if g.Status != StatusInProgress || g.CurrentTurnID() != playerID {
			log.Printf("[IDLE] skipping forfeit for player %s in game %s (status=%s currentTurn=%s)", playerID, gameToken, g.Status, g.CurrentTurnID())
			continue
		}

		log.Printf("[IDLE] Forfeiting player %s in game %s due to inactivity", playerID, gameToken)
		g.ForfeitByDisconnect(playerID)

		states := make(map[string]interface{}, len(g.Players))
		for _, p := range g.Players {
			states[p.ID] = g.GetGameStateForPlayer(p.ID)
		}
		payload := map[string]interface{}{
			"type":          "player_forfeit",
			"game_token":    gameToken,
			"game_id":       g.ID,
			"player":        playerID,
			"message":       "Player forfeited due to inactivity",
			"player_states": states,
			"winner_side":   g.WinnerSide,
			"winners":       g.WinnerIDs(),
		}
		b, _ := json.Marshal(payload)
		if n, err := rdb.Publish(ctx, "idle_events", b).Result(); err != nil {
			log.Printf("[IDLE] publish forfeit failed: game=%s player=%s err=%v", gameToken, playerID, err)
		} else {
			log.Printf("[IDLE] published forfeit: game=%s player=%s subscribers=%d winner_side=%d", gameToken, playerID, n, g.WinnerSide)
		}
	}
}

// parseIdleMember expects member format g:<gameToken>:p:<playerID>
func parseIdleMember(m string) (string, string) {
	parts := strings.Split(m, ":")
	if len(parts) >= 4 && parts[0] == "g" && parts[2] == "p" {
		return parts[1], parts[3]
	}
	return "", ""
}
