package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/playcarrom/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

var rdbClient *redis.Client
var wsConfig *config.Config

func SetRedisClient(r *redis.Client, cfg *config.Config) {
	rdbClient = r
	wsConfig = cfg
}

// StartIdleEventSubscriber subscribes to the idle_events channel and broadcasts incoming events to games
func StartIdleEventSubscriber(ctx context.Context) {
	if rdbClient == nil {
		log.Println("[WS] Redis client not set; idle event subscriber not started")
		return
	}

	pubsub := rdbClient.Subscribe(ctx, "idle_events", "game_events")
	ch := pubsub.Channel()
	go func() {
		log.Println("[WS] idle_events/game_events subscriber started")
		for msg := range ch {
			log.Printf("[WS] event raw payload: %s", msg.Payload)
			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				log.Printf("[WS] invalid event payload: %v", err)
				continue
			}

			// Expected payload types: player_idle_warning, player_forfeit,
			// session_cancelled, match_found, queue_expired
			typeStr, _ := payload["type"].(string)
			gameToken, _ := payload["game_token"].(string)
			gameID, _ := payload["game_id"].(string)
			if gameID == "" {
				gameID = gameToken
			}

			log.Printf("[WS] event received: type=%s game_id=%s", typeStr, gameID)

			switch typeStr {
			case "player_idle_warning":
				// Broadcast a warning message to the game room
				msg := map[string]interface{}{
					"type":              "player_idle_warning",
					"message":           payload["message"],
					"player":            payload["player"],
					"forfeit_at":        payload["forfeit_at"],
					"remaining_seconds": payload["remaining_seconds"],
				}
				// log room size before broadcasting
				GameHub.mu.RLock()
				if room, exists := GameHub.gameRooms[gameID]; !exists {
					log.Printf("[WS] no room for game %s; warning will not be broadcast", gameID)
				} else {
					log.Printf("[WS] broadcasting idle warning to game %s (room_size=%d)", gameID, len(room))
				}
				GameHub.mu.RUnlock()
				GameHub.BroadcastToGame(gameID, msg)

			case "player_forfeit":
				// Final personalized states come keyed by player ID
				if states, ok := payload["player_states"].(map[string]interface{}); ok {
					for pid, raw := range states {
						state, ok := raw.(map[string]interface{})
						if !ok {
							log.Printf("[WS] invalid state for player %s in forfeit payload for game %s", pid, gameID)
							continue
						}
						state["type"] = "game_state"
						GameHub.mu.RLock()
						if _, exists := GameHub.clients[pid]; !exists {
							log.Printf("[WS] no client connected for player %s - cannot send personalized state", pid)
						}
						GameHub.mu.RUnlock()
						GameHub.SendToPlayer(pid, state)
					}
				} else {
					log.Printf("[WS] player_states missing or invalid in forfeit payload for game %s", gameID)
				}

				// Broadcast a short game_over message
				msg := map[string]interface{}{
					"type":        "game_over",
					"message":     payload["message"],
					"winner_side": payload["winner_side"],
					"winners":     payload["winners"],
				}
				GameHub.mu.RLock()
				if room, exists := GameHub.gameRooms[gameID]; !exists {
					log.Printf("[WS] no room for game %s; game_over will not be broadcast", gameID)
				} else {
					log.Printf("[WS] broadcasting game_over for game %s (room_size=%d)", gameID, len(room))
				}
				GameHub.mu.RUnlock()
				GameHub.BroadcastToGame(gameID, msg)

			case "session_cancelled":
				msg := map[string]interface{}{
					"type":    "session_cancelled",
					"message": payload["message"],
				}
				GameHub.mu.RLock()
				if room, exists := GameHub.gameRooms[gameID]; !exists {
					log.Printf("[WS] no room for game %s; session_cancelled will not be broadcast", gameID)
				} else {
					log.Printf("[WS] broadcasting session_cancelled for game %s (room_size=%d)", gameID, len(room))
				}
				GameHub.mu.RUnlock()
				GameHub.BroadcastToGame(gameID, msg)

			case "match_found":
				// Queue waiters poll the REST status endpoint; nothing to
				// deliver over the game socket before they join.
				queueToken, _ := payload["queue_token"].(string)
				log.Printf("[WS] match_found for queue token %s (game %s)", queueToken, gameID)

			case "queue_expired":
				queueToken, _ := payload["queue_token"].(string)
				log.Printf("[WS] queue_expired for queue token %s", queueToken)

			case "player_idle_canceled":
				log.Printf("[WS] idle_event player_idle_canceled received for game %s", gameID)
				// nothing else to do - WS handler will have already handled broadcasted cancel

			default:
				log.Printf("[WS] unknown event type: %s", typeStr)
			}
		}
	}()
}
