package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playcarrom/backend/internal/game"
	"github.com/redis/go-redis/v9"
)

// Carrom-specific message data types
type TakeShotData struct {
	Angle    float64 `json:"angle"`
	Power    float64 `json:"power"`
	StrikerX float64 `json:"striker_x"`
}

type PlaceStrikerData struct {
	X float64 `json:"x"`
}

type AimData struct {
	X     float64 `json:"x"`
	Angle float64 `json:"angle"`
}

// GameHub is the single hub for all games.
var GameHub *Hub

func init() {
	GameHub = NewHub()
	go runGameHub(GameHub)
}

// HandleWebSocket handles WebSocket connections for carrom games.
func HandleWebSocket(c *gin.Context) {
	gameToken := c.Query("token")
	playerToken := c.Query("pt")

	if gameToken == "" || playerToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token and pt required"})
		return
	}

	g, err := game.Manager.GetGameByToken(gameToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}

	var playerID string
	for _, p := range g.Players {
		if p.PlayerToken == playerToken {
			playerID = p.ID
			break
		}
	}
	if playerID == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid player token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:      conn,
		playerID:  playerID,
		others:    g.OtherPlayerIDs(playerID),
		gameID:    g.ID,
		gameToken: gameToken,
		send:      make(chan []byte, 256),
	}

	GameHub.register <- client

	go client.writePump()
	go client.readPump()
}

// runGameHub runs the game hub with carrom-specific game logic.
func runGameHub(h *Hub) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()

			isReconnect := false
			if oldClient, exists := h.clients[client.playerID]; exists {
				log.Printf("[WS] Player %s reconnecting - closing old connection", client.playerID)
				if err := oldClient.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"), time.Now().Add(5*time.Second)); err != nil {
					log.Printf("Error writing close control to old client %s: %v", oldClient.playerID, err)
				}
				oldClient.conn.Close()
				select {
				case <-oldClient.send:
				default:
					close(oldClient.send)
				}
				delete(h.clients, client.playerID)
				if room, exists := h.gameRooms[oldClient.gameID]; exists {
					delete(room, client.playerID)
				}
				isReconnect = true
			}

			h.clients[client.playerID] = client
			if _, exists := h.gameRooms[client.gameID]; !exists {
				h.gameRooms[client.gameID] = make(map[string]*Client)
			}
			h.gameRooms[client.gameID][client.playerID] = client
			h.mu.Unlock()

			log.Printf("[WS] Player %s connected to game %s", client.playerID, client.gameID)

			g, err := game.Manager.GetGameByToken(client.gameToken)
			if err != nil {
				log.Printf("[WS] Game not found for token %s: %v", client.gameToken, err)
				continue
			}

			client.others = g.OtherPlayerIDs(client.playerID)
			g.SetPlayerConnected(client.playerID, true)
			g.MarkPlayerShowedUp(client.playerID)

			if g.Status == game.StatusWaiting && g.AllPlayersConnected() {
				log.Printf("All %d players connected - scheduling initialization of game %s", g.PlayerCount, g.ID)

				go func(gRef *game.CarromGameState) {
					time.Sleep(150 * time.Millisecond)
					if gRef.Status != game.StatusWaiting || !gRef.AllPlayersConnected() {
						return
					}
					if err := gRef.Initialize(); err != nil {
						log.Printf("[WS] Init failed: %v", err)
						return
					}

					if gRef.SessionID > 0 && game.Manager != nil && gRef.StartedAt != nil {
						if err := game.Manager.MarkSessionStarted(gRef.SessionID, *gRef.StartedAt); err != nil {
							log.Printf("[DB] MarkSessionStarted failed for session %d: %v", gRef.SessionID, err)
						}
					}

					h.BroadcastToGame(client.gameID, map[string]interface{}{
						"type":    "game_starting",
						"message": "All players connected! Break shot...",
					})

					for _, p := range gRef.Players {
						state := gRef.GetGameStateForPlayer(p.ID)
						state["type"] = "game_state"
						h.SendToPlayer(p.ID, state)
					}
				}(g)
			} else if g.Status == game.StatusWaiting {
				h.SendToPlayer(client.playerID, map[string]interface{}{
					"type":    "waiting_for_opponent",
					"message": fmt.Sprintf("Waiting for players (%d seats)...", g.PlayerCount),
				})
			} else {
				for _, p := range g.Players {
					state := g.GetGameStateForPlayer(p.ID)
					state["type"] = "game_state"
					h.SendToPlayer(p.ID, state)
				}
			}

			if isReconnect && g.Status == game.StatusInProgress {
				h.BroadcastToGame(client.gameID, map[string]interface{}{
					"type":    "player_connected",
					"player":  client.playerID,
					"message": "Player reconnected",
				})
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.playerID]; ok && cur == client {
				delete(h.clients, client.playerID)
				if room, exists := h.gameRooms[client.gameID]; exists {
					delete(room, client.playerID)
					if len(room) == 0 {
						delete(h.gameRooms, client.gameID)
					}
				}

				log.Printf("[WS] Player %s disconnected from game %s", client.playerID, client.gameID)

				if g, err := game.Manager.GetGameByToken(client.gameToken); err == nil {
					g.SetPlayerDisconnected(client.playerID)
					if g.Status == game.StatusInProgress {
						go func(token, gameID, playerID string) {
							time.Sleep(500 * time.Millisecond)
							if g2, err := game.Manager.GetGameByToken(token); err == nil {
								if p := g2.GetPlayerByID(playerID); p != nil && !p.Connected && p.DisconnectedAt != nil && time.Since(*p.DisconnectedAt) >= 500*time.Millisecond {
									graceSeconds := game.Manager.GetConfig().DisconnectGracePeriodSecs
									h.BroadcastToGame(gameID, map[string]interface{}{
										"type":            "player_disconnected",
										"player":          playerID,
										"grace_seconds":   graceSeconds,
										"disconnected_at": p.DisconnectedAt.Unix(),
										"message":         fmt.Sprintf("Player disconnected. Waiting %d seconds...", graceSeconds),
									})
								}
							}
						}(client.gameToken, client.gameID, client.playerID)
					}
				}

				select {
				case <-client.send:
				default:
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// readPump reads messages for carrom games.
func (c *Client) readPump() {
	defer func() {
		GameHub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (unexpected) for player %s: %v", c.playerID, err)
			} else {
				log.Printf("WebSocket read error for player %s: %v", c.playerID, err)
			}
			break
		}

		// Update idle tracking in Redis
		if rdbClient != nil && wsConfig != nil {
			ctx := context.Background()
			member := fmt.Sprintf("g:%s:p:%s", c.gameToken, c.playerID)
			now := time.Now().Unix()

			// Pause the shot clock while any other seat is offline; the
			// disconnect checker owns that case.
			shouldTrackIdle := true
			GameHub.mu.RLock()
			for _, id := range c.others {
				otherClient, otherConnected := GameHub.clients[id]
				if !otherConnected || otherClient == nil || otherClient.gameID != c.gameID {
					shouldTrackIdle = false
					break
				}
			}
			GameHub.mu.RUnlock()

			if shouldTrackIdle {
				rdbClient.Set(ctx, "last_active:"+member, fmt.Sprintf("%d", now), 0)
				rdbClient.ZAdd(ctx, "idle_warning", redis.Z{Score: float64(now + int64(wsConfig.IdleWarningSeconds)), Member: member})
				rdbClient.ZAdd(ctx, "idle_forfeit", redis.Z{Score: float64(now + int64(wsConfig.IdleForfeitSeconds)), Member: member})
			}
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		c.handleMessage(msg)
	}
}

// handleMessage processes incoming carrom game messages.
func (c *Client) handleMessage(msg WSMessage) {
	g, err := game.Manager.GetGameByToken(c.gameToken)
	if err != nil {
		c.sendError("Game not found")
		return
	}

	switch msg.Type {
	case "take_shot":
		var data TakeShotData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("Invalid shot data")
			return
		}
		c.handleTakeShot(g, data)

	case "place_striker":
		var data PlaceStrikerData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("Invalid placement data")
			return
		}
		c.handlePlaceStriker(g, data)

	case "aim":
		var data AimData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("Invalid aim data")
			return
		}
		c.handleAim(g, data)

	case "get_state":
		state := g.GetGameStateForPlayer(c.playerID)
		state["type"] = "game_state"
		d, _ := json.Marshal(state)
		c.send <- d

	case "concede":
		c.handleConcede(g)

	default:
		c.sendError("Unknown message type")
	}
}

// handleTakeShot processes a take_shot message.
func (c *Client) handleTakeShot(g *game.CarromGameState, data TakeShotData) {
	params := game.ShotParams{
		Angle:    data.Angle,
		Power:    data.Power,
		StrikerX: data.StrikerX,
	}

	// Relay shot params to the other seats immediately (before physics
	// simulation) so they can start client-side animation while the
	// server computes the result
	GameHub.SendToEach(c.others, map[string]interface{}{
		"type":        "shot_relay",
		"player":      c.playerID,
		"shot_params": params,
	})

	result, err := g.TakeShot(c.playerID, params)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	// Broadcast shot result to every seat
	GameHub.BroadcastToGame(c.gameID, map[string]interface{}{
		"type":           "shot_result",
		"player":         c.playerID,
		"shot_params":    params,
		"shot_number":    result.ShotNumber,
		"ticks":          result.Ticks,
		"events":         result.Events,
		"captured_discs": result.CapturedDiscs,
		"positions":      result.Positions,
		"message":        result.Message,
		"foul":           result.Foul,
		"turn_change":    result.TurnChange,
		"next_turn":      result.NextTurn,
		"next_seat":      result.NextSeat,
		"scores":         result.Scores,
		"queen_pending":  result.QueenPending,
		"queen_returned": result.QueenReturned,
		"game_over":      result.GameOver,
		"winner_side":    result.WinnerSide,
		"winners":        result.Winners,
		"win_type":       result.WinType,
	})

	// Reset idle timers for every seat
	ids := make([]string, 0, len(g.Players))
	for _, p := range g.Players {
		ids = append(ids, p.ID)
	}
	resetIdleTimersForGame(c.gameToken, ids)
	GameHub.BroadcastToGame(c.gameID, map[string]interface{}{"type": "player_idle_canceled", "player": c.playerID})

	// Send updated game state to each player
	c.broadcastGameState(g)

	// Save to Redis
	g.SaveToRedis()
}

// handlePlaceStriker processes striker placement along the baseline.
func (c *Client) handlePlaceStriker(g *game.CarromGameState, data PlaceStrikerData) {
	if err := g.PlaceStriker(c.playerID, data.X); err != nil {
		c.sendError(err.Error())
		return
	}

	GameHub.BroadcastToGame(c.gameID, map[string]interface{}{
		"type":   "striker_placed",
		"player": c.playerID,
		"x":      data.X,
	})

	c.broadcastGameState(g)
	g.SaveToRedis()
}

// handleAim computes the server-side aim preview and relays it so the
// other seats can watch the shooter line up.
func (c *Client) handleAim(g *game.CarromGameState, data AimData) {
	line, err := g.Aim(c.playerID, data.X, data.Angle)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	d, _ := json.Marshal(map[string]interface{}{
		"type": "aim_line",
		"line": line,
	})
	c.send <- d

	GameHub.SendToEach(c.others, map[string]interface{}{
		"type":   "opponent_aim",
		"player": c.playerID,
		"angle":  data.Angle,
		"x":      data.X,
		"line":   line,
	})
}

// handleConcede processes a concede in a carrom game.
func (c *Client) handleConcede(g *game.CarromGameState) {
	if g.Status != game.StatusInProgress {
		c.sendError("Game is not in progress")
		return
	}

	g.ForfeitByConcede(c.playerID)

	GameHub.BroadcastToGame(c.gameID, map[string]interface{}{
		"type":        "player_conceded",
		"player":      c.playerID,
		"winner_side": g.WinnerSide,
		"winners":     g.WinnerIDs(),
		"message":     "Player conceded",
	})

	c.broadcastGameState(g)
}

// broadcastGameState sends personalized state to each player.
func (c *Client) broadcastGameState(g *game.CarromGameState) {
	for _, p := range g.Players {
		state := g.GetGameStateForPlayer(p.ID)
		state["type"] = "game_update"
		GameHub.SendToPlayer(p.ID, state)
	}
}
