package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jmoiron/sqlx"
	"github.com/playcarrom/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// GuestRegister creates a guest player and issues a JWT. Guests only
// need a display name; the row carries their lifetime stats.
func GuestRegister(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DisplayName string `json:"display_name"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "display_name required"})
			return
		}

		name, ok := validDisplayName(req.DisplayName)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid display_name"})
			return
		}

		// Rate limit guest creation per client IP
		if rdb != nil {
			ctx := context.Background()
			key := fmt.Sprintf("guest_rate:%s", c.ClientIP())
			if ok, err := rdb.SetNX(ctx, key, "1", 10*time.Second).Result(); err == nil && !ok {
				c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many registrations, slow down"})
				return
			}
		}

		var playerID int
		err := db.QueryRowx(`INSERT INTO players (display_name, created_at, is_active, last_active) VALUES ($1, NOW(), true, NOW()) RETURNING id`, name).Scan(&playerID)
		if err != nil {
			log.Printf("[DB] Failed to create guest player %q: %v", name, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create player"})
			return
		}

		signed, err := issuePlayerToken(cfg, playerID, name)
		if err != nil {
			log.Printf("Failed to sign token for player %d: %v", playerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		log.Printf("[AUTH] Guest player created: id=%d display_name=%s", playerID, name)
		c.JSON(http.StatusOK, gin.H{
			"token":  signed,
			"player": gin.H{"id": playerID, "display_name": name},
		})
	}
}

// issuePlayerToken signs a 24h HS256 JWT carrying the player id
func issuePlayerToken(cfg *config.Config, playerID int, displayName string) (string, error) {
	exp := time.Now().Add(24 * time.Hour)
	claims := jwt.MapClaims{
		"player_id":    playerID,
		"display_name": displayName,
		"exp":          exp.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// AuthMiddleware validates bearer JWT and sets player_id in context
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")

		parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !parsed.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		playerIDf, ok := claims["player_id"].(float64)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("player_id", int(playerIDf))
		c.Next()
	}
}

// GetMe returns the authenticated player's profile and aggregate stats
func GetMe(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		pidI, ok := c.Get("player_id")
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		pid := pidI.(int)

		var player struct {
			ID               int    `db:"id"`
			DisplayName      string `db:"display_name"`
			TotalGamesPlayed int    `db:"total_games_played"`
			TotalGamesWon    int    `db:"total_games_won"`
		}
		if err := db.Get(&player, `SELECT id, display_name, total_games_played, total_games_won FROM players WHERE id=$1`, pid); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "player not found"})
			return
		}

		winRate := 0.0
		if player.TotalGamesPlayed > 0 {
			winRate = float64(player.TotalGamesWon) / float64(player.TotalGamesPlayed) * 100
		}

		c.JSON(http.StatusOK, gin.H{
			"id":                 player.ID,
			"display_name":       player.DisplayName,
			"total_games_played": player.TotalGamesPlayed,
			"total_games_won":    player.TotalGamesWon,
			"win_rate":           winRate,
		})
	}
}
