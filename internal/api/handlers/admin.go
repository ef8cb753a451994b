package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jmoiron/sqlx"
	"github.com/playcarrom/backend/internal/admin"
	"github.com/playcarrom/backend/internal/config"
)

// AdminLogin verifies phone + access token against the bcrypt hash on
// the account and returns a short-lived admin JWT.
func AdminLogin(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Phone string `json:"phone"`
			Token string `json:"token"`
		}
		if err := c.BindJSON(&req); err != nil || req.Phone == "" || req.Token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "phone and token required"})
			return
		}

		acct, err := admin.ValidateAdminPhoneAndToken(db, req.Phone, req.Token)
		if err != nil {
			admin.LogAdminAction(db, req.Phone, c.ClientIP(), "/admin/login", "login", map[string]interface{}{"reason": err.Error()}, false)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		if len(acct.AllowedIPs) > 0 {
			ip := c.ClientIP()
			allowed := false
			for _, a := range acct.AllowedIPs {
				if a == ip {
					allowed = true
					break
				}
			}
			if !allowed {
				admin.LogAdminAction(db, req.Phone, ip, "/admin/login", "login", map[string]interface{}{"reason": "ip not allowed"}, false)
				c.JSON(http.StatusForbidden, gin.H{"error": "access denied from this address"})
				return
			}
		}

		claims := jwt.MapClaims{
			"admin_phone": acct.Phone,
			"roles":       []string(acct.Roles),
			"exp":         time.Now().Add(4 * time.Hour).Unix(),
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(cfg.JWTSecret))
		if err != nil {
			log.Printf("[ADMIN] Failed to sign token for %s: %v", acct.Phone, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
			return
		}

		admin.LogAdminAction(db, acct.Phone, c.ClientIP(), "/admin/login", "login", nil, true)
		log.Printf("[ADMIN] Login: %s from %s", acct.Phone, c.ClientIP())
		c.JSON(http.StatusOK, gin.H{
			"token": signed,
			"admin": gin.H{
				"phone":        acct.Phone,
				"display_name": acct.DisplayName,
				"roles":        acct.Roles,
			},
		})
	}
}

// AdminAuthMiddleware validates the admin JWT and stashes identity
// and roles on the context.
func AdminAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimPrefix(auth, "Bearer ")

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		phone, _ := claims["admin_phone"].(string)
		if phone == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not an admin token"})
			return
		}

		roles := []string{}
		if raw, ok := claims["roles"].([]interface{}); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					roles = append(roles, s)
				}
			}
		}

		c.Set("admin_phone", phone)
		c.Set("admin_roles", roles)
		c.Next()
	}
}

// AdminAuditTrail records every mutating admin request in the audit log
func AdminAuditTrail(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.Method == http.MethodGet {
			return
		}
		phone := c.GetString("admin_phone")
		if phone == "" {
			return
		}
		admin.LogAdminAction(db, phone, c.ClientIP(), c.FullPath(), strings.ToLower(c.Request.Method),
			map[string]interface{}{"status": c.Writer.Status()}, c.Writer.Status() < 400)
	}
}

func adminHasRole(c *gin.Context, role string) bool {
	roles, ok := c.Get("admin_roles")
	if !ok {
		return false
	}
	list, ok := roles.([]string)
	if !ok {
		return false
	}
	for _, r := range list {
		if r == role || r == "super_admin" {
			return true
		}
	}
	return false
}

func adminPageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// GetAdminMatches lists game sessions with player names and outcomes
func GetAdminMatches(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Sessions store uppercase status values; the filter accepts
		// the friendlier lowercase names.
		status := c.DefaultQuery("status", "all")
		switch status {
		case "all":
		case "waiting":
			status = "WAITING"
		case "active":
			status = "IN_PROGRESS"
		case "completed":
			status = "COMPLETED"
		case "cancelled":
			status = "CANCELLED"
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		limit, offset := adminPageParams(c)

		var rows []struct {
			ID          int    `db:"id" json:"id"`
			GameToken   string `db:"game_token" json:"game_token"`
			Mode        string `db:"mode" json:"mode"`
			Status      string `db:"status" json:"status"`
			WinnerSide  int    `db:"winner_side" json:"winner_side"`
			WinType     string `db:"win_type" json:"win_type"`
			CreatedAt   string `db:"created_at" json:"created_at"`
			StartedAt   string `db:"started_at" json:"started_at"`
			CompletedAt string `db:"completed_at" json:"completed_at"`
			Player1     string `db:"player1" json:"player1"`
			Player2     string `db:"player2" json:"player2"`
			Player3     string `db:"player3" json:"player3"`
			Player4     string `db:"player4" json:"player4"`
			TotalCount  int    `db:"total_count" json:"-"`
		}

		query := `
			SELECT gs.id, gs.game_token, gs.mode, gs.status,
			       COALESCE(gs.winner_side, 0) AS winner_side,
			       COALESCE(gs.win_type, '') AS win_type,
			       to_char(gs.created_at, 'YYYY-MM-DD HH24:MI:SS') AS created_at,
			       COALESCE(to_char(gs.started_at, 'YYYY-MM-DD HH24:MI:SS'), '') AS started_at,
			       COALESCE(to_char(gs.completed_at, 'YYYY-MM-DD HH24:MI:SS'), '') AS completed_at,
			       COALESCE(p1.display_name, '') AS player1,
			       COALESCE(p2.display_name, '') AS player2,
			       COALESCE(p3.display_name, '') AS player3,
			       COALESCE(p4.display_name, '') AS player4,
			       COUNT(*) OVER() AS total_count
			FROM game_sessions gs
			LEFT JOIN players p1 ON gs.player1_id = p1.id
			LEFT JOIN players p2 ON gs.player2_id = p2.id
			LEFT JOIN players p3 ON gs.player3_id = p3.id
			LEFT JOIN players p4 ON gs.player4_id = p4.id
			WHERE ($1 = 'all' OR gs.status = $1)
			ORDER BY gs.created_at DESC
			LIMIT $2 OFFSET $3`

		if err := db.Select(&rows, query, status, limit, offset); err != nil {
			log.Printf("[ADMIN] Failed to list matches: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch matches"})
			return
		}

		total := 0
		if len(rows) > 0 {
			total = rows[0].TotalCount
		}
		c.JSON(http.StatusOK, gin.H{
			"matches": rows,
			"total":   total,
			"limit":   limit,
			"offset":  offset,
		})
	}
}

// GetAdminMatchDetail returns one session with its recorded moves
func GetAdminMatchDetail(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
			return
		}

		var session struct {
			ID          int    `db:"id" json:"id"`
			GameToken   string `db:"game_token" json:"game_token"`
			Mode        string `db:"mode" json:"mode"`
			Status      string `db:"status" json:"status"`
			WinnerSide  int    `db:"winner_side" json:"winner_side"`
			WinType     string `db:"win_type" json:"win_type"`
			CreatedAt   string `db:"created_at" json:"created_at"`
			StartedAt   string `db:"started_at" json:"started_at"`
			CompletedAt string `db:"completed_at" json:"completed_at"`
			ExpiryTime  string `db:"expiry_time" json:"expiry_time"`
			Player1     string `db:"player1" json:"player1"`
			Player2     string `db:"player2" json:"player2"`
			Player3     string `db:"player3" json:"player3"`
			Player4     string `db:"player4" json:"player4"`
		}

		err = db.Get(&session, `
			SELECT gs.id, gs.game_token, gs.mode, gs.status,
			       COALESCE(gs.winner_side, 0) AS winner_side,
			       COALESCE(gs.win_type, '') AS win_type,
			       to_char(gs.created_at, 'YYYY-MM-DD HH24:MI:SS') AS created_at,
			       COALESCE(to_char(gs.started_at, 'YYYY-MM-DD HH24:MI:SS'), '') AS started_at,
			       COALESCE(to_char(gs.completed_at, 'YYYY-MM-DD HH24:MI:SS'), '') AS completed_at,
			       to_char(gs.expiry_time, 'YYYY-MM-DD HH24:MI:SS') AS expiry_time,
			       COALESCE(p1.display_name, '') AS player1,
			       COALESCE(p2.display_name, '') AS player2,
			       COALESCE(p3.display_name, '') AS player3,
			       COALESCE(p4.display_name, '') AS player4
			FROM game_sessions gs
			LEFT JOIN players p1 ON gs.player1_id = p1.id
			LEFT JOIN players p2 ON gs.player2_id = p2.id
			LEFT JOIN players p3 ON gs.player3_id = p3.id
			LEFT JOIN players p4 ON gs.player4_id = p4.id
			WHERE gs.id = $1`, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			return
		}

		var moves []struct {
			ID          int    `db:"id" json:"id"`
			PlayerID    int    `db:"player_id" json:"player_id"`
			DisplayName string `db:"display_name" json:"display_name"`
			MoveNumber  int    `db:"move_number" json:"move_number"`
			MoveType    string `db:"move_type" json:"move_type"`
			ShotData    string `db:"shot_data" json:"shot_data"`
			CreatedAt   string `db:"created_at" json:"created_at"`
		}
		err = db.Select(&moves, `
			SELECT gm.id, gm.player_id,
			       COALESCE(p.display_name, '') AS display_name,
			       gm.move_number, gm.move_type,
			       COALESCE(gm.shot_data::text, '{}') AS shot_data,
			       to_char(gm.created_at, 'YYYY-MM-DD HH24:MI:SS') AS created_at
			FROM game_moves gm
			LEFT JOIN players p ON gm.player_id = p.id
			WHERE gm.session_id = $1
			ORDER BY gm.move_number ASC`, id)
		if err != nil {
			log.Printf("[ADMIN] Failed to fetch moves for session %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch moves"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"match": session,
			"moves": moves,
		})
	}
}

// GetAdminPlayers lists registered players with optional name search
func GetAdminPlayers(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := strings.TrimSpace(c.Query("q"))
		limit, offset := adminPageParams(c)

		var rows []struct {
			ID               int    `db:"id" json:"id"`
			DisplayName      string `db:"display_name" json:"display_name"`
			TotalGamesPlayed int    `db:"total_games_played" json:"total_games_played"`
			TotalGamesWon    int    `db:"total_games_won" json:"total_games_won"`
			IsActive         bool   `db:"is_active" json:"is_active"`
			CreatedAt        string `db:"created_at" json:"created_at"`
			LastActive       string `db:"last_active" json:"last_active"`
			TotalCount       int    `db:"total_count" json:"-"`
		}

		query := `
			SELECT id, display_name, total_games_played, total_games_won, is_active,
			       to_char(created_at, 'YYYY-MM-DD HH24:MI:SS') AS created_at,
			       COALESCE(to_char(last_active, 'YYYY-MM-DD HH24:MI:SS'), '') AS last_active,
			       COUNT(*) OVER() AS total_count
			FROM players
			WHERE ($1 = '' OR display_name ILIKE '%' || $1 || '%')
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`

		if err := db.Select(&rows, query, q, limit, offset); err != nil {
			log.Printf("[ADMIN] Failed to list players: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch players"})
			return
		}

		total := 0
		if len(rows) > 0 {
			total = rows[0].TotalCount
		}
		c.JSON(http.StatusOK, gin.H{
			"players": rows,
			"total":   total,
			"limit":   limit,
			"offset":  offset,
		})
	}
}

// GetAdminAudit returns the audit trail, optionally filtered by admin
func GetAdminAudit(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := adminPageParams(c)
		phone := c.Query("phone")

		var (
			logs interface{}
			err  error
		)
		if phone != "" {
			logs, err = admin.GetAdminAuditLogsByPhone(db, phone, limit, offset)
		} else {
			logs, err = admin.GetAdminAuditLogs(db, limit, offset)
		}
		if err != nil {
			log.Printf("[ADMIN] Failed to fetch audit logs: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch audit logs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"logs":   logs,
			"limit":  limit,
			"offset": offset,
		})
	}
}

// GetAdminRuntimeConfig returns all runtime-tunable settings
func GetAdminRuntimeConfig(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := admin.GetAllRuntimeConfig(db)
		if err != nil {
			log.Printf("[ADMIN] Failed to fetch runtime config: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch config"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"config": entries})
	}
}

// UpdateAdminRuntimeConfig updates one runtime setting and applies it
// to the live config. Requires the super_admin role.
func UpdateAdminRuntimeConfig(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !adminHasRole(c, "super_admin") {
			c.JSON(http.StatusForbidden, gin.H{"error": "super_admin role required"})
			return
		}

		var req struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := c.BindJSON(&req); err != nil || req.Key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "key and value required"})
			return
		}

		phone := c.GetString("admin_phone")
		if err := admin.UpdateRuntimeConfigValue(db, req.Key, req.Value, phone); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := admin.ApplyRuntimeConfigToConfig(db, cfg); err != nil {
			log.Printf("[ADMIN] Config updated but live apply failed: %v", err)
		}

		log.Printf("[ADMIN] Runtime config %s updated by %s", req.Key, phone)
		c.JSON(http.StatusOK, gin.H{"updated": true, "key": req.Key, "value": req.Value})
	}
}
