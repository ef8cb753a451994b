package models

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// Player represents a user in the system. Players are guest accounts
// keyed by display name; there is no phone or password on record.
type Player struct {
	ID               int          `db:"id" json:"id"`
	DisplayName      string       `db:"display_name" json:"display_name"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	TotalGamesPlayed int          `db:"total_games_played" json:"total_games_played"`
	TotalGamesWon    int          `db:"total_games_won" json:"total_games_won"`
	IsActive         bool         `db:"is_active" json:"is_active"`
	LastActive       sql.NullTime `db:"last_active" json:"last_active,omitempty"`
}

// GameSession represents one carrom table. Two-player tables fill
// player1/player2; four-player tables fill all four seats in order.
type GameSession struct {
	ID          int            `db:"id" json:"id"`
	GameToken   string         `db:"game_token" json:"game_token"`
	Mode        string         `db:"mode" json:"mode"`
	Player1ID   sql.NullInt64  `db:"player1_id" json:"player1_id,omitempty"`
	Player2ID   sql.NullInt64  `db:"player2_id" json:"player2_id,omitempty"`
	Player3ID   sql.NullInt64  `db:"player3_id" json:"player3_id,omitempty"`
	Player4ID   sql.NullInt64  `db:"player4_id" json:"player4_id,omitempty"`
	Status      string         `db:"status" json:"status"`
	WinnerSide  sql.NullInt64  `db:"winner_side" json:"winner_side,omitempty"`
	WinType     sql.NullString `db:"win_type" json:"win_type,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	StartedAt   sql.NullTime   `db:"started_at" json:"started_at,omitempty"`
	CompletedAt sql.NullTime   `db:"completed_at" json:"completed_at,omitempty"`
	ExpiryTime  time.Time      `db:"expiry_time" json:"expiry_time"`
	Snapshot    types.JSONText `db:"snapshot" json:"snapshot,omitempty"`
}

// MatchmakingQueue represents a player waiting for a table
type MatchmakingQueue struct {
	ID         int           `db:"id" json:"id"`
	PlayerID   int           `db:"player_id" json:"player_id"`
	Mode       string        `db:"mode" json:"mode"`
	QueueToken string        `db:"queue_token" json:"queue_token"`
	Status     string        `db:"status" json:"status"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	MatchedAt  sql.NullTime  `db:"matched_at" json:"matched_at,omitempty"`
	ExpiresAt  time.Time     `db:"expires_at" json:"expires_at"`
	SessionID  sql.NullInt64 `db:"session_id" json:"session_id,omitempty"`
}

// GameMove represents a single recorded shot or forfeit in a game
type GameMove struct {
	ID         int            `db:"id" json:"id"`
	SessionID  int            `db:"session_id" json:"session_id"`
	PlayerID   int            `db:"player_id" json:"player_id"`
	MoveNumber int            `db:"move_number" json:"move_number"`
	MoveType   string         `db:"move_type" json:"move_type"`
	ShotData   types.JSONText `db:"shot_data" json:"shot_data,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// GameStateRecord is the final board/score dump written when a game ends
type GameStateRecord struct {
	ID        int            `db:"id" json:"id"`
	SessionID int            `db:"session_id" json:"session_id"`
	GameState types.JSONText `db:"game_state" json:"game_state"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// AdminAccount represents an admin user keyed by phone
type AdminAccount struct {
	Phone       string         `db:"phone" json:"phone"`
	DisplayName string         `db:"display_name" json:"display_name"`
	TokenHash   string         `db:"token_hash" json:"-"`
	Roles       pq.StringArray `db:"roles" json:"roles"`
	AllowedIPs  pq.StringArray `db:"allowed_ips" json:"allowed_ips"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// AdminAudit is one row of the admin action audit trail
type AdminAudit struct {
	ID         int            `db:"id" json:"id"`
	AdminPhone string         `db:"admin_phone" json:"admin_phone"`
	IP         string         `db:"ip" json:"ip"`
	Route      string         `db:"route" json:"route"`
	Action     string         `db:"action" json:"action"`
	Details    types.JSONText `db:"details" json:"details"`
	Success    bool           `db:"success" json:"success"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// RuntimeConfig is a tunable config value stored in the database
type RuntimeConfig struct {
	Key         string         `db:"key" json:"key"`
	Value       string         `db:"value" json:"value"`
	ValueType   string         `db:"value_type" json:"value_type"`
	Description sql.NullString `db:"description" json:"description,omitempty"`
	UpdatedBy   sql.NullString `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}
