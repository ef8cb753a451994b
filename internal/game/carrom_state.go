package game

import (
	"errors"
	"log"
	"math"
	"sync"
	"time"
)

// GameStatus represents the current state of a game session.
type GameStatus string

const (
	StatusWaiting    GameStatus = "WAITING"
	StatusInProgress GameStatus = "IN_PROGRESS"
	StatusCompleted  GameStatus = "COMPLETED"
	StatusCancelled  GameStatus = "CANCELLED"
)

// Game modes, used as matchmaking queue keys.
const (
	ModeTwoPlayer  = "2p"
	ModeFourPlayer = "4p"
)

// PlayerCountForMode maps a queue mode to its seat count.
func PlayerCountForMode(mode string) int {
	if mode == ModeFourPlayer {
		return 4
	}
	return 2
}

// CarromPlayer represents one seated player in a carrom game.
type CarromPlayer struct {
	ID             string     `json:"id"`
	DBPlayerID     int        `json:"db_player_id,omitempty"`
	DisplayName    string     `json:"display_name,omitempty"`
	PlayerToken    string     `json:"-"`
	Seat           int        `json:"seat"` // 1..PlayerCount
	Color          DiscKind   `json:"color"`
	Connected      bool       `json:"connected"`
	ShowedUp       bool       `json:"showed_up"`
	DisconnectedAt *time.Time `json:"-"`
}

// SeatInfo is the matchmaker's description of one player to seat.
type SeatInfo struct {
	ID          string
	DBPlayerID  int
	DisplayName string
	PlayerToken string
}

// ShotParams represents the input for a carrom shot.
type ShotParams struct {
	Angle    float64 `json:"angle"`     // radians
	Power    float64 `json:"power"`     // 0-1, scaled to max striker speed
	StrikerX float64 `json:"striker_x"` // baseline placement before release, 0 = keep
}

// FoulInfo describes a foul that occurred during a shot.
type FoulInfo struct {
	Type    string `json:"type"` // "striker_pocketed", "opponent_coin", "three_fouls"
	Message string `json:"message"`
}

// DiscState represents a disc's position and status for serialization.
type DiscState struct {
	ID     int      `json:"id"`
	Kind   DiscKind `json:"kind"`
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Active bool     `json:"active"`
}

// CarromShotResult is the outcome of one server-simulated shot, shaped
// for broadcast to every seat.
type CarromShotResult struct {
	Success       bool             `json:"success"`
	ShotNumber    int              `json:"shot_number"`
	Ticks         int              `json:"ticks"`
	Events        []CollisionEvent `json:"events"`
	CapturedDiscs []int            `json:"captured_discs"`
	Positions     []DiscPosition   `json:"positions"`
	Message       string           `json:"message"`
	Foul          *FoulInfo        `json:"foul,omitempty"`
	TurnChange    bool             `json:"turn_change"`
	NextTurn      string           `json:"next_turn"`
	NextSeat      int              `json:"next_seat"`
	Scores        []int            `json:"scores"`
	QueenPending  bool             `json:"queen_pending"`
	QueenReturned bool             `json:"queen_returned"`
	GameOver      bool             `json:"game_over"`
	WinnerSide    int              `json:"winner_side,omitempty"`
	Winners       []string         `json:"winners,omitempty"`
	WinType       string           `json:"win_type,omitempty"`
}

// CarromGameState represents the complete server state of one carrom
// game: the seated players, the authoritative physics match, and the
// session bookkeeping. All physics and rules run server-side; clients
// only send shot parameters and render what the server broadcasts.
type CarromGameState struct {
	ID          string          `json:"id"`
	Token       string          `json:"token"`
	Mode        string          `json:"mode"`
	PlayerCount int             `json:"player_count"`
	Players     []*CarromPlayer `json:"players"` // seat order, Players[i].Seat == i+1
	Status      GameStatus      `json:"status"`
	WinnerSide  int             `json:"winner_side,omitempty"`
	WinType     string          `json:"win_type,omitempty"`
	ShotNumber  int             `json:"shot_number"`

	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	LastActivity time.Time  `json:"last_activity"`
	SessionID    int        `json:"session_id,omitempty"`

	match *Match
	mu    sync.RWMutex
}

// NewCarromGame creates a new carrom game state with seats assigned in
// the order given. Seat parity decides coin color: odd seats light, even
// seats dark.
func NewCarromGame(id, token, mode string, seats []SeatInfo) (*CarromGameState, error) {
	count := PlayerCountForMode(mode)
	if len(seats) != count {
		return nil, errors.New("seat count does not match game mode")
	}

	expiryMinutes := 3
	if Manager != nil && Manager.config != nil {
		expiryMinutes = Manager.config.GameExpiryMinutes
	}

	g := &CarromGameState{
		ID:           id,
		Token:        token,
		Mode:         mode,
		PlayerCount:  count,
		Status:       StatusWaiting,
		ExpiresAt:    time.Now().Add(time.Duration(expiryMinutes) * time.Minute),
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
	for i, s := range seats {
		seat := i + 1
		g.Players = append(g.Players, &CarromPlayer{
			ID:          s.ID,
			DBPlayerID:  s.DBPlayerID,
			DisplayName: s.DisplayName,
			PlayerToken: s.PlayerToken,
			Seat:        seat,
			Color:       ColorForSeat(seat),
		})
	}
	return g, nil
}

// Initialize sets up the board, seats the coins in the ring formation,
// and gives seat 1 the first strike.
func (g *CarromGameState) Initialize() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Status == StatusInProgress || g.StartedAt != nil {
		log.Printf("[CARROM INIT] Game %s already initialized, skipping", g.ID)
		return nil
	}

	match, err := NewMatch(DefaultSettings(g.PlayerCount))
	if err != nil {
		return err
	}
	g.match = match
	g.ShotNumber = 0

	now := time.Now()
	g.StartedAt = &now
	g.Status = StatusInProgress
	g.LastActivity = now

	log.Printf("[CARROM INIT] Game %s initialized, seat 1 (%s) breaks", g.ID, g.Players[0].ID)
	return nil
}

// ValidateCanShoot checks if a player can take a shot (turn, status, params).
func (g *CarromGameState) ValidateCanShoot(playerID string, params ShotParams) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.Status != StatusInProgress {
		return errors.New("game is not in progress")
	}
	p := g.playerByIDLocked(playerID)
	if p == nil {
		return errors.New("player is not in this game")
	}
	if g.match == nil || g.match.CurrentPlayer() != p.Seat {
		return errors.New("not your turn")
	}
	if math.IsNaN(params.Power) || params.Power <= 0 || params.Power > 1 {
		return errors.New("invalid power")
	}
	if math.IsNaN(params.Angle) || math.IsInf(params.Angle, 0) {
		return errors.New("invalid angle")
	}
	if g.match.Phase() != AwaitingShot {
		return errors.New("a shot is already in progress")
	}
	return nil
}

// TakeShot validates, places the striker, and runs the whole shot
// through the physics match synchronously. The result carries everything
// clients need to animate the shot and update the score sheet.
func (g *CarromGameState) TakeShot(playerID string, params ShotParams) (*CarromShotResult, error) {
	if err := g.ValidateCanShoot(playerID, params); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	shooter := g.playerByIDLocked(playerID)
	if shooter == nil || g.match.CurrentPlayer() != shooter.Seat {
		return nil, errors.New("not your turn")
	}

	if params.StrikerX > 0 {
		if err := g.match.PlaceStriker(params.StrikerX); err != nil {
			return nil, err
		}
	}

	summary, err := g.match.PlayShot(params.Angle, params.Power)
	if err != nil {
		return nil, err
	}
	g.ShotNumber++
	g.LastActivity = time.Now()

	st := g.match.State()
	out := summary.Outcome

	result := &CarromShotResult{
		Success:       true,
		ShotNumber:    g.ShotNumber,
		Ticks:         summary.Ticks,
		Events:        summary.Events,
		CapturedDiscs: summary.Captured,
		Positions:     summary.Positions,
		Message:       out.Message,
		TurnChange:    out.TurnChanged,
		NextSeat:      out.CurrentPlayer,
		NextTurn:      g.playerIDForSeatLocked(out.CurrentPlayer),
		Scores:        out.Scores,
		QueenPending:  st.PendingQueenCover,
		QueenReturned: out.QueenReturned,
	}
	if out.Foul != "" {
		result.Foul = &FoulInfo{Type: out.Foul, Message: out.Message}
	}

	if out.Winner != 0 {
		result.GameOver = true
		result.WinnerSide = out.Winner
		result.Winners = g.playerIDsForSideLocked(out.Winner)
		result.WinType = "cleared"
		g.WinnerSide = out.Winner
		g.WinType = "cleared"
		g.Status = StatusCompleted
		now := time.Now()
		g.CompletedAt = &now
	}

	if Manager != nil {
		if g.SessionID > 0 && shooter.DBPlayerID > 0 {
			Manager.RecordCarromShot(g.SessionID, shooter.DBPlayerID, g.ShotNumber, params, summary)
		}
		if result.GameOver {
			Manager.SaveFinalGameState(g)
		} else {
			Manager.saveCarromGameToRedis(g)
		}
	}

	return result, nil
}

// PlaceStriker slides the striker along the shooter's baseline during
// aiming, so opponents see the placement live.
func (g *CarromGameState) PlaceStriker(playerID string, x float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.playerByIDLocked(playerID)
	if p == nil {
		return errors.New("player is not in this game")
	}
	if g.match == nil || g.match.CurrentPlayer() != p.Seat {
		return errors.New("not your turn")
	}
	if err := g.match.PlaceStriker(x); err != nil {
		return err
	}
	g.LastActivity = time.Now()
	return nil
}

// Aim places the striker (when x > 0) and returns the server-computed
// aim preview for the given angle.
func (g *CarromGameState) Aim(playerID string, x, angle float64) (*AimLine, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.playerByIDLocked(playerID)
	if p == nil {
		return nil, errors.New("player is not in this game")
	}
	if g.match == nil || g.match.CurrentPlayer() != p.Seat {
		return nil, errors.New("not your turn")
	}
	if g.match.Phase() != AwaitingShot {
		return nil, errors.New("cannot aim while discs are moving")
	}
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return nil, errors.New("invalid angle")
	}
	if x > 0 {
		if err := g.match.PlaceStriker(x); err != nil {
			return nil, err
		}
	}
	line := AimPreview(g.match.Board(), angle)
	return &line, nil
}

// GetCurrentDiscStates returns a copy of every disc's position and
// active flag.
func (g *CarromGameState) GetCurrentDiscStates() []DiscState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.discStatesLocked()
}

func (g *CarromGameState) discStatesLocked() []DiscState {
	if g.match == nil {
		return nil
	}
	discs := g.match.Board().AllDiscs()
	out := make([]DiscState, 0, len(discs))
	for _, d := range discs {
		out = append(out, DiscState{
			ID:     d.ID,
			Kind:   d.Kind,
			X:      d.Position.X,
			Y:      d.Position.Y,
			Active: !d.Captured,
		})
	}
	return out
}

// CoreSnapshot captures the underlying match for persistence. Fails
// while a shot is mid-flight.
func (g *CarromGameState) CoreSnapshot() (*Snapshot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.match == nil {
		return nil, errors.New("game not initialized")
	}
	return g.match.Snapshot()
}

// RestoreCore swaps the underlying match to a validated snapshot,
// leaving the current match untouched if the snapshot is corrupt.
func (g *CarromGameState) RestoreCore(snap *Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.match == nil {
		return errors.New("game not initialized")
	}
	if snap != nil && snap.Settings.PlayerCount != g.PlayerCount {
		return ErrCorruptSnapshot
	}
	if err := g.match.Restore(snap); err != nil {
		return err
	}
	g.LastActivity = time.Now()
	return nil
}

// GetGameStateForPlayer returns the game state visible to a specific player.
func (g *CarromGameState) GetGameStateForPlayer(playerID string) map[string]interface{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	me := g.playerByIDLocked(playerID)
	mySeat := 0
	if me != nil {
		mySeat = me.Seat
	}

	var st MatchState
	currentSeat := 0
	if g.match != nil {
		st = g.match.State()
		currentSeat = st.CurrentPlayer
	}

	players := make([]map[string]interface{}, 0, len(g.Players))
	for _, p := range g.Players {
		score := 0
		if len(st.Scores) >= p.Seat {
			score = st.Scores[p.Seat-1]
		}
		players = append(players, map[string]interface{}{
			"id":           p.ID,
			"display_name": p.DisplayName,
			"seat":         p.Seat,
			"color":        p.Color,
			"connected":    p.Connected,
			"score":        score,
		})
	}

	return map[string]interface{}{
		"game_id":             g.ID,
		"token":               g.Token,
		"mode":                g.Mode,
		"status":              g.Status,
		"player_count":        g.PlayerCount,
		"players":             players,
		"my_id":               playerID,
		"my_seat":             mySeat,
		"my_turn":             mySeat != 0 && mySeat == currentSeat,
		"current_seat":        currentSeat,
		"current_turn":        g.playerIDForSeatLocked(currentSeat),
		"discs":               g.discStatesLocked(),
		"scores":              st.Scores,
		"queen_pocketed":      st.QueenPocketed,
		"queen_covered":       st.QueenCovered,
		"pending_queen_cover": st.PendingQueenCover,
		"foul_count":          st.FoulCount,
		"message":             st.Message,
		"shot_number":         g.ShotNumber,
		"winner_side":         g.WinnerSide,
		"win_type":            g.WinType,
	}
}

// === Connection management ===

func (g *CarromGameState) SetPlayerConnected(playerID string, connected bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p := g.playerByIDLocked(playerID); p != nil {
		p.Connected = connected
		if connected {
			p.DisconnectedAt = nil
		}
	}
}

func (g *CarromGameState) AllPlayersConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.Players {
		if !p.Connected {
			return false
		}
	}
	return true
}

func (g *CarromGameState) AllPlayersShowedUp() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.Players {
		if !p.ShowedUp {
			return false
		}
	}
	return true
}

func (g *CarromGameState) MarkPlayerShowedUp(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p := g.playerByIDLocked(playerID); p != nil {
		p.ShowedUp = true
	}
}

func (g *CarromGameState) SetPlayerDisconnected(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p := g.playerByIDLocked(playerID); p != nil {
		p.Connected = false
		now := time.Now()
		p.DisconnectedAt = &now
	}
}

// OtherPlayerIDs returns every seated player except the given one, for
// relaying events to the rest of the table.
func (g *CarromGameState) OtherPlayerIDs(playerID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.Players)-1)
	for _, p := range g.Players {
		if p.ID != playerID {
			out = append(out, p.ID)
		}
	}
	return out
}

func (g *CarromGameState) GetPlayerByID(playerID string) *CarromPlayer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.playerByIDLocked(playerID)
}

func (g *CarromGameState) PlayerBySeat(seat int) *CarromPlayer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if seat < 1 || seat > len(g.Players) {
		return nil
	}
	return g.Players[seat-1]
}

// GetCurrentPlayer returns the player whose turn it is, nil before
// initialization.
func (g *CarromGameState) GetCurrentPlayer() *CarromPlayer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.match == nil {
		return nil
	}
	seat := g.match.CurrentPlayer()
	if seat < 1 || seat > len(g.Players) {
		return nil
	}
	return g.Players[seat-1]
}

// CurrentTurnID returns the current shooter's player ID, "" before
// initialization.
func (g *CarromGameState) CurrentTurnID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.match == nil {
		return ""
	}
	return g.playerIDForSeatLocked(g.match.CurrentPlayer())
}

// ForfeitByDisconnect ends the game because a player stayed disconnected.
// The disconnected seat's whole side loses; in 4-player games the
// partner goes down with them.
func (g *CarromGameState) ForfeitByDisconnect(disconnectedPlayerID string) {
	g.forfeit(disconnectedPlayerID, "forfeit", "FORFEIT")
}

// ForfeitByConcede ends the game because a player conceded.
func (g *CarromGameState) ForfeitByConcede(concedingPlayerID string) {
	g.forfeit(concedingPlayerID, "concede", "CONCEDE")
}

func (g *CarromGameState) forfeit(losingPlayerID, winType, moveType string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Status == StatusCompleted {
		return
	}
	loser := g.playerByIDLocked(losingPlayerID)
	if loser == nil {
		return
	}

	g.WinnerSide = 3 - SideForSeat(loser.Seat)
	g.WinType = winType
	g.Status = StatusCompleted
	now := time.Now()
	g.CompletedAt = &now

	if Manager != nil {
		if loser.DBPlayerID > 0 && g.SessionID > 0 {
			Manager.RecordMove(g.SessionID, loser.DBPlayerID, moveType)
		}
		Manager.SaveFinalGameState(g)
	}
}

// WinnerIDs returns the player IDs on the winning side, empty while the
// game is still running.
func (g *CarromGameState) WinnerIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.WinnerSide == 0 {
		return nil
	}
	return g.playerIDsForSideLocked(g.WinnerSide)
}

// SaveToRedis saves the game state via the manager.
func (g *CarromGameState) SaveToRedis() {
	if Manager != nil && Manager.rdb != nil {
		Manager.saveCarromGameToRedis(g)
	}
}

// === Internal helpers ===

func (g *CarromGameState) playerByIDLocked(playerID string) *CarromPlayer {
	for _, p := range g.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (g *CarromGameState) playerIDForSeatLocked(seat int) string {
	if seat < 1 || seat > len(g.Players) {
		return ""
	}
	return g.Players[seat-1].ID
}

func (g *CarromGameState) playerIDsForSideLocked(side int) []string {
	var ids []string
	for _, p := range g.Players {
		if SideForSeat(p.Seat) == side {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
