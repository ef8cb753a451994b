package game

// Board and physics constants for carrom.
// These MUST match the TypeScript constants in the web client exactly, or
// the client-side shot animation will drift from the server result.

const (
	SurfaceSize   = 800.0 // full rendered surface, including the frame
	PlayfieldSize = 600.0 // inner playable square
	BoardMargin   = (SurfaceSize - PlayfieldSize) / 2

	PocketRadius  = 30.0
	CaptureMargin = 5.0 // a disc must be this far inside the pocket rim to drop

	StrikerRadius = 20.0
	CoinRadius    = 15.0
	QueenRadius   = 15.0

	FrictionCoeff    = 0.98
	RestThreshold    = 0.1 // below this speed, velocity snaps to exactly zero
	WallRestitution  = 0.8
	MaxStrikerSpeed  = 20.0 // striker speed at power 1.0, units per tick
	ImpactSoundSpeed = 1.0  // closing speed above which a collision event is emitted

	// BaselineInset keeps the striker off the pocket mouths when it is
	// respotted on a player's baseline.
	BaselineInset = 50.0

	// MaxShotTicks bounds a single shot simulation. Friction plus the rest
	// threshold stops every disc in a few hundred ticks; this cap only
	// guards against a logic regression looping forever.
	MaxShotTicks = 10000
)

// Queen and coin bonus values.
const (
	CoinPoints       = 1
	QueenCoverPoints = 3
)

// Settings carries the per-match physics and board configuration. Matches
// are constructed from an explicit Settings value rather than package
// globals so tests and variant boards can tune them independently.
type Settings struct {
	PlayerCount     int     `json:"player_count"` // 2 or 4
	SurfaceSize     float64 `json:"surface_size"`
	PlayfieldSize   float64 `json:"playfield_size"`
	PocketRadius    float64 `json:"pocket_radius"`
	CaptureMargin   float64 `json:"capture_margin"`
	StrikerRadius   float64 `json:"striker_radius"`
	CoinRadius      float64 `json:"coin_radius"`
	QueenRadius     float64 `json:"queen_radius"`
	Friction        float64 `json:"friction"`
	RestThreshold   float64 `json:"rest_threshold"`
	WallRestitution float64 `json:"wall_restitution"`
	MaxStrikerSpeed float64 `json:"max_striker_speed"`
}

// DefaultSettings returns the standard board for the given player count.
func DefaultSettings(playerCount int) Settings {
	return Settings{
		PlayerCount:     playerCount,
		SurfaceSize:     SurfaceSize,
		PlayfieldSize:   PlayfieldSize,
		PocketRadius:    PocketRadius,
		CaptureMargin:   CaptureMargin,
		StrikerRadius:   StrikerRadius,
		CoinRadius:      CoinRadius,
		QueenRadius:     QueenRadius,
		Friction:        FrictionCoeff,
		RestThreshold:   RestThreshold,
		WallRestitution: WallRestitution,
		MaxStrikerSpeed: MaxStrikerSpeed,
	}
}

// margin returns the frame width implied by the configured sizes.
func (s Settings) margin() float64 {
	return fix((s.SurfaceSize - s.PlayfieldSize) / 2)
}

// center returns the board center point.
func (s Settings) center() Vec2 {
	return NewVec2(s.SurfaceSize/2, s.SurfaceSize/2)
}
