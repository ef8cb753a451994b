package game

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func newTestGame(t *testing.T, mode string, names ...string) *CarromGameState {
	t.Helper()
	var seats []SeatInfo
	for i, name := range names {
		seats = append(seats, SeatInfo{
			ID:          name,
			DisplayName: name,
			PlayerToken: name + "-token",
			DBPlayerID:  i + 1,
		})
	}
	g, err := NewCarromGame("game-1", "tok-test", mode, seats)
	if err != nil {
		t.Fatalf("new carrom game: %v", err)
	}
	if err := g.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return g
}

func TestSeatAssignmentAndModes(t *testing.T) {
	if got := PlayerCountForMode(ModeTwoPlayer); got != 2 {
		t.Errorf("2p seat count = %d", got)
	}
	if got := PlayerCountForMode(ModeFourPlayer); got != 4 {
		t.Errorf("4p seat count = %d", got)
	}

	if _, err := NewCarromGame("g", "t", ModeTwoPlayer, []SeatInfo{{ID: "only"}}); err == nil {
		t.Error("one seat for a two player game should be rejected")
	}

	g := newTestGame(t, ModeTwoPlayer, "p1", "p2")
	if g.Players[0].Seat != 1 || g.Players[0].Color != RegularLight {
		t.Errorf("seat 1 = %+v, want light", g.Players[0])
	}
	if g.Players[1].Seat != 2 || g.Players[1].Color != RegularDark {
		t.Errorf("seat 2 = %+v, want dark", g.Players[1])
	}
	if g.Status != StatusInProgress || g.StartedAt == nil {
		t.Errorf("initialized game status = %s, started = %v", g.Status, g.StartedAt)
	}

	// Re-initializing a running game is a no-op, not a reset.
	started := *g.StartedAt
	if err := g.Initialize(); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if !g.StartedAt.Equal(started) {
		t.Error("second initialize restarted the game")
	}
}

func TestValidateCanShoot(t *testing.T) {
	g := newTestGame(t, ModeTwoPlayer, "p1", "p2")
	ok := ShotParams{Angle: 0, Power: 0.5}

	if err := g.ValidateCanShoot("p2", ok); err == nil || err.Error() != "not your turn" {
		t.Errorf("out-of-turn err = %v", err)
	}
	if err := g.ValidateCanShoot("ghost", ok); err == nil || err.Error() != "player is not in this game" {
		t.Errorf("unknown player err = %v", err)
	}
	if err := g.ValidateCanShoot("p1", ShotParams{Power: 0}); err == nil || err.Error() != "invalid power" {
		t.Errorf("zero power err = %v", err)
	}
	if err := g.ValidateCanShoot("p1", ShotParams{Power: 1.5}); err == nil || err.Error() != "invalid power" {
		t.Errorf("oversized power err = %v", err)
	}
	if err := g.ValidateCanShoot("p1", ShotParams{Angle: math.NaN(), Power: 0.5}); err == nil || err.Error() != "invalid angle" {
		t.Errorf("nan angle err = %v", err)
	}
	if err := g.ValidateCanShoot("p1", ok); err != nil {
		t.Errorf("legal shot rejected: %v", err)
	}

	g.Status = StatusWaiting
	if err := g.ValidateCanShoot("p1", ok); err == nil || err.Error() != "game is not in progress" {
		t.Errorf("waiting-game err = %v", err)
	}
}

func TestTakeShotAlternatesTurns(t *testing.T) {
	g := newTestGame(t, ModeTwoPlayer, "p1", "p2")

	// Seat 1 fires into the empty bottom lane: a clean miss.
	res, err := g.TakeShot("p1", ShotParams{Angle: math.Pi / 2, Power: 0.2})
	if err != nil {
		t.Fatalf("shot 1: %v", err)
	}
	if !res.Success || res.ShotNumber != 1 {
		t.Errorf("shot 1 result = success:%v number:%d", res.Success, res.ShotNumber)
	}
	if res.Ticks == 0 || len(res.Positions) != 25 {
		t.Errorf("shot 1 trace = %d ticks, %d positions", res.Ticks, len(res.Positions))
	}
	if len(res.CapturedDiscs) != 0 || res.Foul != nil {
		t.Errorf("lane shot should touch nothing, got captures %v foul %+v", res.CapturedDiscs, res.Foul)
	}
	if !res.TurnChange || res.NextSeat != 2 || res.NextTurn != "p2" {
		t.Errorf("miss should pass to p2, got %+v", res)
	}
	if res.GameOver {
		t.Error("game cannot be over")
	}

	if _, err := g.TakeShot("p1", ShotParams{Angle: 0, Power: 0.5}); err == nil || err.Error() != "not your turn" {
		t.Errorf("repeat shooter err = %v", err)
	}

	// Seat 2 places the striker first, then fires a short shot from the
	// top baseline that stops well before the coin cluster.
	res2, err := g.TakeShot("p2", ShotParams{Angle: math.Pi / 2, Power: 0.1, StrikerX: 300})
	if err != nil {
		t.Fatalf("shot 2: %v", err)
	}
	if res2.ShotNumber != 2 || !res2.TurnChange || res2.NextSeat != 1 {
		t.Errorf("shot 2 result = %+v", res2)
	}
}

func TestConcedeEndsGame(t *testing.T) {
	g := newTestGame(t, ModeTwoPlayer, "p1", "p2")

	g.ForfeitByConcede("p2")

	if g.Status != StatusCompleted || g.CompletedAt == nil {
		t.Errorf("conceded game status = %s", g.Status)
	}
	if g.WinnerSide != 1 || g.WinType != "concede" {
		t.Errorf("winner side = %d type = %q, want side 1 by concede", g.WinnerSide, g.WinType)
	}
	if ids := g.WinnerIDs(); !reflect.DeepEqual(ids, []string{"p1"}) {
		t.Errorf("winner ids = %v, want [p1]", ids)
	}
	if _, err := g.TakeShot("p1", ShotParams{Angle: 0, Power: 0.5}); err == nil || err.Error() != "game is not in progress" {
		t.Errorf("shot after concede err = %v", err)
	}

	// A second forfeit cannot flip the result.
	g.ForfeitByDisconnect("p1")
	if g.WinnerSide != 1 || g.WinType != "concede" {
		t.Errorf("completed game re-forfeited: side %d type %q", g.WinnerSide, g.WinType)
	}
}

func TestDisconnectForfeitTakesSideDown(t *testing.T) {
	g := newTestGame(t, ModeFourPlayer, "p1", "p2", "p3", "p4")

	// Seat 3 shares side 1 with seat 1; both lose together.
	g.ForfeitByDisconnect("p3")

	if g.WinnerSide != 2 || g.WinType != "forfeit" {
		t.Errorf("winner side = %d type = %q, want side 2 by forfeit", g.WinnerSide, g.WinType)
	}
	if ids := g.WinnerIDs(); !reflect.DeepEqual(ids, []string{"p2", "p4"}) {
		t.Errorf("winner ids = %v, want [p2 p4]", ids)
	}
}

func TestGameStatePayloadPerPlayer(t *testing.T) {
	g := newTestGame(t, ModeTwoPlayer, "p1", "p2")

	state := g.GetGameStateForPlayer("p2")
	if state["my_seat"] != 2 || state["my_turn"] != false {
		t.Errorf("p2 view: seat %v turn %v", state["my_seat"], state["my_turn"])
	}
	if state["current_turn"] != "p1" || state["current_seat"] != 1 {
		t.Errorf("p2 view of current turn: %v / %v", state["current_turn"], state["current_seat"])
	}
	discs, okDiscs := state["discs"].([]DiscState)
	if !okDiscs || len(discs) != 25 {
		t.Fatalf("discs payload = %T len %d", state["discs"], len(discs))
	}
	players, okPlayers := state["players"].([]map[string]interface{})
	if !okPlayers || len(players) != 2 {
		t.Fatalf("players payload = %T", state["players"])
	}
	if players[0]["score"] != 0 || players[0]["seat"] != 1 {
		t.Errorf("players[0] = %v", players[0])
	}

	if me := g.GetGameStateForPlayer("p1"); me["my_turn"] != true {
		t.Error("p1 should see their own turn")
	}
	if spectator := g.GetGameStateForPlayer("watcher"); spectator["my_seat"] != 0 || spectator["my_turn"] != false {
		t.Errorf("spectator view: seat %v turn %v", spectator["my_seat"], spectator["my_turn"])
	}
}

func TestAimRequiresTurn(t *testing.T) {
	g := newTestGame(t, ModeTwoPlayer, "p1", "p2")

	if _, err := g.Aim("p2", 0, -math.Pi/2); err == nil || err.Error() != "not your turn" {
		t.Errorf("opponent aim err = %v", err)
	}

	line, err := g.Aim("p1", 300, -math.Pi/2)
	if err != nil {
		t.Fatalf("aim: %v", err)
	}
	// Placement rode along with the aim.
	if got := g.match.Board().Striker.Position; got.X != 300 || got.Y != 650 {
		t.Errorf("striker moved to %+v, want (300, 650)", got)
	}
	if line == nil {
		t.Fatal("nil aim line")
	}
	if line.Wall {
		t.Error("upward cast from the baseline should find the coin cluster")
	}

	if _, err := g.Aim("p1", 0, math.Inf(1)); err == nil || err.Error() != "invalid angle" {
		t.Errorf("infinite angle err = %v", err)
	}
}

func TestPlaceStrikerRequiresTurn(t *testing.T) {
	g := newTestGame(t, ModeTwoPlayer, "p1", "p2")

	if err := g.PlaceStriker("p2", 400); err == nil || err.Error() != "not your turn" {
		t.Errorf("opponent placement err = %v", err)
	}
	if err := g.PlaceStriker("p1", 9999); err != nil {
		t.Fatalf("placement: %v", err)
	}
	if got := g.match.Board().Striker.Position.X; got != 630 {
		t.Errorf("striker x = %v, want clamp at 630", got)
	}
}

func TestRestoreCoreGuardsPlayerCount(t *testing.T) {
	g := newTestGame(t, ModeTwoPlayer, "p1", "p2")

	four, err := NewMatch(DefaultSettings(4))
	if err != nil {
		t.Fatalf("4p match: %v", err)
	}
	snap4, err := four.Snapshot()
	if err != nil {
		t.Fatalf("4p snapshot: %v", err)
	}
	if err := g.RestoreCore(snap4); !errors.Is(err, ErrCorruptSnapshot) {
		t.Errorf("player count mismatch err = %v, want ErrCorruptSnapshot", err)
	}
	if err := g.RestoreCore(nil); !errors.Is(err, ErrCorruptSnapshot) {
		t.Errorf("nil snapshot err = %v, want ErrCorruptSnapshot", err)
	}
}

func TestCoreSnapshotRoundTripAcrossGames(t *testing.T) {
	g := newTestGame(t, ModeTwoPlayer, "p1", "p2")
	if _, err := g.TakeShot("p1", ShotParams{Angle: -math.Pi / 2, Power: 0.9}); err != nil {
		t.Fatalf("shot: %v", err)
	}

	snap, err := g.CoreSnapshot()
	if err != nil {
		t.Fatalf("core snapshot: %v", err)
	}

	other := newTestGame(t, ModeTwoPlayer, "q1", "q2")
	if err := other.RestoreCore(snap); err != nil {
		t.Fatalf("restore into second game: %v", err)
	}
	if !reflect.DeepEqual(g.GetCurrentDiscStates(), other.GetCurrentDiscStates()) {
		t.Error("restored disc states differ from the source game")
	}
	if g.match.State().CurrentPlayer != other.match.State().CurrentPlayer {
		t.Error("restored turn differs from the source game")
	}
}
