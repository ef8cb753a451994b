package game

import (
	"errors"
	"math"
	"testing"
)

func newTestMatch(t *testing.T, players int) *Match {
	t.Helper()
	m, err := NewMatch(DefaultSettings(players))
	if err != nil {
		t.Fatalf("new match: %v", err)
	}
	return m
}

// resolveScripted releases a shot and resolves it against a scripted
// capture record, bypassing the tick loop so each rule branch can be
// exercised in isolation. Scripted discs are captured on the board too,
// keeping win detection truthful.
func resolveScripted(t *testing.T, m *Match, strikerPocketed bool, ids ...int) TurnOutcome {
	t.Helper()
	if err := m.BeginShot(0, 0.5); err != nil {
		t.Fatalf("begin shot: %v", err)
	}
	rec := &ShotRecord{StrikerPocketed: strikerPocketed}
	if strikerPocketed {
		m.Board().Striker.capture()
	}
	for _, id := range ids {
		d := m.Board().DiscByID(id)
		if d == nil {
			t.Fatalf("no disc with id %d", id)
		}
		d.capture()
		rec.Captured = append(rec.Captured, d)
	}
	return m.engine.ResolveShot(rec)
}

func coinIDsOfKind(b *Board, kind DiscKind) []int {
	var ids []int
	for _, c := range b.Coins {
		if c.Kind == kind {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func TestOwnColorCaptureScoresAndRetainsTurn(t *testing.T) {
	m := newTestMatch(t, 2)
	light := coinIDsOfKind(m.Board(), RegularLight)

	out := resolveScripted(t, m, false, light[0])

	if out.Scores[0] != 1 {
		t.Errorf("player 1 score = %d, want 1", out.Scores[0])
	}
	if out.TurnChanged {
		t.Error("successful capture should not pass the turn")
	}
	if out.CurrentPlayer != 1 {
		t.Errorf("current player = %d, want 1", out.CurrentPlayer)
	}
	if out.Foul != "" {
		t.Errorf("unexpected foul %q", out.Foul)
	}
	if fc := m.State().FoulCount; fc != 0 {
		t.Errorf("foul counter = %d, want 0 after a successful capture", fc)
	}
	if m.Phase() != AwaitingShot {
		t.Errorf("phase = %s, want %s", m.Phase(), AwaitingShot)
	}
}

func TestOpponentColorCaptureIsFoul(t *testing.T) {
	m := newTestMatch(t, 2)
	dark := coinIDsOfKind(m.Board(), RegularDark)

	out := resolveScripted(t, m, false, dark[0])

	if out.Foul != "opponent_coin" {
		t.Errorf("foul = %q, want opponent_coin", out.Foul)
	}
	if !out.TurnChanged || out.CurrentPlayer != 2 {
		t.Errorf("turn should pass to player 2, got changed=%v player=%d", out.TurnChanged, out.CurrentPlayer)
	}
	// Nobody is credited for an opponent-coin capture
	if out.Scores[0] != 0 || out.Scores[1] != 0 {
		t.Errorf("scores = %v, want all zero", out.Scores)
	}
	// The coin stays pocketed; only the queen is ever returned
	if d := m.Board().DiscByID(dark[0]); !d.Captured {
		t.Error("opponent coin should remain captured")
	}
}

func TestStrikerFoulDominatesOtherCaptures(t *testing.T) {
	m := newTestMatch(t, 2)
	light := coinIDsOfKind(m.Board(), RegularLight)

	out := resolveScripted(t, m, true, light[0])

	if out.Foul != "striker_pocketed" {
		t.Errorf("foul = %q, want striker_pocketed", out.Foul)
	}
	if !out.TurnChanged || out.CurrentPlayer != 2 {
		t.Errorf("striker foul must pass the turn, got changed=%v player=%d", out.TurnChanged, out.CurrentPlayer)
	}
	// The own-color capture still scores; only turn and foul handling are
	// dominated by the striker drop.
	if out.Scores[0] != 1 {
		t.Errorf("player 1 score = %d, want 1", out.Scores[0])
	}
	if fc := m.State().FoulCount; fc != 0 {
		t.Errorf("foul counter = %d, want 0 for the incoming player", fc)
	}
	// Striker comes back on the new shooter's baseline
	striker := m.Board().Striker
	if striker.Captured {
		t.Error("striker should be respotted after resolution")
	}
	if want := m.Board().BaselineCenter(2); !striker.Position.IsEqualTo(want) {
		t.Errorf("striker respotted at %+v, want %+v", striker.Position, want)
	}
}

func TestCaptureFreeShotPassesTurn(t *testing.T) {
	m := newTestMatch(t, 2)

	out := resolveScripted(t, m, false)

	if out.Foul != "" {
		t.Errorf("single miss is not a named foul, got %q", out.Foul)
	}
	if !out.TurnChanged || out.CurrentPlayer != 2 {
		t.Errorf("miss should pass the turn, got changed=%v player=%d", out.TurnChanged, out.CurrentPlayer)
	}
	// The provisional increment survives the miss
	if fc := m.State().FoulCount; fc != 1 {
		t.Errorf("foul counter = %d, want 1", fc)
	}
}

func TestThreeConsecutiveMissesEscalate(t *testing.T) {
	m := newTestMatch(t, 2)

	first := resolveScripted(t, m, false)
	second := resolveScripted(t, m, false)
	third := resolveScripted(t, m, false)

	if first.Foul != "" || second.Foul != "" {
		t.Errorf("early misses should not escalate: %q, %q", first.Foul, second.Foul)
	}
	if third.Foul != "three_fouls" {
		t.Errorf("third consecutive miss foul = %q, want three_fouls", third.Foul)
	}
	if !third.TurnChanged {
		t.Error("three-foul escalation must switch the turn")
	}
	if fc := m.State().FoulCount; fc != 0 {
		t.Errorf("foul counter = %d, want 0 after escalation", fc)
	}
}

func TestCaptureResetsFoulAccumulation(t *testing.T) {
	m := newTestMatch(t, 2)
	dark := coinIDsOfKind(m.Board(), RegularDark)

	resolveScripted(t, m, false)          // miss, counter 1
	resolveScripted(t, m, false, dark[0]) // player 2 pockets own dark coin, counter 0
	resolveScripted(t, m, false)          // miss, counter 1
	out := resolveScripted(t, m, false)   // miss, counter 2: no escalation

	if out.Foul != "" {
		t.Errorf("counter should have reset on the capture, got foul %q", out.Foul)
	}
	if fc := m.State().FoulCount; fc != 2 {
		t.Errorf("foul counter = %d, want 2", fc)
	}
}

func TestQueenAloneSetsPendingCoverAndPassesTurn(t *testing.T) {
	m := newTestMatch(t, 2)

	out := resolveScripted(t, m, false, QueenID)

	st := m.State()
	if !st.QueenPocketed || !st.PendingQueenCover {
		t.Errorf("queen flags = pocketed:%v pending:%v, want both true", st.QueenPocketed, st.PendingQueenCover)
	}
	if st.QueenCovered {
		t.Error("queen cannot be covered yet")
	}
	if out.QueenReturned {
		t.Error("queen must stay pocketed until the cover chance is spent")
	}
	if m.Board().QueenOnBoard() {
		t.Error("queen disc should be off the board")
	}
	if !out.TurnChanged || out.CurrentPlayer != 2 {
		t.Errorf("queen-only shot passes the turn, got changed=%v player=%d", out.TurnChanged, out.CurrentPlayer)
	}
	if fc := st.FoulCount; fc != 0 {
		t.Errorf("foul counter = %d, want 0 (queen capture is not a foul)", fc)
	}
}

func TestQueenCoveredInSameShotAwardsBonus(t *testing.T) {
	m := newTestMatch(t, 2)
	light := coinIDsOfKind(m.Board(), RegularLight)

	// Capture order matters: queen first, own coin after
	out := resolveScripted(t, m, false, QueenID, light[0])

	if out.Scores[0] != 1+QueenCoverPoints {
		t.Errorf("player 1 score = %d, want %d", out.Scores[0], 1+QueenCoverPoints)
	}
	st := m.State()
	if !st.QueenCovered || st.PendingQueenCover {
		t.Errorf("cover flags = covered:%v pending:%v", st.QueenCovered, st.PendingQueenCover)
	}
	if out.TurnChanged {
		t.Error("covering shot retains the turn")
	}
}

func TestUncoveredQueenReturnsExactlyOnce(t *testing.T) {
	m := newTestMatch(t, 2)
	center := NewVec2(SurfaceSize/2, SurfaceSize/2)

	// Shot N: queen pocketed, nothing else
	first := resolveScripted(t, m, false, QueenID)
	if !first.TurnChanged {
		t.Fatal("queen-only shot should pass the turn")
	}

	// Shot N+1: no captures
	second := resolveScripted(t, m, false)

	if !second.QueenReturned {
		t.Error("uncovered queen should return on the follow-up miss")
	}
	if !m.Board().QueenOnBoard() {
		t.Error("queen should be back on the board")
	}
	if q := m.Board().DiscByID(QueenID); !q.Position.IsEqualTo(center) {
		t.Errorf("queen returned to %+v, want center %+v", q.Position, center)
	}
	st := m.State()
	if st.PendingQueenCover {
		t.Error("pending-queen-cover should be cleared by the return")
	}
	if !second.TurnChanged || second.CurrentPlayer != 1 {
		t.Errorf("turn should have switched twice in total, player = %d", second.CurrentPlayer)
	}

	// A further miss must not return the queen again
	third := resolveScripted(t, m, false)
	if third.QueenReturned {
		t.Error("queen returned a second time")
	}
}

func TestCoverChanceSurvivesTurnPass(t *testing.T) {
	m := newTestMatch(t, 2)
	dark := coinIDsOfKind(m.Board(), RegularDark)

	resolveScripted(t, m, false, QueenID) // player 1 pockets the queen, turn passes

	// Player 2 pockets an own-color coin while the cover is still open
	out := resolveScripted(t, m, false, dark[0])

	if out.Scores[1] != 1+QueenCoverPoints {
		t.Errorf("player 2 score = %d, want %d", out.Scores[1], 1+QueenCoverPoints)
	}
	st := m.State()
	if !st.QueenCovered || st.PendingQueenCover {
		t.Errorf("cover flags = covered:%v pending:%v", st.QueenCovered, st.PendingQueenCover)
	}
	if m.Board().QueenOnBoard() {
		t.Error("covered queen stays off the board")
	}
}

func TestUncoveredQueenReturnsOnStrikerFoul(t *testing.T) {
	m := newTestMatch(t, 2)

	resolveScripted(t, m, false, QueenID) // pending cover
	out := resolveScripted(t, m, true)    // striker dropped on the follow-up

	if out.Foul != "striker_pocketed" {
		t.Errorf("foul = %q, want striker_pocketed", out.Foul)
	}
	if !out.QueenReturned || !m.Board().QueenOnBoard() {
		t.Error("striker foul should still return the uncovered queen")
	}
}

func TestClearingOwnColorWinsForThatSide(t *testing.T) {
	m := newTestMatch(t, 2)
	light := coinIDsOfKind(m.Board(), RegularLight)

	out := resolveScripted(t, m, false, light...)

	if out.Winner != 1 {
		t.Errorf("winner = %d, want side 1 (light cleared)", out.Winner)
	}
	if m.Phase() != GameOver {
		t.Errorf("phase = %s, want %s", m.Phase(), GameOver)
	}
	if out.StrikerRespotted {
		t.Error("no striker respot once the game is over")
	}
	// Terminal: releasing another shot must fail
	if err := m.BeginShot(0, 0.5); !errors.Is(err, ErrInvalidShotParameters) {
		t.Errorf("shot after game over: err = %v, want ErrInvalidShotParameters", err)
	}
}

func TestClearingOpponentColorHandsThemTheWin(t *testing.T) {
	m := newTestMatch(t, 2)
	dark := coinIDsOfKind(m.Board(), RegularDark)

	// Player 1 pockets every dark coin: fouls aside, the dark side's
	// color is cleared, so side 2 wins regardless of who shot.
	out := resolveScripted(t, m, false, dark...)

	if out.Winner != 2 {
		t.Errorf("winner = %d, want side 2 (dark cleared)", out.Winner)
	}
	if m.Winner() != 2 {
		t.Errorf("match winner = %d, want 2", m.Winner())
	}
}

func TestFourPlayerTurnRotation(t *testing.T) {
	m := newTestMatch(t, 4)

	want := []int{2, 3, 4, 1}
	for i, w := range want {
		out := resolveScripted(t, m, false)
		if out.CurrentPlayer != w {
			t.Fatalf("after miss %d current player = %d, want %d", i+1, out.CurrentPlayer, w)
		}
	}
}

func TestFourPlayerSeatColors(t *testing.T) {
	for seat, want := range map[int]DiscKind{1: RegularLight, 2: RegularDark, 3: RegularLight, 4: RegularDark} {
		if got := ColorForSeat(seat); got != want {
			t.Errorf("seat %d color = %s, want %s", seat, got, want)
		}
	}
	if SideForSeat(3) != 1 || SideForSeat(4) != 2 {
		t.Error("seats 3 and 4 should map to sides 1 and 2")
	}
}

func TestBeginShotRejectsBadParameters(t *testing.T) {
	m := newTestMatch(t, 2)

	cases := []struct {
		name  string
		angle float64
		power float64
	}{
		{"zero power", 0, 0},
		{"negative power", 0, -0.25},
		{"power above one", 0, 1.5},
		{"nan angle", math.NaN(), 0.5},
		{"inf power", 0, math.Inf(1)},
	}
	for _, tc := range cases {
		if err := m.BeginShot(tc.angle, tc.power); !errors.Is(err, ErrInvalidShotParameters) {
			t.Errorf("%s: err = %v, want ErrInvalidShotParameters", tc.name, err)
		}
	}

	// Rejected releases leave the machine untouched
	st := m.State()
	if st.Phase != AwaitingShot || st.FoulCount != 0 || st.CurrentPlayer != 1 {
		t.Errorf("state mutated by rejected shots: %+v", st)
	}
}
