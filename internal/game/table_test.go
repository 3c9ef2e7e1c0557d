package game

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/lox/homegame/internal/deck"
	"github.com/lox/homegame/internal/randutil"
)

func testConfig() Config {
	return Config{
		ID:                "t1",
		Name:              "test",
		SmallBlind:        1,
		BigBlind:          2,
		MinPlayers:        2,
		MaxPlayers:        6,
		TurnTime:          30,
		TimeBank:          60,
		TimeBankReplenish: 10,
	}
}

func drainEvents(tbl *Table) []Event {
	var events []Event
	for {
		select {
		case e := <-tbl.Events():
			events = append(events, e)
		default:
			return events
		}
	}
}

func lastHandResult(t *testing.T, events []Event) HandResultEvent {
	t.Helper()
	for i := len(events) - 1; i >= 0; i-- {
		if hr, ok := events[i].(HandResultEvent); ok {
			return hr
		}
	}
	t.Fatal("no hand_result event emitted")
	return HandResultEvent{}
}

func mustAdd(t *testing.T, tbl *Table, userID string, seat, chips int) *Player {
	t.Helper()
	p, err := tbl.AddPlayer(userID, userID, seat, chips)
	if err != nil {
		t.Fatalf("AddPlayer(%s): %v", userID, err)
	}
	return p
}

func mustApply(t *testing.T, tbl *Table, userID string, a Action) {
	t.Helper()
	if err := tbl.Apply(userID, a); err != nil {
		t.Fatalf("Apply(%s, %v): %v", userID, a.Kind, err)
	}
}

func TestSeatManagement(t *testing.T) {
	t.Parallel()

	tbl := NewTable(testConfig(), quartz.NewMock(t))
	mustAdd(t, tbl, "alice", 0, 100)

	if _, err := tbl.AddPlayer("bob", "bob", 0, 100); !errors.Is(err, ErrSeatTaken) {
		t.Errorf("occupied seat: got %v, want ErrSeatTaken", err)
	}
	if _, err := tbl.AddPlayer("bob", "bob", 9, 100); !errors.Is(err, ErrInvalidSeat) {
		t.Errorf("out of range seat: got %v, want ErrInvalidSeat", err)
	}
	if _, err := tbl.AddPlayer("alice", "alice", 1, 100); !errors.Is(err, ErrAlreadySeated) {
		t.Errorf("double seat: got %v, want ErrAlreadySeated", err)
	}

	if err := tbl.MoveSeat("alice", 3); err != nil {
		t.Fatalf("MoveSeat: %v", err)
	}
	if tbl.PlayerAtSeat(0) != nil || tbl.PlayerAtSeat(3) == nil {
		t.Error("MoveSeat did not relocate the player")
	}
}

func TestHeadsUpPreflopFold(t *testing.T) {
	t.Parallel()

	tbl := NewTable(testConfig(), quartz.NewMock(t), WithDeck(deck.NewWithRand(randutil.New(1))))
	mustAdd(t, tbl, "u0", 0, 100)
	mustAdd(t, tbl, "u1", 1, 100)
	tbl.DealerSeat = 0

	if err := tbl.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	if tbl.DealerSeat != 1 {
		t.Fatalf("DealerSeat = %d, want 1", tbl.DealerSeat)
	}

	// Heads-up the dealer posts the small blind and acts first.
	sb, bb := tbl.Player("u1"), tbl.Player("u0")
	if sb.Wager != 1 || bb.Wager != 2 {
		t.Fatalf("blinds = %d/%d, want 1/2", sb.Wager, bb.Wager)
	}
	if actor := tbl.CurrentActor(); actor == nil || actor.UserID != "u1" {
		t.Fatalf("first actor = %v, want u1", actor)
	}

	mustApply(t, tbl, "u1", Action{Kind: ActionFold})

	if got := tbl.Player("u0").Chips; got != 101 {
		t.Errorf("u0 chips = %d, want 101", got)
	}
	if got := tbl.Player("u1").Chips; got != 99 {
		t.Errorf("u1 chips = %d, want 99", got)
	}
	if tbl.Stage() != StageWaiting {
		t.Errorf("stage = %v, want waiting", tbl.Stage())
	}

	result := lastHandResult(t, drainEvents(tbl))
	if len(result.Winners) != 1 || result.Winners[0].UserID != "u0" || result.Winners[0].Amount != 3 {
		t.Errorf("winners = %+v, want u0 +3", result.Winners)
	}
}

func TestHandCompleteStageObservable(t *testing.T) {
	t.Parallel()

	tbl := NewTable(testConfig(), quartz.NewMock(t), WithDeck(deck.NewWithRand(randutil.New(11))))
	mustAdd(t, tbl, "u0", 0, 100)
	mustAdd(t, tbl, "u1", 1, 100)
	tbl.DealerSeat = 0

	if err := tbl.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	mustApply(t, tbl, "u1", Action{Kind: ActionFold})

	// The stream shows hand_complete before the table returns to waiting.
	var stages []Stage
	for _, e := range drainEvents(tbl) {
		if sc, ok := e.(StateChangedEvent); ok {
			stages = append(stages, sc.Stage)
		}
	}
	completeAt := -1
	for i, s := range stages {
		if s == StageHandComplete {
			completeAt = i
		}
	}
	if completeAt == -1 {
		t.Fatalf("stages = %v, no hand_complete observed", stages)
	}
	if completeAt == len(stages)-1 || stages[completeAt+1] != StageWaiting {
		t.Errorf("stages = %v, want waiting right after hand_complete", stages)
	}
	if tbl.Stage() != StageWaiting {
		t.Errorf("stage = %v, want waiting", tbl.Stage())
	}
}

func TestMoveSeatRejectedMidHand(t *testing.T) {
	t.Parallel()

	tbl := NewTable(testConfig(), quartz.NewMock(t), WithDeck(deck.NewWithRand(randutil.New(12))))
	mustAdd(t, tbl, "u0", 0, 100)
	mustAdd(t, tbl, "u1", 1, 100)
	tbl.DealerSeat = 0

	if err := tbl.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	if err := tbl.MoveSeat("u0", 3); !errors.Is(err, ErrIllegalAction) {
		t.Errorf("mid-hand move: got %v, want ErrIllegalAction", err)
	}

	mustApply(t, tbl, "u1", Action{Kind: ActionFold})
	if err := tbl.MoveSeat("u0", 3); err != nil {
		t.Fatalf("MoveSeat between hands: %v", err)
	}
	if err := tbl.MoveSeat("u0", 1); !errors.Is(err, ErrSeatTaken) {
		t.Errorf("occupied target: got %v, want ErrSeatTaken", err)
	}
	if err := tbl.MoveSeat("ghost", 2); !errors.Is(err, ErrNotSeated) {
		t.Errorf("unknown player: got %v, want ErrNotSeated", err)
	}
}

func TestThreeWayLimpToFlop(t *testing.T) {
	t.Parallel()

	tbl := NewTable(testConfig(), quartz.NewMock(t), WithDeck(deck.NewWithRand(randutil.New(2))))
	mustAdd(t, tbl, "u0", 0, 100)
	mustAdd(t, tbl, "u1", 1, 100)
	mustAdd(t, tbl, "u2", 2, 100)
	tbl.DealerSeat = 0

	if err := tbl.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	if tbl.DealerSeat != 1 {
		t.Fatalf("DealerSeat = %d, want 1", tbl.DealerSeat)
	}

	// SB=u2, BB=u0, UTG=u1.
	mustApply(t, tbl, "u1", Action{Kind: ActionCall})
	mustApply(t, tbl, "u2", Action{Kind: ActionCall})
	mustApply(t, tbl, "u0", Action{Kind: ActionCheck})

	if tbl.Stage() != StageFlop {
		t.Fatalf("stage = %v, want flop", tbl.Stage())
	}
	if got := tbl.PotTotal(); got != 6 {
		t.Errorf("pot = %d, want 6", got)
	}
	for _, p := range tbl.Players() {
		if p.Wager != 0 {
			t.Errorf("%s wager = %d, want 0 after street", p.UserID, p.Wager)
		}
	}
	if len(tbl.Community()) != 3 {
		t.Errorf("community = %d cards, want 3", len(tbl.Community()))
	}
}

func riggedCards(t *testing.T, s string) []deck.Card {
	t.Helper()
	cards, err := deck.ParseAll(s)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	return cards
}

func TestAllInSidePotsSettlement(t *testing.T) {
	t.Parallel()

	// Deal order is A, B, C then burn/flop/burn/turn/burn/river. Aces for
	// the short stack, kings for the mid stack.
	rig := riggedCards(t, "Ah Ad Kh Kd Qh Qd 2c 3c 7s 8d 4c 9h 5c 2s")

	tbl := NewTable(testConfig(), quartz.NewMock(t), WithRiggedDeck(rig))
	mustAdd(t, tbl, "a", 0, 30)
	mustAdd(t, tbl, "b", 1, 60)
	mustAdd(t, tbl, "c", 2, 100)
	tbl.DealerSeat = 1

	if err := tbl.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	// Dealer advanced to seat 2: SB=a, BB=b, UTG=c.
	mustApply(t, tbl, "c", Action{Kind: ActionCall})
	mustApply(t, tbl, "a", Action{Kind: ActionAllIn})
	mustApply(t, tbl, "b", Action{Kind: ActionAllIn})
	mustApply(t, tbl, "c", Action{Kind: ActionCall})

	// Main pot 90 to a's aces, side pot 60 to b's kings.
	if got := tbl.Player("a").Chips; got != 90 {
		t.Errorf("a chips = %d, want 90", got)
	}
	if got := tbl.Player("b").Chips; got != 60 {
		t.Errorf("b chips = %d, want 60", got)
	}
	if got := tbl.Player("c").Chips; got != 40 {
		t.Errorf("c chips = %d, want 40", got)
	}

	result := lastHandResult(t, drainEvents(tbl))
	if len(result.Winners) != 2 {
		t.Fatalf("winners = %+v, want a and b", result.Winners)
	}
	if result.Revealed["a"] == nil || result.Revealed["b"] == nil {
		t.Error("pot winners should reveal their hands")
	}
	if result.Revealed["c"] != nil {
		t.Error("losing hand should stay hidden")
	}
}

func TestChipConservationAcrossHand(t *testing.T) {
	t.Parallel()

	tbl := NewTable(testConfig(), quartz.NewMock(t), WithDeck(deck.NewWithRand(randutil.New(7))))
	mustAdd(t, tbl, "u0", 0, 100)
	mustAdd(t, tbl, "u1", 1, 100)
	tbl.DealerSeat = 0

	if err := tbl.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}

	// Both players call/check to showdown.
	for tbl.Stage() != StageWaiting {
		actor := tbl.CurrentActor()
		if actor == nil {
			t.Fatalf("no actor in stage %v", tbl.Stage())
		}
		kind := ActionCheck
		if tbl.Round().CurrentBet > actor.Wager {
			kind = ActionCall
		}
		mustApply(t, tbl, actor.UserID, Action{Kind: kind})
	}

	total := 0
	for _, p := range tbl.Players() {
		total += p.Chips
	}
	if total != 200 {
		t.Errorf("total chips = %d, want 200", total)
	}

	// Exactly one hand result, and no actions after it.
	events := drainEvents(tbl)
	sawResult := false
	for _, e := range events {
		switch e.(type) {
		case HandResultEvent:
			if sawResult {
				t.Error("duplicate hand_result")
			}
			sawResult = true
		case PlayerActionEvent:
			if sawResult {
				t.Error("player_action observed after hand_result")
			}
		}
	}
	if !sawResult {
		t.Error("no hand_result emitted")
	}
}

func TestRemovePlayerMidHandFoldsAndKeepsWager(t *testing.T) {
	t.Parallel()

	tbl := NewTable(testConfig(), quartz.NewMock(t), WithDeck(deck.NewWithRand(randutil.New(3))))
	mustAdd(t, tbl, "u0", 0, 100)
	mustAdd(t, tbl, "u1", 1, 100)
	mustAdd(t, tbl, "u2", 2, 100)
	tbl.DealerSeat = 0

	if err := tbl.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}

	// BB u0 leaves mid-hand; their blind stays in the pot.
	removed, err := tbl.RemovePlayer("u0")
	if err != nil {
		t.Fatalf("RemovePlayer: %v", err)
	}
	if removed.Chips != 98 {
		t.Errorf("removed chips = %d, want 98", removed.Chips)
	}
	if tbl.Player("u0") != nil {
		t.Error("player still seated after removal")
	}

	mustApply(t, tbl, "u1", Action{Kind: ActionFold})

	// u2 wins SB(1) + BB(2) + nothing else = 3.
	if got := tbl.Player("u2").Chips; got != 102 {
		t.Errorf("u2 chips = %d, want 102", got)
	}
}

func TestNotYourTurnRejected(t *testing.T) {
	t.Parallel()

	tbl := NewTable(testConfig(), quartz.NewMock(t), WithDeck(deck.NewWithRand(randutil.New(4))))
	mustAdd(t, tbl, "u0", 0, 100)
	mustAdd(t, tbl, "u1", 1, 100)
	mustAdd(t, tbl, "u2", 2, 100)
	tbl.DealerSeat = 0

	if err := tbl.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}

	// UTG is u1; u2 may not act.
	if err := tbl.Apply("u2", Action{Kind: ActionFold}); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("out of turn action: got %v, want ErrNotYourTurn", err)
	}
	if err := tbl.Apply("ghost", Action{Kind: ActionFold}); !errors.Is(err, ErrNotSeated) {
		t.Errorf("unseated action: got %v, want ErrNotSeated", err)
	}
}

func TestTimeoutAutoCheck(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.TimeBank = 0
	mock := quartz.NewMock(t)

	tbl := NewTable(cfg, mock, WithDeck(deck.NewWithRand(randutil.New(5))))
	mustAdd(t, tbl, "u0", 0, 100)
	mustAdd(t, tbl, "u1", 1, 100)
	tbl.DealerSeat = 0

	if err := tbl.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	mustApply(t, tbl, "u1", Action{Kind: ActionCall})
	mustApply(t, tbl, "u0", Action{Kind: ActionCheck})
	if tbl.Stage() != StageFlop {
		t.Fatalf("stage = %v, want flop", tbl.Stage())
	}
	drainEvents(tbl)

	// Nothing to call, so the timeout applies a check.
	mock.Advance(31 * time.Second)
	if !tbl.TickTimeout(mock.Now()) {
		t.Fatal("expected timeout auto-action")
	}

	events := drainEvents(tbl)
	found := false
	for _, e := range events {
		if pa, ok := e.(PlayerActionEvent); ok && pa.Timeout {
			found = true
			if pa.Action != ActionCheck {
				t.Errorf("auto action = %v, want check", pa.Action)
			}
		}
	}
	if !found {
		t.Error("no timeout action event emitted")
	}
}

func TestTimeBankFundsOverage(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.TimeBank = 10
	cfg.TimeBankReplenish = 0
	mock := quartz.NewMock(t)

	tbl := NewTable(cfg, mock, WithDeck(deck.NewWithRand(randutil.New(6))))
	mustAdd(t, tbl, "u0", 0, 100)
	mustAdd(t, tbl, "u1", 1, 100)
	tbl.DealerSeat = 0

	if err := tbl.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	actor := tbl.CurrentActor()

	// 5 seconds past the turn time: bank drains but no auto-action yet.
	mock.Advance(35 * time.Second)
	if tbl.TickTimeout(mock.Now()) {
		t.Fatal("auto-action fired while time bank had seconds left")
	}
	if got := actor.TimeBank; got != 5 {
		t.Errorf("TimeBank = %v, want 5", got)
	}
	timer, ok := tbl.TurnTimerState(mock.Now())
	if !ok || !timer.UsingBank {
		t.Errorf("timer = %+v, want using bank", timer)
	}

	// Bank exhausted: facing the big blind, the auto-action is a fold.
	mock.Advance(6 * time.Second)
	if !tbl.TickTimeout(mock.Now()) {
		t.Fatal("expected auto-action after bank exhausted")
	}
	if !actor.Folded {
		t.Error("actor should have been auto-folded")
	}
	if actor.TimeBank != 0 {
		t.Errorf("TimeBank = %v, want 0", actor.TimeBank)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	mock := quartz.NewMock(t)
	tbl := NewTable(testConfig(), mock, WithDeck(deck.NewWithRand(randutil.New(8))))
	mustAdd(t, tbl, "u0", 0, 100)
	mustAdd(t, tbl, "u1", 1, 100)
	mustAdd(t, tbl, "u2", 2, 100)
	tbl.DealerSeat = 0

	if err := tbl.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	mustApply(t, tbl, "u1", Action{Kind: ActionRaise, Amount: 6})
	mustApply(t, tbl, "u2", Action{Kind: ActionCall})

	snap := tbl.Snapshot()
	snap.SavedAt = time.Time{}
	first, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored := RestoreTable(snap, mock)
	again := restored.Snapshot()
	again.SavedAt = time.Time{}
	second, err := json.Marshal(again)
	if err != nil {
		t.Fatalf("marshal restored: %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("snapshot round trip diverged:\n%s\n%s", first, second)
	}

	// The restored table keeps playing: BB still has the option to act.
	if actor := restored.CurrentActor(); actor == nil || actor.UserID != "u0" {
		t.Fatalf("restored actor = %v, want u0", actor)
	}
	if err := restored.Apply("u0", Action{Kind: ActionCall}); err != nil {
		t.Fatalf("Apply on restored table: %v", err)
	}
}

func TestCannotStartConditions(t *testing.T) {
	t.Parallel()

	tbl := NewTable(testConfig(), quartz.NewMock(t), WithDeck(deck.NewWithRand(randutil.New(9))))
	mustAdd(t, tbl, "u0", 0, 100)

	if err := tbl.StartHand(); !errors.Is(err, ErrCannotStart) {
		t.Errorf("one player: got %v, want ErrCannotStart", err)
	}

	// A seated player with no chips does not count.
	mustAdd(t, tbl, "u1", 1, 0)
	if tbl.CanStart() {
		t.Error("CanStart with a bust player should be false")
	}

	mustAdd(t, tbl, "u2", 2, 100)
	if err := tbl.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	if err := tbl.StartHand(); !errors.Is(err, ErrCannotStart) {
		t.Errorf("mid-hand start: got %v, want ErrCannotStart", err)
	}
}

func TestTimeBankReplenishesCapped(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.TimeBank = 115
	cfg.TimeBankReplenish = 10
	tbl := NewTable(cfg, quartz.NewMock(t), WithDeck(deck.NewWithRand(randutil.New(10))))
	mustAdd(t, tbl, "u0", 0, 100)
	mustAdd(t, tbl, "u1", 1, 100)
	tbl.DealerSeat = 0

	if err := tbl.StartHand(); err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	if got := tbl.Player("u0").TimeBank; got != MaxTimeBank {
		t.Errorf("TimeBank = %v, want capped at %v", got, MaxTimeBank)
	}
}
