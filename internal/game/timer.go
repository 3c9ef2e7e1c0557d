package game

import (
	"time"
)

// startTurnClock arms the turn timer for the player coming on turn.
func (t *Table) startTurnClock() {
	actor := t.CurrentActor()
	if actor == nil {
		return
	}
	t.turnStarted = t.clock.Now()
	t.turnBankStart = actor.TimeBank
}

func (t *Table) clearTurnClock() {
	t.turnStarted = time.Time{}
	t.turnBankStart = 0
}

// TurnTimer describes the current actor's clock for snapshots.
type TurnTimer struct {
	Remaining float64
	UsingBank bool
	Bank      float64
}

// TurnTimerState reports the clock for the player on turn. ok is false when
// nobody is on turn.
func (t *Table) TurnTimerState(now time.Time) (TurnTimer, bool) {
	actor := t.CurrentActor()
	if actor == nil || t.turnStarted.IsZero() {
		return TurnTimer{}, false
	}

	elapsed := now.Sub(t.turnStarted).Seconds()
	if elapsed <= t.TurnTime {
		return TurnTimer{Remaining: t.TurnTime - elapsed, Bank: actor.TimeBank}, true
	}

	bankLeft := max(t.turnBankStart-(elapsed-t.TurnTime), 0)
	return TurnTimer{Remaining: bankLeft, UsingBank: true, Bank: bankLeft}, true
}

// TickTimeout drains the turn clock for the player on turn. Past the turn
// time the player's time bank funds the overage second by second; once both
// are exhausted the engine applies check if legal, else fold. Returns true
// when an auto-action was applied.
func (t *Table) TickTimeout(now time.Time) bool {
	actor := t.CurrentActor()
	if actor == nil || t.turnStarted.IsZero() {
		return false
	}

	elapsed := now.Sub(t.turnStarted).Seconds()
	if elapsed <= t.TurnTime {
		return false
	}

	over := elapsed - t.TurnTime
	if over < t.turnBankStart {
		actor.TimeBank = t.turnBankStart - over
		return false
	}
	actor.TimeBank = 0

	kind := ActionFold
	if actor.Wager == t.round.CurrentBet {
		kind = ActionCheck
	}
	if _, err := t.round.Apply(actor, Action{Kind: kind}); err != nil {
		return false
	}
	t.emit(PlayerActionEvent{UserID: actor.UserID, Action: kind, Pot: t.PotTotal(), Timeout: true})
	t.afterAction()
	return true
}
