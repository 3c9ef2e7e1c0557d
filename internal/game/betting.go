package game

import (
	"fmt"
)

// ActionKind identifies a betting action on the wire and in events.
type ActionKind string

const (
	ActionFold  ActionKind = "fold"
	ActionCheck ActionKind = "check"
	ActionCall  ActionKind = "call"
	ActionBet   ActionKind = "bet"
	ActionRaise ActionKind = "raise"
	ActionAllIn ActionKind = "all_in"
)

// Action is a player's declared move. Amount is the target total wager for
// bet/raise and ignored otherwise.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Amount int        `json:"amount,omitempty"`
}

// ValidAction describes one legal action with its amount bounds. For call,
// Min/Max is the amount of chips to put in; for bet/raise they bound the
// target total wager.
type ValidAction struct {
	Kind ActionKind `json:"kind"`
	Min  int        `json:"min,omitempty"`
	Max  int        `json:"max,omitempty"`
}

// Round holds one street's betting state. Order is the action ring in seat
// order starting from the first seat left of the dealer; it includes players
// who later fold or go all-in so positional scans stay stable.
type Round struct {
	Order         []*Player `json:"-"`
	ActionIdx     int       `json:"action_idx"`
	CurrentBet    int       `json:"current_bet"`
	MinRaise      int       `json:"min_raise"`
	LastAggressor string    `json:"last_aggressor,omitempty"`
	BigBlind      int       `json:"big_blind"`

	// acted tracks who has voluntarily acted since the last full raise
	// (blind posts do not count). A full raise resets it; an incomplete
	// all-in does not, which is what keeps action from reopening.
	acted map[string]bool
}

// NewRound opens a post-flop style round with no bet outstanding. firstIdx is
// advanced to the first player able to act.
func NewRound(order []*Player, bigBlind, firstIdx int) *Round {
	r := &Round{
		Order:      order,
		CurrentBet: 0,
		MinRaise:   bigBlind,
		BigBlind:   bigBlind,
		acted:      make(map[string]bool),
	}
	r.ActionIdx = r.nextAbleFrom(firstIdx)
	return r
}

// NewPreflopRound opens the preflop round after blinds are posted. The big
// blind poster is the standing aggressor so they keep their option.
func NewPreflopRound(order []*Player, bigBlind, firstIdx int, bbUserID string) *Round {
	r := &Round{
		Order:         order,
		CurrentBet:    bigBlind,
		MinRaise:      bigBlind,
		BigBlind:      bigBlind,
		LastAggressor: bbUserID,
		acted:         make(map[string]bool),
	}
	r.ActionIdx = r.nextAbleFrom(firstIdx)
	return r
}

// Current returns the player on turn, or nil when the round is complete.
func (r *Round) Current() *Player {
	if r.ActionIdx < 0 || r.ActionIdx >= len(r.Order) {
		return nil
	}
	return r.Order[r.ActionIdx]
}

// ValidActions derives the legal actions for a player from round state alone.
func (r *Round) ValidActions(p *Player) []ValidAction {
	if !p.CanAct() {
		return nil
	}

	actions := []ValidAction{{Kind: ActionFold}}

	if p.Wager == r.CurrentBet {
		actions = append(actions, ValidAction{Kind: ActionCheck})
	}
	if r.CurrentBet > p.Wager {
		amount := min(r.CurrentBet-p.Wager, p.Chips)
		actions = append(actions, ValidAction{Kind: ActionCall, Min: amount, Max: amount})
	}
	if r.CurrentBet == 0 && p.Chips >= r.BigBlind {
		actions = append(actions, ValidAction{Kind: ActionBet, Min: r.BigBlind, Max: p.Wager + p.Chips})
	}
	if r.CurrentBet > 0 && p.Wager+p.Chips >= r.CurrentBet+r.MinRaise {
		actions = append(actions, ValidAction{
			Kind: ActionRaise,
			Min:  r.CurrentBet + r.MinRaise,
			Max:  p.Wager + p.Chips,
		})
	}
	if p.Chips > 0 {
		actions = append(actions, ValidAction{Kind: ActionAllIn, Min: p.Chips, Max: p.Chips})
	}

	return actions
}

// Apply validates and applies an action for the player on turn, returning the
// chips moved into the wager. Round and player state are only mutated when
// the action is legal.
func (r *Round) Apply(p *Player, a Action) (int, error) {
	switch a.Kind {
	case ActionFold:
		p.Folded = true
		r.acted[p.UserID] = true
		return 0, nil

	case ActionCheck:
		if p.Wager != r.CurrentBet {
			return 0, fmt.Errorf("%w: cannot check facing a bet of %d", ErrIllegalAction, r.CurrentBet)
		}
		r.acted[p.UserID] = true
		return 0, nil

	case ActionCall:
		if r.CurrentBet <= p.Wager {
			return 0, fmt.Errorf("%w: nothing to call", ErrIllegalAction)
		}
		moved := p.Bet(r.CurrentBet - p.Wager)
		r.acted[p.UserID] = true
		return moved, nil

	case ActionBet:
		if r.CurrentBet != 0 {
			return 0, fmt.Errorf("%w: bet not allowed facing a bet, raise instead", ErrIllegalAction)
		}
		if a.Amount < r.BigBlind {
			return 0, fmt.Errorf("%w: bet %d below minimum %d", ErrIllegalAction, a.Amount, r.BigBlind)
		}
		delta := a.Amount - p.Wager
		if delta <= 0 || delta > p.Chips {
			return 0, fmt.Errorf("%w: bet %d exceeds stack", ErrIllegalAction, a.Amount)
		}
		moved := p.Bet(delta)
		r.MinRaise = a.Amount
		r.CurrentBet = a.Amount
		r.LastAggressor = p.UserID
		r.acted = map[string]bool{p.UserID: true}
		return moved, nil

	case ActionRaise:
		if r.CurrentBet == 0 {
			return 0, fmt.Errorf("%w: no bet to raise", ErrIllegalAction)
		}
		if a.Amount < r.CurrentBet+r.MinRaise {
			return 0, fmt.Errorf("%w: raise to %d below minimum %d", ErrIllegalAction, a.Amount, r.CurrentBet+r.MinRaise)
		}
		delta := a.Amount - p.Wager
		if delta <= 0 || delta > p.Chips {
			return 0, fmt.Errorf("%w: raise to %d exceeds stack", ErrIllegalAction, a.Amount)
		}
		moved := p.Bet(delta)
		r.MinRaise = a.Amount - r.CurrentBet
		r.CurrentBet = a.Amount
		r.LastAggressor = p.UserID
		r.acted = map[string]bool{p.UserID: true}
		return moved, nil

	case ActionAllIn:
		if p.Chips == 0 {
			return 0, fmt.Errorf("%w: no chips to move all-in", ErrIllegalAction)
		}
		target := p.Wager + p.Chips
		moved := p.Bet(p.Chips)
		if target > r.CurrentBet {
			raisedBy := target - r.CurrentBet
			if raisedBy >= r.MinRaise {
				// Full raise, action reopens.
				r.MinRaise = raisedBy
				r.acted = map[string]bool{p.UserID: true}
			} else {
				// Incomplete all-in: the bet to match goes up but players
				// who already matched the prior bet are not reopened.
				r.acted[p.UserID] = true
			}
			r.CurrentBet = target
			r.LastAggressor = p.UserID
		} else {
			r.acted[p.UserID] = true
		}
		return moved, nil

	default:
		return 0, fmt.Errorf("%w: unknown action %q", ErrIllegalAction, a.Kind)
	}
}

// IsComplete reports whether the street's betting is finished: one player
// left, everyone remaining all-in, or all wagers matched with every able
// player having acted since the last full raise.
func (r *Round) IsComplete() bool {
	unfolded, able := 0, 0
	for _, p := range r.Order {
		if p.InHand() {
			unfolded++
			if p.CanAct() {
				able++
			}
		}
	}
	if unfolded <= 1 {
		return true
	}
	if able == 0 {
		return true
	}

	for _, p := range r.Order {
		if p.InHand() && !p.AllIn && p.Wager != r.CurrentBet {
			return false
		}
	}
	for _, p := range r.Order {
		if p.CanAct() && !r.acted[p.UserID] {
			return false
		}
	}
	return true
}

// Advance moves the turn to the next player able to act. Callers check
// IsComplete first; Advance on a complete round parks the turn at -1.
func (r *Round) Advance() {
	if r.IsComplete() {
		r.ActionIdx = -1
		return
	}
	r.ActionIdx = r.nextAbleFrom(r.ActionIdx + 1)
}

// nextAbleFrom scans the ring starting at idx for a player able to act.
func (r *Round) nextAbleFrom(idx int) int {
	n := len(r.Order)
	for i := 0; i < n; i++ {
		j := (idx + i) % n
		if r.Order[j].CanAct() {
			return j
		}
	}
	return -1
}
