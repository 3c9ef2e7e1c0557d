package game

import (
	"github.com/lox/homegame/internal/deck"
)

// MaxTimeBank caps how many reserve seconds a player can accumulate.
const MaxTimeBank = 120.0

// Player is a seated player's per-table state. All mutation happens under the
// table owner; Player itself is not safe for concurrent use.
type Player struct {
	UserID       string      `json:"user_id"`
	Username     string      `json:"username"`
	Seat         int         `json:"seat"`
	Chips        int         `json:"chips"`
	HoleCards    []deck.Card `json:"hole_cards,omitempty"`
	Folded       bool        `json:"folded"`
	AllIn        bool        `json:"all_in"`
	Wager        int         `json:"wager"`
	SittingOut   bool        `json:"sitting_out"`
	Disconnected bool        `json:"disconnected"`
	TimeBank     float64     `json:"time_bank"`
}

// NewPlayer seats a player with a starting stack and time bank.
func NewPlayer(userID, username string, seat, chips int, timeBank float64) *Player {
	return &Player{
		UserID:   userID,
		Username: username,
		Seat:     seat,
		Chips:    chips,
		TimeBank: timeBank,
	}
}

// ResetForHand clears per-hand state and replenishes the time bank (capped).
func (p *Player) ResetForHand(timeBankReplenish float64) {
	p.HoleCards = nil
	p.Folded = false
	p.AllIn = false
	p.Wager = 0
	if timeBankReplenish > 0 {
		p.TimeBank = min(p.TimeBank+timeBankReplenish, MaxTimeBank)
	}
}

// Bet moves up to amount chips from the stack into the player's street wager,
// going all-in when the stack is exhausted. Returns the chips actually moved.
func (p *Player) Bet(amount int) int {
	actual := min(amount, p.Chips)
	p.Chips -= actual
	p.Wager += actual
	if p.Chips == 0 {
		p.AllIn = true
	}
	return actual
}

// UseTimeBank drains up to seconds from the bank, returning the amount drained.
func (p *Player) UseTimeBank(seconds float64) float64 {
	used := min(seconds, p.TimeBank)
	p.TimeBank -= used
	return used
}

// InHand reports whether the player holds live cards this hand.
func (p *Player) InHand() bool {
	return len(p.HoleCards) > 0 && !p.Folded && !p.SittingOut
}

// CanAct reports whether the player may still take betting actions.
func (p *Player) CanAct() bool {
	return p.InHand() && !p.AllIn
}
