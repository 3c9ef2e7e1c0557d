package game

import (
	"sort"
)

// Pot tracks every player's total contribution for the current hand. Street
// wagers are folded in via Collect at the end of each betting round.
type Pot struct {
	contributions map[string]int
}

// NewPot creates an empty pot.
func NewPot() *Pot {
	return &Pot{contributions: make(map[string]int)}
}

// Add credits amount to a player's hand total.
func (p *Pot) Add(userID string, amount int) {
	if amount > 0 {
		p.contributions[userID] += amount
	}
}

// Total returns the sum of all contributions collected so far.
func (p *Pot) Total() int {
	total := 0
	for _, amount := range p.contributions {
		total += amount
	}
	return total
}

// Contribution returns one player's hand total.
func (p *Pot) Contribution(userID string) int {
	return p.contributions[userID]
}

// Contributions returns a copy of the contribution map.
func (p *Pot) Contributions() map[string]int {
	out := make(map[string]int, len(p.contributions))
	for id, amount := range p.contributions {
		out[id] = amount
	}
	return out
}

// Reset clears the pot for a new hand.
func (p *Pot) Reset() {
	p.contributions = make(map[string]int)
}

// SidePot is a slice of the pot contested by a specific set of players.
// Pots are ordered: earlier pots are eligible to a superset of the players
// eligible for later ones.
type SidePot struct {
	Amount   int             `json:"amount"`
	Eligible map[string]bool `json:"eligible"`
}

// SidePots derives the ordered pot list from the contribution map and the
// final totals of all-in players. With no all-ins the result is a single pot
// eligible to every contributor. The sum of all pot amounts always equals the
// sum of contributions.
func (p *Pot) SidePots(allInTotals map[string]int) []SidePot {
	if len(p.contributions) == 0 {
		return nil
	}

	// Distinct all-in levels, ascending.
	levelSet := make(map[int]bool)
	for _, total := range allInTotals {
		if total > 0 {
			levelSet[total] = true
		}
	}
	levels := make([]int, 0, len(levelSet))
	for level := range levelSet {
		levels = append(levels, level)
	}
	sort.Ints(levels)

	var pots []SidePot
	prev := 0
	for _, level := range levels {
		amount := 0
		eligible := make(map[string]bool)
		for id, contrib := range p.contributions {
			slice := min(contrib, level) - prev
			if slice > 0 {
				amount += slice
			}
			if contrib >= level {
				eligible[id] = true
			}
		}
		if amount > 0 {
			pots = append(pots, SidePot{Amount: amount, Eligible: eligible})
		}
		prev = level
	}

	// Residual above the highest all-in level.
	amount := 0
	eligible := make(map[string]bool)
	for id, contrib := range p.contributions {
		if contrib > prev {
			amount += contrib - prev
			eligible[id] = true
		}
	}
	if amount > 0 {
		pots = append(pots, SidePot{Amount: amount, Eligible: eligible})
	}

	return pots
}

// Distribute splits each pot among the best-placed eligible contenders.
// ranking is the ordered tie-group list over showdown contenders (best
// first); oddChipOrder lists contender user ids in ascending seat order
// starting from the first seat left of the dealer, which fixes where
// indivisible chips go. Returns total winnings per user plus the winner set
// of each pot in input order.
func Distribute(pots []SidePot, ranking [][]string, oddChipOrder []string) (map[string]int, [][]string) {
	winnings := make(map[string]int)
	potWinners := make([][]string, len(pots))

	for potIdx, pot := range pots {
		var winners []string
		for _, group := range ranking {
			for _, id := range group {
				if pot.Eligible[id] {
					winners = append(winners, id)
				}
			}
			if len(winners) > 0 {
				break
			}
		}
		if len(winners) == 0 {
			// Every eligible player folded; award to the first eligible
			// contender in seat order. Should not happen with live pots.
			for _, id := range oddChipOrder {
				if pot.Eligible[id] {
					winners = append(winners, id)
					break
				}
			}
			if len(winners) == 0 {
				continue
			}
		}
		potWinners[potIdx] = winners

		share := pot.Amount / len(winners)
		remainder := pot.Amount % len(winners)
		for _, id := range winners {
			winnings[id] += share
		}

		// Odd chips go one each in seat order from the dealer's left.
		isWinner := make(map[string]bool, len(winners))
		for _, id := range winners {
			isWinner[id] = true
		}
		for _, id := range oddChipOrder {
			if remainder == 0 {
				break
			}
			if isWinner[id] {
				winnings[id]++
				remainder--
			}
		}
	}

	return winnings, potWinners
}
