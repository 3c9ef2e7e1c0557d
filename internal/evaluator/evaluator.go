// Package evaluator ranks Texas Hold'em hands. Evaluation takes the best
// five-card hand from the five to seven cards available to a player and
// produces a category plus a tiebreak vector; two hands compare equal iff
// both are equal.
package evaluator

import (
	"fmt"
	"sort"

	"github.com/lox/homegame/internal/deck"
)

// Category orders hand classes from weakest to strongest.
type Category int

const (
	HighCard Category = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

// String returns a display name for the category.
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	case RoyalFlush:
		return "Royal Flush"
	default:
		return "Unknown"
	}
}

// HandResult is the value of a player's best five-card hand.
type HandResult struct {
	Category  Category    `json:"category"`
	Tiebreaks []int       `json:"tiebreaks"`
	Cards     []deck.Card `json:"cards"`
}

// Evaluate returns the best five-card hand from 5-7 cards (hole cards plus
// board). It enumerates every five-card subset and keeps the strongest.
func Evaluate(cards []deck.Card) (HandResult, error) {
	if len(cards) < 5 || len(cards) > 7 {
		return HandResult{}, fmt.Errorf("evaluator: need 5-7 cards, got %d", len(cards))
	}

	var best HandResult
	first := true
	combo := make([]deck.Card, 5)

	var recurse func(start, depth int)
	recurse = func(start, depth int) {
		if depth == 5 {
			result := evaluateFive(combo)
			if first || Compare(result, best) > 0 {
				best = result
				first = false
			}
			return
		}
		for i := start; i <= len(cards)-(5-depth); i++ {
			combo[depth] = cards[i]
			recurse(i+1, depth+1)
		}
	}
	recurse(0, 0)

	return best, nil
}

// Compare orders two hand results: >0 if a beats b, <0 if b beats a, 0 on a
// true chop. Comparison is lexicographic over (category, tiebreaks).
func Compare(a, b HandResult) int {
	if a.Category != b.Category {
		return int(a.Category) - int(b.Category)
	}
	for i := 0; i < len(a.Tiebreaks) && i < len(b.Tiebreaks); i++ {
		if a.Tiebreaks[i] != b.Tiebreaks[i] {
			return a.Tiebreaks[i] - b.Tiebreaks[i]
		}
	}
	return len(a.Tiebreaks) - len(b.Tiebreaks)
}

// TieGroups partitions contenders into ordered groups: group 0 holds the best
// hand(s), ties grouped together. Within a group ids are sorted for
// deterministic output.
func TieGroups(hands map[string]HandResult) [][]string {
	ids := make([]string, 0, len(hands))
	for id := range hands {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		c := Compare(hands[ids[i]], hands[ids[j]])
		if c != 0 {
			return c > 0
		}
		return ids[i] < ids[j]
	})

	var groups [][]string
	for _, id := range ids {
		if len(groups) > 0 {
			prev := groups[len(groups)-1][0]
			if Compare(hands[prev], hands[id]) == 0 {
				groups[len(groups)-1] = append(groups[len(groups)-1], id)
				continue
			}
		}
		groups = append(groups, []string{id})
	}
	return groups
}

// evaluateFive values exactly five cards.
func evaluateFive(cards []deck.Card) HandResult {
	ranks := make([]int, 5)
	for i, c := range cards {
		ranks[i] = int(c.Rank)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ranks)))

	flush := true
	for _, c := range cards[1:] {
		if c.Suit != cards[0].Suit {
			flush = false
			break
		}
	}

	straightHigh, straight := straightHighCard(ranks)

	counts := make(map[int]int, 5)
	for _, r := range ranks {
		counts[r]++
	}

	// Group ranks by multiplicity, higher counts first, then higher ranks.
	type group struct{ rank, count int }
	groups := make([]group, 0, len(counts))
	for r, n := range counts {
		groups = append(groups, group{rank: r, count: n})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].rank > groups[j].rank
	})

	out := HandResult{Cards: append([]deck.Card(nil), cards...)}

	switch {
	case straight && flush && straightHigh == int(deck.Ace):
		out.Category = RoyalFlush
		out.Tiebreaks = []int{straightHigh}
	case straight && flush:
		out.Category = StraightFlush
		out.Tiebreaks = []int{straightHigh}
	case groups[0].count == 4:
		out.Category = FourOfAKind
		out.Tiebreaks = []int{groups[0].rank, groups[1].rank}
	case groups[0].count == 3 && groups[1].count == 2:
		out.Category = FullHouse
		out.Tiebreaks = []int{groups[0].rank, groups[1].rank}
	case flush:
		out.Category = Flush
		out.Tiebreaks = ranks
	case straight:
		out.Category = Straight
		out.Tiebreaks = []int{straightHigh}
	case groups[0].count == 3:
		out.Category = ThreeOfAKind
		out.Tiebreaks = []int{groups[0].rank, groups[1].rank, groups[2].rank}
	case groups[0].count == 2 && groups[1].count == 2:
		out.Category = TwoPair
		out.Tiebreaks = []int{groups[0].rank, groups[1].rank, groups[2].rank}
	case groups[0].count == 2:
		out.Category = Pair
		out.Tiebreaks = []int{groups[0].rank, groups[1].rank, groups[2].rank, groups[3].rank}
	default:
		out.Category = HighCard
		out.Tiebreaks = ranks
	}

	return out
}

// straightHighCard reports whether the descending-sorted distinct ranks form
// a straight and its high card. The wheel A-2-3-4-5 counts with high card 5.
func straightHighCard(sorted []int) (int, bool) {
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return 0, false
		}
	}

	if sorted[0]-sorted[4] == 4 {
		return sorted[0], true
	}

	// Wheel: A 5 4 3 2 sorts to [14 5 4 3 2].
	if sorted[0] == int(deck.Ace) && sorted[1] == 5 && sorted[4] == 2 && sorted[1]-sorted[4] == 3 {
		return 5, true
	}

	return 0, false
}
