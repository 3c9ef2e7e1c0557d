package game

import (
	"sort"
	"time"

	"github.com/coder/quartz"

	"github.com/lox/homegame/internal/deck"
)

// Snapshot is the serializable image of a table, complete enough to resume a
// hand mid-street. Wall-clock turn timing restarts on restore.
type Snapshot struct {
	Config        Config         `json:"config"`
	DealerSeat    int            `json:"dealer_seat"`
	HandNumber    int            `json:"hand_number"`
	Stage         Stage          `json:"stage"`
	Community     []deck.Card    `json:"community,omitempty"`
	Players       []*Player      `json:"players"`
	Contributions map[string]int `json:"contributions,omitempty"`
	HandOrder     []string       `json:"hand_order,omitempty"`
	Round         *RoundSnapshot `json:"round,omitempty"`
	Deck          []deck.Card    `json:"deck,omitempty"`
	SavedAt       time.Time      `json:"saved_at"`
}

// RoundSnapshot is the serializable image of a betting round.
type RoundSnapshot struct {
	ActionIdx     int      `json:"action_idx"`
	CurrentBet    int      `json:"current_bet"`
	MinRaise      int      `json:"min_raise"`
	LastAggressor string   `json:"last_aggressor,omitempty"`
	BigBlind      int      `json:"big_blind"`
	Acted         []string `json:"acted,omitempty"`
}

// Snapshot captures the table's full state.
func (t *Table) Snapshot() *Snapshot {
	s := &Snapshot{
		Config:        t.Config,
		DealerSeat:    t.DealerSeat,
		HandNumber:    t.HandNumber,
		Stage:         t.stage,
		Community:     t.Community(),
		Players:       t.Players(),
		Contributions: t.pot.Contributions(),
		SavedAt:       t.clock.Now(),
	}

	if t.HandInProgress() {
		s.Deck = t.deck.Cards()
		for _, p := range t.handOrder {
			s.HandOrder = append(s.HandOrder, p.UserID)
		}
	}

	if t.round != nil {
		acted := make([]string, 0, len(t.round.acted))
		for id := range t.round.acted {
			acted = append(acted, id)
		}
		sort.Strings(acted)
		s.Round = &RoundSnapshot{
			ActionIdx:     t.round.ActionIdx,
			CurrentBet:    t.round.CurrentBet,
			MinRaise:      t.round.MinRaise,
			LastAggressor: t.round.LastAggressor,
			BigBlind:      t.round.BigBlind,
			Acted:         acted,
		}
	}

	return s
}

// RestoreTable rebuilds a table from a snapshot. The turn clock restarts at
// restore time so a resumed actor gets a fresh turn window.
func RestoreTable(s *Snapshot, clock quartz.Clock, opts ...Option) *Table {
	t := NewTable(s.Config, clock, opts...)
	t.DealerSeat = s.DealerSeat
	t.HandNumber = s.HandNumber
	t.stage = s.Stage
	t.community = append([]deck.Card(nil), s.Community...)

	for _, p := range s.Players {
		t.seats[p.Seat] = p
		t.byID[p.UserID] = p
	}
	for id, amount := range s.Contributions {
		t.pot.Add(id, amount)
	}
	if len(s.Deck) > 0 {
		t.deck = deck.FromCards(s.Deck)
	}
	for _, id := range s.HandOrder {
		if p, ok := t.byID[id]; ok {
			t.handOrder = append(t.handOrder, p)
		}
	}

	if s.Round != nil {
		acted := make(map[string]bool, len(s.Round.Acted))
		for _, id := range s.Round.Acted {
			acted[id] = true
		}
		t.round = &Round{
			Order:         t.handOrder,
			ActionIdx:     s.Round.ActionIdx,
			CurrentBet:    s.Round.CurrentBet,
			MinRaise:      s.Round.MinRaise,
			LastAggressor: s.Round.LastAggressor,
			BigBlind:      s.Round.BigBlind,
			acted:         acted,
		}
		t.startTurnClock()
	}

	return t
}
