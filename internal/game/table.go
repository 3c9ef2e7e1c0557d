// Package game implements the authoritative hold'em table engine: seats,
// blinds, betting rounds, stage transitions, side-pot settlement and turn
// timing. A Table is a single-writer domain; the hub serializes all calls.
package game

import (
	"fmt"
	"sort"
	"time"

	"github.com/coder/quartz"

	"github.com/lox/homegame/internal/deck"
	"github.com/lox/homegame/internal/evaluator"
)

// Stage is the table's position in the hand lifecycle.
type Stage string

const (
	StageWaiting      Stage = "waiting"
	StageStarting     Stage = "starting"
	StagePreflop      Stage = "preflop"
	StageFlop         Stage = "flop"
	StageTurn         Stage = "turn"
	StageRiver        Stage = "river"
	StageShowdown     Stage = "showdown"
	StageHandComplete Stage = "hand_complete"
)

// Config holds a table's fixed parameters.
type Config struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	SmallBlind        int     `json:"small_blind"`
	BigBlind          int     `json:"big_blind"`
	MinPlayers        int     `json:"min_players"`
	MaxPlayers        int     `json:"max_players"`
	MinBuyIn          int     `json:"min_buy_in"`
	MaxBuyIn          int     `json:"max_buy_in"`
	TurnTime          float64 `json:"turn_time_seconds"`
	TimeBank          float64 `json:"time_bank_seconds"`
	TimeBankReplenish float64 `json:"time_bank_replenish"`
}

// Table owns one table's complete state. Not safe for concurrent use; the
// hub holds a per-table lock around every call.
type Table struct {
	Config

	DealerSeat int
	HandNumber int

	seats     map[int]*Player
	byID      map[string]*Player
	community []deck.Card
	pot       *Pot
	deck      *deck.Deck
	stage     Stage
	round     *Round
	handOrder []*Player

	clock         quartz.Clock
	turnStarted   time.Time
	turnBankStart float64

	rigged []deck.Card

	events chan Event
}

// Option customizes table construction.
type Option func(*Table)

// WithDeck injects a deck, letting tests seed the shuffle.
func WithDeck(d *deck.Deck) Option {
	return func(t *Table) { t.deck = d }
}

// WithRiggedDeck fixes the exact deal order for every hand: two cards per
// player in action order, then burn-flop-burn-turn-burn-river. Test use only.
func WithRiggedDeck(cards []deck.Card) Option {
	return func(t *Table) { t.rigged = cards }
}

// NewTable creates an empty table in the waiting stage.
func NewTable(cfg Config, clock quartz.Clock, opts ...Option) *Table {
	t := &Table{
		Config:     cfg,
		DealerSeat: -1,
		seats:      make(map[int]*Player),
		byID:       make(map[string]*Player),
		pot:        NewPot(),
		deck:       deck.New(),
		stage:      StageWaiting,
		clock:      clock,
		events:     make(chan Event, 256),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Events is the table's ordered event stream.
func (t *Table) Events() <-chan Event { return t.events }

func (t *Table) emit(e Event) { t.events <- e }

// Stage returns the current lifecycle stage.
func (t *Table) Stage() Stage { return t.stage }

// Community returns a copy of the board.
func (t *Table) Community() []deck.Card {
	return append([]deck.Card(nil), t.community...)
}

// Round returns the active betting round, nil between streets and hands.
func (t *Table) Round() *Round { return t.round }

// Player looks up a seated player by user id.
func (t *Table) Player(userID string) *Player { return t.byID[userID] }

// PlayerAtSeat looks up a player by seat index.
func (t *Table) PlayerAtSeat(seat int) *Player { return t.seats[seat] }

// Players returns seated players in ascending seat order.
func (t *Table) Players() []*Player {
	players := make([]*Player, 0, len(t.seats))
	for _, p := range t.seats {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Seat < players[j].Seat })
	return players
}

// PotTotal is the collected pot plus uncollected street wagers, the number
// clients see as "the pot".
func (t *Table) PotTotal() int {
	total := t.pot.Total()
	for _, p := range t.seats {
		total += p.Wager
	}
	return total
}

// AddPlayer seats a user. Seat must be free and in range.
func (t *Table) AddPlayer(userID, username string, seat, chips int) (*Player, error) {
	if _, ok := t.byID[userID]; ok {
		return nil, ErrAlreadySeated
	}
	if seat < 0 || seat >= t.MaxPlayers {
		return nil, fmt.Errorf("%w: seat %d out of range", ErrInvalidSeat, seat)
	}
	if _, ok := t.seats[seat]; ok {
		return nil, ErrSeatTaken
	}
	if len(t.seats) >= t.MaxPlayers {
		return nil, ErrTableFull
	}

	p := NewPlayer(userID, username, seat, chips, t.TimeBank)
	t.seats[seat] = p
	t.byID[userID] = p
	return p, nil
}

// MoveSeat relocates an already-seated player to a free seat. Only legal
// between hands.
func (t *Table) MoveSeat(userID string, seat int) error {
	p, ok := t.byID[userID]
	if !ok {
		return ErrNotSeated
	}
	if t.HandInProgress() {
		return fmt.Errorf("%w: cannot change seats mid-hand", ErrIllegalAction)
	}
	if seat < 0 || seat >= t.MaxPlayers {
		return fmt.Errorf("%w: seat %d out of range", ErrInvalidSeat, seat)
	}
	if _, occupied := t.seats[seat]; occupied {
		return ErrSeatTaken
	}
	delete(t.seats, p.Seat)
	p.Seat = seat
	t.seats[seat] = p
	return nil
}

// RemovePlayer unseats a user, folding them first if they hold live cards.
// Returns the removed player so callers can settle their stack.
func (t *Table) RemovePlayer(userID string) (*Player, error) {
	p, ok := t.byID[userID]
	if !ok {
		return nil, ErrNotSeated
	}

	if t.HandInProgress() && p.InHand() {
		t.foldOut(p)
	}

	// Any uncollected wager belongs to the pot, not the departing stack.
	if p.Wager > 0 {
		t.pot.Add(p.UserID, p.Wager)
		p.Wager = 0
	}

	delete(t.seats, p.Seat)
	delete(t.byID, userID)
	return p, nil
}

// foldOut applies a forced fold for a player leaving or timing out of a hand.
func (t *Table) foldOut(p *Player) {
	if t.round != nil && t.round.Current() == p {
		_, _ = t.round.Apply(p, Action{Kind: ActionFold})
		t.emit(PlayerActionEvent{UserID: p.UserID, Action: ActionFold, Pot: t.PotTotal()})
		t.afterAction()
		return
	}

	p.Folded = true
	t.emit(PlayerActionEvent{UserID: p.UserID, Action: ActionFold, Pot: t.PotTotal()})
	if t.round != nil {
		if t.unfoldedCount() <= 1 {
			t.finishUncontested()
		} else if t.round.IsComplete() {
			t.advanceStage()
		}
	}
}

// HandInProgress reports whether a hand is being played.
func (t *Table) HandInProgress() bool {
	switch t.stage {
	case StageStarting, StagePreflop, StageFlop, StageTurn, StageRiver, StageShowdown:
		return true
	default:
		return false
	}
}

// CanStart reports whether a new hand may begin.
func (t *Table) CanStart() bool {
	return t.stage == StageWaiting && len(t.eligiblePlayers()) >= t.MinPlayers
}

// eligiblePlayers returns players able to be dealt in, seat order.
func (t *Table) eligiblePlayers() []*Player {
	var eligible []*Player
	for _, p := range t.Players() {
		if p.Chips > 0 && !p.SittingOut {
			eligible = append(eligible, p)
		}
	}
	return eligible
}

// StartHand advances the dealer, posts blinds, deals hole cards and opens
// preflop betting.
func (t *Table) StartHand() error {
	if t.stage != StageWaiting {
		return fmt.Errorf("%w: hand in progress", ErrCannotStart)
	}
	eligible := t.eligiblePlayers()
	if len(eligible) < t.MinPlayers {
		return fmt.Errorf("%w: need %d players with chips, have %d", ErrCannotStart, t.MinPlayers, len(eligible))
	}

	t.stage = StageStarting
	t.HandNumber++
	t.DealerSeat = t.nextDealerSeat(eligible)

	if t.rigged != nil {
		t.deck = deck.FromCards(t.rigged)
	} else {
		t.deck.Reset()
		t.deck.Shuffle()
	}
	t.pot.Reset()
	t.community = nil
	for _, p := range t.Players() {
		replenish := 0.0
		if p.Chips > 0 && !p.SittingOut {
			replenish = t.TimeBankReplenish
		}
		p.ResetForHand(replenish)
	}

	// Action ring starts one seat after the dealer.
	order := ringFromDealer(eligible, t.DealerSeat)
	t.handOrder = order

	// Heads-up the dealer posts the small blind and acts first preflop.
	var sb, bb *Player
	var firstIdx int
	if len(order) == 2 {
		sb, bb = order[1], order[0]
		firstIdx = 1
	} else {
		sb, bb = order[0], order[1]
		firstIdx = 2
	}
	sb.Bet(t.SmallBlind)
	bb.Bet(t.BigBlind)

	for _, p := range order {
		cards, err := t.deck.DealN(2)
		if err != nil {
			return fmt.Errorf("dealing hole cards: %w", err)
		}
		p.HoleCards = cards
	}

	t.round = NewPreflopRound(order, t.BigBlind, firstIdx, bb.UserID)
	t.stage = StagePreflop

	t.emit(HandStartedEvent{
		HandNumber: t.HandNumber,
		DealerSeat: t.DealerSeat,
		SmallBlind: t.SmallBlind,
		BigBlind:   t.BigBlind,
	})
	t.emit(StateChangedEvent{Stage: t.stage, Community: t.Community(), Pot: t.PotTotal()})

	// Short blinds can leave nobody able to act.
	if t.round.IsComplete() {
		t.advanceStage()
	} else {
		t.startTurnClock()
	}
	return nil
}

// nextDealerSeat picks the next eligible seat strictly greater than the
// current dealer, wrapping.
func (t *Table) nextDealerSeat(eligible []*Player) int {
	for _, p := range eligible {
		if p.Seat > t.DealerSeat {
			return p.Seat
		}
	}
	return eligible[0].Seat
}

// ringFromDealer orders players starting one seat after the dealer.
func ringFromDealer(players []*Player, dealerSeat int) []*Player {
	order := make([]*Player, 0, len(players))
	split := len(players)
	for i, p := range players {
		if p.Seat > dealerSeat {
			split = i
			break
		}
	}
	order = append(order, players[split:]...)
	order = append(order, players[:split]...)
	return order
}

// CurrentActor returns the player on turn, nil outside betting rounds.
func (t *Table) CurrentActor() *Player {
	if t.round == nil {
		return nil
	}
	return t.round.Current()
}

// ValidActions returns the legal actions for a user, empty unless it is
// their turn.
func (t *Table) ValidActions(userID string) []ValidAction {
	actor := t.CurrentActor()
	if actor == nil || actor.UserID != userID {
		return nil
	}
	return t.round.ValidActions(actor)
}

// Apply validates and applies an action from a user.
func (t *Table) Apply(userID string, a Action) error {
	p, ok := t.byID[userID]
	if !ok {
		return ErrNotSeated
	}
	actor := t.CurrentActor()
	if actor == nil || actor != p {
		return ErrNotYourTurn
	}

	moved, err := t.round.Apply(p, a)
	if err != nil {
		return err
	}

	t.emit(PlayerActionEvent{UserID: userID, Action: a.Kind, Amount: moved, Pot: t.PotTotal()})
	t.afterAction()
	return nil
}

// afterAction decides what follows an applied action: uncontested win, stage
// advance, or the next player's turn.
func (t *Table) afterAction() {
	if t.unfoldedCount() <= 1 {
		t.finishUncontested()
		return
	}
	if t.round.IsComplete() {
		t.advanceStage()
		return
	}
	t.round.Advance()
	t.startTurnClock()
}

func (t *Table) unfoldedCount() int {
	n := 0
	for _, p := range t.seats {
		if p.InHand() {
			n++
		}
	}
	return n
}

func (t *Table) ableToActCount() int {
	n := 0
	for _, p := range t.seats {
		if p.CanAct() {
			n++
		}
	}
	return n
}

// collectWagers folds street wagers into the pot at street end.
func (t *Table) collectWagers() {
	for _, p := range t.seats {
		if p.Wager > 0 {
			t.pot.Add(p.UserID, p.Wager)
			p.Wager = 0
		}
	}
}

// advanceStage closes the finished street and either deals the next one,
// runs the board out, or goes to showdown.
func (t *Table) advanceStage() {
	t.collectWagers()
	t.round = nil
	t.clearTurnClock()

	if t.stage == StageRiver {
		t.showdown()
		return
	}

	// With at most one player still able to act there is no more betting;
	// deal the remaining board and show down.
	if t.ableToActCount() <= 1 {
		t.runOut()
		return
	}

	t.dealNextStreet()
	t.round = NewRound(t.handOrder, t.BigBlind, 0)
	t.emit(StateChangedEvent{Stage: t.stage, Community: t.Community(), Pot: t.PotTotal()})
	t.startTurnClock()
}

// dealNextStreet burns and deals the next community cards.
func (t *Table) dealNextStreet() {
	_ = t.deck.Burn()
	switch t.stage {
	case StagePreflop:
		cards, _ := t.deck.DealN(3)
		t.community = append(t.community, cards...)
		t.stage = StageFlop
	case StageFlop:
		card, _ := t.deck.Deal()
		t.community = append(t.community, card)
		t.stage = StageTurn
	case StageTurn:
		card, _ := t.deck.Deal()
		t.community = append(t.community, card)
		t.stage = StageRiver
	}
}

// runOut deals all remaining streets with burns, emitting each, then shows
// down.
func (t *Table) runOut() {
	for t.stage != StageRiver {
		t.dealNextStreet()
		t.emit(StateChangedEvent{Stage: t.stage, Community: t.Community(), Pot: t.PotTotal()})
	}
	t.showdown()
}

// showdown settles the hand: derive side pots, evaluate contenders, credit
// winners and emit the result.
func (t *Table) showdown() {
	t.stage = StageShowdown

	allInTotals := make(map[string]int)
	for _, p := range t.seats {
		if p.AllIn {
			allInTotals[p.UserID] = t.pot.Contribution(p.UserID)
		}
	}
	pots := t.pot.SidePots(allInTotals)

	hands := make(map[string]evaluator.HandResult)
	for _, p := range t.seats {
		if !p.InHand() {
			continue
		}
		cards := append(append([]deck.Card(nil), p.HoleCards...), t.community...)
		result, err := evaluator.Evaluate(cards)
		if err != nil {
			continue
		}
		hands[p.UserID] = result
	}

	ranking := evaluator.TieGroups(hands)
	oddOrder := t.seatOrderFromDealer()
	winnings, potWinners := Distribute(pots, ranking, oddOrder)

	for id, amount := range winnings {
		if p, ok := t.byID[id]; ok {
			p.Chips += amount
		}
	}

	// Only hands that win a pot they contest are revealed.
	revealed := make(map[string][]deck.Card)
	for _, winners := range potWinners {
		for _, id := range winners {
			if p, ok := t.byID[id]; ok && revealed[id] == nil {
				revealed[id] = append([]deck.Card(nil), p.HoleCards...)
			}
		}
	}

	winners := make([]Winner, 0, len(winnings))
	for _, id := range oddOrder {
		amount, ok := winnings[id]
		if !ok {
			continue
		}
		rank := ""
		if hand, ok := hands[id]; ok {
			rank = hand.Category.String()
		}
		winners = append(winners, Winner{UserID: id, Amount: amount, HandRank: rank})
	}

	t.emit(HandResultEvent{
		HandNumber: t.HandNumber,
		Winners:    winners,
		Community:  t.Community(),
		Revealed:   revealed,
		PotTotal:   t.pot.Total(),
	})
	t.finishHand()
}

// finishUncontested awards the pot to the last unfolded player.
func (t *Table) finishUncontested() {
	t.collectWagers()
	t.round = nil
	t.clearTurnClock()

	var winner *Player
	for _, p := range t.seats {
		if p.InHand() {
			winner = p
			break
		}
	}

	total := t.pot.Total()
	var winners []Winner
	if winner != nil {
		winner.Chips += total
		winners = []Winner{{UserID: winner.UserID, Amount: total}}
	}

	t.emit(HandResultEvent{
		HandNumber: t.HandNumber,
		Winners:    winners,
		Community:  t.Community(),
		PotTotal:   total,
	})
	t.finishHand()
}

// finishHand closes out the hand and returns the table to waiting. The
// hand-complete stage is surfaced in the event stream so clients can show
// the result before the next deal.
func (t *Table) finishHand() {
	t.stage = StageHandComplete
	t.round = nil
	t.handOrder = nil
	t.clearTurnClock()
	t.emit(StateChangedEvent{Stage: t.stage, Community: t.Community(), Pot: 0})
	t.stage = StageWaiting
	t.emit(StateChangedEvent{Stage: t.stage, Community: t.Community(), Pot: 0})
}

// seatOrderFromDealer lists seated user ids in ascending seat order starting
// from the first occupied seat left of the dealer. Fixes odd-chip placement.
func (t *Table) seatOrderFromDealer() []string {
	players := t.Players()
	order := make([]string, 0, len(players))
	split := len(players)
	for i, p := range players {
		if p.Seat > t.DealerSeat {
			split = i
			break
		}
	}
	for _, p := range players[split:] {
		order = append(order, p.UserID)
	}
	for _, p := range players[:split] {
		order = append(order, p.UserID)
	}
	return order
}
