package game

import (
	"github.com/lox/homegame/internal/deck"
)

// EventType identifies a table event.
type EventType string

const (
	EventTypeHandStarted  EventType = "hand_started"
	EventTypeStateChanged EventType = "state_changed"
	EventTypePlayerAction EventType = "player_action"
	EventTypeHandResult   EventType = "hand_result"
)

// Event is an externally observable table transition. The hub consumes the
// table's event channel and turns events into per-viewer messages; emission
// order is the order clients observe.
type Event interface {
	EventType() EventType
}

// HandStartedEvent fires when a new hand begins.
type HandStartedEvent struct {
	HandNumber int `json:"hand_number"`
	DealerSeat int `json:"dealer_seat"`
	SmallBlind int `json:"small_blind"`
	BigBlind   int `json:"big_blind"`
}

func (HandStartedEvent) EventType() EventType { return EventTypeHandStarted }

// StateChangedEvent fires on stage advances and community card deals.
type StateChangedEvent struct {
	Stage     Stage       `json:"stage"`
	Community []deck.Card `json:"community"`
	Pot       int         `json:"pot"`
}

func (StateChangedEvent) EventType() EventType { return EventTypeStateChanged }

// PlayerActionEvent fires for every applied action, including auto-actions
// taken on timeout.
type PlayerActionEvent struct {
	UserID  string     `json:"user_id"`
	Action  ActionKind `json:"action"`
	Amount  int        `json:"amount"`
	Pot     int        `json:"pot"`
	Timeout bool       `json:"timeout,omitempty"`
}

func (PlayerActionEvent) EventType() EventType { return EventTypePlayerAction }

// Winner records one player's share of a settled hand.
type Winner struct {
	UserID   string `json:"user_id"`
	Amount   int    `json:"amount"`
	HandRank string `json:"hand_rank,omitempty"`
}

// HandResultEvent fires once per hand when the pot is awarded. Revealed maps
// user id to hole cards for hands shown at showdown.
type HandResultEvent struct {
	HandNumber int                    `json:"hand_number"`
	Winners    []Winner               `json:"winners"`
	Community  []deck.Card            `json:"community"`
	Revealed   map[string][]deck.Card `json:"revealed,omitempty"`
	PotTotal   int                    `json:"pot_total"`
}

func (HandResultEvent) EventType() EventType { return EventTypeHandResult }
