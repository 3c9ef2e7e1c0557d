package server

import (
	"time"

	"github.com/lox/homegame/internal/deck"
	"github.com/lox/homegame/internal/game"
)

// GameStateData is the per-viewer table snapshot. Hole cards appear only
// in YourCards; other seats carry just a has_cards flag.
type GameStateData struct {
	TableID       string      `json:"table_id"`
	Name          string      `json:"name"`
	Stage         game.Stage  `json:"stage"`
	HandNumber    int         `json:"hand_number"`
	DealerSeat    int         `json:"dealer_seat"`
	SmallBlind    int         `json:"small_blind"`
	BigBlind      int         `json:"big_blind"`
	Pot           int         `json:"pot"`
	Community     []deck.Card `json:"community,omitempty"`
	Players       []SeatView  `json:"players"`
	CurrentActor  string      `json:"current_actor,omitempty"`
	TurnTime      float64     `json:"turn_time_seconds,omitempty"`
	TimeRemaining float64     `json:"time_remaining,omitempty"`
	UsingTimeBank bool        `json:"using_time_bank,omitempty"`

	YourSeat     int                `json:"your_seat"`
	YourCards    []deck.Card        `json:"your_cards,omitempty"`
	ValidActions []game.ValidAction `json:"valid_actions,omitempty"`
}

// SeatView is one seat as any viewer may see it.
type SeatView struct {
	UserID       string  `json:"user_id"`
	Username     string  `json:"username"`
	Seat         int     `json:"seat"`
	Chips        int     `json:"chips"`
	Wager        int     `json:"wager,omitempty"`
	HasCards     bool    `json:"has_cards"`
	Folded       bool    `json:"folded,omitempty"`
	AllIn        bool    `json:"all_in,omitempty"`
	SittingOut   bool    `json:"sitting_out,omitempty"`
	Disconnected bool    `json:"disconnected,omitempty"`
	TimeBank     float64 `json:"time_bank"`
}

// TableView renders the table for one viewer. An empty viewerID produces
// the spectator view. Caller holds the table lock.
func TableView(t *game.Table, viewerID string, now time.Time) GameStateData {
	view := GameStateData{
		TableID:    t.ID,
		Name:       t.Name,
		Stage:      t.Stage(),
		HandNumber: t.HandNumber,
		DealerSeat: t.DealerSeat,
		SmallBlind: t.SmallBlind,
		BigBlind:   t.BigBlind,
		Pot:        t.PotTotal(),
		Community:  t.Community(),
		YourSeat:   -1,
	}

	for _, p := range t.Players() {
		view.Players = append(view.Players, SeatView{
			UserID:       p.UserID,
			Username:     p.Username,
			Seat:         p.Seat,
			Chips:        p.Chips,
			Wager:        p.Wager,
			HasCards:     len(p.HoleCards) > 0 && !p.Folded,
			Folded:       p.Folded,
			AllIn:        p.AllIn,
			SittingOut:   p.SittingOut,
			Disconnected: p.Disconnected,
			TimeBank:     p.TimeBank,
		})
	}

	if actor := t.CurrentActor(); actor != nil {
		view.CurrentActor = actor.UserID
		view.TurnTime = t.TurnTime
		if timer, ok := t.TurnTimerState(now); ok {
			view.TimeRemaining = timer.Remaining
			view.UsingTimeBank = timer.UsingBank
		}
	}

	if viewerID == "" {
		return view
	}
	if p := t.Player(viewerID); p != nil {
		view.YourSeat = p.Seat
		view.YourCards = append([]deck.Card(nil), p.HoleCards...)
	}
	view.ValidActions = t.ValidActions(viewerID)
	return view
}
