// Package session tracks disconnected players. A disconnect leaves a
// tombstone holding the player's seat for a grace window; a reconnect
// inside the window reclaims it atomically, and expired tombstones are
// swept so the hub can fold the absentee out.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/homegame/internal/state"
)

const (
	tombstonePrefix = "tombstone:"
	bindingPrefix   = "session:"
	bindingSuffix   = ":table"
)

// Tombstone records a disconnected player's claim on a seat.
type Tombstone struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	TableID  string    `json:"table_id"`
	Seat     int       `json:"seat"`
	Deadline time.Time `json:"deadline"`
}

// Store manages tombstones and seat bindings over the shared KV. The
// mutex makes save/reconnect/sweep atomic with respect to each other.
type Store struct {
	mu     sync.Mutex
	kv     state.KV
	clock  quartz.Clock
	grace  time.Duration
	logger *log.Logger
}

// NewStore creates a session store with the given reconnect grace window.
func NewStore(kv state.KV, clock quartz.Clock, grace time.Duration, logger *log.Logger) *Store {
	return &Store{kv: kv, clock: clock, grace: grace, logger: logger}
}

// Save records a disconnect, starting the player's grace window.
func (s *Store) Save(userID, username, tableID string, seat int) Tombstone {
	s.mu.Lock()
	defer s.mu.Unlock()

	tomb := Tombstone{
		UserID:   userID,
		Username: username,
		TableID:  tableID,
		Seat:     seat,
		Deadline: s.clock.Now().Add(s.grace),
	}
	data, err := json.Marshal(tomb)
	if err != nil {
		s.logger.Error("encoding tombstone", "user", userID, "error", err)
		return tomb
	}
	s.kv.Set(tombstonePrefix+userID, data)
	return tomb
}

// TryReconnect claims the user's tombstone if its grace window is still
// open. The tombstone is consumed either way; an expired one reports false.
func (s *Store) TryReconnect(userID string) (Tombstone, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.kv.Get(tombstonePrefix + userID)
	if !ok {
		return Tombstone{}, false
	}
	s.kv.Delete(tombstonePrefix + userID)

	var tomb Tombstone
	if err := json.Unmarshal(data, &tomb); err != nil {
		s.logger.Error("decoding tombstone", "user", userID, "error", err)
		return Tombstone{}, false
	}
	if s.clock.Now().After(tomb.Deadline) {
		return Tombstone{}, false
	}
	return tomb, true
}

// Sweep removes and returns every tombstone whose grace window has closed.
func (s *Store) Sweep() []Tombstone {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var expired []Tombstone
	for _, key := range s.kv.Keys(tombstonePrefix) {
		data, ok := s.kv.Get(key)
		if !ok {
			continue
		}
		var tomb Tombstone
		if err := json.Unmarshal(data, &tomb); err != nil {
			s.kv.Delete(key)
			continue
		}
		if now.After(tomb.Deadline) {
			s.kv.Delete(key)
			expired = append(expired, tomb)
		}
	}
	return expired
}

// Drop discards a user's tombstone without reclaiming it, for players who
// stand up or are removed while disconnected.
func (s *Store) Drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv.Delete(tombstonePrefix + userID)
}

// BindSeat records which table a user is seated at.
func (s *Store) BindSeat(userID, tableID string) {
	s.kv.Set(bindingPrefix+userID+bindingSuffix, []byte(tableID))
}

// SeatBinding returns the table a user is bound to, if any.
func (s *Store) SeatBinding(userID string) (string, bool) {
	data, ok := s.kv.Get(bindingPrefix + userID + bindingSuffix)
	if !ok {
		return "", false
	}
	return string(data), true
}

// Unbind clears a user's seat binding.
func (s *Store) Unbind(userID string) {
	s.kv.Delete(bindingPrefix + userID + bindingSuffix)
}
