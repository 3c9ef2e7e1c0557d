package state

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/lox/homegame/internal/game"
)

const tableKeyPrefix = "table:"

// Backup is the durable layer behind the GameStore, implemented by the
// sqlite store. A nil Backup leaves the GameStore purely in-memory.
type Backup interface {
	SaveTableState(tableID string, data []byte) error
	LoadTableState(tableID string) ([]byte, error)
	DeleteTableState(tableID string) error
	ListTableStates() (map[string][]byte, error)
}

// GameStore persists table snapshots: reads hit the KV first and fall
// through to the backup, writes go to the KV and write-behind to the
// backup. A failed backup write never fails the save.
type GameStore struct {
	kv     KV
	backup Backup
	logger *log.Logger
}

// NewGameStore wires a snapshot store over kv with an optional backup.
func NewGameStore(kv KV, backup Backup, logger *log.Logger) *GameStore {
	return &GameStore{kv: kv, backup: backup, logger: logger}
}

// SaveTable stores a table snapshot.
func (s *GameStore) SaveTable(snap *game.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot for table %s: %w", snap.Config.ID, err)
	}
	s.kv.Set(tableKeyPrefix+snap.Config.ID, data)

	if s.backup != nil {
		if err := s.backup.SaveTableState(snap.Config.ID, data); err != nil {
			s.logger.Warn("table state backup failed", "table", snap.Config.ID, "error", err)
		}
	}
	return nil
}

// LoadTable fetches a table snapshot, reading through to the backup when
// the KV has no entry. Returns nil when the table is unknown.
func (s *GameStore) LoadTable(tableID string) (*game.Snapshot, error) {
	data, ok := s.kv.Get(tableKeyPrefix + tableID)
	if !ok {
		if s.backup == nil {
			return nil, nil
		}
		backed, err := s.backup.LoadTableState(tableID)
		if err != nil {
			return nil, fmt.Errorf("loading table %s from backup: %w", tableID, err)
		}
		if backed == nil {
			return nil, nil
		}
		s.kv.Set(tableKeyPrefix+tableID, backed)
		data = backed
	}

	var snap game.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot for table %s: %w", tableID, err)
	}
	return &snap, nil
}

// DeleteTable drops a table snapshot from both layers.
func (s *GameStore) DeleteTable(tableID string) {
	s.kv.Delete(tableKeyPrefix + tableID)
	if s.backup != nil {
		if err := s.backup.DeleteTableState(tableID); err != nil {
			s.logger.Warn("table state delete failed", "table", tableID, "error", err)
		}
	}
}

// TableIDs lists tables known to the KV layer.
func (s *GameStore) TableIDs() []string {
	keys := s.kv.Keys(tableKeyPrefix)
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, tableKeyPrefix))
	}
	return ids
}

// RestoreAll loads every snapshot the backup holds, priming the KV. Used
// once at boot to bring tables back after a restart.
func (s *GameStore) RestoreAll() ([]*game.Snapshot, error) {
	if s.backup == nil {
		return nil, nil
	}
	states, err := s.backup.ListTableStates()
	if err != nil {
		return nil, fmt.Errorf("listing table states: %w", err)
	}

	snaps := make([]*game.Snapshot, 0, len(states))
	for id, data := range states {
		var snap game.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			s.logger.Warn("skipping corrupt table state", "table", id, "error", err)
			continue
		}
		s.kv.Set(tableKeyPrefix+id, data)
		snaps = append(snaps, &snap)
	}
	return snaps, nil
}
