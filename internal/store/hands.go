package store

import (
	"fmt"
	"time"
)

// HandRecord is one completed hand in the history table. Board and
// Winners are stored as JSON strings produced by the hub.
type HandRecord struct {
	ID         int64     `json:"id"`
	TableID    string    `json:"table_id"`
	HandNumber int       `json:"hand_number"`
	Pot        int       `json:"pot"`
	Board      string    `json:"board"`
	Winners    string    `json:"winners"`
	PlayedAt   time.Time `json:"played_at"`
}

// SaveHand appends a hand to the history.
func (s *Store) SaveHand(tableID string, handNumber, pot int, board, winners string) error {
	_, err := s.db.Exec(`
		INSERT INTO hand_history (table_id, hand_number, pot, board, winners)
		VALUES (?, ?, ?, ?, ?)
	`, tableID, handNumber, pot, board, winners)
	if err != nil {
		return fmt.Errorf("saving hand %d for table %s: %w", handNumber, tableID, err)
	}
	return nil
}

// TableHands lists a table's hand history, most recent first.
func (s *Store) TableHands(tableID string, limit int) ([]HandRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, table_id, hand_number, pot, board, winners, played_at
		FROM hand_history WHERE table_id = ? ORDER BY id DESC LIMIT ?
	`, tableID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing hands for table %s: %w", tableID, err)
	}
	defer rows.Close()

	var records []HandRecord
	for rows.Next() {
		var r HandRecord
		if err := rows.Scan(&r.ID, &r.TableID, &r.HandNumber, &r.Pot, &r.Board, &r.Winners, &r.PlayedAt); err != nil {
			return nil, fmt.Errorf("scanning hand record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
