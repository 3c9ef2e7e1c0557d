package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lox/homegame/internal/fileutil"
)

// Transaction kinds in the chip ledger.
const (
	TxBuyIn      = "buy_in"
	TxCashOut    = "cash_out"
	TxAdjustment = "adjustment"
)

// Session is one poker night.
type Session struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Transaction is one chip movement in the ledger. Amounts are positive;
// the kind carries the direction, except adjustments which are signed.
type Transaction struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Amount    int       `json:"amount"`
	AdminID   string    `json:"admin_id,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PlayerSummary aggregates a player's ledger position for a session.
type PlayerSummary struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	BuyIns   int    `json:"buy_ins"`
	CashOuts int    `json:"cash_outs"`
	Net      int    `json:"net"`
}

// ActiveSession returns the session with no end time, or ErrNoActiveSession.
func (s *Store) ActiveSession() (Session, error) {
	var sess Session
	err := s.db.QueryRow(
		`SELECT id, name, started_at FROM game_sessions WHERE ended_at IS NULL ORDER BY id DESC LIMIT 1`,
	).Scan(&sess.ID, &sess.Name, &sess.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoActiveSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("querying active session: %w", err)
	}
	return sess, nil
}

// StartSession opens a new poker night. Only one session may be active.
func (s *Store) StartSession(name string) (Session, error) {
	if _, err := s.ActiveSession(); err == nil {
		return Session{}, ErrSessionActive
	} else if !errors.Is(err, ErrNoActiveSession) {
		return Session{}, err
	}

	res, err := s.db.Exec(`INSERT INTO game_sessions (name) VALUES (?)`, name)
	if err != nil {
		return Session{}, fmt.Errorf("starting session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Session{}, fmt.Errorf("starting session: %w", err)
	}

	var sess Session
	err = s.db.QueryRow(
		`SELECT id, name, started_at FROM game_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Name, &sess.StartedAt)
	if err != nil {
		return Session{}, fmt.Errorf("reading back session: %w", err)
	}
	return sess, nil
}

// RecordTransaction appends one ledger row to the active session.
func (s *Store) RecordTransaction(sessionID int64, userID, kind string, amount int, adminID, note string) (Transaction, error) {
	res, err := s.db.Exec(`
		INSERT INTO ledger_transactions (session_id, user_id, kind, amount, admin_id, note)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sessionID, userID, kind, amount, adminID, note)
	if err != nil {
		return Transaction{}, fmt.Errorf("recording %s for %s: %w", kind, userID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Transaction{}, fmt.Errorf("recording %s for %s: %w", kind, userID, err)
	}
	return s.getTransaction(id)
}

func (s *Store) getTransaction(id int64) (Transaction, error) {
	var tx Transaction
	var adminID, note sql.NullString
	err := s.db.QueryRow(`
		SELECT id, session_id, user_id, kind, amount, admin_id, note, created_at
		FROM ledger_transactions WHERE id = ?
	`, id).Scan(&tx.ID, &tx.SessionID, &tx.UserID, &tx.Kind, &tx.Amount, &adminID, &note, &tx.CreatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("reading transaction %d: %w", id, err)
	}
	tx.AdminID = adminID.String
	tx.Note = note.String
	return tx, nil
}

// SessionTransactions lists a session's ledger in insertion order.
func (s *Store) SessionTransactions(sessionID int64) ([]Transaction, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, user_id, kind, amount, admin_id, note, created_at
		FROM ledger_transactions WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var tx Transaction
		var adminID, note sql.NullString
		if err := rows.Scan(&tx.ID, &tx.SessionID, &tx.UserID, &tx.Kind, &tx.Amount, &adminID, &note, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		tx.AdminID = adminID.String
		tx.Note = note.String
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Standings aggregates each player's buy-ins, cash-outs and net for a
// session. Net is cash-outs minus buy-ins plus signed adjustments.
func (s *Store) Standings(sessionID int64) ([]PlayerSummary, error) {
	rows, err := s.db.Query(`
		SELECT t.user_id, u.username,
			COALESCE(SUM(CASE WHEN t.kind = ? THEN t.amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.kind = ? THEN t.amount ELSE 0 END), 0),
			COALESCE(SUM(CASE
				WHEN t.kind = ? THEN t.amount
				WHEN t.kind = ? THEN -t.amount
				ELSE t.amount END), 0)
		FROM ledger_transactions t
		JOIN users u ON u.id = t.user_id
		WHERE t.session_id = ?
		GROUP BY t.user_id, u.username
		ORDER BY u.username
	`, TxBuyIn, TxCashOut, TxCashOut, TxBuyIn, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying standings: %w", err)
	}
	defer rows.Close()

	var summaries []PlayerSummary
	for rows.Next() {
		var ps PlayerSummary
		if err := rows.Scan(&ps.UserID, &ps.Username, &ps.BuyIns, &ps.CashOuts, &ps.Net); err != nil {
			return nil, fmt.Errorf("scanning standings: %w", err)
		}
		summaries = append(summaries, ps)
	}
	return summaries, rows.Err()
}

// CashOut is one stack returned at session end.
type CashOut struct {
	UserID string
	Amount int
}

// SettleSession ends the session, recording one cash-out row per seated
// stack, all in a single transaction.
func (s *Store) SettleSession(sessionID int64, cashOuts []CashOut, adminID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("settling session %d: %w", sessionID, err)
	}
	defer tx.Rollback()

	for _, co := range cashOuts {
		_, err := tx.Exec(`
			INSERT INTO ledger_transactions (session_id, user_id, kind, amount, admin_id, note)
			VALUES (?, ?, ?, ?, ?, 'session end')
		`, sessionID, co.UserID, TxCashOut, co.Amount, adminID)
		if err != nil {
			return fmt.Errorf("cashing out %s: %w", co.UserID, err)
		}
	}

	res, err := tx.Exec(
		`UPDATE game_sessions SET ended_at = CURRENT_TIMESTAMP WHERE id = ? AND ended_at IS NULL`,
		sessionID)
	if err != nil {
		return fmt.Errorf("ending session %d: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoActiveSession
	}
	return tx.Commit()
}

// SettlementReport is the file written when a session ends, so the host
// has a record of who owes whom.
type SettlementReport struct {
	Session   Session         `json:"session"`
	Standings []PlayerSummary `json:"standings"`
	WrittenAt time.Time       `json:"written_at"`
}

// ExportSettlement writes the end-of-night report atomically.
func (s *Store) ExportSettlement(path string, sessionID int64) error {
	var sess Session
	var endedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, name, started_at, ended_at FROM game_sessions WHERE id = ?`, sessionID,
	).Scan(&sess.ID, &sess.Name, &sess.StartedAt, &endedAt)
	if err != nil {
		return fmt.Errorf("reading session %d: %w", sessionID, err)
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}

	standings, err := s.Standings(sessionID)
	if err != nil {
		return err
	}

	report := SettlementReport{Session: sess, Standings: standings, WrittenAt: time.Now()}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settlement report: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing settlement report: %w", err)
	}
	s.logger.Info("settlement report written", "path", path, "session", sessionID)
	return nil
}
