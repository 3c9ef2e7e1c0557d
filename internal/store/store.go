// Package store is the sqlite-backed durable layer: user accounts, poker
// night sessions, the chip ledger, hand history and table state backups.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrNoActiveSession = errors.New("no active session")
	ErrSessionActive   = errors.New("a session is already active")
)

// Store wraps the sqlite database.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'player',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS game_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES game_sessions(id),
			user_id TEXT NOT NULL REFERENCES users(id),
			kind TEXT NOT NULL,
			amount INTEGER NOT NULL,
			admin_id TEXT,
			note TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS hand_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_id TEXT NOT NULL,
			hand_number INTEGER NOT NULL,
			pot INTEGER NOT NULL,
			board TEXT NOT NULL,
			winners TEXT NOT NULL,
			played_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS table_states (
			table_id TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// User is a registered account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == "admin" }

// CreateUser registers a new account.
func (s *Store) CreateUser(id, username, passwordHash, role string) (User, error) {
	_, err := s.db.Exec(
		`INSERT INTO users (id, username, password_hash, role) VALUES (?, ?, ?, ?)`,
		id, username, passwordHash, role,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("creating user %s: %w", username, err)
	}
	return s.GetUser(id)
}

// GetUser fetches an account by id.
func (s *Store) GetUser(id string) (User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, username, password_hash, role, created_at FROM users WHERE id = ?`, id))
}

// GetUserByUsername fetches an account by username.
func (s *Store) GetUserByUsername(username string) (User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?`, username))
}

func (s *Store) scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scanning user: %w", err)
	}
	return u, nil
}

// UserCount returns the number of registered accounts.
func (s *Store) UserCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// SetUserRole updates an account's role.
func (s *Store) SetUserRole(id, role string) error {
	res, err := s.db.Exec(`UPDATE users SET role = ? WHERE id = ?`, role, id)
	if err != nil {
		return fmt.Errorf("updating role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SaveTableState upserts a table's snapshot backup. Implements the
// state.Backup interface.
func (s *Store) SaveTableState(tableID string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO table_states (table_id, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(table_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP
	`, tableID, data)
	if err != nil {
		return fmt.Errorf("saving table state %s: %w", tableID, err)
	}
	return nil
}

// LoadTableState returns a table's snapshot backup, nil when absent.
func (s *Store) LoadTableState(tableID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM table_states WHERE table_id = ?`, tableID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading table state %s: %w", tableID, err)
	}
	return data, nil
}

// DeleteTableState drops a table's snapshot backup.
func (s *Store) DeleteTableState(tableID string) error {
	if _, err := s.db.Exec(`DELETE FROM table_states WHERE table_id = ?`, tableID); err != nil {
		return fmt.Errorf("deleting table state %s: %w", tableID, err)
	}
	return nil
}

// ListTableStates returns every stored table snapshot keyed by table id.
func (s *Store) ListTableStates() (map[string][]byte, error) {
	rows, err := s.db.Query(`SELECT table_id, data FROM table_states`)
	if err != nil {
		return nil, fmt.Errorf("listing table states: %w", err)
	}
	defer rows.Close()

	states := make(map[string][]byte)
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning table state: %w", err)
		}
		states[id] = data
	}
	return states, rows.Err()
}
