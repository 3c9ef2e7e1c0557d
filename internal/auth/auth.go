// Package auth issues and validates the server's opaque access and refresh
// tokens, and checks credentials against the user store.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/homegame/internal/gameid"
	"github.com/lox/homegame/internal/store"
)

var (
	// ErrInvalidToken indicates the token is unknown or expired.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrInvalidCredentials indicates a bad username or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrNotAdmin indicates the caller lacks the admin role.
	ErrNotAdmin = errors.New("auth: admin role required")
)

// Identity is an authenticated user.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool { return i.Role == "admin" }

// RequireAdmin returns ErrNotAdmin unless the identity is an admin.
func RequireAdmin(i Identity) error {
	if !i.IsAdmin() {
		return ErrNotAdmin
	}
	return nil
}

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
}

// UserStore is the slice of the sqlite store the authenticator needs.
type UserStore interface {
	CreateUser(id, username, passwordHash, role string) (store.User, error)
	GetUser(id string) (store.User, error)
	GetUserByUsername(username string) (store.User, error)
	UserCount() (int, error)
}

// TokenPair is what a successful register, login or refresh returns.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type grant struct {
	userID  string
	expires time.Time
}

// Authenticator owns the server-side token tables. Tokens are random and
// opaque; everything about them lives here, nothing in the token itself.
type Authenticator struct {
	mu         sync.Mutex
	users      UserStore
	hasher     Hasher
	clock      quartz.Clock
	logger     *log.Logger
	accessTTL  time.Duration
	refreshTTL time.Duration
	access     map[string]grant
	refresh    map[string]grant
}

// NewAuthenticator creates an authenticator with the given token lifetimes.
func NewAuthenticator(users UserStore, hasher Hasher, clock quartz.Clock, accessTTL, refreshTTL time.Duration, logger *log.Logger) *Authenticator {
	return &Authenticator{
		users:      users,
		hasher:     hasher,
		clock:      clock,
		logger:     logger,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		access:     make(map[string]grant),
		refresh:    make(map[string]grant),
	}
}

// Register creates an account and logs it in. The first account registered
// becomes the admin.
func (a *Authenticator) Register(username, password string) (Identity, TokenPair, error) {
	if username == "" || password == "" {
		return Identity{}, TokenPair{}, fmt.Errorf("%w: username and password required", ErrInvalidCredentials)
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return Identity{}, TokenPair{}, fmt.Errorf("hashing password: %w", err)
	}

	count, err := a.users.UserCount()
	if err != nil {
		return Identity{}, TokenPair{}, fmt.Errorf("counting users: %w", err)
	}
	role := "player"
	if count == 0 {
		role = "admin"
	}

	u, err := a.users.CreateUser(gameid.New(), username, hash, role)
	if err != nil {
		return Identity{}, TokenPair{}, err
	}
	a.logger.Info("user registered", "username", username, "role", role)
	return a.issue(u)
}

// Login checks credentials and issues tokens.
func (a *Authenticator) Login(username, password string) (Identity, TokenPair, error) {
	u, err := a.users.GetUserByUsername(username)
	if errors.Is(err, store.ErrUserNotFound) {
		return Identity{}, TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, TokenPair{}, err
	}
	if err := a.hasher.Verify(password, u.PasswordHash); err != nil {
		return Identity{}, TokenPair{}, ErrInvalidCredentials
	}
	return a.issue(u)
}

// Refresh exchanges a refresh token for a new token pair. The old pair is
// revoked whether or not the exchange succeeds.
func (a *Authenticator) Refresh(refreshToken string) (Identity, TokenPair, error) {
	a.mu.Lock()
	g, ok := a.refresh[refreshToken]
	delete(a.refresh, refreshToken)
	a.mu.Unlock()

	if !ok || a.clock.Now().After(g.expires) {
		return Identity{}, TokenPair{}, ErrInvalidToken
	}

	u, err := a.users.GetUser(g.userID)
	if err != nil {
		return Identity{}, TokenPair{}, ErrInvalidToken
	}
	return a.issue(u)
}

// Validate resolves an access token to an identity.
func (a *Authenticator) Validate(token string) (Identity, error) {
	a.mu.Lock()
	g, ok := a.access[token]
	a.mu.Unlock()

	if !ok || a.clock.Now().After(g.expires) {
		return Identity{}, ErrInvalidToken
	}

	u, err := a.users.GetUser(g.userID)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: u.ID, Username: u.Username, Role: u.Role}, nil
}

func (a *Authenticator) issue(u store.User) (Identity, TokenPair, error) {
	now := a.clock.Now()
	pair := TokenPair{
		AccessToken:  newToken(),
		RefreshToken: newToken(),
		ExpiresAt:    now.Add(a.accessTTL),
	}

	a.mu.Lock()
	a.access[pair.AccessToken] = grant{userID: u.ID, expires: pair.ExpiresAt}
	a.refresh[pair.RefreshToken] = grant{userID: u.ID, expires: now.Add(a.refreshTTL)}
	a.mu.Unlock()

	return Identity{UserID: u.ID, Username: u.Username, Role: u.Role}, pair, nil
}

// newToken returns 32 random bytes hex encoded.
func newToken() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("auth: reading entropy: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
