package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/lox/homegame/internal/auth"
	"github.com/lox/homegame/internal/store"
)

// Server owns the HTTP listener: the /ws upgrade and the small REST
// side-channel for auth and read-only queries.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	hub      *Hub
	auth     *auth.Authenticator
	store    *store.Store
	logger   *log.Logger
}

// NewServer wires the HTTP layer over the hub.
func NewServer(addr string, hub *Hub, authn *auth.Authenticator, st *store.Store, logger *log.Logger) *Server {
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			// Home game server, trusted clients.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		hub:    hub,
		auth:   authn,
		store:  st,
		logger: logger.WithPrefix("server"),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully. The hub
// persists table snapshots as part of the same group.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/refresh", s.handleRefresh)
	mux.HandleFunc("/tables", s.handleTables)
	mux.HandleFunc("/tables/", s.handleTableByID)
	mux.HandleFunc("/standings", s.handleStandings)

	srv := &http.Server{Addr: s.addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.hub.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "error", err)
		return
	}

	client := NewConnection(conn, s.hub, s.logger)
	client.Start()
	s.logger.Info("client connected", "remote", r.RemoteAddr)

	go func() {
		<-client.Done()
		s.hub.Unregister(client)
		s.logger.Info("client disconnected", "remote", r.RemoteAddr)
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "OK")
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Identity auth.Identity  `json:"identity"`
	Tokens   auth.TokenPair `json:"tokens"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.handleCredentials(w, r, s.auth.Register)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.handleCredentials(w, r, s.auth.Login)
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request, fn func(username, password string) (auth.Identity, auth.TokenPair, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	id, pair, err := fn(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			http.Error(w, "username taken", http.StatusConflict)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, authResponse{Identity: id, Tokens: pair})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	id, pair, err := s.auth.Refresh(req.RefreshToken)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, authResponse{Identity: id, Tokens: pair})
}

// bearerIdentity resolves the Authorization header to an identity.
func (s *Server) bearerIdentity(r *http.Request) (auth.Identity, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return s.auth.Validate(token)
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, TableListData{Tables: s.hub.listTables()})

	case http.MethodPost:
		id, err := s.bearerIdentity(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := auth.RequireAdmin(id); err != nil {
			http.Error(w, "admin role required", http.StatusForbidden)
			return
		}
		var data CreateTableData
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&data); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		cfg, err := s.hub.tableConfigFrom(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		entry := s.hub.CreateTable(cfg)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(s.hub.tableInfo(entry))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTableByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := s.bearerIdentity(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := auth.RequireAdmin(id); err != nil {
		http.Error(w, "admin role required", http.StatusForbidden)
		return
	}

	tableID := strings.TrimPrefix(r.URL.Path, "/tables/")
	switch err := s.hub.removeTable(tableID); {
	case errors.Is(err, errTableNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, errTableHasPlayers):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, err := s.store.ActiveSession()
	if err != nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	standings, err := s.store.Standings(sess.ID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, StandingsData{SessionID: sess.ID, Standings: standings})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
