package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/homegame/internal/auth"
	"github.com/lox/homegame/internal/game"
	"github.com/lox/homegame/internal/gameid"
	"github.com/lox/homegame/internal/session"
	"github.com/lox/homegame/internal/state"
	"github.com/lox/homegame/internal/store"
)

// tableEntry pairs a table with the mutex that serializes all access to
// it. The engine itself is single-writer; every caller locks here first.
type tableEntry struct {
	mu    sync.Mutex
	table *game.Table
}

// Hub owns the tables, the authenticated connection registry, and all
// protocol handling above the websocket pumps.
type Hub struct {
	cfg      *Config
	logger   *log.Logger
	clock    quartz.Clock
	auth     *auth.Authenticator
	store    *store.Store
	games    *state.GameStore
	sessions *session.Store

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	tables map[string]*tableEntry
	conns  map[string]*Connection
}

// NewHub wires the hub together. Call Run to start its background work.
func NewHub(cfg *Config, authn *auth.Authenticator, st *store.Store, games *state.GameStore, sessions *session.Store, clock quartz.Clock, logger *log.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:      cfg,
		logger:   logger.WithPrefix("hub"),
		clock:    clock,
		auth:     authn,
		store:    st,
		games:    games,
		sessions: sessions,
		ctx:      ctx,
		cancel:   cancel,
		tables:   make(map[string]*tableEntry),
		conns:    make(map[string]*Connection),
	}
}

// Run drives the hub's clock work until ctx is cancelled: the one-second
// tick that drains turn timers and sweeps expired reconnect grace.
func (h *Hub) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	ticker := h.clock.TickerFunc(ctx, time.Second, func() error {
		h.tick()
		return nil
	}, "hub-tick")
	g.Go(func() error { return ticker.Wait() })

	g.Go(func() error {
		<-ctx.Done()
		h.cancel()
		h.PersistAll()
		return ctx.Err()
	})

	return g.Wait()
}

// CreateTable builds and registers a new table.
func (h *Hub) CreateTable(cfg game.Config) *tableEntry {
	if cfg.ID == "" {
		cfg.ID = gameid.New()
	}
	table := game.NewTable(cfg, h.clock)
	entry := &tableEntry{table: table}

	h.mu.Lock()
	h.tables[cfg.ID] = entry
	h.mu.Unlock()

	go h.pumpEvents(entry)
	h.persist(entry)
	h.broadcastLobby()
	h.logger.Info("table created", "table", cfg.ID, "name", cfg.Name,
		"blinds", fmt.Sprintf("%d/%d", cfg.SmallBlind, cfg.BigBlind))
	return entry
}

// RestoreTables rebuilds tables from the durable backup at boot.
func (h *Hub) RestoreTables() error {
	snaps, err := h.games.RestoreAll()
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		table := game.RestoreTable(snap, h.clock)
		entry := &tableEntry{table: table}
		h.mu.Lock()
		h.tables[snap.Config.ID] = entry
		h.mu.Unlock()
		go h.pumpEvents(entry)
		h.logger.Info("table restored", "table", snap.Config.ID, "stage", snap.Stage)
	}
	return nil
}

// HasTableNamed reports whether any table carries the given name. Used at
// boot so configured tables are not recreated over restored ones.
func (h *Hub) HasTableNamed(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range h.tables {
		if e.table.Name == name {
			return true
		}
	}
	return false
}

func (h *Hub) entry(tableID string) (*tableEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.tables[tableID]
	return e, ok
}

var (
	errTableNotFound   = errors.New("no such table")
	errTableHasPlayers = errors.New("table still has seated players")
)

// removeTable deletes an empty table from the registry and the backup.
func (h *Hub) removeTable(tableID string) error {
	e, ok := h.entry(tableID)
	if !ok {
		return errTableNotFound
	}
	e.mu.Lock()
	occupied := len(e.table.Players()) > 0
	e.mu.Unlock()
	if occupied {
		return errTableHasPlayers
	}

	h.mu.Lock()
	delete(h.tables, tableID)
	h.mu.Unlock()
	h.games.DeleteTable(tableID)
	h.broadcastLobby()
	return nil
}

// Unregister drops a connection. A seated user gets a tombstone so they
// can reconnect within the grace window.
func (h *Hub) Unregister(c *Connection) {
	userID := c.UserID()
	if userID == "" {
		return
	}

	h.mu.Lock()
	if h.conns[userID] == c {
		delete(h.conns, userID)
	} else {
		// A newer connection displaced this one; nothing to tear down.
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	tableID, ok := h.sessions.SeatBinding(userID)
	if !ok {
		return
	}
	e, ok := h.entry(tableID)
	if !ok {
		return
	}

	e.mu.Lock()
	p := e.table.Player(userID)
	if p != nil {
		p.Disconnected = true
		h.sessions.Save(userID, p.Username, tableID, p.Seat)
		h.logger.Info("player disconnected, grace started", "user", userID, "table", tableID)
	}
	e.mu.Unlock()

	if p != nil {
		h.broadcastTable(tableID, MessageTypePlayerDisconnected, PlayerDisconnectedData{
			TableID:      tableID,
			UserID:       userID,
			GraceSeconds: float64(h.cfg.Server.ReconnectGraceSeconds),
		})
		h.broadcastState(e)
	}
}

// bind registers an authenticated connection, displacing any previous
// connection for the same user.
func (h *Hub) bind(c *Connection, id auth.Identity) {
	c.SetIdentity(id)

	h.mu.Lock()
	old := h.conns[id.UserID]
	h.conns[id.UserID] = c
	h.mu.Unlock()

	if old != nil && old != c {
		msg, _ := NewMessage(MessageTypeDisplaced, nil)
		_ = old.SendMessage(msg)
		_ = old.Close()
		c.SetTable(old.Table())
		h.logger.Info("connection displaced", "user", id.UserID)
	}
}

// tryReconnect reattaches a user to the seat their tombstone holds.
func (h *Hub) tryReconnect(c *Connection, id auth.Identity) {
	tomb, ok := h.sessions.TryReconnect(id.UserID)
	if !ok {
		return
	}
	e, ok := h.entry(tomb.TableID)
	if !ok {
		return
	}

	e.mu.Lock()
	p := e.table.Player(id.UserID)
	if p != nil {
		p.Disconnected = false
	}
	e.mu.Unlock()
	if p == nil {
		return
	}

	c.SetTable(tomb.TableID)
	h.logger.Info("player reconnected", "user", id.UserID, "table", tomb.TableID)
	h.broadcastTable(tomb.TableID, MessageTypePlayerReconnected, PlayerReconnectedData{
		TableID: tomb.TableID,
		UserID:  id.UserID,
	})
	h.broadcastState(e)
}

// pumpEvents drains one table's event stream for the life of the hub.
func (h *Hub) pumpEvents(e *tableEntry) {
	for {
		select {
		case ev := <-e.table.Events():
			h.handleTableEvent(e, ev)
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) handleTableEvent(e *tableEntry, ev game.Event) {
	e.mu.Lock()
	tableID := e.table.ID
	e.mu.Unlock()

	switch ev := ev.(type) {
	case game.HandStartedEvent:
		h.broadcastTable(tableID, MessageTypeHandStarted, HandStartedData{
			TableID:    tableID,
			HandNumber: ev.HandNumber,
			DealerSeat: ev.DealerSeat,
			SmallBlind: ev.SmallBlind,
			BigBlind:   ev.BigBlind,
		})

	case game.PlayerActionEvent:
		h.broadcastTable(tableID, MessageTypePlayerAction, PlayerActionData{
			TableID: tableID,
			UserID:  ev.UserID,
			Action:  ev.Action,
			Amount:  ev.Amount,
			Pot:     ev.Pot,
			Timeout: ev.Timeout,
		})

	case game.HandResultEvent:
		h.broadcastTable(tableID, MessageTypeHandResult, HandResultData{
			TableID:    tableID,
			HandNumber: ev.HandNumber,
			Winners:    ev.Winners,
			Community:  ev.Community,
			Revealed:   ev.Revealed,
			Pot:        ev.PotTotal,
		})
		h.recordHand(tableID, ev)
		h.persist(e)
		h.scheduleAutoStart(e)

	case game.StateChangedEvent:
		// The game_state broadcast below carries the new street.
	}

	h.broadcastState(e)
}

// recordHand appends the completed hand to the history table.
func (h *Hub) recordHand(tableID string, ev game.HandResultEvent) {
	board, err := json.Marshal(ev.Community)
	if err != nil {
		board = []byte("[]")
	}
	winners, err := json.Marshal(ev.Winners)
	if err != nil {
		winners = []byte("[]")
	}
	if err := h.store.SaveHand(tableID, ev.HandNumber, ev.PotTotal, string(board), string(winners)); err != nil {
		h.logger.Warn("saving hand history", "table", tableID, "error", err)
	}
}

// scheduleAutoStart arms the next-hand timer after a hand completes.
func (h *Hub) scheduleAutoStart(e *tableEntry) {
	delay := time.Duration(h.cfg.Server.AutoStartDelaySeconds * float64(time.Second))
	h.clock.AfterFunc(delay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.table.CanStart() {
			return
		}
		if err := e.table.StartHand(); err != nil {
			h.logger.Warn("auto-start failed", "table", e.table.ID, "error", err)
		}
	}, "auto-start")
}

// tick runs once a second: drain turn timers and sweep expired grace.
func (h *Hub) tick() {
	now := h.clock.Now()

	h.mu.RLock()
	entries := make([]*tableEntry, 0, len(h.tables))
	for _, e := range h.tables {
		entries = append(entries, e)
	}
	h.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		e.table.TickTimeout(now)
		e.mu.Unlock()
	}

	for _, tomb := range h.sessions.Sweep() {
		h.expireTombstone(tomb)
	}
}

// expireTombstone removes a player whose reconnect grace ran out. Their
// remaining stack is cashed out so the ledger stays whole.
func (h *Hub) expireTombstone(tomb session.Tombstone) {
	e, ok := h.entry(tomb.TableID)
	if !ok {
		h.sessions.Unbind(tomb.UserID)
		return
	}

	e.mu.Lock()
	p, err := e.table.RemovePlayer(tomb.UserID)
	e.mu.Unlock()
	h.sessions.Unbind(tomb.UserID)

	if err != nil {
		return
	}
	h.logger.Info("grace expired, player removed", "user", tomb.UserID, "table", tomb.TableID)

	if p.Chips > 0 {
		if sess, serr := h.store.ActiveSession(); serr == nil {
			if _, terr := h.store.RecordTransaction(sess.ID, tomb.UserID, store.TxCashOut, p.Chips, "", "disconnect timeout"); terr != nil {
				h.logger.Warn("recording disconnect cash-out", "user", tomb.UserID, "error", terr)
			}
		}
	}
	h.broadcastTable(tomb.TableID, MessageTypePlayerLeft, PlayerLeftData{TableID: tomb.TableID, UserID: tomb.UserID})
	h.persist(e)
	h.broadcastState(e)
	h.broadcastLobby()
}

// persist snapshots a table into the game store.
func (h *Hub) persist(e *tableEntry) {
	e.mu.Lock()
	snap := e.table.Snapshot()
	e.mu.Unlock()
	if err := h.games.SaveTable(snap); err != nil {
		h.logger.Warn("persisting table", "table", snap.Config.ID, "error", err)
	}
}

// PersistAll snapshots every table, used at shutdown.
func (h *Hub) PersistAll() {
	h.mu.RLock()
	entries := make([]*tableEntry, 0, len(h.tables))
	for _, e := range h.tables {
		entries = append(entries, e)
	}
	h.mu.RUnlock()

	for _, e := range entries {
		h.persist(e)
	}
	h.logger.Info("table snapshots persisted", "tables", len(entries))
}

// broadcastTable sends one payload to every connection watching a table.
func (h *Hub) broadcastTable(tableID string, mt MessageType, data any) {
	msg, err := NewMessage(mt, data)
	if err != nil {
		h.logger.Error("building broadcast", "type", mt, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		if c.Table() == tableID {
			_ = c.SendMessage(msg)
		}
	}
}

// broadcastState sends each watcher their own view of the table. Seated
// viewers see their hole cards and valid actions; spectators see neither.
func (h *Hub) broadcastState(e *tableEntry) {
	now := h.clock.Now()

	e.mu.Lock()
	tableID := e.table.ID
	views := make(map[*Connection]GameStateData)
	h.mu.RLock()
	for _, c := range h.conns {
		if c.Table() == tableID {
			views[c] = TableView(e.table, c.UserID(), now)
		}
	}
	h.mu.RUnlock()
	e.mu.Unlock()

	for c, view := range views {
		msg, err := NewMessage(MessageTypeGameState, view)
		if err != nil {
			continue
		}
		_ = c.SendMessage(msg)
	}
}

// sendState sends one connection its current view of a table.
func (h *Hub) sendState(c *Connection, e *tableEntry) {
	e.mu.Lock()
	view := TableView(e.table, c.UserID(), h.clock.Now())
	e.mu.Unlock()

	msg, err := NewMessage(MessageTypeGameState, view)
	if err != nil {
		return
	}
	_ = c.SendMessage(msg)
}

// tableInfo summarises one table for the lobby.
func (h *Hub) tableInfo(e *tableEntry) TableInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.table
	return TableInfo{
		ID:          t.ID,
		Name:        t.Name,
		SmallBlind:  t.SmallBlind,
		BigBlind:    t.BigBlind,
		PlayerCount: len(t.Players()),
		MaxPlayers:  t.MaxPlayers,
		MinBuyIn:    t.MinBuyIn,
		MaxBuyIn:    t.MaxBuyIn,
		Stage:       string(t.Stage()),
	}
}

// broadcastLobby pushes the table list to every connected user whenever a
// table is created, deleted, or its membership changes.
func (h *Hub) broadcastLobby() {
	h.broadcastAll(MessageTypeTableList, TableListData{Tables: h.listTables()})
}

// listTables builds the lobby's table list.
func (h *Hub) listTables() []TableInfo {
	h.mu.RLock()
	entries := make([]*tableEntry, 0, len(h.tables))
	for _, e := range h.tables {
		entries = append(entries, e)
	}
	h.mu.RUnlock()

	infos := make([]TableInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, h.tableInfo(e))
	}
	return infos
}

// settlementPath names the report file for a session.
func (h *Hub) settlementPath(sessionID int64) string {
	return filepath.Join(h.cfg.Server.SettlementDir, fmt.Sprintf("settlement-%d.json", sessionID))
}
