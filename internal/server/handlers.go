package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lox/homegame/internal/auth"
	"github.com/lox/homegame/internal/game"
	"github.com/lox/homegame/internal/store"
)

// HandleRaw parses one inbound frame and dispatches it. Every failure
// produces an error frame; the connection stays open regardless.
func (h *Hub) HandleRaw(c *Connection, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError(CodeBadJSON, "could not parse message")
		return
	}
	h.handleMessage(c, &msg)
}

func (h *Hub) handleMessage(c *Connection, msg *Message) {
	switch msg.Type {
	case MessageTypeRegister:
		h.handleRegister(c, msg)
	case MessageTypeLogin:
		h.handleLogin(c, msg)
	case MessageTypeRefreshToken:
		h.handleRefreshToken(c, msg)
	case MessageTypeAuth:
		h.handleAuth(c, msg)
	default:
		h.handleAuthed(c, msg)
		return
	}
}

// handleAuthed covers everything that needs an authenticated identity.
func (h *Hub) handleAuthed(c *Connection, msg *Message) {
	id := c.Identity()
	if id == nil {
		c.sendError(CodeAuthRequired, "authenticate first")
		return
	}

	switch msg.Type {
	case MessageTypePing:
		h.reply(c, msg, MessageTypePong, nil)
	case MessageTypeListTables:
		h.reply(c, msg, MessageTypeTableList, TableListData{Tables: h.listTables()})
	case MessageTypeCreateTable:
		h.handleCreateTable(c, msg, *id)
	case MessageTypeDeleteTable:
		h.handleDeleteTable(c, msg, *id)
	case MessageTypeJoinTable:
		h.handleJoinTable(c, msg, *id)
	case MessageTypeLeaveTable:
		h.handleLeaveTable(c, msg, *id)
	case MessageTypeStandUp:
		h.handleStandUp(c, msg, *id)
	case MessageTypeAction:
		h.handleAction(c, msg, *id)
	case MessageTypeChat:
		h.handleChat(c, msg, *id)
	case MessageTypeStartGame:
		h.handleStartGame(c, *id)
	case MessageTypeGiveChips, MessageTypeTakeChips, MessageTypeSetChips:
		h.handleChipOp(c, msg, *id)
	case MessageTypeGetLedger:
		h.handleGetLedger(c, msg, *id)
	case MessageTypeGetStandings:
		h.handleGetStandings(c, msg)
	case MessageTypeEndSession:
		h.handleEndSession(c, *id)
	default:
		c.sendError(CodeUnknownType, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// reply sends a response frame echoing the request id.
func (h *Hub) reply(c *Connection, req *Message, mt MessageType, data any) {
	msg, err := NewMessage(mt, data)
	if err != nil {
		h.logger.Error("building reply", "type", mt, "error", err)
		c.sendError(CodeServerError, "internal error")
		return
	}
	msg.RequestID = req.RequestID
	_ = c.SendMessage(msg)
}

func decode[T any](c *Connection, msg *Message, out *T) bool {
	if err := json.Unmarshal(msg.Data, out); err != nil {
		c.sendError(CodeBadJSON, fmt.Sprintf("bad %s payload", msg.Type))
		return false
	}
	return true
}

func (h *Hub) handleRegister(c *Connection, msg *Message) {
	var data RegisterData
	if !decode(c, msg, &data) {
		return
	}
	id, pair, err := h.auth.Register(data.Username, data.Password)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			c.sendError(CodeAuthFailed, "username already taken")
		} else {
			c.sendError(CodeAuthFailed, "registration failed")
		}
		return
	}
	h.bind(c, id)
	h.reply(c, msg, MessageTypeAuthSuccess, AuthSuccessData{Identity: id, Tokens: &pair})
}

func (h *Hub) handleLogin(c *Connection, msg *Message) {
	var data LoginData
	if !decode(c, msg, &data) {
		return
	}
	id, pair, err := h.auth.Login(data.Username, data.Password)
	if err != nil {
		c.sendError(CodeAuthFailed, "invalid username or password")
		return
	}
	h.bind(c, id)
	h.tryReconnect(c, id)
	h.reply(c, msg, MessageTypeAuthSuccess, AuthSuccessData{Identity: id, Tokens: &pair})
}

func (h *Hub) handleRefreshToken(c *Connection, msg *Message) {
	var data RefreshTokenData
	if !decode(c, msg, &data) {
		return
	}
	id, pair, err := h.auth.Refresh(data.RefreshToken)
	if err != nil {
		c.sendError(CodeRefreshFailed, "refresh token rejected")
		return
	}
	h.bind(c, id)
	h.reply(c, msg, MessageTypeAuthSuccess, AuthSuccessData{Identity: id, Tokens: &pair})
}

// handleAuth validates an access token and, when the user holds a live
// tombstone, reattaches them to their seat.
func (h *Hub) handleAuth(c *Connection, msg *Message) {
	var data AuthData
	if !decode(c, msg, &data) {
		return
	}
	id, err := h.auth.Validate(data.Token)
	if err != nil {
		c.sendError(CodeAuthFailed, "invalid or expired token")
		return
	}
	h.bind(c, id)
	h.tryReconnect(c, id)
	h.reply(c, msg, MessageTypeAuthSuccess, AuthSuccessData{Identity: id})
}

// tableConfigFrom validates a create request and fills defaults from the
// server settings.
func (h *Hub) tableConfigFrom(data CreateTableData) (game.Config, error) {
	if data.SmallBlind <= 0 || data.BigBlind <= data.SmallBlind {
		return game.Config{}, errors.New("big blind must exceed a positive small blind")
	}

	cfg := game.Config{
		Name:              data.Name,
		SmallBlind:        data.SmallBlind,
		BigBlind:          data.BigBlind,
		MinPlayers:        data.MinPlayers,
		MaxPlayers:        data.MaxPlayers,
		MinBuyIn:          data.MinBuyIn,
		MaxBuyIn:          data.MaxBuyIn,
		TurnTime:          data.TurnTime,
		TimeBank:          h.cfg.Server.TimeBankSeconds,
		TimeBankReplenish: h.cfg.Server.TimeBankReplenish,
	}
	if cfg.MinPlayers == 0 {
		cfg.MinPlayers = h.cfg.Server.MinPlayers
	}
	if cfg.MaxPlayers == 0 {
		cfg.MaxPlayers = h.cfg.Server.MaxPlayers
	}
	if cfg.MinBuyIn == 0 {
		cfg.MinBuyIn = cfg.BigBlind * 20
	}
	if cfg.MaxBuyIn == 0 {
		cfg.MaxBuyIn = cfg.BigBlind * 200
	}
	if cfg.TurnTime == 0 {
		cfg.TurnTime = h.cfg.Server.TurnTimeSeconds
	}
	return cfg, nil
}

func (h *Hub) handleCreateTable(c *Connection, msg *Message, id auth.Identity) {
	if err := auth.RequireAdmin(id); err != nil {
		c.sendError(CodeNotAdmin, "admin role required")
		return
	}
	var data CreateTableData
	if !decode(c, msg, &data) {
		return
	}
	cfg, err := h.tableConfigFrom(data)
	if err != nil {
		c.sendError(CodeChipError, err.Error())
		return
	}
	entry := h.CreateTable(cfg)
	h.reply(c, msg, MessageTypeTableCreated, h.tableInfo(entry))
}

func (h *Hub) handleDeleteTable(c *Connection, msg *Message, id auth.Identity) {
	if err := auth.RequireAdmin(id); err != nil {
		c.sendError(CodeNotAdmin, "admin role required")
		return
	}
	var data DeleteTableData
	if !decode(c, msg, &data) {
		return
	}
	switch err := h.removeTable(data.TableID); {
	case errors.Is(err, errTableNotFound):
		c.sendError(CodeTableNotFound, err.Error())
	case errors.Is(err, errTableHasPlayers):
		c.sendError(CodeTableHasPlayers, err.Error())
	default:
		h.reply(c, msg, MessageTypeTableDeleted, DeleteTableData{TableID: data.TableID})
		h.logger.Info("table deleted", "table", data.TableID, "by", id.UserID)
	}
}

func (h *Hub) handleJoinTable(c *Connection, msg *Message, id auth.Identity) {
	var data JoinTableData
	if !decode(c, msg, &data) {
		return
	}
	e, ok := h.entry(data.TableID)
	if !ok {
		c.sendError(CodeTableNotFound, "no such table")
		return
	}

	// A user who already holds a seat here gets a benign re-sync: clear any
	// disconnect state and honour a seat change between hands.
	e.mu.Lock()
	if p := e.table.Player(id.UserID); p != nil {
		wasDisconnected := p.Disconnected
		p.Disconnected = false
		if data.Seat != nil && *data.Seat != p.Seat {
			if err := e.table.MoveSeat(id.UserID, *data.Seat); err != nil {
				e.mu.Unlock()
				c.sendError(mapGameError(err), err.Error())
				return
			}
		}
		seat := p.Seat
		e.mu.Unlock()

		h.sessions.Drop(id.UserID)
		h.sessions.BindSeat(id.UserID, data.TableID)
		c.SetTable(data.TableID)
		if wasDisconnected {
			h.broadcastTable(data.TableID, MessageTypePlayerReconnected, PlayerReconnectedData{
				TableID: data.TableID,
				UserID:  id.UserID,
			})
		}
		h.reply(c, msg, MessageTypeJoinedTable, JoinedTableData{TableID: data.TableID, Seat: seat})
		h.persist(e)
		h.broadcastState(e)
		return
	}
	e.mu.Unlock()

	// No seat requested means spectating.
	if data.Seat == nil {
		c.SetTable(data.TableID)
		h.reply(c, msg, MessageTypeJoinedTable, JoinedTableData{TableID: data.TableID, Spectator: true})
		h.sendState(c, e)
		return
	}

	if bound, ok := h.sessions.SeatBinding(id.UserID); ok && bound != data.TableID {
		c.sendError(CodeAlreadySeated, "already seated at another table")
		return
	}

	e.mu.Lock()
	if data.BuyIn < e.table.MinBuyIn || data.BuyIn > e.table.MaxBuyIn {
		min, max := e.table.MinBuyIn, e.table.MaxBuyIn
		e.mu.Unlock()
		c.sendError(CodeChipError, fmt.Sprintf("buy-in must be between %d and %d", min, max))
		return
	}
	_, err := e.table.AddPlayer(id.UserID, id.Username, *data.Seat, data.BuyIn)
	e.mu.Unlock()
	if err != nil {
		c.sendError(mapGameError(err), err.Error())
		return
	}

	h.sessions.BindSeat(id.UserID, data.TableID)
	c.SetTable(data.TableID)
	h.recordBuyIn(id, data.BuyIn)

	h.broadcastTable(data.TableID, MessageTypePlayerJoined, PlayerJoinedData{
		TableID:  data.TableID,
		UserID:   id.UserID,
		Username: id.Username,
		Seat:     *data.Seat,
		Chips:    data.BuyIn,
	})
	h.reply(c, msg, MessageTypeJoinedTable, JoinedTableData{TableID: data.TableID, Seat: *data.Seat})
	h.persist(e)
	h.broadcastState(e)
	h.broadcastLobby()
	h.maybeAutoStart(e)
}

// recordBuyIn writes the ledger row for a seat buy-in, opening a session
// if the night has not been started explicitly.
func (h *Hub) recordBuyIn(id auth.Identity, amount int) {
	sess, err := h.ensureSession()
	if err != nil {
		h.logger.Warn("opening session for buy-in", "error", err)
		return
	}
	if _, err := h.store.RecordTransaction(sess.ID, id.UserID, store.TxBuyIn, amount, "", ""); err != nil {
		h.logger.Warn("recording buy-in", "user", id.UserID, "error", err)
	}
}

func (h *Hub) ensureSession() (store.Session, error) {
	sess, err := h.store.ActiveSession()
	if errors.Is(err, store.ErrNoActiveSession) {
		return h.store.StartSession("poker night")
	}
	return sess, err
}

// standUp removes a user's seat, cashing their stack out to the ledger.
// Mid-hand the engine folds them first.
func (h *Hub) standUp(c *Connection, id auth.Identity) (*tableEntry, bool) {
	tableID, ok := h.sessions.SeatBinding(id.UserID)
	if !ok {
		c.sendError(CodeNotAtTable, "not seated anywhere")
		return nil, false
	}
	e, ok := h.entry(tableID)
	if !ok {
		h.sessions.Unbind(id.UserID)
		c.sendError(CodeTableNotFound, "table is gone")
		return nil, false
	}

	e.mu.Lock()
	p, err := e.table.RemovePlayer(id.UserID)
	e.mu.Unlock()
	h.sessions.Unbind(id.UserID)
	h.sessions.Drop(id.UserID)
	if err != nil {
		c.sendError(mapGameError(err), err.Error())
		return nil, false
	}

	if p.Chips > 0 {
		if sess, serr := h.store.ActiveSession(); serr == nil {
			if _, terr := h.store.RecordTransaction(sess.ID, id.UserID, store.TxCashOut, p.Chips, "", "stand up"); terr != nil {
				h.logger.Warn("recording stand-up cash-out", "user", id.UserID, "error", terr)
			}
		}
	}
	h.broadcastTable(tableID, MessageTypePlayerLeft, PlayerLeftData{TableID: tableID, UserID: id.UserID})
	h.persist(e)
	h.broadcastState(e)
	h.broadcastLobby()
	return e, true
}

func (h *Hub) handleStandUp(c *Connection, msg *Message, id auth.Identity) {
	// The seat goes, the subscription stays; the user keeps spectating.
	if _, ok := h.standUp(c, id); ok {
		h.reply(c, msg, MessageTypeLeftTable, JoinedTableData{TableID: c.Table(), Spectator: true})
	}
}

func (h *Hub) handleLeaveTable(c *Connection, msg *Message, id auth.Identity) {
	tableID := c.Table()
	if tableID == "" {
		c.sendError(CodeNotAtTable, "not at a table")
		return
	}
	if _, seated := h.sessions.SeatBinding(id.UserID); seated {
		if _, ok := h.standUp(c, id); !ok {
			return
		}
	}
	c.SetTable("")
	h.reply(c, msg, MessageTypeLeftTable, LeaveTableData{TableID: tableID})
}

func (h *Hub) handleAction(c *Connection, msg *Message, id auth.Identity) {
	var data ActionData
	if !decode(c, msg, &data) {
		return
	}
	e, ok := h.entry(c.Table())
	if !ok {
		c.sendError(CodeNotAtTable, "not at a table")
		return
	}

	e.mu.Lock()
	err := e.table.Apply(id.UserID, game.Action{Kind: data.Kind, Amount: data.Amount})
	e.mu.Unlock()
	if err != nil {
		c.sendError(mapGameError(err), err.Error())
	}
}

func (h *Hub) handleChat(c *Connection, msg *Message, id auth.Identity) {
	var data ChatData
	if !decode(c, msg, &data) {
		return
	}
	tableID := c.Table()
	if tableID == "" {
		c.sendError(CodeNotAtTable, "join a table to chat")
		return
	}
	h.broadcastTable(tableID, MessageTypeChatBroadcast, ChatBroadcastData{
		TableID:  tableID,
		UserID:   id.UserID,
		Username: id.Username,
		Text:     data.Text,
		SentAt:   h.clock.Now(),
	})
}

func (h *Hub) handleStartGame(c *Connection, id auth.Identity) {
	e, ok := h.entry(c.Table())
	if !ok {
		c.sendError(CodeNotAtTable, "not at a table")
		return
	}

	e.mu.Lock()
	err := e.table.StartHand()
	e.mu.Unlock()
	if err != nil {
		c.sendError(CodeCannotStart, err.Error())
	}
}

// maybeAutoStart begins a hand when the table fills up and nothing is
// running.
func (h *Hub) maybeAutoStart(e *tableEntry) {
	e.mu.Lock()
	can := e.table.CanStart()
	e.mu.Unlock()
	if can {
		h.scheduleAutoStart(e)
	}
}

// handleChipOp applies an admin chip adjustment to a seated player and
// records it in the ledger.
func (h *Hub) handleChipOp(c *Connection, msg *Message, id auth.Identity) {
	if err := auth.RequireAdmin(id); err != nil {
		c.sendError(CodeNotAdmin, "admin role required")
		return
	}
	var data ChipsData
	if !decode(c, msg, &data) {
		return
	}

	e, p := h.findSeated(data.UserID)
	if p == nil {
		c.sendError(CodePlayerNotFound, "player is not seated")
		return
	}

	sess, err := h.ensureSession()
	if err != nil {
		c.sendError(CodeServerError, "session unavailable")
		return
	}

	var kind string
	var ledgerAmount int
	e.mu.Lock()
	switch msg.Type {
	case MessageTypeGiveChips:
		if data.Amount <= 0 {
			e.mu.Unlock()
			c.sendError(CodeChipError, "amount must be positive")
			return
		}
		p.Chips += data.Amount
		kind, ledgerAmount = store.TxBuyIn, data.Amount
	case MessageTypeTakeChips:
		if data.Amount <= 0 || data.Amount > p.Chips {
			e.mu.Unlock()
			c.sendError(CodeChipError, "amount exceeds stack")
			return
		}
		p.Chips -= data.Amount
		kind, ledgerAmount = store.TxCashOut, data.Amount
	case MessageTypeSetChips:
		if data.Amount < 0 {
			e.mu.Unlock()
			c.sendError(CodeChipError, "stack cannot be negative")
			return
		}
		delta := data.Amount - p.Chips
		p.Chips = data.Amount
		kind, ledgerAmount = store.TxAdjustment, delta
	}
	chips := p.Chips
	e.mu.Unlock()

	if _, err := h.store.RecordTransaction(sess.ID, data.UserID, kind, ledgerAmount, id.UserID, data.Note); err != nil {
		h.logger.Warn("recording chip op", "user", data.UserID, "error", err)
	}

	h.broadcastTable(e.table.ID, MessageTypeChipsUpdated, ChipsUpdatedData{
		UserID: data.UserID,
		Chips:  chips,
		Note:   data.Note,
	})
	h.persist(e)
	h.broadcastState(e)
	h.maybeAutoStart(e)
}

// findSeated locates a user's seat across all tables.
func (h *Hub) findSeated(userID string) (*tableEntry, *game.Player) {
	tableID, ok := h.sessions.SeatBinding(userID)
	if !ok {
		return nil, nil
	}
	e, ok := h.entry(tableID)
	if !ok {
		return nil, nil
	}
	e.mu.Lock()
	p := e.table.Player(userID)
	e.mu.Unlock()
	return e, p
}

func (h *Hub) handleGetLedger(c *Connection, msg *Message, id auth.Identity) {
	if err := auth.RequireAdmin(id); err != nil {
		c.sendError(CodeNotAdmin, "admin role required")
		return
	}
	sess, err := h.store.ActiveSession()
	if err != nil {
		c.sendError(CodeServerError, "no active session")
		return
	}
	txs, err := h.store.SessionTransactions(sess.ID)
	if err != nil {
		c.sendError(CodeServerError, "ledger unavailable")
		return
	}
	h.reply(c, msg, MessageTypeLedger, LedgerData{SessionID: sess.ID, Transactions: txs})
}

func (h *Hub) handleGetStandings(c *Connection, msg *Message) {
	sess, err := h.store.ActiveSession()
	if err != nil {
		c.sendError(CodeServerError, "no active session")
		return
	}
	standings, err := h.store.Standings(sess.ID)
	if err != nil {
		c.sendError(CodeServerError, "standings unavailable")
		return
	}
	h.reply(c, msg, MessageTypeStandings, StandingsData{SessionID: sess.ID, Standings: standings})
}

// handleEndSession closes the poker night: every seated stack becomes a
// cash-out row, the session is settled in one transaction, and the
// settlement report is exported.
func (h *Hub) handleEndSession(c *Connection, id auth.Identity) {
	if err := auth.RequireAdmin(id); err != nil {
		c.sendError(CodeNotAdmin, "admin role required")
		return
	}
	sess, err := h.store.ActiveSession()
	if err != nil {
		c.sendError(CodeServerError, "no active session")
		return
	}

	h.mu.RLock()
	entries := make([]*tableEntry, 0, len(h.tables))
	for _, e := range h.tables {
		entries = append(entries, e)
	}
	h.mu.RUnlock()

	var cashOuts []store.CashOut
	for _, e := range entries {
		e.mu.Lock()
		for _, p := range e.table.Players() {
			cashOuts = append(cashOuts, store.CashOut{UserID: p.UserID, Amount: p.Chips + p.Wager})
		}
		e.mu.Unlock()
	}

	if err := h.store.SettleSession(sess.ID, cashOuts, id.UserID); err != nil {
		c.sendError(CodeServerError, "settling session failed")
		return
	}
	if err := h.store.ExportSettlement(h.settlementPath(sess.ID), sess.ID); err != nil {
		h.logger.Warn("exporting settlement", "session", sess.ID, "error", err)
	}

	// Clear the tables; stacks are settled.
	for _, e := range entries {
		e.mu.Lock()
		for _, p := range e.table.Players() {
			_, _ = e.table.RemovePlayer(p.UserID)
			h.sessions.Unbind(p.UserID)
			h.sessions.Drop(p.UserID)
		}
		e.mu.Unlock()
		h.persist(e)
		h.broadcastState(e)
	}
	h.broadcastLobby()

	standings, err := h.store.Standings(sess.ID)
	if err != nil {
		h.logger.Warn("reading final standings", "session", sess.ID, "error", err)
	}
	h.broadcastAll(MessageTypeSessionEnded, SessionEndedData{SessionID: sess.ID, Standings: standings})
	h.logger.Info("session ended", "session", sess.ID, "by", id.UserID)
}

// broadcastAll sends one payload to every authenticated connection.
func (h *Hub) broadcastAll(mt MessageType, data any) {
	msg, err := NewMessage(mt, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		_ = c.SendMessage(msg)
	}
}

// mapGameError translates engine sentinels to wire error codes.
func mapGameError(err error) string {
	switch {
	case errors.Is(err, game.ErrNotYourTurn), errors.Is(err, game.ErrIllegalAction):
		return CodeInvalidAction
	case errors.Is(err, game.ErrSeatTaken), errors.Is(err, game.ErrTableFull):
		return CodeSeatTaken
	case errors.Is(err, game.ErrInvalidSeat):
		return CodeInvalidSeat
	case errors.Is(err, game.ErrAlreadySeated):
		return CodeAlreadySeated
	case errors.Is(err, game.ErrNotSeated):
		return CodeNotAtTable
	case errors.Is(err, game.ErrCannotStart):
		return CodeCannotStart
	default:
		return CodeServerError
	}
}
