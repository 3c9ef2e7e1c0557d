package server

import (
	"encoding/json"
	"time"

	"github.com/lox/homegame/internal/auth"
	"github.com/lox/homegame/internal/deck"
	"github.com/lox/homegame/internal/game"
	"github.com/lox/homegame/internal/store"
)

// MessageType identifies a protocol frame.
type MessageType string

// Client to server.
const (
	MessageTypeRegister     MessageType = "register"
	MessageTypeLogin        MessageType = "login"
	MessageTypeRefreshToken MessageType = "refresh_token"
	MessageTypeAuth         MessageType = "auth"
	MessageTypePing         MessageType = "ping"
	MessageTypeListTables   MessageType = "list_tables"
	MessageTypeCreateTable  MessageType = "create_table"
	MessageTypeDeleteTable  MessageType = "delete_table"
	MessageTypeJoinTable    MessageType = "join_table"
	MessageTypeLeaveTable   MessageType = "leave_table"
	MessageTypeStandUp      MessageType = "stand_up"
	MessageTypeAction       MessageType = "action"
	MessageTypeChat         MessageType = "chat"
	MessageTypeStartGame    MessageType = "start_game"
	MessageTypeGiveChips    MessageType = "give_chips"
	MessageTypeTakeChips    MessageType = "take_chips"
	MessageTypeSetChips     MessageType = "set_chips"
	MessageTypeGetLedger    MessageType = "get_ledger"
	MessageTypeGetStandings MessageType = "get_standings"
	MessageTypeEndSession   MessageType = "end_session"
)

// Server to client.
const (
	MessageTypeAuthSuccess        MessageType = "auth_success"
	MessageTypePong               MessageType = "pong"
	MessageTypeError              MessageType = "error"
	MessageTypeTableList          MessageType = "table_list"
	MessageTypeTableCreated       MessageType = "table_created"
	MessageTypeTableDeleted       MessageType = "table_deleted"
	MessageTypeJoinedTable        MessageType = "joined_table"
	MessageTypeLeftTable          MessageType = "left_table"
	MessageTypePlayerJoined       MessageType = "player_joined"
	MessageTypePlayerLeft         MessageType = "player_left"
	MessageTypePlayerDisconnected MessageType = "player_disconnected"
	MessageTypePlayerReconnected  MessageType = "player_reconnected"
	MessageTypeGameState          MessageType = "game_state"
	MessageTypeHandStarted        MessageType = "hand_started"
	MessageTypePlayerAction       MessageType = "player_action"
	MessageTypeHandResult         MessageType = "hand_result"
	MessageTypeChatBroadcast      MessageType = "chat_broadcast"
	MessageTypeStandings          MessageType = "standings"
	MessageTypeLedger             MessageType = "ledger"
	MessageTypeChipsUpdated       MessageType = "chips_updated"
	MessageTypeSessionEnded       MessageType = "session_ended"
	MessageTypeDisplaced          MessageType = "displaced"
)

// Error codes carried in error frames. Errors never close the connection.
const (
	CodeBadJSON         = "BAD_JSON"
	CodeUnknownType     = "UNKNOWN_TYPE"
	CodeAuthRequired    = "AUTH_REQUIRED"
	CodeAuthFailed      = "AUTH_FAILED"
	CodeRefreshFailed   = "REFRESH_FAILED"
	CodeNotAdmin        = "NOT_ADMIN"
	CodeTableNotFound   = "TABLE_NOT_FOUND"
	CodeTableHasPlayers = "TABLE_HAS_PLAYERS"
	CodeSeatTaken       = "SEAT_TAKEN"
	CodeInvalidSeat     = "INVALID_SEAT"
	CodeAlreadySeated   = "ALREADY_SEATED"
	CodeNotAtTable      = "NOT_AT_TABLE"
	CodePlayerNotFound  = "PLAYER_NOT_FOUND"
	CodeInvalidAction   = "INVALID_ACTION"
	CodeCannotStart     = "CANNOT_START"
	CodeChipError       = "CHIP_ERROR"
	CodeServerError     = "SERVER_ERROR"
)

// Message is the wire envelope for every frame in both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage wraps a payload in an envelope stamped with the current time.
func NewMessage(messageType MessageType, data any) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return &Message{Type: messageType, Data: raw, Timestamp: time.Now()}, nil
}

// Client payloads.

type RegisterData struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginData struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshTokenData struct {
	RefreshToken string `json:"refresh_token"`
}

type AuthData struct {
	Token string `json:"token"`
}

type CreateTableData struct {
	Name       string  `json:"name"`
	SmallBlind int     `json:"small_blind"`
	BigBlind   int     `json:"big_blind"`
	MinPlayers int     `json:"min_players,omitempty"`
	MaxPlayers int     `json:"max_players,omitempty"`
	MinBuyIn   int     `json:"min_buy_in,omitempty"`
	MaxBuyIn   int     `json:"max_buy_in,omitempty"`
	TurnTime   float64 `json:"turn_time_seconds,omitempty"`
}

type DeleteTableData struct {
	TableID string `json:"table_id"`
}

// JoinTableData seats the sender when a seat is requested; with no seat
// the sender joins as a spectator. Re-joining while seated is a re-sync.
type JoinTableData struct {
	TableID string `json:"table_id"`
	Seat    *int   `json:"seat,omitempty"`
	BuyIn   int    `json:"buy_in,omitempty"`
}

type LeaveTableData struct {
	TableID string `json:"table_id"`
}

type ActionData struct {
	Kind   game.ActionKind `json:"kind"`
	Amount int             `json:"amount,omitempty"`
}

type ChatData struct {
	Text string `json:"text"`
}

type ChipsData struct {
	UserID string `json:"user_id"`
	Amount int    `json:"amount"`
	Note   string `json:"note,omitempty"`
}

// Server payloads.

type AuthSuccessData struct {
	Identity auth.Identity   `json:"identity"`
	Tokens   *auth.TokenPair `json:"tokens,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TableInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SmallBlind  int    `json:"small_blind"`
	BigBlind    int    `json:"big_blind"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	MinBuyIn    int    `json:"min_buy_in"`
	MaxBuyIn    int    `json:"max_buy_in"`
	Stage       string `json:"stage"`
}

type TableListData struct {
	Tables []TableInfo `json:"tables"`
}

type JoinedTableData struct {
	TableID   string `json:"table_id"`
	Seat      int    `json:"seat"`
	Spectator bool   `json:"spectator"`
}

type PlayerJoinedData struct {
	TableID  string `json:"table_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Seat     int    `json:"seat"`
	Chips    int    `json:"chips"`
}

type PlayerLeftData struct {
	TableID string `json:"table_id"`
	UserID  string `json:"user_id"`
}

type PlayerDisconnectedData struct {
	TableID      string  `json:"table_id"`
	UserID       string  `json:"user_id"`
	GraceSeconds float64 `json:"grace_seconds"`
}

type PlayerReconnectedData struct {
	TableID string `json:"table_id"`
	UserID  string `json:"user_id"`
}

type HandStartedData struct {
	TableID    string `json:"table_id"`
	HandNumber int    `json:"hand_number"`
	DealerSeat int    `json:"dealer_seat"`
	SmallBlind int    `json:"small_blind"`
	BigBlind   int    `json:"big_blind"`
}

type PlayerActionData struct {
	TableID string          `json:"table_id"`
	UserID  string          `json:"user_id"`
	Action  game.ActionKind `json:"action"`
	Amount  int             `json:"amount,omitempty"`
	Pot     int             `json:"pot"`
	Timeout bool            `json:"timeout,omitempty"`
}

type HandResultData struct {
	TableID    string                 `json:"table_id"`
	HandNumber int                    `json:"hand_number"`
	Winners    []game.Winner          `json:"winners"`
	Community  []deck.Card            `json:"community,omitempty"`
	Revealed   map[string][]deck.Card `json:"revealed,omitempty"`
	Pot        int                    `json:"pot"`
}

type ChatBroadcastData struct {
	TableID  string    `json:"table_id"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

type StandingsData struct {
	SessionID int64                 `json:"session_id"`
	Standings []store.PlayerSummary `json:"standings"`
}

type LedgerData struct {
	SessionID    int64               `json:"session_id"`
	Transactions []store.Transaction `json:"transactions"`
}

type ChipsUpdatedData struct {
	UserID string `json:"user_id"`
	Chips  int    `json:"chips"`
	Note   string `json:"note,omitempty"`
}

type SessionEndedData struct {
	SessionID int64                 `json:"session_id"`
	Standings []store.PlayerSummary `json:"standings"`
}
