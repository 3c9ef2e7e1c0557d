package game

import "errors"

// Contract violations surface as typed errors without mutating table state.
// The server maps these to wire error codes at the handler boundary.
var (
	ErrNotYourTurn   = errors.New("game: not your turn")
	ErrIllegalAction = errors.New("game: illegal action")
	ErrCannotStart   = errors.New("game: cannot start hand")
	ErrInvalidSeat   = errors.New("game: invalid seat")
	ErrSeatTaken     = errors.New("game: seat taken")
	ErrTableFull     = errors.New("game: table full")
	ErrAlreadySeated = errors.New("game: already seated")
	ErrNotSeated     = errors.New("game: player not seated")
)
