package game

import "errors"

var (
	ErrNotStarted   = errors.New("game not started")
	ErrGameEnded    = errors.New("game has ended")
	ErrNotYourTurn  = errors.New("not your turn")
	ErrIllegalMove  = errors.New("illegal move")
	ErrEmptySquare  = errors.New("no chess at position")
	ErrOutOfBounds  = errors.New("position out of board")
	ErrAlreadyBegun = errors.New("game already started")
	ErrInvalidCamp  = errors.New("invalid camp")
)
