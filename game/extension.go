package game

import "github.com/zucenko/ustcchess/model"

// Info identifies a rule module.
type Info struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Author  string `json:"author"`
	Version string `json:"version"`
}

// Extension is a rule module. It contributes behaviour by also implementing
// any of Initializer, MoveModifier, AfterMover and DeathHandler.
type Extension interface {
	Info() Info
}

// Initializer receives the API of the match once, before any other hook.
type Initializer interface {
	Init(api API) error
}

// MoveModifier rewrites the candidate destinations of the chess at pos.
// It may add, remove or replace entries of moves.
type MoveModifier interface {
	ModifyMove(board *model.Board, pos model.Position, moves *model.Moves) error
}

// AfterMover reacts to a committed move. turn is the camp that moved.
type AfterMover interface {
	AfterMove(board *model.Board, from, to model.Position, turn int) error
}

// DeathHandler reacts to any capture. pos is where the capture happened.
type DeathHandler interface {
	OnDeath(board *model.Board, pos model.Position, dead *model.Chess) error
}

// API is what extensions may call back into.
type API interface {
	Cards() []model.Card
	EndGame(winner int, info string)
	// ChessDeath reports a piece removed by an extension so chief capture and
	// every DeathHandler see it like an ordinary capture.
	ChessDeath(board *model.Board, pos model.Position, dead *model.Chess)
	AvailableMoves(board *model.Board, pos model.Position) model.Moves
}

// HookFuncs adapts plain functions into an Extension. A nil function means
// the hook is absent.
type HookFuncs struct {
	ExtInfo        Info
	InitFunc       func(API) error
	ModifyMoveFunc func(*model.Board, model.Position, *model.Moves) error
	AfterMoveFunc  func(*model.Board, model.Position, model.Position, int) error
	OnDeathFunc    func(*model.Board, model.Position, *model.Chess) error
}

func (hf *HookFuncs) Info() Info { return hf.ExtInfo }

func (hf *HookFuncs) Init(api API) error {
	if hf.InitFunc == nil {
		return nil
	}
	return hf.InitFunc(api)
}

func (hf *HookFuncs) ModifyMove(b *model.Board, pos model.Position, moves *model.Moves) error {
	if hf.ModifyMoveFunc == nil {
		return nil
	}
	return hf.ModifyMoveFunc(b, pos, moves)
}

func (hf *HookFuncs) AfterMove(b *model.Board, from, to model.Position, turn int) error {
	if hf.AfterMoveFunc == nil {
		return nil
	}
	return hf.AfterMoveFunc(b, from, to, turn)
}

func (hf *HookFuncs) OnDeath(b *model.Board, pos model.Position, dead *model.Chess) error {
	if hf.OnDeathFunc == nil {
		return nil
	}
	return hf.OnDeathFunc(b, pos, dead)
}

var (
	_ Initializer  = (*HookFuncs)(nil)
	_ MoveModifier = (*HookFuncs)(nil)
	_ AfterMover   = (*HookFuncs)(nil)
	_ DeathHandler = (*HookFuncs)(nil)
)
