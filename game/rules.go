package game

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/zucenko/ustcchess/model"
)

// Rules runs the extension pipeline over a board. Extensions are applied in
// the order given to NewRules. A hook that returns an error or panics is
// logged and skipped, and whatever it changed is rolled back.
type Rules struct {
	extensions []Extension
	cards      []model.Card
	end        func(winner int, info string)
	log        *log.Entry
}

// NewRules calls Init on every extension. end receives EndGame calls made by
// the pipeline or by extensions; it may be nil.
func NewRules(cards []model.Card, extensions []Extension, end func(winner int, info string), logger *log.Entry) *Rules {
	if logger == nil {
		logger = log.WithField("component", "rules")
	}
	r := &Rules{
		extensions: extensions,
		cards:      cards,
		end:        end,
		log:        logger,
	}
	for _, ext := range r.extensions {
		if in, ok := ext.(Initializer); ok {
			r.guard(ext, "init", func() error { return in.Init(r) })
		}
	}
	return r
}

func (r *Rules) Cards() []model.Card { return r.cards }

func (r *Rules) EndGame(winner int, info string) {
	if r.end != nil {
		r.end(winner, info)
	}
}

// BaseMoves walks every move range of the chess at pos. Empty cells are
// added and the ray goes on, an enemy is added and ends the ray, anything
// else blocks it.
func BaseMoves(board *model.Board, pos model.Position) model.Moves {
	c := board.Get(pos)
	if c == nil {
		return nil
	}
	moves := model.Moves{}
	board.Walk(pos, func(np model.Position, _ model.Direction, _ int) bool {
		target := board.Get(np)
		if target == nil {
			moves = append(moves, np)
			return false
		}
		if model.CanEat(c.Camp, target.Camp) {
			moves = append(moves, np)
		}
		return true
	})
	return moves
}

// AvailableMoves is the final candidate list of the chess at pos.
func (r *Rules) AvailableMoves(board *model.Board, pos model.Position) model.Moves {
	if board.Get(pos) == nil {
		return nil
	}
	moves := BaseMoves(board, pos)
	for _, ext := range r.extensions {
		mm, ok := ext.(MoveModifier)
		if !ok {
			continue
		}
		snapshot := moves.Clone()
		if !r.guardBoard(board, ext, "modifyMove", func() error { return mm.ModifyMove(board, pos, &moves) }) {
			moves = snapshot
		}
		// a modifier may have removed the piece itself
		if board.Get(pos) == nil {
			return nil
		}
	}
	out := moves[:0]
	for _, p := range moves {
		if board.InBounds(p) {
			out = append(out, p)
		}
	}
	return out.Dedup()
}

// Commit executes a move that has already been validated and runs the death
// and after-move hooks. It returns the captured chess, if any.
func (r *Rules) Commit(board *model.Board, from, to model.Position, turn int) *model.Chess {
	captured := board.Move(from, to)
	if captured != nil {
		r.ChessDeath(board, to, captured)
	}
	for _, ext := range r.extensions {
		if am, ok := ext.(AfterMover); ok {
			r.guardBoard(board, ext, "afterMove", func() error { return am.AfterMove(board, from, to, turn) })
		}
	}
	return captured
}

func (r *Rules) ChessDeath(board *model.Board, pos model.Position, dead *model.Chess) {
	if dead == nil {
		return
	}
	if dead.IsChief {
		r.EndGame(model.Opponent(dead.Camp), fmt.Sprintf("%s captured", dead.Name))
	}
	for _, ext := range r.extensions {
		if dh, ok := ext.(DeathHandler); ok {
			r.guardBoard(board, ext, "onDeath", func() error { return dh.OnDeath(board, pos, dead) })
		}
	}
}

func (r *Rules) guardBoard(board *model.Board, ext Extension, hook string, fn func() error) bool {
	snapshot := board.Clone()
	if r.guard(ext, hook, fn) {
		return true
	}
	board.Restore(snapshot)
	return false
}

func (r *Rules) guard(ext Extension, hook string, fn func() error) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(log.Fields{
				"extension": ext.Info().Key,
				"hook":      hook,
				"panic":     rec,
			}).Warn("extension hook panicked")
			ok = false
		}
	}()
	if err := fn(); err != nil {
		r.log.WithFields(log.Fields{
			"extension": ext.Info().Key,
			"hook":      hook,
		}).WithError(err).Warn("extension hook failed")
		return false
	}
	return true
}
