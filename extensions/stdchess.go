package extensions

import (
	"github.com/zucenko/ustcchess/game"
	"github.com/zucenko/ustcchess/model"
)

// Card ids used by standard chess maps. Odd ids are camp 1, even camp 2.
const (
	StdKing1   = 1
	StdKing2   = 2
	StdKnight1 = 5
	StdKnight2 = 6
	StdRook1   = 7
	StdRook2   = 8
	StdPawn1   = 11
	StdPawn2   = 12
)

const (
	AttrLastPos   = "lastPos"
	AttrJustMoved = "justMoved"
	AttrEnPassant = "EnPassant"
	AttrPromoted  = "promoted"
)

// knightLegs pairs each orthogonal first step with the two diagonals that
// complete a knight jump.
var knightLegs = [4][3]model.Direction{
	{model.North, model.NorthWest, model.NorthEast},
	{model.East, model.NorthEast, model.SouthEast},
	{model.South, model.SouthEast, model.SouthWest},
	{model.West, model.SouthWest, model.NorthWest},
}

type stdChess struct {
	api game.API
}

func NewStdChess() game.Extension { return &stdChess{} }

func (*stdChess) Info() game.Info {
	return game.Info{Key: "stdchess", Name: "Standard chess", Author: "ArcanaEden", Version: "1.2.0"}
}

func (s *stdChess) Init(api game.API) error {
	s.api = api
	return nil
}

func (s *stdChess) ModifyMove(b *model.Board, pos model.Position, moves *model.Moves) error {
	c := b.Get(pos)
	switch c.ID {
	case StdKnight1, StdKnight2:
		*moves = append(*moves, knightJumps(b, pos, c.Camp, false)...)
	case StdPawn1, StdPawn2:
		if !c.Attr.Bool(AttrPromoted) {
			*moves = append(*moves, s.pawnMoves(b, pos, c)...)
		}
	case StdKing1, StdKing2:
		*moves = append(*moves, castlings(b, pos, c)...)
	}
	return nil
}

// knightJumps lists the jumps from pos. With blockable set, an occupied
// first step cancels both of its jumps.
func knightJumps(b *model.Board, pos model.Position, camp int, blockable bool) model.Moves {
	var out model.Moves
	for _, leg := range knightLegs {
		mid := model.Offset(pos, leg[0], 1)
		if !b.InBounds(mid) {
			continue
		}
		if blockable && b.Get(mid) != nil {
			continue
		}
		for _, d := range leg[1:] {
			np := model.Offset(mid, d, 1)
			if !b.InBounds(np) {
				continue
			}
			if t := b.Get(np); t != nil && !model.CanEat(camp, t.Camp) {
				continue
			}
			out = append(out, np)
		}
	}
	return out
}

func pawnForward(camp int) model.Direction {
	if camp == 1 {
		return model.North
	}
	return model.South
}

func pawnCaptures(camp int) [2]model.Direction {
	if camp == 1 {
		return [2]model.Direction{model.NorthEast, model.NorthWest}
	}
	return [2]model.Direction{model.SouthEast, model.SouthWest}
}

func isPawn(c *model.Chess) bool {
	return c != nil && (c.ID == StdPawn1 || c.ID == StdPawn2)
}

func (s *stdChess) pawnMoves(b *model.Board, pos model.Position, c *model.Chess) model.Moves {
	var out model.Moves
	for _, d := range pawnCaptures(c.Camp) {
		np := model.Offset(pos, d, 1)
		if t := b.Get(np); t != nil && model.CanEat(c.Camp, t.Camp) {
			out = append(out, np)
		}
	}
	fwd := pawnForward(c.Camp)
	one := model.Offset(pos, fwd, 1)
	if b.InBounds(one) && b.Get(one) == nil {
		out = append(out, one)
		home := (c.Camp == 1 && pos.Row() >= b.Rows()-2) || (c.Camp != 1 && pos.Row() <= 1)
		two := model.Offset(one, fwd, 1)
		if home && b.InBounds(two) && b.Get(two) == nil {
			out = append(out, two)
		}
	}

	var targets []model.Position
	for _, side := range [2]model.Direction{model.East, model.West} {
		np := model.Offset(pos, side, 1)
		victim := b.Get(np)
		if !isPawn(victim) || victim.ID == c.ID || !model.CanEat(c.Camp, victim.Camp) {
			continue
		}
		if victim.Attr.Bool(AttrPromoted) || !victim.Attr.Bool(AttrJustMoved) {
			continue
		}
		last, ok := victim.Attr.Position(AttrLastPos)
		if !ok || last != model.Offset(np, fwd, 2) {
			continue
		}
		target := model.Offset(np, fwd, 1)
		if !b.InBounds(target) || b.Get(target) != nil {
			continue
		}
		out = append(out, target)
		targets = append(targets, target)
	}
	c.SetAttr(AttrEnPassant, targets)
	return out
}

func homeRow(b *model.Board, camp int) int {
	if camp == 1 {
		return b.Rows() - 1
	}
	return 0
}

func isRook(c *model.Chess) bool {
	return c != nil && (c.ID == StdRook1 || c.ID == StdRook2)
}

func castlings(b *model.Board, pos model.Position, c *model.Chess) model.Moves {
	king := model.Position{homeRow(b, c.Camp), 4}
	if pos != king || c.Attr.Has(AttrLastPos) {
		return nil
	}
	var out model.Moves
	for _, side := range [2]struct {
		dir   model.Direction
		steps int
	}{{model.East, 3}, {model.West, 4}} {
		rookPos := model.Offset(king, side.dir, side.steps)
		rook := b.Get(rookPos)
		if !isRook(rook) || rook.Camp != c.Camp || rook.Attr.Has(AttrLastPos) {
			continue
		}
		clear := true
		for i := 1; i < side.steps; i++ {
			if b.Get(model.Offset(king, side.dir, i)) != nil {
				clear = false
				break
			}
		}
		if !clear {
			continue
		}
		safe := true
		for i := 0; i <= 2; i++ {
			if attacked(b, model.Offset(king, side.dir, i), c.Camp) {
				safe = false
				break
			}
		}
		if safe {
			out = append(out, model.Offset(king, side.dir, 2))
		}
	}
	return out
}

// attacked reports whether any enemy of camp threatens p. Kings, knights and
// pawns are evaluated with their own patterns so the scan never re-enters
// castling.
func attacked(b *model.Board, p model.Position, camp int) bool {
	hit := false
	b.Each(func(ep model.Position, e *model.Chess) {
		if hit || e == nil || !model.CanEat(e.Camp, camp) {
			return
		}
		var threats model.Moves
		switch e.ID {
		case StdKing1, StdKing2:
			for _, d := range model.Directions {
				threats = append(threats, model.Offset(ep, d, 1))
			}
		case StdKnight1, StdKnight2:
			threats = knightJumps(b, ep, e.Camp, false)
		case StdPawn1, StdPawn2:
			for _, d := range pawnCaptures(e.Camp) {
				threats = append(threats, model.Offset(ep, d, 1))
			}
		default:
			threats = game.BaseMoves(b, ep)
		}
		hit = threats.Contains(p)
	})
	return hit
}

func (s *stdChess) AfterMove(b *model.Board, from, to model.Position, _ int) error {
	b.Each(func(_ model.Position, c *model.Chess) {
		if isPawn(c) {
			c.SetAttr(AttrJustMoved, false)
		}
	})
	c := b.Get(to)
	if c == nil {
		return nil
	}
	c.SetAttr(AttrLastPos, from)
	c.SetAttr(AttrJustMoved, true)

	switch c.ID {
	case StdKing1, StdKing2:
		row := homeRow(b, c.Camp)
		if from != (model.Position{row, 4}) || to.Row() != row {
			break
		}
		switch to.Col() {
		case 2:
			moveRook(b, model.Position{row, 0}, model.Position{row, 3})
		case 6:
			moveRook(b, model.Position{row, 7}, model.Position{row, 5})
		}
	case StdPawn1, StdPawn2:
		for _, target := range c.Attr.Positions(AttrEnPassant) {
			if target != to {
				continue
			}
			victimPos := model.Position{from.Row(), to.Col()}
			if victim := b.Set(victimPos, nil); victim != nil && s.api != nil {
				s.api.ChessDeath(b, to, victim)
			}
		}
		delete(c.Attr, AttrEnPassant)
	}
	return nil
}

func moveRook(b *model.Board, from, to model.Position) {
	rook := b.Get(from)
	if !isRook(rook) {
		return
	}
	b.Move(from, to)
	rook.SetAttr(AttrLastPos, from)
}
