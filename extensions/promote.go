package extensions

import (
	"github.com/zucenko/ustcchess/condition"
	"github.com/zucenko/ustcchess/game"
	"github.com/zucenko/ustcchess/model"
)

const (
	AttrPromoteConditions    = "promoteConditions"
	AttrPromotedMoveRanges   = "promotedMoveRanges"
	AttrUnpromotedMoveRanges = "unpromotedMoveRanges"
)

// promote swaps a piece to its promoted move ranges once it lands on a cell
// satisfying its promoteConditions.
type promote struct{}

func NewPromote() game.Extension { return promote{} }

func (promote) Info() game.Info {
	return game.Info{Key: "promote", Name: "Promotion", Author: "XeF2", Version: "1.0.0"}
}

func (promote) AfterMove(b *model.Board, _, to model.Position, _ int) error {
	c := b.Get(to)
	if c == nil || c.Attr.Bool(AttrPromoted) {
		return nil
	}
	cond := c.Attr.String(AttrPromoteConditions)
	if cond == "" {
		return nil
	}
	expr, err := condition.Parse(cond)
	if err != nil {
		return err
	}
	if !expr.Eval(to) {
		return nil
	}
	c.SetAttr(AttrPromoted, true)
	c.Name += "+"
	c.SetAttr(AttrUnpromotedMoveRanges, c.MoveRanges)
	c.MoveRanges = c.Attr.MoveRanges(AttrPromotedMoveRanges)
	return nil
}
