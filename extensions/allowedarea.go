package extensions

import (
	"github.com/zucenko/ustcchess/condition"
	"github.com/zucenko/ustcchess/game"
	"github.com/zucenko/ustcchess/model"
)

const AttrAllowedArea = "allowedArea"

type allowedArea struct{}

func NewAllowedArea() game.Extension { return allowedArea{} }

func (allowedArea) Info() game.Info {
	return game.Info{Key: "allowed-area", Name: "Allowed area", Author: "XeF2", Version: "1.0.0"}
}

// ModifyMove drops destinations outside the piece's allowedArea. A malformed
// area allows nothing.
func (allowedArea) ModifyMove(b *model.Board, pos model.Position, moves *model.Moves) error {
	area := b.Get(pos).Attr.String(AttrAllowedArea)
	if area == "" {
		return nil
	}
	expr, err := condition.Parse(area)
	out := (*moves)[:0]
	for _, p := range *moves {
		if err == nil && expr.Eval(p) {
			out = append(out, p)
		}
	}
	*moves = out
	return nil
}
