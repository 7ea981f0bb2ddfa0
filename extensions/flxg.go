package extensions

import (
	"github.com/zucenko/ustcchess/game"
	"github.com/zucenko/ustcchess/model"
)

const (
	FLXGHunter   = 99
	FLXGPawn1    = 11
	FLXGPawn2    = 12
	FLXGBarrier1 = 101
	FLXGBarrier2 = 102
)

type flxg struct{}

func NewFLXG() game.Extension { return flxg{} }

func (flxg) Info() game.Info {
	return game.Info{Key: "flxg-chess", Name: "FLXG chess", Author: "XeF2, Lithium", Version: "1.0.1"}
}

func (flxg) ModifyMove(b *model.Board, pos model.Position, moves *model.Moves) error {
	c := b.Get(pos)
	switch {
	case c.ID == FLXGHunter:
		// only lands on occupied, non-neutral cells
		b.Walk(pos, func(np model.Position, _ model.Direction, _ int) bool {
			t := b.Get(np)
			if t != nil && t.Camp != 0 {
				*moves = append(*moves, np)
			}
			return t != nil
		})
	case (c.ID == FLXGPawn1 || c.ID == FLXGPawn2) && c.Attr.Bool(AttrPromoted):
		*moves = (*moves)[:0]
		b.Walk(pos, func(np model.Position, _ model.Direction, _ int) bool {
			t := b.Get(np)
			if t != nil && (t.ID == FLXGBarrier1 || t.ID == FLXGBarrier2) {
				return false
			}
			if t != nil && !model.CanEat(c.Camp, t.Camp) {
				return true
			}
			*moves = append(*moves, np)
			return t != nil
		})
	}
	return nil
}
