package extensions

import (
	"github.com/zucenko/ustcchess/game"
	"github.com/zucenko/ustcchess/model"
)

const (
	XiangqiElephant1 = 5
	XiangqiElephant2 = 6
	XiangqiHorse1    = 7
	XiangqiHorse2    = 8
	XiangqiCannon1   = 11
	XiangqiCannon2   = 12
)

const InfoGeneralsFace = "generals must not face each other"

type chineseChess struct {
	api game.API
}

func NewChineseChess() game.Extension { return &chineseChess{} }

func (*chineseChess) Info() game.Info {
	return game.Info{Key: "Chinese-chess", Name: "Chinese chess", Author: "XeF2", Version: "1.0.0"}
}

func (x *chineseChess) Init(api game.API) error {
	x.api = api
	return nil
}

func (x *chineseChess) ModifyMove(b *model.Board, pos model.Position, moves *model.Moves) error {
	c := b.Get(pos)
	switch c.ID {
	case XiangqiElephant1, XiangqiElephant2:
		// exactly two steps, the first one is the blocking eye
		*moves = (*moves)[:0]
		b.Walk(pos, func(np model.Position, _ model.Direction, step int) bool {
			t := b.Get(np)
			if t != nil && !model.CanEat(c.Camp, t.Camp) {
				return true
			}
			if step == 2 {
				*moves = append(*moves, np)
			}
			return t != nil
		})
	case XiangqiHorse1, XiangqiHorse2:
		*moves = append(*moves, knightJumps(b, pos, c.Camp, true)...)
	case XiangqiCannon1, XiangqiCannon2:
		*moves = (*moves)[:0]
		screened := make(map[model.Direction]bool)
		b.Walk(pos, func(np model.Position, d model.Direction, _ int) bool {
			t := b.Get(np)
			if screened[d] {
				if t != nil && model.CanEat(c.Camp, t.Camp) {
					*moves = append(*moves, np)
				}
				return t != nil
			}
			if t != nil {
				screened[d] = true
			} else {
				*moves = append(*moves, np)
			}
			return false
		})
	}
	return nil
}

// AfterMove ends the game against the mover when one of its chiefs now sees
// an enemy chief along a file with nothing in between.
func (x *chineseChess) AfterMove(b *model.Board, _, _ model.Position, turn int) error {
	faced := false
	b.Each(func(p model.Position, c *model.Chess) {
		if faced || c == nil || !c.IsChief || c.Camp != turn {
			return
		}
		for _, d := range [2]model.Direction{model.North, model.South} {
			for np := model.Offset(p, d, 1); b.InBounds(np); np = model.Offset(np, d, 1) {
				t := b.Get(np)
				if t == nil {
					continue
				}
				if t.IsChief && model.CanEat(c.Camp, t.Camp) {
					faced = true
				}
				break
			}
		}
	})
	if faced && x.api != nil {
		x.api.EndGame(model.Opponent(turn), InfoGeneralsFace)
	}
	return nil
}
