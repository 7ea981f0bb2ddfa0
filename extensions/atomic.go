package extensions

import (
	"github.com/zucenko/ustcchess/game"
	"github.com/zucenko/ustcchess/model"
)

const (
	AttrImmune    = "immune"
	InfoExplosion = "chief destroyed by explosion"
)

type atomic struct {
	api game.API
}

func NewAtomic() game.Extension { return &atomic{} }

func (*atomic) Info() game.Info {
	return game.Info{Key: "atomic", Name: "Atomic chess", Author: "ArcanaEden", Version: "1.0.0"}
}

func (a *atomic) Init(api game.API) error {
	a.api = api
	return nil
}

// OnDeath clears the eight neighbours of the capture square. Pawns and
// pieces flagged immune survive.
func (a *atomic) OnDeath(b *model.Board, pos model.Position, _ *model.Chess) error {
	for _, d := range model.Directions {
		np := model.Offset(pos, d, 1)
		c := b.Get(np)
		if c == nil || isPawn(c) || c.Attr.Bool(AttrImmune) {
			continue
		}
		b.Set(np, nil)
		if c.IsChief && a.api != nil {
			a.api.EndGame(model.Opponent(c.Camp), InfoExplosion)
		}
	}
	return nil
}
