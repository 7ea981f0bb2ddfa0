package server

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/zucenko/ustcchess/extensions"
	"github.com/zucenko/ustcchess/game"
	"github.com/zucenko/ustcchess/model"
)

// Load builds a fresh match for a room: its own board from the map and its
// own extension instances.
func Load(m *model.Map, reg *extensions.Registry, logger *log.Entry) (*game.Match, error) {
	exts, err := reg.Resolve(m.Extensions)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", m.ID, err)
	}
	return game.NewMatch(m.GenerateBoard(), m.Cards, exts, logger), nil
}
