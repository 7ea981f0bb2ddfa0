package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var ErrInvalidMap = errors.New("invalid map")

type BoardSetting struct {
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	Intersection bool           `json:"intersection"`
	Init         map[string]int `json:"init"`
}

// Map is a board description as handed over by map loading.
type Map struct {
	ID          string            `json:"id"`
	Version     string            `json:"version"`
	Name        string            `json:"name"`
	Author      string            `json:"author"`
	Description string            `json:"description"`
	Cards       []Card            `json:"cards"`
	Chessboard  BoardSetting      `json:"chessboard"`
	Extensions  map[string]string `json:"extensions"`
}

func LoadMap(r io.Reader) (*Map, error) {
	var m Map
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMap, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Map) Validate() error {
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("%w: version %q: %v", ErrInvalidMap, m.Version, err)
	}
	if m.Chessboard.Width <= 0 || m.Chessboard.Height <= 0 {
		return fmt.Errorf("%w: board is %dx%d", ErrInvalidMap, m.Chessboard.Height, m.Chessboard.Width)
	}
	for i, c := range m.Cards {
		for _, r := range c.MoveRanges {
			if r.Direction < North || r.Direction > NorthWest {
				return fmt.Errorf("%w: card %d (#%d) has direction %d", ErrInvalidMap, c.ID, i, r.Direction)
			}
		}
	}
	for key, rng := range m.Extensions {
		if _, err := semver.NewConstraint(rng); err != nil {
			return fmt.Errorf("%w: extension %s range %q: %v", ErrInvalidMap, key, rng, err)
		}
	}
	return nil
}

// Card returns the unique card with id.
func (m *Map) Card(id int) (Card, bool) {
	var found Card
	n := 0
	for _, c := range m.Cards {
		if c.ID == id {
			found = c
			n++
		}
	}
	return found, n == 1
}

// GenerateBoard places every init entry whose key parses and whose card id is
// unique. Other entries are skipped.
func (m *Map) GenerateBoard() *Board {
	b := NewBoard(m.Chessboard.Height, m.Chessboard.Width)
	for key, id := range m.Chessboard.Init {
		p, ok := ParsePosition(key)
		if !ok || !b.InBounds(p) {
			continue
		}
		card, ok := m.Card(id)
		if !ok {
			continue
		}
		b.Set(p, b.NewChess(card))
	}
	b.renumber()
	return b
}

// renumber makes serials follow row-major order, independent of map iteration.
func (b *Board) renumber() {
	b.serial = 0
	b.Each(func(_ Position, c *Chess) {
		if c != nil {
			c.Serial = b.serial
			b.serial++
		}
	})
}

// ParsePosition reads the "[row,col]" keys used by map init tables.
func ParsePosition(s string) (Position, bool) {
	s = strings.Join(strings.Fields(s), "")
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return Position{}, false
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 2 {
		return Position{}, false
	}
	var p Position
	for i, part := range parts {
		if part == "" || strings.HasPrefix(part, "-") || strings.HasPrefix(part, "+") {
			return Position{}, false
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return Position{}, false
		}
		p[i] = n
	}
	return p, true
}
