package model

import "encoding/json"

func NewBoard(rows, cols int) *Board {
	cells := make([][]*Chess, 0, rows)
	for r := 0; r < rows; r++ {
		cells = append(cells, make([]*Chess, cols))
	}
	return &Board{Cells: cells}
}

func (b *Board) Rows() int { return len(b.Cells) }

func (b *Board) Cols() int {
	if len(b.Cells) == 0 {
		return 0
	}
	return len(b.Cells[0])
}

func (b *Board) InBounds(p Position) bool {
	return p[0] >= 0 && p[0] < b.Rows() && p[1] >= 0 && p[1] < b.Cols()
}

// Get returns the chess at p, nil for an empty or out of range cell.
func (b *Board) Get(p Position) *Chess {
	if !b.InBounds(p) {
		return nil
	}
	return b.Cells[p[0]][p[1]]
}

// Set places c at p and returns the previous occupant.
func (b *Board) Set(p Position, c *Chess) *Chess {
	if !b.InBounds(p) {
		return nil
	}
	old := b.Cells[p[0]][p[1]]
	b.Cells[p[0]][p[1]] = c
	return old
}

// Move lifts the chess at from onto to and returns what was captured there.
func (b *Board) Move(from, to Position) *Chess {
	return b.Set(to, b.Set(from, nil))
}

// NewChess copies card into a fresh board instance with its own attributes.
func (b *Board) NewChess(card Card) *Chess {
	c := &Chess{Card: card, Serial: b.serial}
	b.serial++
	c.MoveRanges = append([]MoveRange(nil), card.MoveRanges...)
	c.Attr = card.Attr.Clone()
	if c.Attr == nil {
		c.Attr = Attr{}
	}
	return c
}

// Occupied counts non-empty cells.
func (b *Board) Occupied() int {
	n := 0
	for _, row := range b.Cells {
		for _, c := range row {
			if c != nil {
				n++
			}
		}
	}
	return n
}

// Each visits every cell in row-major order.
func (b *Board) Each(fn func(p Position, c *Chess)) {
	for r, row := range b.Cells {
		for col, c := range row {
			fn(Position{r, col}, c)
		}
	}
}

// Clone deep copies the board, pieces and attributes included.
func (b *Board) Clone() *Board {
	nb := &Board{Cells: make([][]*Chess, len(b.Cells)), serial: b.serial}
	for r, row := range b.Cells {
		nb.Cells[r] = make([]*Chess, len(row))
		for col, c := range row {
			if c != nil {
				nb.Cells[r][col] = c.Clone()
			}
		}
	}
	return nb
}

// Restore resets b to a snapshot taken by Clone.
func (b *Board) Restore(snapshot *Board) {
	b.Cells = snapshot.Cells
	b.serial = snapshot.serial
}

func (b *Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Cells)
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var cells [][]*Chess
	if err := json.Unmarshal(data, &cells); err != nil {
		return err
	}
	b.Cells = cells
	b.serial = 0
	for _, row := range cells {
		for _, c := range row {
			if c == nil {
				continue
			}
			if c.Attr == nil {
				c.Attr = Attr{}
			}
			if c.Serial >= b.serial {
				b.serial = c.Serial + 1
			}
		}
	}
	return nil
}

func (c *Chess) Clone() *Chess {
	if c == nil {
		return nil
	}
	nc := *c
	nc.MoveRanges = append([]MoveRange(nil), c.MoveRanges...)
	nc.Attr = c.Attr.Clone()
	return &nc
}

// DirectionOffset returns the unit vector of d, or zero for an unknown direction.
func DirectionOffset(d Direction) Position {
	if d < North || d > NorthWest {
		return Position{}
	}
	return directionOffsets[d-1]
}

// Offset returns p moved steps times along d.
func Offset(p Position, d Direction, steps int) Position {
	o := DirectionOffset(d)
	return Position{p[0] + o[0]*steps, p[1] + o[1]*steps}
}

// Walk runs every move range of the chess at p, calling visit for each
// in-bounds step until the range is exhausted, the edge is reached or visit
// returns true.
func (b *Board) Walk(p Position, visit func(np Position, d Direction, step int) bool) {
	c := b.Get(p)
	if c == nil {
		return
	}
	for _, r := range c.MoveRanges {
		b.WalkRange(p, r, visit)
	}
}

// WalkRange walks a single range from p.
func (b *Board) WalkRange(p Position, r MoveRange, visit func(np Position, d Direction, step int) bool) {
	max := r.Steps()
	if DirectionOffset(r.Direction) == (Position{}) {
		return
	}
	for step := 1; max == Unbounded || step <= max; step++ {
		np := Offset(p, r.Direction, step)
		if !b.InBounds(np) {
			return
		}
		if visit(np, r.Direction, step) {
			return
		}
	}
}

func (m Moves) Contains(p Position) bool {
	for _, q := range m {
		if q == p {
			return true
		}
	}
	return false
}

// Dedup drops repeated coordinates, keeping first occurrences in order.
func (m Moves) Dedup() Moves {
	seen := make(map[Position]struct{}, len(m))
	out := m[:0]
	for _, p := range m {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func (m Moves) Clone() Moves {
	if m == nil {
		return nil
	}
	return append(Moves(nil), m...)
}
