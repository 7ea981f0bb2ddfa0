package model

import "strconv"

// Position is a (row, col) pair. It has no bounds of its own.
type Position [2]int

func (p Position) Row() int { return p[0] }
func (p Position) Col() int { return p[1] }

func (p Position) String() string {
	return "[" + strconv.Itoa(p[0]) + "," + strconv.Itoa(p[1]) + "]"
}

// Direction numbers the eight compass directions clockwise from north.
type Direction int

const (
	North Direction = iota + 1
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

// Directions lists all eight directions in numeric order.
var Directions = []Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

var directionOffsets = [8]Position{
	{-1, 0},
	{-1, 1},
	{0, 1},
	{1, 1},
	{1, 0},
	{1, -1},
	{0, -1},
	{-1, -1},
}

// Unbounded as MaxStep slides until blocked or off the board.
const Unbounded = -1

type MoveRange struct {
	Direction Direction `json:"direction"`
	MaxStep   int       `json:"maxstep,omitempty"`
}

// Steps returns the step limit, or -1 for an unbounded slide.
func (r MoveRange) Steps() int {
	switch {
	case r.MaxStep == Unbounded:
		return Unbounded
	case r.MaxStep <= 0:
		return 1
	default:
		return r.MaxStep
	}
}

// Card is the immutable template of a piece, as declared by a map.
type Card struct {
	ID         int         `json:"id"`
	Name       string      `json:"name"`
	Camp       int         `json:"camp"`
	MoveRanges []MoveRange `json:"moveRanges"`
	IsChief    bool        `json:"isChief,omitempty"`
	Attr       Attr        `json:"attr,omitempty"`
}

// Chess is a piece placed on a board. It owns its attribute bag.
type Chess struct {
	Card
	Serial int `json:"serial"`
}

// CanEat reports whether a piece of camp a may capture a piece of camp b.
func CanEat(a, b int) bool {
	return a != 0 && b != 0 && a != b
}

// Opponent returns the adversary of camp in a two-camp match.
func Opponent(camp int) int {
	if camp == 1 {
		return 2
	}
	return 1
}

type Board struct {
	Cells  [][]*Chess
	serial int
}

// Moves is a candidate destination list handed through the rule pipeline.
type Moves []Position
