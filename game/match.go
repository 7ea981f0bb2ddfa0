package game

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/zucenko/ustcchess/model"
)

type State int

const (
	NotStarted State = iota
	InProgress
	Ended
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case InProgress:
		return "in-progress"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("n/a:%d", int(s))
	}
}

// Result of an ended match. Winner 0 is a draw.
type Result struct {
	Winner int    `json:"winner"`
	Info   string `json:"info,omitempty"`
}

type DrawOutcome int

const (
	// DrawNone: nothing pending changed.
	DrawNone DrawOutcome = iota
	// DrawOffered: the opponent should be asked.
	DrawOffered
	// DrawRefused: a pending offer was withdrawn or declined.
	DrawRefused
	// DrawAgreed: the match ended as a draw.
	DrawAgreed
)

const (
	InfoNoMoves   = "no movable chess"
	InfoSurrender = "surrender"
	InfoDraw      = "draw agreed"
)

// Match is the turn state machine of a two-camp game. It is not safe for
// concurrent use; the owner serialises every call.
type Match struct {
	board     *model.Board
	rules     *Rules
	state     State
	turn      int
	result    Result
	drawOffer map[int]bool
	onEnd     []func(Result)
	log       *log.Entry
}

func NewMatch(board *model.Board, cards []model.Card, extensions []Extension, logger *log.Entry) *Match {
	if logger == nil {
		logger = log.WithField("component", "match")
	}
	m := &Match{
		board:     board,
		drawOffer: make(map[int]bool),
		log:       logger,
	}
	m.rules = NewRules(cards, extensions, m.End, logger)
	return m
}

// OnEnd registers fn to be called once, when the match ends.
func (m *Match) OnEnd(fn func(Result)) {
	m.onEnd = append(m.onEnd, fn)
}

func (m *Match) Board() *model.Board { return m.board }
func (m *Match) Rules() *Rules       { return m.rules }
func (m *Match) State() State        { return m.state }
func (m *Match) Result() Result      { return m.result }

// Turn is the camp to move, 0 before the start.
func (m *Match) Turn() int { return m.turn }

// Snapshot returns the wire state with a deep copy of the board.
func (m *Match) Snapshot() model.State {
	return model.State{CurrentTurn: m.turn, Chessboard: m.board.Clone()}
}

func (m *Match) Start() error {
	switch m.state {
	case InProgress:
		return ErrAlreadyBegun
	case Ended:
		return ErrGameEnded
	}
	m.state = InProgress
	m.turn = 1
	m.log.Info("match started")
	return nil
}

// AvailableMoves is the legal destination list of the chess at pos,
// regardless of whose turn it is.
func (m *Match) AvailableMoves(pos model.Position) model.Moves {
	if !m.board.InBounds(pos) {
		return nil
	}
	return m.rules.AvailableMoves(m.board, pos)
}

// CanMove reports whether the chess at pos belongs to the side to move and
// has at least one destination.
func (m *Match) CanMove(pos model.Position) bool {
	c := m.board.Get(pos)
	if c == nil || c.Camp != m.turn {
		return false
	}
	return len(m.AvailableMoves(pos)) > 0
}

func (m *Match) CanMoveTo(pos, to model.Position) bool {
	c := m.board.Get(pos)
	if c == nil || c.Camp != m.turn {
		return false
	}
	return m.AvailableMoves(pos).Contains(to)
}

// Move validates and commits a move of the side to move.
func (m *Match) Move(from, to model.Position) error {
	switch m.state {
	case NotStarted:
		return ErrNotStarted
	case Ended:
		return ErrGameEnded
	}
	if !m.board.InBounds(from) || !m.board.InBounds(to) {
		return fmt.Errorf("%w: %v -> %v", ErrOutOfBounds, from, to)
	}
	c := m.board.Get(from)
	if c == nil {
		return fmt.Errorf("%w: %v", ErrEmptySquare, from)
	}
	if c.Camp != m.turn {
		return fmt.Errorf("%w: chess at %v belongs to camp %d", ErrNotYourTurn, from, c.Camp)
	}
	if !m.AvailableMoves(from).Contains(to) {
		return fmt.Errorf("%w: %v -> %v", ErrIllegalMove, from, to)
	}

	mover := m.turn
	m.rules.Commit(m.board, from, to, mover)
	m.turn = model.Opponent(mover)
	m.log.WithFields(log.Fields{"from": from, "to": to, "camp": mover}).Debug("move committed")
	if m.state == Ended {
		return nil
	}
	if !m.hasMoves() {
		m.End(mover, InfoNoMoves)
	}
	return nil
}

func (m *Match) hasMoves() bool {
	for r := 0; r < m.board.Rows(); r++ {
		for c := 0; c < m.board.Cols(); c++ {
			if m.CanMove(model.Position{r, c}) {
				return true
			}
		}
	}
	return false
}

func (m *Match) Surrender(camp int) error {
	if err := m.checkCamp(camp); err != nil {
		return err
	}
	m.End(model.Opponent(camp), InfoSurrender)
	return nil
}

// OfferDraw records camp agreeing to, or refusing, a draw.
func (m *Match) OfferDraw(camp int, agree bool) (DrawOutcome, error) {
	if err := m.checkCamp(camp); err != nil {
		return DrawNone, err
	}
	other := model.Opponent(camp)
	if !agree {
		if !m.drawOffer[camp] && !m.drawOffer[other] {
			return DrawNone, nil
		}
		m.drawOffer = make(map[int]bool)
		return DrawRefused, nil
	}
	if m.drawOffer[other] {
		m.End(0, InfoDraw)
		return DrawAgreed, nil
	}
	m.drawOffer[camp] = true
	return DrawOffered, nil
}

// DrawPending reports whether camp has an open offer.
func (m *Match) DrawPending(camp int) bool { return m.drawOffer[camp] }

func (m *Match) checkCamp(camp int) error {
	switch m.state {
	case NotStarted:
		return ErrNotStarted
	case Ended:
		return ErrGameEnded
	}
	if camp != 1 && camp != 2 {
		return fmt.Errorf("%w: %d", ErrInvalidCamp, camp)
	}
	return nil
}

// End freezes the match. Only the first call has any effect.
func (m *Match) End(winner int, info string) {
	if m.state == Ended {
		return
	}
	m.state = Ended
	m.result = Result{Winner: winner, Info: info}
	m.drawOffer = make(map[int]bool)
	m.log.WithFields(log.Fields{"winner": winner, "info": info}).Info("match ended")
	for _, fn := range m.onEnd {
		fn(m.result)
	}
}
