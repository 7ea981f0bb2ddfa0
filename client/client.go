// Package client is the player side of a room: it holds a mirror of the
// board, answers move queries locally and forwards requests to the server.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/zucenko/ustcchess/extensions"
	"github.com/zucenko/ustcchess/game"
	"github.com/zucenko/ustcchess/model"
)

var (
	ErrConnectFailed = errors.New("connect failed")
	ErrTimeout       = errors.New("request timed out")
	ErrClosed        = errors.New("client closed")
	ErrRejected      = errors.New("request rejected")
)

const DefaultTimeout = 10 * time.Second

type Options struct {
	// Timeout bounds the handshake and every correlated request.
	Timeout time.Duration
	Logger  *log.Entry
	Header  http.Header
	// Manual leaves sending prepared to Ready.
	Manual bool
	// EventBuffer is the capacity of Events; frames are dropped when full.
	EventBuffer int
}

type Client struct {
	conn   *websocket.Conn
	opts   Options
	log    *log.Entry
	camp   int
	m      *model.Map
	rules  *game.Rules
	events chan model.Message
	done   chan struct{}

	writeMu sync.Mutex

	mu      sync.Mutex
	board   *model.Board
	turn    int
	started bool
	ended   bool
	result  model.GameEnd
	pending map[string]chan model.Message
	closed  bool
	err     error
}

// Dial joins the room at url and waits for the server to assign a camp.
func Dial(ctx context.Context, url string, reg *extensions.Registry, opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "client")
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	if reg == nil {
		reg = extensions.Builtin()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	cs, err := handshake(conn, opts.Timeout)
	if err != nil {
		conn.Close()
		return nil, err
	}
	exts, err := reg.Resolve(cs.MapData.Extensions)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn:    conn,
		opts:    opts,
		log:     opts.Logger.WithField("camp", cs.Camp),
		camp:    cs.Camp,
		m:       cs.MapData,
		events:  make(chan model.Message, opts.EventBuffer),
		done:    make(chan struct{}),
		board:   cs.MapData.GenerateBoard(),
		pending: make(map[string]chan model.Message),
	}
	// the server decides when the game ends; the mirror only follows
	c.rules = game.NewRules(cs.MapData.Cards, exts, func(int, string) {}, c.log)
	go c.loop()

	if !opts.Manual {
		if err := c.send(model.Envelope{Type: model.TypePrepared}); err != nil {
			c.Close()
			return nil, err
		}
	}
	c.log.Info("client connected")
	return c, nil
}

func handshake(conn *websocket.Conn, timeout time.Duration) (model.ConnectSuccess, error) {
	var cs model.ConnectSuccess
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return cs, err
	}
	var first model.Message
	if err := conn.ReadJSON(&first); err != nil {
		return cs, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return cs, err
	}
	switch first.Type {
	case model.TypeConnectSuccess:
	case model.TypeConnectFail:
		return cs, fmt.Errorf("%w: %s", ErrConnectFailed, first.Text())
	default:
		return cs, fmt.Errorf("%w: unexpected %q", ErrConnectFailed, first.Type)
	}
	if err := first.Decode(&cs); err != nil {
		return cs, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	if cs.MapData == nil {
		return cs, fmt.Errorf("%w: no map data", ErrConnectFailed)
	}
	return cs, nil
}

func (c *Client) Camp() int      { return c.camp }
func (c *Client) Map() *model.Map { return c.m }

// Events delivers every frame that is not the answer to a request.
func (c *Client) Events() <-chan model.Message { return c.events }

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Board returns a copy of the mirrored board.
func (c *Client) Board() *model.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Clone()
}

func (c *Client) CurrentTurn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn
}

// Result is the announced outcome; ok is false while the game runs.
func (c *Client) Result() (model.GameEnd, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.ended
}

// Err is the reason the connection went away, nil while it is up.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Ready tells the server this player can start.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.request(ctx, model.TypePrepared, nil)
	return err
}

// GetState fetches the authoritative state and refreshes the mirror.
func (c *Client) GetState(ctx context.Context) (model.State, error) {
	var st model.State
	msg, err := c.request(ctx, model.TypeGetState, nil)
	if err != nil {
		return st, err
	}
	if err := msg.Decode(&st); err != nil {
		return st, err
	}
	if st.Chessboard != nil {
		c.mu.Lock()
		c.board = st.Chessboard.Clone()
		c.turn = st.CurrentTurn
		c.mu.Unlock()
	}
	return st, nil
}

// Move asks the server to play from -> to. The mirror has already advanced
// when Move returns without error.
func (c *Client) Move(ctx context.Context, from, to model.Position) error {
	_, err := c.request(ctx, model.TypeMove, model.MoveRequest{From: from, To: to})
	return err
}

func (c *Client) Surrender(ctx context.Context) error {
	_, err := c.request(ctx, model.TypeSurrender, nil)
	return err
}

// Draw offers or accepts a draw, or refuses one with agree false.
func (c *Client) Draw(ctx context.Context, agree bool) error {
	_, err := c.request(ctx, model.TypeDraw, model.DrawRequest{Agree: agree})
	return err
}

// AvailableMoves evaluates the mirror, without asking the server.
func (c *Client) AvailableMoves(pos model.Position) model.Moves {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.board.InBounds(pos) {
		return nil
	}
	return c.rules.AvailableMoves(c.board, pos)
}

// CanMove reports whether this player may move the chess at pos now.
func (c *Client) CanMove(pos model.Position) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.myTurn(pos) {
		return false
	}
	return len(c.rules.AvailableMoves(c.board, pos)) > 0
}

func (c *Client) CanMoveTo(pos, to model.Position) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.myTurn(pos) {
		return false
	}
	return c.rules.AvailableMoves(c.board, pos).Contains(to)
}

func (c *Client) myTurn(pos model.Position) bool {
	if !c.started || c.ended || c.turn != c.camp {
		return false
	}
	ch := c.board.Get(pos)
	return ch != nil && ch.Camp == c.camp
}

// CheckedPositions lists own chiefs that some enemy chess could capture.
func (c *Client) CheckedPositions() model.Moves {
	c.mu.Lock()
	defer c.mu.Unlock()
	var threatened model.Moves
	c.board.Each(func(p model.Position, ch *model.Chess) {
		if ch == nil || !model.CanEat(c.camp, ch.Camp) {
			return
		}
		for _, to := range c.rules.AvailableMoves(c.board, p) {
			if t := c.board.Get(to); t != nil && t.IsChief && t.Camp == c.camp {
				threatened = append(threatened, to)
			}
		}
	})
	return threatened.Dedup()
}

func (c *Client) request(ctx context.Context, typ string, data any) (model.Message, error) {
	id := uuid.NewString()
	reply := make(chan model.Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return model.Message{}, ErrClosed
	}
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(model.Envelope{Type: typ, Data: data, ID: id}); err != nil {
		return model.Message{}, err
	}
	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()
	select {
	case msg := <-reply:
		if msg.Type == model.TypeError {
			return msg, fmt.Errorf("%w: %s", ErrRejected, msg.Text())
		}
		return msg, nil
	case <-timer.C:
		c.log.WithFields(log.Fields{"type": typ, "id": id}).Warn("request timed out")
		return model.Message{}, fmt.Errorf("%w: %s", ErrTimeout, typ)
	case <-ctx.Done():
		return model.Message{}, ctx.Err()
	case <-c.done:
		return model.Message{}, ErrClosed
	}
}

// Pending is the number of requests still waiting for an answer.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) send(env model.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (c *Client) loop() {
	defer close(c.done)
	defer close(c.events)
	for {
		var msg model.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.shutdown(err)
			return
		}
		if c.dispatch(msg) {
			continue
		}
		select {
		case c.events <- msg:
		default:
			c.log.WithField("type", msg.Type).Warn("events full, dropping frame")
		}
	}
}

// dispatch updates the mirror and resolves pending requests. It reports
// whether msg was consumed as an answer.
func (c *Client) dispatch(msg model.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case model.TypeGameStart:
		c.started = true
		c.turn = 1
	case model.TypeChangeTurn:
		var ct model.ChangeTurn
		if err := msg.Decode(&ct); err != nil {
			c.log.WithError(err).Warn("bad change-turn")
			break
		}
		if ct.Chessboard != nil {
			c.board = ct.Chessboard
		}
		c.turn = ct.CurrentTurn
	case model.TypeGameEnd:
		var ge model.GameEnd
		if err := msg.Decode(&ge); err != nil {
			c.log.WithError(err).Warn("bad game-end")
		}
		c.ended = true
		c.result = ge
	case model.TypeSuccess, model.TypeError:
		if reply, ok := c.pending[msg.ID]; ok && msg.ID != "" {
			reply <- msg
			delete(c.pending, msg.ID)
			return true
		}
	}
	return false
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.err == nil {
		c.err = err
	}
	if websocket.IsCloseError(err, model.CloseGameEnd, model.CloseOpponentLeft, websocket.CloseNormalClosure) {
		c.log.WithError(err).Info("connection closed by server")
	} else {
		c.log.WithError(err).Warn("connection lost")
	}
}

// Close shuts the connection; pending requests fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}
