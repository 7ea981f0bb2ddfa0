package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/way"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zucenko/ustcchess/model"
	"github.com/zucenko/ustcchess/server"
)

const duelMap = `{
	"id": "duel",
	"version": "1.0.0",
	"name": "Duel",
	"cards": [
		{"id": 1, "name": "King", "camp": 1, "isChief": true, "moveRanges": [
			{"direction": 1}, {"direction": 2}, {"direction": 3}, {"direction": 4},
			{"direction": 5}, {"direction": 6}, {"direction": 7}, {"direction": 8}]},
		{"id": 2, "name": "King", "camp": 2, "isChief": true, "moveRanges": [
			{"direction": 1}, {"direction": 2}, {"direction": 3}, {"direction": 4},
			{"direction": 5}, {"direction": 6}, {"direction": 7}, {"direction": 8}]},
		{"id": 7, "name": "Rook", "camp": 1, "moveRanges": [
			{"direction": 1, "maxstep": -1}, {"direction": 3, "maxstep": -1},
			{"direction": 5, "maxstep": -1}, {"direction": 7, "maxstep": -1}]},
		{"id": 8, "name": "Rook", "camp": 2, "moveRanges": [
			{"direction": 1, "maxstep": -1}, {"direction": 3, "maxstep": -1},
			{"direction": 5, "maxstep": -1}, {"direction": 7, "maxstep": -1}]}
	],
	"chessboard": {"width": 4, "height": 4, "init": {"[3,0]": 1, "[3,3]": 7, "[0,0]": 2, "[0,2]": 8}},
	"extensions": {}
}`

const wait = 3 * time.Second

func loadDuel(t *testing.T) *model.Map {
	m, err := model.LoadMap(strings.NewReader(duelMap))
	require.NoError(t, err)
	return m
}

// room starts a game server and returns the websocket url of one room.
func room(t *testing.T, name string) string {
	gs := server.NewGameServer(loadDuel(t), nil)
	gs.Timeout = 2 * time.Second
	go gs.Loop()
	router := way.NewRouter()
	router.HandleFunc("GET", "/play/:room", gs.HandleHttpCall())
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/play/" + name
}

func dial(t *testing.T, url string) *Client {
	c, err := Dial(context.Background(), url, nil, Options{Timeout: wait})
	require.NoError(t, err)
	return c
}

func waitFor(t *testing.T, c *Client, typ string) model.Message {
	timeout := time.After(wait)
	for {
		select {
		case msg, ok := <-c.Events():
			require.True(t, ok, "events closed before %s", typ)
			if msg.Type == typ {
				return msg
			}
		case <-timeout:
			t.Fatalf("no %s within %v", typ, wait)
		}
	}
}

func TestPlayAgainstServer(t *testing.T) {
	url := room(t, "duel")
	ctx := context.Background()
	a := dial(t, url)
	defer a.Close()
	b := dial(t, url)
	defer b.Close()

	assert.Equal(t, 1, a.Camp())
	assert.Equal(t, 2, b.Camp())
	assert.Equal(t, "duel", a.Map().ID)

	waitFor(t, a, model.TypeGameStart)
	waitFor(t, b, model.TypeGameStart)

	assert.ElementsMatch(t, model.Moves{{2, 3}, {1, 3}, {0, 3}, {3, 2}, {3, 1}}, a.AvailableMoves(model.Position{3, 3}))
	assert.Nil(t, a.AvailableMoves(model.Position{9, 9}))
	assert.True(t, a.CanMove(model.Position{3, 3}))
	assert.False(t, a.CanMove(model.Position{0, 2}), "enemy chess")
	assert.False(t, b.CanMove(model.Position{0, 2}), "not b's turn")
	assert.True(t, a.CanMoveTo(model.Position{3, 3}, model.Position{0, 3}))
	assert.False(t, a.CanMoveTo(model.Position{3, 3}, model.Position{2, 2}))

	require.NoError(t, a.Move(ctx, model.Position{3, 3}, model.Position{0, 3}))
	assert.Equal(t, 2, a.CurrentTurn())
	assert.Nil(t, a.Board().Get(model.Position{3, 3}))
	assert.Equal(t, 7, a.Board().Get(model.Position{0, 3}).ID)

	err := a.Move(ctx, model.Position{0, 3}, model.Position{1, 3})
	assert.True(t, errors.Is(err, ErrRejected), "%v", err)

	st, err := b.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.CurrentTurn)
	assert.Equal(t, 2, b.CurrentTurn())
	assert.Empty(t, b.CheckedPositions())

	require.NoError(t, b.Move(ctx, model.Position{0, 2}, model.Position{1, 2}))
	assert.Equal(t, model.Moves{{0, 0}}, b.CheckedPositions())

	require.NoError(t, b.Surrender(ctx))
	for _, c := range []*Client{a, b} {
		select {
		case <-c.Done():
		case <-time.After(wait):
			t.Fatal("connection not closed after the game ended")
		}
		res, ok := c.Result()
		assert.True(t, ok)
		assert.Equal(t, model.GameEnd{Winner: 1, Info: "surrender"}, res)
		assert.True(t, websocket.IsCloseError(c.Err(), model.CloseGameEnd), "%v", c.Err())
	}
	assert.True(t, errors.Is(a.Move(ctx, model.Position{0, 3}, model.Position{0, 0}), ErrClosed))
}

func TestDrawOffer(t *testing.T) {
	url := room(t, "peace")
	ctx := context.Background()
	a := dial(t, url)
	defer a.Close()
	b := dial(t, url)
	defer b.Close()
	waitFor(t, a, model.TypeGameStart)
	waitFor(t, b, model.TypeGameStart)

	require.NoError(t, a.Draw(ctx, true))
	waitFor(t, b, model.TypeDraw)
	require.NoError(t, b.Draw(ctx, false))
	waitFor(t, a, model.TypeDrawRefused)

	require.NoError(t, b.Draw(ctx, true))
	waitFor(t, a, model.TypeDraw)
	require.NoError(t, a.Draw(ctx, true))
	waitFor(t, b, model.TypeGameEnd)
	res, ok := b.Result()
	assert.True(t, ok)
	assert.Equal(t, 0, res.Winner)
}

func TestThirdClientIsRefused(t *testing.T) {
	url := room(t, "full")
	a := dial(t, url)
	defer a.Close()
	b := dial(t, url)
	defer b.Close()

	_, err := Dial(context.Background(), url, nil, Options{Timeout: wait})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectFailed))
	assert.Contains(t, err.Error(), model.ReasonTooManyClients)
}

// silent accepts a player and then never answers.
func silent(t *testing.T) string {
	m := loadDuel(t)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.WriteJSON(model.Envelope{
			Type: model.TypeConnectSuccess,
			Data: model.ConnectSuccess{Camp: 1, MapData: m},
		}); err != nil {
			return
		}
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRequestTimeout(t *testing.T) {
	c, err := Dial(context.Background(), silent(t), nil, Options{Timeout: 100 * time.Millisecond, Manual: true})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetState(context.Background())
	assert.True(t, errors.Is(err, ErrTimeout), "%v", err)
	assert.Equal(t, 0, c.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Ready(ctx)
	assert.True(t, errors.Is(err, context.Canceled), "%v", err)
	assert.Equal(t, 0, c.Pending())
}

func TestDialUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()
	_, err := Dial(context.Background(), url, nil, Options{Timeout: 100 * time.Millisecond})
	assert.Error(t, err)
}
