package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/way"
	"github.com/zucenko/ustcchess/extensions"
	"github.com/zucenko/ustcchess/model"
	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

// duelMap: kings in the left corners, rooks on the right.
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

const readTimeout = 3 * time.Second

type ServerSuite struct {
	gs  *GameServer
	srv *httptest.Server
	ws  string
}

var _ = Suite(&ServerSuite{})

func (s *ServerSuite) SetUpTest(c *C) {
	m, err := model.LoadMap(strings.NewReader(duelMap))
	c.Assert(err, IsNil)
	s.gs = NewGameServer(m, extensions.Builtin())
	s.gs.Timeout = 2 * time.Second
	go s.gs.Loop()

	router := way.NewRouter()
	router.HandleFunc("GET", "/play", s.gs.HandleHttpCall())
	router.HandleFunc("GET", "/play/:room", s.gs.HandleHttpCall())
	router.HandleFunc("POST", "/rooms", s.gs.HandleCreateRoom())
	router.HandleFunc("GET", "/rooms/:room", s.gs.HandleRoomStatus())
	s.srv = httptest.NewServer(router)
	s.ws = "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *ServerSuite) TearDownTest(c *C) {
	s.srv.Close()
}

func (s *ServerSuite) dial(c *C, room string) *websocket.Conn {
	url := s.ws + "/play"
	if room != "" {
		url += "/" + room
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	c.Assert(err, IsNil)
	return conn
}

func read(c *C, conn *websocket.Conn) model.Message {
	c.Assert(conn.SetReadDeadline(time.Now().Add(readTimeout)), IsNil)
	var msg model.Message
	c.Assert(conn.ReadJSON(&msg), IsNil)
	return msg
}

func expect(c *C, conn *websocket.Conn, typ string) model.Message {
	msg := read(c, conn)
	c.Assert(msg.Type, Equals, typ, Commentf("data %s", msg.Data))
	return msg
}

func send(c *C, conn *websocket.Conn, typ string, data any, id string) {
	c.Assert(conn.WriteJSON(model.Envelope{Type: typ, Data: data, ID: id}), IsNil)
}

// closeCode reads until the server closes the socket.
func closeCode(c *C, conn *websocket.Conn) int {
	c.Assert(conn.SetReadDeadline(time.Now().Add(readTimeout)), IsNil)
	for {
		_, _, err := conn.NextReader()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return ce.Code
		}
		c.Fatalf("socket ended without close frame: %v", err)
	}
}

// join connects a player and checks the camp it was given.
func (s *ServerSuite) join(c *C, room string, camp int) *websocket.Conn {
	conn := s.dial(c, room)
	var cs model.ConnectSuccess
	c.Assert(expect(c, conn, model.TypeConnectSuccess).Decode(&cs), IsNil)
	c.Assert(cs.Camp, Equals, camp)
	c.Assert(cs.MapData, NotNil)
	c.Assert(cs.MapData.ID, Equals, "duel")
	return conn
}

// start joins two players and brings the match to its first turn.
func (s *ServerSuite) start(c *C, room string) (*websocket.Conn, *websocket.Conn) {
	a := s.join(c, room, 1)
	b := s.join(c, room, 2)
	send(c, a, model.TypePrepared, nil, "")
	send(c, b, model.TypePrepared, nil, "")
	expect(c, a, model.TypeGameStart)
	expect(c, b, model.TypeGameStart)
	return a, b
}

func (s *ServerSuite) status(c *C, room string) (int, RoomStatus) {
	resp, err := http.Get(s.srv.URL + "/rooms/" + room)
	c.Assert(err, IsNil)
	defer resp.Body.Close()
	var st RoomStatus
	if resp.StatusCode == HTTP_SUCCESS {
		c.Assert(json.NewDecoder(resp.Body).Decode(&st), IsNil)
	}
	return resp.StatusCode, st
}

func (s *ServerSuite) waitStatus(c *C, room string, ok func(int, RoomStatus) bool) {
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		if ok(s.status(c, room)) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	c.Fatalf("room %s never reached the expected status", room)
}

func (s *ServerSuite) TestDefaultRoom(c *C) {
	a, b := s.start(c, "")
	defer a.Close()
	defer b.Close()
	code, st := s.status(c, DefaultRoom)
	c.Assert(code, Equals, HTTP_SUCCESS)
	c.Assert(st.Match, Equals, "in-progress")
	c.Assert(st.Players, HasLen, 2)
}

func (s *ServerSuite) TestGetState(c *C) {
	a, b := s.start(c, "state")
	defer a.Close()
	defer b.Close()

	send(c, a, model.TypeGetState, nil, "s1")
	msg := expect(c, a, model.TypeSuccess)
	c.Assert(msg.ID, Equals, "s1")
	var st model.State
	c.Assert(msg.Decode(&st), IsNil)
	c.Assert(st.CurrentTurn, Equals, 1)
	c.Assert(st.Chessboard.Rows(), Equals, 4)
	c.Assert(st.Chessboard.Get(model.Position{3, 3}).ID, Equals, 7)
}

func (s *ServerSuite) TestMoveTurns(c *C) {
	a, b := s.start(c, "moves")
	defer a.Close()
	defer b.Close()

	send(c, b, model.TypeMove, model.MoveRequest{From: model.Position{0, 2}, To: model.Position{1, 2}}, "early")
	msg := expect(c, b, model.TypeError)
	c.Assert(msg.ID, Equals, "early")
	c.Assert(msg.Text(), Equals, "Not your turn")

	send(c, a, model.TypeMove, model.MoveRequest{From: model.Position{3, 3}, To: model.Position{2, 3}}, "m1")
	var ct model.ChangeTurn
	c.Assert(expect(c, a, model.TypeChangeTurn).Decode(&ct), IsNil)
	c.Assert(ct.CurrentTurn, Equals, 2)
	c.Assert(ct.From, Equals, model.Position{3, 3})
	c.Assert(ct.To, Equals, model.Position{2, 3})
	c.Assert(ct.Chessboard.Get(model.Position{2, 3}).Camp, Equals, 1)
	c.Assert(expect(c, a, model.TypeSuccess).ID, Equals, "m1")

	c.Assert(expect(c, b, model.TypeChangeTurn).Decode(&ct), IsNil)
	c.Assert(ct.CurrentTurn, Equals, 2)

	send(c, b, model.TypeMove, model.MoveRequest{From: model.Position{0, 2}, To: model.Position{3, 3}}, "bad")
	msg = expect(c, b, model.TypeError)
	c.Assert(msg.ID, Equals, "bad")
	c.Assert(msg.Text(), Matches, "Invalid move: illegal move.*")

	send(c, b, model.TypeMove, model.MoveRequest{From: model.Position{2, 2}, To: model.Position{1, 2}}, "empty")
	c.Assert(expect(c, b, model.TypeError).Text(), Matches, ".*no chess at position.*")

	send(c, b, model.TypeGetState, nil, "s")
	var st model.State
	c.Assert(expect(c, b, model.TypeSuccess).Decode(&st), IsNil)
	c.Assert(st.CurrentTurn, Equals, 2)
}

func (s *ServerSuite) TestMalformedFrames(c *C) {
	a := s.join(c, "junk", 1)
	defer a.Close()

	c.Assert(a.WriteMessage(websocket.TextMessage, []byte("not json")), IsNil)
	c.Assert(expect(c, a, model.TypeError).Text(), Matches, "Invalid data: .*")

	c.Assert(a.WriteMessage(websocket.TextMessage, []byte(`{"data": 1, "id": "x"}`)), IsNil)
	msg := expect(c, a, model.TypeError)
	c.Assert(msg.Text(), Equals, "Invalid data: missing type")
	c.Assert(msg.ID, Equals, "x")

	send(c, a, "dance", nil, "d")
	c.Assert(expect(c, a, model.TypeError).Text(), Equals, "Invalid type: dance")

	send(c, a, model.TypeMove, model.MoveRequest{}, "m")
	c.Assert(expect(c, a, model.TypeError).Text(), Equals, "Not your turn")

	send(c, a, model.TypeGetState, nil, "still-open")
	c.Assert(expect(c, a, model.TypeSuccess).ID, Equals, "still-open")
}

func (s *ServerSuite) TestThirdClientRejected(c *C) {
	a := s.join(c, "crowded", 1)
	b := s.join(c, "crowded", 2)
	defer a.Close()
	defer b.Close()

	third := s.dial(c, "crowded")
	defer third.Close()
	msg := expect(c, third, model.TypeConnectFail)
	c.Assert(msg.Text(), Equals, model.ReasonTooManyClients)
	c.Assert(closeCode(c, third), Equals, websocket.ClosePolicyViolation)
}

func (s *ServerSuite) TestSlotFreedBeforeStart(c *C) {
	a := s.join(c, "slots", 1)
	a.Close()
	s.waitStatus(c, "slots", func(code int, st RoomStatus) bool {
		return code == HTTP_SUCCESS && len(st.Players) == 0
	})
	again := s.join(c, "slots", 1)
	defer again.Close()
}

func (s *ServerSuite) TestDrawAgreed(c *C) {
	a, b := s.start(c, "draw")
	send(c, a, model.TypeDraw, model.DrawRequest{Agree: true}, "d1")
	c.Assert(expect(c, a, model.TypeSuccess).ID, Equals, "d1")
	expect(c, b, model.TypeDraw)

	send(c, b, model.TypeDraw, true, "d2")
	c.Assert(expect(c, b, model.TypeSuccess).ID, Equals, "d2")

	for _, conn := range []*websocket.Conn{a, b} {
		var ge model.GameEnd
		c.Assert(expect(c, conn, model.TypeGameEnd).Decode(&ge), IsNil)
		c.Assert(ge.Winner, Equals, 0)
		c.Assert(closeCode(c, conn), Equals, model.CloseGameEnd)
	}
}

func (s *ServerSuite) TestDrawRefused(c *C) {
	a, b := s.start(c, "refuse")
	defer a.Close()
	defer b.Close()
	send(c, a, model.TypeDraw, true, "")
	expect(c, b, model.TypeDraw)
	send(c, b, model.TypeDraw, false, "")
	expect(c, a, model.TypeDrawRefused)
	expect(c, b, model.TypeDrawRefused)

	code, st := s.status(c, "refuse")
	c.Assert(code, Equals, HTTP_SUCCESS)
	c.Assert(st.Match, Equals, "in-progress")
}

func (s *ServerSuite) TestSurrenderEndsAndForgetsRoom(c *C) {
	a, b := s.start(c, "quit")
	send(c, b, model.TypeSurrender, nil, "")
	for _, conn := range []*websocket.Conn{a, b} {
		var ge model.GameEnd
		c.Assert(expect(c, conn, model.TypeGameEnd).Decode(&ge), IsNil)
		c.Assert(ge, Equals, model.GameEnd{Winner: 1, Info: "surrender"})
		c.Assert(closeCode(c, conn), Equals, model.CloseGameEnd)
	}
	s.waitStatus(c, "quit", func(code int, _ RoomStatus) bool { return code == HTTP_NOT_FOUND })
}

func (s *ServerSuite) TestChiefCaptureEndsGame(c *C) {
	a, b := s.start(c, "capture")
	moves := []struct {
		conn     *websocket.Conn
		from, to model.Position
	}{
		{a, model.Position{3, 3}, model.Position{0, 3}},
		{b, model.Position{0, 2}, model.Position{1, 2}},
		{a, model.Position{0, 3}, model.Position{0, 0}},
	}
	for i, mv := range moves {
		send(c, mv.conn, model.TypeMove, model.MoveRequest{From: mv.from, To: mv.to}, fmt.Sprint(i))
	}
	var ge model.GameEnd
	for _, conn := range []*websocket.Conn{a, b} {
		for {
			msg := read(c, conn)
			if msg.Type == model.TypeGameEnd {
				c.Assert(msg.Decode(&ge), IsNil)
				break
			}
			c.Assert(msg.Type, Not(Equals), model.TypeError, Commentf("%s", msg.Data))
		}
		c.Assert(ge.Winner, Equals, 1)
		c.Assert(closeCode(c, conn), Equals, model.CloseGameEnd)
	}
}

func (s *ServerSuite) TestDisconnectForfeits(c *C) {
	a, b := s.start(c, "leave")
	defer a.Close()
	b.Close()

	var ge model.GameEnd
	c.Assert(expect(c, a, model.TypeGameEnd).Decode(&ge), IsNil)
	c.Assert(ge, Equals, model.GameEnd{Winner: 1, Info: InfoOpponentLeft})
	c.Assert(closeCode(c, a), Equals, model.CloseOpponentLeft)
}

func (s *ServerSuite) TestStalledReaderIsDropped(c *C) {
	a, b := s.start(c, "stall")
	defer a.Close()
	defer b.Close()

	// b keeps asking for the board and never reads the answers
	go func() {
		frame, err := json.Marshal(model.Envelope{Type: model.TypeGetState})
		if err != nil {
			return
		}
		for i := 0; i < 100000; i++ {
			if b.WriteMessage(websocket.TextMessage, frame) != nil {
				return
			}
		}
	}()

	c.Assert(a.SetReadDeadline(time.Now().Add(10*time.Second)), IsNil)
	var msg model.Message
	c.Assert(a.ReadJSON(&msg), IsNil)
	c.Assert(msg.Type, Equals, model.TypeGameEnd)
	var ge model.GameEnd
	c.Assert(msg.Decode(&ge), IsNil)
	c.Assert(ge, Equals, model.GameEnd{Winner: 1, Info: InfoOpponentLeft})
	c.Assert(closeCode(c, a), Equals, model.CloseOpponentLeft)
	s.waitStatus(c, "stall", func(code int, _ RoomStatus) bool { return code == HTTP_NOT_FOUND })
}

func (s *ServerSuite) TestOversizedFrameCloses(c *C) {
	a := s.join(c, "big", 1)
	defer a.Close()
	big := `{"type": "move", "data": "` + strings.Repeat("x", 2*maxMessageSize) + `"}`
	c.Assert(a.WriteMessage(websocket.TextMessage, []byte(big)), IsNil)
	c.Assert(closeCode(c, a), Equals, websocket.CloseMessageTooBig)
	s.waitStatus(c, "big", func(code int, st RoomStatus) bool {
		return code == HTTP_SUCCESS && len(st.Players) == 0
	})
}

func (s *ServerSuite) TestPingsAreCounted(c *C) {
	a := s.join(c, "ping", 1)
	defer a.Close()
	c.Assert(a.WriteControl(websocket.PingMessage, []byte("hi"), time.Now().Add(time.Second)), IsNil)
	s.waitStatus(c, "ping", func(code int, st RoomStatus) bool {
		return code == HTTP_SUCCESS && len(st.Players) == 1 && st.Players[0].Pings == 1 && st.Players[0].LastPing != nil
	})
}

func (s *ServerSuite) TestRooms(c *C) {
	resp, err := http.Post(s.srv.URL+"/rooms", "application/json", nil)
	c.Assert(err, IsNil)
	defer resp.Body.Close()
	c.Assert(resp.StatusCode, Equals, HTTP_CREATED)
	var created map[string]string
	c.Assert(json.NewDecoder(resp.Body).Decode(&created), IsNil)
	room := created["room"]
	c.Assert(room, HasLen, 36)
	c.Assert(created["href"], Equals, "/play/"+room)

	code, st := s.status(c, room)
	c.Assert(code, Equals, HTTP_SUCCESS)
	c.Assert(st.State, Equals, "GS_NEW")
	c.Assert(st.Players, HasLen, 0)

	a := s.join(c, room, 1)
	defer a.Close()
	send(c, a, model.TypeGetState, nil, "x")
	expect(c, a, model.TypeSuccess)

	code, st = s.status(c, room)
	c.Assert(code, Equals, HTTP_SUCCESS)
	c.Assert(st.State, Equals, "GS_WAIT")
	c.Assert(st.Messages, Equals, 1)
	c.Assert(st.Players[0].Camp, Equals, 1)
	c.Assert(st.Latency.Max >= st.Latency.Mean, Equals, true)

	code, _ = s.status(c, "nowhere")
	c.Assert(code, Equals, HTTP_NOT_FOUND)
}

type ListenSuite struct {
	orig func(network, address string) (net.Listener, error)
}

var _ = Suite(&ListenSuite{})

func (s *ListenSuite) SetUpTest(c *C)    { s.orig = listenFunc }
func (s *ListenSuite) TearDownTest(c *C) { listenFunc = s.orig }

func (s *ListenSuite) TestRandomPortGivesUp(c *C) {
	calls := 0
	listenFunc = func(network, address string) (net.Listener, error) {
		calls++
		return nil, errors.New("address already in use")
	}
	_, err := Listen("127.0.0.1", 0)
	c.Assert(errors.Is(err, ErrNoUsablePort), Equals, true)
	c.Assert(calls, Equals, bindRetries)
}

func (s *ListenSuite) TestRandomPortRetries(c *C) {
	var addrs []string
	listenFunc = func(network, address string) (net.Listener, error) {
		addrs = append(addrs, address)
		if len(addrs) < 3 {
			return nil, errors.New("address already in use")
		}
		return s.orig(network, "127.0.0.1:0")
	}
	l, err := Listen("127.0.0.1", 0)
	c.Assert(err, IsNil)
	defer l.Close()
	c.Assert(addrs, HasLen, 3)
	for _, a := range addrs {
		_, port, err := net.SplitHostPort(a)
		c.Assert(err, IsNil)
		n, err := strconv.Atoi(port)
		c.Assert(err, IsNil)
		c.Assert(n >= minPort && n < maxPort, Equals, true)
	}
}

func (s *ListenSuite) TestFixedPortIsNotRetried(c *C) {
	calls := 0
	listenFunc = func(network, address string) (net.Listener, error) {
		calls++
		c.Assert(address, Equals, "127.0.0.1:8123")
		return nil, errors.New("busy")
	}
	_, err := Listen("127.0.0.1", 8123)
	c.Assert(err, ErrorMatches, "busy")
	c.Assert(calls, Equals, 1)
}

type LatencySuite struct{}

var _ = Suite(&LatencySuite{})

func (s *LatencySuite) TestLatency(c *C) {
	data := make([]float64, 0, 20)
	for i := 1; i <= 20; i++ {
		data = append(data, float64(i))
	}
	lat, err := latency(data)
	c.Assert(err, IsNil)
	c.Assert(lat, Equals, Latency{Mean: 10.5, P95: 19, Max: 20})

	lat, err = latency([]float64{5})
	c.Assert(err, IsNil)
	c.Assert(lat, Equals, Latency{Mean: 5, P95: 5, Max: 5})
}
