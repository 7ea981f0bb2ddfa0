package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matryer/way"
	log "github.com/sirupsen/logrus"
	"github.com/zucenko/ustcchess/extensions"
	"github.com/zucenko/ustcchess/game"
	"github.com/zucenko/ustcchess/model"
)

const defaultTimeout = 200 * time.Millisecond

func NewGameServer(m *model.Map, reg *extensions.Registry) *GameServer {
	if reg == nil {
		reg = extensions.Builtin()
	}
	return &GameServer{
		GameSessions: make(map[string]*GameSession),
		GameRequests: make(chan GameRequest),
		Finished:     make(chan string, 16),
		Upgrader:     &websocket.Upgrader{},
		Map:          m,
		Registry:     reg,
		Timeout:      defaultTimeout,
	}
}

// request hands req to the server loop and waits for its answer. It writes
// the HTTP error itself when the loop does not answer in time.
func (s *GameServer) request(w http.ResponseWriter, req GameRequest) (GameContextAwaiting, bool) {
	gcas := make(chan GameContextAwaiting, 1)
	req.GameContextAwaiting = gcas
	select {
	case s.GameRequests <- req:
	case <-time.After(s.Timeout):
		log.WithField("room", req.Room).Warn("GameRequests TIMEOUTED")
		w.WriteHeader(HTTP_TIMEOUT)
		return GameContextAwaiting{}, false
	}
	select {
	case gca := <-gcas:
		return gca, true
	case <-time.After(s.Timeout):
		log.WithField("room", req.Room).Warn("GameContextAwaiting TIMEOUTED")
		w.WriteHeader(HTTP_TIMEOUT)
		return GameContextAwaiting{}, false
	}
}

// HandleHttpCall upgrades a player connection and keeps the handler alive
// until the session lets the player go.
func (s *GameServer) HandleHttpCall() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := way.Param(r.Context(), "room")
		if room == "" {
			room = DefaultRoom
		}
		entry := log.WithField("room", room)
		entry.Info("HandleHttpCall - connection received")

		gca, ok := s.request(w, GameRequest{Room: room})
		if !ok {
			return
		}
		if gca.ResponseCode != GAME_READY {
			entry.Warnf("HandleHttpCall response code %d", gca.ResponseCode)
			w.WriteHeader(gca.ResponseCode.ToHttp())
			return
		}

		con, err := s.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			entry.WithError(err).Warn("HandleHttpCall websocket upgrade failed")
			return
		}
		defer con.Close()

		gameOver := make(chan struct{})
		select {
		case gca.GameSession.PlayerConnectRequests <- PlayerConnectRequest{Con: con, GameOver: gameOver}:
		case <-gca.GameSession.done:
			reject(con, "room closed")
			return
		case <-time.After(s.Timeout):
			reject(con, "timeout")
			return
		}

		<-gameOver
		entry.Info("HandleHttpCall done")
	}
}

// HandleCreateRoom mints a new room id.
func (s *GameServer) HandleCreateRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := uuid.NewString()
		gca, ok := s.request(w, GameRequest{Room: room, Create: true})
		if !ok {
			return
		}
		if gca.ResponseCode != GAME_READY {
			w.WriteHeader(gca.ResponseCode.ToHttp())
			return
		}
		writeJSON(w, HTTP_CREATED, map[string]string{"room": room, "href": "/play/" + room})
	}
}

// HandleRoomStatus reports a room as seen by its own loop.
func (s *GameServer) HandleRoomStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := way.Param(r.Context(), "room")
		gca, ok := s.request(w, GameRequest{Room: room, Lookup: true})
		if !ok {
			return
		}
		if gca.ResponseCode != GAME_READY {
			w.WriteHeader(gca.ResponseCode.ToHttp())
			return
		}
		reply := make(chan RoomStatus, 1)
		select {
		case gca.GameSession.StatusRequests <- reply:
		case <-gca.GameSession.done:
			w.WriteHeader(HTTP_NOT_FOUND)
			return
		case <-time.After(s.Timeout):
			w.WriteHeader(HTTP_TIMEOUT)
			return
		}
		select {
		case st := <-reply:
			writeJSON(w, HTTP_SUCCESS, st)
		case <-time.After(s.Timeout):
			w.WriteHeader(HTTP_TIMEOUT)
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("writeJSON")
	}
}

func (s *GameServer) Loop() {
	log.Info("GameServer.Loop starting")
	for {
		select {
		case gameReq := <-s.GameRequests:
			gameReq.GameContextAwaiting <- s.route(gameReq)
		case room := <-s.Finished:
			log.WithField("room", room).Info("GameServer.Loop room finished")
			delete(s.GameSessions, room)
		}
	}
}

func (s *GameServer) route(req GameRequest) GameContextAwaiting {
	gs, found := s.GameSessions[req.Room]
	switch {
	case req.Lookup && !found:
		return GameContextAwaiting{ResponseCode: GAME_NOT_FOUND}
	case req.Create && found:
		return GameContextAwaiting{ResponseCode: GAME_INVALIDE}
	case found:
		return GameContextAwaiting{ResponseCode: GAME_READY, GameSession: gs}
	}
	gs, err := s.newSession(req.Room)
	if err != nil {
		log.WithField("room", req.Room).WithError(err).Error("ERR LOADING")
		return GameContextAwaiting{ResponseCode: GAME_INVALIDE}
	}
	s.GameSessions[req.Room] = gs
	return GameContextAwaiting{ResponseCode: GAME_READY, GameSession: gs}
}

func (s *GameServer) newSession(room string) (*GameSession, error) {
	entry := log.WithField("room", room)
	match, err := Load(s.Map, s.Registry, entry)
	if err != nil {
		return nil, err
	}
	gs := &GameSession{
		Room:                  room,
		State:                 GS_NEW,
		Model:                 s.Map,
		Match:                 match,
		PlayerSessions:        make([]*PlayerSession, 0, 2),
		Errors:                make(chan *PlayerSession),
		Events:                make(chan PlayerEvent, 16),
		PlayerConnectRequests: make(chan PlayerConnectRequest),
		StatusRequests:        make(chan chan RoomStatus),
		done:                  make(chan struct{}),
		finished:              s.Finished,
		log:                   entry,
	}
	match.OnEnd(func(game.Result) { gs.ended = true })
	entry.Info("create GameSession")
	go gs.Loop()
	return gs, nil
}

// reject refuses a socket that never got a player session.
func reject(con *websocket.Conn, reason string) {
	if err := con.WriteJSON(model.Envelope{Type: model.TypeConnectFail, Data: reason}); err != nil {
		log.WithError(err).Warn("reject write")
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = con.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
