package server

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
	"github.com/zucenko/ustcchess/game"
	"github.com/zucenko/ustcchess/model"
)

const (
	maxDurations = 1024
	sendBuffer   = 32
	// largest frame a player may send
	maxMessageSize = 4096
)

const InfoOpponentLeft = "opponent disconnected"

// Loop owns the match: every read and write of it happens here.
func (gs *GameSession) Loop() {
	gs.log.Info("GameSession.Loop start")
	for {
		select {
		case pcr := <-gs.PlayerConnectRequests:
			gs.addPlayer(pcr.Con, pcr.GameOver)
		case ps := <-gs.Errors:
			gs.dropPlayer(ps)
		case pe := <-gs.Events:
			start := time.Now()
			gs.handle(pe)
			gs.record(time.Since(start))
		case reply := <-gs.StatusRequests:
			reply <- gs.status()
		}
		if gs.ended {
			gs.finish()
			gs.log.Info("GameSession.Loop end")
			return
		}
	}
}

func (gs *GameSession) addPlayer(conn *websocket.Conn, gameOver chan struct{}) {
	if len(gs.PlayerSessions) >= 2 || gs.Match.State() != game.NotStarted {
		gs.log.Warn("GameSession.addPlayer too many clients")
		reject(conn, model.ReasonTooManyClients)
		close(gameOver)
		return
	}
	camp := 1
	if len(gs.PlayerSessions) == 1 && gs.PlayerSessions[0].Camp == 1 {
		camp = 2
	}
	ps := &PlayerSession{
		State:          PS_NEW,
		Camp:           camp,
		GameSession:    gs,
		Conn:           conn,
		GameOver:       gameOver,
		MessagesToSend: make(chan outgoing, sendBuffer),
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPingHandler(func(message string) error {
		ps.DebugLastPing.Store(time.Now().UnixNano())
		ps.DebugPings.Add(1)
		err := conn.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(time.Second))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	go ps.LoopChannelRead()
	go ps.LoopChannelWrite()
	gs.PlayerSessions = append(gs.PlayerSessions, ps)
	gs.State = GS_WAIT
	gs.log.WithField("camp", camp).Info("GameSession.addPlayer")
	gs.send(ps, model.TypeConnectSuccess, model.ConnectSuccess{Camp: camp, MapData: gs.Model}, "")
}

func (gs *GameSession) dropPlayer(ps *PlayerSession) {
	i := gs.index(ps)
	if i < 0 {
		return
	}
	gs.PlayerSessions = append(gs.PlayerSessions[:i], gs.PlayerSessions[i+1:]...)
	ps.State = PS_ERR
	ps.MessagesToSend <- outgoing{closeCode: websocket.CloseNormalClosure}
	entry := gs.log.WithField("camp", ps.Camp)

	switch gs.Match.State() {
	case game.NotStarted:
		entry.Info("GameSession.dropPlayer slot freed")
		if len(gs.PlayerSessions) == 0 {
			gs.State = GS_NEW
		}
	case game.InProgress:
		entry.Warn("GameSession.dropPlayer forfeit")
		gs.State = GS_ERR
		for _, other := range gs.PlayerSessions {
			other.State = PS_ERR_SEC
		}
		gs.Match.End(model.Opponent(ps.Camp), InfoOpponentLeft)
	default:
		entry.Info("GameSession.dropPlayer after end")
	}
}

func (gs *GameSession) index(ps *PlayerSession) int {
	for i, p := range gs.PlayerSessions {
		if p == ps {
			return i
		}
	}
	return -1
}

// finish announces the result and lets every player go.
func (gs *GameSession) finish() {
	code := model.CloseGameEnd
	if gs.State == GS_ERR {
		code = model.CloseOpponentLeft
	} else {
		gs.State = GS_OVER
	}
	res := gs.Match.Result()
	gs.broadcast(model.TypeGameEnd, model.GameEnd{Winner: res.Winner, Info: res.Info})
	for _, ps := range gs.PlayerSessions {
		if ps.State != PS_ERR_SEC {
			ps.State = PS_OVER
		}
		ps.MessagesToSend <- outgoing{closeCode: code, reason: res.Info}
	}
	close(gs.done)
	go func() { gs.finished <- gs.Room }()
}

func (gs *GameSession) handle(pe PlayerEvent) {
	ps := pe.Player
	if gs.index(ps) < 0 {
		return
	}
	ps.DebugInMessages++
	ps.DebugLastMessage = time.Now()
	gs.messages++
	msg := pe.Message
	if pe.Malformed != "" {
		gs.send(ps, model.TypeError, "Invalid data: "+pe.Malformed, msg.ID)
		return
	}
	entry := gs.log.WithFields(log.Fields{"camp": ps.Camp, "type": msg.Type})
	entry.Debug("GameSession.handle")

	switch msg.Type {
	case model.TypePrepared:
		gs.prepared(ps, msg)
	case model.TypeGetState:
		gs.send(ps, model.TypeSuccess, gs.Match.Snapshot(), msg.ID)
	case model.TypeMove:
		gs.move(ps, msg)
	case model.TypeSurrender:
		if err := gs.Match.Surrender(ps.Camp); err != nil {
			gs.send(ps, model.TypeError, err.Error(), msg.ID)
			return
		}
		gs.ack(ps, msg)
	case model.TypeDraw:
		gs.draw(ps, msg)
	default:
		entry.Warn("GameSession.handle unknown type")
		gs.send(ps, model.TypeError, "Invalid type: "+msg.Type, msg.ID)
	}
}

func (gs *GameSession) prepared(ps *PlayerSession, msg model.Message) {
	ps.Prepared = true
	gs.ack(ps, msg)
	if gs.Match.State() != game.NotStarted || len(gs.PlayerSessions) < 2 {
		return
	}
	for _, p := range gs.PlayerSessions {
		if !p.Prepared {
			return
		}
	}
	if err := gs.Match.Start(); err != nil {
		gs.log.WithError(err).Warn("GameSession.prepared start")
		return
	}
	gs.State = GS_PLAY
	for _, p := range gs.PlayerSessions {
		p.State = PS_PLAY
	}
	gs.broadcast(model.TypeGameStart, nil)
}

func (gs *GameSession) move(ps *PlayerSession, msg model.Message) {
	if gs.Match.State() == game.Ended {
		gs.send(ps, model.TypeError, game.ErrGameEnded.Error(), msg.ID)
		return
	}
	if ps.Camp != gs.Match.Turn() {
		gs.send(ps, model.TypeError, "Not your turn", msg.ID)
		return
	}
	var req model.MoveRequest
	if err := msg.Decode(&req); err != nil {
		gs.send(ps, model.TypeError, "Invalid data: "+err.Error(), msg.ID)
		return
	}
	if err := gs.Match.Move(req.From, req.To); err != nil {
		gs.send(ps, model.TypeError, fmt.Sprintf("Invalid move: %v", err), msg.ID)
		return
	}
	gs.broadcast(model.TypeChangeTurn, model.ChangeTurn{
		From:        req.From,
		To:          req.To,
		CurrentTurn: gs.Match.Turn(),
		Chessboard:  gs.Match.Board().Clone(),
	})
	gs.ack(ps, msg)
}

func (gs *GameSession) draw(ps *PlayerSession, msg model.Message) {
	req := model.DrawRequest{Agree: true}
	if err := msg.Decode(&req); err != nil {
		gs.send(ps, model.TypeError, "Invalid data: "+err.Error(), msg.ID)
		return
	}
	outcome, err := gs.Match.OfferDraw(ps.Camp, req.Agree)
	if err != nil {
		gs.send(ps, model.TypeError, err.Error(), msg.ID)
		return
	}
	switch outcome {
	case game.DrawOffered:
		gs.sendOthers(ps, model.TypeDraw, nil)
	case game.DrawRefused:
		gs.broadcast(model.TypeDrawRefused, nil)
	}
	gs.ack(ps, msg)
}

// ack confirms a request that carried an id.
func (gs *GameSession) ack(ps *PlayerSession, msg model.Message) {
	if msg.ID == "" {
		return
	}
	gs.send(ps, model.TypeSuccess, nil, msg.ID)
}

// send never blocks the loop. A player whose buffer is full has stopped
// reading; its socket is closed and the read loop reports it.
func (gs *GameSession) send(ps *PlayerSession, typ string, data any, id string) {
	if ps.stalled {
		return
	}
	select {
	case ps.MessagesToSend <- outgoing{env: model.Envelope{Type: typ, Data: data, ID: id}}:
		ps.DebugOutMessages++
	default:
		ps.stalled = true
		gs.log.WithFields(log.Fields{"camp": ps.Camp, "type": typ}).Warn("GameSession.send buffer full, closing player")
		ps.Conn.Close()
	}
}

func (gs *GameSession) broadcast(typ string, data any) {
	for _, ps := range gs.PlayerSessions {
		gs.send(ps, typ, data, "")
	}
}

func (gs *GameSession) sendOthers(from *PlayerSession, typ string, data any) {
	for _, ps := range gs.PlayerSessions {
		if ps != from {
			gs.send(ps, typ, data, "")
		}
	}
}

func (gs *GameSession) record(d time.Duration) {
	gs.durations = append(gs.durations, float64(d)/float64(time.Millisecond))
	if len(gs.durations) > maxDurations {
		gs.durations = gs.durations[len(gs.durations)-maxDurations:]
	}
}

func (gs *GameSession) status() RoomStatus {
	st := RoomStatus{
		Room:        gs.Room,
		State:       gs.State.Name(),
		Match:       gs.Match.State().String(),
		CurrentTurn: gs.Match.Turn(),
		Players:     make([]PlayerStatus, 0, len(gs.PlayerSessions)),
		Messages:    gs.messages,
	}
	for _, ps := range gs.PlayerSessions {
		pst := PlayerStatus{
			Camp:        ps.Camp,
			State:       ps.State.Name(),
			Prepared:    ps.Prepared,
			InMessages:  ps.DebugInMessages,
			OutMessages: ps.DebugOutMessages,
			Pings:       int(ps.DebugPings.Load()),
		}
		if nanos := ps.DebugLastPing.Load(); nanos != 0 {
			last := time.Unix(0, nanos)
			pst.LastPing = &last
		}
		st.Players = append(st.Players, pst)
	}
	if len(gs.durations) > 0 {
		lat, err := latency(gs.durations)
		if err != nil {
			gs.log.WithError(err).Warn("GameSession.status latency")
		}
		st.Latency = lat
	}
	return st
}

// latency summarises handling times. Percentile needs a few samples; with
// too few of them P95 falls back to the maximum.
func latency(durations []float64) (Latency, error) {
	data := stats.Float64Data(durations)
	var lat Latency
	var err error
	if lat.Mean, err = stats.Mean(data); err != nil {
		return Latency{}, err
	}
	if lat.Max, err = stats.Max(data); err != nil {
		return Latency{}, err
	}
	if lat.P95, err = stats.Percentile(data, 95); err != nil {
		lat.P95 = lat.Max
	}
	return lat, nil
}
