package server

import (
	"encoding/json"
	"io"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/zucenko/ustcchess/model"
)

const writeWait = 10 * time.Second

func (ps *PlayerSession) logger() *log.Entry {
	return ps.GameSession.log.WithField("camp", ps.Camp)
}

// LoopChannelRead forwards every frame to the session. A frame that is not a
// typed JSON envelope is still forwarded so the session can answer with an
// error.
func (ps *PlayerSession) LoopChannelRead() {
	entry := ps.logger()
	entry.Debug("LoopChannelRead STARTED")
	gs := ps.GameSession
	for {
		_, r, err := ps.Conn.NextReader()
		if err != nil {
			entry.WithError(err).Debug("LoopChannelRead err reading message from Conn")
			select {
			case gs.Errors <- ps:
			case <-gs.done:
			}
			break
		}
		pe := PlayerEvent{Player: ps}
		data, err := io.ReadAll(r)
		if err == nil {
			err = json.Unmarshal(data, &pe.Message)
		}
		switch {
		case err != nil:
			pe.Malformed = err.Error()
		case pe.Message.Type == "":
			pe.Malformed = "missing type"
		}
		select {
		case gs.Events <- pe:
		case <-gs.done:
			entry.Debug("LoopChannelRead session over, dropping frame")
		}
	}
	entry.Debug("LoopChannelRead ENDED")
}

// LoopChannelWrite only consumes, so the session never blocks on a full
// buffer for long. After a failed write it keeps draining until the close
// sentinel arrives.
func (ps *PlayerSession) LoopChannelWrite() {
	entry := ps.logger()
	entry.Debug("PlayerSession.LoopChannelWrite STARTED")
	broken := false
	for mes := range ps.MessagesToSend {
		if mes.closeCode != 0 {
			msg := websocket.FormatCloseMessage(mes.closeCode, mes.reason)
			if err := ps.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil && !broken {
				entry.WithError(err).Debug("LoopChannelWrite close frame")
			}
			close(ps.GameOver)
			break
		}
		if broken {
			continue
		}
		if err := ps.write(mes.env); err != nil {
			entry.WithError(err).Warn("PlayerSession.LoopChannelWrite cant write")
			broken = true
			// the read loop notices and reports the player
			ps.Conn.Close()
		}
	}
	entry.Debug("LoopChannelWrite ENDED")
}

func (ps *PlayerSession) write(env model.Envelope) error {
	if err := ps.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	w, err := ps.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(env); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
