package server

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zucenko/ustcchess/model"
)

const HTTP_SUCCESS = 200
const HTTP_CREATED = 201
const HTTP_BAD_REQUEST = 400
const HTTP_NOT_FOUND = 404
const HTTP_TIMEOUT = 408

const DefaultRoom = "default"

type ResponseCode int

const (
	GAME_READY ResponseCode = iota
	GAME_NOT_FOUND
	GAME_INVALIDE
)

func (h ResponseCode) ToHttp() int {
	switch h {
	case GAME_READY:
		return HTTP_SUCCESS
	case GAME_NOT_FOUND:
		return HTTP_NOT_FOUND
	case GAME_INVALIDE:
		return HTTP_BAD_REQUEST
	default:
		panic(h)
	}
}

func (gss GameSessionState) Name() string {
	switch gss {
	case GS_NEW:
		return "GS_NEW"
	case GS_WAIT:
		return "GS_WAIT"
	case GS_PLAY:
		return "GS_PLAY"
	case GS_ERR:
		return "GS_ERR"
	case GS_OVER:
		return "GS_OVER"
	default:
		return fmt.Sprintf("n/a:%d", gss)
	}
}

func (ps PlayerSessionState) Name() string {
	switch ps {
	case PS_NEW:
		return "NEW"
	case PS_PLAY:
		return "PLAY"
	case PS_OVER:
		return "OVER"
	case PS_ERR:
		return "ERR"
	case PS_ERR_SEC:
		return "ERR_SEC"
	default:
		return "N/A"
	}
}

type GameContextAwaiting struct {
	ResponseCode ResponseCode
	GameSession  *GameSession
}

// GameRequest asks the server loop for the session of Room. Create makes a
// new room and fails if it exists, Lookup never creates one.
type GameRequest struct {
	Room                string
	Create              bool
	Lookup              bool
	GameContextAwaiting chan GameContextAwaiting
}

type PlayerConnectRequest struct {
	Con      *websocket.Conn
	GameOver chan struct{}
}

// PlayerEvent is one frame read from a player. Malformed holds the reason
// when the frame could not be decoded.
type PlayerEvent struct {
	Player    *PlayerSession
	Message   model.Message
	Malformed string
}

type PlayerStatus struct {
	Camp        int        `json:"camp"`
	State       string     `json:"state"`
	Prepared    bool       `json:"prepared"`
	InMessages  int        `json:"inMessages"`
	OutMessages int        `json:"outMessages"`
	Pings       int        `json:"pings"`
	LastPing    *time.Time `json:"lastPing,omitempty"`
}

type Latency struct {
	Mean float64 `json:"mean"`
	P95  float64 `json:"p95"`
	Max  float64 `json:"max"`
}

type RoomStatus struct {
	Room        string         `json:"room"`
	State       string         `json:"state"`
	Match       string         `json:"match"`
	CurrentTurn int            `json:"currentTurn"`
	Players     []PlayerStatus `json:"players"`
	Messages    int            `json:"messages"`
	// Latency of message handling in milliseconds.
	Latency Latency `json:"latency"`
}
