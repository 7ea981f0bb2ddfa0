package server

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/zucenko/ustcchess/extensions"
	"github.com/zucenko/ustcchess/game"
	"github.com/zucenko/ustcchess/model"
)

type GameServer struct {
	GameSessions map[string]*GameSession
	GameRequests chan GameRequest
	Finished     chan string
	Upgrader     *websocket.Upgrader
	Map          *model.Map
	Registry     *extensions.Registry
	// Timeout bounds every hand-over between HTTP handlers and the loops.
	Timeout time.Duration
}

type GameSessionState int

const (
	GS_NEW GameSessionState = iota
	GS_WAIT
	GS_PLAY
	GS_ERR
	GS_OVER
)

type GameSession struct {
	Room                  string
	State                 GameSessionState
	Model                 *model.Map
	Match                 *game.Match
	PlayerSessions        []*PlayerSession
	Errors                chan *PlayerSession
	Events                chan PlayerEvent
	PlayerConnectRequests chan PlayerConnectRequest
	StatusRequests        chan chan RoomStatus

	done     chan struct{}
	finished chan<- string
	ended    bool
	log      *log.Entry

	messages  int
	durations []float64
}

type PlayerSessionState int

const (
	PS_NEW PlayerSessionState = iota + 1
	PS_PLAY
	PS_OVER
	PS_ERR
	PS_ERR_SEC
)

type PlayerSession struct {
	State       PlayerSessionState
	Camp        int
	Prepared    bool
	GameSession *GameSession
	Conn        *websocket.Conn
	GameOver    chan struct{}

	MessagesToSend chan outgoing

	DebugInMessages  int
	DebugOutMessages int
	DebugLastMessage time.Time
	// set by the ping handler on the read goroutine
	DebugLastPing atomic.Int64
	DebugPings    atomic.Int32

	stalled bool
}

// outgoing is either a frame or, with closeCode set, the last thing the
// write loop does.
type outgoing struct {
	env       model.Envelope
	closeCode int
	reason    string
}
