package model

import "encoding/json"

const (
	TypeConnectSuccess = "connect-success"
	TypeConnectFail    = "connect-fail"
	TypeGameStart      = "game-start"
	TypeChangeTurn     = "change-turn"
	TypeDraw           = "draw"
	TypeDrawRefused    = "draw-refused"
	TypeGameEnd        = "game-end"
	TypeSuccess        = "success"
	TypeError          = "error"
)

// Close codes sent when the server shuts the sockets of a room.
const (
	CloseGameEnd      = 4000
	CloseOpponentLeft = 4004
)

const ReasonTooManyClients = "too-many-clients"

// Envelope is an outgoing frame. Message is the same frame read back with
// its payload left raw.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
	ID   string `json:"id,omitempty"`
}

type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	ID   string          `json:"id,omitempty"`
}

// Decode unmarshals the payload into dst. A missing payload leaves dst as is.
func (m Message) Decode(dst any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, dst)
}

// Text returns the payload when it is a JSON string.
func (m Message) Text() string {
	var s string
	if err := json.Unmarshal(m.Data, &s); err != nil {
		return string(m.Data)
	}
	return s
}

type ConnectSuccess struct {
	Camp    int  `json:"camp"`
	MapData *Map `json:"mapData"`
}

type State struct {
	CurrentTurn int    `json:"currentTurn"`
	Chessboard  *Board `json:"chessboard"`
}

type ChangeTurn struct {
	From        Position `json:"from"`
	To          Position `json:"to"`
	CurrentTurn int      `json:"currentTurn"`
	Chessboard  *Board   `json:"chessboard"`
}

type GameEnd struct {
	Winner int    `json:"winner"`
	Info   string `json:"info,omitempty"`
}
