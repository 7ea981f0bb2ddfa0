package model

import (
	"bytes"
	"encoding/json"
)

const (
	TypePrepared  = "prepared"
	TypeGetState  = "get-state"
	TypeMove      = "move"
	TypeSurrender = "surrender"
)

type MoveRequest struct {
	From Position `json:"from"`
	To   Position `json:"to"`
}

// DrawRequest is sent as {"agree": bool} or as a bare boolean. A null
// payload leaves it untouched, like an absent one.
type DrawRequest struct {
	Agree bool `json:"agree"`
}

func (d *DrawRequest) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		d.Agree = b
		return nil
	}
	type plain DrawRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*d = DrawRequest(p)
	return nil
}
