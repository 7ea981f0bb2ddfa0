package model

import "encoding/json"

// Attr is the open attribute bag of a card or chess. Extensions keep their
// private state here. Values are bool, int, string, Position, []Position,
// []MoveRange, or whatever encoding/json produced when the bag was decoded;
// the accessors accept both shapes.
type Attr map[string]any

func (a Attr) Has(key string) bool {
	_, ok := a[key]
	return ok
}

func (a Attr) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case int:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

func (a Attr) Int(key string) (int, bool) {
	switch v := a[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

func (a Attr) String(key string) string {
	s, _ := a[key].(string)
	return s
}

func (a Attr) Position(key string) (Position, bool) {
	switch v := a[key].(type) {
	case nil:
		return Position{}, false
	case Position:
		return v, true
	}
	var p Position
	return p, a.decode(key, &p)
}

func (a Attr) Positions(key string) []Position {
	switch v := a[key].(type) {
	case nil:
		return nil
	case []Position:
		return v
	case Moves:
		return v
	}
	var ps []Position
	a.decode(key, &ps)
	return ps
}

func (a Attr) MoveRanges(key string) []MoveRange {
	switch v := a[key].(type) {
	case nil:
		return nil
	case []MoveRange:
		return v
	}
	var rs []MoveRange
	a.decode(key, &rs)
	return rs
}

func (a Attr) decode(key string, dst any) bool {
	raw, err := json.Marshal(a[key])
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// SetAttr stores v under key, allocating the bag if needed.
func (c *Chess) SetAttr(key string, v any) {
	if c.Attr == nil {
		c.Attr = Attr{}
	}
	c.Attr[key] = v
}

// Clone copies the bag so template and instance never share containers.
func (a Attr) Clone() Attr {
	if a == nil {
		return nil
	}
	out := make(Attr, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case Attr:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	case []Position:
		return append([]Position(nil), t...)
	case Moves:
		return append(Moves(nil), t...)
	case []MoveRange:
		return append([]MoveRange(nil), t...)
	default:
		return v
	}
}
