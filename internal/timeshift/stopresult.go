package timeshift

import "encoding/json"

// StopResult is the wire shape of a record's explicit-stop operation:
// Ok(n) serializes as {"ok":n}, Err(msg) as {"err":msg}.
type StopResult struct {
	ok    int
	err   string
	isErr bool
}

// Ok builds a successful StopResult carrying n (typically bytes truncated
// or records affected).
func Ok(n int) StopResult {
	return StopResult{ok: n}
}

// Err builds a failed StopResult carrying msg.
func Err(msg string) StopResult {
	return StopResult{err: msg, isErr: true}
}

// MarshalJSON implements the tagged {"ok":n} / {"err":"msg"} wire shape.
func (r StopResult) MarshalJSON() ([]byte, error) {
	if r.isErr {
		return json.Marshal(struct {
			Err string `json:"err"`
		}{r.err})
	}
	return json.Marshal(struct {
		Ok int `json:"ok"`
	}{r.ok})
}
