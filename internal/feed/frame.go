package feed

import (
	"encoding/json"

	"call-inbox/internal/claims"
)

const (
	TypeConnected = "connected"
	TypeUpdate    = "update"
	TypeHeartbeat = "heartbeat"
)

// Frame is one message on a feed connection.
type Frame struct {
	Type  string
	Calls []claims.CallClaim
}

// MarshalJSON always emits "calls" on update frames, even when empty.
func (f Frame) MarshalJSON() ([]byte, error) {
	if f.Type != TypeUpdate {
		return json.Marshal(struct {
			Type string `json:"type"`
		}{f.Type})
	}
	calls := f.Calls
	if calls == nil {
		calls = []claims.CallClaim{}
	}
	return json.Marshal(struct {
		Type  string             `json:"type"`
		Calls []claims.CallClaim `json:"calls"`
	}{f.Type, calls})
}
