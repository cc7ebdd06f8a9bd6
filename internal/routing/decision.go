package routing

// Decision tells the PBX where to send an inbound call from Phone.
//
// It carries only what the dial plan needs. ActionDefault means the PBX
// keeps its own plan (ring group, IVR).
type Decision struct {
	Phone string `json:"phone"`

	Action    Action `json:"action"`
	ConnectTo string `json:"connect_to,omitempty"`

	// Reason is for logs and the PBX operator, not for callers.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionConnect Action = "connect"
	ActionDefault Action = "default"
)

const (
	ReasonMapping    = "mapping"
	ReasonClaim      = "claim"
	ReasonNoMatch    = "no_match"
	ReasonStaleEntry = "stale_mapping"
)
