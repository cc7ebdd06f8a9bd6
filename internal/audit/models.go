package audit

import "time"

// Event is an immutable, append-only audit record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block inbox flows on audit failures.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// ActorExtension is the extension attached to the caller's credential, if any.
	ActorExtension string `json:"actor_extension,omitempty" db:"actor_extension"`
	IPAddress      string `json:"ip_address,omitempty" db:"ip_address"`

	// Phone is the normalized number the event is about (claim or mapping key).
	Phone string `json:"phone,omitempty" db:"phone"`

	Message string `json:"message,omitempty" db:"message"`
	// Metadata is optional JSON text.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeTransition    EventType = "call_transition"
	EventTypeMappingUpsert EventType = "mapping_upsert"
	EventTypeMappingUpdate EventType = "mapping_update"
	EventTypeMappingDelete EventType = "mapping_delete"
	EventTypeLogin         EventType = "login"
	EventTypeLoginFailed   EventType = "login_failed"
	EventTypeLogout        EventType = "logout"
)

func (t EventType) valid() bool {
	switch t {
	case EventTypeTransition, EventTypeMappingUpsert, EventTypeMappingUpdate, EventTypeMappingDelete,
		EventTypeLogin, EventTypeLoginFailed, EventTypeLogout:
		return true
	default:
		return false
	}
}
