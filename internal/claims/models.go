package claims

import "time"

// CallClaim is one row per distinct caller, keyed by the normalized number.
// Rows are created with status missed by the PBX ingestion side and only
// mutated here through Service.Transition. They are never deleted.
type CallClaim struct {
	PhoneNorm     string  `json:"phone_norm" db:"phone_norm"`
	LastPBXCallID *string `json:"last_pbx_call_id" db:"last_pbx_call_id"`
	Status        Status  `json:"status" db:"status"`

	// HandledByExt is set on every transition and never cleared.
	HandledByExt *string `json:"handled_by_ext" db:"handled_by_ext"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

type Status string

const (
	StatusMissed  Status = "missed"
	StatusClaimed Status = "claimed"
	StatusHandled Status = "handled"

	// Reserved: accepted as filter values, never a transition target.
	StatusAnswered        Status = "answered"
	StatusCallbackStarted Status = "callback_started"
	StatusCallbackDone    Status = "callback_done"
	StatusArchived        Status = "archived"
)

// ActiveStatuses make up the default inbox view.
var ActiveStatuses = []Status{StatusMissed, StatusClaimed}

func (s Status) Known() bool {
	switch s {
	case StatusMissed, StatusClaimed, StatusHandled,
		StatusAnswered, StatusCallbackStarted, StatusCallbackDone, StatusArchived:
		return true
	default:
		return false
	}
}

// Settable reports whether s may be the target of a transition.
func (s Status) Settable() bool {
	return s == StatusClaimed || s == StatusHandled
}

// TransitionSources lists the statuses a row may hold for a move to target.
// Status only moves forward: a handled call cannot be claimed again.
func TransitionSources(target Status) []Status {
	switch target {
	case StatusClaimed:
		return []Status{StatusMissed, StatusClaimed}
	case StatusHandled:
		return []Status{StatusMissed, StatusClaimed, StatusHandled}
	default:
		return nil
	}
}

func canTransition(from, to Status) bool {
	for _, s := range TransitionSources(to) {
		if s == from {
			return true
		}
	}
	return false
}

// ListFilter is the caller-facing query shape for ListActive.
type ListFilter struct {
	Search    string
	Status    Status
	Extension string

	IncludeExpired bool
	IncludeHandled bool
	UpdatedSince   time.Time

	Limit int
}

// Query is a resolved ListFilter handed to the repository.
type Query struct {
	// Statuses empty means any status.
	Statuses []Status
	// Digits is a substring match on phone_norm.
	Digits    string
	Extension string
	// ActiveAt zero means expired rows are included.
	ActiveAt     time.Time
	UpdatedSince time.Time
	Limit        int
}
