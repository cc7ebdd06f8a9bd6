package mappings

import "time"

// ExtensionMapping routes calls from one phone number to an extension.
// At most one row exists per phone number. Rows past ExpiresAt are stale
// but stay visible until deleted explicitly.
type ExtensionMapping struct {
	PhoneNumber string    `json:"phone_number" db:"phone_number"`
	Extension   string    `json:"extension" db:"extension"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time `json:"expires_at" db:"expires_at"`
}

func (m ExtensionMapping) ActiveAt(t time.Time) bool {
	return m.ExpiresAt.After(t)
}

type CreateRequest struct {
	PhoneNumber string `json:"phone_number"`
	Extension   string `json:"extension"`
	ExpiresAt   string `json:"expires_at"`
}

// UpdateRequest leaves nil fields untouched.
type UpdateRequest struct {
	Extension *string `json:"extension"`
	ExpiresAt *string `json:"expires_at"`
}

// Patch is a validated UpdateRequest.
type Patch struct {
	Extension *string
	ExpiresAt *time.Time
}
