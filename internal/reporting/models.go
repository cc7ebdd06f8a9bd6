package reporting

import (
	"time"

	"call-inbox/internal/claims"
)

// SummaryRequest selects claims updated at or after Since.
// A zero Since covers every row.
type SummaryRequest struct {
	Since time.Time `json:"since"`
}

// Bucket is one (status, extension) group as counted by the store.
// Extension is empty for rows nobody has touched yet.
type Bucket struct {
	Status    claims.Status
	Extension string
	Count     int
}

type ClaimsSummary struct {
	Since       *time.Time `json:"since"`
	GeneratedAt time.Time  `json:"generated_at"`

	Total    int                   `json:"total"`
	ByStatus map[claims.Status]int `json:"by_status"`

	// ByExtension counts claimed and handled rows per handling extension.
	ByExtension map[string]ExtensionTotals `json:"by_extension"`
	Unassigned  int                        `json:"unassigned"`
}

type ExtensionTotals struct {
	Claimed int `json:"claimed"`
	Handled int `json:"handled"`
	Total   int `json:"total"`
}
