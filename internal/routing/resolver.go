package routing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"call-inbox/internal/apperr"
	"call-inbox/internal/claims"
	"call-inbox/internal/mappings"
	"call-inbox/internal/phone"
)

// MappingLookup is the read side of the extension mapping store.
type MappingLookup interface {
	Get(ctx context.Context, phone string) (mappings.ExtensionMapping, error)
}

// ClaimLookup is the read side of the call claim store.
type ClaimLookup interface {
	Get(ctx context.Context, phoneNorm string) (claims.CallClaim, error)
}

// Resolver picks the extension an inbound caller should reach.
//
// Priority:
//  1. Active extension mapping for the caller
//  2. Claim affinity: the extension that claimed or handled the caller's
//     missed call, while that claim is still within its expiry
//  3. Default PBX plan
//
// Resolve has no side effects.
type Resolver struct {
	Mappings MappingLookup
	// Claims is optional. Nil disables claim affinity.
	Claims ClaimLookup

	Normalizer phone.Normalizer
	Log        *slog.Logger
	Now        func() time.Time
}

func NewResolver(m MappingLookup, c ClaimLookup, n phone.Normalizer, log *slog.Logger) *Resolver {
	return &Resolver{Mappings: m, Claims: c, Normalizer: n, Log: log, Now: time.Now}
}

func (r *Resolver) Resolve(ctx context.Context, callerPhone string) (Decision, error) {
	key := r.normalize(callerPhone)
	if key == "" {
		return Decision{}, apperr.Invalid("phone is required")
	}
	if r.Mappings == nil {
		return Decision{}, errors.New("routing: mapping store not configured")
	}
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	d := Decision{Phone: key, Action: ActionDefault, Reason: ReasonNoMatch}

	m, err := r.Mappings.Get(ctx, key)
	switch {
	case err == nil && m.ActiveAt(now):
		d = Decision{Phone: key, Action: ActionConnect, ConnectTo: m.Extension, Reason: ReasonMapping}
		r.logDecision(ctx, d)
		return d, nil
	case err == nil:
		d.Reason = ReasonStaleEntry
	case !errors.Is(err, mappings.ErrNotFound):
		return Decision{}, err
	}

	if r.Claims != nil {
		c, err := r.Claims.Get(ctx, key)
		switch {
		case err == nil:
			if ext, ok := affinity(c, now); ok {
				d = Decision{Phone: key, Action: ActionConnect, ConnectTo: ext, Reason: ReasonClaim}
			}
		case !errors.Is(err, claims.ErrNotFound):
			return Decision{}, err
		}
	}

	r.logDecision(ctx, d)
	return d, nil
}

// affinity returns the extension that took ownership of the caller's
// missed call. Untouched (missed) and expired claims have none.
func affinity(c claims.CallClaim, now time.Time) (string, bool) {
	if c.Status != claims.StatusClaimed && c.Status != claims.StatusHandled {
		return "", false
	}
	if c.HandledByExt == nil || *c.HandledByExt == "" {
		return "", false
	}
	if !c.ExpiresAt.After(now) {
		return "", false
	}
	return *c.HandledByExt, true
}

func (r *Resolver) normalize(raw string) string {
	if r.Normalizer.CountryCode == "" {
		return phone.Normalize(raw)
	}
	return r.Normalizer.Normalize(raw)
}

func (r *Resolver) logDecision(ctx context.Context, d Decision) {
	if r.Log == nil {
		return
	}
	r.Log.DebugContext(ctx, "routing decision",
		"phone", d.Phone,
		"action", d.Action,
		"connect_to", d.ConnectTo,
		"reason", d.Reason,
	)
}
