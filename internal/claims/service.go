package claims

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"call-inbox/internal/apperr"
	"call-inbox/internal/notify"
	"call-inbox/internal/phone"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Signaler wakes change feeds after a write.
type Signaler interface {
	Publish(ctx context.Context) error
}

// Auditor records transitions. Failures are logged, never surfaced.
type Auditor interface {
	LogTransition(ctx context.Context, phoneNorm string, from, to Status, extension string) error
}

// TransitionObserver is told about every successful transition.
type TransitionObserver func(from, to Status)

type Options struct {
	Notifier   notify.Notifier
	Changes    Signaler
	Audit      Auditor
	Observe    TransitionObserver
	Normalizer phone.Normalizer
	Logger     *slog.Logger
}

// Service owns the call claim lifecycle: missed -> claimed -> handled.
type Service struct {
	repo      Repository
	notifier  notify.Notifier
	changes   Signaler
	audit     Auditor
	observe   TransitionObserver
	normalize func(string) string
	log       *slog.Logger
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:      repo,
		notifier:  opts.Notifier,
		changes:   opts.Changes,
		audit:     opts.Audit,
		observe:   opts.Observe,
		normalize: phone.Normalize,
		log:       opts.Logger,
		clock:     time.Now,
	}
	if opts.Normalizer.CountryCode != "" {
		s.normalize = opts.Normalizer.Normalize
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Normalize exposes the key derivation so callers address rows consistently.
func (s *Service) Normalize(raw string) string { return s.normalize(raw) }

// ListActive returns claims ordered by updated_at descending. The zero filter
// is the inbox view: missed or claimed, not yet expired, newest first.
func (s *Service) ListActive(ctx context.Context, f ListFilter) ([]CallClaim, error) {
	q, err := s.resolve(f)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, q)
}

func (s *Service) resolve(f ListFilter) (Query, error) {
	q := Query{
		Extension:    strings.TrimSpace(f.Extension),
		UpdatedSince: f.UpdatedSince,
		Limit:        f.Limit,
	}
	switch {
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit < 0 || q.Limit > MaxLimit:
		return Query{}, apperr.Invalid("limit must be between 1 and %d", MaxLimit)
	}

	switch {
	case f.Status != "":
		if !f.Status.Known() {
			return Query{}, apperr.Invalid("unknown status %q", f.Status)
		}
		q.Statuses = []Status{f.Status}
	case f.IncludeHandled:
		// any status
	default:
		q.Statuses = ActiveStatuses
	}

	if !f.IncludeExpired {
		q.ActiveAt = s.clock().UTC()
	}

	if search := strings.TrimSpace(f.Search); search != "" {
		q.Digits = phone.Digits(search)
		if q.Digits == "" {
			return Query{}, apperr.Invalid("search must contain digits")
		}
	}
	return q, nil
}

func (s *Service) Get(ctx context.Context, phoneNorm string) (CallClaim, error) {
	key := s.normalize(phoneNorm)
	if key == "" {
		return CallClaim{}, apperr.Invalid("phone number is required")
	}
	c, err := s.repo.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return CallClaim{}, apperr.NotFound("Call not found")
	}
	return c, err
}

// Transition moves a claim to claimed or handled on behalf of extension.
// Concurrent writers are last-writer-wins. A status change triggers a
// background notification; every successful write wakes change feeds.
func (s *Service) Transition(ctx context.Context, phoneNorm string, status Status, extension string) (CallClaim, error) {
	if !status.Settable() {
		return CallClaim{}, apperr.Invalid("Status must be one of: claimed, handled")
	}
	ext := strings.TrimSpace(extension)
	if ext == "" {
		return CallClaim{}, apperr.Invalid("Extension is required")
	}
	key := s.normalize(phoneNorm)
	if key == "" {
		return CallClaim{}, apperr.Invalid("phone number is required")
	}

	c, prev, err := s.repo.Transition(ctx, key, status, ext, s.clock().UTC())
	switch {
	case errors.Is(err, ErrNotFound):
		return CallClaim{}, apperr.NotFound("Call not found")
	case errors.Is(err, ErrBackwardTransition):
		return CallClaim{}, apperr.Invalid("call cannot move to %s from its current status", status)
	case err != nil:
		return CallClaim{}, err
	}

	l := s.log.With("phone_norm", key, "status", string(status), "extension", ext)
	if prev != status {
		l.Info("call claim status changed", "previous", string(prev))
		if s.notifier != nil {
			if err := s.notifier.SendCallStatusNotification(ctx, notify.Notification{
				Phone:     key,
				Status:    string(status),
				Extension: ext,
			}); err != nil {
				l.Warn("call notification failed", "error", err)
			}
		}
	}
	if s.audit != nil {
		if err := s.audit.LogTransition(ctx, key, prev, status, ext); err != nil {
			l.Warn("audit append failed", "error", err)
		}
	}
	if s.changes != nil {
		if err := s.changes.Publish(ctx); err != nil {
			l.Warn("change signal failed", "error", err)
		}
	}
	if s.observe != nil {
		s.observe(prev, status)
	}
	return c, nil
}
