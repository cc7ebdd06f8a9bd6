package mappings

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"call-inbox/internal/apperr"
	"call-inbox/internal/phone"
)

const ListLimit = 500

// Mapping write actions passed to Auditor.
const (
	ActionUpsert = "mapping_upsert"
	ActionUpdate = "mapping_update"
	ActionDelete = "mapping_delete"
)

// Auditor records mapping writes. Failures are logged, never surfaced.
type Auditor interface {
	LogMapping(ctx context.Context, action, phoneNumber, extension string) error
}

type Service struct {
	repo      Repository
	audit     Auditor
	normalize func(string) string
	log       *slog.Logger
	clock     func() time.Time
}

func NewService(repo Repository, audit Auditor, n phone.Normalizer, log *slog.Logger) *Service {
	s := &Service{repo: repo, audit: audit, normalize: phone.Normalize, log: log, clock: time.Now}
	if n.CountryCode != "" {
		s.normalize = n.Normalize
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// List returns every mapping, stale ones included, newest first.
func (s *Service) List(ctx context.Context) ([]ExtensionMapping, error) {
	return s.repo.List(ctx, ListLimit)
}

func (s *Service) Get(ctx context.Context, phoneNumber string) (ExtensionMapping, error) {
	key := s.normalize(phoneNumber)
	if key == "" {
		return ExtensionMapping{}, apperr.Invalid("phone_number is required")
	}
	m, err := s.repo.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return ExtensionMapping{}, apperr.NotFound("Mapping not found")
	}
	return m, err
}

// Create upserts: a second create for the same number replaces extension and
// expiry and refreshes created_at.
func (s *Service) Create(ctx context.Context, req CreateRequest) (ExtensionMapping, error) {
	key := s.normalize(req.PhoneNumber)
	if key == "" {
		return ExtensionMapping{}, apperr.Invalid("phone_number is required")
	}
	ext := strings.TrimSpace(req.Extension)
	if ext == "" {
		return ExtensionMapping{}, apperr.Invalid("extension is required")
	}
	if strings.TrimSpace(req.ExpiresAt) == "" {
		return ExtensionMapping{}, apperr.Invalid("expires_at is required (ISO date string)")
	}
	expiresAt, ok := parseTimestamp(req.ExpiresAt)
	if !ok {
		return ExtensionMapping{}, apperr.Invalid("expires_at must be a valid date")
	}

	m, err := s.repo.Upsert(ctx, ExtensionMapping{
		PhoneNumber: key,
		Extension:   ext,
		CreatedAt:   s.clock().UTC(),
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return ExtensionMapping{}, err
	}
	s.record(ctx, ActionUpsert, key, ext)
	return m, nil
}

func (s *Service) Update(ctx context.Context, phoneNumber string, req UpdateRequest) (ExtensionMapping, error) {
	key := s.normalize(phoneNumber)
	if key == "" {
		return ExtensionMapping{}, apperr.Invalid("phone_number is required")
	}
	if req.Extension == nil && req.ExpiresAt == nil {
		return ExtensionMapping{}, apperr.Invalid("At least one of extension or expires_at must be provided")
	}

	var p Patch
	if req.Extension != nil {
		ext := strings.TrimSpace(*req.Extension)
		if ext == "" {
			return ExtensionMapping{}, apperr.Invalid("extension must be a non-empty string")
		}
		p.Extension = &ext
	}
	if req.ExpiresAt != nil {
		t, ok := parseTimestamp(*req.ExpiresAt)
		if !ok {
			return ExtensionMapping{}, apperr.Invalid("expires_at must be a valid date")
		}
		p.ExpiresAt = &t
	}

	m, err := s.repo.Update(ctx, key, p)
	if errors.Is(err, ErrNotFound) {
		return ExtensionMapping{}, apperr.NotFound("Mapping not found")
	}
	if err != nil {
		return ExtensionMapping{}, err
	}
	s.record(ctx, ActionUpdate, key, m.Extension)
	return m, nil
}

// Delete removes the mapping and returns the normalized number it removed.
func (s *Service) Delete(ctx context.Context, phoneNumber string) (string, error) {
	key := s.normalize(phoneNumber)
	if key == "" {
		return "", apperr.Invalid("phone_number is required")
	}
	err := s.repo.Delete(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", apperr.NotFound("Mapping not found")
	}
	if err != nil {
		return "", err
	}
	s.record(ctx, ActionDelete, key, "")
	return key, nil
}

func (s *Service) record(ctx context.Context, action, key, ext string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogMapping(ctx, action, key, ext); err != nil {
		s.log.Warn("audit append failed", "action", action, "phone_number", key, "error", err)
	}
}
