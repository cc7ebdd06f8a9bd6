package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"call-inbox/internal/claims"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records who changed what. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Append fills in id, timestamp, client ip and actor from ctx when missing.
func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if !e.Type.valid() {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIP(ctx)
	}
	if e.ActorExtension == "" {
		e.ActorExtension = Actor(ctx)
	}
	return s.repo.Append(ctx, e)
}

// LogTransition records a call claim transition.
func (s *Service) LogTransition(ctx context.Context, phoneNorm string, from, to claims.Status, extension string) error {
	meta, _ := json.Marshal(map[string]string{"from": string(from), "to": string(to), "extension": extension})
	return s.Append(ctx, Event{
		Type:     EventTypeTransition,
		Phone:    phoneNorm,
		Message:  fmt.Sprintf("%s -> %s by %s", from, to, extension),
		Metadata: string(meta),
	})
}

// LogMapping records an extension mapping write.
func (s *Service) LogMapping(ctx context.Context, action, phoneNumber, extension string) error {
	e := Event{Type: EventType(action), Phone: phoneNumber}
	if extension != "" {
		e.Message = "extension " + extension
	}
	return s.Append(ctx, e)
}

// LogLogin records a login attempt; failed attempts carry the reason.
func (s *Service) LogLogin(ctx context.Context, extension, kind string, failure error) error {
	e := Event{Type: EventTypeLogin, ActorExtension: extension, Message: kind}
	if failure != nil {
		e.Type = EventTypeLoginFailed
		e.Message = failure.Error()
	}
	return s.Append(ctx, e)
}

func (s *Service) LogLogout(ctx context.Context, extension string) error {
	return s.Append(ctx, Event{Type: EventTypeLogout, ActorExtension: extension})
}
