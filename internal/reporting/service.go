package reporting

import (
	"context"
	"errors"
	"time"

	"call-inbox/internal/apperr"
	"call-inbox/internal/claims"
)

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) ClaimsSummary(ctx context.Context, req SummaryRequest) (ClaimsSummary, error) {
	now := s.clock().UTC()
	if req.Since.After(now) {
		return ClaimsSummary{}, apperr.Invalid("since must not be in the future")
	}
	if s.repo == nil {
		return ClaimsSummary{}, errors.New("reporting: repository not configured")
	}

	buckets, err := s.repo.CountClaims(ctx, req.Since)
	if err != nil {
		return ClaimsSummary{}, err
	}

	out := ClaimsSummary{
		GeneratedAt: now,
		ByStatus:    make(map[claims.Status]int),
		ByExtension: make(map[string]ExtensionTotals),
	}
	if !req.Since.IsZero() {
		since := req.Since.UTC()
		out.Since = &since
	}
	for _, b := range buckets {
		out.Total += b.Count
		out.ByStatus[b.Status] += b.Count
		if b.Extension == "" {
			out.Unassigned += b.Count
			continue
		}
		t := out.ByExtension[b.Extension]
		switch b.Status {
		case claims.StatusClaimed:
			t.Claimed += b.Count
		case claims.StatusHandled:
			t.Handled += b.Count
		}
		t.Total += b.Count
		out.ByExtension[b.Extension] = t
	}
	return out, nil
}
