package claims

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is a Repository for tests and local runs without Postgres.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]CallClaim
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[string]CallClaim)}
}

// Put inserts or replaces a row, standing in for the PBX ingestion side.
func (r *MemoryRepo) Put(c CallClaim) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[c.PhoneNorm] = c
}

func (r *MemoryRepo) List(_ context.Context, q Query) ([]CallClaim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]CallClaim, 0)
	for _, c := range r.rows {
		if len(q.Statuses) > 0 && !containsStatus(q.Statuses, c.Status) {
			continue
		}
		if !q.ActiveAt.IsZero() && !c.ExpiresAt.After(q.ActiveAt) {
			continue
		}
		if q.Digits != "" && !strings.Contains(c.PhoneNorm, q.Digits) {
			continue
		}
		if q.Extension != "" && (c.HandledByExt == nil || *c.HandledByExt != q.Extension) {
			continue
		}
		if !q.UpdatedSince.IsZero() && c.UpdatedAt.Before(q.UpdatedSince) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) Get(_ context.Context, phoneNorm string) (CallClaim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[phoneNorm]
	if !ok {
		return CallClaim{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) Transition(_ context.Context, phoneNorm string, status Status, ext string, now time.Time) (CallClaim, Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[phoneNorm]
	if !ok {
		return CallClaim{}, "", ErrNotFound
	}
	if !canTransition(c.Status, status) {
		return CallClaim{}, "", ErrBackwardTransition
	}
	prev := c.Status
	c.Status = status
	e := ext
	c.HandledByExt = &e
	if next := c.UpdatedAt.Add(time.Microsecond); now.Before(next) {
		now = next
	}
	c.UpdatedAt = now
	r.rows[phoneNorm] = c
	return c, prev, nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
