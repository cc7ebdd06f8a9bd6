package mappings

import (
	"context"
	"sort"
	"sync"
)

type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]ExtensionMapping
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[string]ExtensionMapping)}
}

func (r *MemoryRepo) List(_ context.Context, limit int) ([]ExtensionMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ExtensionMapping, 0, len(r.rows))
	for _, m := range r.rows {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) Get(_ context.Context, phone string) (ExtensionMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[phone]
	if !ok {
		return ExtensionMapping{}, ErrNotFound
	}
	return m, nil
}

func (r *MemoryRepo) Upsert(_ context.Context, m ExtensionMapping) (ExtensionMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[m.PhoneNumber] = m
	return m, nil
}

func (r *MemoryRepo) Update(_ context.Context, phone string, p Patch) (ExtensionMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[phone]
	if !ok {
		return ExtensionMapping{}, ErrNotFound
	}
	if p.Extension != nil {
		m.Extension = *p.Extension
	}
	if p.ExpiresAt != nil {
		m.ExpiresAt = *p.ExpiresAt
	}
	r.rows[phone] = m
	return m, nil
}

func (r *MemoryRepo) Delete(_ context.Context, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[phone]; !ok {
		return ErrNotFound
	}
	delete(r.rows, phone)
	return nil
}
