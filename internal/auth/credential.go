package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

type Kind string

const (
	KindSession Kind = "session"
	KindDevice  Kind = "device"
	// KindPassword marks requests let in by the shared password header.
	KindPassword Kind = "password"
)

// Credential is a stored session or device token.
// Invariant: valid iff the row exists and ExpiresAt is after now.
// Rows are never mutated; logout deletes, the janitor purges expired rows.
type Credential struct {
	Token     string    `json:"-" db:"token"`
	Kind      Kind      `json:"kind" db:"kind"`
	Extension string    `json:"extension,omitempty" db:"extension"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (c Credential) ValidAt(t time.Time) bool {
	return c.Token != "" && c.ExpiresAt.After(t)
}

var ErrCredentialNotFound = errors.New("credential not found")

type Store interface {
	Create(ctx context.Context, c Credential) error
	Get(ctx context.Context, token string) (Credential, error)
	Delete(ctx context.Context, token string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// tokenDigest is the form a token takes at rest: the hex sha256 of the raw
// value. Only the client ever holds the raw token.
func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c Credential) error {
	const q = `
INSERT INTO credentials (token_hash, kind, extension, expires_at, created_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5)
`
	if _, err := s.db.ExecContext(ctx, q, tokenDigest(c.Token), string(c.Kind), c.Extension, c.ExpiresAt, c.CreatedAt); err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, token string) (Credential, error) {
	const q = `
SELECT kind, COALESCE(extension, ''), expires_at, created_at
FROM credentials
WHERE token_hash = $1
`
	c := Credential{Token: token}
	if err := s.db.QueryRowContext(ctx, q, tokenDigest(token)).Scan(&c.Kind, &c.Extension, &c.ExpiresAt, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credential{}, ErrCredentialNotFound
		}
		return Credential{}, err
	}
	return c, nil
}

func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE token_hash = $1`, tokenDigest(token)); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge credentials: %w", err)
	}
	return res.RowsAffected()
}

// MemoryStore is a Store for tests and local runs.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Credential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Credential)}
}

func (s *MemoryStore) Create(_ context.Context, c Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[c.Token]; ok {
		return errors.New("credential already exists")
	}
	s.rows[c.Token] = c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[token]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return c, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, token)
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, c := range s.rows {
		if !c.ExpiresAt.After(now) {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}
