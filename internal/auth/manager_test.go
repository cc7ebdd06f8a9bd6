package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"call-inbox/internal/apperr"
	"call-inbox/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, mutate func(*config.AuthConfig)) (*Manager, *MemoryStore, *time.Time) {
	t.Helper()
	cfg := config.AuthConfig{
		Password:         "hunter2",
		LoginAccessToken: "door",
		SigningSecret:    "secret",
		SessionTTL:       30 * 24 * time.Hour,
		DeviceTTL:        10 * 365 * 24 * time.Hour,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	store := NewMemoryStore()
	m, err := NewManager(cfg, store, nil, nil)
	require.NoError(t, err)
	now := time.Unix(1700000000, 0).UTC()
	m.clock = func() time.Time { return now }
	return m, store, &now
}

func TestLogin_RequiresAccessTokenAndPassword(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.Login(ctx, LoginRequest{Password: "hunter2"})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = m.Login(ctx, LoginRequest{AccessToken: "door"})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = m.Login(ctx, LoginRequest{AccessToken: "door", Password: "wrong"})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	is, err := m.Login(ctx, LoginRequest{AccessToken: "door", Password: "hunter2", Extension: " 101 "})
	require.NoError(t, err)
	assert.Equal(t, KindSession, is.Kind)
	assert.Equal(t, "101", is.Extension)
}

func TestAuthenticate_SessionLifecycle(t *testing.T) {
	m, _, now := newTestManager(t, nil)
	ctx := context.Background()

	is, err := m.Login(ctx, LoginRequest{AccessToken: "door", Password: "hunter2", Extension: "101"})
	require.NoError(t, err)

	id, err := m.Authenticate(ctx, Sources{SessionCookie: is.Token})
	require.NoError(t, err)
	assert.Equal(t, "101", id.Extension)
	assert.Equal(t, KindSession, id.Kind)

	require.NoError(t, m.Logout(ctx, id))
	_, err = m.Authenticate(ctx, Sources{SessionCookie: is.Token})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	is2, err := m.Login(ctx, LoginRequest{AccessToken: "door", Password: "hunter2"})
	require.NoError(t, err)
	*now = now.Add(31 * 24 * time.Hour)
	_, err = m.Authenticate(ctx, Sources{Bearer: is2.Token})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized), "expired session must be rejected")
}

func TestAuthenticate_PrecedenceFallsThroughInvalidSources(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	ctx := context.Background()

	dev, err := m.Login(ctx, LoginRequest{AccessToken: "door", Password: "hunter2", Extension: "102", Device: true})
	require.NoError(t, err)
	sess, err := m.Login(ctx, LoginRequest{AccessToken: "door", Password: "hunter2", Extension: "101"})
	require.NoError(t, err)

	id, err := m.Authenticate(ctx, Sources{DeviceCookie: dev.Token, SessionCookie: sess.Token})
	require.NoError(t, err)
	assert.Equal(t, KindDevice, id.Kind, "device cookie wins")

	id, err = m.Authenticate(ctx, Sources{DeviceCookie: "garbage", SessionCookie: sess.Token})
	require.NoError(t, err)
	assert.Equal(t, KindSession, id.Kind)
}

func TestAuthenticate_PasswordHeaderOptIn(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	_, err := m.Authenticate(context.Background(), Sources{Password: "hunter2"})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	m2, _, _ := newTestManager(t, func(c *config.AuthConfig) { c.AllowPasswordHeader = true })
	id, err := m2.Authenticate(context.Background(), Sources{Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, KindPassword, id.Kind)

	_, err = m2.Authenticate(context.Background(), Sources{Password: "nope"})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestRestore_OnlyDeviceTokens(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	ctx := context.Background()
	sess, err := m.Login(ctx, LoginRequest{AccessToken: "door", Password: "hunter2"})
	require.NoError(t, err)
	_, err = m.Restore(ctx, sess.Token)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	dev, err := m.IssueDevice(ctx, "103")
	require.NoError(t, err)
	id, err := m.Restore(ctx, dev.Token)
	require.NoError(t, err)
	assert.Equal(t, "103", id.Extension)

	_, err = m.Restore(ctx, "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestPurgeExpired(t *testing.T) {
	m, store, now := newTestManager(t, nil)
	ctx := context.Background()
	_, err := m.Login(ctx, LoginRequest{AccessToken: "door", Password: "hunter2"})
	require.NoError(t, err)
	_, err = m.IssueDevice(ctx, "101")
	require.NoError(t, err)

	*now = now.Add(40 * 24 * time.Hour)
	n, err := m.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, store.rows, 1)
}

type mapCache struct {
	rows map[string]Credential
	sets int
}

func (c *mapCache) Get(_ context.Context, token string) (Credential, bool, error) {
	v, ok := c.rows[token]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, cred Credential, _ time.Duration) error {
	c.rows[cred.Token] = cred
	c.sets++
	return nil
}

func (c *mapCache) Delete(_ context.Context, token string) error {
	delete(c.rows, token)
	return nil
}

func TestVerify_UsesCacheWhenEnabled(t *testing.T) {
	cache := &mapCache{rows: map[string]Credential{}}
	store := NewMemoryStore()
	m, err := NewManager(config.AuthConfig{Password: "pw", SigningSecret: "s", CacheTTL: time.Minute}, store, cache, nil)
	require.NoError(t, err)
	ctx := context.Background()

	is, err := m.Login(ctx, LoginRequest{Password: "pw"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := m.Verify(ctx, is.Token)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, cache.sets)

	id, err := m.Verify(ctx, is.Token)
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx, id))
	assert.Empty(t, cache.rows)
	_, err = m.Verify(ctx, is.Token)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestLoginLimiter(t *testing.T) {
	l := NewLoginLimiter(2)
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }
	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"))

	now = now.Add(time.Minute)
	assert.True(t, l.Allow("1.1.1.1"))

	disabled := NewLoginLimiter(0)
	assert.True(t, disabled.Allow("1.1.1.1"))
}
