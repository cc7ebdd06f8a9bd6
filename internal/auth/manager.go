package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"call-inbox/internal/apperr"
	"call-inbox/internal/config"
)

// Manager issues and checks credentials. Login needs the shared password
// and, when configured, the out-of-band login access token.
type Manager struct {
	store  Store
	cache  Cache
	signer signer

	password            string
	accessToken         string
	sessionTTL          time.Duration
	deviceTTL           time.Duration
	cacheTTL            time.Duration
	allowPasswordHeader bool

	log *slog.Logger
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

// NewManager wires a credential store. cache may be nil; it is only used
// when cfg.CacheTTL is positive.
func NewManager(cfg config.AuthConfig, store Store, cache Cache, log *slog.Logger) (*Manager, error) {
	if cfg.SigningSecret == "" {
		return nil, errors.New("AUTH_SIGNING_SECRET is required")
	}
	if cfg.Password == "" {
		return nil, errors.New("CALL_INBOX_PASSWORD is required")
	}
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		store:               store,
		signer:              signer{secret: []byte(cfg.SigningSecret)},
		password:            cfg.Password,
		accessToken:         cfg.LoginAccessToken,
		sessionTTL:          cfg.SessionTTL,
		deviceTTL:           cfg.DeviceTTL,
		cacheTTL:            cfg.CacheTTL,
		allowPasswordHeader: cfg.AllowPasswordHeader,
		log:                 log,
		clock:               time.Now,
	}
	if m.sessionTTL <= 0 {
		m.sessionTTL = 30 * 24 * time.Hour
	}
	if m.deviceTTL <= 0 {
		m.deviceTTL = 10 * 365 * 24 * time.Hour
	}
	if cfg.CacheTTL > 0 {
		m.cache = cache
	}
	return m, nil
}

type LoginRequest struct {
	Password    string `json:"password"`
	AccessToken string `json:"access_token"`
	Extension   string `json:"extension"`
	// Device asks for a long-lived device token instead of a session.
	Device bool `json:"device"`
}

// Issued is a freshly minted credential in its signed wire form.
type Issued struct {
	Token     string    `json:"token"`
	Kind      Kind      `json:"kind"`
	Extension string    `json:"extension,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidateAccessToken reports whether token opens the login page.
// With no access token configured every value passes.
func (m *Manager) ValidateAccessToken(token string) bool {
	if m.accessToken == "" {
		return true
	}
	return secretEqual(token, m.accessToken)
}

func (m *Manager) Login(ctx context.Context, req LoginRequest) (Issued, error) {
	if !m.ValidateAccessToken(strings.TrimSpace(req.AccessToken)) {
		return Issued{}, apperr.Unauthorized("Invalid or missing access token")
	}
	if req.Password == "" || !secretEqual(req.Password, m.password) {
		return Issued{}, apperr.Unauthorized("Invalid password")
	}

	kind, ttl := KindSession, m.sessionTTL
	if req.Device {
		kind, ttl = KindDevice, m.deviceTTL
	}
	return m.mint(ctx, kind, strings.TrimSpace(req.Extension), ttl)
}

// IssueDevice mints a device token without a password, for operators
// provisioning a handset from the command line.
func (m *Manager) IssueDevice(ctx context.Context, extension string) (Issued, error) {
	return m.mint(ctx, KindDevice, strings.TrimSpace(extension), m.deviceTTL)
}

func (m *Manager) mint(ctx context.Context, kind Kind, extension string, ttl time.Duration) (Issued, error) {
	token, err := newToken()
	if err != nil {
		return Issued{}, err
	}
	now := m.clock().UTC().Truncate(time.Second)
	c := Credential{
		Token:     token,
		Kind:      kind,
		Extension: extension,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := m.store.Create(ctx, c); err != nil {
		return Issued{}, err
	}
	signed, err := m.signer.sign(c)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signed, Kind: kind, Extension: extension, ExpiresAt: c.ExpiresAt}, nil
}

// Sources are the places a request may carry a credential, in precedence order.
type Sources struct {
	DeviceCookie  string
	SessionCookie string
	Bearer        string
	Password      string
}

// Authenticate tries every present source in precedence order and returns
// the first valid identity.
func (m *Manager) Authenticate(ctx context.Context, src Sources) (Identity, error) {
	for _, raw := range []string{src.DeviceCookie, src.SessionCookie, src.Bearer} {
		if raw == "" {
			continue
		}
		id, err := m.Verify(ctx, raw)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, apperr.ErrUnauthorized) {
			return Identity{}, err
		}
	}
	if src.Password != "" && m.allowPasswordHeader && secretEqual(src.Password, m.password) {
		return Identity{Kind: KindPassword}, nil
	}
	return Identity{}, apperr.Unauthorized("Unauthorized")
}

// Verify checks a signed token against the credential store.
func (m *Manager) Verify(ctx context.Context, raw string) (Identity, error) {
	now := m.clock()
	claims, err := m.signer.verify(raw, now)
	if err != nil {
		return Identity{}, apperr.Unauthorized("Invalid credential")
	}
	c, err := m.lookup(ctx, claims.ID)
	if errors.Is(err, ErrCredentialNotFound) {
		return Identity{}, apperr.Unauthorized("Invalid credential")
	}
	if err != nil {
		return Identity{}, err
	}
	if !c.ValidAt(now) {
		return Identity{}, apperr.Unauthorized("Credential expired")
	}
	return Identity{Kind: c.Kind, Extension: c.Extension, ExpiresAt: c.ExpiresAt, token: c.Token}, nil
}

func (m *Manager) lookup(ctx context.Context, token string) (Credential, error) {
	if m.cache != nil {
		c, ok, err := m.cache.Get(ctx, token)
		if err != nil {
			m.log.Warn("credential cache read failed", "error", err)
		} else if ok {
			return c, nil
		}
	}
	c, err := m.store.Get(ctx, token)
	if err != nil {
		return Credential{}, err
	}
	if m.cache != nil {
		ttl := m.cacheTTL
		if left := c.ExpiresAt.Sub(m.clock()); left < ttl {
			ttl = left
		}
		if ttl > 0 {
			if err := m.cache.Set(ctx, c, ttl); err != nil {
				m.log.Warn("credential cache write failed", "error", err)
			}
		}
	}
	return c, nil
}

// Restore re-validates a device token the client kept outside cookies.
func (m *Manager) Restore(ctx context.Context, raw string) (Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return Identity{}, apperr.Invalid("Device token is required")
	}
	id, err := m.Verify(ctx, raw)
	if err != nil {
		return Identity{}, err
	}
	if id.Kind != KindDevice {
		return Identity{}, apperr.Unauthorized("Invalid or expired device token")
	}
	return id, nil
}

// Logout deletes the credential behind id. Password callers have nothing to delete.
func (m *Manager) Logout(ctx context.Context, id Identity) error {
	if id.token == "" {
		return nil
	}
	if m.cache != nil {
		if err := m.cache.Delete(ctx, id.token); err != nil {
			m.log.Warn("credential cache delete failed", "error", err)
		}
	}
	return m.store.Delete(ctx, id.token)
}

// PurgeExpired removes credentials past their expiry.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.store.PurgeExpired(ctx, m.clock().UTC())
}

// RunJanitor purges expired credentials every interval until ctx ends.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := m.PurgeExpired(ctx)
			if err != nil {
				m.log.Warn("credential purge failed", "error", err)
				continue
			}
			if n > 0 {
				m.log.Info("expired credentials purged", "count", n)
			}
		}
	}
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
