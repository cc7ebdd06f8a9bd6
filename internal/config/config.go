package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds all configuration required by the call inbox process.
// Values come from an optional YAML file (CONFIG_FILE) overridden by env.
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Feed   FeedConfig
	Notify NotifyConfig
	Phone  PhoneConfig
}

type AppConfig struct {
	Env     string
	Port    int
	BaseURL string
}

type DBConfig struct {
	// URL wins over the discrete fields when set (POSTGRES_URL).
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. An empty Host disables the change bus,
// credential cache and feed connection cap.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	// Password is the shared login password (CALL_INBOX_PASSWORD).
	Password string
	// LoginAccessToken gates the login endpoint itself. Empty disables the check.
	LoginAccessToken string
	SigningSecret    string

	SessionTTL time.Duration
	DeviceTTL  time.Duration

	CookieSecure        bool
	AllowPasswordHeader bool
	CacheTTL            time.Duration
	LoginRatePerMinute  int
	PurgeInterval       time.Duration
}

type FeedConfig struct {
	PollInterval          time.Duration
	HeartbeatEvery        int
	Limit                 int
	SkipUnchanged         bool
	MaxConnsPerCredential int
	ChangesChannel        string
}

type NotifyConfig struct {
	OneSignalAppID  string
	OneSignalAPIKey string
	OneSignalAPIURL string
}

type PhoneConfig struct {
	DefaultCountryCode string
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port == 0 {
		c.App.Port = 8080
	}
	if c.App.Port < 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.BaseURL == "" {
		c.App.BaseURL = fmt.Sprintf("http://localhost:%d", c.App.Port)
	} else if u, err := url.Parse(c.App.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("APP_BASE_URL must be an absolute URL, got %q", c.App.BaseURL))
	}
	c.App.BaseURL = strings.TrimRight(c.App.BaseURL, "/")

	if c.DB.URL == "" {
		if c.DB.Host == "" {
			errs = append(errs, errors.New("POSTGRES_URL or DB_HOST is required"))
		}
		if c.DB.Port == 0 {
			c.DB.Port = 5432
		}
		if c.DB.Port < 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				// Local-friendly default; production must be explicit.
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.Redis.Host != "" {
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.Port < 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.Password == "" {
		errs = append(errs, errors.New("CALL_INBOX_PASSWORD is required"))
	}
	if c.Auth.SigningSecret == "" {
		errs = append(errs, errors.New("AUTH_SIGNING_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.LoginAccessToken == "" {
			errs = append(errs, errors.New("LOGIN_ACCESS_TOKEN is required in production"))
		}
		if !c.Auth.CookieSecure {
			errs = append(errs, errors.New("AUTH_COOKIE_SECURE must be true in production"))
		}
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 30 * 24 * time.Hour
	}
	if c.Auth.SessionTTL < 24*time.Hour || c.Auth.SessionTTL > 365*24*time.Hour {
		errs = append(errs, fmt.Errorf("AUTH_SESSION_TTL must be between 24h and 8760h, got %s", c.Auth.SessionTTL))
	}
	if c.Auth.DeviceTTL == 0 {
		c.Auth.DeviceTTL = 10 * 365 * 24 * time.Hour
	}
	if c.Auth.DeviceTTL < c.Auth.SessionTTL {
		errs = append(errs, errors.New("AUTH_DEVICE_TTL must not be shorter than AUTH_SESSION_TTL"))
	}
	if c.Auth.CacheTTL < 0 {
		errs = append(errs, errors.New("AUTH_CACHE_TTL must not be negative"))
	}
	if c.Auth.LoginRatePerMinute < 0 {
		errs = append(errs, errors.New("AUTH_LOGIN_RATE_PER_MIN must not be negative"))
	}
	if c.Auth.PurgeInterval <= 0 {
		c.Auth.PurgeInterval = time.Hour
	}

	if c.Feed.PollInterval == 0 {
		c.Feed.PollInterval = 2 * time.Second
	}
	if c.Feed.PollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("FEED_POLL_INTERVAL must be at least 100ms, got %s", c.Feed.PollInterval))
	}
	if c.Feed.HeartbeatEvery == 0 {
		c.Feed.HeartbeatEvery = 5
	}
	if c.Feed.HeartbeatEvery < 0 {
		errs = append(errs, errors.New("FEED_HEARTBEAT_EVERY must be positive"))
	}
	if c.Feed.Limit == 0 {
		c.Feed.Limit = 100
	}
	if c.Feed.Limit < 0 || c.Feed.Limit > 500 {
		errs = append(errs, fmt.Errorf("FEED_LIMIT must be between 1 and 500, got %d", c.Feed.Limit))
	}
	if c.Feed.MaxConnsPerCredential < 0 {
		errs = append(errs, errors.New("FEED_MAX_CONNS_PER_CREDENTIAL must not be negative"))
	}
	if c.Feed.ChangesChannel == "" {
		c.Feed.ChangesChannel = "call_claims:changed"
	}

	if (c.Notify.OneSignalAppID == "") != (c.Notify.OneSignalAPIKey == "") {
		errs = append(errs, errors.New("ONESIGNAL_APP_ID and ONESIGNAL_REST_API_KEY must be set together"))
	}
	if c.Notify.OneSignalAPIURL == "" {
		c.Notify.OneSignalAPIURL = "https://onesignal.com/api/v1/notifications"
	}

	if c.Phone.DefaultCountryCode == "" {
		c.Phone.DefaultCountryCode = "386"
	}
	if !isDigits(c.Phone.DefaultCountryCode) || strings.HasPrefix(c.Phone.DefaultCountryCode, "0") {
		errs = append(errs, fmt.Errorf("PHONE_DEFAULT_COUNTRY_CODE must be digits without a leading zero, got %q", c.Phone.DefaultCountryCode))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// IsDevelopment reports whether error details may be exposed to clients.
func (c Config) IsDevelopment() bool {
	return c.App.Env == "local" || c.App.Env == "dev"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	if c.DB.URL != "" {
		return c.DB.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c Config) NotificationsEnabled() bool {
	return c.Notify.OneSignalAppID != "" && c.Notify.OneSignalAPIKey != ""
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
