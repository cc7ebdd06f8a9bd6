package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024

// Load reads configuration with the following precedence (highest first):
//  1. Environment variables (APP_PORT, FEED_POLL_INTERVAL, ...)
//  2. YAML file named by CONFIG_FILE, using the same keys lower-cased (app_port: 8080)
//  3. Defaults applied in Validate
func Load() (Config, error) {
	k := koanf.New(".")

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Keys stay flat: APP_PORT -> app_port.
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	r := reader{k: k}
	c := Config{}

	c.App.Env = r.str("app_env")
	c.App.Port = r.int("app_port")
	c.App.BaseURL = r.str("app_base_url")

	c.DB.URL = r.str("postgres_url")
	c.DB.Host = r.str("db_host")
	c.DB.Port = r.int("db_port")
	c.DB.User = r.str("db_user")
	c.DB.Password = k.String("db_password")
	c.DB.Name = r.str("db_name")
	c.DB.SSLMode = r.str("db_sslmode")

	c.Redis.Host = r.str("redis_host")
	c.Redis.Port = r.int("redis_port")

	c.Auth.Password = k.String("call_inbox_password")
	c.Auth.LoginAccessToken = r.str("login_access_token")
	c.Auth.SigningSecret = k.String("auth_signing_secret")
	c.Auth.SessionTTL = r.duration("auth_session_ttl")
	c.Auth.DeviceTTL = r.duration("auth_device_ttl")
	c.Auth.CookieSecure = r.bool("auth_cookie_secure")
	c.Auth.AllowPasswordHeader = r.bool("auth_allow_password_header")
	c.Auth.CacheTTL = r.duration("auth_cache_ttl")
	c.Auth.LoginRatePerMinute = r.intOr("auth_login_rate_per_min", 10)
	c.Auth.PurgeInterval = r.duration("auth_purge_interval")

	c.Feed.PollInterval = r.duration("feed_poll_interval")
	c.Feed.HeartbeatEvery = r.int("feed_heartbeat_every")
	c.Feed.Limit = r.int("feed_limit")
	c.Feed.SkipUnchanged = r.bool("feed_skip_unchanged")
	c.Feed.MaxConnsPerCredential = r.int("feed_max_conns_per_credential")
	c.Feed.ChangesChannel = r.str("feed_changes_channel")

	c.Notify.OneSignalAppID = r.str("onesignal_app_id")
	c.Notify.OneSignalAPIKey = k.String("onesignal_rest_api_key")
	c.Notify.OneSignalAPIURL = r.str("onesignal_api_url")

	c.Phone.DefaultCountryCode = r.str("phone_default_country_code")

	if err := joinErrors(r.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config file %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

// reader collects parse errors so Load can report every bad key at once.
type reader struct {
	k    *koanf.Koanf
	errs []error
}

func (r *reader) str(key string) string {
	return strings.TrimSpace(r.k.String(key))
}

func (r *reader) int(key string) int {
	return r.intOr(key, 0)
}

func (r *reader) intOr(key string, def int) int {
	v := r.str(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer, got %q", strings.ToUpper(key), v))
		return 0
	}
	return n
}

func (r *reader) bool(key string) bool {
	v := r.str(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a boolean, got %q", strings.ToUpper(key), v))
		return false
	}
	return b
}

// duration accepts Go durations plus a day suffix ("30d").
func (r *reader) duration(key string) time.Duration {
	v := r.str(key)
	if v == "" {
		return 0
	}
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil && n >= 0 {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a duration, got %q", strings.ToUpper(key), v))
		return 0
	}
	return d
}
