package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"call-inbox/internal/audit"
	"call-inbox/internal/auth"
	"call-inbox/internal/claims"
	"call-inbox/internal/config"
	"call-inbox/internal/feed"
	"call-inbox/internal/httpapi"
	"call-inbox/internal/mappings"
	"call-inbox/internal/metrics"
	"call-inbox/internal/notify"
	"call-inbox/internal/phone"
	"call-inbox/internal/reporting"
	"call-inbox/internal/routing"
	"call-inbox/pkg/logger"
	"call-inbox/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// app holds the process-wide resources shared by every subcommand.
type app struct {
	cfg config.Config
	log *slog.Logger
	db  *sql.DB
	// rdb is nil when REDIS_HOST is unset.
	rdb *redis.Client
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres connection failed", "err", err)
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db}
	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			_ = db.Close()
			log.Error("redis connection failed", "err", err)
			return nil, err
		}
		a.rdb = rdb
	}
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	_ = a.db.Close()
}

func (a *app) normalizer() phone.Normalizer {
	return phone.Normalizer{
		CountryCode:    a.cfg.Phone.DefaultCountryCode,
		NationalLength: phone.DefaultNationalLength,
	}
}

func (a *app) authManager() (*auth.Manager, error) {
	var cache auth.Cache
	if a.rdb != nil {
		cache = auth.NewRedisCache(a.rdb)
	}
	return auth.NewManager(a.cfg.Auth, auth.NewPostgresStore(a.db), cache, a.log)
}

func (a *app) health(ctx context.Context) error {
	if err := utils.HealthCheck(ctx, a.db, 2*time.Second); err != nil {
		return err
	}
	if a.rdb == nil {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.rdb.Ping(pingCtx).Err()
}

// buildHandlers wires every service onto Postgres, with Redis taking over
// the change bus, credential cache and feed cap when configured.
func buildHandlers(a *app) (*httpapi.Handlers, error) {
	cfg := a.cfg
	log := a.log
	n := a.normalizer()
	m := metrics.NewMetrics()
	auditSvc := audit.NewService(audit.NewPostgresRepo(a.db))

	var notifier notify.Notifier = notify.Noop{Log: log}
	if cfg.NotificationsEnabled() {
		notifier = notify.NewOneSignal(notify.OneSignalConfig{
			AppID:   cfg.Notify.OneSignalAppID,
			APIKey:  cfg.Notify.OneSignalAPIKey,
			APIURL:  cfg.Notify.OneSignalAPIURL,
			OpenURL: cfg.App.BaseURL + "/calls",
		}, &http.Client{Timeout: 10 * time.Second})
	} else {
		log.Info("push notifications disabled", "reason", "onesignal not configured")
	}

	var bus feed.Bus = feed.NewLocalBus()
	if a.rdb != nil {
		bus = feed.NewRedisBus(a.rdb, cfg.Feed.ChangesChannel)
	}

	claimRepo := claims.NewPostgresRepo(a.db)
	claimSvc := claims.NewService(claimRepo, claims.Options{
		Notifier: notify.NewAsync(notifier, log, 10*time.Second, m.RecordNotification),
		Changes:  bus,
		Audit:    auditSvc,
		Observe: func(from, to claims.Status) {
			m.RecordTransition(string(from), string(to))
		},
		Normalizer: n,
		Logger:     log,
	})

	mappingRepo := mappings.NewPostgresRepo(a.db)

	mgr, err := a.authManager()
	if err != nil {
		return nil, err
	}

	h := &httpapi.Handlers{
		Auth:         mgr,
		LoginLimiter: auth.NewLoginLimiter(cfg.Auth.LoginRatePerMinute),
		Cookies:      auth.CookieOptions{Secure: cfg.Auth.CookieSecure},

		Claims:    claimSvc,
		Mappings:  mappings.NewService(mappingRepo, auditSvc, n, log),
		Routing:   routing.NewResolver(mappingRepo, claimRepo, n, log),
		Reporting: reporting.NewService(reporting.NewPostgresRepo(a.db)),

		Feed: &feed.Publisher{
			Source:         claimSvc,
			Interval:       cfg.Feed.PollInterval,
			HeartbeatEvery: cfg.Feed.HeartbeatEvery,
			Limit:          cfg.Feed.Limit,
			SkipUnchanged:  cfg.Feed.SkipUnchanged,
			Bus:            bus,
			Log:            log,
			Metrics:        m,
		},
		FeedMaxConns: cfg.Feed.MaxConnsPerCredential,

		Notifier: notifier,
		Audit:    auditSvc,
		Metrics:  m,

		Health:            a.health,
		ExposeErrorDetail: cfg.IsDevelopment(),
	}
	if a.rdb != nil && cfg.Feed.MaxConnsPerCredential > 0 {
		h.FeedConns = feed.NewRedisConnLimiter(a.rdb, cfg.Feed.MaxConnsPerCredential)
	} else if cfg.Feed.MaxConnsPerCredential > 0 {
		log.Warn("feed connection cap needs redis; running uncapped")
	}
	return h, nil
}
