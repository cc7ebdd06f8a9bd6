// Command call-inbox serves the missed-call inbox API and its operator tasks.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-inbox/internal/auth"
	"call-inbox/internal/db"
	"call-inbox/internal/httpapi"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "call-inbox",
	Short: "Missed-call inbox API",
	Long: `call-inbox serves the shared missed-call inbox: staff claim and handle
callbacks, manage caller-to-extension mappings and follow changes live.

Configuration is read from the environment, optionally layered over the YAML
file named by CONFIG_FILE. Running without a subcommand starts the server.`,
	Version:       version,
	SilenceUsage:  true,
	RunE:          runServe,
}

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API and background janitors.

Examples:
  # Start with schema migrations applied first
  call-inbox serve --migrate`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending schema migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(rootCtx)
	if err != nil {
		slog.Error("startup failed", "err", err)
		return err
	}
	defer a.Close()
	log := a.log

	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if migrateOnStart {
		if _, err := db.Migrate(rootCtx, a.db, log); err != nil {
			log.Error("migration failed", "err", err)
			return err
		}
	}

	h, err := buildHandlers(a)
	if err != nil {
		log.Error("wiring failed", "err", err)
		return err
	}
	go h.Auth.RunJanitor(rootCtx, a.cfg.Auth.PurgeInterval)
	go sweepLoginLimiter(rootCtx, h.LoginLimiter)

	// Request contexts derive from streamsCtx so open feeds end when
	// shutdown starts instead of holding it until the timeout.
	streamsCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr(),
		Handler:           httpapi.NewRouter(h, log),
		ReadHeaderTimeout: 5 * time.Second,
		// No ReadTimeout or WriteTimeout: feed responses stay open for the
		// life of the client.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return streamsCtx },
	}
	srv.RegisterOnShutdown(cancelStreams)

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", a.cfg.App.Env, "redis", a.rdb != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
		return err
	}
	return nil
}

func sweepLoginLimiter(ctx context.Context, l *auth.LoginLimiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}
