package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/phonecam/phonecam-signal/internal/broker"
	"github.com/phonecam/phonecam-signal/internal/config"
	"github.com/phonecam/phonecam-signal/internal/httpserver"
	"github.com/phonecam/phonecam-signal/internal/metrics"
	"github.com/phonecam/phonecam-signal/internal/signaling"
	"github.com/phonecam/phonecam-signal/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "usage: phonecam-signal [flags]; every flag also reads its environment variable")
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting phonecam-signal",
		"listen_addr", cfg.ListenAddr,
		"public_base_url", cfg.PublicBaseURL,
		"mode", cfg.Mode,
		"index_file", cfg.IndexFile,
		"session_grace_period", cfg.SessionGracePeriod,
		"signaling_ws_idle_timeout", cfg.SignalingWSIdleTimeout,
		"signaling_ws_ping_interval", cfg.SignalingWSPingInterval,
		"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
		"signaling_send_queue", cfg.SignalingSendQueue,
		"ice_servers", len(cfg.ICEServers),
		"turn_rest_enabled", cfg.TURNREST.Enabled(),
	)
	logStartupWarnings(logger, cfg)

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	a, err := newApp(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})
	if err != nil {
		logger.Error("failed to configure server", "err", err)
		os.Exit(2)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.http.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		a.signaling.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received", "sessions", a.store.Len())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := a.shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

// app is the wired process: one session store shared by the signaling
// gateway, mounted on the HTTP server.
type app struct {
	metrics   *metrics.Metrics
	store     *broker.Store
	signaling *signaling.Server
	http      *httpserver.Server
}

func newApp(cfg config.Config, logger *slog.Logger, build httpserver.BuildInfo) (*app, error) {
	origins, err := cfg.OriginPolicy()
	if err != nil {
		return nil, fmt.Errorf("origin policy: %w", err)
	}

	var turn *turnrest.Generator
	if cfg.TURNREST.Enabled() {
		turn, err = turnrest.NewGenerator(turnrest.Config{
			SharedSecret:   cfg.TURNREST.SharedSecret,
			TTL:            time.Duration(cfg.TURNREST.TTLSeconds) * time.Second,
			UsernamePrefix: cfg.TURNREST.UsernamePrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("turn rest: %w", err)
		}
	}

	m := metrics.New()
	store := broker.NewStore(broker.Config{
		GracePeriod: cfg.SessionGracePeriod,
		Metrics:     m,
		Logger:      logger,
	})
	sig := signaling.NewServer(signaling.Config{
		Broker:          store,
		Metrics:         m,
		Logger:          logger,
		OriginPolicy:    origins,
		IdleTimeout:     cfg.SignalingWSIdleTimeout,
		PingInterval:    cfg.SignalingWSPingInterval,
		MaxMessageBytes: cfg.MaxSignalingMessageBytes,
		SendQueueSize:   cfg.SignalingSendQueue,
	})

	srv := httpserver.New(cfg, logger, build, httpserver.Deps{
		Origins:   origins,
		TURN:      turn,
		Metrics:   m,
		Signaling: sig,
	})
	sig.RegisterRoutes(srv.Mux())

	return &app{metrics: m, store: store, signaling: sig, http: srv}, nil
}

// shutdown stops accepting HTTP requests, then sends going-away frames to
// open signaling sockets. Hijacked connections are not tracked by
// http.Server, so the gateway closes them itself.
func (a *app) shutdown(ctx context.Context) error {
	err := a.http.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		a.signaling.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
