package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bkkrt/internal/bkk"
	"bkkrt/internal/config"
	"bkkrt/internal/feed"
	"bkkrt/internal/handler"
	"bkkrt/internal/manager"
	"bkkrt/internal/publish"
	"bkkrt/internal/realtime"
	"bkkrt/internal/reference"
	"bkkrt/internal/server"
	"bkkrt/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	// CLI flags
	once := flag.Bool("once", false, "Fetch one snapshot, print its summary and exit")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.Environment, "env", cfg.Environment, "Environment: development or production")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid flags", "error", err)
		return 1
	}

	logger := newLogger(cfg)

	// Context with cancellation for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional reference mirror
	var mirror reference.Mirror
	if cfg.DBPath != "" {
		db, err := storage.Open(cfg.DBPath, logger)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			return 1
		}
		defer db.Close()
		mirror = db
	}

	client := bkk.NewClient(cfg.APIBase(), cfg.StaticURL(), cfg.FetchTimeout(), logger)
	ref := reference.NewLoader(client, mirror, logger)
	parser := feed.NewParser(ref, logger)
	coord := realtime.NewCoordinator(client, ref, parser, realtime.Options{
		TTL:     cfg.CacheTTL(),
		Timeout: cfg.FetchTimeout(),
	}, logger)
	mgr := manager.New(coord, ref, cfg.CacheTTL(), logger)

	// Optional Redis fan-out of snapshot summaries
	if cfg.RedisAddr != "" {
		rdb := publish.NewClient(cfg.RedisAddr)
		defer rdb.Close()
		pub := publish.New(rdb, cfg.RedisChannel, 2*cfg.CacheTTL(), logger)
		mgr.Subscribe(pub.Listener())
		logger.Info("publishing snapshots", "redis", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}

	h := handler.New(mgr, coord, ref, cfg.DataSource, logger)
	srv := server.New(h, cfg.Port, logger)

	// Bind first: by default the example payloads are fetched from this server.
	ln, err := srv.Listen()
	if err != nil {
		logger.Error("failed to start server", "error", err)
		return 1
	}

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()
	served := make(chan error, 1)
	go func() { served <- srv.Serve(serveCtx, ln) }()

	if *once {
		code := runOnce(ctx, mgr, logger)
		cancelServe()
		<-served
		return code
	}

	go mgr.Run(ctx, cfg.CacheTTL())

	if err := <-served; err != nil {
		logger.Error("server error", "error", err)
		return 1
	}
	logger.Info("shut down")
	return 0
}

// runOnce builds one snapshot and writes its summary to stdout.
func runOnce(ctx context.Context, mgr *manager.Manager, logger *slog.Logger) int {
	s, err := mgr.Initialize(ctx, true)
	if err != nil {
		logger.Error("snapshot failed", "error", err)
		return 1
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(publish.Summarize(s, time.Now())); err != nil {
		logger.Error("writing summary", "error", err)
		return 1
	}
	return 0
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
