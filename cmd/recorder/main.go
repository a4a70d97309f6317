// recorder connects to the hedge server as a passive client and
// archives every event it receives into TimescaleDB.
// Usage: go run ./cmd/recorder --config configs/recorder.example.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rnrnstar2/ArbitrageAssistant/hedgews"
	"github.com/rnrnstar2/ArbitrageAssistant/internal/archive"
	"github.com/rnrnstar2/ArbitrageAssistant/internal/config"
	"github.com/rnrnstar2/ArbitrageAssistant/internal/database"
	"github.com/rnrnstar2/ArbitrageAssistant/internal/protocol"
	"github.com/rnrnstar2/ArbitrageAssistant/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/recorder.example.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting recorder",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"server_url", cfg.Server.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Timescale)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Create the hedge server client
	client := hedgews.NewClient(hedgews.Config{
		QueueCapacity:        cfg.Bridge.QueueCapacity,
		ConnectTimeout:       cfg.Bridge.ConnectTimeout,
		HeartbeatInterval:    cfg.Bridge.HeartbeatInterval,
		ReconnectBaseDelay:   cfg.Bridge.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Bridge.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Bridge.MaxReconnectAttempts,
	}, logger)

	if err := client.Connect(cfg.Server.URL, cfg.Server.Token); err != nil {
		if !errors.Is(err, hedgews.ErrReconnectPending) {
			logger.Error("failed to connect to hedge server", "error", err)
			os.Exit(1)
		}
		logger.Warn("hedge server unavailable, retrying in background",
			"last_error", client.LastError())
	}

	// Start the event writer draining the client buffer
	writer := archive.NewEventWriter(archive.Config{
		BatchSize:     cfg.Archive.BatchSize,
		FlushInterval: cfg.Archive.FlushInterval,
	}, client, pool, logger)

	if err := writer.Start(ctx); err != nil {
		logger.Error("failed to start event writer", "error", err)
		os.Exit(1)
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(pool, client, writer),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		errCh := make(chan error, 1)
		go func() { errCh <- healthServer.ListenAndServe() }()
		select {
		case <-gctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return healthServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		}
	})

	g.Go(func() error {
		return superviseSession(gctx, client, cfg, logger)
	})

	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				cs := client.Stats()
				ws := writer.Stats()
				logger.Info("stats",
					"state", cs.State.String(),
					"received", cs.MessagesReceived,
					"dropped", cs.MessagesDropped,
					"queue_depth", cs.QueueDepth,
					"reconnect_attempts", cs.ReconnectAttempts,
					"archived", ws.Inserts,
					"malformed", ws.Malformed,
					"write_errors", ws.Errors,
				)
			}
		}
	})

	logger.Info("recorder running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	if err := g.Wait(); err != nil {
		logger.Error("recorder error", "error", err)
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	writer.Stop(shutdownCtx)
	client.Close()

	logger.Info("recorder stopped")
}

// superviseSession authenticates after every (re)connect and restarts
// the connect cycle when the retry budget runs out.
func superviseSession(ctx context.Context, client *hedgews.Client, cfg *config.RecorderConfig, logger *slog.Logger) error {
	info := protocol.ClientInfo{
		Version:  version.Version,
		Platform: "recorder",
		Account:  cfg.Instance.Account,
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	authed := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			switch client.State() {
			case hedgews.StateConnected:
				if authed {
					continue
				}
				auth, err := protocol.NewAuth(cfg.Server.Token, info)
				if err != nil {
					return fmt.Errorf("build auth message: %w", err)
				}
				if err := client.Send(string(auth)); err != nil {
					logger.Warn("auth send failed", "error", err)
					continue
				}
				logger.Info("authenticated with hedge server", "account", cfg.Instance.Account)
				authed = true
			case hedgews.StateFailed:
				logger.Warn("retry budget exhausted, starting a fresh connect cycle",
					"last_error", client.LastError())
				authed = false
				err := client.Connect(cfg.Server.URL, cfg.Server.Token)
				if err != nil && !errors.Is(err, hedgews.ErrReconnectPending) {
					logger.Warn("connect cycle failed", "error", err)
				}
			default:
				authed = false
			}
		}
	}
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(pool *pgxpool.Pool, client *hedgews.Client, writer *archive.EventWriter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}

		// Check the hedge server link
		cs := client.Stats()
		health.Components["bridge"] = map[string]interface{}{
			"state":              cs.State.String(),
			"reconnect_attempts": cs.ReconnectAttempts,
		}
		if cs.State != hedgews.StateConnected && health.Status == "healthy" {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		cs := client.Stats()
		ws := writer.Stats()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"bridge": map[string]interface{}{
				"state":              cs.State.String(),
				"messages_sent":      cs.MessagesSent,
				"messages_received":  cs.MessagesReceived,
				"messages_dropped":   cs.MessagesDropped,
				"queue_depth":        cs.QueueDepth,
				"reconnect_attempts": cs.ReconnectAttempts,
				"connected_for_ms":   cs.ConnectedFor.Milliseconds(),
			},
			"archive": map[string]interface{}{
				"inserts":   ws.Inserts,
				"conflicts": ws.Conflicts,
				"flushes":   ws.Flushes,
				"errors":    ws.Errors,
				"malformed": ws.Malformed,
			},
		})
	})

	return mux
}
