// wsprobe connects to a hedge server, authenticates, and streams every
// event to the console with heartbeat round-trip quality.
// Usage: go run ./cmd/wsprobe --url ws://127.0.0.1:8080 --account 12345
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rnrnstar2/ArbitrageAssistant/hedgews"
	"github.com/rnrnstar2/ArbitrageAssistant/internal/protocol"
	"github.com/rnrnstar2/ArbitrageAssistant/internal/version"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:8080", "hedge server websocket url")
	token := flag.String("token", "", "bearer token")
	account := flag.String("account", "", "account number to report")
	interval := flag.Duration("heartbeat", 30*time.Second, "protocol heartbeat interval")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := hedgews.NewClient(hedgews.Config{HeartbeatInterval: *interval}, logger)
	defer client.Close()

	logger.Info("connecting", "url", *url)
	if err := client.Connect(*url, *token); err != nil {
		if !errors.Is(err, hedgews.ErrReconnectPending) {
			logger.Error("connect failed", "error", err, "last_error", client.LastError())
			os.Exit(1)
		}
		logger.Warn("server unavailable, retrying in background")
	}

	// Stamp of the last protocol heartbeat, for round-trip quality.
	var heartbeatSentAt atomic.Int64

	go heartbeatLoop(ctx, client, *token, *account, *interval, &heartbeatSentAt, logger)
	go printMessages(ctx, client, *verbose, &heartbeatSentAt)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := client.Stats()
				logger.Info("stats",
					"state", st.State.String(),
					"sent", st.MessagesSent,
					"received", st.MessagesReceived,
					"dropped", st.MessagesDropped,
					"queue_depth", st.QueueDepth,
					"reconnect_attempts", st.ReconnectAttempts,
					"connected_for", st.ConnectedFor.Round(time.Second),
				)
			}
		}
	}()

	logger.Info("probe started - press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutdown complete")
}

// heartbeatLoop authenticates whenever a session is established and
// sends protocol-level heartbeats on the configured cadence. It polls
// every second so auth goes out right after a reconnect instead of
// waiting out a full heartbeat interval.
func heartbeatLoop(ctx context.Context, client *hedgews.Client, token, account string, interval time.Duration, sentAt *atomic.Int64, logger *slog.Logger) {
	info := protocol.ClientInfo{
		Version:  version.Version,
		Platform: "wsprobe",
		Account:  account,
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	authed := false
	var lastHeartbeat time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !client.IsConnected() {
				authed = false
				continue
			}
			if !authed {
				auth, err := protocol.NewAuth(token, info)
				if err != nil {
					logger.Error("build auth message", "error", err)
					return
				}
				if err := client.Send(string(auth)); err != nil {
					logger.Warn("auth send failed", "error", err)
					continue
				}
				authed = true
			}

			if time.Since(lastHeartbeat) < interval {
				continue
			}
			hb, err := protocol.NewHeartbeat(time.Now())
			if err != nil {
				logger.Error("build heartbeat", "error", err)
				return
			}
			if err := client.Send(string(hb)); err != nil {
				logger.Warn("heartbeat send failed", "error", err)
				continue
			}
			lastHeartbeat = time.Now()
			sentAt.Store(time.Now().UnixNano())
		}
	}
}

func printMessages(ctx context.Context, client *hedgews.Client, verbose bool, heartbeatSentAt *atomic.Int64) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, ok := client.Receive()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			env, err := protocol.Parse([]byte(msg))
			if err != nil {
				fmt.Printf("[UNPARSED] %s\n", msg)
				continue
			}

			if verbose {
				var pretty any
				if json.Unmarshal([]byte(msg), &pretty) == nil {
					data, _ := json.MarshalIndent(pretty, "", "  ")
					fmt.Printf("[%s] %s\n", env.Type, data)
					continue
				}
			}

			switch env.Type {
			case protocol.TypeAuthSuccess:
				fmt.Printf("[AUTH] success client_id=%s\n", env.ClientID)
			case protocol.TypeAuthError:
				fmt.Printf("[AUTH] rejected\n")
			case protocol.TypeHeartbeatAck:
				if sent := heartbeatSentAt.Load(); sent > 0 {
					latency := time.Since(time.Unix(0, sent))
					fmt.Printf("[HEARTBEAT] rtt=%s quality=%s\n", latency.Round(time.Millisecond), protocol.Quality(latency))
				} else {
					fmt.Printf("[HEARTBEAT] ack\n")
				}
			case protocol.TypeHeartbeat:
				fmt.Printf("[HEARTBEAT] server=%s ts=%s\n", env.Server, env.Timestamp)
			default:
				if protocol.IsEvent(env.Type) {
					fmt.Printf("[EVENT] type=%s account=%s\n", env.Type, env.Account)
				} else {
					fmt.Printf("[MESSAGE] type=%s\n", env.Type)
				}
			}
		}
	}
}
