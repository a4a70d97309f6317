package hedgews

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// The package-level functions drive one shared client for hosts that
// cannot hold a handle. The client is built on first use and retired
// by Cleanup; a later call builds a fresh one.
var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

func defaultHandle() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = NewClient(DefaultConfig(), slog.Default())
	}
	return defaultClient
}

// Connect opens a session to url with the given bearer token. It
// returns true when the session is established or a retry is armed;
// false only when the attempt is terminally lost. Details are
// available from GetLastError.
func Connect(url, token string) bool {
	err := defaultHandle().Connect(url, token)
	return err == nil || errors.Is(err, ErrReconnectPending)
}

// Disconnect tears down the shared client. Safe to call repeatedly.
func Disconnect() {
	defaultHandle().Disconnect()
}

// SendMessage writes one text message, reporting success as a boolean.
func SendMessage(text string) bool {
	return defaultHandle().Send(text) == nil
}

// ReceiveMessage pops the oldest buffered message, or "" when the
// buffer is empty. It never blocks.
func ReceiveMessage() string {
	msg, _ := defaultHandle().Receive()
	return msg
}

// IsConnected reports whether the shared client has a session.
func IsConnected() bool {
	return defaultHandle().IsConnected()
}

// GetLastError returns the most recent recorded failure, or "".
func GetLastError() string {
	return defaultHandle().LastError()
}

// GetMessagesSent returns the number of successful sends.
func GetMessagesSent() uint64 {
	return defaultHandle().Stats().MessagesSent
}

// GetMessagesReceived returns the number of buffered inbound messages,
// not counting drops.
func GetMessagesReceived() uint64 {
	return defaultHandle().Stats().MessagesReceived
}

// GetQueueSize returns the current receive buffer depth.
func GetQueueSize() int {
	return defaultHandle().Stats().QueueDepth
}

// GetReconnectAttempts returns the attempt count of the current
// recovery sequence, 0 when the link is healthy.
func GetReconnectAttempts() int {
	return defaultHandle().Stats().ReconnectAttempts
}

// GetConnectionState returns the lifecycle state as a stable integer:
// 0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 failed.
func GetConnectionState() int {
	return int(defaultHandle().State())
}

// GetConnectionDurationMs returns how long the current session has
// been established, in milliseconds, or 0 when not connected.
func GetConnectionDurationMs() int64 {
	return int64(defaultHandle().Stats().ConnectedFor / time.Millisecond)
}

// Cleanup disconnects and discards the shared client. The next
// package-level call starts from a clean slate.
func Cleanup() {
	defaultMu.Lock()
	c := defaultClient
	defaultClient = nil
	defaultMu.Unlock()

	if c != nil {
		c.Close()
	}
}
