package hedgews

import "errors"

var (
	// ErrNotConnected is returned by Send when no session is established.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectFailed wraps transport errors raised while opening a session.
	ErrConnectFailed = errors.New("connect failed")

	// ErrSendFailed wraps transport errors raised while writing a message.
	ErrSendFailed = errors.New("send failed")

	// ErrHeartbeatTimeout is recorded when no liveness ack arrives within
	// twice the heartbeat interval.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")

	// ErrQueueOverflow is recorded when an inbound message is dropped
	// because the receive buffer is full. It never triggers a reconnect.
	ErrQueueOverflow = errors.New("message buffer full")

	// ErrReconnectPending is returned by Connect when the session could
	// not be established yet but a retry has been scheduled.
	ErrReconnectPending = errors.New("reconnect pending")

	// ErrRetryExhausted is returned once the reconnect budget is spent.
	ErrRetryExhausted = errors.New("reconnect attempts exhausted")

	// ErrClientClosed is returned by operations on a closed client.
	ErrClientClosed = errors.New("client closed")
)
