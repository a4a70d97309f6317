// Package protocol defines the JSON messages exchanged with the hedge
// system server.
//
// Every message carries a "type" discriminator. Clients authenticate
// with AUTH, keep the link warm with HEARTBEAT, and report trading
// events (OPENED, CLOSED, ERROR, PRICE, PONG, INFO) that the server
// forwards to its processing pipeline. The connection layer treats all
// of these as opaque text; only the binaries parse them.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types.
const (
	TypeAuth         = "AUTH"
	TypeAuthSuccess  = "AUTH_SUCCESS"
	TypeAuthError    = "AUTH_ERROR"
	TypeHeartbeat    = "HEARTBEAT"
	TypeHeartbeatAck = "HEARTBEAT_ACK"
	TypeOpened       = "OPENED"
	TypeClosed       = "CLOSED"
	TypeError        = "ERROR"
	TypePrice        = "PRICE"
	TypePong         = "PONG"
	TypeInfo         = "INFO"
)

// Connection quality buckets derived from round-trip latency.
const (
	QualityExcellent = "EXCELLENT"
	QualityGood      = "GOOD"
	QualityPoor      = "POOR"
)

// ClientInfo describes the trading terminal behind a connection.
type ClientInfo struct {
	Version     string `json:"version"`
	Platform    string `json:"platform"` // MT4, MT5, recorder, ...
	Account     string `json:"account"`
	ServerName  string `json:"serverName,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
}

// AuthMessage is the first message a client sends after the socket
// opens.
type AuthMessage struct {
	Type   string     `json:"type"`
	Token  string     `json:"token"`
	Client ClientInfo `json:"eaInfo"`
}

// HeartbeatMessage is the periodic application-level keepalive.
type HeartbeatMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// Envelope is the common header shared by every server and client
// message; payload fields beyond these are message-specific.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
	Server    string `json:"server,omitempty"`
	Account   string `json:"account,omitempty"`
}

// NewAuth builds the AUTH payload for the given token and terminal info.
func NewAuth(token string, client ClientInfo) ([]byte, error) {
	msg := AuthMessage{
		Type:   TypeAuth,
		Token:  token,
		Client: client,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal auth: %w", err)
	}
	return data, nil
}

// NewHeartbeat builds a HEARTBEAT payload stamped with the given time.
func NewHeartbeat(now time.Time) ([]byte, error) {
	msg := HeartbeatMessage{
		Type:      TypeHeartbeat,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal heartbeat: %w", err)
	}
	return data, nil
}

// Parse extracts the envelope header from a raw message.
func Parse(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("parse message: missing type")
	}
	return env, nil
}

// IsEvent reports whether the type is a terminal-originated trading
// event (as opposed to handshake or keepalive traffic).
func IsEvent(msgType string) bool {
	switch msgType {
	case TypeOpened, TypeClosed, TypeError, TypePrice, TypePong, TypeInfo:
		return true
	}
	return false
}

// Quality buckets a round-trip latency sample.
func Quality(latency time.Duration) string {
	switch {
	case latency < 50*time.Millisecond:
		return QualityExcellent
	case latency < 100*time.Millisecond:
		return QualityGood
	default:
		return QualityPoor
	}
}
