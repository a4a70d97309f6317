package hedgews

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SessionEvents carries the callbacks a Session fires from its reader
// goroutine. Open is signaled by Dial returning a Session; the
// remaining notifications arrive here. At most one of OnClose or
// OnFail fires per session, and it is the reader's final act.
type SessionEvents struct {
	// OnClose fires when the peer closes the session cleanly.
	OnClose func(err error)
	// OnFail fires when the session dies from a transport error.
	OnFail func(err error)
	// OnMessage fires once per inbound text message.
	OnMessage func(text string)
	// OnPong fires on any liveness ack from the peer.
	OnPong func()
}

// Session is one established WebSocket connection. Implementations
// must allow Send, Ping and Close from different goroutines.
type Session interface {
	// Send writes one text message.
	Send(text string) error
	// Ping writes a liveness probe.
	Ping(payload string) error
	// Close tears the session down and joins the reader goroutine.
	// It is idempotent; the local close is not reported via OnClose.
	Close(reason string) error
}

// Dialer opens Sessions. The zero client uses newGorillaDialer; tests
// substitute their own to drive failures deterministically.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header, events SessionEvents) (Session, error)
}

type gorillaDialer struct {
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	logger           *slog.Logger
}

func newGorillaDialer(handshakeTimeout, writeTimeout time.Duration, logger *slog.Logger) *gorillaDialer {
	return &gorillaDialer{
		handshakeTimeout: handshakeTimeout,
		writeTimeout:     writeTimeout,
		logger:           logger,
	}
}

func (d *gorillaDialer) Dial(ctx context.Context, url string, header http.Header, events SessionEvents) (Session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}

	s := &gorillaSession{
		conn:         conn,
		events:       events,
		writeTimeout: d.writeTimeout,
		logger:       d.logger,
		done:         make(chan struct{}),
		readerDone:   make(chan struct{}),
	}

	conn.SetPingHandler(func(data string) error {
		events.OnPong()
		return s.writeControl(websocket.PongMessage, []byte(data))
	})
	conn.SetPongHandler(func(string) error {
		events.OnPong()
		return nil
	})

	go s.readLoop()
	return s, nil
}

// gorillaSession wraps a gorilla/websocket connection. All writes are
// serialized through writeMu because the library allows only one
// concurrent writer.
type gorillaSession struct {
	conn         *websocket.Conn
	events       SessionEvents
	writeTimeout time.Duration
	logger       *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once

	done       chan struct{}
	readerDone chan struct{}
}

func (s *gorillaSession) Send(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (s *gorillaSession) Ping(payload string) error {
	return s.writeControl(websocket.PingMessage, []byte(payload))
}

func (s *gorillaSession) Close(reason string) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		s.writeControl(websocket.CloseMessage, msg)

		err = s.conn.Close()
		<-s.readerDone
	})
	return err
}

func (s *gorillaSession) writeControl(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(messageType, data, time.Now().Add(s.writeTimeout))
}

func (s *gorillaSession) readLoop() {
	defer close(s.readerDone)

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// Local close, already reported to the caller.
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.events.OnClose(err)
			} else {
				s.events.OnFail(err)
			}
			return
		}

		if msgType != websocket.TextMessage {
			s.logger.Warn("ignoring non-text frame", "type", msgType)
			continue
		}
		s.events.OnMessage(string(data))
	}
}
