// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package dashboard is the client side of the backend socket: a single
// WebSocket transport and the connection that routes its frames to
// registered views.
package dashboard

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/oops"

	"github.com/backyardbot/backyardbot/internal/observability"
	"github.com/backyardbot/backyardbot/internal/router"
)

// DefaultPath is the socket endpoint on the backend host.
const DefaultPath = "/ws"

// CodeDialFailed is returned when the backend cannot be reached.
const CodeDialFailed = "DIAL_FAILED"

const (
	defaultInboundBuffer = 64
	closeGrace           = time.Second
)

// DialOptions configures Dial. The zero value dials ws://host/ws.
type DialOptions struct {
	TLS           bool
	Path          string
	Dialer        *websocket.Dialer
	Status        StatusIndicator
	Logger        *slog.Logger
	InboundBuffer int
}

// URL builds the socket address for host.
func URL(host string, tls bool, path string) string {
	scheme := "ws"
	if tls {
		scheme = "wss"
	}
	if path == "" {
		path = DefaultPath
	}
	u := url.URL{Scheme: scheme, Host: host, Path: path}
	return u.String()
}

// Transport is one persistent socket to the backend. Inbound text frames
// are delivered in arrival order on Inbound. There is no reconnection: once
// the socket closes or fails, Send returns TRANSPORT_CLOSED and Inbound is
// closed.
type Transport struct {
	conn    *websocket.Conn
	status  StatusIndicator
	logger  *slog.Logger
	inbound chan []byte

	writeMu sync.Mutex

	once    sync.Once
	done    chan struct{}
	readers sync.WaitGroup
	reason  error
}

// Dial connects to the backend at host and starts reading.
func Dial(ctx context.Context, host string, opts DialOptions) (*Transport, error) {
	status := opts.Status
	if status == nil {
		status = StatusFunc(func(Status, error) {})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	buffer := opts.InboundBuffer
	if buffer <= 0 {
		buffer = defaultInboundBuffer
	}

	target := URL(host, opts.TLS, opts.Path)
	status.SetStatus(StatusConnecting, nil)

	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		err = oops.Code(CodeDialFailed).With("url", target).Wrap(err)
		status.SetStatus(StatusError, err)
		return nil, err
	}

	t := &Transport{
		conn:    conn,
		status:  status,
		logger:  logger.With("url", target),
		inbound: make(chan []byte, buffer),
		done:    make(chan struct{}),
	}
	status.SetStatus(StatusOpen, nil)
	t.logger.Info("connected to backend")

	t.readers.Add(1)
	go t.readLoop()
	return t, nil
}

// Inbound delivers text frames in arrival order until the transport ends.
func (t *Transport) Inbound() <-chan []byte {
	return t.inbound
}

// Done is closed when the transport has ended.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Send writes data as one text frame.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	select {
	case <-t.done:
		return router.ErrTransportClosed(t.reason)
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = t.conn.SetWriteDeadline(deadline)

	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.finish(StatusError, err)
		return router.ErrTransportClosed(err)
	}
	return nil
}

// Close sends a close frame, tears the socket down and waits for the read
// loop to exit. Closing twice is a no-op.
func (t *Transport) Close() error {
	t.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	t.writeMu.Unlock()

	t.finish(StatusClosed, nil)
	t.readers.Wait()
	return nil
}

func (t *Transport) readLoop() {
	defer t.readers.Done()
	defer close(t.inbound)

	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.finish(StatusClosed, nil)
			} else {
				t.finish(StatusError, err)
			}
			return
		}
		if kind != websocket.TextMessage {
			observability.RecordDrop(observability.DropBinaryFrame)
			t.logger.Warn("ignoring non-text frame", "type", kind)
			continue
		}

		select {
		case t.inbound <- data:
		case <-t.done:
			return
		}
	}
}

// finish moves the transport to a terminal state exactly once.
func (t *Transport) finish(status Status, err error) {
	t.once.Do(func() {
		t.reason = err
		close(t.done)
		_ = t.conn.Close()
		if status == StatusError {
			t.logger.Warn("connection failed", "error", err)
		} else {
			t.logger.Info("connection closed")
		}
		t.status.SetStatus(status, err)
	})
}
