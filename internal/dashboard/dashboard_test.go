// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/backyardbot/backyardbot/internal/router"
	"github.com/backyardbot/backyardbot/pkg/errutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// peer is a one-client backend stand-in.
type peer struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	received chan []byte
	wg       sync.WaitGroup
}

func newPeer(t *testing.T) *peer {
	t.Helper()
	p := &peer{
		conns:    make(chan *websocket.Conn, 1),
		received: make(chan []byte, 16),
	}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc(DefaultPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p.wg.Add(1)
		defer p.wg.Done()
		defer conn.Close()
		p.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			p.received <- data
		}
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		p.wg.Wait()
		p.srv.Close()
	})
	return p
}

func (p *peer) host() string {
	return strings.TrimPrefix(p.srv.URL, "http://")
}

func (p *peer) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-p.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no client connected")
		return nil
	}
}

func (p *peer) next(t *testing.T) string {
	t.Helper()
	select {
	case data := <-p.received:
		return string(data)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return ""
	}
}

// statusLog records every status change.
type statusLog struct {
	mu     sync.Mutex
	states []Status
}

func (s *statusLog) SetStatus(status Status, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, status)
}

func (s *statusLog) all() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Status(nil), s.states...)
}

func receive(t *testing.T, ch <-chan []byte) (string, bool) {
	t.Helper()
	select {
	case data, ok := <-ch:
		return string(data), ok
	case <-time.After(2 * time.Second):
		t.Fatal("nothing on inbound")
		return "", false
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		name string
		host string
		tls  bool
		path string
		want string
	}{
		{name: "default path", host: "garden:8080", want: "ws://garden:8080/ws"},
		{name: "tls", host: "garden", tls: true, want: "wss://garden/ws"},
		{name: "custom path", host: "garden", path: "/socket", want: "ws://garden/socket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, URL(tt.host, tt.tls, tt.path))
		})
	}
}

func TestTransport_InboundOrderAndClose(t *testing.T) {
	p := newPeer(t)
	status := &statusLog{}

	tr, err := Dial(context.Background(), p.host(), DialOptions{Status: status})
	require.NoError(t, err)
	server := p.conn(t)

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte("first")))
	require.NoError(t, server.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte("second")))

	got, ok := receive(t, tr.Inbound())
	require.True(t, ok)
	assert.Equal(t, "first", got)
	got, ok = receive(t, tr.Inbound())
	require.True(t, ok)
	assert.Equal(t, "second", got)

	require.NoError(t, tr.Send(context.Background(), []byte("hello")))
	assert.Equal(t, "hello", p.next(t))

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, ok = receive(t, tr.Inbound())
	assert.False(t, ok, "inbound closes with the transport")

	err = tr.Send(context.Background(), []byte("late"))
	errutil.AssertErrorCode(t, err, router.CodeTransportClosed)

	assert.Equal(t, []Status{StatusConnecting, StatusOpen, StatusClosed}, status.all())
}

func TestTransport_ServerCloses(t *testing.T) {
	p := newPeer(t)
	status := &statusLog{}

	tr, err := Dial(context.Background(), p.host(), DialOptions{Status: status})
	require.NoError(t, err)
	server := p.conn(t)

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye")
	require.NoError(t, server.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not end")
	}
	_, ok := receive(t, tr.Inbound())
	assert.False(t, ok)
	assert.Equal(t, []Status{StatusConnecting, StatusOpen, StatusClosed}, status.all())

	require.NoError(t, tr.Close())
}

func TestTransport_ServerDropsWithoutCloseFrame(t *testing.T) {
	p := newPeer(t)
	status := &statusLog{}

	tr, err := Dial(context.Background(), p.host(), DialOptions{Status: status})
	require.NoError(t, err)
	server := p.conn(t)

	require.NoError(t, server.UnderlyingConn().Close())

	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not end")
	}
	_, ok := receive(t, tr.Inbound())
	assert.False(t, ok)
	assert.Equal(t, []Status{StatusConnecting, StatusOpen, StatusError}, status.all())

	err = tr.Send(context.Background(), []byte(`{}`))
	errutil.AssertErrorCode(t, err, router.CodeTransportClosed)

	require.NoError(t, tr.Close())
}

func TestDial_Failure(t *testing.T) {
	p := newPeer(t)
	status := &statusLog{}

	_, err := Dial(context.Background(), p.host(), DialOptions{Status: status, Path: "/missing"})
	errutil.AssertErrorCode(t, err, CodeDialFailed)
	assert.Equal(t, []Status{StatusConnecting, StatusError}, status.all())
}

type recordingView struct {
	name     string
	payloads chan json.RawMessage
}

func (v *recordingView) Name() string { return v.name }

func (v *recordingView) ReceiveData(_ context.Context, payload json.RawMessage) {
	v.payloads <- payload
}

func TestConnection_RoutesBothWays(t *testing.T) {
	p := newPeer(t)
	tr, err := Dial(context.Background(), p.host(), DialOptions{})
	require.NoError(t, err)
	server := p.conn(t)

	conn := NewConnection(tr, nil)
	view := &recordingView{name: "timetable", payloads: make(chan json.RawMessage, 4)}
	conn.Register(view)
	assert.Equal(t, []string{"timetable"}, conn.Registry().Names())

	done := make(chan error, 1)
	go func() { done <- conn.Run(context.Background()) }()

	require.NoError(t, server.WriteMessage(websocket.TextMessage,
		[]byte(`{"plugin_name":"nobody","payload":1}`)))
	require.NoError(t, server.WriteMessage(websocket.TextMessage,
		[]byte(`{"plugin_name":"timetable","payload":{"command":"timetable_contents","payload":[]}}`)))

	select {
	case payload := <-view.payloads:
		assert.JSONEq(t, `{"command":"timetable_contents","payload":[]}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("view got nothing")
	}

	require.NoError(t, conn.SendCommand(context.Background(), view, "remove_entry", "01ABC"))
	assert.JSONEq(t,
		`{"plugin_name":"timetable","payload":{"command":"remove_entry","payload":"01ABC"}}`,
		p.next(t))

	require.NoError(t, conn.SendRedirect(context.Background(), "to_client", "timecontrol", map[string]int{"x": 1}))
	assert.JSONEq(t,
		`{"plugin_name":"debug","payload":{"x":1},"message_destination":"to_client","receiving_plugin":"timecontrol"}`,
		p.next(t))

	require.NoError(t, conn.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after close")
	}
}
