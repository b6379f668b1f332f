// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package server is the backend's HTTP side: the dashboard WebSocket,
// plugin routing and the plugin listing API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/cors"
	"github.com/samber/oops"

	"github.com/backyardbot/backyardbot/internal/hub"
	"github.com/backyardbot/backyardbot/internal/observability"
	"github.com/backyardbot/backyardbot/internal/plugin"
	"github.com/backyardbot/backyardbot/internal/plugins"
	"github.com/backyardbot/backyardbot/internal/router"
	"github.com/backyardbot/backyardbot/internal/wire"
	"github.com/backyardbot/backyardbot/pkg/errutil"
)

// Defaults for Config.
const (
	DefaultListen        = ":8080"
	DefaultWSPath        = "/ws"
	DefaultInboundBuffer = 256
)

// Config configures the server.
type Config struct {
	Listen         string
	WSPath         string
	AllowedOrigins []string
	InboundBuffer  int
	Logger         *slog.Logger
}

// PluginLister lists the loaded plugins for the API.
type PluginLister interface {
	Plugins() []*plugin.Loaded
}

// Server routes dashboard frames to backend plugins and plugin output
// back to the dashboards.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	hub      *hub.Hub
	registry *router.Registry
	router   *router.Router
	lister   PluginLister
	inbound  chan []byte

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
	runCtx     context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a server. Plugins register with Registry and send through
// Router.
func New(cfg Config) *Server {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.WSPath == "" {
		cfg.WSPath = DefaultWSPath
	}
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = DefaultInboundBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		inbound: make(chan []byte, cfg.InboundBuffer),
		runCtx:  context.Background(),
	}
	s.hub = hub.New(hub.Options{
		Logger:      cfg.Logger,
		CheckOrigin: originChecker(cfg.AllowedOrigins),
		OnMessage:   s.handleFrame,
		OnConnect:   s.greet,
	})
	s.registry = router.NewRegistry(cfg.Logger)
	s.router = router.New(s.registry, s.hub, router.WithLogger(cfg.Logger))
	return s
}

// Registry returns the backend plugin registry.
func (s *Server) Registry() *router.Registry { return s.registry }

// Router returns the router plugins send through.
func (s *Server) Router() *router.Router { return s.router }

// Hub returns the WebSocket hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// SetPlugins sets the source of the /api/plugins listing.
func (s *Server) SetPlugins(l PluginLister) { s.lister = l }

// Handler returns the HTTP handler: the WebSocket endpoint and the API,
// wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.WSPath, s.hub)
	mux.HandleFunc("GET /api/plugins", s.handlePlugins)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

// Start listens, starts the routing loop and every plugin that runs in
// the background. Errors from the HTTP server after startup arrive on the
// returned channel, which closes when the server stops.
func (s *Server) Start(ctx context.Context) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code(CodeAlreadyRunning).Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code(CodeListenFailed).With("addr", s.cfg.Listen).Wrap(err)
	}
	s.listener = listener

	s.runCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.router.Run(s.runCtx, s.inbound)
	}()

	for _, name := range s.registry.Names() {
		p, _ := s.registry.Lookup(name)
		if r, ok := p.(plugins.Runner); ok {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				r.Run(s.runCtx)
			}()
		}
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("server started", "addr", listener.Addr().String(), "ws_path", s.cfg.WSPath,
		"plugins", s.registry.Names())
	return errCh, nil
}

// Stop disconnects the dashboards, stops the plugins and the routing loop.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, oops.With("operation", "shutdown_http_server").Wrap(err))
	}
	if err := s.hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	s.wg.Wait()

	s.logger.Info("server stopped")
	return errors.Join(errs...)
}

// Ready reports whether the server is serving.
func (s *Server) Ready() bool { return s.running.Load() }

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleFrame queues a client frame for the routing loop. Debug frames
// carrying a destination are redirected instead.
func (s *Server) handleFrame(ctx context.Context, clientID string, data []byte) {
	if env, err := wire.Decode(data); err == nil && env.PluginName == wire.DebugPluginName {
		if handled := s.redirect(ctx, clientID, data); handled {
			return
		}
	}
	s.enqueue(ctx, data)
}

func (s *Server) enqueue(ctx context.Context, data []byte) {
	select {
	case s.inbound <- data:
	case <-ctx.Done():
	case <-s.runCtx.Done():
	}
}

// redirect handles a debug frame. It reports false when the frame has no
// destination and belongs to the debug plugin itself.
func (s *Server) redirect(ctx context.Context, clientID string, data []byte) bool {
	r, err := wire.DecodeRedirect(data)
	if err != nil || r.MessageDestination == "" {
		return false
	}
	logger := s.logger.With("client", clientID, "receiving_plugin", r.ReceivingPlugin)

	frame, err := wire.Encode(r.ReceivingPlugin, r.Payload)
	if err != nil {
		errutil.LogWarn(logger, "redirect dropped", err)
		return true
	}

	switch r.MessageDestination {
	case wire.ToClient:
		logger.Debug("redirecting to clients")
		s.hub.Broadcast(frame)
	case wire.ToServer:
		logger.Debug("redirecting to server")
		s.enqueue(ctx, frame)
	default:
		observability.RecordDrop(observability.DropBadDestination)
		errutil.LogWarn(logger, "redirect dropped",
			oops.Code(CodeUnknownDestination).
				With("destination", r.MessageDestination).
				Errorf("unknown message destination %q", r.MessageDestination))
	}
	return true
}

// greet sends every plugin's current state to a new client.
func (s *Server) greet(ctx context.Context, clientID string) {
	for _, name := range s.registry.Names() {
		p, _ := s.registry.Lookup(name)
		sp, ok := p.(plugins.StateProvider)
		if !ok {
			continue
		}
		cmd, err := sp.ClientState(ctx)
		if err != nil {
			errutil.LogWarn(s.logger, "client state unavailable", err, "plugin", name, "client", clientID)
			continue
		}
		frame, err := wire.Encode(name, cmd)
		if err != nil {
			errutil.LogWarn(s.logger, "client state unavailable", err, "plugin", name, "client", clientID)
			continue
		}
		if err := s.hub.SendTo(clientID, frame); err != nil {
			errutil.LogWarn(s.logger, "client state not sent", err, "plugin", name, "client", clientID)
		}
	}
}

func (s *Server) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	list := []*plugin.Loaded{}
	if s.lister != nil {
		list = s.lister.Plugins()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(list); err != nil {
		s.logger.Warn("plugin listing write failed", "error", err)
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
