// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package observability serves Prometheus metrics and health probes, and
// holds the backyardbot collectors.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker reports whether one part of the backend can serve.
type ReadinessChecker func() bool

// BackendCheck is the name NewServer gives its readiness checker.
const BackendCheck = "backend"

// Readiness is the body of /healthz/readiness.
type Readiness struct {
	Ready  bool            `json:"ready"`
	Checks map[string]bool `json:"checks"`
}

// Server exposes /metrics, /healthz/liveness and /healthz/readiness.
type Server struct {
	addr     string
	registry *prometheus.Registry
	logger   *slog.Logger

	mu     sync.RWMutex
	checks map[string]ReadinessChecker

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a server for addr ("127.0.0.1:9100", ":9100") with a
// private registry holding the Go, process and backyardbot collectors. A
// non-nil ready is registered as the "backend" check.
func NewServer(addr string, ready ReadinessChecker) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	RegisterMetrics(registry)

	s := &Server{
		addr:     addr,
		registry: registry,
		logger:   slog.Default(),
		checks:   make(map[string]ReadinessChecker),
	}
	if ready != nil {
		s.AddCheck(BackendCheck, ready)
	}
	return s
}

// SetLogger replaces the default logger. Call before Start.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// AddCheck registers a named readiness check, replacing one of the same
// name. The server is ready when every check passes.
func (s *Server) AddCheck(name string, check ReadinessChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Registry exposes the server's registry for additional collectors.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start begins serving. Errors from the HTTP server after startup arrive
// on the returned channel, which closes when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("METRICS_ALREADY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("METRICS_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET /healthz/liveness", handleLiveness)
	mux.HandleFunc("GET /healthz/readiness", s.handleReadiness)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return oops.With("operation", "shutdown_observability_server").Wrap(err)
	}
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Readiness runs every check.
func (s *Server) Readiness() Readiness {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]ReadinessChecker, len(s.checks))
	for name, c := range s.checks {
		checks[name] = c
	}
	s.mu.RUnlock()
	sort.Strings(names)

	r := Readiness{Ready: true, Checks: make(map[string]bool, len(names))}
	for _, name := range names {
		ok := checks[name]()
		r.Checks[name] = ok
		r.Ready = r.Ready && ok
	}
	return r
}

func handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// handleReadiness answers 503 while any check fails.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	r := s.Readiness()
	w.Header().Set("Content-Type", "application/json")
	if r.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(r)
}
