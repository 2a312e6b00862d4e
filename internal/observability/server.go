// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

// Package observability serves Prometheus metrics and health probes.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// DefaultReadinessTimeout bounds one readiness probe.
const DefaultReadinessTimeout = 2 * time.Second

// ReadinessChecker returns nil when the service can take traffic.
type ReadinessChecker func(ctx context.Context) error

// Check is a named dependency probe, such as a database ping. A failing
// Optional check is reported as degraded and does not fail readiness.
type Check struct {
	Name     string
	Probe    func(ctx context.Context) error
	Optional bool
}

// AllReady combines checks. Every check runs; failures are joined and
// tagged with the check name.
func AllReady(checks ...Check) ReadinessChecker {
	return func(ctx context.Context) error {
		var errs []error
		for _, c := range checks {
			if err := c.Probe(ctx); err != nil {
				errs = append(errs, oops.
					With("check", c.Name).
					With("optional", c.Optional).
					Wrap(err))
			}
		}
		return errors.Join(errs...)
	}
}

// Server exposes /metrics, /healthz/liveness and /healthz/readiness.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	ready      ReadinessChecker
	logger     *slog.Logger
	running    atomic.Bool
}

// NewServer creates a server with its own registry, preloaded with the Go
// runtime and process collectors. addr is "host:port"; ":0" picks a port.
func NewServer(addr string, ready ReadinessChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		ready:    ready,
		logger:   logger,
	}
}

// Registerer is where application metrics should be registered.
func (s *Server) Registerer() prometheus.Registerer {
	return s.registry
}

// Handler returns the probe and metrics routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	r.Get("/healthz/liveness", s.handleLiveness)
	r.Get("/healthz/readiness", s.handleReadiness)
	return r
}

// Start listens and serves in the background. The returned channel
// receives a serve error, if any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_ALREADY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown observability server").Wrap(err)
		}
	}
	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok\n")
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		writeText(w, http.StatusOK, "ok\n")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DefaultReadinessTimeout)
	defer cancel()

	err := s.ready(ctx)
	if err == nil {
		writeText(w, http.StatusOK, "ok\n")
		return
	}

	failing, degraded, blocked := failingChecks(err)
	if blocked {
		s.logger.WarnContext(ctx, "readiness check failed",
			"failing", failing, "degraded", degraded, "error", err)
		writeText(w, http.StatusServiceUnavailable, withNames("not ready", failing))
		return
	}
	s.logger.WarnContext(ctx, "optional dependency unavailable", "degraded", degraded, "error", err)
	writeText(w, http.StatusOK, withNames("ok, degraded", degraded))
}

// failingChecks splits the check names attached by AllReady into required
// and optional failures. blocked is false only when every failure came from
// an optional check.
func failingChecks(err error) (failing, degraded []string, blocked bool) {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	for _, e := range errs {
		oopsErr, ok := oops.AsOops(e)
		if !ok {
			blocked = true
			continue
		}
		errCtx := oopsErr.Context()
		name, _ := errCtx["check"].(string)
		if optional, _ := errCtx["optional"].(bool); optional {
			degraded = append(degraded, name)
			continue
		}
		blocked = true
		if name != "" {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	sort.Strings(degraded)
	return failing, degraded, blocked
}

func withNames(prefix string, names []string) string {
	if len(names) == 0 {
		return prefix + "\n"
	}
	return prefix + ": " + strings.Join(names, ", ") + "\n"
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // probe clients may disconnect
	w.Write([]byte(body))
}
