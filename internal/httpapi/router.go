// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

// Package httpapi exposes the credential service over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lawdesk/lawdesk/internal/auth"
)

// Credentials is the part of auth.CredentialService the API drives.
type Credentials interface {
	Register(ctx context.Context, in auth.RegistrationInput) (auth.TokenPair, error)
	Authorize(ctx context.Context, in auth.AuthorizationInput) (auth.TokenPair, error)
	Refresh(ctx context.Context, in auth.RefreshInput) (auth.TokenPair, error)
	Logout(ctx context.Context, handle string) error
	Authenticate(ctx context.Context, accessToken string) (*auth.AccessClaims, error)
}

// Options configures the API.
type Options struct {
	Logger *slog.Logger
	// SecureCookies sets the Secure attribute on the refresh cookie.
	SecureCookies bool
	// RequestTimeout bounds each request. Zero means no timeout.
	RequestTimeout time.Duration
}

// NewRouter mounts the credential routes under /api/v1/auth.
func NewRouter(svc Credentials, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, logger: logger, secureCookies: opts.SecureCookies}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/", h.authorize)
		r.Post("/register", h.register)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.With(h.requireAuth).Get("/session", h.session)
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", time.Since(started).Milliseconds(),
			}
			switch {
			case status >= 500:
				logger.ErrorContext(r.Context(), "request", attrs...)
			case status >= 400:
				logger.WarnContext(r.Context(), "request", attrs...)
			default:
				logger.DebugContext(r.Context(), "request", attrs...)
			}
		})
	}
}
