// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/lawdesk/lawdesk/internal/auth"
)

type claimsKey struct{}

// ClaimsFromContext returns the claims stored by the auth middleware.
func ClaimsFromContext(ctx context.Context) (*auth.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.AccessClaims)
	return claims, ok
}

// requireAuth verifies a "Bearer" access token strictly; expired tokens
// are rejected.
func (h *handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			writeJSON(w, http.StatusUnauthorized, messageResponse{Message: auth.ClassUnauthorized.String()})
			return
		}

		claims, err := h.svc.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}
