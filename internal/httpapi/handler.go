// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/lawdesk/lawdesk/internal/auth"
	"github.com/lawdesk/lawdesk/pkg/errutil"
)

// RefreshCookie carries the refresh handle. It is scoped to the auth routes.
const (
	RefreshCookie     = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
	maxBodyBytes      = 1 << 20
	birthDateLayout   = "2006-01-02"
)

type handler struct {
	svc           Credentials
	logger        *slog.Logger
	secureCookies bool
}

type registerRequest struct {
	Email      string  `json:"email"`
	Username   string  `json:"username"`
	Password   string  `json:"password"`
	FirstName  string  `json:"first_name"`
	SecondName string  `json:"second_name"`
	Patronymic *string `json:"patronymic"`
	// BirthDate is YYYY-MM-DD.
	BirthDate string `json:"birth_date"`
}

type refreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Expires     int64  `json:"expires"`
}

type sessionResponse struct {
	IdentityID string    `json:"identity_id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	Role       auth.Role `json:"role"`
	ExpiresAt  int64     `json:"expires_at"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	birth, err := time.Parse(birthDateLayout, req.BirthDate)
	if err != nil {
		h.fail(w, r, oops.Code("AUTH_INVALID_INPUT").
			With("fields", map[string]string{"birth_date": "date"}).
			Wrap(auth.ErrInvalidInput))
		return
	}

	pair, err := h.svc.Register(r.Context(), auth.RegistrationInput{
		Email:      req.Email,
		Username:   req.Username,
		Password:   req.Password,
		FirstName:  req.FirstName,
		SecondName: req.SecondName,
		Patronymic: req.Patronymic,
		BirthDate:  birth,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.issue(w, pair)
}

func (h *handler) authorize(w http.ResponseWriter, r *http.Request) {
	var req auth.AuthorizationInput
	if !h.decode(w, r, &req) {
		return
	}
	pair, err := h.svc.Authorize(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.issue(w, pair)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair, err := h.svc.Refresh(r.Context(), auth.RefreshInput{
		AccessToken:   req.AccessToken,
		RefreshHandle: refreshHandle(r, req.RefreshToken),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.issue(w, pair)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	// A logout with no body still clears the cookie.
	if r.ContentLength > 0 && !h.decode(w, r, &req) {
		return
	}
	//nolint:errcheck // Logout never fails
	h.svc.Logout(r.Context(), refreshHandle(r, req.RefreshToken))

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: auth.ClassUnauthorized.String()})
		return
	}
	resp := sessionResponse{
		IdentityID: claims.Subject,
		Email:      claims.Email,
		Username:   claims.Username,
		Role:       claims.Role,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Unix()
	}
	writeJSON(w, http.StatusOK, resp)
}

// refreshHandle prefers the cookie over the body field.
func refreshHandle(r *http.Request, fromBody string) string {
	if c, err := r.Cookie(RefreshCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(fromBody)
}

func (h *handler) issue(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    pair.RefreshHandle,
		Path:     refreshCookiePath,
		Expires:  time.Unix(pair.RefreshExpiresAt, 0).UTC(),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: pair.AccessToken,
		Expires:     pair.AccessExpiresAt,
	})
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.fail(w, r, oops.Code("AUTH_INVALID_INPUT").With("cause", err.Error()).Wrap(auth.ErrInvalidInput))
		return false
	}
	return true
}

// fail writes the class of err. Credential failures of either kind are
// reported as invalid_data, so a client cannot tell an unknown login from
// a wrong password.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	class := auth.Classify(err)
	status, message := http.StatusInternalServerError, auth.ClassInternal.String()
	switch class {
	case auth.ClassBadRequest, auth.ClassInvalidCredentials:
		status, message = http.StatusBadRequest, auth.ClassBadRequest.String()
	case auth.ClassUnauthorized:
		status, message = http.StatusUnauthorized, class.String()
	case auth.ClassConflict:
		status, message = http.StatusConflict, class.String()
	case auth.ClassInternal:
		if !errors.Is(err, context.Canceled) {
			errutil.LogError(r.Context(), h.logger, "credential request failed", err)
		}
	}
	h.logger.DebugContext(r.Context(), "credential request rejected", "code", errutil.Code(err), "class", class.String())
	writeJSON(w, status, messageResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}
