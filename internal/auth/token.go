// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// DecodeMode selects how strictly DecodeAccess treats time-based claims.
type DecodeMode int

const (
	// DecodeStrict rejects expired tokens. Used to authenticate requests.
	DecodeStrict DecodeMode = iota
	// DecodeLenient checks signature and algorithm only. Used by refresh,
	// which must accept an access token that has already expired.
	DecodeLenient
)

// AccessClaims is the payload of a signed access token. The subject is the
// identity id.
type AccessClaims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// IdentityID parses the subject claim.
func (c *AccessClaims) IdentityID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, oops.Code("AUTH_INVALID_TOKEN").
			With("claim", "sub").
			Wrap(ErrInvalidToken)
	}
	return id, nil
}

// TokenConfig configures a TokenCodec.
type TokenConfig struct {
	AccessSecret []byte
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	// Now is used when validating expiry. Defaults to time.Now.
	Now func() time.Time
}

// TokenCodec issues and decodes HS256 access tokens and mints opaque
// refresh handles.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenCodec validates cfg and returns a codec.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, oops.Code("AUTH_TOKEN_CONFIG_INVALID").Errorf("access secret must not be empty")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, oops.Code("AUTH_TOKEN_CONFIG_INVALID").
			With("access_ttl", cfg.AccessTTL.String()).
			With("refresh_ttl", cfg.RefreshTTL.String()).
			Errorf("token lifetimes must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{
		secret:     append([]byte(nil), cfg.AccessSecret...),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
	}, nil
}

// AccessTTL returns the access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the refresh handle lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess signs claims. Issued-at, expiry and token id are set by the
// codec and override whatever the caller put there.
func (c *TokenCodec) IssueAccess(claims AccessClaims, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(c.accessTTL)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	claims.ID = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_SIGN_FAILED").
			With("subject", claims.Subject).
			Wrap(err)
	}
	return signed, expiresAt, nil
}

// NewRefreshHandle mints a random opaque handle. It carries no signature;
// its lifetime is enforced by the session registry.
func (c *TokenCodec) NewRefreshHandle(now time.Time) (string, time.Time) {
	return uuid.NewString(), now.Add(c.refreshTTL)
}

// DecodeAccess verifies the signature of token and returns its claims.
func (c *TokenCodec) DecodeAccess(token string, mode DecodeMode) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	}
	if mode == DecodeLenient {
		opts = append(opts, jwt.WithoutClaimsValidation())
	} else {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("AUTH_TOKEN_EXPIRED").Wrap(ErrTokenExpired)
		}
		return nil, oops.Code("AUTH_INVALID_TOKEN").
			With("cause", err.Error()).
			Wrap(ErrInvalidToken)
	}
	if !parsed.Valid {
		return nil, oops.Code("AUTH_INVALID_TOKEN").Wrap(ErrInvalidToken)
	}
	return claims, nil
}

// Fingerprint returns the hex SHA-256 of token. The registry stores the
// fingerprint of the access token issued alongside a refresh handle.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
