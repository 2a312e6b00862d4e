// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/lawdesk/lawdesk/pkg/errutil"
)

// Registry retry defaults.
const (
	DefaultRegistryAttempts = 3
	DefaultRegistryBackoff  = 50 * time.Millisecond
)

// RetryPolicy bounds best-effort session registry writes.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts uint64
	Backoff  time.Duration
}

// TokenPair is returned by every successful issuing operation.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshHandle    string `json:"refresh_token"`
	AccessExpiresAt  int64  `json:"access_expires_at"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
}

// Deps are the collaborators of a CredentialService. Logger, Clock, Metrics
// and RegistryRetry are optional.
type Deps struct {
	Accounts      AccountStore
	Tx            Transactor
	Sessions      SessionRegistry
	Hasher        PasswordHasher
	Tokens        *TokenCodec
	Logger        *slog.Logger
	Clock         func() time.Time
	Metrics       *Metrics
	RegistryRetry RetryPolicy
}

// CredentialService implements registration, authorization, refresh and
// logout on top of the account store and the session registry.
type CredentialService struct {
	accounts  AccountStore
	tx        Transactor
	sessions  SessionRegistry
	hasher    PasswordHasher
	tokens    *TokenCodec
	logger    *slog.Logger
	clock     func() time.Time
	metrics   *Metrics
	retry     RetryPolicy
	dummyHash string
}

// NewCredentialService validates deps and returns a service.
func NewCredentialService(deps Deps) (*CredentialService, error) {
	switch {
	case deps.Accounts == nil:
		return nil, missingDep("accounts")
	case deps.Tx == nil:
		return nil, missingDep("tx")
	case deps.Sessions == nil:
		return nil, missingDep("sessions")
	case deps.Hasher == nil:
		return nil, missingDep("hasher")
	case deps.Tokens == nil:
		return nil, missingDep("tokens")
	}

	// Unknown logins are verified against a hash produced with the live
	// parameters so both paths cost the same.
	dummy, err := deps.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, oops.Code("AUTH_SERVICE_MISCONFIGURED").
			With("operation", "derive dummy hash").
			Wrap(err)
	}

	s := &CredentialService{
		accounts:  deps.Accounts,
		tx:        deps.Tx,
		sessions:  deps.Sessions,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		logger:    deps.Logger,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		retry:     deps.RegistryRetry,
		dummyHash: dummy,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.retry.Attempts == 0 {
		s.retry.Attempts = DefaultRegistryAttempts
	}
	if s.retry.Backoff <= 0 {
		s.retry.Backoff = DefaultRegistryBackoff
	}
	return s, nil
}

func missingDep(name string) error {
	return oops.Code("AUTH_SERVICE_MISCONFIGURED").
		With("dependency", name).
		Errorf("credential service requires %s", name)
}

// Register creates passport, profile and identity in one transaction and
// issues the first token pair. The password is hashed before any write.
func (s *CredentialService) Register(ctx context.Context, in RegistrationInput) (pair TokenPair, err error) {
	ctx, endSpan := startSpan(ctx, OpRegister)
	defer func(start time.Time) {
		s.metrics.observe(OpRegister, start, err)
		endSpan(err)
	}(time.Now())

	if err := in.Validate(); err != nil {
		return TokenPair{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		err = oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
		errutil.LogError(ctx, s.logger, "password hashing failed", err)
		return TokenPair{}, err
	}

	now := s.clock()
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		profileID, err := s.accounts.CreateAccount(ctx, in.passportFields())
		if err != nil {
			return err
		}
		identityID, err := s.accounts.CreateIdentity(ctx, NewIdentity{
			ProfileID:    profileID,
			Email:        in.Email,
			Username:     in.Username,
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}
		pair, err = s.issuePair(AccessClaims{
			Email:    in.Email,
			Username: in.Username,
			Role:     RoleUser,
		}, identityID, now)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyExists):
			return TokenPair{}, oops.Code("AUTH_ALREADY_EXISTS").
				With("operation", "register").
				Wrap(ErrAlreadyExists)
		case errors.Is(err, ErrPassportCreation), errors.Is(err, ErrProfileCreation):
			err = oops.With("operation", "register").Wrap(err)
		default:
			err = oops.Code("AUTH_REGISTER_FAILED").With("operation", "register").Wrap(err)
		}
		errutil.LogError(ctx, s.logger, "registration failed", err)
		return TokenPair{}, err
	}

	s.putSession(ctx, pair)
	s.logger.DebugContext(ctx, "account registered", "username", in.Username)
	return pair, nil
}

// Authorize checks a login and password and issues a token pair. The
// password is verified even when the login is unknown.
func (s *CredentialService) Authorize(ctx context.Context, in AuthorizationInput) (pair TokenPair, err error) {
	ctx, endSpan := startSpan(ctx, OpAuthorize)
	defer func(start time.Time) {
		s.metrics.observe(OpAuthorize, start, err)
		endSpan(err)
	}(time.Now())

	if err := in.Validate(); err != nil {
		return TokenPair{}, err
	}

	var identity *Identity
	lookupErr := s.tx.Run(ctx, func(ctx context.Context) error {
		var err error
		identity, err = s.accounts.FindIdentityByLogin(ctx, in.EmailOrUsername)
		return err
	})
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		err = oops.Code("AUTH_AUTHORIZE_FAILED").With("operation", "find identity").Wrap(lookupErr)
		errutil.LogError(ctx, s.logger, "authorization lookup failed", err)
		return TokenPair{}, err
	}

	target := s.dummyHash
	if identity != nil {
		target = identity.PasswordHash
	}
	valid, verifyErr := s.hasher.Verify(in.Password, target)

	if identity == nil {
		return TokenPair{}, oops.Code("AUTH_USER_NOT_FOUND").Wrap(ErrUserNotFound)
	}
	if verifyErr != nil {
		err = oops.Code("AUTH_AUTHORIZE_FAILED").
			With("operation", "verify password").
			With("identity_id", identity.ID.String()).
			Wrap(verifyErr)
		errutil.LogError(ctx, s.logger, "stored password hash unusable", err)
		return TokenPair{}, err
	}
	if !valid {
		return TokenPair{}, oops.Code("AUTH_INVALID_PASSWORD").Wrap(ErrInvalidPassword)
	}

	role, err := s.roleFor(ctx, identity)
	if err != nil {
		return TokenPair{}, oops.Code("AUTH_AUTHORIZE_FAILED").With("operation", "load profile").Wrap(err)
	}

	pair, err = s.issuePair(AccessClaims{
		Email:    identity.Email,
		Username: identity.Username,
		Role:     role,
	}, identity.ID, s.clock())
	if err != nil {
		return TokenPair{}, oops.With("operation", "authorize").Wrap(err)
	}

	s.putSession(ctx, pair)
	return pair, nil
}

// Refresh exchanges an access token (expired or not) and its live refresh
// handle for a new pair. The old handle is revoked. Registry failures reject
// the call.
func (s *CredentialService) Refresh(ctx context.Context, in RefreshInput) (pair TokenPair, err error) {
	ctx, endSpan := startSpan(ctx, OpRefresh)
	defer func(start time.Time) {
		s.metrics.observe(OpRefresh, start, err)
		endSpan(err)
	}(time.Now())

	if err := in.Validate(); err != nil {
		return TokenPair{}, err
	}

	claims, err := s.tokens.DecodeAccess(in.AccessToken, DecodeLenient)
	if err != nil {
		return TokenPair{}, oops.With("operation", "refresh").Wrap(err)
	}
	identityID, err := claims.IdentityID()
	if err != nil {
		return TokenPair{}, err
	}

	stored, found, err := s.sessions.Get(ctx, in.RefreshHandle)
	if err != nil {
		s.metrics.registryFailure("get")
		err = oops.Code("AUTH_REFRESH_FAILED").With("operation", "lookup refresh handle").Wrap(err)
		errutil.LogError(ctx, s.logger, "refresh rejected: session registry unavailable", err)
		return TokenPair{}, err
	}
	if !found {
		return TokenPair{}, oops.Code("AUTH_REFRESH_NOT_FOUND").
			With("handle", handleTag(in.RefreshHandle)).
			Wrap(ErrRefreshNotFound)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(Fingerprint(in.AccessToken))) != 1 {
		return TokenPair{}, oops.Code("AUTH_INVALID_TOKEN").
			With("reason", "refresh handle bound to another access token").
			Wrap(ErrInvalidToken)
	}

	var identity *Identity
	err = s.tx.Run(ctx, func(ctx context.Context) error {
		var err error
		identity, err = s.accounts.FindIdentityByID(ctx, identityID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return TokenPair{}, oops.Code("AUTH_INVALID_TOKEN").
			With("reason", "identity no longer exists").
			Wrap(ErrInvalidToken)
	}
	if err != nil {
		return TokenPair{}, oops.Code("AUTH_REFRESH_FAILED").With("operation", "find identity").Wrap(err)
	}

	role, err := s.roleFor(ctx, identity)
	if err != nil {
		return TokenPair{}, oops.Code("AUTH_REFRESH_FAILED").With("operation", "load profile").Wrap(err)
	}

	pair, err = s.issuePair(AccessClaims{
		Email:    identity.Email,
		Username: identity.Username,
		Role:     role,
	}, identity.ID, s.clock())
	if err != nil {
		return TokenPair{}, oops.With("operation", "refresh").Wrap(err)
	}

	s.putSession(ctx, pair)
	s.deleteSession(ctx, in.RefreshHandle)
	return pair, nil
}

// Logout revokes a refresh handle. It always succeeds: an unknown handle
// has nothing to revoke and registry failures are logged.
func (s *CredentialService) Logout(ctx context.Context, handle string) (err error) {
	ctx, endSpan := startSpan(ctx, OpLogout)
	defer func(start time.Time) {
		s.metrics.observe(OpLogout, start, err)
		endSpan(err)
	}(time.Now())

	if handle == "" {
		return nil
	}
	s.deleteSession(ctx, handle)
	return nil
}

// Authenticate verifies an access token for a request. Expired tokens are
// rejected with ErrTokenExpired.
func (s *CredentialService) Authenticate(_ context.Context, accessToken string) (*AccessClaims, error) {
	claims, err := s.tokens.DecodeAccess(accessToken, DecodeStrict)
	if err != nil {
		return nil, oops.With("operation", "authenticate").Wrap(err)
	}
	return claims, nil
}

// Ping reports whether the session registry is reachable.
func (s *CredentialService) Ping(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

func (s *CredentialService) issuePair(claims AccessClaims, identityID uuid.UUID, now time.Time) (TokenPair, error) {
	claims.Subject = identityID.String()
	access, accessExp, err := s.tokens.IssueAccess(claims, now)
	if err != nil {
		return TokenPair{}, err
	}
	handle, refreshExp := s.tokens.NewRefreshHandle(now)
	return TokenPair{
		AccessToken:      access,
		RefreshHandle:    handle,
		AccessExpiresAt:  accessExp.Unix(),
		RefreshExpiresAt: refreshExp.Unix(),
	}, nil
}

// roleFor resolves the role claim. An identity without a profile is a
// plain user.
func (s *CredentialService) roleFor(ctx context.Context, identity *Identity) (Role, error) {
	if identity.ProfileID == nil {
		return RoleUser, nil
	}
	var profile *Profile
	err := s.tx.Run(ctx, func(ctx context.Context) error {
		var err error
		profile, err = s.accounts.FindProfileByID(ctx, *identity.ProfileID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return RoleUser, nil
	}
	if err != nil {
		return "", err
	}
	return profile.Role, nil
}

func (s *CredentialService) putSession(ctx context.Context, pair TokenPair) {
	fingerprint := Fingerprint(pair.AccessToken)
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.sessions.Put(ctx, pair.RefreshHandle, fingerprint, s.tokens.RefreshTTL())
	})
	if err != nil {
		s.metrics.registryFailure("put")
		errutil.LogWarn(ctx, s.logger, "session registry put failed, refresh handle will not resolve", err,
			"handle", handleTag(pair.RefreshHandle))
	}
}

func (s *CredentialService) deleteSession(ctx context.Context, handle string) {
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.sessions.Delete(ctx, handle)
	})
	if err != nil {
		s.metrics.registryFailure("delete")
		errutil.LogWarn(ctx, s.logger, "session registry delete failed, handle stays live until expiry", err,
			"handle", handleTag(handle))
	}
}

func (s *CredentialService) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(s.retry.Attempts-1, retry.NewConstant(s.retry.Backoff))
	//nolint:wrapcheck // callers log the registry error as-is
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
