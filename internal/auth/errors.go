// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Store-level sentinels. Repository implementations wrap these so callers
// can branch with errors.Is regardless of the backend.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a unique email or username is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrPassportCreation marks a failed passport insert.
	ErrPassportCreation = errors.New("passport creation failed")

	// ErrProfileCreation marks a failed profile insert.
	ErrProfileCreation = errors.New("profile creation failed")

	// ErrRegistryUnavailable marks a session registry that could not be reached.
	ErrRegistryUnavailable = errors.New("session registry unavailable")
)

// Protocol-level sentinels returned by CredentialService.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrRefreshNotFound = errors.New("refresh token not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrHashingFault    = errors.New("password hashing fault")
)

// Class is the externally visible category of a credential failure.
// Transports map classes to status codes; they never see the finer sentinel.
type Class int

// Error classes, ordered roughly by HTTP status.
const (
	ClassInternal Class = iota
	ClassBadRequest
	ClassInvalidCredentials
	ClassUnauthorized
	ClassConflict
)

// String returns the stable message a transport should send for the class.
func (c Class) String() string {
	switch c {
	case ClassBadRequest:
		return "invalid_data"
	case ClassInvalidCredentials:
		return "invalid_credentials"
	case ClassUnauthorized:
		return "unauthorized"
	case ClassConflict:
		return "already_exists"
	default:
		return "internal_error"
	}
}

// Classify narrows err to its external class. UserNotFound and
// InvalidPassword share a class so a caller cannot enumerate accounts.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrAlreadyExists):
		return ClassConflict
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrInvalidPassword):
		return ClassInvalidCredentials
	case errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrRefreshNotFound):
		return ClassUnauthorized
	case errors.Is(err, ErrInvalidInput):
		return ClassBadRequest
	default:
		return ClassInternal
	}
}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")
