// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Role is a profile's access role.
type Role string

// Roles stored in the user_profiles_roles enum.
const (
	RoleUser     Role = "user"
	RoleEmployee Role = "employee"
	RoleLaw      Role = "law"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleEmployee, RoleLaw, RoleAdmin:
		return true
	default:
		return false
	}
}

// Identity is the login record: unique email and username plus the
// password hash. Rows are never deleted by the credential flows.
type Identity struct {
	ID           uuid.UUID
	ProfileID    *uuid.UUID
	Email        string
	Username     string
	PasswordHash string
}

// Profile carries the role used in access claims.
type Profile struct {
	ID           uuid.UUID
	PassportID   *uuid.UUID
	LawProfileID *uuid.UUID
	AvatarID     *uuid.UUID
	Role         Role
	CreatedAt    time.Time
}

// Passport holds the personal data captured at registration.
type Passport struct {
	ID         uuid.UUID
	FirstName  string
	SecondName string
	Patronymic *string
	BirthDate  time.Time
}

// PassportFields are the inputs to CreateAccount.
type PassportFields struct {
	FirstName  string
	SecondName string
	Patronymic *string
	BirthDate  time.Time
}

// NewIdentity are the inputs to CreateIdentity.
type NewIdentity struct {
	ProfileID    uuid.UUID
	Email        string
	Username     string
	PasswordHash string
}

// Validate rejects identities that must never reach storage, in particular
// one whose password hash is not an encoded argon2id hash.
func (n NewIdentity) Validate() error {
	switch {
	case n.Email == "":
		return oops.Code("ACCOUNT_INVALID_IDENTITY").With("field", "email").Errorf("email cannot be empty")
	case n.Username == "":
		return oops.Code("ACCOUNT_INVALID_IDENTITY").With("field", "username").Errorf("username cannot be empty")
	case !strings.HasPrefix(n.PasswordHash, "$argon2id$"):
		return oops.Code("ACCOUNT_INVALID_IDENTITY").With("field", "password_hash").Errorf("password hash is not argon2id")
	case n.ProfileID == uuid.Nil:
		return oops.Code("ACCOUNT_INVALID_IDENTITY").With("field", "profile_id").Errorf("profile id cannot be empty")
	}
	return nil
}

// AccountStore persists identities, profiles and passports. Calls made with
// a context produced by Transactor.InTransaction join that transaction.
type AccountStore interface {
	// CreateAccount inserts a passport and a profile with RoleUser that
	// references it, returning the profile id.
	CreateAccount(ctx context.Context, fields PassportFields) (uuid.UUID, error)

	// CreateIdentity inserts the login record. A taken email or username
	// yields an error wrapping ErrAlreadyExists.
	CreateIdentity(ctx context.Context, identity NewIdentity) (uuid.UUID, error)

	// FindIdentityByLogin matches login against email or username.
	FindIdentityByLogin(ctx context.Context, login string) (*Identity, error)

	FindIdentityByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	FindProfileByID(ctx context.Context, id uuid.UUID) (*Profile, error)
}

// Transactor scopes a unit of work against the account store.
type Transactor interface {
	// Run calls fn against the pool with no transaction.
	Run(ctx context.Context, fn func(ctx context.Context) error) error

	// InTransaction calls fn inside a read-write transaction, committing
	// when fn returns nil and rolling back otherwise.
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
