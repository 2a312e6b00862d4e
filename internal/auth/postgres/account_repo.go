// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/lawdesk/lawdesk/internal/auth"
)

// AccountRepository implements auth.AccountStore using PostgreSQL.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// CreateAccount inserts the passport, then a user profile referencing it.
// Call it inside Transactor.InTransaction so a profile failure also discards
// the passport.
func (r *AccountRepository) CreateAccount(ctx context.Context, fields auth.PassportFields) (uuid.UUID, error) {
	q := querierFrom(ctx, r.db)

	var passportID uuid.UUID
	err := q.QueryRow(ctx, `
		INSERT INTO passports (first_name, second_name, patronymic, birthday_date)
		VALUES ($1, $2, $3, $4)
		RETURNING uid
	`, fields.FirstName, fields.SecondName, fields.Patronymic, fields.BirthDate).Scan(&passportID)
	if err != nil {
		return uuid.Nil, oops.Code("ACCOUNT_PASSPORT_CREATE_FAILED").
			With("operation", "insert passport").
			With("cause", err.Error()).
			Wrap(auth.ErrPassportCreation)
	}

	var profileID uuid.UUID
	err = q.QueryRow(ctx, `
		INSERT INTO user_profiles (passport_uid, role)
		VALUES ($1, $2::text::user_profiles_roles)
		RETURNING uid
	`, passportID, string(auth.RoleUser)).Scan(&profileID)
	if err != nil {
		return uuid.Nil, oops.Code("ACCOUNT_PROFILE_CREATE_FAILED").
			With("operation", "insert user profile").
			With("passport_id", passportID.String()).
			With("cause", err.Error()).
			Wrap(auth.ErrProfileCreation)
	}

	return profileID, nil
}

// CreateIdentity inserts the login record.
func (r *AccountRepository) CreateIdentity(ctx context.Context, identity auth.NewIdentity) (uuid.UUID, error) {
	if err := identity.Validate(); err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err := querierFrom(ctx, r.db).QueryRow(ctx, `
		INSERT INTO auth_data (profile_uid, email, username, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING uid
	`, identity.ProfileID, identity.Email, identity.Username, identity.PasswordHash).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return uuid.Nil, oops.Code("ACCOUNT_IDENTITY_EXISTS").
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrAlreadyExists)
		}
		return uuid.Nil, oops.Code("ACCOUNT_IDENTITY_CREATE_FAILED").
			With("operation", "insert auth_data").
			With("username", identity.Username).
			Wrap(err)
	}
	return id, nil
}

const selectIdentity = `
	SELECT uid, profile_uid, email, username, password_hash
	FROM auth_data
`

// FindIdentityByLogin matches login against email or username. An email
// match wins over a username match.
func (r *AccountRepository) FindIdentityByLogin(ctx context.Context, login string) (*auth.Identity, error) {
	row := querierFrom(ctx, r.db).QueryRow(ctx, selectIdentity+`
		WHERE email = $1 OR username = $1
		ORDER BY email = $1 DESC
		LIMIT 1
	`, login)

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_FIND_FAILED").
			With("operation", "find identity by login").
			Wrap(err)
	}
	return identity, nil
}

// FindIdentityByID retrieves an identity by its id.
func (r *AccountRepository) FindIdentityByID(ctx context.Context, id uuid.UUID) (*auth.Identity, error) {
	row := querierFrom(ctx, r.db).QueryRow(ctx, selectIdentity+`
		WHERE uid = $1
	`, id)

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_FIND_FAILED").
			With("operation", "find identity by id").
			With("id", id.String()).
			Wrap(err)
	}
	return identity, nil
}

// FindProfileByID retrieves a profile by its id.
func (r *AccountRepository) FindProfileByID(ctx context.Context, id uuid.UUID) (*auth.Profile, error) {
	var (
		p    auth.Profile
		role string
	)
	err := querierFrom(ctx, r.db).QueryRow(ctx, `
		SELECT uid, passport_uid, law_profile, avatar_uid, role::text, created_at
		FROM user_profiles
		WHERE uid = $1
	`, id).Scan(&p.ID, &p.PassportID, &p.LawProfileID, &p.AvatarID, &role, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PROFILE_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PROFILE_FIND_FAILED").
			With("operation", "find profile by id").
			With("id", id.String()).
			Wrap(err)
	}
	p.Role = auth.Role(role)
	return &p, nil
}

func scanIdentity(row pgx.Row) (*auth.Identity, error) {
	var i auth.Identity
	if err := row.Scan(&i.ID, &i.ProfileID, &i.Email, &i.Username, &i.PasswordHash); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	return &i, nil
}
