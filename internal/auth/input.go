// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package auth

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// RegistrationInput is a self-registration request.
type RegistrationInput struct {
	Email      string    `json:"email" validate:"required,email,max=255"`
	Username   string    `json:"username" validate:"required,min=3,max=255"`
	Password   string    `json:"password" validate:"required,min=8,max=32"`
	FirstName  string    `json:"first_name" validate:"required,max=255"`
	SecondName string    `json:"second_name" validate:"required,max=255"`
	Patronymic *string   `json:"patronymic,omitempty" validate:"omitempty,max=255"`
	BirthDate  time.Time `json:"birth_date" validate:"required,notfuture"`
}

// Validate checks field constraints.
func (in RegistrationInput) Validate() error { return validateInput(in) }

func (in RegistrationInput) passportFields() PassportFields {
	return PassportFields{
		FirstName:  in.FirstName,
		SecondName: in.SecondName,
		Patronymic: in.Patronymic,
		BirthDate:  in.BirthDate,
	}
}

// AuthorizationInput is a login request. EmailOrUsername matches either
// unique login column.
type AuthorizationInput struct {
	EmailOrUsername string `json:"email_or_username" validate:"required,min=3,max=255"`
	Password        string `json:"password" validate:"required,min=1,max=32"`
}

// Validate checks field constraints.
func (in AuthorizationInput) Validate() error { return validateInput(in) }

// RefreshInput carries the previous access token (possibly expired) and the
// refresh handle issued with it.
type RefreshInput struct {
	AccessToken   string `json:"access_token" validate:"required"`
	RefreshHandle string `json:"refresh_token" validate:"required"`
}

// Validate checks field constraints.
func (in RefreshInput) Validate() error { return validateInput(in) }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notfuture", notFuture); err != nil {
		panic(err)
	}
	return v
}

func notFuture(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	return !t.After(time.Now())
}

func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return oops.Code("AUTH_INVALID_INPUT").With("cause", err.Error()).Wrap(ErrInvalidInput)
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fe.Tag()
	}
	return oops.Code("AUTH_INVALID_INPUT").
		With("fields", fields).
		Wrap(ErrInvalidInput)
}
