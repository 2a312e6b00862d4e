// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package main

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/lawdesk/lawdesk/internal/auth"
	"github.com/lawdesk/lawdesk/internal/httpapi"
)

// Process exit codes per error class.
var classExitCodes = map[auth.Class]int{
	auth.ClassInternal:           1,
	auth.ClassBadRequest:         2,
	auth.ClassInvalidCredentials: 3,
	auth.ClassUnauthorized:       4,
	auth.ClassConflict:           5,
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return classExitCodes[auth.Classify(err)]
}

// NewAccountCmd creates the account subcommand, which drives the credential
// service directly against the configured stores.
func NewAccountCmd(flags *globalFlags, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Register, log in, refresh or log out from the command line",
	}
	cmd.AddCommand(
		newAccountRegisterCmd(flags, deps),
		newAccountLoginCmd(flags, deps),
		newAccountRefreshCmd(flags, deps),
		newAccountLogoutCmd(flags, deps),
	)
	return cmd
}

// passwordFlags reads a password from a flag or from the first line of stdin.
type passwordFlags struct {
	value string
	stdin bool
}

func (p *passwordFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.value, "password", "", "account password")
	cmd.Flags().BoolVar(&p.stdin, "password-stdin", false, "read the password from the first line of stdin")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

func (p *passwordFlags) read(cmd *cobra.Command) (string, error) {
	if !p.stdin {
		return p.value, nil
	}
	sc := bufio.NewScanner(cmd.InOrStdin())
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		return "", nil
	}
	return strings.TrimRight(sc.Text(), "\r"), nil
}

func newAccountRegisterCmd(flags *globalFlags, deps *Deps) *cobra.Command {
	var (
		in         auth.RegistrationInput
		patronymic string
		birthDate  string
		password   passwordFlags
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and print its first token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if birthDate != "" {
				d, err := time.Parse(time.DateOnly, birthDate)
				if err != nil {
					return oops.Code("INVALID_BIRTH_DATE").
						With("birth_date", birthDate).
						Wrapf(auth.ErrInvalidInput, "birth date must be YYYY-MM-DD")
				}
				in.BirthDate = d
			}
			if cmd.Flags().Changed("patronymic") {
				in.Patronymic = &patronymic
			}
			pw, err := password.read(cmd)
			if err != nil {
				return err
			}
			in.Password = pw

			return withCredentials(cmd, flags, deps, func(ctx context.Context, svc httpapi.Credentials) error {
				pair, err := svc.Register(ctx, in)
				if err != nil {
					return err //nolint:wrapcheck // service errors carry their own codes
				}
				return writeJSON(cmd, pair)
			})
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Username, "username", "", "username")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&in.SecondName, "second-name", "", "second name")
	cmd.Flags().StringVar(&patronymic, "patronymic", "", "patronymic (optional)")
	cmd.Flags().StringVar(&birthDate, "birth-date", "", "birth date (YYYY-MM-DD)")
	password.bind(cmd)
	return cmd
}

func newAccountLoginCmd(flags *globalFlags, deps *Deps) *cobra.Command {
	var (
		in       auth.AuthorizationInput
		password passwordFlags
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize with email or username and print a token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := password.read(cmd)
			if err != nil {
				return err
			}
			in.Password = pw

			return withCredentials(cmd, flags, deps, func(ctx context.Context, svc httpapi.Credentials) error {
				pair, err := svc.Authorize(ctx, in)
				if err != nil {
					return err //nolint:wrapcheck // service errors carry their own codes
				}
				return writeJSON(cmd, pair)
			})
		},
	}

	cmd.Flags().StringVar(&in.EmailOrUsername, "login", "", "email or username")
	password.bind(cmd)
	return cmd
}

func newAccountRefreshCmd(flags *globalFlags, deps *Deps) *cobra.Command {
	var in auth.RefreshInput

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rotate a token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCredentials(cmd, flags, deps, func(ctx context.Context, svc httpapi.Credentials) error {
				pair, err := svc.Refresh(ctx, in)
				if err != nil {
					return err //nolint:wrapcheck // service errors carry their own codes
				}
				return writeJSON(cmd, pair)
			})
		},
	}

	cmd.Flags().StringVar(&in.AccessToken, "access-token", "", "previous access token (may be expired)")
	cmd.Flags().StringVar(&in.RefreshHandle, "refresh-token", "", "refresh handle issued with the access token")
	return cmd
}

func newAccountLogoutCmd(flags *globalFlags, deps *Deps) *cobra.Command {
	var handle string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Revoke a refresh handle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCredentials(cmd, flags, deps, func(ctx context.Context, svc httpapi.Credentials) error {
				if err := svc.Logout(ctx, handle); err != nil {
					return err //nolint:wrapcheck // service errors carry their own codes
				}
				cmd.Println("Logged out")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&handle, "refresh-token", "", "refresh handle to revoke")
	return cmd
}

func withCredentials(cmd *cobra.Command, flags *globalFlags, deps *Deps, fn func(context.Context, httpapi.Credentials) error) error {
	cfg, err := loadConfig(cmd, flags, true)
	if err != nil {
		return err
	}
	logger := setupLogging(cmd, cfg.Log)

	ctx := cmd.Context()
	svc, release, err := deps.CredentialsOpener(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx, svc)
}
