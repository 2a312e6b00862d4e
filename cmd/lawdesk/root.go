// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lawdesk/lawdesk/internal/config"
	"github.com/lawdesk/lawdesk/internal/logging"
)

const serviceName = "lawdesk"

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
}

// NewRootCmd creates the root command for the lawdesk CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmdWithDeps(nil)
}

func newRootCmdWithDeps(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Lawdesk credential service",
		Long: `Lawdesk issues and rotates session credentials: registration,
login, token refresh and logout backed by PostgreSQL and Redis.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file merged into the environment (missing is ignored)")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(flags))
	cmd.AddCommand(NewMigrateCmd(flags, deps))
	cmd.AddCommand(NewAccountCmd(flags, deps))

	return cmd
}

// loadConfig reads every configuration source for cmd. Without --config the
// file under the user config directory is used when present. When validate
// is false only loading errors are reported.
func loadConfig(cmd *cobra.Command, flags *globalFlags, validate bool) (*config.Config, error) {
	file := flags.configFile
	if file == "" {
		file = config.DefaultFile()
	}
	cfg, err := config.Load(config.LoadOptions{
		File:    file,
		EnvFile: flags.envFile,
		Flags:   cmd.Flags(),
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // config errors carry their own codes
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err //nolint:wrapcheck // config errors carry their own codes
		}
	}
	return cfg, nil
}

// setupLogging installs the configured logger as the slog default.
func setupLogging(cmd *cobra.Command, cfg config.LogConfig) *slog.Logger {
	return logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Format,
		Level:   cfg.Level,
		Writer:  cmd.ErrOrStderr(),
	})
}
