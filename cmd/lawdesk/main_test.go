// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs args against a root command built with deps and returns
// stdout and the error.
func execute(t *testing.T, deps *Deps, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cmd := newRootCmdWithDeps(deps)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	out, err := execute(t, nil, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"serve", "migrate", "account"} {
		assert.Contains(t, out, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{
		"config", "env-file", "database-url", "redis-addr",
		"http-addr", "metrics-addr", "log-format", "log-level",
	} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing --%s", name)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFlag string
	}{
		{"separate value", []string{"--config", "/path/to/config.yaml", "--help"}, "/path/to/config.yaml"},
		{"equals", []string{"--config=/etc/lawdesk.yaml", "--help"}, "/etc/lawdesk.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			got, err := cmd.PersistentFlags().GetString("config")
			require.NoError(t, err)
			assert.Equal(t, tt.wantFlag, got)
		})
	}
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestRootCommand_NoArgs(t *testing.T) {
	_, err := execute(t, nil)
	require.NoError(t, err)
}

func TestUnknownCommand(t *testing.T) {
	_, err := execute(t, nil, "nonexistent")
	require.Error(t, err)
}

func TestLoadConfig_MissingConfigFile(t *testing.T) {
	_, err := execute(t, nil, "--config", "/nonexistent/lawdesk.yaml", "migrate", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file")
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	t.Setenv("LAWDESK_DATABASE__URL", "")
	t.Setenv("LAWDESK_REDIS__ADDR", "")

	_, err := execute(t, nil, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url is required")
	assert.Equal(t, 1, exitCode(err))
}

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		commit   string
		date     string
		expected string
	}{
		{"default values", "dev", "unknown", "unknown", "dev (commit: unknown, built: unknown)"},
		{"release version", "1.0.0", "abc123", "2026-01-15", "1.0.0 (commit: abc123, built: 2026-01-15)"},
		{"empty values", "", "", "", " (commit: , built: )"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatVersion(tt.version, tt.commit, tt.date))
		})
	}
}

func TestRun(t *testing.T) {
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })

	os.Args = []string{"lawdesk", "--help"}
	assert.Equal(t, 0, run())

	os.Args = []string{"lawdesk", "nonexistent-command"}
	assert.Equal(t, 1, run())
}

func TestCommands_HaveShortDescriptions(t *testing.T) {
	var visit func(c *cobra.Command)
	visit = func(c *cobra.Command) {
		assert.NotEmpty(t, c.Short, "%s has no short description", c.CommandPath())
		for _, sub := range c.Commands() {
			visit(sub)
		}
	}
	root := NewRootCmd()
	assert.True(t, root.SilenceUsage)
	visit(root)
}
