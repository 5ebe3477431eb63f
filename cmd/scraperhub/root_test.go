package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func pluginsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "plugins")
}

func TestPluginsCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("plugins:\n  dirs: [\""+filepath.ToSlash(pluginsDir(t))+"\"]\nlogging:\n  development: false\n  level: error\n"), 0o600))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"plugins", "--config", cfgPath, "--env-file", filepath.Join(dir, "missing.env")})
	require.NoError(t, cmd.Execute())

	got := out.String()
	require.Contains(t, got, "Jumbo Lite")
	require.Contains(t, got, "jumbo-lite")
	require.Contains(t, got, "SCRAPERS")
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  port: -1\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"plugins", "--config", cfgPath})
	require.ErrorContains(t, cmd.Execute(), "server.port")
}
