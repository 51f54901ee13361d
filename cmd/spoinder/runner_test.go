package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"

	"github.com/justestif/spoinder/internal/apperrors"
	"github.com/justestif/spoinder/internal/config"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := newApp(newRunner(&out, &errOut)).Run(context.Background(), append([]string{"spoinder"}, args...))
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spoinder.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigCommandPrecedence(t *testing.T) {
	path := writeConfig(t, `
client_id = "file-id"
client_secret = "file-secret"
log_level = "warn"
upstream_rps = 4
upstream_timeout = "3s"
`)
	t.Setenv("SPOTIFY_ID", "env-id")
	t.Setenv("SPOTIFY_SECRET", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LISTEN_ADDR", "")

	out, err := runApp(t, "--config", path, "--rps", "2", "config")
	require.NoError(t, err)

	var got config.Config
	_, err = toml.Decode(out, &got)
	require.NoError(t, err)

	require.Equal(t, "env-id", got.ClientID)
	require.Equal(t, "***", got.ClientSecret)
	require.Equal(t, "warn", got.LogLevel)
	require.Equal(t, 2, got.UpstreamRPS)
	require.Equal(t, 3*time.Second, got.UpstreamTimeout.Duration)
	require.Equal(t, config.DefaultAddr, got.Addr)
}

func TestConfigCommandMissingFile(t *testing.T) {
	out, err := runApp(t, "--config", filepath.Join(t.TempDir(), "absent.toml"), "config")
	require.NoError(t, err)
	require.Contains(t, out, config.DefaultPlaylistPrefix)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runApp(t, "--log-level", "loud", "config")
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestShuffleRequiresPlaylistIDs(t *testing.T) {
	path := writeConfig(t, `client_id = "id"
client_secret = "secret"
`)
	_, err := runApp(t, "--config", path, "shuffle")
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestServeRequiresCredentials(t *testing.T) {
	t.Setenv("SPOTIFY_ID", "")
	t.Setenv("SPOTIFY_SECRET", "")
	_, err := runApp(t, "--config", filepath.Join(t.TempDir(), "absent.toml"), "serve")
	require.ErrorIs(t, err, config.ErrMissingCredentials)
}
