package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioc-platform/ioc/internal/config"
	"github.com/ioc-platform/ioc/internal/rail"
	"github.com/ioc-platform/ioc/internal/seed"
	"github.com/ioc-platform/ioc/internal/store"
)

// run executes the command tree with args against a fresh SQLite file.
func run(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("IOC_DB_DRIVER", "sqlite")
	t.Setenv("IOC_DB_DSN", dsn)

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildInfo(t *testing.T) {
	ver, sha, built, dirty := buildInfo()
	assert.Equal(t, "dev", ver)
	assert.NotEmpty(t, sha)
	assert.NotEmpty(t, built)
	assert.Contains(t, []string{"clean", "dirty"}, dirty)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewLogHandler(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newLogHandler("json", slog.LevelInfo, &buf)).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	slog.New(newLogHandler("text", slog.LevelWarn, &buf)).Info("dropped")
	assert.Empty(t, buf.String())
}

func TestSetupLogging_File(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := config.Defaults()
	cfg.LogFile = filepath.Join(t.TempDir(), "ioc.log")
	var stderr bytes.Buffer
	closer := setupLogging(cfg, &stderr)

	slog.Info("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, stderr.String(), "to both")
}

func TestRetention(t *testing.T) {
	r := retention(config.RetentionConfig{ChecksDays: 2})
	assert.Equal(t, 48*time.Hour, r.WebsiteChecks)
	assert.Equal(t, store.DefaultRetention().AlertLog, r.AlertLog)
	assert.Equal(t, store.DefaultRetention().AuditLog, r.AuditLog)
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, filepath.Join(t.TempDir(), "ioc.db"), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ioc dev")
	assert.Contains(t, out, "platform:")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "ioc.db"), "setup", "--config", "/nonexistent/ioc.yml")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfigFileNotFound)
	assert.Contains(t, err.Error(), "ioc.example.yml")
}

func TestSetupCmd(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "ioc.db")

	out, err := run(t, dsn, "setup", "--now", "2026-03-02 09:00")
	require.NoError(t, err)
	assert.Contains(t, out, "Setup complete")
	assert.Contains(t, out, "vman_hypervisors")

	// A second run leaves the same counts.
	_, err = run(t, dsn, "setup")
	require.NoError(t, err)

	st, err := store.Open(store.DriverSQLite, dsn)
	require.NoError(t, err)
	defer st.Close()
	counts, err := st.RowCounts()
	require.NoError(t, err)
	assert.Equal(t, seed.ExpectedCounts(), counts)
}

func TestSetupCmd_BadNow(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "ioc.db"), "setup", "--now", "not a date")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--now")
}

func TestMigrateCmd(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "ioc.db")

	out, err := run(t, dsn, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 0")

	out, err = run(t, dsn, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 4 (dirty: false)")

	out, err = run(t, dsn, "migrate", "down", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 2")

	_, err = run(t, dsn, "migrate", "down", "many")
	assert.Error(t, err)
}

func TestTokenCmd(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "ioc.db")

	_, err := run(t, dsn, "token", "--subject", "controller.smith")
	require.Error(t, err, "no secret configured")

	t.Setenv("IOC_RAIL_JWT_SECRET", "s3cret")
	out, err := run(t, dsn, "token", "--subject", "controller.smith", "--ttl", "1h")
	require.NoError(t, err)

	subject, err := rail.VerifyToken([]byte("s3cret"), string(bytes.TrimSpace([]byte(out))))
	require.NoError(t, err)
	assert.Equal(t, "controller.smith", subject)

	_, err = run(t, dsn, "token")
	assert.Error(t, err, "subject is required")
}
