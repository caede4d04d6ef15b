package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, 5, cfg.Emotion.TimeoutSeconds)
	assert.Equal(t, 5, cfg.Emotion.CacheTTLMinutes)
	assert.Equal(t, 60, cfg.Session.IdleMinutes)
	assert.Equal(t, 30, cfg.Session.SweepMinutes)
	assert.Equal(t, "sqlite", cfg.Session.Store)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3001, cfg.Server.Port)
}

func TestLoadParsesAndFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
emotion:
  backendUrl: "http://emotion.internal:5001"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "http://emotion.internal:5001", cfg.Emotion.BackendURL)
	// Unset fields fall back to defaults
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, 60, cfg.Session.IdleMinutes)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config:")
}

func TestLoadExpandsAPIKeyEnvVar(t *testing.T) {
	t.Setenv("TEST_PROVIDER_KEY", "sk-123")
	path := writeConfig(t, `
provider:
  apiKey: "${TEST_PROVIDER_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-123", cfg.Provider.APIKey)
}

func TestLoadLeavesUnsetEnvVarAlone(t *testing.T) {
	path := writeConfig(t, `
provider:
  apiKey: "${VOICEGATE_TEST_UNSET_VAR}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${VOICEGATE_TEST_UNSET_VAR}", cfg.Provider.APIKey)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOICEGATE_PORT", "8123")
	t.Setenv("VOICEGATE_LOG_LEVEL", "DEBUG")
	t.Setenv("VOICEGATE_EMOTION_URL", "http://other:5001")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://other:5001", cfg.Emotion.BackendURL)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 70000
	cfg.Server.Bind = "everywhere"
	cfg.Session.Store = "postgres"
	cfg.Logging.Level = "loud"

	issues := Validate(&cfg)
	paths := make([]string, 0, len(issues))
	for _, issue := range issues {
		paths = append(paths, issue.Path)
	}

	assert.Contains(t, paths, "server.port")
	assert.Contains(t, paths, "server.bind")
	assert.Contains(t, paths, "session.store")
	assert.Contains(t, paths, "logging.level")
}

func TestValidateCustomBindNeedsHost(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Bind = "custom"

	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "server.customBindHost", issues[0].Path)
}

func TestResolvePathsHonorsHomeOverride(t *testing.T) {
	base := t.TempDir()
	t.Setenv("VOICEGATE_HOME", base)

	paths, err := ResolvePaths()
	require.NoError(t, err)

	assert.Equal(t, base, paths.Base)
	assert.Equal(t, filepath.Join(base, "config.yaml"), paths.Config)
	require.NoError(t, paths.EnsureDirs())
	assert.DirExists(t, paths.Data)
	assert.DirExists(t, paths.Logs)
}
