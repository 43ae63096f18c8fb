package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avtomon/wsChat/internal/auth"
	"github.com/avtomon/wsChat/internal/config"
	"github.com/avtomon/wsChat/pkg/protocol"
)

const testConfig = `{
	"server": {"addr": ":0"},
	"auth": {"jwt_secret": "cmd-test-secret-0123456789abcdef0123", "admin_role": "ops"},
	"session": {"backend": "memory"},
	"storage": {"driver": "sqlite", "dsn": "postgres://chat:hunter2@db/chat"}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wschat.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "wschat test\n", out)
}

func TestResolveConfigPath(t *testing.T) {
	t.Chdir(t.TempDir())

	root := NewRootCmd("test")
	assert.Equal(t, "", resolveConfigPath(root, nil, defaultConfigPath), "no file, no flag")

	require.NoError(t, os.WriteFile(defaultConfigPath, []byte("{}"), 0600))
	assert.Equal(t, defaultConfigPath, resolveConfigPath(root, nil, defaultConfigPath))

	require.NoError(t, root.PersistentFlags().Set("config", "other.json"))
	assert.Equal(t, "other.json", resolveConfigPath(root, nil, defaultConfigPath))

	assert.Equal(t, "arg.json", resolveConfigPath(root, []string{"arg.json"}, defaultConfigPath))
}

func TestInitDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")

	out, err := execute(t, "init", "--defaults", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Auth.JWTSecret, 64)
	assert.Equal(t, "redis", cfg.Session.Backend)

	_, err = execute(t, "init", "--defaults", "-o", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "init", "--defaults", "--force", "-o", path)
	require.NoError(t, err)
}

func TestTokenCmd(t *testing.T) {
	path := writeConfig(t, testConfig)

	out, err := execute(t, "token", "-c", path, "--subject", "alice", "--ttl", "10m")
	require.NoError(t, err)

	var resp protocol.TokenResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Token)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), resp.ExpiresAt, time.Minute)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	id, err := auth.NewService(cfg.Auth).ValidateToken(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Subject)
	assert.Equal(t, "ops", id.Role, "role defaults to auth.admin_role")
}

func TestIssueTokenNeedsBuiltinProvider(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{Provider: "jwks", JWKSURL: "https://id.example.com/jwks"}}
	_, err := issueToken(cfg, "x", "admin", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwks")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	path := writeConfig(t, testConfig)

	out, err := execute(t, "config", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Config: "+path)
	assert.NotContains(t, out, "cmd-test-secret-0123456789abcdef0123")
	assert.Contains(t, out, "cmd-****0123")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "@db/chat")
}

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "wschat.db", maskURL("wschat.db"))
	assert.Equal(t, "redis://cache:6379/0", maskURL("redis://cache:6379/0"))
	assert.True(t, strings.HasPrefix(maskURL("redis://:pw@cache:6379"), "redis://:"))
	assert.NotContains(t, maskURL("redis://:pw@cache:6379"), "pw@")
}

func TestBaseURLFromAddr(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", baseURLFromAddr(":8080", false))
	assert.Equal(t, "http://localhost:9000", baseURLFromAddr("0.0.0.0:9000", false))
	assert.Equal(t, "https://chat.example.com:443", baseURLFromAddr("chat.example.com:443", true))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])

	buf.Reset()
	newLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf).Debug("dbg")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
}
