package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	body := `
remote_storage_key = "YWJjZGVmZ2hpamtsbW5vcHFyc3R1dnd4eXowMTIzNDU="

[[service]]
address = "0.0.0.0"
port = 8443
opaque_server_key = "/etc/warden/opaque.key"

[database]
postgres_uri = "postgres://localhost/warden"
`
	path := writeTempConfig(t, body)

	cfg, err := Load(LoaderOptions{Path: path, SkipEnvSubstitution: true})
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.SessionCache.SessionTTL)
	assert.EqualValues(t, 1<<20, cfg.MaxBlobSize)
	assert.Equal(t, BackendPostgres, cfg.Database.Backend())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsMissingService(t *testing.T) {
	path := writeTempConfig(t, `remote_storage_key = "x"`+"\n[database]\npostgres_uri = \"postgres://x\"\n")

	_, err := Load(LoaderOptions{Path: path, SkipEnvSubstitution: true})
	require.Error(t, err)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("WARDEN_TEST_VAR", "resolved")

	assert.Equal(t, "resolved", SubstituteEnvVars("${WARDEN_TEST_VAR}"))
	assert.Equal(t, "fallback", SubstituteEnvVars("${WARDEN_TEST_MISSING:fallback}"))
}
