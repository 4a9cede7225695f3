package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type portalConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type testConfig struct {
	Port   int          `json:"port"`
	Portal portalConfig `json:"portal"`
}

func TestReadConfigMergesLocalOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "config.json5"),
		[]byte(`{port: 8000, portal: {username: "cpim"}}`),
		0o644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "config.local.json5"),
		[]byte(`{port: 9000, portal: {password: "secreto"}}`),
		0o644,
	))

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, "cpim", cfg.Portal.Username)
	require.Equal(t, "secreto", cfg.Portal.Password)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
