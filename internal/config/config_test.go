package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Automerge)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_HCLFile(t *testing.T) {
	path := writeFile(t, "tmengine.hcl", `
database  = "/var/lib/tm/maps.db"
topic_map = "http://example.org/opera"
env       = "production"

features {
  automerge = false
}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tm/maps.db", cfg.Database)
	assert.Equal(t, "http://example.org/opera", cfg.TopicMap)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.Automerge)
	assert.True(t, cfg.LockFile, "keys missing from the block keep their default")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "tmengine.hcl", `database = "from-file.db"`)
	t.Setenv("TM_DATABASE", "from-env.db")
	t.Setenv("TM_AUTOMERGE", "false")
	t.Setenv("TM_LOCK_FILE", "not-a-bool")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database)
	assert.False(t, cfg.Automerge)
	assert.True(t, cfg.LockFile, "unparseable booleans are ignored")
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeFile(t, "broken.hcl", `database = `)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.LogLevel = "warn"
	assert.NoError(t, cfg.Validate())
}
