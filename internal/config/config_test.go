package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SELFUPDATE_REPO_ROOT", root)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, root, cfg.RepoRoot)
	assert.Equal(t, "origin", cfg.Remote)
	assert.Equal(t, 300*time.Second, cfg.CommandTimeout)
	assert.Equal(t, filepath.Join(root, "data", "update_state.json"), cfg.StatePath)
	assert.Equal(t, filepath.Join(root, "data", "logs", "update.log"), cfg.LogPath)
	assert.Equal(t, filepath.Join(root, "CHANGELOG.md"), cfg.Changelog.Path)
	assert.Equal(t, 80, cfg.Changelog.MaxLines)
	assert.Equal(t, "none", cfg.Restart.Mode)
	assert.Equal(t, "all", cfg.Restart.Process)
	assert.Equal(t, 15*time.Second, cfg.Release.Timeout)
}

func TestLoadFileAndEnv(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "selfupdate.yaml")
	content := `
repo_root: ` + root + `
branch: release
command_timeout: 45s
restart:
  mode: systemd
  unit: app.service
release:
  repo: acme/app
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("SELFUPDATE_RESTART_UNIT", "override.service")
	t.Setenv("SELFUPDATE_STATE_PATH", "/var/lib/app/state.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Branch)
	assert.Equal(t, 45*time.Second, cfg.CommandTimeout)
	assert.Equal(t, "systemd", cfg.Restart.Mode)
	assert.Equal(t, "override.service", cfg.Restart.Unit)
	assert.Equal(t, "acme/app", cfg.Release.Repo)
	assert.Equal(t, "/var/lib/app/state.json", cfg.StatePath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
