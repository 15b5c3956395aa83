package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoadFile_NoDefaultFile verifies defaults are used when the default
// file is missing
func TestLoadFile_NoDefaultFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadFile("")

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

// TestLoadFile_DefaultLocation verifies ~/.newsharvest/config.yaml is read
func TestLoadFile_DefaultLocation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".newsharvest")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("logging:\n  level: debug\n"), 0o600))

	cfg, err := LoadFile("")

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

// TestLoadFile_MissingExplicitFile verifies an explicit path must exist
func TestLoadFile_MissingExplicitFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Error(t, err)
}

// TestLoadFile_OverlaysDefaults verifies file values replace defaults and
// unset fields keep them
func TestLoadFile_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `source:
  kind: gsheet
  url: "https://docs.google.com/spreadsheets/d/abc/edit"
  columns:
    url_column: 4
    date_column: 1
    url_prefixes: ["https://"]
fetch:
  mode: http
  timeout: 45s
  min_interval: 500ms
extract:
  selectors:
    comment:
      item: "li.comment"
window:
  cutover_hour: 9
output:
  dir: out
  keep_local: true
upload:
  enabled: true
  folder_id: folder-1
`)

	cfg, err := LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, SourceGSheet, cfg.Source.Kind)
	assert.Equal(t, 4, cfg.Source.Columns.URLColumn)
	assert.Equal(t, []string{"https://"}, cfg.Source.Columns.URLPrefixes)
	assert.Equal(t, FetchHTTP, cfg.Fetch.Mode)
	assert.Equal(t, 45*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.MinInterval)
	assert.Equal(t, "li.comment", cfg.Extract.Selectors.Comment.Item)
	assert.Equal(t, "p.sc-169yn8p-10", cfg.Extract.Selectors.Comment.Text, "unset selectors keep defaults")
	assert.Equal(t, 9, cfg.Window.CutoverHour)
	assert.Equal(t, "Asia/Tokyo", cfg.Window.Timezone)
	assert.True(t, cfg.Output.KeepLocal)
	assert.Equal(t, "folder-1", cfg.Upload.FolderID)
	assert.NoError(t, cfg.Validate())
}

// TestLoadFile_InvalidYAML verifies parse errors are reported
func TestLoadFile_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "fetch:\n  - this should be a mapping\n")

	_, err := LoadFile(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

// TestApplyEnv verifies environment overrides
func TestApplyEnv(t *testing.T) {
	t.Setenv("NEWSHARVEST_SOURCE_KIND", "feed")
	t.Setenv("NEWSHARVEST_SOURCE_URL", "https://n.example/rss")
	t.Setenv("NEWSHARVEST_LOG_LEVEL", "warn")
	t.Setenv("NEWSHARVEST_HEADLESS", "false")
	t.Setenv("NEWSHARVEST_FETCH_TIMEOUT", "1m")
	t.Setenv("NEWSHARVEST_CUTOVER_HOUR", "12")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, SourceFeed, cfg.Source.Kind)
	assert.Equal(t, "https://n.example/rss", cfg.Source.URL)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.False(t, cfg.Fetch.Headless)
	assert.Equal(t, time.Minute, cfg.Fetch.Timeout)
	assert.Equal(t, 12, cfg.Window.CutoverHour)
}

// TestApplyEnv_Malformed verifies bad values are reported
func TestApplyEnv_Malformed(t *testing.T) {
	t.Setenv("NEWSHARVEST_CUTOVER_HOUR", "noon")

	err := Default().ApplyEnv()

	assert.ErrorIs(t, err, ErrInvalid)
}
