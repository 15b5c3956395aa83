package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefault_IsValid verifies the defaults pass validation
func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

// TestValidate_ReportsEveryField verifies all problems are joined
func TestValidate_ReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.Source.Kind = "ftp"
	cfg.Fetch.Mode = "curl"
	cfg.Fetch.Timeout = 0
	cfg.Window.CutoverHour = 24
	cfg.Window.Timezone = "Mars/Olympus"
	cfg.Logging.Level = "loud"
	cfg.Extract.Selectors.Comment.Item = ""

	err := cfg.Validate()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	for _, field := range []string{"source.kind", "fetch.mode", "fetch.timeout", "window.cutover_hour", "window.timezone", "logging.level", "extract.selectors"} {
		assert.Contains(t, err.Error(), field)
	}
}

// TestValidate_SourceRequirements verifies per-kind required fields
func TestValidate_SourceRequirements(t *testing.T) {
	cfg := Default()
	cfg.Source.Kind = SourceFeed
	assert.ErrorContains(t, cfg.Validate(), "source.url")

	cfg = Default()
	cfg.Source.Path = ""
	assert.ErrorContains(t, cfg.Validate(), "source.path")

	cfg = Default()
	cfg.Source.Kind = SourceGSheet
	cfg.Source.URL = "abc"
	cfg.Upload.Credentials = ""
	assert.ErrorContains(t, cfg.Validate(), "upload.credentials")

	cfg = Default()
	cfg.Source.Columns.DateColumn = cfg.Source.Columns.URLColumn
	assert.ErrorContains(t, cfg.Validate(), "must differ")
}

// TestLocation verifies the configured zone is loaded
func TestLocation(t *testing.T) {
	loc, err := Default().Location()

	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

// TestOutputPath verifies the run date names the workbook
func TestOutputPath(t *testing.T) {
	cfg := Default()
	cfg.Output.Dir = "out"
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "out/240510.xlsx", cfg.OutputPath(now))
}
