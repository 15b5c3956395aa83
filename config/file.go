package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath returns ~/.newsharvest/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".newsharvest", "config.yaml"), nil
}

// LoadFile returns the defaults overlaid with the YAML file at path. An
// empty path means DefaultPath, and a missing default file is not an error.
// A path given explicitly must exist.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		return cfg, nil // File doesn't exist -- not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from NEWSHARVEST_* environment variables.
// Malformed numeric, boolean or duration values are reported.
func (c *Config) ApplyEnv() error {
	c.Source.Kind = getEnv("NEWSHARVEST_SOURCE_KIND", c.Source.Kind)
	c.Source.Path = getEnv("NEWSHARVEST_SOURCE_PATH", c.Source.Path)
	c.Source.URL = getEnv("NEWSHARVEST_SOURCE_URL", c.Source.URL)
	c.Source.Sheet = getEnv("NEWSHARVEST_SOURCE_SHEET", c.Source.Sheet)
	c.Fetch.Mode = getEnv("NEWSHARVEST_FETCH_MODE", c.Fetch.Mode)
	c.Fetch.ChromePath = getEnv("NEWSHARVEST_CHROME_PATH", c.Fetch.ChromePath)
	c.Fetch.UserAgent = getEnv("NEWSHARVEST_USER_AGENT", c.Fetch.UserAgent)
	c.Window.Timezone = getEnv("NEWSHARVEST_TIMEZONE", c.Window.Timezone)
	c.Output.Dir = getEnv("NEWSHARVEST_OUTPUT_DIR", c.Output.Dir)
	c.Upload.FolderID = getEnv("NEWSHARVEST_UPLOAD_FOLDER_ID", c.Upload.FolderID)
	c.Upload.Credentials = getEnv("NEWSHARVEST_CREDENTIALS", c.Upload.Credentials)
	c.Ledger.DSN = getEnv("NEWSHARVEST_LEDGER_DSN", c.Ledger.DSN)
	c.Metrics.Textfile = getEnv("NEWSHARVEST_METRICS_TEXTFILE", c.Metrics.Textfile)
	c.Logging.Level = getEnv("NEWSHARVEST_LOG_LEVEL", c.Logging.Level)

	var err error
	if c.Fetch.Headless, err = envBool("NEWSHARVEST_HEADLESS", c.Fetch.Headless); err != nil {
		return err
	}
	if c.Upload.Enabled, err = envBool("NEWSHARVEST_UPLOAD_ENABLED", c.Upload.Enabled); err != nil {
		return err
	}
	if c.Output.KeepLocal, err = envBool("NEWSHARVEST_KEEP_LOCAL", c.Output.KeepLocal); err != nil {
		return err
	}
	if c.Fetch.Timeout, err = envDuration("NEWSHARVEST_FETCH_TIMEOUT", c.Fetch.Timeout); err != nil {
		return err
	}
	if c.Window.CutoverHour, err = envInt("NEWSHARVEST_CUTOVER_HOUR", c.Window.CutoverHour); err != nil {
		return err
	}
	return nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	return b, nil
}

func envInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	return n, nil
}

func envDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	return d, nil
}
