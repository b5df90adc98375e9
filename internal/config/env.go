// Package config provides environment helpers for go-guardian commands.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Default locations.
const (
	DefaultDataDirName = ".guardian"
	DefaultConfigFile  = "config.json"
	DefaultHTTPPort    = "8080"
)

// String returns the env var value or the provided default if unset.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Float returns the env var parsed as float64.
// Falls back to the default if unset or malformed.
func Float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Int returns the env var parsed as int.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the env var parsed with strconv.ParseBool.
func Bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Duration returns the env var parsed with time.ParseDuration.
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// DataDir returns GUARDIAN_DATA_DIR or ~/.guardian.
func DataDir() string {
	if dir := os.Getenv("GUARDIAN_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDirName
	}
	return filepath.Join(home, DefaultDataDirName)
}

// ConfigPath returns the default JSON config file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), DefaultConfigFile)
}
