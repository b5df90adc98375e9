package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStringFallback(t *testing.T) {
	t.Setenv("GUARDIAN_TEST_STR", "")
	if got := String("GUARDIAN_TEST_STR", "def"); got != "def" {
		t.Errorf("String() = %q, want def", got)
	}

	t.Setenv("GUARDIAN_TEST_STR", "set")
	if got := String("GUARDIAN_TEST_STR", "def"); got != "set" {
		t.Errorf("String() = %q, want set", got)
	}
}

func TestNumericParsing(t *testing.T) {
	t.Setenv("GUARDIAN_TEST_FLOAT", "0.25")
	if got := Float("GUARDIAN_TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("Float() = %v, want 0.25", got)
	}

	t.Setenv("GUARDIAN_TEST_FLOAT", "abc")
	if got := Float("GUARDIAN_TEST_FLOAT", 1); got != 1 {
		t.Errorf("Float() malformed = %v, want default 1", got)
	}

	t.Setenv("GUARDIAN_TEST_INT", "42")
	if got := Int("GUARDIAN_TEST_INT", 0); got != 42 {
		t.Errorf("Int() = %d, want 42", got)
	}

	t.Setenv("GUARDIAN_TEST_BOOL", "true")
	if !Bool("GUARDIAN_TEST_BOOL", false) {
		t.Error("Bool() should be true")
	}

	t.Setenv("GUARDIAN_TEST_DUR", "150ms")
	if got := Duration("GUARDIAN_TEST_DUR", time.Second); got != 150*time.Millisecond {
		t.Errorf("Duration() = %v, want 150ms", got)
	}
}

func TestDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GUARDIAN_DATA_DIR", dir)

	if got := DataDir(); got != dir {
		t.Errorf("DataDir() = %s, want %s", got, dir)
	}
	if got := ConfigPath(); got != filepath.Join(dir, DefaultConfigFile) {
		t.Errorf("ConfigPath() = %s", got)
	}
}
