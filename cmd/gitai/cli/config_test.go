package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSettings_EnabledDefaultsToTrue(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if !settings.Enabled {
		t.Error("Enabled should default to true when no settings file exists")
	}

	settingsDir := filepath.Dir(SettingsFile)
	if err := os.MkdirAll(settingsDir, 0o755); err != nil {
		t.Fatalf("Failed to create settings dir: %v", err)
	}
	if err := os.WriteFile(SettingsFile, []byte(`{"log_level": "debug"}`), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	settings, err = LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if !settings.Enabled {
		t.Error("Enabled should default to true when field is missing from JSON")
	}

	if err := os.WriteFile(SettingsFile, []byte(`{"enabled": false}`), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}
	settings, err = LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if settings.Enabled {
		t.Error("Enabled should be false when explicitly set to false")
	}

	if err := os.WriteFile(SettingsFile, []byte(`{"enabled": true}`), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}
	settings, err = LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if !settings.Enabled {
		t.Error("Enabled should be true when explicitly set to true")
	}
}

func TestSaveSettings_PreservesEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	settings := &Settings{Enabled: false}
	if err := SaveSettings(settings); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	loaded, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if loaded.Enabled {
		t.Error("Enabled should be false after saving as false")
	}
}

func TestIsEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	enabled, err := IsEnabled()
	if err != nil {
		t.Fatalf("IsEnabled() error = %v", err)
	}
	if !enabled {
		t.Error("IsEnabled() should return true when no settings file exists")
	}

	settingsDir := filepath.Dir(SettingsFile)
	if err := os.MkdirAll(settingsDir, 0o755); err != nil {
		t.Fatalf("Failed to create settings dir: %v", err)
	}
	if err := os.WriteFile(SettingsFile, []byte(`{"enabled": false}`), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	enabled, err = IsEnabled()
	if err != nil {
		t.Fatalf("IsEnabled() error = %v", err)
	}
	if enabled {
		t.Error("IsEnabled() should return false when disabled")
	}

	if err := os.WriteFile(SettingsFile, []byte(`{"enabled": true}`), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}
	enabled, err = IsEnabled()
	if err != nil {
		t.Fatalf("IsEnabled() error = %v", err)
	}
	if !enabled {
		t.Error("IsEnabled() should return true when enabled")
	}
}

func setupLocalOverrideTestDir(t *testing.T) {
	t.Helper()
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	settingsDir := filepath.Dir(SettingsFile)
	if err := os.MkdirAll(settingsDir, 0o755); err != nil {
		t.Fatalf("Failed to create settings dir: %v", err)
	}
}

func TestLoadSettings_LocalOverridesEnabled(t *testing.T) {
	setupLocalOverrideTestDir(t)

	if err := os.WriteFile(SettingsFile, []byte(`{"enabled": true}`), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}
	if err := os.WriteFile(SettingsLocalFile, []byte(`{"enabled": false}`), 0o644); err != nil {
		t.Fatalf("Failed to write local settings file: %v", err)
	}

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if settings.Enabled {
		t.Error("Enabled should be false from local override")
	}
}

func TestLoadSettings_LocalOverridesLogLevel(t *testing.T) {
	setupLocalOverrideTestDir(t)

	if err := os.WriteFile(SettingsFile, []byte(`{"log_level": "info"}`), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}
	if err := os.WriteFile(SettingsLocalFile, []byte(`{"log_level": "debug"}`), 0o644); err != nil {
		t.Fatalf("Failed to write local settings file: %v", err)
	}

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if settings.LogLevel != "debug" {
		t.Errorf("LogLevel should be 'debug' from local override, got %q", settings.LogLevel)
	}
}

func TestLoadSettings_OnlyLocalFileExists(t *testing.T) {
	setupLocalOverrideTestDir(t)

	if err := os.WriteFile(SettingsLocalFile, []byte(`{"log_level": "warn"}`), 0o644); err != nil {
		t.Fatalf("Failed to write local settings file: %v", err)
	}

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if settings.LogLevel != "warn" {
		t.Errorf("LogLevel should be 'warn' from local file, got %q", settings.LogLevel)
	}
	if !settings.Enabled {
		t.Error("Enabled should default to true")
	}
}

func TestLoadSettings_NeitherFileExistsReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if !settings.Enabled {
		t.Error("Enabled should default to true")
	}
	if settings.LogLevel != "" {
		t.Errorf("LogLevel should be empty by default, got %q", settings.LogLevel)
	}
}
