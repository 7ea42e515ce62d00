package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gitattrib/gitai/cmd/gitai/cli/agent"
	"github.com/gitattrib/gitai/cmd/gitai/cli/jsonutil"
	"github.com/gitattrib/gitai/cmd/gitai/cli/paths"

	// Import claudecode to register the agent
	_ "github.com/gitattrib/gitai/cmd/gitai/cli/agent/claudecode"
)

const (
	// SettingsFile is the path to the gitai settings file.
	SettingsFile = ".gitai/settings.json"
	// SettingsLocalFile is the path to the local settings override file (not committed).
	SettingsLocalFile = ".gitai/settings.local.json"
)

// Settings represents the .gitai/settings.json configuration. There is no
// "strategy" concept here: attribution tracking always runs through the
// working-log/pipeline/reconciler machinery, never a configurable
// alternative, so settings only cover ambient concerns.
type Settings struct {
	// Enabled indicates whether gitai is active. When false, hook
	// handlers exit silently instead of touching the working log.
	// Defaults to true.
	Enabled bool `json:"enabled"`

	// LogLevel sets the logging verbosity (debug, info, warn, error).
	// Can be overridden by the GITAI_LOG_LEVEL environment variable.
	// Defaults to "info".
	LogLevel string `json:"log_level,omitempty"`

	// Telemetry controls anonymous usage analytics.
	// nil = not asked yet (show prompt), true = opted in, false = opted out.
	Telemetry *bool `json:"telemetry,omitempty"`
}

// LoadSettings loads settings from .gitai/settings.json, then applies any
// overrides from .gitai/settings.local.json if it exists. Returns default
// settings if neither file exists. Works from any subdirectory of the repo.
func LoadSettings() (*Settings, error) {
	settingsFileAbs, err := paths.AbsPath(SettingsFile)
	if err != nil {
		settingsFileAbs = SettingsFile
	}
	localSettingsFileAbs, err := paths.AbsPath(SettingsLocalFile)
	if err != nil {
		localSettingsFileAbs = SettingsLocalFile
	}

	settings, err := loadSettingsFromFile(settingsFileAbs)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	localData, err := os.ReadFile(localSettingsFileAbs) //nolint:gosec // path is from AbsPath or constant
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading local settings file: %w", err)
		}
	} else if err := mergeSettingsJSON(settings, localData); err != nil {
		return nil, fmt.Errorf("merging local settings: %w", err)
	}

	return settings, nil
}

// mergeSettingsJSON merges JSON data into existing settings. Only fields
// present in data override settings.
func mergeSettingsJSON(settings *Settings, data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	if enabledRaw, ok := raw["enabled"]; ok {
		var e bool
		if err := json.Unmarshal(enabledRaw, &e); err != nil {
			return fmt.Errorf("parsing enabled field: %w", err)
		}
		settings.Enabled = e
	}

	if logLevelRaw, ok := raw["log_level"]; ok {
		var ll string
		if err := json.Unmarshal(logLevelRaw, &ll); err != nil {
			return fmt.Errorf("parsing log_level field: %w", err)
		}
		if ll != "" {
			settings.LogLevel = ll
		}
	}

	if telemetryRaw, ok := raw["telemetry"]; ok {
		var t bool
		if err := json.Unmarshal(telemetryRaw, &t); err != nil {
			return fmt.Errorf("parsing telemetry field: %w", err)
		}
		settings.Telemetry = &t
	}

	return nil
}

// SaveSettings saves settings to .gitai/settings.json.
func SaveSettings(settings *Settings) error {
	return saveSettingsToFile(settings, SettingsFile)
}

// SaveSettingsLocal saves settings to .gitai/settings.local.json.
func SaveSettingsLocal(settings *Settings) error {
	return saveSettingsToFile(settings, SettingsLocalFile)
}

// loadSettingsFromFile loads settings from a specific file path, returning
// defaults if the file doesn't exist.
func loadSettingsFromFile(filePath string) (*Settings, error) {
	settings := &Settings{Enabled: true}

	data, err := os.ReadFile(filePath) //nolint:gosec // path is from caller
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("%w", err)
	}

	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	return settings, nil
}

func saveSettingsToFile(settings *Settings, filePath string) error {
	filePathAbs, err := paths.AbsPath(filePath)
	if err != nil {
		filePathAbs = filePath
	}

	dir := filepath.Dir(filePathAbs)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	data, err := jsonutil.MarshalIndentWithNewline(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	//nolint:gosec // G306: settings file is config, not secrets; 0o644 is appropriate
	if err := os.WriteFile(filePathAbs, data, 0o644); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	return nil
}

// IsEnabled returns whether gitai is currently enabled.
// Returns true by default if settings cannot be loaded.
func IsEnabled() (bool, error) {
	settings, err := LoadSettings()
	if err != nil {
		return true, err
	}
	return settings.Enabled, nil
}

// GetLogLevel returns the configured log level from settings.
// Returns empty string if not configured (caller should use default).
// Note: GITAI_LOG_LEVEL env var takes precedence; check it first.
func GetLogLevel() string {
	settings, err := LoadSettings()
	if err != nil {
		return ""
	}
	return settings.LogLevel
}

// GetAgentsWithHooksInstalled returns names of agents that have hooks installed.
func GetAgentsWithHooksInstalled() []agent.AgentName {
	var installed []agent.AgentName
	for _, name := range agent.List() {
		ag, err := agent.Get(name)
		if err != nil {
			continue
		}
		if hs, ok := ag.(agent.HookSupport); ok && hs.AreHooksInstalled() {
			installed = append(installed, name)
		}
	}
	return installed
}

// JoinAgentNames joins agent names into a comma-separated string.
func JoinAgentNames(names []agent.AgentName) string {
	strs := make([]string, len(names))
	for i, n := range names {
		strs[i] = string(n)
	}
	return strings.Join(strs, ",")
}
