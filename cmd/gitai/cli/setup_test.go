package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateSetupFlags(t *testing.T) {
	if err := validateSetupFlags(false, false); err != nil {
		t.Errorf("expected no error when neither flag is set, got %v", err)
	}
	if err := validateSetupFlags(true, false); err != nil {
		t.Errorf("expected no error for --local alone, got %v", err)
	}
	if err := validateSetupFlags(false, true); err != nil {
		t.Errorf("expected no error for --project alone, got %v", err)
	}
	if err := validateSetupFlags(true, true); err == nil {
		t.Error("expected an error when both --local and --project are set")
	}
}

func TestPromptTelemetryConsent_FlagOffDisablesWithoutPrompting(t *testing.T) {
	settings := &Settings{}
	if err := promptTelemetryConsent(settings, false); err != nil {
		t.Fatalf("promptTelemetryConsent() error = %v", err)
	}
	if settings.Telemetry == nil || *settings.Telemetry {
		t.Error("expected telemetry to be disabled when the flag is off")
	}
}

func TestPromptTelemetryConsent_AlreadyConfiguredSkipsPrompt(t *testing.T) {
	enabled := true
	settings := &Settings{Telemetry: &enabled}
	if err := promptTelemetryConsent(settings, true); err != nil {
		t.Fatalf("promptTelemetryConsent() error = %v", err)
	}
	if settings.Telemetry != &enabled {
		t.Error("expected existing telemetry preference to be left untouched")
	}
}

func TestPromptTelemetryConsent_OptOutEnvDisablesWithoutPrompting(t *testing.T) {
	t.Setenv("GITAI_TELEMETRY_OPTOUT", "1")

	settings := &Settings{}
	if err := promptTelemetryConsent(settings, true); err != nil {
		t.Fatalf("promptTelemetryConsent() error = %v", err)
	}
	if settings.Telemetry == nil || *settings.Telemetry {
		t.Error("expected telemetry to be disabled when the opt-out env var is set")
	}
}

func TestShellCompletionTarget(t *testing.T) {
	tests := []struct {
		shell     string
		wantShell string
		wantErr   bool
	}{
		{"/bin/zsh", "zsh", false},
		{"/usr/bin/bash", "bash", false},
		{"/usr/local/bin/fish", "fish", false},
		{"/bin/tcsh", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			t.Setenv("SHELL", tt.shell)
			shellName, rcFile, completionLine, err := shellCompletionTarget()
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error for an unrecognized shell")
				}
				return
			}
			if err != nil {
				t.Fatalf("shellCompletionTarget() error = %v", err)
			}
			if shellName != tt.wantShell {
				t.Errorf("shellName = %q, want %q", shellName, tt.wantShell)
			}
			if rcFile == "" || completionLine == "" {
				t.Error("expected non-empty rcFile and completionLine")
			}
		})
	}
}

func TestIsCompletionConfigured(t *testing.T) {
	dir := t.TempDir()
	rcFile := filepath.Join(dir, ".bashrc")

	if isCompletionConfigured(rcFile) {
		t.Error("expected false when the rc file does not exist")
	}

	if err := os.WriteFile(rcFile, []byte("export PATH=$PATH:/usr/local/bin\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if isCompletionConfigured(rcFile) {
		t.Error("expected false when the rc file has no gitai completion line")
	}

	if err := appendShellCompletion(rcFile, `eval "$(gitai completion bash)"`); err != nil {
		t.Fatal(err)
	}
	if !isCompletionConfigured(rcFile) {
		t.Error("expected true after appending the completion line")
	}
}
