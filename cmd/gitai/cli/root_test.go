package cli

import "testing"

func TestNewRootCmd_RegistersExpectedCommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"git", "hooks", "blame", "status", "doctor", "setup", "ci-rewrite-authorship", "version"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected root command to register %q", name)
		}
	}
}

func TestDetectedAgentName_NeverPanics(t *testing.T) {
	_ = detectedAgentName()
}
