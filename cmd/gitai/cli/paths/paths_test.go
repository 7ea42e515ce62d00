package paths

import (
	"regexp"
	"testing"
)

func TestGitaiSessionID(t *testing.T) {
	agentSessionID := "8f76b0e8-b8f1-4a87-9186-848bdd83d62e"

	result := GitaiSessionID(agentSessionID)

	// Should match format: YYYY-MM-DD-<agent-session-id>
	pattern := `^\d{4}-\d{2}-\d{2}-` + regexp.QuoteMeta(agentSessionID) + `$`
	matched, err := regexp.MatchString(pattern, result)
	if err != nil {
		t.Fatalf("regex error: %v", err)
	}
	if !matched {
		t.Errorf("GitaiSessionID() = %q, want format YYYY-MM-DD-%s", result, agentSessionID)
	}
}

func TestGitaiSessionID_PreservesInput(t *testing.T) {
	tests := []struct {
		name           string
		agentSessionID string
	}{
		{"simple uuid", "abc123"},
		{"full uuid", "8f76b0e8-b8f1-4a87-9186-848bdd83d62e"},
		{"with special chars", "test-session_123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GitaiSessionID(tt.agentSessionID)

			suffix := "-" + tt.agentSessionID
			if len(result) < len(suffix) || result[len(result)-len(suffix):] != suffix {
				t.Errorf("GitaiSessionID(%q) = %q, should end with %q", tt.agentSessionID, result, suffix)
			}

			if len(result) < 11 {
				t.Errorf("GitaiSessionID(%q) = %q, too short for date prefix", tt.agentSessionID, result)
			}
		})
	}
}

func TestRepoRootCaching(t *testing.T) {
	ClearRepoRootCache()

	root1, err := RepoRoot()
	if err != nil {
		t.Skipf("not inside a git repository: %v", err)
	}

	root2, err := RepoRoot()
	if err != nil {
		t.Fatalf("RepoRoot() second call error = %v", err)
	}
	if root1 != root2 {
		t.Errorf("RepoRoot() cached result = %q, want %q", root2, root1)
	}
}

func TestAbsPath(t *testing.T) {
	abs, err := AbsPath("/already/absolute")
	if err != nil {
		t.Fatalf("AbsPath() error = %v", err)
	}
	if abs != "/already/absolute" {
		t.Errorf("AbsPath() = %q, want unchanged absolute path", abs)
	}
}
