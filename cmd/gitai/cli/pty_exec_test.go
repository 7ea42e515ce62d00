package cli

import "testing"

func TestNeedsControllingTerminal(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want bool
	}{
		{"commit with no args needs an editor", []string{"commit"}, true},
		{"commit -m skips the editor", []string{"commit", "-m", "msg"}, false},
		{"commit --message skips the editor", []string{"commit", "--message", "msg"}, false},
		{"commit --no-edit skips the editor", []string{"commit", "--amend", "--no-edit"}, false},
		{"rebase -i needs an editor", []string{"rebase", "-i", "HEAD~3"}, true},
		{"plain rebase does not", []string{"rebase", "main"}, false},
		{"merge --edit needs an editor", []string{"merge", "--edit", "topic"}, true},
		{"plain merge does not", []string{"merge", "topic"}, false},
		{"status is unaffected", []string{"status"}, false},
		{"empty argv is unaffected", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsControllingTerminal(tt.argv); got != tt.want {
				t.Errorf("needsControllingTerminal(%v) = %v, want %v", tt.argv, got, tt.want)
			}
		})
	}
}
