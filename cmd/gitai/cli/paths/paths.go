// Package paths resolves filesystem locations gitai needs: the repository
// root (for anchoring relative config/state paths regardless of the
// caller's working directory) and the session ID convention shared between
// hook input and AuthorshipLog prompt records.
package paths

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// repoRootCache caches the repository root to avoid repeated git commands.
// The cache is keyed by the current working directory to handle directory changes.
var (
	repoRootMu       sync.RWMutex
	repoRootCache    string
	repoRootCacheDir string
)

// RepoRoot returns the git repository root directory.
// Uses 'git rev-parse --show-toplevel' which works from any subdirectory.
// The result is cached per working directory.
// Returns an error if not inside a git repository.
func RepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}

	repoRootMu.RLock()
	if repoRootCache != "" && repoRootCacheDir == cwd {
		cached := repoRootCache
		repoRootMu.RUnlock()
		return cached, nil
	}
	repoRootMu.RUnlock()

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	root := string(output)
	for len(root) > 0 && (root[len(root)-1] == '\n' || root[len(root)-1] == '\r') {
		root = root[:len(root)-1]
	}

	repoRootMu.Lock()
	repoRootCache = root
	repoRootCacheDir = cwd
	repoRootMu.Unlock()

	return root, nil
}

// ClearRepoRootCache clears the cached repository root.
// This is primarily useful for testing when changing directories.
func ClearRepoRootCache() {
	repoRootMu.Lock()
	repoRootCache = ""
	repoRootCacheDir = ""
	repoRootMu.Unlock()
}

// AbsPath returns the absolute path for a relative path within the repository.
// If the path is already absolute, it is returned as-is.
// Uses RepoRoot() to resolve paths relative to the repository root.
func AbsPath(relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return relPath, nil
	}

	root, err := RepoRoot()
	if err != nil {
		return "", err
	}

	return filepath.Join(root, relPath), nil
}

// GitaiSessionID generates the date-prefixed session ID gitai uses
// internally from an agent-native session ID. The format is
// YYYY-MM-DD-<agent-session-id>, so sessions naturally sort chronologically
// in the working-log store regardless of what the agent's own ID looks
// like.
func GitaiSessionID(agentSessionID string) string {
	return time.Now().Format("2006-01-02") + "-" + agentSessionID
}
