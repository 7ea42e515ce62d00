package reconciler

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/gitattrib/gitai/internal/gitrepo"
	"github.com/gitattrib/gitai/internal/pipeline"
	"github.com/gitattrib/gitai/internal/workinglog"
	"github.com/stretchr/testify/require"
)

func fixedClock(ts int64) pipeline.Clock { return func() int64 { return ts } }

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
	return string(out)
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "tester@example.com")
	runGit(t, dir, "config", "user.name", "Tester")
	return dir
}

func writeFile(t *testing.T, dir, path, content string) {
	t.Helper()
	full := filepath.Join(dir, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
}

func commitAll(t *testing.T, dir, message string) string {
	t.Helper()
	runGit(t, dir, "add", "-A")
	runGit(t, dir, "commit", "-q", "-m", message)
	out := runGit(t, dir, "rev-parse", "HEAD")
	return trimNL(out)
}

func trimNL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func TestHandleReset_Soft_PreservesMergedAttribution(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.go", "line one\n")
	sha1 := commitAll(t, dir, "first")

	writeFile(t, dir, "a.go", "line one\nline two\n")
	sha2 := commitAll(t, dir, "second")

	repo, err := gitrepo.Open(dir)
	require.NoError(t, err)
	stateDir := pipeline.StateDir(filepath.Join(dir, ".git"))

	require.NoError(t, HandleReset(repo, stateDir, ResetSoft, sha2, sha1, fixedClock(100)))

	store := workinglog.Open(pipeline.WorkingLogDir(stateDir, sha1))
	ia := store.ReadInitialAttributions()
	require.Contains(t, ia.Files, "a.go")
}

func TestHandleReset_Hard_DeletesWorkingLog(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.go", "hello\n")
	sha1 := commitAll(t, dir, "first")

	repo, err := gitrepo.Open(dir)
	require.NoError(t, err)
	stateDir := pipeline.StateDir(filepath.Join(dir, ".git"))

	wlDir := pipeline.WorkingLogDir(stateDir, sha1)
	require.NoError(t, os.MkdirAll(wlDir, 0o750))

	require.NoError(t, HandleReset(repo, stateDir, ResetHard, sha1, sha1, fixedClock(100)))
	_, statErr := os.Stat(wlDir)
	require.True(t, os.IsNotExist(statErr))
}

func TestHandleCheckoutHeadChange_RenamesWorkingLog(t *testing.T) {
	dir := initRepo(t)
	stateDir := pipeline.StateDir(filepath.Join(dir, ".git"))
	oldDir := pipeline.WorkingLogDir(stateDir, "old-sha")
	require.NoError(t, os.MkdirAll(oldDir, 0o750))

	require.NoError(t, HandleCheckoutHeadChange(stateDir, "old-sha", "new-sha"))
	_, err := os.Stat(pipeline.WorkingLogDir(stateDir, "new-sha"))
	require.NoError(t, err)
}

func TestGuard_RecoversPanic(t *testing.T) {
	err := Guard("test-op", func() error {
		panic("boom")
	})
	require.Error(t, err)
}

func TestActiveRebase_TracksStartUntilTerminal(t *testing.T) {
	dir := t.TempDir()
	log := OpenLog(filepath.Join(dir, "rewrite_log"))

	require.NoError(t, log.Append(Event{RebaseStart: &RebaseStartEvent{OriginalHead: "abc"}}))
	active, err := log.ActiveRebase()
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, "abc", active.OriginalHead)

	require.NoError(t, log.Append(Event{RebaseComplete: &RebaseCompleteEvent{OriginalHead: "abc"}}))
	active, err = log.ActiveRebase()
	require.NoError(t, err)
	require.Nil(t, active)
}
