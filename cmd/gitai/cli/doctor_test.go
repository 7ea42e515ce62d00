package cli

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func initDoctorTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	run("config", "user.email", "tester@example.com")
	run("config", "user.name", "Tester")
	return dir
}

func TestCheckGitInstalled(t *testing.T) {
	var buf bytes.Buffer
	checkGitInstalled(&buf)
	if !strings.HasPrefix(buf.String(), "✓") {
		t.Errorf("expected a successful git check, got: %s", buf.String())
	}
}

func TestCheckSettingsValid_OutsideRepo(t *testing.T) {
	t.Chdir(t.TempDir())

	var buf bytes.Buffer
	checkSettingsValid(&buf)
	if !strings.Contains(buf.String(), "not inside a git repository") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestCheckSettingsValid_InsideRepo(t *testing.T) {
	dir := initDoctorTestRepo(t)
	t.Chdir(dir)

	var buf bytes.Buffer
	checkSettingsValid(&buf)
	if !strings.Contains(buf.String(), "settings load cleanly") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestCheckStalePendingWorkingLogs_ForceDiscardsStale(t *testing.T) {
	dir := initDoctorTestRepo(t)
	t.Chdir(dir)

	logsDir := filepath.Join(dir, ".git", "gitai", "working_logs")
	staleDir := filepath.Join(logsDir, "deadbeef0123456789")
	if err := os.MkdirAll(staleDir, 0o750); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(staleDir, old, old); err != nil {
		t.Fatal(err)
	}

	cmd := newDoctorCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	if err := checkStalePendingWorkingLogs(cmd, true); err != nil {
		t.Fatalf("checkStalePendingWorkingLogs() error = %v", err)
	}
	if _, err := os.Stat(staleDir); !os.IsNotExist(err) {
		t.Error("expected stale working log directory to be discarded")
	}
}

func TestCheckStalePendingWorkingLogs_NoneFound(t *testing.T) {
	dir := initDoctorTestRepo(t)
	t.Chdir(dir)

	cmd := newDoctorCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	if err := checkStalePendingWorkingLogs(cmd, false); err != nil {
		t.Fatalf("checkStalePendingWorkingLogs() error = %v", err)
	}
	if !strings.Contains(buf.String(), "no stale pending working logs") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
