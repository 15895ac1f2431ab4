package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"jobrunner/internal/apperrors"
	"jobrunner/internal/testutil"
)

// waitNotRunning polls IsRunning until the job reports finished.
func waitNotRunning(t *testing.T, r Runner, id JobID) {
	t.Helper()
	testutil.MustWaitFor(t, func() bool {
		running, err := r.IsRunning(context.Background(), id)
		if err != nil {
			t.Fatalf("IsRunning(%s): %v", id, err)
		}
		return !running
	})
}

func TestLocalEcho(t *testing.T) {
	t.Parallel()
	workingDir := t.TempDir()

	r := NewLocal(LocalConfig{})
	id, err := r.Submit(context.Background(), "test", workingDir, "echo", "this is a test")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitNotRunning(t, r, id)

	name, err := r.Name(id)
	if err != nil || name != "test" {
		t.Errorf("Name = %q, %v, want %q", name, err, "test")
	}

	logFile, err := r.LogFile(id)
	if err != nil {
		t.Fatalf("LogFile: %v", err)
	}
	errFile, err := r.ErrFile(id)
	if err != nil {
		t.Fatalf("ErrFile: %v", err)
	}

	// Both log files live in the working directory by default.
	if filepath.Dir(logFile) != workingDir {
		t.Errorf("log file %s not in working dir %s", logFile, workingDir)
	}
	if filepath.Dir(errFile) != workingDir {
		t.Errorf("err file %s not in working dir %s", errFile, workingDir)
	}

	out, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.TrimSpace(string(out)) != "this is a test" {
		t.Errorf("log content = %q", out)
	}
	if _, err := os.Stat(errFile); err != nil {
		t.Errorf("err file missing: %v", err)
	}
}

func TestLocalTermination(t *testing.T) {
	t.Parallel()
	workingDir := t.TempDir()

	r := NewLocal(LocalConfig{})
	id, err := r.Submit(context.Background(), "test", workingDir, "sleep", "60")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	running, err := r.IsRunning(context.Background(), id)
	if err != nil {
		t.Fatalf("IsRunning: %v", err)
	}
	if !running {
		t.Fatal("job not running immediately after submission")
	}

	if err := r.Terminate(context.Background(), id); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	waitNotRunning(t, r, id)

	// Idempotent: terminating a finished job is a no-op success.
	if err := r.Terminate(context.Background(), id); err != nil {
		t.Errorf("Terminate on finished job: %v", err)
	}
}

func TestLocalMonotonicLiveness(t *testing.T) {
	t.Parallel()
	workingDir := t.TempDir()

	r := NewLocal(LocalConfig{})
	id, err := r.Submit(context.Background(), "test", workingDir, "true")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitNotRunning(t, r, id)

	// Once finished, the job never reports running again.
	for range 10 {
		running, err := r.IsRunning(context.Background(), id)
		if err != nil {
			t.Fatalf("IsRunning: %v", err)
		}
		if running {
			t.Fatal("finished job reported running again")
		}
	}
}

func TestLocalJoinLogs(t *testing.T) {
	t.Parallel()
	workingDir := t.TempDir()

	r := NewLocal(LocalConfig{JoinLogs: true})
	id, err := r.Submit(context.Background(), "test", workingDir, "echo", "this is a test")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitNotRunning(t, r, id)

	errFile, err := r.ErrFile(id)
	if err != nil {
		t.Fatalf("ErrFile: %v", err)
	}
	if errFile != "" {
		t.Errorf("ErrFile = %q, want empty when logs are joined", errFile)
	}

	logFile, _ := r.LogFile(id)
	if _, err := os.Stat(logFile); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestLocalSetLogDir(t *testing.T) {
	t.Parallel()
	workingDir := t.TempDir()
	logDir := t.TempDir()

	r := NewLocal(LocalConfig{})
	r.SetLogDir(logDir)
	id, err := r.Submit(context.Background(), "test", workingDir, "echo", "this is a test")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitNotRunning(t, r, id)

	logFile, _ := r.LogFile(id)
	errFile, _ := r.ErrFile(id)
	if filepath.Dir(logFile) != logDir {
		t.Errorf("log file %s not in log dir %s", logFile, logDir)
	}
	if filepath.Dir(errFile) != logDir {
		t.Errorf("err file %s not in log dir %s", errFile, logDir)
	}
	if _, err := os.Stat(logFile); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestLocalSetLogDirMultipleTimes(t *testing.T) {
	t.Parallel()
	workingDir := t.TempDir()
	logDir := t.TempDir()

	// The log directory is captured at submission time: later changes must
	// not move the logs of already-submitted jobs.
	r := NewLocal(LocalConfig{})

	r.SetLogDir(logDir)
	id1, err := r.Submit(context.Background(), "test1", workingDir, "echo", "this is a test")
	if err != nil {
		t.Fatalf("Submit test1: %v", err)
	}
	r.SetLogDir(workingDir)
	id2, err := r.Submit(context.Background(), "test2", workingDir, "echo", "this is a test")
	if err != nil {
		t.Fatalf("Submit test2: %v", err)
	}
	r.SetLogDir(logDir)
	id3, err := r.Submit(context.Background(), "test3", workingDir, "echo", "this is a test")
	if err != nil {
		t.Fatalf("Submit test3: %v", err)
	}

	for _, id := range []JobID{id1, id2, id3} {
		waitNotRunning(t, r, id)
	}

	wantDirs := map[JobID]string{id1: logDir, id2: workingDir, id3: logDir}
	wantNames := map[JobID]string{id1: "test1", id2: "test2", id3: "test3"}
	for id, wantDir := range wantDirs {
		name, _ := r.Name(id)
		if name != wantNames[id] {
			t.Errorf("Name(%s) = %q, want %q", id, name, wantNames[id])
		}
		logFile, _ := r.LogFile(id)
		errFile, _ := r.ErrFile(id)
		if filepath.Dir(logFile) != wantDir {
			t.Errorf("job %s log file %s, want dir %s", id, logFile, wantDir)
		}
		if filepath.Dir(errFile) != wantDir {
			t.Errorf("job %s err file %s, want dir %s", id, errFile, wantDir)
		}
		if _, err := os.Stat(logFile); err != nil {
			t.Errorf("job %s log file missing: %v", id, err)
		}
	}
}

func TestLocalSubmitUnrunnable(t *testing.T) {
	t.Parallel()
	workingDir := t.TempDir()

	r := NewLocal(LocalConfig{})
	_, err := r.Submit(context.Background(), "test", workingDir, filepath.Join(workingDir, "no-such-program"))
	if !errors.Is(err, apperrors.ErrUnavailable) {
		t.Errorf("Submit of unrunnable program: %v, want ErrUnavailable", err)
	}

	// No stray log files left behind.
	entries, _ := os.ReadDir(workingDir)
	if len(entries) != 0 {
		t.Errorf("submit failure left %d files in working dir", len(entries))
	}
}

func TestLocalUnknownJob(t *testing.T) {
	t.Parallel()

	r := NewLocal(LocalConfig{})
	const id = JobID("424242")

	if _, err := r.IsRunning(context.Background(), id); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("IsRunning(unknown) = %v, want ErrNotFound", err)
	}
	if err := r.Terminate(context.Background(), id); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Terminate(unknown) = %v, want ErrNotFound", err)
	}
	if _, err := r.Name(id); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Name(unknown) = %v, want ErrNotFound", err)
	}
	if _, err := r.LogFile(id); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("LogFile(unknown) = %v, want ErrNotFound", err)
	}
}

func TestLocalTerminationEscalation(t *testing.T) {
	t.Parallel()
	workingDir := t.TempDir()

	// A shell that traps SIGTERM only dies to the SIGKILL escalation.
	r := NewLocal(LocalConfig{TerminateGrace: 200 * time.Millisecond})
	id, err := r.Submit(context.Background(), "stubborn", workingDir,
		"sh", "-c", "trap '' TERM; sleep 60")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Give the shell a moment to install its trap.
	time.Sleep(100 * time.Millisecond)

	if err := r.Terminate(context.Background(), id); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	testutil.MustWaitFor(t, func() bool {
		running, err := r.IsRunning(context.Background(), id)
		return err == nil && !running
	}, testutil.WithTimeout(5*time.Second))
}
