package runner

import (
	"errors"
	"path/filepath"
	"testing"

	"jobrunner/internal/apperrors"
)

func TestLogPaths(t *testing.T) {
	t.Parallel()

	logFile, errFile := logPaths("/data/logs", "align", "12345", false)
	if want := filepath.Join("/data/logs", "align.o12345"); logFile != want {
		t.Errorf("logFile = %s, want %s", logFile, want)
	}
	if want := filepath.Join("/data/logs", "align.e12345"); errFile != want {
		t.Errorf("errFile = %s, want %s", errFile, want)
	}

	logFile, errFile = logPaths("/data/logs", "align", "12345", true)
	if errFile != "" {
		t.Errorf("errFile = %q with joined logs, want empty", errFile)
	}
	if logFile == "" {
		t.Error("logFile empty with joined logs")
	}
}

func TestJobTableResolveLogDir(t *testing.T) {
	t.Parallel()

	table := newJobTable()
	if got := table.resolveLogDir("/work"); got != "/work" {
		t.Errorf("default resolveLogDir = %s, want working dir", got)
	}

	table.setLogDir("/logs")
	if got := table.resolveLogDir("/work"); got != "/logs" {
		t.Errorf("resolveLogDir after SetLogDir = %s, want /logs", got)
	}

	table.setLogDir("")
	if got := table.resolveLogDir("/work"); got != "/work" {
		t.Errorf("resolveLogDir after reset = %s, want working dir", got)
	}
}

func TestJobTableLifecycle(t *testing.T) {
	t.Parallel()

	table := newJobTable()
	j := &job{id: "1", name: "test"}
	if err := table.add(j); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := table.add(&job{id: "1"}); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("duplicate add = %v, want ErrConflict", err)
	}

	running, err := table.running("1")
	if err != nil || !running {
		t.Errorf("running = %v, %v, want true", running, err)
	}

	table.markFinished("1")
	if running, _ := table.running("1"); running {
		t.Error("running after markFinished")
	}
	select {
	case <-j.done:
	default:
		t.Error("done channel not closed by markFinished")
	}

	// Idempotent: a second markFinished must not panic on the closed channel.
	table.markFinished("1")

	if _, err := table.get("2"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("get(unknown) = %v, want ErrNotFound", err)
	}
	table.markFinished("2") // unknown id is a no-op
}
