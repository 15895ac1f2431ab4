package runner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"jobrunner/internal/apperrors"
)

// defaultTerminateGrace is how long a terminated process gets to exit after
// SIGTERM before the whole process group is SIGKILLed.
const defaultTerminateGrace = 5 * time.Second

// LocalConfig holds configuration for the local process backend.
type LocalConfig struct {
	JoinLogs       bool          // merge stderr into the log file
	TerminateGrace time.Duration // SIGTERM -> SIGKILL escalation window (default 5s)
}

// Local executes commands as child processes on the local host. The job
// identifier is the process ID.
type Local struct {
	table    *jobTable
	joinLogs bool
	grace    time.Duration
	logger   *slog.Logger
}

// NewLocal creates a local process runner.
func NewLocal(cfg LocalConfig) *Local {
	grace := cfg.TerminateGrace
	if grace <= 0 {
		grace = defaultTerminateGrace
	}
	return &Local{
		table:    newJobTable(),
		joinLogs: cfg.JoinLogs,
		grace:    grace,
		logger:   slog.With("component", "runner", "backend", "local"),
	}
}

// JoinLogs reports whether stderr is merged into the log file.
func (l *Local) JoinLogs() bool { return l.joinLogs }

// Submit starts the command as a child process with stdout/stderr redirected
// into log files in the resolved log directory. The context covers the
// submission only; the spawned process outlives it.
func (l *Local) Submit(ctx context.Context, name, workingDir, command string, args ...string) (JobID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	logDir := l.table.resolveLogDir(workingDir)

	cmd := exec.Command(command, args...)
	cmd.Dir = workingDir
	// Own process group so Terminate can signal the command and any
	// children it spawns in one go.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// The deterministic log names need the pid, which is only known after
	// the process starts. Open uniquely-named files first and rename them
	// once the pid is known; the open handles follow the rename.
	logF, err := os.CreateTemp(logDir, name+".o.*")
	if err != nil {
		return "", apperrors.Unavailable("local.logfile", err)
	}
	var errF *os.File
	cmd.Stdout = logF
	if l.joinLogs {
		cmd.Stderr = logF
	} else {
		if errF, err = os.CreateTemp(logDir, name+".e.*"); err != nil {
			logF.Close()
			os.Remove(logF.Name())
			return "", apperrors.Unavailable("local.errfile", err)
		}
		cmd.Stderr = errF
	}

	if err := cmd.Start(); err != nil {
		logF.Close()
		os.Remove(logF.Name())
		if errF != nil {
			errF.Close()
			os.Remove(errF.Name())
		}
		return "", apperrors.Unavailable("local.start", err)
	}

	pid := cmd.Process.Pid
	id := JobID(strconv.Itoa(pid))

	logFile, errFile := logPaths(logDir, name, id, l.joinLogs)
	if err := os.Rename(logF.Name(), logFile); err != nil {
		logFile = logF.Name()
	}
	if errF != nil {
		if err := os.Rename(errF.Name(), errFile); err != nil {
			errFile = errF.Name()
		}
	}

	j := &job{
		id:         id,
		name:       name,
		workingDir: workingDir,
		logDir:     logDir,
		logFile:    logFile,
		errFile:    errFile,
	}
	if err := l.table.add(j); err != nil {
		return "", err
	}

	l.logger.Info("Job submitted", "jobId", id, "name", name, "command", command)

	// Reap the process: release file handles and latch the finished flag
	// on every exit path.
	go func() {
		err := cmd.Wait()
		logF.Close()
		if errF != nil {
			errF.Close()
		}
		l.table.markFinished(id)
		l.logger.Debug("Job finished", "jobId", id, "name", name, "waitErr", err)
	}()

	return id, nil
}

// IsRunning reports the reaped state of the process. Non-blocking.
func (l *Local) IsRunning(ctx context.Context, id JobID) (bool, error) {
	return l.table.running(id)
}

// Terminate sends SIGTERM to the job's process group and escalates to
// SIGKILL if it is still alive after the grace period. The escalation runs
// asynchronously; Terminate itself does not wait for the job to exit.
func (l *Local) Terminate(ctx context.Context, id JobID) error {
	j, err := l.table.get(id)
	if err != nil {
		return err
	}
	if running, _ := l.table.running(id); !running {
		return nil
	}

	pid, err := strconv.Atoi(string(id))
	if err != nil {
		return apperrors.Internal("local.terminate", err)
	}

	// Setpgid at start makes the pgid equal the pid.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil // already gone, the reaper will latch shortly
		}
		return apperrors.Internal("local.terminate", err)
	}

	l.logger.Info("Job termination requested", "jobId", id, "grace", l.grace)

	go func() {
		select {
		case <-j.done:
		case <-time.After(l.grace):
			syscall.Kill(-pid, syscall.SIGKILL)
			l.logger.Warn("Job killed after grace period", "jobId", id)
		}
	}()

	return nil
}

// Name returns the label captured at submission.
func (l *Local) Name(id JobID) (string, error) { return l.table.name(id) }

// LogFile returns the job's stdout log path.
func (l *Local) LogFile(id JobID) (string, error) { return l.table.logFile(id) }

// ErrFile returns the job's stderr log path, or "" when logs are joined.
func (l *Local) ErrFile(id JobID) (string, error) { return l.table.errFile(id) }

// SetLogDir changes the log directory for subsequently submitted jobs.
func (l *Local) SetLogDir(dir string) { l.table.setLogDir(dir) }

// Ready implements the health check; the local backend is always ready.
func (l *Local) Ready(ctx context.Context) error { return nil }

var _ Runner = (*Local)(nil)
