package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"jobrunner/internal/apperrors"
)

// Default Grid Engine CLI command names.
const (
	defaultSubmitCmd = "qsub"
	defaultStatusCmd = "qstat"
	defaultDeleteCmd = "qdel"
)

// submitAckPattern extracts the job number from the scheduler's submission
// acknowledgment, e.g. `Your job 12345 ("test") has been submitted`.
var submitAckPattern = regexp.MustCompile(`Your job (\d+)`)

// GridEngineConfig holds configuration for the batch scheduler backend.
type GridEngineConfig struct {
	// ExtraArgs are appended verbatim to every submit invocation, e.g.
	// a resource request ("-l", "short") or the stream-join flag ("-j", "y").
	ExtraArgs []string

	// CLI command overrides, defaulting to qsub/qstat/qdel. Tests point
	// these at stand-ins.
	SubmitCmd string
	StatusCmd string
	DeleteCmd string
}

// GridEngine submits commands to a Grid Engine batch scheduler and polls
// their status through the scheduler's CLI. The job identifier is the
// scheduler-assigned job number. The scheduler creates the log files
// asynchronously once a job actually runs, so an accepted job may not have
// log files yet.
type GridEngine struct {
	table     *jobTable
	extraArgs []string
	submitCmd string
	statusCmd string
	deleteCmd string
	logger    *slog.Logger
}

// NewGridEngine creates a batch scheduler runner.
func NewGridEngine(cfg GridEngineConfig) *GridEngine {
	g := &GridEngine{
		table:     newJobTable(),
		extraArgs: append([]string(nil), cfg.ExtraArgs...),
		submitCmd: cfg.SubmitCmd,
		statusCmd: cfg.StatusCmd,
		deleteCmd: cfg.DeleteCmd,
		logger:    slog.With("component", "runner", "backend", "gridengine"),
	}
	if g.submitCmd == "" {
		g.submitCmd = defaultSubmitCmd
	}
	if g.statusCmd == "" {
		g.statusCmd = defaultStatusCmd
	}
	if g.deleteCmd == "" {
		g.deleteCmd = defaultDeleteCmd
	}
	return g
}

// ExtraArgs returns the scheduler arguments configured at construction.
func (g *GridEngine) ExtraArgs() []string {
	return append([]string(nil), g.extraArgs...)
}

// JoinLogs reports whether the configured extra arguments join stderr into
// the log stream (the scheduler's "-j y" flag).
func (g *GridEngine) JoinLogs() bool {
	for i, arg := range g.extraArgs {
		if arg == "-j" && i+1 < len(g.extraArgs) {
			switch strings.ToLower(g.extraArgs[i+1]) {
			case "y", "yes":
				return true
			}
		}
	}
	return false
}

// Submit builds and runs the scheduler submission command and extracts the
// job number from its acknowledgment output.
func (g *GridEngine) Submit(ctx context.Context, name, workingDir, command string, args ...string) (JobID, error) {
	logDir := g.table.resolveLogDir(workingDir)

	argv := []string{
		"-b", "y", // binary mode: submit the command itself, not a script
		"-V", // export the submission environment
		"-N", name,
		"-wd", workingDir,
		"-o", logDir,
		"-e", logDir,
	}
	argv = append(argv, g.extraArgs...)
	argv = append(argv, command)
	argv = append(argv, args...)

	out, err := exec.CommandContext(ctx, g.submitCmd, argv...).CombinedOutput()
	if err != nil {
		return "", apperrors.Unavailable("gridengine.submit", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}

	m := submitAckPattern.FindSubmatch(out)
	if m == nil {
		return "", apperrors.Internal("gridengine.submit", fmt.Errorf("unrecognized acknowledgment %q", strings.TrimSpace(string(out))))
	}
	id := JobID(m[1])

	join := g.JoinLogs()
	logFile, errFile := logPaths(logDir, name, id, join)
	j := &job{
		id:         id,
		name:       name,
		workingDir: workingDir,
		logDir:     logDir,
		logFile:    logFile,
		errFile:    errFile,
	}
	if err := g.table.add(j); err != nil {
		return "", err
	}

	g.logger.Info("Job submitted", "jobId", id, "name", name, "command", command)
	return id, nil
}

// IsRunning queries the scheduler's status listing and checks whether the
// job number appears among active or pending entries. Once a job is gone
// from the listing it is latched as finished and never reported running
// again.
func (g *GridEngine) IsRunning(ctx context.Context, id JobID) (bool, error) {
	running, err := g.table.running(id)
	if err != nil || !running {
		return false, err
	}

	out, err := exec.CommandContext(ctx, g.statusCmd).Output()
	if err != nil {
		return false, apperrors.Unavailable("gridengine.status", err)
	}

	if statusListingContains(out, string(id)) {
		return true, nil
	}
	g.table.markFinished(id)
	g.logger.Debug("Job left scheduler queue", "jobId", id)
	return false, nil
}

// statusListingContains scans qstat-style tabular output for a job number
// in the first column, skipping the header and separator lines.
func statusListingContains(out []byte, id string) bool {
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] == "job-ID" || strings.HasPrefix(fields[0], "---") {
			continue
		}
		if fields[0] == id {
			return true
		}
	}
	return false
}

// Terminate invokes the scheduler's deletion command for the job. The
// scheduler kills the job asynchronously; callers re-poll IsRunning to
// confirm the effect.
func (g *GridEngine) Terminate(ctx context.Context, id JobID) error {
	running, err := g.table.running(id)
	if err != nil {
		return err
	}
	if !running {
		return nil
	}

	out, err := exec.CommandContext(ctx, g.deleteCmd, string(id)).CombinedOutput()
	if err != nil {
		return apperrors.Unavailable("gridengine.delete", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}

	g.logger.Info("Job deletion requested", "jobId", id)
	return nil
}

// Name returns the label captured at submission.
func (g *GridEngine) Name(id JobID) (string, error) { return g.table.name(id) }

// LogFile returns the path where the scheduler writes the job's stdout.
func (g *GridEngine) LogFile(id JobID) (string, error) { return g.table.logFile(id) }

// ErrFile returns the path where the scheduler writes the job's stderr, or
// "" when the extra arguments join the streams.
func (g *GridEngine) ErrFile(id JobID) (string, error) { return g.table.errFile(id) }

// SetLogDir changes the log directory for subsequently submitted jobs.
func (g *GridEngine) SetLogDir(dir string) { g.table.setLogDir(dir) }

// Ready reports whether the scheduler CLI is reachable.
func (g *GridEngine) Ready(ctx context.Context) error {
	if _, err := exec.LookPath(g.statusCmd); err != nil {
		return apperrors.Unavailable("gridengine.ready", err)
	}
	return nil
}

var _ Runner = (*GridEngine)(nil)
