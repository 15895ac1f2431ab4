// Package runner provides a uniform abstraction for launching external
// commands as asynchronous jobs and monitoring and controlling them,
// regardless of whether a job runs as a local child process, is submitted
// to a Grid Engine batch scheduler, or runs inside a Docker container.
//
// # Contract
//
// A Runner never waits for a job to reach a terminal state inside Submit,
// IsRunning or Terminate. Completion is only discoverable by re-polling
// IsRunning; callers implement their own bounded polling loop (see the
// watch package for a packaged one).
//
// # Job identifiers
//
// Submit returns an opaque JobID. Its representation is backend-specific
// (process ID, scheduler job number, container ID) and callers must treat
// it as uninterpretable outside the runner instance that issued it. IDs
// are unique only within the lifetime of the owning runner; nothing is
// persisted across restarts.
//
// # Log files
//
// Each job's captured stdout is written to <name>.o<id> and its stderr to
// <name>.e<id>, under the log directory in effect at the moment of
// submission (the job's working directory unless SetLogDir was called).
// When a runner joins stderr into the log stream, only the .o file exists
// and ErrFile returns the empty string. Batch and container backends
// create these files asynchronously; a job may be accepted before its log
// files exist.
package runner

import "context"

// JobID is an opaque handle for a submitted job.
type JobID string

// Runner is the capability contract shared by all backends.
type Runner interface {
	// Submit starts or enqueues the command with the given arguments, using
	// workingDir as the execution context. It returns an opaque job
	// identifier, or an execution-unavailable error when the underlying
	// mechanism cannot be invoked.
	Submit(ctx context.Context, name, workingDir, command string, args ...string) (JobID, error)

	// IsRunning reports whether the job is still active. It never blocks
	// waiting for the job to finish, and per id the transition from running
	// to not-running is monotonic. Unknown ids yield a not-found error.
	IsRunning(ctx context.Context, id JobID) (bool, error)

	// Terminate requests that the job be stopped. It is idempotent:
	// terminating a job that already finished returns nil. A nil return
	// means the stop request was accepted, not that the job is already
	// gone; callers should re-poll IsRunning to confirm.
	Terminate(ctx context.Context, id JobID) error

	// Name returns the caller-supplied label captured at submission.
	Name(id JobID) (string, error)

	// LogFile returns the resolved path of the job's captured stdout.
	LogFile(id JobID) (string, error)

	// ErrFile returns the resolved path of the job's captured stderr, or
	// the empty string when stderr is joined into the log file.
	ErrFile(id JobID) (string, error)

	// SetLogDir changes the directory used for subsequently submitted jobs.
	// Jobs already submitted keep the log locations captured at their
	// submission time.
	SetLogDir(dir string)
}
