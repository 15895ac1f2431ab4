package runner

import (
	"fmt"
	"path/filepath"
	"sync"

	"jobrunner/internal/apperrors"
)

// job is the record kept for one submitted unit of work. It is owned
// exclusively by the runner instance that created it and mutated only by
// that runner's bookkeeping.
type job struct {
	id         JobID
	name       string
	workingDir string
	logDir     string // captured at submission time
	logFile    string
	errFile    string // empty when stderr is joined into the log file

	finished bool          // latches: once true, never goes back
	done     chan struct{} // closed when finished latches
}

// jobTable is the bookkeeping helper composed into every backend: the
// id -> record map, the current log-directory setting, and log path
// resolution. All access is mutex-protected so a runner instance tolerates
// concurrent callers.
type jobTable struct {
	mu     sync.Mutex
	jobs   map[JobID]*job
	logDir string // overrides the working directory when non-empty
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[JobID]*job)}
}

// setLogDir changes the directory captured by subsequent add calls only.
func (t *jobTable) setLogDir(dir string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logDir = dir
}

// resolveLogDir returns the log directory a job submitted right now would
// use: the current override, or the job's own working directory.
func (t *jobTable) resolveLogDir(workingDir string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.logDir != "" {
		return t.logDir
	}
	return workingDir
}

// logPaths returns the deterministic log file names for a job: name plus
// the backend-specific identifier, with .o and .e suffixes matching the
// scheduler naming convention. The error path is empty when joined.
func logPaths(logDir, name string, id JobID, join bool) (logFile, errFile string) {
	logFile = filepath.Join(logDir, fmt.Sprintf("%s.o%s", name, id))
	if !join {
		errFile = filepath.Join(logDir, fmt.Sprintf("%s.e%s", name, id))
	}
	return logFile, errFile
}

// add registers a record under its id. Ids are backend-issued and unique
// per runner instance; a duplicate indicates identifier reuse.
func (t *jobTable) add(j *job) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.jobs[j.id]; exists {
		return apperrors.Conflict("job", string(j.id), fmt.Sprintf("job %s already exists", j.id))
	}
	j.done = make(chan struct{})
	t.jobs[j.id] = j
	return nil
}

// get returns the record for id, or a not-found error.
func (t *jobTable) get(id JobID) (*job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", string(id))
	}
	return j, nil
}

// running reports the finished latch for id.
func (t *jobTable) running(id JobID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return false, apperrors.NotFound("job", string(id))
	}
	return !j.finished, nil
}

// markFinished latches the record as finished. Idempotent.
func (t *jobTable) markFinished(id JobID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok || j.finished {
		return
	}
	j.finished = true
	close(j.done)
}

// name, logFile and errFile back the accessor methods every backend shares.

func (t *jobTable) name(id JobID) (string, error) {
	j, err := t.get(id)
	if err != nil {
		return "", err
	}
	return j.name, nil
}

func (t *jobTable) logFile(id JobID) (string, error) {
	j, err := t.get(id)
	if err != nil {
		return "", err
	}
	return j.logFile, nil
}

func (t *jobTable) errFile(id JobID) (string, error) {
	j, err := t.get(id)
	if err != nil {
		return "", err
	}
	return j.errFile, nil
}
