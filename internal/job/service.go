package job

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"jobrunner/internal/apperrors"
	"jobrunner/internal/observability"
	"jobrunner/internal/runner"
	"jobrunner/internal/watch"
)

// Validation limits
const (
	maxNameLength     = 128
	maxCommandLength  = 4096
	maxArgs           = 256
	maxArgLength      = 4096
	maxCallbackEvents = 16
)

// namePattern matches names safe to embed in scheduler arguments and log
// file names. Must not start with a digit, which some schedulers reject.
var namePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9._-]*$`)

// Service manages job lifecycle using a runner backend.
//
// The runner owns all per-job state (liveness, log paths); the Service keeps
// only a submission-ordered registry so that List and callback lookup work
// across the jobs this instance submitted.
type Service struct {
	runner  runner.Runner
	backend string
	watcher *watch.Watcher
	metrics *observability.Metrics

	mu      sync.Mutex
	order   []runner.JobID
	entries map[runner.JobID]entry
}

// entry is the registry record kept per submitted job.
type entry struct {
	name     string
	callback *watch.Callback
}

// NewService creates a new job service. The watcher and metrics may be nil.
func NewService(r runner.Runner, backend string, w *watch.Watcher, metrics *observability.Metrics) *Service {
	return &Service{
		runner:  r,
		backend: backend,
		watcher: w,
		metrics: metrics,
		entries: make(map[runner.JobID]entry),
	}
}

// Submit validates and starts a new job.
func (s *Service) Submit(ctx context.Context, req *Request) (*Response, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	logger := slog.With("name", req.Name, "backend", s.backend)

	id, err := s.runner.Submit(ctx, req.Name, req.WorkingDir, req.Command, req.Args...)
	if err != nil {
		logger.Error("Job failed to start", "error", err)
		return nil, err
	}

	s.mu.Lock()
	if _, ok := s.entries[id]; !ok {
		s.order = append(s.order, id)
	}
	s.entries[id] = entry{name: req.Name, callback: req.Callback}
	s.mu.Unlock()

	if s.watcher != nil {
		s.watcher.Track(id, req.Name, req.Callback)
	}
	if s.metrics != nil {
		s.metrics.RecordJobSubmitted(ctx, s.backend)
	}

	logger.Info("Job submitted", "jobId", id)

	return &Response{
		ID:     string(id),
		Status: StateAccepted,
	}, nil
}

// Get returns the status of a job.
func (s *Service) Get(ctx context.Context, jobID string) (*Status, error) {
	return s.status(ctx, runner.JobID(jobID))
}

// Terminate requests termination of a running job. A nil return means the
// request was accepted or the job had already finished, not that the job is
// gone yet.
func (s *Service) Terminate(ctx context.Context, jobID string) error {
	id := runner.JobID(jobID)
	logger := slog.With("jobId", jobID)

	if err := s.runner.Terminate(ctx, id); err != nil {
		logger.Error("Job termination failed", "error", err)
		return err
	}

	s.mu.Lock()
	e, known := s.entries[id]
	s.mu.Unlock()

	if known && s.watcher != nil {
		s.watcher.NotifyTerminated(id, e.name, e.callback)
	}
	if s.metrics != nil {
		s.metrics.RecordJobTerminated(ctx, s.backend)
	}

	logger.Info("Job termination requested")
	return nil
}

// List returns all jobs submitted through this service, in submission order.
func (s *Service) List(ctx context.Context) (*ListResponse, error) {
	s.mu.Lock()
	ids := append([]runner.JobID(nil), s.order...)
	s.mu.Unlock()

	jobs := make([]Status, 0, len(ids))
	for _, id := range ids {
		st, err := s.status(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *st)
	}
	return &ListResponse{Jobs: jobs}, nil
}

// status assembles a Status from the runner's per-job accessors.
func (s *Service) status(ctx context.Context, id runner.JobID) (*Status, error) {
	name, err := s.runner.Name(id)
	if err != nil {
		return nil, err
	}
	running, err := s.runner.IsRunning(ctx, id)
	if err != nil {
		return nil, err
	}
	logFile, err := s.runner.LogFile(id)
	if err != nil {
		return nil, err
	}
	errFile, err := s.runner.ErrFile(id)
	if err != nil {
		return nil, err
	}
	return &Status{
		ID:      string(id),
		Name:    name,
		Running: running,
		LogFile: logFile,
		ErrFile: errFile,
	}, nil
}

// validate validates a job request. Does not modify the request.
func (s *Service) validate(req *Request) error {
	if req.Name == "" {
		return apperrors.Validation("name", "job name is required")
	}
	if len(req.Name) > maxNameLength {
		return apperrors.Validation("name", fmt.Sprintf("job name exceeds maximum length of %d", maxNameLength))
	}
	if !namePattern.MatchString(req.Name) {
		return apperrors.Validation("name", "job name must start with a letter or underscore and contain only alphanumerics, dots, hyphens and underscores")
	}

	if req.Command == "" {
		return apperrors.Validation("command", "command is required")
	}
	if len(req.Command) > maxCommandLength {
		return apperrors.Validation("command", fmt.Sprintf("command exceeds maximum length of %d", maxCommandLength))
	}

	if req.WorkingDir == "" {
		return apperrors.Validation("workingDir", "working directory is required")
	}
	if !strings.HasPrefix(req.WorkingDir, "/") {
		return apperrors.Validation("workingDir", "working directory must be an absolute path")
	}

	if len(req.Args) > maxArgs {
		return apperrors.Validation("args", fmt.Sprintf("arguments exceed maximum of %d", maxArgs))
	}
	for i, a := range req.Args {
		if len(a) > maxArgLength {
			return apperrors.Validation("args", fmt.Sprintf("argument %d exceeds maximum length of %d", i, maxArgLength))
		}
	}

	if req.Callback != nil {
		if req.Callback.URL == "" {
			return apperrors.Validation("callback.url", "callback URL is required when a callback is set")
		}
		if err := validateURL(req.Callback.URL); err != nil {
			return apperrors.Validation("callback.url", fmt.Sprintf("invalid callback URL: %v", err))
		}
		if len(req.Callback.Events) > maxCallbackEvents {
			return apperrors.Validation("callback.events", fmt.Sprintf("callback events exceed maximum of %d", maxCallbackEvents))
		}
	}

	return nil
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
