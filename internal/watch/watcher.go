// Package watch packages the caller-side polling loop: it re-polls a
// runner's IsRunning under a backoff schedule and emits job lifecycle
// events when jobs complete. The runner itself stays non-blocking and
// notification-free; this is the bounded wait-and-retry layer on top.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"jobrunner/internal/dispatcher"
	"jobrunner/internal/runner"
)

// Job lifecycle event types.
const (
	EventTypeSubmitted  = "runner.job.submitted"
	EventTypeFinished   = "runner.job.finished"
	EventTypeTerminated = "runner.job.terminated"
)

// errStillRunning drives the retry schedule while a job is alive.
var errStillRunning = errors.New("job still running")

// Callback describes where a job's lifecycle events are delivered.
type Callback struct {
	URL    string   `json:"url"`
	Events []string `json:"events,omitempty"` // empty = all events
}

// wanted reports whether the event type passes the callback's filter.
func (c *Callback) wanted(eventType string) bool {
	if len(c.Events) == 0 {
		return true
	}
	return slices.Contains(c.Events, eventType)
}

// Config holds watcher configuration.
type Config struct {
	Source          string        // event source URI (e.g. "/runner-service")
	SigningKey      string        // HMAC key for callback signing, empty = unsigned
	InitialInterval time.Duration // first poll delay (default 500ms)
	MaxInterval     time.Duration // poll delay cap (default 10s)

	// OnFinished, when set, is invoked once per tracked job after polling
	// observes it gone, with the elapsed wall-clock time since Track.
	OnFinished func(id runner.JobID, name string, elapsed time.Duration)
}

// Watcher polls tracked jobs until they finish and dispatches lifecycle
// events to their callbacks.
type Watcher struct {
	runner     runner.Runner
	dispatcher dispatcher.Dispatcher
	cfg        Config
	logger     *slog.Logger

	active atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher over the given runner. Events go through the
// dispatcher, which may be nil when no callbacks are ever used.
func New(r runner.Runner, d dispatcher.Dispatcher, cfg Config) *Watcher {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	if cfg.Source == "" {
		cfg.Source = "/runner-service"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		runner:     r,
		dispatcher: d,
		cfg:        cfg,
		logger:     slog.With("component", "watch"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Active returns the number of jobs currently being polled.
func (w *Watcher) Active() int64 {
	return w.active.Load()
}

// Track starts polling the job until it stops running, emitting submitted
// and finished events to the callback (when set and not filtered out).
func (w *Watcher) Track(id runner.JobID, name string, cb *Callback) {
	w.emit(id, cb, EventTypeSubmitted, map[string]any{
		"jobId": string(id),
		"name":  name,
	})

	start := time.Now()
	w.active.Add(1)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.active.Add(-1)

		if err := w.pollUntilDone(id); err != nil {
			if w.ctx.Err() == nil {
				w.logger.Warn("Stopped watching job", "jobId", id, "error", err)
			}
			return
		}

		logFile, _ := w.runner.LogFile(id)
		errFile, _ := w.runner.ErrFile(id)
		w.logger.Info("Job finished", "jobId", id, "name", name)
		if w.cfg.OnFinished != nil {
			w.cfg.OnFinished(id, name, time.Since(start))
		}
		w.emit(id, cb, EventTypeFinished, map[string]any{
			"jobId":   string(id),
			"name":    name,
			"logFile": logFile,
			"errFile": errFile,
		})
	}()
}

// NotifyTerminated emits a terminated event for a job whose stop request
// was accepted. The finished event still follows once polling observes the
// job gone.
func (w *Watcher) NotifyTerminated(id runner.JobID, name string, cb *Callback) {
	w.emit(id, cb, EventTypeTerminated, map[string]any{
		"jobId": string(id),
		"name":  name,
	})
}

// pollUntilDone re-polls IsRunning under the backoff schedule until the job
// reports not running, the watcher shuts down, or the query fails.
func (w *Watcher) pollUntilDone(id runner.JobID) error {
	operation := func() error {
		running, err := w.runner.IsRunning(w.ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		if running {
			return errStillRunning
		}
		return nil
	}

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = w.cfg.InitialInterval
	schedule.MaxInterval = w.cfg.MaxInterval
	schedule.MaxElapsedTime = 0 // jobs may legitimately run for days

	return backoff.Retry(operation, backoff.WithContext(schedule, w.ctx))
}

// emit builds and dispatches one lifecycle event, honoring the callback's
// event filter.
func (w *Watcher) emit(id runner.JobID, cb *Callback, eventType string, data map[string]any) {
	if w.dispatcher == nil || cb == nil || cb.URL == "" || !cb.wanted(eventType) {
		return
	}
	if err := w.dispatcher.Dispatch(&dispatcher.Event{
		Payload:     newEvent(eventType, w.cfg.Source, string(id), data),
		Destination: cb.URL,
		SigningKey:  w.cfg.SigningKey,
	}); err != nil {
		w.logger.Warn("Failed to dispatch event", "jobId", id, "type", eventType, "error", err)
	}
}

// Close stops polling all tracked jobs and waits for the poll goroutines
// to exit. The jobs themselves keep running.
func (w *Watcher) Close() {
	w.cancel()
	w.wg.Wait()
}
