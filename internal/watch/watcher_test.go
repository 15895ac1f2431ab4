package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jobrunner/internal/apperrors"
	"jobrunner/internal/dispatcher"
	"jobrunner/internal/runner"
	"jobrunner/internal/testutil"
)

// fakeRunner lets tests script how many polls a job survives.
type fakeRunner struct {
	mu        sync.Mutex
	pollsLeft map[runner.JobID]int
	failPoll  bool
	polls     int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{pollsLeft: make(map[runner.JobID]int)}
}

func (f *fakeRunner) Submit(ctx context.Context, name, workingDir, command string, args ...string) (runner.JobID, error) {
	return "fake-1", nil
}

func (f *fakeRunner) IsRunning(ctx context.Context, id runner.JobID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPoll {
		return false, apperrors.Internal("status query failed", nil)
	}
	f.polls++
	if f.pollsLeft[id] > 0 {
		f.pollsLeft[id]--
		return true, nil
	}
	return false, nil
}

func (f *fakeRunner) Terminate(ctx context.Context, id runner.JobID) error { return nil }
func (f *fakeRunner) Name(id runner.JobID) (string, error)                 { return "fake", nil }
func (f *fakeRunner) LogFile(id runner.JobID) (string, error) {
	return "/logs/fake.o" + string(id), nil
}
func (f *fakeRunner) ErrFile(id runner.JobID) (string, error) {
	return "/logs/fake.e" + string(id), nil
}
func (f *fakeRunner) SetLogDir(dir string) {}

func (f *fakeRunner) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// fakeDispatcher records events instead of delivering them.
type fakeDispatcher struct {
	mu     sync.Mutex
	events []*dispatcher.Event
}

func (f *fakeDispatcher) Dispatch(e *dispatcher.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeDispatcher) Close(ctx context.Context) error { return nil }
func (f *fakeDispatcher) Stats() dispatcher.Stats {
	return dispatcher.Stats{}
}

func (f *fakeDispatcher) recorded() []*dispatcher.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*dispatcher.Event(nil), f.events...)
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func testConfig() Config {
	return Config{
		Source:          "/runner-service",
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
	}
}

func eventTypes(events []*dispatcher.Event) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Payload.Type
	}
	return types
}

func TestWatcherEmitsSubmittedAndFinished(t *testing.T) {
	t.Parallel()

	r := newFakeRunner()
	r.pollsLeft["job-1"] = 2
	d := &fakeDispatcher{}
	w := New(r, d, testConfig())
	defer w.Close()

	cb := &Callback{URL: "http://callback.test/hook"}
	w.Track("job-1", "test", cb)

	testutil.MustWaitForN(t, d.count, 2)

	events := d.recorded()
	if events[0].Payload.Type != EventTypeSubmitted {
		t.Errorf("first event type = %q, want %q", events[0].Payload.Type, EventTypeSubmitted)
	}
	if events[1].Payload.Type != EventTypeFinished {
		t.Errorf("second event type = %q, want %q", events[1].Payload.Type, EventTypeFinished)
	}
	for _, e := range events {
		if e.Destination != cb.URL {
			t.Errorf("event destination = %q, want %q", e.Destination, cb.URL)
		}
		if e.Payload.Subject != "job-1" {
			t.Errorf("event subject = %q, want %q", e.Payload.Subject, "job-1")
		}
		if e.Payload.Data["name"] != "test" {
			t.Errorf("event name = %v, want %q", e.Payload.Data["name"], "test")
		}
	}
	if got := events[1].Payload.Data["logFile"]; got != "/logs/fake.ojob-1" {
		t.Errorf("finished event logFile = %v, want %q", got, "/logs/fake.ojob-1")
	}
	if r.pollCount() < 3 {
		t.Errorf("poll count = %d, want at least 3", r.pollCount())
	}
}

func TestWatcherEventFilter(t *testing.T) {
	t.Parallel()

	r := newFakeRunner()
	d := &fakeDispatcher{}
	w := New(r, d, testConfig())
	defer w.Close()

	cb := &Callback{URL: "http://callback.test/hook", Events: []string{EventTypeFinished}}
	w.Track("job-1", "test", cb)

	testutil.MustWaitForN(t, d.count, 1)

	events := d.recorded()
	if events[0].Payload.Type != EventTypeFinished {
		t.Errorf("event types = %v, want only %q", eventTypes(events), EventTypeFinished)
	}
}

func TestWatcherNoCallback(t *testing.T) {
	t.Parallel()

	r := newFakeRunner()
	r.pollsLeft["job-1"] = 1
	d := &fakeDispatcher{}
	w := New(r, d, testConfig())
	defer w.Close()

	w.Track("job-1", "test", nil)

	testutil.MustWaitFor(t, func() bool { return w.Active() == 0 })

	if d.count() != 0 {
		t.Errorf("dispatched %d events without a callback, want 0", d.count())
	}
}

func TestWatcherNotifyTerminated(t *testing.T) {
	t.Parallel()

	r := newFakeRunner()
	d := &fakeDispatcher{}
	w := New(r, d, testConfig())
	defer w.Close()

	cb := &Callback{URL: "http://callback.test/hook", Events: []string{EventTypeTerminated}}
	w.NotifyTerminated("job-1", "test", cb)

	testutil.MustWaitForN(t, d.count, 1)

	events := d.recorded()
	if events[0].Payload.Type != EventTypeTerminated {
		t.Errorf("event type = %q, want %q", events[0].Payload.Type, EventTypeTerminated)
	}
}

func TestWatcherCloseStopsPolling(t *testing.T) {
	t.Parallel()

	r := newFakeRunner()
	r.pollsLeft["job-1"] = 1 << 30 // effectively forever
	d := &fakeDispatcher{}
	w := New(r, d, testConfig())

	w.Track("job-1", "test", &Callback{URL: "http://callback.test/hook"})

	testutil.MustWaitForN(t, d.count, 1) // submitted event
	w.Close()

	if got := w.Active(); got != 0 {
		t.Errorf("active after close = %d, want 0", got)
	}
	for _, e := range d.recorded() {
		if e.Payload.Type == EventTypeFinished {
			t.Error("finished event emitted for a job that never finished")
		}
	}
}

func TestWatcherPollErrorStopsTracking(t *testing.T) {
	t.Parallel()

	r := newFakeRunner()
	r.failPoll = true
	d := &fakeDispatcher{}
	w := New(r, d, testConfig())
	defer w.Close()

	w.Track("job-1", "test", nil)

	testutil.MustWaitFor(t, func() bool { return w.Active() == 0 })

	if d.count() != 0 {
		t.Errorf("dispatched %d events after poll failure, want 0", d.count())
	}
}

func TestWatcherOnFinishedHook(t *testing.T) {
	t.Parallel()

	r := newFakeRunner()
	r.pollsLeft["job-1"] = 1
	d := &fakeDispatcher{}

	var finished atomic.Int64
	cfg := testConfig()
	cfg.OnFinished = func(id runner.JobID, name string, elapsed time.Duration) {
		if id == "job-1" && name == "test" && elapsed > 0 {
			finished.Add(1)
		}
	}
	w := New(r, d, cfg)
	defer w.Close()

	w.Track("job-1", "test", nil)

	testutil.MustWaitForCount(t, &finished, 1)
}

func TestCallbackWanted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		filter    []string
		eventType string
		want      bool
	}{
		{"empty filter accepts all", nil, EventTypeFinished, true},
		{"listed type accepted", []string{EventTypeFinished}, EventTypeFinished, true},
		{"unlisted type rejected", []string{EventTypeFinished}, EventTypeSubmitted, false},
		{"multiple types", []string{EventTypeSubmitted, EventTypeTerminated}, EventTypeTerminated, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cb := &Callback{URL: "http://callback.test", Events: tt.filter}
			if got := cb.wanted(tt.eventType); got != tt.want {
				t.Errorf("wanted(%q) = %v, want %v", tt.eventType, got, tt.want)
			}
		})
	}
}
