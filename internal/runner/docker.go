package runner

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"jobrunner/internal/apperrors"
)

// DockerConfig holds configuration for the container backend.
type DockerConfig struct {
	Image     string        // image every job runs in (required)
	JoinLogs  bool          // merge stderr into the log file
	StopGrace time.Duration // SIGTERM -> SIGKILL window passed to the daemon
}

// Docker runs commands inside containers on the local Docker daemon. The
// job identifier is the short container ID. The working directory is
// bind-mounted into the container and used as its working directory, so
// commands see the same paths as the local backend. Log files are written
// on the host once the container exits; like the batch backend, an accepted
// job may not have log files yet.
type Docker struct {
	client   *client.Client
	table    *jobTable
	image    string
	joinLogs bool
	grace    time.Duration
	logger   *slog.Logger
}

// NewDocker creates a container runner against the daemon configured in the
// environment.
func NewDocker(cfg DockerConfig) (*Docker, error) {
	if cfg.Image == "" {
		return nil, apperrors.Validation("image", "docker runner requires an image")
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apperrors.Unavailable("docker.client", err)
	}

	grace := cfg.StopGrace
	if grace <= 0 {
		grace = defaultTerminateGrace
	}

	return &Docker{
		client:   dockerClient,
		table:    newJobTable(),
		image:    cfg.Image,
		joinLogs: cfg.JoinLogs,
		grace:    grace,
		logger:   slog.With("component", "runner", "backend", "docker"),
	}, nil
}

// Image returns the image jobs run in.
func (d *Docker) Image() string { return d.image }

// JoinLogs reports whether stderr is merged into the log file.
func (d *Docker) JoinLogs() bool { return d.joinLogs }

// Submit creates and starts a container for the command.
func (d *Docker) Submit(ctx context.Context, name, workingDir, command string, args ...string) (JobID, error) {
	logDir := d.table.resolveLogDir(workingDir)

	resp, err := d.client.ContainerCreate(ctx,
		&container.Config{
			Image:      d.image,
			Cmd:        append([]string{command}, args...),
			WorkingDir: workingDir,
			Labels: map[string]string{
				"managed-by": "jobrunner",
				"job-name":   name,
			},
		},
		&container.HostConfig{
			Binds: []string{workingDir + ":" + workingDir},
		},
		nil, nil, "")
	if err != nil {
		return "", apperrors.Unavailable("docker.create", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		d.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
		return "", apperrors.Unavailable("docker.start", err)
	}

	id := JobID(resp.ID[:12])
	logFile, errFile := logPaths(logDir, name, id, d.joinLogs)
	j := &job{
		id:         id,
		name:       name,
		workingDir: workingDir,
		logDir:     logDir,
		logFile:    logFile,
		errFile:    errFile,
	}
	if err := d.table.add(j); err != nil {
		return "", err
	}

	d.logger.Info("Job submitted", "jobId", id, "name", name, "image", d.image)

	go d.reap(resp.ID, j)

	return id, nil
}

// reap waits for the container to exit, copies its output into the job's
// log files, latches the finished flag and removes the container.
func (d *Docker) reap(containerID string, j *job) {
	ctx := context.Background()

	waitCh, errCh := d.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case res := <-waitCh:
		d.logger.Debug("Job container exited", "jobId", j.id, "exitCode", res.StatusCode)
	case err := <-errCh:
		d.logger.Warn("Job container wait failed", "jobId", j.id, "error", err)
	}

	if err := d.writeLogs(ctx, containerID, j); err != nil {
		d.logger.Warn("Failed to capture job logs", "jobId", j.id, "error", err)
	}

	d.table.markFinished(j.id)

	if err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		d.logger.Warn("Failed to remove job container", "jobId", j.id, "error", err)
	}
}

// writeLogs demultiplexes the container's output streams into the job's
// log files on the host.
func (d *Docker) writeLogs(ctx context.Context, containerID string, j *job) error {
	rc, err := d.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return err
	}
	defer rc.Close()

	logF, err := os.Create(j.logFile)
	if err != nil {
		return err
	}
	defer logF.Close()

	errW := logF // joined: both streams land in the log file
	if j.errFile != "" {
		errF, err := os.Create(j.errFile)
		if err != nil {
			return err
		}
		defer errF.Close()
		errW = errF
	}

	_, err = stdcopy.StdCopy(logF, errW, rc)
	return err
}

// IsRunning reports whether the container has been reaped. Non-blocking.
func (d *Docker) IsRunning(ctx context.Context, id JobID) (bool, error) {
	return d.table.running(id)
}

// Terminate asks the daemon to stop the container; the daemon escalates
// from SIGTERM to SIGKILL after the grace period.
func (d *Docker) Terminate(ctx context.Context, id JobID) error {
	running, err := d.table.running(id)
	if err != nil {
		return err
	}
	if !running {
		return nil
	}

	timeout := int(d.grace.Seconds())
	if err := d.client.ContainerStop(ctx, string(id), container.StopOptions{Timeout: &timeout}); err != nil {
		if client.IsErrNotFound(err) {
			return nil // already gone, the reaper will latch shortly
		}
		return apperrors.Unavailable("docker.stop", err)
	}

	d.logger.Info("Job termination requested", "jobId", id, "grace", d.grace)
	return nil
}

// Name returns the label captured at submission.
func (d *Docker) Name(id JobID) (string, error) { return d.table.name(id) }

// LogFile returns the job's stdout log path.
func (d *Docker) LogFile(id JobID) (string, error) { return d.table.logFile(id) }

// ErrFile returns the job's stderr log path, or "" when logs are joined.
func (d *Docker) ErrFile(id JobID) (string, error) { return d.table.errFile(id) }

// SetLogDir changes the log directory for subsequently submitted jobs.
func (d *Docker) SetLogDir(dir string) { d.table.setLogDir(dir) }

// Ready reports whether the daemon is reachable.
func (d *Docker) Ready(ctx context.Context) error {
	if _, err := d.client.Ping(ctx); err != nil {
		return apperrors.Unavailable("docker.ready", err)
	}
	return nil
}

// Close releases the client. Running jobs are not stopped.
func (d *Docker) Close() error {
	return d.client.Close()
}

var _ Runner = (*Docker)(nil)
