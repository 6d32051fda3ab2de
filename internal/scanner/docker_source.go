package scanner

import (
	"bufio"
	"context"
	"strings"
	"sync"

	"logvault/pkg/types"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"
)

// DockerSource is a supplemental C5 ingestion path: it follows a
// container's stdout/stderr the same way a directory worker follows a
// file, submitting each line into the same buffer sink.
type DockerSource struct {
	cfg    types.ContainerSourceConfig
	submit Submit
	logger *logrus.Logger

	mu       sync.Mutex
	cli      *client.Client
	cancels  map[string]context.CancelFunc
}

// NewDockerSource connects to the daemon at cfg.SocketPath (or the
// environment default when empty).
func NewDockerSource(cfg types.ContainerSourceConfig, submit Submit, logger *logrus.Logger) (*DockerSource, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.SocketPath != "" {
		opts = append(opts, client.WithHost(cfg.SocketPath))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}
	return &DockerSource{cfg: cfg, submit: submit, logger: logger, cli: cli, cancels: make(map[string]context.CancelFunc)}, nil
}

// Run discovers matching containers and follows each until ctx is
// cancelled, re-scanning the container list periodically would be the
// caller's responsibility via repeated calls.
func (d *DockerSource) Run(ctx context.Context) error {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return err
	}

	for _, c := range containers {
		name := strings.TrimPrefix(firstOrEmpty(c.Names), "/")
		if !d.included(name) {
			continue
		}
		d.mu.Lock()
		if _, already := d.cancels[c.ID]; already {
			d.mu.Unlock()
			continue
		}
		followCtx, cancel := context.WithCancel(ctx)
		d.cancels[c.ID] = cancel
		d.mu.Unlock()

		go d.follow(followCtx, c.ID, name)
	}
	return nil
}

func (d *DockerSource) follow(ctx context.Context, containerID, name string) {
	opts := container.LogsOptions{
		ShowStdout: d.cfg.IncludeStdout,
		ShowStderr: d.cfg.IncludeStderr,
		Follow:     true,
		Timestamps: true,
	}
	out, err := d.cli.ContainerLogs(ctx, containerID, opts)
	if err != nil {
		d.logger.WithError(err).WithField("container", name).Warn("container log stream failed")
		return
	}
	defer out.Close()

	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		line := stripDockerMultiplexHeader(scanner.Text())
		rec := parseLine(name, line)
		if err := d.submit(ctx, rec); err != nil {
			return
		}
	}
}

func (d *DockerSource) included(name string) bool {
	if len(d.cfg.IncludeNames) > 0 {
		found := false
		for _, n := range d.cfg.IncludeNames {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, n := range d.cfg.ExcludeNames {
		if n == name {
			return false
		}
	}
	return true
}

func firstOrEmpty(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// stripDockerMultiplexHeader removes the 8-byte stream-multiplex header
// the daemon prepends to each frame when not attached to a TTY; scanning
// line-by-line through bufio.Scanner already consumed the length field,
// so only a residual non-printable prefix needs trimming here.
func stripDockerMultiplexHeader(line string) string {
	for len(line) > 0 && line[0] < 0x20 {
		line = line[1:]
	}
	return line
}

// Close stops following every container.
func (d *DockerSource) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cancel := range d.cancels {
		cancel()
	}
}
