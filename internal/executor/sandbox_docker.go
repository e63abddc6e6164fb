package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

// dockerBackend runs each prover invocation in a fresh, disposable
// container started from the prover's Image. timeoutS is enforced by a
// context deadline on the container wait; memoryMB is set as a container
// memory limit on top of the ulimit -v prefix buildCommand adds. Adapted from the teacher's container-pinned
// worker orchestration (ContainerCreate/ContainerStart against a
// *client.Client), repurposed here for one-shot, wait-to-completion runs
// instead of long-lived pinned workers.
type dockerBackend struct {
	cli *client.Client
	log *zap.SugaredLogger
}

func newDockerBackend(log *zap.SugaredLogger) (*dockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("executor: docker client: %w", err)
	}
	return &dockerBackend{cli: cli, log: log}, nil
}

func (b *dockerBackend) run(prover protocol.Prover, problem protocol.Problem, timeoutS float64, memoryMB int) (protocol.RawMeasurement, bool, error) {
	if prover.Image == "" {
		return protocol.RawMeasurement{}, false, fmt.Errorf("prover %q has no image for the docker sandbox", prover.Name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutS*float64(time.Second))+watchdogEpsilon)
	defer cancel()

	command := buildCommand(prover, "/problem", timeoutS, memoryMB)

	cfg := &container.Config{
		Image:      prover.Image,
		Cmd:        []string{"sh", "-c", command},
		WorkingDir: "/",
	}
	hostCfg := &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:/problem:ro", problem.Path)},
		Resources: container.Resources{
			Memory: int64(memoryMB) * 1024 * 1024,
		},
		AutoRemove: false,
	}

	resp, err := b.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return protocol.RawMeasurement{}, false, fmt.Errorf("container create: %w", err)
	}
	defer func() {
		if err := b.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true}); err != nil {
			b.log.Warnw("executor: docker container cleanup failed", "container", resp.ID, "err", err)
		}
	}()

	start := time.Now()
	if err := b.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return protocol.RawMeasurement{}, false, fmt.Errorf("container start: %w", err)
	}

	statusCh, errCh := b.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	watchdogFired := false
	errcode := 0
	select {
	case err := <-errCh:
		if err != nil && ctx.Err() != nil {
			watchdogFired = true
		} else if err != nil {
			return protocol.RawMeasurement{}, false, fmt.Errorf("container wait: %w", err)
		}
	case status := <-statusCh:
		errcode = int(status.StatusCode)
	case <-ctx.Done():
		watchdogFired = true
	}
	realTime := time.Since(start)

	stdout, stderr := b.collectLogs(resp.ID)

	raw := protocol.RawMeasurement{
		Stdout:   stdout,
		Stderr:   stderr,
		ErrCode:  errcode,
		RealTime: realTime,
	}
	return raw, watchdogFired, nil
}

// collectLogs reads the container's combined, demultiplexed stdout/stderr.
// Failures here are not propagated as run errors: the run already
// completed (or timed out), and a missing log is not grounds to discard an
// otherwise valid classification.
func (b *dockerBackend) collectLogs(containerID string) (string, string) {
	rc, err := b.cli.ContainerLogs(context.Background(), containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		b.log.Warnw("executor: docker log fetch failed", "container", containerID, "err", err)
		return "", ""
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil && err != io.EOF {
		b.log.Warnw("executor: docker log demux failed", "container", containerID, "err", err)
	}
	return stdout.String(), stderr.String()
}
