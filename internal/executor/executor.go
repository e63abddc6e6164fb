// Package executor runs external prover binaries under time and memory
// limits and classifies their output, per spec §4.2.
package executor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

var tracer = otel.Tracer("github.com/sb-labs/coreclaim/internal/executor")

// Executor runs (prover, problem) pairs, gating concurrent spawns behind a
// semaphore of configurable width and caching classified Results by content
// fingerprint. golang.org/x/sync/semaphore.Weighted is used rather than a
// plain buffered channel because the Orchestrator's bounded fan-out already
// uses golang.org/x/sync/errgroup from the same module; keeping the spawn
// gate in the same package avoids pulling in two different concurrency
// primitives for what is one "width J" semantic (spec §4.2 "Bounded
// parallelism").
type Executor struct {
	sem     *semaphore.Weighted
	cache   *Cache
	log     *zap.SugaredLogger
	backend backend
}

// backend runs one prover/problem pair to completion and reports the raw,
// unclassified outcome plus whether the watchdog fired. spawnBackend
// (process.go, always available) and dockerBackend (sandbox_docker.go, used
// when config.Sandbox == "docker") both implement it.
type backend interface {
	run(prover protocol.Prover, problem protocol.Problem, timeoutS float64, memoryMB int) (protocol.RawMeasurement, bool, error)
}

// New creates a process-backed Executor with spawn concurrency width j (j <=
// 0 behaves as 1, per spec §4.2 "default 1").
func New(j int, cache *Cache, log *zap.SugaredLogger) *Executor {
	return newWithBackend(j, cache, log, spawnBackend{log: log})
}

// NewDocker creates a Docker-sandboxed Executor: each run is a container
// started from the prover's Image, with a memory resource limit enforced by
// the container runtime (spec §4.2's memory_mb limit, set via
// container.Resources.Memory) in addition to the command's ulimit -v prefix.
func NewDocker(j int, cache *Cache, log *zap.SugaredLogger) (*Executor, error) {
	b, err := newDockerBackend(log)
	if err != nil {
		return nil, err
	}
	return newWithBackend(j, cache, log, b), nil
}

func newWithBackend(j int, cache *Cache, log *zap.SugaredLogger, b backend) *Executor {
	if j <= 0 {
		j = 1
	}
	return &Executor{sem: semaphore.NewWeighted(int64(j)), cache: cache, log: log, backend: b}
}

// Run executes prover against problem under the given limits, blocking until
// the process exits or is killed. It never returns an error for a failed or
// timed-out child; those are encoded in the returned Result's classification
// (spec §4.2 "never raises except on programmer errors").
func (e *Executor) Run(ctx context.Context, prover protocol.Prover, problem protocol.Problem, timeoutS float64, memoryMB int) (protocol.Result, error) {
	ctx, span := tracer.Start(ctx, "executor.Run", trace.WithAttributes(
		attribute.String("prover", prover.Name),
		attribute.String("problem", problem.Path),
	))
	defer span.End()

	if prover.Binary == "" && prover.CommandTmpl == "" {
		return protocol.Result{}, fmt.Errorf("executor: prover %q has no command template", prover.Name)
	}

	fp, err := Fingerprint(prover, problem.Path, timeoutS, memoryMB)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("executor: %w", err)
	}

	cp, err := compileProver(prover)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("executor: compile regexes for %q: %w", prover.Name, err)
	}

	return e.cache.Do(fp, func() (protocol.Result, error) {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return protocol.Result{}, fmt.Errorf("executor: acquire spawn gate: %w", err)
		}
		defer e.sem.Release(1)

		raw, watchdogFired, err := e.backend.run(prover, problem, timeoutS, memoryMB)
		if err != nil {
			raw = protocol.RawMeasurement{Stderr: err.Error(), ErrCode: -1}
		}
		res := protocol.Result{Prover: prover, Problem: problem, Raw: raw}
		res.Classification = classify(cp, watchdogFired, raw.ErrCode, raw.Stdout, raw.Stderr)
		return res, nil
	})
}
