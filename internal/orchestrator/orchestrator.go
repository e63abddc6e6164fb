// Package orchestrator drives a batch of (prover, problem) runs through the
// Executor with bounded parallelism, optionally holding an Arbiter lock for
// the whole batch, and persists the results as a Snapshot (spec §4.3).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sb-labs/coreclaim/pkg/client"
	"github.com/sb-labs/coreclaim/pkg/protocol"
)

// Runner is the Executor dependency the Orchestrator needs: just Run, so
// tests can supply a fake without pulling in the real process/Docker
// backends.
type Runner interface {
	Run(ctx context.Context, prover protocol.Prover, problem protocol.Problem, timeoutS float64, memoryMB int) (protocol.Result, error)
}

// Batch is one orchestrator invocation's parameters (spec §4.3's
// "(provers, problems, timeout, memory, J, with_lock, port)").
type Batch struct {
	Provers     []protocol.Prover
	ProblemPaths []string
	TimeoutS    float64
	MemoryMB    int
	Parallelism int
	WithLock    bool
	Port        int
	DaemonArgv  []string // argv to spawn a daemon if WithLock and none is reachable
	DefaultExpect string
	Meta        string
}

// Orchestrator runs Batches against a Runner, streaming Results to a
// caller-supplied progress callback and persisting a Snapshot per batch.
type Orchestrator struct {
	runner Runner
	store  *Store
	log    *zap.SugaredLogger
}

// New constructs an Orchestrator backed by runner, persisting snapshots
// through store.
func New(runner Runner, store *Store, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{runner: runner, store: store, log: log}
}

// problemUnit is one resolved (prover, problem) pair ready to run.
type problemUnit struct {
	prover  protocol.Prover
	problem protocol.Problem
}

// Run executes b's full batch and returns the persisted Snapshot (spec
// §4.3 steps 1-5). progress, if non-nil, is called once per completed
// Result from whichever goroutine produced it — callers needing ordering
// or thread-confinement must synchronize it themselves.
func (o *Orchestrator) Run(ctx context.Context, b Batch, progress func(protocol.Result)) (protocol.Snapshot, error) {
	units, err := o.resolveUnits(b)
	if err != nil {
		return protocol.Snapshot{}, err
	}

	if b.WithLock {
		sess, err := client.Dial(ctx, b.Port, b.DaemonArgv)
		if err != nil {
			return protocol.Snapshot{}, fmt.Errorf("orchestrator: dial arbiter: %w", err)
		}
		defer sess.End()
		if err := sess.Acquire(protocol.JobRequest{
			Cores:     b.Parallelism,
			Priority:  0,
			Info:      b.Meta,
			QueryTime: float64(time.Now().UnixNano()) / 1e9,
		}); err != nil {
			return protocol.Snapshot{}, fmt.Errorf("orchestrator: acquire lock: %w", err)
		}
		defer sess.Release()
	}

	events, err := o.runAll(ctx, units, b, progress)
	if err != nil {
		return protocol.Snapshot{}, err
	}

	snap := NewSnapshot(b.Meta, events, time.Now())
	if o.store != nil {
		if err := o.store.Save(snap); err != nil {
			return snap, err
		}
	}
	return snap, nil
}

// resolveUnits expands provers x problems, resolving each problem's
// expectation once up front so a missing directive fails fast per pair
// (spec §4.3 step 1) without spending an Executor slot on it.
func (o *Orchestrator) resolveUnits(b Batch) ([]problemUnit, error) {
	var units []problemUnit
	for _, path := range b.ProblemPaths {
		expect, err := resolveExpect(path, b.DefaultExpect)
		if err != nil {
			o.log.Warnw("orchestrator: skipping problem", "path", path, "err", err)
			continue
		}
		problem := protocol.Problem{Path: path, Expected: expect}
		for _, p := range b.Provers {
			units = append(units, problemUnit{prover: p, problem: problem})
		}
	}
	return units, nil
}

// runAll fans the resolved units out across b.Parallelism goroutines (spec
// §4.3 step 3's "bounded parallelism J"). golang.org/x/sync/errgroup with
// SetLimit is used rather than a hand-rolled worker pool because the
// per-pair call never returns a fatal error the batch should abort on
// (spec §4.3 step 3: "do not fail the batch on any individual Result"); an
// errgroup without any Go call ever returning non-nil degenerates exactly
// to bounded fan-out, which is all that's needed here.
func (o *Orchestrator) runAll(ctx context.Context, units []problemUnit, b Batch, progress func(protocol.Result)) ([]protocol.Event, error) {
	g, gctx := errgroup.WithContext(ctx)
	if b.Parallelism > 0 {
		g.SetLimit(b.Parallelism)
	}

	events := make([]protocol.Event, len(units))
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			res, err := o.runner.Run(gctx, u.prover, u.problem, b.TimeoutS, b.MemoryMB)
			if err != nil {
				res = protocol.Result{
					Prover:  u.prover,
					Problem: u.problem,
					Raw:     protocol.RawMeasurement{Stderr: err.Error(), ErrCode: -1},
				}
				res.Classification = protocol.Error
			}
			events[i] = res
			if progress != nil {
				progress(res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("orchestrator: batch: %w", err)
	}
	return events, nil
}
