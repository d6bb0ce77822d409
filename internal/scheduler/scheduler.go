// Package scheduler coordinates compilation of independent plugins across a
// bounded pool of workers. Dispatch state (pending queue, in-flight counter,
// session epoch) is owned by a single Scheduler instance and mutated only
// through its own operations; workers communicate exclusively by message
// passing.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/xhyrom-forks/BunnyPlugins/internal/metrics"
)

// Request identifies one plugin to compile plus whatever input the
// transformation pipeline needs. Immutable once enqueued.
type Request struct {
	Name      string
	SourceDir string
	OutputDir string
	Flags     map[string]string
}

// Outcome tags a worker response.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

// Response is the tagged result a worker emits for exactly one Request.
type Response struct {
	Name    string
	Outcome Outcome
	Err     error

	worker int
	epoch  uint64
}

// Builder executes the source transformation for a single plugin. It is an
// opaque external collaborator: the scheduler only distinguishes success
// from failure.
type Builder interface {
	Build(ctx context.Context, req Request) error
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(ctx context.Context, req Request) error

func (f BuilderFunc) Build(ctx context.Context, req Request) error { return f(ctx, req) }

// Scheduler owns a fixed set of worker handles, a FIFO pending queue, and a
// session epoch. One batch runs at a time; concurrent StartBatch calls are
// serialized.
//
// Known limitation, preserved deliberately: there is no deadline for a
// worker response, so a worker that never answers stalls its batch until the
// caller's context is canceled.
type Scheduler struct {
	builder  Builder
	poolSize int
	rec      metrics.Recorder

	batchMu sync.Mutex // serializes whole batches

	mu      sync.Mutex // guards epoch, pending, used
	epoch   uint64
	pending []Request
	used    int // workers currently assigned work

	workers   []*worker
	responses chan Response
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.rec = r
		}
	}
}

// New creates a scheduler with a fixed pool size. A non-positive size
// defaults to the number of CPUs. The pool is never resized afterward.
func New(poolSize int, builder Builder, opts ...Option) *Scheduler {
	if builder == nil {
		panic("scheduler.New: builder is required")
	}
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
	}
	s := &Scheduler{
		builder:   builder,
		poolSize:  poolSize,
		rec:       metrics.NoopRecorder{},
		workers:   make([]*worker, poolSize),
		responses: make(chan Response, poolSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PoolSize reports the fixed worker pool size.
func (s *Scheduler) PoolSize() int { return s.poolSize }

// Epoch reports the current session epoch, for diagnostics and tests.
func (s *Scheduler) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// StartBatch enqueues every request, advances the session epoch, and
// dispatches until the batch resolves. It returns nil only when every
// request succeeded. The first failure terminates all workers and rejects
// the whole batch with that unit's error; no per-unit isolation, no retry.
// An empty batch resolves immediately.
func (s *Scheduler) StartBatch(ctx context.Context, requests []Request) error {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.pending = append([]Request(nil), requests...)
	s.used = 0
	s.mu.Unlock()

	// The epoch advances even for an empty batch, so responses still in
	// flight from an earlier session are invalidated either way.
	if len(requests) == 0 {
		return nil
	}

	s.ensureWorkers()

	start := time.Now()
	slog.Info("Starting build batch", "units", len(requests), "epoch", epoch, "pool_size", s.poolSize)

	// Fill the pool: slot index is usedWorkers-1 at the moment of dispatch,
	// so requests beyond the pool size stay queued.
	s.mu.Lock()
	for s.used < s.poolSize && len(s.pending) > 0 {
		req := s.pending[0]
		s.pending = s.pending[1:]
		s.workers[s.used].post(dispatch{req: req, epoch: epoch})
		s.used++
	}
	s.rec.SetInFlight(s.used)
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			s.terminateWorkers()
			s.rec.SetInFlight(0)
			s.rec.IncBatchOutcome("canceled")
			return ctx.Err()

		case resp := <-s.responses:
			s.mu.Lock()
			if resp.epoch != s.epoch {
				s.mu.Unlock()
				s.rec.IncStaleResponse()
				slog.Debug("Dropping stale worker response", "unit", resp.Name, "epoch", resp.epoch)
				continue
			}

			if resp.Outcome == OutcomeFailure {
				s.mu.Unlock()
				s.terminateWorkers()
				s.rec.SetInFlight(0)
				s.rec.IncUnitOutcome(metrics.OutcomeFailure)
				s.rec.IncBatchOutcome("failed")
				slog.Error("Build batch failed", "unit", resp.Name, "error", resp.Err)
				return fmt.Errorf("build %s: %w", resp.Name, resp.Err)
			}

			s.rec.IncUnitOutcome(metrics.OutcomeSuccess)
			if len(s.pending) > 0 {
				// Feed the worker that just freed up; per-worker ordering is
				// strict, so its previous response has necessarily arrived.
				req := s.pending[0]
				s.pending = s.pending[1:]
				s.workers[resp.worker].post(dispatch{req: req, epoch: s.epoch})
				s.mu.Unlock()
				continue
			}
			s.used--
			s.rec.SetInFlight(s.used)
			done := s.used == 0
			s.mu.Unlock()

			if done {
				d := time.Since(start)
				s.rec.ObserveBatchDuration(d)
				s.rec.IncBatchOutcome("success")
				slog.Info("Build batch completed", "units", len(requests), "duration", d)
				return nil
			}
		}
	}
}

// ResetEpoch clears the pending queue and in-flight counter without
// terminating workers, for starting an unrelated batch. Responses for the
// prior epoch are discarded by identity check, never by timing.
func (s *Scheduler) ResetEpoch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.pending = nil
	s.used = 0
	s.rec.SetInFlight(0)
	slog.Debug("Session epoch reset", "epoch", s.epoch)
}

// Shutdown terminates all workers. The scheduler respawns them on the next
// batch, so this is safe to call between batches.
func (s *Scheduler) Shutdown() {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.terminateWorkers()
}
