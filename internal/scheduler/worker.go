package scheduler

import (
	"context"
	"fmt"
)

// dispatch carries one request to a worker, stamped with the epoch it
// reports against.
type dispatch struct {
	req   Request
	epoch uint64
}

// worker is an independently executing goroutine with an isolated fault
// boundary. It receives one request at a time and emits exactly one
// response per request.
type worker struct {
	id     int
	reqs   chan dispatch
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Scheduler) spawnWorker(id int) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		id: id,
		// Capacity 1: the scheduler never posts to a worker before its
		// previous response arrived, so a send never blocks.
		reqs:   make(chan dispatch, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(ctx, s.builder, s.responses)
	return w
}

// ensureWorkers respawns any worker slot whose goroutine has exited
// (initial start, or after a fail-fast termination).
func (s *Scheduler) ensureWorkers() {
	for i, w := range s.workers {
		if w != nil {
			select {
			case <-w.done:
			default:
				continue // still running
			}
		}
		s.workers[i] = s.spawnWorker(i)
	}
}

// terminateWorkers instructs every worker to stop and waits until each
// goroutine has exited. Not a graceful drain: in-flight builds have their
// context canceled. The wait keeps a subsequent batch from posting into a
// dying worker that would strand the request; it is unbounded, consistent
// with the no-timeout semantics of the scheduler as a whole.
func (s *Scheduler) terminateWorkers() {
	for _, w := range s.workers {
		if w != nil {
			w.cancel()
		}
	}
	for _, w := range s.workers {
		if w != nil {
			<-w.done
		}
	}
}

func (w *worker) post(d dispatch) { w.reqs <- d }

func (w *worker) run(ctx context.Context, b Builder, out chan<- Response) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-w.reqs:
			resp := Response{Name: d.req.Name, Outcome: OutcomeSuccess, worker: w.id, epoch: d.epoch}
			if err := safeBuild(ctx, b, d.req); err != nil {
				resp.Outcome = OutcomeFailure
				resp.Err = err
			}
			select {
			case out <- resp:
			case <-ctx.Done():
				return
			}
		}
	}
}

// safeBuild keeps a panicking pipeline inside the worker's fault boundary.
func safeBuild(ctx context.Context, b Builder, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return b.Build(ctx, req)
}
