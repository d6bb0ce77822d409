package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namedRequests(n int) []Request {
	reqs := make([]Request, n)
	for i := range reqs {
		reqs[i] = Request{Name: fmt.Sprintf("plugin-%d", i)}
	}
	return reqs
}

func TestStartBatch_EmptyResolvesImmediately(t *testing.T) {
	s := New(4, BuilderFunc(func(context.Context, Request) error {
		t.Fatal("builder must not be called for an empty batch")
		return nil
	}))
	before := s.Epoch()
	require.NoError(t, s.StartBatch(context.Background(), nil))
	// Even an empty batch opens a new session, so responses still in flight
	// from an earlier one are invalidated.
	assert.Equal(t, before+1, s.Epoch())
}

func TestStartBatch_SmallBatchBuildsEveryUnitOnce(t *testing.T) {
	var mu sync.Mutex
	built := map[string]int{}
	s := New(4, BuilderFunc(func(_ context.Context, req Request) error {
		mu.Lock()
		built[req.Name]++
		mu.Unlock()
		return nil
	}))
	defer s.Shutdown()

	reqs := namedRequests(3)
	require.NoError(t, s.StartBatch(context.Background(), reqs))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, built, 3)
	for _, req := range reqs {
		assert.Equal(t, 1, built[req.Name], "unit %s", req.Name)
	}
}

func TestStartBatch_NeverExceedsPoolSize(t *testing.T) {
	const pool = 2
	var inFlight, peak atomic.Int32
	s := New(pool, BuilderFunc(func(context.Context, Request) error {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}))
	defer s.Shutdown()

	require.NoError(t, s.StartBatch(context.Background(), namedRequests(9)))
	assert.LessOrEqual(t, peak.Load(), int32(pool))
}

func TestStartBatch_FailFastRejectsWholeBatch(t *testing.T) {
	boom := errors.New("minify exploded")
	var builds atomic.Int32
	s := New(2, BuilderFunc(func(_ context.Context, req Request) error {
		builds.Add(1)
		if req.Name == "plugin-3" {
			return boom
		}
		time.Sleep(time.Millisecond)
		return nil
	}))
	defer s.Shutdown()

	err := s.StartBatch(context.Background(), namedRequests(20))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "plugin-3")

	// No further dispatch after the failure was observed: at most the
	// requests already in flight alongside the failing one completed.
	assert.Less(t, builds.Load(), int32(20))
}

func TestStartBatch_RecoversAfterFailure(t *testing.T) {
	fail := atomic.Bool{}
	fail.Store(true)
	s := New(2, BuilderFunc(func(context.Context, Request) error {
		if fail.Load() {
			return errors.New("transient")
		}
		return nil
	}))
	defer s.Shutdown()

	require.Error(t, s.StartBatch(context.Background(), namedRequests(4)))

	// Workers were all terminated; a fresh batch respawns them.
	fail.Store(false)
	require.NoError(t, s.StartBatch(context.Background(), namedRequests(4)))
}

// A batch started right after a fail-fast termination must dispatch into
// freshly spawned workers, never into one still winding down from its
// canceled context (which would strand the request or fail it spuriously).
func TestStartBatch_FreshBatchImmediatelyAfterFailure(t *testing.T) {
	var fail atomic.Bool
	s := New(1, BuilderFunc(func(ctx context.Context, _ Request) error {
		if fail.Load() {
			return errors.New("bundler crashed")
		}
		// A build handed to a dying worker would see a canceled context here.
		return ctx.Err()
	}))
	defer s.Shutdown()

	for i := 0; i < 25; i++ {
		fail.Store(true)
		require.Error(t, s.StartBatch(context.Background(), namedRequests(1)))

		fail.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := s.StartBatch(ctx, namedRequests(2))
		cancel()
		require.NoError(t, err, "iteration %d: fresh batch right after a failure", i)
	}
}

func TestStartBatch_PanickingPipelineIsAFailure(t *testing.T) {
	s := New(1, BuilderFunc(func(context.Context, Request) error {
		panic("rollup went sideways")
	}))
	defer s.Shutdown()

	err := s.StartBatch(context.Background(), namedRequests(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline panic")
}

func TestStartBatch_ContextCancelTerminatesBatch(t *testing.T) {
	started := make(chan struct{}, 1)
	s := New(1, BuilderFunc(func(ctx context.Context, _ Request) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done() // a worker that never responds on its own
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.StartBatch(ctx, namedRequests(1)) }()

	<-started
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not observe cancellation")
	}
}

// A response carrying a superseded epoch must never affect the current
// batch's completion accounting.
func TestResetEpoch_StaleResponseIgnored(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var slow atomic.Bool
	slow.Store(true)
	s := New(1, BuilderFunc(func(_ context.Context, req Request) error {
		if slow.Load() {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
		}
		return nil
	}))
	defer s.Shutdown()

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() { errA <- s.StartBatch(ctxA, []Request{{Name: "abandoned"}}) }()

	<-started
	// Supersede the epoch while the worker is still busy, then let it finish:
	// its response now reports against a dead epoch.
	s.ResetEpoch()
	slow.Store(false)
	close(release)

	// The abandoned batch can only end via its context (its response was
	// invalidated by identity, not by timing).
	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned batch did not exit on cancel")
	}

	// A fresh batch completes correctly even if the stale response is still
	// sitting in the response channel.
	require.NoError(t, s.StartBatch(context.Background(), namedRequests(3)))
}

func TestNewDefaultsPoolSize(t *testing.T) {
	s := New(0, BuilderFunc(func(context.Context, Request) error { return nil }))
	assert.Greater(t, s.PoolSize(), 0)
}
