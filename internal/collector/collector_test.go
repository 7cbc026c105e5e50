package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/ioc-platform/ioc/internal/model"
	"github.com/ioc-platform/ioc/internal/rail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// WorkerPool
// ---------------------------------------------------------------------------

func TestNewWorkerPool_MinimumOne(t *testing.T) {
	assert.Equal(t, 4, cap(NewWorkerPool(4).sem))
	assert.Equal(t, 1, cap(NewWorkerPool(0).sem))
	assert.Equal(t, 1, cap(NewWorkerPool(-3).sem))
}

func TestWorkerPool_Submit_BlocksWhenFull(t *testing.T) {
	pool := NewWorkerPool(1)
	blocker := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() { <-blocker }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Submit(ctx, func() {}), context.DeadlineExceeded)

	close(blocker)
}

func TestWorkerPool_Each_RunsEveryIndexWithinLimit(t *testing.T) {
	pool := NewWorkerPool(3)
	var running, peak atomic.Int32
	seen := make([]atomic.Bool, 20)

	err := pool.Each(context.Background(), len(seen), func(i int) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		seen[i].Store(true)
		running.Add(-1)
	})
	require.NoError(t, err)

	for i := range seen {
		assert.True(t, seen[i].Load(), "index %d", i)
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Zero(t, running.Load(), "Each returns after every job finished")
}

func TestWorkerPool_Each_StopsOnCancelledContext(t *testing.T) {
	pool := NewWorkerPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	err := pool.Each(ctx, 5, func(int) {
		calls.Add(1)
		cancel()
		time.Sleep(10 * time.Millisecond)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls.Load(), int32(5))
}

func TestWorkerPool_Each_Empty(t *testing.T) {
	assert.NoError(t, NewWorkerPool(1).Each(context.Background(), 0, func(int) { t.Fatal("called") }))
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun_LoaderPicksUpNewRows(t *testing.T) {
	s := newCollectorStore(t)
	c := cache.New()
	l := NewLoader(s, c, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, l) }()

	require.Eventually(t, func() bool {
		_, ok := c.Snapshot().LastPoll["loader"]
		return ok
	}, 2*time.Second, 5*time.Millisecond, "first collection runs immediately")

	id := addServer(t, s, "late-01")
	require.Eventually(t, func() bool {
		_, ok := c.Snapshot().Servers[id]
		return ok
	}, 2*time.Second, 10*time.Millisecond, "later ticks reload the store")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_AdvancesRailSimulation(t *testing.T) {
	ctrl := rail.NewController(nil, 10*time.Millisecond)
	start := ctrl.State().Tick

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = Run(ctx, ctrl) }()

	require.Eventually(t, func() bool {
		return ctrl.State().Tick >= start+3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRun_ContinuesAfterFailedCollection(t *testing.T) {
	s := newCollectorStore(t)
	c := cache.New()
	l := NewLoader(s, c, 20*time.Millisecond)
	require.NoError(t, s.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, Run(ctx, l), context.DeadlineExceeded)
	assert.NotContains(t, c.Snapshot().LastPoll, "loader", "a closed store never completes a load")
}

// panicky is a Collector whose first call panics.
type panicky struct {
	calls atomic.Int32
}

func (p *panicky) Name() string            { return "panicky" }
func (p *panicky) Interval() time.Duration { return 10 * time.Millisecond }
func (p *panicky) Collect(context.Context) error {
	if p.calls.Add(1) == 1 {
		panic("boom")
	}
	return nil
}

func TestRun_RecoversFromPanic(t *testing.T) {
	p := &panicky{}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, Run(ctx, p), context.DeadlineExceeded)
	assert.GreaterOrEqual(t, p.calls.Load(), int32(2))
}

func TestCollectOnce_PanicBecomesError(t *testing.T) {
	err := collectOnce(context.Background(), &panicky{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collector panicky panicked: boom")
}

// ---------------------------------------------------------------------------
// Probe fan-out
// ---------------------------------------------------------------------------

func TestProbe_Collect_SharesPool(t *testing.T) {
	var running, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newCollectorStore(t)
	c := cache.New()
	for i := range 4 {
		addWebsite(t, s, fmt.Sprintf("site-%d", i), srv.URL, true)
	}

	p := NewProbe(ProbeConfig{Timeout: time.Second}, NewWorkerPool(1), c, s)
	require.NoError(t, p.Collect(context.Background()))

	assert.Equal(t, int32(1), peak.Load())
	sites, err := s.ListWebsites()
	require.NoError(t, err)
	for _, site := range sites {
		assert.Equal(t, model.SiteUp, site.LastStatus, site.Name)
	}
}

// ---------------------------------------------------------------------------
// transient errors
// ---------------------------------------------------------------------------

func TestTransient(t *testing.T) {
	inner := errors.New("connection refused")
	err := fmt.Errorf("requesting site: %w", transient(inner))

	assert.True(t, isTransient(err))
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "requesting site: connection refused", err.Error())
	assert.False(t, isTransient(inner))
	assert.False(t, isTransient(nil))
}
