package loadgen

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pior/emc"
	"github.com/pior/emc/internal/testutils"
	"github.com/pior/emc/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, workers int) (*Pool, *testutils.FakeServer) {
	server := testutils.NewFakeServer(t)
	pool := NewPool(Config{
		Addr:         server.Addr,
		Workers:      workers,
		PollInterval: 5 * time.Millisecond,
	})
	return pool, server
}

func TestPool_RunAggregatesWorkers(t *testing.T) {
	pool, server := newTestPool(t, 3)

	var preCalls, postCalls atomic.Int32
	var postReport Report

	task := Funcs{
		TaskName: "count",
		PreFunc: func(ctx context.Context, client *emc.Client) error {
			preCalls.Add(1)
			return nil
		},
		WorkFunc: func(ctx context.Context, w *Worker) error {
			for range 10 {
				start := time.Now()
				if err := w.Client.Set(ctx, text.Item{Key: "k", Value: []byte("v")}, 0, false); err != nil {
					return err
				}
				w.Metrics.Record(1, 2, time.Since(start))
			}
			return nil
		},
		PostFunc: func(ctx context.Context, client *emc.Client, report Report) error {
			postCalls.Add(1)
			postReport = report
			_, err := client.Version(ctx)
			return err
		},
	}

	report, err := pool.Run(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, int32(1), preCalls.Load())
	assert.Equal(t, int32(1), postCalls.Load())
	assert.Equal(t, report, postReport)

	assert.Equal(t, "count", report.Task)
	assert.Len(t, report.Workers, 3)
	assert.Equal(t, uint64(30), report.Total.Units)
	assert.Equal(t, uint64(60), report.Total.Bytes)
	assert.Equal(t, uint64(30), report.ClientStats.Sets)
	assert.False(t, report.Interrupted)
	assert.Empty(t, report.Errors)

	for _, m := range report.Workers {
		assert.Equal(t, uint64(10), m.Units)
		assert.Positive(t, m.Wall)
	}

	assert.Equal(t, 30, server.Commands("set"))
	// One control connection plus one per worker.
	assert.Equal(t, 4, server.Connections())
}

func TestPool_InterruptStopsAtUnitBoundary(t *testing.T) {
	pool, _ := newTestPool(t, 4)

	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int32
	var completed atomic.Uint64
	var postCalled atomic.Bool

	task := Funcs{
		WorkFunc: func(ctx context.Context, w *Worker) error {
			started.Add(1)
			for {
				if Cancelled(ctx) {
					return ctx.Err()
				}
				time.Sleep(2 * time.Millisecond)
				w.Metrics.Record(1, 0, 2*time.Millisecond)
				completed.Add(1)
			}
		},
		PostFunc: func(ctx context.Context, client *emc.Client, report Report) error {
			postCalled.Store(true)
			// Post runs on a context that is not cancelled.
			require.NoError(t, ctx.Err())
			_, err := client.Version(ctx)
			return err
		},
	}

	go func() {
		for started.Load() < 4 {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	report, err := pool.Run(ctx, task)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, report.Interrupted)
	assert.True(t, postCalled.Load())
	assert.Empty(t, report.Errors, "cancellation is not a worker error")
	assert.Equal(t, completed.Load(), report.Total.Units)
}

func TestPool_InterruptUnblocksServerWait(t *testing.T) {
	// A server that accepts but never answers.
	pool := NewPool(Config{
		Workers:      2,
		PollInterval: 5 * time.Millisecond,
		constructor: func(ctx context.Context) (*emc.Client, error) {
			conn := &blockingConn{ConnectionMock: testutils.NewConnectionMock()}
			return emc.NewClientWithConn(conn, emc.Config{}), nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	task := Funcs{
		WorkFunc: func(ctx context.Context, w *Worker) error {
			_, err := w.Client.Get(ctx, "k")
			return err
		},
	}

	start := time.Now()
	report, err := pool.Run(ctx, task)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, report.Interrupted)
	assert.Zero(t, report.Total.Units)
}

func TestPool_WorkerErrorDoesNotStopSiblings(t *testing.T) {
	pool, _ := newTestPool(t, 3)
	boom := errors.New("boom")

	task := Funcs{
		WorkFunc: func(ctx context.Context, w *Worker) error {
			if w.ID == 2 {
				return boom
			}
			// Siblings keep running after worker 2 failed.
			time.Sleep(20 * time.Millisecond)
			for range 5 {
				if Cancelled(ctx) {
					return ctx.Err()
				}
				w.Metrics.Record(1, 0, time.Millisecond)
			}
			return nil
		},
	}

	report, err := pool.Run(context.Background(), task)
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, 2, report.Errors[0].Worker)
	assert.ErrorIs(t, report.Errors[0], boom)
	assert.Equal(t, uint64(10), report.Total.Units)
	assert.Zero(t, report.Workers[1].Units)
}

func TestPool_PreFailureSkipsWork(t *testing.T) {
	pool, _ := newTestPool(t, 2)
	var worked atomic.Bool

	task := Funcs{
		PreFunc: func(ctx context.Context, client *emc.Client) error {
			return errors.New("not ready")
		},
		WorkFunc: func(ctx context.Context, w *Worker) error {
			worked.Store(true)
			return nil
		},
	}

	_, err := pool.Run(context.Background(), task)
	require.ErrorContains(t, err, "pre-phase: not ready")
	assert.False(t, worked.Load())
}

func TestPool_PostFailure(t *testing.T) {
	pool, _ := newTestPool(t, 1)

	task := Funcs{
		WorkFunc: func(ctx context.Context, w *Worker) error {
			w.Metrics.Record(1, 1, time.Millisecond)
			return nil
		},
		PostFunc: func(ctx context.Context, client *emc.Client, report Report) error {
			return errors.New("post failed")
		},
	}

	report, err := pool.Run(context.Background(), task)
	require.ErrorContains(t, err, "post-phase: post failed")
	assert.Equal(t, uint64(1), report.Total.Units)
}

func TestPool_ConnectFailure(t *testing.T) {
	pool := NewPool(Config{Addr: "127.0.0.1:1", Workers: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := pool.Run(ctx, Funcs{WorkFunc: func(ctx context.Context, w *Worker) error { return nil }})
	require.ErrorContains(t, err, "connecting to 127.0.0.1:1")
}

func TestPool_PoolStatsDuringRun(t *testing.T) {
	pool, _ := newTestPool(t, 2)

	_, ok := pool.PoolStats()
	assert.False(t, ok)

	var during PoolStats
	task := Funcs{
		PostFunc: func(ctx context.Context, client *emc.Client, report Report) error {
			during, ok = pool.PoolStats()
			return nil
		},
		WorkFunc: func(ctx context.Context, w *Worker) error { return nil },
	}

	_, err := pool.Run(context.Background(), task)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), during.CreatedClients)
	assert.Equal(t, int32(1), during.AcquiredClients)

	_, ok = pool.PoolStats()
	assert.False(t, ok)
}

// blockingConn never delivers data: reads wait for the deadline.
type blockingConn struct {
	*testutils.ConnectionMock
	deadline atomic.Pointer[time.Time]
}

func (c *blockingConn) Read(b []byte) (int, error) {
	for {
		if d := c.deadline.Load(); d != nil && !time.Now().Before(*d) {
			return 0, timeoutError{}
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *blockingConn) SetDeadline(t time.Time) error {
	if t.IsZero() {
		c.deadline.Store(nil)
	} else {
		c.deadline.Store(&t)
	}
	return nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
