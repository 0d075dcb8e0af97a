package bufferedtask

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger("error", true)
	require.NoError(t, err)
	return log
}

func TestBufferedTask_FlushesOnTicker(t *testing.T) {
	var processed atomic.Int32
	var mu sync.Mutex
	var seen []int

	run := func(ctx context.Context, batch []int, retries int) Result {
		mu.Lock()
		seen = append(seen, batch...)
		mu.Unlock()
		processed.Add(int32(len(batch)))
		return Result{Outcome: OutcomeOK}
	}

	bt := New(Config{
		FlushInterval:  10 * time.Millisecond,
		MaxBatchSize:   2,
		MaxConcurrency: 4,
	}, run, nil, testLogger(t))

	bt.Buffer([]int{1, 2, 3})

	ctx, cancel := context.WithCancel(context.Background())
	go bt.Start(ctx)

	require.Eventually(t, func() bool { return processed.Load() == 3 }, time.Second, time.Millisecond)
	cancel()
}

func TestBufferedTask_RetryReenqueues(t *testing.T) {
	var attempts atomic.Int32

	run := func(ctx context.Context, batch []int, retries int) Result {
		if attempts.Add(1) <= 2 {
			return Result{Outcome: OutcomeRetry}
		}
		return Result{Outcome: OutcomeOK}
	}

	bt := New(Config{
		FlushInterval:  5 * time.Millisecond,
		MaxBatchSize:   10,
		MaxConcurrency: 1,
	}, run, nil, testLogger(t))

	bt.Buffer([]int{1})

	ctx, cancel := context.WithCancel(context.Background())
	go bt.Start(ctx)

	require.Eventually(t, func() bool { return attempts.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
}

func TestBufferedTask_MaxConcurrencyBound(t *testing.T) {
	var inFlight atomic.Int32
	var maxSeen atomic.Int32

	run := func(ctx context.Context, batch []int, retries int) Result {
		cur := inFlight.Add(1)
		for {
			old := maxSeen.Load()
			if cur <= old || maxSeen.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return Result{Outcome: OutcomeOK}
	}

	bt := New(Config{
		FlushInterval:  5 * time.Millisecond,
		MaxBatchSize:   1,
		MaxConcurrency: 2,
	}, run, nil, testLogger(t))

	bt.Buffer([]int{1, 2, 3, 4, 5, 6})

	ctx, cancel := context.WithCancel(context.Background())
	go bt.Start(ctx)

	require.Eventually(t, func() bool { return inFlight.Load() == 0 && maxSeen.Load() > 0 }, time.Second, time.Millisecond)
	require.LessOrEqual(t, maxSeen.Load(), int32(2))
	cancel()
}

func TestBufferedTask_Shed_ForcesImmediateFlush(t *testing.T) {
	var processed atomic.Int32

	run := func(ctx context.Context, batch []int, retries int) Result {
		processed.Add(int32(len(batch)))
		return Result{Outcome: OutcomeOK}
	}

	bt := New(Config{
		FlushInterval:  time.Hour,
		MaxBatchSize:   10,
		MaxConcurrency: 1,
	}, run, nil, testLogger(t))

	bt.Buffer([]int{1, 2, 3})
	require.Equal(t, 3, bt.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	go bt.Start(ctx)

	bt.Shed()

	require.Eventually(t, func() bool { return processed.Load() == 3 }, time.Second, time.Millisecond)
	cancel()
}
