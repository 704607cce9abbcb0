package agentbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	delay  time.Duration
	err    error
	output map[string]any

	onStart func()
}

func (s *stubExecutor) Execute(ctx context.Context, toolName string, params map[string]any) (map[string]any, error) {
	if s.onStart != nil {
		s.onStart()
	}
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.output, s.err
}

func TestDispatchDeliversResult(t *testing.T) {
	bus := New(context.Background(), 2, time.Second)
	id, err := bus.Dispatch(context.Background(), &stubExecutor{output: map[string]any{"ok": true}}, "read_file", nil)
	require.NoError(t, err)

	res, err := bus.WaitNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, res.InvocationID)
	assert.Equal(t, "completed", res.Status)
}

// TestDispatchRejectsAtCapacity saturates the single in-flight slot, the
// task the worker has already dequeued while it waits for that slot, and
// the one-deep queue behind it, so a fourth Dispatch has nowhere to wait
// and must fail with ErrQueueFull once SubmitTimeout elapses.
func TestDispatchRejectsAtCapacity(t *testing.T) {
	old := SubmitTimeout
	SubmitTimeout = 20 * time.Millisecond
	defer func() { SubmitTimeout = old }()

	bus := New(context.Background(), 1, time.Second)
	_, err := bus.Dispatch(context.Background(), &stubExecutor{delay: 200 * time.Millisecond}, "slow", nil)
	require.NoError(t, err)

	_, err = bus.Dispatch(context.Background(), &stubExecutor{}, "dequeued", nil)
	require.NoError(t, err)

	_, err = bus.Dispatch(context.Background(), &stubExecutor{}, "queued", nil)
	require.NoError(t, err)

	_, err = bus.Dispatch(context.Background(), &stubExecutor{}, "one-too-many", nil)
	assert.ErrorIs(t, err, ErrQueueFull)

	_, _ = bus.WaitNext(context.Background())
	_, _ = bus.WaitNext(context.Background())
	_, _ = bus.WaitNext(context.Background())
}

func TestDispatchTimesOut(t *testing.T) {
	bus := New(context.Background(), 1, 10*time.Millisecond)
	_, err := bus.Dispatch(context.Background(), &stubExecutor{delay: time.Second}, "slow", nil)
	require.NoError(t, err)

	res, err := bus.WaitNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "timed_out", res.Status)
}

// TestDispatchRunsQueuedWorkInFIFOOrder verifies the single consumer
// starts queued invocations in the order they were submitted, since
// nothing downstream reorders a bounded channel but a buggy worker
// implementation (e.g. a map-backed queue) could.
func TestDispatchRunsQueuedWorkInFIFOOrder(t *testing.T) {
	bus := New(context.Background(), 1, time.Second)

	var mu sync.Mutex
	var started []string
	track := func(name string) func() {
		return func() {
			mu.Lock()
			started = append(started, name)
			mu.Unlock()
		}
	}

	for _, name := range []string{"first", "second", "third"} {
		_, err := bus.Dispatch(context.Background(), &stubExecutor{onStart: track(name)}, name, nil)
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		_, err := bus.WaitNext(context.Background())
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, started)
}

func TestHasPendingReflectsUnconsumedResults(t *testing.T) {
	bus := New(context.Background(), 1, time.Second)
	assert.False(t, bus.HasPending())

	_, err := bus.Dispatch(context.Background(), &stubExecutor{output: map[string]any{}}, "t", nil)
	require.NoError(t, err)

	_, _ = bus.WaitNext(context.Background())
	assert.False(t, bus.HasPending())
}

func TestShutdownCancelsInFlight(t *testing.T) {
	bus := New(context.Background(), 1, time.Second)
	_, err := bus.Dispatch(context.Background(), &stubExecutor{delay: time.Second}, "slow", nil)
	require.NoError(t, err)

	bus.Shutdown()
	bus.Wait(context.Background())
}

func TestCancelStopsAQueuedInvocationBeforeItStarts(t *testing.T) {
	bus := New(context.Background(), 1, time.Second)
	_, err := bus.Dispatch(context.Background(), &stubExecutor{delay: 100 * time.Millisecond}, "slow", nil)
	require.NoError(t, err)

	queuedID, err := bus.Dispatch(context.Background(), &stubExecutor{}, "queued", nil)
	require.NoError(t, err)
	require.NoError(t, bus.Cancel(queuedID))

	res1, err := bus.WaitNext(context.Background())
	require.NoError(t, err)
	res2, err := bus.WaitNext(context.Background())
	require.NoError(t, err)

	results := map[string]*Result{res1.InvocationID: res1, res2.InvocationID: res2}
	assert.Equal(t, "cancelled", results[queuedID].Status)
}
