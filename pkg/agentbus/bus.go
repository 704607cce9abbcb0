// Package agentbus queues tool-executor work behind a bounded channel
// drained by a single worker goroutine, the way the teacher's sub-agent
// orchestrator dispatches concurrent sub-agents: one queue per bus, FIFO
// dispatch order, and a bounded wait for a free slot before giving up.
package agentbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SubmitTimeout bounds how long Dispatch waits for room on the queue
// before failing with ErrQueueFull. It is a var, not a const, so tests
// can shrink it rather than waiting out the real five seconds.
var SubmitTimeout = 5 * time.Second

// Executor runs a single tool invocation to completion. Implementations
// wrap MCP/tool clients; the bus only manages concurrency and lifecycle.
type Executor interface {
	Execute(ctx context.Context, toolName string, params map[string]any) (map[string]any, error)
}

// Result is delivered on the bus's result channel when a dispatched
// invocation finishes, succeeds, fails, or times out.
type Result struct {
	InvocationID string
	ToolName     string
	Output       map[string]any
	Err          error
	Status       string // "completed" | "failed" | "timed_out" | "cancelled"
}

type task struct {
	id       string
	toolName string
	params   map[string]any
	exec     Executor
}

type invocation struct {
	id       string
	toolName string
	status   string // "queued" | "running" | terminal status
	canceled bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// Bus queues tool invocations on a bounded channel. A single worker
// goroutine drains the queue in FIFO order and admits up to maxInFlight
// concurrent executions; the workerspace Manager creates one Bus per
// worker space, shared by all of that space's agents.
type Bus struct {
	mu          sync.Mutex
	invocations map[string]*invocation
	maxInFlight int

	queue     chan *task
	resultsCh chan *Result
	closeCh   chan struct{}
	closeOnce sync.Once

	pending int32
	parent  context.Context
	timeout time.Duration
}

// New builds a Bus bounded to maxInFlight concurrent invocations, each
// capped at timeout, and starts its worker goroutine. parent is the
// agent-lifetime context; invocation contexts are derived from it so
// they outlive any single request.
func New(parent context.Context, maxInFlight int, timeout time.Duration) *Bus {
	b := &Bus{
		invocations: make(map[string]*invocation),
		maxInFlight: maxInFlight,
		queue:       make(chan *task, maxInFlight),
		resultsCh:   make(chan *Result, maxInFlight),
		closeCh:     make(chan struct{}),
		parent:      parent,
		timeout:     timeout,
	}
	go b.worker()
	return b
}

// ErrQueueFull is returned by Dispatch when the agent's queue has no
// room within SubmitTimeout.
var ErrQueueFull = fmt.Errorf("agent bus: at capacity")

// Dispatch enqueues toolName for execution and returns immediately with
// its invocation ID once the queue accepts it. If the queue is full,
// Dispatch blocks for up to SubmitTimeout waiting for room before
// failing with ErrQueueFull, rather than rejecting instantly.
func (b *Bus) Dispatch(ctx context.Context, exec Executor, toolName string, params map[string]any) (string, error) {
	id := uuid.NewString()
	inv := &invocation{id: id, toolName: toolName, status: "queued", done: make(chan struct{})}

	b.mu.Lock()
	b.invocations[id] = inv
	b.mu.Unlock()

	timer := time.NewTimer(SubmitTimeout)
	defer timer.Stop()

	t := &task{id: id, toolName: toolName, params: params, exec: exec}

	select {
	case b.queue <- t:
		atomic.AddInt32(&b.pending, 1)
		return id, nil
	case <-ctx.Done():
		b.forget(id)
		return "", ctx.Err()
	case <-timer.C:
		b.forget(id)
		return "", ErrQueueFull
	case <-b.closeCh:
		b.forget(id)
		return "", fmt.Errorf("agent bus: closed")
	}
}

func (b *Bus) forget(id string) {
	b.mu.Lock()
	delete(b.invocations, id)
	b.mu.Unlock()
}

// worker is the single consumer draining the queue in FIFO order. A
// buffered channel of slots stands in for the reference implementation's
// busy-wait on an active-task counter: acquiring a slot blocks the
// worker, so admission order matches dequeue order exactly.
func (b *Bus) worker() {
	slots := make(chan struct{}, b.maxInFlight)
	for i := 0; i < b.maxInFlight; i++ {
		slots <- struct{}{}
	}

	for {
		select {
		case <-b.closeCh:
			return
		case t, ok := <-b.queue:
			if !ok {
				return
			}
			select {
			case <-slots:
			case <-b.closeCh:
				return
			}
			go func(t *task) {
				defer func() { slots <- struct{}{} }()
				b.run(t)
			}(t)
		}
	}
}

func (b *Bus) run(t *task) {
	b.mu.Lock()
	inv, ok := b.invocations[t.id]
	if !ok {
		b.mu.Unlock()
		return
	}
	if inv.canceled {
		inv.status = "cancelled"
		close(inv.done)
		b.mu.Unlock()
		b.deliver(&Result{InvocationID: t.id, ToolName: t.toolName, Status: "cancelled", Err: context.Canceled})
		return
	}
	invCtx, cancel := context.WithTimeout(b.parent, b.timeout)
	inv.status = "running"
	inv.cancel = cancel
	b.mu.Unlock()

	defer cancel()
	defer close(inv.done)

	output, err := t.exec.Execute(invCtx, t.toolName, t.params)

	status := "completed"
	if err != nil {
		switch {
		case invCtx.Err() == context.DeadlineExceeded:
			status = "timed_out"
		case invCtx.Err() != nil:
			status = "cancelled"
		default:
			status = "failed"
		}
	}

	b.mu.Lock()
	inv.status = status
	b.mu.Unlock()

	b.deliver(&Result{InvocationID: inv.id, ToolName: inv.toolName, Output: output, Err: err, Status: status})
}

func (b *Bus) deliver(result *Result) {
	select {
	case b.resultsCh <- result:
	case <-b.closeCh:
		slog.Warn("agent bus shutting down, dropping result", "invocation_id", result.InvocationID)
	}
}

// TryNext returns a completed result without blocking, or (nil, false).
func (b *Bus) TryNext() (*Result, bool) {
	select {
	case r := <-b.resultsCh:
		atomic.AddInt32(&b.pending, -1)
		return r, true
	default:
		return nil, false
	}
}

// WaitNext blocks until a result arrives or ctx is cancelled.
func (b *Bus) WaitNext(ctx context.Context) (*Result, error) {
	select {
	case r := <-b.resultsCh:
		atomic.AddInt32(&b.pending, -1)
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HasPending reports whether any dispatched invocation's result is still
// unconsumed.
func (b *Bus) HasPending() bool {
	return atomic.LoadInt32(&b.pending) > 0
}

// Cancel requests cancellation of a single invocation, whether it is
// still queued or already running.
func (b *Bus) Cancel(invocationID string) error {
	b.mu.Lock()
	inv, ok := b.invocations[invocationID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("agent bus: unknown invocation %q", invocationID)
	}
	inv.canceled = true
	cancel := inv.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Shutdown stops the worker from admitting new queued tasks, cancels
// every running invocation, and unblocks any goroutine waiting to
// deliver a result that will never be consumed.
func (b *Bus) Shutdown() {
	b.closeOnce.Do(func() { close(b.closeCh) })

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, inv := range b.invocations {
		if inv.status == "running" && inv.cancel != nil {
			inv.cancel()
		}
	}
}

// Wait blocks until every dispatched invocation's goroutine has finished
// or ctx is cancelled.
func (b *Bus) Wait(ctx context.Context) {
	b.mu.Lock()
	invs := make([]*invocation, 0, len(b.invocations))
	for _, inv := range b.invocations {
		invs = append(invs, inv)
	}
	b.mu.Unlock()

	for _, inv := range invs {
		select {
		case <-inv.done:
		case <-ctx.Done():
			return
		}
	}
}
