package outbox

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/codelab-platform/agent-control-plane/pkg/models"
)

// StreamPublisher is the narrow seam the outbox publisher needs from the
// stream broker: hand a fully-formed event to whatever session channel
// it belongs on.
type StreamPublisher interface {
	Broadcast(ctx context.Context, sessionID string, eventType string, payload map[string]any) error
}

// Config controls the publisher's batch size and retry/backoff schedule.
type Config struct {
	BatchSize         int
	MaxRetries        int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	PollInterval      time.Duration
}

// DefaultConfig mirrors the reference service's defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:         100,
		MaxRetries:        5,
		InitialRetryDelay: 5 * time.Second,
		MaxRetryDelay:     300 * time.Second,
		PollInterval:      5 * time.Second,
	}
}

var meter = otel.Meter("github.com/codelab-platform/agent-control-plane/pkg/outbox")

// Publisher polls the Repository for due events and delivers them to a
// StreamPublisher, tracking retry/backoff and terminal failure the way
// the reference outbox publisher service does.
type Publisher struct {
	repo   *Repository
	stream StreamPublisher
	cfg    Config

	publishedCounter metric.Int64Counter
	failedCounter    metric.Int64Counter
	pendingGauge     metric.Int64UpDownCounter

	publishedTotal atomic.Int64
	failedTotal    atomic.Int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPublisher builds a Publisher. Instruments register against the
// global otel MeterProvider; if none is configured they are no-ops.
func NewPublisher(repo *Repository, stream StreamPublisher, cfg Config) *Publisher {
	publishedCounter, _ := meter.Int64Counter("outbox_published_total")
	failedCounter, _ := meter.Int64Counter("outbox_failed_total")
	pendingGauge, _ := meter.Int64UpDownCounter("outbox_pending_count")

	return &Publisher{
		repo:             repo,
		stream:           stream,
		cfg:              cfg,
		publishedCounter: publishedCounter,
		failedCounter:    failedCounter,
		pendingGauge:     pendingGauge,
	}
}

// Start begins the polling loop in a goroutine. Calling Start while
// already running logs a warning and is otherwise a no-op.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		slog.Warn("outbox publisher already running")
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.run(ctx)
	slog.Info("outbox publisher started")
}

// Stop signals the loop to exit and waits for it to finish.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		slog.Warn("outbox publisher not running")
		return
	}
	p.running = false
	close(p.stopCh)
	doneCh := p.doneCh
	p.mu.Unlock()

	<-doneCh
	slog.Info("outbox publisher stopped")
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.doneCh)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := p.processBatch(ctx); err != nil {
			slog.Error("outbox publisher batch error", "error", err)
		}

		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

func (p *Publisher) processBatch(ctx context.Context) error {
	events, tx, err := p.repo.ClaimPending(ctx, p.cfg.BatchSize)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	p.pendingGauge.Add(ctx, int64(len(events)))
	if len(events) == 0 {
		return tx.Commit()
	}

	slog.Debug("processing pending outbox events", "count", len(events))
	for _, ev := range events {
		p.publishOne(ctx, tx, ev)
	}
	return tx.Commit()
}

func (p *Publisher) publishOne(ctx context.Context, tx *sql.Tx, ev *models.EventOutbox) {
	payload := make(map[string]any, len(ev.Payload)+3)
	for k, v := range ev.Payload {
		payload[k] = v
	}
	payload["event_id"] = ev.ID
	payload["aggregate_type"] = ev.AggregateType
	payload["aggregate_id"] = ev.AggregateID

	sessionID, _ := ev.Payload["session_id"].(string)

	err := p.stream.Broadcast(ctx, sessionID, ev.EventType, payload)
	if err == nil {
		if markErr := MarkPublished(ctx, tx, ev.ID); markErr != nil {
			slog.Error("outbox: failed recording publish success", "event_id", ev.ID, "error", markErr)
			return
		}
		p.publishedTotal.Add(1)
		p.publishedCounter.Add(ctx, 1)
		slog.Info("event published", "event_id", ev.ID, "event_type", ev.EventType, "user_id", ev.UserID)
		return
	}

	slog.Error("failed to publish event", "event_id", ev.ID, "event_type", ev.EventType, "error", err)

	delay := backoff(ev.RetryCount, p.cfg.InitialRetryDelay, p.cfg.MaxRetryDelay)
	nextRetryAt := time.Now().Add(delay)
	retryCount := ev.RetryCount + 1

	if ev.RetryCount >= p.cfg.MaxRetries {
		if markErr := MarkFailed(ctx, tx, ev.ID, retryCount, err.Error(), nil); markErr != nil {
			slog.Error("outbox: failed recording permanent failure", "event_id", ev.ID, "error", markErr)
			return
		}
		p.failedTotal.Add(1)
		p.failedCounter.Add(ctx, 1)
		slog.Error("event permanently failed", "event_id", ev.ID, "retry_count", retryCount, "error", err)
		return
	}

	if markErr := MarkFailed(ctx, tx, ev.ID, retryCount, err.Error(), &nextRetryAt); markErr != nil {
		slog.Error("outbox: failed recording retry schedule", "event_id", ev.ID, "error", markErr)
		return
	}
	slog.Info("event scheduled for retry", "event_id", ev.ID, "retry_count", retryCount, "next_retry_at", nextRetryAt)
}

// backoff computes min(initialDelay * 2^retryCount, maxDelay).
func backoff(retryCount int, initialDelay, maxDelay time.Duration) time.Duration {
	delay := initialDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}

// Reprocess resets a permanently-failed event to pending, for the
// operator-triggered reprocess endpoint.
func (p *Publisher) Reprocess(ctx context.Context, eventID string) error {
	return p.repo.Reprocess(ctx, eventID)
}

// Metrics is the publisher's point-in-time counters, as returned by
// GetMetrics. No HTTP route serves them.
type Metrics struct {
	PublishedTotal int64 `json:"published_total"`
	FailedTotal    int64 `json:"failed_total"`
}

// GetMetrics returns a snapshot of the publisher's counters.
func (p *Publisher) GetMetrics() Metrics {
	return Metrics{
		PublishedTotal: p.publishedTotal.Load(),
		FailedTotal:    p.failedTotal.Load(),
	}
}
