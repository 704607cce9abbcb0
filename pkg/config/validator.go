package config

import "fmt"

// Validator validates a Config comprehensively with clear error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation, failing fast on the first
// invalid section.
func (v *Validator) ValidateAll() error {
	if err := v.validateAgent(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}
	if err := v.validateApproval(); err != nil {
		return fmt.Errorf("approval validation failed: %w", err)
	}
	if err := v.validateContext(); err != nil {
		return fmt.Errorf("context validation failed: %w", err)
	}
	if err := v.validateStream(); err != nil {
		return fmt.Errorf("stream validation failed: %w", err)
	}
	if err := v.validateOutbox(); err != nil {
		return fmt.Errorf("outbox validation failed: %w", err)
	}
	if err := v.validateRateLimit(); err != nil {
		return fmt.Errorf("rate_limit validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateAgent() error {
	a := v.cfg.Agent
	if a.MaxConcurrency < 1 {
		return NewValidationError("agent", "max_concurrency", fmt.Errorf("must be at least 1, got %d", a.MaxConcurrency))
	}
	if a.QueueSize < 1 {
		return NewValidationError("agent", "queue_size", fmt.Errorf("must be at least 1, got %d", a.QueueSize))
	}
	if a.TaskTimeout <= 0 {
		return NewValidationError("agent", "task_timeout", fmt.Errorf("must be positive, got %v", a.TaskTimeout))
	}
	return nil
}

func (v *Validator) validateApproval() error {
	a := v.cfg.Approval
	if a.Timeout <= 0 {
		return NewValidationError("approval", "timeout", fmt.Errorf("must be positive, got %v", a.Timeout))
	}
	if a.WarningBeforeTimeout < 0 {
		return NewValidationError("approval", "warning_before_timeout", fmt.Errorf("must be non-negative, got %v", a.WarningBeforeTimeout))
	}
	if a.WarningBeforeTimeout >= a.Timeout {
		return NewValidationError("approval", "warning_before_timeout", fmt.Errorf("must be less than timeout, got warning=%v timeout=%v", a.WarningBeforeTimeout, a.Timeout))
	}
	if a.MaxRetries < 0 {
		return NewValidationError("approval", "max_retries", fmt.Errorf("must be non-negative, got %d", a.MaxRetries))
	}
	return nil
}

func (v *Validator) validateContext() error {
	c := v.cfg.Context
	if c.MaxVectorsPerAgent < 1 {
		return NewValidationError("context", "max_vectors_per_agent", fmt.Errorf("must be at least 1, got %d", c.MaxVectorsPerAgent))
	}
	if c.SearchLimit < 1 {
		return NewValidationError("context", "search_limit", fmt.Errorf("must be at least 1, got %d", c.SearchLimit))
	}
	if c.PruneThreshold <= 0 || c.PruneThreshold > 1 {
		return NewValidationError("context", "prune_threshold", fmt.Errorf("must be in (0, 1], got %v", c.PruneThreshold))
	}
	return nil
}

func (v *Validator) validateStream() error {
	s := v.cfg.Stream
	if s.HeartbeatInterval <= 0 {
		return NewValidationError("stream", "heartbeat_interval", fmt.Errorf("must be positive, got %v", s.HeartbeatInterval))
	}
	if s.MaxConnectionsPerUser < 1 {
		return NewValidationError("stream", "max_connections_per_user", fmt.Errorf("must be at least 1, got %d", s.MaxConnectionsPerUser))
	}
	if s.EventBufferSize < 1 {
		return NewValidationError("stream", "event_buffer_size", fmt.Errorf("must be at least 1, got %d", s.EventBufferSize))
	}
	if s.EventTTL <= 0 {
		return NewValidationError("stream", "event_ttl", fmt.Errorf("must be positive, got %v", s.EventTTL))
	}
	return nil
}

func (v *Validator) validateOutbox() error {
	o := v.cfg.Outbox
	if o.BatchSize < 1 {
		return NewValidationError("outbox", "batch_size", fmt.Errorf("must be at least 1, got %d", o.BatchSize))
	}
	if o.MaxRetries < 0 {
		return NewValidationError("outbox", "max_retries", fmt.Errorf("must be non-negative, got %d", o.MaxRetries))
	}
	if o.InitialRetryDelay <= 0 {
		return NewValidationError("outbox", "initial_retry_delay_seconds", fmt.Errorf("must be positive, got %v", o.InitialRetryDelay))
	}
	if o.MaxRetryDelay < o.InitialRetryDelay {
		return NewValidationError("outbox", "max_retry_delay_seconds", fmt.Errorf("must be >= initial_retry_delay_seconds, got max=%v initial=%v", o.MaxRetryDelay, o.InitialRetryDelay))
	}
	if o.PollInterval <= 0 {
		return NewValidationError("outbox", "poll_interval_seconds", fmt.Errorf("must be positive, got %v", o.PollInterval))
	}
	return nil
}

func (v *Validator) validateRateLimit() error {
	r := v.cfg.RateLimit
	if r.PerMinute < 1 {
		return NewValidationError("rate_limit", "per_minute", fmt.Errorf("must be at least 1, got %d", r.PerMinute))
	}
	if r.Burst < 1 {
		return NewValidationError("rate_limit", "burst", fmt.Errorf("must be at least 1, got %d", r.Burst))
	}
	return nil
}
