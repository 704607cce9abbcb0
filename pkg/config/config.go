package config

import "time"

// Config is the umbrella configuration object for the control plane. It is
// the primary object returned by Initialize and threaded through cmd/ wiring.
type Config struct {
	configDir string

	Agent     AgentPoolConfig
	Approval  ApprovalConfig
	Context   ContextStoreConfig
	Stream    StreamConfig
	Outbox    OutboxConfig
	RateLimit RateLimitConfig
}

// ConfigDir returns the directory Initialize loaded this configuration from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// AgentPoolConfig bounds how much concurrent work the worker space allows
// per agent and how long a single task may run before it is treated as
// stuck.
type AgentPoolConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency"`
	QueueSize      int           `yaml:"queue_size"`
	TaskTimeout    time.Duration `yaml:"task_timeout"`
}

// ApprovalConfig governs how long a pending approval request lives before
// it expires and how it escalates as that deadline approaches.
type ApprovalConfig struct {
	Timeout              time.Duration `yaml:"timeout"`
	WarningBeforeTimeout time.Duration `yaml:"warning_before_timeout"`
	MaxRetries           int           `yaml:"max_retries"`
}

// ContextStoreConfig bounds the per-agent vector store and tunes retrieval.
type ContextStoreConfig struct {
	MaxVectorsPerAgent int     `yaml:"max_vectors_per_agent"`
	SearchLimit        int     `yaml:"search_limit"`
	PruneThreshold     float64 `yaml:"prune_threshold"`
}

// StreamConfig tunes the NDJSON event stream served to clients.
type StreamConfig struct {
	HeartbeatInterval     time.Duration `yaml:"heartbeat_interval"`
	MaxConnectionsPerUser int           `yaml:"max_connections_per_user"`
	EventBufferSize       int           `yaml:"event_buffer_size"`
	EventTTL              time.Duration `yaml:"event_ttl"`
}

// OutboxConfig tunes the transactional outbox publisher's batching and
// retry/backoff behavior.
type OutboxConfig struct {
	BatchSize         int           `yaml:"batch_size"`
	MaxRetries        int           `yaml:"max_retries"`
	InitialRetryDelay time.Duration `yaml:"initial_retry_delay_seconds"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay_seconds"`
	PollInterval      time.Duration `yaml:"poll_interval_seconds"`
}

// RateLimitConfig bounds per-user request throughput at the API layer.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
}

// Defaults returns a Config populated with the documented default values,
// used as the merge base before user-supplied YAML is applied on top.
func Defaults() Config {
	return Config{
		Agent: AgentPoolConfig{
			MaxConcurrency: 3,
			QueueSize:      100,
			TaskTimeout:    600 * time.Second,
		},
		Approval: ApprovalConfig{
			Timeout:              300 * time.Second,
			WarningBeforeTimeout: 60 * time.Second,
			MaxRetries:           3,
		},
		Context: ContextStoreConfig{
			MaxVectorsPerAgent: 1_000_000,
			SearchLimit:        10,
			PruneThreshold:     0.9,
		},
		Stream: StreamConfig{
			HeartbeatInterval:     30 * time.Second,
			MaxConnectionsPerUser: 1000,
			EventBufferSize:       100,
			EventTTL:              300 * time.Second,
		},
		Outbox: OutboxConfig{
			BatchSize:         100,
			MaxRetries:        5,
			InitialRetryDelay: 5 * time.Second,
			MaxRetryDelay:     300 * time.Second,
			PollInterval:      5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 100,
			Burst:     20,
		},
	}
}
