package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// yamlConfig mirrors the top-level keys of control-plane.yaml. Every field
// is a pointer or has its zero value treated as "unset" so mergo only
// overrides what the operator actually specified.
type yamlConfig struct {
	Agent     *AgentPoolConfig    `yaml:"agent"`
	Approval  *ApprovalConfig     `yaml:"approval"`
	Context   *ContextStoreConfig `yaml:"context"`
	Stream    *StreamConfig       `yaml:"stream"`
	Outbox    *OutboxConfig       `yaml:"outbox"`
	RateLimit *RateLimitConfig    `yaml:"rate_limit"`
}

// Initialize loads control-plane.yaml from configDir, expands environment
// variables, layers it on top of the documented defaults, and validates the
// result before handing back a ready-to-use Config.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"agent_max_concurrency", cfg.Agent.MaxConcurrency,
		"approval_timeout", cfg.Approval.Timeout,
		"rate_limit_per_minute", cfg.RateLimit.PerMinute)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	defaults := Defaults()
	cfg := &Config{
		configDir: configDir,
		Agent:     defaults.Agent,
		Approval:  defaults.Approval,
		Context:   defaults.Context,
		Stream:    defaults.Stream,
		Outbox:    defaults.Outbox,
		RateLimit: defaults.RateLimit,
	}

	path := filepath.Join(configDir, "control-plane.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No file on disk is not fatal — run entirely on defaults plus
			// whatever the environment overrides at deploy time.
			return cfg, nil
		}
		return nil, NewLoadError("control-plane.yaml", err)
	}

	data = ExpandEnv(data)

	var overrides yamlConfig
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, NewLoadError("control-plane.yaml", fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	if overrides.Agent != nil {
		if err := mergo.Merge(&cfg.Agent, overrides.Agent, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge agent config: %w", err)
		}
	}
	if overrides.Approval != nil {
		if err := mergo.Merge(&cfg.Approval, overrides.Approval, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge approval config: %w", err)
		}
	}
	if overrides.Context != nil {
		if err := mergo.Merge(&cfg.Context, overrides.Context, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge context config: %w", err)
		}
	}
	if overrides.Stream != nil {
		if err := mergo.Merge(&cfg.Stream, overrides.Stream, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge stream config: %w", err)
		}
	}
	if overrides.Outbox != nil {
		if err := mergo.Merge(&cfg.Outbox, overrides.Outbox, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge outbox config: %w", err)
		}
	}
	if overrides.RateLimit != nil {
		if err := mergo.Merge(&cfg.RateLimit, overrides.RateLimit, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge rate_limit config: %w", err)
		}
	}

	return cfg, nil
}
