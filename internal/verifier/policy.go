package verifier

import (
	"time"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// ExecutionPolicy is the resolved per-task verifier configuration.
type ExecutionPolicy struct {
	Enabled                   bool
	MinConfidence             float64
	MaxVerificationRetries    int
	MaxVerificationDurationMs int64
	MaxAllowedSpendLamports   uint64
	AdaptiveRiskEnabled       bool
}

// MaxAttempts returns retries+1, the execution loop's attempt ceiling.
func (p ExecutionPolicy) MaxAttempts() int {
	return p.MaxVerificationRetries + 1
}

// Deadline returns the wall-clock deadline for the whole verification run.
func (p ExecutionPolicy) Deadline() time.Duration {
	return time.Duration(p.MaxVerificationDurationMs) * time.Millisecond
}

// TaskTypeOverride narrows an ExecutionPolicy for one task.Type.
type TaskTypeOverride struct {
	Type                      task.Type
	Enabled                   *bool
	MinConfidence             *float64
	MaxVerificationRetries    *int
	MaxVerificationDurationMs *int64
	MaxAllowedSpendLamports   *uint64
	AdaptiveRiskEnabled       *bool
}

// Config is the global verifier-lane policy plus per-task-type overrides.
type Config struct {
	Global    ExecutionPolicy
	Overrides []TaskTypeOverride
}

// DefaultConfig returns a conservative baseline policy.
func DefaultConfig() Config {
	return Config{
		Global: ExecutionPolicy{
			Enabled:                   true,
			MinConfidence:             0.7,
			MaxVerificationRetries:    2,
			MaxVerificationDurationMs: 30_000,
			MaxAllowedSpendLamports:   0,
			AdaptiveRiskEnabled:       true,
		},
	}
}

// Resolve merges the global policy with the first matching per-task-type
// override, field by field, so an override only needs to set the fields it
// wants to change.
func (c Config) Resolve(t task.Type) ExecutionPolicy {
	resolved := c.Global
	for _, o := range c.Overrides {
		if o.Type != t {
			continue
		}
		if o.Enabled != nil {
			resolved.Enabled = *o.Enabled
		}
		if o.MinConfidence != nil {
			resolved.MinConfidence = *o.MinConfidence
		}
		if o.MaxVerificationRetries != nil {
			resolved.MaxVerificationRetries = *o.MaxVerificationRetries
		}
		if o.MaxVerificationDurationMs != nil {
			resolved.MaxVerificationDurationMs = *o.MaxVerificationDurationMs
		}
		if o.MaxAllowedSpendLamports != nil {
			resolved.MaxAllowedSpendLamports = *o.MaxAllowedSpendLamports
		}
		if o.AdaptiveRiskEnabled != nil {
			resolved.AdaptiveRiskEnabled = *o.AdaptiveRiskEnabled
		}
		break
	}
	return resolved
}
