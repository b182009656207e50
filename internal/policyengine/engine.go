package policyengine

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/policy"
)

// Engine evaluates actions against a loaded rule set, with optional
// polling-based hot-reload.
type Engine struct {
	mu            sync.RWMutex
	rules         []Rule
	defaultEffect Effect

	configPath   string
	lastModified time.Time
	logger       *logrus.Entry
}

// New constructs an Engine from an already-loaded Config.
func New(cfg Config, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		rules:         cfg.Rules,
		defaultEffect: cfg.DefaultEffect,
		logger:        logger.WithField("component", "policyengine"),
	}
}

// NewFromFile loads the engine from a YAML config file, tracking its path
// for later Watch calls.
func NewFromFile(path string, logger *logrus.Entry) (*Engine, error) {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	e := New(cfg, logger)
	e.configPath = path
	if path != "" {
		if info, statErr := os.Stat(path); statErr == nil {
			e.lastModified = info.ModTime()
		}
	}
	return e, nil
}

// Evaluate applies action against the configured rules: the first matching
// rule's effect decides the outcome; no match falls back to the engine's
// default effect.
func (e *Engine) Evaluate(action policy.Action, ctx map[string]interface{}) policy.Decision {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, r := range e.rules {
		if r.Action != action {
			continue
		}
		if !r.Matches(ctx) {
			continue
		}
		if r.Effect == EffectDeny {
			return policy.Decision{
				Allowed: false,
				Violations: []policy.Violation{{
					Rule:    r.Name,
					Reason:  r.Reason,
					Details: ctx,
				}},
			}
		}
		return policy.Decision{Allowed: true}
	}

	if e.defaultEffect == EffectDeny {
		return policy.Decision{
			Allowed: false,
			Violations: []policy.Violation{{
				Rule:   "default",
				Reason: "denied by default policy effect",
			}},
		}
	}
	return policy.Decision{Allowed: true}
}

// Reload re-reads the engine's configured file and swaps in the new rule
// set atomically.
func (e *Engine) Reload() error {
	e.mu.RLock()
	path := e.configPath
	e.mu.RUnlock()
	if path == "" {
		return nil
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		return err
	}

	var modTime time.Time
	if info, statErr := os.Stat(path); statErr == nil {
		modTime = info.ModTime()
	}

	e.mu.Lock()
	e.rules = cfg.Rules
	e.defaultEffect = cfg.DefaultEffect
	e.lastModified = modTime
	e.mu.Unlock()

	e.logger.WithField("path", path).Info("policy engine config reloaded")
	return nil
}

// Watch polls the configured file every interval and reloads it when its
// modification time changes, until ctx is cancelled. A zero interval or
// empty configPath disables watching.
func (e *Engine) Watch(ctx context.Context, interval time.Duration) {
	e.mu.RLock()
	path := e.configPath
	e.mu.RUnlock()
	if path == "" || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			e.mu.RLock()
			changed := info.ModTime().After(e.lastModified)
			e.mu.RUnlock()
			if changed {
				if err := e.Reload(); err != nil {
					e.logger.WithError(err).Warn("policy engine reload failed")
				}
			}
		}
	}
}

// RuleCount returns the number of loaded rules, mainly for tests/metrics.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}
