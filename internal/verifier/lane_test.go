package verifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lerrors "github.com/tetsuo-ai/AgenC-sub003/infrastructure/errors"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/verdict"
)

func testLane(cfg Config) *Lane {
	return NewLane(LaneConfig{
		Policy:     cfg,
		Guardrails: DefaultGuardrails(),
		AuditCap:   32,
	})
}

func TestExecutePassesOnFirstAttempt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.MaxVerificationDurationMs = 5000
	l := testLane(cfg)

	critic := func(ctx context.Context, output []byte) (verdict.Verdict, error) {
		return verdict.Verdict{Outcome: verdict.Pass, Confidence: 0.9}, nil
	}

	result, err := l.Execute(context.Background(), RunOptions{
		TaskType: task.TypeExclusive,
		Initial:  []byte("candidate"),
		Critic:   critic,
		Execute:  func(ctx context.Context) ([]byte, error) { return []byte("candidate"), nil },
	})
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, 1, result.Attempts)
}

func TestExecuteRevisesThenPasses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.MaxVerificationRetries = 3
	cfg.Global.MaxVerificationDurationMs = 5000
	l := testLane(cfg)

	calls := 0
	critic := func(ctx context.Context, output []byte) (verdict.Verdict, error) {
		calls++
		if string(output) == "revised" {
			return verdict.Verdict{Outcome: verdict.Pass, Confidence: 0.9}, nil
		}
		return verdict.Verdict{Outcome: verdict.NeedsRevision, Confidence: 0.5}, nil
	}
	revise := func(ctx context.Context, previous []byte, v verdict.Verdict) ([]byte, error) {
		return []byte("revised"), nil
	}

	result, err := l.Execute(context.Background(), RunOptions{
		TaskType: task.TypeExclusive,
		Initial:  []byte("draft"),
		Critic:   critic,
		Execute:  func(ctx context.Context) ([]byte, error) { return []byte("draft"), nil },
		Revise:   revise,
	})
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, 1, result.Revisions)
	assert.Equal(t, []byte("revised"), result.Output)
}

func TestExecuteEscalatesOnBudgetExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.MaxAllowedSpendLamports = 5
	cfg.Global.MaxVerificationDurationMs = 5000
	l := testLane(cfg)

	critic := func(ctx context.Context, output []byte) (verdict.Verdict, error) {
		return verdict.Verdict{Outcome: verdict.Fail, Confidence: 0.9}, nil
	}

	_, err := l.Execute(context.Background(), RunOptions{
		TaskType: task.TypeExclusive,
		Reward:   10,
		Initial:  []byte("x"),
		Critic:   critic,
		Execute:  func(ctx context.Context) ([]byte, error) { return []byte("x"), nil },
	})
	var esc *lerrors.EscalationError
	require.True(t, errors.As(err, &esc))
	assert.Equal(t, lerrors.EscalationBudgetExhausted, esc.Reason)
}

func TestExecuteEscalatesOnTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.MaxVerificationDurationMs = 1
	guardrails := DefaultGuardrails()
	guardrails.MinTimeout = 0
	l := NewLane(LaneConfig{Policy: cfg, Guardrails: guardrails, AuditCap: 32})

	callCount := 0
	critic := func(ctx context.Context, output []byte) (verdict.Verdict, error) {
		callCount++
		return verdict.Verdict{Outcome: verdict.Fail}, nil
	}

	start := time.Unix(0, 0)
	tick := 0
	l.now = func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Second)
	}

	_, err := l.Execute(context.Background(), RunOptions{
		TaskType: task.TypeExclusive,
		Initial:  []byte("x"),
		Critic:   critic,
		Execute:  func(ctx context.Context) ([]byte, error) { return []byte("x"), nil },
	})
	var esc *lerrors.EscalationError
	require.True(t, errors.As(err, &esc))
	assert.Equal(t, lerrors.EscalationVerifierTimeout, esc.Reason)
	assert.Equal(t, 0, callCount, "deadline already elapsed before the first critic call")
}

func TestExecuteForcesFailOnUnrecognizedVerdict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.MaxVerificationRetries = 0
	cfg.Global.MaxVerificationDurationMs = 5000
	l := testLane(cfg)

	critic := func(ctx context.Context, output []byte) (verdict.Verdict, error) {
		return verdict.Verdict{Outcome: verdict.Outcome(99), Confidence: 1}, nil
	}

	_, err := l.Execute(context.Background(), RunOptions{
		TaskType: task.TypeExclusive,
		Initial:  []byte("x"),
		Critic:   critic,
		Execute:  func(ctx context.Context) ([]byte, error) { return []byte("x"), nil },
	})
	var esc *lerrors.EscalationError
	require.True(t, errors.As(err, &esc))
	lastVerdict, ok := esc.LastVerdict.(verdict.Verdict)
	require.True(t, ok)
	assert.Equal(t, verdict.Fail, lastVerdict.Outcome)
	assert.Equal(t, "invalid_verdict", lastVerdict.Reasons[0].Code)
}

func TestExecuteDowngradesLowConfidencePass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.MinConfidence = 0.9
	cfg.Global.MaxVerificationRetries = 0
	cfg.Global.MaxVerificationDurationMs = 5000
	l := testLane(cfg)

	critic := func(ctx context.Context, output []byte) (verdict.Verdict, error) {
		return verdict.Verdict{Outcome: verdict.Pass, Confidence: 0.4}, nil
	}

	_, err := l.Execute(context.Background(), RunOptions{
		TaskType: task.TypeExclusive,
		Initial:  []byte("x"),
		Critic:   critic,
		Execute:  func(ctx context.Context) ([]byte, error) { return []byte("x"), nil },
	})
	var esc *lerrors.EscalationError
	require.True(t, errors.As(err, &esc))
	lastVerdict := esc.LastVerdict.(verdict.Verdict)
	assert.Equal(t, verdict.Fail, lastVerdict.Outcome)
	assert.Equal(t, "confidence_below_threshold", lastVerdict.Reasons[0].Code)
}

func TestExecuteSkipsWhenDisabled(t *testing.T) {
	cfg := Config{Global: ExecutionPolicy{Enabled: false}}
	l := testLane(cfg)

	result, err := l.Execute(context.Background(), RunOptions{
		TaskType: task.TypeExclusive,
		Initial:  []byte("unverified"),
	})
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, []byte("unverified"), result.Output)
}
