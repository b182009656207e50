// Package verifier implements the Verifier Lane: policy
// resolution, adaptive risk scoring, budget allocation with guardrails and
// an audit trail, and the bounded critic/revision execution loop that
// terminates in a pass or a typed escalation.
package verifier

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	lerrors "github.com/tetsuo-ai/AgenC-sub003/infrastructure/errors"
	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/ratelimit"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/verdict"
)

// Critic judges a candidate output. Implementations must respect ctx's
// deadline; the lane races the call against the remaining budget.
type Critic func(ctx context.Context, output []byte) (verdict.Verdict, error)

// BaseExecutor produces (or reproduces) a candidate output from scratch.
type BaseExecutor func(ctx context.Context) ([]byte, error)

// RevisionExecutor produces a revised output given the previous candidate
// and the verdict that rejected it. A nil RevisionExecutor means no
// revision path is available.
type RevisionExecutor func(ctx context.Context, previous []byte, v verdict.Verdict) ([]byte, error)

// RunOptions configures one Execute call beyond the resolved policy.
type RunOptions struct {
	TaskType                 task.Type
	Risk                     RiskInputs
	Reward                   uint64
	Initial                  []byte
	Critic                   Critic
	Execute                  BaseExecutor
	Revise                   RevisionExecutor
	ReExecuteOnNeedsRevision bool
	DisagreementThreshold    int
}

// ExecutionResult is the verifier lane's output.
type ExecutionResult struct {
	Output      []byte
	Attempts    int
	Revisions   int
	DurationMs  int64
	Passed      bool
	Escalated   bool
	History     []verdict.Verdict
	LastVerdict verdict.Verdict
	AdaptiveRisk *Assessment
}

// Lane runs the verifier execution loop for one resolved policy.
type Lane struct {
	config     Config
	weights    RiskWeights
	thresholds RiskThresholds
	allocator  *Allocator
	logger     *logrus.Entry
	now        func() time.Time
}

// LaneConfig bundles Lane's constructor dependencies.
type LaneConfig struct {
	Policy     Config
	Weights    RiskWeights
	Thresholds RiskThresholds
	Guardrails Guardrails
	AuditCap   int

	// BudgetCheckRateLimit bounds how often the allocator may recompute a
	// fresh budget decision per task type. The zero value disables pacing.
	BudgetCheckRateLimit ratelimit.Config

	Logger *logrus.Entry
	Now    func() time.Time
}

// NewLane constructs a Lane, defaulting unset fields the way the rest of
// the runtime does: zero-value weights/thresholds/guardrails fall back to
// the package defaults.
func NewLane(cfg LaneConfig) *Lane {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	weights := cfg.Weights
	if weights == (RiskWeights{}) {
		weights = DefaultRiskWeights()
	}
	thresholds := cfg.Thresholds
	if thresholds == (RiskThresholds{}) {
		thresholds = DefaultRiskThresholds()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	guardrails := cfg.Guardrails
	if guardrails == (Guardrails{}) {
		guardrails = DefaultGuardrails()
	}
	allocator := NewAllocator(guardrails, cfg.AuditCap)
	if cfg.BudgetCheckRateLimit.RequestsPerSecond > 0 {
		allocator.WithRateLimit(ratelimit.New(cfg.BudgetCheckRateLimit))
	}
	return &Lane{
		config:     cfg.Policy,
		weights:    weights,
		thresholds: thresholds,
		allocator:  allocator,
		logger:     logger.WithField("component", "verifier.lane"),
		now:        now,
	}
}

// Execute runs the bounded critic/revision loop. It
// returns *EscalationError (via errors.As-compatible wrapping) when the
// escalation graph terminates in TransitionEscalate.
func (l *Lane) Execute(ctx context.Context, opts RunOptions) (*ExecutionResult, error) {
	policy := l.config.Resolve(opts.TaskType)
	if !policy.Enabled {
		return &ExecutionResult{Output: opts.Initial, Passed: true}, nil
	}

	assessment := Assessment{Tier: TierMedium}
	if policy.AdaptiveRiskEnabled {
		assessment = Score(l.weights, l.thresholds, opts.Risk)
	}
	budget, batchID := l.allocator.Allocate(opts.TaskType, policy, assessment)

	start := l.now()
	deadline := start.Add(budget.Timeout)

	result := &ExecutionResult{Output: opts.Initial, AdaptiveRisk: &assessment}
	output := opts.Initial
	consecutiveDisagreements := 0
	maxAttempts := budget.Retries + 1

	var escalation *lerrors.EscalationError

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		if budget.MaxSpend > 0 {
			projected := opts.Reward * uint64(attempt)
			if projected > budget.MaxSpend {
				escalation = l.escalate(result, lerrors.EscalationBudgetExhausted, start)
				break
			}
		}

		remaining := deadline.Sub(l.now())
		if remaining <= 0 {
			escalation = l.escalate(result, lerrors.EscalationVerifierTimeout, start)
			break
		}

		v, err := l.callCritic(ctx, opts.Critic, output, remaining)
		if err != nil {
			escalation = l.escalate(result, lerrors.EscalationVerifierError, start)
			break
		}
		v = l.normalize(v, budget.MinConfidence)
		result.History = append(result.History, v)
		result.LastVerdict = v

		if v.Outcome != verdict.Pass {
			consecutiveDisagreements++
		} else {
			consecutiveDisagreements = 0
		}

		transition, reason := Next(EscalationInputs{
			Verdict:                  v.Outcome,
			Attempt:                  attempt,
			MaxAttempts:              maxAttempts,
			ConsecutiveDisagreements: consecutiveDisagreements,
			DisagreementThreshold:    opts.DisagreementThreshold,
			RevisionAvailable:        opts.Revise != nil,
			ReExecuteOnNeedsRevision: opts.ReExecuteOnNeedsRevision,
		})

		switch transition {
		case TransitionPass:
			result.Output = output
			result.Passed = true
			l.allocator.RecordOutcome(batchID, true)
			result.DurationMs = l.now().Sub(start).Milliseconds()
			return result, nil
		case TransitionEscalate:
			escalation = l.escalate(result, reason, start)
		case TransitionRevise:
			remaining = deadline.Sub(l.now())
			if remaining <= 0 {
				escalation = l.escalate(result, lerrors.EscalationVerifierTimeout, start)
				break
			}
			revised, err := l.runWithDeadline(ctx, remaining, func(ctx context.Context) ([]byte, error) {
				return opts.Revise(ctx, output, v)
			})
			if err != nil {
				escalation = l.escalate(result, lerrors.EscalationVerifierError, start)
				break
			}
			output = revised
			result.Revisions++
		case TransitionRetryExecute:
			remaining = deadline.Sub(l.now())
			if remaining <= 0 {
				escalation = l.escalate(result, lerrors.EscalationVerifierTimeout, start)
				break
			}
			reexecuted, err := l.runWithDeadline(ctx, remaining, opts.Execute)
			if err != nil {
				escalation = l.escalate(result, lerrors.EscalationVerifierError, start)
				break
			}
			output = reexecuted
		}

		if escalation != nil {
			break
		}
	}

	result.DurationMs = l.now().Sub(start).Milliseconds()
	if escalation == nil {
		escalation = l.escalate(result, lerrors.EscalationVerifierFailed, start)
	}
	l.allocator.RecordOutcome(batchID, false)
	return result, escalation
}

func (l *Lane) escalate(result *ExecutionResult, reason lerrors.EscalationReason, start time.Time) *lerrors.EscalationError {
	result.Escalated = true
	history := make([]interface{}, len(result.History))
	for i, v := range result.History {
		history[i] = v
	}
	var last interface{}
	if len(result.History) > 0 {
		last = result.LastVerdict
	}
	return &lerrors.EscalationError{
		Reason:         reason,
		Attempt:        result.Attempts,
		Revisions:      result.Revisions,
		DurationMs:     l.now().Sub(start).Milliseconds(),
		LastVerdict:    last,
		VerdictHistory: history,
	}
}

// normalize clamps confidence and forces fail on an unrecognized or
// under-confident verdict.
func (l *Lane) normalize(v verdict.Verdict, minConfidence float64) verdict.Verdict {
	v = v.Clamp()
	if v.Outcome != verdict.Pass && v.Outcome != verdict.Fail && v.Outcome != verdict.NeedsRevision {
		return verdict.Verdict{Outcome: verdict.Fail, Confidence: v.Confidence}.
			WithReason(verdict.Reason{Code: "invalid_verdict", Message: "verifier returned an unrecognized outcome"})
	}
	if v.Outcome == verdict.Pass && v.Confidence < minConfidence {
		v.Outcome = verdict.Fail
		v = v.WithReason(verdict.Reason{Code: "confidence_below_threshold", Message: "pass confidence fell below the configured minimum"})
	}
	return v
}

// callCritic races the critic call against remaining, returning whichever
// resolves first.
func (l *Lane) callCritic(ctx context.Context, critic Critic, output []byte, remaining time.Duration) (verdict.Verdict, error) {
	type res struct {
		v   verdict.Verdict
		err error
	}
	ctx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	ch := make(chan res, 1)
	go func() {
		v, err := critic(ctx, output)
		ch <- res{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return verdict.Verdict{}, ctx.Err()
	}
}

func (l *Lane) runWithDeadline(ctx context.Context, remaining time.Duration, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	type res struct {
		out []byte
		err error
	}
	ch := make(chan res, 1)
	go func() {
		out, err := fn(ctx)
		ch <- res{out: out, err: err}
	}()

	select {
	case r := <-ch:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
