package agent

import (
	"context"

	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/resilience"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/policy"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
	"github.com/tetsuo-ai/AgenC-sub003/system/framework/lifecycle"
)

// HandleDiscovered drives one task through the full claim/execute/complete
// pipeline. It is safe to call concurrently for distinct
// tasks; admission is gated by the registry's inflight count.
func (a *Agent) HandleDiscovered(ctx context.Context, t task.Task) {
	guard := lifecycle.NewOperationGuard(a.shutdown)
	if guard == nil {
		a.logger.WithField("task", t.Ref.Address).Debug("dropping discovered task, shutting down")
		return
	}
	defer guard.Close()

	a.registry.upsert(t.Ref, StateDiscovered)
	a.emit(trajectory.EventDiscovered, t.Ref, t)
	if a.cb.OnTaskDiscovered != nil {
		a.cb.OnTaskDiscovered(t)
	}
	a.registry.setState(t.Ref, StatePending)

	claim, err := a.claimTask(ctx, t)
	if err != nil {
		a.failTask(t.Ref, err)
		return
	}

	a.registry.setState(t.Ref, StateActive)

	output, speculative, err := a.executeTask(ctx, t, claim)
	if err != nil {
		a.escalateOrFail(t.Ref, err)
		return
	}

	a.registry.setState(t.Ref, StateAwaitingProof)
	a.completeTask(ctx, t, claim, output, speculative)
}

// claimTask runs the claim pipeline: policy check, admission cap, then
// claimTask with retry.
func (a *Agent) claimTask(ctx context.Context, t task.Task) (*task.Claim, error) {
	policyCtx := map[string]interface{}{
		"taskType":           t.Type.String(),
		"reward":             float64(t.Reward),
		"requiredCapability": float64(t.RequiredCapability),
	}
	decision := a.evaluatePolicy(policy.ActionTaskClaim, policyCtx)
	if !decision.Allowed {
		a.recordPolicyViolation(t.Ref, policy.ActionTaskClaim, decision)
		return nil, errPolicyDenied
	}

	if a.registry.inflightCount() >= a.cfg.MaxConcurrentTasks {
		return nil, errAdmissionCapReached
	}
	if a.health != nil && !a.health.Last().Healthy(a.cfg.MaxCPUPercent, a.cfg.MaxMemoryPercent) {
		return nil, errResourcePressure
	}

	var claim *task.Claim
	err := resilience.RetryObserved(ctx, a.cfg.RetryConfig, func() error {
		c, cerr := a.ledger.ClaimTask(ctx, t.Ref)
		if cerr != nil {
			return cerr
		}
		claim = c
		return nil
	}, func(att resilience.Attempt) {
		if att.Err != nil {
			a.logger.WithField("task", t.Ref.Address).WithField("attempt", att.Number).
				WithError(att.Err).Warn("claim attempt failed")
		}
	})
	if err != nil {
		return nil, err
	}

	a.emit(trajectory.EventClaimed, t.Ref, claim)
	if a.cb.OnTaskClaimed != nil {
		a.cb.OnTaskClaimed(*claim)
	}
	return claim, nil
}

// failTask records a pre-execution failure (policy denial, admission
// rejection, or claim failure after retries) and drops the task's
// bookkeeping.
func (a *Agent) failTask(ref task.Ref, err error) {
	a.registry.setState(ref, StateFailed)
	a.emit(trajectory.EventFailed, ref, map[string]interface{}{"error": err.Error()})
	if a.cb.OnTaskFailed != nil {
		a.cb.OnTaskFailed(ref, err)
	}
	a.registry.remove(ref)
}
