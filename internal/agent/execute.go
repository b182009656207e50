package agent

import (
	"context"
	"errors"
	"time"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
	"github.com/tetsuo-ai/AgenC-sub003/internal/speculative"
	"github.com/tetsuo-ai/AgenC-sub003/internal/verifier"
)

// executeTask dispatches between the speculative and sequential execution
// paths. It returns the raw output bytes
// and whether the speculative path produced them.
func (a *Agent) executeTask(ctx context.Context, t task.Task, claim *task.Claim) ([]byte, bool, error) {
	gated := a.isVerifierGated(t)

	if a.cfg.SpeculationEnabled && a.speculative != nil && !gated && a.policy == nil {
		output, err := a.speculative.ExecuteWithSpeculation(ctx, t.Ref, t.Ref.ID, t.ConstraintHash, a.cfg.Producer, t.Reward, t.IsPrivate())
		switch {
		case err == nil:
			a.emit(trajectory.EventExecutedSpeculative, t.Ref, nil)
			if a.cb.OnTaskExecuted != nil {
				a.cb.OnTaskExecuted(t.Ref, true)
			}
			return output, true, nil
		case errors.Is(err, speculative.ErrNotEligible):
			// Not eligible for speculation right now: fall through to the
			// sequential path below.
		default:
			return nil, false, err
		}
	}

	if a.cfg.Execute == nil {
		return nil, false, errNoExecutor
	}

	if gated {
		result, err := a.runVerifierLane(ctx, t)
		if err != nil {
			return nil, false, err
		}
		a.emit(trajectory.EventExecuted, t.Ref, nil)
		if a.cb.OnTaskExecuted != nil {
			a.cb.OnTaskExecuted(t.Ref, false)
		}
		return result.Output, false, nil
	}

	output, err := a.cfg.Execute(ctx, t.Ref)
	if err != nil {
		return nil, false, err
	}
	a.emit(trajectory.EventExecuted, t.Ref, nil)
	if a.cb.OnTaskExecuted != nil {
		a.cb.OnTaskExecuted(t.Ref, false)
	}
	return output, false, nil
}

// runVerifierLane runs the plain executor once to produce a candidate,
// then hands it to the verifier lane's bounded critic/revision loop.
func (a *Agent) runVerifierLane(ctx context.Context, t task.Task) (*verifier.ExecutionResult, error) {
	initial, err := a.cfg.Execute(ctx, t.Ref)
	if err != nil {
		return nil, err
	}

	risk := verifier.RiskInputs{
		Reward:             t.Reward,
		RewardCeiling:      a.cfg.RewardCeiling,
		Deadline:           t.Deadline,
		Now:                time.Now(),
		UrgencyWindow:      a.cfg.UrgencyWindow,
		RequiredCapability: t.RequiredCapability,
		TaskType:           t.Type,
	}

	opts := verifier.RunOptions{
		TaskType: t.Type,
		Risk:     risk,
		Reward:   t.Reward,
		Initial:  initial,
		Critic:   a.cfg.Critic,
		Execute: func(ctx context.Context) ([]byte, error) {
			return a.cfg.Execute(ctx, t.Ref)
		},
		Revise:                   a.cfg.Revise,
		ReExecuteOnNeedsRevision: a.cfg.ReExecuteOnNeedsRevision,
		DisagreementThreshold:    a.cfg.DisagreementThreshold,
	}

	result, err := a.lane.Execute(ctx, opts)
	if result != nil {
		for _, v := range result.History {
			a.recordVerdict(t.Ref, v)
		}
	}
	return result, err
}

// escalateOrFail routes a post-execution error to the escalated or failed
// terminal state depending on whether it's a typed *lerrors.EscalationError
// from the verifier lane.
func (a *Agent) escalateOrFail(ref task.Ref, err error) {
	reason := a.escalationReason(err)
	if isEscalation(err) {
		a.registry.setState(ref, StateEscalated)
		a.emit(trajectory.EventEscalated, ref, map[string]interface{}{"reason": reason})
		if a.cb.OnTaskEscalated != nil {
			a.cb.OnTaskEscalated(ref, reason)
		}
		a.registry.remove(ref)
		return
	}
	a.failTask(ref, err)
}

// completeTask carries a finished task's output through the Proof
// Pipeline to ledger confirmation. The speculative
// path has already enqueued its own proof job internally, so only the
// wait-for-confirmation half runs for it; the sequential path enqueues
// first.
func (a *Agent) completeTask(ctx context.Context, t task.Task, claim *task.Claim, output []byte, speculativePath bool) {
	if a.proofs == nil {
		a.failTask(t.Ref, errors.New("agent: no proof pipeline configured"))
		return
	}

	if !speculativePath {
		if _, err := a.proofs.Enqueue(ctx, t.Ref, t.Ref.ID, t.ConstraintHash, output, t.IsPrivate()); err != nil {
			a.failTask(t.Ref, err)
			return
		}
	}

	job, err := a.proofs.WaitForConfirmation(ctx, t.Ref, a.cfg.ProofConfirmationTimeout)
	if err != nil {
		a.failTask(t.Ref, err)
		return
	}

	a.registry.setState(t.Ref, StateCompleted)
	a.emit(trajectory.EventProofGenerated, t.Ref, map[string]interface{}{
		"txSignature": job.TxSignature,
		"durationMs":  job.CompletedAt.Sub(job.StartedAt).Milliseconds(),
	})
	if a.cb.OnProofGenerated != nil {
		a.cb.OnProofGenerated(t.Ref, job.TaskID)
	}

	evtType := trajectory.EventCompleted
	if speculativePath {
		evtType = trajectory.EventCompletedSpeculative
	}
	a.emit(evtType, t.Ref, nil)
	if a.cb.OnTaskCompleted != nil {
		a.cb.OnTaskCompleted(t.Ref, speculativePath)
	}
	if a.cb.OnEarnings != nil {
		a.cb.OnEarnings(t.Ref, t.Reward)
	}
	a.registry.remove(t.Ref)
}
