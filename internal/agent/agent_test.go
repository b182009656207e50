package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lerrors "github.com/tetsuo-ai/AgenC-sub003/infrastructure/errors"
	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/resilience"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/policy"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/proof"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/verdict"
	"github.com/tetsuo-ai/AgenC-sub003/internal/speculative"
	"github.com/tetsuo-ai/AgenC-sub003/internal/verifier"
)

type fakeLedgerOps struct {
	mu       sync.Mutex
	claims   map[string]*task.Claim
	claimErr error
}

func newFakeLedgerOps() *fakeLedgerOps {
	return &fakeLedgerOps{claims: make(map[string]*task.Claim)}
}

func (f *fakeLedgerOps) ClaimTask(ctx context.Context, ref task.Ref) (*task.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	c := &task.Claim{TaskRef: ref, Worker: "worker-1", ClaimedAt: time.Now()}
	f.claims[ref.Address] = c
	return c, nil
}

type fakeProofs struct {
	mu         sync.Mutex
	enqueued   []task.Ref
	confirmErr error
	job        proof.Job
}

func (f *fakeProofs) Enqueue(ctx context.Context, ref task.Ref, taskID [32]byte, constraintHash [32]byte, result []byte, isPrivate bool) (*proof.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, ref)
	return &proof.Job{TaskRef: ref, TaskID: taskID, ConstraintHash: constraintHash, Result: result, IsPrivate: isPrivate, Status: proof.StatusQueued}, nil
}

func (f *fakeProofs) WaitForConfirmation(ctx context.Context, ref task.Ref, timeout time.Duration) (*proof.Job, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	job := f.job
	job.TaskRef = ref
	job.Status = proof.StatusConfirmed
	return &job, nil
}

func (f *fakeProofs) CancelJob(ref task.Ref) {}

func (f *fakeProofs) Shutdown(timeout time.Duration) error { return nil }

type fakeSpeculativeExecutor struct {
	output []byte
	err    error
	calls  int
}

func (f *fakeSpeculativeExecutor) ExecuteWithSpeculation(ctx context.Context, ref task.Ref, taskID [32]byte, constraintHash [32]byte, producer string, stakeAtRisk uint64, isPrivate bool) ([]byte, error) {
	f.calls++
	return f.output, f.err
}

type fakePolicyEngine struct {
	decision policy.Decision
}

func (f *fakePolicyEngine) Evaluate(action policy.Action, ctx map[string]interface{}) policy.Decision {
	return f.decision
}

type fakeLane struct {
	result *verifier.ExecutionResult
	err    error
}

func (f *fakeLane) Execute(ctx context.Context, opts verifier.RunOptions) (*verifier.ExecutionResult, error) {
	return f.result, f.err
}

type fakeDiscovery struct {
	started, stopped int
}

func (f *fakeDiscovery) Start(ctx context.Context) { f.started++ }
func (f *fakeDiscovery) Stop()                     { f.stopped++ }

func testTask(addr string) task.Task {
	return task.Task{
		Ref:    task.Ref{Address: addr},
		Type:   task.TypeExclusive,
		Reward: 100,
	}
}

func quickRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		Multiplier:   1,
		Sleep:        func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func TestHandleDiscoveredSequentialPathCompletesSuccessfully(t *testing.T) {
	ledger := newFakeLedgerOps()
	proofs := &fakeProofs{}
	var completed []task.Ref

	a := New(Config{
		MaxConcurrentTasks: 5,
		RetryConfig:        quickRetry(),
		Execute: func(ctx context.Context, ref task.Ref) ([]byte, error) {
			return []byte("result"), nil
		},
	}, Dependencies{
		Ledger: ledger,
		Proofs: proofs,
		Callbacks: Callbacks{
			OnTaskCompleted: func(ref task.Ref, speculative bool) {
				completed = append(completed, ref)
			},
		},
	})

	tk := testTask("task-1")
	a.HandleDiscovered(context.Background(), tk)

	require.Len(t, completed, 1)
	assert.Equal(t, "task-1", completed[0].Address)
	assert.Len(t, proofs.enqueued, 1)

	rec, ok := a.registry.get(tk.Ref)
	assert.False(t, ok || rec != nil && !rec.state.Terminal())
}

func TestHandleDiscoveredPolicyDeniedDropsTask(t *testing.T) {
	ledger := newFakeLedgerOps()
	var violations int

	a := New(Config{MaxConcurrentTasks: 5, RetryConfig: quickRetry()}, Dependencies{
		Ledger: ledger,
		Policy: &fakePolicyEngine{decision: policy.Decision{
			Allowed:    false,
			Violations: []policy.Violation{{Rule: "r", Reason: "denied"}},
		}},
		Callbacks: Callbacks{
			OnPolicyViolation: func(ref task.Ref, action, reason string) { violations++ },
		},
	})

	tk := testTask("task-2")
	a.HandleDiscovered(context.Background(), tk)

	assert.Equal(t, 1, violations)
	ledger.mu.Lock()
	_, claimed := ledger.claims[tk.Ref.Address]
	ledger.mu.Unlock()
	assert.False(t, claimed)
}

func TestHandleDiscoveredAdmissionCapRejectsClaim(t *testing.T) {
	ledger := newFakeLedgerOps()
	var failed int

	a := New(Config{MaxConcurrentTasks: 1, RetryConfig: quickRetry()}, Dependencies{
		Ledger: ledger,
		Callbacks: Callbacks{
			OnTaskFailed: func(ref task.Ref, err error) { failed++ },
		},
	})
	// Pre-occupy the single admission slot.
	a.registry.upsert(task.Ref{Address: "occupied"}, StateActive)

	tk := testTask("task-3")
	a.HandleDiscovered(context.Background(), tk)

	assert.Equal(t, 1, failed)
}

func TestHandleDiscoveredSpeculativePathUsesSpeculativeExecutor(t *testing.T) {
	ledger := newFakeLedgerOps()
	proofs := &fakeProofs{}
	spec := &fakeSpeculativeExecutor{output: []byte("spec-result")}
	var completedSpeculative bool

	a := New(Config{
		MaxConcurrentTasks: 5,
		SpeculationEnabled: true,
		RetryConfig:        quickRetry(),
	}, Dependencies{
		Ledger:      ledger,
		Proofs:      proofs,
		Speculative: spec,
		Callbacks: Callbacks{
			OnTaskCompleted: func(ref task.Ref, speculative bool) { completedSpeculative = speculative },
		},
	})

	tk := testTask("task-4")
	a.HandleDiscovered(context.Background(), tk)

	assert.Equal(t, 1, spec.calls)
	assert.True(t, completedSpeculative)
	// Speculative path already enqueued its own proof job internally; the
	// agent must not enqueue a second one.
	assert.Len(t, proofs.enqueued, 0)
}

func TestHandleDiscoveredFallsBackToSequentialWhenNotEligible(t *testing.T) {
	ledger := newFakeLedgerOps()
	proofs := &fakeProofs{}
	spec := &fakeSpeculativeExecutor{err: speculative.ErrNotEligible}
	executed := 0

	a := New(Config{
		MaxConcurrentTasks: 5,
		SpeculationEnabled: true,
		RetryConfig:        quickRetry(),
		Execute: func(ctx context.Context, ref task.Ref) ([]byte, error) {
			executed++
			return []byte("sequential-result"), nil
		},
	}, Dependencies{
		Ledger:      ledger,
		Proofs:      proofs,
		Speculative: spec,
	})

	tk := testTask("task-5")
	a.HandleDiscovered(context.Background(), tk)

	assert.Equal(t, 1, spec.calls)
	assert.Equal(t, 1, executed)
	assert.Len(t, proofs.enqueued, 1)
}

func TestHandleDiscoveredEscalationMarksEscalated(t *testing.T) {
	ledger := newFakeLedgerOps()
	lane := &fakeLane{err: &lerrors.EscalationError{Reason: lerrors.EscalationVerifierFailed}}
	var escalatedReason string

	a := New(Config{
		MaxConcurrentTasks: 5,
		RetryConfig:        quickRetry(),
		VerifierPolicy:     verifier.Config{Global: verifier.ExecutionPolicy{Enabled: true}},
		Execute: func(ctx context.Context, ref task.Ref) ([]byte, error) {
			return []byte("candidate"), nil
		},
	}, Dependencies{
		Ledger: ledger,
		Lane:   lane,
		Callbacks: Callbacks{
			OnTaskEscalated: func(ref task.Ref, reason string) { escalatedReason = reason },
		},
	})

	tk := testTask("task-6")
	a.HandleDiscovered(context.Background(), tk)

	assert.Equal(t, string(lerrors.EscalationVerifierFailed), escalatedReason)
	_, tracked := a.registry.get(tk.Ref)
	assert.False(t, tracked)
}

func TestHandleDiscoveredVerifierGatedRunsLaneAndCompletes(t *testing.T) {
	ledger := newFakeLedgerOps()
	proofs := &fakeProofs{}
	lane := &fakeLane{result: &verifier.ExecutionResult{
		Output: []byte("verified"),
		Passed: true,
		History: []verdict.Verdict{{Outcome: verdict.Pass, Confidence: 0.9}},
	}}
	var verdicts int

	a := New(Config{
		MaxConcurrentTasks: 5,
		RetryConfig:        quickRetry(),
		VerifierPolicy:     verifier.Config{Global: verifier.ExecutionPolicy{Enabled: true}},
		Execute: func(ctx context.Context, ref task.Ref) ([]byte, error) {
			return []byte("candidate"), nil
		},
	}, Dependencies{
		Ledger: ledger,
		Proofs: proofs,
		Lane:   lane,
		Callbacks: Callbacks{
			OnVerifierVerdict: func(ref task.Ref, v verdict.Verdict) { verdicts++ },
		},
	})

	tk := testTask("task-7")
	a.HandleDiscovered(context.Background(), tk)

	assert.Equal(t, 1, verdicts)
	assert.Len(t, proofs.enqueued, 1)
}

func TestHandleDiscoveredClaimFailureAfterRetriesFails(t *testing.T) {
	ledger := newFakeLedgerOps()
	ledger.claimErr = errors.New("ledger unavailable")
	var failedErr error

	a := New(Config{MaxConcurrentTasks: 5, RetryConfig: quickRetry()}, Dependencies{
		Ledger: ledger,
		Callbacks: Callbacks{
			OnTaskFailed: func(ref task.Ref, err error) { failedErr = err },
		},
	})

	tk := testTask("task-8")
	a.HandleDiscovered(context.Background(), tk)

	assert.Error(t, failedErr)
}

func TestShutdownStopsDiscoveryAndDrainsProofPipeline(t *testing.T) {
	disc := &fakeDiscovery{}
	proofs := &fakeProofs{}

	a := New(Config{MaxConcurrentTasks: 5}, Dependencies{
		Ledger:    newFakeLedgerOps(),
		Discovery: disc,
	})

	err := a.Shutdown(context.Background(), proofs)
	require.NoError(t, err)
	assert.Equal(t, 1, disc.stopped)
}

func TestHandleDiscoveredRejectsNewWorkAfterShutdown(t *testing.T) {
	ledger := newFakeLedgerOps()
	a := New(Config{MaxConcurrentTasks: 5}, Dependencies{Ledger: ledger})

	a.Shutdown(context.Background(), &fakeProofs{})

	var failed int
	a.cb.OnTaskFailed = func(ref task.Ref, err error) { failed++ }

	a.HandleDiscovered(context.Background(), testTask("task-9"))

	ledger.mu.Lock()
	_, claimed := ledger.claims["task-9"]
	ledger.mu.Unlock()
	assert.False(t, claimed)
}
