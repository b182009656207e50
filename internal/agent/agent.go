// Package agent implements the Autonomous Agent coordinator :
// the finite state machine that discovers, claims, executes, verifies, and
// completes tasks over the coordination substrate, dispatching between the
// speculative and sequential execution paths and recording every
// transition into the Trajectory Recorder.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	lerrors "github.com/tetsuo-ai/AgenC-sub003/infrastructure/errors"
	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/metrics"
	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/resilience"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/policy"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/proof"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/verdict"
	"github.com/tetsuo-ai/AgenC-sub003/internal/verifier"
	"github.com/tetsuo-ai/AgenC-sub003/system/framework/lifecycle"
)

var (
	errPolicyDenied        = errors.New("agent: policy engine denied the action")
	errAdmissionCapReached = errors.New("agent: admission cap reached")
	errNoExecutor          = errors.New("agent: no executor configured")
	errResourcePressure    = errors.New("agent: host resource pressure exceeds configured ceilings")
)

// ExecuteFunc runs a task's execution logic and returns its result bytes,
// same shape as speculative.Handler so one implementation can serve both
// the plain sequential path and the speculative executor's handler.
type ExecuteFunc func(ctx context.Context, ref task.Ref) ([]byte, error)

// ledgerOps is the subset of *ledger.Operations the coordinator needs. Task
// completion itself is routed through the Proof Pipeline (proofEnqueuer)
// rather than called directly, so every completion — speculative or
// sequential — passes through the same awaiting_proof gate.
type ledgerOps interface {
	ClaimTask(ctx context.Context, ref task.Ref) (*task.Claim, error)
}

// discoveryCoordinator is the subset of *discovery.Coordinator the
// coordinator needs; callers start/stop discovery themselves and feed
// discovered tasks into HandleDiscovered.
type discoveryCoordinator interface {
	Start(ctx context.Context)
	Stop()
}

// speculativeExecutor is the subset of *speculative.Executor the
// coordinator needs. It enqueues its own proof job internally on success,
// so the agent only needs to wait for confirmation afterward.
type speculativeExecutor interface {
	ExecuteWithSpeculation(ctx context.Context, ref task.Ref, taskID [32]byte, constraintHash [32]byte, producer string, stakeAtRisk uint64, isPrivate bool) ([]byte, error)
}

// proofEnqueuer is the subset of *proofpipeline.Pipeline the coordinator
// needs to carry a sequential-path output through to ledger confirmation.
type proofEnqueuer interface {
	Enqueue(ctx context.Context, ref task.Ref, taskID [32]byte, constraintHash [32]byte, result []byte, isPrivate bool) (*proof.Job, error)
	WaitForConfirmation(ctx context.Context, ref task.Ref, timeout time.Duration) (*proof.Job, error)
	CancelJob(ref task.Ref)
}

// policyEngine is the subset of *policyengine.Engine the coordinator needs.
type policyEngine interface {
	Evaluate(action policy.Action, ctx map[string]interface{}) policy.Decision
}

// verifierLane is the subset of *verifier.Lane the coordinator needs.
type verifierLane interface {
	Execute(ctx context.Context, opts verifier.RunOptions) (*verifier.ExecutionResult, error)
}

// Config configures an Agent.
type Config struct {
	MaxConcurrentTasks int
	SpeculationEnabled bool

	// Producer identifies this agent as the speculative commitment
	// producer and the ledger signer.
	Producer string

	RetryConfig resilience.RetryConfig

	// ShutdownTimeout bounds how long Shutdown waits for active tasks to
	// drain before returning.
	ShutdownTimeout time.Duration

	// ProofConfirmationTimeout bounds how long the sequential path waits
	// for its enqueued proof job to confirm before failing the task.
	ProofConfirmationTimeout time.Duration

	// MaxCPUPercent and MaxMemoryPercent additionally gate admission on
	// host resource pressure, sampled by the HealthMonitor. Zero disables
	// the corresponding check.
	MaxCPUPercent    float64
	MaxMemoryPercent float64

	// VerifierPolicy decides, per task type, whether a task is
	// verifier-gated.
	VerifierPolicy verifier.Config

	// RewardCeiling and UrgencyWindow feed the verifier lane's adaptive
	// risk scoring.
	RewardCeiling uint64
	UrgencyWindow time.Duration

	// Execute is the host-provided plain executor.
	Execute ExecuteFunc
	// Critic and Revise are only consulted for verifier-gated tasks.
	Critic                   verifier.Critic
	Revise                   verifier.RevisionExecutor
	ReExecuteOnNeedsRevision bool
	DisagreementThreshold    int

	Logger  *logrus.Entry
	Metrics *metrics.Metrics
}

// Agent is the Autonomous Agent coordinator.
type Agent struct {
	cfg Config

	ledger      ledgerOps
	discovery   discoveryCoordinator
	speculative speculativeExecutor
	proofs      proofEnqueuer
	policy      policyEngine
	lane        verifierLane

	registry *registry
	emitter  *eventEmitter
	cb       Callbacks

	logger *logrus.Entry
	health *HealthMonitor

	shutdown *lifecycle.GracefulShutdown
}

// Dependencies bundles the wired components an Agent orchestrates. Any
// field may be nil: a nil speculative executor disables the speculative
// path, a nil policy engine means "no policy engine configured" (itself a
// precondition of the speculative path), and a nil lane disables verifier
// gating regardless of VerifierPolicy.
type Dependencies struct {
	Ledger      ledgerOps
	Discovery   discoveryCoordinator
	Speculative speculativeExecutor
	Proofs      proofEnqueuer
	Policy      policyEngine
	Lane        verifierLane
	Health      *HealthMonitor
	Sink        EventSink
	Callbacks   Callbacks
}

// New constructs an Agent.
func New(cfg Config, deps Dependencies) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}
	if cfg.ProofConfirmationTimeout <= 0 {
		cfg.ProofConfirmationTimeout = 30 * time.Second
	}
	return &Agent{
		cfg:         cfg,
		ledger:      deps.Ledger,
		discovery:   deps.Discovery,
		speculative: deps.Speculative,
		proofs:      deps.Proofs,
		policy:      deps.Policy,
		lane:        deps.Lane,
		registry:    newRegistry(),
		emitter:     newEventEmitter(deps.Sink, nil),
		cb:          deps.Callbacks,
		logger:      logger.WithField("component", "agent"),
		health:      deps.Health,
		shutdown:    lifecycle.NewGracefulShutdown(),
	}
}

func (a *Agent) emit(typ trajectory.EventType, ref task.Ref, payload interface{}) {
	r := ref
	a.emitter.emit(typ, &r, payload)
}

// Start begins discovery, if configured.
func (a *Agent) Start(ctx context.Context) {
	if a.discovery != nil {
		a.discovery.Start(ctx)
	}
}

// isVerifierGated reports whether t requires the verifier lane before its
// output can be submitted, per the resolved execution policy.
func (a *Agent) isVerifierGated(t task.Task) bool {
	if a.lane == nil {
		return false
	}
	return a.cfg.VerifierPolicy.Resolve(t.Type).Enabled
}

func (a *Agent) evaluatePolicy(action policy.Action, ctx map[string]interface{}) policy.Decision {
	if a.policy == nil {
		return policy.Decision{Allowed: true}
	}
	return a.policy.Evaluate(action, ctx)
}

func (a *Agent) recordVerdict(ref task.Ref, v verdict.Verdict) {
	a.emit(trajectory.EventVerifierVerdict, ref, v)
	if a.cb.OnVerifierVerdict != nil {
		a.cb.OnVerifierVerdict(ref, v)
	}
}

func (a *Agent) recordPolicyViolation(ref task.Ref, action policy.Action, decision policy.Decision) {
	reason := decision.FirstViolation().Reason
	a.emit(trajectory.EventPolicyViolation, ref, map[string]interface{}{
		"action": string(action),
		"reason": reason,
	})
	if a.cb.OnPolicyViolation != nil {
		a.cb.OnPolicyViolation(ref, string(action), reason)
	}
}

func (a *Agent) escalationReason(err error) string {
	var esc *lerrors.EscalationError
	if errors.As(err, &esc) {
		return string(esc.Reason)
	}
	return err.Error()
}

// isEscalation reports whether err is (or wraps) a typed escalation from
// the verifier lane.
func isEscalation(err error) bool {
	return lerrors.IsEscalation(err)
}
