// Package speculative implements the Speculative Executor :
// it decides whether to run a child task before its parents' proofs
// confirm, orchestrating the dependency graph, the Commitment Ledger, and
// the Proof Pipeline.
package speculative

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/metrics"
	domaincommitment "github.com/tetsuo-ai/AgenC-sub003/internal/domain/commitment"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/proof"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// ErrNotEligible is returned by ExecuteWithSpeculation when the task's
// ancestors are unconfirmed and speculation is not permitted for it (depth
// limit, non-speculatable edge in the chain, or per-parent cap reached).
// Callers fall back to the sequential path: wait for confirmation, then
// execute directly.
var ErrNotEligible = errors.New("speculative: task is not eligible for speculative execution")

// Handler runs a task's execution logic and returns its result bytes.
// Implementations must respect ctx cancellation for cooperative abort.
type Handler func(ctx context.Context, ref task.Ref) ([]byte, error)

// DependencyGraph is the subset of *graph.Graph the executor needs.
type DependencyGraph interface {
	AreAncestorsConfirmed(ref task.Ref) bool
	SpeculatableAncestorChain(ref task.Ref) (speculatable bool, depth int)
	Parents(ref task.Ref) []task.Ref
	MarkConfirmed(ref task.Ref)
}

// CommitmentLedger is the subset of *commitment.Ledger the executor needs.
type CommitmentLedger interface {
	CreateCommitment(sourceRef task.Ref, sourceTaskID, resultHash [32]byte, producer string, stakeAtRisk uint64) (domaincommitment.ID, error)
	AddDependent(parent, child task.Ref) error
	UpdateStatus(ref task.Ref, status domaincommitment.Status) error
	MarkConfirmed(ref task.Ref) error
	MarkFailed(ref task.Ref) ([]task.Ref, error)
	Get(ref task.Ref) (*domaincommitment.Commitment, bool)
}

// ProofEnqueuer is the subset of *proofpipeline.Pipeline the executor needs.
type ProofEnqueuer interface {
	Enqueue(ctx context.Context, ref task.Ref, taskID [32]byte, constraintHash [32]byte, result []byte, isPrivate bool) (*proof.Job, error)
	CancelJob(ref task.Ref)
}

// Config bounds how aggressively the executor speculates.
type Config struct {
	Enabled                    bool
	MaxSpeculativeTasksPerParent int
	MaxDepth                   int
	AbortOnParentFailure       bool
}

// Executor decides whether to speculate and carries out the chosen path.
type Executor struct {
	cfg     Config
	graph   DependencyGraph
	ledger  CommitmentLedger
	proofs  ProofEnqueuer
	handler Handler
	metrics *metrics.Metrics
	logger  *logrus.Entry

	mu         sync.Mutex
	cancels    map[task.Ref]context.CancelFunc
	startedAt  map[task.Ref]time.Time
	perParent  map[task.Ref]int
}

// New constructs an Executor.
func New(cfg Config, g DependencyGraph, l CommitmentLedger, p ProofEnqueuer, handler Handler, m *metrics.Metrics, logger *logrus.Entry) *Executor {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Executor{
		cfg:       cfg,
		graph:     g,
		ledger:    l,
		proofs:    p,
		handler:   handler,
		metrics:   m,
		logger:    logger.WithField("component", "speculative.executor"),
		cancels:   make(map[task.Ref]context.CancelFunc),
		startedAt: make(map[task.Ref]time.Time),
		perParent: make(map[task.Ref]int),
	}
}

// ExecuteWithSpeculation decides between the two top-level paths: if
// ancestors are already confirmed, execute normally; otherwise speculate
// when eligible, or return ErrNotEligible for the caller's sequential
// fallback.
func (e *Executor) ExecuteWithSpeculation(ctx context.Context, ref task.Ref, taskID [32]byte, constraintHash [32]byte, producer string, stakeAtRisk uint64, isPrivate bool) ([]byte, error) {
	if e.graph.AreAncestorsConfirmed(ref) {
		result, err := e.runHandler(ctx, ref)
		if err != nil {
			return nil, err
		}
		if _, err := e.proofs.Enqueue(ctx, ref, taskID, constraintHash, result, isPrivate); err != nil {
			return nil, err
		}
		return result, nil
	}

	if !e.eligibleForSpeculation(ref) {
		return nil, ErrNotEligible
	}

	return e.speculate(ctx, ref, taskID, constraintHash, producer, stakeAtRisk, isPrivate)
}

func (e *Executor) eligibleForSpeculation(ref task.Ref) bool {
	if !e.cfg.Enabled {
		return false
	}
	speculatable, depth := e.graph.SpeculatableAncestorChain(ref)
	if !speculatable {
		return false
	}
	if e.cfg.MaxDepth > 0 && depth > e.cfg.MaxDepth {
		return false
	}
	if e.cfg.MaxSpeculativeTasksPerParent > 0 {
		for _, parent := range e.graph.Parents(ref) {
			if e.parentSpeculativeCount(parent) >= e.cfg.MaxSpeculativeTasksPerParent {
				return false
			}
		}
	}
	return true
}

func (e *Executor) parentSpeculativeCount(parent task.Ref) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.perParent[parent]
}

func (e *Executor) speculate(ctx context.Context, ref task.Ref, taskID [32]byte, constraintHash [32]byte, producer string, stakeAtRisk uint64, isPrivate bool) ([]byte, error) {
	id, err := e.ledger.CreateCommitment(ref, taskID, [32]byte{}, producer, stakeAtRisk)
	if err != nil {
		return nil, err
	}
	_ = e.ledger.UpdateStatus(ref, domaincommitment.StatusExecuting)

	for _, parent := range e.graph.Parents(ref) {
		e.mu.Lock()
		e.perParent[parent]++
		e.mu.Unlock()
		_ = e.ledger.AddDependent(parent, ref)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[ref] = cancel
	e.startedAt[ref] = time.Now()
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, ref)
		delete(e.startedAt, ref)
		for _, parent := range e.graph.Parents(ref) {
			e.perParent[parent]--
		}
		e.mu.Unlock()
		cancel()
	}()

	if e.metrics != nil && metrics.Enabled() {
		e.metrics.SpeculationStartedTotal.Inc()
	}
	e.logger.WithField("task", ref).WithField("commitment", id.String()).Info("speculative execution started")

	result, err := e.runHandler(runCtx, ref)
	if err != nil {
		if runCtx.Err() != nil {
			if e.metrics != nil && metrics.Enabled() {
				e.metrics.SpeculationAbortedTotal.Inc()
			}
		}
		return nil, err
	}

	_ = e.ledger.UpdateStatus(ref, domaincommitment.StatusExecuted)

	if _, err := e.proofs.Enqueue(runCtx, ref, taskID, constraintHash, result, isPrivate); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Executor) runHandler(ctx context.Context, ref task.Ref) ([]byte, error) {
	return e.handler(ctx, ref)
}

// OnParentConfirmed propagates a parent's proof confirmation into the
// dependency graph and commitment ledger.
func (e *Executor) OnParentConfirmed(parent task.Ref) {
	e.graph.MarkConfirmed(parent)
	if err := e.ledger.MarkConfirmed(parent); err != nil {
		e.logger.WithError(err).WithField("task", parent).Debug("no commitment to confirm for task")
	}

	e.mu.Lock()
	started, ok := e.startedAt[parent]
	e.mu.Unlock()
	if ok && e.metrics != nil && metrics.Enabled() {
		e.metrics.SpeculationConfirmedTotal.Inc()
		e.metrics.EstimatedTimeSavedSeconds.Add(time.Since(started).Seconds())
	}
}

// OnParentFailed cascades a parent's proof failure: the affected set (the
// parent's commitment plus the transitive closure of its dependents) rolls
// back. Only when AbortOnParentFailure is set is every affected in-flight
// handler cooperatively cancelled and its proof job cancelled; otherwise
// the ledger cascade is the only effect.
func (e *Executor) OnParentFailed(parent task.Ref) ([]task.Ref, error) {
	affected, err := e.ledger.MarkFailed(parent)
	if err != nil {
		return nil, err
	}

	if !e.cfg.AbortOnParentFailure {
		return affected, nil
	}

	for _, ref := range affected {
		e.mu.Lock()
		cancel, ok := e.cancels[ref]
		e.mu.Unlock()
		if ok {
			cancel()
		}
		e.proofs.CancelJob(ref)
		if e.metrics != nil && metrics.Enabled() {
			e.metrics.SpeculationAbortedTotal.Inc()
		}
	}
	return affected, nil
}
