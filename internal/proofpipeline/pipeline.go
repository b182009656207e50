// Package proofpipeline implements the Proof Pipeline: a
// bounded worker pool that carries proof jobs from queued through
// generating, awaiting_submission, submitting, to confirmed or failed,
// gated on dependency-graph ancestor confirmation.
package proofpipeline

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	lerrors "github.com/tetsuo-ai/AgenC-sub003/infrastructure/errors"
	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/resilience"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/proof"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
	"github.com/tetsuo-ai/AgenC-sub003/internal/ledger"
	"github.com/tetsuo-ai/AgenC-sub003/system/framework/lifecycle"
)

// AncestorChecker reports whether every ancestor of a task reference has a
// confirmed commitment. Backed in production by *graph.Graph.
type AncestorChecker interface {
	AreAncestorsConfirmed(ref task.Ref) bool
}

// LedgerSubmitter is the subset of the ledger adapter the pipeline needs to
// submit completions. Backed in production by *ledger.Operations. Both
// methods return the substrate's transaction signature alongside any error.
type LedgerSubmitter interface {
	CompleteTask(ctx context.Context, ref task.Ref, output []*big.Int) ([32]byte, string, error)
	CompleteTaskPrivate(ctx context.Context, ref task.Ref, bundle ledger.ProofBundle) (string, error)
}

// ProofGenerator is the subset of *ledger.KeyedProofGenerator the pipeline
// needs to turn an executed result into a private-task proof bundle.
type ProofGenerator interface {
	Generate(ctx context.Context, taskID, constraintHash [32]byte, output []*big.Int) (ledger.ProofBundle, error)
}

// Config configures a Pipeline.
type Config struct {
	MaxConcurrent int
	Retry         resilience.RetryConfig
	Logger        *logrus.Entry
}

// onProofFailedFn is invoked when a job exhausts its retries.
type onProofFailedFn func(ref task.Ref, err error)

// Pipeline is the bounded async proof generation and submission pipeline.
type Pipeline struct {
	cfg       Config
	submitter LedgerSubmitter
	ancestors AncestorChecker
	generator ProofGenerator
	logger    *logrus.Entry

	sem      chan struct{}
	shutdown *lifecycle.GracefulShutdown

	mu      sync.Mutex
	jobs    map[task.Ref]*proof.Job
	waiters map[task.Ref][]chan jobResult
	cancels map[task.Ref]context.CancelFunc

	onProofFailed onProofFailedFn
}

type jobResult struct {
	job *proof.Job
	err error
}

// New constructs a Pipeline. generator may be nil only if every enqueued job
// is a public task; a private job enqueued without one fails immediately.
func New(cfg Config, submitter LedgerSubmitter, ancestors AncestorChecker, generator ProofGenerator, onProofFailed onProofFailedFn) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Pipeline{
		cfg:           cfg,
		submitter:     submitter,
		ancestors:     ancestors,
		generator:     generator,
		logger:        logger.WithField("component", "proofpipeline"),
		sem:           make(chan struct{}, cfg.MaxConcurrent),
		shutdown:      lifecycle.NewGracefulShutdown(),
		jobs:          make(map[task.Ref]*proof.Job),
		waiters:       make(map[task.Ref][]chan jobResult),
		cancels:       make(map[task.Ref]context.CancelFunc),
		onProofFailed: onProofFailed,
	}
}

// Enqueue admits a new job for ref, starting it in StatusQueued and
// dispatching a worker. Rejects new work once shutdown has been initiated
// and rejects a second active job for the same ref. constraintHash is the
// task's on-chain constraint hash (all-zero for public tasks), threaded
// through so private-task proof generation can bind its bundle to it.
func (p *Pipeline) Enqueue(ctx context.Context, ref task.Ref, taskID [32]byte, constraintHash [32]byte, result []byte, isPrivate bool) (*proof.Job, error) {
	guard := lifecycle.NewOperationGuard(p.shutdown)
	if guard == nil {
		return nil, lerrors.ErrShuttingDown
	}

	p.mu.Lock()
	if existing, ok := p.jobs[ref]; ok && !existing.Status.Terminal() {
		p.mu.Unlock()
		guard.Close()
		return nil, fmt.Errorf("proof job already active for task %s", ref)
	}
	job := &proof.Job{
		TaskRef:        ref,
		TaskID:         taskID,
		ConstraintHash: constraintHash,
		Result:         result,
		IsPrivate:      isPrivate,
		Status:         proof.StatusQueued,
		CreatedAt:      time.Now(),
	}
	p.jobs[ref] = job
	p.mu.Unlock()

	go func() {
		defer guard.Close()
		p.run(ctx, job)
	}()

	return job, nil
}

func (p *Pipeline) run(ctx context.Context, job *proof.Job) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancels[job.TaskRef] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.cancels, job.TaskRef)
		p.mu.Unlock()
		cancel()
	}()
	go func() {
		select {
		case <-p.shutdown.ShutdownCh():
			cancel()
		case <-ctx.Done():
		}
	}()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		p.fail(job, ctx.Err())
		return
	}
	defer func() { <-p.sem }()

	p.mu.Lock()
	job.StartedAt = time.Now()
	p.mu.Unlock()
	p.transition(job, proof.StatusGenerating)

	// Generation decodes the executor's result and, for private tasks,
	// derives the zero-knowledge proof bundle from it; both are computed
	// once here rather than per submit-retry attempt.
	output, err := ledger.DecodeBigInts(job.Result)
	if err != nil {
		p.fail(job, fmt.Errorf("decode executed result: %w", err))
		return
	}

	var bundle ledger.ProofBundle
	if job.IsPrivate {
		if p.generator == nil {
			p.fail(job, fmt.Errorf("proof pipeline: no proof generator configured for private task %s", job.TaskRef))
			return
		}
		bundle, err = p.generator.Generate(ctx, job.TaskID, job.ConstraintHash, output)
		if err != nil {
			p.fail(job, fmt.Errorf("generate proof bundle: %w", err))
			return
		}
	}

	p.transition(job, proof.StatusAwaitingSubmission)

	if err := p.waitForAncestors(ctx, job); err != nil {
		p.fail(job, err)
		return
	}

	p.transition(job, proof.StatusSubmitting)

	err = p.submitWithRetry(ctx, job, output, bundle)
	if err != nil {
		p.fail(job, err)
		return
	}

	p.mu.Lock()
	job.CompletedAt = time.Now()
	p.mu.Unlock()
	p.transition(job, proof.StatusConfirmed)
	p.notify(job, nil)
}

// waitForAncestors blocks until AreAncestorsConfirmed(job.TaskRef) is true,
// polling on a short interval, or the context is cancelled.
func (p *Pipeline) waitForAncestors(ctx context.Context, job *proof.Job) error {
	if p.ancestors == nil || p.ancestors.AreAncestorsConfirmed(job.TaskRef) {
		return nil
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.ancestors.AreAncestorsConfirmed(job.TaskRef) {
				return nil
			}
		}
	}
}

func (p *Pipeline) submitWithRetry(ctx context.Context, job *proof.Job, output []*big.Int, bundle ledger.ProofBundle) error {
	cfg := p.cfg.Retry
	if cfg.MaxAttempts <= 0 {
		cfg = resilience.DefaultRetryConfig()
	}

	return resilience.RetryObserved(ctx, cfg, func() error {
		p.mu.Lock()
		job.Attempts++
		p.mu.Unlock()
		var (
			txSig string
			err   error
		)
		if job.IsPrivate {
			txSig, err = p.submitter.CompleteTaskPrivate(ctx, job.TaskRef, bundle)
		} else {
			_, txSig, err = p.submitter.CompleteTask(ctx, job.TaskRef, output)
		}
		if err == nil {
			p.mu.Lock()
			job.TxSignature = txSig
			p.mu.Unlock()
		}
		return err
	}, func(a resilience.Attempt) {
		if a.Err != nil {
			p.logger.WithError(a.Err).WithField("attempt", a.Number).WithField("task", job.TaskRef).Warn("proof submission attempt failed")
		}
	})
}

func (p *Pipeline) transition(job *proof.Job, to proof.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job.Status = to
}

func (p *Pipeline) fail(job *proof.Job, err error) {
	p.transition(job, proof.StatusFailed)
	if p.onProofFailed != nil {
		p.onProofFailed(job.TaskRef, err)
	}
	p.notify(job, err)
}

func (p *Pipeline) notify(job *proof.Job, err error) {
	p.mu.Lock()
	waiters := p.waiters[job.TaskRef]
	delete(p.waiters, job.TaskRef)
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- jobResult{job: job, err: err}
		close(ch)
	}
}

// GetJob returns the current snapshot of the job tracked for ref, if any.
func (p *Pipeline) GetJob(ref task.Ref) (*proof.Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.jobs[ref]
	if !ok {
		return nil, false
	}
	cp := *job
	return &cp, true
}

// CancelJob aborts the in-flight job for ref, if any, via cooperative
// cancellation of its context and marks it failed. A no-op if no active job exists.
func (p *Pipeline) CancelJob(ref task.Ref) {
	p.mu.Lock()
	cancel, ok := p.cancels[ref]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// GetStats returns a count of jobs per status.
func (p *Pipeline) GetStats() map[proof.Status]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := make(map[proof.Status]int)
	for _, job := range p.jobs {
		stats[job.Status]++
	}
	return stats
}

// WaitForConfirmation blocks until the job for ref reaches a terminal
// state or timeout elapses.
func (p *Pipeline) WaitForConfirmation(ctx context.Context, ref task.Ref, timeout time.Duration) (*proof.Job, error) {
	p.mu.Lock()
	job, ok := p.jobs[ref]
	if ok && job.Status.Terminal() {
		cp := *job
		p.mu.Unlock()
		if cp.Status == proof.StatusFailed {
			return &cp, fmt.Errorf("proof job for task %s failed", ref)
		}
		return &cp, nil
	}
	ch := make(chan jobResult, 1)
	p.waiters[ref] = append(p.waiters[ref], ch)
	p.mu.Unlock()

	waitCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case res := <-ch:
		if res.err != nil && res.job.Status == proof.StatusFailed {
			return res.job, fmt.Errorf("proof job for task %s failed: %w", ref, res.err)
		}
		return res.job, nil
	case <-waitCtx.Done():
		return nil, waitCtx.Err()
	case <-p.shutdown.ShutdownCh():
		return nil, lerrors.ErrCancelled
	}
}

// Shutdown refuses new enqueues, cancels the context of every in-flight
// job, waits for those jobs to reach a terminal state (up to timeout), and
// wakes every outstanding WaitForConfirmation waiter with a cancellation
// error. In-flight jobs are not left to finish their submission: a job
// still queued, waiting for ancestors or retrying ends failed.
func (p *Pipeline) Shutdown(timeout time.Duration) error {
	p.shutdown.Shutdown()
	err := p.shutdown.WaitWithTimeout(timeout)

	p.mu.Lock()
	waiters := p.waiters
	p.waiters = make(map[task.Ref][]chan jobResult)
	p.mu.Unlock()

	for _, chs := range waiters {
		for _, ch := range chs {
			ch <- jobResult{err: lerrors.ErrCancelled}
			close(ch)
		}
	}
	return err
}
