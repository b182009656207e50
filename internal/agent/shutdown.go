package agent

import (
	"context"
	"time"
)

// proofShutdowner is the subset of *proofpipeline.Pipeline's shutdown
// surface the coordinator needs. The speculative executor has no
// dedicated drain step of its own: every proof job it enqueues (including
// ones enqueued mid-speculation) is tracked by the same pipeline, so
// shutting the pipeline down covers speculative proof work too.
type proofShutdowner interface {
	Shutdown(timeout time.Duration) error
}

// Shutdown sequences an orderly stop: it stops discovery, refuses new
// HandleDiscovered calls, waits up to ShutdownTimeout (30s when unset) for
// in-flight claim/execute/complete pipelines, then shuts down the proof
// pipeline with the same timeout. That step cancels every in-flight proof
// job, including those the speculative executor enqueued, and waits for
// them to end; it does not let them finish submitting. A drain timeout of
// the claim/execute/complete wait is returned in preference
// to the proof pipeline's error.
//
// proofs is accepted as a parameter (rather than read off a.proofs)
// because *proofpipeline.Pipeline's Shutdown method isn't part of the
// narrow proofEnqueuer interface the execution path depends on.
func (a *Agent) Shutdown(ctx context.Context, proofs proofShutdowner) error {
	if a.discovery != nil {
		a.discovery.Stop()
	}

	a.shutdown.Shutdown()

	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	drainErr := a.shutdown.Wait(waitCtx)

	var proofErr error
	if proofs != nil {
		proofErr = proofs.Shutdown(timeout)
	}

	if drainErr != nil {
		return drainErr
	}
	return proofErr
}

// InFlight reports the number of claim/execute/complete pipelines
// currently running, for health checks and tests.
func (a *Agent) InFlight() int64 {
	return a.shutdown.InFlight()
}

// ActiveTaskCount reports how many tasks currently occupy the admission
// cap (active or awaiting_proof).
func (a *Agent) ActiveTaskCount() int {
	return a.registry.inflightCount()
}
