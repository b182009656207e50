// Package trajectory implements the Trajectory Recorder and Replay engine
// : an append-only event log per agent run, a deterministic
// replay validator over closed transition matrices, and a stable SHA-256
// hash over {trace, errors, summary}.
package trajectory

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	domaintrajectory "github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
)

// Sink receives every event the Recorder appends, exactly as passed to
// Record, for durable persistence (e.g. the optional
// Postgres trajectory store). Append errors are logged, not propagated:
// a sink outage must never block the agent's execution path.
type Sink interface {
	Append(ctx context.Context, traceID string, evt domaintrajectory.Event) error
}

// Recorder accumulates one agent run's trajectory. It is safe for
// concurrent use; events from distinct tasks interleave in a single append
// order. The Recorder stores Seq and TimestampMs as given and assigns
// neither: the agent's event emitter numbers events and keeps their
// timestamps non-decreasing before they reach Record.
type Recorder struct {
	mu        sync.Mutex
	traceID   string
	seed      string
	createdAt int64
	metadata  map[string]interface{}
	events    []domaintrajectory.Event
	sinks     []Sink
	logger    *logrus.Entry
}

// NewRecorder constructs a Recorder for one run. createdAtMs should be
// stamped by the caller (this package never calls time.Now so that replay
// of a previously recorded trace is fully reproducible).
func NewRecorder(traceID, seed string, createdAtMs int64, logger *logrus.Entry, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Recorder{
		traceID:   traceID,
		seed:      seed,
		createdAt: createdAtMs,
		sinks:     sinks,
		logger:    logger.WithField("component", "trajectory_recorder"),
	}
}

// WithMetadata attaches free-form run metadata (e.g. benchmark scenario id,
// agent version) to the eventual Trace.
func (r *Recorder) WithMetadata(metadata map[string]interface{}) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata = metadata
	return r
}

// Record appends evt to the trajectory and fans it out to every configured
// sink. It has the agent package's EventSink shape (func(trajectory.Event))
// via method value, so an *Agent can be constructed with recorder.Record
// directly as its event sink without either package importing the other.
func (r *Recorder) Record(evt domaintrajectory.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()

	for _, sink := range r.sinks {
		if err := sink.Append(context.Background(), r.traceID, evt); err != nil {
			r.logger.WithError(err).WithField("trace_id", r.traceID).
				Warn("trajectory sink append failed")
		}
	}
}

// Events returns a snapshot copy of the recorded events, in append order.
func (r *Recorder) Events() []domaintrajectory.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domaintrajectory.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Trace renders the accumulated events as the canonical wire format.
func (r *Recorder) Trace() domaintrajectory.Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]domaintrajectory.Event, len(r.events))
	copy(events, r.events)
	return domaintrajectory.Trace{
		TraceID:   r.traceID,
		Seed:      r.seed,
		CreatedAt: r.createdAt,
		Events:    events,
		Metadata:  r.metadata,
	}
}

// Reset clears recorded events, keeping the trace identity. Intended for
// tests that need a clean recorder between cases without reconstructing one.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
