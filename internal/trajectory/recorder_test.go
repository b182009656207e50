package trajectory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
	domaintrajectory "github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
)

type fakeSink struct {
	mu     sync.Mutex
	events []domaintrajectory.Event
	err    error
}

func (f *fakeSink) Append(ctx context.Context, traceID string, evt domaintrajectory.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, evt)
	return nil
}

func TestRecorderAppendsInOrderAndFansOutToSinks(t *testing.T) {
	sink := &fakeSink{}
	r := NewRecorder("trace-1", "seed-1", 1000, nil, sink)

	ref := task.Ref{Address: "task-1"}
	r.Record(domaintrajectory.Event{Seq: 1, Type: domaintrajectory.EventDiscovered, TaskRef: &ref, TimestampMs: 1000})
	r.Record(domaintrajectory.Event{Seq: 2, Type: domaintrajectory.EventClaimed, TaskRef: &ref, TimestampMs: 1001})

	events := r.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domaintrajectory.EventDiscovered, events[0].Type)
	assert.Equal(t, domaintrajectory.EventClaimed, events[1].Type)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.events, 2)
}

func TestRecorderTraceRendersCanonicalFields(t *testing.T) {
	r := NewRecorder("trace-2", "seed-2", 2000, nil)
	r.WithMetadata(map[string]interface{}{"scenario": "s1"})

	ref := task.Ref{Address: "task-2"}
	r.Record(domaintrajectory.Event{Seq: 1, Type: domaintrajectory.EventDiscovered, TaskRef: &ref, TimestampMs: 2000})

	trace := r.Trace()
	assert.Equal(t, "trace-2", trace.TraceID)
	assert.Equal(t, "seed-2", trace.Seed)
	assert.Equal(t, int64(2000), trace.CreatedAt)
	assert.Len(t, trace.Events, 1)
	assert.Equal(t, "s1", trace.Metadata["scenario"])
}

func TestRecorderResetClearsEventsKeepsIdentity(t *testing.T) {
	r := NewRecorder("trace-3", "seed-3", 3000, nil)
	ref := task.Ref{Address: "task-3"}
	r.Record(domaintrajectory.Event{Seq: 1, Type: domaintrajectory.EventDiscovered, TaskRef: &ref, TimestampMs: 3000})

	r.Reset()

	assert.Len(t, r.Events(), 0)
	assert.Equal(t, "trace-3", r.Trace().TraceID)
}

func TestRecorderSinkErrorDoesNotBlockAppend(t *testing.T) {
	sink := &fakeSink{err: assert.AnError}
	r := NewRecorder("trace-4", "seed-4", 4000, nil, sink)

	ref := task.Ref{Address: "task-4"}
	assert.NotPanics(t, func() {
		r.Record(domaintrajectory.Event{Seq: 1, Type: domaintrajectory.EventDiscovered, TaskRef: &ref, TimestampMs: 4000})
	})
	assert.Len(t, r.Events(), 1)
}
