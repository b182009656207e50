package agent

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/verdict"
)

// Callbacks lets a host application observe the coordinator's lifecycle
// without reaching into its internals.
// Every field is optional; nil callbacks are simply skipped.
type Callbacks struct {
	OnTaskDiscovered func(task.Task)
	OnTaskClaimed    func(task.Claim)
	OnTaskExecuted   func(ref task.Ref, speculative bool)
	OnTaskCompleted  func(ref task.Ref, speculative bool)
	OnTaskFailed     func(ref task.Ref, err error)
	OnTaskEscalated  func(ref task.Ref, reason string)
	OnEarnings       func(ref task.Ref, amount uint64)
	OnProofGenerated func(ref task.Ref, proofHash [32]byte)
	OnVerifierVerdict func(ref task.Ref, v verdict.Verdict)
	OnPolicyViolation func(ref task.Ref, action, reason string)
}

// EventSink receives every trajectory event the coordinator records. It
// mirrors the Trajectory Recorder's append contract : the
// caller supplies the sink, the coordinator supplies strictly increasing
// sequence numbers and normalized timestamps.
type EventSink func(trajectory.Event)

// eventEmitter assigns monotonic sequence numbers and non-decreasing
// timestamps to every event before handing it to the configured sink.
type eventEmitter struct {
	sink    EventSink
	seq     uint64
	lastMs  int64
	nowFn   func() time.Time
}

func newEventEmitter(sink EventSink, now func() time.Time) *eventEmitter {
	if now == nil {
		now = time.Now
	}
	return &eventEmitter{sink: sink, nowFn: now}
}

func (e *eventEmitter) emit(typ trajectory.EventType, ref *task.Ref, payload interface{}) {
	if e.sink == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}

	ms := e.nowFn().UnixMilli()
	last := atomic.LoadInt64(&e.lastMs)
	if ms < last {
		ms = last
	}
	atomic.StoreInt64(&e.lastMs, ms)

	evt := trajectory.Event{
		Seq:         atomic.AddUint64(&e.seq, 1),
		Type:        typ,
		TaskRef:     ref,
		TimestampMs: ms,
		Payload:     raw,
	}
	e.sink(evt)
}
