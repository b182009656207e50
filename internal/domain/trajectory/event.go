// Package trajectory defines the append-only event schema recorded by the
// Trajectory Recorder and consumed by Replay.
package trajectory

import (
	"encoding/json"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// EventType is drawn from a closed set of recorder event kinds.
type EventType string

const (
	EventDiscovered            EventType = "discovered"
	EventClaimed               EventType = "claimed"
	EventExecuted              EventType = "executed"
	EventExecutedSpeculative   EventType = "executed_speculative"
	EventSpeculationStarted    EventType = "speculation_started"
	EventSpeculationConfirmed  EventType = "speculation_confirmed"
	EventSpeculationAborted    EventType = "speculation_aborted"
	EventCompleted             EventType = "completed"
	EventCompletedSpeculative  EventType = "completed_speculative"
	EventFailed                EventType = "failed"
	EventProofFailed           EventType = "proof_failed"
	EventVerifierVerdict       EventType = "verifier_verdict"
	EventPolicyViolation       EventType = "policy_violation"
	EventEscalated             EventType = "escalated"
	EventProofGenerated        EventType = "proof_generated"
)

// validEventTypes backs IsValid without repeating the literal set twice.
var validEventTypes = map[EventType]bool{
	EventDiscovered: true, EventClaimed: true, EventExecuted: true,
	EventExecutedSpeculative: true, EventSpeculationStarted: true,
	EventSpeculationConfirmed: true, EventSpeculationAborted: true,
	EventCompleted: true, EventCompletedSpeculative: true, EventFailed: true,
	EventProofFailed: true, EventVerifierVerdict: true,
	EventPolicyViolation: true, EventEscalated: true, EventProofGenerated: true,
}

// IsValid reports whether t is one of the closed set of event types.
func (t EventType) IsValid() bool { return validEventTypes[t] }

// Terminal reports whether t ends a task's lifecycle.
func (t EventType) Terminal() bool {
	switch t {
	case EventCompleted, EventCompletedSpeculative, EventFailed, EventEscalated:
		return true
	default:
		return false
	}
}

// Event is one entry in a trajectory. Seq is assigned by the Recorder and
// is strictly monotonic; TimestampMs is normalized to be monotonic
// non-decreasing within a trajectory.
type Event struct {
	Seq         uint64          `json:"seq"`
	Type        EventType       `json:"type"`
	TaskRef     *task.Ref       `json:"taskRef,omitempty"`
	TimestampMs int64           `json:"timestampMs"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Trace is the canonical wire format for a recorded trajectory.
type Trace struct {
	TraceID   string                 `json:"traceId"`
	Seed      string                 `json:"seed"`
	CreatedAt int64                  `json:"createdAtMs"`
	Events    []Event                `json:"events"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
