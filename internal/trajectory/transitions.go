package trajectory

import (
	"fmt"

	domaintrajectory "github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
)

// AnomalyCode identifies a specific transition-matrix violation, reported
// as an anomaly with a stable code.
type AnomalyCode string

const (
	// TaskDoubleComplete fires when a completion event arrives for a task
	// reference that has already reached a terminal status.
	TaskDoubleComplete AnomalyCode = "TASK_DOUBLE_COMPLETE"
	// TaskTerminalTransition fires when any event (other than a second
	// completion, which gets the more specific code above) arrives for a
	// task reference already in a terminal status.
	TaskTerminalTransition AnomalyCode = "TASK_TERMINAL_TRANSITION"
	// TaskInvalidTransition fires when an event arrives out of the fixed
	// order: discovered -> claimed -> executed|executed_speculative ->
	// [verifier_verdict]* -> completed|...|escalated.
	TaskInvalidTransition AnomalyCode = "TASK_INVALID_TRANSITION"
	// SpeculationInvalidStart fires when a speculation_confirmed or
	// speculation_aborted event arrives without a preceding
	// speculation_started for the same task reference.
	SpeculationInvalidStart AnomalyCode = "SPECULATION_INVALID_START"
	// SpeculationDoubleStart fires when speculation_started is observed
	// twice for the same task reference.
	SpeculationDoubleStart AnomalyCode = "SPECULATION_DOUBLE_START"
	// SequenceNotMonotonic fires when an event's Seq does not strictly
	// increase over the previous event in the trace.
	SequenceNotMonotonic AnomalyCode = "SEQUENCE_NOT_MONOTONIC"
	// TimestampNotMonotonic fires when an event's TimestampMs decreases
	// relative to the previous event.
	TimestampNotMonotonic AnomalyCode = "TIMESTAMP_NOT_MONOTONIC"
	// MissingTaskRef fires when an event type that must carry a task
	// reference has none.
	MissingTaskRef AnomalyCode = "MISSING_TASK_REF"
)

// Anomaly is one transition-matrix violation found during replay.
type Anomaly struct {
	Code    AnomalyCode `json:"code"`
	Seq     uint64      `json:"seq"`
	TaskRef string      `json:"taskRef,omitempty"`
	Detail  string      `json:"detail"`
}

// taskPhase is the coarse per-reference state the Task transition matrix
// tracks; several event types (verifier_verdict, proof_generated,
// proof_failed, policy_violation, speculation_*) are side observations
// that don't themselves advance the phase.
type taskPhase int

const (
	phaseNone taskPhase = iota
	phasePending
	phaseClaimed
	phaseExecuting
	phaseTerminal
)

// taskTransition describes one event type's effect on the Task transition
// matrix: the phases it may legally be observed from, and the phase it
// advances to when changes is set (changes == false means "no change").
type taskTransition struct {
	from    []taskPhase
	to      taskPhase
	changes bool
}

var taskMatrix = map[domaintrajectory.EventType]taskTransition{
	domaintrajectory.EventDiscovered:           {from: []taskPhase{phaseNone}, to: phasePending, changes: true},
	domaintrajectory.EventPolicyViolation:      {from: []taskPhase{phasePending}, changes: false},
	domaintrajectory.EventClaimed:               {from: []taskPhase{phasePending}, to: phaseClaimed, changes: true},
	domaintrajectory.EventExecuted:              {from: []taskPhase{phaseClaimed}, to: phaseExecuting, changes: true},
	domaintrajectory.EventExecutedSpeculative:   {from: []taskPhase{phaseClaimed}, to: phaseExecuting, changes: true},
	domaintrajectory.EventSpeculationStarted:    {from: []taskPhase{phaseClaimed}, changes: false},
	domaintrajectory.EventSpeculationConfirmed:  {from: []taskPhase{phaseClaimed, phaseExecuting}, changes: false},
	domaintrajectory.EventSpeculationAborted:    {from: []taskPhase{phaseClaimed, phaseExecuting}, changes: false},
	domaintrajectory.EventVerifierVerdict:       {from: []taskPhase{phaseExecuting}, changes: false},
	domaintrajectory.EventProofGenerated:        {from: []taskPhase{phaseExecuting}, changes: false},
	domaintrajectory.EventProofFailed:           {from: []taskPhase{phaseExecuting}, changes: false},
	domaintrajectory.EventCompleted:             {from: []taskPhase{phaseExecuting}, to: phaseTerminal, changes: true},
	domaintrajectory.EventCompletedSpeculative:  {from: []taskPhase{phaseExecuting}, to: phaseTerminal, changes: true},
	domaintrajectory.EventEscalated:             {from: []taskPhase{phaseExecuting}, to: phaseTerminal, changes: true},
	// Failed is reachable from any non-terminal phase: a claim-pipeline
	// denial or admission rejection fails from phasePending, a claim
	// exhaustion or execution error fails from phaseClaimed/phaseExecuting.
	domaintrajectory.EventFailed: {from: []taskPhase{phasePending, phaseClaimed, phaseExecuting}, to: phaseTerminal, changes: true},
}

func isCompletionEvent(t domaintrajectory.EventType) bool {
	return t == domaintrajectory.EventCompleted || t == domaintrajectory.EventCompletedSpeculative
}

func containsPhase(phases []taskPhase, p taskPhase) bool {
	for _, candidate := range phases {
		if candidate == p {
			return true
		}
	}
	return false
}

// refState is the per-task-reference bookkeeping the validator carries
// across a trace.
type refState struct {
	phase              taskPhase
	speculationStarted bool
}

// Transitions validates a slice of events (already ordered by Seq) against
// the Task and Speculation transition matrices, returning every anomaly
// found. It never returns an error itself: anomalies are data, not a
// validation failure of the validator.
func Transitions(events []domaintrajectory.Event) []Anomaly {
	var anomalies []Anomaly
	refs := make(map[string]*refState)

	var prevSeq uint64
	var prevTs int64
	first := true

	for _, evt := range events {
		if !first {
			if evt.Seq <= prevSeq {
				anomalies = append(anomalies, Anomaly{
					Code: SequenceNotMonotonic, Seq: evt.Seq,
					Detail: fmt.Sprintf("seq %d did not strictly increase over previous seq %d", evt.Seq, prevSeq),
				})
			}
			if evt.TimestampMs < prevTs {
				anomalies = append(anomalies, Anomaly{
					Code: TimestampNotMonotonic, Seq: evt.Seq,
					Detail: fmt.Sprintf("timestamp %d precedes previous timestamp %d", evt.TimestampMs, prevTs),
				})
			}
		}
		prevSeq, prevTs, first = evt.Seq, evt.TimestampMs, false

		if evt.TaskRef == nil {
			anomalies = append(anomalies, Anomaly{
				Code: MissingTaskRef, Seq: evt.Seq,
				Detail: fmt.Sprintf("event type %q requires a task reference", evt.Type),
			})
			continue
		}
		addr := evt.TaskRef.Address

		st, ok := refs[addr]
		if !ok {
			st = &refState{phase: phaseNone}
			refs[addr] = st
		}

		anomalies = append(anomalies, validateSpeculation(addr, evt, st)...)
		anomalies = append(anomalies, validateTaskPhase(addr, evt, st)...)
	}

	return anomalies
}

func validateSpeculation(addr string, evt domaintrajectory.Event, st *refState) []Anomaly {
	switch evt.Type {
	case domaintrajectory.EventSpeculationStarted:
		if st.speculationStarted {
			return []Anomaly{{Code: SpeculationDoubleStart, Seq: evt.Seq, TaskRef: addr,
				Detail: "speculation_started observed twice for the same task"}}
		}
		st.speculationStarted = true
	case domaintrajectory.EventSpeculationConfirmed, domaintrajectory.EventSpeculationAborted:
		if !st.speculationStarted {
			return []Anomaly{{Code: SpeculationInvalidStart, Seq: evt.Seq, TaskRef: addr,
				Detail: fmt.Sprintf("%s observed without a preceding speculation_started", evt.Type)}}
		}
	}
	return nil
}

func validateTaskPhase(addr string, evt domaintrajectory.Event, st *refState) []Anomaly {
	transition, known := taskMatrix[evt.Type]
	if !known {
		return nil
	}

	if st.phase == phaseTerminal {
		if isCompletionEvent(evt.Type) {
			return []Anomaly{{Code: TaskDoubleComplete, Seq: evt.Seq, TaskRef: addr,
				Detail: fmt.Sprintf("%s observed after task already reached a terminal status", evt.Type)}}
		}
		return []Anomaly{{Code: TaskTerminalTransition, Seq: evt.Seq, TaskRef: addr,
			Detail: fmt.Sprintf("%s observed after task already reached a terminal status", evt.Type)}}
	}

	if !containsPhase(transition.from, st.phase) {
		return []Anomaly{{Code: TaskInvalidTransition, Seq: evt.Seq, TaskRef: addr,
			Detail: fmt.Sprintf("%s observed from unexpected phase", evt.Type)}}
	}

	if transition.changes {
		st.phase = transition.to
	}
	return nil
}
