package trajectory

import (
	domaintrajectory "github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
)

// Summary aggregates a replayed trace into counters, independent of the
// anomalies found. It feeds both the deterministic hash and human-facing
// replay reports.
type Summary struct {
	TotalEvents    int            `json:"totalEvents"`
	UniqueTasks    int            `json:"uniqueTasks"`
	TasksCompleted int            `json:"tasksCompleted"`
	TasksFailed    int            `json:"tasksFailed"`
	TasksEscalated int            `json:"tasksEscalated"`
	EventCounts    map[string]int `json:"eventCounts"`
}

// Result is the outcome of replaying one trace.
type Result struct {
	TraceID   string    `json:"traceId"`
	Anomalies []Anomaly `json:"anomalies"`
	Summary   Summary   `json:"summary"`
	// Hash is the deterministic hex-encoded SHA-256 digest over
	// {trace, anomalies, summary}.
	Hash string `json:"hash"`
}

// Clean reports whether replay found zero anomalies.
func (r Result) Clean() bool {
	return len(r.Anomalies) == 0
}

// Replay deterministically re-validates trace: it walks every event
// against the Task and Speculation transition matrices (transitions.go),
// aggregates a Summary, and computes the stable hash (hash.go). Calling
// Replay twice on byte-identical input always yields a byte-identical
// Result.Hash.
func Replay(trace domaintrajectory.Trace) Result {
	anomalies := Transitions(trace.Events)
	summary := summarize(trace.Events)

	result := Result{
		TraceID:   trace.TraceID,
		Anomalies: anomalies,
		Summary:   summary,
	}
	result.Hash = Hash(trace, anomalies, summary)
	return result
}

func summarize(events []domaintrajectory.Event) Summary {
	summary := Summary{EventCounts: make(map[string]int)}
	seen := make(map[string]bool)

	for _, evt := range events {
		summary.TotalEvents++
		summary.EventCounts[string(evt.Type)]++

		if evt.TaskRef == nil {
			continue
		}
		addr := evt.TaskRef.Address
		if !seen[addr] {
			seen[addr] = true
			summary.UniqueTasks++
		}

		switch evt.Type {
		case domaintrajectory.EventCompleted, domaintrajectory.EventCompletedSpeculative:
			summary.TasksCompleted++
		case domaintrajectory.EventFailed:
			summary.TasksFailed++
		case domaintrajectory.EventEscalated:
			summary.TasksEscalated++
		}
	}

	return summary
}
