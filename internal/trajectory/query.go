package trajectory

import (
	"github.com/tidwall/gjson"

	domaintrajectory "github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
)

// ByType returns every event of typ, in trace order.
func ByType(events []domaintrajectory.Event, typ domaintrajectory.EventType) []domaintrajectory.Event {
	var out []domaintrajectory.Event
	for _, evt := range events {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

// ForTask returns every event recorded for the given task address, in
// trace order.
func ForTask(events []domaintrajectory.Event, address string) []domaintrajectory.Event {
	var out []domaintrajectory.Event
	for _, evt := range events {
		if evt.TaskRef != nil && evt.TaskRef.Address == address {
			out = append(out, evt)
		}
	}
	return out
}

// PayloadField extracts one field from an event's JSON payload by gjson
// path (e.g. "reason", "history.0.outcome"), without requiring a typed
// struct for every event's ad hoc payload shape. Returns the zero Result
// (Exists() == false) if the event carries no payload or the path misses.
func PayloadField(evt domaintrajectory.Event, path string) gjson.Result {
	if len(evt.Payload) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(evt.Payload, path)
}

// PayloadString is a convenience wrapper over PayloadField for the common
// case of reading a string field (e.g. an escalation reason or tx
// signature), defaulting to "" when absent.
func PayloadString(evt domaintrajectory.Event, path string) string {
	result := PayloadField(evt, path)
	if !result.Exists() {
		return ""
	}
	return result.String()
}

// FailureReasons collects the "error"/"reason" payload field across every
// failed, escalated, and policy_violation event in a trace, keyed by task
// address. Tasks with no recorded reason are omitted.
func FailureReasons(events []domaintrajectory.Event) map[string]string {
	out := make(map[string]string)
	for _, evt := range events {
		if evt.TaskRef == nil {
			continue
		}
		switch evt.Type {
		case domaintrajectory.EventFailed:
			if reason := PayloadString(evt, "error"); reason != "" {
				out[evt.TaskRef.Address] = reason
			}
		case domaintrajectory.EventEscalated, domaintrajectory.EventPolicyViolation:
			if reason := PayloadString(evt, "reason"); reason != "" {
				out[evt.TaskRef.Address] = reason
			}
		}
	}
	return out
}
