// Package proof defines the Proof Job record tracked by the Proof Pipeline.
package proof

import (
	"time"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// Status is the proof job lifecycle state. Transitions are strictly
// forward until a terminal state.
type Status int

const (
	StatusQueued Status = iota
	StatusGenerating
	StatusAwaitingSubmission
	StatusSubmitting
	StatusConfirmed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusGenerating:
		return "generating"
	case StatusAwaitingSubmission:
		return "awaiting_submission"
	case StatusSubmitting:
		return "submitting"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// order gives the strict-forward rank of non-terminal statuses so callers
// can assert a transition never moves backwards.
var order = map[Status]int{
	StatusQueued:             0,
	StatusGenerating:         1,
	StatusAwaitingSubmission: 2,
	StatusSubmitting:         3,
	StatusConfirmed:          4,
	StatusFailed:             4,
}

// CanTransition reports whether moving from 'from' to 'to' respects the
// strictly-forward ordering (or is a no-terminal-state transition into a
// different terminal state, which is never allowed once terminal).
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	return order[to] >= order[from]
}

// Job is a unit of proof-generation-and-submission work for one task.
type Job struct {
	TaskRef task.Ref
	TaskID  [32]byte
	// ConstraintHash is the task's on-chain constraint hash (all-zero for
	// public tasks); private-task proof generation binds its bundle to it.
	ConstraintHash [32]byte
	Result         []byte
	IsPrivate      bool
	Status         Status
	Attempts       int
	TxSignature    string
	CreatedAt      time.Time
	StartedAt      time.Time
	CompletedAt    time.Time
}
