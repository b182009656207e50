package agent

import (
	"sync"
	"time"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// State is a position in the coordinator's per-task finite state machine
// : discovered -> pending -> claimed -> active ->
// (awaiting_proof | completed | failed | escalated).
type State int

const (
	StateDiscovered State = iota
	StatePending
	StateClaimed
	StateActive
	StateAwaitingProof
	StateCompleted
	StateFailed
	StateEscalated
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StatePending:
		return "pending"
	case StateClaimed:
		return "claimed"
	case StateActive:
		return "active"
	case StateAwaitingProof:
		return "awaiting_proof"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateEscalated:
		return "escalated"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a task's lifecycle.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateEscalated
}

// taskRecord is the coordinator's bookkeeping for one task currently
// tracked in its state machine.
type taskRecord struct {
	ref       task.Ref
	state     State
	claim     *task.Claim
	startedAt time.Time
}

// registry tracks every task the coordinator currently knows about and
// enforces the admission cap: active.size + awaiting_proof.size <
// maxConcurrentTasks.
type registry struct {
	mu      sync.Mutex
	records map[string]*taskRecord
}

func newRegistry() *registry {
	return &registry{records: make(map[string]*taskRecord)}
}

func (r *registry) upsert(ref task.Ref, state State) *taskRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[ref.Address]
	if !ok {
		rec = &taskRecord{ref: ref}
		r.records[ref.Address] = rec
	}
	rec.state = state
	return rec
}

func (r *registry) get(ref task.Ref) (*taskRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[ref.Address]
	return rec, ok
}

func (r *registry) setState(ref task.Ref, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[ref.Address]; ok {
		rec.state = state
	}
}

// inflightCount returns the number of tasks presently in a state that
// counts against the admission cap.
func (r *registry) inflightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.state == StateActive || rec.state == StateAwaitingProof {
			n++
		}
	}
	return n
}

// remove drops a task's bookkeeping entirely, used once its lifecycle
// reaches a terminal state and the caller no longer needs the record.
func (r *registry) remove(ref task.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, ref.Address)
}

// snapshotStates returns a copy of every tracked task's current state, for
// tests and shutdown draining.
func (r *registry) snapshotStates() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.records))
	for addr, rec := range r.records {
		out[addr] = rec.state
	}
	return out
}
