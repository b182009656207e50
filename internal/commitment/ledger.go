// Package commitment implements the Commitment Ledger: the
// speculative-commitment lifecycle, stake-at-risk accounting, and cascade
// rollback on parent failure.
package commitment

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/commitment"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Ledger is a mutex-guarded in-memory store of speculative commitments,
// keyed by source task reference.
type Ledger struct {
	mu          sync.Mutex
	bySource    map[task.Ref]*commitment.Commitment
	byID        map[commitment.ID]*commitment.Commitment
	retention   time.Duration
	now         Clock
	mutationSeq uint64
	pending     []mutation
}

// mutation records a deferred state change for batched application via
// the mutation queue.
type mutation struct {
	seq      uint64
	sourceID task.Ref
	apply    func(*commitment.Commitment)
}

// Config configures a Ledger.
type Config struct {
	Retention time.Duration // commitments older than this (since confirmedAt) are eligible for pruning
	Now       Clock         // defaults to time.Now
}

// New constructs an empty Ledger.
func New(cfg Config) *Ledger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		bySource:  make(map[task.Ref]*commitment.Commitment),
		byID:      make(map[commitment.ID]*commitment.Commitment),
		retention: cfg.Retention,
		now:       now,
	}
}

func newID() commitment.ID {
	u := uuid.New()
	return commitment.ID(u)
}

// CreateCommitment records a new speculative commitment for sourceRef and
// returns its generated id. Returns an error if sourceRef already has a
// commitment.
func (l *Ledger) CreateCommitment(sourceRef task.Ref, sourceTaskID, resultHash [32]byte, producer string, stakeAtRisk uint64) (commitment.ID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.bySource[sourceRef]; exists {
		return commitment.ID{}, fmt.Errorf("commitment already exists for task %s", sourceRef)
	}

	id := newID()
	c := &commitment.Commitment{
		ID:            id,
		SourceTaskRef: sourceRef,
		SourceTaskID:  sourceTaskID,
		ResultHash:    resultHash,
		Producer:      producer,
		StakeAtRisk:   stakeAtRisk,
		Status:        commitment.StatusPending,
		CreatedAt:     l.now(),
	}
	l.bySource[sourceRef] = c
	l.byID[id] = c
	return id, nil
}

// AddDependent records child as a dependent of the commitment sourced from
// parent, deduplicating against the existing Dependents list.
func (l *Ledger) AddDependent(parent, child task.Ref) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.bySource[parent]
	if !ok {
		return fmt.Errorf("no commitment for task %s", parent)
	}
	if !c.HasDependent(child) {
		c.Dependents = append(c.Dependents, child)
	}
	return nil
}

// UpdateStatus transitions the commitment sourced from ref to status. A
// no-op, returning an error, once the commitment has reached a terminal
// state.
func (l *Ledger) UpdateStatus(ref task.Ref, status commitment.Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.bySource[ref]
	if !ok {
		return fmt.Errorf("no commitment for task %s", ref)
	}
	if c.Status.Terminal() {
		return fmt.Errorf("commitment for task %s already terminal (%s)", ref, c.Status)
	}
	c.Status = status
	return nil
}

// MarkConfirmed transitions the commitment sourced from ref to Confirmed
// and stamps ConfirmedAt.
func (l *Ledger) MarkConfirmed(ref task.Ref) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.bySource[ref]
	if !ok {
		return fmt.Errorf("no commitment for task %s", ref)
	}
	if c.Status.Terminal() {
		return fmt.Errorf("commitment for task %s already terminal (%s)", ref, c.Status)
	}
	c.Status = commitment.StatusConfirmed
	c.ConfirmedAt = l.now()
	return nil
}

// MarkFailed marks the commitment sourced from ref Failed (a root already in
// a terminal state keeps it) and cascades RolledBack to every non-terminal
// transitive dependent, returning the full affected set
// (root first): "this commitment plus the transitive closure
// of its dependents, all marked rolled_back except the root which is
// marked failed".
func (l *Ledger) MarkFailed(ref task.Ref) ([]task.Ref, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	root, ok := l.bySource[ref]
	if !ok {
		return nil, fmt.Errorf("no commitment for task %s", ref)
	}

	affected := []task.Ref{ref}
	if !root.Status.Terminal() {
		root.Status = commitment.StatusFailed
	}

	visited := map[task.Ref]bool{ref: true}
	queue := append([]task.Ref{}, root.Dependents...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		affected = append(affected, cur)

		if dep, ok := l.bySource[cur]; ok {
			if !dep.Status.Terminal() {
				dep.Status = commitment.StatusRolledBack
			}
			queue = append(queue, dep.Dependents...)
		}
	}
	return affected, nil
}

// GetTotalStakeAtRisk sums StakeAtRisk over every non-terminal commitment.
func (l *Ledger) GetTotalStakeAtRisk() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total uint64
	for _, c := range l.bySource {
		if !c.Status.Terminal() {
			total += c.StakeAtRisk
		}
	}
	return total
}

// PruneConfirmed evicts commitments whose ConfirmedAt predates the
// configured retention window, returning the number evicted.
func (l *Ledger) PruneConfirmed() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.retention <= 0 {
		return 0
	}
	cutoff := l.now().Add(-l.retention)

	pruned := 0
	for ref, c := range l.bySource {
		if c.Status == commitment.StatusConfirmed && c.ConfirmedAt.Before(cutoff) {
			delete(l.bySource, ref)
			delete(l.byID, c.ID)
			pruned++
		}
	}
	return pruned
}

// Get returns the commitment sourced from ref, if any.
func (l *Ledger) Get(ref task.Ref) (*commitment.Commitment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.bySource[ref]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// GetByID returns the commitment with the given id, if any.
func (l *Ledger) GetByID(id commitment.ID) (*commitment.Commitment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.byID[id]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// Snapshot returns a copy of every commitment currently held, for
// persistence or inspection.
func (l *Ledger) Snapshot() []commitment.Commitment {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]commitment.Commitment, 0, len(l.bySource))
	for _, c := range l.bySource {
		out = append(out, *c)
	}
	return out
}

// EnqueueMutation defers applying fn to the commitment sourced from ref
// until the next FlushMutations call.
func (l *Ledger) EnqueueMutation(ref task.Ref, fn func(*commitment.Commitment)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mutationSeq++
	l.pending = append(l.pending, mutation{seq: l.mutationSeq, sourceID: ref, apply: fn})
}

// FlushMutations applies every queued mutation, in enqueue order, to
// commitments that still exist and have not reached a terminal state.
// Mutations targeting a missing or terminal commitment are dropped.
func (l *Ledger) FlushMutations() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	applied := 0
	for _, m := range l.pending {
		c, ok := l.bySource[m.sourceID]
		if !ok || c.Status.Terminal() {
			continue
		}
		m.apply(c)
		applied++
	}
	l.pending = nil
	return applied
}

// PendingMutationCount reports how many mutations are queued but not yet
// flushed.
func (l *Ledger) PendingMutationCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
