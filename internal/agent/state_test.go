package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

func TestRegistryInflightCountsOnlyActiveAndAwaitingProof(t *testing.T) {
	r := newRegistry()
	r.upsert(ref("a"), StateDiscovered)
	r.upsert(ref("b"), StateActive)
	r.upsert(ref("c"), StateAwaitingProof)
	r.upsert(ref("d"), StateCompleted)

	assert.Equal(t, 2, r.inflightCount())
}

func TestRegistrySetStateUpdatesExistingRecord(t *testing.T) {
	r := newRegistry()
	r.upsert(ref("a"), StatePending)
	r.setState(ref("a"), StateActive)

	rec, ok := r.get(ref("a"))
	assert.True(t, ok)
	assert.Equal(t, StateActive, rec.state)
}

func TestRegistryRemoveDropsRecord(t *testing.T) {
	r := newRegistry()
	r.upsert(ref("a"), StateActive)
	r.remove(ref("a"))

	_, ok := r.get(ref("a"))
	assert.False(t, ok)
	assert.Equal(t, 0, r.inflightCount())
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateEscalated.Terminal())
	assert.False(t, StateActive.Terminal())
	assert.False(t, StatePending.Terminal())
}

func ref(addr string) task.Ref {
	return task.Ref{Address: addr}
}
