package commitment

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domaincommitment "github.com/tetsuo-ai/AgenC-sub003/internal/domain/commitment"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

func testRef(addr string) task.Ref {
	var id [32]byte
	copy(id[:], addr)
	return task.Ref{ID: id, Address: addr}
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestCreateCommitmentRejectsDuplicateSource(t *testing.T) {
	l := New(Config{})
	ref := testRef("task-1")

	_, err := l.CreateCommitment(ref, [32]byte{}, [32]byte{}, "agent-1", 100)
	require.NoError(t, err)

	_, err = l.CreateCommitment(ref, [32]byte{}, [32]byte{}, "agent-1", 100)
	assert.Error(t, err)
}

func TestAddDependentDeduplicates(t *testing.T) {
	l := New(Config{})
	parent, child := testRef("parent"), testRef("child")

	_, err := l.CreateCommitment(parent, [32]byte{}, [32]byte{}, "agent-1", 10)
	require.NoError(t, err)

	require.NoError(t, l.AddDependent(parent, child))
	require.NoError(t, l.AddDependent(parent, child))

	c, ok := l.Get(parent)
	require.True(t, ok)
	assert.Len(t, c.Dependents, 1)
}

func TestUpdateStatusRejectsAfterTerminal(t *testing.T) {
	l := New(Config{})
	ref := testRef("task-1")
	_, err := l.CreateCommitment(ref, [32]byte{}, [32]byte{}, "agent-1", 10)
	require.NoError(t, err)

	require.NoError(t, l.MarkConfirmed(ref))
	err = l.UpdateStatus(ref, domaincommitment.StatusExecuting)
	assert.Error(t, err, "terminal commitments must not revert")
}

func TestMarkFailedCascadesToDependents(t *testing.T) {
	now := time.Now()
	l := New(Config{Now: fixedClock(now)})

	root, mid, leaf := testRef("root"), testRef("mid"), testRef("leaf")

	_, err := l.CreateCommitment(root, [32]byte{}, [32]byte{}, "agent-1", 10)
	require.NoError(t, err)
	_, err = l.CreateCommitment(mid, [32]byte{}, [32]byte{}, "agent-1", 10)
	require.NoError(t, err)
	_, err = l.CreateCommitment(leaf, [32]byte{}, [32]byte{}, "agent-1", 10)
	require.NoError(t, err)

	require.NoError(t, l.AddDependent(root, mid))
	require.NoError(t, l.AddDependent(mid, leaf))

	affected, err := l.MarkFailed(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []task.Ref{root, mid, leaf}, affected)

	rootC, _ := l.Get(root)
	midC, _ := l.Get(mid)
	leafC, _ := l.Get(leaf)
	assert.Equal(t, domaincommitment.StatusFailed, rootC.Status)
	assert.Equal(t, domaincommitment.StatusRolledBack, midC.Status)
	assert.Equal(t, domaincommitment.StatusRolledBack, leafC.Status)
}

func TestMarkFailedDoesNotRevertAlreadyTerminalDependent(t *testing.T) {
	l := New(Config{})
	root, child := testRef("root"), testRef("child")

	_, err := l.CreateCommitment(root, [32]byte{}, [32]byte{}, "agent-1", 10)
	require.NoError(t, err)
	_, err = l.CreateCommitment(child, [32]byte{}, [32]byte{}, "agent-1", 10)
	require.NoError(t, err)
	require.NoError(t, l.AddDependent(root, child))
	require.NoError(t, l.MarkConfirmed(child))

	_, err = l.MarkFailed(root)
	require.NoError(t, err)

	childC, _ := l.Get(child)
	assert.Equal(t, domaincommitment.StatusConfirmed, childC.Status, "confirmed dependents stay confirmed")
}

func TestGetTotalStakeAtRiskExcludesTerminal(t *testing.T) {
	l := New(Config{})
	a, b := testRef("a"), testRef("b")

	_, err := l.CreateCommitment(a, [32]byte{}, [32]byte{}, "agent-1", 100)
	require.NoError(t, err)
	_, err = l.CreateCommitment(b, [32]byte{}, [32]byte{}, "agent-1", 50)
	require.NoError(t, err)

	assert.Equal(t, uint64(150), l.GetTotalStakeAtRisk())

	require.NoError(t, l.MarkConfirmed(a))
	assert.Equal(t, uint64(50), l.GetTotalStakeAtRisk())
}

func TestPruneConfirmedEvictsOldCommitments(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	l := New(Config{Retention: 10 * time.Minute, Now: fixedClock(old)})

	ref := testRef("task-1")
	_, err := l.CreateCommitment(ref, [32]byte{}, [32]byte{}, "agent-1", 10)
	require.NoError(t, err)
	require.NoError(t, l.MarkConfirmed(ref))

	l.now = func() time.Time { return old.Add(time.Hour) }
	pruned := l.PruneConfirmed()
	assert.Equal(t, 1, pruned)

	_, ok := l.Get(ref)
	assert.False(t, ok)
}

func TestMutationQueueDeferredApplication(t *testing.T) {
	l := New(Config{})
	ref := testRef("task-1")
	_, err := l.CreateCommitment(ref, [32]byte{}, [32]byte{}, "agent-1", 10)
	require.NoError(t, err)

	l.EnqueueMutation(ref, func(c *domaincommitment.Commitment) { c.Depth = 3 })
	assert.Equal(t, 1, l.PendingMutationCount())

	c, _ := l.Get(ref)
	assert.Equal(t, 0, c.Depth, "mutation should not apply until flush")

	applied := l.FlushMutations()
	assert.Equal(t, 1, applied)
	assert.Equal(t, 0, l.PendingMutationCount())

	c, _ = l.Get(ref)
	assert.Equal(t, 3, c.Depth)
}

func TestMutationQueueDropsTargetOfTerminalCommitment(t *testing.T) {
	l := New(Config{})
	ref := testRef("task-1")
	_, err := l.CreateCommitment(ref, [32]byte{}, [32]byte{}, "agent-1", 10)
	require.NoError(t, err)
	require.NoError(t, l.MarkConfirmed(ref))

	l.EnqueueMutation(ref, func(c *domaincommitment.Commitment) { c.Depth = 9 })
	applied := l.FlushMutations()
	assert.Equal(t, 0, applied)
}

func TestSaveAndLoadSnapshotRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commitments.json")

	l := New(Config{})
	ref := testRef("task-1")
	var taskID, resultHash [32]byte
	copy(taskID[:], "task-1")
	copy(resultHash[:], "result-hash-bytes")

	_, err := l.CreateCommitment(ref, taskID, resultHash, "agent-1", 4242)
	require.NoError(t, err)

	require.NoError(t, l.SaveSnapshot(path))

	l2 := New(Config{})
	require.NoError(t, l2.LoadSnapshot(path))

	c, ok := l2.Get(ref)
	require.True(t, ok)
	assert.Equal(t, uint64(4242), c.StakeAtRisk)
	assert.Equal(t, taskID, c.SourceTaskID)
	assert.Equal(t, resultHash, c.ResultHash)
}

func TestLoadSnapshotToleratesMissingFile(t *testing.T) {
	l := New(Config{})
	err := l.LoadSnapshot(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.NoError(t, err)
}
