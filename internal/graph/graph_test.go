package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

func ref(addr string) task.Ref {
	var id [32]byte
	copy(id[:], addr)
	return task.Ref{ID: id, Address: addr}
}

func TestAddNodeWithParentCreatesPlaceholders(t *testing.T) {
	g := New()
	parent, child := ref("parent"), ref("child")

	err := g.AddNodeWithParent(parent, child, task.EdgeData)
	require.NoError(t, err)

	assert.True(t, g.Has(parent))
	assert.True(t, g.Has(child))
	assert.Equal(t, 2, g.NodeCount())
}

func TestAddNodePromotesPlaceholder(t *testing.T) {
	g := New()
	parent, child := ref("parent"), ref("child")
	require.NoError(t, g.AddNodeWithParent(parent, child, task.EdgeData))

	g.AddNode(parent)
	assert.True(t, g.Has(parent))
}

func TestAddNodeWithParentRejectsCycle(t *testing.T) {
	g := New()
	a, b, c := ref("a"), ref("b"), ref("c")

	require.NoError(t, g.AddNodeWithParent(a, b, task.EdgeData))
	require.NoError(t, g.AddNodeWithParent(b, c, task.EdgeData))

	err := g.AddNodeWithParent(c, a, task.EdgeData)
	assert.Error(t, err, "c -> a would close a -> b -> c -> a")
}

func TestAddNodeWithParentRejectsSelfLoop(t *testing.T) {
	g := New()
	a := ref("a")
	err := g.AddNodeWithParent(a, a, task.EdgeData)
	assert.Error(t, err)
}

func TestUnconfirmedAncestorsAndPredicate(t *testing.T) {
	g := New()
	a, b, c := ref("a"), ref("b"), ref("c")

	require.NoError(t, g.AddNodeWithParent(a, b, task.EdgeData))
	require.NoError(t, g.AddNodeWithParent(b, c, task.EdgeData))

	assert.False(t, g.AreAncestorsConfirmed(c))
	assert.ElementsMatch(t, []task.Ref{a, b}, g.UnconfirmedAncestors(c))

	g.MarkConfirmed(a)
	assert.ElementsMatch(t, []task.Ref{b}, g.UnconfirmedAncestors(c))

	g.MarkConfirmed(b)
	assert.True(t, g.AreAncestorsConfirmed(c))
}

func TestSpeculatableAncestorChain(t *testing.T) {
	g := New()
	a, b, c := ref("a"), ref("b"), ref("c")

	require.NoError(t, g.AddNodeWithParent(a, b, task.EdgeData))
	require.NoError(t, g.AddNodeWithParent(b, c, task.EdgeControl))

	speculatable, depth := g.SpeculatableAncestorChain(c)
	assert.False(t, speculatable, "control edge in the chain blocks speculation")
	assert.Equal(t, 2, depth)
}

func TestSpeculatableAncestorChainAllData(t *testing.T) {
	g := New()
	a, b, c := ref("a"), ref("b"), ref("c")

	require.NoError(t, g.AddNodeWithParent(a, b, task.EdgeData))
	require.NoError(t, g.AddNodeWithParent(b, c, task.EdgeData))

	speculatable, depth := g.SpeculatableAncestorChain(c)
	assert.True(t, speculatable)
	assert.Equal(t, 2, depth)
}

func TestSpeculatableAncestorChainStopsAtConfirmed(t *testing.T) {
	g := New()
	a, b, c := ref("a"), ref("b"), ref("c")

	require.NoError(t, g.AddNodeWithParent(a, b, task.EdgeControl))
	require.NoError(t, g.AddNodeWithParent(b, c, task.EdgeData))
	g.MarkConfirmed(a)
	g.MarkConfirmed(b)

	speculatable, depth := g.SpeculatableAncestorChain(c)
	assert.True(t, speculatable, "confirmed ancestors no longer block speculation regardless of edge type")
	assert.Equal(t, 0, depth)
}

func TestDescendantsCascade(t *testing.T) {
	g := New()
	a, b, c, d := ref("a"), ref("b"), ref("c"), ref("d")

	require.NoError(t, g.AddNodeWithParent(a, b, task.EdgeData))
	require.NoError(t, g.AddNodeWithParent(a, c, task.EdgeData))
	require.NoError(t, g.AddNodeWithParent(b, d, task.EdgeData))

	assert.ElementsMatch(t, []task.Ref{b, c, d}, g.Descendants(a))
}

func TestAddNodeWithParentIsIdempotent(t *testing.T) {
	g := New()
	a, b := ref("a"), ref("b")

	require.NoError(t, g.AddNodeWithParent(a, b, task.EdgeData))
	require.NoError(t, g.AddNodeWithParent(a, b, task.EdgeData))

	assert.Equal(t, []task.Ref{a}, g.UnconfirmedAncestors(b))
}

func TestParentsAndChildren(t *testing.T) {
	g := New()
	a, b, c := ref("a"), ref("b"), ref("c")

	require.NoError(t, g.AddNodeWithParent(a, b, task.EdgeData))
	require.NoError(t, g.AddNodeWithParent(a, c, task.EdgeData))

	assert.ElementsMatch(t, []task.Ref{b, c}, g.Children(a))
	assert.Equal(t, []task.Ref{a}, g.Parents(b))
	assert.Empty(t, g.Parents(a))
}

func TestHasUnknownRef(t *testing.T) {
	g := New()
	assert.False(t, g.Has(ref("missing")))
	assert.Empty(t, g.UnconfirmedAncestors(ref("missing")))
	assert.True(t, g.AreAncestorsConfirmed(ref("missing")))
}
