package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeenSetFirstObservationWins(t *testing.T) {
	s := newSeenSet()
	assert.True(t, s.MarkIfNew("task-1"))
	assert.False(t, s.MarkIfNew("task-1"))
	assert.True(t, s.MarkIfNew("task-2"))
	assert.Equal(t, 2, s.Len())
}
