package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

func taskWith(addr string) task.Task {
	return task.Task{Ref: task.Ref{Address: addr}, RequiredCapability: 0}
}

func TestCoordinatorFiltersAndDedupesAcrossSources(t *testing.T) {
	lister := &fakeLister{}
	c := New(Config{PollInterval: time.Hour}, lister, nil)

	var mu sync.Mutex
	var got []string
	c.onDiscovered = func(tt task.Task) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, tt.Ref.Address)
	}

	c.handleBatch([]task.Task{taskWith("task-1")})
	c.handleOne(taskWith("task-1")) // duplicate from the "event" source
	c.handleOne(taskWith("task-2"))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"task-1", "task-2"}, got)
}

func TestCoordinatorPauseSuppressesEmission(t *testing.T) {
	lister := &fakeLister{}
	var got int
	c := New(Config{PollInterval: time.Hour}, lister, func(task.Task) { got++ })

	c.Pause()
	c.handleOne(taskWith("task-1"))
	assert.Equal(t, 0, got)

	c.Resume()
	c.handleOne(taskWith("task-1"))
	assert.Equal(t, 1, got)
}

func TestCoordinatorEntersBackoffAfterFiveFailures(t *testing.T) {
	lister := &fakeLister{}
	c := New(Config{PollInterval: time.Hour}, lister, nil)

	for i := 0; i < backoffThreshold; i++ {
		c.handlePollError(errors.New("boom"))
	}
	assert.True(t, c.Paused())

	c.mu.Lock()
	timer := c.pauseTimer
	c.mu.Unlock()
	require.NotNil(t, timer)
	timer.Stop() // don't actually wait 60s in the test
}

func TestCoordinatorManualPollDelegatesToLister(t *testing.T) {
	lister := &fakeLister{batch: []task.Task{taskWith("task-1")}}
	c := New(Config{PollInterval: time.Hour}, lister, nil)

	tasks, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}
