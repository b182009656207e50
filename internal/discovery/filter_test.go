package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

func TestFilterAcceptsCapabilitySuperset(t *testing.T) {
	f := Filter{Capabilities: 0b111}
	assert.True(t, f.Accepts(task.Task{RequiredCapability: 0b011}))
	assert.False(t, f.Accepts(task.Task{RequiredCapability: 0b1000}))
}

func TestFilterMinReward(t *testing.T) {
	f := Filter{Capabilities: 0xFF, MinReward: 100}
	assert.False(t, f.Accepts(task.Task{RequiredCapability: 1, Reward: 50}))
	assert.True(t, f.Accepts(task.Task{RequiredCapability: 1, Reward: 150}))
}

func TestFilterAssetAllowlist(t *testing.T) {
	f := Filter{Capabilities: 0xFF, AssetAllowlist: []string{"USDC"}}
	assert.True(t, f.Accepts(task.Task{RewardAsset: "USDC"}))
	assert.False(t, f.Accepts(task.Task{RewardAsset: "SOL"}))
}

func TestFilterEmptyAllowlistAcceptsAnyAsset(t *testing.T) {
	f := Filter{Capabilities: 0xFF}
	assert.True(t, f.Accepts(task.Task{RewardAsset: "anything"}))
}
