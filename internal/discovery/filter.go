package discovery

import "github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"

// Filter narrows discovered tasks by capability superset, minimum reward,
// and an optional reward-asset allowlist.
type Filter struct {
	Capabilities  uint64
	MinReward     uint64
	AssetAllowlist []string // empty means "accept any asset"
}

// Accepts reports whether t passes the filter.
func (f Filter) Accepts(t task.Task) bool {
	if t.RequiredCapability&^f.Capabilities != 0 {
		return false // f.Capabilities is not a superset of the task's requirement
	}
	if t.Reward < f.MinReward {
		return false
	}
	if len(f.AssetAllowlist) > 0 {
		allowed := false
		for _, a := range f.AssetAllowlist {
			if a == t.RewardAsset {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return true
}
