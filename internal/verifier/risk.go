package verifier

import (
	"math/bits"
	"time"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// Tier buckets an adaptive risk score into the budget allocator's three
// bands.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// RiskWeights scales each normalized feature before summing.
type RiskWeights struct {
	RewardMagnitude    float64
	DeadlineUrgency    float64
	CapabilityBreadth  float64
	DisagreementRate   float64
	TaskTypeMultiplier float64
}

// DefaultRiskWeights returns a weighting that favors disagreement history
// and reward size, the two signals most predictive of a bad outcome.
func DefaultRiskWeights() RiskWeights {
	return RiskWeights{
		RewardMagnitude:    0.25,
		DeadlineUrgency:    0.15,
		CapabilityBreadth:  0.10,
		DisagreementRate:   0.35,
		TaskTypeMultiplier: 0.15,
	}
}

// RiskThresholds are the score cutoffs separating tiers. Scores at or below
// Low fall in TierLow, at or below Medium fall in TierMedium, else TierHigh.
type RiskThresholds struct {
	Low    float64
	Medium float64
}

// DefaultRiskThresholds returns conservative tier boundaries over a
// normalized [0,1] score.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{Low: 0.33, Medium: 0.66}
}

// RiskInputs are the raw signals fed into the scorer. RewardCeiling
// normalizes Reward into [0,1]; a zero RewardCeiling treats the task as
// maximally risky on that feature, since there is nothing to normalize
// against.
type RiskInputs struct {
	Reward             uint64
	RewardCeiling      uint64
	Deadline           time.Time
	Now                time.Time
	UrgencyWindow      time.Duration
	RequiredCapability uint64
	DisagreementRate   float64
	TaskType           task.Type
}

// Assessment is the scorer's output, carrying both the final tier and the
// normalized feature values so the audit trail can explain a decision.
type Assessment struct {
	Score    float64
	Tier     Tier
	Features map[string]float64
}

func taskTypeFactor(t task.Type) float64 {
	switch t {
	case task.TypeExclusive:
		return 0.3
	case task.TypeCollaborative:
		return 0.6
	case task.TypeCompetitive:
		return 1.0
	default:
		return 0.5
	}
}

func deadlineUrgency(in RiskInputs) float64 {
	if in.Deadline.IsZero() {
		return 0
	}
	window := in.UrgencyWindow
	if window <= 0 {
		window = time.Hour
	}
	remaining := in.Deadline.Sub(in.Now)
	if remaining <= 0 {
		return 1
	}
	urgency := 1 - float64(remaining)/float64(window)
	return clamp01(urgency)
}

func capabilityBreadth(mask uint64) float64 {
	const knownBits = 10
	return clamp01(float64(bits.OnesCount64(mask)) / knownBits)
}

func rewardMagnitude(in RiskInputs) float64 {
	if in.RewardCeiling == 0 {
		return 1
	}
	return clamp01(float64(in.Reward) / float64(in.RewardCeiling))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Score computes the weighted adaptive risk assessment for a task.
func Score(weights RiskWeights, thresholds RiskThresholds, in RiskInputs) Assessment {
	features := map[string]float64{
		"reward_magnitude":    rewardMagnitude(in),
		"deadline_urgency":    deadlineUrgency(in),
		"capability_breadth":  capabilityBreadth(in.RequiredCapability),
		"disagreement_rate":   clamp01(in.DisagreementRate),
		"task_type_multiplier": taskTypeFactor(in.TaskType),
	}

	score := weights.RewardMagnitude*features["reward_magnitude"] +
		weights.DeadlineUrgency*features["deadline_urgency"] +
		weights.CapabilityBreadth*features["capability_breadth"] +
		weights.DisagreementRate*features["disagreement_rate"] +
		weights.TaskTypeMultiplier*features["task_type_multiplier"]

	tier := TierHigh
	switch {
	case score <= thresholds.Low:
		tier = TierLow
	case score <= thresholds.Medium:
		tier = TierMedium
	}

	return Assessment{Score: score, Tier: tier, Features: features}
}
