package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreAllPassingRunsMaximizesMetrics(t *testing.T) {
	runs := []RunOutcome{
		{Passed: true, Conformance: 1.0, CostUnits: 1, RewardLamports: 100},
		{Passed: true, Conformance: 1.0, CostUnits: 1, RewardLamports: 100},
	}
	card := Score(RiskLow, runs, 2)
	assert.Equal(t, 1.0, card.PassRate)
	assert.Equal(t, 1.0, card.PassAtK)
	assert.Equal(t, 1.0, card.PassCaretK)
	assert.Equal(t, 1.0, card.ConformanceScore)
}

func TestScoreAllFailingRunsMinimizesMetrics(t *testing.T) {
	runs := []RunOutcome{
		{Passed: false, Conformance: 0},
		{Passed: false, Conformance: 0},
	}
	card := Score(RiskLow, runs, 2)
	assert.Equal(t, 0.0, card.PassRate)
	assert.Equal(t, 0.0, card.PassAtK)
	assert.Equal(t, 0.0, card.PassCaretK)
}

func TestScoreMixedRunsPassAtKExceedsPassCaretK(t *testing.T) {
	runs := []RunOutcome{
		{Passed: true, Conformance: 1.0},
		{Passed: false, Conformance: 0},
		{Passed: false, Conformance: 0},
	}
	card := Score(RiskLow, runs, 2)
	assert.True(t, card.PassAtK >= card.PassCaretK)
	assert.InDelta(t, 1.0/3.0, card.PassRate, 0.001)
}

func TestScoreRiskWeightScalesWithTier(t *testing.T) {
	runs := []RunOutcome{{Passed: true, Conformance: 1.0}}
	low := Score(RiskLow, runs, 1)
	high := Score(RiskHigh, runs, 1)
	assert.True(t, high.RiskWeightedSuccess > low.RiskWeightedSuccess)
}

func TestScoreEmptyRunsReturnsZeroCard(t *testing.T) {
	card := Score(RiskLow, nil, 1)
	assert.Equal(t, Scorecard{}, card)
}

func TestScoreCostNormalizedUtilityZeroCostAvoidsDivideByZero(t *testing.T) {
	runs := []RunOutcome{{Passed: true, Conformance: 1.0, CostUnits: 0, RewardLamports: 100}}
	card := Score(RiskLow, runs, 1)
	assert.Equal(t, 0.0, card.CostNormalizedUtility)
}

func TestAggregateAveragesAcrossScenarios(t *testing.T) {
	cards := []Scorecard{
		{PassRate: 1.0},
		{PassRate: 0.0},
	}
	agg := Aggregate(cards)
	assert.Equal(t, 0.5, agg.PassRate)
}

func TestDeltaFromComputesDifference(t *testing.T) {
	current := Scorecard{PassRate: 0.8}
	baseline := Scorecard{PassRate: 0.5}
	delta := current.DeltaFrom(baseline)
	assert.InDelta(t, 0.3, delta.PassRate, 0.0001)
}
