package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
	domaintrajectory "github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
)

func sampleManifest() Manifest {
	return Manifest{
		CorpusVersion: "2026.1",
		Scenarios: []Scenario{
			{ID: "s1", Title: "simple public task", TaskClass: "compute", RiskTier: RiskLow, Seeds: []string{"a", "b"}},
			{ID: "s2", Title: "private task", TaskClass: "compute", RiskTier: RiskHigh, Seeds: []string{"c"}},
		},
		BaselineScenarioID: "s1",
	}
}

func TestManifestValidatePasses(t *testing.T) {
	assert.NoError(t, sampleManifest().Validate())
}

func TestManifestValidateRejectsDuplicateIDs(t *testing.T) {
	m := sampleManifest()
	m.Scenarios = append(m.Scenarios, Scenario{ID: "s1", Seeds: []string{"x"}})
	assert.Error(t, m.Validate())
}

func TestManifestValidateRejectsUnknownBaseline(t *testing.T) {
	m := sampleManifest()
	m.BaselineScenarioID = "nope"
	assert.Error(t, m.Validate())
}

func TestManifestValidateRejectsEmptyScenarios(t *testing.T) {
	m := Manifest{CorpusVersion: "2026.1"}
	assert.Error(t, m.Validate())
}

func TestManifestHashDeterministic(t *testing.T) {
	m := sampleManifest()
	assert.Equal(t, m.Hash(), m.Hash())
}

func TestManifestHashChangesWithContent(t *testing.T) {
	m1 := sampleManifest()
	m2 := sampleManifest()
	m2.Scenarios[0].RewardLamports = 100
	assert.NotEqual(t, m1.Hash(), m2.Hash())
}

func TestScenarioByIDFindsAndMisses(t *testing.T) {
	m := sampleManifest()
	s, ok := m.ScenarioByID("s2")
	require.True(t, ok)
	assert.Equal(t, RiskHigh, s.RiskTier)

	_, ok = m.ScenarioByID("missing")
	assert.False(t, ok)
}

func TestConformanceCheckNoConstraintsTriviallyConforms(t *testing.T) {
	scenario := Scenario{ID: "s1"}
	score, err := ConformanceCheck(scenario, domaintrajectory.Trace{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestConformanceCheckMatchesPathValue(t *testing.T) {
	ref := task.Ref{Address: "task-1"}
	trace := domaintrajectory.Trace{
		TraceID: "t1",
		Events: []domaintrajectory.Event{
			{Seq: 1, Type: domaintrajectory.EventCompleted, TaskRef: &ref, TimestampMs: 100},
		},
	}
	scenario := Scenario{
		ID: "s1",
		ExpectedConstraints: map[string]interface{}{
			"$.events[0].type": "completed",
		},
	}
	score, err := ConformanceCheck(scenario, trace)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestConformanceCheckPartialMatchReturnsFraction(t *testing.T) {
	trace := domaintrajectory.Trace{TraceID: "t1"}
	scenario := Scenario{
		ID: "s1",
		ExpectedConstraints: map[string]interface{}{
			"$.traceId":  "t1",
			"$.nothere":  "x",
		},
	}
	score, err := ConformanceCheck(scenario, trace)
	require.NoError(t, err)
	assert.Equal(t, 0.5, score)
}
