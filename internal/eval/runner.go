package eval

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	domaintrajectory "github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
	"github.com/tetsuo-ai/AgenC-sub003/internal/trajectory"
)

// RunCapture is what a ScenarioExecutor returns for one scenario/seed
// pair: the raw task output and the recorded trajectory trace for that
// single run.
type RunCapture struct {
	Output    []byte
	Trace     domaintrajectory.Trace
	CostUnits float64
}

// ScenarioExecutor drives one scenario/seed pair through the agent (or a
// fixture replay) and returns its capture. The eval package stays
// decoupled from internal/agent: callers wire the coordinator themselves
// and hand the runner only this function, the same "inject the boundary"
// pattern internal/speculative uses for its Handler.
type ScenarioExecutor func(ctx context.Context, scenario Scenario, seed string) (*RunCapture, error)

// MutationReport summarizes one scenario's mutation-testing pass: how many
// mutants were generated from its mutation script and how many were
// "killed" (the conformance check correctly stopped passing against the
// mutated output) versus "survived" (conformance still reported the
// mutant as conformant, indicating the constraint didn't catch it).
type MutationReport struct {
	MutantsRun     int `json:"mutantsRun"`
	MutantsKilled  int `json:"mutantsKilled"`
	MutantsSurvived int `json:"mutantsSurvived"`
}

// Runner drives a Manifest's scenarios through a ScenarioExecutor,
// producing a scored Artifact.
type Runner struct {
	Mutator         *MutationEngine
	MutationScripts map[string]string // scenario id -> mutation script source
	Logger          *logrus.Entry
}

// NewRunner constructs a Runner. mutator and scripts may be nil/empty to
// skip mutation testing entirely.
func NewRunner(mutator *MutationEngine, scripts map[string]string, logger *logrus.Entry) *Runner {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{Mutator: mutator, MutationScripts: scripts, Logger: logger.WithField("component", "eval_runner")}
}

// Run executes every scenario's every seed via executor, scores each
// scenario, runs mutation testing where a script is configured, and
// assembles the final Artifact.
func (r *Runner) Run(ctx context.Context, manifest Manifest, executor ScenarioExecutor) (Artifact, error) {
	if err := manifest.Validate(); err != nil {
		return Artifact{}, err
	}

	results := make([]ScenarioResult, 0, len(manifest.Scenarios))
	for _, scenario := range manifest.Scenarios {
		result := r.runScenario(ctx, manifest, scenario, executor)
		results = append(results, result)
	}

	return BuildArtifact(manifest, results), nil
}

func (r *Runner) runScenario(ctx context.Context, manifest Manifest, scenario Scenario, executor ScenarioExecutor) ScenarioResult {
	outcomes := make([]RunOutcome, 0, len(scenario.Seeds))
	hashes := make([]string, 0, len(scenario.Seeds))

	for _, seed := range scenario.Seeds {
		capture, err := executor(ctx, scenario, seed)
		if err != nil {
			r.Logger.WithError(err).WithField("scenario", scenario.ID).WithField("seed", seed).
				Warn("scenario executor failed")
			outcomes = append(outcomes, RunOutcome{ScenarioID: scenario.ID, Seed: seed, Passed: false})
			continue
		}

		replay := trajectory.Replay(capture.Trace)
		conformance, err := ConformanceCheck(scenario, capture.Trace)
		if err != nil {
			r.Logger.WithError(err).WithField("scenario", scenario.ID).Warn("conformance check failed")
			conformance = 0
		}

		outcomes = append(outcomes, RunOutcome{
			ScenarioID:        scenario.ID,
			Seed:              seed,
			Passed:            replay.Clean() && allTasksTerminatedSuccessfully(replay),
			Conformance:       conformance,
			CostUnits:         capture.CostUnits,
			RewardLamports:    scenario.RewardLamports,
			DeterministicHash: replay.Hash,
		})
		hashes = append(hashes, replay.Hash)
	}

	mutationReport := r.runMutationTesting(ctx, scenario, outcomes)
	card := Score(scenario.RiskTier, outcomes, manifest.K)

	result := ScenarioResult{
		ScenarioID: scenario.ID,
		Scorecard:  card,
		RunHashes:  hashes,
	}
	if mutationReport.MutantsRun > 0 {
		result.Mutation = &mutationReport
	}
	return result
}

// allTasksTerminatedSuccessfully reports whether every task observed in a
// replayed run reached completed/completed_speculative rather than
// failed/escalated.
func allTasksTerminatedSuccessfully(result trajectory.Result) bool {
	if result.Summary.UniqueTasks == 0 {
		return false
	}
	return result.Summary.TasksFailed == 0 && result.Summary.TasksEscalated == 0
}

// runMutationTesting applies the scenario's configured mutation script (if
// any) to a JSON object {"conformance": c} holding the first passing run's
// conformance score (the run's raw output is not used), places the result
// as the payload of a single-event trace, and checks that trace against the
// scenario's expectedConstraints: a score below 1.0 counts the mutant as
// killed, otherwise as survived.
func (r *Runner) runMutationTesting(ctx context.Context, scenario Scenario, outcomes []RunOutcome) MutationReport {
	script, hasScript := r.MutationScripts[scenario.ID]
	if !hasScript || r.Mutator == nil || len(scenario.ExpectedConstraints) == 0 {
		return MutationReport{}
	}

	var baseOutput []byte
	for _, o := range outcomes {
		if o.Passed {
			baseOutput, _ = json.Marshal(map[string]interface{}{"conformance": o.Conformance})
			break
		}
	}
	if baseOutput == nil {
		return MutationReport{}
	}

	mutated, err := r.Mutator.Mutate(ctx, script, baseOutput)
	if err != nil {
		r.Logger.WithError(err).WithField("scenario", scenario.ID).Warn("mutation script failed")
		return MutationReport{}
	}

	mutatedTrace := domaintrajectory.Trace{
		TraceID: scenario.ID + "-mutant",
		Events: []domaintrajectory.Event{
			{Seq: 1, Type: domaintrajectory.EventCompleted, TimestampMs: 0, Payload: mutated.Output},
		},
	}
	mutantConformance, err := ConformanceCheck(scenario, mutatedTrace)
	if err != nil {
		mutantConformance = 0
	}

	report := MutationReport{MutantsRun: 1}
	if mutantConformance < 1.0 {
		report.MutantsKilled = 1
	} else {
		report.MutantsSurvived = 1
	}
	return report
}
