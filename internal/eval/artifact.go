package eval

// ArtifactSchemaVersion is the current Benchmark artifact schema version.
const ArtifactSchemaVersion = 1

// ScenarioResult bundles one scenario's aggregated scorecard with the
// deterministic hash of every run's replayed trace, so a later replay of
// the same manifest+seeds can be checked byte-for-byte against the
// recorded artifact.
type ScenarioResult struct {
	ScenarioID        string           `json:"scenarioId"`
	Scorecard         Scorecard        `json:"scorecard"`
	RunHashes         []string         `json:"runHashes"`
	DeltaFromBaseline *Delta           `json:"deltaFromBaseline,omitempty"`
	Mutation          *MutationReport  `json:"mutation,omitempty"`
}

// Artifact is the durable output of one benchmark run : per-scenario scorecards and run hashes, the run-level
// aggregate scorecard, and (when the manifest names a baseline) per-metric
// deltas.
type Artifact struct {
	SchemaVersion      int              `json:"schemaVersion"`
	ManifestHash       string           `json:"manifestHash"`
	CorpusVersion      string           `json:"corpusVersion"`
	Scenarios          []ScenarioResult `json:"scenarios"`
	Aggregate          Scorecard        `json:"aggregate"`
	BaselineScenarioID string           `json:"baselineScenarioId,omitempty"`
}

// BuildArtifact assembles an Artifact from a manifest and its per-scenario
// results, computing per-scenario deltas against the manifest's declared
// baseline (if any and if present among the results) and the run-level
// aggregate across every scenario.
func BuildArtifact(manifest Manifest, results []ScenarioResult) Artifact {
	var baseline *Scorecard
	if manifest.BaselineScenarioID != "" {
		for _, r := range results {
			if r.ScenarioID == manifest.BaselineScenarioID {
				card := r.Scorecard
				baseline = &card
				break
			}
		}
	}

	cards := make([]Scorecard, 0, len(results))
	for i := range results {
		cards = append(cards, results[i].Scorecard)
		if baseline != nil && results[i].ScenarioID != manifest.BaselineScenarioID {
			d := results[i].Scorecard.DeltaFrom(*baseline)
			results[i].DeltaFromBaseline = &d
		}
	}

	return Artifact{
		SchemaVersion:      ArtifactSchemaVersion,
		ManifestHash:       manifest.Hash(),
		CorpusVersion:      manifest.CorpusVersion,
		Scenarios:          results,
		Aggregate:          Aggregate(cards),
		BaselineScenarioID: manifest.BaselineScenarioID,
	}
}
