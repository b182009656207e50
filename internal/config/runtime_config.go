package config

// RuntimeConfig configures integrations that go beyond simple env-var
// overrides (per-tier verifier critics, eval manifest locations, trajectory
// sinks) and is typically loaded from a JSON/YAML runtime file layered on top
// of Config.
type RuntimeConfig struct {
	Ledger     LedgerRuntimeConfig     `json:"ledger"`
	Verifier   VerifierRuntimeConfig   `json:"verifier"`
	ProofPool  ProofPoolRuntimeConfig  `json:"proof_pool" mapstructure:"proof_pool"`
	Trajectory TrajectoryRuntimeConfig `json:"trajectory"`
	Eval       EvalRuntimeConfig       `json:"eval"`
	Graph      GraphRuntimeConfig      `json:"graph"`
}

// LedgerRuntimeConfig addresses the coordination substrate's on-chain
// program and commitment semantics.
type LedgerRuntimeConfig struct {
	ProgramID       string `json:"program_id" env:"LEDGER_PROGRAM_ID"`
	CommitmentLevel string `json:"commitment_level" env:"LEDGER_COMMITMENT_LEVEL"` // processed|confirmed|finalized
	SubscribeEvents bool   `json:"subscribe_events" env:"LEDGER_SUBSCRIBE_EVENTS"`
}

// VerifierRuntimeConfig carries per-tier critic endpoints and the adaptive
// risk-scoring weights, neither of which fit a single flat env var.
type VerifierRuntimeConfig struct {
	CriticEndpoints map[string]string  `json:"critic_endpoints" mapstructure:"critic_endpoints"`
	RiskWeights     map[string]float64 `json:"risk_weights" mapstructure:"risk_weights"`
	TierBudgets     map[string]float64 `json:"tier_budgets" mapstructure:"tier_budgets"`
}

// ProofPoolRuntimeConfig tunes the bounded proof-generation worker pool.
type ProofPoolRuntimeConfig struct {
	Workers           int    `json:"workers" env:"PROOF_POOL_WORKERS"`
	SubmissionTimeout string `json:"submission_timeout" env:"PROOF_POOL_SUBMISSION_TIMEOUT"`
	QueueDepth        int    `json:"queue_depth" env:"PROOF_POOL_QUEUE_DEPTH"`
}

// TrajectoryRuntimeConfig controls where trajectories are recorded and
// whether replay validation runs inline.
type TrajectoryRuntimeConfig struct {
	SinkDir       string `json:"sink_dir" env:"TRAJECTORY_SINK_DIR"`
	ReplayEnabled bool   `json:"replay_enabled" env:"TRAJECTORY_REPLAY_ENABLED"`
}

// EvalRuntimeConfig locates benchmark manifests and the artifact output
// directory for scorecards.
type EvalRuntimeConfig struct {
	ManifestDir    string `json:"manifest_dir" env:"EVAL_MANIFEST_DIR"`
	ArtifactDir    string `json:"artifact_dir" env:"EVAL_ARTIFACT_DIR"`
	MutationEngine bool   `json:"mutation_engine" env:"EVAL_MUTATION_ENGINE"`
}

// GraphRuntimeConfig bounds the in-memory dependency graph.
type GraphRuntimeConfig struct {
	MaxDepth int `json:"max_depth" env:"GRAPH_MAX_DEPTH"`
	MaxNodes int `json:"max_nodes" env:"GRAPH_MAX_NODES"`
}

// DefaultRuntimeConfig returns sane defaults for every runtime sub-config.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Ledger: LedgerRuntimeConfig{
			CommitmentLevel: "confirmed",
			SubscribeEvents: true,
		},
		Verifier: VerifierRuntimeConfig{
			CriticEndpoints: map[string]string{},
			RiskWeights: map[string]float64{
				"reward":     0.3,
				"complexity": 0.3,
				"novelty":    0.2,
				"history":    0.2,
			},
			TierBudgets: map[string]float64{
				"low":      0.25,
				"standard": 1.0,
				"high":     3.0,
			},
		},
		ProofPool: ProofPoolRuntimeConfig{
			Workers:           4,
			SubmissionTimeout: "30s",
			QueueDepth:        64,
		},
		Trajectory: TrajectoryRuntimeConfig{
			SinkDir:       "./trajectories",
			ReplayEnabled: true,
		},
		Eval: EvalRuntimeConfig{
			ManifestDir:    "./eval/manifests",
			ArtifactDir:    "./eval/artifacts",
			MutationEngine: true,
		},
		Graph: GraphRuntimeConfig{
			MaxDepth: 32,
			MaxNodes: 4096,
		},
	}
}
