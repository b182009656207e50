package postgres

import (
	"context"
	"encoding/json"

	"github.com/tetsuo-ai/AgenC-sub003/internal/eval"
)

// SaveArtifact persists a benchmark artifact keyed by its manifest hash.
func (s *Store) SaveArtifact(ctx context.Context, artifact eval.Artifact) error {
	body, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_benchmark_artifacts (manifest_hash, corpus_version, schema_version, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (manifest_hash) DO UPDATE SET corpus_version = $2, schema_version = $3, body = $4
	`, artifact.ManifestHash, artifact.CorpusVersion, artifact.SchemaVersion, body)
	return err
}

// GetArtifact retrieves a previously saved benchmark artifact by its
// manifest hash.
func (s *Store) GetArtifact(ctx context.Context, manifestHash string) (eval.Artifact, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM agent_benchmark_artifacts WHERE manifest_hash = $1
	`, manifestHash).Scan(&body)
	if err != nil {
		return eval.Artifact{}, err
	}

	var artifact eval.Artifact
	if err := json.Unmarshal(body, &artifact); err != nil {
		return eval.Artifact{}, err
	}
	return artifact, nil
}
