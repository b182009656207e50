package postgres

import (
	"context"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/lib/pq"

	domaincommitment "github.com/tetsuo-ai/AgenC-sub003/internal/domain/commitment"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// UpsertCommitment writes c's current state, replacing any prior row for
// the same source task address.
func (s *Store) UpsertCommitment(ctx context.Context, c domaincommitment.Commitment) error {
	dependents := make([]string, len(c.Dependents))
	for i, d := range c.Dependents {
		dependents[i] = d.Address
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_commitments
		(id, source_address, source_task_id, result_hash, producer, stake_at_risk, status, dependents, depth, created_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (source_address) DO UPDATE SET
			id = $1, source_task_id = $3, result_hash = $4, producer = $5, stake_at_risk = $6,
			status = $7, dependents = $8, depth = $9, confirmed_at = $11
	`, c.ID.String(), c.SourceTaskRef.Address, hex.EncodeToString(c.SourceTaskID[:]), hex.EncodeToString(c.ResultHash[:]),
		c.Producer, c.StakeAtRisk, int(c.Status), pq.Array(dependents), c.Depth, c.CreatedAt.UTC(), toNullTime(c.ConfirmedAt))
	return err
}

// GetCommitmentBySource retrieves the commitment recorded for a source task
// address, if any.
func (s *Store) GetCommitmentBySource(ctx context.Context, sourceAddress string) (domaincommitment.Commitment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_address, source_task_id, result_hash, producer, stake_at_risk, status, dependents, depth, created_at, confirmed_at
		FROM agent_commitments WHERE source_address = $1
	`, sourceAddress)
	return scanCommitment(row)
}

// ListCommitments returns every commitment in the snapshot, ordered by
// creation time.
func (s *Store) ListCommitments(ctx context.Context) ([]domaincommitment.Commitment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_address, source_task_id, result_hash, producer, stake_at_risk, status, dependents, depth, created_at, confirmed_at
		FROM agent_commitments ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domaincommitment.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

type commitmentScanner interface {
	Scan(dest ...any) error
}

func scanCommitment(scanner commitmentScanner) (domaincommitment.Commitment, error) {
	var (
		idHex, sourceAddr, sourceTaskIDHex, resultHashHex, producer string
		stakeAtRisk                                                 uint64
		status, depth                                               int
		dependents                                                  []string
		createdAt                                                   time.Time
		confirmedAt                                                 sql.NullTime
	)
	if err := scanner.Scan(&idHex, &sourceAddr, &sourceTaskIDHex, &resultHashHex, &producer,
		&stakeAtRisk, &status, pq.Array(&dependents), &depth, &createdAt, &confirmedAt); err != nil {
		return domaincommitment.Commitment{}, err
	}

	var id domaincommitment.ID
	if decoded, err := hex.DecodeString(idHex); err == nil {
		copy(id[:], decoded)
	}
	var sourceTaskID, resultHash [32]byte
	if decoded, err := hex.DecodeString(sourceTaskIDHex); err == nil {
		copy(sourceTaskID[:], decoded)
	}
	if decoded, err := hex.DecodeString(resultHashHex); err == nil {
		copy(resultHash[:], decoded)
	}

	depRefs := make([]task.Ref, len(dependents))
	for i, addr := range dependents {
		depRefs[i] = task.Ref{Address: addr}
	}

	c := domaincommitment.Commitment{
		ID:            id,
		SourceTaskRef: task.Ref{Address: sourceAddr, ID: sourceTaskID},
		SourceTaskID:  sourceTaskID,
		ResultHash:    resultHash,
		Producer:      producer,
		StakeAtRisk:   stakeAtRisk,
		Status:        domaincommitment.Status(status),
		Dependents:    depRefs,
		Depth:         depth,
		CreatedAt:     createdAt.UTC(),
	}
	if confirmedAt.Valid {
		c.ConfirmedAt = confirmedAt.Time.UTC()
	}
	return c, nil
}
