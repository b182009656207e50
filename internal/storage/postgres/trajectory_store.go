package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	domaintask "github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
	domaintrajectory "github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
)

// Append persists one trajectory event, creating the parent trace row on
// first write. Store satisfies internal/trajectory.Sink this way, so a
// Recorder can fan out directly into Postgres alongside its in-memory
// buffer.
func (s *Store) Append(ctx context.Context, traceID string, evt domaintrajectory.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_trajectory_traces (trace_id, seed, created_at)
		VALUES ($1, '', $2)
		ON CONFLICT (trace_id) DO NOTHING
	`, traceID, evt.TimestampMs)
	if err != nil {
		return err
	}

	var taskAddress sql.NullString
	if evt.TaskRef != nil {
		taskAddress = sql.NullString{String: evt.TaskRef.Address, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_trajectory_events (trace_id, seq, event_type, task_address, timestamp_ms, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (trace_id, seq) DO NOTHING
	`, traceID, evt.Seq, string(evt.Type), taskAddress, evt.TimestampMs, nullableJSON(evt.Payload))
	return err
}

// GetTrace reassembles a full Trace from its persisted events, ordered by
// sequence number.
func (s *Store) GetTrace(ctx context.Context, traceID string) (domaintrajectory.Trace, error) {
	var trace domaintrajectory.Trace
	trace.TraceID = traceID

	row := s.db.QueryRowContext(ctx, `SELECT seed, created_at, metadata FROM agent_trajectory_traces WHERE trace_id = $1`, traceID)
	var seed string
	var createdAt int64
	var metadataJSON []byte
	if err := row.Scan(&seed, &createdAt, &metadataJSON); err != nil {
		return domaintrajectory.Trace{}, err
	}
	trace.Seed = seed
	trace.CreatedAt = createdAt
	if len(metadataJSON) > 0 {
		_ = json.Unmarshal(metadataJSON, &trace.Metadata)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, event_type, task_address, timestamp_ms, payload
		FROM agent_trajectory_events WHERE trace_id = $1 ORDER BY seq
	`, traceID)
	if err != nil {
		return domaintrajectory.Trace{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq         uint64
			eventType   string
			taskAddress sql.NullString
			timestampMs int64
			payload     []byte
		)
		if err := rows.Scan(&seq, &eventType, &taskAddress, &timestampMs, &payload); err != nil {
			return domaintrajectory.Trace{}, err
		}
		evt := domaintrajectory.Event{
			Seq:         seq,
			Type:        domaintrajectory.EventType(eventType),
			TimestampMs: timestampMs,
		}
		if taskAddress.Valid {
			evt.TaskRef = &domaintask.Ref{Address: taskAddress.String}
		}
		if len(payload) > 0 {
			evt.Payload = payload
		}
		trace.Events = append(trace.Events, evt)
	}
	return trace, rows.Err()
}

func nullableJSON(payload json.RawMessage) interface{} {
	if len(payload) == 0 {
		return nil
	}
	return []byte(payload)
}
