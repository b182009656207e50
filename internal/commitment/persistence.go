package commitment

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/commitment"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// snapshotRecord is the on-disk form of a commitment.Commitment. Fixed-size
// byte arrays are hex-encoded explicitly rather than relying on
// encoding/json's array handling, so they and the stake-at-risk integer
// round-trip losslessly.
type snapshotRecord struct {
	ID            string     `json:"id"`
	SourceAddress string     `json:"source_address"`
	SourceTaskID  string     `json:"source_task_id"`
	ResultHash    string     `json:"result_hash"`
	Producer      string     `json:"producer"`
	StakeAtRisk   uint64     `json:"stake_at_risk"`
	Status        int        `json:"status"`
	Dependents    []string   `json:"dependents"`
	CreatedAt     time.Time  `json:"created_at"`
	ConfirmedAt   time.Time  `json:"confirmed_at"`
	Depth         int        `json:"depth"`
}

// SaveSnapshot writes every held commitment to path as JSON, creating
// parent directories as needed.
func (l *Ledger) SaveSnapshot(path string) error {
	commitments := l.Snapshot()

	records := make([]snapshotRecord, 0, len(commitments))
	for _, c := range commitments {
		dependents := make([]string, len(c.Dependents))
		for i, d := range c.Dependents {
			dependents[i] = d.Address
		}
		records = append(records, snapshotRecord{
			ID:            c.ID.String(),
			SourceAddress: c.SourceTaskRef.Address,
			SourceTaskID:  hexEncode(c.SourceTaskID[:]),
			ResultHash:    hexEncode(c.ResultHash[:]),
			Producer:      c.Producer,
			StakeAtRisk:   c.StakeAtRisk,
			Status:        int(c.Status),
			Dependents:    dependents,
			CreatedAt:     c.CreatedAt,
			ConfirmedAt:   c.ConfirmedAt,
			Depth:         c.Depth,
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSnapshot restores commitments from a JSON snapshot written by
// SaveSnapshot. A missing file is not an error — it leaves the ledger empty.
//
// Dependent task references are restored with only their Address populated
// (the snapshot does not retain the 32-byte task id for dependents, only
// for the commitment's own source task); callers that need the full Ref
// should re-resolve dependents from the dependency graph after load.
func (l *Ledger) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var records []snapshotRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range records {
		var id commitment.ID
		copy(id[:], hexDecode(r.ID))

		var sourceTaskID, resultHash [32]byte
		copy(sourceTaskID[:], hexDecode(r.SourceTaskID))
		copy(resultHash[:], hexDecode(r.ResultHash))

		sourceRef := task.Ref{ID: sourceTaskID, Address: r.SourceAddress}
		dependents := make([]task.Ref, len(r.Dependents))
		for i, addr := range r.Dependents {
			dependents[i] = task.Ref{Address: addr}
		}

		c := &commitment.Commitment{
			ID:            id,
			SourceTaskRef: sourceRef,
			SourceTaskID:  sourceTaskID,
			ResultHash:    resultHash,
			Producer:      r.Producer,
			StakeAtRisk:   r.StakeAtRisk,
			Status:        commitment.Status(r.Status),
			Dependents:    dependents,
			CreatedAt:     r.CreatedAt,
			ConfirmedAt:   r.ConfirmedAt,
			Depth:         r.Depth,
		}
		l.bySource[sourceRef] = c
		l.byID[id] = c
	}
	return nil
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}

func hexDecode(s string) []byte {
	out := make([]byte, len(s)/2)
	for i := range out {
		hi := hexVal(s[i*2])
		lo := hexVal(s[i*2+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
