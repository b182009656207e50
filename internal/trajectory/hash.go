package trajectory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	domaintrajectory "github.com/tetsuo-ai/AgenC-sub003/internal/domain/trajectory"
)

// hashEnvelope is the canonical shape hashed by Hash: {trace, errors,
// summary}. Struct field order is fixed by declaration, and
// json.Marshal sorts map keys, so two calls over identical values always
// produce byte-identical JSON and therefore an identical digest.
type hashEnvelope struct {
	Trace   domaintrajectory.Trace `json:"trace"`
	Errors  []Anomaly              `json:"errors"`
	Summary Summary                `json:"summary"`
}

// Hash computes the deterministic replay hash: hex-encoded SHA-256 over the
// canonical JSON of {trace, errors, summary}. A nil anomalies slice and an
// empty one hash identically, since both marshal to "[]".
func Hash(trace domaintrajectory.Trace, anomalies []Anomaly, summary Summary) string {
	if anomalies == nil {
		anomalies = []Anomaly{}
	}
	envelope := hashEnvelope{Trace: trace, Errors: anomalies, Summary: summary}

	// Marshal errors are impossible here: every field of hashEnvelope is
	// built from this package's own types, none of which carry
	// unmarshalable values (channels, funcs, cyclic pointers).
	body, _ := json.Marshal(envelope)
	digest := sha256.Sum256(body)
	return hex.EncodeToString(digest[:])
}
