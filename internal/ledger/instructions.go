package ledger

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/json"
	"fmt"
	"math/big"
)

// Fixed-length byte array sizes used by the substrate's instruction encoding.
const (
	HashLen      = 32  // task ids, result hashes, constraint hashes
	BufferLen    = 64  // descriptions, result buffers
	ProofDataLen = 388 // Groth16 proof payloads
)

// InstructionName enumerates the substrate instructions the ledger adapter
// can submit.
type InstructionName string

const (
	InstructionClaimTask            InstructionName = "claim_task"
	InstructionCompleteTask         InstructionName = "complete_task"
	InstructionCompleteTaskPrivate  InstructionName = "complete_task_private"
	InstructionCancelTask           InstructionName = "cancel_task"
	InstructionInitiateDispute      InstructionName = "initiate_dispute"
	InstructionResolveDispute       InstructionName = "resolve_dispute"
	InstructionUpdateState          InstructionName = "update_state"
)

// Instruction is a signed payload submitted to the coordination substrate.
type Instruction struct {
	Name      InstructionName        `json:"name"`
	Args      map[string]interface{} `json:"args"`
	Signer    string                 `json:"signer"`
	Nonce     uint64                 `json:"nonce"`
	Signature []byte                 `json:"signature"`
}

// FixedBytes left-pads (or truncates) data to exactly n bytes, matching the
// substrate's fixed-length array encoding.
func FixedBytes(data []byte, n int) []byte {
	out := make([]byte, n)
	if len(data) >= n {
		copy(out, data[len(data)-n:])
		return out
	}
	copy(out[n-len(data):], data)
	return out
}

// BigIntsToProofHash hashes a slice of public-task outputs into the 32-byte
// hash the substrate expects for public completions.
func BigIntsToProofHash(output []*big.Int) [32]byte {
	h := sha256.New()
	for _, v := range output {
		b := v.Bytes()
		h.Write(FixedBytes(b, HashLen))
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DecodeBigInts parses an executor's result bytes back into the big.Int
// slice CompleteTask and proof generation need. The wire convention is a
// JSON array of base-10 integer strings (e.g. `["42"]`), matching how
// NewSignedInstruction's args already carry large values as hex/decimal
// strings rather than raw JSON numbers (which lose precision for 64-bit+
// values). Empty input decodes to an empty slice, matching a no-output task.
func DecodeBigInts(data []byte) ([]*big.Int, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode big ints: %w", err)
	}
	out := make([]*big.Int, len(raw))
	for i, s := range raw {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("decode big ints: invalid integer %q", s)
		}
		out[i] = v
	}
	return out, nil
}

// sign produces an ECDSA signature (ASN.1 DER) over the SHA-256 digest of
// the canonical instruction body.
func sign(priv *ecdsa.PrivateKey, body []byte) ([]byte, error) {
	digest := sha256.Sum256(body)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign instruction: %w", err)
	}
	return asn1.Marshal(struct{ R, S *big.Int }{r, s})
}

// canonicalBody renders a stable byte representation of
// name+signer+nonce+argsBytes for signing. The Args map is not part of the
// signed body, so its iteration order cannot affect the signature.
func canonicalBody(name InstructionName, signer string, nonce uint64, argsBytes []byte) []byte {
	body := make([]byte, 0, len(name)+len(signer)+8+len(argsBytes))
	body = append(body, []byte(name)...)
	body = append(body, []byte(signer)...)
	nonceBytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		nonceBytes[7-i] = byte(nonce >> (8 * i))
	}
	body = append(body, nonceBytes...)
	body = append(body, argsBytes...)
	return body
}

// NewSignedInstruction builds and signs an Instruction. argsBytes is the
// canonical byte encoding of the instruction-specific fixed-length fields
// (constructed by the caller via FixedBytes), kept separate from Args (which
// carries the same values in a JSON-friendly form for logging/debugging).
func NewSignedInstruction(priv *ecdsa.PrivateKey, name InstructionName, signer string, nonce uint64, args map[string]interface{}, argsBytes []byte) (*Instruction, error) {
	sig, err := sign(priv, canonicalBody(name, signer, nonce, argsBytes))
	if err != nil {
		return nil, err
	}
	return &Instruction{
		Name:      name,
		Args:      args,
		Signer:    signer,
		Nonce:     nonce,
		Signature: sig,
	}, nil
}
