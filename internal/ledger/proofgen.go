package ledger

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// ProofGenerator derives a zero-knowledge proof bundle for a private task's
// completion from its executed result, binding the bundle to the task id and
// the task's on-chain constraint hash. Backed in production by
// *KeyedProofGenerator; tests substitute a fake.
type ProofGenerator interface {
	Generate(ctx context.Context, taskID, constraintHash [32]byte, output []*big.Int) (ProofBundle, error)
}

// KeyedProofGenerator derives proof bundles deterministically from the
// agent's signing key, the same way DeriveKeyPair derives addresses: an HKDF
// expansion keyed on the private scalar, so the same key/task/result always
// reproduces the same bundle. This mirrors the determinism guarantee of the
// teacher's ECVRF pipeline (infrastructure/crypto/vrf.go: "same key and
// alpha always produce same output") without requiring a pairing-curve
// Groth16 prover, which has no counterpart anywhere in the retrieved pack.
type KeyedProofGenerator struct {
	priv *ecdsa.PrivateKey
}

// NewKeyedProofGenerator constructs a KeyedProofGenerator bound to the
// agent's signing key.
func NewKeyedProofGenerator(priv *ecdsa.PrivateKey) *KeyedProofGenerator {
	return &KeyedProofGenerator{priv: priv}
}

// Generate derives a ProofBundle: ProofData is an HKDF expansion of the
// signer's private scalar keyed on taskID||constraintHash; OutputCommitment
// binds the result hash to the constraint hash; ExpectedBinding binds the
// task id, constraint hash, and output commitment together so the bundle
// cannot be replayed against a different task or constraint.
func (g *KeyedProofGenerator) Generate(ctx context.Context, taskID, constraintHash [32]byte, output []*big.Int) (ProofBundle, error) {
	if g.priv == nil {
		return ProofBundle{}, fmt.Errorf("generate proof bundle: no signing key configured")
	}

	resultHash := BigIntsToProofHash(output)

	info := make([]byte, 0, len(taskID)+len(constraintHash))
	info = append(info, taskID[:]...)
	info = append(info, constraintHash[:]...)

	proofData, err := DeriveKey(g.priv.D.Bytes(), info, "private-task-proof-v1", ProofDataLen)
	if err != nil {
		return ProofBundle{}, fmt.Errorf("generate proof bundle: %w", err)
	}

	commitment := sha256.Sum256(append(append([]byte{}, resultHash[:]...), constraintHash[:]...))
	binding := sha256.Sum256(append(append(append([]byte{}, taskID[:]...), constraintHash[:]...), commitment[:]...))

	var bundle ProofBundle
	copy(bundle.ProofData[:], proofData)
	bundle.ConstraintHash = constraintHash
	bundle.OutputCommitment = commitment
	bundle.ExpectedBinding = binding
	return bundle, nil
}
