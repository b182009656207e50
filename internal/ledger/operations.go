package ledger

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	lerrors "github.com/tetsuo-ai/AgenC-sub003/infrastructure/errors"
	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/resilience"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// Operations provides the typed Task Operations surface over the ledger
// client : claimTask, completeTask, completeTaskPrivate,
// fetchTask, fetchClaim, fetchClaimableTasks.
type Operations struct {
	client *Client
	priv   *ecdsa.PrivateKey
	signer string
	nonce  uint64

	retry resilience.RetryConfig
}

// NewOperations constructs Task Operations bound to a signing key (derived
// via DeriveKeyPair from the agent seed) and a retry policy.
func NewOperations(client *Client, priv *ecdsa.PrivateKey, signer string, retry resilience.RetryConfig) *Operations {
	return &Operations{client: client, priv: priv, signer: signer, retry: retry}
}

func (o *Operations) nextNonce() uint64 {
	return atomic.AddUint64(&o.nonce, 1)
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// permanentError marks a ledger error as non-retryable so the manual retry
// loop in submit can stop immediately instead of burning attempts on an
// error the substrate will never resolve on its own.
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// submit signs and submits an instruction, retrying on transient ledger
// errors up to the configured bound, including the nonce/version-mismatch
// case. Permanent
// errors (not-found, invalid-argument, etc.) fail on the first attempt.
func (o *Operations) submit(ctx context.Context, name InstructionName, args map[string]interface{}, argsBytes []byte) (json.RawMessage, error) {
	sleep := o.retry.Sleep
	if sleep == nil {
		sleep = defaultSleep
	}
	cfg := o.retry
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	attempt := func() (json.RawMessage, error) {
		nonce := o.nextNonce()
		instr, err := NewSignedInstruction(o.priv, name, o.signer, nonce, args, argsBytes)
		if err != nil {
			return nil, err
		}

		payload, err := json.Marshal(instr)
		if err != nil {
			return nil, err
		}

		raw, callErr := o.client.Call(ctx, string(name), []interface{}{json.RawMessage(payload)})
		if callErr == nil {
			return raw, nil
		}
		if rpcErr, ok := callErr.(*RPCError); ok {
			lerr := lerrors.NewLedgerError(lerrors.Code(rpcErr.Code), rpcErr.Message, callErr)
			if lerrors.IsTransient(lerr) {
				return nil, lerr
			}
			return nil, permanentError{lerr}
		}
		return nil, callErr
	}

	var lastErr error
	delay := cfg.InitialDelay
	for i := 0; i < maxAttempts; i++ {
		raw, err := attempt()
		if err == nil {
			return raw, nil
		}
		if _, ok := err.(permanentError); ok {
			return nil, err
		}
		lastErr = err

		if i < maxAttempts-1 {
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return nil, sleepErr
			}
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}
	return nil, lastErr
}

// ClaimTask submits a claim_task instruction for ref.
func (o *Operations) ClaimTask(ctx context.Context, ref task.Ref) (*task.Claim, error) {
	args := map[string]interface{}{"taskId": fmt.Sprintf("%x", ref.ID)}
	argsBytes := FixedBytes(ref.ID[:], HashLen)

	raw, err := o.submit(ctx, InstructionClaimTask, args, argsBytes)
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}

	var claim task.Claim
	if err := json.Unmarshal(raw, &claim); err != nil {
		return nil, fmt.Errorf("decode claim: %w", err)
	}
	return &claim, nil
}

// CompleteTask submits a complete_task instruction for a public task. output
// is hashed into the 32-byte result hash the substrate expects. The returned
// string is the substrate's transaction signature for the submitted
// instruction, once acknowledged.
func (o *Operations) CompleteTask(ctx context.Context, ref task.Ref, output []*big.Int) ([32]byte, string, error) {
	resultHash := BigIntsToProofHash(output)
	args := map[string]interface{}{"taskId": fmt.Sprintf("%x", ref.ID), "resultHash": fmt.Sprintf("%x", resultHash)}

	raw, err := o.submit(ctx, InstructionCompleteTask, args, resultHash[:])
	if err != nil {
		return [32]byte{}, "", fmt.Errorf("complete task: %w", err)
	}
	return resultHash, decodeTxSignature(raw), nil
}

// ProofBundle carries the fixed-length fields a private completion submits.
type ProofBundle struct {
	ProofData         [ProofDataLen]byte
	ConstraintHash    [HashLen]byte
	OutputCommitment  [HashLen]byte
	ExpectedBinding   [HashLen]byte
}

// CompleteTaskPrivate submits a complete_task_private instruction carrying a
// zero-knowledge proof bundle. The returned string is the substrate's
// transaction signature for the submitted instruction, once acknowledged.
func (o *Operations) CompleteTaskPrivate(ctx context.Context, ref task.Ref, bundle ProofBundle) (string, error) {
	argsBytes := make([]byte, 0, ProofDataLen+3*HashLen)
	argsBytes = append(argsBytes, bundle.ProofData[:]...)
	argsBytes = append(argsBytes, bundle.ConstraintHash[:]...)
	argsBytes = append(argsBytes, bundle.OutputCommitment[:]...)
	argsBytes = append(argsBytes, bundle.ExpectedBinding[:]...)

	args := map[string]interface{}{
		"taskId":           fmt.Sprintf("%x", ref.ID),
		"proofDataLen":     len(bundle.ProofData),
		"constraintHash":   fmt.Sprintf("%x", bundle.ConstraintHash),
		"outputCommitment": fmt.Sprintf("%x", bundle.OutputCommitment),
		"expectedBinding":  fmt.Sprintf("%x", bundle.ExpectedBinding),
	}

	raw, err := o.submit(ctx, InstructionCompleteTaskPrivate, args, argsBytes)
	if err != nil {
		return "", fmt.Errorf("complete task private: %w", err)
	}
	return decodeTxSignature(raw), nil
}

// decodeTxSignature extracts a best-effort transaction signature from a
// submit's raw RPC result. Backends differ in whether they return an
// object with a "signature" field or a bare string; an empty/unrecognized
// result yields "" rather than an error, since the completion itself has
// already succeeded by the time this runs.
func decodeTxSignature(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Signature != "" {
		return obj.Signature
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// FetchTask fetches and decodes a task account by reference.
func (o *Operations) FetchTask(ctx context.Context, ref task.Ref) (*task.Task, error) {
	raw, err := o.client.Call(ctx, "fetchTask", []interface{}{ref.Address})
	if err != nil {
		return nil, fmt.Errorf("fetch task: %w", err)
	}

	var t task.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}

// FetchClaim fetches and decodes a claim account by task reference.
func (o *Operations) FetchClaim(ctx context.Context, ref task.Ref) (*task.Claim, error) {
	raw, err := o.client.Call(ctx, "fetchClaim", []interface{}{ref.Address})
	if err != nil {
		return nil, fmt.Errorf("fetch claim: %w", err)
	}

	var claim task.Claim
	if err := json.Unmarshal(raw, &claim); err != nil {
		return nil, fmt.Errorf("decode claim: %w", err)
	}
	return &claim, nil
}

// FetchClaimableTasks lists open tasks the substrate currently advertises.
func (o *Operations) FetchClaimableTasks(ctx context.Context) ([]task.Task, error) {
	raw, err := o.client.Call(ctx, "fetchClaimableTasks", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch claimable tasks: %w", err)
	}

	var tasks []task.Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, fmt.Errorf("decode claimable tasks: %w", err)
	}
	return tasks, nil
}
