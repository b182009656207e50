package ledger

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/resilience"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

func noSleepRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	cfg.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return cfg
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{RPCURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestClaimTaskSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := RPCResponse{JSONRPC: "2.0", ID: 1, Result: json.RawMessage(`{"worker":"agent-1","completed":false}`)}
		_ = json.NewEncoder(w).Encode(resp)
	})

	priv, err := DeriveKeyPair([]byte("seed"), "agent")
	require.NoError(t, err)

	ops := NewOperations(client, priv, "agent-1", noSleepRetry())
	ref := task.Ref{Address: "addr-1"}

	claim, err := ops.ClaimTask(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", claim.Worker)
}

func TestClaimTaskRetriesOnTransientError(t *testing.T) {
	attempts := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			resp := RPCResponse{JSONRPC: "2.0", ID: 1, Error: &RPCError{Code: 6069, Message: "rate limit exceeded"}}
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		resp := RPCResponse{JSONRPC: "2.0", ID: 1, Result: json.RawMessage(`{"worker":"agent-1"}`)}
		_ = json.NewEncoder(w).Encode(resp)
	})

	priv, err := DeriveKeyPair([]byte("seed"), "agent")
	require.NoError(t, err)

	ops := NewOperations(client, priv, "agent-1", noSleepRetry())
	_, err = ops.ClaimTask(context.Background(), task.Ref{Address: "addr-1"})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestClaimTaskFailsFastOnPermanentError(t *testing.T) {
	attempts := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		resp := RPCResponse{JSONRPC: "2.0", ID: 1, Error: &RPCError{Code: 6010, Message: "invalid argument"}}
		_ = json.NewEncoder(w).Encode(resp)
	})

	priv, err := DeriveKeyPair([]byte("seed"), "agent")
	require.NoError(t, err)

	ops := NewOperations(client, priv, "agent-1", noSleepRetry())
	_, err = ops.ClaimTask(context.Background(), task.Ref{Address: "addr-1"})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts, "a permanent error should not be retried")
}

func TestCompleteTaskPrivate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := RPCResponse{JSONRPC: "2.0", ID: 1, Result: json.RawMessage(`"ok"`)}
		_ = json.NewEncoder(w).Encode(resp)
	})

	priv, err := DeriveKeyPair([]byte("seed"), "agent")
	require.NoError(t, err)

	ops := NewOperations(client, priv, "agent-1", noSleepRetry())
	sig, err := ops.CompleteTaskPrivate(context.Background(), task.Ref{Address: "addr-1"}, ProofBundle{})
	assert.NoError(t, err)
	assert.Equal(t, "ok", sig, "a bare-string RPC result should be taken as the tx signature")
}

func TestCompleteTaskHashesOutputAndCapturesSignature(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := RPCResponse{JSONRPC: "2.0", ID: 1, Result: json.RawMessage(`{"signature":"tx-abc123"}`)}
		_ = json.NewEncoder(w).Encode(resp)
	})

	priv, err := DeriveKeyPair([]byte("seed"), "agent")
	require.NoError(t, err)

	ops := NewOperations(client, priv, "agent-1", noSleepRetry())
	output := []*big.Int{big.NewInt(42)}
	hash, sig, err := ops.CompleteTask(context.Background(), task.Ref{Address: "addr-1"}, output)
	require.NoError(t, err)
	assert.Equal(t, BigIntsToProofHash(output), hash)
	assert.Equal(t, "tx-abc123", sig)
}

func TestFetchClaimableTasks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := RPCResponse{JSONRPC: "2.0", ID: 1, Result: json.RawMessage(`[{"Reward":100}]`)}
		_ = json.NewEncoder(w).Encode(resp)
	})

	priv, err := DeriveKeyPair([]byte("seed"), "agent")
	require.NoError(t, err)

	ops := NewOperations(client, priv, "agent-1", noSleepRetry())
	tasks, err := ops.FetchClaimableTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, uint64(100), tasks[0].Reward)
}

func TestFetchTreasuryCaches(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		resp := RPCResponse{JSONRPC: "2.0", ID: 1, Result: json.RawMessage(`"treasury-addr"`)}
		_ = json.NewEncoder(w).Encode(resp)
	})

	addr1, err := client.FetchTreasury(context.Background())
	require.NoError(t, err)
	addr2, err := client.FetchTreasury(context.Background())
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2)
	assert.Equal(t, 1, calls, "treasury should be cached after first fetch")
}
