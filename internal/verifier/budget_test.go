package verifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

func TestAllocateScalesByTier(t *testing.T) {
	a := NewAllocator(DefaultGuardrails(), 16)
	policy := ExecutionPolicy{MaxVerificationRetries: 4, MaxVerificationDurationMs: 10_000, MinConfidence: 0.7, MaxAllowedSpendLamports: 1000}

	low, _ := a.Allocate(task.TypeExclusive, policy, Assessment{Tier: TierLow})
	high, _ := a.Allocate(task.TypeCollaborative, policy, Assessment{Tier: TierHigh})

	assert.Less(t, low.Retries, high.Retries)
	assert.Less(t, low.Timeout, high.Timeout)
}

func TestAllocateClampsToGuardrailMax(t *testing.T) {
	guardrails := DefaultGuardrails()
	guardrails.MaxRetries = 3
	a := NewAllocator(guardrails, 16)
	policy := ExecutionPolicy{MaxVerificationRetries: 100, MaxVerificationDurationMs: 1000}

	decision, _ := a.Allocate(task.TypeExclusive, policy, Assessment{Tier: TierHigh})
	assert.Equal(t, 3, decision.Retries)
}

func TestAllocateLimitsRateOfChangeBetweenCalls(t *testing.T) {
	guardrails := DefaultGuardrails()
	guardrails.MaxRetries = 1000
	guardrails.MaxRateOfChange = 0.2
	a := NewAllocator(guardrails, 16)

	policyLow := ExecutionPolicy{MaxVerificationRetries: 10, MaxVerificationDurationMs: 1000}
	policyHigh := ExecutionPolicy{MaxVerificationRetries: 10, MaxVerificationDurationMs: 1000}

	first, _ := a.Allocate(task.TypeExclusive, policyLow, Assessment{Tier: TierLow})
	second, _ := a.Allocate(task.TypeExclusive, policyHigh, Assessment{Tier: TierHigh})

	maxAllowed := first.Retries + int(float64(first.Retries)*guardrails.MaxRateOfChange) + 1
	assert.LessOrEqual(t, second.Retries, maxAllowed)
}

func TestAuditTrailRecordsAdjustments(t *testing.T) {
	a := NewAllocator(DefaultGuardrails(), 16)
	policy := ExecutionPolicy{MaxVerificationRetries: 2, MaxVerificationDurationMs: 5000, MinConfidence: 0.8}

	_, batchID := a.Allocate(task.TypeExclusive, policy, Assessment{Tier: TierMedium})
	trail := a.AuditTrail()
	require.NotEmpty(t, trail)
	for _, e := range trail {
		assert.Equal(t, batchID, e.BatchID)
		assert.False(t, e.Resolved)
	}

	a.RecordOutcome(batchID, true)
	trail = a.AuditTrail()
	for _, e := range trail {
		assert.True(t, e.Resolved)
		assert.True(t, e.Success)
	}
}

func TestAuditRingEvictsOldestWhenFull(t *testing.T) {
	a := NewAllocator(DefaultGuardrails(), 4)
	policy := ExecutionPolicy{MaxVerificationRetries: 1, MaxVerificationDurationMs: 1000}

	for i := 0; i < 5; i++ {
		a.Allocate(task.TypeExclusive, policy, Assessment{Tier: TierLow})
	}

	trail := a.AuditTrail()
	assert.Len(t, trail, 4)
}

func TestClampDurationRespectsMinMax(t *testing.T) {
	assert.Equal(t, 2*time.Second, clampDuration(time.Second, 2*time.Second, 10*time.Second))
	assert.Equal(t, 10*time.Second, clampDuration(20*time.Second, time.Second, 10*time.Second))
}
