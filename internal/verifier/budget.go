package verifier

import (
	"sync"
	"time"

	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/ratelimit"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// Guardrails bound what the allocator may ever hand out and how fast a
// budget may move between consecutive allocations for the same task type
// (min/max bounds, and a cap on the rate of change).
type Guardrails struct {
	MinRetries       int
	MaxRetries       int
	MinTimeout       time.Duration
	MaxTimeout       time.Duration
	MinConfidence    float64
	MaxConfidence    float64
	MinSpend         uint64
	MaxSpend         uint64
	MaxRateOfChange  float64 // fraction; 0 disables the check
}

// DefaultGuardrails returns generous but non-infinite bounds.
func DefaultGuardrails() Guardrails {
	return Guardrails{
		MinRetries:      0,
		MaxRetries:      10,
		MinTimeout:      time.Second,
		MaxTimeout:      5 * time.Minute,
		MinConfidence:   0.5,
		MaxConfidence:   0.99,
		MinSpend:        0,
		MaxSpend:        1_000_000,
		MaxRateOfChange: 1.0,
	}
}

// tierMultiplier scales the policy's baseline budget per risk tier: lower
// risk gets a leaner budget, higher risk gets more room to retry and spend.
func tierMultiplier(t Tier) float64 {
	switch t {
	case TierLow:
		return 0.6
	case TierMedium:
		return 1.0
	default:
		return 1.6
	}
}

// BudgetDecision is the allocator's concrete output for one execution run.
type BudgetDecision struct {
	Retries       int
	Timeout       time.Duration
	MinConfidence float64
	MaxSpend      uint64
	Tier          Tier
}

// AuditEntry records one field adjustment made by the allocator: previous
// and next value, fraction, reason, tier, and success flag.
type AuditEntry struct {
	At       time.Time
	BatchID  uint64
	TaskType task.Type
	Tier     Tier
	Field    string
	Previous float64
	Next     float64
	Fraction float64
	Reason   string
	Success  bool
	Resolved bool
}

// auditRing is a fixed-capacity circular buffer of AuditEntry, oldest
// entries silently evicted once full.
type auditRing struct {
	entries []AuditEntry
	next    int
	full    bool
}

func newAuditRing(capacity int) *auditRing {
	if capacity <= 0 {
		capacity = 256
	}
	return &auditRing{entries: make([]AuditEntry, capacity)}
}

func (r *auditRing) push(e AuditEntry) {
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// snapshot returns entries oldest-first.
func (r *auditRing) snapshot() []AuditEntry {
	if !r.full {
		out := make([]AuditEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]AuditEntry, len(r.entries))
	copy(out, r.entries[r.next:])
	copy(out[len(r.entries)-r.next:], r.entries[:r.next])
	return out
}

// markOutcome sets Success/Resolved on every entry sharing batchID.
func (r *auditRing) markOutcome(batchID uint64, success bool) {
	for i := range r.entries {
		if r.entries[i].BatchID == batchID && !r.entries[i].Resolved {
			r.entries[i].Success = success
			r.entries[i].Resolved = true
		}
	}
}

// Allocator turns a risk assessment into a concrete budget, clamped by
// guardrails, and keeps an audit trail of every adjustment it made.
type Allocator struct {
	guardrails Guardrails
	limiter    ratelimit.Waiter

	mu      sync.Mutex
	last    map[task.Type]BudgetDecision
	audit   *auditRing
	batches uint64
}

// NewAllocator constructs an Allocator with the given guardrails and audit
// ring capacity. Budget check pacing is unlimited until WithRateLimit is
// called.
func NewAllocator(guardrails Guardrails, auditCapacity int) *Allocator {
	return &Allocator{
		guardrails: guardrails,
		limiter:    ratelimit.Unlimited(),
		last:       make(map[task.Type]BudgetDecision),
		audit:      newAuditRing(auditCapacity),
	}
}

// WithRateLimit bounds how often Allocate may recompute a fresh decision.
// While the limit is exhausted, Allocate reuses the task type's last
// decision instead of reclamping, avoiding guardrail thrash under bursts of
// concurrent verification runs.
func (a *Allocator) WithRateLimit(limiter ratelimit.Waiter) *Allocator {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limiter = limiter
	return a
}

// Allocate computes a BudgetDecision for taskType at the given tier, using
// policy as the unscaled baseline. Returns the decision and a batchID the
// caller passes to RecordOutcome once the run completes.
func (a *Allocator) Allocate(taskType task.Type, policy ExecutionPolicy, assessment Assessment) (BudgetDecision, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prevForPacing, hasPrevForPacing := a.last[taskType]
	if hasPrevForPacing && !a.limiter.Allow() {
		a.batches++
		return prevForPacing, a.batches
	}

	mult := tierMultiplier(assessment.Tier)
	raw := BudgetDecision{
		Retries:       scaleInt(policy.MaxVerificationRetries, mult),
		Timeout:       scaleDuration(policy.Deadline(), mult),
		MinConfidence: policy.MinConfidence,
		MaxSpend:      scaleUint(policy.MaxAllowedSpendLamports, mult),
		Tier:          assessment.Tier,
	}

	prev, hasPrev := a.last[taskType]
	decision := a.clampAndAudit(taskType, assessment.Tier, prev, hasPrev, raw)
	a.last[taskType] = decision

	a.batches++
	batchID := a.batches
	a.stampBatch(batchID)
	return decision, batchID
}

// stampBatch retroactively assigns the just-pushed entries to batchID; the
// audit entries for one Allocate call are always the most recent ones
// pushed in clampAndAudit, which runs under the same lock.
func (a *Allocator) stampBatch(batchID uint64) {
	snap := a.audit.entries
	for i := range snap {
		if snap[i].BatchID == 0 && snap[i].Reason != "" {
			snap[i].BatchID = batchID
		}
	}
}

func (a *Allocator) clampAndAudit(taskType task.Type, tier Tier, prev BudgetDecision, hasPrev bool, raw BudgetDecision) BudgetDecision {
	g := a.guardrails
	out := raw

	out.Retries = clampInt(out.Retries, g.MinRetries, g.MaxRetries)
	out.Timeout = clampDuration(out.Timeout, g.MinTimeout, g.MaxTimeout)
	out.MinConfidence = clampFloat(out.MinConfidence, g.MinConfidence, g.MaxConfidence)
	out.MaxSpend = clampUint(out.MaxSpend, g.MinSpend, g.MaxSpend)

	if hasPrev && g.MaxRateOfChange > 0 {
		out.Retries = limitRateInt(prev.Retries, out.Retries, g.MaxRateOfChange)
		out.Timeout = limitRateDuration(prev.Timeout, out.Timeout, g.MaxRateOfChange)
		out.MaxSpend = limitRateUint(prev.MaxSpend, out.MaxSpend, g.MaxRateOfChange)
	}

	now := time.Now()
	a.auditField(now, taskType, tier, "retries", float64(raw.Retries), float64(out.Retries))
	a.auditField(now, taskType, tier, "timeout_ms", float64(raw.Timeout/time.Millisecond), float64(out.Timeout/time.Millisecond))
	a.auditField(now, taskType, tier, "min_confidence", raw.MinConfidence, out.MinConfidence)
	a.auditField(now, taskType, tier, "max_spend", float64(raw.MaxSpend), float64(out.MaxSpend))

	return out
}

func (a *Allocator) auditField(at time.Time, taskType task.Type, tier Tier, field string, previous, next float64) {
	reason := "tier_scaled"
	if previous != next {
		reason = "guardrail_clamped"
	}
	fraction := 0.0
	if previous != 0 {
		fraction = (next - previous) / previous
	}
	a.audit.push(AuditEntry{
		At:       at,
		TaskType: taskType,
		Tier:     tier,
		Field:    field,
		Previous: previous,
		Next:     next,
		Fraction: fraction,
		Reason:   reason,
	})
}

// RecordOutcome marks every audit entry from the Allocate call identified
// by batchID with whether the resulting verification run succeeded.
func (a *Allocator) RecordOutcome(batchID uint64, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audit.markOutcome(batchID, success)
}

// AuditTrail returns a snapshot of the audit ring, oldest entries first.
func (a *Allocator) AuditTrail() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.audit.snapshot()
}

func scaleInt(v int, mult float64) int {
	return int(float64(v) * mult)
}

func scaleDuration(d time.Duration, mult float64) time.Duration {
	return time.Duration(float64(d) * mult)
}

func scaleUint(v uint64, mult float64) uint64 {
	scaled := float64(v) * mult
	if scaled < 0 {
		return 0
	}
	return uint64(scaled)
}

func clampInt(v, min, max int) int {
	if max > 0 && v > max {
		return max
	}
	if v < min {
		return min
	}
	return v
}

func clampDuration(v, min, max time.Duration) time.Duration {
	if max > 0 && v > max {
		return max
	}
	if v < min {
		return min
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v > max {
		return max
	}
	if v < min {
		return min
	}
	return v
}

func clampUint(v, min, max uint64) uint64 {
	if max > 0 && v > max {
		return max
	}
	if v < min {
		return min
	}
	return v
}

func limitRateInt(prev, next int, maxRate float64) int {
	if prev == 0 {
		return next
	}
	delta := float64(next-prev) / float64(prev)
	if delta > maxRate {
		return prev + int(float64(prev)*maxRate)
	}
	if delta < -maxRate {
		return prev - int(float64(prev)*maxRate)
	}
	return next
}

func limitRateDuration(prev, next time.Duration, maxRate float64) time.Duration {
	if prev == 0 {
		return next
	}
	delta := float64(next-prev) / float64(prev)
	if delta > maxRate {
		return prev + time.Duration(float64(prev)*maxRate)
	}
	if delta < -maxRate {
		return prev - time.Duration(float64(prev)*maxRate)
	}
	return next
}

func limitRateUint(prev, next uint64, maxRate float64) uint64 {
	if prev == 0 {
		return next
	}
	delta := (float64(next) - float64(prev)) / float64(prev)
	if delta > maxRate {
		return prev + uint64(float64(prev)*maxRate)
	}
	if delta < -maxRate {
		bounded := prev - uint64(float64(prev)*maxRate)
		return bounded
	}
	return next
}
