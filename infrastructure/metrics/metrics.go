// Package metrics provides Prometheus metrics collection for the agent runtime.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/runtime"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Discovery
	TasksDiscoveredTotal *prometheus.CounterVec
	DiscoveryPollErrors  prometheus.Counter
	DiscoveryBackoffs    prometheus.Counter

	// Claim/execution lifecycle
	TasksClaimedTotal   *prometheus.CounterVec
	TasksCompletedTotal *prometheus.CounterVec
	TaskExecutionTime   *prometheus.HistogramVec
	AgentsActive        prometheus.Gauge

	// Speculative execution
	SpeculationStartedTotal   prometheus.Counter
	SpeculationConfirmedTotal prometheus.Counter
	SpeculationAbortedTotal   prometheus.Counter
	EstimatedTimeSavedSeconds prometheus.Counter

	// Proof pipeline
	ProofJobsTotal      *prometheus.CounterVec
	ProofJobDuration    *prometheus.HistogramVec
	ProofQueueDepth     prometheus.Gauge
	LedgerTxTotal       *prometheus.CounterVec
	LedgerTxDuration    *prometheus.HistogramVec

	// Verifier lane
	VerifierAttemptsTotal   *prometheus.CounterVec
	VerifierEscalationsTotal *prometheus.CounterVec
	VerifierBudgetSpent     prometheus.Counter

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Database metrics
	DatabaseQueriesTotal    *prometheus.CounterVec
	DatabaseQueryDuration   *prometheus.HistogramVec
	DatabaseConnectionsOpen prometheus.Gauge

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksDiscoveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_tasks_discovered_total",
				Help: "Total number of tasks observed by the discovery loop",
			},
			[]string{"service", "source"}, // source: poll|event
		),
		DiscoveryPollErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_discovery_poll_errors_total",
				Help: "Total number of failed discovery polls",
			},
		),
		DiscoveryBackoffs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_discovery_backoffs_total",
				Help: "Total number of times discovery entered backoff",
			},
		),

		TasksClaimedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_tasks_claimed_total",
				Help: "Total number of task claims attempted",
			},
			[]string{"service", "status"},
		),
		TasksCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_tasks_completed_total",
				Help: "Total number of tasks completed",
			},
			[]string{"service", "status"}, // status: completed|failed|escalated
		),
		TaskExecutionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_task_execution_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"service", "path"}, // path: sequential|speculative
		),
		AgentsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "agent_active_workers",
				Help: "Current number of tasks actively being worked",
			},
		),

		SpeculationStartedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_speculation_started_total",
				Help: "Total number of speculative executions started",
			},
		),
		SpeculationConfirmedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_speculation_confirmed_total",
				Help: "Total number of speculative executions whose ancestors confirmed",
			},
		),
		SpeculationAbortedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_speculation_aborted_total",
				Help: "Total number of speculative executions aborted by an ancestor rollback",
			},
		),
		EstimatedTimeSavedSeconds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_speculation_time_saved_seconds_total",
				Help: "Estimated wall-clock time saved by speculative execution",
			},
		),

		ProofJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_proof_jobs_total",
				Help: "Total number of proof pipeline jobs by terminal status",
			},
			[]string{"service", "status"},
		),
		ProofJobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_proof_job_duration_seconds",
				Help:    "Proof job duration from enqueue to terminal status",
				Buckets: []float64{.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"service", "status"},
		),
		ProofQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "agent_proof_queue_depth",
				Help: "Current number of proof jobs awaiting a worker",
			},
		),
		LedgerTxTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_ledger_instructions_total",
				Help: "Total number of ledger instructions submitted",
			},
			[]string{"service", "instruction", "status"},
		),
		LedgerTxDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_ledger_instruction_duration_seconds",
				Help:    "Ledger instruction confirmation duration in seconds",
				Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"service", "instruction"},
		),

		VerifierAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_verifier_attempts_total",
				Help: "Total number of verifier lane executions by outcome",
			},
			[]string{"service", "tier", "outcome"},
		),
		VerifierEscalationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_verifier_escalations_total",
				Help: "Total number of verifier escalations by reason",
			},
			[]string{"service", "reason"},
		),
		VerifierBudgetSpent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_verifier_budget_spent_total",
				Help: "Total verifier budget units spent",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),

		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"service", "operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		DatabaseConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "database_connections_open",
				Help: "Current number of open database connections",
			},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.TasksDiscoveredTotal,
			m.DiscoveryPollErrors,
			m.DiscoveryBackoffs,
			m.TasksClaimedTotal,
			m.TasksCompletedTotal,
			m.TaskExecutionTime,
			m.AgentsActive,
			m.SpeculationStartedTotal,
			m.SpeculationConfirmedTotal,
			m.SpeculationAbortedTotal,
			m.EstimatedTimeSavedSeconds,
			m.ProofJobsTotal,
			m.ProofJobDuration,
			m.ProofQueueDepth,
			m.LedgerTxTotal,
			m.LedgerTxDuration,
			m.VerifierAttemptsTotal,
			m.VerifierEscalationsTotal,
			m.VerifierBudgetSpent,
			m.ErrorsTotal,
			m.DatabaseQueriesTotal,
			m.DatabaseQueryDuration,
			m.DatabaseConnectionsOpen,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordTaskClaim records a claim attempt outcome.
func (m *Metrics) RecordTaskClaim(service, status string) {
	m.TasksClaimedTotal.WithLabelValues(service, status).Inc()
}

// RecordTaskCompletion records a task reaching a terminal status and its
// execution duration along the path it took.
func (m *Metrics) RecordTaskCompletion(service, status, path string, duration time.Duration) {
	m.TasksCompletedTotal.WithLabelValues(service, status).Inc()
	m.TaskExecutionTime.WithLabelValues(service, path).Observe(duration.Seconds())
}

// RecordError records an error.
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// RecordLedgerInstruction records a submitted ledger instruction.
func (m *Metrics) RecordLedgerInstruction(service, instruction, status string, duration time.Duration) {
	m.LedgerTxTotal.WithLabelValues(service, instruction, status).Inc()
	m.LedgerTxDuration.WithLabelValues(service, instruction).Observe(duration.Seconds())
}

// RecordProofJob records a proof job reaching a terminal status.
func (m *Metrics) RecordProofJob(service, status string, duration time.Duration) {
	m.ProofJobsTotal.WithLabelValues(service, status).Inc()
	m.ProofJobDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

// RecordVerifierAttempt records a verifier lane execution outcome.
func (m *Metrics) RecordVerifierAttempt(service, tier, outcome string) {
	m.VerifierAttemptsTotal.WithLabelValues(service, tier, outcome).Inc()
}

// RecordEscalation records a verifier escalation by reason.
func (m *Metrics) RecordEscalation(service, reason string) {
	m.VerifierEscalationsTotal.WithLabelValues(service, reason).Inc()
}

// RecordDatabaseQuery records a database query.
func (m *Metrics) RecordDatabaseQuery(service, operation, status string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// SetDatabaseConnections sets the number of open database connections.
func (m *Metrics) SetDatabaseConnections(count int) {
	m.DatabaseConnectionsOpen.Set(float64(count))
}

// UpdateUptime updates the service uptime.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// SetActiveAgents sets the current count of actively worked tasks.
func (m *Metrics) SetActiveAgents(count int) {
	m.AgentsActive.Set(float64(count))
}

// SetProofQueueDepth sets the current proof pipeline queue depth.
func (m *Metrics) SetProofQueueDepth(depth int) {
	m.ProofQueueDepth.Set(float64(depth))
}

// Helper functions

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
