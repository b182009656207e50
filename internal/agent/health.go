package agent

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// ResourceSample is a point-in-time read of host resource pressure, used to
// gate admission alongside the task-count cap.
type ResourceSample struct {
	CPUPercent    float64
	MemoryPercent float64
	SampledAt     time.Time
}

// Healthy reports whether the sample is under the given ceilings.
func (s ResourceSample) Healthy(maxCPUPercent, maxMemoryPercent float64) bool {
	if maxCPUPercent > 0 && s.CPUPercent > maxCPUPercent {
		return false
	}
	if maxMemoryPercent > 0 && s.MemoryPercent > maxMemoryPercent {
		return false
	}
	return true
}

// HealthMonitor periodically samples host CPU/memory via gopsutil and
// caches the last reading so admission checks never block on a syscall.
type HealthMonitor struct {
	interval time.Duration
	logger   *logrus.Entry

	mu   sync.RWMutex
	last ResourceSample

	sampleFn func() (ResourceSample, error)
}

// HealthConfig configures a HealthMonitor.
type HealthConfig struct {
	Interval time.Duration
	Logger   *logrus.Entry
}

// NewHealthMonitor constructs a HealthMonitor. The first sample is taken
// synchronously so an early admission check never sees a zero-value
// reading.
func NewHealthMonitor(cfg HealthConfig) *HealthMonitor {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	m := &HealthMonitor{
		interval: interval,
		logger:   logger.WithField("component", "agent.health"),
		sampleFn: sampleResources,
	}
	if s, err := m.sampleFn(); err == nil {
		m.last = s
	}
	return m
}

// Run samples resources on the configured interval until ctx is cancelled.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := m.sampleFn()
			if err != nil {
				m.logger.WithError(err).Warn("resource sample failed")
				continue
			}
			m.mu.Lock()
			m.last = sample
			m.mu.Unlock()
		}
	}
}

// Last returns the most recent resource sample.
func (m *HealthMonitor) Last() ResourceSample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func sampleResources() (ResourceSample, error) {
	percentages, err := cpu.Percent(0, false)
	if err != nil {
		return ResourceSample{}, err
	}
	var cpuPct float64
	if len(percentages) > 0 {
		cpuPct = percentages[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return ResourceSample{}, err
	}

	return ResourceSample{
		CPUPercent:    cpuPct,
		MemoryPercent: vm.UsedPercent,
		SampledAt:     time.Now(),
	}, nil
}
