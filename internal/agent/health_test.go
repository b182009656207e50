package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceSampleHealthyWithinCeilings(t *testing.T) {
	s := ResourceSample{CPUPercent: 40, MemoryPercent: 50}
	assert.True(t, s.Healthy(80, 80))
}

func TestResourceSampleUnhealthyOverCPUCeiling(t *testing.T) {
	s := ResourceSample{CPUPercent: 95, MemoryPercent: 10}
	assert.False(t, s.Healthy(80, 80))
}

func TestResourceSampleUnhealthyOverMemoryCeiling(t *testing.T) {
	s := ResourceSample{CPUPercent: 10, MemoryPercent: 95}
	assert.False(t, s.Healthy(80, 80))
}

func TestResourceSampleZeroCeilingDisablesCheck(t *testing.T) {
	s := ResourceSample{CPUPercent: 99, MemoryPercent: 99}
	assert.True(t, s.Healthy(0, 0))
}
