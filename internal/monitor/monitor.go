// Package monitor samples host resource usage so the scheduler can back
// off a claim cycle when the machine is already saturated, realizing the
// system.monitoring_poll_interval and system.max_load_average settings.
package monitor

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sample is a single point-in-time resource reading.
type Sample struct {
	CPUPercent   float64
	MemPercent   float64
	LoadAverage1 float64
}

// ResourceMonitor samples host resource usage. Implemented by
// GopsutilMonitor; a small interface so the scheduler can be tested
// against a fixed reading.
type ResourceMonitor interface {
	Sample(ctx context.Context) (Sample, error)
}

// GopsutilMonitor is the real ResourceMonitor, backed by gopsutil.
type GopsutilMonitor struct{}

// NewGopsutilMonitor constructs a host-backed ResourceMonitor.
func NewGopsutilMonitor() *GopsutilMonitor {
	return &GopsutilMonitor{}
}

// Sample reads current CPU%, memory%, and 1-minute load average.
func (m *GopsutilMonitor) Sample(ctx context.Context) (Sample, error) {
	var s Sample

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return s, err
	}
	if len(cpuPercents) > 0 {
		s.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, err
	}
	s.MemPercent = vm.UsedPercent

	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return s, err
	}
	s.LoadAverage1 = avg.Load1

	return s, nil
}
