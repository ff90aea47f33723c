package monitor

import (
	"context"
	"testing"
)

// fakeMonitor is a fixed-reading ResourceMonitor for tests that don't want
// to depend on the actual host's load.
type fakeMonitor struct {
	sample Sample
	err    error
}

func (f fakeMonitor) Sample(ctx context.Context) (Sample, error) {
	return f.sample, f.err
}

func TestFakeMonitorSatisfiesInterface(t *testing.T) {
	var _ ResourceMonitor = fakeMonitor{}
}

func TestGopsutilMonitorSampleReturnsNoError(t *testing.T) {
	m := NewGopsutilMonitor()
	if _, err := m.Sample(context.Background()); err != nil {
		t.Errorf("Sample() error = %v, want nil on a normal host", err)
	}
}
