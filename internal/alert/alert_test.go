package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObserveHysteresisSequence(t *testing.T) {
	tr := NewTracker(Thresholds{CPU: 85}, 5)

	values := []float64{80, 86, 84, 81, 79, 90}
	var firedOn []int
	for i, v := range values {
		if tr.Observe(CPU, v) {
			firedOn = append(firedOn, i+1)
		}
	}

	assert.Equal(t, []int{2, 6}, firedOn)
	assert.Equal(t, Alerting, tr.State(CPU))
}

func TestObserveTransitions(t *testing.T) {
	tests := []struct {
		name      string
		values    []float64
		wantFired []bool
		wantState State
	}{
		{
			name:      "exactly at threshold fires",
			values:    []float64{85},
			wantFired: []bool{true},
			wantState: Alerting,
		},
		{
			name:      "below threshold stays quiet",
			values:    []float64{84.9, 10},
			wantFired: []bool{false, false},
			wantState: Quiet,
		},
		{
			name:      "exactly at falling edge does not reset",
			values:    []float64{90, 80, 95},
			wantFired: []bool{true, false, false},
			wantState: Alerting,
		},
		{
			name:      "noise around threshold fires once",
			values:    []float64{86, 84, 86, 84, 86},
			wantFired: []bool{true, false, false, false, false},
			wantState: Alerting,
		},
		{
			name:      "silent reset",
			values:    []float64{99, 10},
			wantFired: []bool{true, false},
			wantState: Quiet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(Thresholds{CPU: 85}, 5)
			for i, v := range tt.values {
				assert.Equal(t, tt.wantFired[i], tr.Observe(CPU, v), "value #%d (%v)", i, v)
			}
			assert.Equal(t, tt.wantState, tr.State(CPU))
		})
	}
}

func TestMetricsAreIndependent(t *testing.T) {
	tr := NewTracker(DefaultThresholds(), DefaultMargin)

	fired := tr.ObserveAll(map[Metric]float64{CPU: 90, Memory: 50, Disk: 96})
	assert.Equal(t, []Metric{CPU, Disk}, fired)

	fired = tr.ObserveAll(map[Metric]float64{CPU: 90, Memory: 86, Disk: 96})
	assert.Equal(t, []Metric{Memory}, fired)

	fired = tr.ObserveAll(map[Metric]float64{CPU: 10, Memory: 86, Disk: 96})
	assert.Empty(t, fired)
	assert.Equal(t, Quiet, tr.State(CPU))
	assert.Equal(t, Alerting, tr.State(Memory))
	assert.Equal(t, Alerting, tr.State(Disk))
}

func TestReconfigureKeepsState(t *testing.T) {
	tr := NewTracker(DefaultThresholds(), DefaultMargin)
	assert.True(t, tr.Observe(Disk, 96))

	tr.Reconfigure(Thresholds{Disk: 99}, 1)
	assert.Equal(t, Alerting, tr.State(Disk))
	assert.Equal(t, 99.0, tr.Threshold(Disk))
	assert.Equal(t, 85.0, tr.Threshold(CPU))

	assert.False(t, tr.Observe(Disk, 98))
	assert.Equal(t, Quiet, tr.State(Disk))
}

func TestUnknownMetricNeverFires(t *testing.T) {
	tr := NewTracker(DefaultThresholds(), DefaultMargin)
	assert.False(t, tr.Observe(Metric("gpu"), 100))
}
