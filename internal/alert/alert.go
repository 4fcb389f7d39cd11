// Package alert implements per-metric threshold alerts with hysteresis.
//
// A metric starts Quiet. It becomes Alerting, and is reported once, when a
// value reaches its threshold. It returns to Quiet silently only after a
// value drops below threshold minus the margin.
package alert

// Metric names a monitored percentage.
type Metric string

const (
	CPU    Metric = "cpu"
	Memory Metric = "mem"
	Disk   Metric = "disk"
)

// Metrics lists every metric in report order.
var Metrics = []Metric{CPU, Memory, Disk}

// DefaultMargin is the default hysteresis margin in percentage points.
const DefaultMargin = 5.0

// State of a single metric.
type State int

const (
	Quiet State = iota
	Alerting
)

func (s State) String() string {
	if s == Alerting {
		return "alerting"
	}
	return "quiet"
}

// Thresholds holds the rising threshold per metric, in percent.
type Thresholds map[Metric]float64

// DefaultThresholds returns cpu 85, mem 85, disk 95.
func DefaultThresholds() Thresholds {
	return Thresholds{CPU: 85, Memory: 85, Disk: 95}
}

// Tracker holds alert state for every metric. It is not safe for
// concurrent use.
type Tracker struct {
	thresholds Thresholds
	margin     float64
	state      map[Metric]State
}

// NewTracker creates a tracker with every metric Quiet.
func NewTracker(thresholds Thresholds, margin float64) *Tracker {
	t := &Tracker{state: make(map[Metric]State, len(Metrics))}
	t.Reconfigure(thresholds, margin)
	return t
}

// Reconfigure replaces thresholds and margin, keeping current states.
// Metrics missing from thresholds keep their default.
func (t *Tracker) Reconfigure(thresholds Thresholds, margin float64) {
	merged := DefaultThresholds()
	for m, v := range thresholds {
		merged[m] = v
	}
	t.thresholds = merged
	t.margin = margin
}

// Observe feeds a value for m and reports whether it fired on this call.
func (t *Tracker) Observe(m Metric, value float64) bool {
	threshold, ok := t.thresholds[m]
	if !ok {
		return false
	}

	switch t.state[m] {
	case Quiet:
		if value >= threshold {
			t.state[m] = Alerting
			return true
		}
	case Alerting:
		if value < threshold-t.margin {
			t.state[m] = Quiet
		}
	}
	return false
}

// ObserveAll feeds one value per metric and returns the metrics that fired,
// in Metrics order.
func (t *Tracker) ObserveAll(values map[Metric]float64) []Metric {
	fired := []Metric{}
	for _, m := range Metrics {
		v, ok := values[m]
		if !ok {
			continue
		}
		if t.Observe(m, v) {
			fired = append(fired, m)
		}
	}
	return fired
}

// State returns the current state of m.
func (t *Tracker) State(m Metric) State {
	return t.state[m]
}

// Threshold returns the rising threshold of m.
func (t *Tracker) Threshold(m Metric) float64 {
	return t.thresholds[m]
}
