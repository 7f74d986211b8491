// Package probe defines the check-and-report contract shared by every probe:
// the fact table a probe extracts, the verdict it reaches, and the metrics it
// hands to the Reporter.
package probe

import (
	"errors"
	"fmt"
	"strconv"
)

// Verdict is the health classification a probe reaches for one run.
type Verdict int

const (
	// VerdictUnknown means no verdict was reached because the check failed
	// before evaluation (extraction failure or an unclassified fault).
	VerdictUnknown Verdict = iota
	// VerdictHealthy means the service is up and verified; full metrics are emitted.
	VerdictHealthy
	// VerdictUnhealthy means the service answered but a health gate failed.
	VerdictUnhealthy
	// VerdictIncomplete means the service is up and passed every gate but is
	// not yet eligible for metrics. Nothing is emitted and the run succeeds.
	VerdictIncomplete
	// VerdictDown means the service could not be reached; only the
	// availability metric is emitted.
	VerdictDown
)

func (v Verdict) String() string {
	switch v {
	case VerdictHealthy:
		return "healthy"
	case VerdictUnhealthy:
		return "unhealthy"
	case VerdictIncomplete:
		return "incomplete"
	case VerdictDown:
		return "down"
	default:
		return "unknown"
	}
}

// Metric is one named value destined for the collector.
type Metric struct {
	Namespace string
	Name      string
	Value     string
}

// NewMetric formats value with its default representation.
func NewMetric(namespace, name string, value any) Metric {
	return Metric{Namespace: namespace, Name: name, Value: fmt.Sprint(value)}
}

// IntMetric creates a metric with an integer value.
func IntMetric(namespace, name string, value int64) Metric {
	return Metric{Namespace: namespace, Name: name, Value: strconv.FormatInt(value, 10)}
}

// FloatMetric creates a metric with a value rounded to three decimal places.
func FloatMetric(namespace, name string, value float64) Metric {
	return Metric{Namespace: namespace, Name: name, Value: strconv.FormatFloat(value, 'f', 3, 64)}
}

// BoolMetric creates a metric whose value is 1 for true and 0 for false.
func BoolMetric(namespace, name string, value bool) Metric {
	v := "0"
	if value {
		v = "1"
	}
	return Metric{Namespace: namespace, Name: name, Value: v}
}

// Outcome is the complete result of one run. Metrics is empty unless the
// verdict is healthy or down, and Err is set only when the run failed.
type Outcome struct {
	Verdict Verdict
	Metrics []Metric
	Err     error
}

// Healthy returns a successful outcome carrying the full metric set.
func Healthy(metrics ...Metric) Outcome {
	return Outcome{Verdict: VerdictHealthy, Metrics: metrics}
}

// Incomplete returns the quiet no-op outcome: exit 0 with no output.
func Incomplete() Outcome {
	return Outcome{Verdict: VerdictIncomplete}
}

// Down returns an outcome that reports only the availability metric.
func Down(availability Metric) Outcome {
	return Outcome{Verdict: VerdictDown, Metrics: []Metric{availability}}
}

// Failed returns an error outcome. Health gate failures are classified as
// unhealthy; every other error leaves the verdict unknown.
func Failed(err error) Outcome {
	v := VerdictUnknown
	if errors.Is(err, ErrHealthGate) {
		v = VerdictUnhealthy
	}
	return Outcome{Verdict: v, Err: err}
}

// OK reports whether the outcome should exit with status 0.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Description is the self-description format for probes.
type Description struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	Subcommand  string    `json:"subcommand,omitempty"`
	Namespace   string    `json:"namespace"`
	Metrics     []string  `json:"metrics,omitempty"`
	Arguments   Arguments `json:"arguments"`
}

// Arguments describes required and optional probe arguments.
type Arguments struct {
	Required map[string]ArgumentSpec `json:"required,omitempty"`
	Optional map[string]ArgumentSpec `json:"optional,omitempty"`
}

// ArgumentSpec describes a single argument.
type ArgumentSpec struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}
