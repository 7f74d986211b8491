package probe

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
)

// MaxMetrics is the most metrics a single check may emit.
const MaxMetrics = 50

// Format selects the output protocol.
type Format string

const (
	// FormatMaaS writes "metric <namespace> <name> <value>" lines and a single
	// "status error <message>" line on failure.
	FormatMaaS Format = "maas"
	// FormatPrometheus writes the Prometheus text exposition format.
	FormatPrometheus Format = "prometheus"
)

// ParseFormat validates a format name. The empty string selects FormatMaaS.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatMaaS:
		return FormatMaaS, nil
	case FormatPrometheus:
		return FormatPrometheus, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Reporter serializes an Outcome and decides the process exit code.
type Reporter struct {
	out    io.Writer
	format Format
	log    *zap.Logger
}

// NewReporter creates a Reporter writing to out. A nil logger disables logging.
func NewReporter(out io.Writer, format Format, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	if format == "" {
		format = FormatMaaS
	}
	return &Reporter{out: out, format: format, log: log}
}

// Guard runs check and converts a panic escaping it into an error outcome
// carrying the panic message.
func (r *Reporter) Guard(check func() Outcome) (o Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("check panicked", zap.Any("panic", p), zap.Stack("stack"))
			o = Failed(fmt.Errorf("unhandled fault: %v", p))
		}
	}()
	return check()
}

// Report writes the outcome and returns the exit code: 0 on success, 1 on
// failure. Metrics and the error line are never written together.
func (r *Reporter) Report(o Outcome) int {
	if o.Err == nil && len(o.Metrics) > MaxMetrics {
		o = Failed(fmt.Errorf("Maximum of %d metrics per check", MaxMetrics))
	}

	var err error
	if o.Err != nil {
		r.log.Warn("check failed", zap.Stringer("verdict", o.Verdict), zap.Error(o.Err))
		err = r.writeError(o.Err)
	} else {
		r.log.Info("check completed", zap.Stringer("verdict", o.Verdict), zap.Int("metrics", len(o.Metrics)))
		err = r.writeMetrics(o.Metrics)
	}
	if err != nil {
		r.log.Error("write output", zap.Error(err))
		return 1
	}
	if o.Err != nil {
		return 1
	}
	return 0
}

func (r *Reporter) writeError(cause error) error {
	msg := flatten(cause.Error())
	if r.format == FormatPrometheus {
		_, err := expfmt.MetricFamilyToText(r.out, gaugeFamily("infraprobe_check_error",
			"Set when the check failed.", 1, label("message", msg)))
		return err
	}
	_, err := fmt.Fprintf(r.out, "status error %s\n", msg)
	return err
}

func (r *Reporter) writeMetrics(metrics []Metric) error {
	for _, m := range metrics {
		var err error
		if r.format == FormatPrometheus {
			_, err = expfmt.MetricFamilyToText(r.out, metricFamily(m))
		} else {
			_, err = fmt.Fprintf(r.out, "metric %s %s %s\n", m.Namespace, m.Name, m.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func metricFamily(m Metric) *dto.MetricFamily {
	name := promName(m.Namespace + "_" + m.Name)
	if v, err := strconv.ParseFloat(m.Value, 64); err == nil {
		return gaugeFamily(name, "", v)
	}
	return gaugeFamily(name+"_info", "", 1, label("value", m.Value))
}

func gaugeFamily(name, help string, value float64, labels ...*dto.LabelPair) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: ptr(name),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{
			Label: labels,
			Gauge: &dto.Gauge{Value: ptr(value)},
		}},
	}
	if help != "" {
		mf.Help = ptr(help)
	}
	return mf
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: ptr(name), Value: ptr(value)}
}

// promName replaces every character that is not valid in a Prometheus metric
// name with an underscore.
func promName(s string) string {
	var b strings.Builder
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_', c == ':':
			b.WriteRune(c)
		case c >= '0' && c <= '9' && i > 0:
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func ptr[T any](v T) *T {
	return &v
}
