package reporter

import (
	"fmt"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mlbench/mlbench/record"
)

// writePrometheus exports the numeric results of rec in the Prometheus
// textfile format, replacing the file. Failed and non-numeric results are
// counted but not exported as values.
func writePrometheus(path string, rec *record.Record) error {
	reg := prometheus.NewRegistry()
	value := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mlbench",
		Name:      "benchmark_value",
		Help:      "Value returned by a benchmark.",
	}, []string{"run", "benchmark", "function"})
	duration := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mlbench",
		Name:      "benchmark_duration_seconds",
		Help:      "Wall time of a benchmark call.",
	}, []string{"run", "benchmark", "function"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlbench",
		Name:      "benchmark_failures_total",
		Help:      "Benchmarks that returned an error.",
	}, []string{"run"})
	reg.MustRegister(value, duration, failed)

	failed.WithLabelValues(rec.Run).Add(0)
	for _, res := range rec.Benchmarks {
		labels := prometheus.Labels{"run": rec.Run, "benchmark": res.Name, "function": res.Function}
		if res.ErrorOccurred {
			failed.WithLabelValues(rec.Run).Inc()
			continue
		}
		duration.With(labels).Set(float64(res.TimeNs) / 1e9)
		if f, ok := toFloat(res.Value); ok {
			value.With(labels).Set(f)
		}
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case nil:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
