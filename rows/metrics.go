package rows

import "github.com/prometheus/client_golang/prometheus"

// metrics is the optional, nil-safe instrumentation bundle a Store reports
// through, mirroring files.metrics: a nil *metrics disables all recording,
// so callers that don't pass a prometheus.Registerer to New pay no cost.
type metrics struct {
	operations *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conveyor",
			Subsystem: "rows",
			Name:      "operations_total",
			Help:      "Count of Rows Core operations by name and outcome.",
		}, []string{"operation", "outcome"}),
	}

	reg.MustRegister(m.operations)
	return m
}

func (m *metrics) record(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}
