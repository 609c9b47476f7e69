package files

import "github.com/prometheus/client_golang/prometheus"

// metrics is the optional, nil-safe instrumentation bundle a Store reports
// through. A nil *metrics disables all recording, so callers that don't pass
// a prometheus.Registerer to New pay no cost.
type metrics struct {
	operations *prometheus.CounterVec
	writeBytes prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conveyor",
			Subsystem: "files",
			Name:      "operations_total",
			Help:      "Count of Files Core operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		writeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conveyor",
			Subsystem: "files",
			Name:      "write_bytes_total",
			Help:      "Total bytes written to blob files.",
		}),
	}

	reg.MustRegister(m.operations, m.writeBytes)
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

func (m *metrics) addBytes(n int) {
	if m == nil {
		return
	}
	m.writeBytes.Add(float64(n))
}
