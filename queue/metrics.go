package queue

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "sqsq"

// metrics holds the engine's Prometheus collectors. The collectors always
// exist; they are only exposed when a registerer is supplied with
// [WithMetrics].
type metrics struct {
	received         *prometheus.CounterVec
	processed        *prometheus.CounterVec
	processingErrors *prometheus.CounterVec
	receiveErrors    *prometheus.CounterVec
	escalations      *prometheus.CounterVec
	activeWorkers    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_received_total",
			Help:      "Number of messages received from the queue service.",
		}, []string{"queue"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_processed_total",
			Help:      "Number of messages that went through the processing pipeline, by result.",
		}, []string{"queue", "result"}),
		processingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "processing_errors_total",
			Help:      "Number of per-message processing errors, by pipeline stage.",
		}, []string{"queue", "stage"}),
		receiveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "receive_errors_total",
			Help:      "Number of failed receive calls.",
		}, []string{"queue"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "escalations_total",
			Help:      "Number of fatal errors raised after a retry ceiling was reached, by operation.",
		}, []string{"op"}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_workers",
			Help:      "Number of polling workers that have not ended yet.",
		}),
	}

	if reg == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{
		m.received,
		m.processed,
		m.processingErrors,
		m.receiveErrors,
		m.escalations,
		m.activeWorkers,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return m, nil
}

func (m *metrics) observeProcessed(queue string, err *ProcessingError) {
	if err == nil {
		m.processed.WithLabelValues(queue, "success").Inc()
		return
	}

	m.processed.WithLabelValues(queue, "error").Inc()
	m.processingErrors.WithLabelValues(queue, string(err.Stage)).Inc()
}
