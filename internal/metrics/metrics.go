package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	IncomingEvents   *prometheus.CounterVec
	OutgoingMessages *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	LedgerOperations *prometheus.CounterVec
	StoreLatency     *prometheus.HistogramVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = New(namespace)
		prometheus.MustRegister(metricsInstance.Collectors()...)
	})
	return metricsInstance
}

// New builds an unregistered set of collectors. Tests use it with their own
// prometheus.Registry.
func New(namespace string) *Metrics {
	return &Metrics{
		IncomingEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_incoming_events_total",
			Help:      "Total inbound bot events processed.",
		}, []string{"type"}),
		OutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_outgoing_messages_total",
			Help:      "Total outbound bot messages sent.",
		}, []string{"type"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "convo_transitions_total",
			Help:      "Conversation step transitions.",
		}, []string{"from", "to"}),
		LedgerOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Coin ledger operations by outcome.",
		}, []string{"op", "status"}),
		StoreLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Latency distribution for record store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"driver", "op"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total errors grouped by component.",
		}, []string{"component"}),
	}
}

// Collectors lists every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.IncomingEvents,
		m.OutgoingMessages,
		m.Transitions,
		m.LedgerOperations,
		m.StoreLatency,
		m.Errors,
	}
}

// Error bumps the error counter for component. Safe on a nil receiver.
func (m *Metrics) Error(component string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(component).Inc()
}
