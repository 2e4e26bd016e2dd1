package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	tradesIn     *prometheus.CounterVec
	barsEmitted  *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	circuitState *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		tradesIn: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rangepull_trades_in_total",
				Help: "Total number of trades accepted by a processor",
			},
			[]string{"symbol"},
		),
		barsEmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rangepull_bars_emitted_total",
				Help: "Total number of range bars emitted",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rangepull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rangepull_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rangepull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		circuitState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rangepull_circuit_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"scope"},
		),
	}
}

// RecordTradeIn records a trade accepted by a processor.
func (r *Recorder) RecordTradeIn(symbol string) {
	r.tradesIn.WithLabelValues(symbol).Inc()
}

// RecordBarEmitted records a completed bar routed to a backend.
func (r *Recorder) RecordBarEmitted(backend, symbol string) {
	r.barsEmitted.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordCircuitState records a circuit breaker state transition.
func (r *Recorder) RecordCircuitState(scope string, state int) {
	r.circuitState.WithLabelValues(scope).Set(float64(state))
}
