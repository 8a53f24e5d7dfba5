package metrics

import (
	"net/http"

	"github.com/nerrad567/gray-logic-irbridge/internal/autoonoff"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "irbridge"

// Transmission results used as the result label.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Timeline receives discrete events for time-series storage.
type Timeline interface {
	WriteTransmission(accessory string, ok bool)
	WriteAutoTransition(accessory, action string)
}

// Recorder implements the accessory metrics observer on a private
// Prometheus registry.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Recorder struct {
	registry *prometheus.Registry
	timeline Timeline

	transmissions   *prometheus.CounterVec
	sensorReading   *prometheus.GaugeVec
	autoTransitions *prometheus.CounterVec
	pending         *prometheus.GaugeVec
}

// New creates a Recorder with its collectors registered.
//
// Parameters:
//   - timeline: Optional event sink; nil disables forwarding
//
// Returns:
//   - *Recorder: Recorder ready for use
func New(timeline Timeline) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		timeline: timeline,
		transmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transmissions_total",
			Help:      "Signal codes sent to a gateway device, by result.",
		}, []string{"accessory", "result"}),
		sensorReading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_reading",
			Help:      "Last non-zero sensor reading delivered to an accessory.",
		}, []string{"accessory", "kind"}),
		autoTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_transitions_total",
			Help:      "Automatic on/off transitions triggered by sensor thresholds.",
		}, []string{"accessory", "action"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_callbacks",
			Help:      "Sensor requests waiting for a device answer.",
		}, []string{"accessory", "kind"}),
	}

	r.registry.MustRegister(
		r.transmissions,
		r.sensorReading,
		r.autoTransitions,
		r.pending,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveTransmit counts one transmit attempt.
func (r *Recorder) ObserveTransmit(accessory string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	r.transmissions.WithLabelValues(accessory, result).Inc()
	if r.timeline != nil {
		r.timeline.WriteTransmission(accessory, err == nil)
	}
}

// ObserveReading sets the last reading gauge.
func (r *Recorder) ObserveReading(accessory string, kind sensor.Kind, value float64) {
	r.sensorReading.WithLabelValues(accessory, string(kind)).Set(value)
}

// ObservePending sets the pending callback gauge.
func (r *Recorder) ObservePending(accessory string, kind sensor.Kind, n int) {
	r.pending.WithLabelValues(accessory, string(kind)).Set(float64(n))
}

// ObserveAutoAction counts an automatic transition. ActionNone is ignored.
func (r *Recorder) ObserveAutoAction(accessory string, action autoonoff.Action) {
	if action == autoonoff.ActionNone {
		return
	}
	r.autoTransitions.WithLabelValues(accessory, action.String()).Inc()
	if r.timeline != nil {
		r.timeline.WriteAutoTransition(accessory, action.String())
	}
}

// Registry returns the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
