// Package metrics exposes the controller state as Prometheus metrics on a
// private registry.
package metrics

import (
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/dewpoint-fan/internal/control"
	"github.com/sweeney/dewpoint-fan/internal/fusion"
	"github.com/sweeney/dewpoint-fan/internal/policy"
)

const namespace = "dewpoint_fan"

// Metrics holds the collectors. The zero value is not usable; use New.
type Metrics struct {
	registry *prometheus.Registry

	temperature *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	dewPoint    *prometheus.GaugeVec
	validCount  *prometheus.GaugeVec
	verdict     *prometheus.GaugeVec
	fanOn       prometheus.Gauge
	setpoint    prometheus.Gauge
	runSeconds  prometheus.Gauge
	restSeconds prometheus.Gauge
	timeSet     prometheus.Gauge

	transitions     prometheus.Counter
	readErrors      *prometheus.CounterVec
	powerCycles     prometheus.Counter
	buttonPress     prometheus.Counter
	commands        *prometheus.CounterVec
	lastTransitions uint64
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "temperature_celsius",
			Help: "Mean temperature over the valid buffered samples.",
		}, []string{"probe"}),
		humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "humidity_percent",
			Help: "Mean relative humidity over the valid buffered samples.",
		}, []string{"probe"}),
		dewPoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "dew_point_celsius",
			Help: "Dew point computed from the mean temperature and humidity.",
		}, []string{"probe"}),
		validCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "valid_samples",
			Help: "Number of valid samples in the probe buffer.",
		}, []string{"probe"}),
		verdict: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "verdict",
			Help: "1 for the current ventilation verdict, 0 for all others.",
		}, []string{"verdict"}),
		fanOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "fan_on",
			Help: "1 while the fan runs.",
		}),
		setpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "setpoint",
			Help: "User setpoint: 0 OFF, 1 AUTO, 2 ON.",
		}),
		runSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "run_seconds",
			Help: "Seconds in the current run.",
		}),
		restSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rest_seconds",
			Help: "Seconds in the current rest.",
		}),
		timeSet: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "time_established",
			Help: "1 once the civil time is trustworthy.",
		}),
		transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fan_transitions_total",
			Help: "Fan ON/OFF transitions.",
		}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sensor_read_errors_total",
			Help: "Failed probe reads.",
		}, []string{"probe"}),
		powerCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sensor_power_cycles_total",
			Help: "Probe power cycles started by the watchdog.",
		}),
		buttonPress: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "button_presses_total",
			Help: "Debounced mode button presses.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_total",
			Help: "Applied commands by kind and origin.",
		}, []string{"kind", "origin"}),
	}

	reg.MustRegister(
		m.temperature, m.humidity, m.dewPoint, m.validCount, m.verdict,
		m.fanOn, m.setpoint, m.runSeconds, m.restSeconds, m.timeSet,
		m.transitions, m.readErrors, m.powerCycles, m.buttonPress, m.commands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry, for tests and custom exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeProbe(probe string, a fusion.ProbeAverage) {
	m.validCount.WithLabelValues(probe).Set(float64(a.ValidCount))
	if a.ValidCount == 0 {
		// Stale values would look like real readings.
		m.temperature.DeleteLabelValues(probe)
		m.humidity.DeleteLabelValues(probe)
		m.dewPoint.DeleteLabelValues(probe)
		return
	}
	m.temperature.WithLabelValues(probe).Set(a.Temperature)
	m.humidity.WithLabelValues(probe).Set(a.Humidity)
	if math.IsNaN(a.DewPoint) {
		m.dewPoint.DeleteLabelValues(probe)
	} else {
		m.dewPoint.WithLabelValues(probe).Set(a.DewPoint)
	}
}

// Observe updates the gauges from a controller state.
func (m *Metrics) Observe(st control.State) {
	m.observeProbe("indoor", st.Inner)
	m.observeProbe("outdoor", st.Outer)

	for v := policy.Useful; v <= policy.OutsideNotDryEnough; v++ {
		m.verdict.WithLabelValues(v.String()).Set(boolFloat(v == st.Verdict))
	}
	m.fanOn.Set(boolFloat(st.FanOn))
	m.setpoint.Set(float64(st.Setpoint))
	m.runSeconds.Set(float64(st.RunSeconds))
	m.restSeconds.Set(float64(st.RestSeconds))
	m.timeSet.Set(boolFloat(st.TimeEstablished))

	if st.Transitions > m.lastTransitions {
		m.transitions.Add(float64(st.Transitions - m.lastTransitions))
		m.lastTransitions = st.Transitions
	}
}

// SensorReadError counts a failed read on probe ("indoor" or "outdoor").
func (m *Metrics) SensorReadError(probe string) {
	m.readErrors.WithLabelValues(probe).Inc()
}

// PowerCycle counts a watchdog power cycle.
func (m *Metrics) PowerCycle() {
	m.powerCycles.Inc()
}

// ButtonPress counts a debounced press.
func (m *Metrics) ButtonPress() {
	m.buttonPress.Inc()
}

// Command counts an applied command.
func (m *Metrics) Command(cmd control.Command) {
	m.commands.WithLabelValues(cmd.Kind.String(), cmd.Origin).Inc()
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
