package metrics

import (
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sweeney/dewpoint-fan/internal/control"
	"github.com/sweeney/dewpoint-fan/internal/fan"
	"github.com/sweeney/dewpoint-fan/internal/fusion"
	"github.com/sweeney/dewpoint-fan/internal/policy"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestObserveExposesState(t *testing.T) {
	m := New()
	m.Observe(control.State{
		TimeEstablished: true,
		Inner:           fusion.ProbeAverage{Temperature: 21.5, Humidity: 70, DewPoint: 15.8, ValidCount: 8},
		Outer:           fusion.ProbeAverage{DewPoint: math.NaN()},
		Verdict:         policy.NoDataOutdoor,
		FanOn:           false,
		Setpoint:        fan.SetpointAuto,
		RestSeconds:     120,
		Transitions:     3,
	})
	body := scrape(t, m)

	for _, want := range []string{
		`dewpoint_fan_temperature_celsius{probe="indoor"} 21.5`,
		`dewpoint_fan_valid_samples{probe="outdoor"} 0`,
		`dewpoint_fan_verdict{verdict="NO_DATA_OUTDOOR"} 1`,
		`dewpoint_fan_verdict{verdict="USEFUL"} 0`,
		`dewpoint_fan_setpoint 1`,
		`dewpoint_fan_rest_seconds 120`,
		`dewpoint_fan_fan_transitions_total 3`,
		`dewpoint_fan_time_established 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q", want)
		}
	}
	if strings.Contains(body, `dewpoint_fan_temperature_celsius{probe="outdoor"}`) {
		t.Error("outdoor temperature must not be exported without valid samples")
	}
}

func TestTransitionsCounterTracksDelta(t *testing.T) {
	m := New()
	m.Observe(control.State{Transitions: 2})
	m.Observe(control.State{Transitions: 2})
	m.Observe(control.State{Transitions: 5})

	if body := scrape(t, m); !strings.Contains(body, "dewpoint_fan_fan_transitions_total 5") {
		t.Error("expected transitions total 5")
	}
}

func TestEventCounters(t *testing.T) {
	m := New()
	m.SensorReadError("indoor")
	m.SensorReadError("indoor")
	m.PowerCycle()
	m.ButtonPress()
	m.Command(control.Command{Kind: control.CommandAdvanceSetpoint, Origin: "http"})

	body := scrape(t, m)
	for _, want := range []string{
		`dewpoint_fan_sensor_read_errors_total{probe="indoor"} 2`,
		`dewpoint_fan_sensor_power_cycles_total 1`,
		`dewpoint_fan_button_presses_total 1`,
		`dewpoint_fan_commands_total{kind="advance",origin="http"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ButtonPress()
	if strings.Contains(scrape(t, b), "dewpoint_fan_button_presses_total 1") {
		t.Error("metrics leaked between instances")
	}
}
