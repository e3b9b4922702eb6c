package status

import (
	"fmt"
	"math"
	"strings"

	"github.com/sweeney/dewpoint-fan/internal/civiltime"
	"github.com/sweeney/dewpoint-fan/internal/control"
	"github.com/sweeney/dewpoint-fan/internal/fan"
	"github.com/sweeney/dewpoint-fan/internal/fusion"
)

// CSVHeader names the fields of a formatted Record.
const CSVHeader = "Date;Temperature T_i;Temperature T_o;Humidity H_i;Humidity H_o;" +
	"Dew point DP_i;Dew point DP_o;validCnt_i;validCnt_o;Fan;Mode;On_s;Off_s"

// Record is the compact status line written to the data log and history.
type Record struct {
	Local       civiltime.CivilTime
	Inner       fusion.ProbeAverage
	Outer       fusion.ProbeAverage
	FanOn       bool
	Setpoint    fan.Setpoint
	RunSeconds  uint16
	RestSeconds uint16
}

// RecordFrom builds a Record from the controller state.
func RecordFrom(st control.State) Record {
	return Record{
		Local:       st.Local,
		Inner:       st.Inner,
		Outer:       st.Outer,
		FanOn:       st.FanOn,
		Setpoint:    st.Setpoint,
		RunSeconds:  st.RunSeconds,
		RestSeconds: st.RestSeconds,
	}
}

// FormatRecord renders r in CSVHeader order, for example
// "2024-12-31 10:10:10;+23.4;+22.7;+83.8;+58.1;+20.5;+14.1;8;8;f1;m1;123;0".
func FormatRecord(r Record) string {
	var b strings.Builder
	b.WriteString(r.Local.String())
	for _, v := range []float64{
		r.Inner.Temperature, r.Outer.Temperature,
		r.Inner.Humidity, r.Outer.Humidity,
		r.Inner.DewPoint, r.Outer.DewPoint,
	} {
		b.WriteByte(';')
		b.WriteString(formatValue(v))
	}
	fanFlag := 0
	if r.FanOn {
		fanFlag = 1
	}
	fmt.Fprintf(&b, ";%d;%d;f%d;m%d;%d;%d",
		r.Inner.ValidCount, r.Outer.ValidCount, fanFlag, int(r.Setpoint), r.RunSeconds, r.RestSeconds)
	return b.String()
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return fmt.Sprintf("%+.1f", v)
}
