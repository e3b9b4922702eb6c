package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/sweeney/dewpoint-fan/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"measure": func(v float64, unit string) string {
		if math.IsNaN(v) {
			return "n/a"
		}
		return fmt.Sprintf("%.1f %s", v, unit)
	},
	"duration": func(seconds uint16) string {
		return (time.Duration(seconds) * time.Second).String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Dew Point Fan</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
form { display: inline; }
</style>
</head>
<body>
<h1>Dew Point Fan</h1>
{{with .Control}}
<h2>Ventilation</h2>
<table>
<tr><th>Verdict</th><td class="{{if $.Updated}}{{if .Verdict.Useful}}on{{else}}off{{end}}{{else}}unknown{{end}}">{{if $.Updated}}{{.Verdict.Description}}{{else}}UNKNOWN{{end}}</td></tr>
<tr><th>Fan</th><td id="fan-state" class="{{if .FanOn}}on{{else}}off{{end}}">{{.FanState}}</td></tr>
<tr><th>Mode</th><td id="setpoint">{{.Setpoint}} <form method="post" action="/api/setpoint/advance"><button type="submit">next</button></form></td></tr>
<tr><th>Running for</th><td>{{duration .RunSeconds}}</td></tr>
<tr><th>Resting for</th><td>{{duration .RestSeconds}}</td></tr>
<tr><th>Transitions</th><td>{{.Transitions}}</td></tr>
<tr><th>Ready</th><td>{{if $.Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Measurements</h2>
<table>
<tr><th></th><th>Indoor</th><th>Outdoor</th></tr>
<tr><th>Temperature</th><td>{{measure .Inner.Temperature "°C"}}</td><td>{{measure .Outer.Temperature "°C"}}</td></tr>
<tr><th>Humidity</th><td>{{measure .Inner.Humidity "%"}}</td><td>{{measure .Outer.Humidity "%"}}</td></tr>
<tr><th>Dew point</th><td>{{measure .Inner.DewPoint "°C"}}</td><td>{{measure .Outer.DewPoint "°C"}}</td></tr>
<tr><th>Valid samples</th><td>{{.Inner.ValidCount}}</td><td>{{.Outer.ValidCount}}</td></tr>
</table>

<h2>Clock</h2>
<table>
<tr><th>Local time</th><td>{{.Local}}</td></tr>
<tr><th>Source</th><td class="{{if .TimeEstablished}}connected{{else}}disconnected{{end}}">{{.TimeSource}}</td></tr>
<tr><th>Set</th><td><form method="post" action="/api/time"><input name="local" placeholder="31.12.2025 23:59"> <button type="submit">set</button></form></td></tr>
</table>
{{end}}
<h2>Hardware</h2>
<table>
<tr><th>Indoor read errors</th><td>{{.Sensors.InnerErrors}}</td></tr>
<tr><th>Outdoor read errors</th><td>{{.Sensors.OuterErrors}}</td></tr>
<tr><th>Sensor power cycles</th><td>{{.Sensors.Resets}}{{if .Sensors.Resetting}} (cycling){{end}}</td></tr>
<tr><th>Button presses</th><td>{{.ButtonPresses}}</td></tr>
<tr><th>Storage</th><td class="{{if .StorageReady}}connected{{else}}disconnected{{end}}">{{if .StorageReady}}ready{{else}}unavailable{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Config.SwitchTopic}}<tr><th>Wireless switch</th><td>{{.Config.SwitchTopic}} ({{if .SwitchReady}}ready{{else}}not ready{{end}})</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Boot</th><td>{{.BootID}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Control</th><td>{{.Config.ControlMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Run / rest</th><td>{{.Config.MinRunS}}s / {{.Config.MinRestS}}s</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/history.json">history</a> | <a href="/history.csv">CSV</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() and Ready() methods but the template reads fields.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Ready  bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Ready:    snap.Ready(),
	}
	return indexTmpl.Execute(w, data)
}
