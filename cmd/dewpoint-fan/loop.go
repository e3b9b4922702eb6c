package main

import (
	"context"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/dewpoint-fan/internal/button"
	"github.com/sweeney/dewpoint-fan/internal/control"
	"github.com/sweeney/dewpoint-fan/internal/datalog"
	"github.com/sweeney/dewpoint-fan/internal/fusion"
	"github.com/sweeney/dewpoint-fan/internal/metrics"
	"github.com/sweeney/dewpoint-fan/internal/mqtt"
	"github.com/sweeney/dewpoint-fan/internal/policy"
	"github.com/sweeney/dewpoint-fan/internal/sensor"
	"github.com/sweeney/dewpoint-fan/internal/status"
)

const historyTimeout = 2 * time.Second

type historyWriter interface {
	Insert(ctx context.Context, r status.Record, v policy.Verdict) (int64, error)
}

// daemon is everything the run loop touches. It is owned by the loop
// goroutine; other goroutines reach it through loopInputs.
type daemon struct {
	ctrl       *control.Controller
	hw         *hardware
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // nil without a broker
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	datalog    *datalog.Logger // nil disables the CSV log
	history    historyWriter   // nil disables history
	watchdog   *sensor.PowerWatchdog
	debouncer  *button.Debouncer
	refresher  *mqtt.SwitchRefresher // nil without a wireless switch
	nowMs      func() int64
	now        func() time.Time

	relayKnown    bool
	relayOn       bool
	published     bool
	lastVerdict   policy.Verdict
	connectedOnce bool
	health        status.SensorHealth
}

// loopInputs are the event sources of runLoop. A nil channel disables its
// case.
type loopInputs struct {
	sig        <-chan os.Signal
	control    <-chan time.Time
	sample     <-chan time.Time
	button     <-chan time.Time
	heartbeat  <-chan time.Time
	archive    <-chan time.Time
	commands   <-chan control.Command
	connection <-chan bool
}

func runLoop(d *daemon, in loopInputs) error {
	for {
		select {
		case s := <-in.sig:
			d.shutdown(s)
			return nil
		case <-in.control:
			d.controlCycle()
		case <-in.sample:
			d.sample()
		case <-in.button:
			d.pollButton()
		case <-in.heartbeat:
			d.heartbeat()
		case <-in.archive:
			d.archive()
		case cmd := <-in.commands:
			d.apply(cmd)
		case up := <-in.connection:
			d.connectionChanged(up)
		}
	}
}

func (d *daemon) refreshMQTT() {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func (d *daemon) startup() {
	d.refreshMQTT()
	snap := d.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		log.Error().Err(err).Msg("failed to publish startup event")
	} else {
		log.Info().Msg("published startup event")
	}
}

func (d *daemon) shutdown(s os.Signal) {
	log.Info().Str("signal", s.String()).Msg("shutting down")
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}

	d.driveRelay(false)
	if d.refresher != nil {
		if err := d.publisher.PublishSwitch(false); err != nil {
			log.Warn().Err(err).Msg("failed to switch wireless fan off")
		}
	}

	d.refreshMQTT()
	snap := d.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      "SHUTDOWN",
		Reason:     signalName,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		log.Error().Err(err).Msg("failed to publish shutdown event")
	} else {
		log.Info().Msg("published shutdown event")
	}
}

// controlCycle runs one controller tick and pushes the result to every
// output.
func (d *daemon) controlCycle() {
	nowMs := d.nowMs()
	out := d.ctrl.Tick(nowMs)

	d.driveRelay(out.FanOn)
	d.driveSwitch(nowMs, out.FanOn)

	st := d.ctrl.State()
	d.tracker.Update(st)
	d.metrics.Observe(st)
	d.refreshMQTT()

	switch {
	case out.Transitioned:
		log.Info().
			Bool("fan_on", out.FanOn).
			Str("verdict", out.Verdict.String()).
			Str("setpoint", st.Setpoint.String()).
			Msg("fan switched")
		reason := "FAN_OFF"
		if out.FanOn {
			reason = "FAN_ON"
		}
		d.publishStatus(reason)
		d.archive()
	case !d.published || out.Verdict != d.lastVerdict:
		if d.published {
			log.Info().
				Str("from", d.lastVerdict.String()).
				Str("to", out.Verdict.String()).
				Msg("verdict changed")
		}
		d.publishStatus("VERDICT")
	}
	d.lastVerdict = out.Verdict

	d.logRecord(nowMs, st)
}

// driveRelay writes the fan line when its state differs from the last
// successful write. A failed write is retried next cycle.
func (d *daemon) driveRelay(on bool) {
	if d.relayKnown && d.relayOn == on {
		return
	}
	if err := d.hw.fan.Set(on); err != nil {
		log.Error().Err(err).Bool("on", on).Msg("fan relay write failed")
		d.relayKnown = false
		return
	}
	d.relayKnown = true
	d.relayOn = on
}

func (d *daemon) driveSwitch(nowMs int64, on bool) {
	if d.refresher == nil || !d.refresher.Due(nowMs, on) {
		return
	}
	if err := d.publisher.PublishSwitch(on); err != nil {
		log.Warn().Err(err).Bool("on", on).Msg("wireless switch command failed")
		d.tracker.SetSwitchReady(false)
		return
	}
	d.refresher.Sent(nowMs, on)
	d.tracker.SetSwitchReady(true)
}

func (d *daemon) publishStatus(reason string) {
	snap := d.tracker.Snapshot()
	if err := d.publisher.PublishStatus(status.FormatStatusEvent(snap, "STATUS", reason)); err != nil {
		log.Warn().Err(err).Msg("status publish failed")
	}
	d.published = true
}

func (d *daemon) logRecord(nowMs int64, st control.State) {
	if d.datalog == nil {
		d.tracker.SetStorageReady(d.history != nil)
		return
	}
	rec := status.RecordFrom(st)
	saved, err := d.datalog.Tick(nowMs, rec, st.TimeEstablished)
	if err != nil {
		log.Error().Err(err).Msg("data log write failed")
	} else if saved {
		log.Debug().Str("record", status.FormatRecord(rec)).Msg("data log saved")
	}
	d.tracker.SetStorageReady(d.datalog.Ready())
}

// archive stores the current state in the history database. Records with an
// untrusted timestamp are skipped.
func (d *daemon) archive() {
	if d.history == nil {
		return
	}
	st := d.ctrl.State()
	if !st.TimeEstablished {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if _, err := d.history.Insert(ctx, status.RecordFrom(st), st.Verdict); err != nil {
		log.Error().Err(err).Msg("history insert failed")
	}
}

func (d *daemon) sample() {
	nowMs := d.nowMs()
	inner, outer := fusion.BadSample(), fusion.BadSample()
	if !d.watchdog.Resetting() {
		inner = d.read("indoor", d.hw.indoor, &d.health.InnerErrors)
		outer = d.read("outdoor", d.hw.outdoor, &d.health.OuterErrors)
	}
	d.ctrl.PushSamples(inner, outer)

	switch d.watchdog.Observe(nowMs, inner.Valid(), outer.Valid()) {
	case sensor.ActionPowerOff:
		log.Warn().Uint64("resets", d.watchdog.Resets()).Msg("sensors silent, cycling their power")
		d.metrics.PowerCycle()
		d.setSensorPower(false)
	case sensor.ActionPowerOn:
		log.Info().Msg("sensor power restored")
		d.setSensorPower(true)
	}

	d.health.Resetting = d.watchdog.Resetting()
	d.health.Resets = d.watchdog.Resets()
	d.tracker.SetSensorHealth(d.health)
}

func (d *daemon) read(probe string, r sensor.Reader, errs *uint64) fusion.Sample {
	s, err := sensor.ReadOrBad(r)
	if err != nil {
		*errs++
		d.metrics.SensorReadError(probe)
		log.Debug().Err(err).Str("probe", probe).Msg("sensor read failed")
	}
	return s
}

func (d *daemon) setSensorPower(on bool) {
	if d.hw.power == nil {
		return
	}
	if err := d.hw.power.Set(on); err != nil {
		log.Error().Err(err).Bool("on", on).Msg("sensor power write failed")
	}
}

func (d *daemon) pollButton() {
	if d.hw.button == nil {
		return
	}
	pressed, err := d.hw.button.Read()
	if err != nil {
		log.Warn().Err(err).Msg("button read failed")
		return
	}
	if d.debouncer.Process(pressed, d.now()) != button.EventPress {
		return
	}
	d.metrics.ButtonPress()
	d.tracker.SetButtonPresses(d.debouncer.Presses())
	d.apply(control.Command{Kind: control.CommandAdvanceSetpoint, Origin: "button"})
}

func (d *daemon) apply(cmd control.Command) {
	res, err := d.ctrl.Apply(cmd)
	if err != nil {
		log.Error().Err(err).Str("command", cmd.Kind.String()).Str("origin", cmd.Origin).Msg("command failed")
		return
	}
	d.metrics.Command(cmd)
	log.Info().
		Str("command", cmd.Kind.String()).
		Str("origin", cmd.Origin).
		Str("setpoint", res.Setpoint.String()).
		Str("local", res.Local.String()).
		Msg("command applied")

	st := d.ctrl.State()
	d.tracker.Update(st)
	d.metrics.Observe(st)
	d.publishStatus(strings.ToUpper(cmd.Kind.String()))
}

func (d *daemon) heartbeat() {
	d.refreshMQTT()
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}
	snap := d.tracker.Snapshot()
	log.Info().
		Dur("uptime", snap.Uptime()).
		Str("verdict", snap.Control.Verdict.String()).
		Bool("fan_on", snap.Control.FanOn).
		Uint64("transitions", snap.Control.Transitions).
		Msg("heartbeat")

	event := mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		log.Warn().Err(err).Msg("heartbeat publish failed")
	}
}

// connectionChanged handles broker connect and disconnect notifications.
// The first connect is covered by STARTUP; later ones announce RECONNECTED.
func (d *daemon) connectionChanged(up bool) {
	d.tracker.SetMQTTConnected(up)
	if !up {
		return
	}
	if !d.connectedOnce {
		d.connectedOnce = true
		return
	}
	snap := d.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      "RECONNECTED",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "RECONNECTED", ""),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		log.Warn().Err(err).Msg("reconnected publish failed")
	}
	d.publishStatus("RECONNECTED")
}
