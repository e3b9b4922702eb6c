// Command dewpoint-fan runs a ventilation fan while the outdoor air is
// noticeably drier than the indoor air, compared by dew point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/dewpoint-fan/internal/button"
	"github.com/sweeney/dewpoint-fan/internal/civiltime"
	"github.com/sweeney/dewpoint-fan/internal/config"
	"github.com/sweeney/dewpoint-fan/internal/control"
	"github.com/sweeney/dewpoint-fan/internal/datalog"
	"github.com/sweeney/dewpoint-fan/internal/fusion"
	"github.com/sweeney/dewpoint-fan/internal/history"
	"github.com/sweeney/dewpoint-fan/internal/metrics"
	"github.com/sweeney/dewpoint-fan/internal/mqtt"
	"github.com/sweeney/dewpoint-fan/internal/policy"
	"github.com/sweeney/dewpoint-fan/internal/sensor"
	"github.com/sweeney/dewpoint-fan/internal/status"
	"github.com/sweeney/dewpoint-fan/internal/web"
)

// buildTime is the local wall clock time of the build, injected with
// -ldflags "-X main.buildTime=2025-06-01T12:00:00". It seeds the clock on
// boards that boot without RTC or network time.
var buildTime string

const buildTimeLayout = "2006-01-02T15:04:05"

// commandQueue bounds commands waiting for the control loop.
const commandQueue = 8

func main() {
	configPath := flag.String("config", "", "Path to YAML config (empty for built-in defaults)")
	printState := flag.Bool("print-state", false, "Print one sensor reading and the verdict, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	level, _ := cfg.LogLevel()
	setupLogging(level, cfg.Log.JSON)

	if err := run(cfg, *printState); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func setupLogging(level zerolog.Level, useJSON bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}
	zerolog.SetGlobalLevel(level)
}

// compiledCandidate turns the injected build time into a boot candidate.
func compiledCandidate(s string) civiltime.Candidate {
	if s == "" {
		return civiltime.Candidate{}
	}
	t, err := time.Parse(buildTimeLayout, s)
	if err != nil {
		log.Warn().Err(err).Str("build_time", s).Msg("ignoring unparsable build time")
		return civiltime.Candidate{}
	}
	return civiltime.Candidate{Valid: true, Time: civiltime.FromTime(t)}
}

func run(cfg *config.Config, printState bool) error {
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	if printState {
		return printSensorState(os.Stdout, hw, cfg.Thresholds())
	}

	// Time authority
	rule, err := cfg.DSTRule()
	if err != nil {
		return err
	}
	clock := civiltime.NewAuthority(civiltime.NewSystemClock(cfg.Clock.StandardOffset.Duration()), rule)
	ok, err := clock.ResolveAtBoot(clock.HardwareCandidate(), compiledCandidate(buildTime))
	if err != nil {
		log.Error().Err(err).Msg("failed to seed clock from build time")
	}
	if ok {
		log.Info().Str("local", clock.Local().String()).Str("source", clock.Source().String()).Msg("clock established")
	} else {
		log.Warn().Msg("no trustworthy time, data log paused until the clock is set")
	}

	ctrl := control.New(control.Config{
		BufferSize:      cfg.Control.BufferSize,
		Thresholds:      cfg.Thresholds(),
		Fan:             cfg.FanConfig(),
		InitialSetpoint: cfg.Setpoint(),
	}, clock)

	// Status tracker (before STARTUP so a snapshot is available)
	start := time.Now()
	bootID := status.NewBootID()
	tracker := status.NewTracker(start, bootID, status.Config{
		PollMs:      cfg.Sensors.Poll.Duration().Milliseconds(),
		ControlMs:   cfg.Control.Interval.Duration().Milliseconds(),
		DebounceMs:  cfg.Control.Debounce.Duration().Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Duration().Milliseconds(),
		MinRunS:     int64(cfg.Control.MinRun.Duration().Seconds()),
		MinRestS:    int64(cfg.Control.MinRest.Duration().Seconds()),
		Broker:      cfg.MQTT.Broker,
		SwitchTopic: cfg.MQTT.SwitchTopic,
		HTTPPort:    cfg.HTTP.Addr,
		DataDir:     cfg.Storage.DataDir,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	m := metrics.New()
	commands := make(chan control.Command, commandQueue)
	connection := make(chan bool, 4)

	// MQTT
	publisher, mqttStatus := connectMQTT(cfg, bootID, commands, connection)
	defer publisher.Close()

	// Storage
	var logger *datalog.Logger
	if cfg.Storage.DataDir != "" {
		logger = datalog.New(cfg.Storage.DataDir, cfg.Storage.SaveInterval.Duration())
		if err := logger.Check(); err != nil {
			log.Warn().Err(err).Msg("data log not ready")
		}
	}
	var store *history.Store
	if cfg.Storage.HistoryPath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err = history.Open(ctx, cfg.Storage.HistoryPath, cfg.Storage.HistoryMaxRows)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("history disabled")
			store = nil
		} else {
			defer store.Close()
		}
	}

	nowMs := control.MonotonicMillis(start)
	d := &daemon{
		ctrl:       ctrl,
		hw:         hw,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		metrics:    m,
		datalog:    logger,
		watchdog: sensor.NewPowerWatchdog(sensor.PowerWatchdogConfig{
			Timeout: cfg.Sensors.PowerTimeout.Duration(),
			OffFor:  cfg.Sensors.PowerOff.Duration(),
		}, nowMs()),
		debouncer: button.NewDebouncer(cfg.Control.Debounce.Duration()),
		nowMs:     nowMs,
		now:       time.Now,
	}
	if store != nil {
		d.history = store
	}
	if cfg.MQTT.Enabled && cfg.MQTT.SwitchTopic != "" {
		d.refresher = mqtt.NewSwitchRefresher(cfg.MQTT.SwitchRefresh.Duration())
	}

	// HTTP status server
	if cfg.HTTP.Addr != "" {
		opts := web.Options{Metrics: m.Handler(), Commands: commands}
		if store != nil {
			opts.History = store
		}
		srv := web.New(cfg.HTTP.Addr, tracker, opts)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration())
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	d.startup()

	log.Info().
		Dur("poll", cfg.Sensors.Poll.Duration()).
		Dur("control", cfg.Control.Interval.Duration()).
		Dur("min_run", cfg.Control.MinRun.Duration()).
		Dur("min_rest", cfg.Control.MinRest.Duration()).
		Str("setpoint", cfg.Setpoint().String()).
		Msg("started")

	controlTicker := time.NewTicker(cfg.Control.Interval.Duration())
	defer controlTicker.Stop()
	sampleTicker := time.NewTicker(cfg.Sensors.Poll.Duration())
	defer sampleTicker.Stop()
	archiveTicker := time.NewTicker(cfg.Storage.SaveInterval.Duration())
	defer archiveTicker.Stop()

	in := loopInputs{
		control:    controlTicker.C,
		sample:     sampleTicker.C,
		archive:    archiveTicker.C,
		commands:   commands,
		connection: connection,
	}
	if hw.button != nil {
		t := time.NewTicker(cfg.Control.ButtonPoll.Duration())
		defer t.Stop()
		in.button = t.C
	}
	if hb := cfg.Heartbeat.Duration(); hb > 0 {
		t := time.NewTicker(hb)
		defer t.Stop()
		in.heartbeat = t.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	in.sig = sigCh

	return runLoop(d, in)
}

// connectMQTT returns mqtt.Discard when MQTT is disabled or unreachable; the
// fan keeps working without a broker.
func connectMQTT(cfg *config.Config, bootID string, commands chan<- control.Command, connection chan<- bool) (mqtt.Publisher, mqtt.ConnectionStatus) {
	if !cfg.MQTT.Enabled {
		log.Info().Msg("mqtt disabled")
		return mqtt.Discard, nil
	}
	pub, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		Topics:         mqtt.NewTopics(cfg.MQTT.TopicPrefix),
		SwitchTopic:    cfg.MQTT.SwitchTopic,
		SwitchPayloads: mqtt.SwitchPayloads{On: cfg.MQTT.SwitchOn, Off: cfg.MQTT.SwitchOff},
		WillPayload:    mqtt.FormatWillPayload(bootID, time.Now()),
		BufferSize:     cfg.MQTT.BufferSize,
		ConnectRetries: uint64(max(cfg.MQTT.ConnectRetries, 0)),
		ConnectTimeout: cfg.MQTT.ConnectTimeout.Duration(),
		OnCommand: func(payload string) {
			cmd, err := control.ParseCommand(payload, "mqtt")
			if err != nil {
				log.Warn().Err(err).Msg("ignoring mqtt command")
				return
			}
			select {
			case commands <- cmd:
			default:
				log.Warn().Str("command", cmd.Kind.String()).Msg("command queue full, dropping mqtt command")
			}
		},
		OnConnectionChange: func(up bool) {
			select {
			case connection <- up:
			default:
			}
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("mqtt unavailable, continuing without it")
		return mqtt.Discard, nil
	}
	return pub, pub
}

// printSensorState reads each probe once and prints the resulting verdict.
func printSensorState(w io.Writer, hw *hardware, th policy.Thresholds) error {
	read := func(name string, r sensor.Reader) fusion.ProbeAverage {
		s, err := sensor.ReadOrBad(r)
		if err != nil {
			fmt.Fprintf(w, "%s: read failed: %v\n", name, err)
		}
		p := fusion.NewProbe(1)
		p.Push(s)
		avg := p.Average()
		if avg.Valid() {
			fmt.Fprintf(w, "%s: %.1f°C %.1f%% dew point %.1f°C\n", name, avg.Temperature, avg.Humidity, avg.DewPoint)
		}
		return avg
	}
	inner := read("indoor", hw.indoor)
	outer := read("outdoor", hw.outdoor)
	v := policy.Decide(inner, outer, th)
	fmt.Fprintf(w, "verdict: %s (%s)\n", v, v.Description())
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
