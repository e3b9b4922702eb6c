package main

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/dewpoint-fan/internal/config"
	"github.com/sweeney/dewpoint-fan/internal/fusion"
	"github.com/sweeney/dewpoint-fan/internal/gpio"
	"github.com/sweeney/dewpoint-fan/internal/sensor"
)

// hardware bundles the lines and probes the daemon drives. power and button
// are nil when their pin is disabled.
type hardware struct {
	fan     gpio.Switch
	power   gpio.Switch
	button  gpio.Input
	indoor  sensor.Reader
	outdoor sensor.Reader
}

func openHardware(cfg *config.Config) (*hardware, error) {
	hw := &hardware{}
	if err := hw.openGPIO(cfg.GPIO); err != nil {
		hw.Close()
		return nil, err
	}
	if err := hw.openSensors(cfg.Sensors); err != nil {
		hw.Close()
		return nil, err
	}
	if hw.power != nil {
		if err := hw.power.Set(true); err != nil {
			hw.Close()
			return nil, fmt.Errorf("power sensors: %w", err)
		}
	}
	return hw, nil
}

func (hw *hardware) openGPIO(cfg config.GPIOConfig) error {
	if cfg.Fake {
		log.Warn().Msg("using fake gpio lines")
		hw.fan = &gpio.FakeSwitch{}
		if cfg.PowerPin >= 0 {
			hw.power = &gpio.FakeSwitch{}
		}
		if cfg.ButtonPin >= 0 {
			hw.button = gpio.NewFakeInput(nil)
		}
		return nil
	}

	fan, err := gpio.NewRealSwitch(cfg.Chip, cfg.FanPin, cfg.FanActiveLow)
	if err != nil {
		return fmt.Errorf("init fan relay: %w", err)
	}
	hw.fan = fan

	if cfg.PowerPin >= 0 {
		power, err := gpio.NewRealSwitch(cfg.Chip, cfg.PowerPin, false)
		if err != nil {
			return fmt.Errorf("init sensor power: %w", err)
		}
		hw.power = power
	}
	if cfg.ButtonPin >= 0 {
		in, err := gpio.NewRealInput(cfg.Chip, cfg.ButtonPin)
		if err != nil {
			return fmt.Errorf("init mode button: %w", err)
		}
		hw.button = in
	}
	return nil
}

func (hw *hardware) openSensors(cfg config.SensorsConfig) error {
	if cfg.Fake {
		log.Warn().Msg("using fake sensors")
		hw.indoor = sensor.NewFakeReader(fusion.Sample{Temperature: 20, Humidity: 70})
		hw.outdoor = sensor.NewFakeReader(fusion.Sample{Temperature: 12, Humidity: 60})
		return nil
	}
	in, err := sensor.NewIIOReader(cfg.Indoor)
	if err != nil {
		return fmt.Errorf("init indoor sensor: %w", err)
	}
	out, err := sensor.NewIIOReader(cfg.Outdoor)
	if err != nil {
		return fmt.Errorf("init outdoor sensor: %w", err)
	}
	hw.indoor, hw.outdoor = in, out
	return nil
}

// Close releases the lines. The fan relay is driven off first.
func (hw *hardware) Close() {
	if hw.fan != nil {
		if err := hw.fan.Set(false); err != nil {
			log.Error().Err(err).Msg("failed to switch fan relay off")
		}
		if err := hw.fan.Close(); err != nil {
			log.Error().Err(err).Msg("failed to release fan relay line")
		}
	}
	if hw.power != nil {
		if err := hw.power.Close(); err != nil {
			log.Error().Err(err).Msg("failed to release sensor power line")
		}
	}
	if hw.button != nil {
		if err := hw.button.Close(); err != nil {
			log.Error().Err(err).Msg("failed to release button line")
		}
	}
}
