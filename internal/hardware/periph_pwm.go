package hardware

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"pwm-actuator/internal/logger"
	"pwm-actuator/internal/types"
)

// PeriphPWM drives a pin through periph.io, which picks the board's hardware
// PWM (or DMA) driver for the named pin.
type PeriphPWM struct {
	logger *logger.Logger

	mu   sync.Mutex
	cfg  ChannelConfig
	pin  gpio.PinIO
	freq physic.Frequency
}

func NewPeriphPWM(l *logger.Logger) *PeriphPWM {
	return &PeriphPWM{logger: l.WithTag("periph-pwm")}
}

// frameFrequency is the PWM frequency matching the channel's frame length.
func frameFrequency(cfg ChannelConfig) physic.Frequency {
	return physic.Frequency(BaseClockHz) * physic.Hertz / physic.Frequency(cfg.ClockDivisor*cfg.Range)
}

// pulseDuty expresses a pulse width as a fraction of the frame.
func pulseDuty(cfg ChannelConfig, pulse types.PulseWidth) gpio.Duty {
	return gpio.Duty(int64(gpio.DutyMax) * int64(pulse) / int64(cfg.Range))
}

func (p *PeriphPWM) Configure(cfg ChannelConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInit, err)
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("%w: periph host init: %v", ErrInit, err)
	}
	pin := gpioreg.ByName(cfg.Pin)
	if pin == nil {
		return fmt.Errorf("%w: unknown pin %q", ErrInit, cfg.Pin)
	}

	p.cfg = cfg
	p.pin = pin
	p.freq = frameFrequency(cfg)
	p.logger.Infof("Configured %s: %s frame, %v tick", pin.Name(), p.freq, cfg.Tick())
	return nil
}

func (p *PeriphPWM) Write(pulse types.PulseWidth) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pin == nil {
		return fmt.Errorf("pwm pin not configured")
	}
	if err := p.cfg.checkPulse(pulse); err != nil {
		return err
	}
	duty := pulseDuty(p.cfg, pulse)
	if err := p.pin.PWM(duty, p.freq); err != nil {
		return fmt.Errorf("failed to set PWM on %s: %w", p.pin.Name(), err)
	}
	p.logger.Debugf("%s duty=%s (pulse %d)", p.pin.Name(), duty, pulse)
	return nil
}

func (p *PeriphPWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pin == nil {
		return nil
	}
	err := p.pin.Halt()
	p.pin = nil
	return err
}
