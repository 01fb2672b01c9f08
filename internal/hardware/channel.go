package hardware

import (
	"errors"
	"fmt"
	"time"

	"pwm-actuator/internal/types"
)

// ErrInit marks a channel that could not be brought up. It is never retried.
var ErrInit = errors.New("pwm channel initialization failed")

type PWMMode int

const (
	ModeMarkSpace PWMMode = iota
	ModeBalanced
)

func (m PWMMode) String() string {
	switch m {
	case ModeMarkSpace:
		return "mark-space"
	case ModeBalanced:
		return "balanced"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParsePWMMode(s string) (PWMMode, error) {
	switch s {
	case "ms", "mark-space":
		return ModeMarkSpace, nil
	case "bal", "balanced":
		return ModeBalanced, nil
	}
	return 0, fmt.Errorf("unknown PWM mode %q", s)
}

// ChannelConfig describes one PWM channel. Chip and Channel address it through
// sysfs, Pin through periph.io.
type ChannelConfig struct {
	Chip         int
	Channel      int
	Pin          string
	ClockDivisor int
	Range        int
	Mode         PWMMode
}

func (c ChannelConfig) Validate() error {
	if c.ClockDivisor <= 0 {
		return fmt.Errorf("clock divisor must be positive, got %d", c.ClockDivisor)
	}
	if c.Range <= 0 {
		return fmt.Errorf("range must be positive, got %d", c.Range)
	}
	return nil
}

// Tick is the length of one pulse-width unit.
func (c ChannelConfig) Tick() time.Duration {
	return time.Duration(c.ClockDivisor) * time.Second / BaseClockHz
}

// Period is the frame length, Range ticks long.
func (c ChannelConfig) Period() time.Duration {
	return c.Tick() * time.Duration(c.Range)
}

// Duration converts a pulse width on this channel to wall time.
func (c ChannelConfig) Duration(p types.PulseWidth) time.Duration {
	return c.Tick() * time.Duration(p)
}

func (c ChannelConfig) checkPulse(p types.PulseWidth) error {
	if p < 0 || int(p) > c.Range {
		return fmt.Errorf("pulse %d outside channel range [0, %d]", p, c.Range)
	}
	return nil
}

// PulseOutput is one configured PWM channel.
type PulseOutput interface {
	Configure(cfg ChannelConfig) error
	Write(pulse types.PulseWidth) error
	Close() error
}
