// Package actuator holds the bounded pulse-width state of one ESC or servo and
// the pure transition function that maps operator commands onto it.
package actuator

import (
	"pwm-actuator/internal/types"
)

// Actuator owns the current pulse width. It never touches hardware; callers
// write the returned value to their output.
type Actuator struct {
	cfg     Config
	current types.PulseWidth
}

func New(cfg Config) (*Actuator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Actuator{cfg: cfg, current: cfg.NeutralPulse}, nil
}

func (a *Actuator) Config() Config {
	return a.cfg
}

func (a *Actuator) Current() types.PulseWidth {
	return a.current
}

// Reset returns the actuator to neutral, e.g. after a calibration run.
func (a *Actuator) Reset() types.PulseWidth {
	a.current = a.cfg.NeutralPulse
	return a.current
}

// Apply runs one command through the transition table. Moves that would leave
// the bounds are refused with AtLimit and leave the state untouched.
func (a *Actuator) Apply(cmd types.Command) (types.PulseWidth, types.Feedback) {
	switch cmd.Kind {
	case types.CmdIncreaseCW:
		return a.move(-a.cfg.Step * types.PulseWidth(a.cfg.DirectionSign))
	case types.CmdIncreaseCCW:
		return a.move(a.cfg.Step * types.PulseWidth(a.cfg.DirectionSign))
	case types.CmdStop:
		a.current = a.cfg.NeutralPulse
		return a.current, types.Stopped
	case types.CmdQuit:
		a.current = a.cfg.NeutralPulse
		return a.current, types.Terminate
	default:
		return a.current, types.Rejected(cmd.Char)
	}
}

func (a *Actuator) move(delta types.PulseWidth) (types.PulseWidth, types.Feedback) {
	if (delta < 0 && a.current <= a.cfg.MinPulse) || (delta > 0 && a.current >= a.cfg.MaxPulse) {
		return a.current, types.AtLimit
	}
	a.current = (a.current + delta).Clamp(a.cfg.MinPulse, a.cfg.MaxPulse)
	return a.current, types.Moved
}
