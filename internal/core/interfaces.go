package core

import (
	"sync"

	"pwm-actuator/internal/hardware"
	"pwm-actuator/internal/types"
)

// PulseOutput defines the PWM channel operations needed by the control loop
type PulseOutput interface {
	Configure(cfg hardware.ChannelConfig) error
	Write(pulse types.PulseWidth) error
	Close() error
}

// CommandSource hands over the next operator command, if any, without blocking
type CommandSource interface {
	Poll() (types.Command, bool)
}

// Reporter receives a status after every command and calibration phase change
type Reporter interface {
	Report(status types.Status)
}

// guardedOutput serializes writes from the loop and the calibration machine,
// which runs on its own goroutine.
type guardedOutput struct {
	mu     sync.Mutex
	out    PulseOutput
	last   types.PulseWidth
	writes int
}

func (g *guardedOutput) Write(pulse types.PulseWidth) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.out.Write(pulse); err != nil {
		return err
	}
	g.last = pulse
	g.writes++
	return nil
}

func (g *guardedOutput) Last() types.PulseWidth {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}
