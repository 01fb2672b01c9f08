package hardware

import (
	"time"

	"github.com/benbjohnson/clock"

	"pwm-actuator/internal/types"
)

// Settled blocks for a fixed delay after each successful write. This is the
// only rate limit on the output: one write per settle period at most.
type Settled struct {
	PulseOutput
	clock clock.Clock
	delay time.Duration
}

func NewSettled(out PulseOutput, delay time.Duration, clk clock.Clock) *Settled {
	if clk == nil {
		clk = clock.New()
	}
	return &Settled{PulseOutput: out, clock: clk, delay: delay}
}

func (s *Settled) Write(pulse types.PulseWidth) error {
	if err := s.PulseOutput.Write(pulse); err != nil {
		return err
	}
	if s.delay > 0 {
		s.clock.Sleep(s.delay)
	}
	return nil
}
