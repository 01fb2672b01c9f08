package core

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"pwm-actuator/internal/actuator"
	"pwm-actuator/internal/hardware"
	"pwm-actuator/internal/logger"
	"pwm-actuator/internal/types"
)

// Sweep defaults of the servo test rig.
const (
	DefaultStepDelay  = 20 * time.Millisecond
	DefaultSweepPause = time.Second
)

type SweepOptions struct {
	Channel  hardware.ChannelConfig
	Actuator actuator.Config

	StepDelay time.Duration
	Pause     time.Duration
	// Cycles is the number of up-and-down passes; zero sweeps until cancelled.
	Cycles int

	Clock     clock.Clock
	Reporters []Reporter
}

// Sweeper moves a servo back and forth across its whole range, one tick at a time.
type Sweeper struct {
	out    PulseOutput
	opts   SweepOptions
	logger *logger.Logger
	last   types.PulseWidth
}

func NewSweeper(out PulseOutput, opts SweepOptions, l *logger.Logger) (*Sweeper, error) {
	if err := opts.Channel.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Actuator.Validate(); err != nil {
		return nil, err
	}
	if opts.StepDelay <= 0 {
		opts.StepDelay = DefaultStepDelay
	}
	if opts.Pause < 0 {
		opts.Pause = 0
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Sweeper{out: out, opts: opts, logger: l}, nil
}

// Start configures the output and parks it at neutral.
func (s *Sweeper) Start() error {
	if err := s.out.Configure(s.opts.Channel); err != nil {
		return fmt.Errorf("failed to configure output: %w", err)
	}
	return s.write(s.opts.Actuator.NeutralPulse)
}

// Run sweeps min to max and back until ctx is cancelled or the configured
// cycles are done, then returns to neutral.
func (s *Sweeper) Run(ctx context.Context) error {
	cfg := s.opts.Actuator
	legs := [][2]types.PulseWidth{
		{cfg.MinPulse, cfg.MaxPulse},
		{cfg.MaxPulse, cfg.MinPulse},
	}

	for cycle := 0; s.opts.Cycles == 0 || cycle < s.opts.Cycles; cycle++ {
		for _, leg := range legs {
			s.status(fmt.Sprintf("Moving from %dµs to %dµs...", s.micros(leg[0]), s.micros(leg[1])))
			for _, pulse := range actuator.SweepPlan(leg[0], leg[1]) {
				if err := s.write(pulse); err != nil {
					return err
				}
				if !s.sleep(ctx, s.opts.StepDelay) {
					return s.finish()
				}
			}
			if !s.sleep(ctx, s.opts.Pause) {
				return s.finish()
			}
		}
	}
	return s.finish()
}

func (s *Sweeper) Close() error {
	return s.out.Close()
}

// Last returns the most recently written pulse.
func (s *Sweeper) Last() types.PulseWidth {
	return s.last
}

func (s *Sweeper) write(p types.PulseWidth) error {
	if err := s.out.Write(p); err != nil {
		return fmt.Errorf("failed to write pulse %d: %w", p, err)
	}
	s.last = p
	return nil
}

func (s *Sweeper) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := s.opts.Clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Sweeper) finish() error {
	s.logger.Infof("Sweep stopped, returning to neutral")
	if err := s.write(s.opts.Actuator.NeutralPulse); err != nil {
		return err
	}
	s.status("")
	return nil
}

func (s *Sweeper) status(msg string) {
	st := types.Status{
		Mode:    types.ModeSweeping,
		Pulse:   s.last,
		Micros:  s.micros(s.last),
		Message: msg,
		Time:    s.opts.Clock.Now(),
	}
	if msg == "" {
		st.Mode = types.ModeStopped
	}
	for _, r := range s.opts.Reporters {
		r.Report(st)
	}
}

func (s *Sweeper) micros(p types.PulseWidth) int {
	return p.MicrosWithTick(s.opts.Channel.Tick())
}
