package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"pwm-actuator/internal/actuator"
	"pwm-actuator/internal/fsm"
	"pwm-actuator/internal/hardware"
	"pwm-actuator/internal/logger"
	"pwm-actuator/internal/types"
)

// DefaultTick is the command polling interval.
const DefaultTick = 10 * time.Millisecond

type Options struct {
	Channel  hardware.ChannelConfig
	Actuator actuator.Config

	// Calibration is the sequencer policy. Nil disables the calibrate command.
	Calibration      fsm.Policy
	CalibrateOnStart bool

	// Banner is reported once the output is at neutral, ahead of any
	// calibration prompt.
	Banner string

	Tick      time.Duration
	Clock     clock.Clock
	Reporters []Reporter
}

// ControlLoop owns the actuator and routes operator commands to it or, while
// calibrating, to the calibration sequencer.
type ControlLoop struct {
	raw    PulseOutput
	out    *guardedOutput
	source CommandSource
	opts   Options
	logger *logger.Logger

	act     *actuator.Actuator
	seq     *CalibrationSequencer
	mode    types.Mode
	started bool
}

func NewControlLoop(out PulseOutput, source CommandSource, opts Options, l *logger.Logger) (*ControlLoop, error) {
	if err := opts.Channel.Validate(); err != nil {
		return nil, err
	}
	act, err := actuator.New(opts.Actuator)
	if err != nil {
		return nil, err
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	loop := &ControlLoop{
		raw:    out,
		out:    &guardedOutput{out: out},
		source: source,
		opts:   opts,
		logger: l,
		act:    act,
		mode:   types.ModeManual,
	}

	if opts.Calibration != nil {
		seq, err := NewCalibrationSequencer(loop.out, opts.Actuator, opts.Calibration, l.WithTag("calibration"))
		if err != nil {
			return nil, fmt.Errorf("invalid calibration setup: %w", err)
		}
		loop.seq = seq
	}
	return loop, nil
}

// Start configures the output and drives it to neutral. Configuration errors
// wrap hardware.ErrInit.
func (l *ControlLoop) Start(ctx context.Context) error {
	if l.started {
		return nil
	}
	if err := l.raw.Configure(l.opts.Channel); err != nil {
		return fmt.Errorf("failed to configure output: %w", err)
	}
	if err := l.out.Write(l.act.Reset()); err != nil {
		return fmt.Errorf("failed to write neutral pulse: %w", err)
	}
	l.logger.Infof("Output configured, pulse at neutral %d (%dµs)", l.act.Current(), l.micros(l.act.Current()))

	if l.seq != nil {
		if err := l.seq.Start(ctx); err != nil {
			return err
		}
	}
	l.started = true

	if l.opts.Banner != "" {
		l.report(types.NoFeedback, l.opts.Banner)
	}
	if l.opts.CalibrateOnStart {
		l.beginCalibration()
	}
	return nil
}

// Run polls the command source every tick until a quit command or context
// cancellation. Both end with a neutral write and a nil error; only output
// failures are returned.
func (l *ControlLoop) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}

	ticker := l.opts.Clock.Ticker(l.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Infof("Interrupted, setting throttle to neutral")
			return l.finish()
		case <-ticker.C:
			done, err := l.Step()
			if err != nil {
				l.logger.Errorf("Control step failed: %v", err)
				return multierr.Append(err, l.finish())
			}
			if done {
				return l.finish()
			}
		}
	}
}

// Step handles pending calibration notices and at most one command. It
// returns true once the operator asked to quit.
func (l *ControlLoop) Step() (bool, error) {
	if err := l.drainNotices(); err != nil {
		return false, err
	}

	cmd, ok := l.source.Poll()
	if !ok {
		return false, nil
	}
	l.logger.Debugf("Command: %+v (mode %s)", cmd, l.mode)

	if l.mode == types.ModeCalibrating {
		return l.handleCalibrating(cmd)
	}
	return l.handleManual(cmd)
}

func (l *ControlLoop) handleManual(cmd types.Command) (bool, error) {
	switch cmd.Kind {
	case types.CmdCalibrate:
		if l.seq == nil {
			l.report(types.NoFeedback, "Calibration is not available for this output.")
			return false, nil
		}
		l.beginCalibration()
		return false, nil
	case types.CmdConfirm:
		l.logger.Debugf("Ignoring confirm outside calibration")
		return false, nil
	}

	prev := l.act.Current()
	pulse, fb := l.act.Apply(cmd)

	var msg string
	switch fb.Kind {
	case types.FeedbackMoved:
		msg = fmt.Sprintf("Setting pulse width to: %dµs", l.micros(pulse))
	case types.FeedbackAtLimit:
		// The bound hit names the direction, whatever the key mapping.
		if pulse <= l.opts.Actuator.MinPulse {
			msg = "Already at maximum CW speed."
		} else {
			msg = "Already at maximum CCW speed."
		}
	case types.FeedbackStopped:
		msg = "Stopped. Motor at neutral position."
	case types.FeedbackTerminate:
		msg = "Quitting. Setting throttle to neutral."
	case types.FeedbackRejected:
		msg = fmt.Sprintf("Unknown command: %c", fb.Char)
		l.logger.Warnf("Unknown command %q", fb.Char)
	}

	if pulse != prev || fb.Kind == types.FeedbackStopped || fb.Kind == types.FeedbackTerminate {
		if err := l.out.Write(pulse); err != nil {
			return false, fmt.Errorf("failed to write pulse %d: %w", pulse, err)
		}
	}
	l.report(fb, msg)

	return fb.Kind == types.FeedbackTerminate, nil
}

func (l *ControlLoop) handleCalibrating(cmd types.Command) (bool, error) {
	if cmd.Kind == types.CmdQuit {
		if err := l.seq.Abort(); err != nil {
			l.logger.Warnf("Failed to abort calibration: %v", err)
		}
		l.act.Reset()
		l.mode = types.ModeManual
		l.report(types.Terminate, "Quitting. Setting throttle to neutral.")
		return true, nil
	}

	ok, err := l.seq.Confirm()
	if err != nil {
		l.logger.Warnf("Calibration confirm failed: %v", err)
		return false, nil
	}
	if !ok {
		l.logger.Debugf("Confirm ignored in phase %s", l.seq.Phase())
	}
	return false, nil
}

func (l *ControlLoop) beginCalibration() {
	if err := l.seq.Begin(); err != nil {
		l.logger.Warnf("Failed to start calibration: %v", err)
		return
	}
	l.mode = types.ModeCalibrating
}

func (l *ControlLoop) drainNotices() error {
	if l.seq == nil {
		return nil
	}
	for {
		select {
		case n := <-l.seq.Notices():
			if err := l.handleNotice(n); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (l *ControlLoop) handleNotice(n PhaseNotice) error {
	if n.Err != nil {
		return n.Err
	}

	switch {
	case n.Aborted:
		l.act.Reset()
		l.mode = types.ModeManual
	case n.Phase == types.PhaseDone:
		l.act.Reset()
		l.mode = types.ModeManual
		l.logger.Infof("Calibration finished: %v", l.seq.History())
	}

	pulse := l.out.Last()
	if n.Wrote {
		pulse = n.Pulse
	}
	l.publish(types.Status{
		Mode:    l.mode,
		Pulse:   pulse,
		Micros:  l.micros(pulse),
		Phase:   n.Phase,
		Message: n.Prompt,
		Time:    l.opts.Clock.Now(),
	})
	return nil
}

// finish leaves the output at neutral.
func (l *ControlLoop) finish() error {
	neutral := l.act.Reset()
	if err := l.out.Write(neutral); err != nil {
		return fmt.Errorf("failed to write neutral pulse: %w", err)
	}
	l.mode = types.ModeStopped
	l.publish(types.Status{
		Mode:   l.mode,
		Pulse:  neutral,
		Micros: l.micros(neutral),
		Time:   l.opts.Clock.Now(),
	})
	return nil
}

// Shutdown closes the command source and the output.
func (l *ControlLoop) Shutdown() error {
	var err error
	if c, ok := l.source.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return multierr.Append(err, l.raw.Close())
}

func (l *ControlLoop) report(fb types.Feedback, msg string) {
	pulse := l.act.Current()
	l.publish(types.Status{
		Mode:     l.mode,
		Pulse:    pulse,
		Micros:   l.micros(pulse),
		Feedback: fb,
		Message:  msg,
		Time:     l.opts.Clock.Now(),
	})
}

func (l *ControlLoop) publish(s types.Status) {
	if l.seq != nil && s.Phase == types.PhaseIdle {
		s.Phase = l.seq.Phase()
	}
	for _, r := range l.opts.Reporters {
		r.Report(s)
	}
}

func (l *ControlLoop) Mode() types.Mode {
	return l.mode
}

func (l *ControlLoop) Current() types.PulseWidth {
	return l.act.Current()
}

func (l *ControlLoop) Sequencer() *CalibrationSequencer {
	return l.seq
}

func (l *ControlLoop) micros(p types.PulseWidth) int {
	return p.MicrosWithTick(l.opts.Channel.Tick())
}
