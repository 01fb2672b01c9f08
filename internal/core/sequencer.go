package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/librescoot/librefsm"

	"pwm-actuator/internal/actuator"
	"pwm-actuator/internal/fsm"
	"pwm-actuator/internal/logger"
	"pwm-actuator/internal/types"
)

var (
	ErrCalibrationActive   = errors.New("calibration already running")
	ErrCalibrationInactive = errors.New("no calibration running")
	ErrNotStarted          = errors.New("calibration machine not started")
)

// calibrationMachine is the part of the built librefsm machine the sequencer drives.
type calibrationMachine interface {
	Start(ctx context.Context) error
	SendSync(ev librefsm.Event) error
}

type pulseWriter interface {
	Write(pulse types.PulseWidth) error
}

// PhaseNotice is emitted on every phase entry, on completion and on abort.
type PhaseNotice struct {
	Phase   types.CalibrationPhase
	Pulse   types.PulseWidth
	Wrote   bool
	Prompt  string
	Aborted bool
	Err     error
}

// CalibrationSequencer walks an ESC through endpoint learning. Phase entry
// actions run on the machine's goroutine and reach the control loop only
// through Notices.
type CalibrationSequencer struct {
	out     pulseWriter
	cfg     actuator.Config
	policy  fsm.Policy
	logger  *logger.Logger
	machine calibrationMachine
	notices chan PhaseNotice

	mu      sync.Mutex
	phase   types.CalibrationPhase
	history []types.CalibrationPhase
}

func NewCalibrationSequencer(out pulseWriter, cfg actuator.Config, policy fsm.Policy, l *logger.Logger) (*CalibrationSequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &CalibrationSequencer{
		out:     out,
		cfg:     cfg,
		policy:  policy,
		logger:  l,
		notices: make(chan PhaseNotice, len(types.CalibrationPhases)+2),
	}, nil
}

// Start builds and starts the librefsm machine. It stays idle until Begin.
func (s *CalibrationSequencer) Start(ctx context.Context) error {
	def := fsm.NewDefinition(s, s.policy)
	machine, err := def.Build()
	if err != nil {
		return fmt.Errorf("failed to build calibration machine: %w", err)
	}

	// CurrentState must not be called from here, so the phase is tracked locally
	machine.OnStateChange(func(from, to librefsm.StateID) {
		s.mu.Lock()
		s.phase = fsm.StatePhase(to)
		s.mu.Unlock()
		s.logger.Debugf("Calibration transition: %s -> %s", from, to)
	})

	if err := machine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start calibration machine: %w", err)
	}
	s.machine = machine
	return nil
}

// Notices delivers phase changes to the control loop.
func (s *CalibrationSequencer) Notices() <-chan PhaseNotice {
	return s.notices
}

// Begin starts a run from AwaitDisconnect, also after a completed run.
func (s *CalibrationSequencer) Begin() error {
	if s.machine == nil {
		return ErrNotStarted
	}
	if s.Active() {
		return ErrCalibrationActive
	}
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()

	s.logger.Infof("Starting ESC calibration")
	return s.machine.SendSync(librefsm.Event{ID: fsm.EvBegin})
}

// Confirm advances a phase that waits for the operator. It reports false when
// the current phase is timed or no run is active; the event is then dropped.
func (s *CalibrationSequencer) Confirm() (bool, error) {
	if s.machine == nil {
		return false, ErrNotStarted
	}
	phase := s.Phase()
	step, ok := s.policy[phase]
	if !ok || !step.Confirm {
		s.logger.Debugf("Ignoring confirm in phase %q", phase)
		return false, nil
	}
	if err := s.machine.SendSync(librefsm.Event{ID: fsm.EvConfirm}); err != nil {
		return false, err
	}
	return true, nil
}

// Abort stops a running calibration and returns the output to neutral.
func (s *CalibrationSequencer) Abort() error {
	if s.machine == nil {
		return ErrNotStarted
	}
	if !s.Active() {
		return ErrCalibrationInactive
	}
	return s.machine.SendSync(librefsm.Event{ID: fsm.EvAbort})
}

// Phase returns the phase the machine is in. Idle before the first run.
func (s *CalibrationSequencer) Phase() types.CalibrationPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *CalibrationSequencer) Active() bool {
	p := s.Phase()
	return p != types.PhaseIdle && p != types.PhaseDone
}

// History lists the phases entered during the current or last run.
func (s *CalibrationSequencer) History() []types.CalibrationPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.CalibrationPhase(nil), s.history...)
}

// === fsm.Actions ===

func (s *CalibrationSequencer) EnterPhase(c *librefsm.Context, phase types.CalibrationPhase) error {
	s.logger.Debugf("FSM: EnterPhase %s", phase)

	s.mu.Lock()
	s.phase = phase
	s.history = append(s.history, phase)
	s.mu.Unlock()

	n := PhaseNotice{Phase: phase, Prompt: s.prompt(phase)}
	if target, ok := s.target(phase); ok {
		n.Pulse = target
		if err := s.out.Write(target); err != nil {
			n.Err = fmt.Errorf("calibration phase %s: %w", phase, err)
			s.notify(n)
			return n.Err
		}
		n.Wrote = true
		s.logger.Infof("Calibration %s: pulse %d", phase, target)
	}
	s.notify(n)
	return nil
}

func (s *CalibrationSequencer) EnterDone(c *librefsm.Context) error {
	s.logger.Debugf("FSM: EnterDone")

	s.mu.Lock()
	s.phase = types.PhaseDone
	s.history = append(s.history, types.PhaseDone)
	s.mu.Unlock()

	s.notify(PhaseNotice{
		Phase:  types.PhaseDone,
		Pulse:  s.cfg.NeutralPulse,
		Prompt: "Calibration complete. The ESC is now ready for bidirectional operation.",
	})
	return nil
}

func (s *CalibrationSequencer) OnAbort(c *librefsm.Context) error {
	s.logger.Warnf("Calibration aborted in %s", fsm.StatePhase(c.FromState))

	s.mu.Lock()
	s.phase = types.PhaseIdle
	s.mu.Unlock()

	n := PhaseNotice{Phase: types.PhaseIdle, Pulse: s.cfg.NeutralPulse, Aborted: true}
	if err := s.out.Write(s.cfg.NeutralPulse); err != nil {
		n.Err = fmt.Errorf("calibration abort: %w", err)
	} else {
		n.Wrote = true
	}
	n.Prompt = "Calibration aborted. Throttle at neutral."
	s.notify(n)
	return n.Err
}

func (s *CalibrationSequencer) target(phase types.CalibrationPhase) (types.PulseWidth, bool) {
	switch phase {
	case types.PhaseSetMax:
		return s.cfg.MaxPulse, true
	case types.PhaseSetMin:
		return s.cfg.MinPulse, true
	case types.PhaseSetNeutral:
		return s.cfg.NeutralPulse, true
	}
	return 0, false
}

func (s *CalibrationSequencer) prompt(phase types.CalibrationPhase) string {
	step := s.policy[phase]
	var msg string
	switch phase {
	case types.PhaseAwaitDisconnect:
		if step.Confirm {
			return "Starting ESC calibration...\n1. Disconnect the battery from the ESC and press any key to continue."
		}
		return fmt.Sprintf("Starting ESC calibration...\nPlease disconnect the battery from the ESC.\nWaiting %s for battery disconnection...", step.Wait)
	case types.PhaseSetMax:
		msg = "Setting maximum pulse width..."
	case types.PhaseAwaitConnect:
		if step.Confirm {
			return "2. Connect the battery to the ESC. You should hear two beeps. Press any key to continue."
		}
		return fmt.Sprintf("Please connect the battery to the ESC now.\nProceeding with calibration in %s...", step.Wait)
	case types.PhaseSetMin:
		if step.Confirm {
			return "Setting minimum pulse width...\n3. You should hear a confirming tone. Press any key to continue."
		}
		msg = "Battery assumed connected. Continuing calibration...\nSetting minimum pulse width..."
	case types.PhaseSetNeutral:
		msg = "Setting neutral pulse width..."
	}
	if step.Confirm {
		msg += " Press any key to continue."
	}
	return msg
}

// notify never blocks the machine; a full queue means the loop has stopped
// draining, and the oldest notice is discarded.
func (s *CalibrationSequencer) notify(n PhaseNotice) {
	for {
		select {
		case s.notices <- n:
			return
		default:
		}
		select {
		case old := <-s.notices:
			s.logger.Warnf("Dropping calibration notice for %s", old.Phase)
		default:
		}
	}
}
