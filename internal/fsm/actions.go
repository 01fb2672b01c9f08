package fsm

import (
	"fmt"
	"time"

	"github.com/librescoot/librefsm"

	"pwm-actuator/internal/types"
)

// Actions is implemented by the calibration sequencer. The machine calls it on
// phase entry and when a run is aborted.
type Actions interface {
	// EnterPhase writes the phase's target pulse, if it has one, and prompts
	// the operator.
	EnterPhase(c *librefsm.Context, phase types.CalibrationPhase) error
	EnterDone(c *librefsm.Context) error

	OnAbort(c *librefsm.Context) error
}

// PhaseStep says how a phase is left: after Wait, or on an operator confirm.
type PhaseStep struct {
	Wait    time.Duration
	Confirm bool
}

func (s PhaseStep) String() string {
	if s.Confirm {
		return "confirm"
	}
	return s.Wait.String()
}

// Policy assigns a step to every phase before Done.
type Policy map[types.CalibrationPhase]PhaseStep

// Timing of the unattended sequence.
const (
	DisconnectWait = 10 * time.Second
	MaxSettle      = 2 * time.Second
	ConnectWait    = 7 * time.Second // 5s to plug the battery in, 2s ESC init
	MinSettle      = 2 * time.Second
	NeutralSettle  = 2 * time.Second
)

// TimedPolicy advances every phase on a fixed delay.
func TimedPolicy() Policy {
	return Policy{
		types.PhaseAwaitDisconnect: {Wait: DisconnectWait},
		types.PhaseSetMax:          {Wait: MaxSettle},
		types.PhaseAwaitConnect:    {Wait: ConnectWait},
		types.PhaseSetMin:          {Wait: MinSettle},
		types.PhaseSetNeutral:      {Wait: NeutralSettle},
	}
}

// ConfirmedPolicy holds every phase until the operator confirms it.
func ConfirmedPolicy() Policy {
	p := Policy{}
	for _, phase := range types.CalibrationPhases {
		if phase != types.PhaseDone {
			p[phase] = PhaseStep{Confirm: true}
		}
	}
	return p
}

// PolicyByName resolves the -calibration flag.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "timed":
		return TimedPolicy(), nil
	case "confirmed":
		return ConfirmedPolicy(), nil
	}
	return nil, fmt.Errorf("unknown calibration policy %q", name)
}

func (p Policy) Validate() error {
	for _, phase := range types.CalibrationPhases {
		if phase == types.PhaseDone {
			continue
		}
		step, ok := p[phase]
		if !ok {
			return fmt.Errorf("calibration policy has no step for %s", phase)
		}
		if !step.Confirm && step.Wait <= 0 {
			return fmt.Errorf("calibration phase %s needs a positive wait or confirm", phase)
		}
	}
	return nil
}
