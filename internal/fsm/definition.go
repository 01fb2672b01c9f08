package fsm

import (
	"github.com/librescoot/librefsm"

	"pwm-actuator/internal/types"
)

// NewDefinition creates the calibration FSM definition. The phases form a
// single chain under the calibrating parent; each one is left either by its
// timeout or by a confirm event, never both, so a stray keypress cannot skip a
// timed phase.
func NewDefinition(actions Actions, policy Policy) *librefsm.Definition {
	def := librefsm.NewDefinition().
		State(StateIdle).
		State(StateCalibrating).
		State(StateDone,
			librefsm.WithOnEnter(actions.EnterDone),
		)

	for _, phase := range types.CalibrationPhases {
		if phase == types.PhaseDone {
			continue
		}
		phase := phase
		enter := func(c *librefsm.Context) error {
			return actions.EnterPhase(c, phase)
		}
		step := policy[phase]
		if step.Confirm {
			def = def.State(PhaseState(phase),
				librefsm.WithParent(StateCalibrating),
				librefsm.WithOnEnter(enter),
			)
		} else {
			def = def.State(PhaseState(phase),
				librefsm.WithParent(StateCalibrating),
				librefsm.WithTimeout(step.Wait, EvPhaseElapsed),
				librefsm.WithOnEnter(enter),
			)
		}
	}

	// === Transitions ===

	// Every run starts from the beginning, including a repeat after Done.
	def = def.
		Transition(StateIdle, EvBegin, StateAwaitDisconnect).
		Transition(StateDone, EvBegin, StateAwaitDisconnect)

	for _, phase := range types.CalibrationPhases {
		next, ok := phase.Next()
		if !ok {
			continue
		}
		ev := EvPhaseElapsed
		if policy[phase].Confirm {
			ev = EvConfirm
		}
		def = def.Transition(PhaseState(phase), ev, PhaseState(next))
	}

	return def.
		// Abort from any phase (handled by parent)
		Transition(StateCalibrating, EvAbort, StateIdle,
			librefsm.WithAction(actions.OnAbort),
		).
		Initial(StateIdle)
}
