package fsm

import (
	"github.com/librescoot/librefsm"

	"pwm-actuator/internal/types"
)

// Calibration states. The phase substates share their IDs with
// types.CalibrationPhase so they convert without a lookup table.
const (
	StateIdle        librefsm.StateID = "idle"
	StateCalibrating librefsm.StateID = "calibrating"

	StateAwaitDisconnect librefsm.StateID = librefsm.StateID(types.PhaseAwaitDisconnect)
	StateSetMax          librefsm.StateID = librefsm.StateID(types.PhaseSetMax)
	StateAwaitConnect    librefsm.StateID = librefsm.StateID(types.PhaseAwaitConnect)
	StateSetMin          librefsm.StateID = librefsm.StateID(types.PhaseSetMin)
	StateSetNeutral      librefsm.StateID = librefsm.StateID(types.PhaseSetNeutral)
	StateDone            librefsm.StateID = librefsm.StateID(types.PhaseDone)
)

// Calibration events
const (
	// Operator commands
	EvBegin   librefsm.EventID = "begin"
	EvConfirm librefsm.EventID = "confirm"
	EvAbort   librefsm.EventID = "abort"

	// Timer events
	EvPhaseElapsed librefsm.EventID = "phase-elapsed"
)

// PhaseState maps a phase onto its machine state.
func PhaseState(p types.CalibrationPhase) librefsm.StateID {
	if p == types.PhaseIdle {
		return StateIdle
	}
	return librefsm.StateID(p)
}

// StatePhase maps a machine state back onto a phase. Idle and the parent
// state both report PhaseIdle.
func StatePhase(id librefsm.StateID) types.CalibrationPhase {
	for _, p := range types.CalibrationPhases {
		if librefsm.StateID(p) == id {
			return p
		}
	}
	return types.PhaseIdle
}
