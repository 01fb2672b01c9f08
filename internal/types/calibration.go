package types

// CalibrationPhase is one step of the ESC endpoint-learning sequence.
type CalibrationPhase string

const (
	PhaseIdle            CalibrationPhase = ""
	PhaseAwaitDisconnect CalibrationPhase = "await-disconnect"
	PhaseSetMax          CalibrationPhase = "set-max"
	PhaseAwaitConnect    CalibrationPhase = "await-connect"
	PhaseSetMin          CalibrationPhase = "set-min"
	PhaseSetNeutral      CalibrationPhase = "set-neutral"
	PhaseDone            CalibrationPhase = "done"
)

// CalibrationPhases lists the phases in the only order they may run.
var CalibrationPhases = []CalibrationPhase{
	PhaseAwaitDisconnect,
	PhaseSetMax,
	PhaseAwaitConnect,
	PhaseSetMin,
	PhaseSetNeutral,
	PhaseDone,
}

// Next returns the phase that follows p. Done and Idle have no successor.
func (p CalibrationPhase) Next() (CalibrationPhase, bool) {
	for i, ph := range CalibrationPhases {
		if ph == p && i+1 < len(CalibrationPhases) {
			return CalibrationPhases[i+1], true
		}
	}
	return PhaseIdle, false
}
