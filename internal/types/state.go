package types

import "time"

// Mode selects where the control loop routes incoming commands.
type Mode string

const (
	ModeManual      Mode = "manual"
	ModeCalibrating Mode = "calibrating"
	ModeSweeping    Mode = "sweeping"
	ModeStopped     Mode = "stopped"
)

// Status is what reporters receive after every command or phase change.
type Status struct {
	Mode     Mode
	Pulse    PulseWidth
	Micros   int
	Feedback Feedback
	Phase    CalibrationPhase
	Message  string
	Time     time.Time
}
