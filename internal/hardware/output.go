package hardware

import (
	"fmt"

	"pwm-actuator/internal/logger"
)

// Output backend names accepted by OpenOutput.
const (
	OutputSysfs  = "sysfs"
	OutputPeriph = "periph"
	OutputDryRun = "dry-run"
)

// OpenOutput returns an unconfigured backend by name.
func OpenOutput(kind string, l *logger.Logger) (PulseOutput, error) {
	switch kind {
	case OutputSysfs:
		return NewSysfsPWM(SysfsPWMRoot, l), nil
	case OutputPeriph:
		return NewPeriphPWM(l), nil
	case OutputDryRun:
		return NewDryRun(l), nil
	}
	return nil, fmt.Errorf("unknown output %q (want %s, %s or %s)", kind, OutputSysfs, OutputPeriph, OutputDryRun)
}
