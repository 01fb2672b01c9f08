package types

import "time"

// PulseWidth is a PWM high time in peripheral ticks.
type PulseWidth int

// DefaultTick is the tick length of the ESC channel setup (19.2 MHz / 192).
const DefaultTick = 10 * time.Microsecond

// Micros converts the width to microseconds using the default tick.
func (p PulseWidth) Micros() int {
	return p.MicrosWithTick(DefaultTick)
}

// MicrosWithTick converts the width to microseconds for an arbitrary tick.
func (p PulseWidth) MicrosWithTick(tick time.Duration) int {
	return int(time.Duration(p) * tick / time.Microsecond)
}

func (p PulseWidth) Clamp(min, max PulseWidth) PulseWidth {
	if p < min {
		return min
	}
	if p > max {
		return max
	}
	return p
}
