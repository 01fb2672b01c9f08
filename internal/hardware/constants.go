package hardware

import "time"

const (
	// BaseClockHz is the PWM source clock the divisor is applied to.
	BaseClockHz = 19_200_000

	SysfsPWMRoot = "/sys/class/pwm"

	// SettleDelay follows every pulse write so the ESC sees at least one full
	// frame at the new width.
	SettleDelay = 20 * time.Millisecond
)

// ESCChannel is the ESC setup: 10µs ticks, 20ms frame, mark-space.
var ESCChannel = ChannelConfig{
	Chip:         0,
	Channel:      0,
	Pin:          "GPIO18",
	ClockDivisor: 192,
	Range:        2000,
	Mode:         ModeMarkSpace,
}

// ServoChannel is the servo setup: 12.5µs ticks, 25ms frame.
var ServoChannel = ChannelConfig{
	Chip:         0,
	Channel:      1,
	Pin:          "GPIO13",
	ClockDivisor: 240,
	Range:        2000,
	Mode:         ModeMarkSpace,
}
