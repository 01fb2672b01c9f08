package actuator

import "pwm-actuator/internal/types"

// SweepPlan returns every pulse width from 'from' to 'to' inclusive, one tick
// apart, in travel order.
func SweepPlan(from, to types.PulseWidth) []types.PulseWidth {
	step := types.PulseWidth(1)
	n := int(to-from) + 1
	if from > to {
		step = -1
		n = int(from-to) + 1
	}
	plan := make([]types.PulseWidth, 0, n)
	for p := from; p != to+step; p += step {
		plan = append(plan, p)
	}
	return plan
}
