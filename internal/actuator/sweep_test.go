package actuator

import (
	"testing"

	"pwm-actuator/internal/types"
)

func TestSweepPlanVisitsEveryValueOnce(t *testing.T) {
	up := SweepPlan(100, 175)
	down := SweepPlan(175, 100)

	if len(up) != 76 || len(down) != 76 {
		t.Fatalf("Expected 76 values each way, got %d and %d", len(up), len(down))
	}
	for i, p := range up {
		if p != types.PulseWidth(100+i) {
			t.Fatalf("up[%d] = %d, want %d", i, p, 100+i)
		}
	}
	for i, p := range down {
		if p != types.PulseWidth(175-i) {
			t.Fatalf("down[%d] = %d, want %d", i, p, 175-i)
		}
	}
}

func TestSweepPlanSinglePoint(t *testing.T) {
	plan := SweepPlan(120, 120)
	if len(plan) != 1 || plan[0] != 120 {
		t.Errorf("Expected [120], got %v", plan)
	}
}
