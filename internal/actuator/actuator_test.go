package actuator

import (
	"errors"
	"math/rand"
	"testing"

	"pwm-actuator/internal/types"
)

func newTestActuator(t *testing.T, profile string) *Actuator {
	t.Helper()
	cfg, err := Profile(profile)
	if err != nil {
		t.Fatalf("Profile(%s) failed: %v", profile, err)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestNewStartsAtNeutral(t *testing.T) {
	a := newTestActuator(t, "esc")
	if a.Current() != 190 {
		t.Errorf("Expected neutral 190, got %d", a.Current())
	}
}

func TestConfigValidate(t *testing.T) {
	base := Profiles["esc"]

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"min above max", func(c *Config) { c.MinPulse = 300 }},
		{"neutral below min", func(c *Config) { c.NeutralPulse = 50 }},
		{"neutral above max", func(c *Config) { c.NeutralPulse = 270 }},
		{"zero step", func(c *Config) { c.Step = 0 }},
		{"bad sign", func(c *Config) { c.DirectionSign = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Errorf("esc profile should validate: %v", err)
	}
}

// ESC example: 90 CW steps from neutral reach the minimum, the 91st is refused.
func TestIncreaseCWReachesMinimum(t *testing.T) {
	a := newTestActuator(t, "esc")

	for i := 0; i < 90; i++ {
		if _, fb := a.Apply(types.IncreaseCW); fb != types.Moved {
			t.Fatalf("Step %d: expected Moved, got %v", i, fb)
		}
	}
	if a.Current() != 100 {
		t.Fatalf("Expected 100 after 90 steps, got %d", a.Current())
	}

	pulse, fb := a.Apply(types.IncreaseCW)
	if fb != types.AtLimit {
		t.Errorf("Expected AtLimit, got %v", fb)
	}
	if pulse != 100 || a.Current() != 100 {
		t.Errorf("State changed at limit: %d", a.Current())
	}

	pulse, fb = a.Apply(types.Stop)
	if pulse != 190 || fb != types.Stopped {
		t.Errorf("Stop returned %d/%v, want 190/stopped", pulse, fb)
	}
}

func TestIncreaseCCWAtMaximumIsNoop(t *testing.T) {
	a := newTestActuator(t, "esc")
	for i := 0; i < 70; i++ {
		a.Apply(types.IncreaseCCW)
	}
	if a.Current() != 260 {
		t.Fatalf("Expected 260, got %d", a.Current())
	}
	if _, fb := a.Apply(types.IncreaseCCW); fb != types.AtLimit {
		t.Errorf("Expected AtLimit, got %v", fb)
	}
	if a.Current() != 260 {
		t.Errorf("State changed at limit: %d", a.Current())
	}
}

func TestDirectionSignInvertsMapping(t *testing.T) {
	primary := newTestActuator(t, "esc")
	backup := newTestActuator(t, "esc-backup")

	p, _ := primary.Apply(types.IncreaseCW)
	b, _ := backup.Apply(types.IncreaseCW)

	if p != 189 {
		t.Errorf("Primary CW should lower the pulse, got %d", p)
	}
	if b != 191 {
		t.Errorf("Backup CW should raise the pulse, got %d", b)
	}
}

func TestStopAlwaysNeutral(t *testing.T) {
	a := newTestActuator(t, "esc")
	for _, cmds := range [][]types.Command{
		{},
		{types.IncreaseCW, types.IncreaseCW},
		{types.IncreaseCCW},
	} {
		for _, c := range cmds {
			a.Apply(c)
		}
		if p, _ := a.Apply(types.Stop); p != 190 {
			t.Errorf("Stop after %v returned %d", cmds, p)
		}
	}
}

func TestQuitTerminatesAtNeutral(t *testing.T) {
	a := newTestActuator(t, "esc")
	a.Apply(types.IncreaseCCW)
	pulse, fb := a.Apply(types.Quit)
	if pulse != 190 {
		t.Errorf("Quit should go neutral, got %d", pulse)
	}
	if fb != types.Terminate {
		t.Errorf("Expected Terminate, got %v", fb)
	}
}

func TestUnknownCommandRejected(t *testing.T) {
	a := newTestActuator(t, "esc")
	a.Apply(types.IncreaseCW)
	before := a.Current()

	pulse, fb := a.Apply(types.DecodeCommand('z'))
	if fb != types.Rejected('z') {
		t.Errorf("Expected Rejected('z'), got %v", fb)
	}
	if pulse != before || a.Current() != before {
		t.Errorf("Unknown command changed state: %d -> %d", before, a.Current())
	}

	if _, fb := a.Apply(types.Calibrate); fb.Kind != types.FeedbackRejected {
		t.Errorf("Calibrate is not an actuator command, got %v", fb)
	}
}

func TestRandomWalkStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, name := range ProfileNames() {
		a := newTestActuator(t, name)
		cfg := a.Config()
		for i := 0; i < 5000; i++ {
			cmd := types.IncreaseCW
			if rng.Intn(2) == 0 {
				cmd = types.IncreaseCCW
			}
			p, _ := a.Apply(cmd)
			if p < cfg.MinPulse || p > cfg.MaxPulse {
				t.Fatalf("%s: pulse %d left [%d, %d]", name, p, cfg.MinPulse, cfg.MaxPulse)
			}
		}
	}
}

func TestLargeStepClampsToBound(t *testing.T) {
	a, err := New(Config{MinPulse: 100, MaxPulse: 110, NeutralPulse: 104, Step: 4, DirectionSign: 1})
	if err != nil {
		t.Fatal(err)
	}
	a.Apply(types.IncreaseCCW) // 108
	p, fb := a.Apply(types.IncreaseCCW)
	if p != 110 || fb != types.Moved {
		t.Errorf("Expected clamp to 110, got %d/%v", p, fb)
	}
	if _, fb := a.Apply(types.IncreaseCCW); fb != types.AtLimit {
		t.Errorf("Expected AtLimit at 110, got %v", fb)
	}
}

func TestReset(t *testing.T) {
	a := newTestActuator(t, "esc")
	a.Apply(types.IncreaseCCW)
	if p := a.Reset(); p != 190 || a.Current() != 190 {
		t.Errorf("Reset returned %d", p)
	}
}

func TestUnknownProfile(t *testing.T) {
	if _, err := Profile("boat"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}
