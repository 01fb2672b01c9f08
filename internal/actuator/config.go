package actuator

import (
	"errors"
	"fmt"
	"sort"

	"pwm-actuator/internal/types"
)

var ErrInvalidConfig = errors.New("invalid actuator config")

// Config bounds one actuator. DirectionSign decides which way IncreaseCW moves
// the pulse: +1 lowers it, -1 raises it.
type Config struct {
	MinPulse      types.PulseWidth
	MaxPulse      types.PulseWidth
	NeutralPulse  types.PulseWidth
	Step          types.PulseWidth
	DirectionSign int
}

func (c Config) Validate() error {
	if c.MinPulse > c.MaxPulse {
		return fmt.Errorf("%w: min %d above max %d", ErrInvalidConfig, c.MinPulse, c.MaxPulse)
	}
	if c.NeutralPulse < c.MinPulse || c.NeutralPulse > c.MaxPulse {
		return fmt.Errorf("%w: neutral %d outside [%d, %d]", ErrInvalidConfig, c.NeutralPulse, c.MinPulse, c.MaxPulse)
	}
	if c.Step <= 0 {
		return fmt.Errorf("%w: step must be positive, got %d", ErrInvalidConfig, c.Step)
	}
	if c.DirectionSign != 1 && c.DirectionSign != -1 {
		return fmt.Errorf("%w: direction sign must be +1 or -1, got %d", ErrInvalidConfig, c.DirectionSign)
	}
	return nil
}

// Profiles for the known hardware. The two ESC builds disagree on which letter
// means clockwise, so both are kept.
var Profiles = map[string]Config{
	"esc": {
		MinPulse:      100,
		MaxPulse:      260,
		NeutralPulse:  190,
		Step:          1,
		DirectionSign: 1,
	},
	"esc-backup": {
		MinPulse:      100,
		MaxPulse:      260,
		NeutralPulse:  190,
		Step:          1,
		DirectionSign: -1,
	},
	"servo": {
		MinPulse:      100,
		MaxPulse:      175,
		NeutralPulse:  100,
		Step:          1,
		DirectionSign: 1,
	},
}

func Profile(name string) (Config, error) {
	cfg, ok := Profiles[name]
	if !ok {
		return Config{}, fmt.Errorf("unknown profile %q (have %v)", name, ProfileNames())
	}
	return cfg, nil
}

func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for name := range Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
