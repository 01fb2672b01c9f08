package hardware

import (
	"fmt"
	"sync"

	"pwm-actuator/internal/logger"
	"pwm-actuator/internal/types"
)

// DryRun accepts every write and logs it. It lets the controller run on a
// machine without a PWM peripheral.
type DryRun struct {
	logger *logger.Logger

	mu         sync.Mutex
	cfg        ChannelConfig
	configured bool
	last       types.PulseWidth
	writes     int
}

func NewDryRun(l *logger.Logger) *DryRun {
	return &DryRun{logger: l.WithTag("dry-run")}
}

func (d *DryRun) Configure(cfg ChannelConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInit, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.configured = true
	d.logger.Infof("Channel %d configured: period=%v tick=%v mode=%s", cfg.Channel, cfg.Period(), cfg.Tick(), cfg.Mode)
	return nil
}

func (d *DryRun) Write(pulse types.PulseWidth) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return fmt.Errorf("pwm channel not configured")
	}
	if err := d.cfg.checkPulse(pulse); err != nil {
		return err
	}
	d.last = pulse
	d.writes++
	d.logger.Debugf("pulse %d (%v)", pulse, d.cfg.Duration(pulse))
	return nil
}

func (d *DryRun) Last() (types.PulseWidth, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.writes
}

func (d *DryRun) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configured = false
	return nil
}
