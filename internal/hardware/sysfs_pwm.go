package hardware

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"pwm-actuator/internal/logger"
	"pwm-actuator/internal/types"
)

// SysfsPWM drives a channel through the kernel PWM class. The kernel rejects a
// duty cycle longer than the period, so every reconfiguration orders its writes
// to keep duty <= period at each step.
type SysfsPWM struct {
	logger *logger.Logger
	root   string

	mu       sync.Mutex
	cfg      ChannelConfig
	chipPath string
	linePath string
	periodNs int64
	dutyNs   int64
	exported bool
	enabled  bool
}

func NewSysfsPWM(root string, l *logger.Logger) *SysfsPWM {
	if root == "" {
		root = SysfsPWMRoot
	}
	return &SysfsPWM{
		logger: l.WithTag("sysfs-pwm"),
		root:   root,
	}
}

func writeValue(path string, value int64) error {
	return os.WriteFile(path, []byte(strconv.FormatInt(value, 10)), 0o660)
}

func readValue(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func (s *SysfsPWM) Configure(cfg ChannelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInit, err)
	}
	if cfg.Mode != ModeMarkSpace {
		return fmt.Errorf("%w: sysfs PWM only supports mark-space mode, got %s", ErrInit, cfg.Mode)
	}

	s.cfg = cfg
	s.chipPath = filepath.Join(s.root, fmt.Sprintf("pwmchip%d", cfg.Chip))
	s.linePath = filepath.Join(s.chipPath, fmt.Sprintf("pwm%d", cfg.Channel))

	if _, err := os.Stat(s.chipPath); err != nil {
		return fmt.Errorf("%w: %v", ErrInit, err)
	}

	if err := s.export(); err != nil {
		return fmt.Errorf("%w: export pwm%d: %v", ErrInit, cfg.Channel, err)
	}
	if err := s.writeEnable(false); err != nil {
		return fmt.Errorf("%w: disable: %v", ErrInit, err)
	}

	// A previous user may have left any width in duty_cycle, possibly longer
	// than our period. Zero it before the period changes and before enable.
	if current, err := readValue(filepath.Join(s.linePath, "duty_cycle")); err == nil && current != 0 {
		s.logger.Debugf("Clearing stale duty_cycle %dns on pwm%d", current, cfg.Channel)
	}
	if err := s.writeDuty(0); err != nil {
		return fmt.Errorf("%w: reset duty: %v", ErrInit, err)
	}
	periodNs := cfg.Period().Nanoseconds()
	if err := writeValue(filepath.Join(s.linePath, "period"), periodNs); err != nil {
		return fmt.Errorf("%w: period: %v", ErrInit, err)
	}
	s.periodNs = periodNs

	if err := os.WriteFile(filepath.Join(s.linePath, "polarity"), []byte("normal"), 0o660); err != nil {
		s.logger.Warnf("Could not set polarity on pwm%d: %v", cfg.Channel, err)
	}
	if err := s.writeEnable(true); err != nil {
		return fmt.Errorf("%w: enable: %v", ErrInit, err)
	}

	s.logger.Infof("Configured pwmchip%d/pwm%d: divisor=%d range=%d period=%v tick=%v",
		cfg.Chip, cfg.Channel, cfg.ClockDivisor, cfg.Range, cfg.Period(), cfg.Tick())
	return nil
}

func (s *SysfsPWM) export() error {
	if _, err := os.Stat(s.linePath); err == nil {
		s.exported = true
		return nil
	}
	if err := writeValue(filepath.Join(s.chipPath, "export"), int64(s.cfg.Channel)); err != nil {
		return err
	}
	s.exported = true

	// udev needs a moment to create the line directory and fix permissions.
	for i := 0; i < 20; i++ {
		if _, err := os.Stat(filepath.Join(s.linePath, "period")); err == nil {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return fmt.Errorf("%s did not appear after export", s.linePath)
}

func (s *SysfsPWM) writeEnable(on bool) error {
	v := int64(0)
	if on {
		v = 1
	}
	if err := writeValue(filepath.Join(s.linePath, "enable"), v); err != nil {
		return err
	}
	s.enabled = on
	return nil
}

func (s *SysfsPWM) writeDuty(ns int64) error {
	if err := writeValue(filepath.Join(s.linePath, "duty_cycle"), ns); err != nil {
		return err
	}
	s.dutyNs = ns
	return nil
}

func (s *SysfsPWM) Write(pulse types.PulseWidth) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exported || s.periodNs == 0 {
		return fmt.Errorf("pwm channel not configured")
	}
	if err := s.cfg.checkPulse(pulse); err != nil {
		return err
	}
	ns := s.cfg.Duration(pulse).Nanoseconds()
	if err := s.writeDuty(ns); err != nil {
		return fmt.Errorf("failed to write duty cycle %dns: %w", ns, err)
	}
	s.logger.Debugf("duty_cycle=%dns (pulse %d)", ns, pulse)
	return nil
}

// Close disables and unexports the channel, leaving the pin to the kernel.
func (s *SysfsPWM) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exported {
		return nil
	}
	if err := s.writeEnable(false); err != nil {
		return fmt.Errorf("failed to disable pwm%d: %w", s.cfg.Channel, err)
	}
	if err := writeValue(filepath.Join(s.chipPath, "unexport"), int64(s.cfg.Channel)); err != nil {
		return fmt.Errorf("failed to unexport pwm%d: %w", s.cfg.Channel, err)
	}
	s.exported = false
	s.logger.Infof("Released pwmchip%d/pwm%d", s.cfg.Chip, s.cfg.Channel)
	return nil
}
