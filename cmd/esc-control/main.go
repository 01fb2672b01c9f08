package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"pwm-actuator/internal/actuator"
	"pwm-actuator/internal/core"
	"pwm-actuator/internal/fsm"
	"pwm-actuator/internal/hardware"
	"pwm-actuator/internal/logger"
)

type options struct {
	profile     string
	output      string
	channel     hardware.ChannelConfig
	pwmMode     string
	direction   int
	inputs      string
	calibration string
	calibrate   bool
	settle      bool

	redisHost  string
	redisPort  int
	serialPort string
	baud       int
	gpioChip   string
	buttons    string
	keypad     string
	grab       bool
}

func main() {
	// Service log level
	var serviceLogLevel string
	flag.StringVar(&serviceLogLevel, "log", "3", "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG, or the level name)")

	var o options
	o.channel = hardware.ESCChannel
	flag.StringVar(&o.profile, "profile", "esc", "Actuator profile ("+strings.Join(actuator.ProfileNames(), ", ")+")")
	flag.StringVar(&o.output, "output", hardware.OutputSysfs, "PWM backend (sysfs, periph, dry-run)")
	flag.IntVar(&o.channel.Chip, "pwm-chip", o.channel.Chip, "sysfs PWM chip number")
	flag.IntVar(&o.channel.Channel, "pwm-channel", o.channel.Channel, "sysfs PWM channel number")
	flag.StringVar(&o.channel.Pin, "pin", o.channel.Pin, "periph.io pin name")
	flag.IntVar(&o.channel.ClockDivisor, "clock-divisor", o.channel.ClockDivisor, "PWM clock divisor against 19.2MHz")
	flag.IntVar(&o.channel.Range, "range", o.channel.Range, "PWM range in ticks per frame")
	flag.StringVar(&o.pwmMode, "pwm-mode", o.channel.Mode.String(), "PWM mode (mark-space, balanced)")
	flag.IntVar(&o.direction, "direction", 0, "Direction sign (1 or -1, 0 keeps the profile's)")
	flag.StringVar(&o.inputs, "input", "keyboard", "Comma-separated command sources (keyboard, keypad, serial, buttons, redis)")
	flag.StringVar(&o.calibration, "calibration", "timed", "Calibration policy (timed, confirmed, none)")
	flag.BoolVar(&o.calibrate, "calibrate", false, "Run calibration right after start")
	flag.BoolVar(&o.settle, "settle", true, "Hold each pulse for one frame before taking the next command")
	flag.StringVar(&o.redisHost, "redis-host", "127.0.0.1", "Redis host")
	flag.IntVar(&o.redisPort, "redis-port", 6379, "Redis port")
	flag.StringVar(&o.serialPort, "serial-port", "/dev/ttyUSB0", "Serial command port")
	flag.IntVar(&o.baud, "baud", 115200, "Serial baud rate")
	flag.StringVar(&o.gpioChip, "gpio-chip", "gpiochip0", "GPIO chip for buttons")
	flag.StringVar(&o.buttons, "buttons", "", "Button map, e.g. 17=cw,27=ccw,22=stop,23=quit,24=confirm")
	flag.StringVar(&o.keypad, "keypad", "/dev/input/event0", "evdev device for the keypad source")
	flag.BoolVar(&o.grab, "grab", true, "Grab the keypad device exclusively")

	flag.Parse()

	level, err := logger.ParseLogLevel(serviceLogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -log: %v\n", err)
		os.Exit(1)
	}

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	// Create leveled logger
	l := logger.NewLogger(stdLogger, level)

	os.Exit(run(o, stdLogger, l))
}

func run(o options, stdLogger *log.Logger, l *logger.Logger) int {
	cfg, err := actuator.Profile(o.profile)
	if err != nil {
		l.Errorf("%v", err)
		return 1
	}
	switch o.direction {
	case 0:
	case 1, -1:
		cfg.DirectionSign = o.direction
	default:
		l.Errorf("Direction must be 1 or -1, got %d", o.direction)
		return 1
	}

	mode, err := hardware.ParsePWMMode(o.pwmMode)
	if err != nil {
		l.Errorf("%v", err)
		return 1
	}
	o.channel.Mode = mode

	var policy fsm.Policy
	if o.calibration != "none" {
		if policy, err = fsm.PolicyByName(o.calibration); err != nil {
			l.Errorf("%v", err)
			return 1
		}
	}

	out, err := hardware.OpenOutput(o.output, l)
	if err != nil {
		l.Errorf("%v", err)
		return 1
	}
	if o.settle {
		out = hardware.NewSettled(out, hardware.SettleDelay, nil)
	}

	src, newline, err := openSources(o, l)
	if err != nil {
		l.Errorf("Failed to open command sources: %v", err)
		return 1
	}
	if newline != "\n" {
		// Raw mode turns off output post-processing.
		stdLogger.SetOutput(crlfWriter{os.Stdout})
	}

	console := core.NewConsoleReporter(os.Stdout, newline)
	reporters := []core.Reporter{console}
	if src.redis != nil {
		reporters = append(reporters, src.redis)
	}

	loop, err := core.NewControlLoop(out, src.all, core.Options{
		Channel:          o.channel,
		Actuator:         cfg,
		Calibration:      policy,
		CalibrateOnStart: o.calibrate,
		Banner:           helpText(cfg, policy != nil),
		Reporters:        reporters,
	}, l.WithTag("control"))
	if err != nil {
		l.Errorf("Invalid configuration: %v", err)
		src.all.Close()
		return 1
	}
	defer func() {
		if err := loop.Shutdown(); err != nil {
			l.Warnf("Shutdown: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			l.Infof("Received signal %v, shutting down...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := loop.Start(ctx); err != nil {
		if errors.Is(err, hardware.ErrInit) {
			l.Errorf("PWM setup failed: %v", err)
		} else {
			l.Errorf("Failed to start: %v", err)
		}
		return 1
	}

	if err := loop.Run(ctx); err != nil {
		l.Errorf("Control loop failed: %v", err)
		return 1
	}
	l.Infof("Shutdown complete")
	return 0
}

func helpText(cfg actuator.Config, calibration bool) string {
	lines := []string{"ESC Control Program"}
	if calibration {
		lines = append(lines, "C: Calibrate ESC")
	}
	if cfg.DirectionSign > 0 {
		lines = append(lines, "W: Increase speed CW", "S: Increase speed CCW")
	} else {
		lines = append(lines, "W: Increase speed CCW", "S: Decrease speed / Increase speed CW")
	}
	lines = append(lines, "X: Stop (neutral)", "Q: Quit")
	return strings.Join(lines, "\n")
}

type crlfWriter struct {
	w *os.File
}

func (c crlfWriter) Write(p []byte) (int, error) {
	s := strings.ReplaceAll(string(p), "\n", "\r\n")
	if _, err := fmt.Fprint(c.w, s); err != nil {
		return 0, err
	}
	return len(p), nil
}
