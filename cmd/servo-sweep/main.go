package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pwm-actuator/internal/actuator"
	"pwm-actuator/internal/core"
	"pwm-actuator/internal/hardware"
	"pwm-actuator/internal/logger"
)

func main() {
	// Service log level
	var serviceLogLevel string
	flag.StringVar(&serviceLogLevel, "log", "3", "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG, or the level name)")

	channel := hardware.ServoChannel
	profile := flag.String("profile", "servo", "Actuator profile")
	output := flag.String("output", hardware.OutputSysfs, "PWM backend (sysfs, periph, dry-run)")
	flag.IntVar(&channel.Chip, "pwm-chip", channel.Chip, "sysfs PWM chip number")
	flag.IntVar(&channel.Channel, "pwm-channel", channel.Channel, "sysfs PWM channel number")
	flag.StringVar(&channel.Pin, "pin", channel.Pin, "periph.io pin name")
	flag.IntVar(&channel.ClockDivisor, "clock-divisor", channel.ClockDivisor, "PWM clock divisor against 19.2MHz")
	flag.IntVar(&channel.Range, "range", channel.Range, "PWM range in ticks per frame")
	stepDelay := flag.Duration("step-delay", core.DefaultStepDelay, "Delay between single-tick steps")
	pause := flag.Duration("pause", core.DefaultSweepPause, "Pause at each end of the sweep")
	cycles := flag.Int("cycles", 0, "Number of sweeps (0 = until interrupted)")

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

	l := logger.NewLogger(stdLogger, level)

	cfg, err := actuator.Profile(*profile)
	if err != nil {
		l.Fatalf("%v", err)
	}
	out, err := hardware.OpenOutput(*output, l)
	if err != nil {
		l.Fatalf("%v", err)
	}

	sweeper, err := core.NewSweeper(out, core.SweepOptions{
		Channel:   channel,
		Actuator:  cfg,
		StepDelay: *stepDelay,
		Pause:     *pause,
		Cycles:    *cycles,
		Reporters: []core.Reporter{core.NewConsoleReporter(os.Stdout, "\n")},
	}, l.WithTag("sweep"))
	if err != nil {
		l.Fatalf("Invalid configuration: %v", err)
	}

	if err := sweeper.Start(); err != nil {
		l.Errorf("PWM setup failed: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		l.Infof("Received signal %v, shutting down...", sig)
		cancel()
	}()

	l.Infof("Moving servo. Press Ctrl+C to exit.")
	start := time.Now()
	runErr := sweeper.Run(ctx)
	cancel()

	if err := sweeper.Close(); err != nil {
		l.Warnf("Failed to release PWM channel: %v", err)
	}
	if runErr != nil {
		l.Errorf("Sweep failed after %s: %v", time.Since(start).Round(time.Second), runErr)
		os.Exit(1)
	}
	l.Infof("Shutdown complete")
}
