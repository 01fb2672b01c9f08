package main

import (
	"fmt"
	"os"
	"strings"

	"pwm-actuator/internal/input"
	"pwm-actuator/internal/logger"
	"pwm-actuator/internal/messaging"
)

type sources struct {
	all   input.Multi
	redis *messaging.RedisClient
}

// openSources opens every source named in -input. It also returns the line
// ending the console has to use.
func openSources(o options, l *logger.Logger) (sources, string, error) {
	var s sources
	newline := "\n"

	fail := func(err error) (sources, string, error) {
		if cerr := s.all.Close(); cerr != nil {
			l.Warnf("Closing sources: %v", cerr)
		}
		return sources{}, "", err
	}

	for _, name := range strings.Split(o.inputs, ",") {
		switch strings.TrimSpace(name) {
		case "":
		case "keyboard":
			kb, err := input.NewKeyboard(os.Stdin, l)
			if err != nil {
				return fail(err)
			}
			newline = kb.Newline()
			s.all = append(s.all, kb)
		case "keypad":
			kp, err := input.NewKeypad(o.keypad, o.grab, l)
			if err != nil {
				return fail(err)
			}
			s.all = append(s.all, kp)
		case "serial":
			sp, err := input.NewSerial(o.serialPort, o.baud, l)
			if err != nil {
				return fail(err)
			}
			s.all = append(s.all, sp)
		case "buttons":
			mapping, err := input.ParseButtonMap(o.buttons)
			if err != nil {
				return fail(err)
			}
			b, err := input.NewButtons(o.gpioChip, mapping, l)
			if err != nil {
				return fail(err)
			}
			s.all = append(s.all, b)
		case "redis":
			r := messaging.NewRedisClient(o.redisHost, o.redisPort, l)
			if err := r.Connect(); err != nil {
				r.Close()
				return fail(fmt.Errorf("failed to connect to Redis: %w", err))
			}
			if err := r.StartListening(); err != nil {
				r.Close()
				return fail(err)
			}
			s.all = append(s.all, r)
			s.redis = r
		default:
			return fail(fmt.Errorf("unknown input %q", name))
		}
	}

	if len(s.all) == 0 {
		return fail(fmt.Errorf("no command source selected"))
	}
	return s, newline, nil
}
