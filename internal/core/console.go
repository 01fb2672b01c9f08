package core

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"pwm-actuator/internal/types"
)

// ConsoleReporter prints the operator-facing lines: the message, then the
// current pulse width whenever a command was applied or rejected.
type ConsoleReporter struct {
	mu      sync.Mutex
	w       io.Writer
	newline string
}

// NewConsoleReporter writes to w. Pass "\r\n" while the terminal is in raw mode.
func NewConsoleReporter(w io.Writer, newline string) *ConsoleReporter {
	if newline == "" {
		newline = "\n"
	}
	return &ConsoleReporter{w: w, newline: newline}
}

func (c *ConsoleReporter) Report(s types.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Message != "" {
		fmt.Fprint(c.w, strings.ReplaceAll(s.Message, "\n", c.newline)+c.newline)
	}
	if s.Feedback.Kind != types.FeedbackNone {
		fmt.Fprintf(c.w, "Current pulse width: %dµs%s", s.Micros, c.newline)
	}
}
