package input

import (
	"io"

	"go.uber.org/multierr"

	"pwm-actuator/internal/types"
)

// Source is anything that can hand over the next command without blocking.
type Source interface {
	Poll() (types.Command, bool)
}

// Multi polls several sources in order and returns the first pending command.
type Multi []Source

func (m Multi) Poll() (types.Command, bool) {
	for _, s := range m {
		if cmd, ok := s.Poll(); ok {
			return cmd, true
		}
	}
	return types.Command{}, false
}

func (m Multi) Close() error {
	var err error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
