package input

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode"

	"go.bug.st/serial"

	"pwm-actuator/internal/logger"
	"pwm-actuator/internal/types"
)

const serialReadTimeout = 100 * time.Millisecond

// Serial accepts the same one-character command alphabet as the keyboard from
// a serial link, e.g. a radio bridge or a microcontroller with buttons.
// Whitespace between characters is ignored.
type Serial struct {
	logger *logger.Logger
	port   io.ReadCloser
	box    *Mailbox

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewSerial(portName string, baud int, l *logger.Logger) (*Serial, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	// A finite timeout lets the reader notice Close.
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}
	l.Infof("Opened serial command port %s at %d baud", portName, baud)
	return newSerialSource(port, l), nil
}

func newSerialSource(port io.ReadCloser, l *logger.Logger) *Serial {
	s := &Serial{
		logger: l.WithTag("serial"),
		port:   port,
		box:    NewMailbox(),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s
}

func (s *Serial) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, 64)
	for {
		// go.bug.st/serial reports a read timeout as (0, nil).
		n, err := s.port.Read(buf)
		if err != nil {
			select {
			case <-s.done:
			default:
				if !errors.Is(err, io.EOF) {
					s.logger.Warnf("read error: %v", err)
				}
			}
			return
		}
		for _, b := range buf[:n] {
			c := rune(b)
			if unicode.IsSpace(c) {
				continue
			}
			cmd := types.DecodeCommand(c)
			if s.box.Put(cmd) {
				s.logger.Debugf("dropped stale command, latest is %s", cmd)
			}
		}
	}
}

func (s *Serial) Poll() (types.Command, bool) {
	return s.box.Poll()
}

func (s *Serial) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.port.Close()
		s.wg.Wait()
	})
	return err
}
