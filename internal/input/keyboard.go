package input

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unicode/utf8"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"pwm-actuator/internal/logger"
	"pwm-actuator/internal/types"
)

var ErrNotTerminal = errors.New("stdin is not a terminal")

// Keyboard reads single keystrokes from a terminal in raw mode. Poll checks
// for pending input with a zero-timeout poll(2), so it never blocks.
type Keyboard struct {
	logger *logger.Logger
	file   *os.File
	fd     int

	mu    sync.Mutex
	state *term.State
	buf   []byte
}

// NewKeyboard switches f (normally os.Stdin) to raw mode. Close restores it.
func NewKeyboard(f *os.File, l *logger.Logger) (*Keyboard, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to enter raw mode: %w", err)
	}
	return &Keyboard{
		logger: l.WithTag("keyboard"),
		file:   f,
		fd:     fd,
		state:  state,
		buf:    make([]byte, 0, 8),
	}, nil
}

func (k *Keyboard) ready() (bool, error) {
	fds := []unix.PollFd{{Fd: int32(k.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
	}
}

func (k *Keyboard) Poll() (types.Command, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.state == nil {
		return types.Command{}, false
	}
	ok, err := k.ready()
	if err != nil {
		k.logger.Warnf("poll stdin: %v", err)
		return types.Command{}, false
	}
	if !ok {
		return types.Command{}, false
	}

	var b [1]byte
	n, err := unix.Read(k.fd, b[:])
	if err != nil || n == 0 {
		return types.Command{}, false
	}
	k.buf = append(k.buf, b[0])
	if !utf8.FullRune(k.buf) {
		return types.Command{}, false
	}
	r, _ := utf8.DecodeRune(k.buf)
	k.buf = k.buf[:0]

	// Ctrl+C arrives as a byte in raw mode; treat it like the quit key.
	if r == 0x03 {
		return types.Quit, true
	}
	return types.DecodeCommand(r), true
}

// Newline is the line ending the console must use while raw mode is on.
func (k *Keyboard) Newline() string {
	return "\r\n"
}

func (k *Keyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == nil {
		return nil
	}
	err := term.Restore(k.fd, k.state)
	k.state = nil
	return err
}
