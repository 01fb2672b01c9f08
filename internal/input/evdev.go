package input

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"pwm-actuator/internal/logger"
	"pwm-actuator/internal/types"
)

const (
	evKey = 0x01

	keyEnter   = 28
	keySpace   = 57
	keyKPEnter = 96

	keyReleased = 0
	keyPressed  = 1
	keyRepeat   = 2

	eviocgrab = 0x40044590 // _IOW('E', 0x90, int)
)

// inputEventSize is sizeof(struct input_event): a timeval followed by
// type, code and value.
var inputEventSize = int(unsafe.Sizeof(unix.Timeval{})) + 8

// keyLetters maps evdev key codes of the letter rows to their characters.
var keyLetters = func() map[uint16]rune {
	m := make(map[uint16]rune)
	rows := []struct {
		first uint16
		keys  string
	}{
		{16, "qwertyuiop"},
		{30, "asdfghjkl"},
		{44, "zxcvbnm"},
	}
	for _, row := range rows {
		for i, c := range row.keys {
			m[row.first+uint16(i)] = c
		}
	}
	return m
}()

type InputEvent struct {
	Type  uint16
	Code  uint16
	Value int32
}

func parseInputEvent(buf []byte) InputEvent {
	off := len(buf) - 8
	return InputEvent{
		Type:  binary.LittleEndian.Uint16(buf[off : off+2]),
		Code:  binary.LittleEndian.Uint16(buf[off+2 : off+4]),
		Value: int32(binary.LittleEndian.Uint32(buf[off+4 : off+8])),
	}
}

// keyCommand decodes a key event. Holding a motion key keeps stepping; other
// keys act once per press.
func keyCommand(ev InputEvent) (types.Command, bool) {
	if ev.Type != evKey || ev.Value == keyReleased {
		return types.Command{}, false
	}
	switch ev.Code {
	case keyEnter, keySpace, keyKPEnter:
		if ev.Value != keyPressed {
			return types.Command{}, false
		}
		return types.Confirm, true
	}
	c, ok := keyLetters[ev.Code]
	if !ok {
		return types.Command{}, false
	}
	cmd := types.DecodeCommand(c)
	if ev.Value == keyRepeat && cmd.Kind != types.CmdIncreaseCW && cmd.Kind != types.CmdIncreaseCCW {
		return types.Command{}, false
	}
	return cmd, true
}

// Keypad reads a Linux input device (USB keypad, gpio-keys) directly, so the
// controller can run headless without a terminal.
type Keypad struct {
	logger *logger.Logger
	path   string
	file   *os.File
	box    *Mailbox

	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewKeypad(path string, grab bool, l *logger.Logger) (*Keypad, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open input device %s: %w", path, err)
	}
	k := &Keypad{
		logger:   l.WithTag("keypad"),
		path:     path,
		file:     f,
		box:      NewMailbox(),
		stopChan: make(chan struct{}),
	}
	if grab {
		// Keep the keystrokes away from the console while we own the device.
		if err := unix.IoctlSetInt(int(f.Fd()), eviocgrab, 1); err != nil {
			k.logger.Warnf("Could not grab %s: %v", path, err)
		}
	}
	k.wg.Add(1)
	go k.monitorInputs()
	k.logger.Infof("Reading keys from %s", path)
	return k, nil
}

func (k *Keypad) monitorInputs() {
	defer k.wg.Done()

	buffer := make([]byte, inputEventSize)
	for {
		n, err := k.file.Read(buffer)
		if err != nil {
			select {
			case <-k.stopChan:
			default:
				k.logger.Errorf("Error reading %s: %v", k.path, err)
			}
			return
		}
		if n != len(buffer) {
			k.logger.Debugf("Incomplete read: got %d bytes, expected %d", n, len(buffer))
			continue
		}
		k.handleEvent(parseInputEvent(buffer))
	}
}

func (k *Keypad) handleEvent(ev InputEvent) {
	cmd, ok := keyCommand(ev)
	if !ok {
		return
	}
	k.logger.Debugf("Key event: code=%d value=%d -> %s", ev.Code, ev.Value, cmd)
	if k.box.Put(cmd) {
		k.logger.Debugf("dropped stale command, latest is %s", cmd)
	}
}

func (k *Keypad) Poll() (types.Command, bool) {
	return k.box.Poll()
}

func (k *Keypad) Close() error {
	var err error
	k.closeOnce.Do(func() {
		close(k.stopChan)
		err = k.file.Close()
		k.wg.Wait()
	})
	return err
}
