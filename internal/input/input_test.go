package input

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"pwm-actuator/internal/logger"
	"pwm-actuator/internal/types"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(nil, logger.LogLevelError)
}

func TestMailboxKeepsLatestOnly(t *testing.T) {
	box := NewMailbox()

	if _, ok := box.Poll(); ok {
		t.Fatal("Empty mailbox returned a command")
	}

	if box.Put(types.IncreaseCW) {
		t.Error("First put should not report a replacement")
	}
	if !box.Put(types.IncreaseCW) {
		t.Error("Second put should replace the unread command")
	}
	box.Put(types.Stop)

	cmd, ok := box.Poll()
	if !ok || cmd != types.Stop {
		t.Errorf("Expected latest command Stop, got %v/%v", cmd, ok)
	}
	if _, ok := box.Poll(); ok {
		t.Error("Stale commands must not be replayed")
	}
	if box.Dropped() != 2 {
		t.Errorf("Expected 2 dropped commands, got %d", box.Dropped())
	}
}

type fakeSource struct {
	cmds   []types.Command
	closed bool
}

func (f *fakeSource) Poll() (types.Command, bool) {
	if len(f.cmds) == 0 {
		return types.Command{}, false
	}
	c := f.cmds[0]
	f.cmds = f.cmds[1:]
	return c, true
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func TestMultiPollsInOrder(t *testing.T) {
	a := &fakeSource{}
	b := &fakeSource{cmds: []types.Command{types.Stop}}
	m := Multi{a, b}

	cmd, ok := m.Poll()
	if !ok || cmd != types.Stop {
		t.Errorf("Expected Stop from second source, got %v/%v", cmd, ok)
	}

	a.cmds = []types.Command{types.Quit}
	b.cmds = []types.Command{types.IncreaseCW}
	if cmd, _ := m.Poll(); cmd != types.Quit {
		t.Errorf("First source should win, got %v", cmd)
	}

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if !a.closed || !b.closed {
		t.Error("Close should reach every closable source")
	}
}

func waitForCommand(t *testing.T, s Source) types.Command {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cmd, ok := s.Poll(); ok {
			return cmd
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("Timed out waiting for a command")
	return types.Command{}
}

func TestSerialDecodesCharacters(t *testing.T) {
	r, w := io.Pipe()
	src := newSerialSource(r, testLogger())
	defer src.Close()

	if _, err := w.Write([]byte("W")); err != nil {
		t.Fatal(err)
	}
	if cmd := waitForCommand(t, src); cmd != types.IncreaseCW {
		t.Errorf("Expected IncreaseCW, got %v", cmd)
	}

	if _, err := w.Write([]byte("\r\n z")); err != nil {
		t.Fatal(err)
	}
	if cmd := waitForCommand(t, src); cmd != types.Unknown('z') {
		t.Errorf("Expected Unknown('z'), got %v", cmd)
	}
}

func TestSerialBurstKeepsLatest(t *testing.T) {
	r, w := io.Pipe()
	src := newSerialSource(r, testLogger())
	defer src.Close()

	if _, err := w.Write([]byte("wwwwx")); err != nil {
		t.Fatal(err)
	}
	// One pipe write is consumed by one Read, so the burst lands together.
	time.Sleep(20 * time.Millisecond)
	if cmd := waitForCommand(t, src); cmd != types.Stop {
		t.Errorf("Expected the last command of the burst, got %v", cmd)
	}
	if _, ok := src.Poll(); ok {
		t.Error("Burst should leave a single command")
	}
}

func TestSerialCloseStopsReader(t *testing.T) {
	r, _ := io.Pipe()
	src := newSerialSource(r, testLogger())

	done := make(chan error, 1)
	go func() { done <- src.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the reader")
	}
}

func TestParseButtonMap(t *testing.T) {
	m, err := ParseButtonMap("17=cw, 27=ccw,22=stop,23=quit,24=calibrate,25=confirm")
	if err != nil {
		t.Fatalf("ParseButtonMap failed: %v", err)
	}
	want := map[int]types.Command{
		17: types.IncreaseCW,
		27: types.IncreaseCCW,
		22: types.Stop,
		23: types.Quit,
		24: types.Calibrate,
		25: types.Confirm,
	}
	for o, c := range want {
		if m[o] != c {
			t.Errorf("line %d = %v, want %v", o, m[o], c)
		}
	}
	offsets := m.Offsets()
	if len(offsets) != 6 || offsets[0] != 17 || offsets[5] != 27 {
		t.Errorf("Offsets not sorted: %v", offsets)
	}

	for _, bad := range []string{"17", "x=cw", "17=fast", "17=cw,17=ccw", "-1=cw"} {
		if _, err := ParseButtonMap(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}

	if m, err := ParseButtonMap(""); err != nil || len(m) != 0 {
		t.Errorf("Empty mapping = %v, %v", m, err)
	}
}

func TestButtonEvents(t *testing.T) {
	b := &Buttons{
		logger:  testLogger(),
		mapping: ButtonMap{17: types.IncreaseCW, 22: types.Stop},
		box:     NewMailbox(),
	}

	b.handleEvent(gpiocdev.LineEvent{Offset: 17, Type: gpiocdev.LineEventRisingEdge})
	if _, ok := b.Poll(); ok {
		t.Error("Release edge should not produce a command")
	}

	b.handleEvent(gpiocdev.LineEvent{Offset: 5, Type: gpiocdev.LineEventFallingEdge})
	if _, ok := b.Poll(); ok {
		t.Error("Unmapped line should not produce a command")
	}

	b.handleEvent(gpiocdev.LineEvent{Offset: 17, Type: gpiocdev.LineEventFallingEdge})
	b.handleEvent(gpiocdev.LineEvent{Offset: 22, Type: gpiocdev.LineEventFallingEdge})
	if cmd, ok := b.Poll(); !ok || cmd != types.Stop {
		t.Errorf("Expected latest press Stop, got %v/%v", cmd, ok)
	}

	if err := b.Close(); err != nil {
		t.Errorf("Close without lines failed: %v", err)
	}
}

func rawEvent(typ, code uint16, value int32) []byte {
	buf := make([]byte, inputEventSize)
	off := inputEventSize - 8
	binary.LittleEndian.PutUint16(buf[off:], typ)
	binary.LittleEndian.PutUint16(buf[off+2:], code)
	binary.LittleEndian.PutUint32(buf[off+4:], uint32(value))
	return buf
}

func TestParseInputEvent(t *testing.T) {
	ev := parseInputEvent(rawEvent(evKey, 17, keyPressed))
	if ev.Type != evKey || ev.Code != 17 || ev.Value != keyPressed {
		t.Errorf("Unexpected event %+v", ev)
	}
}

func TestKeyCommand(t *testing.T) {
	tests := []struct {
		name string
		ev   InputEvent
		want types.Command
		ok   bool
	}{
		{"w press", InputEvent{evKey, 17, keyPressed}, types.IncreaseCW, true},
		{"w repeat", InputEvent{evKey, 17, keyRepeat}, types.IncreaseCW, true},
		{"w release", InputEvent{evKey, 17, keyReleased}, types.Command{}, false},
		{"s press", InputEvent{evKey, 31, keyPressed}, types.IncreaseCCW, true},
		{"x press", InputEvent{evKey, 45, keyPressed}, types.Stop, true},
		{"q press", InputEvent{evKey, 16, keyPressed}, types.Quit, true},
		{"q repeat", InputEvent{evKey, 16, keyRepeat}, types.Command{}, false},
		{"c press", InputEvent{evKey, 46, keyPressed}, types.Calibrate, true},
		{"z press", InputEvent{evKey, 44, keyPressed}, types.Unknown('z'), true},
		{"enter", InputEvent{evKey, keyEnter, keyPressed}, types.Confirm, true},
		{"space repeat", InputEvent{evKey, keySpace, keyRepeat}, types.Command{}, false},
		{"sync", InputEvent{0, 0, 0}, types.Command{}, false},
		{"f1", InputEvent{evKey, 59, keyPressed}, types.Command{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := keyCommand(tt.ev)
			if ok != tt.ok || got != tt.want {
				t.Errorf("keyCommand(%+v) = %v/%v, want %v/%v", tt.ev, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestKeypadReadsDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event0")
	var data []byte
	data = append(data, rawEvent(evKey, 17, keyPressed)...)
	data = append(data, rawEvent(0, 0, 0)...)
	data = append(data, rawEvent(evKey, 17, keyReleased)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	k, err := NewKeypad(path, false, testLogger())
	if err != nil {
		t.Fatalf("NewKeypad failed: %v", err)
	}
	defer k.Close()

	if cmd := waitForCommand(t, k); cmd != types.IncreaseCW {
		t.Errorf("Expected IncreaseCW, got %v", cmd)
	}
}

func TestKeyboardRequiresTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := NewKeyboard(f, testLogger()); !errors.Is(err, ErrNotTerminal) {
		t.Errorf("Expected ErrNotTerminal, got %v", err)
	}
}
