package input

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"pwm-actuator/internal/logger"
	"pwm-actuator/internal/types"
)

const ButtonDebounce = 20 * time.Millisecond

// ButtonMap binds GPIO line offsets to commands.
type ButtonMap map[int]types.Command

// ParseButtonMap reads "offset=command" pairs, e.g. "17=cw,27=ccw,22=stop".
func ParseButtonMap(s string) (ButtonMap, error) {
	m := ButtonMap{}
	if strings.TrimSpace(s) == "" {
		return m, nil
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("button mapping %q: want offset=command", pair)
		}
		offset, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || offset < 0 {
			return nil, fmt.Errorf("button mapping %q: bad line offset", pair)
		}
		cmd, err := types.ParseCommandName(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("button mapping %q: %w", pair, err)
		}
		if _, dup := m[offset]; dup {
			return nil, fmt.Errorf("line %d mapped twice", offset)
		}
		m[offset] = cmd
	}
	return m, nil
}

func (m ButtonMap) Offsets() []int {
	offsets := make([]int, 0, len(m))
	for o := range m {
		offsets = append(offsets, o)
	}
	sort.Ints(offsets)
	return offsets
}

// Buttons turns debounced presses on active-low push buttons into commands.
type Buttons struct {
	logger  *logger.Logger
	mapping ButtonMap
	box     *Mailbox
	lines   *gpiocdev.Lines
}

func NewButtons(chip string, mapping ButtonMap, l *logger.Logger) (*Buttons, error) {
	if len(mapping) == 0 {
		return nil, fmt.Errorf("no buttons mapped")
	}
	b := &Buttons{
		logger:  l.WithTag("buttons"),
		mapping: mapping,
		box:     NewMailbox(),
	}
	lines, err := gpiocdev.RequestLines(chip, mapping.Offsets(),
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(ButtonDebounce),
		gpiocdev.WithEventHandler(b.handleEvent),
		gpiocdev.WithConsumer("pwm-actuator"))
	if err != nil {
		return nil, fmt.Errorf("failed to request button lines on %s: %w", chip, err)
	}
	b.lines = lines
	for _, o := range mapping.Offsets() {
		b.logger.Infof("Button on %s line %d -> %s", chip, o, mapping[o])
	}
	return b, nil
}

func (b *Buttons) handleEvent(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventFallingEdge {
		return
	}
	cmd, ok := b.mapping[evt.Offset]
	if !ok {
		b.logger.Debugf("event on unmapped line %d", evt.Offset)
		return
	}
	if b.box.Put(cmd) {
		b.logger.Debugf("dropped stale command, latest is %s", cmd)
	}
}

func (b *Buttons) Poll() (types.Command, bool) {
	return b.box.Poll()
}

func (b *Buttons) Close() error {
	if b.lines == nil {
		return nil
	}
	err := b.lines.Close()
	b.lines = nil
	return err
}
