package types

import (
	"fmt"
	"unicode"
)

type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdIncreaseCW
	CmdIncreaseCCW
	CmdStop
	CmdQuit
	CmdCalibrate
	// CmdConfirm only comes from sources without a keyboard, such as a
	// GPIO confirm button. Any key confirms a calibration phase anyway.
	CmdConfirm
)

// Command is one decoded operator input. Char holds the raw character for
// commands that came from a character stream.
type Command struct {
	Kind CommandKind
	Char rune
}

var (
	IncreaseCW  = Command{Kind: CmdIncreaseCW, Char: 'w'}
	IncreaseCCW = Command{Kind: CmdIncreaseCCW, Char: 's'}
	Stop        = Command{Kind: CmdStop, Char: 'x'}
	Quit        = Command{Kind: CmdQuit, Char: 'q'}
	Calibrate   = Command{Kind: CmdCalibrate, Char: 'c'}
	Confirm     = Command{Kind: CmdConfirm}
)

func Unknown(c rune) Command {
	return Command{Kind: CmdUnknown, Char: c}
}

// DecodeCommand maps a single input character onto the command alphabet,
// ignoring case.
func DecodeCommand(c rune) Command {
	switch unicode.ToLower(c) {
	case 'w':
		return IncreaseCW
	case 's':
		return IncreaseCCW
	case 'x':
		return Stop
	case 'q':
		return Quit
	case 'c':
		return Calibrate
	default:
		return Unknown(c)
	}
}

// ParseCommandName accepts the long names used on Redis lists and in button
// mappings as well as single characters.
func ParseCommandName(s string) (Command, error) {
	switch s {
	case "cw", "increase-cw":
		return IncreaseCW, nil
	case "ccw", "increase-ccw":
		return IncreaseCCW, nil
	case "stop":
		return Stop, nil
	case "quit":
		return Quit, nil
	case "calibrate":
		return Calibrate, nil
	case "confirm":
		return Confirm, nil
	}
	r := []rune(s)
	if len(r) == 1 {
		return DecodeCommand(r[0]), nil
	}
	return Command{}, fmt.Errorf("unknown command %q", s)
}

func (c Command) String() string {
	switch c.Kind {
	case CmdIncreaseCW:
		return "increase-cw"
	case CmdIncreaseCCW:
		return "increase-ccw"
	case CmdStop:
		return "stop"
	case CmdQuit:
		return "quit"
	case CmdCalibrate:
		return "calibrate"
	case CmdConfirm:
		return "confirm"
	default:
		return fmt.Sprintf("unknown(%q)", c.Char)
	}
}

type FeedbackKind int

const (
	FeedbackNone FeedbackKind = iota
	FeedbackMoved
	FeedbackAtLimit
	FeedbackStopped
	FeedbackTerminate
	FeedbackRejected
)

// Feedback describes the outcome of applying a command. The zero value means
// no command was applied.
type Feedback struct {
	Kind FeedbackKind
	Char rune
}

var (
	Moved      = Feedback{Kind: FeedbackMoved}
	AtLimit    = Feedback{Kind: FeedbackAtLimit}
	Stopped    = Feedback{Kind: FeedbackStopped}
	Terminate  = Feedback{Kind: FeedbackTerminate}
	NoFeedback = Feedback{Kind: FeedbackNone}
)

func Rejected(c rune) Feedback {
	return Feedback{Kind: FeedbackRejected, Char: c}
}

func (f Feedback) String() string {
	switch f.Kind {
	case FeedbackMoved:
		return "moved"
	case FeedbackAtLimit:
		return "at-limit"
	case FeedbackStopped:
		return "stopped"
	case FeedbackTerminate:
		return "terminate"
	case FeedbackRejected:
		return fmt.Sprintf("rejected(%q)", f.Char)
	default:
		return ""
	}
}
