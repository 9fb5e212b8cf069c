// Package dialogue implements the record lookup and field editing state machine.
package dialogue

import "github.com/ashureev/trainbot/internal/session"

// EventKind classifies an inbound chat event.
type EventKind int

const (
	KindText EventKind = iota
	KindChoice
	KindCommand
)

func (k EventKind) String() string {
	switch k {
	case KindChoice:
		return "choice"
	case KindCommand:
		return "command"
	default:
		return "text"
	}
}

// Choice is a fixed-choice button.
type Choice string

const (
	ChoiceToday       Choice = "today"
	ChoiceEdit        Choice = "edit"
	ChoiceSearchAgain Choice = "search_again"
	ChoiceSkip        Choice = "skip"
	ChoiceAppend      Choice = "append"
)

// Label is the button caption shown to the user.
func (c Choice) Label() string {
	switch c {
	case ChoiceToday:
		return "Today"
	case ChoiceEdit:
		return "Edit"
	case ChoiceSearchAgain:
		return "Search again"
	case ChoiceSkip:
		return "Skip"
	case ChoiceAppend:
		return "Append"
	}
	return string(c)
}

// AllChoices lists every choice.
var AllChoices = []Choice{ChoiceToday, ChoiceEdit, ChoiceSearchAgain, ChoiceSkip, ChoiceAppend}

// Commands understood in every state.
const (
	CommandStart  = "start"
	CommandCancel = "cancel"
	CommandHelp   = "help"
)

// Event is one inbound chat event for a user.
type Event struct {
	ID      string
	UserID  string
	Kind    EventKind
	Text    string
	Choice  Choice
	Command string
}

// Reply is the outbound response to one event.
type Reply struct {
	Text    string
	Choices []Choice
	// Discarded is set when a cancel superseded the transition; nothing is sent.
	Discarded bool
}

// ChoicesFor returns the buttons valid in state. Free text is always allowed
// in addition to these.
func ChoicesFor(state session.State) []Choice {
	switch state {
	case session.StateAwaitingDate:
		return []Choice{ChoiceToday}
	case session.StateRecordFound:
		return []Choice{ChoiceEdit, ChoiceSearchAgain}
	case session.StateAwaitingAppendText, session.StateDone:
		return nil
	}
	if _, ok := state.EditField(); ok {
		return []Choice{ChoiceSkip, ChoiceAppend}
	}
	return nil
}
