package dialogue

import (
	"fmt"
	"strings"

	"github.com/ashureev/trainbot/internal/domain"
	"github.com/ashureev/trainbot/internal/session"
)

const (
	msgGreeting    = "Hi! I can look up a training day and update its workout, volume and goal."
	msgDatePrompt  = "Enter the training date (DD.MM.YYYY) or press Today:"
	msgNotFound    = "No training is planned for this date."
	msgCancelled   = "Action cancelled."
	msgUpdated     = "Training record updated!"
	msgFailure     = "Something went wrong. Please try again later."
	msgUnknownCmd  = "Unknown command."
	msgChooseFound = "Choose Edit or Search again."
	msgHelp        = "Send a date as DD.MM.YYYY or press Today to find a training day.\n" +
		"While editing, type a new value to replace a field, press Skip to keep it, or Append to add to it.\n" +
		"/cancel stops the current edit, /start begins again."
)

func foundText(rec *domain.TrainingRecord) string {
	return rec.Summary() + "\n\nEdit this training or search for another date?"
}

func fieldPrompt(f domain.Field, rec *domain.TrainingRecord) string {
	return fmt.Sprintf("Fill in %s, current value: %s\n\nType a new value or choose an option:",
		f.Label(), domain.Display(rec.Value(f)))
}

func appendPrompt(f domain.Field) string {
	return fmt.Sprintf("Enter the text to append to %s:", f.Label())
}

// hintFor re-prompts the state without touching the store.
func hintFor(s *session.Session) string {
	switch st := s.State(); st {
	case session.StateAwaitingDate:
		return msgDatePrompt
	case session.StateRecordFound:
		return msgChooseFound
	case session.StateAwaitingAppendText:
		return appendPrompt(s.PendingAppendField)
	default:
		if f, ok := st.EditField(); ok {
			return fmt.Sprintf("Type a new %s value or choose an option.", f.Label())
		}
	}
	return msgDatePrompt
}

func join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
