package dispatch

import (
	"strings"

	"github.com/ashureev/trainbot/internal/dialogue"
)

// ParseText classifies raw chat text. "/cmd" and "/cmd@botname" become
// commands, a button label becomes a choice, anything else is free text.
// Choices keep the original text for states that take any input.
func ParseText(userID, text string) dialogue.Event {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "/") && len(trimmed) > 1 {
		cmd := strings.Fields(trimmed[1:])[0]
		if at := strings.IndexByte(cmd, '@'); at >= 0 {
			cmd = cmd[:at]
		}
		return dialogue.Event{UserID: userID, Kind: dialogue.KindCommand, Command: strings.ToLower(cmd)}
	}

	if c, ok := ParseChoice(trimmed); ok {
		return dialogue.Event{UserID: userID, Kind: dialogue.KindChoice, Choice: c, Text: text}
	}

	return dialogue.Event{UserID: userID, Kind: dialogue.KindText, Text: text}
}

// ParseChoice matches a choice by identifier or label, ignoring case.
func ParseChoice(s string) (dialogue.Choice, bool) {
	s = strings.TrimSpace(s)
	for _, c := range dialogue.AllChoices {
		if strings.EqualFold(s, c.Label()) || strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}
