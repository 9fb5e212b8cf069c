package domain

import (
	"regexp"
	"time"
)

// DateLayout is the strict DD.MM.YYYY key format of the backing table.
const DateLayout = "02.01.2006"

var datePattern = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)

// IsValidDate reports whether s is a real calendar date in DD.MM.YYYY form.
func IsValidDate(s string) bool {
	if !datePattern.MatchString(s) {
		return false
	}
	// time.Parse rejects day and month values outside the calendar.
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ParseDate validates s and returns it unchanged, or a ValidationError.
func ParseDate(s string) (string, error) {
	if !IsValidDate(s) {
		return "", NewValidationError("invalid date format, use DD.MM.YYYY")
	}
	return s, nil
}

// FormatDate renders t as a record key.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
