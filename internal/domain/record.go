// Package domain contains core domain types for the training bot.
package domain

import "fmt"

// NotFilled is shown in place of an empty optional field.
const NotFilled = "not filled"

// TrainingRecord represents one calendar day's planned training.
type TrainingRecord struct {
	Date          string `json:"date"`
	LoadType      string `json:"load_type,omitempty"`
	Workout       string `json:"workout,omitempty"`
	VolumeContent string `json:"volume_content,omitempty"`
	Goal          string `json:"goal,omitempty"`
}

// Value returns the stored value of an editable field.
func (r *TrainingRecord) Value(f Field) string {
	switch f {
	case FieldWorkout:
		return r.Workout
	case FieldVolumeContent:
		return r.VolumeContent
	case FieldGoal:
		return r.Goal
	}
	return ""
}

// SetValue sets an editable field. Unknown fields are ignored.
func (r *TrainingRecord) SetValue(f Field, value string) {
	switch f {
	case FieldWorkout:
		r.Workout = value
	case FieldVolumeContent:
		r.VolumeContent = value
	case FieldGoal:
		r.Goal = value
	}
}

// Summary renders the record the way it is shown after a lookup.
func (r *TrainingRecord) Summary() string {
	return fmt.Sprintf("%s: %s training.\nWorkout: %s\nVolume / content: %s\nGoal: %s",
		r.Date, Display(r.LoadType), Display(r.Workout), Display(r.VolumeContent), Display(r.Goal))
}

// Display returns v, or NotFilled when v is empty.
func Display(v string) string {
	if v == "" {
		return NotFilled
	}
	return v
}

// RecordRef locates a record in the backing table. Row is backend specific
// (sheet row number or SQLite rowid); Date is the key the user confirmed and
// is re-checked before every write.
type RecordRef struct {
	Row  int
	Date string
}

// IsZero reports whether the ref points nowhere.
func (r RecordRef) IsZero() bool {
	return r.Row == 0 && r.Date == ""
}
