package domain

// Field identifies an editable column of a training record.
type Field string

const (
	FieldWorkout       Field = "workout"
	FieldVolumeContent Field = "volume_content"
	FieldGoal          Field = "goal"
)

// FieldOrder is the fixed edit order.
var FieldOrder = []Field{FieldWorkout, FieldVolumeContent, FieldGoal}

// Column layout of the backing table, 1-indexed. This is a wire contract.
const (
	ColumnDate          = 1
	ColumnLoadType      = 2
	ColumnWorkout       = 3
	ColumnVolumeContent = 4
	ColumnGoal          = 5
	ColumnCount         = 5
)

// Valid reports whether f is one of the editable fields.
func (f Field) Valid() bool {
	return f.Column() != 0
}

// Column returns the 1-indexed column of the field, or 0 if f is not editable.
func (f Field) Column() int {
	switch f {
	case FieldWorkout:
		return ColumnWorkout
	case FieldVolumeContent:
		return ColumnVolumeContent
	case FieldGoal:
		return ColumnGoal
	}
	return 0
}

// Label is the human-readable field name used in prompts.
func (f Field) Label() string {
	switch f {
	case FieldWorkout:
		return "Workout"
	case FieldVolumeContent:
		return "Volume / content"
	case FieldGoal:
		return "Goal"
	}
	return string(f)
}

// Next returns the field after f in FieldOrder. ok is false when f is the last one.
func (f Field) Next() (next Field, ok bool) {
	for i, cur := range FieldOrder {
		if cur == f && i+1 < len(FieldOrder) {
			return FieldOrder[i+1], true
		}
	}
	return "", false
}

// ParseField maps a user or CLI supplied name to a Field.
func ParseField(name string) (Field, error) {
	switch name {
	case "workout":
		return FieldWorkout, nil
	case "volume_content", "volume", "volume-content":
		return FieldVolumeContent, nil
	case "goal":
		return FieldGoal, nil
	}
	return "", ErrInvalidField
}
