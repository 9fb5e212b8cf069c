// Package store provides the Record Store interface and its backends.
package store

import (
	"context"
	"strings"

	"github.com/ashureev/trainbot/internal/domain"
)

// Mode selects how UpdateField writes a value.
type Mode int

const (
	// Replace overwrites the cell.
	Replace Mode = iota
	// Append concatenates onto the current cell value.
	Append
)

func (m Mode) String() string {
	if m == Append {
		return "append"
	}
	return "replace"
}

// RecordStore defines typed access to training records keyed by date.
type RecordStore interface {
	// FindByDate returns the first record whose key column equals date.
	// It returns an error satisfying domain.IsNotFound when there is none.
	FindByDate(ctx context.Context, date string) (domain.RecordRef, *domain.TrainingRecord, error)

	// UpdateField writes one editable cell of the referenced record. The write
	// is refused with domain.ErrStaleRecord if the row no longer carries ref.Date.
	UpdateField(ctx context.Context, ref domain.RecordRef, field domain.Field, value string, mode Mode) error

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Combine computes the value written for mode given the current cell value.
func Combine(current, value string, mode Mode) string {
	if mode == Append {
		return strings.TrimSpace(current + " " + value)
	}
	return value
}

func checkField(field domain.Field) error {
	if !field.Valid() {
		return domain.NewStoreError("update", domain.ErrInvalidField)
	}
	return nil
}
