package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ashureev/trainbot/internal/domain"
)

// MemoryStore implements RecordStore over an in-process slice of rows.
// Row numbers are 1-based positions, mirroring a sheet without a header.
type MemoryStore struct {
	mu   sync.Mutex
	rows []domain.TrainingRecord

	// Hooks let tests inject failures and latency. They run without mu held.
	BeforeFind   func(ctx context.Context, date string) error
	BeforeUpdate func(ctx context.Context, ref domain.RecordRef, field domain.Field) error
}

// NewMemory creates a MemoryStore holding copies of records.
func NewMemory(records ...domain.TrainingRecord) *MemoryStore {
	rows := make([]domain.TrainingRecord, len(records))
	copy(rows, records)
	return &MemoryStore{rows: rows}
}

// FindByDate returns the first row whose date equals date.
func (s *MemoryStore) FindByDate(ctx context.Context, date string) (domain.RecordRef, *domain.TrainingRecord, error) {
	if s.BeforeFind != nil {
		if err := s.BeforeFind(ctx, date); err != nil {
			return domain.RecordRef{}, nil, domain.NewStoreError("find", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if strings.TrimSpace(s.rows[i].Date) == date {
			rec := s.rows[i]
			return domain.RecordRef{Row: i + 1, Date: date}, &rec, nil
		}
	}
	return domain.RecordRef{}, nil, fmt.Errorf("%s: %w", date, domain.ErrNotFound)
}

// UpdateField writes one field of the referenced row.
func (s *MemoryStore) UpdateField(ctx context.Context, ref domain.RecordRef, field domain.Field, value string, mode Mode) error {
	if err := checkField(field); err != nil {
		return err
	}
	if s.BeforeUpdate != nil {
		if err := s.BeforeUpdate(ctx, ref, field); err != nil {
			return domain.NewStoreError("update", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ref.Row < 1 || ref.Row > len(s.rows) || strings.TrimSpace(s.rows[ref.Row-1].Date) != ref.Date {
		return domain.NewStoreError("update", domain.ErrStaleRecord)
	}
	rec := &s.rows[ref.Row-1]
	rec.SetValue(field, Combine(rec.Value(field), value, mode))
	return nil
}

// Snapshot returns a copy of all rows.
func (s *MemoryStore) Snapshot() []domain.TrainingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TrainingRecord, len(s.rows))
	copy(out, s.rows)
	return out
}

// InsertAt inserts a record before the given 1-based row, shifting later rows.
func (s *MemoryStore) InsertAt(row int, rec domain.TrainingRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := row - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(s.rows) {
		idx = len(s.rows)
	}
	s.rows = append(s.rows, domain.TrainingRecord{})
	copy(s.rows[idx+1:], s.rows[idx:])
	s.rows[idx] = rec
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

var _ RecordStore = (*MemoryStore)(nil)
