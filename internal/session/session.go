package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ashureev/trainbot/internal/domain"
	"github.com/looplab/fsm"
)

// Session holds one user's in-progress dialogue. It is mutated only by the
// dispatcher worker that owns the user; the cancel counter is the one field
// touched from other goroutines.
type Session struct {
	UserID             string
	ActiveDate         string
	RecordRef          domain.RecordRef
	FieldCursor        domain.Field
	PendingAppendField domain.Field
	UpdatedAt          time.Time

	machine   *fsm.FSM
	cancelSeq atomic.Uint64
}

// New creates a session in StateAwaitingDate.
func New(userID string) *Session {
	s := &Session{UserID: userID, UpdatedAt: time.Now()}
	s.machine = fsm.NewFSM(string(StateAwaitingDate), transitions(), fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			slog.Debug("Dialogue transition", "user_id", userID, "event", e.Event, "from", e.Src, "to", e.Dst)
		},
	})
	return s
}

// State returns the current dialogue state.
func (s *Session) State() State {
	return State(s.machine.Current())
}

// Can reports whether event is valid in the current state.
func (s *Session) Can(event string) bool {
	return s.machine.Can(event)
}

// Fire performs a transition. Self-transitions are not errors.
func (s *Session) Fire(ctx context.Context, event string) error {
	err := s.machine.Event(ctx, event)
	var noTransition fsm.NoTransitionError
	if err == nil || errors.As(err, &noTransition) {
		return nil
	}
	return fmt.Errorf("transition %q from %s: %w", event, s.State(), err)
}

// Found records a located record and moves to StateRecordFound.
func (s *Session) Found(ctx context.Context, ref domain.RecordRef) error {
	if err := s.Fire(ctx, EventFound); err != nil {
		return err
	}
	s.ActiveDate = ref.Date
	s.RecordRef = ref
	s.FieldCursor = ""
	s.PendingAppendField = ""
	return nil
}

// BeginEdit enters the first field state.
func (s *Session) BeginEdit(ctx context.Context) error {
	if err := s.Fire(ctx, EventEdit); err != nil {
		return err
	}
	s.FieldCursor = domain.FieldOrder[0]
	return nil
}

// SearchAgain drops the located record and waits for a new date.
func (s *Session) SearchAgain(ctx context.Context) error {
	if err := s.Fire(ctx, EventSearchAgain); err != nil {
		return err
	}
	s.clear()
	return nil
}

// StartAppend remembers the current field and waits for append text.
func (s *Session) StartAppend(ctx context.Context) error {
	field := s.FieldCursor
	if err := s.Fire(ctx, EventAppend); err != nil {
		return err
	}
	s.PendingAppendField = field
	return nil
}

// ResumeAfterAppend returns to the edit state of the pending field so that
// Advance moves past it.
func (s *Session) ResumeAfterAppend() error {
	if s.State() != StateAwaitingAppendText || !s.PendingAppendField.Valid() {
		return fmt.Errorf("resume from %s with pending field %q", s.State(), s.PendingAppendField)
	}
	s.machine.SetState(string(EditState(s.PendingAppendField)))
	s.FieldCursor = s.PendingAppendField
	s.PendingAppendField = ""
	return nil
}

// Advance moves the cursor to the next field. done is true once the last
// field has been passed; the session is then back in StateAwaitingDate.
func (s *Session) Advance(ctx context.Context) (done bool, err error) {
	if err := s.Fire(ctx, EventAdvance); err != nil {
		return false, err
	}
	if f, ok := s.State().EditField(); ok {
		s.FieldCursor = f
		return false, nil
	}
	if err := s.Fire(ctx, EventRestart); err != nil {
		return false, err
	}
	s.clear()
	return true, nil
}

// Reset clears all dialogue data and returns to StateAwaitingDate.
func (s *Session) Reset(ctx context.Context) {
	if err := s.Fire(ctx, EventReset); err != nil {
		slog.Warn("Reset transition rejected, forcing state", "user_id", s.UserID, "error", err)
		s.machine.SetState(string(StateAwaitingDate))
	}
	s.clear()
}

func (s *Session) clear() {
	s.ActiveDate = ""
	s.RecordRef = domain.RecordRef{}
	s.FieldCursor = ""
	s.PendingAppendField = ""
}

// RequestCancel marks every transition started before now as superseded.
func (s *Session) RequestCancel() {
	s.cancelSeq.Add(1)
}

// CancelMark returns a token for CancelledSince.
func (s *Session) CancelMark() uint64 {
	return s.cancelSeq.Load()
}

// CancelledSince reports whether a cancel was requested after mark was taken.
func (s *Session) CancelledSince(mark uint64) bool {
	return s.cancelSeq.Load() != mark
}
