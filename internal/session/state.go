// Package session holds per-user dialogue state.
package session

import (
	"strings"

	"github.com/ashureev/trainbot/internal/domain"
	"github.com/looplab/fsm"
)

// State is a node of the dialogue state machine.
type State string

const (
	StateAwaitingDate       State = "awaiting_date"
	StateRecordFound        State = "record_found"
	StateAwaitingAppendText State = "awaiting_append_text"
	StateDone               State = "done"

	editPrefix = "edit_"
)

// Transition names.
const (
	EventFound       = "found"
	EventEdit        = "edit"
	EventSearchAgain = "search_again"
	EventAdvance     = "advance"
	EventAppend      = "append"
	EventRestart     = "restart"
	EventReset       = "reset"
)

// EditState returns the edit state for field f.
func EditState(f domain.Field) State {
	return State(editPrefix + string(f))
}

// EditField returns the field being edited in s, if s is an edit state.
func (s State) EditField() (domain.Field, bool) {
	if !strings.HasPrefix(string(s), editPrefix) {
		return "", false
	}
	f := domain.Field(strings.TrimPrefix(string(s), editPrefix))
	return f, f.Valid()
}

// AllStates lists every state in traversal order.
func AllStates() []State {
	states := []State{StateAwaitingDate, StateRecordFound}
	for _, f := range domain.FieldOrder {
		states = append(states, EditState(f))
	}
	return append(states, StateAwaitingAppendText, StateDone)
}

// transitions builds the event table from domain.FieldOrder so adding a field
// only means extending the order.
func transitions() fsm.Events {
	var (
		editStates []string
		all        []string
	)
	for _, s := range AllStates() {
		all = append(all, string(s))
	}

	events := fsm.Events{
		{Name: EventFound, Src: []string{string(StateAwaitingDate)}, Dst: string(StateRecordFound)},
		{Name: EventEdit, Src: []string{string(StateRecordFound)}, Dst: string(EditState(domain.FieldOrder[0]))},
		{Name: EventSearchAgain, Src: []string{string(StateRecordFound)}, Dst: string(StateAwaitingDate)},
		{Name: EventRestart, Src: []string{string(StateDone)}, Dst: string(StateAwaitingDate)},
		{Name: EventReset, Src: all, Dst: string(StateAwaitingDate)},
	}

	for _, f := range domain.FieldOrder {
		dst := StateDone
		if next, ok := f.Next(); ok {
			dst = EditState(next)
		}
		editStates = append(editStates, string(EditState(f)))
		events = append(events, fsm.EventDesc{
			Name: EventAdvance,
			Src:  []string{string(EditState(f))},
			Dst:  string(dst),
		})
	}

	return append(events, fsm.EventDesc{
		Name: EventAppend,
		Src:  editStates,
		Dst:  string(StateAwaitingAppendText),
	})
}
