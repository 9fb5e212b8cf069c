package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/trainbot/internal/domain"
	"github.com/ashureev/trainbot/internal/session"
	"github.com/ashureev/trainbot/internal/store"
)

// errSuperseded marks a transition whose result must be dropped because the
// user cancelled while it was waiting on the store.
var errSuperseded = errors.New("transition superseded by cancel")

// DefaultStoreTimeout bounds a single store call.
const DefaultStoreTimeout = 15 * time.Second

type transitionKey struct {
	state session.State
	kind  EventKind
}

type transitionFunc func(ctx context.Context, s *session.Session, ev Event) (Reply, error)

// Engine runs the dialogue for one session at a time. It holds no per-user
// state and is safe for concurrent use across sessions.
type Engine struct {
	store        store.RecordStore
	now          func() time.Time
	location     *time.Location
	storeTimeout time.Duration
	table        map[transitionKey]transitionFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for the Today shortcut.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the timezone that decides which day is today.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.storeTimeout = d
		}
	}
}

// NewEngine creates an Engine over st.
func NewEngine(st store.RecordStore, opts ...Option) *Engine {
	e := &Engine{
		store:        st,
		now:          time.Now,
		location:     time.Local,
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.table = map[transitionKey]transitionFunc{
		{session.StateAwaitingDate, KindText}:         e.onDateText,
		{session.StateAwaitingDate, KindChoice}:       e.onDateChoice,
		{session.StateRecordFound, KindChoice}:        e.onFoundChoice,
		{session.StateAwaitingAppendText, KindText}:   e.onAppendText,
		{session.StateAwaitingAppendText, KindChoice}: e.onAppendChoice,
	}
	for _, f := range domain.FieldOrder {
		e.table[transitionKey{session.EditState(f), KindText}] = e.onFieldValue
		e.table[transitionKey{session.EditState(f), KindChoice}] = e.onFieldChoice
	}
	return e
}

// Today returns the current date in the engine's timezone as DD.MM.YYYY.
func (e *Engine) Today() string {
	return domain.FormatDate(e.now().In(e.location))
}

// Handle applies ev to s and returns the reply to send. Errors never escape:
// validation problems re-prompt, everything else resets the session.
func (e *Engine) Handle(ctx context.Context, s *session.Session, ev Event) Reply {
	logger := slog.With("user_id", s.UserID, "event_id", ev.ID, "kind", ev.Kind.String(), "state", string(s.State()))

	if ev.Kind == KindCommand {
		return e.onCommand(ctx, s, ev)
	}

	fn, ok := e.table[transitionKey{s.State(), ev.Kind}]
	if !ok {
		return e.fail(ctx, s, logger, unexpectedInput(s.State(), ev.Kind))
	}

	reply, err := fn(ctx, s, ev)
	if err != nil {
		return e.fail(ctx, s, logger, err)
	}
	return reply
}

func (e *Engine) onCommand(ctx context.Context, s *session.Session, ev Event) Reply {
	switch strings.ToLower(ev.Command) {
	case CommandStart:
		s.Reset(ctx)
		return Reply{Text: join(msgGreeting, msgDatePrompt)}
	case CommandCancel:
		s.Reset(ctx)
		return Reply{Text: join(msgCancelled, msgDatePrompt)}
	case CommandHelp:
		return Reply{Text: join(msgHelp, hintFor(s))}
	}
	return Reply{Text: join(msgUnknownCmd, hintFor(s))}
}

// fail turns a failed transition into a reply.
func (e *Engine) fail(ctx context.Context, s *session.Session, logger *slog.Logger, err error) Reply {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, errSuperseded):
		logger.Debug("Dropping result of cancelled transition")
		return Reply{Discarded: true}
	case errors.As(err, &verr):
		return Reply{Text: join(capitalize(verr.Reason)+".", hintFor(s))}
	case domain.IsNotFound(err):
		return Reply{Text: join(msgNotFound, msgDatePrompt)}
	}

	logger.Error("Dialogue transition failed, resetting session", "error", err)
	s.Reset(ctx)
	return Reply{Text: join(msgFailure, msgDatePrompt)}
}

func unexpectedInput(state session.State, kind EventKind) error {
	switch state {
	case session.StateRecordFound:
		return domain.NewValidationError("please use the buttons")
	}
	return domain.NewValidationError(fmt.Sprintf("unexpected %s input", kind))
}

func (e *Engine) onDateText(ctx context.Context, s *session.Session, ev Event) (Reply, error) {
	text := strings.TrimSpace(ev.Text)
	if strings.EqualFold(text, "today") || strings.EqualFold(text, ChoiceToday.Label()) {
		return e.lookup(ctx, s, e.Today())
	}
	if _, err := domain.ParseDate(text); err != nil {
		return Reply{}, err
	}
	return e.lookup(ctx, s, text)
}

func (e *Engine) onDateChoice(ctx context.Context, s *session.Session, ev Event) (Reply, error) {
	if ev.Choice != ChoiceToday {
		return Reply{}, domain.NewValidationError("press Today or type a date")
	}
	return e.lookup(ctx, s, e.Today())
}

func (e *Engine) lookup(ctx context.Context, s *session.Session, date string) (Reply, error) {
	ref, rec, err := e.find(ctx, s, date)
	if err != nil {
		return Reply{}, err
	}
	if err := s.Found(ctx, ref); err != nil {
		return Reply{}, err
	}
	return Reply{Text: foundText(rec)}, nil
}

func (e *Engine) onFoundChoice(ctx context.Context, s *session.Session, ev Event) (Reply, error) {
	switch ev.Choice {
	case ChoiceEdit:
		rec, err := e.current(ctx, s)
		if err != nil {
			return Reply{}, err
		}
		if err := s.BeginEdit(ctx); err != nil {
			return Reply{}, err
		}
		return Reply{Text: fieldPrompt(s.FieldCursor, rec)}, nil
	case ChoiceSearchAgain:
		if err := s.SearchAgain(ctx); err != nil {
			return Reply{}, err
		}
		return Reply{Text: msgDatePrompt}, nil
	}
	return Reply{}, domain.NewValidationError("choose Edit or Search again")
}

func (e *Engine) onFieldChoice(ctx context.Context, s *session.Session, ev Event) (Reply, error) {
	switch ev.Choice {
	case ChoiceSkip:
		return e.advance(ctx, s)
	case ChoiceAppend:
		if err := s.StartAppend(ctx); err != nil {
			return Reply{}, err
		}
		return Reply{Text: appendPrompt(s.PendingAppendField)}, nil
	}
	return e.onFieldValue(ctx, s, asText(ev))
}

func (e *Engine) onFieldValue(ctx context.Context, s *session.Session, ev Event) (Reply, error) {
	value := strings.TrimSpace(ev.Text)
	if value == "" {
		return Reply{}, domain.NewValidationError("the value cannot be empty")
	}
	if err := e.update(ctx, s, s.FieldCursor, value, store.Replace); err != nil {
		return Reply{}, err
	}
	return e.advance(ctx, s)
}

func (e *Engine) onAppendText(ctx context.Context, s *session.Session, ev Event) (Reply, error) {
	value := strings.TrimSpace(ev.Text)
	if value == "" {
		return Reply{}, domain.NewValidationError("type the text to append")
	}
	if err := e.update(ctx, s, s.PendingAppendField, value, store.Append); err != nil {
		return Reply{}, err
	}
	if err := s.ResumeAfterAppend(); err != nil {
		return Reply{}, err
	}
	return e.advance(ctx, s)
}

// onAppendChoice appends a button label as text; any text is accepted here.
func (e *Engine) onAppendChoice(ctx context.Context, s *session.Session, ev Event) (Reply, error) {
	return e.onAppendText(ctx, s, asText(ev))
}

// advance moves to the next field, or finishes the pass and loops back to
// date entry.
func (e *Engine) advance(ctx context.Context, s *session.Session) (Reply, error) {
	done, err := s.Advance(ctx)
	if err != nil {
		return Reply{}, err
	}
	if done {
		return Reply{Text: join(msgUpdated, msgDatePrompt)}, nil
	}
	rec, err := e.current(ctx, s)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fieldPrompt(s.FieldCursor, rec)}, nil
}

// find runs FindByDate under the store timeout and drops the result when a
// cancel arrived meanwhile.
func (e *Engine) find(ctx context.Context, s *session.Session, date string) (domain.RecordRef, *domain.TrainingRecord, error) {
	mark := s.CancelMark()
	tctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	ref, rec, err := e.store.FindByDate(tctx, date)
	if s.CancelledSince(mark) {
		return domain.RecordRef{}, nil, errSuperseded
	}
	return ref, rec, err
}

// current re-reads the active record so prompts show fresh values. A record
// that moved to another row is treated as stale.
func (e *Engine) current(ctx context.Context, s *session.Session) (*domain.TrainingRecord, error) {
	ref, rec, err := e.find(ctx, s, s.ActiveDate)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewStoreError("find", domain.ErrStaleRecord)
		}
		return nil, err
	}
	if ref != s.RecordRef {
		return nil, domain.NewStoreError("find", domain.ErrStaleRecord)
	}
	return rec, nil
}

func (e *Engine) update(ctx context.Context, s *session.Session, field domain.Field, value string, mode store.Mode) error {
	mark := s.CancelMark()
	tctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	err := e.store.UpdateField(tctx, s.RecordRef, field, value, mode)
	if s.CancelledSince(mark) {
		return errSuperseded
	}
	if err != nil {
		return err
	}
	slog.Info("Training record updated", "user_id", s.UserID, "date", s.RecordRef.Date, "field", string(field), "mode", mode.String())
	return nil
}

// asText turns a choice into the free text it was typed as, or its label
// when it came from a button.
func asText(ev Event) Event {
	if ev.Kind != KindChoice {
		return ev
	}
	if strings.TrimSpace(ev.Text) == "" {
		ev.Text = ev.Choice.Label()
	}
	ev.Kind = KindText
	return ev
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
