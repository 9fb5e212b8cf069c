// Package dispatch routes inbound chat events to the dialogue engine, one
// ordered worker per user.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/trainbot/internal/dialogue"
	"github.com/ashureev/trainbot/internal/session"
	"github.com/google/uuid"
)

// ErrClosed is returned by Submit after Shutdown has started.
var ErrClosed = errors.New("dispatcher is shut down")

const sendTimeout = 10 * time.Second

// Sender delivers a reply to a user on one transport.
type Sender interface {
	Send(ctx context.Context, userID string, reply dialogue.Reply) error
}

// Handler applies an event to a session. *dialogue.Engine implements it.
type Handler interface {
	Handle(ctx context.Context, s *session.Session, ev dialogue.Event) dialogue.Reply
}

// queued carries the cancel mark of the session at submit time. An event
// whose session saw a cancel after it was queued is dropped unprocessed.
type queued struct {
	ev   dialogue.Event
	to   Sender
	sess *session.Session
	mark uint64
}

// mailbox is a user's pending events. It exists only while a worker runs.
type mailbox struct {
	queue []queued
}

// Dispatcher serializes events per user and runs different users concurrently.
type Dispatcher struct {
	handler  Handler
	sessions *session.Registry

	mu        sync.Mutex
	mailboxes map[string]*mailbox
	closed    bool
	wg        sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Dispatcher.
func New(handler Handler, sessions *session.Registry) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler:   handler,
		sessions:  sessions,
		mailboxes: make(map[string]*mailbox),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit queues ev for its user. A cancel command also supersedes whatever
// the user's worker is currently waiting on.
func (d *Dispatcher) Submit(ev dialogue.Event, to Sender) error {
	if ev.UserID == "" {
		return errors.New("event has no user id")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	sess := d.sessions.GetOrCreate(ev.UserID)
	if isCancel(ev) {
		sess.RequestCancel()
	}

	mb, ok := d.mailboxes[ev.UserID]
	if !ok {
		mb = &mailbox{}
		d.mailboxes[ev.UserID] = mb
		d.wg.Add(1)
		go d.run(ev.UserID, mb)
	}
	mb.queue = append(mb.queue, queued{ev: ev, to: to, sess: sess, mark: sess.CancelMark()})

	slog.Debug("Event queued", "user_id", ev.UserID, "event_id", ev.ID, "kind", ev.Kind.String(), "pending", len(mb.queue))
	return nil
}

// run drains one user's mailbox and removes it once empty.
func (d *Dispatcher) run(userID string, mb *mailbox) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(mb.queue) == 0 {
			delete(d.mailboxes, userID)
			d.mu.Unlock()
			return
		}
		item := mb.queue[0]
		mb.queue = mb.queue[1:]
		d.mu.Unlock()

		d.process(item)
	}
}

func isCancel(ev dialogue.Event) bool {
	return ev.Kind == dialogue.KindCommand && strings.EqualFold(ev.Command, dialogue.CommandCancel)
}

func (d *Dispatcher) process(item queued) {
	ev := item.ev
	if !isCancel(ev) && item.sess.CancelledSince(item.mark) {
		slog.Debug("Event superseded by cancel", "user_id", ev.UserID, "event_id", ev.ID)
		return
	}
	s := d.sessions.GetOrCreate(ev.UserID)

	reply := d.handler.Handle(d.ctx, s, ev)
	s.UpdatedAt = time.Now()
	d.sessions.Touch(s)

	if reply.Discarded {
		return
	}
	reply.Choices = dialogue.ChoicesFor(s.State())

	if item.to == nil {
		return
	}
	ctx, cancel := context.WithTimeout(d.ctx, sendTimeout)
	defer cancel()
	if err := item.to.Send(ctx, ev.UserID, reply); err != nil {
		slog.Error("Failed to send reply", "user_id", ev.UserID, "event_id", ev.ID, "error", err)
	}
}

// Pending returns the number of users with queued or running events.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mailboxes)
}

// Shutdown stops accepting events and waits for workers to drain. When ctx
// expires first, in-flight store calls are cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
