package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/trainbot/internal/dialogue"
	"github.com/ashureev/trainbot/internal/domain"
	"github.com/ashureev/trainbot/internal/session"
	"github.com/ashureev/trainbot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	userID string
	reply  dialogue.Reply
}

// recordingSender collects replies in delivery order.
type recordingSender struct {
	mu      sync.Mutex
	replies []sent
	notify  chan struct{}
}

func newRecordingSender() *recordingSender {
	return &recordingSender{notify: make(chan struct{}, 1024)}
}

func (r *recordingSender) Send(_ context.Context, userID string, reply dialogue.Reply) error {
	r.mu.Lock()
	r.replies = append(r.replies, sent{userID: userID, reply: reply})
	r.mu.Unlock()
	r.notify <- struct{}{}
	return nil
}

func (r *recordingSender) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.notify:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for reply %d of %d", i+1, n)
		}
	}
}

func (r *recordingSender) forUser(userID string) []dialogue.Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dialogue.Reply
	for _, s := range r.replies {
		if s.userID == userID {
			out = append(out, s.reply)
		}
	}
	return out
}

// echoHandler replies with the event text after an optional delay and
// records the order in which it saw each user's events.
type echoHandler struct {
	delay  time.Duration
	mu     sync.Mutex
	seen   map[string][]string
	active map[string]int
	maxPar map[string]int
}

func newEchoHandler(delay time.Duration) *echoHandler {
	return &echoHandler{delay: delay, seen: map[string][]string{}, active: map[string]int{}, maxPar: map[string]int{}}
}

func (h *echoHandler) Handle(_ context.Context, s *session.Session, ev dialogue.Event) dialogue.Reply {
	h.mu.Lock()
	h.active[s.UserID]++
	if h.active[s.UserID] > h.maxPar[s.UserID] {
		h.maxPar[s.UserID] = h.active[s.UserID]
	}
	h.seen[s.UserID] = append(h.seen[s.UserID], ev.Text)
	h.mu.Unlock()

	time.Sleep(h.delay)

	h.mu.Lock()
	h.active[s.UserID]--
	h.mu.Unlock()
	return dialogue.Reply{Text: ev.Text}
}

func TestDispatcher_PerUserOrdering(t *testing.T) {
	h := newEchoHandler(time.Millisecond)
	d := New(h, session.NewRegistry(time.Hour))
	out := newRecordingSender()

	users := []string{"tg:1", "tg:2", "web:3"}
	const perUser = 20
	for i := 0; i < perUser; i++ {
		for _, u := range users {
			require.NoError(t, d.Submit(dialogue.Event{UserID: u, Kind: dialogue.KindText, Text: fmt.Sprint(i)}, out))
		}
	}
	out.wait(t, perUser*len(users))
	require.NoError(t, d.Shutdown(context.Background()))

	for _, u := range users {
		replies := out.forUser(u)
		require.Len(t, replies, perUser)
		for i, r := range replies {
			assert.Equal(t, fmt.Sprint(i), r.Text, "user %s", u)
		}
		assert.Equal(t, 1, h.maxPar[u], "user %s events overlapped", u)
	}
	assert.Zero(t, d.Pending())
}

func TestDispatcher_UsersRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	blocking := handlerFunc(func(_ context.Context, s *session.Session, ev dialogue.Event) dialogue.Reply {
		if s.UserID == "slow" {
			<-release
		}
		return dialogue.Reply{Text: ev.Text}
	})
	d := New(blocking, session.NewRegistry(time.Hour))
	out := newRecordingSender()

	require.NoError(t, d.Submit(dialogue.Event{UserID: "slow", Kind: dialogue.KindText, Text: "a"}, out))
	require.NoError(t, d.Submit(dialogue.Event{UserID: "fast", Kind: dialogue.KindText, Text: "b"}, out))

	out.wait(t, 1)
	assert.Len(t, out.forUser("fast"), 1)
	assert.Empty(t, out.forUser("slow"))

	close(release)
	out.wait(t, 1)
	require.NoError(t, d.Shutdown(context.Background()))
}

type handlerFunc func(ctx context.Context, s *session.Session, ev dialogue.Event) dialogue.Reply

func (f handlerFunc) Handle(ctx context.Context, s *session.Session, ev dialogue.Event) dialogue.Reply {
	return f(ctx, s, ev)
}

func TestDispatcher_RendersChoicesForState(t *testing.T) {
	st := store.NewMemory(domain.TrainingRecord{Date: "18.10.2026", LoadType: "medium", Workout: "5km run"})
	d := New(dialogue.NewEngine(st), session.NewRegistry(time.Hour))
	out := newRecordingSender()

	require.NoError(t, d.Submit(ParseText("tg:1", "/start"), out))
	require.NoError(t, d.Submit(ParseText("tg:1", "18.10.2026"), out))
	require.NoError(t, d.Submit(ParseText("tg:1", "Edit"), out))
	require.NoError(t, d.Submit(ParseText("tg:1", "append"), out))
	out.wait(t, 4)
	require.NoError(t, d.Shutdown(context.Background()))

	replies := out.forUser("tg:1")
	require.Len(t, replies, 4)
	assert.Equal(t, []dialogue.Choice{dialogue.ChoiceToday}, replies[0].Choices)
	assert.Equal(t, []dialogue.Choice{dialogue.ChoiceEdit, dialogue.ChoiceSearchAgain}, replies[1].Choices)
	assert.Equal(t, []dialogue.Choice{dialogue.ChoiceSkip, dialogue.ChoiceAppend}, replies[2].Choices)
	assert.Empty(t, replies[3].Choices)
}

func TestDispatcher_ConcurrentUsersEditIndependently(t *testing.T) {
	var records []domain.TrainingRecord
	const users = 8
	for i := 0; i < users; i++ {
		records = append(records, domain.TrainingRecord{Date: fmt.Sprintf("%02d.10.2026", i+1), Workout: "base"})
	}
	st := store.NewMemory(records...)
	d := New(dialogue.NewEngine(st), session.NewRegistry(time.Hour))
	out := newRecordingSender()

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := fmt.Sprintf("tg:%d", i)
			for _, msg := range []string{records[i].Date, "Edit", fmt.Sprintf("workout %d", i), "Skip", "Append", fmt.Sprintf("goal %d", i)} {
				assert.NoError(t, d.Submit(ParseText(u, msg), out))
			}
		}(i)
	}
	wg.Wait()
	out.wait(t, users*6)
	require.NoError(t, d.Shutdown(context.Background()))

	for i, rec := range st.Snapshot() {
		assert.Equal(t, fmt.Sprintf("workout %d", i), rec.Workout)
		assert.Equal(t, "", rec.VolumeContent)
		assert.Equal(t, fmt.Sprintf("goal %d", i), rec.Goal)

		replies := out.forUser(fmt.Sprintf("tg:%d", i))
		require.Len(t, replies, 6)
		assert.Contains(t, replies[5].Text, "Training record updated!")
	}
}

func TestDispatcher_CancelSupersedesInFlightLookup(t *testing.T) {
	st := store.NewMemory(domain.TrainingRecord{Date: "18.10.2026", Workout: "5km run"})
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	st.BeforeFind = func(context.Context, string) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}
	sessions := session.NewRegistry(time.Hour)
	d := New(dialogue.NewEngine(st), sessions)
	out := newRecordingSender()

	require.NoError(t, d.Submit(ParseText("tg:1", "18.10.2026"), out))
	<-entered
	require.NoError(t, d.Submit(ParseText("tg:1", "/cancel"), out))
	close(release)

	out.wait(t, 1)
	require.NoError(t, d.Shutdown(context.Background()))

	replies := out.forUser("tg:1")
	require.Len(t, replies, 1, "the lookup result is dropped")
	assert.Contains(t, replies[0].Text, "Action cancelled.")

	s, ok := sessions.Get("tg:1")
	require.True(t, ok)
	assert.Equal(t, session.StateAwaitingDate, s.State())
	assert.True(t, s.RecordRef.IsZero())
}

func TestDispatcher_CancelDropsEventsQueuedBehindIt(t *testing.T) {
	st := store.NewMemory(domain.TrainingRecord{Date: "18.10.2026", Workout: "5km run"})
	sessions := session.NewRegistry(time.Hour)
	d := New(dialogue.NewEngine(st), sessions)
	out := newRecordingSender()

	require.NoError(t, d.Submit(ParseText("tg:1", "18.10.2026"), out))
	require.NoError(t, d.Submit(ParseText("tg:1", "Edit"), out))
	out.wait(t, 2)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	st.BeforeUpdate = func(context.Context, domain.RecordRef, domain.Field) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}

	require.NoError(t, d.Submit(ParseText("tg:1", "10km run"), out))
	<-entered
	require.NoError(t, d.Submit(ParseText("tg:1", "3x10 min"), out))
	require.NoError(t, d.Submit(ParseText("tg:1", "/cancel"), out))
	close(release)

	out.wait(t, 1)
	require.NoError(t, d.Shutdown(context.Background()))

	replies := out.forUser("tg:1")
	require.Len(t, replies, 3)
	assert.Contains(t, replies[2].Text, "Action cancelled.")

	rec := st.Snapshot()[0]
	assert.Equal(t, "10km run", rec.Workout, "the queued text never reaches the store")
	assert.Empty(t, rec.VolumeContent)

	s, ok := sessions.Get("tg:1")
	require.True(t, ok)
	assert.Equal(t, session.StateAwaitingDate, s.State())
}

func TestDispatcher_SubmitAfterShutdown(t *testing.T) {
	d := New(newEchoHandler(0), session.NewRegistry(time.Hour))
	require.NoError(t, d.Shutdown(context.Background()))
	assert.ErrorIs(t, d.Submit(dialogue.Event{UserID: "u", Kind: dialogue.KindText}, nil), ErrClosed)
	assert.Error(t, d.Submit(dialogue.Event{}, nil))
}

func TestDispatcher_ShutdownTimesOut(t *testing.T) {
	release := make(chan struct{})
	h := handlerFunc(func(ctx context.Context, _ *session.Session, _ dialogue.Event) dialogue.Reply {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return dialogue.Reply{}
	})
	d := New(h, session.NewRegistry(time.Hour))
	require.NoError(t, d.Submit(dialogue.Event{UserID: "u", Kind: dialogue.KindText}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
	close(release)
}
