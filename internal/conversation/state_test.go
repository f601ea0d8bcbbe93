package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/ace-chat/internal/identity"
	"github.com/ashureev/ace-chat/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitQueryAppendsExchange(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestState(backend, &fakeClock{})

	require.True(t, s.SubmitQuery(context.Background(), "  how do I reset my password?  "))

	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "how do I reset my password?"},
		{Role: RoleAssistant, Content: "hello", ResponseID: "r1"},
	}, s.Turns())
	assert.Equal(t, []wire.ChatRequest{{Query: "how do I reset my password?", SessionID: "sess_test"}}, backend.chats())

	snap := s.Snapshot()
	assert.False(t, snap.Pending)
	assert.False(t, snap.PendingVisible)
	assert.Equal(t, "r1", snap.EligibleResponseID)
}

func TestSubmitQueryIgnoresBlankText(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestState(backend, &fakeClock{})

	assert.False(t, s.SubmitQuery(context.Background(), ""))
	assert.False(t, s.SubmitQuery(context.Background(), " \t\n"))
	assert.Empty(t, s.Turns())
	assert.Empty(t, backend.chats())
}

func TestSubmitQueryWhilePendingIsDropped(t *testing.T) {
	g := newGate()
	backend := &fakeBackend{chatFn: func(ctx context.Context, _ wire.ChatRequest) (*wire.ChatReply, error) {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}
		return &wire.ChatReply{ResponseID: "r1", Message: "first"}, nil
	}}
	s := newTestState(backend, &fakeClock{})

	done := runAsync(func() bool { return s.SubmitQuery(context.Background(), "first") })
	g.awaitStart(t)

	assert.True(t, s.Snapshot().Pending)
	assert.False(t, s.SubmitQuery(context.Background(), "second"))

	close(g.release)
	assert.True(t, await(t, done))
	assert.Len(t, backend.chats(), 1)
	assert.Len(t, s.Turns(), 2)
}

func TestLoaderShowsAfterDebounce(t *testing.T) {
	g := newGate()
	backend := &fakeBackend{chatFn: func(ctx context.Context, _ wire.ChatRequest) (*wire.ChatReply, error) {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}
		return &wire.ChatReply{ResponseID: "r1", Message: "done"}, nil
	}}
	clock := &fakeClock{}
	s := newTestState(backend, clock)

	done := runAsync(func() bool { return s.SubmitQuery(context.Background(), "slow") })
	g.awaitStart(t)

	clock.Advance(LoaderDelay - time.Millisecond)
	assert.False(t, s.Snapshot().PendingVisible)
	clock.Advance(time.Millisecond)
	assert.True(t, s.Snapshot().PendingVisible)

	close(g.release)
	await(t, done)
	snap := s.Snapshot()
	assert.False(t, snap.Pending)
	assert.False(t, snap.PendingVisible)
}

func TestLoaderNeverShowsForFastReply(t *testing.T) {
	clock := &fakeClock{}
	s := newTestState(&fakeBackend{}, clock)

	var mu sync.Mutex
	var sawVisible bool
	s.Subscribe(func() {
		if s.Snapshot().PendingVisible {
			mu.Lock()
			sawVisible = true
			mu.Unlock()
		}
	})

	require.True(t, s.SubmitQuery(context.Background(), "fast"))
	clock.Advance(time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, sawVisible)
	assert.False(t, s.Snapshot().PendingVisible)
	assert.Zero(t, clock.active())
}

func TestFailedRepliesRenderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "error envelope",
			err:  (&wire.ErrorEnvelope{Error: "Upstream error", Status: 503, Body: "overloaded"}).AsError(),
			want: "Error: Upstream error (503) — overloaded",
		},
		{
			name: "transport failure",
			err:  errors.New("connection refused"),
			want: "There was an error contacting the assistant. connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			s := newTestState(backend, &fakeClock{})
			require.True(t, s.SubmitQuery(context.Background(), "hi"))
			require.Equal(t, "r1", s.Snapshot().EligibleResponseID)

			backend.chatFn = func(context.Context, wire.ChatRequest) (*wire.ChatReply, error) {
				return nil, tt.err
			}
			require.True(t, s.SubmitQuery(context.Background(), "again"))

			turns := s.Turns()
			require.Len(t, turns, 4)
			assert.Equal(t, Turn{Role: RoleAssistant, Content: tt.want}, turns[3])
			assert.Empty(t, s.Snapshot().EligibleResponseID)
		})
	}
}

func TestRequestTimeoutReleasesPending(t *testing.T) {
	backend := &fakeBackend{chatFn: func(ctx context.Context, _ wire.ChatRequest) (*wire.ChatReply, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	s := newTestState(backend, &fakeClock{}, WithRequestTimeout(20*time.Millisecond))

	require.True(t, s.SubmitQuery(context.Background(), "hang"))

	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Contains(t, turns[1].Content, context.DeadlineExceeded.Error())
	assert.False(t, s.Snapshot().Pending)
}

func TestPlaceholderFollowsTranscript(t *testing.T) {
	s := newTestState(&fakeBackend{}, &fakeClock{})
	assert.Equal(t, "What can I support you with", s.Snapshot().Placeholder)

	s.SubmitQuery(context.Background(), "hi")
	assert.Equal(t, "What else can I support you with?", s.Snapshot().Placeholder)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newTestState(&fakeBackend{}, &fakeClock{})
	s.SubmitQuery(context.Background(), "hi")

	snap := s.Snapshot()
	snap.Turns[0].Content = "mutated"
	turns := s.Turns()
	turns[1].Content = "mutated"

	assert.Equal(t, "hi", s.Turns()[0].Content)
	assert.Equal(t, "hello", s.Turns()[1].Content)
}

func TestNewGeneratesSessionID(t *testing.T) {
	s := New(&fakeBackend{}, WithClock(&fakeClock{}))
	assert.True(t, strings.HasPrefix(s.SessionID(), identity.SessionPrefix))
	assert.Equal(t, s.SessionID(), s.Snapshot().SessionID)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s := newTestState(&fakeBackend{}, &fakeClock{})
	calls := 0
	unsubscribe := s.Subscribe(func() { calls++ })

	s.SubmitQuery(context.Background(), "one")
	seen := calls
	assert.Positive(t, seen)

	unsubscribe()
	s.SubmitQuery(context.Background(), "two")
	assert.Equal(t, seen, calls)
}

func TestCloseCancelsInFlightCallAndTimers(t *testing.T) {
	g := newGate()
	backend := &fakeBackend{chatFn: func(ctx context.Context, _ wire.ChatRequest) (*wire.ChatReply, error) {
		return nil, g.wait(ctx)
	}}
	clock := &fakeClock{}
	s := newTestState(backend, clock)

	var mu sync.Mutex
	notified := 0
	s.Subscribe(func() {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	done := runAsync(func() bool { return s.SubmitQuery(context.Background(), "hi") })
	g.awaitStart(t)
	require.Equal(t, 1, clock.active())

	mu.Lock()
	before := notified
	mu.Unlock()

	s.Close()
	await(t, done)
	clock.Advance(time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, before, notified)
	assert.Zero(t, clock.active())
	assert.Contains(t, s.Turns()[1].Content, context.Canceled.Error())
	assert.False(t, s.SubmitQuery(context.Background(), "after close"))
}
