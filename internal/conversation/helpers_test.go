package conversation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/ace-chat/internal/wire"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	due     time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, due: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in order outside the lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.due > target {
				continue
			}
			if next == nil || t.due < next.due {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.due
		c.mu.Unlock()
		next.f()
	}
}

func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeBackend struct {
	mu            sync.Mutex
	chatCalls     []wire.ChatRequest
	feedbackCalls []wire.FeedbackRequest

	chatFn     func(ctx context.Context, req wire.ChatRequest) (*wire.ChatReply, error)
	feedbackFn func(ctx context.Context, req wire.FeedbackRequest) error
}

func (b *fakeBackend) Chat(ctx context.Context, req wire.ChatRequest) (*wire.ChatReply, error) {
	b.mu.Lock()
	b.chatCalls = append(b.chatCalls, req)
	fn := b.chatFn
	b.mu.Unlock()
	if fn == nil {
		return &wire.ChatReply{ResponseID: "r1", Message: "hello"}, nil
	}
	return fn(ctx, req)
}

func (b *fakeBackend) Feedback(ctx context.Context, req wire.FeedbackRequest) error {
	b.mu.Lock()
	b.feedbackCalls = append(b.feedbackCalls, req)
	fn := b.feedbackFn
	b.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, req)
}

func (b *fakeBackend) chats() []wire.ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]wire.ChatRequest(nil), b.chatCalls...)
}

func (b *fakeBackend) feedbacks() []wire.FeedbackRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]wire.FeedbackRequest(nil), b.feedbackCalls...)
}

// gate blocks a backend call until released, signalling when it starts.
type gate struct {
	started chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gate) wait(ctx context.Context) error {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) awaitStart(t *testing.T) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("backend call never started")
	}
}

func newTestState(b Backend, clock *fakeClock, opts ...Option) *State {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(clock), WithLogger(logger), WithSessionID("sess_test")}, opts...)
	s := New(b, opts...)
	return s
}

func runAsync(fn func() bool) <-chan bool {
	done := make(chan bool, 1)
	go func() { done <- fn() }()
	return done
}

func await(t *testing.T, done <-chan bool) bool {
	t.Helper()
	select {
	case v := <-done:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("call did not return")
		return false
	}
}
