// Package conversation holds the client-side view of one chat session:
// the transcript, the pending query, and feedback on the latest reply.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/ace-chat/internal/identity"
	"github.com/ashureev/ace-chat/internal/wire"
)

const (
	// LoaderDelay is how long a query must stay pending before the loader shows.
	LoaderDelay = 300 * time.Millisecond

	placeholderEmpty   = "What can I support you with"
	placeholderOngoing = "What else can I support you with?"

	contactErrorPrefix = "There was an error contacting the assistant. "
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the transcript.
type Turn struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	ResponseID string `json:"response_id,omitempty"`
}

// Snapshot is a consistent copy of the observable state.
type Snapshot struct {
	SessionID          string      `json:"sessionId"`
	Turns              []Turn      `json:"turns"`
	Pending            bool        `json:"pending"`
	PendingVisible     bool        `json:"pendingVisible"`
	EligibleResponseID string      `json:"eligibleResponseId,omitempty"`
	FeedbackInFlight   wire.Rating `json:"feedbackInFlight,omitempty"`
	Note               string      `json:"note,omitempty"`
	Acks               []Ack       `json:"acks"`
	Placeholder        string      `json:"placeholder"`
}

// Backend performs the two calls a conversation needs.
type Backend interface {
	Chat(ctx context.Context, req wire.ChatRequest) (*wire.ChatReply, error)
	Feedback(ctx context.Context, req wire.FeedbackRequest) error
}

// Option configures a State.
type Option func(*State)

// WithClock sets the clock used for the loader debounce and acknowledgements.
func WithClock(c Clock) Option {
	return func(s *State) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *State) { s.logger = l }
}

// WithRequestTimeout bounds every backend call. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *State) { s.timeout = d }
}

// WithSessionID uses id instead of generating a fresh session id.
func WithSessionID(id string) Option {
	return func(s *State) { s.sessionID = id }
}

// State is safe for concurrent use. Listeners registered with Subscribe are
// called after every change, never while the state lock is held. A listener
// must not call Close or its own unsubscribe function.
type State struct {
	backend Backend
	clock   Clock
	logger  *slog.Logger
	timeout time.Duration

	lifetime context.Context
	cancel   context.CancelFunc

	mu             sync.Mutex
	sessionID      string
	turns          []Turn
	pending        bool
	pendingVisible bool
	loaderTimer    Timer
	loaderSeq      uint64
	closed         bool

	eligible         string
	feedbackInFlight wire.Rating
	note             string
	acks             map[wire.Rating]*ackEntry
	ackSeq           uint64

	notifyMu     sync.Mutex
	listeners    map[uint64]func()
	nextListener uint64
}

// New creates a conversation bound to backend.
func New(backend Backend, opts ...Option) *State {
	s := &State{
		backend:   backend,
		clock:     SystemClock(),
		logger:    slog.Default(),
		acks:      make(map[wire.Rating]*ackEntry),
		listeners: make(map[uint64]func()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessionID == "" {
		s.sessionID = identity.Generate()
	}
	s.logger = s.logger.With("component", "conversation", "session_id", s.sessionID)
	s.lifetime, s.cancel = context.WithCancel(context.Background())
	return s
}

// SessionID returns the id sent with every call of this conversation.
func (s *State) SessionID() string {
	return s.sessionID
}

// SubmitQuery sends text to the backend and appends the exchange to the
// transcript. It blocks until the assistant turn is appended and reports
// whether the query was accepted.
func (s *State) SubmitQuery(ctx context.Context, text string) bool {
	query := strings.TrimSpace(text)
	if query == "" {
		return false
	}

	s.mu.Lock()
	if s.closed || s.pending {
		s.mu.Unlock()
		return false
	}
	s.turns = append(s.turns, Turn{Role: RoleUser, Content: query})
	s.pending = true
	s.loaderSeq++
	seq := s.loaderSeq
	s.loaderTimer = s.clock.AfterFunc(LoaderDelay, func() { s.showLoader(seq) })
	s.mu.Unlock()
	s.notify()

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	reply, err := s.backend.Chat(callCtx, wire.ChatRequest{Query: query, SessionID: s.sessionID})
	turn := assistantTurn(reply, err)
	if err != nil {
		s.logger.Warn("Chat request failed", "error", err, "duration", time.Since(start))
	} else {
		s.logger.Debug("Chat reply received", "response_id", turn.ResponseID, "duration", time.Since(start))
	}

	s.mu.Lock()
	s.turns = append(s.turns, turn)
	s.eligible = turn.ResponseID
	s.pending = false
	s.pendingVisible = false
	if s.loaderTimer != nil {
		s.loaderTimer.Stop()
		s.loaderTimer = nil
	}
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *State) showLoader(seq uint64) {
	s.mu.Lock()
	if s.closed || !s.pending || seq != s.loaderSeq {
		s.mu.Unlock()
		return
	}
	s.pendingVisible = true
	s.loaderTimer = nil
	s.mu.Unlock()
	s.notify()
}

func assistantTurn(reply *wire.ChatReply, err error) Turn {
	switch {
	case err != nil:
		if env, ok := wire.EnvelopeFrom(err); ok {
			return Turn{Role: RoleAssistant, Content: "Error: " + env.Describe()}
		}
		return Turn{Role: RoleAssistant, Content: contactErrorPrefix + err.Error()}
	case reply == nil:
		return Turn{Role: RoleAssistant, Content: contactErrorPrefix + "empty reply"}
	default:
		return Turn{Role: RoleAssistant, Content: reply.Message, ResponseID: reply.ResponseID}
	}
}

// Turns returns a copy of the transcript.
func (s *State) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}

// Snapshot returns a copy of the observable state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:          s.sessionID,
		Turns:              append([]Turn{}, s.turns...),
		Pending:            s.pending,
		PendingVisible:     s.pendingVisible,
		EligibleResponseID: s.eligible,
		FeedbackInFlight:   s.feedbackInFlight,
		Note:               s.note,
		Acks:               s.ackList(),
		Placeholder:        placeholderOngoing,
	}
	if len(s.turns) == 0 {
		snap.Placeholder = placeholderEmpty
	}
	return snap
}

// Subscribe registers fn to be called after every change. The returned
// function removes it.
func (s *State) Subscribe(fn func()) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.notifyMu.Lock()
		delete(s.listeners, id)
		s.notifyMu.Unlock()
	}
}

func (s *State) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	for _, fn := range s.listeners {
		fn()
	}
}

// Close cancels outstanding timers and in-flight calls. Once Close returns no
// listener is called again and further submissions are ignored.
func (s *State) Close() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.loaderTimer != nil {
		s.loaderTimer.Stop()
		s.loaderTimer = nil
	}
	for _, a := range s.acks {
		a.timer.Stop()
	}
	s.cancel()
}

// callContext derives the context for one backend call: bounded by the
// request timeout and canceled when the state closes.
func (s *State) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	stop := context.AfterFunc(s.lifetime, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
