package conversation

import (
	"context"
	"time"

	"github.com/ashureev/ace-chat/internal/wire"
)

const (
	// AckVisibleFor is how long an acknowledgement stays visible.
	AckVisibleFor = 2000 * time.Millisecond
	// AckFadeFor is how long a hidden acknowledgement lingers before disposal.
	AckFadeFor = 200 * time.Millisecond

	feedbackNotePrefix = "Could not send feedback: "
)

var ackMessages = map[wire.Rating]string{
	wire.RatingUp:   "Thanks for the feedback!",
	wire.RatingDown: "Feedback recorded.",
}

// Ack is the transient confirmation shown next to a rating control.
type Ack struct {
	Rating  wire.Rating `json:"rating"`
	Message string      `json:"message"`
	Visible bool        `json:"visible"`
}

type ackEntry struct {
	Ack
	seq   uint64
	timer Timer
}

// SubmitRating sends rating for the latest assistant reply. It reports
// whether a submission was made; it is a no-op when no reply is eligible or
// another submission is still in flight.
func (s *State) SubmitRating(ctx context.Context, rating wire.Rating) bool {
	if !rating.Valid() {
		return false
	}

	s.mu.Lock()
	if s.closed || s.eligible == "" || s.feedbackInFlight != "" {
		s.mu.Unlock()
		return false
	}
	s.feedbackInFlight = rating
	s.note = ""
	req := wire.FeedbackRequest{
		ResponseID: s.eligible,
		SessionID:  s.sessionID,
		Rating:     rating,
	}
	s.mu.Unlock()
	s.notify()

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	err := s.backend.Feedback(callCtx, req)

	s.mu.Lock()
	s.feedbackInFlight = ""
	if err != nil {
		s.note = feedbackNotePrefix + describeError(err)
		s.logger.Warn("Feedback failed", "response_id", req.ResponseID, "rating", rating, "error", err)
	} else if !s.closed {
		s.showAck(rating)
		s.logger.Debug("Feedback recorded", "response_id", req.ResponseID, "rating", rating)
	}
	s.mu.Unlock()
	s.notify()
	return true
}

// DismissNote clears the feedback failure note.
func (s *State) DismissNote() {
	s.mu.Lock()
	if s.note == "" {
		s.mu.Unlock()
		return
	}
	s.note = ""
	s.mu.Unlock()
	s.notify()
}

// showAck must be called with s.mu held.
func (s *State) showAck(rating wire.Rating) {
	if old := s.acks[rating]; old != nil {
		old.timer.Stop()
	}
	s.ackSeq++
	seq := s.ackSeq
	entry := &ackEntry{
		Ack: Ack{Rating: rating, Message: ackMessages[rating], Visible: true},
		seq: seq,
	}
	entry.timer = s.clock.AfterFunc(AckVisibleFor, func() { s.hideAck(rating, seq) })
	s.acks[rating] = entry
}

func (s *State) hideAck(rating wire.Rating, seq uint64) {
	s.mu.Lock()
	entry := s.acks[rating]
	if s.closed || entry == nil || entry.seq != seq {
		s.mu.Unlock()
		return
	}
	entry.Visible = false
	entry.timer = s.clock.AfterFunc(AckFadeFor, func() { s.disposeAck(rating, seq) })
	s.mu.Unlock()
	s.notify()
}

func (s *State) disposeAck(rating wire.Rating, seq uint64) {
	s.mu.Lock()
	entry := s.acks[rating]
	if s.closed || entry == nil || entry.seq != seq {
		s.mu.Unlock()
		return
	}
	delete(s.acks, rating)
	s.mu.Unlock()
	s.notify()
}

// ackList must be called with s.mu held.
func (s *State) ackList() []Ack {
	out := []Ack{}
	for _, r := range []wire.Rating{wire.RatingUp, wire.RatingDown} {
		if entry := s.acks[r]; entry != nil {
			out = append(out, entry.Ack)
		}
	}
	return out
}

func describeError(err error) string {
	if env, ok := wire.EnvelopeFrom(err); ok {
		return env.Describe()
	}
	return err.Error()
}
