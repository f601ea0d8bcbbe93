// Ace chat terminal client
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/ace-chat/internal/chatclient"
	"github.com/ashureev/ace-chat/internal/conversation"
	"github.com/ashureev/ace-chat/internal/wire"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultProxyURL = "http://localhost:8080"

func main() {
	_ = godotenv.Load()

	proxyURL := os.Getenv("ACE_PROXY_URL")
	if proxyURL == "" {
		proxyURL = defaultProxyURL
	}

	var rootCmd = &cobra.Command{
		Use:   "chat",
		Short: "Chat with the Ace assistant through a running proxy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, _ := cmd.Flags().GetString("proxy-url")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			verbose, _ := cmd.Flags().GetBool("verbose")

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			state := conversation.New(
				chatclient.New(url, 0),
				conversation.WithLogger(logger),
				conversation.WithRequestTimeout(timeout),
			)
			defer state.Close()

			return newSession(state, cmd.OutOrStdout()).run(ctx, cmd.InOrStdin())
		},
	}

	rootCmd.Flags().String("proxy-url", proxyURL, "Base URL of the chat proxy (env ACE_PROXY_URL)")
	rootCmd.Flags().Duration("timeout", 60*time.Second, "Per-request timeout")
	rootCmd.Flags().BoolP("verbose", "v", false, "Log requests to stderr")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// session renders a conversation in a terminal, one line of input at a time.
type session struct {
	state   *conversation.State
	out     io.Writer
	printed int

	user *color.Color
	bot  *color.Color
	dim  *color.Color
	warn *color.Color
	ok   *color.Color
}

// syncWriter serializes writes from the input loop and state listeners.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

func newSession(state *conversation.State, out io.Writer) *session {
	return &session{
		state: state,
		out:   &syncWriter{w: out},
		user:  color.New(color.FgCyan, color.Bold),
		bot:   color.New(color.FgWhite),
		dim:   color.New(color.Faint),
		warn:  color.New(color.FgYellow),
		ok:    color.New(color.FgGreen),
	}
}

func (s *session) run(ctx context.Context, in io.Reader) error {
	s.dim.Fprintf(s.out, "Session %s. Commands: /up, /down, /quit\n", s.state.SessionID())

	// The loader line appears only once a query outlasts the debounce.
	var shownMu sync.Mutex
	shown := false
	unsubscribe := s.state.Subscribe(func() {
		visible := s.state.Snapshot().PendingVisible
		shownMu.Lock()
		defer shownMu.Unlock()
		if visible && !shown {
			s.dim.Fprintln(s.out, "…")
		}
		shown = visible
	})
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		s.prompt()
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if s.handle(ctx, line) {
				return nil
			}
		}
	}
}

func (s *session) prompt() {
	s.user.Fprintf(s.out, "%s > ", s.state.Snapshot().Placeholder)
}

// handle processes one input line and reports whether to quit.
func (s *session) handle(ctx context.Context, line string) bool {
	switch strings.TrimSpace(line) {
	case "/quit", "/exit":
		return true
	case "/up":
		s.rate(ctx, wire.RatingUp)
	case "/down":
		s.rate(ctx, wire.RatingDown)
	default:
		if s.state.SubmitQuery(ctx, line) {
			s.printTurns()
		}
	}
	return false
}

func (s *session) rate(ctx context.Context, rating wire.Rating) {
	if !s.state.SubmitRating(ctx, rating) {
		s.warn.Fprintln(s.out, "Nothing to rate yet.")
		return
	}
	snap := s.state.Snapshot()
	if snap.Note != "" {
		s.warn.Fprintln(s.out, snap.Note)
		s.state.DismissNote()
		return
	}
	for _, ack := range snap.Acks {
		if ack.Rating == rating {
			s.ok.Fprintln(s.out, ack.Message)
		}
	}
}

func (s *session) printTurns() {
	turns := s.state.Turns()
	for ; s.printed < len(turns); s.printed++ {
		turn := turns[s.printed]
		if turn.Role == conversation.RoleAssistant {
			s.bot.Fprintln(s.out, turn.Content)
		}
	}
}
