package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/askstream/iox"
	"github.com/pithecene-io/askstream/log"
	"github.com/pithecene-io/askstream/ndjson"
	"github.com/pithecene-io/askstream/transcript"
)

// AbortedNotice is appended when a session is aborted.
const AbortedNotice = "⚠️ Request aborted by user."

// Source opens the response body of a stream request.
type Source func(ctx context.Context) (io.ReadCloser, error)

// Session is one stream invocation.
//
// Lifecycle: Idle -> Streaming -> {Completed, Aborted, Failed}.
// A session runs at most once.
type Session struct {
	// ID identifies the session in logs and notifications.
	ID string
	// KnowledgeBase is the routing target of the request.
	KnowledgeBase string

	engine *Engine
	logger *log.Logger
	framer *ndjson.Framer
	asm    *transcript.Assembler
	lines  int

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Abort requests cancellation. Safe to call from any goroutine, any number
// of times; it is a no-op unless the session is streaming.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStreaming && s.cancel != nil {
		s.cancel()
	}
}

// Run streams an already open body through the session.
// If body is an io.Closer it is closed when the session ends.
func (s *Session) Run(ctx context.Context, body io.Reader) (*Outcome, error) {
	return s.Start(ctx, func(context.Context) (io.ReadCloser, error) {
		if rc, ok := body.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(body), nil
	})
}

// Start opens the stream with open and processes it to a terminal state.
//
// The returned Outcome is always non-nil unless the session was already
// used. The error is:
//   - nil: completed
//   - *SessionError with Kind=SessionErrorCanceled: aborted
//   - *SessionError with Kind=SessionErrorTransport: failed
func (s *Session) Start(ctx context.Context, open Source) (*Outcome, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, ErrSessionUsed
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateStreaming
	s.mu.Unlock()

	startTime := time.Now()
	s.engine.active.Add(1)
	defer s.engine.active.Add(-1)
	s.engine.config.Collector.IncStreamStarted()
	s.logger.Info("stream started", nil)

	err := s.stream(streamCtx, open)
	outcome := s.finish(err, time.Since(startTime))

	s.engine.publish(ctx, s.logger, outcome)
	return outcome, err
}

// stream opens the body and pumps it until EOF, failure or abort.
func (s *Session) stream(ctx context.Context, open Source) error {
	body, err := open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.interrupted(ctx)
		}
		return &SessionError{Kind: SessionErrorTransport, Err: err}
	}

	done := make(chan struct{})
	chunks := make(chan chunk)
	go readChunks(body, s.engine.config.ChunkSize, chunks, done)

	err = s.pump(ctx, chunks)

	// Unblocks the reader if it is still waiting on the transport
	close(done)
	iox.DiscardClose(body)
	return err
}

func (s *Session) pump(ctx context.Context, chunks <-chan chunk) error {
	for {
		select {
		case <-ctx.Done():
			return s.interrupted(ctx)
		case c := <-chunks:
			if ctx.Err() != nil {
				return s.interrupted(ctx)
			}
			if c.err != nil {
				if errors.Is(c.err, io.EOF) {
					return s.drain(ctx)
				}
				s.logger.Error("stream read failed", map[string]any{
					"error": c.err.Error(),
				})
				return &SessionError{Kind: SessionErrorTransport, Err: c.err}
			}

			lines, err := s.framer.Feed(c.data)
			for _, line := range lines {
				if perr := s.processLine(ctx, line); perr != nil {
					return perr
				}
			}
			if err != nil {
				s.logger.Error("stream framing failed", map[string]any{
					"error": err.Error(),
				})
				return &SessionError{Kind: SessionErrorTransport, Err: err}
			}
		}
	}
}

// drain processes the final unterminated line at end of stream.
func (s *Session) drain(ctx context.Context) error {
	line, ok := s.framer.Flush()
	if !ok {
		return nil
	}
	return s.processLine(ctx, line)
}

// processLine decodes one line and applies it. Returns a cancellation
// error if the session was aborted before or during the line.
func (s *Session) processLine(ctx context.Context, line string) error {
	if ctx.Err() != nil {
		return s.interrupted(ctx)
	}
	if strings.TrimSpace(line) == "" {
		return nil
	}

	s.lines++
	s.engine.config.Collector.IncLines()

	ev, ok := ndjson.Decode(line)
	if !ok {
		s.engine.config.Collector.IncUnrecognized()
		s.logger.Debug("ignoring unrecognized line", map[string]any{
			"length": len(line),
		})
		return nil
	}

	if err := s.asm.Apply(ctx, ev); err != nil {
		return s.interrupted(ctx)
	}
	return nil
}

// interrupted classifies a done context. An explicit abort is a
// cancellation; an expired deadline is a transport failure.
func (s *Session) interrupted(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return &SessionError{Kind: SessionErrorTransport, Err: fmt.Errorf("stream timed out: %w", err)}
	}
	return &SessionError{Kind: SessionErrorCanceled, Err: err}
}

// finish performs the terminal transition.
func (s *Session) finish(err error, elapsed time.Duration) *Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	collector := s.engine.config.Collector
	switch {
	case err == nil:
		s.state = StateCompleted
		collector.IncStreamCompleted()
	case IsCanceledError(err):
		s.state = StateAborted
		collector.IncStreamAborted()
		s.asm.AppendNotice("warning", AbortedNotice)
	default:
		s.state = StateFailed
		collector.IncStreamFailed()
		s.asm.AppendNotice("error", "⚠️ "+errorText(err))
	}

	outcome := &Outcome{
		SessionID:     s.ID,
		KnowledgeBase: s.KnowledgeBase,
		State:         s.state,
		Status:        s.state.String(),
		Answer:        s.asm.Answer(),
		Messages:      s.asm.Appended(),
		Images:        s.asm.Images(),
		Events:        s.asm.Events(),
		Lines:         s.lines,
		Duration:      elapsed,
	}
	if err != nil {
		outcome.Error = errorText(err)
	}

	s.asm.Reset()
	s.framer.Reset()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	s.logger.Info("stream finished", map[string]any{
		"state":       outcome.Status,
		"events":      outcome.Events,
		"images":      outcome.Images,
		"messages":    outcome.Messages,
		"duration_ms": elapsed.Milliseconds(),
	})
	return outcome
}

func errorText(err error) string {
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		return sessErr.Err.Error()
	}
	return err.Error()
}

type chunk struct {
	data []byte
	err  error
}

// readChunks copies reads from r to out until a read error, or until done
// is closed.
func readChunks(r io.Reader, size int, out chan<- chunk, done <-chan struct{}) {
	for {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case out <- chunk{data: buf[:n]}:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case out <- chunk{err: err}:
			case <-done:
			}
			return
		}
	}
}
