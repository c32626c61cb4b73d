// Package runtime drives stream sessions.
//
// An Engine owns the long-lived collaborators: the transcript, the content
// resolver, logging, metrics and the optional completion adapter. Each
// request gets its own Session holding the per-invocation state (framer
// residue, running answer, image counter, cancellation handle), so
// concurrent sessions on one Engine never share mutable fields.
package runtime

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/askstream/adapter"
	"github.com/pithecene-io/askstream/log"
	"github.com/pithecene-io/askstream/metrics"
	"github.com/pithecene-io/askstream/ndjson"
	"github.com/pithecene-io/askstream/transcript"
	"github.com/pithecene-io/askstream/types"
)

// DefaultChunkSize is the read size used to pull bytes off a response body.
const DefaultChunkSize = 32 * 1024

// DefaultPublishTimeout bounds the completion notification.
const DefaultPublishTimeout = 15 * time.Second

// Config configures an Engine.
type Config struct {
	// Transcript receives every session's messages (required).
	Transcript *transcript.Transcript
	// Resolver resolves file and image payloads (required).
	Resolver transcript.Resolver
	// Logger is the base logger. Nil disables logging.
	Logger *log.Logger
	// Collector records metrics. Nil disables metrics; all Collector
	// methods are nil-safe.
	Collector *metrics.Collector
	// Adapter receives a stream_completed event per session. Optional.
	Adapter adapter.Adapter
	// PublishTimeout bounds each notification (default 15s).
	PublishTimeout time.Duration
	// ChunkSize is the body read size (default 32 KiB).
	ChunkSize int
	// MaxLineSize caps a single stream line (default ndjson.DefaultMaxLineSize).
	MaxLineSize int
}

// Engine creates and runs stream sessions. Safe for concurrent use.
type Engine struct {
	config Config
	logger *log.Logger
	active atomic.Int64
}

// NewEngine creates an engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = ndjson.DefaultMaxLineSize
	}
	return &Engine{config: cfg, logger: cfg.Logger}
}

// Transcript returns the shared transcript.
func (e *Engine) Transcript() *transcript.Transcript {
	return e.config.Transcript
}

// Active returns the number of sessions currently streaming.
func (e *Engine) Active() int {
	return int(e.active.Load())
}

// SessionOptions parameterizes a session.
type SessionOptions struct {
	// KnowledgeBase is the routing target of the request, for logging and
	// notifications only.
	KnowledgeBase string
}

// NewSession creates an idle session.
func (e *Engine) NewSession(opts SessionOptions) *Session {
	id := types.NewMessageID("sess")
	logger := e.logger.WithSession(id, opts.KnowledgeBase)
	return &Session{
		ID:            id,
		KnowledgeBase: opts.KnowledgeBase,
		engine:        e,
		logger:        logger,
		framer:        ndjson.NewFramerWithLimit(e.config.MaxLineSize),
		asm:           transcript.NewAssembler(e.config.Transcript, e.config.Resolver, logger, e.config.Collector),
	}
}

// Stream runs a new session over an already open body.
func (e *Engine) Stream(ctx context.Context, body io.Reader, opts SessionOptions) (*Outcome, error) {
	return e.NewSession(opts).Run(ctx, body)
}

// publish sends the completion notification. Failures are logged and
// never change the outcome.
func (e *Engine) publish(ctx context.Context, logger *log.Logger, o *Outcome) {
	if e.config.Adapter == nil {
		return
	}

	event := &adapter.StreamCompletedEvent{
		ContractVersion: types.ContractVersion,
		SessionID:       o.SessionID,
		Outcome:         o.Status,
		KnowledgeBase:   o.KnowledgeBase,
		MessageCount:    o.Messages,
		ImageCount:      o.Images,
		EventCount:      o.Events,
		Error:           o.Error,
		DurationMs:      o.Duration.Milliseconds(),
	}
	event.Stamp(time.Now())

	// Aborted sessions still notify
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.PublishTimeout)
	defer cancel()

	if err := e.config.Adapter.Publish(pubCtx, event); err != nil {
		e.config.Collector.IncPublishFailure()
		logger.Warn("stream_completed notification failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	e.config.Collector.IncPublishSuccess()
	logger.Debug("stream_completed notification published", nil)
}
