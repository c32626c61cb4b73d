package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pithecene-io/askstream/log"
	"github.com/pithecene-io/askstream/metrics"
	"github.com/pithecene-io/askstream/ndjson"
	"github.com/pithecene-io/askstream/resolve"
	"github.com/pithecene-io/askstream/types"
)

// Resolver resolves attachment payloads for file and image events.
type Resolver interface {
	ResolveFile(ctx context.Context, ev types.FileEvent) (*resolve.Result, error)
	ResolveImage(ctx context.Context, ev types.ImageEvent, index int) (*resolve.Result, error)
}

// Assembler applies decoded events of one session to a shared Transcript.
//
// It owns the session's running answer text, the id of the session's open
// text message and the image counter. An Assembler belongs to exactly one
// session and is not safe for concurrent use; the Transcript it writes to is.
type Assembler struct {
	transcript *Transcript
	resolver   Resolver
	logger     *log.Logger
	collector  *metrics.Collector

	answer   strings.Builder
	openID   string
	images   int
	events   int
	appended int
}

// NewAssembler creates an assembler for one session.
func NewAssembler(t *Transcript, r Resolver, logger *log.Logger, collector *metrics.Collector) *Assembler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Assembler{
		transcript: t,
		resolver:   r,
		logger:     logger,
		collector:  collector,
	}
}

// Apply merges one event into the transcript.
//
// Attachment resolution may block on the network. If ctx is cancelled by
// the time it returns, the result is discarded and ctx.Err() is returned;
// this is the only error Apply reports. Every other failure is absorbed
// into the transcript or dropped.
func (a *Assembler) Apply(ctx context.Context, ev types.StreamEvent) error {
	a.events++
	a.collector.IncEvent(string(ev.Kind()))

	switch e := ev.(type) {
	case types.TextEvent:
		a.applyText(e)
		return nil
	case types.FileEvent:
		return a.applyFile(ctx, e)
	case types.ImageEvent:
		return a.applyImage(ctx, e)
	case types.MalformedEvent:
		a.applyMalformed(e)
		return nil
	default:
		return nil
	}
}

func (a *Assembler) applyText(e types.TextEvent) {
	a.answer.WriteString(e.Content)

	// The open message always holds the whole running answer
	if a.transcript.UpdateLastText(a.openID, a.answer.String()) {
		return
	}

	msg := types.NewAssistantText("text", e.Content)
	a.openID = msg.ID
	a.appended++
	a.transcript.Append(msg)
}

func (a *Assembler) applyFile(ctx context.Context, e types.FileEvent) error {
	res, err := a.resolver.ResolveFile(ctx, e)
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.logger.Debug("discarding file resolution after cancellation", map[string]any{
			"url": e.URL,
		})
		return ctxErr
	}

	if err != nil {
		if resolve.IsFetchError(err) {
			a.collector.IncFetchFailure()
		}
		a.collector.IncFileDropped()
		a.logger.Warn("dropping unresolvable file", map[string]any{
			"url":      e.URL,
			"doc_id":   e.DocID,
			"filename": e.Filename,
			"error":    err.Error(),
		})
		return nil
	}

	if res.FetchErr != nil {
		a.collector.IncFetchFailure()
		a.collector.IncInlineFallback()
		a.logger.Warn("file fetch failed, using inline content", map[string]any{
			"url":   e.URL,
			"error": res.FetchErr.Error(),
		})
	}

	a.append(types.Message{
		ID:         types.NewMessageID("file"),
		Role:       types.RoleAssistant,
		Kind:       types.MessageKindFile,
		Content:    fmt.Sprintf("📎 %s", res.Attachment.Filename),
		Attachment: res.Attachment,
	})
	return nil
}

func (a *Assembler) applyImage(ctx context.Context, e types.ImageEvent) error {
	// Counted before resolution so numbering is stable even on failure
	a.images++
	index := a.images

	res, err := a.resolver.ResolveImage(ctx, e, index)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	switch {
	case err == nil:
		a.logger.Debug("image resolved", map[string]any{
			"index":  index,
			"source": string(res.Source),
			"doc_id": e.DocID,
		})
		a.append(types.Message{
			ID:         types.NewMessageID(fmt.Sprintf("image-%d", index)),
			Role:       types.RoleAssistant,
			Kind:       types.MessageKindImage,
			Attachment: res.Attachment,
		})

	case errors.Is(err, resolve.ErrNoContent):
		a.collector.IncImageMissingContent()
		a.logger.Warn("image has no url or inline content", map[string]any{
			"index":  index,
			"doc_id": e.DocID,
		})
		a.append(types.NewAssistantText("warning", fmt.Sprintf("⚠️ Image #%d missing content data", index)))

	default:
		a.collector.IncImageDecodeFailure()
		name := resolve.ImageFilename(e.Payload, index)
		a.logger.Warn("failed to load image", map[string]any{
			"index":    index,
			"filename": name,
			"error":    err.Error(),
		})
		a.append(types.NewAssistantText("error", fmt.Sprintf("❌ Failed to load image #%d: %s", index, name)))
	}
	return nil
}

func (a *Assembler) applyMalformed(e types.MalformedEvent) {
	rec := ndjson.Recover(e.Raw)

	if diags := rec.Diagnostics(); len(diags) > 0 {
		a.collector.AddMarkersRecovered(len(diags))
		a.logger.Warn("malformed line with image markers", map[string]any{
			"markers": rec.Markers,
		})
		a.append(diags...)
		return
	}

	if rec.Fragment != nil {
		a.collector.IncFragmentsRecovered()
		a.logger.Debug("partially recovered malformed line", map[string]any{
			"type":   rec.Fragment.Type,
			"doc_id": rec.Fragment.DocID,
			"url":    rec.Fragment.URL,
		})
		return
	}

	a.logger.Warn("unrecoverable malformed line", map[string]any{
		"length": len(e.Raw),
	})
}

// AppendNotice appends a synthetic assistant text message, closing any
// open message.
func (a *Assembler) AppendNotice(prefix, content string) {
	a.append(types.NewAssistantText(prefix, content))
}

// append adds closed messages, which ends the current open text message.
func (a *Assembler) append(msgs ...types.Message) {
	a.openID = ""
	a.appended += len(msgs)
	a.transcript.Append(msgs...)
}

// Answer returns the concatenation of every text delta applied so far.
func (a *Assembler) Answer() string {
	return a.answer.String()
}

// Images returns the number of image events applied.
func (a *Assembler) Images() int {
	return a.images
}

// Events returns the number of events applied.
func (a *Assembler) Events() int {
	return a.events
}

// Appended returns the number of messages this assembler added.
func (a *Assembler) Appended() int {
	return a.appended
}

// Reset clears the running text and closes the open message.
// Counters are kept for reporting.
func (a *Assembler) Reset() {
	a.answer.Reset()
	a.openID = ""
}
