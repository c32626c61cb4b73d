// Package metrics provides stream pipeline counters.
//
// A Collector is shared by every session of an Engine and is safe for
// concurrent use. It is a leaf package with no internal dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	// Session lifecycle
	StreamsStarted   int64 `json:"streams_started"`
	StreamsCompleted int64 `json:"streams_completed"`
	StreamsAborted   int64 `json:"streams_aborted"`
	StreamsFailed    int64 `json:"streams_failed"`

	// Decoding
	Lines              int64            `json:"lines"`
	EventsByKind       map[string]int64 `json:"events_by_kind"`
	Unrecognized       int64            `json:"unrecognized"`
	MarkersRecovered   int64            `json:"markers_recovered"`
	FragmentsRecovered int64            `json:"fragments_recovered"`

	// Attachments
	FetchFailures       int64 `json:"fetch_failures"`
	InlineFallbacks     int64 `json:"inline_fallbacks"`
	FilesDropped        int64 `json:"files_dropped"`
	ImageDecodeFailures int64 `json:"image_decode_failures"`
	ImageMissingContent int64 `json:"image_missing_content"`
	AttachmentsSaved    int64 `json:"attachments_saved"`
	SaveFailures        int64 `json:"save_failures"`

	// Notifications
	PublishSuccess int64 `json:"publish_success"`
	PublishFailure int64 `json:"publish_failure"`
}

// Collector accumulates counters.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{s: Snapshot{EventsByKind: make(map[string]int64)}}
}

func (c *Collector) add(field func(*Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	field(&c.s)
	c.mu.Unlock()
}

// --- Session lifecycle ---

// IncStreamStarted records a session entering Streaming.
func (c *Collector) IncStreamStarted() { c.add(func(s *Snapshot) { s.StreamsStarted++ }) }

// IncStreamCompleted records a session reaching end of stream.
func (c *Collector) IncStreamCompleted() { c.add(func(s *Snapshot) { s.StreamsCompleted++ }) }

// IncStreamAborted records a cancelled session.
func (c *Collector) IncStreamAborted() { c.add(func(s *Snapshot) { s.StreamsAborted++ }) }

// IncStreamFailed records a transport failure.
func (c *Collector) IncStreamFailed() { c.add(func(s *Snapshot) { s.StreamsFailed++ }) }

// --- Decoding ---

// IncLines records one non-blank line handed to the decoder.
func (c *Collector) IncLines() { c.add(func(s *Snapshot) { s.Lines++ }) }

// IncEvent records a decoded event of the given kind.
// Kinds are plain strings to keep this package free of the types package.
func (c *Collector) IncEvent(kind string) {
	c.add(func(s *Snapshot) {
		if s.EventsByKind == nil {
			s.EventsByKind = make(map[string]int64)
		}
		s.EventsByKind[kind]++
	})
}

// IncUnrecognized records a valid line with an unknown or missing type.
func (c *Collector) IncUnrecognized() { c.add(func(s *Snapshot) { s.Unrecognized++ }) }

// AddMarkersRecovered records image markers found in malformed lines.
func (c *Collector) AddMarkersRecovered(n int) {
	c.add(func(s *Snapshot) { s.MarkersRecovered += int64(n) })
}

// IncFragmentsRecovered records a diagnostic fragment extraction.
func (c *Collector) IncFragmentsRecovered() { c.add(func(s *Snapshot) { s.FragmentsRecovered++ }) }

// --- Attachments ---

// IncFetchFailure records a failed attachment URL fetch.
func (c *Collector) IncFetchFailure() { c.add(func(s *Snapshot) { s.FetchFailures++ }) }

// IncInlineFallback records a fetch failure rescued by inline content.
func (c *Collector) IncInlineFallback() { c.add(func(s *Snapshot) { s.InlineFallbacks++ }) }

// IncFileDropped records a file event that could not be resolved.
func (c *Collector) IncFileDropped() { c.add(func(s *Snapshot) { s.FilesDropped++ }) }

// IncImageDecodeFailure records an image whose inline content failed to decode.
func (c *Collector) IncImageDecodeFailure() { c.add(func(s *Snapshot) { s.ImageDecodeFailures++ }) }

// IncImageMissingContent records an image event with neither URL nor inline content.
func (c *Collector) IncImageMissingContent() { c.add(func(s *Snapshot) { s.ImageMissingContent++ }) }

// IncAttachmentSaved records an attachment written to storage.
func (c *Collector) IncAttachmentSaved() { c.add(func(s *Snapshot) { s.AttachmentsSaved++ }) }

// IncSaveFailure records a failed attachment write.
func (c *Collector) IncSaveFailure() { c.add(func(s *Snapshot) { s.SaveFailures++ }) }

// --- Notifications ---

// IncPublishSuccess records a delivered stream-completed notification.
func (c *Collector) IncPublishSuccess() { c.add(func(s *Snapshot) { s.PublishSuccess++ }) }

// IncPublishFailure records a failed notification.
func (c *Collector) IncPublishFailure() { c.add(func(s *Snapshot) { s.PublishFailure++ }) }

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{EventsByKind: map[string]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.s
	s.EventsByKind = make(map[string]int64, len(c.s.EventsByKind))
	for k, v := range c.s.EventsByKind {
		s.EventsByKind[k] = v
	}
	return s
}
