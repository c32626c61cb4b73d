package types

// EventKind is the wire discriminator carried in the `type` field of a line.
type EventKind string

// Recognized event kinds. Any other value on the wire is ignored.
const (
	EventKindText  EventKind = "text"
	EventKindFile  EventKind = "file"
	EventKindImage EventKind = "image"
	// EventKindMalformed marks a line that failed structural JSON parsing.
	// It never appears on the wire.
	EventKindMalformed EventKind = "malformed"
)

// StreamEvent is one decoded line of the reply stream.
// The set of implementations is closed: TextEvent, FileEvent, ImageEvent
// and MalformedEvent.
type StreamEvent interface {
	Kind() EventKind
	isStreamEvent()
}

// TextEvent carries one answer delta.
type TextEvent struct {
	Content string
}

// Payload holds the binary content reference shared by file and image events.
// Either URL or ContentB64 normally carries the content; both empty is a
// valid degenerate state.
type Payload struct {
	// URL is an absolute or API-base-relative locator.
	URL string
	// ContentB64 is an inline standard base64 payload.
	ContentB64 string
	// Filename overrides any derived filename.
	Filename string
	// MIME overrides any derived content type.
	MIME string
	// Size is the declared byte size, nil when absent.
	Size *int64
	// DocID is an opaque identifier, used for filename fallback.
	DocID string
}

// HasURL reports whether the payload references remote content.
func (p Payload) HasURL() bool { return p.URL != "" }

// HasInline reports whether the payload carries inline base64 content.
func (p Payload) HasInline() bool { return p.ContentB64 != "" }

// FileEvent announces a downloadable file.
type FileEvent struct {
	Payload
}

// ImageEvent announces an inline image.
type ImageEvent struct {
	Payload
}

// MalformedEvent is a non-empty line that was not valid JSON.
type MalformedEvent struct {
	Raw string
}

// Kind implements StreamEvent.
func (TextEvent) Kind() EventKind { return EventKindText }

// Kind implements StreamEvent.
func (FileEvent) Kind() EventKind { return EventKindFile }

// Kind implements StreamEvent.
func (ImageEvent) Kind() EventKind { return EventKindImage }

// Kind implements StreamEvent.
func (MalformedEvent) Kind() EventKind { return EventKindMalformed }

func (TextEvent) isStreamEvent()      {}
func (FileEvent) isStreamEvent()      {}
func (ImageEvent) isStreamEvent()     {}
func (MalformedEvent) isStreamEvent() {}
