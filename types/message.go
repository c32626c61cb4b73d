package types

import (
	"fmt"

	"github.com/google/uuid"
)

// Role identifies the author of a transcript message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind identifies what a transcript message holds.
type MessageKind string

// Message kinds.
const (
	MessageKindText  MessageKind = "text"
	MessageKindFile  MessageKind = "file"
	MessageKindImage MessageKind = "image"
)

// Attachment is the resolved payload backing a file or image message.
// Exactly one of Bytes, URL or LocalRef locates the content for images
// held by URL; images decoded from inline content carry both Bytes and
// a LocalRef.
type Attachment struct {
	// Bytes is the resolved content, nil when the attachment is held by URL.
	Bytes []byte `json:"-" yaml:"-"`
	// URL is a remote locator for content that was not fetched.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// LocalRef is a process-local handle to Bytes, released on transcript clear.
	LocalRef string `json:"local_ref,omitempty" yaml:"local_ref,omitempty"`
	Filename string `json:"filename" yaml:"filename"`
	MIME     string `json:"mime" yaml:"mime"`
	// Size is the declared size, or the resolved byte length when undeclared.
	Size int64 `json:"size" yaml:"size"`
}

// Href returns the handle a consumer should dereference: the local
// reference when present, otherwise the remote URL.
func (a *Attachment) Href() string {
	if a == nil {
		return ""
	}
	if a.LocalRef != "" {
		return a.LocalRef
	}
	return a.URL
}

// Message is one transcript entry.
type Message struct {
	ID         string      `json:"id" yaml:"id"`
	Role       Role        `json:"role" yaml:"role"`
	Kind       MessageKind `json:"kind" yaml:"kind"`
	Content    string      `json:"content,omitempty" yaml:"content,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty" yaml:"attachment,omitempty"`
}

// NewMessageID returns a unique message identifier with the given prefix.
func NewMessageID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// NewAssistantText builds an assistant text message.
func NewAssistantText(prefix, content string) Message {
	return Message{
		ID:      NewMessageID(prefix),
		Role:    RoleAssistant,
		Kind:    MessageKindText,
		Content: content,
	}
}

// NewUserText builds a user text message.
func NewUserText(content string) Message {
	return Message{
		ID:      NewMessageID("user"),
		Role:    RoleUser,
		Kind:    MessageKindText,
		Content: content,
	}
}
