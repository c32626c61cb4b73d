// Package transcript holds the ordered conversation and assembles decoded
// stream events into it.
//
// The Transcript is append-only except for in-place updates of the trailing
// open text message. It outlives stream sessions and is only emptied by Clear.
package transcript

import (
	"sync"

	"github.com/pithecene-io/askstream/log"
	"github.com/pithecene-io/askstream/types"
)

// Revoker releases local reference handles.
type Revoker interface {
	Revoke(ref string) error
}

// Transcript is the ordered message list. Safe for concurrent use.
type Transcript struct {
	mu       sync.RWMutex
	messages []types.Message
	revoker  Revoker
	logger   *log.Logger
}

// New creates an empty transcript. revoker may be nil when no local
// references are ever created.
func New(revoker Revoker, logger *log.Logger) *Transcript {
	if logger == nil {
		logger = log.Nop()
	}
	return &Transcript{revoker: revoker, logger: logger}
}

// Append adds messages to the end of the transcript.
func (t *Transcript) Append(msgs ...types.Message) {
	if len(msgs) == 0 {
		return
	}
	t.mu.Lock()
	t.messages = append(t.messages, msgs...)
	t.mu.Unlock()
}

// UpdateLastText replaces the content of the last message if it is the
// assistant text message with the given id. Returns false otherwise, in
// which case the message is no longer open.
func (t *Transcript) UpdateLastText(id, content string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.messages)
	if n == 0 || id == "" {
		return false
	}
	last := &t.messages[n-1]
	if last.ID != id || last.Role != types.RoleAssistant || last.Kind != types.MessageKindText {
		return false
	}
	last.Content = content
	return true
}

// Messages returns a copy of the transcript.
func (t *Transcript) Messages() []types.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.Message, len(t.messages))
	for i, m := range t.messages {
		if m.Attachment != nil {
			a := *m.Attachment
			m.Attachment = &a
		}
		out[i] = m
	}
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the final message, if any.
func (t *Transcript) Last() (types.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return types.Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Clear revokes every local reference held by a message, then discards all
// messages. Revoke failures are logged and do not stop clearing.
// Returns the number of references revoked.
func (t *Transcript) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	revoked := 0
	for _, m := range t.messages {
		if m.Attachment == nil || m.Attachment.LocalRef == "" || t.revoker == nil {
			continue
		}
		if err := t.revoker.Revoke(m.Attachment.LocalRef); err != nil {
			t.logger.Warn("failed to revoke local reference", map[string]any{
				"message_id": m.ID,
				"ref":        m.Attachment.LocalRef,
				"error":      err.Error(),
			})
			continue
		}
		revoked++
	}

	t.messages = nil
	return revoked
}
