package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pithecene-io/askstream/runtime"
	"github.com/pithecene-io/askstream/types"
)

// TranscriptView is the structured form of an ask result.
type TranscriptView struct {
	Messages []types.Message  `json:"messages" yaml:"messages"`
	Outcome  *runtime.Outcome `json:"outcome" yaml:"outcome"`
	Saved    []string         `json:"saved,omitempty" yaml:"saved,omitempty"`
}

// Transcript renders a conversation and its outcome. Structured formats
// emit a TranscriptView; text and table formats print a styled chat log.
func (r *Renderer) Transcript(view TranscriptView) error {
	if r.Structured() {
		return r.Render(view)
	}

	var b strings.Builder
	for i := range view.Messages {
		if i > 0 && startsTurn(view.Messages, i) {
			b.WriteString("\n")
		}
		r.message(&b, view.Messages, i)
	}
	if view.Outcome != nil {
		b.WriteString("\n")
		b.WriteString(r.summary(view.Outcome))
		b.WriteString("\n")
	}
	for _, path := range view.Saved {
		b.WriteString(r.styles.muted.Render("saved " + path))
		b.WriteString("\n")
	}

	_, err := fmt.Fprint(r.out, b.String())
	return err
}

// startsTurn reports whether message i begins a new speaker turn.
func startsTurn(msgs []types.Message, i int) bool {
	return msgs[i].Role != msgs[i-1].Role
}

func (r *Renderer) message(b *strings.Builder, msgs []types.Message, i int) {
	msg := msgs[i]
	if i == 0 || startsTurn(msgs, i) {
		switch msg.Role {
		case types.RoleUser:
			b.WriteString(r.styles.user.Render("You"))
		default:
			b.WriteString(r.styles.assistant.Render("Assistant"))
		}
		b.WriteString("\n")
	}

	switch msg.Kind {
	case types.MessageKindFile, types.MessageKindImage:
		b.WriteString(indent(msg.Content))
		if meta := attachmentMeta(msg.Attachment); meta != "" {
			b.WriteString("  ")
			b.WriteString(r.styles.muted.Render(meta))
		}
		b.WriteString("\n")
	default:
		body := indent(msg.Content)
		switch {
		case strings.HasPrefix(msg.ID, "warning-"):
			body = r.styles.notice.Render(body)
		case strings.HasPrefix(msg.ID, "error-"):
			body = r.styles.failure.Render(body)
		}
		b.WriteString(body)
		b.WriteString("\n")
	}
}

func attachmentMeta(a *types.Attachment) string {
	if a == nil {
		return ""
	}
	var parts []string
	if a.MIME != "" {
		parts = append(parts, a.MIME)
	}
	if a.Size > 0 {
		parts = append(parts, humanize.Bytes(uint64(a.Size)))
	}
	if href := a.Href(); href != "" && !strings.HasPrefix(href, "data:") {
		parts = append(parts, href)
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (r *Renderer) summary(o *runtime.Outcome) string {
	line := fmt.Sprintf("%s  %d messages, %d images, %d events in %s",
		r.styles.status(o.Status).Render(o.Status),
		o.Messages, o.Images, o.Events, o.Duration.Round(time.Millisecond))
	if o.KnowledgeBase != "" {
		line += r.styles.muted.Render("  kb=" + o.KnowledgeBase)
	}
	if o.Error != "" {
		line += "\n" + r.styles.failure.Render("error: "+o.Error)
	}
	return line
}

func indent(s string) string {
	if s == "" {
		return "  "
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
