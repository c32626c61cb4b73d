package transcript

import (
	"errors"
	"testing"

	"github.com/pithecene-io/askstream/types"
)

type recordingRevoker struct {
	revoked []string
	fail    map[string]bool
}

func (r *recordingRevoker) Revoke(ref string) error {
	if r.fail[ref] {
		return errors.New("revoke failed")
	}
	r.revoked = append(r.revoked, ref)
	return nil
}

func TestTranscript_AppendAndMessages(t *testing.T) {
	tr := New(nil, nil)
	tr.Append(types.NewUserText("hi"), types.NewAssistantText("text", "hello"))

	msgs := tr.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != types.RoleUser || msgs[1].Content != "hello" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
	if tr.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tr.Len())
	}
}

func TestTranscript_MessagesIsACopy(t *testing.T) {
	tr := New(nil, nil)
	tr.Append(types.Message{
		ID:         "file-1",
		Role:       types.RoleAssistant,
		Kind:       types.MessageKindFile,
		Attachment: &types.Attachment{Filename: "a.txt"},
	})

	msgs := tr.Messages()
	msgs[0].Content = "mutated"
	msgs[0].Attachment.Filename = "mutated.txt"

	again := tr.Messages()
	if again[0].Content != "" {
		t.Errorf("content leaked through copy: %q", again[0].Content)
	}
	if again[0].Attachment.Filename != "a.txt" {
		t.Errorf("attachment leaked through copy: %q", again[0].Attachment.Filename)
	}
}

func TestTranscript_UpdateLastText(t *testing.T) {
	tr := New(nil, nil)
	open := types.NewAssistantText("text", "a")
	tr.Append(open)

	if !tr.UpdateLastText(open.ID, "ab") {
		t.Fatal("expected update of open message")
	}
	last, _ := tr.Last()
	if last.Content != "ab" {
		t.Errorf("content = %q, want %q", last.Content, "ab")
	}

	tr.Append(types.NewAssistantText("warning", "note"))
	if tr.UpdateLastText(open.ID, "abc") {
		t.Error("update succeeded although message is no longer last")
	}
	if tr.UpdateLastText("", "x") {
		t.Error("update succeeded with empty id")
	}
}

func TestTranscript_UpdateLastTextRejectsUserMessage(t *testing.T) {
	tr := New(nil, nil)
	u := types.NewUserText("question")
	tr.Append(u)

	if tr.UpdateLastText(u.ID, "changed") {
		t.Error("user message must not be updatable")
	}
}

func TestTranscript_ClearRevokesRefs(t *testing.T) {
	rev := &recordingRevoker{fail: map[string]bool{"local:bad": true}}
	tr := New(rev, nil)
	tr.Append(
		types.Message{ID: "image-1", Kind: types.MessageKindImage, Attachment: &types.Attachment{LocalRef: "local:a"}},
		types.Message{ID: "image-2", Kind: types.MessageKindImage, Attachment: &types.Attachment{URL: "http://x/y.png"}},
		types.Message{ID: "image-3", Kind: types.MessageKindImage, Attachment: &types.Attachment{LocalRef: "local:bad"}},
		types.Message{ID: "file-1", Kind: types.MessageKindFile, Attachment: &types.Attachment{LocalRef: "local:b"}},
		types.NewAssistantText("text", "done"),
	)

	n := tr.Clear()
	if n != 2 {
		t.Errorf("Clear() = %d, want 2", n)
	}
	if len(rev.revoked) != 2 || rev.revoked[0] != "local:a" || rev.revoked[1] != "local:b" {
		t.Errorf("revoked = %v, want [local:a local:b]", rev.revoked)
	}
	if tr.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", tr.Len())
	}
	if _, ok := tr.Last(); ok {
		t.Error("Last() returned a message after Clear")
	}
}
