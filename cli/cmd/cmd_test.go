package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/askstream/adapter"
	"github.com/pithecene-io/askstream/cli/config"
	"github.com/pithecene-io/askstream/types"
)

// syncBuffer guards a bytes.Buffer written by the logger and the renderer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type appResult struct {
	stdout string
	stderr string
	code   int
}

func runApp(t *testing.T, args ...string) appResult {
	t.Helper()

	var out, errOut syncBuffer
	code := 0
	app := &cli.App{
		Name:      "askstream",
		Writer:    &out,
		ErrWriter: &errOut,
		ExitErrHandler: func(_ *cli.Context, err error) {
			var exitCoder cli.ExitCoder
			if errors.As(err, &exitCoder) {
				code = exitCoder.ExitCode()
			}
		},
		Commands: []*cli.Command{
			AskCommand(),
			KnowledgeBasesCommand(),
			VersionCommand("abc123"),
		},
	}

	if err := app.Run(append([]string{"askstream"}, args...)); err != nil {
		var exitCoder cli.ExitCoder
		if !errors.As(err, &exitCoder) {
			code = 1
		}
	}
	return appResult{stdout: out.String(), stderr: errOut.String(), code: code}
}

type transcriptJSON struct {
	Messages []types.Message `json:"messages"`
	Outcome  struct {
		SessionID     string `json:"session_id"`
		KnowledgeBase string `json:"knowledge_base"`
		Status        string `json:"status"`
		Error         string `json:"error"`
		Answer        string `json:"answer"`
		Images        int    `json:"images"`
	} `json:"outcome"`
	Saved []string `json:"saved"`
}

func decodeTranscript(t *testing.T, res appResult) transcriptJSON {
	t.Helper()
	var view transcriptJSON
	if err := json.Unmarshal([]byte(res.stdout), &view); err != nil {
		t.Fatalf("stdout is not a transcript: %v\nstdout:\n%s\nstderr:\n%s", err, res.stdout, res.stderr)
	}
	return view
}

// askServer streams lines from /ask_stream and records the form it received.
type askServer struct {
	*httptest.Server
	mu   sync.Mutex
	form map[string]string
}

func newAskServer(t *testing.T, lines ...string) *askServer {
	t.Helper()
	s := &askServer{form: make(map[string]string)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ask_stream" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		for k, v := range r.MultipartForm.Value {
			s.form[k] = v[0]
		}
		for k := range r.MultipartForm.File {
			s.form[k] = r.MultipartForm.File[k][0].Filename
		}
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher, _ := w.(http.Flusher)
		for _, line := range lines {
			_, _ = fmt.Fprintln(w, line)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *askServer) field(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form[name]
}

var sampleStream = []string{
	`{"type":"text","content":"The report "}`,
	`{"type":"text","content":"is attached."}`,
	`{"type":"file","filename":"notes.txt","mime":"text/plain","content_b64":"aGVsbG8="}`,
	`{"type":"image","url":"/img/chart.png"}`,
}

func TestAsk_StreamsTranscript(t *testing.T) {
	srv := newAskServer(t, sampleStream...)

	res := runApp(t, "ask", "--format", "json", "--api-base", srv.URL, "--kb", "GENERAL", "What", "changed?")
	if res.code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", res.code, res.stderr)
	}

	view := decodeTranscript(t, res)
	if view.Outcome.Status != "completed" {
		t.Errorf("status = %q, want completed", view.Outcome.Status)
	}
	if view.Outcome.Answer != "The report is attached." {
		t.Errorf("answer = %q", view.Outcome.Answer)
	}
	if view.Outcome.KnowledgeBase != "general" {
		t.Errorf("knowledge_base = %q, want general", view.Outcome.KnowledgeBase)
	}
	if view.Outcome.Images != 1 {
		t.Errorf("images = %d, want 1", view.Outcome.Images)
	}

	if len(view.Messages) != 4 {
		t.Fatalf("messages = %d, want 4: %+v", len(view.Messages), view.Messages)
	}
	if view.Messages[0].Role != types.RoleUser || view.Messages[0].Content != "What changed?" {
		t.Errorf("first message = %+v", view.Messages[0])
	}
	if view.Messages[1].Content != "The report is attached." {
		t.Errorf("text message = %q", view.Messages[1].Content)
	}
	if view.Messages[2].Kind != types.MessageKindFile || view.Messages[2].Content != "📎 notes.txt" {
		t.Errorf("file message = %+v", view.Messages[2])
	}
	img := view.Messages[3]
	if img.Kind != types.MessageKindImage || img.Attachment == nil || img.Attachment.URL != srv.URL+"/img/chart.png" {
		t.Errorf("image message = %+v", img)
	}

	if got := srv.field("question"); got != "What changed?" {
		t.Errorf("server got question %q", got)
	}
	if got := srv.field("knowledge_base"); got != "general" {
		t.Errorf("server got knowledge_base %q", got)
	}
}

func TestAsk_TextOutput(t *testing.T) {
	srv := newAskServer(t, sampleStream...)

	res := runApp(t, "ask", "--format", "text", "--no-color", "--api-base", srv.URL, "hi")
	if res.code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", res.code, res.stderr)
	}
	for _, want := range []string{"You\n  hi\n", "Assistant\n  The report is attached.\n", "📎 notes.txt", "completed"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, res.stdout)
		}
	}
}

func TestAsk_UploadsFile(t *testing.T) {
	srv := newAskServer(t, `{"type":"text","content":"ok"}`)

	path := filepath.Join(t.TempDir(), "brief.md")
	if err := os.WriteFile(path, []byte("# brief"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := runApp(t, "ask", "--format", "json", "--api-base", srv.URL, "--file", path, "summarize")
	if res.code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", res.code, res.stderr)
	}
	if got := srv.field("file"); got != "brief.md" {
		t.Errorf("uploaded filename = %q, want brief.md", got)
	}
}

func TestAsk_SaveWritesAttachments(t *testing.T) {
	srv := newAskServer(t, sampleStream...)
	dir := t.TempDir()

	res := runApp(t, "ask", "--format", "json", "--api-base", srv.URL,
		"--save", "--storage-backend", "fs", "--storage-path", dir, "q")
	if res.code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", res.code, res.stderr)
	}

	view := decodeTranscript(t, res)
	want := "sessions/" + view.Outcome.SessionID + "/files/notes.txt"
	if len(view.Saved) != 1 || view.Saved[0] != want {
		t.Fatalf("saved = %v, want [%s]", view.Saved, want)
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(want)))
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("saved content = %q, want hello", data)
	}
}

func TestAsk_ServerErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "index offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := runApp(t, "ask", "--format", "json", "--api-base", srv.URL, "q")
	if res.code != 1 {
		t.Fatalf("exit code = %d, want 1", res.code)
	}

	view := decodeTranscript(t, res)
	if view.Outcome.Status != "failed" {
		t.Errorf("status = %q, want failed", view.Outcome.Status)
	}
	if !strings.Contains(view.Outcome.Error, "503") {
		t.Errorf("error = %q, want status code", view.Outcome.Error)
	}
	last := view.Messages[len(view.Messages)-1]
	if !strings.HasPrefix(last.Content, "⚠️ ") {
		t.Errorf("last message = %q, want error notice", last.Content)
	}
}

func TestAsk_TimeoutFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, `{"type":"text","content":"partial"}`)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	res := runApp(t, "ask", "--format", "json", "--api-base", srv.URL, "--timeout", "200ms", "q")
	if res.code != 1 {
		t.Fatalf("exit code = %d, want 1\nstderr:\n%s", res.code, res.stderr)
	}

	view := decodeTranscript(t, res)
	if view.Outcome.Status != "failed" {
		t.Errorf("status = %q, want failed", view.Outcome.Status)
	}
	if view.Outcome.Answer != "partial" {
		t.Errorf("answer = %q, want partial", view.Outcome.Answer)
	}
}

func TestAsk_PublishesWebhook(t *testing.T) {
	events := make(chan adapter.StreamCompletedEvent, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev adapter.StreamCompletedEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			events <- ev
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	srv := newAskServer(t, sampleStream...)
	cfgPath := filepath.Join(t.TempDir(), config.DefaultPath)
	cfg := fmt.Sprintf("api_base: %s\nadapter:\n  type: webhook\n  url: %s\n  retries: 0\n", srv.URL, hook.URL)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	res := runApp(t, "ask", "--format", "json", "--config", cfgPath, "q")
	if res.code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", res.code, res.stderr)
	}

	select {
	case ev := <-events:
		if ev.EventType != adapter.EventTypeStreamCompleted || ev.Outcome != "completed" {
			t.Errorf("event = %+v", ev)
		}
		if ev.ImageCount != 1 {
			t.Errorf("image_count = %d, want 1", ev.ImageCount)
		}
	default:
		t.Fatal("webhook was not called")
	}
}

func TestAsk_Stats(t *testing.T) {
	srv := newAskServer(t, sampleStream...)

	res := runApp(t, "ask", "--format", "json", "--stats", "--log-level", "error", "--api-base", srv.URL, "q")
	if res.code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", res.code, res.stderr)
	}
	if !strings.Contains(res.stderr, `"streams_completed": 1`) {
		t.Errorf("stderr missing stats:\n%s", res.stderr)
	}
}

func TestAsk_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no question", []string{"ask", "--api-base", "http://localhost:1"}},
		{"unknown kb", []string{"ask", "--api-base", "http://localhost:1", "--kb", "nope", "q"}},
		{"bad header", []string{"ask", "--api-base", "http://localhost:1", "--header", "novalue", "q"}},
		{"bad format", []string{"ask", "--api-base", "http://localhost:1", "--format", "xml", "q"}},
		{"bad api base", []string{"ask", "--api-base", "ftp://x", "q"}},
		{"missing upload", []string{"ask", "--api-base", "http://localhost:1", "--file", "/does/not/exist", "q"}},
		{"missing config", []string{"ask", "--config", "/does/not/exist.yaml", "q"}},
		{"bad log level", []string{"ask", "--log-level", "loud", "q"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runApp(t, tt.args...)
			if res.code != exitUsage {
				t.Errorf("exit code = %d, want %d", res.code, exitUsage)
			}
		})
	}
}

func TestKnowledgeBasesCommand(t *testing.T) {
	res := runApp(t, "kb", "--format", "json")
	if res.code != 0 {
		t.Fatalf("exit code = %d", res.code)
	}

	var kbs []types.KnowledgeBase
	if err := json.Unmarshal([]byte(res.stdout), &kbs); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, res.stdout)
	}
	if len(kbs) != len(config.DefaultKnowledgeBases) {
		t.Errorf("got %d knowledge bases, want %d", len(kbs), len(config.DefaultKnowledgeBases))
	}
}

func TestVersionCommand(t *testing.T) {
	res := runApp(t, "version", "--format", "json")

	var v VersionResponse
	if err := json.Unmarshal([]byte(res.stdout), &v); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, res.stdout)
	}
	if v.Version != types.Version || v.Commit != "abc123" {
		t.Errorf("version = %+v", v)
	}
}

func TestParseHeaders(t *testing.T) {
	got, err := parseHeaders([]string{"Authorization: Bearer t", " X-Trace :abc"})
	if err != nil {
		t.Fatalf("parseHeaders: %v", err)
	}
	if got["Authorization"] != "Bearer t" || got["X-Trace"] != "abc" {
		t.Errorf("headers = %v", got)
	}

	if _, err := parseHeaders([]string{": empty"}); err == nil {
		t.Error("expected error for empty header name")
	}
	if h, err := parseHeaders(nil); err != nil || h != nil {
		t.Errorf("parseHeaders(nil) = %v, %v", h, err)
	}
}

func TestBuildAdapter(t *testing.T) {
	zero := 0
	tests := []struct {
		name    string
		cfg     config.AdapterConfig
		wantNil bool
		wantErr bool
	}{
		{name: "none", cfg: config.AdapterConfig{}, wantNil: true},
		{name: "webhook", cfg: config.AdapterConfig{Type: config.AdapterWebhook, URL: "http://localhost:1/hook", Retries: &zero}},
		{name: "redis msgpack", cfg: config.AdapterConfig{Type: config.AdapterRedis, URL: "redis://localhost:6379/0", Codec: "msgpack"}},
		{name: "redis bad codec", cfg: config.AdapterConfig{Type: config.AdapterRedis, URL: "redis://localhost:6379/0", Codec: "xml"}, wantErr: true},
		{name: "unknown", cfg: config.AdapterConfig{Type: "sns", URL: "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := buildAdapter(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (a == nil) != tt.wantNil {
				t.Fatalf("adapter = %v, wantNil %v", a, tt.wantNil)
			}
			if a != nil {
				_ = a.Close()
			}
		})
	}
}
