// Package client issues stream requests against the question-answering API.
//
// Ask posts a multipart form to <api base>/ask_stream and hands back the
// response body unread; decoding belongs to the runtime package.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/pithecene-io/askstream/iox"
)

// AskPath is the streaming endpoint, relative to the API base.
const AskPath = "/ask_stream"

// DefaultAPIBase is used when neither config nor environment set a base.
const DefaultAPIBase = "http://localhost:8000"

// APIBaseEnv overrides the API base.
const APIBaseEnv = "ASKSTREAM_API_BASE"

// Form field names.
const (
	FieldQuestion      = "question"
	FieldFile          = "file"
	FieldKnowledgeBase = "knowledge_base"
)

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 4 * 1024

// ErrNoBody is returned when a successful response carries no body.
var ErrNoBody = errors.New("no response body")

// StatusError is returned for non-2xx stream responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Config configures a Client.
type Config struct {
	// APIBase is the server root, e.g. http://localhost:8000 (required).
	APIBase string
	// Headers are added to every request.
	Headers map[string]string
	// HTTPClient overrides the transport. It must not set a total timeout
	// shorter than the longest expected stream.
	HTTPClient *http.Client
}

// Upload is an optional file attached to a question.
type Upload struct {
	// Name is the filename sent to the server.
	Name string
	// MIME is the part content type (default application/octet-stream).
	MIME string
	// Content is read fully when the request is built.
	Content io.Reader
}

// Request is one question.
type Request struct {
	Question      string
	File          *Upload
	KnowledgeBase string
}

// Client posts questions. Safe for concurrent use.
type Client struct {
	endpoint string
	headers  map[string]string
	http     *http.Client
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		return nil, errors.New("client requires an API base")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid API base: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API base %q: scheme must be http or https", cfg.APIBase)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		endpoint: base + AskPath,
		headers:  cfg.Headers,
		http:     hc,
	}, nil
}

// Endpoint returns the resolved stream URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Ask sends the question and returns the streaming response body.
// The caller must close it. Cancelling ctx aborts the body read.
//
// Errors:
//   - *StatusError: non-2xx response
//   - ErrNoBody: the response has no body
func (c *Client) Ask(ctx context.Context, req Request) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, errors.New("question is required")
	}

	body, contentType, err := encodeForm(req)
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/x-ndjson")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		iox.DrainClose(resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			iox.DiscardClose(resp.Body)
		}
		return nil, ErrNoBody
	}
	return resp.Body, nil
}

func encodeForm(req Request) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField(FieldQuestion, req.Question); err != nil {
		return nil, "", err
	}
	if req.KnowledgeBase != "" {
		if err := w.WriteField(FieldKnowledgeBase, req.KnowledgeBase); err != nil {
			return nil, "", err
		}
	}
	if f := req.File; f != nil && f.Content != nil {
		part, err := w.CreatePart(filePartHeader(f))
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("read upload %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func filePartHeader(f *Upload) textproto.MIMEHeader {
	name := f.Name
	if name == "" {
		name = "upload"
	}
	mime := f.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldFile, name))
	h.Set("Content-Type", mime)
	return h
}
