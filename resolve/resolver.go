// Package resolve turns file and image events into attachments.
//
// Resolution order for files, first success wins:
//  1. Fetch the URL (relative URLs are joined to the API base)
//  2. On fetch failure, decode inline base64 content if present
//  3. Without a URL, decode inline base64 content directly
//  4. Otherwise fail
//
// Images are never fetched: a URL is held as-is, inline content is decoded
// and registered as a local reference.
package resolve

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pithecene-io/askstream/iox"
	"github.com/pithecene-io/askstream/types"
)

// Defaults applied when events leave metadata unspecified.
const (
	DefaultFileName  = "download.bin"
	DefaultFileMIME  = "application/octet-stream"
	DefaultImageMIME = "image/png"
	// DefaultTimeout is the per-fetch timeout.
	DefaultTimeout = 30 * time.Second
)

// Source records where an attachment's content came from.
type Source string

// Attachment sources.
const (
	SourceFetched Source = "fetched"
	SourceInline  Source = "inline"
	SourceURL     Source = "url"
)

// Result is a successful resolution.
type Result struct {
	Attachment *types.Attachment
	Source     Source
	// FetchErr is set when the URL fetch failed and inline content was used.
	FetchErr error
}

// Config configures a Resolver.
type Config struct {
	// APIBase is joined with relative attachment URLs.
	APIBase string
	// Timeout is the per-fetch timeout (default 30s).
	Timeout time.Duration
	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client
}

// Resolver resolves attachment payloads. Safe for concurrent use; it holds
// no per-session state.
type Resolver struct {
	apiBase string
	client  *http.Client
	refs    *Refs
}

// New creates a resolver registering decoded images in refs.
func New(cfg Config, refs *Refs) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if refs == nil {
		refs = NewRefs()
	}
	return &Resolver{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		client:  client,
		refs:    refs,
	}
}

// Refs returns the local reference registry.
func (r *Resolver) Refs() *Refs {
	return r.refs
}

// ResolveURL returns raw unchanged if it is absolute, else joins it to the API base.
func (r *Resolver) ResolveURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if r.apiBase == "" {
		return raw
	}
	return r.apiBase + "/" + strings.TrimLeft(raw, "/")
}

// ResolveFile resolves a file event.
//
// Errors:
//   - ErrNoContent: neither URL nor inline content
//   - *FetchError: the fetch failed and there was no inline fallback
//   - *DecodeError: inline content is not valid base64
func (r *Resolver) ResolveFile(ctx context.Context, ev types.FileEvent) (*Result, error) {
	p := ev.Payload

	if p.HasURL() {
		data, contentType, err := r.fetch(ctx, p.URL)
		if err == nil {
			mime := firstNonEmpty(p.MIME, contentType, DefaultFileMIME)
			name := firstNonEmpty(p.Filename, urlBase(p.URL), DefaultFileName)
			return &Result{
				Attachment: newAttachment(data, name, mime, p.Size),
				Source:     SourceFetched,
			}, nil
		}
		if !p.HasInline() {
			return nil, err
		}
		res, decodeErr := r.inlineFile(p)
		if decodeErr != nil {
			return nil, decodeErr
		}
		res.FetchErr = err
		return res, nil
	}

	if p.HasInline() {
		return r.inlineFile(p)
	}

	return nil, ErrNoContent
}

func (r *Resolver) inlineFile(p types.Payload) (*Result, error) {
	data, err := DecodeBase64(p.ContentB64)
	if err != nil {
		return nil, err
	}
	return &Result{
		Attachment: newAttachment(
			data,
			firstNonEmpty(p.Filename, lastSegment(p.DocID), DefaultFileName),
			firstNonEmpty(p.MIME, DefaultFileMIME),
			p.Size,
		),
		Source: SourceInline,
	}, nil
}

// ResolveImage resolves an image event. index is the 1-based image number
// within the session, used for the default filename.
//
// Errors:
//   - ErrNoContent: neither URL nor inline content
//   - *DecodeError: inline content is not valid base64
func (r *Resolver) ResolveImage(_ context.Context, ev types.ImageEvent, index int) (*Result, error) {
	p := ev.Payload
	name := ImageFilename(p, index)
	mime := firstNonEmpty(p.MIME, DefaultImageMIME)

	switch {
	case p.HasURL():
		a := &types.Attachment{
			URL:      r.ResolveURL(p.URL),
			Filename: name,
			MIME:     mime,
		}
		if p.Size != nil {
			a.Size = *p.Size
		}
		return &Result{Attachment: a, Source: SourceURL}, nil

	case p.HasInline():
		data, err := DecodeBase64(p.ContentB64)
		if err != nil {
			return nil, err
		}
		a := newAttachment(data, name, mime, p.Size)
		a.LocalRef = r.refs.Create(data, mime)
		return &Result{Attachment: a, Source: SourceInline}, nil

	default:
		return nil, ErrNoContent
	}
}

// ImageFilename derives an image filename: explicit name, then the last
// doc_id segment, then image_<index>.png.
func ImageFilename(p types.Payload, index int) string {
	return firstNonEmpty(p.Filename, lastSegment(p.DocID), fmt.Sprintf("image_%d.png", index))
}

// fetch downloads a URL and returns its body and declared content type.
func (r *Resolver) fetch(ctx context.Context, raw string) ([]byte, string, error) {
	target := r.ResolveURL(raw)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", &FetchError{URL: target, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", &FetchError{URL: target, Err: err}
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &FetchError{URL: target, Err: &StatusError{Code: resp.StatusCode}}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &FetchError{URL: target, Err: fmt.Errorf("read body: %w", err)}
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// DecodeBase64 decodes standard base64 leniently: ASCII whitespace is
// ignored and padding is optional.
func DecodeBase64(s string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			return -1
		}
		return r
	}, s)
	cleaned = strings.TrimRight(cleaned, "=")

	data, err := base64.RawStdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return data, nil
}

func newAttachment(data []byte, name, mime string, declared *int64) *types.Attachment {
	size := int64(len(data))
	// A declared size of zero means unknown
	if declared != nil && *declared > 0 {
		size = *declared
	}
	return &types.Attachment{
		Bytes:    data,
		Filename: name,
		MIME:     mime,
		Size:     size,
	}
}

// urlBase returns the final path segment of a URL, or "".
func urlBase(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return lastSegment(raw)
	}
	return lastSegment(u.Path)
}

// lastSegment returns the text after the final slash, or "".
func lastSegment(s string) string {
	if s == "" {
		return ""
	}
	base := path.Base(s)
	if base == "/" || base == "." {
		return ""
	}
	if strings.HasSuffix(s, "/") {
		return ""
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
