// Package store saves transcript attachments to lode stores.
//
// Files land at sessions/<session_id>/files/<filename>. Attachment bytes come
// from the message itself or, for images held as local references, from the
// reference registry. URL-only attachments have no local bytes and are not
// saved.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/askstream/log"
	"github.com/pithecene-io/askstream/metrics"
	"github.com/pithecene-io/askstream/types"
)

// RefReader dereferences local reference handles.
type RefReader interface {
	Get(ref string) ([]byte, string, error)
}

// Saved records one written attachment.
type Saved struct {
	MessageID string `json:"message_id" yaml:"message_id"`
	Path      string `json:"path" yaml:"path"`
	Size      int    `json:"size" yaml:"size"`
}

// Saver writes attachments through a lazily created lode store.
// Safe for concurrent use.
type Saver struct {
	factory   lode.StoreFactory
	refs      RefReader
	logger    *log.Logger
	collector *metrics.Collector

	storeOnce sync.Once
	store     lode.Store
	storeErr  error
}

// NewSaver creates a saver. refs may be nil when no local references exist.
func NewSaver(factory lode.StoreFactory, refs RefReader, logger *log.Logger, collector *metrics.Collector) *Saver {
	if logger == nil {
		logger = log.Nop()
	}
	return &Saver{
		factory:   factory,
		refs:      refs,
		logger:    logger,
		collector: collector,
	}
}

func (s *Saver) getOrCreateStore() (lode.Store, error) {
	s.storeOnce.Do(func() {
		s.store, s.storeErr = s.factory()
	})
	return s.store, s.storeErr
}

// Save writes one attachment and returns its storage path.
//
// Errors:
//   - *StorageError with Kind=ErrNoContent: no local bytes
//   - *StorageError: store initialization or write failed
func (s *Saver) Save(ctx context.Context, sessionID string, a *types.Attachment) (string, error) {
	if a == nil {
		return "", &StorageError{Kind: ErrNoContent, Op: "resolve", Err: errors.New("nil attachment")}
	}

	data, err := s.content(a)
	if err != nil {
		return "", err
	}

	store, err := s.getOrCreateStore()
	if err != nil {
		return "", wrap(fmt.Errorf("store init failed: %w", err), "init", "")
	}

	p := FilePath(sessionID, a.Filename)
	if err := store.Put(ctx, p, bytes.NewReader(data)); err != nil {
		s.collector.IncSaveFailure()
		return "", wrap(err, "write", p)
	}

	s.collector.IncAttachmentSaved()
	s.logger.Debug("attachment saved", map[string]any{
		"path": p,
		"size": len(data),
	})
	return p, nil
}

// SaveAll saves every attachment in msgs that has local bytes. URL-only
// attachments are skipped. Write failures do not stop the remaining saves;
// they are joined into the returned error.
func (s *Saver) SaveAll(ctx context.Context, sessionID string, msgs []types.Message) ([]Saved, error) {
	var saved []Saved
	var errs []error
	used := make(map[string]int)

	for _, m := range msgs {
		a := m.Attachment
		if a == nil {
			continue
		}
		if len(a.Bytes) == 0 && a.LocalRef == "" {
			s.logger.Debug("skipping remote-only attachment", map[string]any{
				"message_id": m.ID,
				"url":        a.URL,
			})
			continue
		}

		// Same-named attachments within a session get a numeric suffix
		named := *a
		named.Filename = dedupe(used, SanitizeFilename(a.Filename))

		p, err := s.Save(ctx, sessionID, &named)
		if err != nil {
			s.logger.Warn("failed to save attachment", map[string]any{
				"message_id": m.ID,
				"error":      err.Error(),
			})
			errs = append(errs, err)
			continue
		}
		size := len(a.Bytes)
		if size == 0 {
			size = int(a.Size)
		}
		saved = append(saved, Saved{MessageID: m.ID, Path: p, Size: size})
	}
	return saved, errors.Join(errs...)
}

// content returns the attachment bytes, dereferencing a local reference
// when the message does not carry them inline.
func (s *Saver) content(a *types.Attachment) ([]byte, error) {
	if len(a.Bytes) > 0 {
		return a.Bytes, nil
	}
	if a.LocalRef != "" && s.refs != nil {
		data, _, err := s.refs.Get(a.LocalRef)
		if err != nil {
			return nil, &StorageError{Kind: ErrNoContent, Op: "resolve", Path: a.LocalRef, Err: err}
		}
		return data, nil
	}
	return nil, &StorageError{Kind: ErrNoContent, Op: "resolve", Path: a.URL, Err: errors.New("no bytes or local reference")}
}

// FilePath computes the storage path of an attachment.
// Format: sessions/<session_id>/files/<filename>
func FilePath(sessionID, filename string) string {
	return path.Join("sessions", SanitizeFilename(sessionID), "files", SanitizeFilename(filename))
}

// SanitizeFilename reduces name to a single safe path segment.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case strings.ContainsRune(`<>:"|?*`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), " .")
	if out == "" || out == "/" {
		return "download.bin"
	}
	return out
}

// dedupe returns name, or name with the lowest free numeric suffix.
// Every returned name is recorded in used.
func dedupe(used map[string]int, name string) string {
	if used[name] == 0 {
		used[name] = 1
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := used[name]; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if used[candidate] == 0 {
			used[name] = n + 1
			used[candidate] = 1
			return candidate
		}
	}
}
