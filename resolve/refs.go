package resolve

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// LocalRefPrefix prefixes every local reference handle.
const LocalRefPrefix = "local:"

// ErrUnknownRef is returned when revoking or reading a handle that does not
// exist or was already revoked.
var ErrUnknownRef = errors.New("unknown local reference")

// IsLocalRef reports whether s is a local reference handle.
func IsLocalRef(s string) bool {
	return strings.HasPrefix(s, LocalRefPrefix)
}

type refEntry struct {
	data []byte
	mime string
}

// Refs is a process-local registry of decoded payloads addressable by handle.
// Handles stay valid until explicitly revoked; stream completion and abort
// never release them. Safe for concurrent use.
type Refs struct {
	mu      sync.RWMutex
	entries map[string]refEntry
}

// NewRefs creates an empty registry.
func NewRefs() *Refs {
	return &Refs{entries: make(map[string]refEntry)}
}

// Create registers data and returns its handle.
func (r *Refs) Create(data []byte, mime string) string {
	ref := LocalRefPrefix + uuid.NewString()
	r.mu.Lock()
	r.entries[ref] = refEntry{data: data, mime: mime}
	r.mu.Unlock()
	return ref
}

// Get dereferences a handle.
func (r *Refs) Get(ref string) ([]byte, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[ref]
	if !ok {
		return nil, "", ErrUnknownRef
	}
	return e.data, e.mime, nil
}

// Revoke releases a handle.
func (r *Refs) Revoke(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[ref]; !ok {
		return ErrUnknownRef
	}
	delete(r.entries, ref)
	return nil
}

// Len returns the number of live handles.
func (r *Refs) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
