// Package blobs serves in-memory media content under object URLs so that
// another window can load it.
package blobs

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
)

// Prefix is the path object URLs are served under.
const Prefix = "/blob/"

// Registry maps object URLs to blobs. The same blob always gets the same URL
// until it is revoked.
type Registry struct {
	base string

	mu    sync.RWMutex
	byID  map[string]*media.Blob
	byRef map[*media.Blob]string
	added time.Time
}

// NewRegistry creates a registry whose URLs start with base, e.g.
// "http://localhost:3001".
func NewRegistry(base string) *Registry {
	return &Registry{
		base:  strings.TrimSuffix(base, "/"),
		byID:  make(map[string]*media.Blob),
		byRef: make(map[*media.Blob]string),
	}
}

// ObjectURL registers blob and returns its URL.
func (r *Registry) ObjectURL(blob *media.Blob) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byRef[blob]
	if !ok {
		id = uuid.NewString()
		r.byRef[blob] = id
		r.byID[id] = blob
		r.added = time.Now()
		log.Debug().Str("id", id).Str("type", blob.Type).Int("size", len(blob.Data)).Msg("Registered blob")
	}
	return r.base + Prefix + id
}

// Revoke forgets the blob behind url. Unknown URLs are ignored.
func (r *Registry) Revoke(url string) {
	_, id, ok := strings.Cut(url, Prefix)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if blob, ok := r.byID[id]; ok {
		delete(r.byID, id)
		delete(r.byRef, blob)
	}
}

// Len returns the number of registered blobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// ServeHTTP serves registered blobs, with range support.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, Prefix)

	r.mu.RLock()
	blob, ok := r.byID[id]
	added := r.added
	r.mu.RUnlock()

	if !ok {
		http.Error(w, "blob not found", http.StatusNotFound)
		return
	}

	contentType := blob.Type
	if contentType == "" {
		contentType = http.DetectContentType(blob.Data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, req, "", added, bytes.NewReader(blob.Data))
}
