package socketio

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/pager"
	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

// ErrNoCatalog is reported to clients when browsing is not served.
var ErrNoCatalog = errors.New("browsing is not available")

// Entry is one pager item as sent to clients.
type Entry struct {
	ItemType media.ItemType `json:"itemType"`
	Item     media.Object   `json:"item"`
}

// Feed is a pager with its item type erased.
type Feed interface {
	FetchAt(index, length int)
	Disconnect()
	Watch(items func([]Entry), size func(int), errs func(error)) *stream.Group
}

// Catalog returns a feed for src.
type Catalog func(src string) (Feed, error)

type feed[T media.Object] struct {
	pager.Pager[T]
}

// NewFeed wraps p.
func NewFeed[T media.Object](p pager.Pager[T]) Feed {
	return feed[T]{Pager: p}
}

func (f feed[T]) Watch(items func([]Entry), size func(int), errs func(error)) *stream.Group {
	g := &stream.Group{}
	g.Add(f.ObserveItems().Subscribe(func(list []T) {
		entries := make([]Entry, len(list))
		for i, item := range list {
			entries[i] = Entry{ItemType: item.ItemType(), Item: item}
		}
		items(entries)
	}))
	g.Add(f.ObserveSize().Subscribe(size))
	g.Add(f.ObserveError().Subscribe(errs))
	return g
}

// FetchRequest is the payload of pager:fetch.
type FetchRequest struct {
	ID     string `json:"id"`
	Src    string `json:"src"`
	Index  int    `json:"index"`
	Length int    `json:"length"`
}

type itemsPayload struct {
	ID    string  `json:"id"`
	Items []Entry `json:"items"`
}

type sizePayload struct {
	ID   string `json:"id"`
	Size int    `json:"size"`
}

type errorPayload struct {
	ID      string `json:"id"`
	Src     string `json:"src,omitempty"`
	Message string `json:"message"`
}

type session struct {
	c conn

	mu     sync.Mutex
	feeds  map[string]*feedState
	closed bool
}

type feedState struct {
	id   string
	src  string
	feed Feed
	subs *stream.Group

	mu     sync.Mutex
	items  []Entry
	closed bool
}

func (fs *feedState) latest() []Entry {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.items
}

func (fs *feedState) watching(subs *stream.Group) {
	fs.mu.Lock()
	closed := fs.closed
	fs.subs = subs
	fs.mu.Unlock()
	if closed {
		subs.Unsubscribe()
	}
}

func (fs *feedState) close() {
	fs.mu.Lock()
	fs.closed = true
	subs := fs.subs
	fs.mu.Unlock()

	if subs != nil {
		subs.Unsubscribe()
	}
	fs.feed.Disconnect()
}

func feedKey(connID, feedID string) string {
	return connID + "\x00" + feedID
}

func (s *session) close(d *Debouncer) {
	s.mu.Lock()
	s.closed = true
	feeds := s.feeds
	s.feeds = make(map[string]*feedState)
	s.mu.Unlock()

	for id, fs := range feeds {
		d.Forget(feedKey(s.c.ID(), id))
		fs.close()
	}
}

// session returns the feeds of c, or nil once c has disconnected.
func (h *Hub) session(c conn) *session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.ID()]; !ok {
		return nil
	}
	s := h.sessions[c.ID()]
	if s == nil {
		s = &session{c: c, feeds: make(map[string]*feedState)}
		h.sessions[c.ID()] = s
	}
	return s
}

// Fetch creates or advances the feed a client named in a pager:fetch
// request. Reusing an id with another src replaces the feed.
func (h *Hub) Fetch(c conn, args ...any) {
	var req FetchRequest
	if err := decodeArg(args, &req); err != nil || req.ID == "" {
		log.Warn().Err(err).Str("id", c.ID()).Msg("Invalid pager fetch")
		return
	}

	s := h.session(c)
	if s == nil {
		log.Debug().Str("id", c.ID()).Str("feed", req.ID).Msg("Ignored fetch from disconnected client")
		return
	}
	s.mu.Lock()
	fs := s.feeds[req.ID]
	if fs != nil && fs.src == req.Src {
		s.mu.Unlock()
		fs.feed.FetchAt(req.Index, req.Length)
		return
	}
	delete(s.feeds, req.ID)
	s.mu.Unlock()

	if fs != nil {
		fs.close()
	}

	if h.catalog == nil {
		c.Emit(EventPagerError, errorPayload{ID: req.ID, Src: req.Src, Message: ErrNoCatalog.Error()})
		return
	}
	f, err := h.catalog(req.Src)
	if err != nil {
		log.Warn().Err(err).Str("src", req.Src).Msg("No feed for src")
		c.Emit(EventPagerError, errorPayload{ID: req.ID, Src: req.Src, Message: err.Error()})
		return
	}

	fs = &feedState{id: req.ID, src: req.Src, feed: f}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		f.Disconnect()
		return
	}
	s.feeds[req.ID] = fs
	s.mu.Unlock()

	key := feedKey(c.ID(), req.ID)
	fs.watching(f.Watch(
		func(items []Entry) {
			fs.mu.Lock()
			fs.items = items
			fs.mu.Unlock()
			h.debouncer.Trigger(key)
		},
		func(size int) {
			c.Emit(EventPagerSize, sizePayload{ID: req.ID, Size: size})
		},
		func(err error) {
			c.Emit(EventPagerError, errorPayload{ID: req.ID, Src: req.Src, Message: err.Error()})
		},
	))
	log.Debug().Str("id", c.ID()).Str("feed", req.ID).Str("src", req.Src).Msg("Opened feed")
	f.FetchAt(req.Index, req.Length)
}

// CloseFeed handles pager:disconnect.
func (h *Hub) CloseFeed(c conn, args ...any) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeArg(args, &req); err != nil {
		return
	}

	h.mu.Lock()
	s := h.sessions[c.ID()]
	h.mu.Unlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	fs := s.feeds[req.ID]
	delete(s.feeds, req.ID)
	s.mu.Unlock()

	if fs != nil {
		h.debouncer.Forget(feedKey(c.ID(), req.ID))
		fs.close()
	}
}

func (h *Hub) flushItems(key string) {
	connID, feedID, ok := strings.Cut(key, "\x00")
	if !ok {
		return
	}

	h.mu.Lock()
	s := h.sessions[connID]
	h.mu.Unlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	fs := s.feeds[feedID]
	s.mu.Unlock()
	if fs == nil {
		return
	}

	s.c.Emit(EventPagerItems, itemsPayload{ID: feedID, Items: fs.latest()})
}
