package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/miniplayer"
)

// Socket events.
const (
	EventOpen     = "mini-player:open"
	EventAttach   = "mini-player:attach"
	EventAttached = "mini-player:attached"
	EventClose    = "mini-player:close"
	EventMessage  = "mini-player"

	EventPagerFetch      = "pager:fetch"
	EventPagerItems      = "pager:items"
	EventPagerSize       = "pager:size"
	EventPagerError      = "pager:error"
	EventPagerDisconnect = "pager:disconnect"
)

var (
	// ErrAttachTimeout is returned by Open when no client attaches in time.
	ErrAttachTimeout = errors.New("mini player window did not attach")

	// ErrDetached is returned when posting to a window whose client has gone,
	// for example during a reload.
	ErrDetached = errors.New("mini player window is detached")
)

// conn is the part of a socket the hub uses.
type conn interface {
	ID() string
	// Origin is the page origin the socket connected from.
	Origin() string
	Emit(event string, args ...any)
}

// HubConfig tunes a Hub.
type HubConfig struct {
	// Origin is the only page origin windows may attach from. Empty
	// accepts any origin.
	Origin        string
	AttachTimeout time.Duration
	Debounce      time.Duration
}

// DefaultHubConfig returns the standard timings.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		AttachTimeout: 10 * time.Second,
		Debounce:      50 * time.Millisecond,
	}
}

// OpenRequest is broadcast to clients when a mini player should be opened.
type OpenRequest struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// AttachRequest is sent by a mini player window once it has loaded.
type AttachRequest struct {
	Token string `json:"token"`
}

// Hub connects sockets to mini player windows and pager feeds. It is
// independent of the socket implementation.
type Hub struct {
	cfg     HubConfig
	catalog Catalog

	mu       sync.Mutex
	conns    map[string]conn
	windows  map[string]*Window // by token
	attached map[string]*Window // by conn id
	sessions map[string]*session
	listener func(miniplayer.Envelope)

	debouncer *Debouncer
}

var _ miniplayer.Opener = (*Hub)(nil)

// NewHub creates a hub. catalog may be nil when browsing is not served.
func NewHub(cfg HubConfig, catalog Catalog) *Hub {
	d := DefaultHubConfig()
	if cfg.AttachTimeout <= 0 {
		cfg.AttachTimeout = d.AttachTimeout
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = d.Debounce
	}
	h := &Hub{
		cfg:      cfg,
		catalog:  catalog,
		conns:    make(map[string]conn),
		windows:  make(map[string]*Window),
		attached: make(map[string]*Window),
		sessions: make(map[string]*session),
	}
	h.debouncer = NewDebouncer(cfg.Debounce, h.flushItems)
	return h
}

// Listen registers the receiver of messages sent by windows.
func (h *Hub) Listen(fn func(miniplayer.Envelope)) {
	h.mu.Lock()
	h.listener = fn
	h.mu.Unlock()
}

// Connect registers a socket.
func (h *Hub) Connect(c conn) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	h.mu.Unlock()
}

// Disconnect forgets a socket, releasing its feeds. A window attached
// through it is told its content unloaded; it may attach again.
func (h *Hub) Disconnect(c conn) {
	id := c.ID()

	h.mu.Lock()
	delete(h.conns, id)
	w := h.attached[id]
	delete(h.attached, id)
	sess := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()

	if sess != nil {
		sess.close(h.debouncer)
	}
	if w != nil && w.detach(c) {
		log.Info().Str("window", w.id).Msg("Mini player window detached")
		if msg, err := miniplayer.EventMessage(miniplayer.EventUnloaded, nil); err == nil {
			h.deliver(miniplayer.Envelope{Origin: w.Origin(), Source: w.id, Message: msg})
		}
	}
}

// Open asks connected clients to open a mini player window and waits for
// it to attach.
func (h *Hub) Open(ctx context.Context, name string) (miniplayer.Window, error) {
	w := &Window{
		hub:      h,
		id:       uuid.NewString(),
		name:     name,
		token:    uuid.NewString(),
		attached: make(chan struct{}),
	}

	h.mu.Lock()
	h.windows[w.token] = w
	conns := make([]conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	req := OpenRequest{Name: name, Token: w.token}
	for _, c := range conns {
		c.Emit(EventOpen, req)
	}
	log.Info().Str("name", name).Int("clients", len(conns)).Msg("Requested mini player window")

	timer := time.NewTimer(h.cfg.AttachTimeout)
	defer timer.Stop()

	select {
	case <-w.attached:
		return w, nil
	case <-timer.C:
		w.Close()
		return nil, ErrAttachTimeout
	case <-ctx.Done():
		w.Close()
		return nil, ctx.Err()
	}
}

// Attach binds the sending socket to the window its token was minted for.
// The socket must connect from the configured origin, and a window already
// bound to another live socket only accepts a new one once that socket
// has detached.
func (h *Hub) Attach(c conn, args ...any) {
	var req AttachRequest
	if err := decodeArg(args, &req); err != nil {
		log.Warn().Err(err).Str("id", c.ID()).Msg("Invalid attach request")
		return
	}

	origin := c.Origin()
	if h.cfg.Origin != "" && origin != h.cfg.Origin {
		log.Warn().Str("id", c.ID()).Str("origin", origin).Msg("Rejected mini player attach from foreign origin")
		return
	}

	h.mu.Lock()
	w := h.windows[req.Token]
	_, connected := h.conns[c.ID()]
	ok := w != nil && connected && w.attach(c, origin)
	if ok {
		h.attached[c.ID()] = w
	}
	h.mu.Unlock()

	if !ok {
		log.Warn().Str("id", c.ID()).Msg("Rejected mini player attach")
		return
	}
	c.Emit(EventAttached, map[string]string{"window": w.id})
	log.Info().Str("id", c.ID()).Str("window", w.id).Str("origin", origin).Msg("Mini player window attached")
}

// Message forwards a mini player message from a socket. Sockets that are
// not an attached window are reported with their socket id as source.
func (h *Hub) Message(c conn, args ...any) {
	var msg miniplayer.Message
	if err := decodeArg(args, &msg); err != nil {
		log.Warn().Err(err).Str("id", c.ID()).Msg("Invalid mini player message")
		return
	}

	h.mu.Lock()
	w := h.attached[c.ID()]
	h.mu.Unlock()

	env := miniplayer.Envelope{Source: c.ID(), Message: msg}
	if w != nil {
		env.Origin = w.Origin()
		env.Source = w.id
	}
	h.deliver(env)
}

func (h *Hub) deliver(env miniplayer.Envelope) {
	h.mu.Lock()
	fn := h.listener
	h.mu.Unlock()
	if fn != nil {
		fn(env)
	}
}

func (h *Hub) forget(w *Window) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.windows[w.token] == w {
		delete(h.windows, w.token)
	}
	for id, aw := range h.attached {
		if aw == w {
			delete(h.attached, id)
		}
	}
}

// Close stops pending flushes and releases every feed.
func (h *Hub) Close() {
	h.debouncer.Stop()

	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.close(h.debouncer)
	}
}

// Window is a mini player window reached through a socket.
type Window struct {
	hub   *Hub
	id    string
	name  string
	token string

	mu       sync.Mutex
	c        conn
	origin   string
	closed   bool
	once     sync.Once
	attached chan struct{}
}

var _ miniplayer.Window = (*Window)(nil)

func (w *Window) ID() string { return w.id }

func (w *Window) Origin() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.origin
}

func (w *Window) conn() conn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c
}

// attach binds c unless the window is closed or bound to another socket.
func (w *Window) attach(c conn, origin string) bool {
	w.mu.Lock()
	if w.closed || (w.c != nil && w.c.ID() != c.ID()) {
		w.mu.Unlock()
		return false
	}
	w.c = c
	w.origin = origin
	w.mu.Unlock()
	w.once.Do(func() { close(w.attached) })
	return true
}

// detach clears the socket if it is still c.
func (w *Window) detach(c conn) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c == nil || w.c.ID() != c.ID() {
		return false
	}
	w.c = nil
	return !w.closed
}

// Post sends msg to the window's socket.
func (w *Window) Post(msg miniplayer.Message) error {
	w.mu.Lock()
	c, closed := w.c, w.closed
	w.mu.Unlock()

	if closed {
		return miniplayer.ErrWindowClosed
	}
	if c == nil {
		return ErrDetached
	}
	c.Emit(EventMessage, msg)
	return nil
}

func (w *Window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close asks the client to close the window and forgets it.
func (w *Window) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	c := w.c
	w.c = nil
	w.mu.Unlock()

	if c != nil {
		c.Emit(EventClose, map[string]string{"window": w.id})
	}
	w.hub.forget(w)
	log.Debug().Str("window", w.id).Msg("Mini player window closed")
	return nil
}

// decodeArg decodes the first event argument into v. Socket arguments
// arrive as decoded JSON values.
func decodeArg(args []any, v any) error {
	if len(args) == 0 {
		return errors.New("missing argument")
	}
	raw, err := json.Marshal(args[0])
	if err != nil {
		return fmt.Errorf("failed to encode argument: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode argument: %w", err)
	}
	return nil
}
