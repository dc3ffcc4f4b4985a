package main

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/miniplayer"
	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

var errUnknownAction = errors.New("unknown mini player action")

// Mini player actions accepted by the HTTP API.
const (
	actionLock           = "lock"
	actionUnlock         = "unlock"
	actionNextVisualizer = "next-visualizer"
	actionRefreshTheme   = "refresh-theme"
)

// handoff is the part of *miniplayer.Controller the process drives.
type handoff interface {
	State() miniplayer.State
	Open(ctx context.Context) error
	Close() error
	Remote() *miniplayer.RemotePlayer
	ObserveState() stream.Observable[miniplayer.State]
	ObserveVisualizer() stream.Observable[string]
}

// upcoming returns the item queued after the current one.
type upcoming interface {
	Upcoming() *media.PlaylistItem
	ObserveCurrent() stream.Observable[*media.PlaylistItem]
}

// miniPlayer keeps an active mini player told what plays next and forwards
// remote actions to it.
type miniPlayer struct {
	handoff
	queue upcoming

	subs stream.Group

	mu         sync.Mutex
	visualizer string
}

func newMiniPlayer(h handoff, queue upcoming) *miniPlayer {
	m := &miniPlayer{handoff: h, queue: queue}
	m.subs.Add(h.ObserveVisualizer().Subscribe(func(name string) {
		m.mu.Lock()
		m.visualizer = name
		m.mu.Unlock()
		log.Info().Str("visualizer", name).Msg("Mini player visualizer changed")
	}))
	m.subs.Add(h.ObserveState().Subscribe(func(miniplayer.State) { m.sendUpcoming() }))
	m.subs.Add(queue.ObserveCurrent().Subscribe(func(*media.PlaylistItem) { m.sendUpcoming() }))
	return m
}

// remote returns the player of an active mini player, or nil.
func (m *miniPlayer) remote() *miniplayer.RemotePlayer {
	if m.State() != miniplayer.StateActive {
		return nil
	}
	return m.Remote()
}

func (m *miniPlayer) sendUpcoming() {
	r := m.remote()
	if r == nil {
		return
	}
	if next := m.queue.Upcoming(); next != nil {
		r.LoadNext(next)
	}
}

// Action sends a named action to the active mini player.
func (m *miniPlayer) Action(name string) error {
	var send func(*miniplayer.RemotePlayer) error
	switch name {
	case actionLock:
		send = (*miniplayer.RemotePlayer).Lock
	case actionUnlock:
		send = (*miniplayer.RemotePlayer).Unlock
	case actionNextVisualizer:
		send = (*miniplayer.RemotePlayer).NextVisualizer
	case actionRefreshTheme:
		send = (*miniplayer.RemotePlayer).RefreshTheme
	default:
		return errUnknownAction
	}

	r := m.remote()
	if r == nil {
		return miniplayer.ErrNotOpen
	}
	return send(r)
}

// Visualizer returns the visualizer last reported by the mini player.
func (m *miniPlayer) Visualizer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visualizer
}

func (m *miniPlayer) release() {
	m.subs.Unsubscribe()
}
