package miniplayer

import (
	"sync"
	"time"
)

// heartbeat fires onExpire once a window has passed after Arm without a Beat.
// A page reload inside the mini player sends "unloaded" then "loaded"; the
// delay keeps that from being taken for a close.
type heartbeat struct {
	window   time.Duration
	onExpire func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func newHeartbeat(window time.Duration, onExpire func()) *heartbeat {
	return &heartbeat{window: window, onExpire: onExpire}
}

// Arm starts or restarts the countdown.
func (h *heartbeat) Arm() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	h.gen++
	gen := h.gen
	h.timer = time.AfterFunc(h.window, func() { h.expire(gen) })
}

// Beat cancels a pending countdown.
func (h *heartbeat) Beat() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.gen++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *heartbeat) expire(gen uint64) {
	h.mu.Lock()
	if h.stopped || gen != h.gen {
		h.mu.Unlock()
		return
	}
	h.timer = nil
	h.mu.Unlock()

	h.onExpire()
}

// Stop prevents any further callbacks from firing.
func (h *heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	h.gen++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}
