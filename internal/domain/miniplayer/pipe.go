package miniplayer

import (
	"sync"

	"github.com/google/uuid"
)

// PipeWindow is one end of an in-process window pair. Messages posted to a
// PipeWindow are delivered, in order and on their own goroutine, to the
// listener registered on the other end's peer handle.
type PipeWindow struct {
	id     string
	origin string
	peer   *PipeWindow
	inbox  *mailbox
	state  *pipeState
}

type pipeState struct {
	mu     sync.Mutex
	closed bool
}

// NewPipe creates a connected pair of windows sharing origin. The first is
// the opener as seen from the mini player and the second is the mini player
// as seen from the opener.
func NewPipe(origin string) (opener, popup *PipeWindow) {
	state := &pipeState{}
	opener = &PipeWindow{id: uuid.NewString(), origin: origin, inbox: newMailbox(), state: state}
	popup = &PipeWindow{id: uuid.NewString(), origin: origin, inbox: newMailbox(), state: state}
	opener.peer = popup
	popup.peer = opener
	return opener, popup
}

func (w *PipeWindow) ID() string     { return w.id }
func (w *PipeWindow) Origin() string { return w.origin }

// Post delivers msg to the code running in this window.
func (w *PipeWindow) Post(msg Message) error {
	if w.Closed() {
		return ErrWindowClosed
	}
	w.inbox.push(Envelope{Origin: w.peer.origin, Source: w.peer.id, Message: msg})
	return nil
}

// Listen registers fn for messages posted from this window.
func (w *PipeWindow) Listen(fn func(Envelope)) {
	w.peer.inbox.listen(fn)
}

func (w *PipeWindow) Closed() bool {
	w.state.mu.Lock()
	defer w.state.mu.Unlock()
	return w.state.closed
}

// Close closes both ends. Messages already posted are still delivered.
func (w *PipeWindow) Close() error {
	w.state.mu.Lock()
	if w.state.closed {
		w.state.mu.Unlock()
		return nil
	}
	w.state.closed = true
	w.state.mu.Unlock()

	w.inbox.close()
	w.peer.inbox.close()
	return nil
}

// mailbox is an unbounded ordered queue drained by a single goroutine.
type mailbox struct {
	mu      sync.Mutex
	pending []Envelope
	fn      func(Envelope)
	wake    chan struct{}
	closed  bool
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (m *mailbox) listen(fn func(Envelope)) {
	m.mu.Lock()
	start := m.fn == nil
	m.fn = fn
	m.mu.Unlock()

	if start {
		go m.run()
	}
	m.signal()
}

func (m *mailbox) push(env Envelope) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, env)
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) run() {
	for range m.wake {
		for {
			m.mu.Lock()
			if len(m.pending) == 0 {
				closed := m.closed
				m.mu.Unlock()
				if closed {
					return
				}
				break
			}
			env := m.pending[0]
			m.pending = m.pending[1:]
			fn := m.fn
			m.mu.Unlock()

			fn(env)
		}
	}
}
