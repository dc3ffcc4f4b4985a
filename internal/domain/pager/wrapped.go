package pager

import (
	"sync"
)

// WrappedPager presents two pagers as one list with the primary's items
// first. Items in the secondary whose key already appears in the primary are
// dropped.
type WrappedPager[T Item] struct {
	*base[T]

	primary   Pager[T]
	secondary Pager[T]

	stateMu    sync.Mutex
	pItems     []T
	sItems     []T
	pSize      int
	sSize      int
	pMax       int
	sMax       int
	pBusy      bool
	sBusy      bool
	request    Fetch
	hasRequest bool
}

// NewWrappedPager creates a pager over primary followed by secondary.
func NewWrappedPager[T Item](primary, secondary Pager[T], cfg Config) *WrappedPager[T] {
	p := &WrappedPager[T]{
		base:      newBase[T](cfg),
		primary:   primary,
		secondary: secondary,
		pSize:     -1,
		sSize:     -1,
	}
	p.onConnect = p.connect
	p.onClose = func() {
		primary.Disconnect()
		secondary.Disconnect()
	}
	return p
}

// NewRecentPager puts recent items ahead of a history pager. The returned
// SubjectPager takes later updates to the recent list.
func NewRecentPager[T Item](recent []T, history Pager[T]) (*WrappedPager[T], *SubjectPager[T]) {
	head := NewSubjectPager[T](Config{})
	head.Next(recent)
	return NewWrappedPager[T](head, history, Config{}), head
}

func (p *WrappedPager[T]) connect() {
	p.subs.Add(p.primary.ObserveItems().Subscribe(func(items []T) {
		p.stateMu.Lock()
		p.pItems = items
		p.stateMu.Unlock()
		p.refresh()
		p.forward()
	}))
	p.subs.Add(p.primary.ObserveSize().Subscribe(func(size int) {
		p.stateMu.Lock()
		p.pSize = size
		p.stateMu.Unlock()
		p.refresh()
		p.forward()
	}))
	p.subs.Add(p.secondary.ObserveItems().Subscribe(func(items []T) {
		p.stateMu.Lock()
		p.sItems = items
		p.stateMu.Unlock()
		p.refresh()
	}))
	p.subs.Add(p.secondary.ObserveSize().Subscribe(func(size int) {
		p.stateMu.Lock()
		p.sSize = size
		p.stateMu.Unlock()
		p.refresh()
	}))

	p.subs.Add(p.primary.ObserveMaxSize().Subscribe(func(n int) {
		p.stateMu.Lock()
		p.pMax = n
		p.stateMu.Unlock()
		p.refreshMaxSize()
	}))
	p.subs.Add(p.secondary.ObserveMaxSize().Subscribe(func(n int) {
		p.stateMu.Lock()
		p.sMax = n
		p.stateMu.Unlock()
		p.refreshMaxSize()
	}))

	p.subs.Add(p.primary.ObserveError().Subscribe(p.setError))
	p.subs.Add(p.secondary.ObserveError().Subscribe(p.setError))

	p.subs.Add(p.primary.ObserveBusy().Subscribe(func(busy bool) {
		p.stateMu.Lock()
		p.pBusy = busy
		either := p.pBusy || p.sBusy
		p.stateMu.Unlock()
		p.setBusy(either)
	}))
	p.subs.Add(p.secondary.ObserveBusy().Subscribe(func(busy bool) {
		p.stateMu.Lock()
		p.sBusy = busy
		either := p.pBusy || p.sBusy
		p.stateMu.Unlock()
		p.setBusy(either)
	}))

	p.subs.Add(p.fetchesS.Subscribe(func(req Fetch) {
		p.stateMu.Lock()
		p.request = req
		p.hasRequest = true
		p.stateMu.Unlock()
		p.primary.FetchAt(req.Index, req.Length)
		p.forward()
	}))
}

// refresh publishes the combined snapshot.
func (p *WrappedPager[T]) refresh() {
	p.modify(func([]T, int) ([]T, int, bool) {
		p.stateMu.Lock()
		defer p.stateMu.Unlock()

		items := make([]T, 0, len(p.pItems)+len(p.sItems))
		items = append(items, p.pItems...)
		seen := make(map[string]struct{}, len(p.pItems))
		for _, item := range p.pItems {
			seen[item.Key()] = struct{}{}
		}
		dropped := 0
		for _, item := range p.sItems {
			if _, dup := seen[item.Key()]; dup {
				dropped++
				continue
			}
			items = append(items, item)
		}

		size := -1
		if p.pSize >= 0 && p.sSize >= 0 {
			size = p.pSize + p.sSize - dropped
		}
		return items, size, true
	})
}

func (p *WrappedPager[T]) refreshMaxSize() {
	p.stateMu.Lock()
	pMax, sMax := p.pMax, p.sMax
	p.stateMu.Unlock()

	if pMax > 0 && sMax > 0 && !p.Disconnected() {
		p.maxSizeS.Next(pMax + sMax)
	}
}

// forward passes the part of the latest request beyond the primary's items
// to the secondary, once the primary holds all of its items.
func (p *WrappedPager[T]) forward() {
	p.stateMu.Lock()
	req, ok := p.request, p.hasRequest
	exhausted := p.pSize >= 0 && len(p.pItems) >= p.pSize
	offset := len(p.pItems)
	p.stateMu.Unlock()

	if !ok || !exhausted || p.Disconnected() {
		return
	}
	end := req.Index + req.Length
	if end < offset {
		return
	}
	start := req.Index - offset
	if start < 0 {
		start = 0
	}
	p.secondary.FetchAt(start, end-offset-start)
}
