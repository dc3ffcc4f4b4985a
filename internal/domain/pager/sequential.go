package pager

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// SequentialPager fetches pages one after another from a backend that can
// only continue where it left off. Pages are merged by Key with the first
// occurrence kept.
type SequentialPager[T Item] struct {
	*base[T]

	fetchNext FetchFunc[T]
	ctx       context.Context
	cancel    context.CancelFunc

	fetchMu    sync.Mutex
	request    Fetch
	fetching   bool
	atEnd      bool
	fetchCount int
	emptyCount int
}

// NewSequentialPager creates a pager that calls fetchNext for each page.
func NewSequentialPager[T Item](fetchNext FetchFunc[T], cfg Config) *SequentialPager[T] {
	ctx, cancel := context.WithCancel(context.Background())
	p := &SequentialPager[T]{
		base:      newBase[T](cfg),
		fetchNext: fetchNext,
		ctx:       ctx,
		cancel:    cancel,
	}
	p.onConnect = p.connect
	p.onClose = cancel
	return p
}

func (p *SequentialPager[T]) connect() {
	p.subs.Add(p.fetchesS.Subscribe(func(req Fetch) {
		p.fetchMu.Lock()
		p.request = req
		p.fetchMu.Unlock()
		p.next()
	}))
}

// shouldFetchLocked reports whether the latest request reaches past the items held
// (must hold fetchMu).
func (p *SequentialPager[T]) shouldFetchLocked() bool {
	if p.fetching || p.atEnd || p.fetchCount >= MaxFetchCount {
		return false
	}
	return p.request.Index+2*p.request.Length >= len(p.Items())
}

func (p *SequentialPager[T]) next() {
	if p.Disconnected() {
		return
	}

	p.fetchMu.Lock()
	if !p.shouldFetchLocked() {
		p.fetchMu.Unlock()
		return
	}
	p.fetching = true
	p.fetchCount++
	p.fetchMu.Unlock()

	p.setBusy(true)
	go p.fetch()
}

func (p *SequentialPager[T]) fetch() {
	page, err := p.fetchPage()

	if p.Disconnected() {
		return
	}

	if err != nil {
		log.Warn().Err(err).Msg("Page fetch failed")
		p.setError(err)
	}

	p.modify(func(items []T, size int) ([]T, int, bool) {
		p.fetchMu.Lock()
		defer p.fetchMu.Unlock()
		return p.mergeLocked(items, size, page, err)
	})

	p.fetchMu.Lock()
	p.fetching = false
	p.fetchMu.Unlock()

	p.setBusy(false)
	p.next()
}

// fetchPage calls the backend, turning a panic into an error.
func (p *SequentialPager[T]) fetchPage() (page Page[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page fetch panicked: %v", r)
		}
	}()
	return p.fetchNext(p.ctx, p.PageSize())
}

// mergeLocked folds a page into items and decides whether the end has been
// reached (must hold fetchMu).
func (p *SequentialPager[T]) mergeLocked(items []T, size int, page Page[T], err error) ([]T, int, bool) {
	merged := make([]T, len(items), len(items)+len(page.Items))
	copy(merged, items)

	added := 0
	if err == nil {
		seen := make(map[string]struct{}, len(items)+len(page.Items))
		for _, item := range items {
			seen[item.Key()] = struct{}{}
		}
		for _, item := range page.Items {
			key := item.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, item)
			added++
		}
	}

	maxSize := p.cfg.MaxSize
	if maxSize > 0 && len(merged) >= maxSize {
		merged = merged[:maxSize]
		p.atEnd = true
	}

	if added == 0 {
		p.emptyCount++
	}

	switch {
	case err == nil && page.AtEnd:
		p.atEnd = true
	case err == nil && page.Total > 0 && len(merged) >= page.Total:
		p.atEnd = true
	case p.emptyCount > p.cfg.MaxEmptyCount:
		p.atEnd = true
	case p.fetchCount >= MaxFetchCount:
		p.atEnd = true
	}

	if p.atEnd {
		return merged, len(merged), true
	}
	if err == nil && page.Total > 0 && page.Total > size {
		size = page.Total
	}
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}
	return merged, size, true
}
