package pager

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

// base holds the machinery shared by every pager: the item, size and error
// streams, fetch bookkeeping, page-size negotiation, nested pager tracking and
// disconnect handling. Concrete pagers embed it and supply a connect hook.
type base[T Item] struct {
	cfg Config

	mu           sync.Mutex
	emitMu       sync.Mutex
	items        []T
	size         int
	pageSize     int
	maxLength    int
	connected    bool
	disconnected bool
	completed    bool
	children     map[string]*stream.Subscription

	itemsS    *stream.Subject[[]T]
	sizeS     *stream.Subject[int]
	maxSizeS  *stream.Subject[int]
	errS      *stream.Subject[error]
	busyS     *stream.Subject[bool]
	fetchesS  *stream.Subject[Fetch]
	completeS *stream.Subject[[]T]

	subs      stream.Group
	onConnect func()
	onClose   func()
}

func newBase[T Item](cfg Config) *base[T] {
	cfg = cfg.withDefaults()
	b := &base[T]{
		cfg:       cfg,
		size:      -1,
		pageSize:  cfg.PageSize,
		children:  make(map[string]*stream.Subscription),
		itemsS:    stream.NewReplay[[]T](),
		sizeS:     stream.NewReplay(stream.Distinct[int]()),
		maxSizeS:  stream.NewReplay(stream.Distinct[int]()),
		errS:      stream.NewReplay[error](),
		busyS:     stream.NewBehavior(false, stream.Distinct[bool]()),
		fetchesS:  stream.NewReplay[Fetch](),
		completeS: stream.NewReplay[[]T](),
	}
	if cfg.MaxSize > 0 {
		b.maxSizeS.Next(cfg.MaxSize)
	}
	return b
}

// FetchAt records the requested window and connects on first use.
func (b *base[T]) FetchAt(index, length int) {
	if index < 0 {
		index = 0
	}
	if length < 0 {
		length = 0
	}

	b.mu.Lock()
	if b.disconnected {
		b.mu.Unlock()
		return
	}
	if b.cfg.CalculatePageSize && length > b.maxLength {
		b.maxLength = length
		if size := calculatePageSize(length, b.cfg.MinPageSize, b.cfg.MaxPageSize); size > b.pageSize {
			b.pageSize = size
		}
	}
	connect := !b.connected
	b.connected = true
	b.mu.Unlock()

	b.fetchesS.Next(Fetch{Index: index, Length: length})

	if connect && b.onConnect != nil {
		b.onConnect()
	}
}

// PageSize returns the page size the pager currently requests.
func (b *base[T]) PageSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pageSize
}

func (b *base[T]) ObserveItems() stream.Observable[[]T]    { return b.itemsS }
func (b *base[T]) ObserveSize() stream.Observable[int]     { return b.sizeS }
func (b *base[T]) ObserveMaxSize() stream.Observable[int]  { return b.maxSizeS }
func (b *base[T]) ObserveError() stream.Observable[error]  { return b.errS }
func (b *base[T]) ObserveBusy() stream.Observable[bool]    { return b.busyS }
func (b *base[T]) ObserveComplete() stream.Observable[[]T] { return b.completeS }

// Items returns the current snapshot.
func (b *base[T]) Items() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items
}

// Size returns the known size, or -1.
func (b *base[T]) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Disconnected reports whether Disconnect has been called.
func (b *base[T]) Disconnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disconnected
}

// update replaces items and size together and publishes the result. A size
// below zero keeps the current size.
func (b *base[T]) update(items []T, size int) {
	b.modify(func([]T, int) ([]T, int, bool) { return items, size, true })
}

// modify derives a new snapshot from the current one and publishes it unless
// fn reports no change. Snapshots are emitted in the order they were derived.
// fn must not call back into the pager.
func (b *base[T]) modify(fn func(items []T, size int) ([]T, int, bool)) {
	for _, item := range b.publish(fn) {
		b.watchTrackCount(item)
	}
}

func (b *base[T]) publish(fn func(items []T, size int) ([]T, int, bool)) []T {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	if b.disconnected {
		b.mu.Unlock()
		return nil
	}
	cur, curSize := b.items, b.size
	b.mu.Unlock()

	items, size, changed := fn(cur, curSize)
	if !changed {
		return nil
	}

	b.mu.Lock()
	if b.disconnected {
		b.mu.Unlock()
		return nil
	}
	if items == nil {
		items = []T{}
	}
	b.items = items
	if size >= 0 {
		b.size = size
	}
	size = b.size
	watch := b.untrackedLocked(items)
	var complete []T
	if !b.completed && size >= 0 && len(items) == size {
		b.completed = true
		complete = items
	}
	b.mu.Unlock()

	b.itemsS.Next(items)
	if size >= 0 {
		b.sizeS.Next(size)
	}
	if complete != nil {
		b.completeS.Next(complete)
	}
	return watch
}

// setError publishes a fetch error.
func (b *base[T]) setError(err error) {
	if b.Disconnected() {
		return
	}
	b.errS.Next(err)
}

func (b *base[T]) setBusy(busy bool) {
	if b.Disconnected() {
		return
	}
	b.busyS.Next(busy)
}

// untrackedLocked returns items that need a track count and have no observer
// yet (must hold mu).
func (b *base[T]) untrackedLocked(items []T) []T {
	var watch []T
	for _, item := range items {
		tc, ok := any(item).(trackCounted)
		if !ok || !tc.NeedsTrackCount() || tc.ChildPager() == nil {
			continue
		}
		key := item.Key()
		if _, seen := b.children[key]; seen {
			continue
		}
		b.children[key] = nil
		watch = append(watch, item)
	}
	return watch
}

// watchTrackCount patches an item's track count once its nested pager knows
// its size.
func (b *base[T]) watchTrackCount(item T) {
	key := item.Key()
	child := any(item).(trackCounted).ChildPager()

	sub := child.ObserveSize().Subscribe(func(size int) {
		b.patchTrackCount(key, size)
	})

	b.mu.Lock()
	if b.disconnected {
		b.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	b.children[key] = sub
	b.mu.Unlock()
}

func (b *base[T]) patchTrackCount(key string, count int) {
	patched := false
	b.modify(func(items []T, size int) ([]T, int, bool) {
		for i, item := range items {
			if item.Key() != key {
				continue
			}
			next, ok := any(item).(trackCounted).WithTrackCount(count).(T)
			if !ok {
				break
			}
			out := make([]T, len(items))
			copy(out, items)
			out[i] = next
			patched = true
			return out, size, true
		}
		return nil, 0, false
	})
	if patched {
		log.Debug().Str("src", key).Int("trackCount", count).Msg("Patched track count")
	}
}

// Disconnect releases the pager. It is safe to call more than once.
func (b *base[T]) Disconnect() {
	b.mu.Lock()
	if b.disconnected {
		b.mu.Unlock()
		return
	}
	b.disconnected = true
	items := b.items
	children := b.children
	b.children = make(map[string]*stream.Subscription)
	b.mu.Unlock()

	if b.onClose != nil {
		b.onClose()
	}
	b.subs.Unsubscribe()

	for _, sub := range children {
		sub.Unsubscribe()
	}
	for _, item := range items {
		if parent, ok := any(item).(Parent); ok {
			if child := parent.ChildPager(); child != nil {
				child.Disconnect()
			}
		}
	}

	b.itemsS.Complete()
	b.sizeS.Complete()
	b.maxSizeS.Complete()
	b.errS.Complete()
	b.busyS.Complete()
	b.fetchesS.Complete()
	b.completeS.Complete()
}
