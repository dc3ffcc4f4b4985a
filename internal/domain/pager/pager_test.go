package pager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testItem struct {
	src    string
	value  int
	tracks int
	child  *SubjectPager[*testItem]
}

func (i *testItem) Key() string { return i.src }

func (i *testItem) ChildPager() Child {
	if i.child == nil {
		return nil
	}
	return i.child
}

func (i *testItem) NeedsTrackCount() bool { return i.child != nil && i.tracks == 0 }

func (i *testItem) WithTrackCount(n int) any {
	c := *i
	c.tracks = n
	return &c
}

func newItems(from, to int) []*testItem {
	items := make([]*testItem, 0, to-from)
	for n := from; n < to; n++ {
		items = append(items, &testItem{src: fmt.Sprintf("test:track:%d", n), value: n})
	}
	return items
}

// offsetBackend serves total items in pages, remembering how far it got.
type offsetBackend struct {
	mu     sync.Mutex
	total  int
	offset int
	calls  atomic.Int32
	report bool
}

func (b *offsetBackend) fetch(_ context.Context, pageSize int) (Page[*testItem], error) {
	b.calls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()

	end := b.offset + pageSize
	if end > b.total {
		end = b.total
	}
	page := Page[*testItem]{Items: newItems(b.offset, end)}
	if b.report {
		page.Total = b.total
	}
	b.offset = end
	return page, nil
}

type recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCalculatePageSize(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{0, 10},
		{1, 10},
		{10, 10},
		{11, 20},
		{37, 40},
		{100, 100},
		{500, 100},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.length), func(t *testing.T) {
			if got := calculatePageSize(tt.length, DefaultMinPageSize, DefaultMaxPageSize); got != tt.want {
				t.Errorf("calculatePageSize(%d) = %d, want %d", tt.length, got, tt.want)
			}
		})
	}
}

func TestPageSizeNeverShrinks(t *testing.T) {
	p := NewSubjectPager[*testItem](Config{CalculatePageSize: true})
	defer p.Disconnect()

	if got := p.PageSize(); got != DefaultMinPageSize {
		t.Fatalf("expected initial page size %d, got %d", DefaultMinPageSize, got)
	}

	p.FetchAt(0, 37)
	if got := p.PageSize(); got != 40 {
		t.Errorf("expected 40 after fetchAt(0, 37), got %d", got)
	}

	p.FetchAt(0, 20)
	if got := p.PageSize(); got != 40 {
		t.Errorf("expected page size to stay at 40, got %d", got)
	}

	p.FetchAt(100, 500)
	if got := p.PageSize(); got != DefaultMaxPageSize {
		t.Errorf("expected page size clamped to %d, got %d", DefaultMaxPageSize, got)
	}
}

func TestSequentialPagerIsLazy(t *testing.T) {
	backend := &offsetBackend{total: 50}
	p := NewSequentialPager(backend.fetch, Config{PageSize: 10})
	defer p.Disconnect()

	time.Sleep(20 * time.Millisecond)
	if n := backend.calls.Load(); n != 0 {
		t.Fatalf("expected no fetch before FetchAt, got %d", n)
	}

	p.FetchAt(0, 10)
	waitFor(t, "first page", func() bool { return len(p.Items()) >= 10 })
}

func TestSequentialPagerFetchGate(t *testing.T) {
	backend := &offsetBackend{total: 50, report: true}
	p := NewSequentialPager(backend.fetch, Config{PageSize: 10})
	defer p.Disconnect()

	p.FetchAt(0, 10)

	// 0 + 2*10 >= len(items) holds until 30 items are held.
	waitFor(t, "30 items", func() bool { return len(p.Items()) == 30 })
	time.Sleep(30 * time.Millisecond)

	if n := backend.calls.Load(); n != 3 {
		t.Errorf("expected 3 fetches, got %d", n)
	}
	if got := p.Size(); got != 50 {
		t.Errorf("expected reported total as size, got %d", got)
	}

	// Repeating the same window does not fetch again.
	p.FetchAt(0, 10)
	time.Sleep(30 * time.Millisecond)
	if n := backend.calls.Load(); n != 3 {
		t.Errorf("expected repeated FetchAt to be a no-op, got %d fetches", n)
	}

	p.FetchAt(20, 10)
	waitFor(t, "all items", func() bool { return len(p.Items()) == 50 })
	if got := p.Size(); got != 50 {
		t.Errorf("expected size 50, got %d", got)
	}
}

func TestSequentialPagerDedupeFirstWins(t *testing.T) {
	pages := [][]*testItem{
		{{src: "a", value: 1}, {src: "b", value: 1}},
		{{src: "b", value: 2}, {src: "c", value: 1}},
	}
	var calls atomic.Int32
	fetch := func(context.Context, int) (Page[*testItem], error) {
		n := int(calls.Add(1)) - 1
		if n >= len(pages) {
			return Page[*testItem]{AtEnd: true}, nil
		}
		return Page[*testItem]{Items: pages[n], AtEnd: n == len(pages)-1}, nil
	}

	p := NewSequentialPager(fetch, Config{})
	defer p.Disconnect()

	var complete recorder[[]*testItem]
	p.ObserveComplete().Subscribe(complete.add)

	p.FetchAt(0, 10)
	waitFor(t, "complete", func() bool { return len(complete.all()) == 1 })

	items := complete.all()[0]
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, want := range []string{"a", "b", "c"} {
		if items[i].src != want {
			t.Errorf("index %d: expected %s, got %s", i, want, items[i].src)
		}
	}
	if items[1].value != 1 {
		t.Errorf("expected first copy of b to win, got value %d", items[1].value)
	}
}

func TestSequentialPagerEmptyPageLimit(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context, int) (Page[*testItem], error) {
		calls.Add(1)
		return Page[*testItem]{Items: newItems(0, 5)}, nil
	}

	p := NewSequentialPager(fetch, Config{})
	defer p.Disconnect()

	var complete recorder[[]*testItem]
	p.ObserveComplete().Subscribe(complete.add)

	p.FetchAt(0, 100)
	waitFor(t, "complete", func() bool { return len(complete.all()) == 1 })
	time.Sleep(30 * time.Millisecond)

	// One page with items, then three duplicate pages exceed the budget of two.
	if n := calls.Load(); n != 4 {
		t.Errorf("expected 4 fetches, got %d", n)
	}
	if got := p.Size(); got != 5 {
		t.Errorf("expected size 5, got %d", got)
	}
}

func TestSequentialPagerErrorsCountAsEmpty(t *testing.T) {
	errBackend := errors.New("backend unavailable")
	var calls atomic.Int32
	fetch := func(context.Context, int) (Page[*testItem], error) {
		calls.Add(1)
		return Page[*testItem]{}, errBackend
	}

	p := NewSequentialPager(fetch, Config{})
	defer p.Disconnect()

	var errs recorder[error]
	p.ObserveError().Subscribe(errs.add)
	var complete recorder[[]*testItem]
	p.ObserveComplete().Subscribe(complete.add)

	p.FetchAt(0, 10)
	waitFor(t, "complete", func() bool { return len(complete.all()) == 1 })

	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 fetches, got %d", n)
	}
	got := errs.all()
	if len(got) == 0 {
		t.Fatal("expected errors to be published")
	}
	for _, err := range got {
		if !errors.Is(err, errBackend) {
			t.Errorf("unexpected error %v", err)
		}
	}
	if len(complete.all()[0]) != 0 {
		t.Errorf("expected no items, got %d", len(complete.all()[0]))
	}
}

func TestSequentialPagerMaxSize(t *testing.T) {
	backend := &offsetBackend{total: 100, report: true}
	p := NewSequentialPager(backend.fetch, Config{PageSize: 30, MaxSize: 45})
	defer p.Disconnect()

	var maxSize recorder[int]
	p.ObserveMaxSize().Subscribe(maxSize.add)
	var complete recorder[[]*testItem]
	p.ObserveComplete().Subscribe(complete.add)

	p.FetchAt(0, 100)
	waitFor(t, "complete", func() bool { return len(complete.all()) == 1 })

	if got := len(complete.all()[0]); got != 45 {
		t.Errorf("expected 45 items, got %d", got)
	}
	if got := maxSize.all(); len(got) != 1 || got[0] != 45 {
		t.Errorf("expected max size 45, got %v", got)
	}
}

func TestSequentialPagerSizeIsMonotonicUntilEnd(t *testing.T) {
	totals := []int{40, 30, 0}
	var calls atomic.Int32
	fetch := func(context.Context, int) (Page[*testItem], error) {
		n := int(calls.Add(1)) - 1
		page := Page[*testItem]{Items: newItems(n*10, n*10+10), Total: totals[n]}
		page.AtEnd = n == len(totals)-1
		return page, nil
	}

	p := NewSequentialPager(fetch, Config{PageSize: 10})
	defer p.Disconnect()

	var sizes recorder[int]
	p.ObserveSize().Subscribe(sizes.add)

	p.FetchAt(0, 50)
	waitFor(t, "end", func() bool { return p.Size() == 30 })

	want := []int{40, 30}
	got := sizes.all()
	if len(got) != len(want) {
		t.Fatalf("expected sizes %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestSequentialPagerDisconnect(t *testing.T) {
	release := make(chan struct{})
	var cancelled atomic.Bool
	fetch := func(ctx context.Context, _ int) (Page[*testItem], error) {
		select {
		case <-release:
		case <-ctx.Done():
			cancelled.Store(true)
			return Page[*testItem]{}, ErrDisconnected
		}
		return Page[*testItem]{Items: newItems(0, 10)}, nil
	}

	p := NewSequentialPager(fetch, Config{})

	var items recorder[[]*testItem]
	p.ObserveItems().Subscribe(items.add)
	var errs recorder[error]
	p.ObserveError().Subscribe(errs.add)

	p.FetchAt(0, 10)
	time.Sleep(10 * time.Millisecond)
	p.Disconnect()
	p.Disconnect()

	waitFor(t, "cancelled fetch", cancelled.Load)
	close(release)
	time.Sleep(20 * time.Millisecond)

	if got := items.all(); len(got) != 0 {
		t.Errorf("expected no items after disconnect, got %v", got)
	}
	if got := errs.all(); len(got) != 0 {
		t.Errorf("expected no errors after disconnect, got %v", got)
	}
}

func TestSubjectPager(t *testing.T) {
	p := NewSubjectPager[*testItem](Config{})
	defer p.Disconnect()

	var complete recorder[[]*testItem]
	p.ObserveComplete().Subscribe(complete.add)
	var sizes recorder[int]
	p.ObserveSize().Subscribe(sizes.add)

	p.Next(newItems(0, 3))
	p.Next(newItems(0, 3))
	p.Next(newItems(0, 5))

	if got := len(complete.all()); got != 1 {
		t.Errorf("expected complete once, got %d", got)
	}
	if got := sizes.all(); len(got) != 2 || got[0] != 3 || got[1] != 5 {
		t.Errorf("expected distinct sizes [3 5], got %v", got)
	}
}

func TestTrackCountPatching(t *testing.T) {
	child := NewSubjectPager[*testItem](Config{})
	playlist := &testItem{src: "test:playlist:1", child: child}

	p := NewSubjectPager[*testItem](Config{})
	p.Next([]*testItem{playlist})

	child.Next(newItems(0, 42))

	items := p.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].tracks != 42 {
		t.Errorf("expected track count 42, got %d", items[0].tracks)
	}
	if playlist.tracks != 0 {
		t.Error("expected original item to be left untouched")
	}

	p.Disconnect()
	if !child.Disconnected() {
		t.Error("expected disconnect to cascade to the nested pager")
	}
}

func TestWrappedPager(t *testing.T) {
	recent := []*testItem{{src: "test:track:3"}, {src: "r1"}}
	backend := &offsetBackend{total: 20, report: true}
	history := NewSequentialPager(backend.fetch, Config{PageSize: 10})

	p, head := NewRecentPager(recent, history)

	var complete recorder[[]*testItem]
	p.ObserveComplete().Subscribe(complete.add)

	p.FetchAt(0, 30)
	waitFor(t, "complete", func() bool { return len(complete.all()) == 1 })

	items := complete.all()[0]
	if len(items) != 21 {
		t.Fatalf("expected 21 items, got %d", len(items))
	}
	if items[0].src != "test:track:3" || items[1].src != "r1" {
		t.Errorf("expected recent items first, got %s, %s", items[0].src, items[1].src)
	}
	for _, item := range items[2:] {
		if item.src == "test:track:3" {
			t.Error("expected duplicate of a recent item to be dropped")
		}
	}
	if got := p.Size(); got != 21 {
		t.Errorf("expected size 21, got %d", got)
	}

	head.Next([]*testItem{{src: "r2"}, {src: "test:track:3"}, {src: "r1"}})
	if got := p.Items(); got[0].src != "r2" {
		t.Errorf("expected pushed recent item first, got %s", got[0].src)
	}

	p.Disconnect()
	if !head.Disconnected() || !history.Disconnected() {
		t.Error("expected disconnect to cascade to both pagers")
	}
}

func TestSequentialPagerWithoutTotal(t *testing.T) {
	pages := []Page[*testItem]{
		{},
		{Items: newItems(0, 10)},
		{Items: newItems(10, 15), AtEnd: true},
	}
	var calls atomic.Int32
	fetch := func(context.Context, int) (Page[*testItem], error) {
		n := int(calls.Add(1)) - 1
		if n >= len(pages) {
			return Page[*testItem]{AtEnd: true}, nil
		}
		return pages[n], nil
	}

	p := NewSequentialPager(fetch, Config{PageSize: 10})
	defer p.Disconnect()

	var sizes recorder[int]
	p.ObserveSize().Subscribe(sizes.add)
	var complete recorder[[]*testItem]
	p.ObserveComplete().Subscribe(complete.add)

	p.FetchAt(0, 20)
	waitFor(t, "complete", func() bool { return len(complete.all()) > 0 })
	time.Sleep(20 * time.Millisecond)

	if got := complete.all(); len(got) != 1 || len(got[0]) != 15 {
		t.Fatalf("expected one complete emission of 15 items, got %d emissions", len(got))
	}
	if got := sizes.all(); len(got) != 1 || got[0] != 15 {
		t.Errorf("expected size to stay unknown until the end, got %v", got)
	}
}

func TestWrappedPagerKeepsPrimaryAhead(t *testing.T) {
	primary := NewSubjectPager[*testItem](Config{})
	primary.Next([]*testItem{{src: "p0"}, {src: "p1"}})
	backend := &offsetBackend{total: 5}
	secondary := NewSequentialPager(backend.fetch, Config{PageSize: 2})

	p := NewWrappedPager[*testItem](primary, secondary, Config{})
	defer p.Disconnect()

	var emissions recorder[[]*testItem]
	p.ObserveItems().Subscribe(emissions.add)
	var sizes recorder[int]
	p.ObserveSize().Subscribe(sizes.add)
	var complete recorder[[]*testItem]
	p.ObserveComplete().Subscribe(complete.add)

	p.FetchAt(0, 10)
	waitFor(t, "complete", func() bool { return len(complete.all()) == 1 })

	if got := backend.calls.Load(); got < 3 {
		t.Errorf("expected at least 3 secondary fetches, got %d", got)
	}
	prev := 0
	for i, items := range emissions.all() {
		if len(items) == 0 {
			continue
		}
		if len(items) < 2 || items[0].src != "p0" || items[1].src != "p1" {
			t.Fatalf("emission %d does not start with the primary items: %d items", i, len(items))
		}
		for j, item := range items[2:] {
			if want := fmt.Sprintf("test:track:%d", j); item.src != want {
				t.Errorf("emission %d item %d = %s, want %s", i, j+2, item.src, want)
			}
		}
		if len(items) < prev {
			t.Errorf("emission %d shrank from %d to %d items", i, prev, len(items))
		}
		prev = len(items)
	}
	if prev != 7 {
		t.Errorf("expected 7 items at the end, got %d", prev)
	}
	if got := sizes.all(); len(got) != 1 || got[0] != 7 {
		t.Errorf("expected a single size of 7 once the secondary ended, got %v", got)
	}
	if got := complete.all()[0]; len(got) != 7 {
		t.Errorf("expected complete with 7 items, got %d", len(got))
	}
}
