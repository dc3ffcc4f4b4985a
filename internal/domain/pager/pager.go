// Package pager provides lazily fetched, incrementally merged media collections.
//
// A Pager is driven by FetchAt calls describing the window a consumer wants to
// show. Results come back on the Observe* streams as full snapshots, never as
// deltas. Pagers are safe for concurrent use.
package pager

import (
	"context"
	"errors"

	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

const (
	// DefaultPageSize is used when no page size is configured.
	DefaultPageSize = 50

	// DefaultMinPageSize is the lower clamp for calculated page sizes.
	DefaultMinPageSize = 10

	// DefaultMaxPageSize is the upper clamp for calculated page sizes.
	DefaultMaxPageSize = 100

	// DefaultMaxEmptyCount is the number of pages without new items tolerated
	// before a sequential pager gives up.
	DefaultMaxEmptyCount = 2

	// MaxFetchCount caps the number of pages a sequential pager will request.
	MaxFetchCount = 100
)

// ErrDisconnected is reported by page functions cancelled by Disconnect.
var ErrDisconnected = errors.New("pager disconnected")

// Item is anything a pager can hold. Key returns the item's src, which is
// unique and stable per logical entity.
type Item interface {
	Key() string
}

// Child is the view a parent pager has of an item's nested pager.
type Child interface {
	ObserveSize() stream.Observable[int]
	Disconnect()
}

// Parent is implemented by items that own a nested pager.
type Parent interface {
	ChildPager() Child
}

// trackCounted is implemented by items whose track count can be learned from
// their nested pager.
type trackCounted interface {
	Parent
	NeedsTrackCount() bool
	WithTrackCount(n int) any
}

// Pager is a lazily fetched collection.
type Pager[T Item] interface {
	// FetchAt declares that the consumer wants items in [index, index+length).
	// The first call connects the pager.
	FetchAt(index, length int)

	// ObserveItems emits the accumulated items after every change.
	ObserveItems() stream.Observable[[]T]

	// ObserveSize emits the known or estimated total count.
	ObserveSize() stream.Observable[int]

	// ObserveMaxSize emits the upper bound of the collection, if one is known.
	ObserveMaxSize() stream.Observable[int]

	// ObserveError emits fetch errors.
	ObserveError() stream.Observable[error]

	// ObserveBusy emits true while a fetch is outstanding.
	ObserveBusy() stream.Observable[bool]

	// ObserveComplete emits the final items once every item has been fetched.
	ObserveComplete() stream.Observable[[]T]

	// Disconnect releases the pager and any nested pagers.
	Disconnect()
}

// Page is the result of one round-trip to a backend.
type Page[T Item] struct {
	Items []T
	// Total is the backend-reported collection size, zero when not reported.
	Total int
	// AtEnd is set by backends that know no further pages exist.
	AtEnd bool
}

// FetchFunc returns the next page of a collection. pageSize is advisory.
type FetchFunc[T Item] func(ctx context.Context, pageSize int) (Page[T], error)

// Config is fixed when a pager is created.
type Config struct {
	PageSize          int
	MinPageSize       int
	MaxPageSize       int
	MaxSize           int
	CalculatePageSize bool
	MaxEmptyCount     int
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.MinPageSize <= 0 {
		c.MinPageSize = DefaultMinPageSize
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = DefaultMaxPageSize
	}
	if c.MaxPageSize < c.MinPageSize {
		c.MaxPageSize = c.MinPageSize
	}
	if c.PageSize <= 0 {
		if c.CalculatePageSize {
			c.PageSize = c.MinPageSize
		} else {
			c.PageSize = DefaultPageSize
		}
	}
	if c.MaxEmptyCount <= 0 {
		c.MaxEmptyCount = DefaultMaxEmptyCount
	}
	return c
}

// Fetch is a consumer's request for a window of items.
type Fetch struct {
	Index  int
	Length int
}

// calculatePageSize rounds length up to a multiple of ten and clamps it.
func calculatePageSize(length, lo, hi int) int {
	size := (length + 9) / 10 * 10
	if size < lo {
		size = lo
	}
	if size > hi {
		size = hi
	}
	return size
}
