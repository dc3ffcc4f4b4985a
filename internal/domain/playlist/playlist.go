// Package playlist keeps the ordered list of items queued for playback.
package playlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/pager"
	"github.com/edumarques81/ampcast-core/internal/domain/player"
	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

// StoreName is the store the playlist is persisted under.
const StoreName = "ampcast/playlist"

const (
	keyItems     = "items"
	keyCurrentID = "current-item-id"

	// maxRecent caps the recently played list.
	maxRecent = 100
)

// ErrNotFound is returned for an id that is not in the playlist.
var ErrNotFound = errors.New("playlist item not found")

// Store is a key/value store grouped by store name.
type Store interface {
	Get(store, key string) ([]byte, bool, error)
	Set(store, key string, value []byte) error
}

// Playlist is an ordered list of items with one current item.
// It is safe for concurrent use.
type Playlist struct {
	mu        sync.Mutex
	store     Store
	items     []*media.PlaylistItem
	currentID string
	recent    []*media.Item
	heads     []*pager.SubjectPager[*media.Item]

	itemsS   *stream.Subject[[]*media.PlaylistItem]
	currentS *stream.Subject[*media.PlaylistItem]
	now      func() time.Time
}

// New reads the playlist from store.
func New(store Store) (*Playlist, error) {
	p := &Playlist{
		store: store,
		now:   time.Now,
	}

	if data, ok, err := store.Get(StoreName, keyItems); err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	} else if ok {
		if err := json.Unmarshal(data, &p.items); err != nil {
			return nil, fmt.Errorf("failed to decode playlist: %w", err)
		}
	}
	if data, ok, err := store.Get(StoreName, keyCurrentID); err != nil {
		return nil, fmt.Errorf("failed to read current item: %w", err)
	} else if ok {
		p.currentID = string(data)
	}
	if p.indexLocked(p.currentID) < 0 {
		p.currentID = ""
	}

	p.itemsS = stream.NewBehavior(p.snapshotLocked())
	p.currentS = stream.NewBehavior(p.currentLocked())

	log.Info().Int("items", len(p.items)).Msg("Playlist loaded")
	return p, nil
}

func (p *Playlist) snapshotLocked() []*media.PlaylistItem {
	return append([]*media.PlaylistItem{}, p.items...)
}

func (p *Playlist) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, item := range p.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (p *Playlist) currentLocked() *media.PlaylistItem {
	if i := p.indexLocked(p.currentID); i >= 0 {
		return p.items[i]
	}
	return nil
}

// commitAndUnlock releases mu, then persists and publishes the playlist.
func (p *Playlist) commitAndUnlock() {
	items := p.snapshotLocked()
	current := p.currentLocked()
	currentID := p.currentID
	p.mu.Unlock()

	if data, err := json.Marshal(items); err != nil {
		log.Warn().Err(err).Msg("Failed to encode playlist")
	} else if err := p.store.Set(StoreName, keyItems, data); err != nil {
		log.Warn().Err(err).Msg("Failed to save playlist")
	}
	if err := p.store.Set(StoreName, keyCurrentID, []byte(currentID)); err != nil {
		log.Warn().Err(err).Msg("Failed to save current item")
	}

	p.itemsS.Next(items)
	p.currentS.Next(current)
}

// Items returns the playlist in order.
func (p *Playlist) Items() []*media.PlaylistItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Current returns the current item, or nil.
func (p *Playlist) Current() *media.PlaylistItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

func (p *Playlist) ObserveItems() stream.Observable[[]*media.PlaylistItem] { return p.itemsS }
func (p *Playlist) ObserveCurrent() stream.Observable[*media.PlaylistItem] { return p.currentS }

// Add appends items, each with a fresh id. The first item added to an empty
// playlist becomes current.
func (p *Playlist) Add(items ...*media.Item) []*media.PlaylistItem {
	p.mu.Lock()
	return p.insertLocked(len(p.items), items)
}

// Insert places items before index.
func (p *Playlist) Insert(index int, items ...*media.Item) []*media.PlaylistItem {
	p.mu.Lock()
	return p.insertLocked(index, items)
}

// InsertNext places items after the current item.
func (p *Playlist) InsertNext(items ...*media.Item) []*media.PlaylistItem {
	p.mu.Lock()
	return p.insertLocked(p.indexLocked(p.currentID)+1, items)
}

func (p *Playlist) insertLocked(index int, items []*media.Item) []*media.PlaylistItem {
	if index < 0 {
		index = 0
	}
	if index > len(p.items) {
		index = len(p.items)
	}

	added := make([]*media.PlaylistItem, len(items))
	for i, item := range items {
		added[i] = media.NewPlaylistItem(item)
	}

	next := make([]*media.PlaylistItem, 0, len(p.items)+len(added))
	next = append(next, p.items[:index]...)
	next = append(next, added...)
	next = append(next, p.items[index:]...)
	p.items = next

	if p.currentID == "" && len(added) > 0 {
		p.currentID = added[0].ID
	}

	p.commitAndUnlock()
	return added
}

// Remove deletes items by id. Removing the current item makes the following
// item current.
func (p *Playlist) Remove(ids ...string) {
	p.mu.Lock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	currentIndex := p.indexLocked(p.currentID)
	kept := make([]*media.PlaylistItem, 0, len(p.items))
	replacement := ""
	for i, item := range p.items {
		if drop[item.ID] {
			continue
		}
		if replacement == "" && currentIndex >= 0 && i > currentIndex {
			replacement = item.ID
		}
		kept = append(kept, item)
	}
	p.items = kept

	if drop[p.currentID] {
		p.currentID = replacement
	}
	p.commitAndUnlock()
}

// Move places the item with id at index.
func (p *Playlist) Move(id string, index int) error {
	p.mu.Lock()
	from := p.indexLocked(id)
	if from < 0 {
		p.mu.Unlock()
		return ErrNotFound
	}
	item := p.items[from]
	rest := append(append([]*media.PlaylistItem{}, p.items[:from]...), p.items[from+1:]...)
	if index < 0 {
		index = 0
	}
	if index > len(rest) {
		index = len(rest)
	}
	next := make([]*media.PlaylistItem, 0, len(p.items))
	next = append(next, rest[:index]...)
	next = append(next, item)
	next = append(next, rest[index:]...)
	p.items = next

	p.commitAndUnlock()
	return nil
}

// Clear empties the playlist.
func (p *Playlist) Clear() {
	p.mu.Lock()
	p.items = nil
	p.currentID = ""
	p.commitAndUnlock()
}

// SetCurrent makes the item with id current.
func (p *Playlist) SetCurrent(id string) error {
	p.mu.Lock()
	if p.indexLocked(id) < 0 {
		p.mu.Unlock()
		return ErrNotFound
	}
	p.currentID = id
	p.commitAndUnlock()
	return nil
}

// Next moves to the following item and returns it, or nil at the end.
func (p *Playlist) Next() *media.PlaylistItem {
	return p.step(1)
}

// Prev moves to the preceding item and returns it, or nil at the start.
func (p *Playlist) Prev() *media.PlaylistItem {
	return p.step(-1)
}

// Upcoming returns the item after the current one without moving to it.
func (p *Playlist) Upcoming() *media.PlaylistItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.indexLocked(p.currentID) + 1
	if p.currentID == "" || i <= 0 || i >= len(p.items) {
		return nil
	}
	return p.items[i]
}

func (p *Playlist) step(delta int) *media.PlaylistItem {
	p.mu.Lock()
	i := p.indexLocked(p.currentID) + delta
	if i < 0 || i >= len(p.items) || p.currentID == "" {
		p.mu.Unlock()
		return nil
	}
	item := p.items[i]
	p.currentID = item.ID
	p.commitAndUnlock()
	return item
}

// MarkPlayed records item at the head of the recently played list.
func (p *Playlist) MarkPlayed(item *media.Item) {
	played := item.Clone()
	played.PlayedAt = p.now()

	p.mu.Lock()
	recent := make([]*media.Item, 0, len(p.recent)+1)
	recent = append(recent, played)
	for _, r := range p.recent {
		if r.Src != played.Src && len(recent) < maxRecent {
			recent = append(recent, r)
		}
	}
	p.recent = recent

	heads := p.heads[:0]
	for _, head := range p.heads {
		if !head.Disconnected() {
			heads = append(heads, head)
		}
	}
	p.heads = heads
	live := append([]*pager.SubjectPager[*media.Item]{}, heads...)
	p.mu.Unlock()

	for _, head := range live {
		head.Next(recent)
	}
}

// Recent returns the recently played items, newest first.
func (p *Playlist) Recent() []*media.Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*media.Item{}, p.recent...)
}

// RecentPager lists recently played items ahead of an older listening
// history. The recent part follows MarkPlayed until the pager is disconnected.
func (p *Playlist) RecentPager(history pager.Pager[*media.Item]) pager.Pager[*media.Item] {
	p.mu.Lock()
	defer p.mu.Unlock()
	wrapped, head := pager.NewRecentPager(append([]*media.Item{}, p.recent...), history)
	p.heads = append(p.heads, head)
	return wrapped
}

// Follow advances the playlist when pb finishes an item and loads the next
// one.
func (p *Playlist) Follow(pb *player.Playback) *stream.Subscription {
	return pb.ObserveEnded().Subscribe(func(ended *media.PlaylistItem) {
		if ended == nil {
			return
		}
		p.MarkPlayed(&ended.Item)
		if next := p.Next(); next != nil {
			// Load failures are reported on the playback's error stream.
			if err := pb.Load(next); err != nil {
				return
			}
			pb.Play()
		}
	})
}
