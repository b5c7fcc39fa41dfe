// Package timeline holds the bounded list of tweets currently on display.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashtags/hashtag-timeline/internal/mediacache"
	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultCapacity is the number of entries kept before the oldest is evicted
const DefaultCapacity = 30

// MediaSource provides shared media for entries
type MediaSource interface {
	Acquire(ctx context.Context, url string) (mediacache.Ref, error)
	Release(ref mediacache.Ref)
	Invalidate(url string)
}

// ErrNotFound is returned for ids that are not on the timeline
var ErrNotFound = errors.New("entry not on timeline")

type slot struct {
	entry models.TimelineEntry
	media mediacache.Ref
	held  bool
}

// EvictFunc is called with the display ids of evicted entries
type EvictFunc func(ids []int64)

// Timeline is a fixed-capacity, append-only view of resolved tweets.
// The most recent entry is always last internally and first in Entries.
type Timeline struct {
	capacity int
	media    MediaSource

	mu       sync.RWMutex
	entries  []slot
	onEvict  []EvictFunc
	appended int64
}

// New creates an empty timeline. A nil media source skips media loading.
func New(capacity int, media MediaSource) *Timeline {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Timeline{
		capacity: capacity,
		media:    media,
		entries:  make([]slot, 0, capacity),
	}
}

// OnEvict registers a callback fired after entries fall off the timeline
func (t *Timeline) OnEvict(fn EvictFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvict = append(t.onEvict, fn)
}

// Append loads the entry's media and adds it as the most recent entry,
// evicting the oldest entries past capacity.
func (t *Timeline) Append(ctx context.Context, entry models.TimelineEntry) error {
	s := slot{entry: entry}
	if t.media != nil && entry.ImageURL != "" {
		ref, err := t.media.Acquire(ctx, entry.ImageURL)
		if err != nil {
			return fmt.Errorf("failed to load media for tweet %d: %w", entry.Tweet.ID, err)
		}
		s.media, s.held = ref, true
	}

	t.mu.Lock()
	t.entries = append(t.entries, s)
	t.appended++

	var evicted []slot
	if overflow := len(t.entries) - t.capacity; overflow > 0 {
		evicted = make([]slot, overflow)
		copy(evicted, t.entries[:overflow])
		t.entries = append(t.entries[:0], t.entries[overflow:]...)
	}
	callbacks := t.onEvict
	t.mu.Unlock()

	if len(evicted) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(evicted))
	for _, e := range evicted {
		ids = append(ids, e.entry.Tweet.ID)
		if e.held {
			t.media.Release(e.media)
		}
	}
	logrus.WithField("ids", ids).Debug("Evicted timeline entries")

	for _, fn := range callbacks {
		fn(ids)
	}
	return nil
}

// Entries returns a newest-first snapshot
func (t *Timeline) Entries() []models.TimelineEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.TimelineEntry, len(t.entries))
	for i, s := range t.entries {
		out[len(t.entries)-1-i] = s.entry
	}
	return out
}

// Lookup finds an entry by its display id
func (t *Timeline) Lookup(id int64) (models.TimelineEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, s := range t.entries {
		if s.entry.Tweet.ID == id {
			return s.entry, true
		}
	}
	return models.TimelineEntry{}, false
}

// RefreshMedia drops the cached media of entry id and downloads it again.
// Every entry showing the same url moves to the new download.
func (t *Timeline) RefreshMedia(ctx context.Context, id int64) error {
	entry, ok := t.Lookup(id)
	if !ok {
		return ErrNotFound
	}
	url := entry.ImageURL
	if t.media == nil || url == "" {
		return nil
	}

	t.mu.RLock()
	holders := 0
	for _, s := range t.entries {
		if s.held && s.media.URL == url {
			holders++
		}
	}
	t.mu.RUnlock()

	t.media.Invalidate(url)

	fresh := make([]mediacache.Ref, 0, holders)
	for i := 0; i < holders; i++ {
		ref, err := t.media.Acquire(ctx, url)
		if err != nil {
			for _, r := range fresh {
				t.media.Release(r)
			}
			return fmt.Errorf("failed to reload media for tweet %d: %w", id, err)
		}
		fresh = append(fresh, ref)
	}

	var stale []mediacache.Ref
	t.mu.Lock()
	for i := range t.entries {
		s := &t.entries[i]
		if !s.held || s.media.URL != url || len(fresh) == 0 {
			continue
		}
		stale = append(stale, s.media)
		s.media, fresh = fresh[0], fresh[1:]
	}
	t.mu.Unlock()

	// Entries evicted meanwhile leave refs unused
	for _, r := range append(stale, fresh...) {
		t.media.Release(r)
	}
	logrus.WithFields(logrus.Fields{"id": id, "url": url}).Info("Refreshed timeline media")
	return nil
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Appended is the number of entries ever appended
func (t *Timeline) Appended() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.appended
}

func (t *Timeline) Capacity() int {
	return t.capacity
}
