// Package mediacache shares downloaded tweet media between timeline entries.
// Each URL is fetched at most once at a time and kept while referenced.
package mediacache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashtags/hashtag-timeline/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrUnknownMedia is returned for lookups of media that is not cached
var ErrUnknownMedia = errors.New("media not cached")

// Media is a downloaded image or thumbnail
type Media struct {
	URL         string
	ContentType string
	Data        []byte
	FetchedAt   time.Time
}

// Fetcher downloads a single media URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Media, error)
}

// Options tune outbound fetching
type Options struct {
	FetchRPS     float64 // <= 0 disables throttling
	FetchBurst   int
	FetchTimeout time.Duration
}

type entry struct {
	media *Media
	refs  int
	gen   uint64
}

// Ref is a reference taken by Acquire. It belongs to the cache generation of
// its url at the time it was taken; releasing a ref from an invalidated
// generation does not touch a newer entry.
type Ref struct {
	URL   string
	Media *Media
	gen   uint64
}

// Cache is a reference-counted media store with single-flight fetching
type Cache struct {
	fetcher Fetcher
	limiter *rate.Limiter
	timeout time.Duration
	metrics *metrics.MediaCacheMetrics

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	gens    map[string]uint64
}

// New creates an empty cache
func New(fetcher Fetcher, opts Options, m *metrics.MediaCacheMetrics) *Cache {
	limit := rate.Inf
	if opts.FetchRPS > 0 {
		limit = rate.Limit(opts.FetchRPS)
	}
	burst := opts.FetchBurst
	if burst < 1 {
		burst = 1
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Cache{
		fetcher: fetcher,
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
		metrics: m,
		entries: make(map[string]*entry),
		gens:    make(map[string]uint64),
	}
}

// Acquire returns the media for url and takes a reference on it. Concurrent
// callers for the same url share one download. Every successful Acquire must
// be paired with a Release of the returned ref.
func (c *Cache) Acquire(ctx context.Context, url string) (Ref, error) {
	c.mu.Lock()
	if e, ok := c.entries[url]; ok {
		e.refs++
		c.mu.Unlock()
		c.metrics.Hits.Inc()
		return Ref{URL: url, Media: e.media, gen: e.gen}, nil
	}
	gen := c.gens[url]
	c.mu.Unlock()

	c.metrics.Misses.Inc()

	ch := c.group.DoChan(url, func() (any, error) {
		// The download is shared, so it must outlive any single caller
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		if err := c.limiter.Wait(fetchCtx); err != nil {
			return nil, err
		}
		media, err := c.fetcher.Fetch(fetchCtx, url)
		if err != nil {
			c.metrics.Fetches.WithLabelValues("error").Inc()
			return nil, err
		}
		c.metrics.Fetches.WithLabelValues("success").Inc()
		return media, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Ref{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return Ref{}, res.Err
	}
	media := res.Val.(*Media)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[url]; ok {
		if e.media != media {
			c.metrics.Fetches.WithLabelValues("discarded").Inc()
			logrus.WithField("url", url).Debug("Discarding duplicate media download")
		}
		e.refs++
		return Ref{URL: url, Media: e.media, gen: e.gen}, nil
	}

	if c.gens[url] != gen {
		logrus.WithField("url", url).Debug("Media invalidated while fetching, not caching")
		return Ref{URL: url, Media: media, gen: gen}, nil
	}

	c.entries[url] = &entry{media: media, refs: 1, gen: gen}
	c.metrics.Entries.Set(float64(len(c.entries)))
	return Ref{URL: url, Media: media, gen: gen}, nil
}

// Release drops the reference and evicts the entry when none remain.
// Refs of unknown urls or of invalidated generations are ignored.
func (c *Cache) Release(ref Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ref.URL]
	if !ok || e.gen != ref.gen {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(c.entries, ref.URL)
		c.metrics.Evictions.Inc()
		c.metrics.Entries.Set(float64(len(c.entries)))
	}
}

// Invalidate drops the entry regardless of references. Refs taken before the
// call become inert. A download already in flight for url completes for its
// callers but is not cached.
func (c *Cache) Invalidate(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, url)
	c.gens[url]++
	c.group.Forget(url)
	c.metrics.Invalidations.Inc()
	c.metrics.Entries.Set(float64(len(c.entries)))
}

// Get returns cached media without taking a reference
func (c *Cache) Get(url string) (*Media, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		return nil, ErrUnknownMedia
	}
	return e.media, nil
}

// Refs reports the number of references held on url
func (c *Cache) Refs(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[url]; ok {
		return e.refs
	}
	return 0
}

// Len reports the number of cached entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
