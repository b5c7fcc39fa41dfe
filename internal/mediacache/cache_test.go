package mediacache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashtags/hashtag-timeline/internal/metrics"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingFetcher counts downloads and holds each one until released
type blockingFetcher struct {
	calls   atomic.Int32
	started chan string
	release chan struct{}
	err     error
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{
		started: make(chan string, 10),
		release: make(chan struct{}),
	}
}

func (f *blockingFetcher) Fetch(ctx context.Context, url string) (*Media, error) {
	f.calls.Add(1)
	f.started <- url
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Media{URL: url, ContentType: "image/jpeg", Data: []byte("jpeg:" + url)}, nil
}

// instantFetcher never blocks
type instantFetcher struct {
	calls atomic.Int32
}

func (f *instantFetcher) Fetch(ctx context.Context, url string) (*Media, error) {
	f.calls.Add(1)
	return &Media{URL: url, Data: []byte(url)}, nil
}

func newTestCache(t *testing.T, fetcher Fetcher) (*Cache, *metrics.MediaCacheMetrics) {
	t.Helper()
	m := metrics.NewMediaCacheMetrics(prometheus.NewRegistry())
	return New(fetcher, Options{FetchTimeout: 5 * time.Second}, m), m
}

func TestAcquire_ConcurrentCallersShareOneFetch(t *testing.T) {
	fetcher := newBlockingFetcher()
	cache, m := newTestCache(t, fetcher)
	const url = "https://pbs.example/a.jpg"

	var wg sync.WaitGroup
	results := make([]*Media, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := cache.Acquire(context.Background(), url)
			assert.NoError(t, err)
			results[i] = ref.Media
		}(i)
	}

	<-fetcher.started
	// Give the second caller time to join the in-flight download
	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
	require.NotNil(t, results[0])
	assert.Same(t, results[0], results[1])
	assert.Equal(t, 2, cache.Refs(url))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Fetches.WithLabelValues("success")))
}

func TestAcquire_HitTakesReference(t *testing.T) {
	fetcher := &instantFetcher{}
	cache, m := newTestCache(t, fetcher)
	const url = "https://pbs.example/b.jpg"

	first, err := cache.Acquire(context.Background(), url)
	require.NoError(t, err)
	second, err := cache.Acquire(context.Background(), url)
	require.NoError(t, err)

	assert.Same(t, first.Media, second.Media)
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Equal(t, 2, cache.Refs(url))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Hits))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Misses))
}

func TestRelease_EvictsAtZero(t *testing.T) {
	cache, m := newTestCache(t, &instantFetcher{})
	const url = "https://pbs.example/c.jpg"

	first, err := cache.Acquire(context.Background(), url)
	require.NoError(t, err)
	second, err := cache.Acquire(context.Background(), url)
	require.NoError(t, err)

	cache.Release(first)
	_, err = cache.Get(url)
	assert.NoError(t, err, "one reference remains")

	cache.Release(second)
	_, err = cache.Get(url)
	assert.ErrorIs(t, err, ErrUnknownMedia)
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Evictions))

	// Unknown urls are ignored
	cache.Release(Ref{URL: "https://pbs.example/unknown.jpg"})
}

func TestInvalidate_InFlightResultNotCached(t *testing.T) {
	fetcher := newBlockingFetcher()
	cache, _ := newTestCache(t, fetcher)
	const url = "https://pbs.example/d.jpg"

	done := make(chan *Media)
	go func() {
		ref, err := cache.Acquire(context.Background(), url)
		assert.NoError(t, err)
		done <- ref.Media
	}()

	<-fetcher.started
	cache.Invalidate(url)
	close(fetcher.release)

	media := <-done
	require.NotNil(t, media, "the caller still receives the download")
	_, err := cache.Get(url)
	assert.ErrorIs(t, err, ErrUnknownMedia)
	assert.Equal(t, 0, cache.Refs(url))
}

func TestRelease_StaleRefAfterInvalidateKeepsNewerEntry(t *testing.T) {
	fetcher := &instantFetcher{}
	cache, m := newTestCache(t, fetcher)
	const url = "https://pbs.example/g.jpg"

	stale, err := cache.Acquire(context.Background(), url)
	require.NoError(t, err)

	cache.Invalidate(url)

	current, err := cache.Acquire(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())

	cache.Release(stale)
	media, err := cache.Get(url)
	require.NoError(t, err, "the newer holder keeps the entry alive")
	assert.Same(t, current.Media, media)
	assert.Equal(t, 1, cache.Refs(url))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Evictions))

	cache.Release(current)
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Evictions))
}

func TestRelease_UncachedDownloadRefIsInert(t *testing.T) {
	fetcher := newBlockingFetcher()
	cache, _ := newTestCache(t, fetcher)
	const url = "https://pbs.example/h.jpg"

	done := make(chan Ref)
	go func() {
		ref, err := cache.Acquire(context.Background(), url)
		assert.NoError(t, err)
		done <- ref
	}()
	<-fetcher.started
	cache.Invalidate(url)
	close(fetcher.release)
	uncached := <-done

	current, err := cache.Acquire(context.Background(), url)
	require.NoError(t, err)
	cache.Release(uncached)

	assert.Equal(t, 1, cache.Refs(url))
	cache.Release(current)
	assert.Equal(t, 0, cache.Len())
}

func TestAcquire_FetchError(t *testing.T) {
	fetcher := newBlockingFetcher()
	fetcher.err = errors.New("boom")
	close(fetcher.release)
	cache, m := newTestCache(t, fetcher)

	_, err := cache.Acquire(context.Background(), "https://pbs.example/e.jpg")
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Fetches.WithLabelValues("error")))
}

func TestAcquire_CallerCancellationLeavesDownloadRunning(t *testing.T) {
	fetcher := newBlockingFetcher()
	cache, _ := newTestCache(t, fetcher)
	const url = "https://pbs.example/f.jpg"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		_, err := cache.Acquire(ctx, url)
		errCh <- err
	}()

	<-fetcher.started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// A later caller joins the same download
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(fetcher.release)
	}()
	ref, err := cache.Acquire(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, url, ref.Media.URL)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpegdata"))
	}))
	defer server.Close()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	fetcher := NewHTTPFetcher(5*time.Second, clock)

	media, err := fetcher.Fetch(context.Background(), server.URL+"/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", media.ContentType)
	assert.Equal(t, []byte("jpegdata"), media.Data)
	assert.Equal(t, clock.Now(), media.FetchedAt)

	_, err = fetcher.Fetch(context.Background(), server.URL+"/missing.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
