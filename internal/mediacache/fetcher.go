package mediacache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
)

// HTTPFetcher downloads media over HTTP
type HTTPFetcher struct {
	client *resty.Client
	clock  clockwork.Clock
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher whose requests give up after timeout
func NewHTTPFetcher(timeout time.Duration, clock clockwork.Clock) *HTTPFetcher {
	return &HTTPFetcher{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", "Hashtag-Timeline/1.0"),
		clock: clock,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Media, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("media %s returned status %d", url, resp.StatusCode())
	}

	return &Media{
		URL:         url,
		ContentType: resp.Header().Get("Content-Type"),
		Data:        resp.Body(),
		FetchedAt:   f.clock.Now(),
	}, nil
}
