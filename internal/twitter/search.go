package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/sirupsen/logrus"
)

// TokenProvider supplies and invalidates the app bearer token
type TokenProvider interface {
	AuthorizeApp(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// Client issues search requests against the standard search endpoint
type Client struct {
	tokens    TokenProvider
	client    *resty.Client
	searchURL string
}

// NewClient creates a search client against baseURL (e.g. https://api.twitter.com)
func NewClient(tokens TokenProvider, baseURL string, timeout time.Duration) *Client {
	return &Client{
		tokens:    tokens,
		searchURL: strings.TrimRight(baseURL, "/") + "/1.1/search/tweets.json",
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
	}
}

// Search runs one query and returns the statuses in API order (newest first).
// A rejected bearer token is invalidated and the query retried once with a
// freshly authorized token.
func (c *Client) Search(ctx context.Context, query models.SearchQuery) ([]models.Tweet, error) {
	if strings.TrimSpace(query.Query) == "" {
		return nil, &SearchError{Err: errors.New("query is required")}
	}
	if query.Count < 1 || query.Count > 100 {
		return nil, &SearchError{Err: fmt.Errorf("count must be between 1 and 100, got %d", query.Count)}
	}

	token, err := c.tokens.AuthorizeApp(ctx)
	if err != nil {
		return nil, &SearchError{Err: err}
	}

	tweets, err := c.search(ctx, token, query)
	var searchErr *SearchError
	if err == nil || !errors.As(err, &searchErr) || !searchErr.IsAuthFailure() {
		return tweets, err
	}

	logrus.Warn("Twitter rejected the app token, re-authorizing once")
	if err := c.tokens.Invalidate(ctx); err != nil {
		logrus.Warnf("Failed to invalidate app token: %v", err)
	}

	token, err = c.tokens.AuthorizeApp(ctx)
	if err != nil {
		return nil, &SearchError{StatusCode: searchErr.StatusCode, Err: err}
	}

	return c.search(ctx, token, query)
}

func (c *Client) search(ctx context.Context, token string, query models.SearchQuery) ([]models.Tweet, error) {
	resultType := query.ResultType
	if resultType == "" {
		resultType = models.ResultMixed
	}

	params := map[string]string{
		"q":           query.Query,
		"result_type": string(resultType),
		"count":       strconv.Itoa(query.Count),
		"tweet_mode":  "extended",
	}
	if query.SinceID > 0 {
		params["since_id"] = strconv.FormatInt(query.SinceID, 10)
	}

	logrus.Debugf("Twitter search request: q=%q since_id=%d", query.Query, query.SinceID)

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(params).
		Get(c.searchURL)
	if err != nil {
		return nil, &SearchError{Err: err}
	}

	if resp.StatusCode() == 429 {
		if reset := resp.Header().Get("x-rate-limit-reset"); reset != "" {
			logrus.Infof("Twitter rate limit will reset at: %s", reset)
		}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &SearchError{
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("search endpoint returned: %s", string(resp.Body())),
		}
	}

	var result models.SearchResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, &SearchError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("failed to parse Twitter response: %w", err)}
	}
	result.DecodeEntities()

	logrus.Debugf("Twitter API returned %d statuses for %q", len(result.Statuses), query.Query)
	return result.Statuses, nil
}
