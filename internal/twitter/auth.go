package twitter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashtags/hashtag-timeline/internal/credentials"
	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/hashtags/hashtag-timeline/internal/retry"
	"github.com/sirupsen/logrus"
)

const userAgent = "Hashtag-Timeline/1.0"

type bearerTokenResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
}

// Authority obtains the app-only bearer token and owns the runtime TokenState.
// At most one exchange is outstanding at a time.
type Authority struct {
	creds    models.Credentials
	store    *credentials.Store
	client   *resty.Client
	tokenURL string

	mu    sync.Mutex
	state models.TokenState
}

// NewAuthority creates a token authority against baseURL (e.g. https://api.twitter.com)
func NewAuthority(creds models.Credentials, store *credentials.Store, baseURL string, timeout time.Duration) *Authority {
	return &Authority{
		creds:    creds,
		store:    store,
		tokenURL: strings.TrimRight(baseURL, "/") + "/oauth2/token",
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
	}
}

// LoadState restores persisted tokens. A persistence failure is logged and
// leaves the state empty, which only forces a new authorization.
func (a *Authority) LoadState(ctx context.Context) {
	state, err := a.store.Load(ctx)
	if err != nil {
		logrus.Warnf("Failed to load persisted tokens, will re-authorize: %v", err)
	}

	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}

// State returns a copy of the runtime token state
func (a *Authority) State() models.TokenState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// AuthorizeApp returns the cached app token, or exchanges the consumer
// credentials for a new one and persists it.
func (a *Authority) AuthorizeApp(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.HasAppToken() {
		return a.state.AppAccessToken, nil
	}

	token, err := a.exchange(ctx)
	if err != nil {
		return "", err
	}

	a.state.AppAccessToken = token
	if err := a.store.Save(ctx, a.state); err != nil {
		logrus.Warnf("Failed to persist app token: %v", err)
	}

	logrus.Info("Obtained app bearer token")
	return token, nil
}

func (a *Authority) exchange(ctx context.Context) (string, error) {
	if a.creds.ConsumerKey == "" || a.creds.ConsumerSecret == "" {
		return "", &AuthorizationError{Err: errors.New("consumer key and secret are required")}
	}

	basic := base64.StdEncoding.EncodeToString(
		[]byte(url.QueryEscape(a.creds.ConsumerKey) + ":" + url.QueryEscape(a.creds.ConsumerSecret)))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Basic "+basic).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
		}).
		Post(a.tokenURL)
	if err != nil {
		return "", &AuthorizationError{Err: err}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", &AuthorizationError{
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("token endpoint returned: %s", string(resp.Body())),
		}
	}

	var tokenResp bearerTokenResponse
	if err := json.Unmarshal(resp.Body(), &tokenResp); err != nil {
		return "", &AuthorizationError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("failed to parse token response: %w", err)}
	}

	if !strings.EqualFold(tokenResp.TokenType, "bearer") || tokenResp.AccessToken == "" {
		return "", &AuthorizationError{
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("unexpected token response (type %q)", tokenResp.TokenType),
		}
	}

	return tokenResp.AccessToken, nil
}

// Invalidate drops the cached app token so the next AuthorizeApp exchanges
// credentials again, and persists the emptied app slot. User tokens are kept.
// The in-memory token is dropped even when persisting fails.
func (a *Authority) Invalidate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state.AppAccessToken = ""
	if err := a.store.Save(ctx, a.state); err != nil {
		return fmt.Errorf("failed to persist invalidated token state: %w", err)
	}
	return nil
}

// Reset clears every runtime token, in memory and in storage
func (a *Authority) Reset(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = models.TokenState{}
	return a.store.Clear(ctx)
}

// AuthorizeAppWithRetry retries transient authorization failures with
// exponential backoff. Client errors other than 429 stop immediately.
func (a *Authority) AuthorizeAppWithRetry(ctx context.Context, policy retry.Policy) (string, error) {
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
			logrus.Warnf("Authorization attempt %d failed, retrying in %v: %v", attempt, backoff, err)
		}
	}

	classify := func(err error) retry.Action {
		if ctx.Err() != nil {
			return retry.Stop
		}
		return classifyAuthError(err)
	}
	return retry.Do(ctx, policy, classify, a.AuthorizeApp)
}

func classifyAuthError(err error) retry.Action {
	var authErr *AuthorizationError
	if errors.As(err, &authErr) {
		if authErr.StatusCode == http.StatusTooManyRequests {
			return retry.After
		}
		if authErr.Permanent() {
			return retry.Stop
		}
	}
	return retry.Retry
}
