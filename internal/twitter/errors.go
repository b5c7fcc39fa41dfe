package twitter

import (
	"fmt"
	"net/http"
)

// AuthorizationError reports a failed client-credentials exchange
type AuthorizationError struct {
	StatusCode int // zero for transport or decoding failures
	Err        error
}

func (e *AuthorizationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("twitter authorization failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("twitter authorization failed: %v", e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// Permanent reports whether retrying the exchange cannot help
func (e *AuthorizationError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// SearchError reports a failed search call. It is recoverable per poll cycle.
type SearchError struct {
	StatusCode int
	Err        error
}

func (e *SearchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("twitter search failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("twitter search failed: %v", e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// IsAuthFailure reports whether the bearer token was rejected. A 403 means
// the token was accepted but the request is not allowed, so it is excluded.
func (e *SearchError) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized
}

func (e *SearchError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}
