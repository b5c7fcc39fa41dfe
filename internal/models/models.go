package models

import (
	"fmt"
	"strings"
	"time"
)

// ResultType filters search results by the API's ranking mode
type ResultType string

const (
	ResultMixed   ResultType = "mixed"
	ResultRecent  ResultType = "recent"
	ResultPopular ResultType = "popular"
)

// ParseResultType maps a configuration value onto a ResultType
func ParseResultType(value string) (ResultType, error) {
	switch rt := ResultType(strings.ToLower(strings.TrimSpace(value))); rt {
	case ResultMixed, ResultRecent, ResultPopular:
		return rt, nil
	default:
		return "", fmt.Errorf("unknown result type %q", value)
	}
}

// SearchQuery describes a single search request
type SearchQuery struct {
	Query      string
	ResultType ResultType
	Count      int   // page size, 1..100
	SinceID    int64 // exclusive lower bound, 0 means unbounded
}

// Credentials holds the app-level secrets supplied at startup. Never mutated.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
	CallbackURL       string
}

// TokenState holds the runtime tokens obtained from the provider
type TokenState struct {
	AppAccessToken        string `json:"app_access_token"`
	UserAccessToken       string `json:"user_access_token"`
	UserAccessTokenSecret string `json:"user_access_token_secret"`
}

func (t TokenState) HasAppToken() bool {
	return t.AppAccessToken != ""
}

func (t TokenState) HasUserToken() bool {
	return t.UserAccessToken != ""
}

// Alert represents an urgent operator notification
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "critical", "urgent", "info"
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Digest is a periodic summary of what the timeline currently shows
type Digest struct {
	GeneratedAt  time.Time       `json:"generated_at"`
	Query        string          `json:"query"`
	TotalEmitted int64           `json:"total_emitted"`
	Entries      []TimelineEntry `json:"entries"`
}
