package models

import (
	"encoding/json"
	"fmt"
	"html"
	"time"
)

const (
	MediaPhoto = "photo"
	MediaVideo = "video"
)

// createdAtLayouts are tried in order; the search API uses the Ruby layout,
// archives written by this service use RFC 3339.
var createdAtLayouts = []string{time.RubyDate, time.RFC3339}

// User is the author of a tweet
type User struct {
	Name            string `json:"name"`
	ScreenName      string `json:"screen_name"`
	ProfileImageURL string `json:"profile_image_url_https"`
}

// Tweet is a status as returned by the extended search representation.
// Optional parts of the entity graph are pointers or slices so that absence
// is explicit at every level.
type Tweet struct {
	ID               int64     `json:"id"`
	User             *User     `json:"user,omitempty"`
	Text             string    `json:"full_text"`
	CreatedAt        time.Time `json:"created_at"`
	Entities         *Entities `json:"entities,omitempty"`
	ExtendedEntities *Entities `json:"extended_entities,omitempty"`
	RetweetedStatus  *Tweet    `json:"retweeted_status,omitempty"`
	RetweetCount     int       `json:"retweet_count"`
	FavoriteCount    int       `json:"favorite_count"`
}

// Entities is the attachment graph of a tweet
type Entities struct {
	Media []Media `json:"media,omitempty"`
	URLs  []URL   `json:"urls,omitempty"`
}

type URL struct {
	URL string `json:"url"`
}

// Media is one attachment. VideoInfo is only present for video-like types.
type Media struct {
	MediaURL  string     `json:"media_url_https"`
	Type      string     `json:"type"`
	VideoInfo *VideoInfo `json:"video_info,omitempty"`
}

type VideoInfo struct {
	Variants []VideoVariant `json:"variants"`
}

type VideoVariant struct {
	ContentType string `json:"content_type"`
	Bitrate     int    `json:"bitrate,omitempty"`
	URL         string `json:"url"`
}

// SearchResult is the search endpoint envelope
type SearchResult struct {
	Statuses []Tweet `json:"statuses"`
}

// DecodeEntities replaces the HTML entities the search API escapes in
// full_text. It applies to API payloads only; stored tweets are already decoded.
func (r *SearchResult) DecodeEntities() {
	for i := range r.Statuses {
		r.Statuses[i].decodeEntities()
	}
}

func (t *Tweet) decodeEntities() {
	t.Text = html.UnescapeString(t.Text)
	if t.RetweetedStatus != nil {
		t.RetweetedStatus.decodeEntities()
	}
}

// UnmarshalJSON parses created_at in either the API or the archive layout.
func (t *Tweet) UnmarshalJSON(data []byte) error {
	type tweetAlias Tweet
	aux := struct {
		*tweetAlias
		CreatedAt string `json:"created_at"`
	}{tweetAlias: (*tweetAlias)(t)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.CreatedAt == "" {
		t.CreatedAt = time.Time{}
		return nil
	}
	createdAt, err := parseCreatedAt(aux.CreatedAt)
	if err != nil {
		return fmt.Errorf("tweet %d: %w", t.ID, err)
	}
	t.CreatedAt = createdAt
	return nil
}

func parseCreatedAt(value string) (time.Time, error) {
	for _, layout := range createdAtLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized created_at %q", value)
}

// TimelineEntry is a resolved tweet handed to the presentation sink
type TimelineEntry struct {
	Tweet       Tweet     `json:"tweet"`
	SourceID    int64     `json:"source_id"`              // id of the status returned by search
	RetweetedBy string    `json:"retweeted_by,omitempty"` // screen name of the retweeter
	MediaType   string    `json:"media_type"`
	ImageURL    string    `json:"image_url"`
	VideoURL    string    `json:"video_url,omitempty"`
	AppendedAt  time.Time `json:"appended_at"`
}

func (e TimelineEntry) HasVideo() bool {
	return e.VideoURL != ""
}
