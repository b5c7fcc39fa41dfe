package timeline

import (
	"fmt"
	"time"

	"github.com/hashtags/hashtag-timeline/internal/models"
)

// View is the display form of an entry served to clients
type View struct {
	ID          int64  `json:"id"`
	Author      string `json:"author,omitempty"`
	ScreenName  string `json:"screen_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Text        string `json:"text"`
	Age         string `json:"age"`
	Retweets    string `json:"retweets"`
	Likes       string `json:"likes"`
	RetweetedBy string `json:"retweeted_by,omitempty"`
	MediaType   string `json:"media_type"`
	MediaPath   string `json:"media_path"`
	VideoURL    string `json:"video_url,omitempty"`
}

// Present formats entries relative to now, keeping their order
func Present(entries []models.TimelineEntry, now time.Time) []View {
	views := make([]View, 0, len(entries))
	for _, e := range entries {
		v := View{
			ID:          e.Tweet.ID,
			Text:        e.Tweet.Text,
			Age:         FormatAge(e.Tweet.CreatedAt, now),
			Retweets:    FormatCount(e.Tweet.RetweetCount),
			Likes:       FormatCount(e.Tweet.FavoriteCount),
			RetweetedBy: e.RetweetedBy,
			MediaType:   e.MediaType,
			MediaPath:   fmt.Sprintf("/media/%d", e.Tweet.ID),
			VideoURL:    e.VideoURL,
		}
		if u := e.Tweet.User; u != nil {
			v.Author = u.Name
			v.ScreenName = u.ScreenName
			v.AvatarURL = u.ProfileImageURL
		}
		views = append(views, v)
	}
	return views
}
