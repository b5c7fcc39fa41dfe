package twitter

import (
	"regexp"
	"strings"
	"time"

	"github.com/hashtags/hashtag-timeline/internal/models"
)

// ResolveDisplayStatus returns the retweeted status when t wraps one, so the
// original tweet's text and media are shown instead of the wrapper's.
func ResolveDisplayStatus(t models.Tweet) models.Tweet {
	if t.RetweetedStatus != nil {
		return *t.RetweetedStatus
	}
	return t
}

// FindMediaEntity returns the first photo or video in the extended entities.
// Array order decides, not media type. Legacy entities never carry video and
// are ignored.
func FindMediaEntity(t models.Tweet) (models.Media, bool) {
	if t.ExtendedEntities == nil {
		return models.Media{}, false
	}
	for _, media := range t.ExtendedEntities.Media {
		if media.Type == models.MediaPhoto || media.Type == models.MediaVideo {
			return media, true
		}
	}
	return models.Media{}, false
}

// FindVideoURL returns the first variant served as MP4
func FindVideoURL(media models.Media) (string, bool) {
	if media.Type != models.MediaVideo || media.VideoInfo == nil {
		return "", false
	}
	for _, variant := range media.VideoInfo.Variants {
		if strings.Contains(variant.URL, ".mp4") {
			return variant.URL, true
		}
	}
	return "", false
}

// Resolve turns a searched status into a timeline entry. It reports false
// when the displayed status carries no photo or video.
func Resolve(status models.Tweet, now time.Time) (models.TimelineEntry, bool) {
	display := ResolveDisplayStatus(status)

	media, ok := FindMediaEntity(display)
	if !ok {
		return models.TimelineEntry{}, false
	}

	entry := models.TimelineEntry{
		Tweet:      display,
		SourceID:   status.ID,
		MediaType:  media.Type,
		ImageURL:   media.MediaURL,
		AppendedAt: now,
	}
	if status.RetweetedStatus != nil && status.User != nil {
		entry.RetweetedBy = status.User.ScreenName
	}
	// Videos without an MP4 variant fall back to their thumbnail
	if videoURL, ok := FindVideoURL(media); ok {
		entry.VideoURL = videoURL
	}

	return entry, true
}

var hashtagStrip = regexp.MustCompile(`[\s#]`)

// MakeHashtag turns free-form input into a single hashtag
func MakeHashtag(input string) string {
	return "#" + hashtagStrip.ReplaceAllString(input, "")
}
