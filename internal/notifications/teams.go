package notifications

import (
	"fmt"
	"strings"

	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/hashtags/hashtag-timeline/internal/timeline"
)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityImage    string      `json:"activityImage,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

const teamsSectionLimit = 5

func (s *Service) postTeams(message *TeamsMessage) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func buildDigestCard(digest *models.Digest) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("Hashtag Timeline Digest - %s", digest.Query),
		Text:    fmt.Sprintf("%d tweets on display, %d shown since startup", len(digest.Entries), digest.TotalEmitted),
	}

	videos := 0
	for _, e := range digest.Entries {
		if e.MediaType == models.MediaVideo {
			videos++
		}
	}

	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts: []TeamsFact{
			{Name: "On Display", Value: fmt.Sprintf("%d", len(digest.Entries))},
			{Name: "Photos", Value: fmt.Sprintf("%d", len(digest.Entries)-videos)},
			{Name: "Videos", Value: fmt.Sprintf("%d", videos)},
			{Name: "Generated", Value: digest.GeneratedAt.Format("2006-01-02 15:04:05 UTC")},
		},
		Markdown: true,
	})

	limit := teamsSectionLimit
	if len(digest.Entries) < limit {
		limit = len(digest.Entries)
	}
	for _, entry := range digest.Entries[:limit] {
		subtitle := fmt.Sprintf("%s | %s retweets | %s likes",
			timeline.FormatAge(entry.Tweet.CreatedAt, digest.GeneratedAt),
			timeline.FormatCount(entry.Tweet.RetweetCount),
			timeline.FormatCount(entry.Tweet.FavoriteCount))
		if entry.RetweetedBy != "" {
			subtitle = "Retweeted by @" + entry.RetweetedBy + " | " + subtitle
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle:    fmt.Sprintf("**[%s](%s)**", author(entry), statusURL(entry)),
			ActivitySubtitle: subtitle,
			ActivityImage:    entry.ImageURL,
			ActivityText:     truncate(strings.TrimSpace(entry.Tweet.Text), 280),
			Markdown:         true,
		})
	}

	return message
}

func buildAlertCard(alert *models.Alert) *TeamsMessage {
	color := "0078D4"
	if alert.Type == "critical" || alert.Type == "urgent" {
		color = "D13438"
	}
	return &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: color,
		Title:      alert.Title,
		Text:       alert.Message,
		Sections: []TeamsSection{{
			Facts: []TeamsFact{
				{Name: "Severity", Value: alert.Type},
				{Name: "Raised", Value: alert.CreatedAt.Format("2006-01-02 15:04:05 UTC")},
				{Name: "Alert ID", Value: alert.ID},
			},
		}},
	}
}
