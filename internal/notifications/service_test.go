package notifications

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashtags/hashtag-timeline/internal/config"
	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDigest() *models.Digest {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.Digest{
		GeneratedAt:  now,
		Query:        "#golang",
		TotalEmitted: 42,
		Entries: []models.TimelineEntry{
			{
				Tweet: models.Tweet{
					ID:           90,
					Text:         "Gophers <3",
					CreatedAt:    now.Add(-5 * time.Minute),
					User:         &models.User{Name: "Jerry", ScreenName: "jerry"},
					RetweetCount: 2500,
				},
				RetweetedBy: "spike",
				MediaType:   models.MediaVideo,
				ImageURL:    "https://pbs.example/90.jpg",
				VideoURL:    "https://video.example/90.mp4",
			},
			{
				Tweet:     models.Tweet{ID: 91, CreatedAt: now.Add(-2 * time.Hour)},
				MediaType: models.MediaPhoto,
				ImageURL:  "https://pbs.example/91.jpg",
			},
		},
	}
}

// teamsServer records posted cards and answers with status
func teamsServer(t *testing.T, status int) (*httptest.Server, *[]TeamsMessage) {
	t.Helper()
	var received []TeamsMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg TeamsMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		received = append(received, msg)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &received
}

func TestSendDigest_Teams(t *testing.T) {
	server, received := teamsServer(t, http.StatusOK)
	svc := NewService(&config.Config{TeamsWebhookURL: server.URL})

	require.NoError(t, svc.SendDigest(sampleDigest()))

	require.Len(t, *received, 1)
	card := (*received)[0]
	assert.Equal(t, "MessageCard", card.Type)
	assert.Equal(t, "Hashtag Timeline Digest - #golang", card.Title)
	assert.Contains(t, card.Text, "2 tweets on display")
	require.Len(t, card.Sections, 3)
	assert.Contains(t, card.Sections[0].Facts, TeamsFact{Name: "Videos", Value: "1"})
	assert.Contains(t, card.Sections[1].ActivityTitle, "https://twitter.com/jerry/status/90")
	assert.Contains(t, card.Sections[1].ActivitySubtitle, "Retweeted by @spike")
	assert.Contains(t, card.Sections[1].ActivitySubtitle, "5m | 2.5K retweets")
	assert.Contains(t, card.Sections[2].ActivityTitle, "https://twitter.com/i/web/status/91")
}

func TestSendDigest_TeamsFailure(t *testing.T) {
	server, _ := teamsServer(t, http.StatusBadRequest)
	svc := NewService(&config.Config{TeamsWebhookURL: server.URL})

	err := svc.SendDigest(sampleDigest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Teams: Teams webhook returned status 400")
}

func TestSendDigest_Email(t *testing.T) {
	svc := NewService(&config.Config{NotificationEmail: "ops@example.com"})
	var subject, text, html string
	svc.send = func(s, t, h string) error {
		subject, text, html = s, t, h
		return nil
	}

	require.NoError(t, svc.SendDigest(sampleDigest()))

	assert.Equal(t, "Hashtag Timeline Digest - #golang (2 tweets)", subject)
	assert.Contains(t, text, "Shown since startup: 42")
	assert.Contains(t, text, "Retweeted by @spike")
	assert.Contains(t, html, `href="https://twitter.com/jerry/status/90"`)
	assert.Contains(t, html, "Gophers &lt;3")
	assert.Contains(t, html, "2.5K retweets")
}

func TestSendDigest_AggregatesChannelErrors(t *testing.T) {
	server, _ := teamsServer(t, http.StatusInternalServerError)
	svc := NewService(&config.Config{TeamsWebhookURL: server.URL, NotificationEmail: "ops@example.com"})
	svc.send = func(string, string, string) error { return errors.New("smtp down") }

	err := svc.SendDigest(sampleDigest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Teams:")
	assert.Contains(t, err.Error(), "Email: smtp down")
}

func TestSend_DisabledIsNoop(t *testing.T) {
	svc := NewService(&config.Config{})
	svc.send = func(string, string, string) error {
		t.Fatal("email must not be sent")
		return nil
	}

	assert.False(t, svc.Enabled())
	assert.NoError(t, svc.SendDigest(sampleDigest()))
	assert.NoError(t, svc.SendAlert(&models.Alert{Title: "x"}))
}

func TestSendAlert(t *testing.T) {
	server, received := teamsServer(t, http.StatusOK)
	svc := NewService(&config.Config{TeamsWebhookURL: server.URL, NotificationEmail: "ops@example.com"})
	var subject string
	svc.send = func(s, _, _ string) error {
		subject = s
		return nil
	}

	alert := &models.Alert{
		ID:        "a-1",
		Type:      "critical",
		Title:     "Bootstrap failed",
		Message:   "token exchange returned 403",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, svc.SendAlert(alert))

	require.Len(t, *received, 1)
	assert.Equal(t, "D13438", (*received)[0].ThemeColor)
	assert.Equal(t, "token exchange returned 403", (*received)[0].Text)
	assert.Equal(t, "[CRITICAL] Bootstrap failed", subject)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héll...", truncate("héllo wörld", 4))
}
