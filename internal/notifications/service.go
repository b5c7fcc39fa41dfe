package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashtags/hashtag-timeline/internal/config"
	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/sirupsen/logrus"
)

// Service handles sending notifications via various channels
type Service struct {
	config *config.Config
	client *resty.Client
	send   func(subject, text, html string) error
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	s := &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
	s.send = s.sendEmail
	return s
}

// Enabled reports whether any channel is configured
func (s *Service) Enabled() bool {
	return s.config.NotificationsEnabled()
}

// SendDigest sends a timeline digest via configured notification channels
func (s *Service) SendDigest(digest *models.Digest) error {
	if !s.Enabled() {
		logrus.Debug("No notification channel configured, skipping digest")
		return nil
	}

	return s.dispatch("digest",
		func() error { return s.postTeams(buildDigestCard(digest)) },
		func() error {
			html, err := buildDigestHTML(digest)
			if err != nil {
				return fmt.Errorf("failed to build email HTML: %w", err)
			}
			subject := fmt.Sprintf("Hashtag Timeline Digest - %s (%d tweets)", digest.Query, len(digest.Entries))
			return s.send(subject, buildDigestText(digest), html)
		},
	)
}

// SendAlert sends an urgent alert notification
func (s *Service) SendAlert(alert *models.Alert) error {
	if !s.Enabled() {
		logrus.Warnf("Alert not delivered, no channel configured: %s - %s", alert.Type, alert.Title)
		return nil
	}

	return s.dispatch("alert",
		func() error { return s.postTeams(buildAlertCard(alert)) },
		func() error {
			subject := fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Type), alert.Title)
			text := fmt.Sprintf("%s\n\n%s\n\nRaised: %s\n", alert.Title, alert.Message, alert.CreatedAt.Format(time.RFC1123))
			html, err := buildAlertHTML(alert)
			if err != nil {
				return fmt.Errorf("failed to build email HTML: %w", err)
			}
			return s.send(subject, text, html)
		},
	)
}

func (s *Service) dispatch(kind string, teams, email func() error) error {
	var errors []string

	// Send to Teams if configured
	if s.config.TeamsWebhookURL != "" {
		if err := teams(); err != nil {
			logrus.Errorf("Failed to send Teams %s: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Successfully sent %s to Teams", kind)
		}
	}

	// Send via email if configured
	if s.config.NotificationEmail != "" {
		if err := email(); err != nil {
			logrus.Errorf("Failed to send %s email: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Successfully sent %s via email", kind)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// statusURL links to a tweet on the web
func statusURL(entry models.TimelineEntry) string {
	screenName := "i/web"
	if entry.Tweet.User != nil && entry.Tweet.User.ScreenName != "" {
		screenName = entry.Tweet.User.ScreenName
	}
	return fmt.Sprintf("https://twitter.com/%s/status/%d", screenName, entry.Tweet.ID)
}

func author(entry models.TimelineEntry) string {
	if entry.Tweet.User == nil {
		return "unknown"
	}
	return "@" + entry.Tweet.User.ScreenName
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length]) + "..."
}
