package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/hashtags/hashtag-timeline/internal/timeline"
	"gopkg.in/gomail.v2"
)

const emailEntryLimit = 10

func (s *Service) sendEmail(subject, text, html string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"truncate": func(length int, s string) string { return truncate(s, length) },
	"age":      timeline.FormatAge,
	"count":    timeline.FormatCount,
	"url":      statusURL,
	"author":   author,
	"limit": func(n int, entries []models.TimelineEntry) []models.TimelineEntry {
		if len(entries) > n {
			return entries[:n]
		}
		return entries
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Hashtag Timeline Digest</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #1d9bf0; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .tweet { border-left: 4px solid #1d9bf0; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .tweet img { max-width: 320px; border-radius: 4px; }
        .meta { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Query}}</h1>
        <p>Digest generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <div class="summary">
        <p><strong>On display:</strong> {{len .Entries}}</p>
        <p><strong>Shown since startup:</strong> {{.TotalEmitted}}</p>
    </div>

    {{$now := .GeneratedAt}}
    {{range limit 10 .Entries}}
    <div class="tweet">
        <div><a href="{{url .}}" target="_blank">{{author .}}</a>{{if .RetweetedBy}} <span class="meta">retweeted by @{{.RetweetedBy}}</span>{{end}}</div>
        <p>{{truncate 280 .Tweet.Text}}</p>
        <img src="{{.ImageURL}}" alt="{{.MediaType}}">
        <div class="meta">{{age .Tweet.CreatedAt $now}} | {{count .Tweet.RetweetCount}} retweets | {{count .Tweet.FavoriteCount}} likes{{if .VideoURL}} | <a href="{{.VideoURL}}">video</a>{{end}}</div>
    </div>
    {{end}}

    <hr>
    <p><small>This digest was generated automatically by Hashtag Timeline.</small></p>
</body>
</html>
`))

var alertTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
    <h2>{{.Title}}</h2>
    <p>{{.Message}}</p>
    <p><small>{{.Type}} alert {{.ID}} raised {{.CreatedAt.Format "2006-01-02 15:04:05 UTC"}}</small></p>
</body>
</html>
`))

func buildDigestHTML(digest *models.Digest) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, digest); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildAlertHTML(alert *models.Alert) (string, error) {
	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, alert); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildDigestText(digest *models.Digest) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Hashtag Timeline Digest - %s\n", digest.Query))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", digest.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))

	text.WriteString("SUMMARY\n")
	text.WriteString("=======\n")
	text.WriteString(fmt.Sprintf("On display: %d\n", len(digest.Entries)))
	text.WriteString(fmt.Sprintf("Shown since startup: %d\n", digest.TotalEmitted))

	if len(digest.Entries) > 0 {
		text.WriteString("\nLATEST TWEETS\n")
		text.WriteString("=============\n")

		limit := emailEntryLimit
		if len(digest.Entries) < limit {
			limit = len(digest.Entries)
		}

		for i, entry := range digest.Entries[:limit] {
			text.WriteString(fmt.Sprintf("\n%d. %s (%s)\n", i+1, author(entry),
				timeline.FormatAge(entry.Tweet.CreatedAt, digest.GeneratedAt)))
			if entry.RetweetedBy != "" {
				text.WriteString(fmt.Sprintf("   Retweeted by @%s\n", entry.RetweetedBy))
			}
			text.WriteString(fmt.Sprintf("   URL: %s\n", statusURL(entry)))
			text.WriteString(fmt.Sprintf("   Media: %s %s\n", entry.MediaType, entry.ImageURL))
			if entry.Tweet.Text != "" {
				text.WriteString(fmt.Sprintf("   Text: %s\n", truncate(entry.Tweet.Text, 200)))
			}
		}
	}

	text.WriteString("\n---\nThis digest was generated automatically by Hashtag Timeline.\n")

	return text.String()
}
