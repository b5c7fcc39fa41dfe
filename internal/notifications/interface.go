package notifications

import "github.com/hashtags/hashtag-timeline/internal/models"

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendDigest(digest *models.Digest) error
	SendAlert(alert *models.Alert) error
}
