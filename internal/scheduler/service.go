package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/hashtags/hashtag-timeline/internal/notifications"
	"github.com/hashtags/hashtag-timeline/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ArchivePrefix is the storage key prefix of timeline snapshots
const ArchivePrefix = "archive/"

// TimelineSource exposes the current timeline
type TimelineSource interface {
	Entries() []models.TimelineEntry
	Appended() int64
}

// Schedules are cron expressions with a seconds field. Empty disables a job.
type Schedules struct {
	Archive string
	Digest  string
}

// Service runs periodic archive and digest jobs
type Service struct {
	schedules     Schedules
	query         string
	timeline      TimelineSource
	storage       storage.StorageInterface
	notifications notifications.NotificationInterface
	clock         clockwork.Clock
	cron          *cron.Cron
}

// NewService creates a new scheduler service
func NewService(schedules Schedules, query string, tl TimelineSource, store storage.StorageInterface, notifier notifications.NotificationInterface, clock clockwork.Clock) *Service {
	return &Service{
		schedules:     schedules,
		query:         query,
		timeline:      tl,
		storage:       store,
		notifications: notifier,
		clock:         clock,
		cron:          cron.New(cron.WithSeconds()),
	}
}

// Start registers the configured jobs and starts the cron runner
func (s *Service) Start() error {
	if s.schedules.Archive != "" {
		_, err := s.cron.AddFunc(s.schedules.Archive, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := s.RunArchive(ctx); err != nil {
				logrus.Errorf("Scheduled timeline archive failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid archive schedule %q: %w", s.schedules.Archive, err)
		}
	}

	if s.schedules.Digest != "" {
		_, err := s.cron.AddFunc(s.schedules.Digest, func() {
			if err := s.RunDigest(); err != nil {
				logrus.Errorf("Scheduled digest failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid digest schedule %q: %w", s.schedules.Digest, err)
		}
	}

	s.cron.Start()
	logrus.Infof("Scheduler started (archive: %q, digest: %q)", s.schedules.Archive, s.schedules.Digest)
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}

func (s *Service) snapshot() *models.Digest {
	return &models.Digest{
		GeneratedAt:  s.clock.Now().UTC(),
		Query:        s.query,
		TotalEmitted: s.timeline.Appended(),
		Entries:      s.timeline.Entries(),
	}
}

// RunArchive writes the current timeline to storage and returns its key
func (s *Service) RunArchive(ctx context.Context) (string, error) {
	snapshot := s.snapshot()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to marshal timeline: %w", err)
	}

	key := fmt.Sprintf("%s%s-%s.json", ArchivePrefix, snapshot.GeneratedAt.Format("2006-01-02-15-04-05"), uuid.NewString())
	if err := s.storage.Store(ctx, key, data); err != nil {
		return "", fmt.Errorf("failed to store archive: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"key":     key,
		"entries": len(snapshot.Entries),
	}).Info("Archived timeline")
	return key, nil
}

// RunDigest sends a summary of the current timeline
func (s *Service) RunDigest() error {
	snapshot := s.snapshot()
	if len(snapshot.Entries) == 0 {
		logrus.Info("Timeline is empty, skipping digest")
		return nil
	}
	return s.notifications.SendDigest(snapshot)
}

// LoadArchive reads a snapshot written by RunArchive
func LoadArchive(ctx context.Context, store storage.StorageInterface, key string) (*models.Digest, error) {
	data, err := store.Retrieve(ctx, key)
	if err != nil {
		return nil, err
	}
	var digest models.Digest
	if err := json.Unmarshal(data, &digest); err != nil {
		return nil, fmt.Errorf("failed to parse archive %s: %w", key, err)
	}
	return &digest, nil
}

// ListArchives returns archive keys, oldest first
func ListArchives(ctx context.Context, store storage.StorageInterface) ([]string, error) {
	return store.List(ctx, ArchivePrefix)
}
