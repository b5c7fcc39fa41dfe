package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/hashtags/hashtag-timeline/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockNotificationService is a mock implementation of the notification service
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) SendDigest(digest *models.Digest) error {
	args := m.Called(digest)
	return args.Error(0)
}

func (m *MockNotificationService) SendAlert(alert *models.Alert) error {
	args := m.Called(alert)
	return args.Error(0)
}

type staticTimeline struct {
	entries  []models.TimelineEntry
	appended int64
}

func (s *staticTimeline) Entries() []models.TimelineEntry { return s.entries }
func (s *staticTimeline) Appended() int64                 { return s.appended }

func newTimeline() *staticTimeline {
	return &staticTimeline{
		appended: 12,
		entries: []models.TimelineEntry{
			{
				Tweet:     models.Tweet{ID: 2, Text: "second", CreatedAt: time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)},
				MediaType: models.MediaPhoto,
				ImageURL:  "https://pbs.example/2.jpg",
			},
			{
				Tweet:     models.Tweet{ID: 1, Text: "first"},
				MediaType: models.MediaPhoto,
				ImageURL:  "https://pbs.example/1.jpg",
			},
		},
	}
}

var fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func TestRunArchive_WritesSnapshot(t *testing.T) {
	store := storage.NewMemoryStorage()
	svc := NewService(Schedules{}, "#golang", newTimeline(), store, &MockNotificationService{}, clockwork.NewFakeClockAt(fixedNow))

	key, err := svc.RunArchive(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, `^archive/2024-05-01-12-30-00-[0-9a-f-]{36}\.json$`, key)

	keys, err := ListArchives(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)

	archived, err := LoadArchive(context.Background(), store, key)
	require.NoError(t, err)
	assert.Equal(t, "#golang", archived.Query)
	assert.Equal(t, int64(12), archived.TotalEmitted)
	assert.True(t, fixedNow.Equal(archived.GeneratedAt))
	require.Len(t, archived.Entries, 2)
	assert.Equal(t, int64(2), archived.Entries[0].Tweet.ID)
	assert.True(t, time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC).Equal(archived.Entries[0].Tweet.CreatedAt))
}

func TestRunArchive_TextRoundTripsVerbatim(t *testing.T) {
	const text = "write &lt;b&gt; for bold"
	store := storage.NewMemoryStorage()
	tl := &staticTimeline{entries: []models.TimelineEntry{{Tweet: models.Tweet{ID: 3, Text: text}}}}
	svc := NewService(Schedules{}, "#golang", tl, store, &MockNotificationService{}, clockwork.NewFakeClockAt(fixedNow))

	key, err := svc.RunArchive(context.Background())
	require.NoError(t, err)

	archived, err := LoadArchive(context.Background(), store, key)
	require.NoError(t, err)
	require.Len(t, archived.Entries, 1)
	assert.Equal(t, text, archived.Entries[0].Tweet.Text)
}

func TestRunArchive_StorageError(t *testing.T) {
	store := &failingStorage{MemoryStorage: storage.NewMemoryStorage()}
	svc := NewService(Schedules{}, "#golang", newTimeline(), store, &MockNotificationService{}, clockwork.NewFakeClockAt(fixedNow))

	_, err := svc.RunArchive(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store archive")
}

type failingStorage struct {
	*storage.MemoryStorage
}

func (f *failingStorage) Store(ctx context.Context, key string, data []byte) error {
	return errors.New("disk full")
}

func TestRunDigest(t *testing.T) {
	notifier := &MockNotificationService{}
	notifier.On("SendDigest", mock.MatchedBy(func(d *models.Digest) bool {
		return d.Query == "#golang" && len(d.Entries) == 2 && d.TotalEmitted == 12
	})).Return(nil).Once()

	svc := NewService(Schedules{}, "#golang", newTimeline(), storage.NewMemoryStorage(), notifier, clockwork.NewFakeClockAt(fixedNow))

	require.NoError(t, svc.RunDigest())
	notifier.AssertExpectations(t)
}

func TestRunDigest_EmptyTimelineSkipped(t *testing.T) {
	notifier := &MockNotificationService{}
	svc := NewService(Schedules{}, "#golang", &staticTimeline{}, storage.NewMemoryStorage(), notifier, clockwork.NewFakeClock())

	require.NoError(t, svc.RunDigest())
	notifier.AssertNotCalled(t, "SendDigest", mock.Anything)
}

func TestStart_ValidatesSchedules(t *testing.T) {
	tests := []struct {
		name      string
		schedules Schedules
		wantErr   string
	}{
		{name: "Both disabled", schedules: Schedules{}},
		{name: "Valid schedules", schedules: Schedules{Archive: "0 */15 * * * *", Digest: "0 0 9 * * MON"}},
		{name: "Bad archive", schedules: Schedules{Archive: "every minute"}, wantErr: "invalid archive schedule"},
		{name: "Bad digest", schedules: Schedules{Digest: "0 0 25 * * *"}, wantErr: "invalid digest schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.schedules, "#golang", newTimeline(), storage.NewMemoryStorage(), &MockNotificationService{}, clockwork.NewFakeClock())
			err := svc.Start()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			svc.Stop()
		})
	}
}
