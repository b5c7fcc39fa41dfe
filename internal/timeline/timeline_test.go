package timeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hashtags/hashtag-timeline/internal/mediacache"
	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMediaSource struct {
	mock.Mock
}

func (m *MockMediaSource) Acquire(ctx context.Context, url string) (mediacache.Ref, error) {
	args := m.Called(ctx, url)
	if media := args.Get(0); media != nil {
		return mediacache.Ref{URL: url, Media: media.(*mediacache.Media)}, args.Error(1)
	}
	return mediacache.Ref{}, args.Error(1)
}

func (m *MockMediaSource) Release(ref mediacache.Ref) {
	m.Called(ref.URL)
}

func (m *MockMediaSource) Invalidate(url string) {
	m.Called(url)
}

func entry(id int64) models.TimelineEntry {
	return models.TimelineEntry{
		Tweet:     models.Tweet{ID: id},
		SourceID:  id,
		MediaType: models.MediaPhoto,
		ImageURL:  fmt.Sprintf("https://pbs.example/%d.jpg", id),
	}
}

func ids(entries []models.TimelineEntry) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Tweet.ID)
	}
	return out
}

func TestAppend_NewestFirst(t *testing.T) {
	tl := New(5, nil)
	for id := int64(1); id <= 3; id++ {
		require.NoError(t, tl.Append(context.Background(), entry(id)))
	}

	assert.Equal(t, []int64{3, 2, 1}, ids(tl.Entries()))
	assert.Equal(t, int64(3), tl.Appended())
}

func TestAppend_EvictsOldestPastCapacity(t *testing.T) {
	media := new(MockMediaSource)
	media.On("Acquire", mock.Anything, mock.Anything).Return(&mediacache.Media{}, nil)
	media.On("Release", "https://pbs.example/1.jpg").Once()
	media.On("Release", "https://pbs.example/2.jpg").Once()

	tl := New(3, media)
	var evicted []int64
	tl.OnEvict(func(ids []int64) { evicted = append(evicted, ids...) })

	for id := int64(1); id <= 5; id++ {
		require.NoError(t, tl.Append(context.Background(), entry(id)))
	}

	assert.Equal(t, 3, tl.Len())
	assert.Equal(t, []int64{5, 4, 3}, ids(tl.Entries()))
	assert.Equal(t, []int64{1, 2}, evicted)
	media.AssertExpectations(t)
	media.AssertNumberOfCalls(t, "Acquire", 5)
}

func TestAppend_MediaFailureLeavesTimelineUnchanged(t *testing.T) {
	media := new(MockMediaSource)
	media.On("Acquire", mock.Anything, "https://pbs.example/1.jpg").Return(nil, errors.New("404"))

	tl := New(3, media)
	err := tl.Append(context.Background(), entry(1))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tweet 1")
	assert.Equal(t, 0, tl.Len())
}

func TestLookup(t *testing.T) {
	tl := New(3, nil)
	require.NoError(t, tl.Append(context.Background(), entry(7)))

	found, ok := tl.Lookup(7)
	assert.True(t, ok)
	assert.Equal(t, "https://pbs.example/7.jpg", found.ImageURL)

	_, ok = tl.Lookup(8)
	assert.False(t, ok)
}

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0, nil).Capacity())
}

func TestRefreshMedia_MovesEveryHolderToNewDownload(t *testing.T) {
	media := new(MockMediaSource)
	media.On("Acquire", mock.Anything, mock.Anything).Return(&mediacache.Media{}, nil)
	media.On("Invalidate", "https://pbs.example/shared.jpg").Once()
	media.On("Release", "https://pbs.example/shared.jpg").Twice()

	tl := New(3, media)
	for id := int64(1); id <= 2; id++ {
		e := entry(id)
		e.ImageURL = "https://pbs.example/shared.jpg"
		require.NoError(t, tl.Append(context.Background(), e))
	}
	require.NoError(t, tl.Append(context.Background(), entry(3)))

	require.NoError(t, tl.RefreshMedia(context.Background(), 1))

	media.AssertExpectations(t)
	// Two appends plus two reloads for the shared url, one for entry 3
	media.AssertNumberOfCalls(t, "Acquire", 5)
}

func TestRefreshMedia_UnknownEntry(t *testing.T) {
	tl := New(3, new(MockMediaSource))
	assert.ErrorIs(t, tl.RefreshMedia(context.Background(), 9), ErrNotFound)
}

func TestRefreshMedia_FailureKeepsExistingRefs(t *testing.T) {
	media := new(MockMediaSource)
	media.On("Acquire", mock.Anything, "https://pbs.example/1.jpg").Return(&mediacache.Media{}, nil).Once()
	media.On("Invalidate", "https://pbs.example/1.jpg").Once()
	media.On("Acquire", mock.Anything, "https://pbs.example/1.jpg").Return(nil, errors.New("410")).Once()

	tl := New(3, media)
	require.NoError(t, tl.Append(context.Background(), entry(1)))

	err := tl.RefreshMedia(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tweet 1")
	media.AssertNotCalled(t, "Release", mock.Anything)
	assert.Equal(t, 1, tl.Len())
}
