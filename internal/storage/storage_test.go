package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStorage runs the behaviour every backend must share
func exerciseStorage(t *testing.T, s StorageInterface) {
	ctx := context.Background()

	_, err := s.Retrieve(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Store(ctx, "AppAccessToken", []byte("token-1")))
	require.NoError(t, s.Store(ctx, "archive/2024-01-01.json", []byte(`{"a":1}`)))
	require.NoError(t, s.Store(ctx, "archive/2024-01-02.json", []byte(`{"a":2}`)))

	data, err := s.Retrieve(ctx, "AppAccessToken")
	require.NoError(t, err)
	assert.Equal(t, "token-1", string(data))

	require.NoError(t, s.Store(ctx, "AppAccessToken", []byte("token-2")))
	data, err = s.Retrieve(ctx, "AppAccessToken")
	require.NoError(t, err)
	assert.Equal(t, "token-2", string(data))

	keys, err := s.List(ctx, "archive/")
	require.NoError(t, err)
	assert.Equal(t, []string{"archive/2024-01-01.json", "archive/2024-01-02.json"}, keys)

	require.NoError(t, s.Delete(ctx, "AppAccessToken"))
	_, err = s.Retrieve(ctx, "AppAccessToken")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting twice is fine
	assert.NoError(t, s.Delete(ctx, "AppAccessToken"))
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage())
}

func TestFileStorage(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	exerciseStorage(t, s)
}

func TestFileStorage_RejectsEscapingKeys(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	for _, key := range []string{"", "../outside", "/etc/passwd", ".."} {
		assert.Error(t, s.Store(ctx, key, []byte("x")), "key %q", key)
	}
}

func TestRedisStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStorageFromClient(rdb, "test:")
	exerciseStorage(t, s)

	// Values live under the prefix
	require.NoError(t, s.Store(context.Background(), "UserAccessToken", []byte("u")))
	assert.True(t, mr.Exists("test:UserAccessToken"))
}

func TestNewRedisStorage_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStorage(context.Background(), "redis://"+mr.Addr()+"/0", "p:")
	require.NoError(t, err)
	defer s.Close()

	_, err = NewRedisStorage(context.Background(), "not-a-url", "p:")
	assert.Error(t, err)
}
