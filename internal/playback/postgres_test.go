package playback

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a scratch database named by IRADIO_TEST_DATABASE_URL.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("IRADIO_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("IRADIO_TEST_DATABASE_URL not set")
	}
	s, err := NewPostgresStore(context.Background(), url)
	require.NoError(t, err)
	require.NoError(t, s.Clear(context.Background()))
	t.Cleanup(func() {
		_ = s.Clear(context.Background())
		_ = s.Close()
	})
	return s
}

func TestPostgresConcurrentFirstUpsertsCountEveryPlay(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Upsert(ctx, Update{File: "fresh.mp3", Position: 5, Status: StatusPlaying})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, ok, err := s.Get(ctx, "fresh.mp3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 8, rec.PlayCount)
	assert.Equal(t, 5.0, rec.LastPosition)
}

func TestPostgresResetRewinds(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)

	_, err := s.Upsert(ctx, Update{File: "a.mp3", Position: 30, Status: StatusPlaying})
	require.NoError(t, err)
	rec, err := s.Upsert(ctx, Update{File: "a.mp3", Position: 55, Status: StatusReset})
	require.NoError(t, err)
	assert.Equal(t, 0.0, rec.LastPosition)
	assert.Equal(t, 1, rec.PlayCount)
}
