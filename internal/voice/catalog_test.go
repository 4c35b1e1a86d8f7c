package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLister struct {
	calls  int
	voices []Voice
	err    error
}

func (l *countingLister) ListVoices(context.Context) ([]Voice, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.voices, nil
}

func TestCatalogCachesUntilTTL(t *testing.T) {
	src := &countingLister{voices: []Voice{{ID: "0", Label: "女声", Provider: "baidu"}}}
	c := NewCatalog(src, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.Voices(context.Background())
	require.NoError(t, err)
	_, err = c.Voices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	now = now.Add(2 * time.Minute)
	_, err = c.Voices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)

	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestCatalogServesStaleListOnError(t *testing.T) {
	src := &countingLister{voices: []Voice{{ID: "a", Label: "A"}}}
	c := NewCatalog(src, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.Voices(context.Background())
	require.NoError(t, err)

	src.err = errors.New("boom")
	now = now.Add(time.Hour)
	got, err := c.Voices(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = c.Refresh(context.Background())
	assert.Error(t, err)
}

func TestCatalogLookupByIDOrLabel(t *testing.T) {
	src := &countingLister{voices: []Voice{{ID: "0", Label: "女声"}, {ID: "marina", Label: "Marina"}}}
	c := NewCatalog(src, time.Minute)

	v, err := c.Lookup(context.Background(), "0")
	require.NoError(t, err)
	assert.Equal(t, "女声", v.Label)

	v, err = c.Lookup(context.Background(), "marina")
	require.NoError(t, err)
	assert.Equal(t, "marina", v.ID)

	v, err = c.Lookup(context.Background(), "女声")
	require.NoError(t, err)
	assert.Equal(t, "0", v.ID)

	_, err = c.Lookup(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUnknownVoice)
}

func TestCatalogDisambiguatesRepeatedLabels(t *testing.T) {
	src := &countingLister{voices: []Voice{
		{ID: "v1", Label: "Rachel"},
		{ID: "v2", Label: "rachel"},
		{ID: "v3", Label: "Adam"},
	}}
	c := NewCatalog(src, time.Minute)

	got, err := c.Voices(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Rachel", got[0].Label)
	assert.Equal(t, "rachel (v2)", got[1].Label)
	assert.Equal(t, "Adam", got[2].Label)
	assert.Equal(t, "rachel", src.voices[1].Label, "source list is not modified")

	v, err := c.Lookup(context.Background(), "v2")
	require.NoError(t, err)
	assert.Equal(t, "rachel (v2)", v.Label)
}
