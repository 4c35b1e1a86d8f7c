package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/iradio/internal/audio"
)

type scriptedSynth struct {
	errs  []error
	calls int
}

func (s *scriptedSynth) Name() string         { return "scripted" }
func (s *scriptedSynth) Format() audio.Format { return audio.FormatMP3 }
func (s *scriptedSynth) MaxChunkBytes() int   { return 100 }

func (s *scriptedSynth) Synthesize(context.Context, Request) ([]byte, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return []byte("ok"), nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryingRetriesTransientErrors(t *testing.T) {
	inner := &scriptedSynth{errs: []error{
		&ProviderError{Provider: "x", StatusCode: 503, Retryable: true},
		&ProviderError{Provider: "x", Code: "err_no_502", Retryable: true},
	}}
	r := NewRetrying(inner, 3, time.Millisecond, time.Millisecond)
	r.sleep = noSleep

	data, err := r.Synthesize(context.Background(), Request{Text: "hi", VoiceID: "0"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingStopsOnPermanentError(t *testing.T) {
	perm := &ProviderError{Provider: "x", Code: "err_no_501"}
	inner := &scriptedSynth{errs: []error{perm}}
	r := NewRetrying(inner, 5, time.Millisecond, time.Millisecond)
	r.sleep = noSleep

	_, err := r.Synthesize(context.Background(), Request{Text: "hi", VoiceID: "0"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, perm))
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingGivesUpAfterAttempts(t *testing.T) {
	transient := &ProviderError{Provider: "x", StatusCode: 429, Retryable: true}
	inner := &scriptedSynth{errs: []error{transient, transient, transient}}
	r := NewRetrying(inner, 2, time.Millisecond, time.Millisecond)
	r.sleep = noSleep

	_, err := r.Synthesize(context.Background(), Request{Text: "hi", VoiceID: "0"})
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}
