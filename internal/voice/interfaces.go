package voice

import (
	"context"
	"errors"
	"fmt"

	"github.com/ent0n29/iradio/internal/audio"
	"github.com/ent0n29/iradio/internal/policy"
)

var ErrVoiceRequired = errors.New("voice_id is required")

// Voice is one selectable speaker of a provider.
type Voice struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Locale   string `json:"locale,omitempty"`
	Gender   string `json:"gender,omitempty"`
	Provider string `json:"provider"`
}

// Params are the fixed prosody settings used for a whole book. Values follow
// the 0..15 scale with 5 as neutral.
type Params struct {
	Speed  int
	Pitch  int
	Volume int
}

// DefaultParams is neutral speed, pitch and volume.
var DefaultParams = Params{Speed: 5, Pitch: 5, Volume: 5}

// Request is a single synthesis call for one chunk of text.
type Request struct {
	Text    string
	VoiceID string
	Params  Params
}

// Synthesizer turns one text chunk into an encoded audio payload.
type Synthesizer interface {
	Name() string
	Format() audio.Format
	MaxChunkBytes() int
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// Lister lists the voices a provider offers.
type Lister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// Provider is a synthesizer that can also enumerate its voices.
type Provider interface {
	Synthesizer
	Lister
}

// ProviderError is a non-audio answer from a speech API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Detail     string
	Retryable  bool
}

func (e *ProviderError) Error() string {
	var msg string
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s: status %d: %s %s", e.Provider, e.StatusCode, e.Code, e.Detail)
	} else {
		msg = fmt.Sprintf("%s: %s %s", e.Provider, e.Code, e.Detail)
	}
	msg, _ = policy.RedactSecrets(msg)
	return msg
}

func clampParam(v int) int {
	if v < 0 {
		return 0
	}
	if v > 15 {
		return 15
	}
	return v
}

// ratio maps the 0..15 scale onto a multiplier where 5 is 1.0.
func ratio(v int) float64 {
	v = clampParam(v)
	if v <= 5 {
		return 0.5 + float64(v)*0.1
	}
	return 1.0 + float64(v-5)*0.1
}
