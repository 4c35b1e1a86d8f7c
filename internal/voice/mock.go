package voice

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/ent0n29/iradio/internal/audio"
)

// MockProvider renders silence sized to the text; used when no speech API
// credentials are configured.
type MockProvider struct {
	voices Lister
}

var _ Provider = (*MockProvider)(nil)

func NewMockProvider(voices Lister) *MockProvider {
	if voices == nil {
		voices = &StaticLister{voices: []Voice{{ID: "mock", Label: "mock", Provider: "mock"}}}
	}
	return &MockProvider{voices: voices}
}

func (p *MockProvider) Name() string         { return "mock" }
func (p *MockProvider) Format() audio.Format { return audio.FormatWAV }
func (p *MockProvider) MaxChunkBytes() int   { return 1800 }

func (p *MockProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	return p.voices.ListVoices(ctx)
}

func (p *MockProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, ErrVoiceRequired
	}
	// Roughly four characters per second of speech, scaled by speed.
	seconds := float64(utf8.RuneCountInString(req.Text)) / 4 / ratio(req.Params.Speed)
	return audio.SilenceWAV(seconds, 8000)
}
