package voice

import (
	"context"
	"strings"

	"github.com/ent0n29/iradio/internal/config"
)

// StaticLister serves a fixed voice catalog for one provider.
type StaticLister struct {
	voices []Voice
}

// NewStaticLister keeps the configured options that belong to provider.
func NewStaticLister(provider string, options []config.VoiceOption) *StaticLister {
	provider = strings.ToLower(strings.TrimSpace(provider))
	out := make([]Voice, 0, len(options))
	for _, o := range options {
		if !strings.EqualFold(o.Provider, provider) {
			continue
		}
		out = append(out, Voice{
			ID:       o.ID,
			Label:    o.Label,
			Locale:   o.Locale,
			Gender:   o.Gender,
			Provider: provider,
		})
	}
	return &StaticLister{voices: out}
}

func (l *StaticLister) ListVoices(_ context.Context) ([]Voice, error) {
	out := make([]Voice, len(l.voices))
	copy(out, l.voices)
	return out, nil
}
