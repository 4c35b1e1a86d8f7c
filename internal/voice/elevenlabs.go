package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ent0n29/iradio/internal/audio"
	"github.com/ent0n29/iradio/internal/reliability"
)

type ElevenLabsConfig struct {
	APIKey   string
	BaseURL  string
	ModelID  string
	MaxBytes int
	Client   *http.Client
}

// ElevenLabsProvider uses the ElevenLabs REST text-to-speech endpoint.
type ElevenLabsProvider struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

var _ Provider = (*ElevenLabsProvider)(nil)

func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 4000
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	return &ElevenLabsProvider{cfg: cfg, client: client}
}

func (p *ElevenLabsProvider) Name() string         { return "elevenlabs" }
func (p *ElevenLabsProvider) Format() audio.Format { return audio.FormatMP3 }
func (p *ElevenLabsProvider) MaxChunkBytes() int   { return p.cfg.MaxBytes }

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, ErrVoiceRequired
	}
	speed := ratio(req.Params.Speed)
	if speed < 0.7 {
		speed = 0.7
	} else if speed > 1.2 {
		speed = 1.2
	}
	payload, err := json.Marshal(map[string]any{
		"text":     req.Text,
		"model_id": p.cfg.ModelID,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.8,
			"speed":            speed,
		},
	})
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(req.VoiceID))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("output_format", "mp3_44100_128")
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("xi-api-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	res, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs tts request: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs tts read: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &ProviderError{
			Provider:   p.Name(),
			StatusCode: res.StatusCode,
			Code:       "bad_status",
			Detail:     strings.TrimSpace(string(body)),
			Retryable:  reliability.IsRetryableHTTPStatus(res.StatusCode),
		}
	}
	return body, nil
}

func (p *ElevenLabsProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/voices", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", p.cfg.APIKey)

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs voices request: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 2<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &ProviderError{
			Provider:   p.Name(),
			StatusCode: res.StatusCode,
			Code:       "bad_status",
			Detail:     strings.TrimSpace(string(body)),
			Retryable:  reliability.IsRetryableHTTPStatus(res.StatusCode),
		}
	}

	var parsed struct {
		Voices []struct {
			VoiceID string            `json:"voice_id"`
			Name    string            `json:"name"`
			Labels  map[string]string `json:"labels"`
		} `json:"voices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("elevenlabs voices decode: %w", err)
	}

	out := make([]Voice, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		id := strings.TrimSpace(v.VoiceID)
		name := strings.TrimSpace(v.Name)
		if id == "" || name == "" {
			continue
		}
		out = append(out, Voice{
			ID:       id,
			Label:    name,
			Locale:   strings.TrimSpace(v.Labels["accent"]),
			Gender:   strings.ToLower(strings.TrimSpace(v.Labels["gender"])),
			Provider: p.Name(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Label) < strings.ToLower(out[j].Label)
	})
	return out, nil
}
