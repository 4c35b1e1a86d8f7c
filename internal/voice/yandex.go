package voice

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"

	tts "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/tts/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ent0n29/iradio/internal/audio"
	"github.com/ent0n29/iradio/internal/reliability"
)

type YandexConfig struct {
	APIKey   string
	FolderID string
	Endpoint string
	Model    string
	Format   audio.Format
	MaxBytes int
	Voices   Lister
}

// YandexProvider synthesizes through SpeechKit v3 UtteranceSynthesis over gRPC.
type YandexProvider struct {
	cfg    YandexConfig
	conn   *grpc.ClientConn
	client tts.SynthesizerClient
}

var _ Provider = (*YandexProvider)(nil)

func NewYandexProvider(cfg YandexConfig) (*YandexProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.FolderID) == "" {
		return nil, errors.New("yandex api key and folder id are required")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = "tts.api.cloud.yandex.net:443"
	}
	if cfg.Format == "" {
		cfg.Format = audio.FormatMP3
	}
	if cfg.MaxBytes <= 0 {
		// UtteranceSynthesis accepts up to 250 characters per request.
		cfg.MaxBytes = 500
	}
	if cfg.Voices == nil {
		cfg.Voices = &StaticLister{}
	}

	conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	if err != nil {
		return nil, fmt.Errorf("connect yandex tts: %w", err)
	}
	return &YandexProvider{cfg: cfg, conn: conn, client: tts.NewSynthesizerClient(conn)}, nil
}

func (p *YandexProvider) Name() string         { return "yandex" }
func (p *YandexProvider) Format() audio.Format { return p.cfg.Format }
func (p *YandexProvider) MaxChunkBytes() int   { return p.cfg.MaxBytes }

func (p *YandexProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	return p.cfg.Voices.ListVoices(ctx)
}

func (p *YandexProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, ErrVoiceRequired
	}
	ctx = metadata.AppendToOutgoingContext(ctx,
		"authorization", "Api-Key "+p.cfg.APIKey,
		"x-folder-id", p.cfg.FolderID,
	)

	stream, err := p.client.UtteranceSynthesis(ctx, p.buildRequest(req))
	if err != nil {
		return nil, p.wrapErr("start synthesis", err)
	}
	var buf bytes.Buffer
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, p.wrapErr("receive audio", err)
		}
		if chunk := resp.GetAudioChunk(); chunk != nil {
			buf.Write(chunk.GetData())
		}
	}
	return buf.Bytes(), nil
}

func (p *YandexProvider) buildRequest(req Request) *tts.UtteranceSynthesisRequest {
	out := &tts.UtteranceSynthesisRequest{}
	if p.cfg.Model != "" {
		out.SetModel(p.cfg.Model)
	}
	out.SetText(req.Text)

	voiceHint := &tts.Hints{}
	voiceHint.SetVoice(req.VoiceID)
	speedHint := &tts.Hints{}
	speedHint.SetSpeed(ratio(req.Params.Speed))
	volumeHint := &tts.Hints{}
	// LUFS loudness: 5 on the shared scale is SpeechKit's default of -19.
	volumeHint.SetVolume(-19 + float64(clampParam(req.Params.Volume)-5))
	out.SetHints([]*tts.Hints{voiceHint, speedHint, volumeHint})

	container := &tts.ContainerAudio{}
	switch p.cfg.Format {
	case audio.FormatWAV:
		container.SetContainerAudioType(tts.ContainerAudio_WAV)
	case audio.FormatOGG:
		container.SetContainerAudioType(tts.ContainerAudio_OGG_OPUS)
	default:
		container.SetContainerAudioType(tts.ContainerAudio_MP3)
	}
	spec := &tts.AudioFormatOptions{}
	spec.SetContainerAudio(container)
	out.SetOutputAudioSpec(spec)
	out.SetLoudnessNormalizationType(tts.UtteranceSynthesisRequest_LUFS)
	return out
}

func (p *YandexProvider) wrapErr(stage string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("yandex %s: %w", stage, err)
	}
	return &ProviderError{
		Provider:  p.Name(),
		Code:      st.Code().String(),
		Detail:    stage + ": " + st.Message(),
		Retryable: reliability.IsRetryableGRPCCode(st.Code()),
	}
}

func (p *YandexProvider) Close() error {
	return p.conn.Close()
}
