package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/iradio/internal/audio"
	"github.com/ent0n29/iradio/internal/policy"
	"github.com/ent0n29/iradio/internal/reliability"
)

type BaiduConfig struct {
	APIKey    string
	SecretKey string
	CUID      string
	TTSURL    string
	TokenURL  string
	Format    audio.Format
	MaxBytes  int
	Voices    Lister
	Client    *http.Client
}

// BaiduProvider calls the Baidu short-text text2audio REST API.
type BaiduProvider struct {
	cfg    BaiduConfig
	client *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var _ Provider = (*BaiduProvider)(nil)

func NewBaiduProvider(cfg BaiduConfig) *BaiduProvider {
	if strings.TrimSpace(cfg.TTSURL) == "" {
		cfg.TTSURL = "https://tsn.baidu.com/text2audio"
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = "https://aip.baidubce.com/oauth/2.0/token"
	}
	if strings.TrimSpace(cfg.CUID) == "" {
		cfg.CUID = "iradio"
	}
	if cfg.Format == "" {
		cfg.Format = audio.FormatMP3
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1400
	}
	if cfg.Voices == nil {
		cfg.Voices = &StaticLister{}
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &BaiduProvider{cfg: cfg, client: client}
}

func (p *BaiduProvider) Name() string         { return "baidu" }
func (p *BaiduProvider) Format() audio.Format { return p.cfg.Format }
func (p *BaiduProvider) MaxChunkBytes() int   { return p.cfg.MaxBytes }

func (p *BaiduProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	return p.cfg.Voices.ListVoices(ctx)
}

func (p *BaiduProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, ErrVoiceRequired
	}
	tok, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("tex", req.Text)
	form.Set("tok", tok)
	form.Set("cuid", p.cfg.CUID)
	form.Set("ctp", "1")
	form.Set("lan", "zh")
	form.Set("spd", strconv.Itoa(clampParam(req.Params.Speed)))
	form.Set("pit", strconv.Itoa(clampParam(req.Params.Pitch)))
	form.Set("vol", strconv.Itoa(clampParam(req.Params.Volume)))
	form.Set("per", req.VoiceID)
	form.Set("aue", baiduAUE(p.cfg.Format))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TTSURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := p.client.Do(httpReq)
	if err != nil {
		return nil, policy.RedactError(fmt.Errorf("baidu text2audio request: %w", err))
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("baidu text2audio read: %w", err)
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
	// Failures come back as JSON with a 200 status.
	if strings.HasPrefix(strings.ToLower(res.Header.Get("Content-Type")), "application/json") {
		var apiErr struct {
			ErrNo  int    `json:"err_no"`
			ErrMsg string `json:"err_msg"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.ErrNo == 502 || apiErr.ErrNo == 110 || apiErr.ErrNo == 111 {
			p.invalidateToken()
		}
		return nil, &ProviderError{
			Provider:  p.Name(),
			Code:      "err_no_" + strconv.Itoa(apiErr.ErrNo),
			Detail:    apiErr.ErrMsg,
			Retryable: reliability.IsRetryableBaiduErrNo(apiErr.ErrNo),
		}
	}
	return body, nil
}

func (p *BaiduProvider) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}
	if strings.TrimSpace(p.cfg.APIKey) == "" || strings.TrimSpace(p.cfg.SecretKey) == "" {
		return "", fmt.Errorf("baidu api key and secret key are required")
	}

	u, err := url.Parse(p.cfg.TokenURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", p.cfg.APIKey)
	q.Set("client_secret", p.cfg.SecretKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return "", err
	}
	res, err := p.client.Do(req)
	if err != nil {
		return "", policy.RedactError(fmt.Errorf("baidu token request: %w", err))
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &ProviderError{
			Provider:   p.Name(),
			StatusCode: res.StatusCode,
			Code:       "token_bad_status",
			Detail:     strings.TrimSpace(string(body)),
			Retryable:  reliability.IsRetryableHTTPStatus(res.StatusCode),
		}
	}

	var parsed struct {
		AccessToken      string `json:"access_token"`
		ExpiresIn        int64  `json:"expires_in"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("baidu token decode: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", &ProviderError{Provider: p.Name(), Code: parsed.Error, Detail: parsed.ErrorDescription}
	}
	ttl := time.Duration(parsed.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	p.token = parsed.AccessToken
	// Renew one minute before the server-side expiry.
	p.tokenExpiry = time.Now().Add(ttl - time.Minute)
	return p.token, nil
}

func (p *BaiduProvider) invalidateToken() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

func baiduAUE(f audio.Format) string {
	switch f {
	case audio.FormatWAV:
		return "6"
	default:
		return "3"
	}
}
