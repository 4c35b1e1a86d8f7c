package voice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/iradio/internal/audio"
	"github.com/ent0n29/iradio/internal/config"
)

func fakeMP3() []byte {
	out := make([]byte, 256)
	copy(out, "ID3")
	return out
}

func TestBaiduProviderSynthesizesWithCachedToken(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 2592000})
	})
	mux.HandleFunc("/tts", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "tok-1", r.PostForm.Get("tok"))
		assert.Equal(t, "3", r.PostForm.Get("per"))
		assert.Equal(t, "5", r.PostForm.Get("spd"))
		assert.Equal(t, "15", r.PostForm.Get("vol"))
		assert.Equal(t, "3", r.PostForm.Get("aue"))
		w.Header().Set("Content-Type", "audio/mp3")
		_, _ = w.Write(fakeMP3())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewBaiduProvider(BaiduConfig{
		APIKey:    "k",
		SecretKey: "s",
		TTSURL:    srv.URL + "/tts",
		TokenURL:  srv.URL + "/token",
	})
	req := Request{Text: "你好。", VoiceID: "3", Params: Params{Speed: 5, Pitch: 5, Volume: 20}}
	for i := 0; i < 2; i++ {
		data, err := p.Synthesize(context.Background(), req)
		require.NoError(t, err)
		require.NoError(t, audio.Validate(data, audio.FormatMP3))
	}
	assert.Equal(t, int32(1), tokenCalls.Load())
}

func TestBaiduProviderMapsJSONErrors(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/tts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"err_no":502,"err_msg":"access token invalid"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewBaiduProvider(BaiduConfig{APIKey: "k", SecretKey: "s", TTSURL: srv.URL + "/tts", TokenURL: srv.URL + "/token"})
	_, err := p.Synthesize(context.Background(), Request{Text: "x", VoiceID: "0"})
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "err_no_502", pe.Code)
	assert.True(t, pe.Retryable)

	_, _ = p.Synthesize(context.Background(), Request{Text: "x", VoiceID: "0"})
	assert.Equal(t, int32(2), tokenCalls.Load(), "token should be refetched after err_no 502")
}

func TestBaiduProviderRequiresCredentialsAndVoice(t *testing.T) {
	p := NewBaiduProvider(BaiduConfig{})
	_, err := p.Synthesize(context.Background(), Request{Text: "x"})
	assert.ErrorIs(t, err, ErrVoiceRequired)
	_, err = p.Synthesize(context.Background(), Request{Text: "x", VoiceID: "0"})
	assert.Error(t, err)
}

func TestElevenLabsProvider(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/text-to-speech/voice-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("xi-api-key"))
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello.", body["text"])
		_, _ = w.Write(fakeMP3())
	})
	mux.HandleFunc("/v1/voices", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"voices":[
			{"voice_id":"b","name":"Zed","labels":{"gender":"Male"}},
			{"voice_id":"a","name":"amy","labels":{"accent":"british"}},
			{"voice_id":"","name":"broken"}
		]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "key", BaseURL: srv.URL})
	data, err := p.Synthesize(context.Background(), Request{Text: "hello.", VoiceID: "voice-1", Params: DefaultParams})
	require.NoError(t, err)
	assert.NoError(t, audio.Validate(data, p.Format()))

	voices, err := p.ListVoices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 2)
	assert.Equal(t, "amy", voices[0].Label)
	assert.Equal(t, "male", voices[1].Gender)

	_, err = p.Synthesize(context.Background(), Request{Text: "x", VoiceID: "missing"})
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusNotFound, pe.StatusCode)
	assert.False(t, pe.Retryable)
}

func TestMockProviderProducesValidWAV(t *testing.T) {
	p := NewMockProvider(NewStaticLister("mock", config.DefaultVoices()))
	data, err := p.Synthesize(context.Background(), Request{Text: "一二三四五六七八。", VoiceID: "mock", Params: DefaultParams})
	require.NoError(t, err)
	require.NoError(t, audio.Validate(data, audio.FormatWAV))

	voices, err := p.ListVoices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "mock", voices[0].ID)
}

func TestStaticListerFiltersByProvider(t *testing.T) {
	l := NewStaticLister("BAIDU", config.DefaultVoices())
	voices, err := l.ListVoices(context.Background())
	require.NoError(t, err)
	assert.Len(t, voices, 4)
	for _, v := range voices {
		assert.Equal(t, "baidu", v.Provider)
	}
}

func TestBaiduProviderTokenErrorsHideSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	tokenURL := srv.URL + "/token"
	srv.Close()

	p := NewBaiduProvider(BaiduConfig{APIKey: "key-123", SecretKey: "very-secret", TokenURL: tokenURL, TTSURL: tokenURL})
	_, err := p.Synthesize(context.Background(), Request{Text: "x", VoiceID: "0"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "very-secret")
	assert.NotContains(t, err.Error(), "key-123")
	assert.Contains(t, err.Error(), "baidu token request")
}
