package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the audio-book player.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	SessionTimeout   time.Duration
	MetricsNamespace string
	SecureCookies    bool

	BooksDir    string
	AudioDir    string
	RecordsFile string
	UsersFile   string
	DatabaseURL string

	SeedUser     string
	SeedPassword string

	ChunkBytes             int
	LegacyDropOversized    bool
	SynthesisChunkTimeout  time.Duration
	SynthesisRetries       int
	SynthesisRetryBase     time.Duration
	JobWaitLimit           time.Duration
	VoiceCacheTTL          time.Duration
	VoicesFile             string
	Voices                 []VoiceOption
	VoiceProvider          string
	DefaultOutputExtension string

	BaiduAPIKey    string
	BaiduSecretKey string
	BaiduCUID      string
	BaiduTTSURL    string
	BaiduTokenURL  string
	BaiduMaxBytes  int

	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string
	ElevenLabsModel   string

	YandexAPIKey   string
	YandexFolderID string
	YandexEndpoint string
}

// Load reads an optional .env file, then environment variables, and applies
// defaults. The voice catalog can be overridden from a TOML file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8501"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "iradio"),
		BooksDir:         envOrDefault("APP_BOOKS_DIR", "Books"),
		AudioDir:         envOrDefault("APP_AUDIO_DIR", "Audio_files"),
		RecordsFile:      envOrDefault("APP_RECORDS_FILE", "playback_records.json"),
		UsersFile:        envOrDefault("APP_USERS_FILE", "user_config.json"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		SeedUser:         envOrDefault("APP_SEED_USER", "cyan"),
		SeedPassword:     stringsTrimSpace("APP_SEED_PASSWORD"),
		VoicesFile:       stringsTrimSpace("APP_VOICES_FILE"),
		VoiceProvider:    envOrDefault("VOICE_PROVIDER", "auto"),
		// Baidu rejects requests above ~2KB once url-encoded; 1400 leaves headroom.
		ChunkBytes:             1400,
		ShutdownTimeout:        15 * time.Second,
		SessionTimeout:         12 * time.Hour,
		SynthesisChunkTimeout:  90 * time.Second,
		SynthesisRetryBase:     500 * time.Millisecond,
		JobWaitLimit:           30 * time.Second,
		VoiceCacheTTL:          time.Hour,
		DefaultOutputExtension: "mp3",

		BaiduAPIKey:    stringsTrimSpace("BAIDU_API_KEY"),
		BaiduSecretKey: stringsTrimSpace("BAIDU_SECRET_KEY"),
		BaiduCUID:      envOrDefault("BAIDU_CUID", "iradio"),
		BaiduTTSURL:    envOrDefault("BAIDU_TTS_URL", "https://tsn.baidu.com/text2audio"),
		BaiduTokenURL:  envOrDefault("BAIDU_TOKEN_URL", "https://aip.baidubce.com/oauth/2.0/token"),

		ElevenLabsAPIKey:  stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL: envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsModel:   envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),

		YandexAPIKey:   stringsTrimSpace("YANDEX_API_KEY"),
		YandexFolderID: stringsTrimSpace("YANDEX_FOLDER_ID"),
		YandexEndpoint: envOrDefault("YANDEX_TTS_ENDPOINT", "tts.api.cloud.yandex.net:443"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTimeout, err = durationFromEnv("APP_SESSION_TIMEOUT", cfg.SessionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthesisChunkTimeout, err = durationFromEnv("APP_SYNTHESIS_CHUNK_TIMEOUT", cfg.SynthesisChunkTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.JobWaitLimit, err = durationFromEnv("APP_JOB_WAIT_LIMIT", cfg.JobWaitLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.VoiceCacheTTL, err = durationFromEnv("APP_VOICE_CACHE_TTL", cfg.VoiceCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.ChunkBytes, err = intFromEnv("APP_CHUNK_BYTES", cfg.ChunkBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.BaiduMaxBytes, err = intFromEnv("BAIDU_MAX_BYTES", cfg.BaiduMaxBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthesisRetries, err = intFromEnv("APP_SYNTHESIS_RETRIES", cfg.SynthesisRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthesisRetryBase, err = durationFromEnv("APP_SYNTHESIS_RETRY_BASE", cfg.SynthesisRetryBase)
	if err != nil {
		return Config{}, err
	}
	cfg.LegacyDropOversized, err = boolFromEnv("APP_LEGACY_DROP_OVERSIZED", cfg.LegacyDropOversized)
	if err != nil {
		return Config{}, err
	}
	cfg.SecureCookies, err = boolFromEnv("APP_SECURE_COOKIES", cfg.SecureCookies)
	if err != nil {
		return Config{}, err
	}

	cfg.Voices = DefaultVoices()
	if cfg.VoicesFile != "" {
		cfg.Voices, err = LoadVoicesFile(cfg.VoicesFile)
		if err != nil {
			return Config{}, err
		}
	}

	if cfg.ChunkBytes < 64 {
		return Config{}, fmt.Errorf("APP_CHUNK_BYTES must be at least 64")
	}
	if cfg.BaiduMaxBytes < 0 {
		return Config{}, fmt.Errorf("BAIDU_MAX_BYTES must be >= 0")
	}
	if cfg.SynthesisRetries < 0 || cfg.SynthesisRetries > 5 {
		return Config{}, fmt.Errorf("APP_SYNTHESIS_RETRIES must be between 0 and 5")
	}
	if cfg.SessionTimeout < time.Minute {
		return Config{}, fmt.Errorf("APP_SESSION_TIMEOUT must be at least 1m")
	}
	if strings.TrimSpace(cfg.SeedUser) == "" {
		return Config{}, fmt.Errorf("APP_SEED_USER must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
