package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ent0n29/iradio/internal/audio"
	"github.com/ent0n29/iradio/internal/auth"
	"github.com/ent0n29/iradio/internal/config"
	"github.com/ent0n29/iradio/internal/httpapi"
	"github.com/ent0n29/iradio/internal/library"
	"github.com/ent0n29/iradio/internal/observability"
	"github.com/ent0n29/iradio/internal/playback"
	"github.com/ent0n29/iradio/internal/session"
	"github.com/ent0n29/iradio/internal/synthesis"
	"github.com/ent0n29/iradio/internal/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	lib, err := library.New(cfg.BooksDir, cfg.AudioDir)
	if err != nil {
		log.Fatalf("library init failed: %v", err)
	}

	records, err := playback.NewStore(ctx, cfg.DatabaseURL, cfg.RecordsFile)
	if err != nil {
		log.Fatalf("playback store init failed: %v", err)
	}
	defer records.Close()

	gate, err := auth.Open(cfg.UsersFile, cfg.SeedUser, cfg.SeedPassword)
	if err != nil {
		log.Fatalf("auth init failed: %v", err)
	}

	outFormat, err := audio.ParseFormat(cfg.DefaultOutputExtension)
	if err != nil {
		log.Fatalf("output format: %v", err)
	}

	var provider voice.Provider

	providerMode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	if providerMode == "" {
		providerMode = "auto"
	}

	tryBaidu := func() bool {
		if cfg.BaiduAPIKey == "" || cfg.BaiduSecretKey == "" {
			return false
		}
		provider = voice.NewBaiduProvider(baiduConfig(cfg, outFormat))
		log.Printf("voice provider: baidu text2audio")
		return true
	}

	tryElevenLabs := func() bool {
		if cfg.ElevenLabsAPIKey == "" {
			return false
		}
		provider = voice.NewElevenLabsProvider(voice.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabsAPIKey,
			BaseURL: cfg.ElevenLabsBaseURL,
			ModelID: cfg.ElevenLabsModel,
		})
		log.Printf("voice provider: elevenlabs (%s)", cfg.ElevenLabsModel)
		return true
	}

	tryYandex := func(fatal bool) bool {
		if cfg.YandexAPIKey == "" || cfg.YandexFolderID == "" {
			if fatal {
				log.Fatalf("VOICE_PROVIDER=yandex but YANDEX_API_KEY or YANDEX_FOLDER_ID is not set")
			}
			return false
		}
		p, err := voice.NewYandexProvider(voice.YandexConfig{
			APIKey:   cfg.YandexAPIKey,
			FolderID: cfg.YandexFolderID,
			Endpoint: cfg.YandexEndpoint,
			Format:   outFormat,
			Voices:   voice.NewStaticLister("yandex", cfg.Voices),
		})
		if err != nil {
			if fatal {
				log.Fatalf("yandex voice provider init failed: %v", err)
			}
			log.Printf("yandex voice provider unavailable: %v", err)
			return false
		}
		provider = p
		log.Printf("voice provider: yandex speechkit (%s)", cfg.YandexEndpoint)
		return true
	}

	useMock := func(reason string) {
		provider = voice.NewMockProvider(voice.NewStaticLister("mock", cfg.Voices))
		log.Printf("voice provider: mock%s", reason)
	}

	switch providerMode {
	case "baidu":
		if !tryBaidu() {
			log.Fatalf("VOICE_PROVIDER=baidu but BAIDU_API_KEY or BAIDU_SECRET_KEY is not set")
		}
	case "elevenlabs":
		if !tryElevenLabs() {
			log.Fatalf("VOICE_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
		}
	case "yandex":
		_ = tryYandex(true)
	case "mock":
		useMock("")
	case "auto":
		if tryBaidu() || tryYandex(false) || tryElevenLabs() {
			break
		}
		useMock(" (no speech API credentials configured)")
	default:
		log.Fatalf("invalid VOICE_PROVIDER: %q (expected auto|baidu|elevenlabs|yandex|mock)", cfg.VoiceProvider)
	}

	if c, ok := provider.(interface{ Close() error }); ok {
		defer c.Close()
	}

	sessions := session.NewManager(cfg.SessionTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	synth := voice.NewRetrying(provider, cfg.SynthesisRetries+1, cfg.SynthesisRetryBase, 8*cfg.SynthesisRetryBase)
	generator := synthesis.NewGenerator(lib, synth, synthesis.Options{
		MaxBytes:     cfg.ChunkBytes,
		LegacyDrop:   cfg.LegacyDropOversized,
		ChunkTimeout: cfg.SynthesisChunkTimeout,
		Metrics:      metrics,
	})

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	jobs := synthesis.NewJobs(runCtx, generator, provider.Name(), metrics)

	api := httpapi.New(cfg, httpapi.Deps{
		Library:   lib,
		Records:   records,
		Auth:      gate,
		Sessions:  sessions,
		Catalog:   voice.NewCatalog(provider, cfg.VoiceCacheTTL),
		Generator: generator,
		Jobs:      jobs,
		Metrics:   metrics,
	})
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sessions.StartJanitor(runCtx, time.Minute)

	go func() {
		log.Printf("server listening on %s (books=%s audio=%s)", cfg.BindAddr, lib.BooksDir(), lib.AudioDir())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	// Running jobs finish the chunk in flight; the next one sees the
	// cancelled context.
	runCancel()
	if err := jobs.Wait(shutdownCtx); err != nil {
		log.Printf("synthesis jobs still running at exit: %v", err)
	}

	log.Printf("shutdown complete")
}

// baiduConfig maps settings onto the Baidu client. The provider keeps its own
// request limit; APP_CHUNK_BYTES only narrows it in the generator.
func baiduConfig(cfg config.Config, format audio.Format) voice.BaiduConfig {
	return voice.BaiduConfig{
		APIKey:    cfg.BaiduAPIKey,
		SecretKey: cfg.BaiduSecretKey,
		CUID:      cfg.BaiduCUID,
		TTSURL:    cfg.BaiduTTSURL,
		TokenURL:  cfg.BaiduTokenURL,
		Format:    format,
		MaxBytes:  cfg.BaiduMaxBytes,
		Voices:    voice.NewStaticLister("baidu", cfg.Voices),
	}
}
