package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ent0n29/iradio/internal/audio"
	"github.com/ent0n29/iradio/internal/config"
	"github.com/ent0n29/iradio/internal/library"
	"github.com/ent0n29/iradio/internal/synthesis"
	"github.com/ent0n29/iradio/internal/voice"
)

func TestBaiduChunkBudgetIsCappedByProviderLimit(t *testing.T) {
	root := t.TempDir()
	lib, err := library.New(filepath.Join(root, "Books"), filepath.Join(root, "Audio"))
	if err != nil {
		t.Fatalf("library.New() error = %v", err)
	}

	cases := []struct {
		name       string
		chunkBytes int
		baiduMax   int
		want       int
	}{
		{name: "large chunk budget", chunkBytes: 4000, want: 1400},
		{name: "small chunk budget", chunkBytes: 800, want: 800},
		{name: "explicit provider limit", chunkBytes: 4000, baiduMax: 1000, want: 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Config{
				ChunkBytes:     tc.chunkBytes,
				BaiduMaxBytes:  tc.baiduMax,
				BaiduAPIKey:    "key",
				BaiduSecretKey: "secret",
				Voices:         config.DefaultVoices(),
			}
			provider := voice.NewBaiduProvider(baiduConfig(cfg, audio.FormatMP3))
			synth := voice.NewRetrying(provider, 1, time.Millisecond, time.Millisecond)
			gen := synthesis.NewGenerator(lib, synth, synthesis.Options{MaxBytes: cfg.ChunkBytes})
			if got := gen.MaxBytes(); got != tc.want {
				t.Fatalf("MaxBytes() = %d, want %d", got, tc.want)
			}
		})
	}
}
