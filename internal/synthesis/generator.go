// Package synthesis turns a book into numbered audio segments and tracks the
// background jobs that do so.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/iradio/internal/audio"
	"github.com/ent0n29/iradio/internal/library"
	"github.com/ent0n29/iradio/internal/observability"
	"github.com/ent0n29/iradio/internal/segment"
	"github.com/ent0n29/iradio/internal/voice"
)

// ErrNoChunks means the book produced nothing to synthesize.
var ErrNoChunks = errors.New("book has no speakable text")

type ChunkErrorKind string

const (
	KindTransport  ChunkErrorKind = "transport"
	KindValidation ChunkErrorKind = "validation"
	KindStorage    ChunkErrorKind = "storage"
)

// ChunkError aborts a batch at the 1-based chunk Index. Prefix holds the first
// bytes of a rejected payload.
type ChunkError struct {
	Index  int
	Kind   ChunkErrorKind
	Prefix []byte
	Err    error
}

func (e *ChunkError) Error() string {
	if e.Kind == KindValidation {
		return fmt.Sprintf("chunk %d: %s failure (prefix %q): %v", e.Index, e.Kind, e.Prefix, e.Err)
	}
	return fmt.Sprintf("chunk %d: %s failure: %v", e.Index, e.Kind, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Progress is reported once after segmentation (Index 0) and after every
// written segment.
type Progress struct {
	Index int
	Total int
	File  string
	// Seconds is the decoded length of the segment, 0 when unknown.
	Seconds float64
}

type Request struct {
	Book     string
	Voice    voice.Voice
	Progress func(Progress)
}

type Options struct {
	MaxBytes     int
	LegacyDrop   bool
	ChunkTimeout time.Duration
	Params       voice.Params
	Metrics      *observability.Metrics
}

// Generator synthesizes a book chunk by chunk, in order, with one provider.
type Generator struct {
	lib   *library.Library
	synth voice.Synthesizer
	opts  Options
}

func NewGenerator(lib *library.Library, synth voice.Synthesizer, opts Options) *Generator {
	if opts.Params == (voice.Params{}) {
		opts.Params = voice.DefaultParams
	}
	if opts.ChunkTimeout <= 0 {
		opts.ChunkTimeout = 90 * time.Second
	}
	return &Generator{lib: lib, synth: synth, opts: opts}
}

// Format is the container every segment is written in.
func (g *Generator) Format() audio.Format { return g.synth.Format() }

// Provider names the synthesizer backing this generator.
func (g *Generator) Provider() string { return g.synth.Name() }

// MaxBytes is the chunk budget: the configured limit capped by the provider's.
func (g *Generator) MaxBytes() int {
	limit := g.opts.MaxBytes
	if p := g.synth.MaxChunkBytes(); p > 0 && (limit <= 0 || p < limit) {
		limit = p
	}
	if limit <= 0 {
		limit = segment.DefaultMaxBytes
	}
	return limit
}

// Plan segments a book without calling the provider.
func (g *Generator) Plan(book string) (segment.Result, error) {
	text, err := g.lib.ReadBook(book)
	if err != nil {
		return segment.Result{}, err
	}
	return segment.Split(text, g.MaxBytes(), segment.Options{LegacyDrop: g.opts.LegacyDrop}), nil
}

// Generate writes one file per chunk and returns their names in order. The
// first failure aborts the batch; files already written stay on disk.
func (g *Generator) Generate(ctx context.Context, req Request) ([]string, error) {
	if req.Voice.ID == "" {
		return nil, voice.ErrVoiceRequired
	}
	plan, err := g.Plan(req.Book)
	if err != nil {
		return nil, err
	}
	for _, s := range plan.Oversized {
		log.Printf("synthesis %s: sentence over %d byte budget sent as its own chunk (%d bytes): %s", req.Book, g.MaxBytes(), len(s), preview(s))
	}
	for _, s := range plan.Dropped {
		log.Printf("synthesis %s: dropped text (%d bytes): %s", req.Book, len(s), preview(s))
	}
	g.opts.Metrics.ObserveSkipped("oversized", len(plan.Oversized))
	g.opts.Metrics.ObserveSkipped("dropped", len(plan.Dropped))
	if len(plan.Chunks) == 0 {
		return nil, ErrNoChunks
	}

	total := len(plan.Chunks)
	report(req.Progress, Progress{Total: total})
	label := req.Voice.Label
	if label == "" {
		label = req.Voice.ID
	}
	format := g.synth.Format()
	files := make([]string, 0, total)
	for i, chunk := range plan.Chunks {
		idx := i + 1
		data, err := g.synthesize(ctx, chunk, req.Voice.ID)
		if err != nil {
			g.opts.Metrics.ObserveChunkFailure(g.synth.Name(), string(KindTransport))
			log.Printf("synthesis %s: chunk %d/%d transport failure: %v", req.Book, idx, total, err)
			return files, &ChunkError{Index: idx, Kind: KindTransport, Err: err}
		}
		if err := audio.Validate(data, format); err != nil {
			g.opts.Metrics.ObserveChunkFailure(g.synth.Name(), string(KindValidation))
			log.Printf("synthesis %s: chunk %d/%d rejected: %v", req.Book, idx, total, err)
			return files, &ChunkError{Index: idx, Kind: KindValidation, Prefix: audio.Prefix(data), Err: err}
		}
		name := library.SegmentName(req.Book, label, idx, format)
		if _, err := g.lib.WriteSegment(name, data); err != nil {
			return files, &ChunkError{Index: idx, Kind: KindStorage, Err: err}
		}
		files = append(files, name)
		secs, _ := audio.Duration(data, format)
		report(req.Progress, Progress{Index: idx, Total: total, File: name, Seconds: secs})
	}
	return files, nil
}

func (g *Generator) synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.ChunkTimeout)
	defer cancel()
	start := time.Now()
	data, err := g.synth.Synthesize(ctx, voice.Request{Text: text, VoiceID: voiceID, Params: g.opts.Params})
	if err == nil {
		g.opts.Metrics.ObserveChunk(g.synth.Name(), time.Since(start))
	}
	return data, err
}

func report(fn func(Progress), p Progress) {
	if fn != nil {
		fn(p)
	}
}

func preview(s string) string {
	const max = 40
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "…"
}
