package synthesis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/iradio/internal/audio"
	"github.com/ent0n29/iradio/internal/library"
	"github.com/ent0n29/iradio/internal/voice"
)

type fakeSynth struct {
	mu       sync.Mutex
	format   audio.Format
	maxBytes int
	texts    []string
	params   []voice.Params
	failAt   int
	failErr  error
	badAt    int
	gate     chan struct{}
}

func (f *fakeSynth) Name() string         { return "fake" }
func (f *fakeSynth) Format() audio.Format { return f.format }
func (f *fakeSynth) MaxChunkBytes() int   { return f.maxBytes }

func (f *fakeSynth) Synthesize(ctx context.Context, req voice.Request) ([]byte, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.texts = append(f.texts, req.Text)
	f.params = append(f.params, req.Params)
	n := len(f.texts)
	f.mu.Unlock()
	if n == f.failAt {
		return nil, f.failErr
	}
	if n == f.badAt {
		return []byte(`{"err_no":501,"err_msg":"bad param"}` + strings.Repeat(" ", 100)), nil
	}
	return audio.SilenceWAV(0.1, 8000)
}

func newFixture(t *testing.T, book, text string) *library.Library {
	t.Helper()
	root := t.TempDir()
	lib, err := library.New(filepath.Join(root, "Books"), filepath.Join(root, "Audio"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(lib.BooksDir(), book), []byte(text), 0o644))
	return lib
}

func TestGenerateWritesOrderedSegments(t *testing.T) {
	lib := newFixture(t, "novel.txt", "\ufeff第一句话。第二句话！第三句话？")
	synth := &fakeSynth{format: audio.FormatWAV, maxBytes: 20}
	g := NewGenerator(lib, synth, Options{MaxBytes: 1400})

	var progress []Progress
	files, err := g.Generate(context.Background(), Request{
		Book:     "novel.txt",
		Voice:    voice.Voice{ID: "0", Label: "女声"},
		Progress: func(p Progress) { progress = append(progress, p) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"novel_女声_seg001.wav",
		"novel_女声_seg002.wav",
		"novel_女声_seg003.wav",
	}, files)
	assert.Equal(t, []string{"第一句话。", "第二句话！", "第三句话？"}, synth.texts)
	for _, p := range synth.params {
		assert.Equal(t, voice.DefaultParams, p)
	}

	require.Len(t, progress, 4)
	assert.Equal(t, Progress{Total: 3}, progress[0])
	assert.Equal(t, 3, progress[3].Index)
	assert.InDelta(t, 0.1, progress[3].Seconds, 0.001)

	onDisk, err := lib.AudioFiles()
	require.NoError(t, err)
	assert.Equal(t, files, onDisk)
	assert.Equal(t, 20, g.MaxBytes())
}

func TestGenerateStopsAtTransportFailure(t *testing.T) {
	lib := newFixture(t, "b.txt", "One. Two. Three.")
	boom := errors.New("connection reset")
	synth := &fakeSynth{format: audio.FormatWAV, maxBytes: 5, failAt: 2, failErr: boom}
	g := NewGenerator(lib, synth, Options{})

	files, err := g.Generate(context.Background(), Request{Book: "b.txt", Voice: voice.Voice{ID: "v", Label: "v"}})
	var ce *ChunkError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, ce.Index)
	assert.Equal(t, KindTransport, ce.Kind)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"b_v_seg001.wav"}, files)
	assert.Len(t, synth.texts, 2, "no chunk after the failure is attempted")

	onDisk, err := lib.AudioFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"b_v_seg001.wav"}, onDisk, "earlier files are kept")
}

func TestGenerateRejectsNonAudioPayload(t *testing.T) {
	lib := newFixture(t, "b.txt", "One. Two.")
	synth := &fakeSynth{format: audio.FormatWAV, maxBytes: 5, badAt: 1}
	g := NewGenerator(lib, synth, Options{})

	files, err := g.Generate(context.Background(), Request{Book: "b.txt", Voice: voice.Voice{ID: "v", Label: "v"}})
	var ce *ChunkError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Index)
	assert.Equal(t, KindValidation, ce.Kind)
	assert.Equal(t, []byte(`{"er`), ce.Prefix)
	assert.ErrorIs(t, err, audio.ErrBadSignature)
	assert.Empty(t, files)
}

func TestGenerateEmptyBook(t *testing.T) {
	lib := newFixture(t, "empty.txt", "  \n ")
	g := NewGenerator(lib, &fakeSynth{format: audio.FormatWAV}, Options{})

	_, err := g.Generate(context.Background(), Request{Book: "empty.txt", Voice: voice.Voice{ID: "v"}})
	assert.ErrorIs(t, err, ErrNoChunks)

	_, err = g.Generate(context.Background(), Request{Book: "empty.txt"})
	assert.ErrorIs(t, err, voice.ErrVoiceRequired)
}

func TestJobsRunToCompletionAndDeduplicate(t *testing.T) {
	lib := newFixture(t, "b.txt", "One. Two.")
	gate := make(chan struct{})
	synth := &fakeSynth{format: audio.FormatWAV, maxBytes: 5, gate: gate}
	jobs := NewJobs(context.Background(), NewGenerator(lib, synth, Options{}), "fake", nil)

	v := voice.Voice{ID: "v", Label: "v"}
	job, existing := jobs.Start("b.txt", v)
	require.False(t, existing)
	again, existing := jobs.Start("b.txt", v)
	assert.True(t, existing)
	assert.Equal(t, job.ID(), again.ID())

	events, cancel := job.Subscribe()
	defer cancel()
	close(gate)

	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	snap, err := job.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.TotalChunks)
	assert.Equal(t, 2, snap.DoneChunks)
	assert.Equal(t, []string{"b_v_seg001.wav", "b_v_seg002.wav"}, snap.Files)
	assert.InDelta(t, 0.2, snap.AudioSecs, 0.001)
	require.NotNil(t, snap.EndedAt)

	var last Event
	for evt := range events {
		last = evt
	}
	assert.Equal(t, "completed", last.Type)

	next, existing := jobs.Start("b.txt", v)
	assert.False(t, existing, "a finished job does not block a new run")
	assert.NotEqual(t, job.ID(), next.ID())
	require.NoError(t, jobs.Wait(ctx))

	got, err := jobs.Get(job.ID())
	require.NoError(t, err)
	assert.Equal(t, job.ID(), got.ID())
	_, err = jobs.Get("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Len(t, jobs.List(), 2)
}

func TestJobsDeliverFinalEventToSlowSubscriber(t *testing.T) {
	var text strings.Builder
	for i := 0; i < 100; i++ {
		text.WriteString("Line. ")
	}
	lib := newFixture(t, "long.txt", text.String())
	gate := make(chan struct{})
	synth := &fakeSynth{format: audio.FormatWAV, maxBytes: 6, gate: gate}
	jobs := NewJobs(context.Background(), NewGenerator(lib, synth, Options{}), "fake", nil)

	job, _ := jobs.Start("long.txt", voice.Voice{ID: "v", Label: "v"})
	events, cancel := job.Subscribe()
	defer cancel()
	close(gate)

	select {
	case <-job.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("job did not finish")
	}
	snap := job.Snapshot()
	require.Equal(t, StatusCompleted, snap.Status)
	require.Equal(t, 100, snap.TotalChunks)

	var (
		last  Event
		count int
	)
	for evt := range events {
		last = evt
		count++
	}
	assert.Equal(t, "completed", last.Type)
	assert.Equal(t, 100, last.Job.DoneChunks)
	assert.LessOrEqual(t, count, 64)
}

func TestJobsRecordFailure(t *testing.T) {
	lib := newFixture(t, "b.txt", "One. Two.")
	synth := &fakeSynth{format: audio.FormatWAV, maxBytes: 5, failAt: 2, failErr: errors.New("503")}
	jobs := NewJobs(context.Background(), NewGenerator(lib, synth, Options{}), "fake", nil)

	job, _ := jobs.Start("b.txt", voice.Voice{ID: "v", Label: "v"})
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, 2, snap.FailedIndex)
	assert.Equal(t, "transport", snap.FailureKind)
	assert.Equal(t, []string{"b_v_seg001.wav"}, snap.Files)

	events, _ := job.Subscribe()
	evt, ok := <-events
	require.True(t, ok)
	assert.Equal(t, "failed", evt.Type)
	_, ok = <-events
	assert.False(t, ok)
}
