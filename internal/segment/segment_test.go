package segment_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/iradio/internal/segment"
)

func TestSplitPacksSentencesIntoOneChunk(t *testing.T) {
	t.Parallel()

	res := segment.Split("今天天气好。明天也不错！", 1000, segment.Options{})
	require.Equal(t, []string{"今天天气好。明天也不错！"}, res.Chunks)
	assert.Empty(t, res.Oversized)
	assert.Empty(t, res.Dropped)
}

func TestSplitClosesChunkWhenNextSentenceDoesNotFit(t *testing.T) {
	t.Parallel()

	first := "今天天气好。"
	second := "明天也不错！"
	budget := len(first) + len(second) - 1

	res := segment.Split(first+second, budget, segment.Options{})
	require.Equal(t, []string{first, second}, res.Chunks)
}

func TestSplitEmptyInput(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   \n\t", "\ufeff  "} {
		res := segment.Split(in, 100, segment.Options{})
		assert.Empty(t, res.Chunks, "input %q", in)
		assert.Empty(t, res.Dropped, "input %q", in)
	}
}

func TestSplitDiscardsSentencesWithoutContent(t *testing.T) {
	t.Parallel()

	res := segment.Split("Hello there. ... !!! ？ Bye.", 100, segment.Options{})
	require.Equal(t, []string{"Hello there.Bye."}, res.Chunks)
}

func TestSplitTextWithoutTerminators(t *testing.T) {
	t.Parallel()

	res := segment.Split("no terminators here", 100, segment.Options{})
	require.Equal(t, []string{"no terminators here"}, res.Chunks)

	long := strings.Repeat("a", 50)
	res = segment.Split(long, 10, segment.Options{LegacyDrop: true})
	assert.Empty(t, res.Chunks)
	assert.Equal(t, []string{long}, res.Dropped)
}

func TestSplitPunctuationOnlyTextKeepsLegacyAsymmetry(t *testing.T) {
	t.Parallel()

	res := segment.Split("……", 100, segment.Options{})
	require.Equal(t, []string{"……"}, res.Chunks)

	res = segment.Split(strings.Repeat("…", 40), 10, segment.Options{})
	assert.Empty(t, res.Chunks)
	assert.Len(t, res.Dropped, 1)
}

func TestSplitOversizedSentence(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 30) + "."
	text := "Short one. " + long + " Tail."

	res := segment.Split(text, 20, segment.Options{})
	require.Equal(t, []string{"Short one.", long, "Tail."}, res.Chunks)
	assert.Equal(t, []string{long}, res.Oversized)

	res = segment.Split(text, 20, segment.Options{LegacyDrop: true})
	require.Equal(t, []string{"Short one.", "Tail."}, res.Chunks)
	assert.Equal(t, []string{long}, res.Dropped)
}

func TestSplitChunksRespectBudgetAndPreserveContent(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("第一句话很短。Second sentence is English! 第三句？\n", 40)
	for _, budget := range []int{40, 64, 100, 333, 1400} {
		res := segment.Split(text, budget, segment.Options{})
		require.NotEmpty(t, res.Chunks)
		for _, c := range res.Chunks {
			assert.LessOrEqual(t, len(c), budget)
		}

		var want strings.Builder
		for _, s := range segment.Sentences(text) {
			if segment.HasContent(s) {
				want.WriteString(segment.Normalize(s))
			}
		}
		assert.Equal(t, want.String(), segment.Normalize(strings.Join(res.Chunks, "")), "budget %d", budget)
	}
}

func TestSentences(t *testing.T) {
	t.Parallel()

	got := segment.Sentences("A. B!! C？ tail")
	require.Equal(t, []string{"A.", "B!", "!", "C？", "tail"}, got)
}
