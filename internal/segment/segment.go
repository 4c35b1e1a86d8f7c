// Package segment splits book text into sentence-aligned chunks that fit a
// TTS provider's request byte limit.
package segment

import (
	"strings"
	"unicode"
)

// DefaultMaxBytes is the budget used when callers pass a non-positive limit.
const DefaultMaxBytes = 1800

// Options tunes Split.
type Options struct {
	// LegacyDrop discards sentences that alone exceed the budget instead of
	// emitting them as oversized chunks.
	LegacyDrop bool
}

// Result is the outcome of Split.
type Result struct {
	Chunks []string
	// Oversized lists chunks emitted above the budget (single sentences).
	Oversized []string
	// Dropped lists content that was not emitted at all.
	Dropped []string
}

// Split segments text into ordered chunks of at most maxBytes UTF-8 bytes.
func Split(text string, maxBytes int, opts Options) Result {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	text = strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	if text == "" {
		return Result{}
	}

	sentences := speakable(Sentences(text))
	if len(sentences) == 0 {
		if len(text) <= maxBytes {
			return Result{Chunks: []string{text}}
		}
		return Result{Dropped: []string{text}}
	}

	var (
		res    Result
		buf    strings.Builder
		bufLen int
	)
	flush := func() {
		if bufLen > 0 {
			res.Chunks = append(res.Chunks, buf.String())
			buf.Reset()
			bufLen = 0
		}
	}
	for _, sent := range sentences {
		n := len(sent)
		if n > maxBytes {
			flush()
			if opts.LegacyDrop {
				res.Dropped = append(res.Dropped, sent)
				continue
			}
			res.Chunks = append(res.Chunks, sent)
			res.Oversized = append(res.Oversized, sent)
			continue
		}
		if bufLen+n > maxBytes {
			flush()
		}
		buf.WriteString(sent)
		bufLen += n
	}
	flush()
	return res
}

// Sentences cuts text after every terminator in 。！？.!? and trims each piece.
// A trailing piece without a terminator is kept. Empty pieces are skipped.
func Sentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if !isTerminator(r) {
			continue
		}
		end := i + len(string(r))
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func speakable(sentences []string) []string {
	out := sentences[:0]
	for _, s := range sentences {
		if HasContent(s) {
			out = append(out, s)
		}
	}
	return out
}

// HasContent reports whether s holds an ASCII letter, digit or CJK ideograph.
func HasContent(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return true
		case r >= '\u4e00' && r <= '\u9fa5':
			return true
		}
	}
	return false
}

func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '.', '!', '?':
		return true
	}
	return false
}

// Normalize drops all whitespace; used to compare chunk content with source.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
