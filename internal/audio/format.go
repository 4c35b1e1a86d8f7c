package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// Format is an output container produced by a synthesizer.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
	FormatOGG Format = "ogg"
)

// MinPayloadBytes is the smallest payload accepted as real audio.
const MinPayloadBytes = 100

var (
	ErrPayloadTooShort = errors.New("audio payload too short")
	ErrBadSignature    = errors.New("audio payload signature mismatch")
	ErrUnknownFormat   = errors.New("unknown audio format")
)

// ParseFormat maps a file extension or format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "mp3", "mpeg":
		return FormatMP3, nil
	case "wav", "wave":
		return FormatWAV, nil
	case "ogg", "opus":
		return FormatOGG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Ext returns the file extension without a dot.
func (f Format) Ext() string { return string(f) }

// MIME returns the Content-Type used when serving the format.
func (f Format) MIME() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	case FormatOGG:
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// Validate checks a synthesized payload's length and leading magic bytes.
func Validate(data []byte, f Format) error {
	if len(data) < MinPayloadBytes {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooShort, len(data))
	}
	if !HasSignature(data, f) {
		return fmt.Errorf("%w: want %s, prefix %q", ErrBadSignature, f, Prefix(data))
	}
	return nil
}

// HasSignature reports whether data starts like a file of format f.
func HasSignature(data []byte, f Format) bool {
	switch f {
	case FormatMP3:
		if bytes.HasPrefix(data, []byte("ID3")) {
			return true
		}
		// MPEG audio frame sync: 11 set bits.
		return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
	case FormatWAV:
		return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
	case FormatOGG:
		return bytes.HasPrefix(data, []byte("OggS"))
	default:
		return false
	}
}

// Prefix returns the first four bytes of data for diagnostics.
func Prefix(data []byte) []byte {
	if len(data) > 4 {
		return data[:4]
	}
	return data
}

// Duration returns the playback length in seconds of an MP3 or PCM WAV
// payload. OGG is not probed and yields 0.
func Duration(data []byte, f Format) (float64, error) {
	switch f {
	case FormatMP3:
		dec, err := mp3.NewDecoder(bytes.NewReader(data))
		if err != nil {
			return 0, fmt.Errorf("decode mp3: %w", err)
		}
		// go-mp3 decodes to 16-bit stereo: 4 bytes per sample frame.
		n := dec.Length()
		if n <= 0 || dec.SampleRate() <= 0 {
			return 0, nil
		}
		return float64(n) / float64(4*dec.SampleRate()), nil
	case FormatWAV:
		return wavDuration(data)
	default:
		return 0, nil
	}
}

func wavDuration(data []byte) (float64, error) {
	if !HasSignature(data, FormatWAV) {
		return 0, ErrBadSignature
	}
	var byteRate uint32
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := binary.LittleEndian.Uint32(data[off+4 : off+8])
		body := off + 8
		switch id {
		case "fmt ":
			if body+12 > len(data) {
				return 0, fmt.Errorf("truncated fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return 0, fmt.Errorf("data chunk before fmt chunk")
			}
			avail := uint32(len(data) - body)
			if size > avail {
				size = avail
			}
			return float64(size) / float64(byteRate), nil
		}
		off = body + int(size) + int(size%2)
	}
	return 0, fmt.Errorf("wav data chunk not found")
}
