// Package library is the flat-directory store for source books and the audio
// segments synthesized from them.
package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ent0n29/iradio/internal/audio"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidName = errors.New("invalid file name")
)

// Library reads books from one directory and keeps audio in another.
type Library struct {
	booksDir string
	audioDir string
}

func New(booksDir, audioDir string) (*Library, error) {
	for _, dir := range []string{booksDir, audioDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return &Library{booksDir: booksDir, audioDir: audioDir}, nil
}

func (l *Library) BooksDir() string { return l.booksDir }
func (l *Library) AudioDir() string { return l.audioDir }

// Books lists the .txt files of the books directory, sorted by name.
func (l *Library) Books() ([]string, error) {
	return listFiles(l.booksDir, func(name string) bool {
		return strings.EqualFold(filepath.Ext(name), ".txt")
	})
}

// ReadBook returns the text of a book.
func (l *Library) ReadBook(name string) (string, error) {
	path, err := l.bookPath(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("book %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read book %q: %w", name, err)
	}
	return string(data), nil
}

// AudioFiles lists playable segments sorted lexicographically; this order is
// the playlist order.
func (l *Library) AudioFiles() ([]string, error) {
	return listFiles(l.audioDir, IsAudioFile)
}

// IsAudioFile reports whether name carries a playable extension.
func IsAudioFile(name string) bool {
	_, err := audio.ParseFormat(filepath.Ext(name))
	return err == nil
}

// AudioPath resolves a segment name inside the audio directory.
func (l *Library) AudioPath(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if !IsAudioFile(name) {
		return "", fmt.Errorf("%w: %q is not an audio file", ErrInvalidName, name)
	}
	path := filepath.Join(l.audioDir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("audio %q: %w", name, ErrNotFound)
		}
		return "", err
	}
	return path, nil
}

// WriteSegment stores one synthesized payload, replacing any file of the
// same name.
func (l *Library) WriteSegment(name string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	path := filepath.Join(l.audioDir, name)
	tmp, err := os.CreateTemp(l.audioDir, ".seg-*")
	if err != nil {
		return "", fmt.Errorf("write segment %q: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write segment %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write segment %q: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write segment %q: %w", name, err)
	}
	return path, nil
}

// SegmentName builds "{base}_{voice}_seg{NNN}.{ext}" for the 1-based index.
// Both parts are escaped so that "_" only ever appears as the separator and
// distinct (book, voice) pairs never share a name.
func SegmentName(book, voiceLabel string, index int, f audio.Format) string {
	base := strings.TrimSuffix(filepath.Base(book), filepath.Ext(book))
	return fmt.Sprintf("%s_%s_seg%03d.%s", escapePart(base), escapePart(voiceLabel), index, f.Ext())
}

func (l *Library) bookPath(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(name), ".txt") {
		return "", fmt.Errorf("%w: %q is not a .txt book", ErrInvalidName, name)
	}
	return filepath.Join(l.booksDir, name), nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

var partEscaper = strings.NewReplacer(
	"%", "%25",
	"_", "%5F",
	"/", "%2F",
	`\`, "%5C",
	":", "%3A",
	"\x00", "%00",
)

func escapePart(s string) string {
	s = partEscaper.Replace(s)
	// A leading dot would hide the file from listings.
	if strings.HasPrefix(s, ".") {
		s = "%2E" + s[1:]
	}
	return s
}

func listFiles(dir string, keep func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !keep(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}
