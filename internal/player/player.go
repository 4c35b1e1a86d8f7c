// Package player resolves which file to play and where to start, from the
// f and t_live query parameters and the stored playback record.
package player

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/ent0n29/iradio/internal/playback"
)

// LiveParam is the query parameter the browser keeps in sync with the
// audio element's current time.
const LiveParam = "t_live"

// FileParam selects the current file.
const FileParam = "f"

var ErrEmptyPlaylist = errors.New("no audio files")

// ParseLive reads a t_live value in seconds. Anything unparsable, negative or
// non-finite is 0.
func ParseLive(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// StartPosition prefers a positive live value, then the stored position.
func StartPosition(tLive string, rec *playback.Record) float64 {
	if v := ParseLive(tLive); v > 0 {
		return v
	}
	if rec != nil && rec.LastPosition > 0 && !math.IsInf(rec.LastPosition, 0) {
		return rec.LastPosition
	}
	return 0
}

// Target is where a navigation lands. TLive is always "0" so the new file
// never inherits the previous file's position.
type Target struct {
	F     string `json:"f"`
	TLive string `json:"t_live"`
}

// Playlist is the sorted list of playable files.
type Playlist struct {
	files []string
	index map[string]int
}

func NewPlaylist(files []string) *Playlist {
	p := &Playlist{files: append([]string(nil), files...), index: make(map[string]int, len(files))}
	for i, f := range p.files {
		p.index[f] = i
	}
	return p
}

func (p *Playlist) Len() int { return len(p.files) }

func (p *Playlist) Files() []string { return append([]string(nil), p.files...) }

// Resolve returns f when listed, else the first file.
func (p *Playlist) Resolve(f string) (string, error) {
	if len(p.files) == 0 {
		return "", ErrEmptyPlaylist
	}
	if _, ok := p.index[f]; ok {
		return f, nil
	}
	return p.files[0], nil
}

// Step moves delta positions from f with wraparound in both directions.
func (p *Playlist) Step(f string, delta int) (string, error) {
	cur, err := p.Resolve(f)
	if err != nil {
		return "", err
	}
	n := len(p.files)
	i := ((p.index[cur]+delta)%n + n) % n
	return p.files[i], nil
}

func (p *Playlist) Next(f string) (string, error) { return p.Step(f, 1) }
func (p *Playlist) Prev(f string) (string, error) { return p.Step(f, -1) }

// Navigate builds the target for a step, resetting the live position.
func (p *Playlist) Navigate(f string, delta int) (Target, error) {
	next, err := p.Step(f, delta)
	if err != nil {
		return Target{}, err
	}
	return Target{F: next, TLive: "0"}, nil
}

// State is everything the player page needs for one file.
type State struct {
	File          string           `json:"file"`
	StartPosition float64          `json:"start_position"`
	Index         int              `json:"index"`
	Total         int              `json:"total"`
	Prev          Target           `json:"prev"`
	Next          Target           `json:"next"`
	Record        *playback.Record `json:"record,omitempty"`
}

// Build resolves f and computes the start position and neighbours. rec is
// the stored record for the resolved file, or nil; lookup is called with the
// resolved name.
func (p *Playlist) Build(f, tLive string, lookup func(string) (*playback.Record, error)) (State, error) {
	cur, err := p.Resolve(f)
	if err != nil {
		return State{}, err
	}
	// A live value only belongs to the file it was observed on.
	if cur != f {
		tLive = ""
	}
	var rec *playback.Record
	if lookup != nil {
		rec, err = lookup(cur)
		if err != nil {
			return State{}, err
		}
	}
	prev, _ := p.Navigate(cur, -1)
	next, _ := p.Navigate(cur, 1)
	return State{
		File:          cur,
		StartPosition: StartPosition(tLive, rec),
		Index:         p.index[cur],
		Total:         len(p.files),
		Prev:          prev,
		Next:          next,
		Record:        rec,
	}, nil
}
