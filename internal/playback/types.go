// Package playback persists per-file listening progress.
package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Status selects how Upsert changes counters.
type Status string

const (
	StatusPlaying   Status = "playing"
	StatusCompleted Status = "completed"
	StatusReset     Status = "reset"
)

// Record is the listening state of one audio file. JSON names are the
// on-disk format of the records file.
type Record struct {
	LastPlayed    time.Time `json:"last_played"`
	PlayCount     int       `json:"play_count"`
	TotalPlayTime float64   `json:"total_play_time"`
	LastPosition  float64   `json:"last_position"`
	Duration      float64   `json:"duration"`
	Completed     bool      `json:"completed"`
}

// UnmarshalJSON also accepts naive ISO timestamps without a zone, read as
// local time, as found in older records files.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var raw struct {
		plain
		LastPlayed string `json:"last_played"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record(raw.plain)
	if raw.LastPlayed == "" {
		r.LastPlayed = time.Time{}
		return nil
	}
	t, err := parseTimestamp(raw.LastPlayed)
	if err != nil {
		return err
	}
	r.LastPlayed = t
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid last_played %q", s)
}

// Update is one upsert request.
type Update struct {
	File     string
	Position float64
	Duration float64
	Status   Status
}

// Store persists playback records keyed by audio filename.
type Store interface {
	Get(ctx context.Context, file string) (Record, bool, error)
	Upsert(ctx context.Context, u Update) (Record, error)
	List(ctx context.Context) (map[string]Record, error)
	Clear(ctx context.Context) error
	Close() error
}

// apply mutates rec for u at time now. A missing record starts zeroed.
func apply(rec Record, u Update, now time.Time) Record {
	pos := sanitizeSeconds(u.Position)
	rec.LastPlayed = now
	switch u.Status {
	case StatusPlaying:
		if pos > rec.LastPosition {
			rec.TotalPlayTime += pos - rec.LastPosition
		}
		rec.LastPosition = pos
		rec.PlayCount++
	case StatusCompleted:
		rec.LastPosition = pos
		rec.Completed = true
		rec.PlayCount++
	default:
		// Reset, and any status the store does not know, rewinds without
		// counting a play.
		rec.LastPosition = 0
	}
	if d := sanitizeSeconds(u.Duration); d > 0 {
		rec.Duration = d
	}
	return rec
}

func sanitizeSeconds(v float64) float64 {
	// NaN fails every comparison.
	if !(v > 0) || v > 1e9 {
		return 0
	}
	return v
}
