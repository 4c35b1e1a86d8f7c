package playback

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

type DayCount struct {
	Date  string `json:"date"`
	Plays int    `json:"plays"`
}

// Stats summarizes the library for the statistics page.
type Stats struct {
	TotalFiles     int        `json:"total_files"`
	PlayedFiles    int        `json:"played_files"`
	TotalPlays     int        `json:"total_plays"`
	CompletedFiles int        `json:"completed_files"`
	CompletionRate float64    `json:"completion_rate"`
	TotalPlayTime  float64    `json:"total_play_time"`
	PlaysByDay     []DayCount `json:"plays_by_day"`
}

// Entry is one record with its filename, as listed and exported.
type Entry struct {
	File string `json:"file"`
	Record
}

// UnmarshalJSON keeps File, which the promoted Record decoder would drop.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var head struct {
		File string `json:"file"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	if err := e.Record.UnmarshalJSON(data); err != nil {
		return err
	}
	e.File = head.File
	return nil
}

// Summarize computes counters over records; the completion rate is relative
// to the audio files currently on disk.
func Summarize(records map[string]Record, audioFiles []string) Stats {
	st := Stats{TotalFiles: len(audioFiles), PlaysByDay: []DayCount{}}
	days := map[string]int{}
	for _, r := range records {
		if r.PlayCount > 0 {
			st.PlayedFiles++
		}
		st.TotalPlays += r.PlayCount
		st.TotalPlayTime += r.TotalPlayTime
		if r.Completed {
			st.CompletedFiles++
		}
		if !r.LastPlayed.IsZero() {
			days[r.LastPlayed.Local().Format("2006-01-02")]++
		}
	}
	if st.TotalFiles > 0 {
		st.CompletionRate = float64(st.CompletedFiles) / float64(st.TotalFiles) * 100
	}
	for d, n := range days {
		st.PlaysByDay = append(st.PlaysByDay, DayCount{Date: d, Plays: n})
	}
	sort.Slice(st.PlaysByDay, func(i, j int) bool { return st.PlaysByDay[i].Date < st.PlaysByDay[j].Date })
	return st
}

// Entries orders records by last_played, most recent first.
func Entries(records map[string]Record) []Entry {
	out := make([]Entry, 0, len(records))
	for f, r := range records {
		out = append(out, Entry{File: f, Record: r})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastPlayed.Equal(out[j].LastPlayed) {
			return out[i].LastPlayed.After(out[j].LastPlayed)
		}
		return out[i].File < out[j].File
	})
	return out
}

var csvHeader = []string{"file", "play_count", "last_played", "last_position", "duration", "completed"}

// WriteCSV exports records sorted like Entries.
func WriteCSV(w io.Writer, records map[string]Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range Entries(records) {
		lastPlayed := ""
		if !e.LastPlayed.IsZero() {
			lastPlayed = e.LastPlayed.Local().Format("2006-01-02 15:04")
		}
		row := []string{
			e.File,
			strconv.Itoa(e.PlayCount),
			lastPlayed,
			strconv.FormatFloat(e.LastPosition, 'f', 1, 64),
			strconv.FormatFloat(e.Duration, 'f', 1, 64),
			strconv.FormatBool(e.Completed),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// ExportFilename is the download name for a CSV export made at t.
func ExportFilename(t time.Time) string {
	return "playback_records_" + t.Format("20060102_150405") + ".csv"
}
