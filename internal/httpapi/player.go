package httpapi

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ent0n29/iradio/internal/audio"
	"github.com/ent0n29/iradio/internal/library"
	"github.com/ent0n29/iradio/internal/playback"
	"github.com/ent0n29/iradio/internal/player"
)

type positionRequest struct {
	F        string  `json:"f"`
	TLive    string  `json:"t_live"`
	Duration float64 `json:"duration"`
}

type positionResponse struct {
	File   string          `json:"file"`
	Saved  bool            `json:"saved"`
	Record playback.Record `json:"record"`
}

func (s *Server) handleListAudio(w http.ResponseWriter, _ *http.Request) {
	files, err := s.library.AudioFiles()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleServeAudio(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get(player.FileParam)
	path, err := s.library.AudioPath(name)
	if err != nil {
		respondLibraryError(w, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if format, err := audio.ParseFormat(filepath.Ext(name)); err == nil {
		w.Header().Set("Content-Type", format.MIME())
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handlePlayerState(w http.ResponseWriter, r *http.Request) {
	files, err := s.library.AudioFiles()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	q := r.URL.Query()
	pl := player.NewPlaylist(files)
	state, err := pl.Build(q.Get(player.FileParam), q.Get(player.LiveParam), func(f string) (*playback.Record, error) {
		rec, ok, err := s.records.Get(r.Context(), f)
		if err != nil || !ok {
			return nil, err
		}
		return &rec, nil
	})
	if errors.Is(err, player.ErrEmptyPlaylist) {
		respondError(w, http.StatusNotFound, "no_audio", "no audio files yet; synthesize a book first")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// handleSavePosition persists the t_live value the client read at click time.
// A zero position is not saved.
func (s *Server) handleSavePosition(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePosition(w, r)
	if !ok {
		return
	}
	pos := player.ParseLive(req.TLive)
	if pos <= 0 {
		rec, _, err := s.records.Get(r.Context(), req.F)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		respondJSON(w, http.StatusOK, positionResponse{File: req.F, Saved: false, Record: rec})
		return
	}
	s.upsert(w, r, playback.Update{File: req.F, Position: pos, Duration: req.Duration, Status: playback.StatusPlaying})
}

func (s *Server) handleResetPosition(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePosition(w, r)
	if !ok {
		return
	}
	s.upsert(w, r, playback.Update{File: req.F, Duration: req.Duration, Status: playback.StatusReset})
}

func (s *Server) handleMarkComplete(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePosition(w, r)
	if !ok {
		return
	}
	s.upsert(w, r, playback.Update{File: req.F, Duration: req.Duration, Status: playback.StatusCompleted})
}

func (s *Server) handleRecordPlay(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePosition(w, r)
	if !ok {
		return
	}
	s.upsert(w, r, playback.Update{File: req.F, Position: player.ParseLive(req.TLive), Duration: req.Duration, Status: playback.StatusPlaying})
}

func (s *Server) decodePosition(w http.ResponseWriter, r *http.Request) (positionRequest, bool) {
	var req positionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return req, false
	}
	req.F = strings.TrimSpace(req.F)
	if _, err := s.library.AudioPath(req.F); err != nil {
		respondLibraryError(w, err)
		return req, false
	}
	return req, true
}

func (s *Server) upsert(w http.ResponseWriter, r *http.Request, u playback.Update) {
	rec, err := s.records.Upsert(r.Context(), u)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	s.metrics.ObservePlayback(string(u.Status))
	respondJSON(w, http.StatusOK, positionResponse{File: u.File, Saved: true, Record: rec})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.records.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": playback.Entries(records)})
}

func (s *Server) handleClearRecords(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Clear(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	records, err := s.records.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	files, err := s.library.AudioFiles()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"summary": playback.Summarize(records, files),
		"records": playback.Entries(records),
	})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	records, err := s.records.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+playback.ExportFilename(time.Now())+`"`)
	_, _ = w.Write([]byte("\ufeff"))
	_ = playback.WriteCSV(w, records)
}

func respondLibraryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, library.ErrInvalidName):
		respondError(w, http.StatusBadRequest, "invalid_file", err.Error())
	case errors.Is(err, library.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
