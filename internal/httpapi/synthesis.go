package httpapi

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/iradio/internal/synthesis"
	"github.com/ent0n29/iradio/internal/voice"
)

type startSynthesisRequest struct {
	Book  string `json:"book"`
	Voice string `json:"voice"`
}

type startSynthesisResponse struct {
	Job       synthesis.Snapshot `json:"job"`
	Existing  bool               `json:"existing"`
	Chunks    int                `json:"chunks"`
	MaxBytes  int                `json:"max_bytes"`
	Oversized int                `json:"oversized"`
	Dropped   int                `json:"dropped"`
}

func (s *Server) handleListBooks(w http.ResponseWriter, _ *http.Request) {
	books, err := s.library.Books()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	var (
		voices []voice.Voice
		err    error
	)
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		voices, err = s.catalog.Refresh(r.Context())
	} else {
		voices, err = s.catalog.Voices(r.Context())
	}
	if err != nil {
		respondError(w, http.StatusBadGateway, "voice_list_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"provider":   s.providerName(),
		"format":     s.generator.Format(),
		"voices":     voices,
		"fetched_at": s.catalog.FetchedAt(),
	})
}

func (s *Server) handleStartSynthesis(w http.ResponseWriter, r *http.Request) {
	var req startSynthesisRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Book = strings.TrimSpace(req.Book)
	books, err := s.library.Books()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if !slices.Contains(books, req.Book) {
		respondError(w, http.StatusNotFound, "book_not_found", "no such book: "+req.Book)
		return
	}
	v, err := s.catalog.Lookup(r.Context(), req.Voice)
	if errors.Is(err, voice.ErrUnknownVoice) {
		respondError(w, http.StatusBadRequest, "unknown_voice", "unknown voice: "+req.Voice)
		return
	}
	if err != nil {
		respondError(w, http.StatusBadGateway, "voice_list_failed", err.Error())
		return
	}

	plan, err := s.generator.Plan(req.Book)
	if err != nil {
		respondLibraryError(w, err)
		return
	}
	if len(plan.Chunks) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "no_chunks", synthesis.ErrNoChunks.Error())
		return
	}

	job, existing := s.jobs.Start(req.Book, v)
	w.Header().Set("Location", "/v1/synthesis/"+job.ID())
	respondJSON(w, http.StatusAccepted, startSynthesisResponse{
		Job:       job.Snapshot(),
		Existing:  existing,
		Chunks:    len(plan.Chunks),
		MaxBytes:  s.generator.MaxBytes(),
		Oversized: len(plan.Oversized),
		Dropped:   len(plan.Dropped),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"jobs": s.jobs.List()})
}

func (s *Server) handleSynthesisLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"providers":    []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.Latency.Snapshot())
}

// handleGetJob returns a job, optionally blocking up to ?wait= for it to
// finish.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "job_not_found", err.Error())
		return
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("wait")); raw != "" {
		wait, err := time.ParseDuration(raw)
		if err != nil || wait < 0 {
			respondError(w, http.StatusBadRequest, "invalid_wait", "wait must be a duration like 5s")
			return
		}
		if limit := s.cfg.JobWaitLimit; limit > 0 && wait > limit {
			wait = limit
		}
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		_, _ = job.Wait(ctx)
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// handleJobWS streams job events as JSON text frames and closes when the job
// finishes.
func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "job_not_found", err.Error())
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := job.Subscribe()
	defer unsubscribe()

	// Reads only detect the client going away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		conn.SetReadLimit(1024)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-clientGone:
			return
		case <-ping.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case evt, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
					time.Now().Add(5*time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}
