package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/iradio/internal/auth"
	"github.com/ent0n29/iradio/internal/config"
	"github.com/ent0n29/iradio/internal/library"
	"github.com/ent0n29/iradio/internal/observability"
	"github.com/ent0n29/iradio/internal/playback"
	"github.com/ent0n29/iradio/internal/session"
	"github.com/ent0n29/iradio/internal/synthesis"
	"github.com/ent0n29/iradio/internal/voice"
)

// Deps are the components the HTTP surface drives.
type Deps struct {
	Library   *library.Library
	Records   playback.Store
	Auth      *auth.Gate
	Sessions  *session.Manager
	Catalog   *voice.Catalog
	Generator *synthesis.Generator
	Jobs      *synthesis.Jobs
	Metrics   *observability.Metrics
}

type Server struct {
	cfg       config.Config
	library   *library.Library
	records   playback.Store
	auth      *auth.Gate
	sessions  *session.Manager
	catalog   *voice.Catalog
	generator *synthesis.Generator
	jobs      *synthesis.Jobs
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
	static    http.Handler
}

func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:       cfg,
		library:   deps.Library,
		records:   deps.Records,
		auth:      deps.Auth,
		sessions:  deps.Sessions,
		catalog:   deps.Catalog,
		generator: deps.Generator,
		jobs:      deps.Jobs,
		metrics:   deps.Metrics,
		static:    newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may open job streams.
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/auth/login", s.handleLogin)
	r.Post("/v1/auth/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/v1/auth/me", s.handleMe)
		r.Post("/v1/auth/password", s.handleChangePassword)

		r.Get("/v1/books", s.handleListBooks)
		r.Get("/v1/voices", s.handleListVoices)

		r.Post("/v1/synthesis", s.handleStartSynthesis)
		r.Get("/v1/synthesis", s.handleListJobs)
		r.Get("/v1/synthesis/latency", s.handleSynthesisLatency)
		r.Get("/v1/synthesis/{id}", s.handleGetJob)
		r.Get("/v1/synthesis/{id}/ws", s.handleJobWS)

		r.Get("/v1/audio", s.handleListAudio)
		r.Get("/v1/audio/file", s.handleServeAudio)

		r.Get("/v1/player", s.handlePlayerState)
		r.Post("/v1/player/save", s.handleSavePosition)
		r.Post("/v1/player/reset", s.handleResetPosition)
		r.Post("/v1/player/complete", s.handleMarkComplete)
		r.Post("/v1/player/play", s.handleRecordPlay)

		r.Get("/v1/records", s.handleListRecords)
		r.Delete("/v1/records", s.handleClearRecords)
		r.Get("/v1/stats", s.handleStats)
		r.Get("/v1/stats/export.csv", s.handleExportCSV)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"voice_provider": s.providerName(),
		"records_store":  s.recordsMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.library.AudioFiles(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "audio_dir_unavailable", err.Error())
		return
	}
	if _, err := s.library.Books(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "books_dir_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"voice_provider": s.providerName(),
		"records_store":  s.recordsMode(),
	})
}

func (s *Server) providerName() string {
	if s.generator == nil {
		return "none"
	}
	return s.generator.Provider()
}

func (s *Server) recordsMode() string {
	switch s.records.(type) {
	case *playback.PostgresStore:
		return "postgres"
	case *playback.FileStore:
		return "json-file"
	default:
		return "custom"
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
