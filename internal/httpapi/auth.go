package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/ent0n29/iradio/internal/auth"
	"github.com/ent0n29/iradio/internal/session"
)

type ctxKey int

const ctxSession ctxKey = iota

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(ctxSession).(*session.Session)
	return s
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(session.CookieName)
		if err != nil || strings.TrimSpace(c.Value) == "" {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "login required")
			return
		}
		sess, err := s.sessions.Touch(c.Value)
		if err != nil {
			s.clearCookie(w)
			respondError(w, http.StatusUnauthorized, "unauthenticated", "session expired")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxSession, sess)))
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req session.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}
	if !s.auth.Verify(req.Username, req.Password) {
		s.metrics.ObserveLogin(false)
		respondError(w, http.StatusUnauthorized, "invalid_credentials", auth.ErrInvalidCredentials.Error())
		return
	}
	s.metrics.ObserveLogin(true)
	if err := s.auth.RecordLogin(req.Username); err != nil {
		log.Printf("record login for %q: %v", req.Username, err)
	}

	sess := s.sessions.Create(req.Username)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.sessions.InactivityTimeout().Seconds()),
	})
	respondJSON(w, http.StatusCreated, session.LoginResponse{
		SessionID:       sess.ID,
		Username:        sess.Username,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(session.CookieName); err == nil && c.Value != "" {
		if _, err := s.sessions.End(c.Value); err == nil {
			s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
			s.metrics.SessionEvents.WithLabelValues("ended").Inc()
		}
	}
	s.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	info, err := s.auth.Info(sess.Username)
	if err != nil {
		respondError(w, http.StatusNotFound, "user_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	var req session.ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.ConfirmPassword != req.NewPassword {
		respondError(w, http.StatusBadRequest, "password_mismatch", "new passwords do not match")
		return
	}

	err := s.auth.ChangePassword(sess.Username, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusForbidden, "invalid_credentials", "current password is incorrect")
		return
	case errors.Is(err, auth.ErrSamePassword):
		respondError(w, http.StatusBadRequest, "same_password", err.Error())
		return
	case errors.Is(err, auth.ErrPasswordTooShort):
		respondError(w, http.StatusBadRequest, "password_too_short", err.Error())
		return
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	ended := s.sessions.EndUser(sess.Username)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("password_changed").Inc()
	log.Printf("password changed for %q; ended %d sessions", sess.Username, ended)
	s.clearCookie(w)
	respondJSON(w, http.StatusOK, map[string]any{"status": "password_changed", "sessions_ended": ended})
}

func (s *Server) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
