package server

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"deployhook/internal/auth"

	"github.com/go-chi/chi/v5/middleware"
)

// MaxPayloadBytes caps how much of a request body is read for signature
// verification. Longer bodies are truncated and fail HMAC checks.
const MaxPayloadBytes = 1_000_000

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.Logger.Info("http_request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds())
		}()

		next.ServeHTTP(ww, r)
	})
}

// gateMiddleware buffers the raw body, runs the auth gate and restores the
// body for handlers.
func (s *Server) gateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes))
		if err != nil {
			// An unreadable body can only fail signature checks; token
			// auth still applies.
			s.Logger.Debug("failed to read request body",
				"request_id", middleware.GetReqID(r.Context()),
				"path", r.URL.Path,
				"read_bytes", len(body),
				"error", err)
			body = nil
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		decision := s.Gate.Authorize(r, body)
		if !decision.Allowed {
			s.deny(w, r, decision)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) deny(w http.ResponseWriter, r *http.Request, d auth.Decision) {
	if s.Metrics != nil {
		s.Metrics.RecordDenial(string(d.Reason))
	}

	if d.Err != nil {
		s.Logger.Error("rate limit store failed", "error", d.Err, "ip", auth.ClientIP(r))
	} else if s.denialLog.Allow() {
		s.Logger.Warn("deploy request denied",
			"reason", string(d.Reason),
			"status", d.Status,
			"ip", auth.ClientIP(r),
			"path", r.URL.Path)
	}

	s.respondJSON(w, d.Status, FromDenial(d.Status))
}
