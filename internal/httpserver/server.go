// Package httpserver exposes the proxy's HTTP surface: the transforming
// chat-completions endpoint, the byte-for-byte passthrough for everything
// else, and the local health/usage endpoints.
package httpserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/thinkgate/thinkgate/internal/ledger"
	"github.com/thinkgate/thinkgate/internal/reasoning"
	"github.com/thinkgate/thinkgate/internal/upstream"
	"github.com/thinkgate/thinkgate/internal/version"
)

// Server relays requests to one upstream chat-completions API and rewrites
// responses on the way back.
type Server struct {
	upstream *upstream.Client
	ledger   ledger.Store
	profiles *reasoning.ProfileSet
	// value injected as reasoning_effort when the caller omits it; empty
	// disables injection
	effort string

	logger   *log.Logger
	logLevel string
}

// New constructs a Server. client may be nil, in which case every relayed
// request answers 503 until the process is restarted with a valid upstream.
func New(client *upstream.Client, store ledger.Store, profiles *reasoning.ProfileSet, effort string) *Server {
	return &Server{
		upstream: client,
		ledger:   store,
		profiles: profiles,
		effort:   strings.TrimSpace(effort),
	}
}

// SetLogger configures server-level logger and verbosity ("debug", "info", ...).
func (s *Server) SetLogger(level string, logger *log.Logger) {
	s.logLevel = strings.ToLower(strings.TrimSpace(level))
	if logger != nil {
		s.logger = logger
	}
}

func (s *Server) isDebug() bool { return s.logLevel == "debug" }
func (s *Server) debugf(format string, args ...any) {
	if s.logger != nil && s.isDebug() {
		s.logger.Printf("DEBUG "+format, args...)
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Get("/health", s.handleHealth)
	r.Get("/usage/summary", s.handleUsageSummary)
	r.Get("/usage/recent", s.handleUsageRecent)

	// Every other path and method relays byte-for-byte.
	r.NotFound(s.handlePassthrough)
	r.MethodNotAllowed(s.handlePassthrough)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":  "ok",
		"version": version.Info(),
		"time":    time.Now().UTC().Format(time.RFC3339),
		"ledger":  s.ledger != nil,
	}
	if s.upstream != nil {
		payload["upstream"] = s.upstream.BaseURL()
	}
	s.respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.respondError(w, http.StatusNotFound, errors.New("usage ledger disabled"))
		return
	}
	summary, err := s.ledger.Summary(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleUsageRecent(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.respondError(w, http.StatusNotFound, errors.New("usage ledger disabled"))
		return
	}
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := s.ledger.ListRecent(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}

// requestHopHeaders are never forwarded upstream: they describe the
// client-to-proxy connection, not the request itself. Host and
// Content-Length are recomputed by the outbound client.
var requestHopHeaders = map[string]struct{}{
	"Host":                {},
	"Content-Length":      {},
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailers":            {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func proxyHeaders(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for k, vals := range in {
		if _, drop := requestHopHeaders[textproto.CanonicalMIMEHeaderKey(k)]; drop {
			continue
		}
		out[k] = vals
	}
	return out
}

// copyResponseHeaders relays upstream response headers, dropping the ones
// that describe the upstream connection or a body length the proxy may have
// changed.
func copyResponseHeaders(dst http.ResponseWriter, src *http.Response) {
	for k, vals := range src.Header {
		switch strings.ToLower(k) {
		case "connection", "keep-alive", "transfer-encoding", "content-length":
			continue
		}
		dst.Header()[k] = vals
	}
}
