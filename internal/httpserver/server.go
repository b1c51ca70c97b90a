// Package httpserver implements the D4 HTTP transport: a thin net/http
// mux wrapping the Service Coordinator. Routing, request decoding, and
// response encoding live here; every interesting decision about what a
// request means happens in internal/service.
//
// Modeled on mcp/http_server.go's mux-plus-middleware-chain shape, trimmed
// to drop the OAuth/session machinery that server's multi-tenant MCP
// protocol needed — this is a single internal tool, not exposed to
// untrusted clients. The teacher's ad hoc os.Stderr debug logging is
// generalized here into a structured log/slog logger, since the ambient
// stack is carried regardless of the spec's own Non-goals.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/oxhq/queryforge/internal/grammar"
	"github.com/oxhq/queryforge/internal/service"
)

func languageList() []string {
	langs := grammar.All()
	out := make([]string, len(langs))
	for i, l := range langs {
		out[i] = string(l)
	}
	return out
}

// Server wraps the coordinator behind net/http handlers.
type Server struct {
	coord  *service.Coordinator
	log    *slog.Logger
	server *http.Server
}

// New builds the mux and wraps it in logging + request-size-limit
// middleware. addr is the listen address (host:port).
func New(coord *service.Coordinator, addr string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{coord: coord, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/parse", s.handleParse)
	mux.HandleFunc("POST /v1/parse/advanced", s.handleAdvancedParse)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/languages", s.handleLanguages)

	handler := s.loggingMiddleware(maxBodyMiddleware(mux))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// maxRequestBody bounds a request body, independent of the code-length
// check the coordinator performs on the decoded field, so an oversized
// body never reaches json.Decode at all.
const maxRequestBody = 8 << 20 // 8 MiB

func maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware stamps every request with a request ID (used only for
// log correlation, never returned to the client) and logs method/path/
// duration at completion.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := uuid.NewString()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "request_id", reqID, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req service.ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, svcErr := s.coord.ProcessRequest(r.Context(), req)
	if svcErr != nil {
		writeServiceError(w, svcErr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdvancedParse(w http.ResponseWriter, r *http.Request) {
	var req service.AdvancedParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, svcErr := s.coord.ProcessAdvancedRequest(r.Context(), req)
	if svcErr != nil {
		writeServiceError(w, svcErr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Health())
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"languages": languageList()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "errors": []string{message}})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	status := http.StatusInternalServerError
	if errors.As(err, &svcErr) {
		switch svcErr.Code {
		case service.CodeValidation, service.CodeUnsupportedLang, service.CodeQuerySyntax:
			status = http.StatusBadRequest
		case service.CodeResource, service.CodeMemory:
			status = http.StatusServiceUnavailable
		}
	}
	writeError(w, status, err.Error())
}

// Start runs the server until a SIGINT/SIGTERM is received, then shuts it
// down gracefully, matching the teacher's signal.Notify + server.Shutdown
// pattern.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info("http server starting", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("httpserver: %w", err)
	case <-stop:
		s.log.Info("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("httpserver: shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}
