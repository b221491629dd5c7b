// Package server exposes the clipboard history over a local HTTP API.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jesse-c/kopya-sub000/internal/domain"
)

// Server wires the HTTP routes to the history store and the private mode
// controller. Handlers are safe to run concurrently with the watcher loop;
// the store serializes writes internally.
type Server struct {
	store       domain.HistoryStore
	privateMode domain.PrivateMode
	logger      *zap.Logger
	httpServer  *http.Server
}

// New creates a Server listening on addr.
func New(addr string, store domain.HistoryStore, pm domain.PrivateMode, logger *zap.Logger) *Server {
	s := &Server{
		store:       store,
		privateMode: pm,
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /history", s.handleGetHistory)
	mux.HandleFunc("DELETE /history", s.handleDeleteHistory)
	mux.HandleFunc("DELETE /history/{id}", s.handleDeleteEntry)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("POST /private/enable", s.handlePrivateEnable)
	mux.HandleFunc("POST /private/disable", s.handlePrivateDisable)
	mux.HandleFunc("GET /private/status", s.handlePrivateStatus)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Handler returns the route handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving the API until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http api listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// logRequests is the zap access-log middleware.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// errorResponse is the body shape for client errors.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
