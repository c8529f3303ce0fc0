// Package report serves a completed run's results over HTTP as JSON, for
// operators who want to pull results into another tool instead of reading
// the CLI's summary output.
package report

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/simulation"
)

// Config controls where the report server binds.
type Config struct {
	Addr string
}

// Server exposes one completed simulation run's results.
type Server struct {
	router *chi.Mux
	http   *http.Server
	logger *logrus.Logger
	result simulation.RunResult
}

// NewServer builds a report server for result, bound to cfg.Addr.
func NewServer(cfg Config, result simulation.RunResult, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
		result: result,
	}
	s.routes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(middleware.Compress(5))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/summary", s.handleSummary)
	s.router.Get("/api/days", s.handleDays)
	s.router.Get("/api/trades", s.handleTrades)
}

func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.Status(),
			"duration": time.Since(start).String(),
		}).Info("request handled")
	})
}

// ListenAndServe starts the HTTP server, blocking until ctx is cancelled or
// the server fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	out := map[string]any{
		"final_equity": s.result.FinalEquity,
		"days":         len(s.result.Days),
	}
	for _, m := range s.result.Metrics {
		out[m.Name] = m.Values
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDays(w http.ResponseWriter, _ *http.Request) {
	type dayView struct {
		Date   string  `json:"date"`
		Equity float64 `json:"equity"`
		Trades int     `json:"trades"`
	}
	out := make([]dayView, 0, len(s.result.Days))
	for _, d := range s.result.Days {
		out = append(out, dayView{
			Date:   d.Date.Format("2006-01-02"),
			Equity: d.Equity,
			Trades: len(d.Trades),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrades(w http.ResponseWriter, _ *http.Request) {
	var out []core.Trade
	for _, d := range s.result.Days {
		out = append(out, d.Trades...)
	}
	s.writeJSON(w, http.StatusOK, out)
}
