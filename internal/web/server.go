// Package web поднимает служебный HTTP-сервер: проверка живости и статистика.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsProvider отдаёт счётчики для эндпоинта статистики.
type StatsProvider interface {
	ActiveOrderCount(ctx context.Context) (int, error)
}

// Server — служебный HTTP-сервер бота.
type Server struct {
	pinger Pinger
	stats  StatsProvider
	logger *zap.Logger
}

// NewServer создаёт служебный сервер.
func NewServer(pinger Pinger, stats StatsProvider, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{pinger: pinger, stats: stats, logger: logger}
}

// SetupRouter настраивает маршруты и middleware служебного сервера.
func (s *Server) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestLogger(s.logger))

	r.Get("/healthz", s.Healthz)
	r.Get("/api/stats", s.Stats)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	return r
}

// Healthz проверяет соединение с базой данных.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Stats отдаёт счётчики заказов в формате JSON.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	count, err := s.stats.ActiveOrderCount(r.Context())
	if err != nil {
		s.logger.Error("stats query failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]int{"active_orders": count}); err != nil {
		s.logger.Error("encode stats", zap.Error(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
