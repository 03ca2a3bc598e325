// Пакет server — служебный HTTP-сервер (health, metrics).
// TLS не используется: endpoints доступны только внутри кластера.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/itadmin/internal/api/handlers"
	"github.com/bigkaa/itadmin/internal/api/middleware"
	"github.com/bigkaa/itadmin/internal/config"
)

// Таймауты служебных endpoints: ответы маленькие, долгих запросов нет.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
)

type Server struct {
	http            *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New собирает сервер с маршрутами /health/live, /health/ready и /metrics.
func New(cfg *config.Config, logger *slog.Logger, health *handlers.HealthHandler) *Server {
	return &Server{
		http: &http.Server{
			Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Port)),
			Handler:           newRouter(logger, health),
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		logger:          logger.With(slog.String("component", "http")),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

func newRouter(logger *slog.Logger, health *handlers.HealthHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, middleware.MetricsMiddleware(), middleware.RequestLogger(logger))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", health.HealthLive)
		r.Get("/ready", health.HealthReady)
	})
	r.Get("/metrics", health.GetMetrics)
	return r
}

// Run обслуживает запросы до SIGINT/SIGTERM или отмены ctx,
// затем завершает активные соединения в пределах shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.http.Addr))
		err := s.http.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("Остановка HTTP-сервера", slog.String("cause", context.Cause(ctx).Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}
	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
