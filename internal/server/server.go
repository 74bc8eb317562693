// Пакет server — HTTP-сервер с TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/instruction-tracker/internal/api/middleware"
	"github.com/bigkaa/instruction-tracker/internal/config"
)

// Mounter — набор маршрутов API.
type Mounter interface {
	Mount(r chi.Router)
}

// Server — HTTP-сервер реестра инструкций.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// NewRouter собирает роутер: middleware, маршруты API и /metrics.
func NewRouter(logger *slog.Logger, api Mounter) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.Actor())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	router.Handle("/metrics", promhttp.Handler())
	api.Mount(router)

	return router
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, api Mounter) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, api),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.TLSEnabled() {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http")),
		cfg:        cfg,
	}
}

// Run запускает сервер и блокируется до отмены ctx или ошибки сервера.
// После отмены ctx выполняется graceful shutdown с таймаутом IT_SHUTDOWN_TIMEOUT.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSEnabled()),
		)

		var err error
		if s.cfg.TLSEnabled() {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
