package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/instruction-tracker/internal/api/middleware"
	"github.com/bigkaa/instruction-tracker/internal/config"
)

// echoAPI возвращает имя пользователя из контекста.
type echoAPI struct{}

func (echoAPI) Mount(r chi.Router) {
	r.Get("/api/v1/whoami", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, middleware.ActorFromContext(r.Context()))
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRouter(t *testing.T) {
	router := NewRouter(testLogger(), echoAPI{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil)
	req.Header.Set(middleware.HeaderUserName, "Boris")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "Boris" {
		t.Errorf("whoami: статус %d, тело %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics: статус %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "it_http_requests_total") {
		t.Error("/metrics не содержит it_http_requests_total")
	}
}

func TestRun_Shutdown(t *testing.T) {
	// Свободный порт
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	cfg := &config.Config{Port: port, ShutdownTimeout: 2 * time.Second}
	srv := New(cfg, testLogger(), echoAPI{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run вернул ошибку: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("сервер не остановился после отмены контекста")
	}
}
