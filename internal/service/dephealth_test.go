package service

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// listenTCP открывает TCP-порт, принимающий и сразу закрывающий соединения.
func listenTCP(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Ошибка открытия порта: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

// closedPort возвращает порт, на котором никто не слушает.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Ошибка открытия порта: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestNewDephealthService(t *testing.T) {
	host, port := listenTCP(t)

	ds, err := NewDephealthServiceWithRegisterer(
		"test-it-01", "instruction-tracker",
		host, port, 5*time.Second,
		testLogger(), prometheus.NewRegistry(),
	)
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}
	if ds == nil {
		t.Fatal("DephealthService nil")
	}
}

func TestDephealthService_Health(t *testing.T) {
	host, port := listenTCP(t)

	tests := []struct {
		name string
		port int
		want bool
	}{
		{"доступен", port, true},
		{"недоступен", closedPort(t), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := NewDephealthServiceWithRegisterer(
				"test-it-02", "instruction-tracker",
				host, tt.port, time.Second,
				testLogger(), prometheus.NewRegistry(),
			)
			if err != nil {
				t.Fatalf("Ошибка создания DephealthService: %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := ds.Start(ctx); err != nil {
				t.Fatalf("Ошибка запуска: %v", err)
			}
			defer ds.Stop()

			// Даём время на первую проверку (интервал 1s + запас)
			time.Sleep(3 * time.Second)

			found := false
			for key, val := range ds.Health() {
				if strings.HasPrefix(key, smtpDependency+":") {
					found = true
					if val != tt.want {
						t.Errorf("health[%q] = %v, ожидалось %v", key, val, tt.want)
					}
				}
			}
			if !found {
				t.Errorf("Нет записи для smtp в Health(), keys=%v", healthKeys(ds.Health()))
			}
		})
	}
}

// healthKeys возвращает ключи карты health для вывода в сообщениях об ошибках.
func healthKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
