package mailer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/wneessen/go-mail"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newCapturing(cfg Config) (*SMTPMailer, *[]*mail.Msg) {
	m := New(cfg, testLogger())
	var sent []*mail.Msg
	m.deliver = func(_ context.Context, msg *mail.Msg) error {
		sent = append(sent, msg)
		return nil
	}
	m.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	return m, &sent
}

func TestSend_NotConfigured(t *testing.T) {
	m, sent := newCapturing(Config{Host: "smtp.example.com", Port: 587})

	if m.Configured() {
		t.Error("без учётных данных Configured должен быть false")
	}
	err := m.Send(context.Background(), Message{To: "a@x.com", Subject: "s", Body: "b"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ожидалась ErrNotConfigured, получено %v", err)
	}
	if len(*sent) != 0 {
		t.Error("письмо не должно отправляться")
	}
}

func TestSend_Composes(t *testing.T) {
	m, sent := newCapturing(Config{
		Host: "smtp.example.com", Port: 587,
		User: "bot@example.com", Password: "secret",
	})

	subject := "Требуется актуализация должностной инструкции: HR Policy"
	body := "Здравствуйте, Anna!\n\nДолжностная инструкция \"HR Policy\" требует актуализации."
	err := m.Send(context.Background(), Message{To: "a@x.com", Subject: subject, Body: body})
	if err != nil {
		t.Fatalf("ошибка отправки: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("ожидалось 1 письмо, отправлено %d", len(*sent))
	}
	msg := (*sent)[0]

	if from, _ := msg.GetSender(false); from != "bot@example.com" {
		t.Errorf("from = %s", from)
	}
	if to, _ := msg.GetRecipients(); len(to) != 1 || to[0] != "a@x.com" {
		t.Errorf("to = %v", to)
	}
	if got := msg.GetGenHeader(mail.HeaderSubject); len(got) != 1 || got[0] != subject {
		t.Errorf("тема: %v", got)
	}

	parts := msg.GetParts()
	if len(parts) != 1 {
		t.Fatalf("ожидалась 1 часть, получено %d", len(parts))
	}
	content, err := parts[0].GetContent()
	if err != nil || string(content) != body {
		t.Errorf("тело: %q, ошибка %v", content, err)
	}

	var raw bytes.Buffer
	if _, err := msg.WriteTo(&raw); err != nil {
		t.Fatalf("письмо не сериализуется: %v", err)
	}
	if !strings.Contains(strings.ToLower(raw.String()), "subject: =?utf-8?q?") {
		t.Errorf("тема должна быть закодирована по RFC 2047: %s", raw.String())
	}
}

func TestSend_InvalidRecipient(t *testing.T) {
	m, sent := newCapturing(Config{Host: "h", Port: 25, User: "u@x.com", Password: "p"})

	if err := m.Send(context.Background(), Message{To: "not an address"}); err == nil {
		t.Error("ожидалась ошибка для некорректного адреса")
	}
	if len(*sent) != 0 {
		t.Error("письмо не должно отправляться")
	}
}

func TestSend_EmptyRecipient(t *testing.T) {
	m, _ := newCapturing(Config{Host: "h", Port: 25, User: "u", Password: "p"})

	if err := m.Send(context.Background(), Message{To: " "}); err == nil {
		t.Error("ожидалась ошибка для пустого адреса")
	}
}

func TestSend_TransportError(t *testing.T) {
	m, _ := newCapturing(Config{Host: "h", Port: 25, User: "u@x.com", Password: "p"})
	transportErr := errors.New("535 authentication failed")
	m.deliver = func(context.Context, *mail.Msg) error { return transportErr }

	err := m.Send(context.Background(), Message{To: "a@x.com"})
	if !errors.Is(err, transportErr) {
		t.Errorf("ожидалась ошибка транспорта, получено %v", err)
	}
}

// TestSend_RateLimitRespectsContext проверяет, что ожидание лимита прерывается контекстом.
func TestSend_RateLimitRespectsContext(t *testing.T) {
	m, sent := newCapturing(Config{Host: "h", Port: 25, User: "u@x.com", Password: "p", Rate: 0.001})

	if err := m.Send(context.Background(), Message{To: "a@x.com"}); err != nil {
		t.Fatalf("первое письмо: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.Send(ctx, Message{To: "b@x.com"}); err == nil {
		t.Error("второе письмо должно упереться в лимит")
	}
	if len(*sent) != 1 {
		t.Errorf("отправлено %d писем, ожидалось 1", len(*sent))
	}
}

func TestAddr(t *testing.T) {
	m := New(Config{Host: "smtp.example.com", Port: 587}, testLogger())
	if m.Addr() != "smtp.example.com:587" {
		t.Errorf("Addr = %s", m.Addr())
	}
}

func TestFromDefaultsToUser(t *testing.T) {
	m := New(Config{Host: "h", Port: 25, User: "u@x.com", Password: "p"}, testLogger())
	if m.cfg.From != "u@x.com" {
		t.Errorf("From = %s", m.cfg.From)
	}
}
