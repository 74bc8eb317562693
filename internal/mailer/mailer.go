// Пакет mailer — отправка уведомлений ответственным по SMTP.
// Отправка ограничена по частоте (golang.org/x/time/rate), чтобы
// массовая рассылка не упиралась в лимиты почтового сервера.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"golang.org/x/time/rate"
)

// ErrNotConfigured — не заданы учётные данные SMTP.
var ErrNotConfigured = errors.New("SMTP не настроен: не заданы IT_SMTP_USER и IT_SMTP_PASSWORD")

// dialTimeout — таймаут соединения с SMTP-сервером.
const dialTimeout = 30 * time.Second

// Message — письмо.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender — отправитель писем.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Configured() bool
}

// Config — параметры SMTP.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	// From — адрес отправителя (по умолчанию User)
	From string
	// Rate — максимальное количество писем в секунду
	Rate float64
}

// deliverFunc доставляет готовое письмо на сервер.
type deliverFunc func(ctx context.Context, msg *mail.Msg) error

// SMTPMailer — отправка писем через SMTP (STARTTLS, PLAIN auth).
// Письмо собирает go-mail: UTF-8, кодирование заголовков и тела.
type SMTPMailer struct {
	cfg     Config
	limiter *rate.Limiter
	deliver deliverFunc
	now     func() time.Time
	logger  *slog.Logger
}

// New создаёт SMTPMailer.
func New(cfg Config, logger *slog.Logger) *SMTPMailer {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	m := &SMTPMailer{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
		logger:  logger.With(slog.String("component", "mailer")),
	}
	m.deliver = m.dialAndSend
	return m
}

// Configured возвращает true, если заданы учётные данные.
func (m *SMTPMailer) Configured() bool {
	return m.cfg.User != "" && m.cfg.Password != ""
}

// Addr возвращает адрес SMTP-сервера host:port.
func (m *SMTPMailer) Addr() string {
	return net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
}

// Send отправляет письмо. Ожидает разрешения лимитера с учётом ctx.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("не указан адрес получателя")
	}

	composed, err := m.compose(msg)
	if err != nil {
		return err
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ожидание лимита отправки: %w", err)
	}

	if err := m.deliver(ctx, composed); err != nil {
		m.logger.Warn("Ошибка отправки письма",
			slog.String("to", msg.To),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("ошибка отправки письма %s: %w", msg.To, err)
	}

	m.logger.Info("Письмо отправлено",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// compose формирует письмо text/plain в UTF-8.
func (m *SMTPMailer) compose(msg Message) (*mail.Msg, error) {
	composed := mail.NewMsg()
	if err := composed.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("некорректный адрес отправителя %q: %w", m.cfg.From, err)
	}
	if err := composed.To(strings.TrimSpace(msg.To)); err != nil {
		return nil, fmt.Errorf("некорректный адрес получателя %q: %w", msg.To, err)
	}
	composed.Subject(msg.Subject)
	composed.SetDateWithValue(m.now())
	composed.SetBodyString(mail.TypeTextPlain, msg.Body)
	return composed, nil
}

// dialAndSend подключается к серверу и отправляет письмо.
// STARTTLS используется, если сервер его поддерживает.
func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.User),
		mail.WithPassword(m.cfg.Password),
		mail.WithTimeout(dialTimeout),
	)
	if err != nil {
		return fmt.Errorf("ошибка настройки SMTP-клиента: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
