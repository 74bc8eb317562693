// reminders.go — напоминания ответственным (ReminderService).
//
// Два вида напоминаний:
//   - outdated — инструкция требует актуализации;
//   - nofile — к инструкции не загружен файл.
//
// Plan формирует список писем без отправки, Send отправляет их
// через mailer.Sender и возвращает количество отправленных.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/instruction-tracker/internal/domain/model"
	"github.com/bigkaa/instruction-tracker/internal/mailer"
	"github.com/bigkaa/instruction-tracker/internal/repository"
)

// remindersSentTotal — количество отправленных напоминаний.
var remindersSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "it_reminders_sent_total",
	Help: "Общее количество отправленных напоминаний",
}, []string{"kind", "result"})

// ReminderKind — вид напоминания.
type ReminderKind string

const (
	// ReminderOutdated — напоминание об актуализации
	ReminderOutdated ReminderKind = "outdated"
	// ReminderNoFile — напоминание о загрузке файла
	ReminderNoFile ReminderKind = "nofile"
)

// ParseReminderKind разбирает вид напоминания.
func ParseReminderKind(s string) (ReminderKind, error) {
	switch ReminderKind(s) {
	case ReminderOutdated, ReminderNoFile:
		return ReminderKind(s), nil
	}
	return "", &model.ValidationError{Invalid: []string{"kind"}}
}

// signature — подпись писем.
const signature = "С уважением,\nСистема управления должностными инструкциями"

// Reminder — подготовленное напоминание.
type Reminder struct {
	Kind        ReminderKind `json:"kind" yaml:"kind"`
	RecordID    string       `json:"record_id" yaml:"record_id"`
	Title       string       `json:"title" yaml:"title"`
	Responsible string       `json:"responsible" yaml:"responsible"`
	Email       string       `json:"email" yaml:"email"`
	LastUpdate  string       `json:"last_update" yaml:"last_update"`
	Subject     string       `json:"subject" yaml:"subject"`
	Body        string       `json:"body" yaml:"body"`
}

// SendFailure — неудачная отправка.
type SendFailure struct {
	RecordID string `json:"record_id" yaml:"record_id"`
	Email    string `json:"email" yaml:"email"`
	Error    string `json:"error" yaml:"error"`
}

// SendResult — итог рассылки.
type SendResult struct {
	Kind   ReminderKind  `json:"kind" yaml:"kind"`
	Total  int           `json:"total" yaml:"total"`
	Sent   int           `json:"sent" yaml:"sent"`
	Failed []SendFailure `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// ReminderService — подготовка и отправка напоминаний.
type ReminderService struct {
	records *RecordService
	sender  mailer.Sender
	logger  *slog.Logger
}

// NewReminderService создаёт сервис напоминаний.
func NewReminderService(records *RecordService, sender mailer.Sender, logger *slog.Logger) *ReminderService {
	return &ReminderService{
		records: records,
		sender:  sender,
		logger:  logger.With(slog.String("component", "reminders")),
	}
}

// Plan возвращает напоминания указанного вида для всех подходящих записей.
func (rs *ReminderService) Plan(kind ReminderKind) ([]Reminder, error) {
	var f repository.Filter
	switch kind {
	case ReminderOutdated:
		f.Status = repository.StatusOutdated
	case ReminderNoFile:
	default:
		return nil, &model.ValidationError{Invalid: []string{"kind"}}
	}

	result := []Reminder{}
	for _, rec := range rs.records.List(f) {
		if kind == ReminderNoFile && rec.HasFile {
			continue
		}
		result = append(result, composeReminder(kind, rec))
	}
	return result, nil
}

// Send отправляет напоминания указанного вида. Если ids не пуст,
// отправляются только напоминания для этих записей.
// Отмена ctx прерывает рассылку, уже отправленные учитываются в результате.
func (rs *ReminderService) Send(ctx context.Context, kind ReminderKind, ids []string) (*SendResult, error) {
	if !rs.sender.Configured() {
		return nil, mailer.ErrNotConfigured
	}

	plan, err := rs.Plan(kind)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		plan = slices.DeleteFunc(plan, func(r Reminder) bool {
			return !slices.Contains(ids, r.RecordID)
		})
	}

	result := &SendResult{Kind: kind, Total: len(plan)}
	for _, r := range plan {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		err := rs.sender.Send(ctx, mailer.Message{To: r.Email, Subject: r.Subject, Body: r.Body})
		if err != nil {
			result.Failed = append(result.Failed, SendFailure{RecordID: r.RecordID, Email: r.Email, Error: err.Error()})
			remindersSentTotal.WithLabelValues(string(kind), "error").Inc()
			continue
		}
		result.Sent++
		remindersSentTotal.WithLabelValues(string(kind), "ok").Inc()
	}

	rs.logger.Info("Рассылка напоминаний завершена",
		slog.String("kind", string(kind)),
		slog.Int("total", result.Total),
		slog.Int("sent", result.Sent),
	)

	return result, nil
}

// composeReminder формирует тему и текст письма.
func composeReminder(kind ReminderKind, rec *model.InstructionRecord) Reminder {
	responsible := rec.Responsible
	if responsible == "" {
		responsible = "коллега"
	}
	registered := orDefault(rec.RegistrationDate, "не указана")

	r := Reminder{
		Kind:        kind,
		RecordID:    rec.ID,
		Title:       rec.Title,
		Responsible: rec.Responsible,
		Email:       rec.Email,
		LastUpdate:  rec.LastUpdate,
	}

	switch kind {
	case ReminderOutdated:
		r.Subject = "Напоминание об актуализации должностной инструкции: " + rec.Title
		r.Body = fmt.Sprintf("Уважаемый %s!\n\n"+
			"Напоминаем, что должностная инструкция \"%s\" требует актуализации.\n\n"+
			"Дата последней актуализации: %s\n"+
			"Дата регистрации: %s\n\n"+
			"Просьба обновить инструкцию в ближайшее время.\n\n%s",
			responsible, rec.Title, orDefault(rec.LastUpdate, "не указана"), registered, signature)
	case ReminderNoFile:
		r.Subject = "Необходимо загрузить файл должностной инструкции: " + rec.Title
		r.Body = fmt.Sprintf("Уважаемый %s!\n\n"+
			"Для должностной инструкции \"%s\" не загружен файл.\n\n"+
			"Дата регистрации: %s\n\n"+
			"Просьба загрузить файл инструкции в систему.\n\n%s",
			responsible, rec.Title, registered, signature)
	}
	return r
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
