// schedule.go — генератор строки crontab для автоматических напоминаний.
// Сам сервис ничего не планирует: строка передаётся внешнему
// планировщику и вызывает команду remind.
package service

import (
	"fmt"
	"strings"

	"github.com/bigkaa/instruction-tracker/internal/domain/model"
)

// Frequency — периодичность напоминаний.
type Frequency string

const (
	// FrequencyDaily — ежедневно
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly — еженедельно, по понедельникам
	FrequencyWeekly Frequency = "weekly"
	// FrequencyMonthly — ежемесячно, 1-го числа
	FrequencyMonthly Frequency = "monthly"
)

// DefaultRemindCommand — команда, вызываемая по расписанию.
const DefaultRemindCommand = "instruction-tracker remind --kind outdated --send"

// Schedule — строка crontab и её части.
type Schedule struct {
	Frequency Frequency `json:"frequency" yaml:"frequency"`
	Hour      int       `json:"hour" yaml:"hour"`
	Spec      string    `json:"spec" yaml:"spec"`
	Command   string    `json:"command" yaml:"command"`
	Line      string    `json:"line" yaml:"line"`
}

// CronLine формирует строку crontab для запуска command с указанной
// периодичностью в hour:00. Пустая command заменяется DefaultRemindCommand.
func CronLine(frequency Frequency, hour int, command string) (*Schedule, error) {
	var invalid []string
	if hour < 0 || hour > 23 {
		invalid = append(invalid, "hour")
	}

	var spec string
	switch frequency {
	case FrequencyDaily:
		spec = fmt.Sprintf("0 %d * * *", hour)
	case FrequencyWeekly:
		spec = fmt.Sprintf("0 %d * * 1", hour)
	case FrequencyMonthly:
		spec = fmt.Sprintf("0 %d 1 * *", hour)
	default:
		invalid = append(invalid, "frequency")
	}
	if len(invalid) > 0 {
		return nil, &model.ValidationError{Invalid: invalid}
	}

	command = strings.TrimSpace(command)
	if command == "" {
		command = DefaultRemindCommand
	}

	return &Schedule{
		Frequency: frequency,
		Hour:      hour,
		Spec:      spec,
		Command:   command,
		Line:      spec + " " + command,
	}, nil
}
