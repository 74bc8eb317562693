package service

import (
	"errors"
	"slices"
	"testing"

	"github.com/bigkaa/instruction-tracker/internal/domain/model"
)

func TestCronLine(t *testing.T) {
	tests := []struct {
		name      string
		frequency Frequency
		hour      int
		command   string
		wantLine  string
	}{
		{"ежедневно", FrequencyDaily, 9, "", "0 9 * * * " + DefaultRemindCommand},
		{"еженедельно", FrequencyWeekly, 0, "", "0 0 * * 1 " + DefaultRemindCommand},
		{"ежемесячно", FrequencyMonthly, 23, "", "0 23 1 * * " + DefaultRemindCommand},
		{"своя команда", FrequencyDaily, 7, "  /usr/bin/it remind  ", "0 7 * * * /usr/bin/it remind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := CronLine(tt.frequency, tt.hour, tt.command)
			if err != nil {
				t.Fatalf("ошибка CronLine: %v", err)
			}
			if s.Line != tt.wantLine {
				t.Errorf("Line = %q, ожидалось %q", s.Line, tt.wantLine)
			}
		})
	}
}

func TestCronLine_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		frequency   Frequency
		hour        int
		wantInvalid []string
	}{
		{"час больше 23", FrequencyDaily, 24, []string{"hour"}},
		{"отрицательный час", FrequencyWeekly, -1, []string{"hour"}},
		{"неизвестная периодичность", "hourly", 5, []string{"frequency"}},
		{"всё неверно", "", 99, []string{"hour", "frequency"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CronLine(tt.frequency, tt.hour, "")
			var ve *model.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("ожидалась ValidationError, получено %v", err)
			}
			if !slices.Equal(ve.Invalid, tt.wantInvalid) {
				t.Errorf("Invalid = %v, ожидалось %v", ve.Invalid, tt.wantInvalid)
			}
		})
	}
}
