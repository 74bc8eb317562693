package service

import (
	"bytes"
	"slices"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestExport(t *testing.T) {
	env := newTestEnv(t, RetentionPurge)
	seedReminders(t, env)

	es := NewExportService(env.records, testLogger())
	es.now = func() time.Time { return testNow }
	if got := es.Filename(); got != "report_instructions_20240601_120000.xlsx" {
		t.Errorf("Filename = %s", got)
	}

	var buf bytes.Buffer
	if err := es.Write(&buf); err != nil {
		t.Fatalf("ошибка Write: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("отчёт не открывается: %v", err)
	}
	defer f.Close()

	wantSheets := []string{SheetInstructions, SheetByResponsible, SheetHistory}
	if got := f.GetSheetList(); !slices.Equal(got, wantSheets) {
		t.Fatalf("листы: %v, ожидалось %v", got, wantSheets)
	}

	rows, err := f.GetRows(SheetInstructions)
	if err != nil {
		t.Fatalf("ошибка GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("строк на листе %s: %d", SheetInstructions, len(rows))
	}
	if rows[0][0] != "Название" || rows[0][7] != "Статус" {
		t.Errorf("заголовок: %v", rows[0])
	}
	want := []string{"HR Policy", "HR", "2023-01-01", "2023-01-01", "Anna", "a@x.com", "Нет", "Требует актуализации"}
	if !slices.Equal(rows[1], want) {
		t.Errorf("строка 2: %v, ожидалось %v", rows[1], want)
	}
	if rows[2][6] != "Да" || rows[2][7] != "Актуальная" {
		t.Errorf("строка 3: %v", rows[2])
	}

	rows, _ = f.GetRows(SheetByResponsible)
	if len(rows) != 3 || rows[1][0] != "Anna" || rows[2][0] != "Boris" {
		t.Errorf("лист %s: %v", SheetByResponsible, rows)
	}

	// Создание двух записей и загрузка одного файла
	rows, _ = f.GetRows(SheetHistory)
	if len(rows) != 4 {
		t.Errorf("лист %s: %v", SheetHistory, rows)
	}
}
