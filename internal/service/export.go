// export.go — отчёт в формате Excel (ExportService).
//
// Книга содержит три листа:
//   - «Инструкции» — все записи со статусом актуальности;
//   - «По ответственным» — сводная таблица из статистики;
//   - «История» — все изменения, новые первыми.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bigkaa/instruction-tracker/internal/domain/model"
	"github.com/bigkaa/instruction-tracker/internal/domain/staleness"
	"github.com/bigkaa/instruction-tracker/internal/repository"
)

// Названия листов отчёта.
const (
	SheetInstructions  = "Инструкции"
	SheetByResponsible = "По ответственным"
	SheetHistory       = "История"
)

// Статусы актуальности в отчёте.
const (
	statusOutdatedLabel = "Требует актуализации"
	statusActualLabel   = "Актуальная"
)

var (
	instructionsHeader = []any{
		"Название", "Подразделение", "Дата регистрации", "Дата актуализации",
		"Ответственный", "Email", "Наличие файла", "Статус",
	}
	responsibleHeader = []any{"Ответственный", "Всего инструкций", "Требуют актуализации", "Без файлов"}
	historyHeader     = []any{"Дата", "Инструкция", "Тип изменения", "Описание", "Пользователь"}
)

// ExportService — формирование отчёта.
type ExportService struct {
	records *RecordService
	now     func() time.Time
	logger  *slog.Logger
}

// NewExportService создаёт сервис отчётов.
func NewExportService(records *RecordService, logger *slog.Logger) *ExportService {
	return &ExportService{
		records: records,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "export")),
	}
}

// Filename возвращает имя файла отчёта для текущего момента.
func (es *ExportService) Filename() string {
	return fmt.Sprintf("report_instructions_%s.xlsx", es.now().Format("20060102_150405"))
}

// Write формирует отчёт по текущей коллекции и пишет его в w.
func (es *ExportService) Write(w io.Writer) error {
	records := es.records.List(repository.Filter{})
	if err := WriteReport(w, records, es.records.Policy()); err != nil {
		observe("export", err)
		return err
	}
	observe("export", nil)
	es.logger.Info("Отчёт сформирован", slog.Int("records", len(records)))
	return nil
}

// WriteReport формирует книгу Excel по набору записей.
func WriteReport(w io.Writer, records []*model.InstructionRecord, policy staleness.Policy) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetInstructions); err != nil {
		return fmt.Errorf("ошибка создания листа %s: %w", SheetInstructions, err)
	}
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, instructionRow(rec, policy))
	}
	if err := writeSheet(f, SheetInstructions, instructionsHeader, rows); err != nil {
		return err
	}

	st := ComputeStats(records, policy, 0)

	rows = rows[:0]
	for _, rs := range st.ByResponsible {
		rows = append(rows, []any{rs.Responsible, rs.Total, rs.Outdated, rs.WithoutFile})
	}
	if err := addSheet(f, SheetByResponsible, responsibleHeader, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, ch := range st.RecentChanges {
		rows = append(rows, []any{ch.Timestamp, ch.Title, string(ch.ChangeType), ch.Details, ch.User})
	}
	if err := addSheet(f, SheetHistory, historyHeader, rows); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("ошибка записи отчёта: %w", err)
	}
	return nil
}

func instructionRow(rec *model.InstructionRecord, policy staleness.Policy) []any {
	hasFile := "Нет"
	if rec.HasFile {
		hasFile = "Да"
	}
	status := statusActualLabel
	if rec.IsOutdated(policy) {
		status = statusOutdatedLabel
	}
	return []any{
		rec.Title, rec.Department, rec.RegistrationDate, rec.LastUpdate,
		rec.Responsible, rec.Email, hasFile, status,
	}
}

func addSheet(f *excelize.File, name string, header []any, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("ошибка создания листа %s: %w", name, err)
	}
	return writeSheet(f, name, header, rows)
}

// writeSheet пишет заголовок в первую строку и данные со второй.
func writeSheet(f *excelize.File, sheet string, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("ошибка записи заголовка листа %s: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("ошибка записи строки %d листа %s: %w", i+2, sheet, err)
		}
	}

	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", last, 22)
}
