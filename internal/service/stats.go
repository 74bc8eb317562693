// stats.go — статистика по коллекции записей (StatsService).
package service

import (
	"sort"
	"time"

	"github.com/bigkaa/instruction-tracker/internal/domain/model"
	"github.com/bigkaa/instruction-tracker/internal/domain/staleness"
	"github.com/bigkaa/instruction-tracker/internal/repository"
)

// RecentChangesLimit — количество последних изменений в статистике.
const RecentChangesLimit = 20

// unknownResponsible — подпись для записей без ответственного.
const unknownResponsible = "Не указан"

// ResponsibleStats — статистика по ответственному.
type ResponsibleStats struct {
	Responsible string `json:"responsible"`
	Total       int    `json:"total"`
	Outdated    int    `json:"outdated"`
	WithoutFile int    `json:"without_file"`
}

// MonthCount — количество актуализаций за месяц.
type MonthCount struct {
	// Month — месяц "YYYY-MM"
	Month string `json:"month"`
	Count int    `json:"count"`
}

// ChangeRow — изменение с указанием записи.
type ChangeRow struct {
	Timestamp  string           `json:"timestamp"`
	RecordID   string           `json:"record_id"`
	Title      string           `json:"title"`
	ChangeType model.ChangeKind `json:"change_type"`
	Details    string           `json:"details"`
	User       string           `json:"user"`
}

// Stats — статистика коллекции.
type Stats struct {
	Total         int                `json:"total"`
	Outdated      int                `json:"outdated"`
	WithFiles     int                `json:"with_files"`
	WithoutFiles  int                `json:"without_files"`
	ByResponsible []ResponsibleStats `json:"by_responsible"`
	Monthly       []MonthCount       `json:"monthly"`
	RecentChanges []ChangeRow        `json:"recent_changes"`
}

// StatsService — расчёт статистики.
type StatsService struct {
	records *RecordService
}

// NewStatsService создаёт сервис статистики.
func NewStatsService(records *RecordService) *StatsService {
	return &StatsService{records: records}
}

// Stats рассчитывает статистику по текущей коллекции.
func (ss *StatsService) Stats() *Stats {
	return ComputeStats(ss.records.List(repository.Filter{}), ss.records.Policy(), RecentChangesLimit)
}

// ComputeStats рассчитывает статистику по набору записей.
// recentLimit ограничивает список последних изменений (0 = все).
func ComputeStats(records []*model.InstructionRecord, policy staleness.Policy, recentLimit int) *Stats {
	st := &Stats{
		Total:         len(records),
		ByResponsible: []ResponsibleStats{},
		Monthly:       []MonthCount{},
		RecentChanges: []ChangeRow{},
	}

	byResp := make(map[string]int) // ответственный → индекс в ByResponsible
	months := make(map[string]int)

	for _, rec := range records {
		outdated := rec.IsOutdated(policy)
		if outdated {
			st.Outdated++
		}
		if rec.HasFile {
			st.WithFiles++
		}

		resp := rec.Responsible
		if resp == "" {
			resp = unknownResponsible
		}
		i, ok := byResp[resp]
		if !ok {
			i = len(st.ByResponsible)
			byResp[resp] = i
			st.ByResponsible = append(st.ByResponsible, ResponsibleStats{Responsible: resp})
		}
		st.ByResponsible[i].Total++
		if outdated {
			st.ByResponsible[i].Outdated++
		}
		if !rec.HasFile {
			st.ByResponsible[i].WithoutFile++
		}

		if d, err := time.Parse(model.DateLayout, rec.LastUpdate); err == nil {
			months[d.Format("2006-01")]++
		}
	}
	st.WithoutFiles = st.Total - st.WithFiles

	for m, c := range months {
		st.Monthly = append(st.Monthly, MonthCount{Month: m, Count: c})
	}
	sort.Slice(st.Monthly, func(i, j int) bool { return st.Monthly[i].Month < st.Monthly[j].Month })

	st.RecentChanges = AllChanges(records)
	if recentLimit > 0 && len(st.RecentChanges) > recentLimit {
		st.RecentChanges = st.RecentChanges[:recentLimit]
	}

	return st
}

// AllChanges возвращает изменения всех записей, новые первыми.
func AllChanges(records []*model.InstructionRecord) []ChangeRow {
	rows := []ChangeRow{}
	for _, rec := range records {
		for _, h := range rec.History {
			rows = append(rows, ChangeRow{
				Timestamp:  h.Timestamp,
				RecordID:   rec.ID,
				Title:      rec.Title,
				ChangeType: h.ChangeType,
				Details:    h.Details,
				User:       h.User,
			})
		}
	}
	// Формат "YYYY-MM-DD HH:MM:SS" сортируется как строка
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp > rows[j].Timestamp })
	return rows
}
