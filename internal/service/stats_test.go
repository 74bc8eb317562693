package service

import (
	"testing"
	"time"

	"github.com/bigkaa/instruction-tracker/internal/domain/model"
	"github.com/bigkaa/instruction-tracker/internal/domain/staleness"
)

func statsPolicy() staleness.Policy {
	p := staleness.NewPolicy(12)
	p.Now = func() time.Time { return testNow }
	return p
}

func statsRecord(id, title, responsible, lastUpdate string, hasFile bool, history ...model.HistoryEntry) *model.InstructionRecord {
	rec := &model.InstructionRecord{
		ID:          id,
		Title:       title,
		Responsible: responsible,
		LastUpdate:  lastUpdate,
		HasFile:     hasFile,
		History:     history,
	}
	if hasFile {
		name := id + "_file.pdf"
		rec.Filename = &name
	}
	return rec
}

func TestComputeStats(t *testing.T) {
	records := []*model.InstructionRecord{
		statsRecord("1", "HR Policy", "Anna", "2023-01-01", false),
		statsRecord("2", "Кассир", "Boris", "2024-05-15", true),
		statsRecord("3", "Бухгалтер", "Anna", "2024-05-20", true),
		statsRecord("4", "Водитель", "", "", false),
	}

	st := ComputeStats(records, statsPolicy(), RecentChangesLimit)

	if st.Total != 4 || st.Outdated != 2 || st.WithFiles != 2 || st.WithoutFiles != 2 {
		t.Errorf("итоги: %+v", st)
	}

	want := []ResponsibleStats{
		{Responsible: "Anna", Total: 2, Outdated: 1, WithoutFile: 1},
		{Responsible: "Boris", Total: 1, Outdated: 0, WithoutFile: 0},
		{Responsible: "Не указан", Total: 1, Outdated: 1, WithoutFile: 1},
	}
	if len(st.ByResponsible) != len(want) {
		t.Fatalf("ByResponsible: %+v", st.ByResponsible)
	}
	for i := range want {
		if st.ByResponsible[i] != want[i] {
			t.Errorf("ByResponsible[%d] = %+v, ожидалось %+v", i, st.ByResponsible[i], want[i])
		}
	}

	wantMonths := []MonthCount{{Month: "2023-01", Count: 1}, {Month: "2024-05", Count: 2}}
	if len(st.Monthly) != len(wantMonths) {
		t.Fatalf("Monthly: %+v", st.Monthly)
	}
	for i := range wantMonths {
		if st.Monthly[i] != wantMonths[i] {
			t.Errorf("Monthly[%d] = %+v, ожидалось %+v", i, st.Monthly[i], wantMonths[i])
		}
	}
}

func TestComputeStats_Empty(t *testing.T) {
	st := ComputeStats(nil, statsPolicy(), RecentChangesLimit)
	if st.Total != 0 || st.ByResponsible == nil || st.Monthly == nil || st.RecentChanges == nil {
		t.Errorf("пустая статистика: %+v", st)
	}
}

// TestComputeStats_RecentChanges проверяет порядок и ограничение последних изменений.
func TestComputeStats_RecentChanges(t *testing.T) {
	var recs []*model.InstructionRecord
	for i := range 3 {
		var hist []model.HistoryEntry
		for j := range 10 {
			ts := time.Date(2024, 1, 1+j, i, 0, 0, 0, time.UTC).Format(model.TimestampLayout)
			hist = append(hist, model.HistoryEntry{Timestamp: ts, ChangeType: model.ChangeEdit, User: model.DefaultActor})
		}
		recs = append(recs, statsRecord(string(rune('a'+i)), "T", "Anna", "2024-01-01", false, hist...))
	}

	st := ComputeStats(recs, statsPolicy(), RecentChangesLimit)
	if len(st.RecentChanges) != RecentChangesLimit {
		t.Fatalf("изменений %d, ожидалось %d", len(st.RecentChanges), RecentChangesLimit)
	}
	for i := 1; i < len(st.RecentChanges); i++ {
		if st.RecentChanges[i-1].Timestamp < st.RecentChanges[i].Timestamp {
			t.Fatalf("нарушен порядок: %s перед %s", st.RecentChanges[i-1].Timestamp, st.RecentChanges[i].Timestamp)
		}
	}
	if st.RecentChanges[0].Timestamp != "2024-01-10 02:00:00" || st.RecentChanges[0].RecordID != "c" {
		t.Errorf("первое изменение: %+v", st.RecentChanges[0])
	}

	all := ComputeStats(recs, statsPolicy(), 0)
	if len(all.RecentChanges) != 30 {
		t.Errorf("без ограничения ожидалось 30 изменений, получено %d", len(all.RecentChanges))
	}
}

func TestStatsService(t *testing.T) {
	env := newTestEnv(t, RetentionPurge)
	if _, err := env.records.Create(hrFields(), upload("a.pdf", "x"), ""); err != nil {
		t.Fatalf("ошибка Create: %v", err)
	}

	st := NewStatsService(env.records).Stats()
	if st.Total != 1 || st.WithFiles != 1 || st.Outdated != 1 {
		t.Errorf("статистика: %+v", st)
	}
	if len(st.RecentChanges) != 2 {
		t.Errorf("ожидалось 2 изменения, получено %d", len(st.RecentChanges))
	}
}
