// Пакет staleness — политика актуальности должностных инструкций.
//
// Инструкция считается устаревшей, если дата последней актуализации
// старше порога. Порог задаётся в месяцах, месяц считается равным
// 30 дням (не календарному месяцу): 12 месяцев = 360 дней.
// Формат совместим с существующими хранилищами данных.
package staleness

import (
	"strings"
	"time"
)

// DefaultThresholdMonths — порог актуальности по умолчанию.
const DefaultThresholdMonths = 12

// daysPerMonth — длительность «месяца» в расчёте порога.
const daysPerMonth = 30

// dateLayout — формат даты актуализации (YYYY-MM-DD).
const dateLayout = "2006-01-02"

// IsOutdated возвращает true, если дата последней актуализации
// отсутствует, не разбирается или раньше now - thresholdMonths*30 дней.
//
// Функция тотальна: ошибки разбора даты не возвращаются,
// некорректная дата трактуется как «требует актуализации».
func IsOutdated(lastUpdate string, thresholdMonths int, now time.Time) bool {
	value := strings.TrimSpace(lastUpdate)
	if value == "" {
		return true
	}

	updated, err := time.ParseInLocation(dateLayout, value, now.Location())
	if err != nil {
		return true
	}

	threshold := now.Add(-time.Duration(thresholdMonths*daysPerMonth) * 24 * time.Hour)
	return updated.Before(threshold)
}

// Policy — политика актуальности с фиксированным порогом и источником времени.
type Policy struct {
	// ThresholdMonths — порог в 30-дневных месяцах
	ThresholdMonths int
	// Now — источник текущего времени (nil = time.Now)
	Now func() time.Time
}

// NewPolicy создаёт политику с указанным порогом.
// Неположительный порог заменяется значением по умолчанию.
func NewPolicy(thresholdMonths int) Policy {
	if thresholdMonths <= 0 {
		thresholdMonths = DefaultThresholdMonths
	}
	return Policy{ThresholdMonths: thresholdMonths}
}

// IsOutdated применяет политику к дате последней актуализации.
func (p Policy) IsOutdated(lastUpdate string) bool {
	months := p.ThresholdMonths
	if months <= 0 {
		months = DefaultThresholdMonths
	}
	return IsOutdated(lastUpdate, months, p.now())
}

// ThresholdDays возвращает порог в днях.
func (p Policy) ThresholdDays() int {
	months := p.ThresholdMonths
	if months <= 0 {
		months = DefaultThresholdMonths
	}
	return months * daysPerMonth
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
