// Пакет model — доменные модели реестра должностных инструкций.
// InstructionRecord — единая структура записи, используется как
// in-memory представление и как элемент JSON-коллекции на диске
// (data/instructions.json). Порядок и имена JSON-полей — контракт
// совместимости с существующими хранилищами, менять нельзя.
package model

import (
	"strings"
	"time"

	"github.com/bigkaa/instruction-tracker/internal/domain/staleness"
)

// DateLayout — формат календарных дат записи (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// TimestampLayout — формат меток времени истории и версий (точность до секунды).
const TimestampLayout = "2006-01-02 15:04:05"

// DefaultActor — автор изменений по умолчанию.
const DefaultActor = "Система"

// ChangeKind — тип записи в истории изменений.
// Значения сохраняются в change_type как есть.
type ChangeKind string

const (
	// ChangeCreate — создание записи
	ChangeCreate ChangeKind = "Создание"
	// ChangeEdit — изменение полей записи
	ChangeEdit ChangeKind = "Редактирование"
	// ChangeFileUpload — загрузка или замена файла
	ChangeFileUpload ChangeKind = "Файл"
	// ChangeDelete — удаление записи
	ChangeDelete ChangeKind = "Удаление"
)

// HistoryEntry — неизменяемая запись журнала изменений.
type HistoryEntry struct {
	// Timestamp — время изменения, "YYYY-MM-DD HH:MM:SS"
	Timestamp string `json:"timestamp"`
	// ChangeType — тип изменения
	ChangeType ChangeKind `json:"change_type"`
	// Details — описание изменения
	Details string `json:"details"`
	// User — автор изменения
	User string `json:"user"`
}

// FileVersionEntry — архивная версия файла, вытесненная новой загрузкой.
type FileVersionEntry struct {
	// Version — номер версии (с 1, монотонно в пределах записи)
	Version int `json:"version"`
	// Filename — имя архивной копии в каталоге загрузок
	Filename string `json:"filename"`
	// OriginalName — исходное имя файла
	OriginalName string `json:"original_name"`
	// Timestamp — время архивирования
	Timestamp string `json:"timestamp"`
}

// InstructionRecord — запись о должностной инструкции.
//
// Инварианты:
//   - ID назначается при создании и не меняется;
//   - HasFile == (Filename != nil);
//   - History и FileVersions только дополняются;
//   - номера FileVersions идут подряд с 1.
type InstructionRecord struct {
	ID               string             `json:"id"`
	Title            string             `json:"title"`
	Department       string             `json:"department"`
	RegistrationDate string             `json:"registration_date"`
	LastUpdate       string             `json:"last_update"`
	Responsible      string             `json:"responsible"`
	Email            string             `json:"email"`
	HasFile          bool               `json:"has_file"`
	Filename         *string            `json:"filename"`
	History          []HistoryEntry     `json:"history"`
	FileVersions     []FileVersionEntry `json:"file_versions"`
}

// Normalize приводит запись, прочитанную с диска, к инвариантам:
// пустые срезы вместо null (старые данные без history/file_versions),
// HasFile выводится из Filename.
func (r *InstructionRecord) Normalize() {
	if r.History == nil {
		r.History = []HistoryEntry{}
	}
	if r.FileVersions == nil {
		r.FileVersions = []FileVersionEntry{}
	}
	if r.Filename != nil && *r.Filename == "" {
		r.Filename = nil
	}
	r.HasFile = r.Filename != nil
}

// AppendHistory добавляет запись в конец журнала изменений.
// Пустой actor заменяется на DefaultActor.
func (r *InstructionRecord) AppendHistory(kind ChangeKind, details, actor string, at time.Time) {
	if actor == "" {
		actor = DefaultActor
	}
	r.History = append(r.History, HistoryEntry{
		Timestamp:  at.Format(TimestampLayout),
		ChangeType: kind,
		Details:    details,
		User:       actor,
	})
}

// CurrentFile возвращает имя текущего файла в хранилище.
func (r *InstructionRecord) CurrentFile() (string, bool) {
	if r.Filename == nil {
		return "", false
	}
	return *r.Filename, true
}

// CurrentOriginalName возвращает исходное имя текущего файла
// (имя хранения без префикса "<id>_").
func (r *InstructionRecord) CurrentOriginalName() string {
	name, ok := r.CurrentFile()
	if !ok {
		return ""
	}
	return OriginalNameFromStored(r.ID, name)
}

// NextVersion возвращает номер следующей архивной версии.
func (r *InstructionRecord) NextVersion() int {
	return len(r.FileVersions) + 1
}

// Version возвращает архивную версию по номеру.
func (r *InstructionRecord) Version(number int) (FileVersionEntry, bool) {
	for _, v := range r.FileVersions {
		if v.Version == number {
			return v, true
		}
	}
	return FileVersionEntry{}, false
}

// ApplyReplacement фиксирует в памяти результат замены файла:
// архивная версия (nil, если предыдущего файла не было),
// новый текущий файл и ровно одна запись истории типа «Файл».
// Первая загрузка при создании записи (initial) отмечается как
// «Загружен файл», любая загрузка при изменении — как новая версия.
// Вызывается только после успешного завершения всех операций с диском.
func (r *InstructionRecord) ApplyReplacement(archived *FileVersionEntry, storedName, originalName, actor string, at time.Time, initial bool) {
	details := "Загружена новая версия файла: " + originalName
	if initial {
		details = "Загружен файл: " + originalName
	}
	if archived != nil {
		r.FileVersions = append(r.FileVersions, *archived)
	}

	name := storedName
	r.Filename = &name
	r.HasFile = true

	r.AppendHistory(ChangeFileUpload, details, actor, at)
}

// ClearCurrentFile снимает ссылку на текущий файл.
func (r *InstructionRecord) ClearCurrentFile() {
	r.Filename = nil
	r.HasFile = false
}

// IsOutdated проверяет актуальность записи по политике.
func (r *InstructionRecord) IsOutdated(p staleness.Policy) bool {
	return p.IsOutdated(r.LastUpdate)
}

// Clone возвращает глубокую копию записи.
func (r *InstructionRecord) Clone() *InstructionRecord {
	c := *r
	if r.Filename != nil {
		name := *r.Filename
		c.Filename = &name
	}
	c.History = append([]HistoryEntry(nil), r.History...)
	if c.History == nil {
		c.History = []HistoryEntry{}
	}
	c.FileVersions = append([]FileVersionEntry(nil), r.FileVersions...)
	if c.FileVersions == nil {
		c.FileVersions = []FileVersionEntry{}
	}
	return &c
}

// OriginalNameFromStored восстанавливает исходное имя файла из имени хранения
// текущего файла ("<id>_<name>" или экранированного "<id>__<name>").
func OriginalNameFromStored(id, stored string) string {
	if rest, ok := strings.CutPrefix(stored, id+"_"); ok {
		return strings.TrimPrefix(rest, "_")
	}
	if _, rest, ok := strings.Cut(stored, "_"); ok {
		return strings.TrimPrefix(rest, "_")
	}
	return stored
}
