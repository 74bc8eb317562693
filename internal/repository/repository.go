// Пакет repository — хранилище коллекции записей о должностных инструкциях.
//
// Коллекция целиком хранится в одном JSON-файле (IT_DATA_FILE) и целиком
// загружается в память при старте. Запись на диск выполняется только
// явным вызовом Save: temp → fsync → atomic rename.
//
// Репозиторий выдаёт копии записей. Изменённая копия возвращается
// через Replace, поэтому неудачная операция не оставляет
// частично изменённых записей в коллекции.
package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bigkaa/instruction-tracker/internal/domain/model"
	"github.com/bigkaa/instruction-tracker/internal/domain/staleness"
	"github.com/bigkaa/instruction-tracker/internal/storage/atomicfile"
)

// Status — фильтр по актуальности.
type Status string

const (
	// StatusAny — без фильтра
	StatusAny Status = ""
	// StatusOutdated — требует актуализации
	StatusOutdated Status = "outdated"
	// StatusActual — актуальна
	StatusActual Status = "actual"
)

// Filter — параметры выборки записей. Пустые поля не ограничивают выборку.
type Filter struct {
	// Search — подстрока названия (без учёта регистра)
	Search string
	// Department — точное совпадение подразделения
	Department string
	// Responsible — точное совпадение ответственного
	Responsible string
	// Status — актуальность
	Status Status
}

// Repository — коллекция записей с сохранением в JSON-файл.
type Repository struct {
	path   string
	mu     sync.RWMutex
	order  []string                            // порядок вставки
	byID   map[string]*model.InstructionRecord // id → запись
	ready  bool
	logger *slog.Logger

	// saveMu сериализует запись файла (общий .tmp)
	saveMu sync.Mutex
}

// New создаёт пустой репозиторий. Для заполнения вызовите Load.
func New(path string, logger *slog.Logger) *Repository {
	return &Repository{
		path:   path,
		byID:   make(map[string]*model.InstructionRecord),
		logger: logger.With(slog.String("component", "repository")),
	}
}

// Load читает коллекцию с диска и заменяет текущее содержимое.
// Отсутствующий или повреждённый файл даёт пустую коллекцию:
// ошибка не возвращается, а логируется. Повреждённый файл
// сохраняется рядом с суффиксом .bak.
func (r *Repository) Load() []*model.InstructionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = nil
	r.byID = make(map[string]*model.InstructionRecord)
	r.ready = true

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Info("Файл данных не найден, коллекция пуста",
				slog.String("path", r.path),
			)
		} else {
			r.logger.Warn("Не удалось прочитать файл данных, коллекция пуста",
				slog.String("path", r.path),
				slog.String("error", err.Error()),
			)
		}
		return []*model.InstructionRecord{}
	}

	var records []*model.InstructionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		r.logger.Warn("Файл данных повреждён, коллекция пуста",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		if err := atomicfile.Write(r.path+".bak", data); err != nil {
			r.logger.Error("Не удалось сохранить копию повреждённого файла",
				slog.String("error", err.Error()),
			)
		}
		return []*model.InstructionRecord{}
	}

	for _, rec := range records {
		if rec == nil || rec.ID == "" {
			r.logger.Warn("Пропущена запись без идентификатора")
			continue
		}
		if _, dup := r.byID[rec.ID]; dup {
			r.logger.Warn("Пропущена запись с повторяющимся идентификатором",
				slog.String("record_id", rec.ID),
			)
			continue
		}
		rec.Normalize()
		r.byID[rec.ID] = rec
		r.order = append(r.order, rec.ID)
	}

	r.logger.Info("Коллекция записей загружена",
		slog.Int("records", len(r.order)),
		slog.String("path", r.path),
	)

	return r.cloneAll()
}

// Save атомарно записывает всю коллекцию на диск.
// При ошибке состояние в памяти не меняется, возвращается *model.PersistenceError.
func (r *Repository) Save() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	data, err := r.marshal()
	r.mu.RUnlock()
	if err != nil {
		return &model.PersistenceError{Op: "serialize", Err: err}
	}

	if err := atomicfile.Write(r.path, data); err != nil {
		return &model.PersistenceError{Op: "write", Err: err}
	}
	return nil
}

// marshal сериализует коллекцию: отступ 2 пробела, UTF-8 без
// экранирования HTML, поля в порядке объявления структуры.
// Вызывается под блокировкой.
func (r *Repository) marshal() ([]byte, error) {
	records := make([]*model.InstructionRecord, 0, len(r.order))
	for _, id := range r.order {
		records = append(records, r.byID[id])
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsReady возвращает true после первого Load.
func (r *Repository) IsReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Path возвращает путь к файлу данных.
func (r *Repository) Path() string {
	return r.path
}

// Find возвращает копию записи по идентификатору.
func (r *Repository) Find(id string) (*model.InstructionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "инструкция", ID: id}
	}
	return rec.Clone(), nil
}

// Add добавляет запись в конец коллекции. На диск не сохраняет.
func (r *Repository) Add(rec *model.InstructionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[rec.ID]; ok {
		return fmt.Errorf("%w: %s", model.ErrDuplicateID, rec.ID)
	}
	r.byID[rec.ID] = rec.Clone()
	r.order = append(r.order, rec.ID)
	return nil
}

// Replace заменяет запись с тем же идентификатором, сохраняя её позицию.
func (r *Repository) Replace(rec *model.InstructionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[rec.ID]; !ok {
		return &model.NotFoundError{Kind: "инструкция", ID: rec.ID}
	}
	r.byID[rec.ID] = rec.Clone()
	return nil
}

// Remove удаляет запись из коллекции. На диск не сохраняет.
func (r *Repository) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return &model.NotFoundError{Kind: "инструкция", ID: id}
	}
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// All возвращает копии всех записей в порядке вставки.
func (r *Repository) All() []*model.InstructionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cloneAll()
}

// List возвращает копии записей, удовлетворяющих фильтру, в порядке вставки.
func (r *Repository) List(f Filter, policy staleness.Policy) []*model.InstructionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))

	result := make([]*model.InstructionRecord, 0, len(r.order))
	for _, id := range r.order {
		rec := r.byID[id]
		if search != "" && !strings.Contains(strings.ToLower(rec.Title), search) {
			continue
		}
		if f.Department != "" && rec.Department != f.Department {
			continue
		}
		if f.Responsible != "" && rec.Responsible != f.Responsible {
			continue
		}
		switch f.Status {
		case StatusOutdated:
			if !rec.IsOutdated(policy) {
				continue
			}
		case StatusActual:
			if rec.IsOutdated(policy) {
				continue
			}
		}
		result = append(result, rec.Clone())
	}
	return result
}

// Count возвращает количество записей.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Departments возвращает отсортированный список различных подразделений.
func (r *Repository) Departments() []string {
	return r.distinct(func(rec *model.InstructionRecord) string { return rec.Department })
}

// Responsibles возвращает отсортированный список различных ответственных.
func (r *Repository) Responsibles() []string {
	return r.distinct(func(rec *model.InstructionRecord) string { return rec.Responsible })
}

// Referenced возвращает все имена файлов, на которые ссылаются записи
// (текущие и архивные версии): имя файла → идентификатор записи.
func (r *Repository) Referenced() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make(map[string]string)
	for _, id := range r.order {
		rec := r.byID[id]
		if name, ok := rec.CurrentFile(); ok {
			refs[name] = id
		}
		for _, v := range rec.FileVersions {
			refs[v.Filename] = id
		}
	}
	return refs
}

func (r *Repository) distinct(value func(*model.InstructionRecord) string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var result []string
	for _, id := range r.order {
		v := value(r.byID[id])
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	sort.Strings(result)
	return result
}

// cloneAll вызывается под блокировкой.
func (r *Repository) cloneAll() []*model.InstructionRecord {
	result := make([]*model.InstructionRecord, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.byID[id].Clone())
	}
	return result
}
