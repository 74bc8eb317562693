// records.go — командный слой записей (RecordService).
//
// RecordService — единственный писатель коллекции: каждая
// последовательность «найти → изменить → сохранить» выполняется
// под мьютексом. Чтение возвращает копии записей.
// Удаление двухфазное: RequestDelete выдаёт токен подтверждения
// с ограниченным сроком жизни, ConfirmDelete удаляет запись.
// Изменения файлов фиксируются только после сохранения коллекции.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/instruction-tracker/internal/domain/model"
	"github.com/bigkaa/instruction-tracker/internal/domain/staleness"
	"github.com/bigkaa/instruction-tracker/internal/repository"
)

// maxPendingDeletes — максимальное число одновременно ожидающих подтверждения удалений.
const maxPendingDeletes = 1024

// ErrFileTooLarge — размер загружаемого файла превышает допустимый.
var ErrFileTooLarge = errors.New("размер файла превышает допустимый")

// Upload — загружаемый файл.
type Upload struct {
	// Reader — поток данных файла
	Reader io.Reader
	// Filename — исходное имя файла
	Filename string
	// Size — заявленный размер (0 = неизвестен)
	Size int64
}

// UploadRules — ограничения на загружаемые файлы.
type UploadRules struct {
	// AllowedExtensions — допустимые расширения без точки, в нижнем регистре
	AllowedExtensions []string
	// MaxFileSize — максимальный размер файла в байтах (0 = без ограничения)
	MaxFileSize int64
}

// DeleteToken — токен подтверждения удаления.
type DeleteToken struct {
	Token     string    `json:"token"`
	RecordID  string    `json:"record_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RecordService — операции с записями.
type RecordService struct {
	mu       sync.Mutex
	repo     *repository.Repository
	versions *FileVersionStore
	policy   staleness.Policy
	rules    UploadRules
	tokens   *expirable.LRU[string, DeleteToken]
	tokenTTL time.Duration
	// pending — изменения файлов, ожидающие успешного сохранения коллекции
	pending  []*FileChange
	now      func() time.Time
	logger   *slog.Logger
}

// NewRecordService создаёт сервис записей.
func NewRecordService(
	repo *repository.Repository,
	versions *FileVersionStore,
	policy staleness.Policy,
	rules UploadRules,
	tokenTTL time.Duration,
	logger *slog.Logger,
) *RecordService {
	return &RecordService{
		repo:     repo,
		versions: versions,
		policy:   policy,
		rules:    rules,
		tokens:   expirable.NewLRU[string, DeleteToken](maxPendingDeletes, nil, tokenTTL),
		tokenTTL: tokenTTL,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "record_service")),
	}
}

// Policy возвращает политику актуальности.
func (s *RecordService) Policy() staleness.Policy {
	return s.policy
}

// Rules возвращает ограничения на загружаемые файлы.
func (s *RecordService) Rules() UploadRules {
	return s.rules
}

// Create создаёт запись и, если передан файл, прикрепляет его.
// При ошибке файла запись не создаётся.
func (s *RecordService) Create(fields model.Fields, upload *Upload, actor string) (rec *model.InstructionRecord, err error) {
	defer func() { observe("create", err) }()

	if err := s.checkUpload(upload); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err = model.NewRecord(fields, actor, s.now())
	if err != nil {
		return nil, err
	}

	var change *FileChange
	if upload != nil {
		if change, err = s.attach(rec, upload, actor, true); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Add(rec); err != nil {
		s.versions.Abort(change)
		return nil, err
	}

	s.logger.Info("Создана инструкция",
		slog.String("record_id", rec.ID),
		slog.String("title", rec.Title),
		slog.Bool("has_file", rec.HasFile),
	)

	return rec.Clone(), s.save(change)
}

// Edit изменяет поля записи и, если передан файл, заменяет текущий файл.
// Если ничего не изменилось, запись не сохраняется.
func (s *RecordService) Edit(id string, fields model.Fields, upload *Upload, actor string) (rec *model.InstructionRecord, err error) {
	defer func() { observe("edit", err) }()

	if err := s.checkUpload(upload); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err = s.repo.Find(id)
	if err != nil {
		return nil, err
	}

	changed, err := rec.ApplyEdit(fields, actor, s.now())
	if err != nil {
		return nil, err
	}

	var change *FileChange
	if upload != nil {
		if change, err = s.attach(rec, upload, actor, false); err != nil {
			return nil, err
		}
		changed = true
	}

	if !changed {
		return rec, nil
	}

	if err := s.repo.Replace(rec); err != nil {
		s.versions.Abort(change)
		return nil, err
	}

	s.logger.Info("Инструкция изменена",
		slog.String("record_id", rec.ID),
		slog.Bool("file_replaced", upload != nil),
	)

	return rec.Clone(), s.save(change)
}

// AttachFile прикрепляет новый файл к записи без изменения полей.
func (s *RecordService) AttachFile(id string, upload *Upload, actor string) (rec *model.InstructionRecord, err error) {
	defer func() { observe("attach", err) }()

	if upload == nil {
		return nil, &model.ValidationError{Missing: []string{"file"}}
	}
	if err := s.checkUpload(upload); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err = s.repo.Find(id)
	if err != nil {
		return nil, err
	}
	change, err := s.attach(rec, upload, actor, false)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Replace(rec); err != nil {
		s.versions.Abort(change)
		return nil, err
	}

	return rec.Clone(), s.save(change)
}

// Get возвращает копию записи.
func (s *RecordService) Get(id string) (*model.InstructionRecord, error) {
	return s.repo.Find(id)
}

// List возвращает записи по фильтру.
func (s *RecordService) List(f repository.Filter) []*model.InstructionRecord {
	return s.repo.List(f, s.policy)
}

// History возвращает историю изменений записи в порядке добавления.
func (s *RecordService) History(id string) ([]model.HistoryEntry, error) {
	rec, err := s.repo.Find(id)
	if err != nil {
		return nil, err
	}
	return rec.History, nil
}

// OpenFile открывает файл записи: текущий при version == 0,
// иначе архивную версию с указанным номером.
// Возвращает открытый файл и исходное имя файла.
func (s *RecordService) OpenFile(id string, version int) (*os.File, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.repo.Find(id)
	if err != nil {
		return nil, "", err
	}
	if version == 0 {
		return s.versions.OpenCurrent(rec)
	}
	return s.versions.OpenVersion(rec, version)
}

// Departments возвращает различные подразделения.
func (s *RecordService) Departments() []string {
	return s.repo.Departments()
}

// Responsibles возвращает различных ответственных.
func (s *RecordService) Responsibles() []string {
	return s.repo.Responsibles()
}

// RequestDelete выдаёт токен подтверждения удаления записи.
func (s *RecordService) RequestDelete(id string) (*DeleteToken, error) {
	if _, err := s.repo.Find(id); err != nil {
		return nil, err
	}

	tok := DeleteToken{
		Token:     uuid.New().String(),
		RecordID:  id,
		ExpiresAt: s.now().Add(s.tokenTTL).UTC(),
	}
	s.tokens.Add(tok.Token, tok)

	s.logger.Info("Запрошено удаление инструкции",
		slog.String("record_id", id),
		slog.Time("expires_at", tok.ExpiresAt),
	)

	return &tok, nil
}

// ConfirmDelete удаляет запись по действующему токену подтверждения.
// Освобождает текущий файл и архивные версии (по политике хранения),
// затем удаляет запись из коллекции и сохраняет её.
func (s *RecordService) ConfirmDelete(id, token, actor string) (err error) {
	defer func() { observe("delete", err) }()

	tok, ok := s.tokens.Get(token)
	if !ok || tok.RecordID != id {
		return model.ErrConfirmationRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.repo.Find(id)
	if err != nil {
		return err
	}

	change, err := s.versions.Detach(rec)
	if err != nil {
		return err
	}

	if err := s.repo.Remove(id); err != nil {
		s.versions.Abort(change)
		return err
	}
	s.tokens.Remove(token)

	if actor == "" {
		actor = model.DefaultActor
	}
	s.logger.Info("Инструкция удалена",
		slog.String("record_id", id),
		slog.String("title", rec.Title),
		slog.String("change_type", string(model.ChangeDelete)),
		slog.String("user", actor),
		slog.Int("files_released", len(change.Released)),
	)

	return s.save(change)
}

// Inventory возвращает ссылки записей на файлы (имя → запись) и список
// файлов каталога загрузок. Оба снимка берутся под блокировкой записи,
// поэтому незавершённая замена файла не видна как расхождение.
func (s *RecordService) Inventory() (map[string]string, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.versions.files.List()
	if err != nil {
		return nil, nil, &model.StorageError{Op: "list", Err: err}
	}
	return s.repo.Referenced(), names, nil
}

// CollectGarbage выполняет очистку хранилища версий под блокировкой записи.
func (s *RecordService) CollectGarbage() (walCleaned, purged, errs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions.CollectGarbage()
}

// RefreshGauges обновляет метрики количества записей.
func (s *RecordService) RefreshGauges() {
	all := s.repo.All()
	outdated, withFile := 0, 0
	for _, rec := range all {
		if rec.IsOutdated(s.policy) {
			outdated++
		}
		if rec.HasFile {
			withFile++
		}
	}
	recordsTotal.WithLabelValues("all").Set(float64(len(all)))
	recordsTotal.WithLabelValues("outdated").Set(float64(outdated))
	recordsTotal.WithLabelValues("with_file").Set(float64(withFile))
}

// save сохраняет коллекцию и фиксирует ожидающие изменения файлов.
// При ошибке сохранения изменения остаются в памяти, а файлы, на которые
// ссылается сохранённая на диске коллекция, возвращаются из корзины.
// Вызывается под мьютексом.
func (s *RecordService) save(changes ...*FileChange) error {
	for _, ch := range changes {
		if ch != nil {
			s.pending = append(s.pending, ch)
		}
	}

	if err := s.repo.Save(); err != nil {
		for _, ch := range changes {
			s.versions.Hold(ch)
		}
		s.logger.Error("Ошибка сохранения коллекции, изменения остаются в памяти",
			slog.String("error", err.Error()),
			slog.Int("pending_file_changes", len(s.pending)),
		)
		return err
	}

	if len(s.pending) > 0 {
		referenced := s.repo.Referenced()
		for _, ch := range s.pending {
			s.versions.Commit(ch, referenced)
		}
		s.pending = nil
	}
	s.RefreshGauges()
	return nil
}

// attach прикрепляет файл, ограничивая размер потока.
func (s *RecordService) attach(rec *model.InstructionRecord, upload *Upload, actor string, initial bool) (*FileChange, error) {
	reader := upload.Reader
	if s.rules.MaxFileSize > 0 {
		reader = &limitedReader{r: reader, remaining: s.rules.MaxFileSize}
	}

	change, err := s.versions.Attach(rec, reader, upload.Filename, actor, initial)
	if errors.Is(err, ErrFileTooLarge) {
		return nil, &model.ValidationError{Invalid: []string{"file"}}
	}
	return change, err
}

// checkUpload проверяет имя и заявленный размер файла.
func (s *RecordService) checkUpload(upload *Upload) error {
	if upload == nil {
		return nil
	}
	if strings.TrimSpace(upload.Filename) == "" {
		return &model.ValidationError{Missing: []string{"file"}}
	}
	if len(s.rules.AllowedExtensions) > 0 {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(upload.Filename)), ".")
		if !slices.Contains(s.rules.AllowedExtensions, ext) {
			return &model.ValidationError{Invalid: []string{"file"}}
		}
	}
	if s.rules.MaxFileSize > 0 && upload.Size > s.rules.MaxFileSize {
		return &model.ValidationError{Invalid: []string{"file"}}
	}
	return nil
}

// limitedReader возвращает ErrFileTooLarge, если поток длиннее лимита.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrFileTooLarge
	}
	// Читаем на байт больше лимита, чтобы обнаружить превышение
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, fmt.Errorf("%w (лимит превышен)", ErrFileTooLarge)
	}
	return n, err
}
