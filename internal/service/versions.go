// versions.go — хранилище версий файлов записи (FileVersionStore).
//
// Замена файла выполняется в WAL-транзакции:
//  1. копия текущего файла → "<id>_v<N>_<имя>"
//  2. запись нового файла → "<id>_<имя>"
//  3. старый текущий файл (если имя отличается) → корзина
//  4. изменение записи в памяти
//  5. после сохранения коллекции: WAL Commit, очистка корзины (Commit)
//
// При ошибке на шагах 1–3 выполненные шаги откатываются,
// запись не меняется. Если коллекцию сохранить не удалось, старый файл
// возвращается из корзины (Hold), а транзакция остаётся открытой.
// Незавершённые после сбоя транзакции откатываются при старте (Recover).
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bigkaa/instruction-tracker/internal/domain/model"
	"github.com/bigkaa/instruction-tracker/internal/storage/filestore"
	"github.com/bigkaa/instruction-tracker/internal/storage/wal"
)

// RetentionPolicy — судьба архивных версий при удалении записи.
type RetentionPolicy string

const (
	// RetentionPurge — архивные версии удаляются вместе с записью
	RetentionPurge RetentionPolicy = "purge"
	// RetentionRetain — архивные версии остаются на диске
	RetentionRetain RetentionPolicy = "retain"
)

// FileVersionStore — текущий файл и архивные версии файлов записей.
type FileVersionStore struct {
	files     *filestore.FileStore
	walEngine *wal.WAL
	retention RetentionPolicy
	now       func() time.Time
	logger    *slog.Logger
}

// NewFileVersionStore создаёт хранилище версий.
func NewFileVersionStore(
	files *filestore.FileStore,
	walEngine *wal.WAL,
	retention RetentionPolicy,
	logger *slog.Logger,
) *FileVersionStore {
	if retention != RetentionRetain {
		retention = RetentionPurge
	}
	return &FileVersionStore{
		files:     files,
		walEngine: walEngine,
		retention: retention,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "file_versions")),
	}
}

// Retention возвращает политику хранения архивных версий.
func (vs *FileVersionStore) Retention() RetentionPolicy {
	return vs.retention
}

// FileChange — выполненное на диске, но ещё не зафиксированное изменение
// файлов записи. WAL-транзакция остаётся открытой, освобождённые файлы
// лежат в корзине, пока коллекция не сохранена: после сохранения
// изменение фиксируется Commit, при ошибке сохранения — Hold,
// при отказе от изменения — Abort.
type FileChange struct {
	// Written — результат записи нового файла (nil для Detach)
	Written *filestore.PutResult
	// Released — файлы, перемещённые в корзину
	Released []string

	txID     string
	recordID string
	created  []string
	// restored — освобождённые файлы возвращены в каталог загрузок (Hold)
	restored bool
}

// Attach делает загруженный файл текущим файлом записи.
// Предыдущий текущий файл архивируется как новая версия.
// initial — первая загрузка при создании записи (влияет на текст истории).
// Запись rec изменяется только при успехе всех операций с диском.
// Возвращённое изменение нужно зафиксировать (Commit) после сохранения
// коллекции или отменить (Abort).
func (vs *FileVersionStore) Attach(rec *model.InstructionRecord, reader io.Reader, originalName, actor string, initial bool) (*FileChange, error) {
	original := filestore.SanitizeName(originalName)
	newName := filestore.CurrentName(rec.ID, original)
	oldName, hadFile := rec.CurrentFile()
	archive := hadFile && vs.files.Exists(oldName)
	versionName := filestore.VersionName(rec.ID, rec.NextVersion(), rec.CurrentOriginalName())
	now := vs.now()

	if err := checkNames(rec, newName, versionName, archive); err != nil {
		return nil, &model.StorageError{Op: "name", Err: err}
	}

	tx, err := vs.walEngine.StartTransaction(wal.OpAttach, rec.ID)
	if err != nil {
		return nil, &model.StorageError{Op: "wal", Err: err}
	}
	change := &FileChange{txID: tx.TransactionID, recordID: rec.ID}

	fail := func(op string, err error) error {
		vs.abort(change)
		vs.logger.Error("Ошибка замены файла, изменения откатаны",
			slog.String("record_id", rec.ID),
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return &model.StorageError{Op: op, Err: err}
	}

	// 1. Архивируем текущий файл
	var archived *model.FileVersionEntry
	if archive {
		if err := vs.walEngine.Track(change.txID, wal.StepCreate, versionName); err != nil {
			return nil, fail("wal", err)
		}
		if err := vs.files.Copy(oldName, versionName); err != nil {
			return nil, fail("archive", err)
		}
		change.created = append(change.created, versionName)

		archived = &model.FileVersionEntry{
			Version:      rec.NextVersion(),
			Filename:     versionName,
			OriginalName: rec.CurrentOriginalName(),
			Timestamp:    now.Format(model.TimestampLayout),
		}
	} else if hadFile {
		vs.logger.Warn("Текущий файл записи отсутствует на диске, архивная версия не создаётся",
			slog.String("record_id", rec.ID),
			slog.String("filename", oldName),
		)
	}

	// 2. Записываем новый файл. При совпадении имени атомарный rename
	// заменяет старый файл, его копия уже в архиве.
	sameName := hadFile && oldName == newName
	if !sameName {
		if err := vs.walEngine.Track(change.txID, wal.StepCreate, newName); err != nil {
			return nil, fail("wal", err)
		}
	}
	result, err := vs.files.Put(newName, reader)
	if err != nil {
		return nil, fail("write", err)
	}
	if !sameName {
		change.created = append(change.created, newName)
	}
	change.Written = result

	// 3. Освобождаем старый текущий файл
	if hadFile && !sameName {
		if err := vs.walEngine.Track(change.txID, wal.StepStash, oldName); err != nil {
			return nil, fail("wal", err)
		}
		moved, err := vs.files.Stash(oldName)
		if err != nil {
			return nil, fail("release", err)
		}
		if moved {
			change.Released = append(change.Released, oldName)
		}
	}

	// 4. Изменяем запись
	rec.ApplyReplacement(archived, newName, original, actor, now, initial)

	fileBytesTotal.Add(float64(result.Size))
	vs.logger.Info("Файл записи заменён",
		slog.String("record_id", rec.ID),
		slog.String("filename", newName),
		slog.Int64("size", result.Size),
		slog.Bool("archived", archived != nil),
	)

	return change, nil
}

// checkNames проверяет, что новый текущий файл не займёт имя архивной версии.
func checkNames(rec *model.InstructionRecord, newName, versionName string, archive bool) error {
	if archive && newName == versionName {
		return fmt.Errorf("имя файла %s совпадает с именем архивной версии", newName)
	}
	for _, v := range rec.FileVersions {
		if v.Filename == newName {
			return fmt.Errorf("имя файла %s занято архивной версией %d", newName, v.Version)
		}
	}
	return nil
}

// Detach освобождает файлы записи перед её удалением: текущий файл
// и, при политике purge, архивные версии. Все файлы сначала
// перемещаются в корзину; если хотя бы одно перемещение не удалось,
// перемещённые файлы возвращаются на место.
// Освобождённые файлы перечислены в FileChange.Released.
func (vs *FileVersionStore) Detach(rec *model.InstructionRecord) (*FileChange, error) {
	var names []string
	if name, ok := rec.CurrentFile(); ok {
		names = append(names, name)
	}
	if vs.retention == RetentionPurge {
		for _, v := range rec.FileVersions {
			names = append(names, v.Filename)
		}
	}

	tx, err := vs.walEngine.StartTransaction(wal.OpDetach, rec.ID)
	if err != nil {
		return nil, &model.StorageError{Op: "wal", Err: err}
	}
	change := &FileChange{txID: tx.TransactionID, recordID: rec.ID}

	for _, name := range names {
		err := vs.walEngine.Track(change.txID, wal.StepStash, name)
		var moved bool
		if err == nil {
			moved, err = vs.files.Stash(name)
		}
		if err != nil {
			vs.abort(change)
			vs.logger.Error("Ошибка освобождения файлов, изменения откатаны",
				slog.String("record_id", rec.ID),
				slog.String("filename", name),
				slog.String("error", err.Error()),
			)
			return nil, &model.StorageError{Op: "release", Err: err}
		}
		if moved {
			change.Released = append(change.Released, name)
		}
	}

	rec.ClearCurrentFile()

	vs.logger.Info("Файлы записи освобождены",
		slog.String("record_id", rec.ID),
		slog.Int("released", len(change.Released)),
		slog.String("retention", string(vs.retention)),
	)

	return change, nil
}

// Commit фиксирует изменение после сохранения коллекции: коммитит
// WAL-транзакцию и окончательно удаляет освобождённые файлы.
// referenced — ссылки сохранённой коллекции; файл, возвращённый Hold
// и снова занятый записью, не удаляется.
// Ошибки здесь только логируются: коллекция уже сохранена.
func (vs *FileVersionStore) Commit(ch *FileChange, referenced map[string]string) {
	if ch == nil {
		return
	}
	if err := vs.walEngine.Commit(ch.txID); err != nil {
		vs.logger.Error("Ошибка коммита WAL",
			slog.String("tx_id", ch.txID),
			slog.String("error", err.Error()),
		)
	}
	for _, name := range ch.Released {
		var err error
		if ch.restored {
			if _, ok := referenced[name]; ok {
				continue
			}
			err = vs.files.Delete(name)
		} else {
			err = vs.files.Purge(name)
		}
		if err != nil {
			vs.logger.Warn("Не удалось удалить освобождённый файл",
				slog.String("filename", name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Hold вызывается, когда коллекцию сохранить не удалось: освобождённые
// файлы возвращаются в каталог загрузок, потому что сохранённая на диске
// коллекция всё ещё ссылается на них. Транзакция остаётся незавершённой:
// её фиксирует следующий успешный Commit, а после перезапуска — Recover.
func (vs *FileVersionStore) Hold(ch *FileChange) {
	if ch == nil || ch.restored {
		return
	}
	for _, name := range ch.Released {
		if err := vs.files.Restore(name); err != nil {
			vs.logger.Error("Не удалось вернуть файл из корзины",
				slog.String("filename", name),
				slog.String("error", err.Error()),
			)
		}
	}
	ch.restored = true
	vs.logger.Warn("Изменение файлов ожидает сохранения коллекции",
		slog.String("tx_id", ch.txID),
		slog.String("record_id", ch.recordID),
	)
}

// Abort отменяет изменение, которое не попало в коллекцию.
func (vs *FileVersionStore) Abort(ch *FileChange) {
	if ch == nil {
		return
	}
	vs.abort(ch)
	vs.logger.Warn("Изменение файлов отменено",
		slog.String("tx_id", ch.txID),
		slog.String("record_id", ch.recordID),
	)
}

// abort возвращает файлы из корзины, удаляет созданные и откатывает WAL.
func (vs *FileVersionStore) abort(ch *FileChange) {
	released := ch.Released
	if ch.restored {
		released = nil
	}
	vs.compensate(ch.created, released)
	if err := vs.walEngine.Rollback(ch.txID); err != nil {
		vs.logger.Error("Ошибка отката WAL",
			slog.String("tx_id", ch.txID),
			slog.String("error", err.Error()),
		)
	}
}

// OpenCurrent открывает текущий файл записи.
func (vs *FileVersionStore) OpenCurrent(rec *model.InstructionRecord) (*os.File, string, error) {
	name, ok := rec.CurrentFile()
	if !ok {
		return nil, "", &model.NotFoundError{Kind: "файл", ID: rec.ID}
	}
	f, err := vs.open(name)
	if err != nil {
		return nil, "", err
	}
	return f, rec.CurrentOriginalName(), nil
}

// OpenVersion открывает архивную версию файла записи.
func (vs *FileVersionStore) OpenVersion(rec *model.InstructionRecord, version int) (*os.File, string, error) {
	v, ok := rec.Version(version)
	if !ok {
		return nil, "", &model.NotFoundError{Kind: "версия файла", ID: fmt.Sprintf("%s/v%d", rec.ID, version)}
	}
	f, err := vs.open(v.Filename)
	if err != nil {
		return nil, "", err
	}
	return f, v.OriginalName, nil
}

func (vs *FileVersionStore) open(name string) (*os.File, error) {
	f, err := vs.files.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &model.NotFoundError{Kind: "файл", ID: name}
		}
		return nil, &model.StorageError{Op: "open", Err: err}
	}
	return f, nil
}

// Recover откатывает незавершённые транзакции после сбоя.
// referenced — имена файлов, на которые ссылается загруженная коллекция.
// Созданные транзакцией файлы без ссылок удаляются; файлы из корзины
// возвращаются, если коллекция на них ссылается, иначе удаляются.
func (vs *FileVersionStore) Recover(referenced map[string]string) (int, error) {
	pending, err := vs.walEngine.RecoverPending()
	if err != nil {
		return 0, err
	}

	for _, entry := range pending {
		for _, name := range entry.Created {
			if _, ok := referenced[name]; ok {
				continue
			}
			if err := vs.files.Delete(name); err != nil {
				vs.logger.Error("Не удалось удалить файл незавершённой транзакции",
					slog.String("tx_id", entry.TransactionID),
					slog.String("filename", name),
					slog.String("error", err.Error()),
				)
			}
		}
		for _, name := range entry.Stashed {
			if _, ok := referenced[name]; ok && !vs.files.Exists(name) {
				if err := vs.files.Restore(name); err != nil {
					vs.logger.Warn("Не удалось восстановить файл из корзины",
						slog.String("tx_id", entry.TransactionID),
						slog.String("filename", name),
						slog.String("error", err.Error()),
					)
				}
				continue
			}
			if err := vs.files.Purge(name); err != nil {
				vs.logger.Warn("Не удалось очистить корзину",
					slog.String("filename", name),
					slog.String("error", err.Error()),
				)
			}
		}

		if err := vs.walEngine.Rollback(entry.TransactionID); err != nil {
			vs.logger.Error("Ошибка отката WAL при восстановлении",
				slog.String("tx_id", entry.TransactionID),
				slog.String("error", err.Error()),
			)
		}
		vs.logger.Warn("Незавершённая транзакция откатана",
			slog.String("tx_id", entry.TransactionID),
			slog.String("operation", string(entry.Operation)),
			slog.String("record_id", entry.RecordID),
		)
	}

	if _, err := vs.walEngine.CleanCommitted(); err != nil {
		vs.logger.Warn("Ошибка очистки WAL", slog.String("error", err.Error()))
	}

	return len(pending), nil
}

// CollectGarbage удаляет завершённые WAL-записи и очищает корзину
// от файлов, не принадлежащих незавершённым транзакциям.
// Вызывается, когда замены и удаления файлов не выполняются.
func (vs *FileVersionStore) CollectGarbage() (walCleaned, purged, errs int) {
	cleaned, err := vs.walEngine.CleanCommitted()
	if err != nil {
		vs.logger.Warn("Ошибка очистки WAL", slog.String("error", err.Error()))
		errs++
	}

	trash, err := vs.files.Trash()
	if err != nil {
		vs.logger.Warn("Ошибка чтения корзины", slog.String("error", err.Error()))
		return cleaned, 0, errs + 1
	}
	if len(trash) == 0 {
		return cleaned, 0, errs
	}

	pending, err := vs.walEngine.RecoverPending()
	if err != nil {
		vs.logger.Warn("Ошибка чтения WAL", slog.String("error", err.Error()))
		return cleaned, 0, errs + 1
	}
	keep := make(map[string]bool)
	for _, entry := range pending {
		for _, name := range entry.Stashed {
			keep[name] = true
		}
	}

	for _, name := range trash {
		if keep[name] {
			continue
		}
		if err := vs.files.Purge(name); err != nil {
			vs.logger.Warn("Не удалось очистить корзину",
				slog.String("filename", name),
				slog.String("error", err.Error()),
			)
			errs++
			continue
		}
		purged++
	}
	return cleaned, purged, errs
}

// compensate отменяет выполненные шаги: удаляет созданные файлы
// и возвращает файлы из корзины, в обратном порядке.
func (vs *FileVersionStore) compensate(created, stashed []string) {
	for i := len(stashed) - 1; i >= 0; i-- {
		if err := vs.files.Restore(stashed[i]); err != nil {
			vs.logger.Error("Не удалось вернуть файл из корзины",
				slog.String("filename", stashed[i]),
				slog.String("error", err.Error()),
			)
		}
	}
	for i := len(created) - 1; i >= 0; i-- {
		if err := vs.files.Delete(created[i]); err != nil {
			vs.logger.Error("Не удалось удалить созданный файл",
				slog.String("filename", created[i]),
				slog.String("error", err.Error()),
			)
		}
	}
}
