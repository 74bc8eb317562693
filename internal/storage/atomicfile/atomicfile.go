// Пакет atomicfile — атомарная запись файлов на диск.
// Паттерн: temp файл в той же директории → fsync → atomic rename →
// fsync директории, чтобы переименование пережило сбой питания.
// Читатель видит либо старое содержимое файла, либо новое целиком.
package atomicfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// tmpSuffix — суффикс временного файла.
const tmpSuffix = ".tmp"

// Write атомарно записывает data в path.
// Директория создаётся, если не существует.
func Write(path string, data []byte) error {
	_, err := WriteFrom(path, func(w io.Writer) (int64, error) {
		n, err := w.Write(data)
		return int64(n), err
	})
	return err
}

// Copy атомарно записывает содержимое reader в path.
// Возвращает количество записанных байт.
func Copy(path string, reader io.Reader) (int64, error) {
	return WriteFrom(path, func(w io.Writer) (int64, error) {
		return io.Copy(w, reader)
	})
}

// WriteFrom атомарно записывает в path данные, которые формирует fill.
// При любой ошибке временный файл удаляется, целевой файл не меняется.
func WriteFrom(path string, fill func(io.Writer) (int64, error)) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	tmpPath := path + tmpSuffix

	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := fill(f)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка записи: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	if err := SyncDir(dir); err != nil {
		return 0, err
	}

	return size, nil
}

// SyncDir сбрасывает на диск запись каталога dir (результат rename).
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("ошибка открытия директории %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("ошибка fsync директории %s: %w", dir, err)
	}
	return nil
}

// IsTemp проверяет, является ли имя временным файлом незавершённой записи.
func IsTemp(name string) bool {
	return filepath.Ext(name) == tmpSuffix
}
