// Пакет filestore — операции с файлами инструкций в каталоге загрузок.
// Каталог плоский: текущий файл записи хранится как "<id>_<имя>",
// архивные версии — как "<id>_v<N>_<имя>". Текущий файл с исходным
// именем вида "v<N>_..." или "_..." хранится как "<id>__<имя>":
// так он не совпадает ни с одной архивной версией.
// Запись выполняется атомарно с подсчётом SHA-256 на лету,
// удаление поддерживает обратимый режим через каталог .trash.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/instruction-tracker/internal/storage/atomicfile"
)

// trashDir — подкаталог для обратимо удалённых файлов.
const trashDir = ".trash"

// maxNameLen — ограничение длины исходного имени файла.
const maxNameLen = 200

// FileStore — управление файлами в каталоге загрузок.
type FileStore struct {
	// dir — каталог загрузок (IT_UPLOADS_DIR)
	dir string
}

// PutResult — результат записи файла.
type PutResult struct {
	// Name — имя файла в каталоге загрузок
	Name string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого
	Checksum string
}

// New создаёт FileStore. Создаёт каталог загрузок и каталог .trash,
// если они не существуют.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, trashDir), 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог загрузок %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// CurrentName возвращает имя хранения текущего файла записи.
func CurrentName(recordID, originalName string) string {
	name := SanitizeName(originalName)
	if hasVersionPrefix(name) || strings.HasPrefix(name, "_") {
		return recordID + "__" + name
	}
	return recordID + "_" + name
}

// hasVersionPrefix проверяет, начинается ли имя с "v<цифры>_".
func hasVersionPrefix(name string) bool {
	rest, ok := strings.CutPrefix(name, "v")
	if !ok {
		return false
	}
	digits := len(rest) - len(strings.TrimLeft(rest, "0123456789"))
	return digits > 0 && strings.HasPrefix(rest[digits:], "_")
}

// VersionName возвращает имя хранения архивной версии файла.
func VersionName(recordID string, version int, originalName string) string {
	return fmt.Sprintf("%s_v%d_%s", recordID, version, SanitizeName(originalName))
}

// Put атомарно записывает данные из reader под именем name.
// Существующий файл с тем же именем заменяется целиком.
func (fs *FileStore) Put(name string, reader io.Reader) (*PutResult, error) {
	path, err := fs.path(name)
	if err != nil {
		return nil, err
	}

	hasher := sha256.New()
	size, err := atomicfile.Copy(path, io.TeeReader(reader, hasher))
	if err != nil {
		return nil, fmt.Errorf("ошибка записи файла %s: %w", name, err)
	}

	return &PutResult{
		Name:     name,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Copy атомарно копирует файл src в dst.
func (fs *FileStore) Copy(src, dst string) error {
	f, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	dstPath, err := fs.path(dst)
	if err != nil {
		return err
	}

	if _, err := atomicfile.Copy(dstPath, f); err != nil {
		return fmt.Errorf("ошибка копирования %s → %s: %w", src, dst, err)
	}
	return nil
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
// Для отсутствующего файла ошибка оборачивает os.ErrNotExist.
func (fs *FileStore) Open(name string) (*os.File, error) {
	path, err := fs.path(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("файл не найден: %s: %w", name, os.ErrNotExist)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", name, err)
	}
	return f, nil
}

// Delete удаляет файл. Возвращает nil, если файла уже нет.
func (fs *FileStore) Delete(name string) error {
	path, err := fs.path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", name, err)
	}
	return nil
}

// Exists проверяет существование файла.
func (fs *FileStore) Exists(name string) bool {
	path, err := fs.path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Size возвращает размер файла.
func (fs *FileStore) Size(name string) (int64, error) {
	path, err := fs.path(name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения информации о файле %s: %w", name, err)
	}
	return info.Size(), nil
}

// Stash обратимо убирает файл в каталог .trash.
// Отсутствующий файл не считается ошибкой, возвращается false.
func (fs *FileStore) Stash(name string) (bool, error) {
	path, err := fs.path(name)
	if err != nil {
		return false, err
	}

	if err := os.Rename(path, fs.trashPath(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка перемещения %s в корзину: %w", name, err)
	}
	return true, nil
}

// Restore возвращает файл из каталога .trash на прежнее место.
func (fs *FileStore) Restore(name string) error {
	path, err := fs.path(name)
	if err != nil {
		return err
	}
	if err := os.Rename(fs.trashPath(name), path); err != nil {
		return fmt.Errorf("ошибка восстановления %s из корзины: %w", name, err)
	}
	return nil
}

// Purge окончательно удаляет файл из каталога .trash.
func (fs *FileStore) Purge(name string) error {
	if _, err := fs.path(name); err != nil {
		return err
	}
	if err := os.Remove(fs.trashPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка очистки корзины %s: %w", name, err)
	}
	return nil
}

// List возвращает отсортированные имена файлов каталога загрузок.
// Подкаталоги и временные файлы незавершённой записи пропускаются.
func (fs *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога загрузок %s: %w", fs.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || atomicfile.IsTemp(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Trash возвращает отсортированные имена файлов в каталоге .trash.
func (fs *FileStore) Trash() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.dir, trashDir))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения корзины: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Dir возвращает путь к каталогу загрузок.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// path возвращает полный путь файла. Имена с разделителями пути
// и специальные имена отклоняются.
func (fs *FileStore) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || name == trashDir ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("недопустимое имя файла: %q", name)
	}
	return filepath.Join(fs.dir, name), nil
}

func (fs *FileStore) trashPath(name string) string {
	return filepath.Join(fs.dir, trashDir, name)
}

// SanitizeName приводит исходное имя загружаемого файла к безопасному виду:
// отбрасывает путь клиента, управляющие символы и разделители.
// Пустой результат заменяется на "file".
func SanitizeName(name string) string {
	// Браузеры на Windows присылают полный путь
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var result strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if r < 0x20 || r == 0x7f || r == ':' {
			continue
		}
		result.WriteRune(r)
	}

	s := strings.Trim(result.String(), ". ")
	if s == "" {
		return "file"
	}
	if len(s) > maxNameLen {
		ext := filepath.Ext(s)
		if len(ext) > 16 {
			ext = ""
		}
		s = truncateRunes(strings.TrimSuffix(s, ext), maxNameLen-len(ext)) + ext
	}
	return s
}

// truncateRunes обрезает строку до n байт, не разрывая UTF-8 символы.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
