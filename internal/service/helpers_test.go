package service

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/instruction-tracker/internal/domain/model"
	"github.com/bigkaa/instruction-tracker/internal/domain/staleness"
	"github.com/bigkaa/instruction-tracker/internal/repository"
	"github.com/bigkaa/instruction-tracker/internal/storage/filestore"
	"github.com/bigkaa/instruction-tracker/internal/storage/wal"
)

// testNow — фиксированное «сейчас» для сценариев.
var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// testLogger возвращает логгер для тестов (вывод подавляется).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// testEnv — набор сервисов поверх временных каталогов.
type testEnv struct {
	dir      string
	repo     *repository.Repository
	files    *filestore.FileStore
	walE     *wal.WAL
	versions *FileVersionStore
	records  *RecordService
}

func newTestEnv(t *testing.T, retention RetentionPolicy) *testEnv {
	t.Helper()
	dir := t.TempDir()

	files, err := filestore.New(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	walEngine, err := wal.New(filepath.Join(dir, "wal"), testLogger())
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}

	repo := repository.New(filepath.Join(dir, "instructions.json"), testLogger())
	repo.Load()

	versions := NewFileVersionStore(files, walEngine, retention, testLogger())
	versions.now = func() time.Time { return testNow }

	policy := staleness.NewPolicy(12)
	policy.Now = func() time.Time { return testNow }

	records := NewRecordService(repo, versions, policy, UploadRules{
		AllowedExtensions: []string{"pdf", "doc", "docx", "txt"},
		MaxFileSize:       1024,
	}, time.Minute, testLogger())
	records.now = func() time.Time { return testNow }

	return &testEnv{
		dir:      dir,
		repo:     repo,
		files:    files,
		walE:     walEngine,
		versions: versions,
		records:  records,
	}
}

func hrFields() model.Fields {
	return model.Fields{
		Title:            "HR Policy",
		Department:       "HR",
		RegistrationDate: "2023-01-01",
		LastUpdate:       "2023-01-01",
		Responsible:      "Anna",
		Email:            "a@x.com",
	}
}

func upload(name, content string) *Upload {
	return &Upload{Reader: strings.NewReader(content), Filename: name, Size: int64(len(content))}
}

// readFile читает файл каталога загрузок.
func (e *testEnv) readFile(t *testing.T, name string) string {
	t.Helper()
	f, err := e.files.Open(name)
	if err != nil {
		t.Fatalf("файл %s не открывается: %v", name, err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	return string(data)
}

// uploadNames возвращает содержимое каталога загрузок.
func (e *testEnv) uploadNames(t *testing.T) []string {
	t.Helper()
	names, err := e.files.List()
	if err != nil {
		t.Fatalf("ошибка List: %v", err)
	}
	return names
}

// failingReader отдаёт часть данных и затем ошибку.
type failingReader struct {
	data string
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.ErrUnexpectedEOF
	}
	r.done = true
	return copy(p, r.data), nil
}
