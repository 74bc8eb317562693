package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bigkaa/instruction-tracker/internal/config"
	"github.com/bigkaa/instruction-tracker/internal/domain/staleness"
	"github.com/bigkaa/instruction-tracker/internal/mailer"
	"github.com/bigkaa/instruction-tracker/internal/repository"
	"github.com/bigkaa/instruction-tracker/internal/service"
	"github.com/bigkaa/instruction-tracker/internal/storage/filestore"
	"github.com/bigkaa/instruction-tracker/internal/storage/wal"
)

// app — общие компоненты команд.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     *repository.Repository
	versions *service.FileVersionStore
	records  *service.RecordService
	mailer   *mailer.SMTPMailer
}

// newApp загружает конфигурацию, коллекцию и собирает сервисы.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("ошибка конфигурации: %w", err)
	}
	logger := config.SetupLogger(cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.DataFile), 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога данных: %w", err)
	}

	walEngine, err := wal.New(cfg.WALDir, logger)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации WAL: %w", err)
	}
	files, err := filestore.New(cfg.UploadsDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации каталога загрузок: %w", err)
	}

	repo := repository.New(cfg.DataFile, logger)
	loaded := repo.Load()
	logger.Info("Коллекция загружена",
		slog.String("path", cfg.DataFile),
		slog.Int("records", len(loaded)),
	)

	versions := service.NewFileVersionStore(files, walEngine, service.RetentionPolicy(cfg.VersionRetention), logger)
	records := service.NewRecordService(repo, versions, staleness.NewPolicy(cfg.StaleThresholdMonths), service.UploadRules{
		AllowedExtensions: cfg.AllowedExtensions,
		MaxFileSize:       cfg.MaxFileSize,
	}, cfg.DeleteConfirmTTL, logger)

	m := mailer.New(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Rate:     cfg.SMTPRate,
	}, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		versions: versions,
		records:  records,
		mailer:   m,
	}, nil
}
