package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/instruction-tracker/internal/api/handlers"
	"github.com/bigkaa/instruction-tracker/internal/config"
	"github.com/bigkaa/instruction-tracker/internal/server"
	"github.com/bigkaa/instruction-tracker/internal/service"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP-сервис",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	cfg, logger := a.cfg, a.logger

	logger.Info("Реестр инструкций запускается",
		slog.String("service_id", cfg.ServiceID),
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("version_retention", cfg.VersionRetention),
	)

	// Откат незавершённых транзакций замены файлов
	if _, err := a.versions.Recover(a.repo.Referenced()); err != nil {
		return fmt.Errorf("ошибка восстановления WAL: %w", err)
	}
	a.records.RefreshGauges()

	g, gctx := errgroup.WithContext(ctx)

	// Фоновые процессы
	gcSvc := service.NewGCService(a.records, cfg.GCInterval, logger)
	gcSvc.Start(gctx)
	defer gcSvc.Stop()

	reconcileSvc := service.NewReconcileService(a.records, cfg.ReconcileInterval, logger)
	reconcileSvc.Start(gctx)
	defer reconcileSvc.Stop()

	// topologymetrics — мониторинг SMTP, только если рассылка настроена
	var deps handlers.DependencyHealth
	if a.mailer.Configured() {
		dephealthSvc, err := service.NewDephealthService(
			cfg.ServiceID,
			cfg.DephealthGroup,
			cfg.SMTPHost,
			cfg.SMTPPort,
			cfg.DephealthCheckInterval,
			logger,
		)
		if err != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", err.Error()),
			)
		} else if err := dephealthSvc.Start(gctx); err != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		} else {
			defer dephealthSvc.Stop()
			deps = dephealthSvc
		}
	}

	// Handlers
	api := handlers.NewAPIHandler(
		handlers.NewInstructionsHandler(a.records, logger),
		handlers.NewReportsHandler(
			service.NewStatsService(a.records),
			service.NewExportService(a.records, logger),
			logger,
		),
		handlers.NewRemindersHandler(service.NewReminderService(a.records, a.mailer, logger), logger),
		handlers.NewMaintenanceHandler(reconcileSvc, logger),
		handlers.NewSystemHandler(cfg, a.records, a.mailer.Configured()),
		handlers.NewHealthHandler(filepath.Dir(cfg.DataFile), cfg.UploadsDir, cfg.WALDir, a.repo, deps),
	)

	srv := server.New(cfg, logger, api)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Остановка фоновых процессов...")
	return nil
}
