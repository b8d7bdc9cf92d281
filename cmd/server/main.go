package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"report_wizard/internal/config"
	"report_wizard/internal/database"
	"report_wizard/internal/grafana"
	"report_wizard/internal/server"
	"report_wizard/internal/service"
	"report_wizard/internal/storage"

	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		fx.NopLogger,

		// Поставщики зависимостей
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDatabase,
			storage.NewStorageFromConfig,
			provideGrafana,
			providePanelSource,
			provideLogoService,
			provideReportService,
			provideExportService,
			server.NewServer,
		),

		// Хуки жизненного цикла
		fx.Invoke(registerLifecycleHooks),
	)

	// Запуск приложения с остановкой
	runWithGracefulShutdown(app)
}

// provideConfig загружает и предоставляет конфигурацию приложения
func provideConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// provideLogger создает и настраивает логгер на основе конфигурации
func provideLogger(cfg config.Config) *logrus.Logger {
	logger := config.NewLogger(cfg, os.Stdout)
	logger.WithField("config", cfg.String()).Info("Запуск сервиса отчетов")
	return logger
}

// provideDatabase подключается к БД и применяет миграции
func provideDatabase(cfg config.Config, logger *logrus.Logger) (*gorm.DB, error) {
	db, err := database.NewDatabase(database.FromAppConfig(cfg))
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db, logger); err != nil {
		return nil, err
	}
	return db, nil
}

// provideGrafana создает клиент Grafana
func provideGrafana(cfg config.Config, logger *logrus.Logger) *grafana.Client {
	return grafana.NewClient(cfg.Grafana, logger)
}

// providePanelSource отдает клиент Grafana сервису отчетов как источник панелей
func providePanelSource(client *grafana.Client) service.PanelSource {
	return client
}

func provideLogoService(cfg config.Config, files storage.Storage, logger *logrus.Logger) *service.LogoService {
	return service.NewLogoService(files, cfg.Upload.MaxSize, cfg.Upload.Extensions, logger)
}

func provideReportService(
	cfg config.Config,
	db *gorm.DB,
	source service.PanelSource,
	files storage.Storage,
	logos *service.LogoService,
	logger *logrus.Logger,
) service.ReportService {
	return service.NewReportService(
		source,
		service.NewGormReportRepository(db),
		service.NewExcelGenerator(),
		files,
		logos,
		logger,
		cfg.Report.FetchConcurrency,
	)
}

// provideExportService собирает выгрузку документов из индексов Elasticsearch/OpenSearch
func provideExportService(
	db *gorm.DB,
	client *grafana.Client,
	files storage.Storage,
	logos *service.LogoService,
	logger *logrus.Logger,
) *service.ExportService {
	return service.NewExportService(
		client,
		service.NewGormReportRepository(db),
		service.NewExcelGenerator(),
		files,
		logos,
		logger,
	)
}

// registerLifecycleHooks настраивает хуки жизненного цикла приложения
func registerLifecycleHooks(
	srv *server.Server,
	cfg config.Config,
	logger *logrus.Logger,
	lc fx.Lifecycle,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.WithError(err).Error("Не удалось запустить HTTP сервер")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// runWithGracefulShutdown обрабатывает жизненный цикл приложения с обработкой сигналов
func runWithGracefulShutdown(app *fx.App) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Настраиваем обработку сигналов
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	startCtx, startCancel := context.WithTimeout(ctx, 15*time.Second)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		logrus.WithError(err).Fatal("Не удалось запустить приложение")
	}

	// Ожидаем сигнал завершения
	<-quit
	logrus.Info("Получен сигнал завершения работы")

	// Грациозное завершение с таймаутом
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if err := app.Stop(stopCtx); err != nil {
		logrus.WithError(err).Error("Ошибка при завершении работы")
		os.Exit(1)
	}

	logrus.Info("Сервис отчетов остановлен корректно")
}
