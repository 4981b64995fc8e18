// Точка входа Vetting Module: приём и проверка заявок на транзиенты OTTER.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL и
// хранилищу каталога, создаёт сервисный слой и API handlers, запускает
// пул заданий утверждения, topologymetrics и HTTP-сервер с JWT middleware.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/bigkaa/otter-vetting/internal/api/handlers"
	"github.com/bigkaa/otter-vetting/internal/api/middleware"
	"github.com/bigkaa/otter-vetting/internal/api/openapi"
	"github.com/bigkaa/otter-vetting/internal/catalog"
	"github.com/bigkaa/otter-vetting/internal/config"
	"github.com/bigkaa/otter-vetting/internal/database"
	"github.com/bigkaa/otter-vetting/internal/fieldcatalog"
	"github.com/bigkaa/otter-vetting/internal/notify"
	"github.com/bigkaa/otter-vetting/internal/repository"
	"github.com/bigkaa/otter-vetting/internal/server"
	"github.com/bigkaa/otter-vetting/internal/service"
	"github.com/bigkaa/otter-vetting/internal/validator"
)

// serviceName: имя сервиса в метриках topologymetrics.
const serviceName = "vetting-module"

func main() {
	// Локальный запуск: переменные из .env, если файл есть
	_ = godotenv.Load()

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Vetting Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("VM_DEPHEALTH_GROUP") == "" {
		logger.Warn("VM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Каталог полей и валидатор таблиц
	fields, err := fieldcatalog.Load(cfg.FieldCatalogPath)
	if err != nil {
		logger.Error("Ошибка загрузки каталога полей",
			slog.String("path", cfg.FieldCatalogPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	tableValidator := validator.New(fields)

	// 6. Клиент хранилища каталога
	catalogClient, err := catalog.New(catalog.Config{
		URL:           cfg.CatalogURL,
		Database:      cfg.CatalogDatabase,
		Collection:    cfg.CatalogCollection,
		Username:      cfg.CatalogUsername,
		Password:      cfg.CatalogPassword,
		Timeout:       cfg.CatalogTimeout,
		CACertPath:    cfg.CACertPath,
		TLSSkipVerify: cfg.TLSSkipVerify,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента каталога", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Клиент каталога создан",
		slog.String("url", cfg.CatalogURL),
		slog.String("database", cfg.CatalogDatabase),
		slog.String("collection", cfg.CatalogCollection),
	)

	// 7. Уведомления проверяющих (опционально)
	var publisher notify.Publisher = notify.Noop{}
	if cfg.NotificationsEnabled() {
		redisPublisher, pubErr := notify.NewRedisPublisher(notify.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
		}, logger)
		if pubErr != nil {
			logger.Warn("Redis недоступен, уведомления о заявках отключены",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", pubErr.Error()),
			)
		} else {
			publisher = redisPublisher
			logger.Info("Уведомления о заявках включены",
				slog.String("addr", cfg.RedisAddr),
				slog.String("stream", cfg.RedisStream),
			)
		}
	}

	// 8. Repository и сервисы
	submissionRepo := repository.NewSubmissionRepository(pool)
	cache := service.NewCacheService(cfg.CacheMaxSize, cfg.CacheTTL)

	vettingSvc := service.NewVettingService(submissionRepo, cache, tableValidator, publisher, logger)
	approveSvc := service.NewApproveService(
		vettingSvc,
		catalogClient,
		catalog.NewConverter(fields),
		cfg.MatchRadiusArcsec,
		cfg.ApproveTimeout,
		logger,
	)
	runner := service.NewApprovalRunner(approveSvc, cfg.ApproveWorkers, cfg.JobTTL, logger)
	searchSvc := service.NewSearchService(catalogClient, logger)

	// 9. topologymetrics: мониторинг PostgreSQL, хранилища каталога и JWKS
	dephealthSvc, dephealthErr := service.NewDephealthService(
		serviceName,
		cfg.DephealthGroup,
		service.DephealthTargets{
			DB:            pgDB,
			PostgresURL:   cfg.DatabaseURL(),
			CatalogURL:    cfg.CatalogURL,
			JWKSURL:       cfg.JWTJWKSURL,
			TLSSkipVerify: cfg.TLSSkipVerify,
		},
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. Readiness checkers (PostgreSQL, каталог, JWKS)
	pgChecker := database.NewReadinessChecker(pool)
	jwksChecker, err := middleware.NewJWKSReadinessChecker(
		cfg.JWTJWKSURL, cfg.CACertPath, cfg.TLSSkipVerify, cfg.JWKSClientTimeout,
	)
	if err != nil {
		logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, catalogClient, jwksChecker)

	// 11. API handler (реализует contract.ServerInterface)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		vettingSvc,
		runner,
		searchSvc,
		tableValidator,
		handlers.Options{
			MaxUploadSize:       cfg.MaxUploadSize,
			EmailBypassSuffixes: cfg.EmailBypassSuffixes,
			DefaultRadiusArcsec: cfg.MatchRadiusArcsec,
		},
		logger,
	)

	// 12. JWT middleware: очередь и задания утверждения доступны только проверяющим
	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		JWKSURL:         cfg.JWTJWKSURL,
		CACertPath:      cfg.CACertPath,
		TLSSkipVerify:   cfg.TLSSkipVerify,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		JWTLeeway:       cfg.JWTLeeway,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("scope", cfg.JWTVetScope),
	)

	// 13. Валидация запросов по OpenAPI-контракту
	doc, err := openapi.Load()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}
	requestValidator, err := middleware.NewRequestValidator(doc, logger)
	if err != nil {
		logger.Error("Ошибка создания валидатора запросов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. HTTP-сервер с middleware
	// Порядок: metrics → logging → JWT (кроме публичных путей) → валидация контракта
	srv := server.New(cfg, logger, apiHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		server.JWTAuthWithExclusions(
			middleware.Chain(jwtAuth.Middleware(), middleware.RequireScope(cfg.JWTVetScope)),
			"/health/",
			"/metrics",
			"/api/v1/uploads/",
			"/api/v1/transients",
			"/api/v1/catalog/",
		),
		requestValidator.Middleware(),
	)

	// Остановка: сначала дожидаемся заданий утверждения, затем освобождаем зависимости
	srv.OnShutdown("approval_runner", runner.Shutdown)
	srv.OnShutdown("publisher", func(context.Context) error {
		return publisher.Close()
	})
	if dephealthSvc != nil {
		srv.OnShutdown("dephealth", func(context.Context) error {
			dephealthSvc.Stop()
			return nil
		})
	}

	// 15. Запуск сервера (блокирующий вызов с graceful shutdown)
	start := time.Now()
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Vetting Module остановлен", slog.String("uptime", time.Since(start).String()))
}
