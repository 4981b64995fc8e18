// dephealth.go: мониторинг зависимостей через topologymetrics SDK.
//
// Модуль проверяет:
//   - PostgreSQL (очередь заявок): SQL checker через существующий pgxpool, critical;
//   - хранилище каталога: HTTP checker к /_admin/server/availability, critical;
//   - JWKS endpoint провайдера токенов проверяющих, не critical: без него
//     недоступны только защищённые маршруты.
//
// Метрики app_dependency_* публикуются на /metrics.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// catalogHealthPath: endpoint хранилища, доступный без авторизации.
const catalogHealthPath = "/_admin/server/availability"

// DephealthTargets: адреса проверяемых зависимостей.
type DephealthTargets struct {
	// *sql.DB из pgxpool через stdlib.OpenDBFromPool()
	DB *sql.DB
	// URL PostgreSQL (для меток, не для подключения)
	PostgresURL string
	CatalogURL  string
	JWKSURL     string
	// Пропускать проверку TLS для HTTP-зависимостей
	TLSSkipVerify bool
}

// DephealthService: мониторинг зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга; метрики регистрируются
// в глобальном Prometheus registry.
func NewDephealthService(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, targets, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer (для тестов).
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, targets, checkInterval, logger,
		dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	catalogOpts := []dephealth.DependencyOption{
		dephealth.FromURL(targets.CatalogURL),
		dephealth.WithHTTPHealthPath(catalogHealthPath),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(true),
	}
	if isHTTPS(targets.CatalogURL) {
		catalogOpts = append(catalogOpts, dephealth.WithHTTPTLSSkipVerify(targets.TLSSkipVerify))
	}

	// JWKS проверяется по пути самого URL: у провайдера может не быть /health на основном порту.
	jwksPath := "/health"
	if parsed, err := url.Parse(targets.JWKSURL); err == nil && parsed.Path != "" {
		jwksPath = parsed.Path
	}
	jwksOpts := []dephealth.DependencyOption{
		dephealth.FromURL(targets.JWKSURL),
		dephealth.WithHTTPHealthPath(jwksPath),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(false),
	}
	if isHTTPS(targets.JWKSURL) {
		jwksOpts = append(jwksOpts, dephealth.WithHTTPTLSSkipVerify(targets.TLSSkipVerify))
	}

	opts := make([]dephealth.Option, 0, 4+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(targets.DB)),
			dephealth.FromURL(targets.PostgresURL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("catalog-store", catalogOpts...),
		dephealth.HTTP("jwks", jwksOpts...),
	)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

func isHTTPS(raw string) bool {
	parsed, err := url.Parse(raw)
	return err == nil && parsed.Scheme == "https"
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL, каталог, JWKS)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}
