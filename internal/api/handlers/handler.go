// handler.go: основной обработчик API, реализующий contract.ServerInterface.
// Объединяет health, загрузку заявок, очередь проверки и поиск по каталогу.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bigkaa/otter-vetting/internal/catalog"
	"github.com/bigkaa/otter-vetting/internal/domain/model"
	"github.com/bigkaa/otter-vetting/internal/repository"
	"github.com/bigkaa/otter-vetting/internal/service"
	"github.com/bigkaa/otter-vetting/internal/validator"
)

// VettingQueue: операции очереди на проверку (service.VettingService).
type VettingQueue interface {
	Stage(ctx context.Context, sub *model.Submission) (string, error)
	List(ctx context.Context, f repository.SubmissionFilter) (*service.ListResult, error)
	Fetch(ctx context.Context, id string) (*model.Submission, error)
	Update(ctx context.Context, id string, req service.UpdateRequest) (*model.Submission, error)
	Reject(ctx context.Context, id string) error
	Download(ctx context.Context, id, table string) (string, []byte, error)
}

// ApprovalJobs: асинхронные задания утверждения (service.ApprovalRunner).
type ApprovalJobs interface {
	Submit(submissionID, approver string) (*model.ApprovalJob, error)
	Get(jobID string) (*model.ApprovalJob, error)
}

// CatalogSearch: чтение каталога (service.SearchService).
type CatalogSearch interface {
	Search(ctx context.Context, q catalog.SearchQuery) ([]*catalog.Record, error)
	Get(ctx context.Context, key string) (*catalog.Record, error)
	Collections(ctx context.Context) ([]catalog.Collection, error)
	Query(ctx context.Context, req catalog.QueryRequest) (*catalog.QueryResult, error)
	References(ctx context.Context, names []string) (*service.CitationReport, error)
}

// Options: параметры приёма загрузок и поиска.
type Options struct {
	// Максимальный размер тела multipart-запроса
	MaxUploadSize int64
	// Суффиксы адресов, для которых не проверяется синтаксис email
	EmailBypassSuffixes []string
	// Радиус конусного поиска по умолчанию, угловые секунды
	DefaultRadiusArcsec float64
}

// APIHandler: основной обработчик API Vetting Module.
type APIHandler struct {
	health    *HealthHandler
	queue     VettingQueue
	jobs      ApprovalJobs
	search    CatalogSearch
	validator *validator.Validator
	opts      Options
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	queue VettingQueue,
	jobs ApprovalJobs,
	search CatalogSearch,
	v *validator.Validator,
	opts Options,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:    health,
		queue:     queue,
		jobs:      jobs,
		search:    search,
		validator: v,
		opts:      opts,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive: liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady: readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics: Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// paginationDefaults нормализует параметры пагинации.
func paginationDefaults(limit, offset *int) (limitVal, offsetVal int) {
	l := 100
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}
