// Пакет contract: интерфейс HTTP API по OpenAPI контракту и регистрация
// маршрутов на chi. Параметры пути и запроса разбираются через
// oapi-codegen runtime и передаются обработчикам типизированными.
package contract

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/otter-vetting/internal/api/errors"
)

// SubmissionId: идентификатор заявки в пути.
type SubmissionId = openapi_types.UUID //nolint:revive // имя из OpenAPI контракта

// JobId: идентификатор задания утверждения в пути.
type JobId = openapi_types.UUID //nolint:revive // имя из OpenAPI контракта

// ListSubmissionsParams: параметры GET /api/v1/submissions.
type ListSubmissionsParams struct {
	Status        *string `form:"status,omitempty" json:"status,omitempty"`
	UploaderEmail *string `form:"uploader_email,omitempty" json:"uploader_email,omitempty"`
	Limit         *int    `form:"limit,omitempty" json:"limit,omitempty"`
	Offset        *int    `form:"offset,omitempty" json:"offset,omitempty"`
}

// DownloadSubmissionParams: параметры GET /api/v1/submissions/{id}/download.
type DownloadSubmissionParams struct {
	Table string `form:"table" json:"table"`
}

// SearchTransientsParams: параметры GET /api/v1/transients.
type SearchTransientsParams struct {
	Names   *string  `form:"names,omitempty" json:"names,omitempty"`
	Ra      *string  `form:"ra,omitempty" json:"ra,omitempty"`
	Dec     *string  `form:"dec,omitempty" json:"dec,omitempty"`
	RaUnit  *string  `form:"ra_unit,omitempty" json:"ra_unit,omitempty"`
	DecUnit *string  `form:"dec_unit,omitempty" json:"dec_unit,omitempty"`
	Radius  *float64 `form:"radius,omitempty" json:"radius,omitempty"`
	Minz    *float64 `form:"minz,omitempty" json:"minz,omitempty"`
	Maxz    *float64 `form:"maxz,omitempty" json:"maxz,omitempty"`
	Hasphot *bool    `form:"hasphot,omitempty" json:"hasphot,omitempty"`
	Limit   *int     `form:"limit,omitempty" json:"limit,omitempty"`
}

// GetReferencesParams: параметры GET /api/v1/catalog/references.
type GetReferencesParams struct {
	Names string `form:"names" json:"names"`
}

// ServerInterface: обработчики всех операций контракта.
type ServerInterface interface {
	// (GET /health/live)
	HealthLive(w http.ResponseWriter, r *http.Request)
	// (GET /health/ready)
	HealthReady(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	GetMetrics(w http.ResponseWriter, r *http.Request)

	// (POST /api/v1/uploads/single)
	UploadSingle(w http.ResponseWriter, r *http.Request)
	// (POST /api/v1/uploads/multiple)
	UploadMultiple(w http.ResponseWriter, r *http.Request)

	// (GET /api/v1/submissions)
	ListSubmissions(w http.ResponseWriter, r *http.Request, params ListSubmissionsParams)
	// (GET /api/v1/submissions/{id})
	GetSubmission(w http.ResponseWriter, r *http.Request, id SubmissionId)
	// (PUT /api/v1/submissions/{id})
	UpdateSubmission(w http.ResponseWriter, r *http.Request, id SubmissionId)
	// (POST /api/v1/submissions/{id}/approve)
	ApproveSubmission(w http.ResponseWriter, r *http.Request, id SubmissionId)
	// (POST /api/v1/submissions/{id}/reject)
	RejectSubmission(w http.ResponseWriter, r *http.Request, id SubmissionId)
	// (GET /api/v1/submissions/{id}/download)
	DownloadSubmission(w http.ResponseWriter, r *http.Request, id SubmissionId, params DownloadSubmissionParams)
	// (GET /api/v1/approval-jobs/{job_id})
	GetApprovalJob(w http.ResponseWriter, r *http.Request, jobID JobId)

	// (GET /api/v1/transients)
	SearchTransients(w http.ResponseWriter, r *http.Request, params SearchTransientsParams)
	// (GET /api/v1/transients/{key})
	GetTransient(w http.ResponseWriter, r *http.Request, key string)
	// (GET /api/v1/catalog/collections)
	ListCollections(w http.ResponseWriter, r *http.Request)
	// (POST /api/v1/catalog/cursor)
	QueryCatalog(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/catalog/references)
	GetReferences(w http.ResponseWriter, r *http.Request, params GetReferencesParams)
}

// wrapper разбирает параметры и вызывает обработчик.
type wrapper struct {
	handler ServerInterface
}

// invalidParam отвечает 400 на неразбираемый параметр.
func invalidParam(w http.ResponseWriter, name string, err error) {
	apierrors.ValidationError(w, fmt.Sprintf("Неверный формат параметра %s: %v", name, err))
}

func (s *wrapper) pathUUID(w http.ResponseWriter, r *http.Request, name string) (openapi_types.UUID, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		invalidParam(w, name, err)
		return id, false
	}
	return id, true
}

func (s *wrapper) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	var params ListSubmissionsParams
	query := r.URL.Query()

	if err := runtime.BindQueryParameter("form", true, false, "status", query, &params.Status); err != nil {
		invalidParam(w, "status", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "uploader_email", query, &params.UploaderEmail); err != nil {
		invalidParam(w, "uploader_email", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &params.Limit); err != nil {
		invalidParam(w, "limit", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", query, &params.Offset); err != nil {
		invalidParam(w, "offset", err)
		return
	}

	s.handler.ListSubmissions(w, r, params)
}

func (s *wrapper) withSubmissionID(fn func(http.ResponseWriter, *http.Request, SubmissionId)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.pathUUID(w, r, "id")
		if !ok {
			return
		}
		fn(w, r, id)
	}
}

func (s *wrapper) DownloadSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var params DownloadSubmissionParams
	if err := runtime.BindQueryParameter("form", true, true, "table", r.URL.Query(), &params.Table); err != nil {
		invalidParam(w, "table", err)
		return
	}

	s.handler.DownloadSubmission(w, r, id, params)
}

func (s *wrapper) GetApprovalJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "job_id")
	if !ok {
		return
	}
	s.handler.GetApprovalJob(w, r, id)
}

func (s *wrapper) SearchTransients(w http.ResponseWriter, r *http.Request) {
	var params SearchTransientsParams
	query := r.URL.Query()

	bindings := []struct {
		name string
		dest any
	}{
		{"names", &params.Names},
		{"ra", &params.Ra},
		{"dec", &params.Dec},
		{"ra_unit", &params.RaUnit},
		{"dec_unit", &params.DecUnit},
		{"radius", &params.Radius},
		{"minz", &params.Minz},
		{"maxz", &params.Maxz},
		{"hasphot", &params.Hasphot},
		{"limit", &params.Limit},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, query, b.dest); err != nil {
			invalidParam(w, b.name, err)
			return
		}
	}

	s.handler.SearchTransients(w, r, params)
}

func (s *wrapper) GetTransient(w http.ResponseWriter, r *http.Request) {
	var key string
	err := runtime.BindStyledParameterWithOptions("simple", "key", chi.URLParam(r, "key"), &key,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		invalidParam(w, "key", err)
		return
	}
	s.handler.GetTransient(w, r, key)
}

func (s *wrapper) GetReferences(w http.ResponseWriter, r *http.Request) {
	var params GetReferencesParams
	if err := runtime.BindQueryParameter("form", true, true, "names", r.URL.Query(), &params.Names); err != nil {
		invalidParam(w, "names", err)
		return
	}
	s.handler.GetReferences(w, r, params)
}

// HandlerFromMux регистрирует все маршруты контракта на переданном роутере.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	s := &wrapper{handler: si}

	r.Get("/health/live", si.HealthLive)
	r.Get("/health/ready", si.HealthReady)
	r.Get("/metrics", si.GetMetrics)

	r.Post("/api/v1/uploads/single", si.UploadSingle)
	r.Post("/api/v1/uploads/multiple", si.UploadMultiple)

	r.Get("/api/v1/submissions", s.ListSubmissions)
	r.Get("/api/v1/submissions/{id}", s.withSubmissionID(si.GetSubmission))
	r.Put("/api/v1/submissions/{id}", s.withSubmissionID(si.UpdateSubmission))
	r.Post("/api/v1/submissions/{id}/approve", s.withSubmissionID(si.ApproveSubmission))
	r.Post("/api/v1/submissions/{id}/reject", s.withSubmissionID(si.RejectSubmission))
	r.Get("/api/v1/submissions/{id}/download", s.DownloadSubmission)
	r.Get("/api/v1/approval-jobs/{job_id}", s.GetApprovalJob)

	r.Get("/api/v1/transients", s.SearchTransients)
	r.Get("/api/v1/transients/{key}", s.GetTransient)
	r.Get("/api/v1/catalog/collections", si.ListCollections)
	r.Post("/api/v1/catalog/cursor", si.QueryCatalog)
	r.Get("/api/v1/catalog/references", s.GetReferences)

	return r
}
