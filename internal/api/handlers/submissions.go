// submissions.go: очередь на проверку и задания утверждения.
// Авторизация: scope проверяющего, на уровне middleware.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bigkaa/otter-vetting/internal/api/contract"
	apierrors "github.com/bigkaa/otter-vetting/internal/api/errors"
	"github.com/bigkaa/otter-vetting/internal/api/middleware"
	"github.com/bigkaa/otter-vetting/internal/domain/model"
	"github.com/bigkaa/otter-vetting/internal/repository"
	"github.com/bigkaa/otter-vetting/internal/service"
)

type submissionListResponse struct {
	Items   []*model.SubmissionSummary `json:"items"`
	Total   int                        `json:"total"`
	Limit   int                        `json:"limit"`
	Offset  int                        `json:"offset"`
	HasMore bool                       `json:"has_more"`
}

// submissionUpdateRequest: тело PUT /api/v1/submissions/{id}.
type submissionUpdateRequest struct {
	Metadata       *model.Table `json:"metadata,omitempty"`
	Photometry     *model.Table `json:"photometry,omitempty"`
	DropPhotometry bool         `json:"drop_photometry,omitempty"`
}

// ListSubmissions: GET /api/v1/submissions.
func (h *APIHandler) ListSubmissions(w http.ResponseWriter, r *http.Request, params contract.ListSubmissionsParams) {
	limit, offset := paginationDefaults(params.Limit, params.Offset)
	filter := repository.SubmissionFilter{
		UploaderEmail: params.UploaderEmail,
		Limit:         limit,
		Offset:        offset,
	}
	if params.Status != nil {
		status := model.SubmissionStatus(*params.Status)
		if status != model.StatusPending && status != model.StatusApproved {
			apierrors.ValidationError(w, "Неизвестный статус: "+*params.Status)
			return
		}
		filter.Status = &status
	}

	res, err := h.queue.List(r.Context(), filter)
	if err != nil {
		h.serviceError(w, err, "получения списка заявок")
		return
	}

	items := res.Items
	if items == nil {
		items = []*model.SubmissionSummary{}
	}
	writeJSON(w, http.StatusOK, submissionListResponse{
		Items:   items,
		Total:   res.Total,
		Limit:   res.Limit,
		Offset:  res.Offset,
		HasMore: res.HasMore,
	})
}

// GetSubmission: GET /api/v1/submissions/{id}.
func (h *APIHandler) GetSubmission(w http.ResponseWriter, r *http.Request, id contract.SubmissionId) {
	sub, err := h.queue.Fetch(r.Context(), id.String())
	if err != nil {
		h.serviceError(w, err, "получения заявки")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// UpdateSubmission: PUT /api/v1/submissions/{id}. Таблицы заменяются целиком
// и проверяются заново.
func (h *APIHandler) UpdateSubmission(w http.ResponseWriter, r *http.Request, id contract.SubmissionId) {
	var req submissionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}
	if req.Metadata == nil && req.Photometry == nil && !req.DropPhotometry {
		apierrors.ValidationError(w, "Нет изменений: требуется metadata, photometry или drop_photometry")
		return
	}

	sub, err := h.queue.Update(r.Context(), id.String(), service.UpdateRequest{
		Metadata:       req.Metadata,
		Photometry:     req.Photometry,
		DropPhotometry: req.DropPhotometry,
	})
	if err != nil {
		h.serviceError(w, err, "обновления заявки")
		return
	}

	h.logger.Info("Заявка изменена проверяющим",
		slog.String("submission_id", sub.ID),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	writeJSON(w, http.StatusOK, sub)
}

// ApproveSubmission: POST /api/v1/submissions/{id}/approve.
// Запускает асинхронное задание и возвращает 202 с его состоянием.
func (h *APIHandler) ApproveSubmission(w http.ResponseWriter, r *http.Request, id contract.SubmissionId) {
	if _, err := h.queue.Fetch(r.Context(), id.String()); err != nil {
		h.serviceError(w, err, "получения заявки")
		return
	}

	approver := middleware.ApproverFromContext(r.Context())
	job, err := h.jobs.Submit(id.String(), approver)
	if err != nil {
		h.serviceError(w, err, "запуска утверждения")
		return
	}

	w.Header().Set("Location", "/api/v1/approval-jobs/"+job.JobID)
	writeJSON(w, http.StatusAccepted, job)
}

// RejectSubmission: POST /api/v1/submissions/{id}/reject.
func (h *APIHandler) RejectSubmission(w http.ResponseWriter, r *http.Request, id contract.SubmissionId) {
	if err := h.queue.Reject(r.Context(), id.String()); err != nil {
		h.serviceError(w, err, "отклонения заявки")
		return
	}

	h.logger.Info("Заявка отклонена",
		slog.String("submission_id", id.String()),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

// DownloadSubmission: GET /api/v1/submissions/{id}/download?table=meta|phot.
func (h *APIHandler) DownloadSubmission(w http.ResponseWriter, r *http.Request, id contract.SubmissionId, params contract.DownloadSubmissionParams) {
	filename, data, err := h.queue.Download(r.Context(), id.String(), params.Table)
	if err != nil {
		h.serviceError(w, err, "выгрузки таблицы")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetApprovalJob: GET /api/v1/approval-jobs/{job_id}.
func (h *APIHandler) GetApprovalJob(w http.ResponseWriter, _ *http.Request, jobID contract.JobId) {
	job, err := h.jobs.Get(jobID.String())
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Задание утверждения не найдено")
			return
		}
		apierrors.InternalError(w, "Внутренняя ошибка при получении задания")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// serviceError отвечает на ошибку сервисного слоя; нераспознанные ошибки логируются как 500.
func (h *APIHandler) serviceError(w http.ResponseWriter, err error, action string) {
	if apierrors.FromService(w, err) {
		return
	}
	h.logger.Error("Ошибка "+action, slog.String("error", err.Error()))
	apierrors.InternalError(w, "Внутренняя ошибка "+action)
}
