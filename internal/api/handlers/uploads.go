// uploads.go: приём заявок через multipart-формы.
// POST /api/v1/uploads/single: один объект, поля формы + необязательный файл photometry.
// POST /api/v1/uploads/multiple: файл metadata + необязательный файл photometry.
// Запрос обрабатывается целиком: при любой проблеме ничего не сохраняется.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/otter-vetting/internal/api/errors"
	"github.com/bigkaa/otter-vetting/internal/domain/model"
	"github.com/bigkaa/otter-vetting/internal/session"
	"github.com/bigkaa/otter-vetting/internal/validator"
)

// Поля формы загрузки.
const (
	formPhotometry = "photometry"
	formMetadata   = "metadata"
)

// uploadResponse: ответ на успешную постановку в очередь.
type uploadResponse struct {
	ID string `json:"id"`
}

// UploadSingle: загрузка одного объекта.
func (h *APIHandler) UploadSingle(w http.ResponseWriter, r *http.Request) {
	if !h.parseUploadForm(w, r) {
		return
	}
	defer cleanupForm(r)

	s := session.New(model.KindSingle, h.validator, h.opts.EmailBypassSuffixes)
	s.SetUploader(r.FormValue(session.FieldUploaderName), r.FormValue(session.FieldUploaderEmail))
	s.SetObjectName(r.FormValue("object_name"))
	s.SetPosition(r.FormValue("ra"), r.FormValue("dec"), r.FormValue("ra_unit"), r.FormValue("dec_unit"))
	s.SetCoordBibcode(r.FormValue("coord_bibcode"))
	s.SetRedshift(r.FormValue("redshift"), r.FormValue("redshift_bibcode"))
	s.SetLuminosityDistance(r.FormValue("luminosity_distance"), r.FormValue("luminosity_distance_unit"),
		r.FormValue("luminosity_distance_bibcode"))
	s.SetComovingDistance(r.FormValue("comoving_distance"), r.FormValue("comoving_distance_unit"),
		r.FormValue("comoving_distance_bibcode"))
	s.SetDiscoveryDate(r.FormValue("discovery_date"), r.FormValue("discovery_date_format"),
		r.FormValue("discovery_date_bibcode"))
	s.SetClassification(r.FormValue("classification"), r.FormValue("classification_flag"),
		r.FormValue("classification_bibcode"))

	ve := &validator.ValidationError{}
	h.attachFile(r, ve, formPhotometry, s.AttachPhotometry)

	h.stage(w, r, s, ve)
}

// UploadMultiple: загрузка нескольких объектов таблицей метаданных.
func (h *APIHandler) UploadMultiple(w http.ResponseWriter, r *http.Request) {
	if !h.parseUploadForm(w, r) {
		return
	}
	defer cleanupForm(r)

	s := session.New(model.KindMultiple, h.validator, h.opts.EmailBypassSuffixes)
	s.SetUploader(r.FormValue(session.FieldUploaderName), r.FormValue(session.FieldUploaderEmail))

	ve := &validator.ValidationError{}
	metaFailed := !h.attachFile(r, ve, formMetadata, s.AttachMetadata) && len(ve.Problems) > 0
	h.attachFile(r, ve, formPhotometry, s.AttachPhotometry)

	if metaFailed {
		// Таблица метаданных отвергнута: к её проблемам добавляем только проблемы полей загрузившего.
		verr := s.Verify()
		var sessionProblems *validator.ValidationError
		if errors.As(verr, &sessionProblems) {
			for _, p := range sessionProblems.Problems {
				if p.Field != validator.TableMetadata {
					ve.Add(p.Field, p.Row, "%s", p.Message)
				}
			}
		}
		apierrors.ValidationProblems(w, "Загрузка не прошла проверку", ve)
		return
	}

	h.stage(w, r, s, ve)
}

// stage проверяет сессию и ставит заявку в очередь.
// ve: проблемы, накопленные при разборе файлов.
func (h *APIHandler) stage(w http.ResponseWriter, r *http.Request, s *session.Session, ve *validator.ValidationError) {
	if ve.Err() != nil {
		ve.Merge("", s.Verify())
		apierrors.ValidationProblems(w, "Загрузка не прошла проверку", ve)
		return
	}

	sub, err := s.Build()
	if err != nil {
		var buildProblems *validator.ValidationError
		if errors.As(err, &buildProblems) {
			apierrors.ValidationProblems(w, "Загрузка не прошла проверку", buildProblems)
			return
		}
		h.logger.Error("Ошибка сборки заявки", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка при сборке заявки")
		return
	}

	id, err := h.queue.Stage(r.Context(), sub)
	if err != nil {
		h.logger.Error("Ошибка постановки заявки в очередь",
			slog.String("kind", string(sub.Kind)),
			slog.String("error", err.Error()),
		)
		// Ошибка хранилища передаётся загрузившему без изменений.
		if !apierrors.FromService(w, err) {
			apierrors.ServiceUnavailable(w, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{ID: id})
}

// parseUploadForm ограничивает размер тела и разбирает multipart-форму.
func (h *APIHandler) parseUploadForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(h.opts.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.PayloadTooLarge(w, fmt.Sprintf("Размер загрузки превышает %d байт", h.opts.MaxUploadSize))
			return false
		}
		apierrors.ValidationError(w, "Ожидается multipart/form-data: "+err.Error())
		return false
	}
	return true
}

func cleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// attachFile читает файл формы и передаёт его текст в attach.
// Отсутствующий файл не является ошибкой: обязательность проверяет сессия.
// Возвращает true, если файл прочитан и принят.
func (h *APIHandler) attachFile(r *http.Request, ve *validator.ValidationError, field string, attach func(string) error) bool {
	text, ok, err := readFormFile(r, field)
	if err != nil {
		ve.Add(field, 0, "не удалось прочитать файл: %v", err)
		return false
	}
	if !ok {
		return false
	}
	if err := attach(text); err != nil {
		ve.Merge(field, err)
		return false
	}
	return true
}

// readFormFile возвращает содержимое файла формы; ok=false, если файл не передан.
func readFormFile(r *http.Request, field string) (text string, ok bool, err error) {
	f, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		// Допускаем CSV, переданный обычным текстовым полем.
		if v := r.FormValue(field); strings.TrimSpace(v) != "" {
			return v, true, nil
		}
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}
