// transients.go: поиск по каталогу транзиентов и read-only прокси хранилища.
// GET /api/v1/transients, GET /api/v1/transients/{key},
// GET /api/v1/catalog/collections, POST /api/v1/catalog/cursor,
// GET /api/v1/catalog/references.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bigkaa/otter-vetting/internal/api/contract"
	apierrors "github.com/bigkaa/otter-vetting/internal/api/errors"
	"github.com/bigkaa/otter-vetting/internal/astro"
	"github.com/bigkaa/otter-vetting/internal/catalog"
)

type transientListResponse struct {
	Items []*catalog.Record `json:"items"`
	Count int               `json:"count"`
}

type collectionListResponse struct {
	Items []catalog.Collection `json:"items"`
}

// SearchTransients: GET /api/v1/transients.
func (h *APIHandler) SearchTransients(w http.ResponseWriter, r *http.Request, params contract.SearchTransientsParams) {
	q, msg := h.searchQuery(params)
	if msg != "" {
		apierrors.ValidationError(w, msg)
		return
	}

	records, err := h.search.Search(r.Context(), q)
	if err != nil {
		h.serviceError(w, err, "поиска в каталоге")
		return
	}
	if records == nil {
		records = []*catalog.Record{}
	}
	writeJSON(w, http.StatusOK, transientListResponse{Items: records, Count: len(records)})
}

// searchQuery переводит параметры запроса в catalog.SearchQuery.
// Возвращает сообщение об ошибке для некорректной комбинации параметров.
func (h *APIHandler) searchQuery(params contract.SearchTransientsParams) (catalog.SearchQuery, string) {
	q := catalog.SearchQuery{
		MinZ:  params.Minz,
		MaxZ:  params.Maxz,
		Limit: catalog.DefaultSearchLimit,
	}
	if params.Names != nil {
		q.Names = splitNames(*params.Names)
	}
	if params.Hasphot != nil {
		q.HasPhot = *params.Hasphot
	}
	if params.Limit != nil {
		q.Limit, _ = paginationDefaults(params.Limit, nil)
	}
	if q.MinZ != nil && q.MaxZ != nil && *q.MinZ > *q.MaxZ {
		return q, "minz больше maxz"
	}

	coords := []*string{params.Ra, params.Dec, params.RaUnit, params.DecUnit}
	given := 0
	for _, c := range coords {
		if c != nil && strings.TrimSpace(*c) != "" {
			given++
		}
	}
	switch given {
	case 0:
		if params.Radius != nil {
			return q, "radius задаётся вместе с ra, dec, ra_unit и dec_unit"
		}
	case len(coords):
		pos, err := astro.ParsePosition(*params.Ra, *params.Dec, *params.RaUnit, *params.DecUnit)
		if err != nil {
			return q, "Некорректное положение: " + err.Error()
		}
		q.Position = &pos
		q.RadiusArcsec = h.opts.DefaultRadiusArcsec
		if params.Radius != nil {
			q.RadiusArcsec = *params.Radius
		}
	default:
		return q, "Конусный поиск требует все четыре параметра: ra, dec, ra_unit, dec_unit"
	}
	return q, ""
}

// GetTransient: GET /api/v1/transients/{key}.
func (h *APIHandler) GetTransient(w http.ResponseWriter, r *http.Request, key string) {
	rec, err := h.search.Get(r.Context(), key)
	if err != nil {
		h.serviceError(w, err, "получения записи каталога")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListCollections: GET /api/v1/catalog/collections.
func (h *APIHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.search.Collections(r.Context())
	if err != nil {
		h.serviceError(w, err, "получения коллекций каталога")
		return
	}
	if cols == nil {
		cols = []catalog.Collection{}
	}
	writeJSON(w, http.StatusOK, collectionListResponse{Items: cols})
}

// QueryCatalog: POST /api/v1/catalog/cursor. Выполняет запрос только на чтение.
func (h *APIHandler) QueryCatalog(w http.ResponseWriter, r *http.Request) {
	var req catalog.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}

	res, err := h.search.Query(r.Context(), req)
	if err != nil {
		h.serviceError(w, err, "запроса к каталогу")
		return
	}
	if res.Result == nil {
		res.Result = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, res)
}

// GetReferences: GET /api/v1/catalog/references. Источники данных объектов
// для цитирования: по каждой записи и общий список кодов ADS.
func (h *APIHandler) GetReferences(w http.ResponseWriter, r *http.Request, params contract.GetReferencesParams) {
	names := splitNames(params.Names)
	if len(names) == 0 {
		apierrors.ValidationError(w, "names: требуется хотя бы одно имя")
		return
	}

	report, err := h.search.References(r.Context(), names)
	if err != nil {
		h.serviceError(w, err, "сбора источников")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// splitNames разбирает список имён через запятую.
func splitNames(raw string) []string {
	var names []string
	for _, n := range strings.Split(raw, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
