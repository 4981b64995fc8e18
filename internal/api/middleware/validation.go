// validation.go: проверка входящих запросов по OpenAPI контракту (kin-openapi).
// Проверяются параметры пути и запроса и JSON-тела. Тела multipart/form-data
// разбирают обработчики загрузки: полный список проблем формы собирает сессия.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	apierrors "github.com/bigkaa/otter-vetting/internal/api/errors"
)

// RequestValidator: middleware проверки запросов по контракту.
type RequestValidator struct {
	router routers.Router
	logger *slog.Logger
}

// NewRequestValidator создаёт middleware по загруженному контракту.
func NewRequestValidator(doc *openapi3.T, logger *slog.Logger) (*RequestValidator, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("построение маршрутов OpenAPI: %w", err)
	}
	return &RequestValidator{
		router: router,
		logger: logger.With(slog.String("component", "openapi_validator")),
	}, nil
}

// Middleware возвращает HTTP middleware. Запросы к путям вне контракта
// пропускаются без проверки: на них ответит роутер.
func (v *RequestValidator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := v.router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					// Аутентификацию выполняет JWTAuth.
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
					ExcludeRequestBody: isMultipart(r),
					MultiError:         true,
				},
			}

			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				v.logger.Debug("Запрос не соответствует контракту",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.WriteErrorDetails(w, http.StatusBadRequest, apierrors.CodeValidationError,
					"Запрос не соответствует контракту API", validationDetails(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// validationDetails раскладывает ошибку kin-openapi на подробности по параметрам.
func validationDetails(err error) []apierrors.Detail {
	var errs openapi3.MultiError
	if !errors.As(err, &errs) {
		errs = openapi3.MultiError{err}
	}

	details := make([]apierrors.Detail, 0, len(errs))
	for _, e := range errs {
		var (
			paramErr *openapi3filter.RequestError
			field    = "request"
		)
		if errors.As(e, &paramErr) {
			switch {
			case paramErr.Parameter != nil:
				field = paramErr.Parameter.Name
			case paramErr.RequestBody != nil:
				field = "body"
			}
		}
		details = append(details, apierrors.Detail{Field: field, Message: e.Error()})
	}
	return details
}
