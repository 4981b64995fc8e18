// logging.go: журнал HTTP-запросов через slog.
// Кроме статуса и длительности пишет шаблон маршрута, идентификаторы заявки
// и задания из пути, проверяющего из JWT и размер тела загрузки.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// responseWriter: обёртка для перехвата статус-кода и размера ответа.
// Используется и логированием, и метриками.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// requestNote: сведения, которые внутренние middleware сообщают журналу.
// JWT middleware работает внутри RequestLogger и меняет контекст только для
// вложенных обработчиков, поэтому проверяющий передаётся через общий указатель.
type requestNote struct {
	reviewer string
}

type noteKey struct{}

// noteReviewer запоминает проверяющего для записи журнала о текущем запросе.
func noteReviewer(ctx context.Context, subject string) {
	if n, ok := ctx.Value(noteKey{}).(*requestNote); ok {
		n.reviewer = subject
	}
}

// RequestLogger возвращает middleware, логирующий каждый HTTP-запрос.
// Уровень: INFO (1xx-3xx), WARN (4xx), ERROR (5xx); успешные проверки /health/* и
// /metrics пишутся на DEBUG.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)
			note := &requestNote{}

			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), noteKey{}, note)))

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400:
				level = slog.LevelWarn
			case isServicePath(r.URL.Path):
				level = slog.LevelDebug
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
				slog.String("remote_addr", r.RemoteAddr),
			}
			attrs = append(attrs, requestAttrs(r, note)...)
			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}

// routePattern возвращает шаблон маршрута chi; до маршрутизации или при 404
// используется нормализованный путь, как в метриках.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return normalizePath(r.URL.Path)
}

// requestAttrs: атрибуты предметной области запроса.
func requestAttrs(r *http.Request, note *requestNote) []slog.Attr {
	var attrs []slog.Attr
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if id := rctx.URLParam("id"); id != "" {
			attrs = append(attrs, slog.String("submission_id", id))
		}
		if id := rctx.URLParam("job_id"); id != "" {
			attrs = append(attrs, slog.String("job_id", id))
		}
	}
	if note.reviewer != "" {
		attrs = append(attrs, slog.String("reviewer", note.reviewer))
	}
	if strings.HasPrefix(r.URL.Path, "/api/v1/uploads/") {
		attrs = append(attrs, slog.Int64("upload_bytes", r.ContentLength))
	}
	return attrs
}

func isServicePath(path string) bool {
	return strings.HasPrefix(path, "/health/") || path == "/metrics"
}
