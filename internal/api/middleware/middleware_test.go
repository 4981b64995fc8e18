package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bigkaa/otter-vetting/internal/api/openapi"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/api/v1/submissions", "/api/v1/submissions"},
		{"/api/v1/submissions/0b0e9b8e-6a1c-4a5f-9a47-2d8b9e1f3c11", "/api/v1/submissions/{id}"},
		{"/api/v1/submissions/0b0e9b8e-6a1c-4a5f-9a47-2d8b9e1f3c11/approve", "/api/v1/submissions/{id}/approve"},
		{"/api/v1/approval-jobs/0b0e9b8e-6a1c-4a5f-9a47-2d8b9e1f3c11", "/api/v1/approval-jobs/{id}"},
		{"/api/v1/transients/2011fe", "/api/v1/transients/{key}"},
		{"/api/v1/transients", "/api/v1/transients"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидается %q", tt.path, got, tt.want)
		}
	}
}

func newTestValidator(t *testing.T) func(http.Handler) http.Handler {
	t.Helper()
	doc, err := openapi.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, err := NewRequestValidator(doc, testLogger())
	if err != nil {
		t.Fatalf("NewRequestValidator: %v", err)
	}
	return v.Middleware()
}

func TestRequestValidator(t *testing.T) {
	mw := newTestValidator(t)
	ok := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }))

	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		want        int
	}{
		{"корректный список", http.MethodGet, "/api/v1/submissions?limit=10&status=pending", "", "", http.StatusTeapot},
		{"limit не число", http.MethodGet, "/api/v1/submissions?limit=abc", "", "", http.StatusBadRequest},
		{"limit вне диапазона", http.MethodGet, "/api/v1/submissions?limit=5000", "", "", http.StatusBadRequest},
		{"неизвестный статус", http.MethodGet, "/api/v1/submissions?status=lost", "", "", http.StatusBadRequest},
		{"download без table", http.MethodGet, "/api/v1/submissions/0b0e9b8e-6a1c-4a5f-9a47-2d8b9e1f3c11/download", "", "", http.StatusBadRequest},
		{"радиус отрицательный", http.MethodGet, "/api/v1/transients?radius=-1", "", "", http.StatusBadRequest},
		{"cursor без query", http.MethodPost, "/api/v1/catalog/cursor", "application/json", `{"bindVars":{}}`, http.StatusBadRequest},
		{"cursor корректный", http.MethodPost, "/api/v1/catalog/cursor", "application/json", `{"query":"FOR t IN transients RETURN t"}`, http.StatusTeapot},
		{"multipart без проверки тела", http.MethodPost, "/api/v1/uploads/single", "multipart/form-data; boundary=x", "--x--\r\n", http.StatusTeapot},
		{"путь вне контракта", http.MethodGet, "/unknown", "", "", http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			ok.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("статус = %d, ожидается %d, тело: %s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusBadRequest {
				var body struct {
					Error struct {
						Code    string `json:"code"`
						Details []struct {
							Field string `json:"field"`
						} `json:"details"`
					} `json:"error"`
				}
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatal(err)
				}
				if body.Error.Code != "VALIDATION_ERROR" || len(body.Error.Details) == 0 {
					t.Errorf("тело ошибки = %+v", body)
				}
			}
		})
	}
}
