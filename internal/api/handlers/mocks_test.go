package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/otter-vetting/internal/api/contract"
	"github.com/bigkaa/otter-vetting/internal/catalog"
	"github.com/bigkaa/otter-vetting/internal/domain/model"
	"github.com/bigkaa/otter-vetting/internal/fieldcatalog"
	"github.com/bigkaa/otter-vetting/internal/repository"
	"github.com/bigkaa/otter-vetting/internal/service"
	"github.com/bigkaa/otter-vetting/internal/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testValidator(t *testing.T) *validator.Validator {
	t.Helper()
	cat, err := fieldcatalog.Default()
	if err != nil {
		t.Fatalf("каталог полей: %v", err)
	}
	return validator.New(cat)
}

// --- Mock VettingQueue ---

type mockQueue struct {
	stageFn    func(ctx context.Context, sub *model.Submission) (string, error)
	listFn     func(ctx context.Context, f repository.SubmissionFilter) (*service.ListResult, error)
	fetchFn    func(ctx context.Context, id string) (*model.Submission, error)
	updateFn   func(ctx context.Context, id string, req service.UpdateRequest) (*model.Submission, error)
	rejectFn   func(ctx context.Context, id string) error
	downloadFn func(ctx context.Context, id, table string) (string, []byte, error)
}

func (m *mockQueue) Stage(ctx context.Context, sub *model.Submission) (string, error) {
	if m.stageFn != nil {
		return m.stageFn(ctx, sub)
	}
	return "0b0e9b8e-6a1c-4a5f-9a47-2d8b9e1f3c11", nil
}

func (m *mockQueue) List(ctx context.Context, f repository.SubmissionFilter) (*service.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, f)
	}
	return &service.ListResult{Limit: f.Limit, Offset: f.Offset}, nil
}

func (m *mockQueue) Fetch(ctx context.Context, id string) (*model.Submission, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, id)
	}
	return nil, service.ErrNotFound
}

func (m *mockQueue) Update(ctx context.Context, id string, req service.UpdateRequest) (*model.Submission, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, req)
	}
	return nil, service.ErrNotFound
}

func (m *mockQueue) Reject(ctx context.Context, id string) error {
	if m.rejectFn != nil {
		return m.rejectFn(ctx, id)
	}
	return service.ErrNotFound
}

func (m *mockQueue) Download(ctx context.Context, id, table string) (string, []byte, error) {
	if m.downloadFn != nil {
		return m.downloadFn(ctx, id, table)
	}
	return "", nil, service.ErrNotFound
}

// --- Mock ApprovalJobs ---

type mockJobs struct {
	submitFn func(submissionID, approver string) (*model.ApprovalJob, error)
	getFn    func(jobID string) (*model.ApprovalJob, error)
}

func (m *mockJobs) Submit(submissionID, approver string) (*model.ApprovalJob, error) {
	return m.submitFn(submissionID, approver)
}

func (m *mockJobs) Get(jobID string) (*model.ApprovalJob, error) {
	if m.getFn != nil {
		return m.getFn(jobID)
	}
	return nil, service.ErrNotFound
}

// --- Mock CatalogSearch ---

type mockSearch struct {
	searchFn      func(ctx context.Context, q catalog.SearchQuery) ([]*catalog.Record, error)
	getFn         func(ctx context.Context, key string) (*catalog.Record, error)
	collectionsFn func(ctx context.Context) ([]catalog.Collection, error)
	queryFn       func(ctx context.Context, req catalog.QueryRequest) (*catalog.QueryResult, error)
	referencesFn  func(ctx context.Context, names []string) (*service.CitationReport, error)
}

func (m *mockSearch) Search(ctx context.Context, q catalog.SearchQuery) ([]*catalog.Record, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return nil, nil
}

func (m *mockSearch) Get(ctx context.Context, key string) (*catalog.Record, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, service.ErrNotFound
}

func (m *mockSearch) Collections(ctx context.Context) ([]catalog.Collection, error) {
	if m.collectionsFn != nil {
		return m.collectionsFn(ctx)
	}
	return nil, nil
}

func (m *mockSearch) Query(ctx context.Context, req catalog.QueryRequest) (*catalog.QueryResult, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, req)
	}
	return &catalog.QueryResult{}, nil
}

func (m *mockSearch) References(ctx context.Context, names []string) (*service.CitationReport, error) {
	if m.referencesFn != nil {
		return m.referencesFn(ctx, names)
	}
	return &service.CitationReport{Items: []catalog.CitationSet{}, Bibcodes: []string{}}, nil
}

// --- Mock ReadinessChecker ---

type mockChecker struct {
	status, message string
}

func (m mockChecker) CheckReady() (string, string) { return m.status, m.message }

// testDeps: зависимости обработчика для теста.
type testDeps struct {
	queue  *mockQueue
	jobs   *mockJobs
	search *mockSearch
	opts   Options
}

func newTestDeps() *testDeps {
	return &testDeps{
		queue:  &mockQueue{},
		jobs:   &mockJobs{},
		search: &mockSearch{},
		opts: Options{
			MaxUploadSize:       1 << 20,
			DefaultRadiusArcsec: 5,
		},
	}
}

// router собирает обработчик с маршрутами контракта.
func (d *testDeps) router(t *testing.T) http.Handler {
	t.Helper()
	health := NewHealthHandler(mockChecker{status: "ok"}, mockChecker{status: "ok"}, nil)
	h := NewAPIHandler(health, d.queue, d.jobs, d.search, testValidator(t), d.opts, testLogger())
	return contract.HandlerFromMux(h, chi.NewRouter())
}
