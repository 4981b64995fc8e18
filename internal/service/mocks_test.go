package service

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/otter-vetting/internal/astro"
	"github.com/bigkaa/otter-vetting/internal/catalog"
	"github.com/bigkaa/otter-vetting/internal/domain/model"
	"github.com/bigkaa/otter-vetting/internal/fieldcatalog"
	"github.com/bigkaa/otter-vetting/internal/repository"
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

// --- Mock repository ---

// mockSubmissionRepo: мок SubmissionRepository с функциональными полями.
type mockSubmissionRepo struct {
	createFn  func(ctx context.Context, s *model.Submission) error
	getByIDFn func(ctx context.Context, id string) (*model.Submission, error)
	listFn    func(ctx context.Context, f repository.SubmissionFilter) ([]*model.SubmissionSummary, error)
	countFn   func(ctx context.Context, f repository.SubmissionFilter) (int, error)
	updateFn  func(ctx context.Context, s *model.Submission) error
	deleteFn  func(ctx context.Context, id string) error
}

func (m *mockSubmissionRepo) Create(ctx context.Context, s *model.Submission) error {
	if m.createFn != nil {
		return m.createFn(ctx, s)
	}
	return nil
}

func (m *mockSubmissionRepo) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockSubmissionRepo) List(ctx context.Context, f repository.SubmissionFilter) ([]*model.SubmissionSummary, error) {
	if m.listFn != nil {
		return m.listFn(ctx, f)
	}
	return nil, nil
}

func (m *mockSubmissionRepo) Count(ctx context.Context, f repository.SubmissionFilter) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, f)
	}
	return 0, nil
}

func (m *mockSubmissionRepo) Update(ctx context.Context, s *model.Submission) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, s)
	}
	return nil
}

func (m *mockSubmissionRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return repository.ErrNotFound
}

// memRepo: мок репозитория поверх map, для сценариев из нескольких шагов.
type memRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Submission
}

func newMemRepo() (*memRepo, *mockSubmissionRepo) {
	mem := &memRepo{rows: map[string]*model.Submission{}}
	return mem, &mockSubmissionRepo{
		createFn: func(_ context.Context, s *model.Submission) error {
			mem.mu.Lock()
			defer mem.mu.Unlock()
			if _, ok := mem.rows[s.ID]; ok {
				return repository.ErrConflict
			}
			s.CreatedAt = time.Now().UTC()
			c := *s
			mem.rows[s.ID] = &c
			return nil
		},
		getByIDFn: func(_ context.Context, id string) (*model.Submission, error) {
			mem.mu.Lock()
			defer mem.mu.Unlock()
			s, ok := mem.rows[id]
			if !ok {
				return nil, repository.ErrNotFound
			}
			c := *s
			return &c, nil
		},
		updateFn: func(_ context.Context, s *model.Submission) error {
			mem.mu.Lock()
			defer mem.mu.Unlock()
			if _, ok := mem.rows[s.ID]; !ok {
				return repository.ErrNotFound
			}
			c := *s
			mem.rows[s.ID] = &c
			return nil
		},
		deleteFn: func(_ context.Context, id string) error {
			mem.mu.Lock()
			defer mem.mu.Unlock()
			if _, ok := mem.rows[id]; !ok {
				return repository.ErrNotFound
			}
			delete(mem.rows, id)
			return nil
		},
	}
}

func (m *memRepo) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	return ok
}

func (m *memRepo) get(id string) *model.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

// --- Mock publisher ---

type mockPublisher struct {
	stagedFn func(ctx context.Context, s *model.SubmissionSummary) error
}

func (m *mockPublisher) SubmissionStaged(ctx context.Context, s *model.SubmissionSummary) error {
	if m.stagedFn != nil {
		return m.stagedFn(ctx, s)
	}
	return nil
}

func (m *mockPublisher) Close() error { return nil }

// --- Mock catalog store ---

// memStore: мок хранилища каталога, хранящий записи в памяти.
type memStore struct {
	mu      sync.Mutex
	records map[string]*catalog.Record
	seq     int
	writes  int

	coneFn func(ctx context.Context, pos astro.Position, radius float64) ([]*catalog.Record, error)
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*catalog.Record{}}
}

func (m *memStore) ConeSearch(ctx context.Context, pos astro.Position, radius float64) ([]*catalog.Record, error) {
	if m.coneFn != nil {
		return m.coneFn(ctx, pos, radius)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*catalog.Record
	for _, r := range m.records {
		if r.Within(pos, radius) {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memStore) Insert(_ context.Context, rec *catalog.Record) (*catalog.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.writes++
	c := *rec
	c.Key = "k" + strconv.Itoa(m.seq)
	c.Rev = "_r1"
	m.records[c.Key] = &c
	out := c
	return &out, nil
}

func (m *memStore) Replace(_ context.Context, rec *catalog.Record) (*catalog.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[rec.Key]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	if rec.Rev != "" && rec.Rev != cur.Rev {
		return nil, catalog.ErrPrecondition
	}
	m.writes++
	c := *rec
	c.Rev = cur.Rev + "+"
	m.records[c.Key] = &c
	out := c
	return &out, nil
}

func (m *memStore) get(key string) *catalog.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[key]
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
