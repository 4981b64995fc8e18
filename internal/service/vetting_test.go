package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/otter-vetting/internal/domain/model"
	"github.com/bigkaa/otter-vetting/internal/repository"
	"github.com/bigkaa/otter-vetting/internal/session"
	"github.com/bigkaa/otter-vetting/internal/validator"
)

const photCSV = `name,bibcode,flux,flux_err,flux_unit,date,date_format,filter,filter_eff,filter_eff_units
%s,2024TNS1,18.2,0.1,mag(AB),60400.5,mjd,r,6231,AA
%s,2024TNS1,18.6,0.1,mag(AB),60405.5,mjd,g,4770,AA
`

// buildSubmission собирает заявку на один объект через сессию загрузки.
func buildSubmission(t *testing.T, v *validator.Validator, name, ra, dec string) *model.Submission {
	t.Helper()
	s := session.New(model.KindSingle, v, nil)
	s.SetUploader("Jane Doe", "jane@example.org")
	s.SetObjectName(name)
	s.SetPosition(ra, dec, "deg", "deg")
	s.SetCoordBibcode("2024TNS1")
	s.SetRedshift("0.05", "2024z")
	if err := s.AttachPhotometry(strings.ReplaceAll(photCSV, "%s", name)); err != nil {
		t.Fatalf("AttachPhotometry: %v", err)
	}
	sub, err := s.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return sub
}

func newVetting(t *testing.T) (*VettingService, *memRepo) {
	t.Helper()
	mem, repo := newMemRepo()
	return NewVettingService(repo, NewCacheService(100, time.Minute), testValidator(t), nil, testLogger()), mem
}

// TestVettingService_StageFetchRoundTrip: поставленная заявка читается без изменений.
func TestVettingService_StageFetchRoundTrip(t *testing.T) {
	var published *model.SubmissionSummary
	mem, repo := newMemRepo()
	pub := &mockPublisher{stagedFn: func(_ context.Context, s *model.SubmissionSummary) error {
		published = s
		return nil
	}}
	svc := NewVettingService(repo, NewCacheService(100, time.Minute), testValidator(t), pub, testLogger())

	sub := buildSubmission(t, svc.Validator(), "AT2024abc", "150.1", "2.2")
	id, err := svc.Stage(context.Background(), sub)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if len(id) != 36 || !mem.has(id) {
		t.Fatalf("id = %q", id)
	}
	if published == nil || published.ID != id || published.NPhotRows != 2 {
		t.Errorf("уведомление = %+v", published)
	}

	got, err := svc.Fetch(context.Background(), id)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Comment != "Uploader:Jane Doe | Email:jane@example.org" {
		t.Errorf("comment = %q", got.Comment)
	}
	if got.Metadata.Get(0, model.CommentColumn) != got.Comment {
		t.Errorf("столбец comment = %q", got.Metadata.Get(0, model.CommentColumn))
	}
	if got.Metadata.Get(0, "redshift") != "0.05" || got.Photometry.Len() != 2 {
		t.Errorf("таблицы изменились: %+v / %+v", got.Metadata, got.Photometry)
	}
}

// TestVettingService_StagePublishFailure: ошибка уведомления не мешает постановке.
func TestVettingService_StagePublishFailure(t *testing.T) {
	_, repo := newMemRepo()
	pub := &mockPublisher{stagedFn: func(context.Context, *model.SubmissionSummary) error {
		return errors.New("redis недоступен")
	}}
	svc := NewVettingService(repo, NewCacheService(10, time.Minute), testValidator(t), pub, testLogger())
	if _, err := svc.Stage(context.Background(), buildSubmission(t, svc.Validator(), "AT1", "10", "10")); err != nil {
		t.Fatalf("Stage: %v", err)
	}
}

// TestVettingService_StageStoreFailure: ошибка хранилища очереди сохраняет исходный текст.
func TestVettingService_StageStoreFailure(t *testing.T) {
	repo := &mockSubmissionRepo{createFn: func(context.Context, *model.Submission) error {
		return errors.New("dial tcp 10.0.0.5:5432: connection refused")
	}}
	svc := NewVettingService(repo, NewCacheService(10, time.Minute), testValidator(t), nil, testLogger())

	_, err := svc.Stage(context.Background(), buildSubmission(t, svc.Validator(), "AT1", "10", "10"))
	if !errors.Is(err, ErrQueueUnavailable) {
		t.Fatalf("ошибка = %v, ожидается ErrQueueUnavailable", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("текст ошибки хранилища потерян: %v", err)
	}
}

// TestVettingService_RejectIdempotent: повторное отклонение возвращает NotFound.
func TestVettingService_RejectIdempotent(t *testing.T) {
	svc, mem := newVetting(t)
	ctx := context.Background()

	id, err := svc.Stage(ctx, buildSubmission(t, svc.Validator(), "AT1", "10", "10"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Fetch(ctx, id); err != nil {
		t.Fatal(err)
	}

	if err := svc.Reject(ctx, id); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if mem.has(id) {
		t.Error("заявка осталась в очереди")
	}
	if err := svc.Reject(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Reject: ошибка = %v, ожидается ErrNotFound", err)
	}
	if _, err := svc.Fetch(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch после Reject: ошибка = %v (кэш не сброшен?)", err)
	}
}

func TestVettingService_List(t *testing.T) {
	repo := &mockSubmissionRepo{
		listFn: func(_ context.Context, f repository.SubmissionFilter) ([]*model.SubmissionSummary, error) {
			if f.Limit != 2 || f.Offset != 2 {
				t.Errorf("фильтр = %+v", f)
			}
			return []*model.SubmissionSummary{{ID: "a"}, {ID: "b"}}, nil
		},
		countFn: func(context.Context, repository.SubmissionFilter) (int, error) { return 5, nil },
	}
	svc := NewVettingService(repo, NewCacheService(10, time.Minute), testValidator(t), nil, testLogger())

	res, err := svc.List(context.Background(), repository.SubmissionFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 5 || len(res.Items) != 2 || !res.HasMore {
		t.Errorf("результат = %+v", res)
	}
}

// TestVettingService_Update проверяет повторную проверку правок.
func TestVettingService_Update(t *testing.T) {
	svc, mem := newVetting(t)
	ctx := context.Background()
	id, err := svc.Stage(ctx, buildSubmission(t, svc.Validator(), "AT1", "10", "10"))
	if err != nil {
		t.Fatal(err)
	}
	orig, _ := svc.Fetch(ctx, id)

	// Некорректная правка: дата не разбирается, заявка не меняется.
	bad := orig.Photometry.Clone()
	bad.Set(0, "date", "вчера")
	_, err = svc.Update(ctx, id, UpdateRequest{Photometry: bad})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ошибка = %v, ожидается ErrValidation", err)
	}
	var ve *validator.ValidationError
	if !errors.As(err, &ve) || len(ve.Problems) == 0 {
		t.Errorf("нет подробностей валидации: %v", err)
	}
	if mem.get(id).Photometry.Get(0, "date") != "60400.5" {
		t.Error("некорректная правка сохранена")
	}

	// Фотометрия без объекта из метаданных нарушает соответствие имён.
	other := orig.Photometry.Clone()
	other.Set(1, "name", "AT999")
	if _, err := svc.Update(ctx, id, UpdateRequest{Photometry: other}); !errors.Is(err, ErrValidation) {
		t.Errorf("несовпадение имён: ошибка = %v", err)
	}

	// Правка метаданных без столбца comment: столбец восстанавливается.
	meta := orig.Metadata.Clone()
	ci := meta.Index(model.CommentColumn)
	meta.Columns = append(meta.Columns[:ci], meta.Columns[ci+1:]...)
	meta.Rows[0] = append(meta.Rows[0][:ci], meta.Rows[0][ci+1:]...)
	meta.Set(0, "coord_bibcode", "2024ATel99")

	updated, err := svc.Update(ctx, id, UpdateRequest{Metadata: meta, DropPhotometry: true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Metadata.Get(0, model.CommentColumn) != orig.Comment {
		t.Error("столбец comment не восстановлен")
	}
	stored := mem.get(id)
	if stored.Metadata.Get(0, "coord_bibcode") != "2024ATel99" || stored.Photometry != nil {
		t.Errorf("сохранено: %+v", stored)
	}
	// Кэш отдаёт новую версию.
	cached, _ := svc.Fetch(ctx, id)
	if cached.Metadata.Get(0, "coord_bibcode") != "2024ATel99" {
		t.Error("кэш не обновлён")
	}
	if orig.Metadata.Get(0, "coord_bibcode") != "2024TNS1" {
		t.Error("Update изменил ранее выданную заявку")
	}
}

func TestVettingService_Download(t *testing.T) {
	svc, _ := newVetting(t)
	ctx := context.Background()
	id, err := svc.Stage(ctx, buildSubmission(t, svc.Validator(), "AT1", "10", "10"))
	if err != nil {
		t.Fatal(err)
	}

	name, data, err := svc.Download(ctx, id, TablePhot)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if name != "phot-"+id+".csv" {
		t.Errorf("имя файла = %q", name)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "name,bibcode,flux") {
		t.Errorf("CSV = %q", data)
	}

	if _, _, err := svc.Download(ctx, id, "xml"); !errors.Is(err, ErrValidation) {
		t.Errorf("неизвестная таблица: ошибка = %v", err)
	}
	if _, _, err := svc.Download(ctx, "missing", TableMeta); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестная заявка: ошибка = %v", err)
	}
}

func TestCacheService_GetSetDelete(t *testing.T) {
	cache := NewCacheService(2, time.Minute)
	if _, ok := cache.Get("a"); ok {
		t.Fatal("ожидался промах для нового ключа")
	}
	cache.Set("a", &model.Submission{ID: "a"})
	if got, ok := cache.Get("a"); !ok || got.ID != "a" {
		t.Fatal("ожидалось попадание после Set")
	}
	cache.Set("b", &model.Submission{ID: "b"})
	cache.Set("c", &model.Submission{ID: "c"})
	if cache.Len() != 2 {
		t.Errorf("Len = %d, ожидается 2", cache.Len())
	}
	cache.Delete("c")
	if _, ok := cache.Get("c"); ok {
		t.Error("запись осталась после Delete")
	}
}
