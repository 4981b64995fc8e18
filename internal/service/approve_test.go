package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/bigkaa/otter-vetting/internal/astro"
	"github.com/bigkaa/otter-vetting/internal/catalog"
	"github.com/bigkaa/otter-vetting/internal/domain/model"
)

func fptr(v float64) *float64 { return &v }

type approveFixture struct {
	vetting *VettingService
	mem     *memRepo
	store   *memStore
	svc     *ApproveService
}

func newApproveFixture(t *testing.T, timeout time.Duration) *approveFixture {
	t.Helper()
	vetting, mem := newVetting(t)
	store := newMemStore()
	conv := catalog.NewConverter(vetting.Validator().Catalog())
	return &approveFixture{
		vetting: vetting,
		mem:     mem,
		store:   store,
		svc:     NewApproveService(vetting, store, conv, 5, timeout, testLogger()),
	}
}

func (f *approveFixture) stage(t *testing.T, name, ra, dec string) string {
	t.Helper()
	id, err := f.vetting.Stage(context.Background(), buildSubmission(t, f.vetting.Validator(), name, ra, dec))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	return id
}

func (f *approveFixture) seed(name string, ra, dec float64) *catalog.Record {
	rec, _ := f.store.Insert(context.Background(), &catalog.Record{
		Name: catalog.Name{DefaultName: name, Alias: []catalog.Alias{{Value: name, Reference: []string{"old"}}}},
		Coordinate: []catalog.Coordinate{{
			RADeg: fptr(ra), DecDeg: fptr(dec), CoordinateType: "equatorial", Reference: []string{"old"},
		}},
	})
	f.store.writes = 0
	return rec
}

// TestApprove_NoMatchInserts: без совпадений создаётся новая запись, заявка удаляется.
func TestApprove_NoMatchInserts(t *testing.T) {
	f := newApproveFixture(t, time.Minute)
	id := f.stage(t, "AT2024new", "150.1", "2.2")

	res, err := f.svc.Approve(context.Background(), id, "reviewer")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if len(res.Created) != 1 || len(res.Merged) != 0 {
		t.Fatalf("результат = %+v", res)
	}
	rec := f.store.get(res.Created[0])
	if rec.Name.DefaultName != "AT2024new" || len(rec.Photometry) != 2 {
		t.Errorf("запись = %+v", rec)
	}
	if _, ok := rec.Extra["comment"]; ok {
		t.Error("служебное поле comment попало в каталог")
	}
	if f.mem.has(id) {
		t.Error("заявка осталась в очереди после утверждения")
	}
}

// TestApprove_OneMatchMerges: одно совпадение объединяется с If-Match по ревизии.
func TestApprove_OneMatchMerges(t *testing.T) {
	f := newApproveFixture(t, time.Minute)
	existing := f.seed("SN2024old", 150.1, 2.2)
	id := f.stage(t, "AT2024abc", "150.1004", "2.2")

	res, err := f.svc.Approve(context.Background(), id, "reviewer")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if !slices.Equal(res.Merged, []string{existing.Key}) || len(res.Created) != 0 {
		t.Fatalf("результат = %+v", res)
	}
	rec := f.store.get(existing.Key)
	if rec.Name.DefaultName != "SN2024old" || !slices.Contains(rec.Names(), "AT2024abc") {
		t.Errorf("имена = %v", rec.Names())
	}
	if len(rec.Coordinate) != 2 || len(rec.Distance) != 1 || len(rec.Photometry) != 2 {
		t.Errorf("объединённая запись = %+v", rec)
	}
	if rec.Rev != "_r1+" {
		t.Errorf("_rev = %q", rec.Rev)
	}
}

// TestApprove_AmbiguousNoWrites: несколько совпадений: ошибка без записей, заявка остаётся.
func TestApprove_AmbiguousNoWrites(t *testing.T) {
	f := newApproveFixture(t, time.Minute)
	f.seed("A", 150.1, 2.2)
	f.seed("B", 150.1008, 2.2)
	id := f.stage(t, "AT2024abc", "150.1004", "2.2")

	_, err := f.svc.Approve(context.Background(), id, "reviewer")
	if !errors.Is(err, ErrAmbiguousMatch) {
		t.Fatalf("ошибка = %v, ожидается ErrAmbiguousMatch", err)
	}
	if f.store.writeCount() != 0 {
		t.Errorf("записей в каталог: %d, ожидается 0", f.store.writeCount())
	}
	if !f.mem.has(id) {
		t.Fatal("заявка удалена после неудачного утверждения")
	}
	// Пометка об утверждении выполнена до сверки.
	if sub := f.mem.get(id); sub.Status != model.StatusApproved || !sub.IsApproved() {
		t.Errorf("статус = %s, comment = %q", sub.Status, sub.Comment)
	}
}

// TestApprove_IntraSubmissionCollision: два объекта заявки в пределах радиуса друг от друга.
func TestApprove_IntraSubmissionCollision(t *testing.T) {
	f := newApproveFixture(t, time.Minute)
	sub := buildSubmission(t, f.vetting.Validator(), "AT1", "10", "10")
	row := append([]string(nil), sub.Metadata.Rows[0]...)
	row[0] = "AT2"
	sub.Metadata.Rows = append(sub.Metadata.Rows, row)
	sub.Photometry = nil
	id, err := f.vetting.Stage(context.Background(), sub)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Approve(context.Background(), id, "r"); !errors.Is(err, ErrAmbiguousMatch) {
		t.Fatalf("ошибка = %v, ожидается ErrAmbiguousMatch", err)
	}
	if f.store.writeCount() != 0 || !f.mem.has(id) {
		t.Error("при неоднозначности выполнены записи или удалена заявка")
	}
}

// TestApprove_SecondApprovalMerges: вторая заявка в той же области объединяется
// с записью, созданной первой.
func TestApprove_SecondApprovalMerges(t *testing.T) {
	f := newApproveFixture(t, time.Minute)
	first := f.stage(t, "AT2024a", "200.0", "-30.0")
	second := f.stage(t, "AT2024b", "200.0005", "-30.0")

	r1, err := f.svc.Approve(context.Background(), first, "r")
	if err != nil {
		t.Fatalf("первое утверждение: %v", err)
	}
	r2, err := f.svc.Approve(context.Background(), second, "r")
	if err != nil {
		t.Fatalf("второе утверждение: %v", err)
	}
	if len(r2.Merged) != 1 || r2.Merged[0] != r1.Created[0] {
		t.Fatalf("второе утверждение = %+v, ожидается объединение с %s", r2, r1.Created[0])
	}
	rec := f.store.get(r1.Created[0])
	if !slices.Equal(rec.Names(), []string{"AT2024a", "AT2024b"}) {
		t.Errorf("имена = %v", rec.Names())
	}
	if len(rec.Photometry) != 2 {
		t.Errorf("фотометрия = %d, ожидается 2 (одинаковые измерения не дублируются)", len(rec.Photometry))
	}
}

// TestApprove_Timeout: зависшее хранилище приводит к ErrApproveTimeout, заявка остаётся.
func TestApprove_Timeout(t *testing.T) {
	f := newApproveFixture(t, 50*time.Millisecond)
	f.store.coneFn = func(ctx context.Context, _ astro.Position, _ float64) ([]*catalog.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	id := f.stage(t, "AT1", "10", "10")

	_, err := f.svc.Approve(context.Background(), id, "r")
	if !errors.Is(err, ErrApproveTimeout) {
		t.Fatalf("ошибка = %v, ожидается ErrApproveTimeout", err)
	}
	if ErrorCode(err) != "APPROVE_TIMEOUT" {
		t.Errorf("код = %s", ErrorCode(err))
	}
	if !f.mem.has(id) {
		t.Error("заявка удалена после таймаута")
	}
}

// TestApprove_StoreUnavailable: ошибка хранилища передаётся с исходным сообщением.
func TestApprove_StoreUnavailable(t *testing.T) {
	f := newApproveFixture(t, time.Minute)
	f.store.coneFn = func(context.Context, astro.Position, float64) ([]*catalog.Record, error) {
		return nil, &catalog.APIError{Status: 500, Message: "cluster not ready"}
	}
	id := f.stage(t, "AT1", "10", "10")

	_, err := f.svc.Approve(context.Background(), id, "r")
	if !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("ошибка = %v, ожидается ErrCatalogUnavailable", err)
	}
	var apiErr *catalog.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "cluster not ready" {
		t.Errorf("исходная ошибка хранилища потеряна: %v", err)
	}
}

func TestApprove_NotFound(t *testing.T) {
	f := newApproveFixture(t, time.Minute)
	if _, err := f.svc.Approve(context.Background(), "missing", "r"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидается ErrNotFound", err)
	}
}
