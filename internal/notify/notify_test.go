package notify

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/otter-vetting/internal/domain/model"
)

// mockStream: mock клиента Redis с функциональным полем.
type mockStream struct {
	xaddFn func(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	closed bool
}

func (m *mockStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	return m.xaddFn(ctx, a)
}

func (m *mockStream) Close() error {
	m.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRedisPublisher_SubmissionStaged(t *testing.T) {
	var got *redis.XAddArgs
	mock := &mockStream{xaddFn: func(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
		got = a
		return redis.NewStringResult("1700000000000-0", nil)
	}}
	p := newRedisPublisher(mock, "otter:submissions", testLogger())

	s := &model.SubmissionSummary{
		ID:            "abc",
		Kind:          model.KindMultiple,
		UploaderName:  "Jane Doe",
		UploaderEmail: "jane@example.org",
		NMetaRows:     3,
		NPhotRows:     12,
		CreatedAt:     time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := p.SubmissionStaged(context.Background(), s); err != nil {
		t.Fatalf("SubmissionStaged: %v", err)
	}

	if got.Stream != "otter:submissions" {
		t.Errorf("stream = %q", got.Stream)
	}
	values := got.Values.(map[string]any)
	want := map[string]string{
		"event":          EventSubmissionStaged,
		"submission_id":  "abc",
		"uploader_email": "jane@example.org",
		"n_meta_rows":    "3",
		"n_phot_rows":    "12",
		"staged_at":      "2026-10-01T12:00:00Z",
	}
	for k, v := range want {
		if values[k] != v {
			t.Errorf("%s = %v, ожидается %q", k, values[k], v)
		}
	}

	if err := p.Close(); err != nil || !mock.closed {
		t.Error("Close не закрыл клиент")
	}
}

func TestRedisPublisher_Error(t *testing.T) {
	mock := &mockStream{xaddFn: func(context.Context, *redis.XAddArgs) *redis.StringCmd {
		return redis.NewStringResult("", errors.New("connection refused"))
	}}
	err := newRedisPublisher(mock, "s", testLogger()).SubmissionStaged(context.Background(), &model.SubmissionSummary{ID: "x"})
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
}
