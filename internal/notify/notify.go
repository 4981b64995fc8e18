// Пакет notify: уведомления проверяющих о новых заявках через Redis Streams.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/otter-vetting/internal/domain/model"
)

// EventSubmissionStaged: тип события о постановке заявки в очередь.
const EventSubmissionStaged = "submission.staged"

// Publisher: отправитель уведомлений.
type Publisher interface {
	SubmissionStaged(ctx context.Context, s *model.SubmissionSummary) error
	Close() error
}

// Config: параметры подключения к Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// streamAdder: часть клиента go-redis, нужная для XADD.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisPublisher пишет события в Redis stream.
type RedisPublisher struct {
	client streamAdder
	stream string
	logger *slog.Logger
}

// NewRedisPublisher подключается к Redis и проверяет соединение.
func NewRedisPublisher(cfg Config, logger *slog.Logger) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	return newRedisPublisher(rdb, cfg.Stream, logger), nil
}

func newRedisPublisher(client streamAdder, stream string, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		stream: stream,
		logger: logger.With(slog.String("component", "notify")),
	}
}

// SubmissionStaged публикует событие о новой заявке.
func (p *RedisPublisher) SubmissionStaged(ctx context.Context, s *model.SubmissionSummary) error {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event":          EventSubmissionStaged,
			"submission_id":  s.ID,
			"kind":           string(s.Kind),
			"uploader_name":  s.UploaderName,
			"uploader_email": s.UploaderEmail,
			"n_meta_rows":    strconv.Itoa(s.NMetaRows),
			"n_phot_rows":    strconv.Itoa(s.NPhotRows),
			"staged_at":      s.CreatedAt.UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("XADD в stream %s: %w", p.stream, err)
	}
	p.logger.Debug("Событие опубликовано",
		slog.String("stream", p.stream),
		slog.String("message_id", id),
		slog.String("submission_id", s.ID),
	)
	return nil
}

// Close закрывает соединение с Redis.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Noop: отправитель для конфигурации без Redis.
type Noop struct{}

// SubmissionStaged ничего не делает.
func (Noop) SubmissionStaged(context.Context, *model.SubmissionSummary) error { return nil }

// Close ничего не делает.
func (Noop) Close() error { return nil }
