package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/otter-vetting/internal/domain/model"
	"github.com/bigkaa/otter-vetting/internal/notify"
	"github.com/bigkaa/otter-vetting/internal/repository"
	"github.com/bigkaa/otter-vetting/internal/validator"
)

// Таблицы заявки для выгрузки.
const (
	TableMeta = "meta"
	TablePhot = "phot"
)

// ListResult: страница очереди на проверку.
type ListResult struct {
	Items   []*model.SubmissionSummary
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}

// UpdateRequest: правка заявки проверяющим. Таблицы заменяются целиком;
// nil оставляет таблицу без изменений.
type UpdateRequest struct {
	Metadata   *model.Table
	Photometry *model.Table
	// Удалить фотометрию из заявки
	DropPhotometry bool
}

// VettingService: очередь заявок на проверку.
type VettingService struct {
	repo      repository.SubmissionRepository
	cache     *CacheService
	validator *validator.Validator
	publisher notify.Publisher
	logger    *slog.Logger
}

// NewVettingService создаёт сервис очереди.
func NewVettingService(
	repo repository.SubmissionRepository,
	cache *CacheService,
	v *validator.Validator,
	publisher notify.Publisher,
	logger *slog.Logger,
) *VettingService {
	if publisher == nil {
		publisher = notify.Noop{}
	}
	return &VettingService{
		repo:      repo,
		cache:     cache,
		validator: v,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "vetting_service")),
	}
}

// Validator возвращает валидатор таблиц, общий для загрузок и правок.
func (s *VettingService) Validator() *validator.Validator { return s.validator }

// Stage ставит собранную заявку в очередь и возвращает её идентификатор.
// Уведомление проверяющих отправляется без гарантии доставки.
func (s *VettingService) Stage(ctx context.Context, sub *model.Submission) (string, error) {
	sub.ID = uuid.New().String()
	if sub.Status == "" {
		sub.Status = model.StatusPending
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return "", fmt.Errorf("%w: постановка заявки в очередь: %w", ErrQueueUnavailable, err)
	}
	submissionsStagedTotal.WithLabelValues(string(sub.Kind)).Inc()

	s.logger.Info("Заявка поставлена в очередь",
		slog.String("submission_id", sub.ID),
		slog.String("kind", string(sub.Kind)),
		slog.Int("n_meta_rows", sub.Metadata.Len()),
		slog.Int("n_phot_rows", sub.Photometry.Len()),
	)

	summary := sub.Summary()
	if err := s.publisher.SubmissionStaged(ctx, &summary); err != nil {
		s.logger.Warn("Не удалось отправить уведомление о заявке",
			slog.String("submission_id", sub.ID),
			slog.String("error", err.Error()),
		)
	}
	return sub.ID, nil
}

// List возвращает страницу очереди.
func (s *VettingService) List(ctx context.Context, f repository.SubmissionFilter) (*ListResult, error) {
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, err
	}
	return &ListResult{
		Items:   items,
		Total:   total,
		Limit:   f.Limit,
		Offset:  f.Offset,
		HasMore: f.Offset+len(items) < total,
	}, nil
}

// Fetch возвращает заявку целиком. Возвращаемое значение нельзя изменять.
func (s *VettingService) Fetch(ctx context.Context, id string) (*model.Submission, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached, nil
	}

	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: заявка %s", ErrNotFound, id)
		}
		return nil, err
	}
	s.cache.Set(id, sub)
	return sub, nil
}

// Update заменяет таблицы заявки после повторной проверки.
// Столбец comment восстанавливается из комментария заявки.
func (s *VettingService) Update(ctx context.Context, id string, req UpdateRequest) (*model.Submission, error) {
	current, err := s.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	next.Metadata = current.Metadata.Clone()
	next.Photometry = current.Photometry.Clone()

	ve := &validator.ValidationError{}
	if req.Metadata != nil {
		meta, err := s.validator.MetadataTable(req.Metadata)
		if err != nil {
			ve.Merge("metadata", err)
		}
		next.Metadata = meta
	}
	switch {
	case req.DropPhotometry:
		next.Photometry = nil
	case req.Photometry != nil:
		phot, err := s.validator.PhotometryTable(req.Photometry)
		if err != nil {
			ve.Merge("photometry", err)
		}
		next.Photometry = phot
	}
	if err := ve.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if next.Photometry != nil {
		if err := validator.CrossCheck(next.Metadata, next.Photometry); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	next.Metadata.SetColumn(model.CommentColumn, next.Comment)

	if err := s.repo.Update(ctx, &next); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.cache.Delete(id)
			return nil, fmt.Errorf("%w: заявка %s", ErrNotFound, id)
		}
		return nil, err
	}
	s.cache.Set(id, &next)

	s.logger.Info("Заявка изменена проверяющим",
		slog.String("submission_id", id),
		slog.Int("n_meta_rows", next.Metadata.Len()),
		slog.Int("n_phot_rows", next.Photometry.Len()),
	)
	return &next, nil
}

// Annotate помечает заявку как утверждённую: статус, проверяющий, время
// и суффикс комментария.
func (s *VettingService) Annotate(ctx context.Context, sub *model.Submission, approver string) error {
	next := *sub
	now := time.Now().UTC()
	next.Status = model.StatusApproved
	next.ApprovedBy = &approver
	next.ApprovedAt = &now
	next.Comment = model.WithApprovalMarker(sub.Comment)
	next.Metadata = sub.Metadata.Clone()
	next.Metadata.SetColumn(model.CommentColumn, next.Comment)

	if err := s.repo.Update(ctx, &next); err != nil {
		s.cache.Delete(sub.ID)
		return fmt.Errorf("пометка заявки %s: %w", sub.ID, err)
	}
	s.cache.Set(sub.ID, &next)
	return nil
}

// Delete удаляет заявку из очереди (отклонение или завершение утверждения).
func (s *VettingService) Delete(ctx context.Context, id string) error {
	s.cache.Delete(id)
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: заявка %s", ErrNotFound, id)
		}
		return err
	}
	return nil
}

// Reject отклоняет заявку. Повторное отклонение возвращает ErrNotFound.
func (s *VettingService) Reject(ctx context.Context, id string) error {
	if err := s.Delete(ctx, id); err != nil {
		return err
	}
	submissionsRejectedTotal.Inc()
	s.logger.Info("Заявка отклонена", slog.String("submission_id", id))
	return nil
}

// Download сериализует таблицу заявки в CSV и возвращает имя файла и содержимое.
func (s *VettingService) Download(ctx context.Context, id, table string) (string, []byte, error) {
	sub, err := s.Fetch(ctx, id)
	if err != nil {
		return "", nil, err
	}

	var t *model.Table
	switch table {
	case TableMeta:
		t = sub.Metadata
	case TablePhot:
		t = sub.Photometry
	default:
		return "", nil, fmt.Errorf("%w: неизвестная таблица %q", ErrValidation, table)
	}
	if t == nil {
		return "", nil, fmt.Errorf("%w: в заявке %s нет фотометрии", ErrNotFound, id)
	}

	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return "", nil, fmt.Errorf("сериализация CSV: %w", err)
	}
	return fmt.Sprintf("%s-%s.csv", table, id), buf.Bytes(), nil
}
