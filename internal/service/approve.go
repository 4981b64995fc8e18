package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/otter-vetting/internal/astro"
	"github.com/bigkaa/otter-vetting/internal/catalog"
	"github.com/bigkaa/otter-vetting/internal/domain/model"
)

// CatalogStore: операции хранилища каталога, нужные для утверждения.
type CatalogStore interface {
	ConeSearch(ctx context.Context, pos astro.Position, radiusArcsec float64) ([]*catalog.Record, error)
	Insert(ctx context.Context, rec *catalog.Record) (*catalog.Record, error)
	Replace(ctx context.Context, rec *catalog.Record) (*catalog.Record, error)
}

// ApproveService сверяет заявку с каталогом и записывает результат.
type ApproveService struct {
	vetting      *VettingService
	store        CatalogStore
	converter    *catalog.Converter
	radiusArcsec float64
	timeout      time.Duration
	logger       *slog.Logger
}

// NewApproveService создаёт сервис утверждения.
func NewApproveService(
	vetting *VettingService,
	store CatalogStore,
	converter *catalog.Converter,
	radiusArcsec float64,
	timeout time.Duration,
	logger *slog.Logger,
) *ApproveService {
	return &ApproveService{
		vetting:      vetting,
		store:        store,
		converter:    converter,
		radiusArcsec: radiusArcsec,
		timeout:      timeout,
		logger:       logger.With(slog.String("component", "approve_service")),
	}
}

// planStep: действие над каталогом для одной записи.
type planStep struct {
	// existing == nil: вставка новой записи
	existing *catalog.Record
	record   *catalog.Record
	names    []string
}

// Approve утверждает заявку: помечает её, сопоставляет каждый объект
// с каталогом по положению, вставляет или объединяет записи и удаляет
// заявку из очереди. Записи в каталог выполняются только после того,
// как для всех объектов найдено однозначное действие. При любой ошибке
// до удаления заявка остаётся в очереди.
func (s *ApproveService) Approve(ctx context.Context, id, approver string) (*model.ApprovalResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.approve(ctx, id, approver)
	approvalDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w (%s): %w", ErrApproveTimeout, s.timeout, err)
		}
		approvalsTotal.WithLabelValues(resultLabel(err)).Inc()
		s.logger.Warn("Утверждение не выполнено",
			slog.String("submission_id", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	approvalsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("Заявка утверждена",
		slog.String("submission_id", id),
		slog.String("approver", approver),
		slog.Int("created", len(res.Created)),
		slog.Int("merged", len(res.Merged)),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (s *ApproveService) approve(ctx context.Context, id, approver string) (*model.ApprovalResult, error) {
	sub, err := s.vetting.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.vetting.Annotate(ctx, sub, approver); err != nil {
		s.logger.Warn("Не удалось пометить заявку как утверждённую",
			slog.String("submission_id", id),
			slog.String("error", err.Error()),
		)
	}

	candidates, err := s.converter.FromSubmission(sub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	plan, err := s.plan(ctx, candidates)
	if err != nil {
		return nil, err
	}

	res, err := s.execute(ctx, plan)
	if err != nil {
		return nil, err
	}

	if err := s.vetting.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("удаление заявки из очереди после записи в каталог: %w", err)
	}
	return res, nil
}

// plan находит действие для каждого объекта заявки. Несколько объектов,
// совпавших с одной записью каталога, объединяются в неё последовательно.
func (s *ApproveService) plan(ctx context.Context, candidates []catalog.Candidate) ([]*planStep, error) {
	var (
		steps   []*planStep
		byKey   = map[string]*planStep{}
		inserts []catalog.Candidate
	)

	for _, c := range candidates {
		matches, err := s.store.ConeSearch(ctx, c.Position, s.radiusArcsec)
		if err != nil {
			return nil, storeError(err)
		}

		switch len(matches) {
		case 0:
			for _, prev := range inserts {
				if astro.WithinArcsec(prev.Position, c.Position, s.radiusArcsec) {
					return nil, fmt.Errorf("%w: объекты %q и %q заявки находятся в пределах %g″ друг от друга",
						ErrAmbiguousMatch, prev.Record.Name.DefaultName, c.Record.Name.DefaultName, s.radiusArcsec)
				}
			}
			inserts = append(inserts, c)
			steps = append(steps, &planStep{record: c.Record, names: []string{c.Record.Name.DefaultName}})

		case 1:
			existing := matches[0]
			if step, ok := byKey[existing.Key]; ok {
				step.record = catalog.Merge(step.record, c.Record)
				step.names = append(step.names, c.Record.Name.DefaultName)
				continue
			}
			step := &planStep{
				existing: existing,
				record:   catalog.Merge(existing, c.Record),
				names:    []string{c.Record.Name.DefaultName},
			}
			byKey[existing.Key] = step
			steps = append(steps, step)

		default:
			keys := make([]string, 0, len(matches))
			for _, m := range matches {
				keys = append(keys, fmt.Sprintf("%s (%s)", m.Name.DefaultName, m.Key))
			}
			return nil, fmt.Errorf("%w: объект %q (строка %d) совпадает с записями %s",
				ErrAmbiguousMatch, c.Record.Name.DefaultName, c.Row, strings.Join(keys, ", "))
		}
	}
	return steps, nil
}

// execute выполняет план. Автоматических повторов нет.
func (s *ApproveService) execute(ctx context.Context, plan []*planStep) (*model.ApprovalResult, error) {
	res := &model.ApprovalResult{Created: []string{}, Merged: []string{}}
	for _, step := range plan {
		if step.existing == nil {
			out, err := s.store.Insert(ctx, step.record)
			if err != nil {
				return nil, fmt.Errorf("вставка %q: %w", step.record.Name.DefaultName, storeError(err))
			}
			catalogRecordsWrittenTotal.WithLabelValues("insert").Inc()
			res.Created = append(res.Created, out.Key)
			continue
		}

		out, err := s.store.Replace(ctx, step.record)
		if err != nil {
			return nil, fmt.Errorf("объединение %s с записью %s: %w",
				strings.Join(step.names, ", "), step.existing.Key, storeError(err))
		}
		catalogRecordsWrittenTotal.WithLabelValues("merge").Inc()
		res.Merged = append(res.Merged, out.Key)
	}
	return res, nil
}

// storeError приводит ошибку хранилища к ошибке сервисного слоя.
// Сообщение хранилища сохраняется.
func storeError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, catalog.ErrPrecondition):
		return fmt.Errorf("%w: %w", ErrCatalogConflict, err)
	case errors.Is(err, catalog.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, catalog.ErrReadOnly):
		return fmt.Errorf("%w: %w", ErrReadOnly, err)
	}
	return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
}

// resultLabel возвращает значение метки result для метрик.
func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrApproveTimeout):
		return "timeout"
	case errors.Is(err, ErrAmbiguousMatch):
		return "ambiguous"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrCatalogConflict):
		return "conflict"
	}
	return "error"
}
