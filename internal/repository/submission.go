package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/otter-vetting/internal/domain/model"
)

// SubmissionFilter: фильтры и пагинация списка очереди.
type SubmissionFilter struct {
	Status        *model.SubmissionStatus
	UploaderEmail *string
	Limit         int
	Offset        int
}

// SubmissionRepository: интерфейс хранилища очереди заявок.
type SubmissionRepository interface {
	// Create сохраняет новую заявку; ID назначается вызывающим.
	Create(ctx context.Context, s *model.Submission) error
	// GetByID возвращает заявку целиком.
	GetByID(ctx context.Context, id string) (*model.Submission, error)
	// List возвращает краткие записи очереди, новые первыми.
	List(ctx context.Context, f SubmissionFilter) ([]*model.SubmissionSummary, error)
	// Count возвращает количество заявок под фильтром (без пагинации).
	Count(ctx context.Context, f SubmissionFilter) (int, error)
	// Update перезаписывает изменяемые поля заявки.
	Update(ctx context.Context, s *model.Submission) error
	// Delete удаляет заявку.
	Delete(ctx context.Context, id string) error
}

type submissionRepo struct {
	db DBTX
}

// NewSubmissionRepository создаёт репозиторий очереди заявок.
func NewSubmissionRepository(db DBTX) SubmissionRepository {
	return &submissionRepo{db: db}
}

const submissionColumns = `id, kind, uploader_name, uploader_email, comment, status,
	metadata, photometry, approved_by, approved_at, created_at, updated_at`

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	s := &model.Submission{}
	err := row.Scan(
		&s.ID, &s.Kind, &s.UploaderName, &s.UploaderEmail, &s.Comment, &s.Status,
		&s.Metadata, &s.Photometry, &s.ApprovedBy, &s.ApprovedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

func (r *submissionRepo) Create(ctx context.Context, s *model.Submission) error {
	query := `
		INSERT INTO submissions (id, kind, uploader_name, uploader_email, comment, status,
			metadata, photometry, n_meta_rows, n_phot_rows)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		s.ID, s.Kind, s.UploaderName, s.UploaderEmail, s.Comment, s.Status,
		s.Metadata, s.Photometry, s.Metadata.Len(), s.Photometry.Len(),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: заявка %s уже существует", ErrConflict, s.ID)
		}
		return fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return nil
}

func (r *submissionRepo) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE id = $1`, submissionColumns)
	s, err := scanSubmission(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return s, nil
}

// applyFilter добавляет условия фильтра к запросу.
func applyFilter(b sq.SelectBuilder, f SubmissionFilter) sq.SelectBuilder {
	if f.Status != nil {
		b = b.Where(sq.Eq{"status": string(*f.Status)})
	}
	if f.UploaderEmail != nil {
		b = b.Where(sq.Expr("lower(uploader_email) = lower(?)", *f.UploaderEmail))
	}
	return b
}

// buildListQuery собирает запрос списка очереди.
func buildListQuery(f SubmissionFilter) (string, []any, error) {
	b := psql.
		Select("id", "kind", "uploader_name", "uploader_email", "comment", "status",
			"n_meta_rows", "n_phot_rows", "created_at").
		From("submissions")
	b = applyFilter(b, f).OrderBy("created_at DESC", "id")
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	return b.ToSql()
}

// buildCountQuery собирает запрос количества заявок под фильтром.
func buildCountQuery(f SubmissionFilter) (string, []any, error) {
	return applyFilter(psql.Select("COUNT(*)").From("submissions"), f).ToSql()
}

func (r *submissionRepo) List(ctx context.Context, f SubmissionFilter) ([]*model.SubmissionSummary, error) {
	query, args, err := buildListQuery(f)
	if err != nil {
		return nil, fmt.Errorf("ошибка построения запроса списка: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка заявок: %w", err)
	}
	defer rows.Close()

	var result []*model.SubmissionSummary
	for rows.Next() {
		s := &model.SubmissionSummary{}
		var comment string
		if err := rows.Scan(
			&s.ID, &s.Kind, &s.UploaderName, &s.UploaderEmail, &comment, &s.Status,
			&s.NMetaRows, &s.NPhotRows, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		s.Approved = s.Status == model.StatusApproved || model.HasApprovalMarker(comment)
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *submissionRepo) Count(ctx context.Context, f SubmissionFilter) (int, error) {
	query, args, err := buildCountQuery(f)
	if err != nil {
		return 0, fmt.Errorf("ошибка построения запроса количества: %w", err)
	}

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта заявок: %w", err)
	}
	return count, nil
}

func (r *submissionRepo) Update(ctx context.Context, s *model.Submission) error {
	query := `
		UPDATE submissions
		SET comment = $2, status = $3, metadata = $4, photometry = $5,
			n_meta_rows = $6, n_phot_rows = $7, approved_by = $8, approved_at = $9,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		s.ID, s.Comment, s.Status, s.Metadata, s.Photometry,
		s.Metadata.Len(), s.Photometry.Len(), s.ApprovedBy, s.ApprovedAt,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления заявки: %w", err)
	}
	return nil
}

func (r *submissionRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления заявки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
