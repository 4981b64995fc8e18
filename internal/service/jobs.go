package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/otter-vetting/internal/domain/model"
)

// maxJobs: ёмкость реестра заданий.
const maxJobs = 10000

// Approver: выполнение одного утверждения.
type Approver interface {
	Approve(ctx context.Context, id, approver string) (*model.ApprovalResult, error)
}

// ApprovalRunner выполняет утверждения вне HTTP-запроса на ограниченном
// пуле обработчиков и хранит статусы заданий в памяти с TTL.
type ApprovalRunner struct {
	approver Approver
	sem      chan struct{}
	jobs     *expirable.LRU[string, *model.ApprovalJob]
	logger   *slog.Logger

	mu sync.Mutex
	// running: submission_id → job_id выполняющегося задания
	running map[string]string
	closed  bool
	wg      sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewApprovalRunner создаёт пул из workers обработчиков.
func NewApprovalRunner(approver Approver, workers int, jobTTL time.Duration, logger *slog.Logger) *ApprovalRunner {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ApprovalRunner{
		approver: approver,
		sem:      make(chan struct{}, workers),
		jobs:     expirable.NewLRU[string, *model.ApprovalJob](maxJobs, nil, jobTTL),
		logger:   logger.With(slog.String("component", "approval_runner")),
		running:  make(map[string]string),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Submit запускает утверждение заявки. Если для заявки уже выполняется
// задание, возвращает его вместе с ErrJobRunning.
func (r *ApprovalRunner) Submit(submissionID, approver string) (*model.ApprovalJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRunnerStopped
	}
	if jobID, ok := r.running[submissionID]; ok {
		if job, ok := r.jobs.Peek(jobID); ok {
			c := *job
			return &c, fmt.Errorf("%w: задание %s", ErrJobRunning, jobID)
		}
		return nil, fmt.Errorf("%w: задание %s", ErrJobRunning, jobID)
	}

	job := &model.ApprovalJob{
		JobID:        uuid.New().String(),
		SubmissionID: submissionID,
		Approver:     approver,
		Status:       model.JobRunning,
		StartedAt:    time.Now().UTC(),
	}
	r.jobs.Add(job.JobID, job)
	r.running[submissionID] = job.JobID

	r.wg.Add(1)
	go r.run(*job)

	c := *job
	return &c, nil
}

func (r *ApprovalRunner) run(job model.ApprovalJob) {
	defer r.wg.Done()

	select {
	case r.sem <- struct{}{}:
	case <-r.baseCtx.Done():
		r.finish(job, nil, r.baseCtx.Err())
		return
	}
	defer func() { <-r.sem }()

	approvalJobsRunning.Inc()
	defer approvalJobsRunning.Dec()

	r.logger.Info("Задание утверждения запущено",
		slog.String("job_id", job.JobID),
		slog.String("submission_id", job.SubmissionID),
	)
	res, err := r.approver.Approve(r.baseCtx, job.SubmissionID, job.Approver)
	r.finish(job, res, err)
}

func (r *ApprovalRunner) finish(job model.ApprovalJob, res *model.ApprovalResult, err error) {
	now := time.Now().UTC()
	job.FinishedAt = &now
	if err != nil {
		job.Status = model.JobFailed
		job.Error = &model.JobError{Code: ErrorCode(err), Message: err.Error()}
	} else {
		job.Status = model.JobSucceeded
		job.Result = res
	}

	r.mu.Lock()
	r.jobs.Add(job.JobID, &job)
	if r.running[job.SubmissionID] == job.JobID {
		delete(r.running, job.SubmissionID)
	}
	r.mu.Unlock()

	r.logger.Info("Задание утверждения завершено",
		slog.String("job_id", job.JobID),
		slog.String("status", string(job.Status)),
	)
}

// Get возвращает копию статуса задания.
func (r *ApprovalRunner) Get(jobID string) (*model.ApprovalJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: задание %s", ErrNotFound, jobID)
	}
	c := *job
	return &c, nil
}

// Shutdown прекращает приём заданий и ждёт завершения выполняющихся,
// пока не истечёт ctx; после этого задания отменяются.
func (r *ApprovalRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

// ErrorCode возвращает код ошибки API для ошибки сервисного слоя.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrApproveTimeout):
		return "APPROVE_TIMEOUT"
	case errors.Is(err, ErrAmbiguousMatch):
		return "AMBIGUOUS_MATCH"
	case errors.Is(err, ErrCatalogConflict):
		return "CATALOG_CONFLICT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrJobRunning):
		return "CONFLICT"
	case errors.Is(err, ErrCatalogUnavailable):
		return "CATALOG_UNAVAILABLE"
	}
	return "INTERNAL_ERROR"
}
