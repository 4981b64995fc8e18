package model

import "time"

// JobStatus: состояние задания утверждения.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// JobError: код и сообщение ошибки задания.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ApprovalResult: ключи записей каталога, затронутых утверждением.
type ApprovalResult struct {
	Created []string `json:"created"`
	Merged  []string `json:"merged"`
}

// ApprovalJob: асинхронное задание утверждения заявки.
type ApprovalJob struct {
	JobID        string          `json:"job_id"`
	SubmissionID string          `json:"submission_id"`
	Approver     string          `json:"approver"`
	Status       JobStatus       `json:"status"`
	Error        *JobError       `json:"error,omitempty"`
	Result       *ApprovalResult `json:"result,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}
