package model

import (
	"fmt"
	"strings"
	"time"
)

// SubmissionKind: способ загрузки заявки.
type SubmissionKind string

const (
	// KindSingle: один объект, метаданные собраны из полей формы.
	KindSingle SubmissionKind = "single"
	// KindMultiple: несколько объектов, метаданные из загруженного CSV.
	KindMultiple SubmissionKind = "multiple"
)

// SubmissionStatus: состояние заявки в очереди на проверку.
type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusApproved SubmissionStatus = "approved"
)

// ApprovalMarker: суффикс комментария, которым помечается утверждённая заявка.
const ApprovalMarker = "| approved"

// CommentColumn: служебный столбец метаданных с данными загрузившего.
const CommentColumn = "comment"

// Submission: заявка в очереди на проверку.
type Submission struct {
	ID            string           `json:"id"`
	Kind          SubmissionKind   `json:"kind"`
	UploaderName  string           `json:"uploader_name"`
	UploaderEmail string           `json:"uploader_email"`
	Comment       string           `json:"comment"`
	Status        SubmissionStatus `json:"status"`
	Metadata      *Table           `json:"metadata"`
	Photometry    *Table           `json:"photometry,omitempty"`
	ApprovedBy    *string          `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time       `json:"approved_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// SubmissionSummary: строка списка очереди.
type SubmissionSummary struct {
	ID            string           `json:"id"`
	Kind          SubmissionKind   `json:"kind"`
	UploaderName  string           `json:"uploader_name"`
	UploaderEmail string           `json:"uploader_email"`
	Status        SubmissionStatus `json:"status"`
	Approved      bool             `json:"approved"`
	NMetaRows     int              `json:"n_meta_rows"`
	NPhotRows     int              `json:"n_phot_rows"`
	CreatedAt     time.Time        `json:"created_at"`
}

// IsApproved учитывает и статус, и маркер в комментарии
// (заявки, помеченные до появления статуса, распознаются по суффиксу).
func (s *Submission) IsApproved() bool {
	return s.Status == StatusApproved || HasApprovalMarker(s.Comment)
}

// Summary возвращает краткое представление заявки для списка.
func (s *Submission) Summary() SubmissionSummary {
	return SubmissionSummary{
		ID:            s.ID,
		Kind:          s.Kind,
		UploaderName:  s.UploaderName,
		UploaderEmail: s.UploaderEmail,
		Status:        s.Status,
		Approved:      s.IsApproved(),
		NMetaRows:     s.Metadata.Len(),
		NPhotRows:     s.Photometry.Len(),
		CreatedAt:     s.CreatedAt,
	}
}

// UploaderComment формирует комментарий "Uploader:<name> | Email:<email>".
func UploaderComment(name, email string) string {
	return fmt.Sprintf("Uploader:%s | Email:%s", name, email)
}

// HasApprovalMarker проверяет суффикс утверждения.
func HasApprovalMarker(comment string) bool {
	return strings.HasSuffix(strings.TrimSpace(comment), ApprovalMarker)
}

// WithApprovalMarker добавляет суффикс утверждения; повторный вызов ничего не меняет.
func WithApprovalMarker(comment string) string {
	if HasApprovalMarker(comment) {
		return comment
	}
	return strings.TrimSpace(comment) + " " + ApprovalMarker
}
