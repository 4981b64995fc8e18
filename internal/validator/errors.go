// errors.go: структурированная ошибка валидации со списком всех найденных проблем.
package validator

import (
	"errors"
	"fmt"
	"strings"
)

// maxProblems ограничивает длину списка проблем, возвращаемого клиенту.
const maxProblems = 200

// Problem: одна проблема входных данных.
// Row: номер строки данных (с 1, без учёта заголовка); 0: проблема относится к полю или столбцу целиком.
type Problem struct {
	Field   string `json:"field"`
	Row     int    `json:"row,omitempty"`
	Message string `json:"message"`
}

// ValidationError перечисляет все проблемы, найденные за один проход.
type ValidationError struct {
	Problems  []Problem
	truncated int
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems)+1)
	for _, p := range e.Problems {
		if p.Row > 0 {
			parts = append(parts, fmt.Sprintf("%s (строка %d): %s", p.Field, p.Row, p.Message))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", p.Field, p.Message))
		}
	}
	if e.truncated > 0 {
		parts = append(parts, fmt.Sprintf("и ещё %d проблем", e.truncated))
	}
	return "ошибка валидации: " + strings.Join(parts, "; ")
}

// Add добавляет проблему.
func (e *ValidationError) Add(field string, row int, format string, args ...any) {
	if len(e.Problems) >= maxProblems {
		e.truncated++
		return
	}
	e.Problems = append(e.Problems, Problem{
		Field:   field,
		Row:     row,
		Message: fmt.Sprintf(format, args...),
	})
}

// Merge переносит проблемы из err, если это *ValidationError.
// Прочие ошибки добавляются как проблема поля field.
func (e *ValidationError) Merge(field string, err error) {
	if err == nil {
		return
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		for _, p := range ve.Problems {
			e.Add(p.Field, p.Row, "%s", p.Message)
		}
		e.truncated += ve.truncated
		return
	}
	e.Add(field, 0, "%s", err.Error())
}

// Truncated возвращает число отброшенных проблем сверх лимита.
func (e *ValidationError) Truncated() int {
	return e.truncated
}

// Fields возвращает имена полей с проблемами без повторов, в порядке появления.
func (e *ValidationError) Fields() []string {
	seen := make(map[string]struct{}, len(e.Problems))
	var out []string
	for _, p := range e.Problems {
		if _, ok := seen[p.Field]; ok {
			continue
		}
		seen[p.Field] = struct{}{}
		out = append(out, p.Field)
	}
	return out
}

// Err возвращает nil при отсутствии проблем, иначе саму ошибку.
func (e *ValidationError) Err() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}
