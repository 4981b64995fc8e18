// csv.go: разбор CSV в таблицу и проверка обязательных столбцов.
package validator

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/bigkaa/otter-vetting/internal/domain/model"
)

// Имена таблиц, используемые как поле проблемы для ошибок уровня файла.
const (
	TablePhotometry = "photometry"
	TableMetadata   = "metadata"
)

// ParseCSV разбирает CSV-текст в таблицу. Имена столбцов и значения
// обрезаются, полностью пустые строки отбрасываются. Повтор имени столбца
// после обрезки считается ошибкой. Все ошибки возвращаются как *ValidationError
// с полем table.
func ParseCSV(text, table string) (*model.Table, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(text, "\ufeff")))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		ve := &ValidationError{}
		ve.Add(table, 0, "пустой файл")
		return nil, ve
	}
	if err != nil {
		return nil, csvProblem(table, err)
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvProblem(table, err)
		}
		records = append(records, rec)
	}

	return Normalize(&model.Table{Columns: header, Rows: records}, table)
}

// Normalize приводит таблицу к каноническому виду по тем же правилам, что и ParseCSV:
// обрезка имён и значений, удаление пустых строк, выравнивание длины строк.
// Используется для таблиц, пришедших не из CSV (правки проверяющего).
func Normalize(t *model.Table, table string) (*model.Table, error) {
	ve := &ValidationError{}
	if t == nil || len(t.Columns) == 0 {
		ve.Add(table, 0, "нет строки заголовка")
		return nil, ve
	}

	// Безымянные столбцы без значений: артефакт выгрузки из таблиц, отбрасываются.
	var keep []int
	for i, c := range t.Columns {
		if strings.TrimSpace(c) == "" && columnEmpty(t.Rows, i) {
			continue
		}
		keep = append(keep, i)
	}

	cols := make([]string, len(keep))
	seen := make(map[string]struct{}, len(keep))
	for j, i := range keep {
		c := strings.TrimSpace(t.Columns[i])
		cols[j] = c
		if c == "" {
			ve.Add(table, 0, "пустое имя столбца в позиции %d", i+1)
			continue
		}
		if _, dup := seen[c]; dup {
			ve.Add(c, 0, "столбец указан в заголовке более одного раза")
			continue
		}
		seen[c] = struct{}{}
	}

	out := &model.Table{Columns: cols, Rows: make([][]string, 0, len(t.Rows))}
	for _, rec := range t.Rows {
		row := make([]string, len(cols))
		empty := true
		for j, i := range keep {
			if i < len(rec) {
				row[j] = strings.TrimSpace(rec[i])
				if row[j] != "" {
					empty = false
				}
			}
		}
		extra := false
		for i := len(t.Columns); i < len(rec); i++ {
			if strings.TrimSpace(rec[i]) != "" {
				extra = true
				empty = false
			}
		}
		if empty {
			continue
		}
		out.Rows = append(out.Rows, row)
		if extra {
			ve.Add(table, len(out.Rows), "значений больше, чем столбцов в заголовке")
		}
	}
	if len(out.Rows) == 0 {
		ve.Add(table, 0, "нет строк данных")
	}

	if err := ve.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RequireColumns проверяет, что все столбцы required присутствуют в заголовке.
// Порядок столбцов не важен; отсутствующие перечисляются все.
func RequireColumns(t *model.Table, required []string) error {
	ve := &ValidationError{}
	for _, col := range required {
		if !t.Has(col) {
			ve.Add(col, 0, "отсутствует обязательный столбец")
		}
	}
	return ve.Err()
}

func columnEmpty(rows [][]string, i int) bool {
	for _, r := range rows {
		if i < len(r) && strings.TrimSpace(r[i]) != "" {
			return false
		}
	}
	return true
}

func csvProblem(table string, err error) error {
	ve := &ValidationError{}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		// Строка 1 файла: заголовок, поэтому номер строки данных на единицу меньше.
		ve.Add(table, max(pe.StartLine-1, 0), "некорректный CSV: %v", pe.Err)
		return ve
	}
	ve.Add(table, 0, "чтение CSV: %v", err)
	return ve
}
