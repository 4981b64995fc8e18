// Пакет model: доменные модели Vetting Module.
package model

import (
	"encoding/csv"
	"io"
	"slices"
	"strings"
)

// MissingValue: маркер отсутствующего числового значения в загружаемых таблицах.
const MissingValue = "NaN"

// Table: табличные данные загрузки (метаданные или фотометрия).
// Значения хранятся как исходные строки после обрезки пробелов.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Len возвращает количество строк данных.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index возвращает позицию столбца или -1.
func (t *Table) Index(col string) int {
	return slices.Index(t.Columns, col)
}

// Has сообщает, есть ли столбец в заголовке.
func (t *Table) Has(col string) bool {
	return t.Index(col) >= 0
}

// Get возвращает значение ячейки; для отсутствующего столбца или короткой строки: "".
func (t *Table) Get(row int, col string) string {
	i := t.Index(col)
	if i < 0 || row < 0 || row >= len(t.Rows) || i >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][i]
}

// Value возвращает значение ячейки и признак его наличия.
// Пустая строка и NaN считаются отсутствующим значением.
func (t *Table) Value(row int, col string) (string, bool) {
	v := t.Get(row, col)
	if IsMissing(v) {
		return "", false
	}
	return v, true
}

// Set записывает значение ячейки, добавляя столбец при необходимости.
func (t *Table) Set(row int, col, value string) {
	i := t.Index(col)
	if i < 0 {
		t.Columns = append(t.Columns, col)
		i = len(t.Columns) - 1
	}
	for len(t.Rows[row]) <= i {
		t.Rows[row] = append(t.Rows[row], "")
	}
	t.Rows[row][i] = value
}

// SetColumn записывает одно и то же значение во все строки столбца col.
func (t *Table) SetColumn(col, value string) {
	if !t.Has(col) {
		t.Columns = append(t.Columns, col)
	}
	for r := range t.Rows {
		t.Set(r, col, value)
	}
}

// ColumnValues возвращает значения столбца по всем строкам.
func (t *Table) ColumnValues(col string) []string {
	out := make([]string, 0, len(t.Rows))
	for r := range t.Rows {
		out = append(out, t.Get(r, col))
	}
	return out
}

// Clone возвращает глубокую копию таблицы.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	c := &Table{
		Columns: slices.Clone(t.Columns),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, r := range t.Rows {
		c.Rows[i] = slices.Clone(r)
	}
	return c
}

// WriteCSV сериализует таблицу в CSV с заголовком.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, r := range t.Rows {
		row := make([]string, len(t.Columns))
		copy(row, r)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// IsMissing сообщает, является ли значение отсутствующим ("" или NaN).
func IsMissing(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, MissingValue)
}
