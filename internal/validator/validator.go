// Пакет validator: проверка загружаемых таблиц фотометрии и метаданных.
// Любая проблема входных данных возвращается как *ValidationError
// со списком всех найденных проблем; других ошибок пакет не возвращает.
package validator

import (
	"math"
	"strconv"
	"strings"

	"github.com/bigkaa/otter-vetting/internal/domain/model"
	"github.com/bigkaa/otter-vetting/internal/fieldcatalog"
)

// Validator проверяет таблицы по каталогу полей.
type Validator struct {
	catalog *fieldcatalog.Catalog
}

// New создаёт валидатор.
func New(catalog *fieldcatalog.Catalog) *Validator {
	return &Validator{catalog: catalog}
}

// Catalog возвращает каталог полей валидатора.
func (v *Validator) Catalog() *fieldcatalog.Catalog {
	return v.catalog
}

// PhotometryCSV разбирает и проверяет CSV фотометрии.
// При ошибке таблица не возвращается: частично принятая загрузка отбрасывается.
func (v *Validator) PhotometryCSV(text string) (*model.Table, error) {
	t, err := ParseCSV(text, TablePhotometry)
	if err != nil {
		return nil, err
	}
	if err := v.checkPhotometry(t); err != nil {
		return nil, err
	}
	return t, nil
}

// PhotometryTable нормализует и проверяет готовую таблицу фотометрии.
func (v *Validator) PhotometryTable(t *model.Table) (*model.Table, error) {
	n, err := Normalize(t, TablePhotometry)
	if err != nil {
		return nil, err
	}
	if err := v.checkPhotometry(n); err != nil {
		return nil, err
	}
	return n, nil
}

// MetadataCSV разбирает и проверяет CSV метаданных.
func (v *Validator) MetadataCSV(text string) (*model.Table, error) {
	t, err := ParseCSV(text, TableMetadata)
	if err != nil {
		return nil, err
	}
	if err := v.checkMetadata(t); err != nil {
		return nil, err
	}
	return t, nil
}

// MetadataTable нормализует и проверяет готовую таблицу метаданных.
func (v *Validator) MetadataTable(t *model.Table) (*model.Table, error) {
	n, err := Normalize(t, TableMetadata)
	if err != nil {
		return nil, err
	}
	if err := v.checkMetadata(n); err != nil {
		return nil, err
	}
	return n, nil
}

// CrossCheck проверяет соответствие имён объектов: у каждой строки метаданных
// должна быть фотометрия, и каждая строка фотометрии должна относиться
// к объекту из метаданных.
func CrossCheck(meta, phot *model.Table) error {
	if meta == nil || phot == nil {
		return nil
	}
	ve := &ValidationError{}

	metaNames := make(map[string]struct{}, meta.Len())
	for r := range meta.Rows {
		metaNames[meta.Get(r, "name")] = struct{}{}
	}
	photNames := make(map[string]struct{}, phot.Len())
	for r := range phot.Rows {
		name := phot.Get(r, "name")
		photNames[name] = struct{}{}
		if _, ok := metaNames[name]; !ok {
			ve.Add("name", r+1, "фотометрия для объекта %q, которого нет в метаданных", name)
		}
	}
	for r := range meta.Rows {
		name := meta.Get(r, "name")
		if _, ok := photNames[name]; !ok {
			ve.Add("name", r+1, "нет строк фотометрии для объекта %q", name)
		}
	}
	return ve.Err()
}

// ParseNumber разбирает конечное число.
func ParseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseFlag разбирает логический признак (upperlimit, corr_*).
// Пустое значение и NaN дают (false, true).
func ParseFlag(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan":
		return false, true
	case "true", "t", "yes", "y", "1", "1.0":
		return true, true
	case "false", "f", "no", "n", "0", "0.0":
		return false, true
	}
	return false, false
}
