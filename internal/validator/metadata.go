package validator

import (
	"strings"

	"github.com/bigkaa/otter-vetting/internal/astro"
	"github.com/bigkaa/otter-vetting/internal/domain/model"
	"github.com/bigkaa/otter-vetting/internal/fieldcatalog"
)

func (v *Validator) checkMetadata(t *model.Table) error {
	if err := RequireColumns(t, v.catalog.Metadata.Required); err != nil {
		return err
	}

	ve := &ValidationError{}
	names := make(map[string]int, t.Len())

	for r := range t.Rows {
		row := r + 1

		name, ok := t.Value(r, "name")
		switch {
		case !ok:
			ve.Add("name", row, "пустое значение")
		case names[name] > 0:
			ve.Add("name", row, "объект %q уже описан в строке %d", name, names[name])
		default:
			names[name] = row
		}
		if _, ok := t.Value(r, "coord_bibcode"); !ok {
			ve.Add("coord_bibcode", row, "пустое значение")
		}

		v.checkPosition(ve, row, t.Get(r, "ra"), t.Get(r, "dec"), t.Get(r, "ra_unit"), t.Get(r, "dec_unit"))

		for _, g := range v.catalog.Metadata.Groups {
			if !groupInHeader(t, g) {
				continue
			}
			v.checkGroup(ve, row, g, func(col string) (string, bool) { return t.Value(r, col) })
		}
	}
	return ve.Err()
}

// checkPosition проверяет, что координаты разбираются с указанными единицами.
func (v *Validator) checkPosition(ve *ValidationError, row int, ra, dec, raUnit, decUnit string) {
	ru, raOK := v.catalog.CoordinateUnit(raUnit)
	if !raOK {
		ve.Add("ra_unit", row, "неизвестная единица координаты %q", raUnit)
	}
	du, decOK := v.catalog.CoordinateUnit(decUnit)
	if !decOK {
		ve.Add("dec_unit", row, "неизвестная единица координаты %q", decUnit)
	}
	if raOK {
		if _, err := astro.ParseRA(ra, ru); err != nil {
			ve.Add("ra", row, "%v", err)
		}
	}
	if decOK {
		if _, err := astro.ParseDec(dec, du); err != nil {
			ve.Add("dec", row, "%v", err)
		}
	}
}

// CheckPosition проверяет координаты одного объекта.
func (v *Validator) CheckPosition(ra, dec, raUnit, decUnit string) error {
	ve := &ValidationError{}
	v.checkPosition(ve, 0, ra, dec, raUnit, decUnit)
	return ve.Err()
}

// CheckGroup проверяет группу полей одного объекта.
// get возвращает значение столбца и признак его наличия.
func (v *Validator) CheckGroup(g fieldcatalog.Group, get func(col string) (string, bool)) error {
	ve := &ValidationError{}
	v.checkGroup(ve, 0, g, get)
	return ve.Err()
}

// checkGroup: группа заполняется целиком или не заполняется вовсе;
// флаг допустим только вместе со значением.
func (v *Validator) checkGroup(ve *ValidationError, row int, g fieldcatalog.Group, get func(string) (string, bool)) {
	cols := g.Columns()
	var present, missing []string
	for _, col := range cols {
		if _, ok := get(col); ok {
			present = append(present, col)
		} else {
			missing = append(missing, col)
		}
	}

	flag, hasFlag := "", false
	if g.Flag != "" {
		flag, hasFlag = get(g.Flag)
	}

	if len(present) == 0 {
		if hasFlag {
			ve.Add(g.Value, row, "требуется вместе с %s", g.Flag)
		}
		return
	}
	if len(missing) > 0 {
		for _, col := range missing {
			ve.Add(col, row, "требуется вместе с %s", strings.Join(present, ", "))
		}
		return
	}

	value, _ := get(g.Value)
	switch g.ValueType() {
	case fieldcatalog.TypeNumber:
		if _, ok := ParseNumber(value); !ok {
			ve.Add(g.Value, row, "значение %q не является числом", value)
		}
	case fieldcatalog.TypeDate:
		if g.Format == "" {
			break
		}
		format, _ := get(g.Format)
		if !v.catalog.IsDateFormat(format) {
			ve.Add(g.Format, row, "неизвестный формат даты %q", format)
		} else if _, err := astro.ParseDate(value, format); err != nil {
			ve.Add(g.Value, row, "дата %q не разбирается в формате %q", value, format)
		}
	}
	if g.Unit != "" {
		if unit, _ := get(g.Unit); !v.catalog.IsDistanceUnit(unit) {
			ve.Add(g.Unit, row, "неизвестная единица %q", unit)
		}
	}
	if hasFlag {
		if _, ok := ParseNumber(flag); !ok {
			ve.Add(g.Flag, row, "значение %q не является числом", flag)
		}
	}
}

func groupInHeader(t *model.Table, g fieldcatalog.Group) bool {
	for _, col := range g.Columns() {
		if t.Has(col) {
			return true
		}
	}
	return g.Flag != "" && t.Has(g.Flag)
}
