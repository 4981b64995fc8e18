package validator

import (
	"strings"

	"github.com/bigkaa/otter-vetting/internal/astro"
	"github.com/bigkaa/otter-vetting/internal/domain/model"
)

// Логические столбцы фотометрии.
var photometryFlagColumns = []string{"upperlimit", "corr_k", "corr_av", "corr_host", "corr_hostav", "computed"}

// Необязательные числовые столбцы фотометрии.
var photometryNumberColumns = []string{
	"filter_min", "filter_max", "date_err", "sigma",
	"val_k", "val_s", "val_av", "val_host", "val_hostav",
}

func (v *Validator) checkPhotometry(t *model.Table) error {
	if err := RequireColumns(t, v.catalog.Photometry.Required); err != nil {
		return err
	}

	ve := &ValidationError{}
	reportedXray := make(map[string]bool)

	for r := range t.Rows {
		row := r + 1

		for _, col := range []string{"name", "bibcode", "filter"} {
			if _, ok := t.Value(r, col); !ok {
				ve.Add(col, row, "пустое значение")
			}
		}

		if _, ok := ParseNumber(t.Get(r, "flux")); !ok {
			ve.Add("flux", row, "значение %q не является числом", t.Get(r, "flux"))
		}
		if fe, ok := t.Value(r, "flux_err"); ok {
			if _, ok := ParseNumber(fe); !ok {
				ve.Add("flux_err", row, "значение %q не является числом или NaN", fe)
			}
		}
		if u := t.Get(r, "flux_unit"); !v.catalog.IsFluxUnit(u) {
			ve.Add("flux_unit", row, "неизвестная единица потока %q", u)
		}

		date, format := t.Get(r, "date"), t.Get(r, "date_format")
		if !v.catalog.IsDateFormat(format) {
			ve.Add("date_format", row, "неизвестный формат даты %q", format)
		} else if _, err := astro.ParseDate(date, format); err != nil {
			ve.Add("date", row, "дата %q не разбирается в формате %q", date, format)
		}

		if _, ok := ParseNumber(t.Get(r, "filter_eff")); !ok {
			ve.Add("filter_eff", row, "значение %q не является числом", t.Get(r, "filter_eff"))
		}
		effUnits := t.Get(r, "filter_eff_units")
		if !v.catalog.IsSpectralUnit(effUnits) {
			ve.Add("filter_eff_units", row, "неизвестная единица %q", effUnits)
		}

		for _, col := range photometryFlagColumns {
			if val := t.Get(r, col); val != "" {
				if _, ok := ParseFlag(val); !ok {
					ve.Add(col, row, "значение %q не является логическим", val)
				}
			}
		}
		for _, col := range photometryNumberColumns {
			if val, ok := t.Value(r, col); ok {
				if _, ok := ParseNumber(val); !ok {
					ve.Add(col, row, "значение %q не является числом", val)
				}
			}
		}

		if v.isXray(t, r) {
			for _, col := range v.catalog.Photometry.XrayRequired {
				if !t.Has(col) {
					if !reportedXray[col] {
						ve.Add(col, 0, "столбец обязателен для рентгеновских наблюдений")
						reportedXray[col] = true
					}
					continue
				}
				if _, ok := t.Value(r, col); !ok {
					ve.Add(col, row, "значение обязательно для рентгеновского наблюдения")
				}
			}
		}
	}
	return ve.Err()
}

// isXray: фильтр задан в единицах энергии или obs_type = xray.
func (v *Validator) isXray(t *model.Table, r int) bool {
	return v.catalog.IsEnergyUnit(t.Get(r, "filter_eff_units")) ||
		strings.EqualFold(t.Get(r, "obs_type"), "xray")
}
