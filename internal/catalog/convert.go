package catalog

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/bigkaa/otter-vetting/internal/astro"
	"github.com/bigkaa/otter-vetting/internal/domain/model"
	"github.com/bigkaa/otter-vetting/internal/fieldcatalog"
	"github.com/bigkaa/otter-vetting/internal/validator"
)

// Типы наблюдений фотометрии.
const (
	ObsTypeUVOIR = "uvoir"
	ObsTypeRadio = "radio"
	ObsTypeXray  = "xray"
)

// distanceTypes: тип расстояния для числовых групп метаданных.
var distanceTypes = map[string]string{
	"redshift":            "redshift",
	"luminosity_distance": "luminosity",
	"comoving_distance":   "comoving",
}

// Candidate: запись, построенная из одной строки метаданных заявки.
type Candidate struct {
	// Номер строки метаданных (с 1)
	Row      int
	Position astro.Position
	Record   *Record
}

// Converter строит канонические записи из таблиц заявки.
type Converter struct {
	catalog *fieldcatalog.Catalog
}

// NewConverter создаёт конвертер по каталогу полей.
func NewConverter(catalog *fieldcatalog.Catalog) *Converter {
	return &Converter{catalog: catalog}
}

// FromSubmission преобразует каждую строку метаданных вместе с её фотометрией
// в каноническую запись. Служебные поля очереди (comment, идентификатор
// заявки) в запись не попадают.
func (c *Converter) FromSubmission(s *model.Submission) ([]Candidate, error) {
	meta := s.Metadata
	if meta.Len() == 0 {
		return nil, fmt.Errorf("заявка %s: нет строк метаданных", s.ID)
	}

	out := make([]Candidate, 0, meta.Len())
	for r := range meta.Rows {
		rec, pos, err := c.metadataRecord(meta, r)
		if err != nil {
			return nil, fmt.Errorf("строка метаданных %d: %w", r+1, err)
		}
		phot, err := c.photometry(s.Photometry, rec.Name.DefaultName)
		if err != nil {
			return nil, fmt.Errorf("фотометрия объекта %q: %w", rec.Name.DefaultName, err)
		}
		rec.Photometry = phot
		out = append(out, Candidate{Row: r + 1, Position: pos, Record: rec})
	}
	return out, nil
}

func (c *Converter) metadataRecord(t *model.Table, r int) (*Record, astro.Position, error) {
	name := t.Get(r, "name")
	bibcode := t.Get(r, "coord_bibcode")
	refs := []string{bibcode}

	raUnit, ok := c.catalog.CoordinateUnit(t.Get(r, "ra_unit"))
	if !ok {
		return nil, astro.Position{}, fmt.Errorf("неизвестная единица ra %q", t.Get(r, "ra_unit"))
	}
	decUnit, ok := c.catalog.CoordinateUnit(t.Get(r, "dec_unit"))
	if !ok {
		return nil, astro.Position{}, fmt.Errorf("неизвестная единица dec %q", t.Get(r, "dec_unit"))
	}
	ra, dec := t.Get(r, "ra"), t.Get(r, "dec")
	pos, err := astro.ParsePosition(ra, dec, raUnit, decUnit)
	if err != nil {
		return nil, astro.Position{}, err
	}

	rec := &Record{
		Name: Name{
			DefaultName: name,
			Alias:       []Alias{{Value: name, Reference: refs}},
		},
		Coordinate: []Coordinate{{
			RA:             ra,
			Dec:            dec,
			RAUnits:        raUnit,
			DecUnits:       decUnit,
			RADeg:          &pos.RA,
			DecDeg:         &pos.Dec,
			CoordinateType: "equatorial",
			Reference:      refs,
		}},
	}

	for _, g := range c.catalog.Metadata.Groups {
		value, ok := t.Value(r, g.Value)
		if !ok {
			continue
		}
		ref := []string{t.Get(r, g.Bibcode)}
		if err := c.applyGroup(rec, g, value, ref, func(col string) string { return t.Get(r, col) }); err != nil {
			return nil, astro.Position{}, fmt.Errorf("группа %s: %w", g.Name, err)
		}
	}
	return rec, pos, nil
}

// applyGroup добавляет в запись значение необязательной группы.
func (c *Converter) applyGroup(rec *Record, g fieldcatalog.Group, value string, ref []string, get func(string) string) error {
	switch g.ValueType() {
	case fieldcatalog.TypeNumber:
		v, ok := validator.ParseNumber(value)
		if !ok {
			return fmt.Errorf("не число: %q", value)
		}
		dt, ok := distanceTypes[g.Name]
		if !ok {
			dt = g.Name
		}
		d := Distance{Value: v, DistanceType: dt, Reference: ref}
		if g.Unit != "" {
			d.Unit = get(g.Unit)
		}
		rec.Distance = append(rec.Distance, d)

	case fieldcatalog.TypeDate:
		rec.DateReference = append(rec.DateReference, DateReference{
			Value:      value,
			DateFormat: strings.ToLower(get(g.Format)),
			DateType:   strings.TrimSuffix(g.Name, "_date"),
			Reference:  ref,
		})

	default:
		if g.Name != "classification" {
			return addExtra(rec, g.Name, Alias{Value: value, Reference: ref})
		}
		confidence := 1.0
		if g.Flag != "" {
			if f, ok := validator.ParseNumber(get(g.Flag)); ok {
				confidence = f
			}
		}
		rec.Classification = append(rec.Classification, Classification{
			ObjectClass: value,
			Confidence:  confidence,
			Reference:   ref,
		})
	}
	return nil
}

// addExtra сохраняет значение текстовой группы без отдельного поля в записи.
func addExtra(rec *Record, key string, v Alias) error {
	var list []Alias
	if raw, ok := rec.Extra[key]; ok {
		if err := json.Unmarshal(raw, &list); err != nil {
			return err
		}
	}
	data, err := json.Marshal(append(list, v))
	if err != nil {
		return err
	}
	if rec.Extra == nil {
		rec.Extra = map[string]json.RawMessage{}
	}
	rec.Extra[key] = data
	return nil
}

// photometry выбирает строки фотометрии объекта name.
func (c *Converter) photometry(t *model.Table, name string) ([]Photometry, error) {
	if t.Len() == 0 {
		return nil, nil
	}
	var out []Photometry
	for r := range t.Rows {
		if t.Get(r, "name") != name {
			continue
		}
		p, err := c.photometryRow(t, r)
		if err != nil {
			return nil, fmt.Errorf("строка %d: %w", r+1, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Converter) photometryRow(t *model.Table, r int) (Photometry, error) {
	raw, ok := validator.ParseNumber(t.Get(r, "flux"))
	if !ok {
		return Photometry{}, fmt.Errorf("flux не число: %q", t.Get(r, "flux"))
	}
	eff, ok := validator.ParseNumber(t.Get(r, "filter_eff"))
	if !ok {
		return Photometry{}, fmt.Errorf("filter_eff не число: %q", t.Get(r, "filter_eff"))
	}

	p := Photometry{
		Reference:      t.Get(r, "bibcode"),
		Raw:            raw,
		RawErr:         optionalNumber(t, r, "flux_err"),
		RawUnits:       t.Get(r, "flux_unit"),
		Date:           t.Get(r, "date"),
		DateFormat:     strings.ToLower(t.Get(r, "date_format")),
		FilterKey:      t.Get(r, "filter"),
		FilterEff:      eff,
		FilterEffUnits: t.Get(r, "filter_eff_units"),
		Telescope:      optionalText(t, r, "telescope"),
		Instrument:     optionalText(t, r, "instrument"),
		FilterMin:      optionalNumber(t, r, "filter_min"),
		FilterMax:      optionalNumber(t, r, "filter_max"),
		CorrK:          optionalFlag(t, r, "corr_k"),
		CorrAV:         optionalFlag(t, r, "corr_av"),
		CorrHost:       optionalFlag(t, r, "corr_host"),
		CorrHostAV:     optionalFlag(t, r, "corr_hostav"),
		ValK:           optionalNumber(t, r, "val_k"),
		ValS:           optionalNumber(t, r, "val_s"),
		ValAV:          optionalNumber(t, r, "val_av"),
		ValHost:        optionalNumber(t, r, "val_host"),
		ValHostAV:      optionalNumber(t, r, "val_hostav"),
		DateErr:        optionalNumber(t, r, "date_err"),
		Sigma:          optionalNumber(t, r, "sigma"),
		Computed:       optionalFlag(t, r, "computed"),
	}
	if v, ok := t.Value(r, "upperlimit"); ok {
		p.UpperLimit, _ = validator.ParseFlag(v)
	}
	p.ObsType = strings.ToLower(optionalText(t, r, "obs_type"))
	if p.ObsType == "" {
		p.ObsType = c.obsType(p.FilterEffUnits)
	}
	return p, nil
}

// obsType определяет диапазон наблюдения по единицам фильтра.
func (c *Converter) obsType(unit string) string {
	u := strings.TrimSpace(unit)
	switch {
	case c.catalog.IsEnergyUnit(u):
		return ObsTypeXray
	case slices.Contains(c.catalog.Units.Frequency, u):
		return ObsTypeRadio
	}
	return ObsTypeUVOIR
}

func optionalText(t *model.Table, r int, col string) string {
	v, _ := t.Value(r, col)
	return v
}

func optionalNumber(t *model.Table, r int, col string) *float64 {
	v, ok := t.Value(r, col)
	if !ok {
		return nil
	}
	f, ok := validator.ParseNumber(v)
	if !ok {
		return nil
	}
	return &f
}

func optionalFlag(t *model.Table, r int, col string) *bool {
	v, ok := t.Value(r, col)
	if !ok {
		return nil
	}
	b, ok := validator.ParseFlag(v)
	if !ok {
		return nil
	}
	return &b
}
