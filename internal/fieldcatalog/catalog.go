// Пакет fieldcatalog: описание столбцов загружаемых таблиц, словарей единиц
// и форматов дат. По умолчанию используется встроенный catalog.yaml,
// его можно заменить файлом из VM_FIELD_CATALOG_PATH.
package fieldcatalog

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Типы значений группы.
const (
	TypeNumber = "number"
	TypeDate   = "date"
	TypeText   = "text"
)

// Group: необязательная группа столбцов метаданных, заполняемая целиком или не заполняемая вовсе.
// Пустые Unit/Format/Flag означают, что столбец в группу не входит.
type Group struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Value   string `yaml:"value"`
	Unit    string `yaml:"unit"`
	Format  string `yaml:"format"`
	Flag    string `yaml:"flag"`
	Bibcode string `yaml:"bibcode"`
}

// Columns возвращает столбцы группы, обязательные при наличии значения.
// Flag в их число не входит.
func (g Group) Columns() []string {
	cols := []string{g.Value}
	if g.Unit != "" {
		cols = append(cols, g.Unit)
	}
	if g.Format != "" {
		cols = append(cols, g.Format)
	}
	return append(cols, g.Bibcode)
}

// ValueType возвращает тип значения группы. Без явного type группа
// с форматом считается датой, остальные: текстом.
func (g Group) ValueType() string {
	switch {
	case g.Type != "":
		return g.Type
	case g.Format != "":
		return TypeDate
	}
	return TypeText
}

// PhotometrySection: столбцы таблицы фотометрии.
type PhotometrySection struct {
	Required     []string `yaml:"required"`
	XrayRequired []string `yaml:"xray_required"`
	Optional     []string `yaml:"optional"`
}

// MetadataSection: столбцы таблицы метаданных.
type MetadataSection struct {
	Required []string `yaml:"required"`
	Groups   []Group  `yaml:"groups"`
}

// Units: словари допустимых единиц.
type Units struct {
	Flux       []string `yaml:"flux"`
	Distance   []string `yaml:"distance"`
	Wavelength []string `yaml:"wavelength"`
	Frequency  []string `yaml:"frequency"`
	Energy     []string `yaml:"energy"`
}

// CoordinateUnits: синонимы единиц координат.
type CoordinateUnits struct {
	Degree    []string `yaml:"degree"`
	HourAngle []string `yaml:"hourangle"`
}

// Catalog: полный каталог полей.
type Catalog struct {
	Photometry      PhotometrySection `yaml:"photometry"`
	Metadata        MetadataSection   `yaml:"metadata"`
	Units           Units             `yaml:"units"`
	DateFormats     []string          `yaml:"date_formats"`
	CoordinateUnits CoordinateUnits   `yaml:"coordinate_units"`
}

// Default возвращает встроенный каталог.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load читает каталог из файла path. Пустой path: встроенный каталог.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога полей %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse разбирает YAML и проверяет согласованность каталога.
func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("разбор каталога полей: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Photometry.Required) == 0 {
		return fmt.Errorf("каталог полей: пустой список photometry.required")
	}
	if len(c.Metadata.Required) == 0 {
		return fmt.Errorf("каталог полей: пустой список metadata.required")
	}
	if len(c.DateFormats) == 0 {
		return fmt.Errorf("каталог полей: пустой список date_formats")
	}
	if dup := firstDuplicate(c.Photometry.Required); dup != "" {
		return fmt.Errorf("каталог полей: повтор столбца %q в photometry.required", dup)
	}

	metaCols := slices.Clone(c.Metadata.Required)
	for _, g := range c.Metadata.Groups {
		if g.Value == "" || g.Bibcode == "" {
			return fmt.Errorf("каталог полей: группа %q без value или bibcode", g.Name)
		}
		switch g.Type {
		case "", TypeNumber, TypeDate, TypeText:
		default:
			return fmt.Errorf("каталог полей: группа %q: неизвестный тип %q", g.Name, g.Type)
		}
		metaCols = append(metaCols, g.Columns()...)
		if g.Flag != "" {
			metaCols = append(metaCols, g.Flag)
		}
	}
	if dup := firstDuplicate(metaCols); dup != "" {
		return fmt.Errorf("каталог полей: повтор столбца %q в метаданных", dup)
	}
	return nil
}

// Group возвращает группу по имени.
func (c *Catalog) Group(name string) (Group, bool) {
	for _, g := range c.Metadata.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// IsFluxUnit проверяет единицу потока.
func (c *Catalog) IsFluxUnit(unit string) bool {
	return slices.Contains(c.Units.Flux, strings.TrimSpace(unit))
}

// IsDistanceUnit проверяет единицу расстояния.
func (c *Catalog) IsDistanceUnit(unit string) bool {
	return slices.Contains(c.Units.Distance, strings.TrimSpace(unit))
}

// IsSpectralUnit проверяет единицу эффективной длины волны, частоты или энергии фильтра.
func (c *Catalog) IsSpectralUnit(unit string) bool {
	u := strings.TrimSpace(unit)
	return slices.Contains(c.Units.Wavelength, u) ||
		slices.Contains(c.Units.Frequency, u) ||
		slices.Contains(c.Units.Energy, u)
}

// IsEnergyUnit сообщает, задан ли фильтр в единицах энергии (рентгеновский диапазон).
func (c *Catalog) IsEnergyUnit(unit string) bool {
	return slices.Contains(c.Units.Energy, strings.TrimSpace(unit))
}

// IsDateFormat проверяет формат даты без учёта регистра.
func (c *Catalog) IsDateFormat(format string) bool {
	f := strings.ToLower(strings.TrimSpace(format))
	return slices.Contains(c.DateFormats, f)
}

// CoordinateUnit нормализует единицу координаты в "deg" или "hourangle".
func (c *Catalog) CoordinateUnit(unit string) (string, bool) {
	u := strings.ToLower(strings.TrimSpace(unit))
	switch {
	case slices.Contains(c.CoordinateUnits.Degree, u):
		return "deg", true
	case slices.Contains(c.CoordinateUnits.HourAngle, u):
		return "hourangle", true
	}
	return "", false
}

func firstDuplicate(items []string) string {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			return it
		}
		seen[it] = struct{}{}
	}
	return ""
}
