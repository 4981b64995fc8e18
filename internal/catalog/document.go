package catalog

import (
	"encoding/json"
	"fmt"
)

// Alias: альтернативное имя объекта и его источники.
type Alias struct {
	Value     string   `json:"value"`
	Reference []string `json:"reference,omitempty"`
}

// Name: основное имя и список псевдонимов.
type Name struct {
	DefaultName string  `json:"default_name"`
	Alias       []Alias `json:"alias,omitempty"`
}

// Coordinate: экваториальные координаты в исходной записи и в градусах.
type Coordinate struct {
	RA             string   `json:"ra"`
	Dec            string   `json:"dec"`
	RAUnits        string   `json:"ra_units"`
	DecUnits       string   `json:"dec_units"`
	RADeg          *float64 `json:"ra_deg,omitempty"`
	DecDeg         *float64 `json:"dec_deg,omitempty"`
	CoordinateType string   `json:"coordinate_type"`
	Reference      []string `json:"reference,omitempty"`
}

// Distance: красное смещение или расстояние.
type Distance struct {
	Value        float64  `json:"value"`
	Unit         string   `json:"unit,omitempty"`
	DistanceType string   `json:"distance_type"`
	Reference    []string `json:"reference,omitempty"`
}

// DateReference: значимая дата (например, дата открытия).
type DateReference struct {
	Value      string   `json:"value"`
	DateFormat string   `json:"date_format"`
	DateType   string   `json:"date_type"`
	Reference  []string `json:"reference,omitempty"`
}

// Classification: класс объекта с уверенностью.
type Classification struct {
	ObjectClass string   `json:"object_class"`
	Confidence  float64  `json:"confidence"`
	Reference   []string `json:"reference,omitempty"`
}

// Photometry: одно фотометрическое измерение.
type Photometry struct {
	Reference      string   `json:"reference"`
	Raw            float64  `json:"raw"`
	RawErr         *float64 `json:"raw_err,omitempty"`
	RawUnits       string   `json:"raw_units"`
	Date           string   `json:"date"`
	DateFormat     string   `json:"date_format"`
	FilterKey      string   `json:"filter_key"`
	FilterEff      float64  `json:"filter_eff"`
	FilterEffUnits string   `json:"filter_eff_units"`
	Telescope      string   `json:"telescope,omitempty"`
	Instrument     string   `json:"instrument,omitempty"`
	FilterMin      *float64 `json:"filter_min,omitempty"`
	FilterMax      *float64 `json:"filter_max,omitempty"`
	UpperLimit     bool     `json:"upperlimit"`
	ObsType        string   `json:"obs_type"`
	CorrK          *bool    `json:"corr_k,omitempty"`
	CorrAV         *bool    `json:"corr_av,omitempty"`
	CorrHost       *bool    `json:"corr_host,omitempty"`
	CorrHostAV     *bool    `json:"corr_hostav,omitempty"`
	// Поправки, применённые к потоку, и их параметры
	ValK      *float64 `json:"val_k,omitempty"`
	ValS      *float64 `json:"val_s,omitempty"`
	ValAV     *float64 `json:"val_av,omitempty"`
	ValHost   *float64 `json:"val_host,omitempty"`
	ValHostAV *float64 `json:"val_hostav,omitempty"`
	DateErr   *float64 `json:"date_err,omitempty"`
	Sigma     *float64 `json:"sigma,omitempty"`
	// Computed: значение получено расчётом, а не измерено
	Computed *bool `json:"computed,omitempty"`
}

// Record: каноническая запись о транзиенте.
// Поля документа, не описанные структурой, сохраняются в Extra
// и записываются обратно без изменений.
type Record struct {
	Key            string           `json:"_key,omitempty"`
	ID             string           `json:"_id,omitempty"`
	Rev            string           `json:"_rev,omitempty"`
	Name           Name             `json:"name"`
	Coordinate     []Coordinate     `json:"coordinate,omitempty"`
	Distance       []Distance       `json:"distance,omitempty"`
	DateReference  []DateReference  `json:"date_reference,omitempty"`
	Classification []Classification `json:"classification,omitempty"`
	Photometry     []Photometry     `json:"photometry,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// knownFields: ключи документа, разбираемые в поля Record.
var knownFields = []string{
	"_key", "_id", "_rev", "name", "coordinate", "distance",
	"date_reference", "classification", "photometry",
}

type recordAlias Record

// UnmarshalJSON разбирает документ, сохраняя неизвестные поля.
func (r *Record) UnmarshalJSON(data []byte) error {
	var a recordAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownFields {
		delete(all, k)
	}
	*r = Record(a)
	if len(all) > 0 {
		r.Extra = all
	}
	return nil
}

// MarshalJSON записывает документ вместе с неизвестными полями.
func (r Record) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(recordAlias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return data, nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, ok := out[k]; ok {
			return nil, fmt.Errorf("поле %q задано дважды", k)
		}
		out[k] = v
	}
	return json.Marshal(out)
}

// Names возвращает основное имя и все псевдонимы.
func (r *Record) Names() []string {
	out := []string{r.Name.DefaultName}
	for _, a := range r.Name.Alias {
		if a.Value != r.Name.DefaultName {
			out = append(out, a.Value)
		}
	}
	return out
}

// Collection: коллекция хранилища.
type Collection struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   int    `json:"type"`
	Status int    `json:"status"`
}
