package catalog

import (
	"encoding/json"
	"slices"
	"strings"
)

// bibcodeLength: длина библиографического кода ADS (например, 2019ApJ...872..151S).
const bibcodeLength = 19

// CitationSet: источники данных одной записи каталога.
type CitationSet struct {
	Key        string   `json:"key"`
	Name       string   `json:"name"`
	References []string `json:"references"`
	// Bibcodes: подмножество References в формате ADS
	Bibcodes []string `json:"bibcodes"`
}

// IsBibcode сообщает, похожа ли ссылка на код ADS.
func IsBibcode(ref string) bool {
	return len(strings.TrimSpace(ref)) == bibcodeLength
}

// References возвращает отсортированные уникальные источники всех свойств записи:
// псевдонимов, координат, дат, расстояний, классификаций, фотометрии и хоста.
func (r *Record) References() []string {
	var refs []string
	for _, a := range r.Name.Alias {
		refs = append(refs, a.Reference...)
	}
	for _, c := range r.Coordinate {
		refs = append(refs, c.Reference...)
	}
	for _, d := range r.DateReference {
		refs = append(refs, d.Reference...)
	}
	for _, d := range r.Distance {
		refs = append(refs, d.Reference...)
	}
	for _, c := range r.Classification {
		refs = append(refs, c.Reference...)
	}
	for _, p := range r.Photometry {
		refs = append(refs, p.Reference)
	}
	refs = append(refs, extraReferences(r.Extra["host"])...)
	return uniqueRefs(refs)
}

// Citations собирает источники по каждой записи и общий список кодов ADS.
func Citations(records []*Record) ([]CitationSet, []string) {
	sets := make([]CitationSet, 0, len(records))
	var all []string
	for _, rec := range records {
		refs := rec.References()
		set := CitationSet{
			Key:        rec.Key,
			Name:       rec.Name.DefaultName,
			References: refs,
			Bibcodes:   []string{},
		}
		for _, ref := range refs {
			if IsBibcode(ref) {
				set.Bibcodes = append(set.Bibcodes, ref)
			}
		}
		all = append(all, set.Bibcodes...)
		sets = append(sets, set)
	}
	return sets, uniqueRefs(all)
}

// extraReferences читает поле reference из массива объектов, не описанного в Record.
// reference может быть строкой или списком строк.
func extraReferences(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []struct {
		Reference json.RawMessage `json:"reference"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var out []string
	for _, it := range items {
		var list []string
		if err := json.Unmarshal(it.Reference, &list); err == nil {
			out = append(out, list...)
			continue
		}
		var one string
		if err := json.Unmarshal(it.Reference, &one); err == nil {
			out = append(out, one)
		}
	}
	return out
}

func uniqueRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			out = append(out, ref)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
