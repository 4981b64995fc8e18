package catalog

import (
	"slices"
)

// Merge объединяет входящую запись с существующей. Результат сохраняет
// _key, _rev и неизвестные поля существующей записи; одинаковые значения
// не дублируются, их источники объединяются. Аргументы не изменяются.
func Merge(existing, incoming *Record) *Record {
	out := &Record{
		Key:   existing.Key,
		ID:    existing.ID,
		Rev:   existing.Rev,
		Name:  Name{DefaultName: existing.Name.DefaultName},
		Extra: existing.Extra,
	}
	if out.Name.DefaultName == "" {
		out.Name.DefaultName = incoming.Name.DefaultName
	}

	out.Name.Alias = mergeAliases(existing.Name.Alias, incoming.Name.Alias)
	if in := incoming.Name.DefaultName; in != "" && !slices.ContainsFunc(out.Name.Alias, func(a Alias) bool { return a.Value == in }) {
		out.Name.Alias = append(out.Name.Alias, Alias{Value: in})
	}

	out.Coordinate = unionBy(existing.Coordinate, incoming.Coordinate,
		func(a, b Coordinate) bool {
			return a.RA == b.RA && a.Dec == b.Dec && a.RAUnits == b.RAUnits &&
				a.DecUnits == b.DecUnits && a.CoordinateType == b.CoordinateType
		},
		func(dst *Coordinate, src Coordinate) { dst.Reference = unionRefs(dst.Reference, src.Reference) },
	)
	out.Distance = unionBy(existing.Distance, incoming.Distance,
		func(a, b Distance) bool {
			return a.DistanceType == b.DistanceType && a.Value == b.Value && a.Unit == b.Unit
		},
		func(dst *Distance, src Distance) { dst.Reference = unionRefs(dst.Reference, src.Reference) },
	)
	out.DateReference = unionBy(existing.DateReference, incoming.DateReference,
		func(a, b DateReference) bool {
			return a.DateType == b.DateType && a.Value == b.Value && a.DateFormat == b.DateFormat
		},
		func(dst *DateReference, src DateReference) { dst.Reference = unionRefs(dst.Reference, src.Reference) },
	)
	out.Classification = unionBy(existing.Classification, incoming.Classification,
		func(a, b Classification) bool { return a.ObjectClass == b.ObjectClass },
		func(dst *Classification, src Classification) {
			dst.Reference = unionRefs(dst.Reference, src.Reference)
			dst.Confidence = max(dst.Confidence, src.Confidence)
		},
	)
	out.Photometry = unionBy(existing.Photometry, incoming.Photometry, samePhotometry, nil)
	return out
}

func mergeAliases(a, b []Alias) []Alias {
	return unionBy(a, b,
		func(x, y Alias) bool { return x.Value == y.Value },
		func(dst *Alias, src Alias) { dst.Reference = unionRefs(dst.Reference, src.Reference) },
	)
}

// unionBy возвращает элементы a, затем новые элементы b. Для совпавших
// элементов вызывается join (если задан).
func unionBy[T any](a, b []T, equal func(x, y T) bool, join func(dst *T, src T)) []T {
	out := make([]T, 0, len(a)+len(b))
	for _, v := range a {
		out = append(out, cloneRefs(v))
	}
	for _, v := range b {
		i := slices.IndexFunc(out, func(x T) bool { return equal(x, v) })
		if i < 0 {
			out = append(out, cloneRefs(v))
			continue
		}
		if join != nil {
			join(&out[i], v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// cloneRefs копирует срез источников, чтобы результат слияния не разделял память с аргументами.
func cloneRefs[T any](v T) T {
	switch x := any(&v).(type) {
	case *Alias:
		x.Reference = slices.Clone(x.Reference)
	case *Coordinate:
		x.Reference = slices.Clone(x.Reference)
	case *Distance:
		x.Reference = slices.Clone(x.Reference)
	case *DateReference:
		x.Reference = slices.Clone(x.Reference)
	case *Classification:
		x.Reference = slices.Clone(x.Reference)
	}
	return v
}

func unionRefs(a, b []string) []string {
	out := slices.Clone(a)
	for _, r := range b {
		if r != "" && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

func samePhotometry(a, b Photometry) bool {
	return a.Reference == b.Reference && a.Raw == b.Raw && eqPtr(a.RawErr, b.RawErr) &&
		a.RawUnits == b.RawUnits && a.Date == b.Date && a.DateFormat == b.DateFormat &&
		a.FilterKey == b.FilterKey && a.FilterEff == b.FilterEff &&
		a.FilterEffUnits == b.FilterEffUnits && a.Telescope == b.Telescope &&
		a.Instrument == b.Instrument && eqPtr(a.FilterMin, b.FilterMin) &&
		eqPtr(a.FilterMax, b.FilterMax) && a.UpperLimit == b.UpperLimit &&
		a.ObsType == b.ObsType && eqPtr(a.CorrK, b.CorrK) && eqPtr(a.CorrAV, b.CorrAV) &&
		eqPtr(a.CorrHost, b.CorrHost) && eqPtr(a.CorrHostAV, b.CorrHostAV) &&
		eqPtr(a.ValK, b.ValK) && eqPtr(a.ValS, b.ValS) && eqPtr(a.ValAV, b.ValAV) &&
		eqPtr(a.ValHost, b.ValHost) && eqPtr(a.ValHostAV, b.ValHostAV) &&
		eqPtr(a.DateErr, b.DateErr) && eqPtr(a.Sigma, b.Sigma) && eqPtr(a.Computed, b.Computed)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
