package catalog

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"testing"

	"github.com/bigkaa/otter-vetting/internal/astro"
)

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{"чтение", "FOR t IN transients FILTER t.name.default_name == @n RETURN t", false},
		{"ключевое слово в строке", `FOR t IN transients FILTER t.note == "remove me" RETURN t`, false},
		{"ключевое слово в комментарии", "// UPDATE later\nFOR t IN transients RETURN t", false},
		{"часть идентификатора", "FOR t IN transients RETURN t.inserted_at", false},
		{"INSERT", "INSERT {a: 1} INTO transients", true},
		{"update в нижнем регистре", "FOR t IN transients update t WITH {a: 1} IN transients", true},
		{"REPLACE", "FOR t IN transients REPLACE t IN transients", true},
		{"UPSERT", "UPSERT {a: 1} INSERT {a: 1} UPDATE {} IN transients", true},
		{"пустой", "   ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckReadOnly(tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckReadOnly() ошибка = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrReadOnly) {
				t.Errorf("ошибка %v не является ErrReadOnly", err)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	minz, maxz := 0.01, 0.1

	tests := []struct {
		name     string
		q        SearchQuery
		wantAQL  []string
		wantBind []string
		noAQL    []string
	}{
		{
			name:     "только имена",
			q:        SearchQuery{Names: []string{"SN2011fe", "PTF11kly"}},
			wantAQL:  []string{"FOR t IN @@coll", "t.name.default_name IN @names", "LIMIT @limit"},
			wantBind: []string{"@coll", "names", "limit"},
			noAQL:    []string{"@ra", "@minz"},
		},
		{
			name:     "конус",
			q:        SearchQuery{Position: &astro.Position{RA: 10, Dec: 20}, RadiusArcsec: 5},
			wantAQL:  []string{"ASIN(SQRT(", "FILTER d <= @radius", "@dec - @radius_deg"},
			wantBind: []string{"ra", "dec", "radius", "radius_deg", "numeric", "hour_units"},
		},
		{
			name:     "красное смещение и фотометрия",
			q:        SearchQuery{MinZ: &minz, MaxZ: &maxz, HasPhot: true, Limit: 10},
			wantAQL:  []string{"distance_type == \"redshift\"", "z >= @minz", "z <= @maxz", "LENGTH(t.photometry) > 0"},
			wantBind: []string{"minz", "maxz"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aql, bind := BuildSearchQuery("transients", tt.q)
			for _, want := range tt.wantAQL {
				if !strings.Contains(aql, want) {
					t.Errorf("запрос не содержит %q:\n%s", want, aql)
				}
			}
			for _, no := range tt.noAQL {
				if strings.Contains(aql, no) {
					t.Errorf("запрос не должен содержать %q", no)
				}
			}
			for _, k := range tt.wantBind {
				if _, ok := bind[k]; !ok {
					t.Errorf("нет bind-параметра %q", k)
				}
			}
			if err := CheckReadOnly(aql); err != nil {
				t.Errorf("запрос поиска отклонён защитой: %v", err)
			}
		})
	}

	_, bind := BuildSearchQuery("transients", SearchQuery{Position: &astro.Position{RA: 1, Dec: 2}, RadiusArcsec: 36})
	if bind["radius_deg"] != 0.01 {
		t.Errorf("radius_deg = %v, ожидается 0.01", bind["radius_deg"])
	}
	if bind["limit"] != DefaultSearchLimit {
		t.Errorf("limit = %v", bind["limit"])
	}
}

// TestBuildSearchQuery_StringCoordinates проверяет, что конусный фильтр
// учитывает координаты, сохранённые только строками ra/dec с единицами.
func TestBuildSearchQuery_StringCoordinates(t *testing.T) {
	aql, bind := BuildSearchQuery("transients", SearchQuery{Position: &astro.Position{RA: 10, Dec: 20}, RadiusArcsec: 5})

	for _, want := range []string{
		"c.ra_deg != null ? c.ra_deg : ra_num",
		"c.dec_deg != null ? c.dec_deg : dec_num",
		"REGEX_TEST(TO_STRING(c.ra), @numeric)",
		"IN @hour_units ? 15 : 1",
		"FILTER exact OR (c.ra != null AND c.dec != null)",
	} {
		if !strings.Contains(aql, want) {
			t.Errorf("запрос не содержит %q:\n%s", want, aql)
		}
	}
	if strings.Contains(aql, "CURRENT.ra_deg != null AND CURRENT.dec_deg != null") {
		t.Error("фильтр отбрасывает координаты без ra_deg/dec_deg")
	}

	re := regexp.MustCompile(bind["numeric"].(string))
	tests := []struct {
		value string
		want  bool
	}{
		{"10.0", true},
		{" -20 ", true},
		{"+20.5", false},
		{"1.5e1", true},
		{"00:40:00", false},
		{"12h30m45s", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := re.MatchString(tt.value); got != tt.want {
			t.Errorf("numeric(%q) = %v, ожидается %v", tt.value, got, tt.want)
		}
	}
}

func TestCoordinatePosition(t *testing.T) {
	c := Coordinate{RA: "00:40:00", Dec: "+20:00:00", RAUnits: "hourangle", DecUnits: "deg"}
	p, ok := c.Position()
	if !ok || math.Abs(p.RA-10) > 1e-9 || math.Abs(p.Dec-20) > 1e-9 {
		t.Errorf("Position() = %+v, %v", p, ok)
	}
	c = Coordinate{RA: "0.6666666667", Dec: "20.0", RAUnits: "h", DecUnits: "deg"}
	if p, ok := c.Position(); !ok || math.Abs(p.RA-10) > 1e-6 {
		t.Errorf("Position() с единицей h = %+v, %v", p, ok)
	}
	c = Coordinate{RA: "10.0", Dec: "20.0", RAUnits: "deg", DecUnits: "deg"}
	if p, ok := c.Position(); !ok || p.RA != 10 || p.Dec != 20 {
		t.Errorf("Position() строковых градусов = %+v, %v", p, ok)
	}
	if _, ok := (Coordinate{RA: "x", Dec: "y"}).Position(); ok {
		t.Error("некорректная координата разобрана")
	}
}
