// Пакет astro: разбор небесных координат и форматов времени,
// угловое расстояние между точками на небесной сфере.
package astro

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Единицы координат после нормализации.
const (
	UnitDegree    = "deg"
	UnitHourAngle = "hourangle"
)

var (
	// ErrBadCoordinate: значение координаты не разбирается.
	ErrBadCoordinate = errors.New("некорректная координата")
	// ErrOutOfRange: координата вне допустимого диапазона.
	ErrOutOfRange = errors.New("координата вне допустимого диапазона")
)

// Position: экваториальные координаты в градусах.
type Position struct {
	RA  float64
	Dec float64
}

// ParseRA разбирает прямое восхождение. unit: "deg" или "hourangle".
// Десятичное значение в часах умножается на 15; результат приводится к [0, 360).
func ParseRA(value, unit string) (float64, error) {
	v, err := parseAngle(value)
	if err != nil {
		return 0, err
	}
	if unit == UnitHourAngle {
		v *= 15
	}
	if v < 0 || v > 360 {
		return 0, fmt.Errorf("%w: ra=%s", ErrOutOfRange, value)
	}
	return math.Mod(v, 360), nil
}

// ParseDec разбирает склонение. Часовые единицы для склонения недопустимы.
func ParseDec(value, unit string) (float64, error) {
	if unit == UnitHourAngle {
		return 0, fmt.Errorf("%w: склонение не задаётся в часовой мере", ErrBadCoordinate)
	}
	v, err := parseAngle(value)
	if err != nil {
		return 0, err
	}
	if v < -90 || v > 90 {
		return 0, fmt.Errorf("%w: dec=%s", ErrOutOfRange, value)
	}
	return v, nil
}

// ParsePosition разбирает пару (ra, dec) с единицами, уже нормализованными
// к UnitDegree или UnitHourAngle.
func ParsePosition(ra, dec, raUnit, decUnit string) (Position, error) {
	r, err := ParseRA(ra, raUnit)
	if err != nil {
		return Position{}, err
	}
	d, err := ParseDec(dec, decUnit)
	if err != nil {
		return Position{}, err
	}
	return Position{RA: r, Dec: d}, nil
}

// parseAngle принимает десятичное число или шестидесятеричную запись:
// "12:30:45.5", "12 30 45.5", "12h30m45.5s", "-20d30m00s".
func parseAngle(value string) (float64, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, fmt.Errorf("%w: пустое значение", ErrBadCoordinate)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: %q", ErrBadCoordinate, value)
		}
		return f, nil
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case 'h', 'H', 'd', 'D', 'm', 'M', 's', 'S', ':', '°', '\'', '"', '′', '″':
			return ' '
		}
		return r
	}, s)
	parts := strings.Fields(s)
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadCoordinate, value)
	}

	var total float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || f < 0 {
			return 0, fmt.Errorf("%w: %q", ErrBadCoordinate, value)
		}
		if i > 0 && f >= 60 {
			return 0, fmt.Errorf("%w: %q (минуты и секунды < 60)", ErrBadCoordinate, value)
		}
		total += f / math.Pow(60, float64(i))
	}
	if neg {
		total = -total
	}
	return total, nil
}

// AngularSeparation возвращает угловое расстояние в градусах (формула гаверсинусов).
func AngularSeparation(a, b Position) float64 {
	ra1, dec1 := radians(a.RA), radians(a.Dec)
	ra2, dec2 := radians(b.RA), radians(b.Dec)

	sinDDec := math.Sin((dec2 - dec1) / 2)
	sinDRA := math.Sin((ra2 - ra1) / 2)
	h := sinDDec*sinDDec + math.Cos(dec1)*math.Cos(dec2)*sinDRA*sinDRA
	if h > 1 {
		h = 1
	}
	return degrees(2 * math.Asin(math.Sqrt(h)))
}

// WithinArcsec сообщает, лежат ли точки ближе radius угловых секунд.
func WithinArcsec(a, b Position, radius float64) bool {
	return AngularSeparation(a, b)*3600 <= radius
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
