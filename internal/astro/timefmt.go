package astro

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrBadDate: дата не разбирается в заявленном формате.
var ErrBadDate = errors.New("некорректная дата")

const (
	// Юлианская дата начала эпохи Unix.
	unixEpochJD = 2440587.5
	// Разница между JD и MJD.
	mjdOffset = 2400000.5
	secondsPerDay = 86400.0
)

var isoLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var isotLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDate разбирает дату в одном из форматов: iso, isot, mjd, jd, unix, decimalyear.
// Название формата не чувствительно к регистру. Результат всегда в UTC.
func ParseDate(value, format string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: пустое значение", ErrBadDate)
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "iso":
		return parseLayouts(v, isoLayouts)
	case "isot":
		return parseLayouts(v, isotLayouts)
	case "mjd":
		f, err := parseFinite(v)
		if err != nil {
			return time.Time{}, err
		}
		return fromJD(f + mjdOffset), nil
	case "jd":
		f, err := parseFinite(v)
		if err != nil {
			return time.Time{}, err
		}
		return fromJD(f), nil
	case "unix":
		f, err := parseFinite(v)
		if err != nil {
			return time.Time{}, err
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	case "decimalyear":
		f, err := parseFinite(v)
		if err != nil {
			return time.Time{}, err
		}
		return fromDecimalYear(f)
	default:
		return time.Time{}, fmt.Errorf("%w: неизвестный формат %q", ErrBadDate, format)
	}
}

// MJD возвращает модифицированную юлианскую дату момента t.
func MJD(t time.Time) float64 {
	return float64(t.UnixNano())/1e9/secondsPerDay + unixEpochJD - mjdOffset
}

func parseLayouts(v string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, v)
}

func parseFinite(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q не число", ErrBadDate, v)
	}
	return f, nil
}

func fromJD(jd float64) time.Time {
	days := jd - unixEpochJD
	ns := days * secondsPerDay * 1e9
	sec := math.Floor(ns / 1e9)
	return time.Unix(int64(sec), int64(ns-sec*1e9)).UTC()
}

func fromDecimalYear(y float64) (time.Time, error) {
	if y < 1 || y > 9999 {
		return time.Time{}, fmt.Errorf("%w: год %g вне диапазона", ErrBadDate, y)
	}
	year := int(math.Floor(y))
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC)
	offset := time.Duration((y - float64(year)) * float64(end.Sub(start)))
	return start.Add(offset), nil
}
