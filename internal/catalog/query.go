package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/bigkaa/otter-vetting/internal/astro"
)

// DefaultBatchSize: размер пакета курсора по умолчанию.
const DefaultBatchSize = 100

// MaxQueryResults: предел документов, вычитываемых одним запросом через прокси.
const MaxQueryResults = 10000

// QueryRequest: запрос к курсорному API хранилища.
type QueryRequest struct {
	Query     string         `json:"query"`
	BindVars  map[string]any `json:"bindVars,omitempty"`
	BatchSize int            `json:"batchSize,omitempty"`
}

// QueryResult: результат запроса, вычитанный из курсора.
type QueryResult struct {
	Result []json.RawMessage `json:"result"`
	// Truncated: курсор закрыт досрочно из-за предела.
	Truncated bool `json:"truncated"`
}

type cursorResponse struct {
	Result  []json.RawMessage `json:"result"`
	HasMore bool              `json:"hasMore"`
	ID      string            `json:"id"`
}

// cursor выполняет запрос и вычитывает пакеты, пока не наберёт limit документов.
func (c *Client) cursor(ctx context.Context, req QueryRequest, limit int) (*QueryResult, error) {
	if req.BatchSize <= 0 {
		req.BatchSize = DefaultBatchSize
	}

	resp, err := c.do(ctx, http.MethodPost, c.dbPath("/_api/cursor"), req, nil)
	if err != nil {
		return nil, err
	}
	page, err := decodeCursor(resp)
	if err != nil {
		return nil, err
	}

	out := &QueryResult{Result: page.Result}
	for page.HasMore && len(out.Result) < limit {
		resp, err := c.do(ctx, http.MethodPut, c.dbPath("/_api/cursor/"+url.PathEscape(page.ID)), nil, nil)
		if err != nil {
			return nil, err
		}
		if page, err = decodeCursor(resp); err != nil {
			return nil, err
		}
		out.Result = append(out.Result, page.Result...)
	}

	if len(out.Result) > limit {
		out.Result = out.Result[:limit]
		out.Truncated = true
	}
	if page.HasMore {
		out.Truncated = true
		c.closeCursor(ctx, page.ID)
	}
	return out, nil
}

func decodeCursor(resp *http.Response) (*cursorResponse, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var page cursorResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("декодирование пакета курсора: %w", err)
	}
	return &page, nil
}

// closeCursor освобождает курсор на сервере; ошибка только логируется.
func (c *Client) closeCursor(ctx context.Context, id string) {
	if id == "" {
		return
	}
	resp, err := c.do(ctx, http.MethodDelete, c.dbPath("/_api/cursor/"+url.PathEscape(id)), nil, nil)
	if err != nil {
		c.logger.Warn("Не удалось закрыть курсор", "cursor_id", id, "error", err)
		return
	}
	resp.Body.Close()
}

// Query выполняет произвольный запрос только на чтение (прокси для UI).
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	if err := CheckReadOnly(req.Query); err != nil {
		return nil, err
	}
	return c.cursor(ctx, req, MaxQueryResults)
}

// queryRecords выполняет запрос и разбирает документы как записи.
func (c *Client) queryRecords(ctx context.Context, query string, bindVars map[string]any, limit int) ([]*Record, error) {
	res, err := c.cursor(ctx, QueryRequest{Query: query, BindVars: bindVars}, limit)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, 0, len(res.Result))
	for _, raw := range res.Result {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("декодирование записи из курсора: %w", err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

// --- Защита от изменяющих запросов ---

var (
	stringLiteral = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|` + "`[^`]*`")
	comment       = regexp.MustCompile(`(?s)/\*.*?\*/|//[^\n]*`)
	writeKeyword  = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|REPLACE|REMOVE|UPSERT)\b`)
)

// CheckReadOnly отклоняет запросы с операциями изменения данных.
// Ключевые слова внутри строковых литералов и комментариев не учитываются.
func CheckReadOnly(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: пустой запрос", ErrReadOnly)
	}
	stripped := comment.ReplaceAllString(stringLiteral.ReplaceAllString(query, `""`), " ")
	if m := writeKeyword.FindString(stripped); m != "" {
		return fmt.Errorf("%w: найдена операция %s", ErrReadOnly, strings.ToUpper(m))
	}
	return nil
}

// --- Поиск транзиентов ---

// SearchQuery: параметры поиска записей каталога.
type SearchQuery struct {
	// Имена: совпадение с основным именем или псевдонимом
	Names []string
	// Position и RadiusArcsec: конусный поиск, если Position задана
	Position     *astro.Position
	RadiusArcsec float64
	MinZ         *float64
	MaxZ         *float64
	HasPhot      bool
	Limit        int
}

// DefaultSearchLimit: число записей в ответе поиска по умолчанию.
const DefaultSearchLimit = 100

// coneFilter: фильтр по угловому расстоянию (гаверсинус) с предфильтром по склонению.
// Координата без ra_deg/dec_deg переводится в градусы из десятичных строк ra/dec;
// шестидесятеричные строки пропускаются дальше и проверяются в Record.Within.
const coneFilter = `FILTER LENGTH(
    FOR c IN (t.coordinate || [])
      LET ra_num = REGEX_TEST(TO_STRING(c.ra), @numeric) ? TO_NUMBER(c.ra) * (LOWER(TRIM(TO_STRING(c.ra_units))) IN @hour_units ? 15 : 1) : null
      LET dec_num = REGEX_TEST(TO_STRING(c.dec), @numeric) ? TO_NUMBER(c.dec) : null
      LET ra_d = c.ra_deg != null ? c.ra_deg : ra_num
      LET dec_d = c.dec_deg != null ? c.dec_deg : dec_num
      LET exact = ra_d != null AND dec_d != null
      FILTER exact OR (c.ra != null AND c.dec != null)
      FILTER !exact OR (dec_d >= @dec - @radius_deg AND dec_d <= @dec + @radius_deg)
      LET d = exact ? DEGREES(2 * ASIN(SQRT(MIN([1,
        POW(SIN(RADIANS(dec_d - @dec) / 2), 2) +
        COS(RADIANS(@dec)) * COS(RADIANS(dec_d)) * POW(SIN(RADIANS(ra_d - @ra) / 2), 2)
      ])))) * 3600 : 0
      FILTER d <= @radius
      RETURN 1
  ) > 0`

// numericPattern: десятичная запись угла, которую TO_NUMBER разбирает однозначно.
// Прочие записи (со знаком "+", шестидесятеричные) проверяются в Go.
const numericPattern = `^\s*-?[0-9]+(\.[0-9]*)?([eE][-+]?[0-9]+)?\s*$`

// hourAngleUnits: записи часовой меры, встречающиеся в канонических записях.
var hourAngleUnits = []string{"hourangle", "hour", "hours", "h"}

// BuildSearchQuery собирает запрос поиска и его параметры.
// Значения передаются только через bind-параметры.
func BuildSearchQuery(collection string, q SearchQuery) (string, map[string]any) {
	var b strings.Builder
	bind := map[string]any{"@coll": collection}

	b.WriteString("FOR t IN @@coll\n")
	if len(q.Names) > 0 {
		b.WriteString("  FILTER t.name.default_name IN @names OR LENGTH(INTERSECTION(t.name.alias[*].value, @names)) > 0\n")
		bind["names"] = q.Names
	}
	if q.Position != nil {
		b.WriteString("  " + coneFilter + "\n")
		bind["ra"] = q.Position.RA
		bind["dec"] = q.Position.Dec
		bind["radius"] = q.RadiusArcsec
		bind["radius_deg"] = q.RadiusArcsec / 3600
		bind["numeric"] = numericPattern
		bind["hour_units"] = hourAngleUnits
	}
	if q.MinZ != nil || q.MaxZ != nil {
		b.WriteString("  LET z = FIRST(t.distance[* FILTER CURRENT.distance_type == \"redshift\"].value)\n")
		b.WriteString("  FILTER z != null\n")
		if q.MinZ != nil {
			b.WriteString("  FILTER z >= @minz\n")
			bind["minz"] = *q.MinZ
		}
		if q.MaxZ != nil {
			b.WriteString("  FILTER z <= @maxz\n")
			bind["maxz"] = *q.MaxZ
		}
	}
	if q.HasPhot {
		b.WriteString("  FILTER LENGTH(t.photometry) > 0\n")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	b.WriteString("  SORT t.name.default_name\n")
	b.WriteString("  LIMIT @limit\n")
	b.WriteString("  RETURN t")
	bind["limit"] = limit

	return b.String(), bind
}

// Search ищет записи каталога.
func (c *Client) Search(ctx context.Context, q SearchQuery) ([]*Record, error) {
	query, bind := BuildSearchQuery(c.collection, q)
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	records, err := c.queryRecords(ctx, query, bind, limit)
	if err != nil {
		return nil, err
	}
	if q.Position != nil {
		records = filterWithin(records, *q.Position, q.RadiusArcsec)
	}
	return records, nil
}

// ConeSearch возвращает все записи, у которых хотя бы одна координата
// лежит в пределах radiusArcsec от позиции.
func (c *Client) ConeSearch(ctx context.Context, pos astro.Position, radiusArcsec float64) ([]*Record, error) {
	query, bind := BuildSearchQuery(c.collection, SearchQuery{
		Position:     &pos,
		RadiusArcsec: radiusArcsec,
		Limit:        MaxQueryResults,
	})
	records, err := c.queryRecords(ctx, query, bind, MaxQueryResults)
	if err != nil {
		return nil, fmt.Errorf("конусный поиск: %w", err)
	}
	return filterWithin(records, pos, radiusArcsec), nil
}

// filterWithin повторно проверяет расстояние и убирает дубликаты по _key.
func filterWithin(records []*Record, pos astro.Position, radiusArcsec float64) []*Record {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, rec := range records {
		if rec.Key != "" && seen[rec.Key] {
			continue
		}
		if !rec.Within(pos, radiusArcsec) {
			continue
		}
		seen[rec.Key] = true
		out = append(out, rec)
	}
	return out
}

// Within сообщает, лежит ли какая-либо координата записи в пределах радиуса.
func (r *Record) Within(pos astro.Position, radiusArcsec float64) bool {
	for _, c := range r.Coordinate {
		p, ok := c.Position()
		if ok && astro.WithinArcsec(p, pos, radiusArcsec) {
			return true
		}
	}
	return false
}

// Position возвращает координату в градусах: из ra_deg/dec_deg,
// а при их отсутствии из исходных строк.
func (c Coordinate) Position() (astro.Position, bool) {
	if c.RADeg != nil && c.DecDeg != nil {
		return astro.Position{RA: *c.RADeg, Dec: *c.DecDeg}, true
	}
	p, err := astro.ParsePosition(c.RA, c.Dec, storedUnit(c.RAUnits), storedUnit(c.DecUnits))
	if err != nil {
		return astro.Position{}, false
	}
	return p, true
}

// storedUnit приводит единицу сохранённой координаты к astro.UnitDegree или astro.UnitHourAngle.
func storedUnit(unit string) string {
	if slices.Contains(hourAngleUnits, strings.ToLower(strings.TrimSpace(unit))) {
		return astro.UnitHourAngle
	}
	return astro.UnitDegree
}
