// Пакет session: накопление полей формы загрузки и сборка заявки.
// Сессия создаётся пустой, заполняется типизированными сеттерами,
// проверяется Verify и один раз превращается в заявку через Build.
package session

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/otter-vetting/internal/domain/model"
	"github.com/bigkaa/otter-vetting/internal/fieldcatalog"
	"github.com/bigkaa/otter-vetting/internal/validator"
)

// Имена полей загрузившего.
const (
	FieldUploaderName  = "uploader_name"
	FieldUploaderEmail = "uploader_email"
)

// MaxUploaderFieldLength: предел длины имени и адреса загрузившего в символах
// (столбцы uploader_name и uploader_email очереди).
const MaxUploaderFieldLength = 255

// ErrConsumed: сессия уже превращена в заявку.
var ErrConsumed = errors.New("сессия загрузки уже использована")

// GroupInput: значения одной необязательной группы полей.
type GroupInput struct {
	Value   string
	Unit    string
	Format  string
	Flag    string
	Bibcode string
}

// Session: заявка в процессе заполнения.
type Session struct {
	v      *validator.Validator
	bypass []string
	kind   model.SubmissionKind

	uploaderName  string
	uploaderEmail string

	objectName   string
	ra           string
	dec          string
	raUnit       string
	decUnit      string
	coordBibcode string
	groups       map[string]GroupInput

	metadata   *model.Table
	photometry *model.Table

	consumed bool
}

// New создаёт пустую сессию.
// emailBypass: суффиксы адресов, для которых проверка синтаксиса не выполняется.
func New(kind model.SubmissionKind, v *validator.Validator, emailBypass []string) *Session {
	return &Session{
		v:      v,
		bypass: emailBypass,
		kind:   kind,
		groups: make(map[string]GroupInput),
	}
}

// Kind возвращает тип сессии.
func (s *Session) Kind() model.SubmissionKind { return s.kind }

// SetUploader задаёт имя и адрес загрузившего.
func (s *Session) SetUploader(name, email string) {
	s.uploaderName = strings.TrimSpace(name)
	s.uploaderEmail = strings.TrimSpace(email)
}

// SetObjectName задаёт имя объекта.
func (s *Session) SetObjectName(name string) {
	s.objectName = strings.TrimSpace(name)
}

// SetPosition задаёт координаты и их единицы.
func (s *Session) SetPosition(ra, dec, raUnit, decUnit string) {
	s.ra = strings.TrimSpace(ra)
	s.dec = strings.TrimSpace(dec)
	s.raUnit = strings.TrimSpace(raUnit)
	s.decUnit = strings.TrimSpace(decUnit)
}

// SetCoordBibcode задаёт источник координат.
func (s *Session) SetCoordBibcode(bibcode string) {
	s.coordBibcode = strings.TrimSpace(bibcode)
}

// SetRedshift задаёт красное смещение.
func (s *Session) SetRedshift(value, bibcode string) {
	s.setGroup("redshift", GroupInput{Value: value, Bibcode: bibcode})
}

// SetLuminosityDistance задаёт фотометрическое расстояние.
func (s *Session) SetLuminosityDistance(value, unit, bibcode string) {
	s.setGroup("luminosity_distance", GroupInput{Value: value, Unit: unit, Bibcode: bibcode})
}

// SetComovingDistance задаёт сопутствующее расстояние.
func (s *Session) SetComovingDistance(value, unit, bibcode string) {
	s.setGroup("comoving_distance", GroupInput{Value: value, Unit: unit, Bibcode: bibcode})
}

// SetDiscoveryDate задаёт дату открытия и её формат.
func (s *Session) SetDiscoveryDate(value, format, bibcode string) {
	s.setGroup("discovery_date", GroupInput{Value: value, Format: format, Bibcode: bibcode})
}

// SetClassification задаёт предлагаемую классификацию. flag: уверенность, необязателен.
func (s *Session) SetClassification(value, flag, bibcode string) {
	s.setGroup("classification", GroupInput{Value: value, Flag: flag, Bibcode: bibcode})
}

func (s *Session) setGroup(name string, in GroupInput) {
	s.groups[name] = GroupInput{
		Value:   strings.TrimSpace(in.Value),
		Unit:    strings.TrimSpace(in.Unit),
		Format:  strings.TrimSpace(in.Format),
		Flag:    strings.TrimSpace(in.Flag),
		Bibcode: strings.TrimSpace(in.Bibcode),
	}
}

// AttachPhotometry разбирает и проверяет CSV фотометрии.
// При ошибке ранее прикреплённая таблица сбрасывается: повторная загрузка начинается с чистого состояния.
func (s *Session) AttachPhotometry(text string) error {
	s.photometry = nil
	t, err := s.v.PhotometryCSV(text)
	if err != nil {
		return err
	}
	s.photometry = t
	return nil
}

// AttachMetadata разбирает и проверяет CSV метаданных (загрузка нескольких объектов).
func (s *Session) AttachMetadata(text string) error {
	s.metadata = nil
	t, err := s.v.MetadataCSV(text)
	if err != nil {
		return err
	}
	s.metadata = t
	return nil
}

// Verify проверяет все поля и возвращает nil или *validator.ValidationError
// со всеми найденными проблемами.
func (s *Session) Verify() error {
	ve := &validator.ValidationError{}

	switch {
	case s.uploaderName == "":
		ve.Add(FieldUploaderName, 0, "обязательное поле")
	case utf8.RuneCountInString(s.uploaderName) > MaxUploaderFieldLength:
		ve.Add(FieldUploaderName, 0, "длина больше %d символов", MaxUploaderFieldLength)
	}
	s.verifyEmail(ve)

	var meta *model.Table
	switch s.kind {
	case model.KindMultiple:
		if s.metadata == nil {
			ve.Add(validator.TableMetadata, 0, "требуется таблица метаданных")
		}
		meta = s.metadata
	default:
		if s.verifyObject(ve) {
			meta = s.singleMetadata()
		}
	}

	if meta != nil && s.photometry != nil {
		ve.Merge(validator.TablePhotometry, validator.CrossCheck(meta, s.photometry))
	}
	return ve.Err()
}

// verifyObject проверяет поля одного объекта; true, если из них можно собрать метаданные.
func (s *Session) verifyObject(ve *validator.ValidationError) bool {
	before := len(ve.Problems)
	required := []struct{ field, value string }{
		{"name", s.objectName},
		{"ra", s.ra},
		{"dec", s.dec},
		{"ra_unit", s.raUnit},
		{"dec_unit", s.decUnit},
		{"coord_bibcode", s.coordBibcode},
	}
	positionSet := true
	for _, f := range required {
		if f.value == "" {
			ve.Add(f.field, 0, "обязательное поле")
			if f.field != "name" && f.field != "coord_bibcode" {
				positionSet = false
			}
		}
	}
	if positionSet {
		ve.Merge("ra", s.v.CheckPosition(s.ra, s.dec, s.raUnit, s.decUnit))
	}

	for _, g := range s.v.Catalog().Metadata.Groups {
		in, ok := s.groups[g.Name]
		if !ok {
			continue
		}
		cols := groupValues(g, in)
		ve.Merge(g.Value, s.v.CheckGroup(g, func(col string) (string, bool) {
			v := cols[col]
			return v, !model.IsMissing(v)
		}))
	}
	return len(ve.Problems) == before
}

func (s *Session) verifyEmail(ve *validator.ValidationError) {
	email := s.uploaderEmail
	if email == "" {
		ve.Add(FieldUploaderEmail, 0, "обязательное поле")
		return
	}
	if utf8.RuneCountInString(email) > MaxUploaderFieldLength {
		ve.Add(FieldUploaderEmail, 0, "длина больше %d символов", MaxUploaderFieldLength)
		return
	}
	lower := strings.ToLower(email)
	for _, suffix := range s.bypass {
		if suffix != "" && strings.HasSuffix(lower, strings.ToLower(suffix)) {
			return
		}
	}
	if !ValidEmail(email) {
		ve.Add(FieldUploaderEmail, 0, "некорректный адрес электронной почты %q", email)
	}
}

// ValidEmail проверяет синтаксис адреса: без отображаемого имени, домен с точкой.
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// Build проверяет сессию и собирает заявку. Идентификатор назначается при постановке в очередь.
// После успешного вызова сессия считается использованной.
func (s *Session) Build() (*model.Submission, error) {
	if s.consumed {
		return nil, ErrConsumed
	}
	if err := s.Verify(); err != nil {
		return nil, err
	}

	var meta *model.Table
	if s.kind == model.KindMultiple {
		meta = s.metadata.Clone()
	} else {
		meta = s.singleMetadata()
	}
	comment := model.UploaderComment(s.uploaderName, s.uploaderEmail)
	meta.SetColumn(model.CommentColumn, comment)

	kind := s.kind
	if kind == "" {
		kind = model.KindSingle
	}
	s.consumed = true
	return &model.Submission{
		Kind:          kind,
		UploaderName:  s.uploaderName,
		UploaderEmail: s.uploaderEmail,
		Comment:       comment,
		Status:        model.StatusPending,
		Metadata:      meta,
		Photometry:    s.photometry.Clone(),
	}, nil
}

// singleMetadata собирает таблицу из одной строки: обязательные поля
// и только заполненные группы, в порядке каталога.
func (s *Session) singleMetadata() *model.Table {
	cols := []string{"name", "ra", "dec", "ra_unit", "dec_unit", "coord_bibcode"}
	row := []string{s.objectName, s.ra, s.dec, s.raUnit, s.decUnit, s.coordBibcode}

	for _, g := range s.v.Catalog().Metadata.Groups {
		in, ok := s.groups[g.Name]
		if !ok || model.IsMissing(in.Value) {
			continue
		}
		values := groupValues(g, in)
		for _, col := range g.Columns() {
			cols = append(cols, col)
			row = append(row, values[col])
		}
		if g.Flag != "" && !model.IsMissing(in.Flag) {
			cols = append(cols, g.Flag)
			row = append(row, in.Flag)
		}
	}
	return &model.Table{Columns: cols, Rows: [][]string{row}}
}

// groupValues раскладывает ввод группы по именам столбцов каталога.
func groupValues(g fieldcatalog.Group, in GroupInput) map[string]string {
	m := map[string]string{
		g.Value:   in.Value,
		g.Bibcode: in.Bibcode,
	}
	if g.Unit != "" {
		m[g.Unit] = in.Unit
	}
	if g.Format != "" {
		m[g.Format] = in.Format
	}
	if g.Flag != "" {
		m[g.Flag] = in.Flag
	}
	return m
}
