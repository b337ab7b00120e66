package chronoshift

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

// Request is one conversion: a wall-clock date and time in Source, shown in
// every zone of Targets.
type Request struct {
	Source  string   `json:"source" validate:"required"`
	Targets []string `json:"targets" validate:"min=1,dive,required"`
	Date    string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time    string   `json:"time" validate:"required,clock"`
}

// Normalize trims identifiers, drops empty targets and collapses duplicates
// while keeping the first occurrence of each.
func (r Request) Normalize() Request {
	out := Request{
		Source: strings.TrimSpace(r.Source),
		Date:   strings.TrimSpace(r.Date),
		Time:   strings.TrimSpace(r.Time),
	}
	seen := make(map[string]bool, len(r.Targets))
	for _, t := range r.Targets {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out.Targets = append(out.Targets, t)
	}
	return out
}

// Zones lists the source followed by every target that differs from it.
func (r Request) Zones() []string {
	zones := []string{r.Source}
	for _, t := range r.Targets {
		if t != r.Source {
			zones = append(zones, t)
		}
	}
	return zones
}

// Swap exchanges the source with the first non-empty target.
// A request without such a target is returned unchanged.
func (r Request) Swap() Request {
	for i, t := range r.Targets {
		if strings.TrimSpace(t) == "" {
			continue
		}
		out := r
		out.Targets = append([]string(nil), r.Targets...)
		out.Source, out.Targets[i] = t, r.Source
		return out
	}
	return r
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned before any network call for a malformed request.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Message)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

var clockRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
	translator   ut.Translator
)

func requestValidator() (*validator.Validate, ut.Translator) {
	validateOnce.Do(func() {
		enLoc := en.New()
		trans, _ := ut.New(enLoc, enLoc).GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		_ = entranslations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			return clockRegex.MatchString(fl.Field().String())
		})
		_ = v.RegisterTranslation("clock", trans,
			func(u ut.Translator) error {
				return u.Add("clock", "{0} must be a time of day as HH:MM or HH:MM:SS", true)
			},
			func(u ut.Translator, fe validator.FieldError) string {
				msg, _ := u.T("clock", fe.Field())
				return msg
			},
		)
		_ = v.RegisterTranslation("datetime", trans,
			func(u ut.Translator) error {
				return u.Add("datetime", "{0} must be a date as YYYY-MM-DD", true)
			},
			func(u ut.Translator, fe validator.FieldError) string {
				msg, _ := u.T("datetime", fe.Field())
				return msg
			},
		)
		_ = v.RegisterTranslation("min", trans,
			func(u ut.Translator) error {
				return u.Add("min", "{0} must list at least {1} zone", true)
			},
			func(u ut.Translator, fe validator.FieldError) string {
				msg, _ := u.T("min", fe.Field(), fe.Param())
				return msg
			},
		)

		validate, translator = v, trans
	})
	return validate, translator
}

// Validate checks a normalized request.
func (r Request) Validate() error {
	v, trans := requestValidator()
	err := v.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Message: err.Error()}}}
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: fe.Translate(trans)})
	}
	return out
}
