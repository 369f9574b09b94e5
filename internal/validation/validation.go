package validation

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"registry-backend/internal/apperror"
)

var (
	validate = newValidator()
	strict   = bluemonday.StrictPolicy()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names, which is what clients send.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("nomarkup", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return CleanText(s) == strings.TrimSpace(s)
	})
	// bcrypt only looks at the first 72 bytes, so length limits on secrets
	// count bytes rather than characters.
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
	return v
}

// Struct runs the `validate` tags of in and converts failures into an
// apperror validation error keyed by JSON field name.
func Struct(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	v := apperror.NewValidation()
	for _, fe := range fieldErrs {
		v.Add(fe.Field(), message(fe))
	}
	return v.Err()
}

func message(fe validator.FieldError) string {
	field := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", field, fe.Param())
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters.", field, fe.Param())
	case "gt":
		return fmt.Sprintf("The %s field must be greater than %s.", field, fe.Param())
	case "maxbytes":
		return fmt.Sprintf("The %s field must not be greater than %s bytes.", field, fe.Param())
	case "nomarkup":
		return fmt.Sprintf("The %s field must not contain markup.", field)
	case "nefield":
		return fmt.Sprintf("The %s field must be different from %s.", field, strings.ReplaceAll(fe.Param(), "_", " "))
	default:
		return fmt.Sprintf("The %s field is invalid.", field)
	}
}

// CleanText trims s and strips any markup from it. Names are not rewritten
// with it; the nomarkup tag rejects any value it would change.
func CleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// IsTaken reports whether another row of model already holds value in
// column. The row with id exceptID (0 for none) is ignored so that a record
// can keep its own value on update.
func IsTaken(db *gorm.DB, model any, column string, value any, exceptID uint) (bool, error) {
	q := db.Model(model).Where(clause.Eq{Column: clause.Column{Name: column}, Value: value})
	if exceptID != 0 {
		q = q.Where(clause.Neq{Column: clause.PrimaryColumn, Value: exceptID})
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Exists reports whether model has a row with the given primary key.
func Exists(db *gorm.DB, model any, id uint) (bool, error) {
	if id == 0 {
		return false, nil
	}
	var n int64
	if err := db.Model(model).Where(clause.Eq{Column: clause.PrimaryColumn, Value: id}).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Expansions is the set of relations a caller asked to inline.
type Expansions map[string]bool

func (e Expansions) Has(name string) bool {
	return e[name]
}

// ParseExpand splits a comma separated relation list and rejects anything
// not in allowed.
func ParseExpand(raw string, allowed ...string) (Expansions, error) {
	out := Expansions{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	permitted := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		permitted[a] = true
	}
	var unknown []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if !permitted[name] {
			unknown = append(unknown, name)
			continue
		}
		out[name] = true
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		msg := fmt.Sprintf("Unknown relation(s) %s.", strings.Join(unknown, ", "))
		if len(allowed) > 0 {
			msg += " Allowed: " + strings.Join(allowed, ", ") + "."
		} else {
			msg += " This resource has no expandable relations."
		}
		return nil, apperror.FieldError("expand", msg)
	}
	return out, nil
}
