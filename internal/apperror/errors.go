package apperror

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindInvalidCredential
	KindUnauthorized
	KindForbidden
	KindConflict
)

// Error is the error type every service returns to the HTTP layer.
// Fields is only populated for KindValidation.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string][]string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

// Is matches on Kind so callers can write errors.Is(err, apperror.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation        = &Error{Kind: KindValidation, Message: "the given data was invalid"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential, Message: "invalid credentials"}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "unauthenticated"}
	ErrForbidden         = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "conflict"}
)

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidCredential(msg string) *Error {
	return &Error{Kind: KindInvalidCredential, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Validation accumulates field level messages. A nil-safe zero value is not
// provided; use NewValidation.
type Validation struct {
	fields map[string][]string
}

func NewValidation() *Validation {
	return &Validation{fields: map[string][]string{}}
}

func (v *Validation) Add(field, msg string) {
	v.fields[field] = append(v.fields[field], msg)
}

func (v *Validation) Has(field string) bool {
	return len(v.fields[field]) > 0
}

// Err returns nil when no field failed.
func (v *Validation) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &Error{Kind: KindValidation, Message: ErrValidation.Message, Fields: v.fields}
}

// FieldError builds a single-field validation error.
func FieldError(field, msg string) *Error {
	v := NewValidation()
	v.Add(field, msg)
	return v.Err().(*Error)
}

// FromStore translates constraint violations raised by the database into
// Conflict errors. Other errors are returned untouched.
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Conflict("a record with the same unique value already exists")
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return Conflict("the record is referenced by or references a missing record")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return Conflict("a record with the same unique value already exists")
		case "23503":
			return Conflict("the record is referenced by or references a missing record")
		}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return Conflict("a record with the same unique value already exists")
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return Conflict("the record is referenced by or references a missing record")
	}
	return err
}

// Status maps an error to the HTTP status the API answers with.
func Status(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case KindValidation, KindInvalidCredential:
			return fiber.StatusUnprocessableEntity
		case KindNotFound:
			return fiber.StatusNotFound
		case KindUnauthorized:
			return fiber.StatusUnauthorized
		case KindForbidden:
			return fiber.StatusForbidden
		case KindConflict:
			return fiber.StatusConflict
		}
		return fiber.StatusInternalServerError
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// Body renders the JSON body for err. Internal errors never leak their text.
func Body(err error) fiber.Map {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		body := fiber.Map{"message": appErr.Message}
		if len(appErr.Fields) > 0 {
			body["errors"] = appErr.Fields
		}
		return body
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fiber.Map{"message": fe.Message}
	}
	return fiber.Map{"message": "internal server error"}
}
