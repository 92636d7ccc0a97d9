// Package form holds the drafts behind the login and service request forms.
//
// Validation mirrors the constraints the browser enforces natively on the
// rendered inputs (required, type=email) and nothing more.
package form

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError lists the failing fields by form field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, e.Fields[name])
	}
	return strings.Join(msgs, "; ")
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(ve))}
	for _, fe := range ve {
		out.Fields[fieldName(fe.Field())] = fieldError(fe)
	}
	return out
}

// fieldName converts a Go field name to the camelCase form field name.
func fieldName(goName string) string {
	if goName == "" {
		return goName
	}
	return strings.ToLower(goName[:1]) + goName[1:]
}

func fieldError(fe validator.FieldError) string {
	field := fieldName(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
