package services

import (
	"github.com/example/bazaardial/internal/apperr"
	"github.com/example/bazaardial/internal/validate"
)

// invalid reports failed rules as one validation error naming every offending
// field. The first failure picks the message, looked up as "field.tag" and
// then "field".
func invalid(errs []validate.FieldError, messages map[string]string) error {
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	msg, ok := messages[first.Field+"."+first.Tag]
	if !ok {
		msg, ok = messages[first.Field]
	}
	if !ok {
		msg = "Invalid " + first.Field + "."
	}
	return apperr.Validation(msg, validate.Names(errs)...)
}
