package validate

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/example/bazaardial/internal/models"
)

// FieldError names a field and the rule it failed.
type FieldError struct {
	Field string
	Tag   string
}

// Rule binds a field name to a validator tag list such as "omitempty,len=10,number".
type Rule struct {
	Field string
	Tag   string
}

var (
	engineOnce sync.Once
	engine     *validator.Validate
)

// custom tags understood on top of the validator built-ins.
var customRules = map[string]func(string) bool{
	"inmobile":   func(s string) bool { _, err := FormatMobile(s); return err == nil },
	"username":   Username,
	"strongpw":   StrongPassword,
	"hhmm":       Time24,
	"httpurl":    URL,
	"gstin":      GSTIN,
	"category":   models.ValidCategory,
	"experience": models.ValidExperience,
}

func instance() *validator.Validate {
	engineOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(fieldName)
		for tag, fn := range customRules {
			fn := fn
			if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return fn(fl.Field().String())
			}); err != nil {
				panic(err)
			}
		}
		engine = v
	})
	return engine
}

// fieldName reports the json or form name of a struct field, falling back to
// the lower-camel Go name.
func fieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	r := []rune(f.Name)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// Struct validates the `validate` tags of s and reports every failed field in
// declaration order.
func Struct(s any) []FieldError {
	return collect(instance().Struct(s))
}

// Fields applies rules in order to values. An absent key validates as "".
func Fields(values map[string]string, rules []Rule) []FieldError {
	v := instance()
	var out []FieldError
	for _, r := range rules {
		errs := collect(v.Var(values[r.Field], r.Tag))
		for _, e := range errs {
			out = append(out, FieldError{Field: r.Field, Tag: e.Tag})
		}
	}
	return out
}

// Var reports whether value satisfies tag.
func Var(value, tag string) bool {
	return instance().Var(value, tag) == nil
}

// Names lists the distinct failed fields in order.
func Names(errs []FieldError) []string {
	var out []string
	for _, e := range errs {
		if !contains(out, e.Field) {
			out = append(out, e.Field)
		}
	}
	return out
}

func collect(err error) []FieldError {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []FieldError{{Tag: "invalid"}}
	}
	out := make([]FieldError, len(ve))
	for i, fe := range ve {
		out[i] = FieldError{Field: fe.Field(), Tag: fe.Tag()}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
