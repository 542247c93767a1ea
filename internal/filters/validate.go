package filters

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidationError maps invalid keys to a message.
type ValidationError struct {
	Fields map[Key]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, key := range Keys {
		if msg, ok := e.Fields[key]; ok {
			parts = append(parts, fmt.Sprintf("%s %s", key, msg))
		}
	}
	return "filters: invalid " + strings.Join(parts, "; ")
}

// Validate checks field shapes: month 1-12, day 1-31, range 1-365, ISO dates and a
// known channel. The query builder never calls this; it only guards filter edits.
func (f DateFilters) Validate() error {
	err := validatorInstance().Struct(f)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[Key]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields[Key(fe.Field())] = describeTag(fe)
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "datetime":
		return "must be a YYYY-MM-DD date"
	case "oneof":
		return "must be one of " + strings.Join(Channels, ", ")
	}
	return "is invalid"
}
