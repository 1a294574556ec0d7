package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/reflector/internal/model"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Get returns the shared validator with the SRL-specific rules registered.
// validator.Validate caches struct metadata and is safe for concurrent use.
func Get() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("srl_component", validateComponent)
		_ = v.RegisterValidation("response_type", validateResponseType)
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		instance = v
	})
	return instance
}

// Struct validates s against its struct tags and returns a single error
// listing every failing field.
func Struct(s any) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	// Drop the top-level type name: "ExportRecord.responses[0].question" -> "responses[0].question".
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "srl_component":
		return fmt.Sprintf("%s: unknown SRL component %q", field, fe.Value())
	case "response_type":
		return fmt.Sprintf("%s: unknown response type %q", field, fe.Value())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Sprintf("%s failed %s (got %v)", field, fe.Tag(), fe.Value())
	}
}

func validateComponent(fl validator.FieldLevel) bool {
	return model.Component(fl.Field().String()).Valid()
}

func validateResponseType(fl validator.FieldLevel) bool {
	return model.ResponseType(fl.Field().String()).Valid()
}
