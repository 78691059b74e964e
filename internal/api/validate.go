package api

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateStruct returns a single human-readable message for the first
// validation failures, or "" if the struct is valid.
func validateStruct(data any) string {
	err := validate.Struct(data)
	if err == nil {
		return ""
	}

	var msgs []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, ve := range verrs {
			msgs = append(msgs, fieldErrorMessage(ve))
		}
	}
	if len(msgs) == 0 {
		return "invalid request"
	}
	return strings.Join(msgs, "; ")
}

func fieldErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email", err.Field())
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", err.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	default:
		return fmt.Sprintf("%s is invalid", err.Field())
	}
}
