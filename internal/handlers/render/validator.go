package render

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Message per failed tag, unknown tags get "Invalid value"
var tagMessages = map[string]func(fe validator.FieldError) string{
	"required": func(validator.FieldError) string { return "This field is required" },
	"min":      func(fe validator.FieldError) string { return fmt.Sprintf("Value is too short (minimum %s)", fe.Param()) },
	"max":      func(fe validator.FieldError) string { return fmt.Sprintf("Value is too long (maximum %s)", fe.Param()) },
	"username": func(validator.FieldError) string { return "Only letters, digits and '.', '_', '-' are allowed" },
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})

	// Fields are reported by json name
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func fieldMessages(errs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		message := "Invalid value"
		if fn, ok := tagMessages[fe.Tag()]; ok {
			message = fn(fe)
		}
		fields[fe.Field()] = message
	}
	return fields
}
