package service

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

var webURLSchemes = map[string]bool{"http": true, "https": true, "ftp": true}

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("web_url", isWebURL); err != nil {
		panic(err)
	}
	return v
}

// isWebURL accepts absolute http, https and ftp URLs with a host.
func isWebURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return webURLSchemes[strings.ToLower(u.Scheme)] && u.Host != ""
}

var validationMessages = map[string]string{
	"required": "The field '%s' is required.",
	"url":      "The field '%s' must be a valid URL.",
	"web_url":  "The field '%s' must be an http, https or ftp URL.",
	"gte":      "The field '%s' must be greater than or equal to %s.",
	"lte":      "The field '%s' must be less than or equal to %s.",
	"max":      "The field '%s' must be no longer than %s characters.",
}

func fieldMessage(jsonTag string, e validator.FieldError) string {
	if msg, ok := validationMessages[e.Tag()]; ok {
		if strings.Count(msg, "%s") == 2 {
			return fmt.Sprintf(msg, jsonTag, e.Param())
		}
		return fmt.Sprintf(msg, jsonTag)
	}
	return fmt.Sprintf("Field '%s' is invalid: %s", jsonTag, e.Tag())
}

// validateStruct validates a pointer to a struct and returns a map of JSON field
// names to messages. An empty map means the value is valid.
func validateStruct(s any) map[string]string {
	fields := make(map[string]string)

	err := validate.Struct(s)
	if err == nil {
		return fields
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		fields["_"] = err.Error()
		return fields
	}

	structType := reflect.TypeOf(s).Elem()
	for _, e := range validationErrs {
		name := e.StructField()
		if field, ok := structType.FieldByName(e.StructField()); ok {
			if tag := field.Tag.Get("json"); tag != "" {
				name = strings.Split(tag, ",")[0]
			}
		}
		fields[name] = fieldMessage(name, e)
	}
	return fields
}
