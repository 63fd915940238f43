package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

// Platforms lists the canvas presets accepted by the generate endpoint.
var Platforms = []string{"youtube", "instagram", "twitter", "linkedin", "facebook", "custom"}

// Layouts lists the layout templates a design plan may select.
var Layouts = []string{"centered", "left-aligned", "split", "minimal", "bold"}

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	validate.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		return contains(Platforms, fl.Field().String())
	})

	validate.RegisterValidation("layout", func(fl validator.FieldLevel) bool {
		return contains(Layouts, fl.Field().String())
	})
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"_": err.Error()}
	}

	fieldErrors := make(map[string]string)
	for _, err := range validationErrors {
		field := err.Field()
		switch err.Tag() {
		case "required":
			fieldErrors[field] = "This field is required"
		case "min":
			fieldErrors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			fieldErrors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			fieldErrors[field] = "Value must be at least " + err.Param()
		case "lte":
			fieldErrors[field] = "Value must be at most " + err.Param()
		case "hexcolor":
			fieldErrors[field] = "Invalid hex color"
		case "platform":
			fieldErrors[field] = "Invalid platform. Must be one of: " + strings.Join(Platforms, ", ")
		case "layout":
			fieldErrors[field] = "Invalid layout. Must be one of: " + strings.Join(Layouts, ", ")
		default:
			fieldErrors[field] = "Invalid value"
		}
	}

	return fieldErrors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}

// IsHexColor reports whether s is a #RGB or #RRGGBB colour.
func IsHexColor(s string) bool {
	return ValidateVar(s, "required,hexcolor") == nil
}
