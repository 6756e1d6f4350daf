package registry

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	cyrillicName    = regexp.MustCompile(`^[А-Яа-яЁё]+(?:-[А-Яа-яЁё]+)*$`)
	insuranceNumber = regexp.MustCompile(`^[0-9]{16}$`)
)

// Accepted values for Patient.Gender.
const (
	GenderMale   = "М"
	GenderFemale = "Ж"
)

var fieldMessages = map[string]string{
	"required":         "is required",
	"cyrillic_name":    "must contain only Cyrillic letters and hyphens",
	"gender":           "must be " + GenderMale + " or " + GenderFemale,
	"insurance_number": "must be exactly 16 digits",
	"not_future":       "must not be in the future",
	"not_blank":        "must not be blank",
}

func newValidator(now func() time.Time) *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// Validate dates as time.Time; the zero date reads as absent.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		d, ok := field.Interface().(Date)
		if !ok || d.IsZero() {
			return nil
		}
		return d.Time
	}, Date{})

	mustRegister(v, "cyrillic_name", func(fl validator.FieldLevel) bool {
		return cyrillicName.MatchString(fl.Field().String())
	})
	mustRegister(v, "gender", func(fl validator.FieldLevel) bool {
		g := fl.Field().String()
		return g == GenderMale || g == GenderFemale
	})
	mustRegister(v, "insurance_number", func(fl validator.FieldLevel) bool {
		return insuranceNumber.MatchString(fl.Field().String())
	})
	mustRegister(v, "not_blank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "not_future", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		if !ok {
			return false
		}
		return !t.After(NewDate(now()).Time)
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// validationError converts validator output into a *ValidationError. Errors
// that are not field failures are returned unchanged.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.add(fe.Field(), fieldMessage(fe))
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Tag()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "is invalid"
}
