package validate

import (
	"errors"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/otp-auth-api/internal/domain"
)

// v is the package-level singleton validator. Custom rules are registered in
// init before the first call to Struct.
var v = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// Report fields by their JSON names so clients can map them to inputs.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("password", strongPassword)
}

// strongPassword requires at least 6 characters with a lower case letter, an
// upper case letter and a digit.
func strongPassword(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if utf8.RuneCountInString(s) < 6 {
		return false
	}
	var lower, upper, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

// Struct validates s using its validate tags. Every failing field is
// reported, not just the first. Missing required fields take precedence over
// malformed ones so the client fixes omissions first.
func Struct(s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	missing := map[string]string{}
	malformed := map[string]string{}
	for _, fe := range ve {
		if fe.Tag() == "required" {
			missing[fe.Field()] = fe.Field() + " is required"
			continue
		}
		malformed[fe.Field()] = message(fe)
	}
	if len(missing) > 0 {
		return domain.Validation(domain.ReasonMissingFields, "missing required fields: "+joinKeys(ve, missing), missing)
	}
	return domain.Validation(domain.ReasonMalformedInput, "invalid fields: "+joinKeys(ve, malformed), malformed)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "email":
		return fe.Field() + " must be a valid email address"
	case "password":
		return fe.Field() + " must be at least 6 characters with an upper case letter, a lower case letter and a number"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "len":
		return fe.Field() + " must be exactly " + fe.Param() + " characters"
	case "numeric":
		return fe.Field() + " must contain digits only"
	default:
		return fe.Field() + " failed '" + fe.Tag() + "'"
	}
}

// joinKeys lists the fields of m in declaration order.
func joinKeys(ve validator.ValidationErrors, m map[string]string) string {
	var names []string
	for _, fe := range ve {
		if _, ok := m[fe.Field()]; ok {
			names = append(names, fe.Field())
		}
	}
	return strings.Join(names, ", ")
}
