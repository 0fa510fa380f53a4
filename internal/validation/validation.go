package validation

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"wabadash/internal/constants"
	"wabadash/internal/errors"
)

var templateNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Validator runs struct tag validation with the project's custom tags
// registered: template_name and wa_phone.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("template_name", func(fl validator.FieldLevel) bool {
		return templateNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("wa_phone", func(fl validator.FieldLevel) bool {
		return ValidatePhoneNumber(fl.Field().String()) == nil
	})
	return &Validator{validate: v}
}

// Struct validates s and converts failures into a VALIDATION_FAILED AppError
// whose user message names the first offending field.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.Wrap(err, errors.ErrCodeValidationFailed, "validation failed")
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describe(fe))
	}

	first := fieldErrs[0]
	return errors.NewValidationError(first.Namespace(), strings.Join(messages, "; ")).
		WithContext("fields", len(fieldErrs))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "template_name":
		return fmt.Sprintf("%s must contain only lowercase letters, digits and underscores", field)
	case "wa_phone":
		return fmt.Sprintf("%s must be a phone number with %d to %d digits", field,
			constants.MinPhoneNumberLength, constants.MaxPhoneNumberLength)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// NormalizePhoneNumber strips everything but digits
func NormalizePhoneNumber(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidatePhoneNumber validates phone number format and length. Formatting
// characters (+, spaces, dashes, parentheses) are allowed.
func ValidatePhoneNumber(phone string) error {
	if strings.TrimSpace(phone) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}

	for _, char := range phone {
		if !unicode.IsDigit(char) && !strings.ContainsRune("+ -().", char) {
			return errors.New(errors.ErrCodeInvalidInput, "phone number contains invalid characters")
		}
	}

	digits := NormalizePhoneNumber(phone)
	if len(digits) < constants.MinPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberLength))
	}
	if len(digits) > constants.MaxPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberLength))
	}

	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}
	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}

	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be at least 1 second", fieldName))
	}

	if timeoutSec > 3600 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max 3600 seconds)", fieldName))
	}

	return nil
}
