// Package apperr defines the error kinds shared by every workflow of the
// application: a missing session, a failed input validation and a failure
// reported by one of the external services (identity provider, document store,
// bank-data aggregator, payment rail).
package apperr

import (
	"errors"
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

// ErrNoSession is returned when the request carries no usable session cookie.
// It is an expected condition and means "anonymous caller".
var ErrNoSession = errors.New("no session")

// ErrConfiguration is wrapped by every construction-time failure caused by
// invalid settings.
var ErrConfiguration = errors.New("configuration error")

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// ValidationError is returned when required input is missing or malformed.
// It is always raised before any network call is made.
type ValidationError struct {
	Op     string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: invalid parameters", e.Op)
	}
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field+" "+f.Message)
	}
	return fmt.Sprintf("%s: invalid parameters: %s", e.Op, strings.Join(names, "; "))
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(op, field, message string) *ValidationError {
	return &ValidationError{
		Op:     op,
		Fields: []FieldError{{Field: field, Tag: "custom", Message: message}},
	}
}

// FromValidator converts the result of validator.Struct into a ValidationError.
// A nil input yields nil.
func FromValidator(op string, err error) error {
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &ValidationError{Op: op, Fields: []FieldError{{Field: "", Tag: "", Message: err.Error()}}}
	}

	result := &ValidationError{Op: op}
	for _, fieldErr := range validationErrors {
		result.Fields = append(result.Fields, FieldError{
			Field:   fieldErr.Field(),
			Tag:     fieldErr.Tag(),
			Message: messageFor(fieldErr),
		})
	}

	return result
}

func messageFor(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "url":
		return "must be a valid URL"
	case "positive_amount":
		return "must be a positive amount in whole cents"
	case "gt":
		return "must be greater than " + err.Param()
	default:
		return "is invalid"
	}
}

// ExternalServiceError wraps a failure returned by an external collaborator.
type ExternalServiceError struct {
	Service    string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ExternalServiceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Service)
	b.WriteString(" ")
	b.WriteString(e.Op)
	b.WriteString(" failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " with status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// IsNoSession reports whether err means the caller is anonymous.
func IsNoSession(err error) bool {
	return errors.Is(err, ErrNoSession)
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsExternal reports whether err is, or wraps, an ExternalServiceError.
func IsExternal(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}

// StatusCode returns the HTTP status reported by an external service, or 0.
func StatusCode(err error) int {
	var target *ExternalServiceError
	if errors.As(err, &target) {
		return target.StatusCode
	}
	return 0
}
