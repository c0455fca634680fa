package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const (
	CodeRequired      = "REQUIRED_FIELD_MISSING"
	CodeInvalidType   = "INVALID_TYPE"
	CodeMinimum       = "MINIMUM_VIOLATION"
	CodeMaximum       = "MAXIMUM_VIOLATION"
	CodeInvalidEnum   = "INVALID_ENUM_VALUE"
	CodeInvalidFormat = "INVALID_FORMAT"
	CodeExtraField    = "EXTRA_FIELD"
	CodeSchema        = "SCHEMA_VIOLATION"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error is returned when input fails validation. It carries every violation found.
type Error struct {
	Errors []ValidationError
}

func (e *Error) Error() string {
	return "validation failed: " + strings.Join(messages(e.Errors), "; ")
}

func NewResult() *ValidationResult {
	return &ValidationResult{Valid: true, Errors: []ValidationError{}}
}

// Add records a violation.
func (vr *ValidationResult) Add(field, code, format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

// Merge appends another result's violations, prefixing their fields.
func (vr *ValidationResult) Merge(prefix string, other *ValidationResult) {
	if other == nil {
		return
	}
	for _, e := range other.Errors {
		if prefix != "" {
			e.Field = prefix + "." + e.Field
		}
		vr.Valid = false
		vr.Errors = append(vr.Errors, e)
	}
}

// FloatRange checks min <= v <= max. NaN and infinities are type errors.
func (vr *ValidationResult) FloatRange(field string, v, min, max float64) {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		vr.Add(field, CodeInvalidType, "value must be a finite number")
	case v < min:
		vr.Add(field, CodeMinimum, "value must be >= %g, got %g", min, v)
	case v > max:
		vr.Add(field, CodeMaximum, "value must be <= %g, got %g", max, v)
	}
}

func (vr *ValidationResult) IntRange(field string, v, min, max int) {
	switch {
	case v < min:
		vr.Add(field, CodeMinimum, "value must be >= %d, got %d", min, v)
	case v > max:
		vr.Add(field, CodeMaximum, "value must be <= %d, got %d", max, v)
	}
}

// Err returns nil when valid, otherwise an *Error holding a copy of the violations.
func (vr *ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	return &Error{Errors: append([]ValidationError(nil), vr.Errors...)}
}

// ValidateDocument checks a decoded JSON document against a JSON schema. A non-nil error
// means the schema itself could not be used.
func ValidateDocument(schema map[string]interface{}, document interface{}) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	vr := NewResult()
	if result.Valid() {
		return vr, nil
	}
	for _, desc := range result.Errors() {
		vr.Add(fieldOf(desc), codeOf(desc.Type()), "%s", desc.Description())
	}
	return vr, nil
}

func fieldOf(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if desc.Type() == "required" {
		if prop, ok := desc.Details()["property"].(string); ok {
			if field == gojsonschema.STRING_ROOT_SCHEMA_PROPERTY {
				return prop
			}
			return field + "." + prop
		}
	}
	return field
}

func codeOf(errType string) string {
	switch errType {
	case "required":
		return CodeRequired
	case "invalid_type":
		return CodeInvalidType
	case "number_gte", "number_gt":
		return CodeMinimum
	case "number_lte", "number_lt":
		return CodeMaximum
	case "enum":
		return CodeInvalidEnum
	case "format", "pattern":
		return CodeInvalidFormat
	case "additional_property_not_allowed":
		return CodeExtraField
	}
	return CodeSchema
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func messages(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return out
}
