package certificate

import (
	"errors"
	"fmt"
)

// Kind classifies a certificate error so callers can branch on the
// failure instead of parsing message text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation means a required field is missing or empty.
	KindValidation
	// KindConfig means the secret key or configuration is unavailable.
	KindConfig
	// KindFormat means a token is not valid encoded text.
	KindFormat
	// KindIntegrity means a token decoded to a structurally invalid payload.
	KindIntegrity
)

// String returns the snake_case name used in API responses and audit logs
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindConfig:
		return "config_error"
	case KindFormat:
		return "format_error"
	case KindIntegrity:
		return "integrity_error"
	default:
		return "unknown_error"
	}
}

// Error is the error type returned by normalization and the codec.
type Error struct {
	Kind    Kind
	Field   string // set for validation errors
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, which lets
// errors.Is(err, ErrIntegrity) work against any integrity failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrValidation = &Error{Kind: KindValidation, Message: "validation error"}
	ErrConfig     = &Error{Kind: KindConfig, Message: "configuration error"}
	ErrFormat     = &Error{Kind: KindFormat, Message: "invalid encoding"}
	ErrIntegrity  = &Error{Kind: KindIntegrity, Message: "payload invalid or tampered"}
)

// MissingFieldError reports a required field that is absent or empty.
func MissingFieldError(field string) error {
	return &Error{
		Kind:    KindValidation,
		Field:   field,
		Message: "missing required field: " + field,
	}
}

// ConfigError reports a missing secret key or unloaded configuration.
func ConfigError(message string) error {
	return &Error{Kind: KindConfig, Message: message}
}

// FormatError reports a token that is not valid encoded text.
func FormatError(message string, err error) error {
	return &Error{Kind: KindFormat, Message: message, Err: err}
}

// IntegrityError reports a payload that failed to deserialize.
func IntegrityError(err error) error {
	return &Error{
		Kind:    KindIntegrity,
		Message: "certificate payload is invalid or has been tampered with",
		Err:     err,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var certErr *Error
	if errors.As(err, &certErr) {
		return certErr.Kind
	}
	return KindUnknown
}
