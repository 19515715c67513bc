package gpsjwt

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents codec error categories.
type ErrorCode string

const (
	ErrCodeMalformedToken    ErrorCode = "malformed_token"
	ErrCodeSignatureMismatch ErrorCode = "signature_mismatch"
	ErrCodeExpired           ErrorCode = "token_expired"
	ErrCodeNotYetValid       ErrorCode = "token_not_yet_valid"
	ErrCodeMissingField      ErrorCode = "missing_required_field"
	ErrCodeOutOfRange        ErrorCode = "field_out_of_range"
	ErrCodeReplayed          ErrorCode = "token_replayed"
	ErrCodeInvalidSecret     ErrorCode = "invalid_secret"
	ErrCodeInternal          ErrorCode = "internal_error"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeMalformedToken:    "Malformed token",
	ErrCodeSignatureMismatch: "Signature mismatch",
	ErrCodeExpired:           "Token expired",
	ErrCodeNotYetValid:       "Token not yet valid",
	ErrCodeMissingField:      "Missing required field",
	ErrCodeOutOfRange:        "Field out of range",
	ErrCodeReplayed:          "Token already used",
	ErrCodeInvalidSecret:     "Invalid secret",
	ErrCodeInternal:          "Internal error",
}

// Error wraps codec errors with a stable code and message.
type Error struct {
	Code    ErrorCode
	Message string
	// Field names the offending claim for missing/out-of-range errors.
	Field string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Field != "" {
		base = fmt.Sprintf("%s (%s)", base, e.Field)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error for code, for collaborators that extend the taxonomy.
func NewError(code ErrorCode, err error) error {
	return newError(code, err)
}

func newError(code ErrorCode, err error) error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}

func fieldError(code ErrorCode, field string, err error) error {
	e := newError(code, err).(*Error)
	e.Field = field
	return e
}

// CodeOf returns the code carried by err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps a decode outcome to the status the GPS endpoint answers with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch CodeOf(err) {
	case ErrCodeSignatureMismatch, ErrCodeExpired, ErrCodeNotYetValid, ErrCodeReplayed:
		return http.StatusUnauthorized
	case ErrCodeMalformedToken, ErrCodeMissingField, ErrCodeOutOfRange:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
