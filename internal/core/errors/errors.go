package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	CodeCycleRejected     ErrorCode = "CYCLE_REJECTED"
	CodeComponentNotFound ErrorCode = "COMPONENT_NOT_FOUND"
	CodeEdgeNotFound      ErrorCode = "EDGE_NOT_FOUND"
	CodeValidationError   ErrorCode = "VALIDATION_ERROR"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeStorage           ErrorCode = "STORAGE_ERROR"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

const (
	CtxOperation = "operation"
	CtxComponent = "component_id"
	CtxTeam      = "team_id"
	CtxFrom      = "from"
	CtxTo        = "to"
)

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) > 0 {
		msg += fmt.Sprintf(" %v", e.Context)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Newf(code ErrorCode, format string, args ...interface{}) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext attaches a key/value to the outermost DomainError in err's chain,
// wrapping plain errors as internal errors.
func AddContext(err error, key string, value interface{}) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return err
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]interface{}{key: value},
	}
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost DomainError, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ContextOf returns the context map of the outermost DomainError, if any.
func ContextOf(err error) map[string]interface{} {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Context
	}
	return nil
}

// IsRetryable reports whether the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	return IsCode(err, CodeConflict)
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeCycleRejected, CodeValidationError:
		return http.StatusBadRequest
	case CodeComponentNotFound, CodeEdgeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// MessageOf returns the message of the outermost DomainError without its code
// or context, or err.Error() for other errors.
func MessageOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
