package http

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes carried in AppError.Code. Validation failures use per-tag codes
// produced in validate.go instead.
const (
	CodeBadRequest      = "ERR_BAD_REQUEST"
	CodeNotFound        = "ERR_NOT_FOUND"
	CodeConflict        = "ERR_CONFLICT"
	CodeUnprocessable   = "ERR_UNPROCESSABLE"
	CodeTooManyRequests = "ERR_TOO_MANY_REQUESTS"
	CodeUpstream        = "ERR_UPSTREAM"
	CodeInternal        = "ERR_INTERNAL"
)

// AppError is an error the API renders as-is: Status picks the HTTP status,
// the rest is serialized into the response body.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func newAppError(code string, status int, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithParam attaches a detail rendered under "params".
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{}, 1)
	}
	e.Params[key] = value
	return e
}

// WithError keeps the cause for logs; it is never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// AsAppError finds an AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func BadRequestError(message string) *AppError {
	return newAppError(CodeBadRequest, http.StatusBadRequest, message)
}

func NotFoundError(message string) *AppError {
	return newAppError(CodeNotFound, http.StatusNotFound, message)
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return NotFoundError(fmt.Sprintf(format, a...))
}

func ConflictError(message string) *AppError {
	return newAppError(CodeConflict, http.StatusConflict, message)
}

func UnprocessableError(message string) *AppError {
	return newAppError(CodeUnprocessable, http.StatusUnprocessableEntity, message)
}

func TooManyRequestsError(message string) *AppError {
	return newAppError(CodeTooManyRequests, http.StatusTooManyRequests, message)
}

// BadGatewayError reports a failure of an upstream venue such as the exchange.
func BadGatewayError(message string) *AppError {
	return newAppError(CodeUpstream, http.StatusBadGateway, message)
}

func InternalError(message string) *AppError {
	return newAppError(CodeInternal, http.StatusInternalServerError, message)
}
