package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error codes - stable strings rendered to every transport
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeWindowClosed        = "WINDOW_CLOSED"
	ErrCodeAttemptLimitReached = "ATTEMPT_LIMIT_REACHED"
	ErrCodeAttemptClosed       = "ATTEMPT_CLOSED"
	ErrCodeOutOfOrder          = "OUT_OF_ORDER"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// Taxonomy sentinels. Wrap with %w; classify with errors.Is or CodeOf.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrWindowClosed        = errors.New("availability window closed")
	ErrAttemptLimitReached = errors.New("attempt limit reached")
	ErrAttemptClosed       = errors.New("attempt already closed")
	ErrOutOfOrder          = errors.New("activity submitted out of order")
	ErrStoreUnavailable    = errors.New("progress store unavailable")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized access")
	ErrForbidden           = errors.New("forbidden access")
)

// CodeOf classifies an error chain into a taxonomy code
func CodeOf(err error) string {
	var appErr *AppError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &appErr):
		return appErr.Code
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrWindowClosed):
		return ErrCodeWindowClosed
	case errors.Is(err, ErrAttemptLimitReached):
		return ErrCodeAttemptLimitReached
	case errors.Is(err, ErrAttemptClosed):
		return ErrCodeAttemptClosed
	case errors.Is(err, ErrOutOfOrder):
		return ErrCodeOutOfOrder
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return ErrCodeStoreUnavailable
	case errors.Is(err, ErrInvalidInput):
		return ErrCodeValidation
	case errors.Is(err, ErrUnauthorized):
		return ErrCodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return ErrCodeForbidden
	default:
		return ErrCodeInternal
	}
}

// AppError carries a taxonomy code plus transport-specific hints
type AppError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Protocol   string                 `json:"protocol,omitempty"` // http, grpc, websocket
	Err        error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Protocol != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Protocol, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError classifies err and wraps it with a display message
func NewAppError(err error, message string) *AppError {
	code := CodeOf(err)
	if message == "" && err != nil {
		message = err.Error()
	}
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: HTTPStatusFor(code),
		Err:        err,
	}
}

// HTTPStatusFor maps a taxonomy code to an HTTP status
func HTTPStatusFor(code string) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeWindowClosed, ErrCodeAttemptLimitReached:
		return http.StatusForbidden
	case ErrCodeAttemptClosed, ErrCodeOutOfOrder:
		return http.StatusConflict
	case ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTPError converts to the API envelope
func (e *AppError) ToHTTPError() *APIResponse {
	return &APIResponse{
		Success:   false,
		Code:      e.Code,
		Error:     e.Message,
		Message:   e.Message,
		Timestamp: time.Now(),
	}
}

// ToGRPCError converts to gRPC status error
func (e *AppError) ToGRPCError() error {
	return status.Error(grpcCodeFor(e.Code), e.Message)
}

func grpcCodeFor(code string) codes.Code {
	switch code {
	case ErrCodeNotFound:
		return codes.NotFound
	case ErrCodeWindowClosed, ErrCodeAttemptLimitReached:
		return codes.FailedPrecondition
	case ErrCodeAttemptClosed, ErrCodeOutOfOrder:
		return codes.Aborted
	case ErrCodeStoreUnavailable:
		return codes.Unavailable
	case ErrCodeValidation:
		return codes.InvalidArgument
	case ErrCodeUnauthorized:
		return codes.Unauthenticated
	case ErrCodeForbidden:
		return codes.PermissionDenied
	case ErrCodeRateLimited:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// ToWebSocketError returns WebSocket close code and message
func (e *AppError) ToWebSocketError() (int, string) {
	switch e.Code {
	case ErrCodeUnauthorized:
		return websocket.ClosePolicyViolation, "authentication required"
	case ErrCodeForbidden:
		return websocket.ClosePolicyViolation, "forbidden access"
	case ErrCodeStoreUnavailable, ErrCodeRateLimited:
		return websocket.CloseTryAgainLater, e.Message
	case ErrCodeNotFound:
		return websocket.CloseNormalClosure, "resource not found"
	default:
		return websocket.CloseInternalServerErr, e.Message
	}
}
