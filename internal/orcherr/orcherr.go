// Package orcherr implements the orchestration core's result-variant error
// taxonomy: every operation resolves to ok, a user error, a transient
// failure, a permanent failure, or an internal bug. HTTP and SSE layers map
// these uniformly via ToResponse/StatusCode rather than switching on ad hoc
// error strings at each call site.
package orcherr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for retry and propagation policy.
type Kind string

const (
	KindUser       Kind = "user_error"
	KindTransient  Kind = "transient"
	KindPermanent  Kind = "permanent"
	KindInternal   Kind = "internal_bug"
)

// Well-known codes referenced directly by spec.md's components.
const (
	CodeInvalidInput    = "invalid_input"
	CodePathEscape      = "path_escape"
	CodeBlockedCommand  = "blocked_command"
	CodeUnknownTool     = "unknown_tool"
	CodeCycleInGraph    = "cycle_in_graph"
	CodeNotFound        = "not_found"
	CodeForbidden       = "forbidden"
	CodeOutOfQuota      = "out_of_quota"
	CodeConflict        = "conflict"
	CodeAPIThrottled    = "api_throttled"
	CodePodNotReady     = "pod_not_ready"
	CodeImagePulling    = "image_pulling"
	CodeMaxIterations   = "max_iterations"
	CodeMaxCost         = "max_cost"
	CodeTimeout         = "timeout"
	CodeApprovalDenied  = "approval_denied"
	CodeCancelled       = "cancelled"
	CodeRateLimited     = "rate_limit_exceeded"
	CodeInternal        = "internal_error"
)

// Error is the concrete type carried through the system. It satisfies
// errors.Is/errors.As against Kind via Is, and wraps an optional cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets callers test with errors.Is(err, orcherr.Transient) etc., using the
// Kind-only sentinel values declared below.
func (e *Error) Is(target error) bool {
	k, ok := target.(*Error)
	if !ok {
		return false
	}
	if k.Code == "" {
		return e.Kind == k.Kind
	}
	return e.Kind == k.Kind && e.Code == k.Code
}

// Sentinel kind markers for errors.Is comparisons.
var (
	User      = &Error{Kind: KindUser}
	Transient = &Error{Kind: KindTransient}
	Permanent = &Error{Kind: KindPermanent}
	Internal  = &Error{Kind: KindInternal}
)

func newErr(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

func UserError(code, message string) *Error           { return newErr(KindUser, code, message, nil) }
func UserErrorf(code, format string, a ...any) *Error  { return newErr(KindUser, code, fmt.Sprintf(format, a...), nil) }
func TransientError(code, message string, cause error) *Error {
	return newErr(KindTransient, code, message, cause)
}
func PermanentError(code, message string, cause error) *Error {
	return newErr(KindPermanent, code, message, cause)
}
func InternalError(message string, cause error) *Error {
	return newErr(KindInternal, CodeInternal, message, cause)
}

// Wrap classifies a foreign error (e.g. from database/sql or a substrate
// SDK) into a permanent orcherr.Error if it is not already one of ours.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return PermanentError(CodeInternal, err.Error(), err)
}

// StatusCode maps a Kind/Code pair to an HTTP status, mirroring the
// teacher's AppError status-mapping switch.
func (e *Error) StatusCode() int {
	switch e.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeForbidden, CodeOutOfQuota:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	}
	switch e.Kind {
	case KindUser:
		return http.StatusBadRequest
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindPermanent:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Response is the JSON body shape returned to HTTP/SSE clients.
type Response struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) ToResponse() Response {
	return Response{Error: string(e.Kind), Code: e.Code, Message: e.Message}
}
