// Package apperrors defines the engine-wide error taxonomy. Every failure
// that crosses a component boundary is classified by Kind; safety-gate
// rejections additionally carry a machine-readable rule code.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the failure class of an engine error.
type Kind string

const (
	KindBadInput            Kind = "BadInput"
	KindUnsupportedEndpoint Kind = "UnsupportedEndpoint"
	KindConnectionFailed    Kind = "ConnectionFailed"
	KindSchemaBuildFailed   Kind = "SchemaBuildFailed"
	KindPlanParseFailed     Kind = "PlanParseFailed"
	KindSafetyRejected      Kind = "SafetyRejected"
	KindTimeout             Kind = "Timeout"
	KindDBError             Kind = "DbError"
	KindSessionNotFound     Kind = "SessionNotFound"
	KindUnauthorized        Kind = "Unauthorized"
	KindInternal            Kind = "Internal"
)

// Safety rule codes carried by SafetyRejected errors.
const (
	RuleMultipleStatements  = "MULTIPLE_STATEMENTS"
	RuleForbiddenVerb       = "FORBIDDEN_VERB"
	RuleSQLComment          = "SQL_COMMENT"
	RuleUpdateWithoutWhere  = "UPDATE_WITHOUT_WHERE"
	RuleDeleteWithoutWhere  = "DELETE_WITHOUT_WHERE"
	RuleParamCountMismatch  = "PARAM_COUNT_MISMATCH"
	RuleParamInjection      = "PARAM_INJECTION"
	RuleDangerousOperator   = "DANGEROUS_OPERATOR"
	RuleWriteStageForbidden = "WRITE_STAGE_FORBIDDEN"
	RuleFilterRequired      = "FILTER_REQUIRED"
	RuleBulkWriteForbidden  = "BULK_WRITE_FORBIDDEN"
	RuleSensitiveProjection = "SENSITIVE_PROJECTION"
	RuleUnknownOperation    = "UNKNOWN_OPERATION"
)

// Error is a classified engine error. The rendered form is
// "<Kind>: <message>", or "<Kind>(<RULE>): <message>" for safety
// rejections, which is exactly the shape surfaced to callers.
type Error struct {
	Kind    Kind
	Rule    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Rule, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so callers can test
// errors.Is(err, apperrors.New(KindTimeout, "")) style sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && (t.Rule == "" || e.Rule == t.Rule)
}

// New builds a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error, keeping it unwrappable.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Wrapf classifies an underlying error with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// SafetyViolation builds a SafetyRejected error with its rule code.
func SafetyViolation(rule, message string) *Error {
	return &Error{Kind: KindSafetyRejected, Rule: rule, Message: message}
}

// KindOf returns the Kind of a classified error, or KindInternal for
// anything unclassified. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// RuleOf returns the safety rule code, or "" when not a safety rejection.
func RuleOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Rule
	}
	return ""
}

// IsKind reports whether err is classified with the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a classified error to an HTTP status code. Validation
// failures are 4xx; upstream database problems surface as gateway errors.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindBadInput, KindUnsupportedEndpoint:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusForbidden
	case KindSessionNotFound:
		return http.StatusNotFound
	case KindSafetyRejected:
		return http.StatusUnprocessableEntity
	case KindConnectionFailed, KindDBError:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
