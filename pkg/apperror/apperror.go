package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an application error. Each kind maps to one HTTP status and one stable code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindUnauthorized
	KindConflict
	KindInvalidTransition
	KindOverIssue
	KindInsufficientStock
)

var kindMessage = map[Kind]string{
	KindInternal:          "internal error",
	KindValidation:        "invalid request",
	KindNotFound:          "data not found",
	KindForbidden:         "access denied",
	KindUnauthorized:      "unauthorized request",
	KindConflict:          "data already exists",
	KindInvalidTransition: "invalid status transition",
	KindOverIssue:         "issued quantity exceeds approved quantity",
	KindInsufficientStock: "insufficient stock",
}

var kindHTTPCode = map[Kind]int{
	KindInternal:          http.StatusInternalServerError,
	KindValidation:        http.StatusBadRequest,
	KindNotFound:          http.StatusNotFound,
	KindForbidden:         http.StatusForbidden,
	KindUnauthorized:      http.StatusUnauthorized,
	KindConflict:          http.StatusConflict,
	KindInvalidTransition: http.StatusUnprocessableEntity,
	KindOverIssue:         http.StatusUnprocessableEntity,
	KindInsufficientStock: http.StatusUnprocessableEntity,
}

var kindCode = map[Kind]string{
	KindInternal:          "INTERNAL",
	KindValidation:        "VALIDATION_ERROR",
	KindNotFound:          "NOT_FOUND",
	KindForbidden:         "FORBIDDEN",
	KindUnauthorized:      "UNAUTHORIZED",
	KindConflict:          "CONFLICT",
	KindInvalidTransition: "INVALID_TRANSITION",
	KindOverIssue:         "OVER_ISSUE",
	KindInsufficientStock: "INSUFFICIENT_STOCK",
}

func (k Kind) String() string {
	if c, ok := kindCode[k]; ok {
		return c
	}
	return kindCode[KindInternal]
}

// Error is the typed failure returned by services. Fields carries the context a caller
// needs to build an actionable message (request id, current status, attempted action...).
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = kindMessage[e.Kind]
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Fields[k]))
		}
		msg = msg + " (" + strings.Join(parts, ", ") + ")"
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels like ErrNotFound work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) HTTPStatus() int {
	if s, ok := kindHTTPCode[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func (e *Error) Code() string {
	return e.Kind.String()
}

// PublicMessage is the message safe to show to API clients.
func (e *Error) PublicMessage() string {
	if e.Kind == KindInternal {
		return kindMessage[KindInternal]
	}
	if e.Message != "" {
		return e.Message
	}
	return kindMessage[e.Kind]
}

// With returns a copy of e with an extra context field.
func (e *Error) With(key string, value any) *Error {
	fields := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[key] = value
	return &Error{Kind: e.Kind, Message: e.Message, Fields: fields, Err: e.Err}
}

var (
	ErrInternal          = &Error{Kind: KindInternal}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrOverIssue         = &Error{Kind: KindOverIssue}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
)

func New(kind Kind, message string, fields map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Fields: fields}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(entity string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: entity + " not found",
		Fields:  map[string]any{"entity": entity, "id": id},
	}
}

func Forbidden(message string, fields map[string]any) *Error {
	return &Error{Kind: KindForbidden, Message: message, Fields: fields}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// InvalidTransition reports an action that is not legal from the request's current status.
func InvalidTransition(requestID any, current, attempted string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("cannot %s a request in status %s", strings.ToLower(attempted), current),
		Fields: map[string]any{
			"request_id":       requestID,
			"current_status":   current,
			"attempted_action": attempted,
		},
	}
}

func OverIssue(itemID any, approved, issued, requested fmt.Stringer) *Error {
	return &Error{
		Kind: KindOverIssue,
		Fields: map[string]any{
			"request_item_id": itemID,
			"qty_approved":    approved.String(),
			"qty_issued":      issued.String(),
			"qty_requested":   requested.String(),
		},
	}
}

func InsufficientStock(storeID, materialID any, onHand, requested fmt.Stringer) *Error {
	return &Error{
		Kind: KindInsufficientStock,
		Fields: map[string]any{
			"store_id":      storeID,
			"material_id":   materialID,
			"qty_on_hand":   onHand.String(),
			"qty_requested": requested.String(),
		},
	}
}

// Internal wraps an unexpected failure. The cause is kept for logs and hidden from clients.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: op, Err: err}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// From converts any error into an *Error, wrapping untyped errors as internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: KindInternal, Err: err}
}
