// Package apperror defines the error kinds surfaced to callers and their HTTP
// mapping. Soft failures from external calendars are never represented here.
package apperror

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindQuotaExceeded
	KindSlotUnavailable
	KindInvalidInput
	KindConflict
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches on kind so wrapped variants with custom messages still compare
// equal to the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	ErrNotFound        = New(KindNotFound, "not found")
	ErrUnauthorized    = New(KindUnauthorized, "unauthorized")
	ErrQuotaExceeded   = New(KindQuotaExceeded, "monthly booking limit reached")
	ErrSlotUnavailable = New(KindSlotUnavailable, "slot no longer available")
	ErrInvalidInput    = New(KindInvalidInput, "invalid input")
	ErrConflict        = New(KindConflict, "conflict")
)

func NotFound(msg string) error     { return New(KindNotFound, msg) }
func InvalidInput(msg string) error { return New(KindInvalidInput, msg) }
func Conflict(msg string) error     { return New(KindConflict, msg) }

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindSlotUnavailable, KindConflict:
		return http.StatusConflict
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message is the caller-facing text for err. Internal errors are not echoed.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}
