// Package apperr carries the error taxonomy shared by services and controllers.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindBusinessRule
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBusinessRule:
		return "business_rule_violation"
	default:
		return "internal_error"
	}
}

// Error is a classified error. Message is safe to show to API clients;
// Err holds the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error   { return &Error{Kind: KindValidation, Message: msg} }
func NotFound(msg string) error     { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) error     { return &Error{Kind: KindConflict, Message: msg} }
func BusinessRule(msg string) error { return &Error{Kind: KindBusinessRule, Message: msg} }

// Internal wraps an unexpected failure. Already classified errors pass through unchanged.
func Internal(msg string, err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// PublicMessage is the client-facing text. Causes are only included when debug is set.
func PublicMessage(err error, debug bool) string {
	var ae *Error
	if !errors.As(err, &ae) {
		if debug {
			return "internal error: " + err.Error()
		}
		return "internal error"
	}
	if !debug {
		return ae.Message
	}
	return ae.Error()
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindBusinessRule:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Map classifies err as kind k with msg when it matches target, keeping err
// as the cause. Any other error is returned unchanged.
func Map(err, target error, k Kind, msg string) error {
	if err != nil && errors.Is(err, target) {
		return &Error{Kind: k, Message: msg, Err: err}
	}
	return err
}
