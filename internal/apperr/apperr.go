// Package apperr defines the error kinds surfaced to API callers and the CLI.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the boundary that reports it.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindConflict     Kind = "conflict"
	KindCollaborator Kind = "collaborator"
)

// Error is a classified error with a user-facing message and an optional cause.
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

// NotFound reports a missing entity, e.g. NotFound("levy schedule").
func NotFound(entity string) error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

// Validation reports malformed input.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized reports a session or organisation mismatch.
func Unauthorized(message string) error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// Conflict reports a state conflict such as a duplicate or an already generated schedule.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Collaborator wraps a failure from an external service (Stripe, SMTP, S3).
func Collaborator(service string, err error) error {
	return &Error{Kind: KindCollaborator, Message: service + " unavailable", Err: err}
}

// KindOf returns the kind of err, or "" if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the user-facing message of a classified error, or fallback otherwise.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return fallback
}

func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool   { return KindOf(err) == KindValidation }
func IsConflict(err error) bool     { return KindOf(err) == KindConflict }
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }
