// Package domain provides the response envelope and canonical error types
// shared by the update and select pipelines.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind categorizes a pipeline failure and determines the HTTP status
// it maps to at the resource boundary.
type ErrorKind string

const (
	// KindConfiguration indicates an invalid pipeline assembly request,
	// such as a custom stage anchored to an unknown standard stage.
	KindConfiguration ErrorKind = "configuration"

	// KindResolution indicates a referenced entity or id could not be
	// found during mapping or binding.
	KindResolution ErrorKind = "resolution"

	// KindValidation indicates malformed identity, mismatched id
	// cardinality, or a constraint-rejected field.
	KindValidation ErrorKind = "validation"

	// KindPersistence indicates the underlying store operation failed.
	KindPersistence ErrorKind = "persistence"
)

// Error is a categorized pipeline failure. Processors raise it instead of
// using outcome values, which carry control flow only.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewConfiguration creates a configuration error.
func NewConfiguration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewResolution creates a resolution (not found) error.
func NewResolution(format string, args ...any) *Error {
	return &Error{Kind: KindResolution, Message: fmt.Sprintf(format, args...)}
}

// NewValidation creates a validation (bad request) error.
func NewValidation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewPersistence wraps a store failure.
func NewPersistence(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindPersistence, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the error's kind, or KindPersistence for errors that did
// not originate in the pipeline.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// StatusOf maps an error to the HTTP status the resource layer should
// return for it.
func StatusOf(err error) int {
	switch KindOf(err) {
	case KindResolution:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
