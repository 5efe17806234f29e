package errs

import (
	"errors"
	"fmt"
)

type Category string

const (
	CategoryInvalidInput            Category = "invalid_input"
	CategoryCollaboratorUnavailable Category = "collaborator_unavailable"
	CategoryIOFailure               Category = "io_failure"
	CategoryInternalFailure         Category = "internal_failure"
)

type classifiedError struct {
	category Category
	code     string
	hint     string
	cause    error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func Wrap(cause error, category Category, code, hint string) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{category: category, code: code, hint: hint, cause: cause}
}

// Invalid builds an input error. Input errors stop a run before any
// decision is computed.
func Invalid(code, format string, args ...any) error {
	return Wrap(fmt.Errorf(format, args...), CategoryInvalidInput, code, "")
}

func Unavailable(code string, cause error) error {
	return Wrap(cause, CategoryCollaboratorUnavailable, code, "heuristic output is used instead")
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

func IsInvalidInput(err error) bool {
	return CategoryOf(err) == CategoryInvalidInput
}
