// Package fault provides the typed error kinds used across the core.
//
// Kinds map onto client-facing classes: NotFound, Validation and
// Precondition failures are pure rejections detected before any state
// mutation; BudgetExceeded carries the overage; BackendFailure records an
// execution error on the operation and is re-raised to the caller.
package fault

import (
	"errors"
	"fmt"

	"github.com/forgeworks/forge/model"
)

// Kind classifies an error.
type Kind int

const (
	// KindUnknown is an unclassified error.
	KindUnknown Kind = iota
	// KindNotFound means a referenced entity does not exist.
	KindNotFound
	// KindValidation means the input was malformed.
	KindValidation
	// KindBudgetExceeded means a reservation or commit check failed.
	KindBudgetExceeded
	// KindPrecondition means the entity was in the wrong state for the call.
	KindPrecondition
	// KindBackend means a subprocess or API backend failed.
	KindBackend
)

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	// Overage is set for KindBudgetExceeded.
	Overage model.Cents
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// NotFound reports a missing entity, e.g. NotFound("project", id).
func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// Validation reports malformed input.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Precondition reports a state-machine violation.
func Precondition(format string, args ...any) error {
	return &Error{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

// BudgetExceeded reports a failed budget check with the overage amount.
func BudgetExceeded(overage model.Cents) error {
	return &Error{
		Kind:    KindBudgetExceeded,
		Message: fmt.Sprintf("would exceed budget by %s", overage),
		Overage: overage,
	}
}

// Backend wraps an execution failure from a dispatch backend.
func Backend(err error) error {
	return &Error{Kind: KindBackend, Message: "backend execution failed", Cause: err}
}

// Backendf reports an execution failure with a formatted message.
func Backendf(format string, args ...any) error {
	return &Error{Kind: KindBackend, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// OverageOf returns the overage carried by a budget error, or zero.
func OverageOf(err error) model.Cents {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == KindBudgetExceeded {
		return fe.Overage
	}
	return 0
}
