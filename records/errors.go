package records

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// KindValidation - bad input detected before any backend call
	KindValidation Kind = "validation"
	// KindNotFound - the filters matched no rows
	KindNotFound Kind = "not_found"
	// KindMissingID - a resolved row has no id to mutate it by
	KindMissingID Kind = "missing_id"
	// KindBackend - the database access capability failed
	KindBackend Kind = "backend"
)

// Messages reported to the agent.
const (
	MsgNoUpdates         = "No updates provided"
	MsgNoRecords         = "No records provided for insertion"
	MsgNoUpdateFilters   = "No filters provided. Updating all records is not allowed for safety reasons."
	MsgNoDeleteFilters   = "No filters provided. Deleting all records is not allowed for safety reasons."
	MsgNoMatches         = "No records found matching the provided filters"
	MsgMissingID         = "Could not find ID field in the records"
	MsgTableRequired     = "table_name is required"
	MsgNegativeLimit     = "limit must not be negative"
	MsgEmptyColumnName   = "columns must not contain empty names"
	MsgEmptyOrderColumn  = "order_by must not be blank"
	MsgInvalidArgsPrefix = "Invalid arguments: "
)

// Error is a typed failure. Error() returns Message unchanged so that
// envelopes carry the exact text.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind, so errors.Is(err, &Error{Kind: KindNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func invalid(msg string) *Error { return newError(KindValidation, msg) }

// backendError captures a backend failure with its message verbatim.
func backendError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindBackend, Message: err.Error(), Err: err}
}

// KindOf returns the kind of err, or KindBackend for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindBackend
}

func invalidArguments(err error) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprint(MsgInvalidArgsPrefix, err), Err: err}
}
