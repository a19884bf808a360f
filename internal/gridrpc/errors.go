package gridrpc

import (
	"errors"
	"fmt"
)

// Kind enumerates the error kinds named in spec.md §7.
type Kind string

const (
	Unauthorized      Kind = "unauthorized"
	RoleViolation     Kind = "role_violation"
	MissingField      Kind = "missing_field"
	ComponentNotFound Kind = "component_not_found"
	UnsupportedFormat Kind = "unsupported_format"
	TransportError    Kind = "rpc_transport_error"
	AlreadyRunning    Kind = "already_running"
	AlreadyCleanedUp  Kind = "already_cleaned_up"
)

// Error carries one of the Kind values above plus a human-readable detail.
// Per spec.md §7's propagation policy, most of these never cross the RPC
// boundary as a raised exception — they're folded into a false return
// instead; Error exists for the cases that must surface as fatal-to-the-
// call (report generation) and for internal logging everywhere else.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gridrpc: %s: %s", e.Kind, e.Message)
}

// New constructs an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a gridrpc *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
