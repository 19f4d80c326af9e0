package executor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an executor failure.
type ErrorKind string

const (
	// KindSubsystemUndefined indicates an undefined response, most likely
	// because the datasources subsystem or the profile does not exist.
	KindSubsystemUndefined ErrorKind = "subsystem_undefined"

	// KindRemoteRejected indicates the endpoint answered with an outcome
	// other than success.
	KindRemoteRejected ErrorKind = "remote_rejected"

	// KindTransport indicates the exchange with the endpoint could not complete.
	KindTransport ErrorKind = "transport"

	// KindHostResolution indicates the endpoint host could not be resolved.
	KindHostResolution ErrorKind = "host_resolution"

	// KindInvalidArgument indicates the caller passed unusable input. No
	// session is opened for these.
	KindInvalidArgument ErrorKind = "invalid_argument"
)

// Error is the single failure type returned by executor operations.
type Error struct {
	// Kind is the failure classification.
	Kind ErrorKind `json:"kind"`

	// Message describes the operation and target being attempted.
	Message string `json:"message"`

	// Operation is the executor operation (create, remove, enable, ...).
	Operation string `json:"operation,omitempty"`

	// Datasource is the datasource name, if the operation targets one.
	Datasource string `json:"datasource,omitempty"`

	// Profile is the profile that failed during fan-out. Empty for the
	// unscoped target.
	Profile string `json:"profile,omitempty"`

	// FailureDescription is the remote failure text, verbatim.
	FailureDescription string `json:"failure_description,omitempty"`

	// RolledBack is the remote rollback indicator; nil when absent.
	RolledBack *bool `json:"rolled_back,omitempty"`

	// Completed lists the profiles on which the operation already succeeded
	// before the failure. Those changes are not undone.
	Completed []string `json:"completed,omitempty"`

	// Applied lists every change the invocation made before the failure,
	// as "<operation> <datasource>@<profile>". It spans all datasources of a
	// batch and includes an add whose follow-up enable failed.
	Applied []string `json:"applied,omitempty"`

	// Err is the underlying transport or resolution error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	switch {
	case len(e.Applied) > 0:
		fmt.Fprintf(&b, " (already applied: %s)", strings.Join(e.Applied, ", "))
	case len(e.Completed) > 0:
		fmt.Fprintf(&b, " (already applied to profiles: %s)", strings.Join(e.Completed, ", "))
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithDatasource adds datasource context to an error.
func (e *Error) WithDatasource(name string) *Error {
	e.Datasource = name
	return e
}

// WithProfile adds the failing profile to an error.
func (e *Error) WithProfile(profile string) *Error {
	e.Profile = profile
	return e
}

// WithRemoteFailure records the remote failure description and rollback flag.
func (e *Error) WithRemoteFailure(description string, rolledBack *bool) *Error {
	e.FailureDescription = description
	e.RolledBack = rolledBack
	return e
}

// KindOf returns the kind of an executor error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsSubsystemUndefined returns true if the error reports an undefined response.
func IsSubsystemUndefined(err error) bool {
	return KindOf(err) == KindSubsystemUndefined
}

// IsRemoteRejected returns true if the endpoint rejected the operation.
func IsRemoteRejected(err error) bool {
	return KindOf(err) == KindRemoteRejected
}

// IsTransport returns true if the exchange with the endpoint failed.
func IsTransport(err error) bool {
	return KindOf(err) == KindTransport
}

// IsHostResolution returns true if the endpoint host could not be resolved.
func IsHostResolution(err error) bool {
	return KindOf(err) == KindHostResolution
}

// IsInvalidArgument returns true if the caller input was rejected.
func IsInvalidArgument(err error) bool {
	return KindOf(err) == KindInvalidArgument
}
