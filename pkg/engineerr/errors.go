// Package engineerr defines the error taxonomy shared by every component of
// the ANN engine: distance kernels, storage, translator, graph, the Vamana
// and IVF indexes, and the top-level engine facade.
//
// Every exported operation that can fail returns an *Error (or wraps one),
// never a bare errors.New, so a caller can always recover the Code with
// errors.As and decide whether the failure is retryable.
package engineerr

import "fmt"

// Code classifies why an operation failed, mirroring the facade's status
// codes (spec section 6/7): Success has no Code value because successful
// calls don't return an *Error.
type Code int

const (
	// InvalidArgument covers dimension mismatches, duplicate/absent ids,
	// malformed parameters (prune_to > max_degree, k == 0, negative
	// radius, unknown storage kind). The index is left unchanged.
	InvalidArgument Code = iota + 1

	// NotInitialized covers operations requiring a populated index
	// (search, save, delete) called before any data has been added.
	NotInitialized

	// NotImplemented covers unsupported feature combinations on this
	// build (e.g. a quantization storage kind that was not compiled in).
	NotImplemented

	// RuntimeError covers I/O failure, archive corruption, a missing
	// archive member, quantization training non-convergence, or an
	// exhausted back-edge repair budget during consolidation.
	RuntimeError

	// Unknown covers bug escapes: conditions the engine did not
	// anticipate. Reported as-is.
	Unknown
)

// String renders the code the way the facade's status messages do.
func (c Code) String() string {
	switch c {
	case InvalidArgument:
		return "InvalidArgument"
	case NotInitialized:
		return "NotInitialized"
	case NotImplemented:
		return "NotImplemented"
	case RuntimeError:
		return "RuntimeError"
	case Unknown:
		return "UnknownError"
	default:
		return "UnknownError"
	}
}

// Error is the concrete error type returned by every package in this
// module. It carries a Code plus an optional wrapped cause, matching the
// facade's "status carrying a code and an optional heap-owned message
// string" contract minus the C ownership concerns.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error that wraps cause, or returns nil if cause is nil.
func Wrap(code Code, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: cause}
}

// Invalid is a shorthand for New(InvalidArgument, ...).
func Invalid(format string, args ...any) *Error {
	return New(InvalidArgument, fmt.Sprintf(format, args...))
}

// NotInit is a shorthand for New(NotInitialized, ...).
func NotInit(format string, args ...any) *Error {
	return New(NotInitialized, fmt.Sprintf(format, args...))
}

// Runtime is a shorthand for New(RuntimeError, ...).
func Runtime(format string, args ...any) *Error {
	return New(RuntimeError, fmt.Sprintf(format, args...))
}

// CodeOf extracts the Code from err, defaulting to Unknown if err is not
// (or does not wrap) an *Error.
func CodeOf(err error) Code {
	var e *Error
	if as(err, &e) {
		return e.Code
	}
	return Unknown
}

// as is a minimal errors.As for *Error that keeps fmt this file's only
// import: it follows the single-error Unwrap() chain, but not
// Unwrap() []error (errors.Join) or As methods, which errors.As also
// honours.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
