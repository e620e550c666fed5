// Package xerrors defines the small, closed error-kind taxonomy every ettbuffer component
// surfaces to callers (specification §7). Kinds wrap their cause with github.com/pkg/errors so
// a stack trace survives from the point of failure through to whatever logs it, the same way
// xtaci-kcptun's dial/session-setup paths wrap with errors.Wrap before returning.
package xerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the closed set of error categories callers can switch on.
type Kind int

const (
	KindDeviceError Kind = iota
	KindInvalidOperation
	KindUnknownStream
	KindUnknownInlet
	KindCapabilityUnavailable
	KindNotInCalibrationMode
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindDeviceError:
		return "DeviceError"
	case KindInvalidOperation:
		return "InvalidOperation"
	case KindUnknownStream:
		return "UnknownStream"
	case KindUnknownInlet:
		return "UnknownInlet"
	case KindCapabilityUnavailable:
		return "CapabilityUnavailable"
	case KindNotInCalibrationMode:
		return "NotInCalibrationMode"
	case KindInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type the ettbuffer components return to callers. The inlet
// decoders and the wsbus transport return plain github.com/pkg/errors values instead.
type Error struct {
	Kind        Kind
	Explanation string
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Explanation, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Explanation)
}

// Unwrap lets callers errors.As/errors.Is through to the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// New builds a Kind with no wrapped cause.
func New(kind Kind, explanation string) *Error {
	return &Error{Kind: kind, Explanation: explanation}
}

// Wrap wraps cause with a stack trace (via pkg/errors) and tags it with kind.
func Wrap(kind Kind, cause error, explanation string) *Error {
	return &Error{Kind: kind, Explanation: explanation, cause: errors.Wrap(cause, explanation)}
}

// Device wraps any vendor SDK failure verbatim, per spec.md §7 ("wrapped verbatim").
func Device(cause error, explanation string) *Error {
	return Wrap(KindDeviceError, cause, explanation)
}

// InvalidOperation reports an operation unsupported on the given stream/state.
func InvalidOperation(explanation string) *Error {
	return New(KindInvalidOperation, explanation)
}

// UnknownStream reports a lookup failure by stream id.
func UnknownStream(explanation string) *Error {
	return New(KindUnknownStream, explanation)
}

// UnknownInlet reports a lookup failure by inlet id.
func UnknownInlet(explanation string) *Error {
	return New(KindUnknownInlet, explanation)
}

// CapabilityUnavailable reports a device capability the caller asked for but the tracker
// doesn't advertise.
func CapabilityUnavailable(explanation string) *Error {
	return New(KindCapabilityUnavailable, explanation)
}

// NotInCalibrationMode reports a calibration request issued outside Enter..Exit.
func NotInCalibrationMode(explanation string) *Error {
	return New(KindNotInCalibrationMode, explanation)
}

// InvalidArgument reports a bad caller-supplied name/side/label.
func InvalidArgument(explanation string) *Error {
	return New(KindInvalidArgument, explanation)
}

// Is reports whether err, or an error it wraps, is an *Error of the given kind (found with
// errors.As).
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
