package status

import (
	"fmt"
)

// Code is the enumeration of status codes carried by control frames.
type Code uint8

const (
	// CodeOK indicates the operation completed successfully.
	CodeOK Code = iota

	// CodeUnavailable indicates a transient failure. Retrying may succeed.
	CodeUnavailable

	// CodeInvalidArgument indicates the peer sent a malformed frame or argument.
	CodeInvalidArgument

	// CodeInternal indicates an unclassified local failure.
	CodeInternal

	// CodeCancelled indicates the operation was abandoned by its initiator.
	CodeCancelled

	// CodeProtocolViolation indicates the peer broke the close-handshake protocol.
	CodeProtocolViolation
)

// String implements fmt.Stringer
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeUnavailable:
		return "Unavailable"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeInternal:
		return "Internal"
	case CodeCancelled:
		return "Cancelled"
	case CodeProtocolViolation:
		return "ProtocolViolation"
	default:
		return "Unknown"
	}
}

// IsRetryable returns whether an operation failing with c may be retried.
// Unavailable is the only transient code.
func (c Code) IsRetryable() bool {
	return c == CodeUnavailable
}

// Status is the outcome of an operation: an OK tag or an error code with an
// optional reason. The zero value is OK.
type Status struct {
	code   Code
	reason string
}

// OK returns the successful status.
func OK() Status {
	return Status{}
}

// New returns a status with the given code and reason.
func New(code Code, reason string) Status {
	return Status{code: code, reason: reason}
}

// Newf returns a status with a formatted reason.
func Newf(code Code, format string, args ...any) Status {
	return Status{code: code, reason: fmt.Sprintf(format, args...)}
}

// Code returns the status code.
func (s Status) Code() Code {
	return s.code
}

// Reason returns the optional human-readable reason.
func (s Status) Reason() string {
	return s.reason
}

// IsOK returns whether the status indicates success.
func (s Status) IsOK() bool {
	return s.code == CodeOK
}

// IsRetryable returns whether the failed operation may be retried.
func (s Status) IsRetryable() bool {
	return s.code.IsRetryable()
}

// String implements fmt.Stringer
func (s Status) String() string {
	if s.reason == "" {
		return s.code.String()
	}
	return fmt.Sprintf("%s: %s", s.code, s.reason)
}

// Err returns nil if s is OK, otherwise an error carrying s.
func (s Status) Err() error {
	if s.IsOK() {
		return nil
	}
	return &statusError{s}
}

// Error returns an error with the given code and reason.
func Error(code Code, reason string) error {
	return New(code, reason).Err()
}

// Errorf returns an error with the given code and a formatted reason.
func Errorf(code Code, format string, args ...any) error {
	return Newf(code, format, args...).Err()
}

type statusError struct {
	s Status
}

func (e *statusError) Error() string {
	return e.s.String()
}

// FromError recovers the Status carried by err. A nil error maps to OK, an
// error produced by this package keeps its code, anything else is Internal.
func FromError(err error) Status {
	if err == nil {
		return OK()
	}
	type causer interface {
		Cause() error
	}
	for {
		if se, ok := err.(*statusError); ok {
			return se.s
		}
		c, ok := err.(causer)
		if !ok {
			break
		}
		err = c.Cause()
	}
	return New(CodeInternal, err.Error())
}
