package ancs

import (
	"fmt"
)

// ProtocolErrorKind represents the specific kind of malformed input
type ProtocolErrorKind string

const (
	Truncated      ProtocolErrorKind = "truncated"
	UnknownCommand ProtocolErrorKind = "unknown_command"
	Overflow       ProtocolErrorKind = "overflow"
)

// ProtocolError reports a buffer that could not be decoded.
// The offending buffer is dropped by the caller; a ProtocolError is never fatal.
type ProtocolError struct {
	Kind ProtocolErrorKind
	Msg  string
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return "ancs: " + string(e.Kind)
	}
	return fmt.Sprintf("ancs: %s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare ProtocolError values by Kind
func (e *ProtocolError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ProtocolError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for protocol error kinds
var (
	ErrTruncated      = &ProtocolError{Kind: Truncated}
	ErrUnknownCommand = &ProtocolError{Kind: UnknownCommand}
	ErrOverflow       = &ProtocolError{Kind: Overflow}
)

func truncatedf(format string, args ...any) error {
	return &ProtocolError{Kind: Truncated, Msg: fmt.Sprintf(format, args...)}
}

// TransportError reports a failed subscribe, unsubscribe or Control Point write.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Op + " failed"
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ControlPointError is the ATT error code returned by the phone when it rejects a command.
type ControlPointError uint8

const (
	ErrCodeUnknownCommand   ControlPointError = 0xA0
	ErrCodeInvalidCommand   ControlPointError = 0xA1
	ErrCodeInvalidParameter ControlPointError = 0xA2
	ErrCodeActionFailed     ControlPointError = 0xA3
)

func (e ControlPointError) Error() string {
	switch e {
	case ErrCodeUnknownCommand:
		return "control point: unknown command"
	case ErrCodeInvalidCommand:
		return "control point: invalid command"
	case ErrCodeInvalidParameter:
		return "control point: invalid parameter"
	case ErrCodeActionFailed:
		return "control point: action failed"
	default:
		return fmt.Sprintf("control point: error 0x%02X", uint8(e))
	}
}

// IsControlPointError reports whether code is in the ANCS-reserved range.
func IsControlPointError(code uint8) bool {
	return code >= uint8(ErrCodeUnknownCommand) && code <= uint8(ErrCodeActionFailed)
}
