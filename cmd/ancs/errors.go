package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/ancs/internal/ancs"
	"github.com/srg/ancs/internal/engine"
	"github.com/srg/ancs/internal/session"
	"github.com/srg/ancs/pkg/connection"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the phone dropped the link while listening.
	// This is distinct from connection.ErrNotConnected, which indicates an attempt to use
	// a connection that was never established or was already closed.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns internal errors into a one-line message for the terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var cpErr ancs.ControlPointError
	var transportErr *ancs.TransportError
	var protoErr *ancs.ProtocolError

	switch {
	case errors.Is(err, ErrConnectionLost):
		return "connection to the phone was lost"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out waiting for the phone (is it nearby, unlocked and paired?)"
	case errors.Is(err, connection.ErrNotConnected):
		return "not connected to the phone"
	case errors.Is(err, engine.ErrUnknownNotification):
		return "no such notification (it may have been removed)"
	case errors.Is(err, engine.ErrActionUnavailable):
		return "the notification does not offer that action"
	case errors.Is(err, session.ErrStopped):
		return "the session has already been stopped"
	case errors.As(err, &cpErr):
		return fmt.Sprintf("the phone rejected the command: %s", cpErr.Error())
	case errors.As(err, &transportErr):
		return fmt.Sprintf("bluetooth %s", transportErr.Error())
	case errors.As(err, &protoErr):
		return fmt.Sprintf("malformed payload (%s)", protoErr.Error())
	default:
		return err.Error()
	}
}
