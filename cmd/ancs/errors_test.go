package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/ancs/internal/ancs"
	"github.com/srg/ancs/internal/engine"
	"github.com/srg/ancs/internal/session"
	"github.com/srg/ancs/pkg/connection"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"connection lost", ErrConnectionLost, "connection to the phone was lost"},
		{"timeout", fmt.Errorf("failed to connect: %w", context.DeadlineExceeded), "timed out waiting for the phone (is it nearby, unlocked and paired?)"},
		{"not connected", connection.ErrNotConnected, "not connected to the phone"},
		{"unknown uid", fmt.Errorf("uid 9: %w", engine.ErrUnknownNotification), "no such notification (it may have been removed)"},
		{"no action", engine.ErrActionUnavailable, "the notification does not offer that action"},
		{"stopped", session.ErrStopped, "the session has already been stopped"},
		{
			"control point rejection inside transport error",
			&ancs.TransportError{Op: "write PerformNotificationAction", Err: ancs.ErrCodeActionFailed},
			"the phone rejected the command: control point: action failed",
		},
		{
			"transport",
			&ancs.TransportError{Op: "subscribe notification-source", Err: errors.New("insufficient encryption")},
			"bluetooth subscribe notification-source failed: insufficient encryption",
		},
		{"protocol", ancs.ErrTruncated, "malformed payload (ancs: truncated)"},
		{"other", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}
