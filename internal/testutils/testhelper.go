package testutils

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// TestHelper bundles a debug-level logger whose entries are captured instead of printed.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Hook   *logtest.Hook
}

func NewTestHelper(t *testing.T) *TestHelper {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel) // debug logs show the execution flow on failure
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   hook,
	}
}

// Logged reports whether an entry with message was logged at level.
func (h *TestHelper) Logged(level logrus.Level, message string) bool {
	for _, e := range h.Hook.AllEntries() {
		if e.Level == level && e.Message == message {
			return true
		}
	}
	return false
}

// MustHex decodes hex that may contain spaces. It fails the test on bad input.
func (h *TestHelper) MustHex(s string) []byte {
	h.T.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		h.T.Fatalf("invalid hex %q: %v", s, err)
	}
	return b
}
