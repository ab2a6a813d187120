package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer is a bytes.Buffer safe for the progress goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressPrinter_PhasesAndStop(t *testing.T) {
	out := &syncBuffer{}
	p := NewProgressPrinter(out, "Connecting to phone", "Connecting", "Listening")

	p.Start()
	p.Callback()("Subscribing")
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "(Subscribing") }, time.Second, 10*time.Millisecond)

	p.Callback()("Listening")
	p.Stop()

	assert.True(t, strings.HasPrefix(out.String(), "\rConnecting to phone (Connecting...)"))
	assert.True(t, strings.HasSuffix(out.String(), clearLineSequence))
	assert.Equal(t, 1, strings.Count(out.String(), clearLineSequence), "Stop MUST clear the line once")
}

func TestProgressPrinter_StartTwicePanics(t *testing.T) {
	p := NewProgressPrinter(&syncBuffer{}, "x", "Connecting")
	p.Start()
	defer p.Stop()

	assert.Panics(t, p.Start)
}
