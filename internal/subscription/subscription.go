// Package subscription wraps a notifying GATT characteristic in an explicit
// subscribe/unsubscribe state machine and exposes its values as a stream.
package subscription

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/ancs/internal/ancs"
	"github.com/srg/ancs/internal/ringchan"
)

// DefaultCapacity is the number of undelivered values buffered per channel.
const DefaultCapacity = 64

var (
	// ErrBusy is returned while a subscribe or unsubscribe is in progress.
	ErrBusy = errors.New("subscription: transition in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("subscription: closed")
)

// State is the subscription lifecycle state.
type State int

const (
	Unsubscribed State = iota
	Subscribing
	Subscribed
	Unsubscribing
)

func (s State) String() string {
	switch s {
	case Unsubscribed:
		return "unsubscribed"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	case Unsubscribing:
		return "unsubscribing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Notifier is the transport side of a notifying characteristic.
type Notifier interface {
	// EnableNotifications writes the CCCD and routes every notification to handler.
	// handler may be called from any goroutine and must not retain the slice.
	EnableNotifications(handler func([]byte)) error
	DisableNotifications() error
}

// Channel is a subscription to a single characteristic.
type Channel struct {
	name     string
	notifier Notifier
	stream   *ringchan.RingChannel[[]byte]
	logger   *logrus.Logger

	mu     sync.Mutex
	state  State
	closed bool
}

// New creates an unsubscribed channel. A capacity <= 0 selects DefaultCapacity.
func New(name string, notifier Notifier, capacity int, logger *logrus.Logger) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Channel{
		name:     name,
		notifier: notifier,
		stream:   ringchan.New[[]byte](capacity),
		logger:   logger,
	}
}

// Name returns the channel name used in logs and errors.
func (c *Channel) Name() string {
	return c.name
}

// State returns the current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Values returns the stream of received values. It is closed by Close.
func (c *Channel) Values() <-chan []byte {
	return c.stream.C()
}

// Metrics returns stream counters.
func (c *Channel) Metrics() ringchan.Metrics {
	return c.stream.Metrics()
}

// Subscribe enables notifications. Subscribing an already subscribed channel is a no-op.
func (c *Channel) Subscribe() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case Subscribed:
		c.mu.Unlock()
		return nil
	case Subscribing, Unsubscribing:
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = Subscribing
	c.mu.Unlock()

	err := c.notifier.EnableNotifications(c.deliver)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Unsubscribed
		c.logger.WithFields(logrus.Fields{
			"channel": c.name,
			"error":   err,
		}).Error("Failed to subscribe")
		return &ancs.TransportError{Op: "subscribe " + c.name, Err: err}
	}

	c.state = Subscribed
	c.logger.WithField("channel", c.name).Debug("Subscribed")
	return nil
}

// Unsubscribe disables notifications. The channel always ends Unsubscribed; a transport
// failure is still returned.
func (c *Channel) Unsubscribe() error {
	c.mu.Lock()
	switch c.state {
	case Unsubscribed:
		c.mu.Unlock()
		return nil
	case Subscribing, Unsubscribing:
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = Unsubscribing
	c.mu.Unlock()

	err := c.notifier.DisableNotifications()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Unsubscribed
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"channel": c.name,
			"error":   err,
		}).Warn("Failed to unsubscribe")
		return &ancs.TransportError{Op: "unsubscribe " + c.name, Err: err}
	}

	c.logger.WithField("channel", c.name).Debug("Unsubscribed")
	return nil
}

// Close unsubscribes if needed and closes the value stream.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.Unsubscribe()
	c.stream.Close()
	return err
}

func (c *Channel) deliver(data []byte) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state != Subscribing && state != Subscribed {
		c.logger.WithFields(logrus.Fields{
			"channel": c.name,
			"state":   state,
			"bytes":   len(data),
		}).Debug("Dropping notification for inactive subscription")
		return
	}

	before := c.stream.Metrics().Overwritten

	// The transport reuses its buffer.
	value := make([]byte, len(data))
	copy(value, data)
	if !c.stream.Send(value) {
		return
	}

	if after := c.stream.Metrics().Overwritten; after > before {
		c.logger.WithFields(logrus.Fields{
			"channel":     c.name,
			"overwritten": after,
		}).Warn("Consumer too slow, dropped oldest notification")
	}
}
