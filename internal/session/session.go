// Package session runs one ANCS consumer session: it subscribes to the Notification
// Source and Data Source, feeds everything through a single processing loop into the
// correlation engine, and tears the whole thing down through Stop.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/ancs/internal/ancs"
	"github.com/srg/ancs/internal/engine"
	"github.com/srg/ancs/internal/groutine"
	"github.com/srg/ancs/internal/subscription"
	"github.com/srg/ancs/pkg/config"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrStopped        = errors.New("session stopped")
)

// Conn is the connected ANCS peer.
type Conn interface {
	Writer
	NotificationSource() subscription.Notifier
	DataSource() subscription.Notifier
	// Done is closed when the link to the phone is lost.
	Done() <-chan struct{}
}

// Session owns the engine, the two subscriptions and the processing loop.
type Session struct {
	id        uuid.UUID
	conn      Conn
	logger    *logrus.Logger
	log       *logrus.Entry
	ns        *subscription.Channel
	ds        *subscription.Channel
	assembler *ancs.Assembler
	engine    *engine.Engine
	now       func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    <-chan struct{}
}

// New wires a session over conn. handler receives every lifecycle event from the loop
// goroutine.
func New(conn Conn, handler engine.Handler, cfg *config.Config, logger *logrus.Logger) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = cfg.NewLogger()
	}

	id := uuid.New()
	assembler := ancs.NewAssembler(ancs.DefaultAssemblerCapacity, cfg.FragmentTimeout)
	cp := NewControlPoint(conn, assembler, cfg.MaxAttributeLength, logger)

	return &Session{
		id:        id,
		conn:      conn,
		logger:    logger,
		log:       logger.WithField("session", id.String()),
		ns:        subscription.New("notification-source", conn.NotificationSource(), cfg.ChannelBuffer, logger),
		ds:        subscription.New("data-source", conn.DataSource(), cfg.ChannelBuffer, logger),
		assembler: assembler,
		engine: engine.New(cp, handler,
			engine.WithLogger(logger),
			engine.WithNotificationAttributes(cfg.NotificationAttributes()...)),
		now: time.Now,
	}
}

// ID returns the session identifier attached to every log line.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Start subscribes to the Data Source, then the Notification Source, and starts the loop.
// The phone only replays notifications once the Notification Source is subscribed, so the
// Data Source must already be listening.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}

	if err := s.ds.Subscribe(); err != nil {
		return fmt.Errorf("failed to subscribe to data source: %w", err)
	}
	if err := s.ns.Subscribe(); err != nil {
		if uerr := s.ds.Unsubscribe(); uerr != nil {
			s.log.WithError(uerr).Warn("Failed to roll back data source subscription")
		}
		return fmt.Errorf("failed to subscribe to notification source: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = groutine.Go(loopCtx, "ancs-session", s.loop)
	s.started = true

	s.log.Info("ANCS session started")
	return nil
}

// Done is closed when the processing loop exits: on context cancellation, connection loss,
// or Stop. It is nil before Start.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// PerformAction runs a notification action on the phone.
func (s *Session) PerformAction(uid uint32, action ancs.ActionID) error {
	err := s.engine.PerformAction(uid, action)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"uid":    uid,
			"action": action,
			"error":  err,
		}).Warn("Action rejected")
	}
	return err
}

// RetryPendingApps re-issues app attribute requests whose earlier write failed.
func (s *Session) RetryPendingApps() error {
	return s.engine.RetryPendingApps()
}

// Stats returns engine state sizes.
func (s *Session) Stats() engine.Stats {
	return s.engine.Stats()
}

// Stop is the only teardown path. It stops the loop, unsubscribes both characteristics
// and drops all notification state. Calling it again is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	var errs []error
	if err := s.ns.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.ds.Close(); err != nil {
		errs = append(errs, err)
	}

	s.assembler.Reset()
	s.engine.Reset()

	if err := errors.Join(errs...); err != nil {
		s.log.WithError(err).Warn("ANCS session stopped with errors")
		return err
	}
	s.log.Info("ANCS session stopped")
	return nil
}

func (s *Session) loop(ctx context.Context) {
	log := s.log.WithField("goroutine", groutine.GetName(ctx))
	log.Debug("Processing loop started")
	defer log.Debug("Processing loop exited")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.conn.Done():
			log.Warn("Connection to phone lost")
			return
		case b, ok := <-s.ns.Values():
			if !ok {
				return
			}
			s.handleEvent(b)
		case b, ok := <-s.ds.Values():
			if !ok {
				return
			}
			s.handleData(b)
		}
	}
}

func (s *Session) handleEvent(b []byte) {
	ev, err := ancs.DecodeEvent(b)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"data":  hex.EncodeToString(b),
			"error": err,
		}).Warn("Dropping malformed notification source record")
		return
	}

	s.log.WithFields(logrus.Fields{
		"uid":      ev.UID,
		"kind":     ev.Kind,
		"flags":    ev.Flags,
		"category": ev.Category,
	}).Debug("Notification event")
	s.engine.OnNotificationEvent(ev)
}

func (s *Session) handleData(b []byte) {
	responses, err := s.assembler.Feed(b, s.now())
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"bytes": len(b),
			"error": err,
		}).Warn("Dropping data source bytes")
	}

	for _, resp := range responses {
		switch r := resp.(type) {
		case ancs.NotificationAttributes:
			s.engine.OnNotificationAttributes(r)
		case ancs.AppAttributes:
			s.engine.OnAppAttributes(r)
		}
	}
}
