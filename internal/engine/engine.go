// Package engine correlates ANCS events with their attribute responses and emits
// notification lifecycle events.
//
// Events, notification attributes and app attributes arrive independently over the
// Notification Source and Data Source. The engine tracks one record per notification UID,
// requests the attributes it needs through a ControlPoint, parks notifications whose app
// is not yet known, and emits Added/Modified/Removed once a notification is complete.
//
// Requests are fire-and-forget: responses come back later through OnNotificationAttributes
// and OnAppAttributes.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/ancs/internal/ancs"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	// ErrUnknownNotification is returned for actions on a UID the engine does not track.
	ErrUnknownNotification = errors.New("unknown notification")
	// ErrActionUnavailable is returned for actions the notification does not offer.
	ErrActionUnavailable = errors.New("action not available")
)

// ControlPoint issues ANCS commands. Results arrive asynchronously on the Data Source.
type ControlPoint interface {
	RequestNotificationAttributes(uid uint32, ids []ancs.NotificationAttributeID) error
	RequestAppAttributes(appID string, ids []ancs.AppAttributeID) error
	PerformAction(uid uint32, action ancs.ActionID) error
}

// Handler receives lifecycle events. It runs with the engine locked and must not call
// back into the engine.
type Handler func(Notification)

// DefaultNotificationAttributes are requested for every Added or Modified event.
var DefaultNotificationAttributes = []ancs.NotificationAttributeID{
	ancs.NotificationAttributeAppIdentifier,
	ancs.NotificationAttributeTitle,
	ancs.NotificationAttributeSubtitle,
	ancs.NotificationAttributeMessage,
	ancs.NotificationAttributeDate,
}

var appAttributeIDs = []ancs.AppAttributeID{ancs.AppAttributeDisplayName}

// record is the retained view of a live notification.
type record struct {
	uid     uint32
	latest  ancs.NotificationEvent
	appID   string
	pending bool // notification attribute request outstanding
	stale   bool // a newer event arrived while pending
	emitted bool
}

// appQueue holds notifications waiting for their app's attributes, in arrival order.
type appQueue struct {
	items     *orderedmap.OrderedMap[uint32, ancs.NotificationAttributes]
	requested bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithNotificationAttributes replaces the attribute set requested for each event.
// AppIdentifier is always requested.
func WithNotificationAttributes(ids ...ancs.NotificationAttributeID) Option {
	return func(e *Engine) {
		e.attributes = []ancs.NotificationAttributeID{ancs.NotificationAttributeAppIdentifier}
		for _, id := range ids {
			if id != ancs.NotificationAttributeAppIdentifier {
				e.attributes = append(e.attributes, id)
			}
		}
	}
}

// Engine is the correlation engine. All methods are safe for concurrent use.
type Engine struct {
	mu         sync.Mutex
	cp         ControlPoint
	handler    Handler
	logger     *logrus.Logger
	attributes []ancs.NotificationAttributeID

	records map[uint32]*record
	apps    map[string]ancs.AppAttributes
	pending map[string]*appQueue
}

// New creates an engine issuing commands through cp and emitting to handler.
func New(cp ControlPoint, handler Handler, opts ...Option) *Engine {
	e := &Engine{
		cp:         cp,
		handler:    handler,
		logger:     logrus.New(),
		attributes: DefaultNotificationAttributes,
		records:    make(map[uint32]*record),
		apps:       make(map[string]ancs.AppAttributes),
		pending:    make(map[string]*appQueue),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnNotificationEvent ingests a decoded Notification Source record.
func (e *Engine) OnNotificationEvent(ev ancs.NotificationEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ev.UID == 0 {
		e.logger.WithField("event", ev.Kind).Debug("Dropping event with zero UID")
		return
	}

	switch ev.Kind {
	case ancs.EventRemoved:
		e.remove(ev)
		return
	case ancs.EventAdded, ancs.EventModified:
	default:
		e.logger.WithFields(logrus.Fields{
			"uid":  ev.UID,
			"kind": ev.Kind,
		}).Warn("Dropping event of unknown kind")
		return
	}

	if ev.PreExisting() {
		e.logger.WithField("uid", ev.UID).Debug("Ignoring pre-existing notification")
		return
	}

	rec, ok := e.records[ev.UID]
	if !ok {
		rec = &record{uid: ev.UID}
		e.records[ev.UID] = rec
	}
	rec.latest = ev

	e.requestNotificationAttributes(rec)
}

// OnNotificationAttributes ingests a Get Notification Attributes response.
func (e *Engine) OnNotificationAttributes(attrs ancs.NotificationAttributes) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.records[attrs.UID]
	if !ok {
		return
	}
	rec.pending = false
	if attrs.AppIdentifier != "" {
		rec.appID = attrs.AppIdentifier
	}

	switch app, cached := e.apps[attrs.AppIdentifier]; {
	case attrs.AppIdentifier == "":
		e.emit(rec, attrs, ancs.AppAttributes{})
	case cached:
		e.emit(rec, attrs, app)
	default:
		e.enqueue(attrs)
	}

	if rec.stale {
		e.requestNotificationAttributes(rec)
	}
}

// OnAppAttributes ingests a Get App Attributes response and releases the notifications
// waiting for it.
func (e *Engine) OnAppAttributes(app ancs.AppAttributes) {
	e.mu.Lock()
	defer e.mu.Unlock()

	q, queued := e.pending[app.AppIdentifier]
	if _, cached := e.apps[app.AppIdentifier]; !queued && !cached {
		e.logger.WithField("app", app.AppIdentifier).Debug("Ignoring unsolicited app attributes")
		return
	}

	e.apps[app.AppIdentifier] = app
	if !queued {
		return
	}
	delete(e.pending, app.AppIdentifier)

	for pair := q.items.Oldest(); pair != nil; pair = pair.Next() {
		if rec, ok := e.records[pair.Key]; ok {
			e.emit(rec, pair.Value, app)
		}
	}
}

// Reset drops all state. Responses to requests issued before Reset are ignored.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.records) == 0 && len(e.apps) == 0 && len(e.pending) == 0 {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"notifications": len(e.records),
		"apps":          len(e.apps),
		"queued_apps":   len(e.pending),
	}).Debug("Resetting engine")

	e.records = make(map[uint32]*record)
	e.apps = make(map[string]ancs.AppAttributes)
	e.pending = make(map[string]*appQueue)
}

// PerformAction asks the phone to run a notification action.
func (e *Engine) PerformAction(uid uint32, action ancs.ActionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.records[uid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNotification, uid)
	}

	var offered bool
	switch action {
	case ancs.ActionPositive:
		offered = rec.latest.PositiveAction()
	case ancs.ActionNegative:
		offered = rec.latest.NegativeAction()
	}
	if !offered {
		return fmt.Errorf("%w: %s on %d", ErrActionUnavailable, action, uid)
	}

	if err := e.cp.PerformAction(uid, action); err != nil {
		return fmt.Errorf("perform %s on %d: %w", action, uid, err)
	}
	return nil
}

// RetryPendingApps re-issues the app attribute request for every app whose earlier
// request failed. Apps with a request in flight are left alone.
func (e *Engine) RetryPendingApps() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for appID, q := range e.pending {
		if q.requested {
			continue
		}
		if err := e.requestAppAttributes(appID, q); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats is a snapshot of engine state sizes.
type Stats struct {
	Notifications int // tracked UIDs
	Apps          int // cached app attributes
	QueuedApps    int // apps with a pending queue entry
	Queued        int // notifications waiting for app attributes
}

// Stats returns the current state sizes.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		Notifications: len(e.records),
		Apps:          len(e.apps),
		QueuedApps:    len(e.pending),
	}
	for _, q := range e.pending {
		s.Queued += q.items.Len()
	}
	return s
}

func (e *Engine) requestNotificationAttributes(rec *record) {
	if rec.pending {
		rec.stale = true
		return
	}

	ids := e.attributes
	if rec.latest.PositiveAction() || rec.latest.NegativeAction() {
		ids = append([]ancs.NotificationAttributeID(nil), e.attributes...)
		if rec.latest.PositiveAction() {
			ids = append(ids, ancs.NotificationAttributePositiveActionLabel)
		}
		if rec.latest.NegativeAction() {
			ids = append(ids, ancs.NotificationAttributeNegativeActionLabel)
		}
	}

	if err := e.cp.RequestNotificationAttributes(rec.uid, ids); err != nil {
		e.logger.WithFields(logrus.Fields{
			"uid":   rec.uid,
			"error": err,
		}).Error("Failed to request notification attributes")
		return
	}
	rec.pending = true
	rec.stale = false
}

func (e *Engine) enqueue(attrs ancs.NotificationAttributes) {
	q, ok := e.pending[attrs.AppIdentifier]
	if !ok {
		q = &appQueue{items: orderedmap.New[uint32, ancs.NotificationAttributes]()}
		e.pending[attrs.AppIdentifier] = q
	}
	q.items.Set(attrs.UID, attrs)

	if !ok {
		// Failure keeps the entry; RetryPendingApps picks it up.
		_ = e.requestAppAttributes(attrs.AppIdentifier, q)
	}
}

func (e *Engine) requestAppAttributes(appID string, q *appQueue) error {
	if err := e.cp.RequestAppAttributes(appID, appAttributeIDs); err != nil {
		e.logger.WithFields(logrus.Fields{
			"app":    appID,
			"queued": q.items.Len(),
			"error":  err,
		}).Error("Failed to request app attributes")
		return fmt.Errorf("request app attributes for %s: %w", appID, err)
	}
	q.requested = true
	return nil
}

func (e *Engine) remove(ev ancs.NotificationEvent) {
	n := Notification{Kind: Removed, UID: ev.UID, Event: ev}
	if rec, ok := e.records[ev.UID]; ok {
		n.AppIdentifier = rec.appID
		n.App = e.apps[rec.appID]
		delete(e.records, ev.UID)
	}

	for appID, q := range e.pending {
		q.items.Delete(ev.UID)
		if q.items.Len() == 0 && !q.requested {
			delete(e.pending, appID)
		}
	}

	if e.handler != nil {
		e.handler(n)
	}
}

func (e *Engine) emit(rec *record, attrs ancs.NotificationAttributes, app ancs.AppAttributes) {
	kind := Modified
	if !rec.emitted {
		kind = Added
		rec.emitted = true
	}

	if e.handler == nil {
		return
	}
	e.handler(Notification{
		Kind:                kind,
		UID:                 rec.uid,
		Event:               rec.latest,
		AppIdentifier:       attrs.AppIdentifier,
		App:                 app,
		Title:               attrs.Title,
		Subtitle:            attrs.Subtitle,
		Message:             attrs.Message,
		Date:                attrs.Date,
		PositiveActionLabel: attrs.PositiveActionLabel,
		NegativeActionLabel: attrs.NegativeActionLabel,
	})
}
