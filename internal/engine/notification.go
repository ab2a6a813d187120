package engine

import (
	"fmt"
	"time"

	"github.com/srg/ancs/internal/ancs"
)

// LifecycleKind classifies an emitted notification.
type LifecycleKind int

const (
	// Added is the first surfaced event for a UID, whatever the wire event was.
	Added LifecycleKind = iota
	// Modified is every later surfaced event for the UID.
	Modified
	// Removed is emitted for every wire Removed event.
	Removed
)

func (k LifecycleKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("LifecycleKind(%d)", int(k))
	}
}

// Notification is an emitted lifecycle event. Removed events carry only the UID, the
// wire event, and the app when it was known.
type Notification struct {
	Kind                LifecycleKind
	UID                 uint32
	Event               ancs.NotificationEvent
	AppIdentifier       string
	App                 ancs.AppAttributes
	Title               string
	Subtitle            string
	Message             string
	Date                time.Time
	PositiveActionLabel string
	NegativeActionLabel string
}

// AppName returns the app display name, falling back to the identifier.
func (n Notification) AppName() string {
	if n.App.DisplayName != "" {
		return n.App.DisplayName
	}
	return n.AppIdentifier
}
