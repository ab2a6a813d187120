package ancs

import "fmt"

// ANCS GATT service and characteristic UUIDs.
const (
	ServiceUUID            = "7905F431-B5CE-4E99-A40F-4B1E122D00D0"
	NotificationSourceUUID = "9FBF120D-6301-42D9-8C58-25E699A21DBD"
	ControlPointUUID       = "69D1D8F3-45E1-49A8-9821-9BBDFDAAD9D9"
	DataSourceUUID         = "22EAC6E9-24D6-4BB5-BE44-B36ACE7C7BFB"
)

// EventRecordSize is the size of a Notification Source record.
const EventRecordSize = 8

// DefaultMaxAttributeLength is the max length requested for Title, Subtitle and Message.
const DefaultMaxAttributeLength uint16 = 0xFFFF

// EventID is the kind of a Notification Source event.
type EventID uint8

const (
	EventAdded EventID = iota
	EventModified
	EventRemoved
)

// Known reports whether the value is defined by ANCS.
func (e EventID) Known() bool {
	return e <= EventRemoved
}

func (e EventID) String() string {
	switch e {
	case EventAdded:
		return "Added"
	case EventModified:
		return "Modified"
	case EventRemoved:
		return "Removed"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(e))
	}
}

// EventFlags is the Notification Source flag bitmask.
type EventFlags uint8

const (
	FlagSilent EventFlags = 1 << iota
	FlagImportant
	FlagPreExisting
	FlagPositiveAction
	FlagNegativeAction
)

// Has reports whether all bits of f are set.
func (ef EventFlags) Has(f EventFlags) bool {
	return ef&f == f
}

func (ef EventFlags) String() string {
	names := []struct {
		flag EventFlags
		name string
	}{
		{FlagSilent, "silent"},
		{FlagImportant, "important"},
		{FlagPreExisting, "pre-existing"},
		{FlagPositiveAction, "positive-action"},
		{FlagNegativeAction, "negative-action"},
	}

	s := ""
	for _, n := range names {
		if ef.Has(n.flag) {
			if s != "" {
				s += ","
			}
			s += n.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// CategoryID classifies a notification.
type CategoryID uint8

const (
	CategoryOther CategoryID = iota
	CategoryIncomingCall
	CategoryMissedCall
	CategoryVoicemail
	CategorySocial
	CategorySchedule
	CategoryEmail
	CategoryNews
	CategoryHealthAndFitness
	CategoryBusinessAndFinance
	CategoryLocation
	CategoryEntertainment
)

var categoryNames = [...]string{
	"Other",
	"IncomingCall",
	"MissedCall",
	"Voicemail",
	"Social",
	"Schedule",
	"Email",
	"News",
	"HealthAndFitness",
	"BusinessAndFinance",
	"Location",
	"Entertainment",
}

// Known reports whether the value is defined by ANCS.
func (c CategoryID) Known() bool {
	return int(c) < len(categoryNames)
}

func (c CategoryID) String() string {
	if c.Known() {
		return categoryNames[c]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(c))
}

// CommandID is the leading byte of Control Point commands and Data Source responses.
type CommandID uint8

const (
	CommandGetNotificationAttributes CommandID = iota
	CommandGetAppAttributes
	CommandPerformNotificationAction
)

func (c CommandID) String() string {
	switch c {
	case CommandGetNotificationAttributes:
		return "GetNotificationAttributes"
	case CommandGetAppAttributes:
		return "GetAppAttributes"
	case CommandPerformNotificationAction:
		return "PerformNotificationAction"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// NotificationAttributeID identifies a notification attribute.
type NotificationAttributeID uint8

const (
	NotificationAttributeAppIdentifier NotificationAttributeID = iota
	NotificationAttributeTitle
	NotificationAttributeSubtitle
	NotificationAttributeMessage
	NotificationAttributeMessageSize
	NotificationAttributeDate
	NotificationAttributePositiveActionLabel
	NotificationAttributeNegativeActionLabel
)

// HasMaxLength reports whether requests for this attribute carry a 2-byte max length.
func (id NotificationAttributeID) HasMaxLength() bool {
	switch id {
	case NotificationAttributeTitle, NotificationAttributeSubtitle, NotificationAttributeMessage:
		return true
	default:
		return false
	}
}

func (id NotificationAttributeID) String() string {
	switch id {
	case NotificationAttributeAppIdentifier:
		return "AppIdentifier"
	case NotificationAttributeTitle:
		return "Title"
	case NotificationAttributeSubtitle:
		return "Subtitle"
	case NotificationAttributeMessage:
		return "Message"
	case NotificationAttributeMessageSize:
		return "MessageSize"
	case NotificationAttributeDate:
		return "Date"
	case NotificationAttributePositiveActionLabel:
		return "PositiveActionLabel"
	case NotificationAttributeNegativeActionLabel:
		return "NegativeActionLabel"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(id))
	}
}

// AppAttributeID identifies an app attribute.
type AppAttributeID uint8

const (
	AppAttributeDisplayName AppAttributeID = iota
)

func (id AppAttributeID) String() string {
	if id == AppAttributeDisplayName {
		return "DisplayName"
	}
	return fmt.Sprintf("Unknown(%d)", uint8(id))
}

// ActionID selects the action performed on a notification.
type ActionID uint8

const (
	ActionPositive ActionID = iota
	ActionNegative
)

// Known reports whether the value is defined by ANCS.
func (a ActionID) Known() bool {
	return a <= ActionNegative
}

func (a ActionID) String() string {
	switch a {
	case ActionPositive:
		return "Positive"
	case ActionNegative:
		return "Negative"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(a))
	}
}

// ParseAction maps a user-facing action name to an ActionID.
func ParseAction(s string) (ActionID, error) {
	switch s {
	case "positive", "Positive", "+":
		return ActionPositive, nil
	case "negative", "Negative", "-":
		return ActionNegative, nil
	default:
		return 0, fmt.Errorf("invalid action %q: use positive or negative", s)
	}
}
