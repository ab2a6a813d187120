package ancs

import (
	"encoding/binary"
)

// NotificationEvent is one decoded Notification Source record.
type NotificationEvent struct {
	Kind          EventID    `json:"kind"`
	Flags         EventFlags `json:"flags"`
	Category      CategoryID `json:"category"`
	CategoryCount uint8      `json:"category_count"`
	UID           uint32     `json:"uid"`
}

// PreExisting reports whether the notification was posted before the subscription.
func (e NotificationEvent) PreExisting() bool { return e.Flags.Has(FlagPreExisting) }

// Silent reports whether the phone delivered the notification silently.
func (e NotificationEvent) Silent() bool { return e.Flags.Has(FlagSilent) }

// Important reports whether the notification is marked important.
func (e NotificationEvent) Important() bool { return e.Flags.Has(FlagImportant) }

// PositiveAction reports whether the notification offers a positive action.
func (e NotificationEvent) PositiveAction() bool { return e.Flags.Has(FlagPositiveAction) }

// NegativeAction reports whether the notification offers a negative action.
func (e NotificationEvent) NegativeAction() bool { return e.Flags.Has(FlagNegativeAction) }

// DecodeEvent decodes an 8-byte Notification Source record.
// Unknown kind and category values are kept as-is; callers decide whether they are actionable.
func DecodeEvent(b []byte) (NotificationEvent, error) {
	if len(b) != EventRecordSize {
		return NotificationEvent{}, truncatedf("event record is %d bytes, want %d", len(b), EventRecordSize)
	}

	return NotificationEvent{
		Kind:          EventID(b[0]),
		Flags:         EventFlags(b[1]),
		Category:      CategoryID(b[2]),
		CategoryCount: b[3],
		UID:           binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// Encode returns the wire form of the event.
func (e NotificationEvent) Encode() []byte {
	b := make([]byte, EventRecordSize)
	b[0] = byte(e.Kind)
	b[1] = byte(e.Flags)
	b[2] = byte(e.Category)
	b[3] = e.CategoryCount
	binary.LittleEndian.PutUint32(b[4:], e.UID)
	return b
}
