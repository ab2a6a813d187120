package ancs

import (
	"encoding/binary"
)

// EncodeNotificationAttributesRequest encodes a Get Notification Attributes command using
// DefaultMaxAttributeLength for attributes that take a max length.
func EncodeNotificationAttributesRequest(uid uint32, ids []NotificationAttributeID) []byte {
	return EncodeNotificationAttributesRequestWithLimit(uid, ids, DefaultMaxAttributeLength)
}

// EncodeNotificationAttributesRequestWithLimit encodes a Get Notification Attributes command.
// Title, Subtitle and Message are followed by maxLen as a 2-byte little-endian value.
func EncodeNotificationAttributesRequestWithLimit(uid uint32, ids []NotificationAttributeID, maxLen uint16) []byte {
	b := make([]byte, 0, 5+3*len(ids))
	b = append(b, byte(CommandGetNotificationAttributes))
	b = binary.LittleEndian.AppendUint32(b, uid)
	for _, id := range ids {
		b = append(b, byte(id))
		if id.HasMaxLength() {
			b = binary.LittleEndian.AppendUint16(b, maxLen)
		}
	}
	return b
}

// EncodeAppAttributesRequest encodes a Get App Attributes command.
// The app identifier is NUL-terminated on the wire.
func EncodeAppAttributesRequest(appID string, ids []AppAttributeID) []byte {
	b := make([]byte, 0, len(appID)+2+len(ids))
	b = append(b, byte(CommandGetAppAttributes))
	b = append(b, appID...)
	b = append(b, 0)
	for _, id := range ids {
		b = append(b, byte(id))
	}
	return b
}

// EncodeActionRequest encodes a Perform Notification Action command.
func EncodeActionRequest(uid uint32, action ActionID) []byte {
	b := make([]byte, 0, 6)
	b = append(b, byte(CommandPerformNotificationAction))
	b = binary.LittleEndian.AppendUint32(b, uid)
	return append(b, byte(action))
}
