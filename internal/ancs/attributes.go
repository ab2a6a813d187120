package ancs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"
)

// attributeHeaderSize is the id byte plus the 2-byte length of one attribute tuple.
const attributeHeaderSize = 3

// DateLayout is the ANCS Date attribute format (UTS #35 yyyyMMdd'T'HHmmSS).
const DateLayout = "20060102T150405"

// Response is a decoded Data Source response.
type Response interface {
	Command() CommandID
}

// AppAttributes is the decoded answer to a Get App Attributes command.
type AppAttributes struct {
	AppIdentifier string                    `json:"app_identifier"`
	DisplayName   string                    `json:"display_name,omitempty"`
	Extra         map[AppAttributeID]string `json:"extra,omitempty"`
}

func (AppAttributes) Command() CommandID { return CommandGetAppAttributes }

// NotificationAttributes is the decoded answer to a Get Notification Attributes command.
type NotificationAttributes struct {
	UID                 uint32                             `json:"uid"`
	AppIdentifier       string                             `json:"app_identifier,omitempty"`
	Title               string                             `json:"title,omitempty"`
	Subtitle            string                             `json:"subtitle,omitempty"`
	Message             string                             `json:"message,omitempty"`
	MessageSize         int                                `json:"message_size,omitempty"`
	Date                time.Time                          `json:"date,omitempty"`
	PositiveActionLabel string                             `json:"positive_action_label,omitempty"`
	NegativeActionLabel string                             `json:"negative_action_label,omitempty"`
	Extra               map[NotificationAttributeID]string `json:"extra,omitempty"`
}

func (NotificationAttributes) Command() CommandID { return CommandGetNotificationAttributes }

// walkAttributes iterates over (id, length, value) tuples in b.
// When limit is negative every tuple up to the end of b is visited; otherwise exactly limit
// tuples are required. It returns the number of bytes consumed.
func walkAttributes(b []byte, limit int, fn func(id uint8, value []byte)) (int, error) {
	off := 0
	for n := 0; limit < 0 || n < limit; n++ {
		if limit < 0 && off == len(b) {
			break
		}
		if len(b)-off < attributeHeaderSize {
			return off, truncatedf("attribute header at offset %d needs %d bytes, have %d", off, attributeHeaderSize, len(b)-off)
		}
		id := b[off]
		size := int(binary.LittleEndian.Uint16(b[off+1 : off+3]))
		off += attributeHeaderSize
		if size > len(b)-off {
			return off, truncatedf("attribute %d declares %d bytes, have %d", id, size, len(b)-off)
		}
		if fn != nil {
			fn(id, b[off:off+size])
		}
		off += size
	}
	return off, nil
}

// notificationHeader validates the command byte and returns the UID and header size.
func notificationHeader(b []byte) (uint32, int, error) {
	if len(b) < 1 {
		return 0, 0, truncatedf("empty notification attributes response")
	}
	if CommandID(b[0]) != CommandGetNotificationAttributes {
		return 0, 0, &ProtocolError{Kind: UnknownCommand, Msg: fmt.Sprintf("expected %s, got %s", CommandGetNotificationAttributes, CommandID(b[0]))}
	}
	if len(b) < 5 {
		return 0, 0, truncatedf("notification attributes header is %d bytes, want 5", len(b))
	}
	return binary.LittleEndian.Uint32(b[1:5]), 5, nil
}

// appHeader validates the command byte and returns the app identifier and header size.
func appHeader(b []byte) (string, int, error) {
	if len(b) < 1 {
		return "", 0, truncatedf("empty app attributes response")
	}
	if CommandID(b[0]) != CommandGetAppAttributes {
		return "", 0, &ProtocolError{Kind: UnknownCommand, Msg: fmt.Sprintf("expected %s, got %s", CommandGetAppAttributes, CommandID(b[0]))}
	}
	end := bytes.IndexByte(b[1:], 0)
	if end < 0 {
		return "", 0, truncatedf("app identifier is not NUL-terminated")
	}
	return string(b[1 : 1+end]), end + 2, nil
}

// DecodeNotificationAttributes decodes a Get Notification Attributes response.
// Unknown attribute ids are skipped into Extra.
func DecodeNotificationAttributes(b []byte) (NotificationAttributes, error) {
	na, _, err := decodeNotificationAttributes(b, -1)
	return na, err
}

func decodeNotificationAttributes(b []byte, count int) (NotificationAttributes, int, error) {
	uid, off, err := notificationHeader(b)
	if err != nil {
		return NotificationAttributes{}, 0, err
	}

	na := NotificationAttributes{UID: uid}
	n, err := walkAttributes(b[off:], count, func(id uint8, value []byte) {
		v := string(value)
		switch NotificationAttributeID(id) {
		case NotificationAttributeAppIdentifier:
			na.AppIdentifier = v
		case NotificationAttributeTitle:
			na.Title = v
		case NotificationAttributeSubtitle:
			na.Subtitle = v
		case NotificationAttributeMessage:
			na.Message = v
		case NotificationAttributeMessageSize:
			na.MessageSize, _ = strconv.Atoi(v)
		case NotificationAttributeDate:
			na.Date, _ = ParseDate(v)
		case NotificationAttributePositiveActionLabel:
			na.PositiveActionLabel = v
		case NotificationAttributeNegativeActionLabel:
			na.NegativeActionLabel = v
		default:
			if na.Extra == nil {
				na.Extra = make(map[NotificationAttributeID]string)
			}
			na.Extra[NotificationAttributeID(id)] = v
		}
	})
	if err != nil {
		return NotificationAttributes{}, 0, err
	}
	return na, off + n, nil
}

// DecodeAppAttributes decodes a Get App Attributes response.
// Unknown attribute ids are skipped into Extra.
func DecodeAppAttributes(b []byte) (AppAttributes, error) {
	aa, _, err := decodeAppAttributes(b, -1)
	return aa, err
}

func decodeAppAttributes(b []byte, count int) (AppAttributes, int, error) {
	appID, off, err := appHeader(b)
	if err != nil {
		return AppAttributes{}, 0, err
	}

	aa := AppAttributes{AppIdentifier: appID}
	n, err := walkAttributes(b[off:], count, func(id uint8, value []byte) {
		if AppAttributeID(id) == AppAttributeDisplayName {
			aa.DisplayName = string(value)
			return
		}
		if aa.Extra == nil {
			aa.Extra = make(map[AppAttributeID]string)
		}
		aa.Extra[AppAttributeID(id)] = string(value)
	})
	if err != nil {
		return AppAttributes{}, 0, err
	}
	return aa, off + n, nil
}

// DecodeResponse dispatches on the leading command byte of a Data Source response.
func DecodeResponse(b []byte) (Response, error) {
	if len(b) == 0 {
		return nil, truncatedf("empty data source response")
	}
	switch CommandID(b[0]) {
	case CommandGetNotificationAttributes:
		return DecodeNotificationAttributes(b)
	case CommandGetAppAttributes:
		return DecodeAppAttributes(b)
	default:
		return nil, &ProtocolError{Kind: UnknownCommand, Msg: fmt.Sprintf("no data source response for %s", CommandID(b[0]))}
	}
}

// ParseDate parses an ANCS Date attribute.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ANCS date %q: %w", s, err)
	}
	return t, nil
}

func appendAttribute(b []byte, id uint8, value string) []byte {
	b = append(b, id)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(value)))
	return append(b, value...)
}

// EncodeNotificationAttributesResponse builds the Data Source bytes the phone would send for
// the given attributes, in the order of ids.
func EncodeNotificationAttributesResponse(na NotificationAttributes, ids []NotificationAttributeID) []byte {
	b := []byte{byte(CommandGetNotificationAttributes)}
	b = binary.LittleEndian.AppendUint32(b, na.UID)
	for _, id := range ids {
		var v string
		switch id {
		case NotificationAttributeAppIdentifier:
			v = na.AppIdentifier
		case NotificationAttributeTitle:
			v = na.Title
		case NotificationAttributeSubtitle:
			v = na.Subtitle
		case NotificationAttributeMessage:
			v = na.Message
		case NotificationAttributeMessageSize:
			v = strconv.Itoa(na.MessageSize)
		case NotificationAttributeDate:
			if !na.Date.IsZero() {
				v = na.Date.Format(DateLayout)
			}
		case NotificationAttributePositiveActionLabel:
			v = na.PositiveActionLabel
		case NotificationAttributeNegativeActionLabel:
			v = na.NegativeActionLabel
		default:
			v = na.Extra[id]
		}
		b = appendAttribute(b, uint8(id), v)
	}
	return b
}

// EncodeAppAttributesResponse builds the Data Source bytes the phone would send for the
// given app attributes, in the order of ids.
func EncodeAppAttributesResponse(aa AppAttributes, ids []AppAttributeID) []byte {
	b := []byte{byte(CommandGetAppAttributes)}
	b = append(b, aa.AppIdentifier...)
	b = append(b, 0)
	for _, id := range ids {
		v := aa.Extra[id]
		if id == AppAttributeDisplayName {
			v = aa.DisplayName
		}
		b = appendAttribute(b, uint8(id), v)
	}
	return b
}
