package ancs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected NotificationEvent
	}{
		{
			name:  "added without flags",
			input: []byte{0x00, 0x00, 0x05, 0x00, 0x2A, 0x00, 0x00, 0x00},
			expected: NotificationEvent{
				Kind:     EventAdded,
				Category: CategorySchedule,
				UID:      42,
			},
		},
		{
			name:  "removed",
			input: []byte{0x02, 0x00, 0x00, 0x00, 0x2A, 0x00, 0x00, 0x00},
			expected: NotificationEvent{
				Kind: EventRemoved,
				UID:  42,
			},
		},
		{
			name:  "modified with actions and little-endian uid",
			input: []byte{0x01, 0x18, 0x06, 0x03, 0x78, 0x56, 0x34, 0x12},
			expected: NotificationEvent{
				Kind:          EventModified,
				Flags:         FlagPositiveAction | FlagNegativeAction,
				Category:      CategoryEmail,
				CategoryCount: 3,
				UID:           0x12345678,
			},
		},
		{
			name:  "unknown kind and category are kept",
			input: []byte{0x07, 0x00, 0x40, 0x00, 0x01, 0x00, 0x00, 0x00},
			expected: NotificationEvent{
				Kind:     EventID(7),
				Category: CategoryID(0x40),
				UID:      1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ev)
		})
	}
}

func TestDecodeEvent_WrongLength(t *testing.T) {
	for _, size := range []int{0, 1, 7, 9, 20} {
		_, err := DecodeEvent(make([]byte, size))
		assert.ErrorIs(t, err, ErrTruncated, "size %d MUST be rejected", size)
	}
}

func TestNotificationEvent_Flags(t *testing.T) {
	ev := NotificationEvent{Flags: FlagSilent | FlagPreExisting | FlagNegativeAction}

	assert.True(t, ev.Silent())
	assert.True(t, ev.PreExisting())
	assert.True(t, ev.NegativeAction())
	assert.False(t, ev.Important())
	assert.False(t, ev.PositiveAction())
	assert.Equal(t, "silent,pre-existing,negative-action", ev.Flags.String())
	assert.Equal(t, "none", EventFlags(0).String())
}

func TestNotificationEvent_Encode(t *testing.T) {
	ev := NotificationEvent{
		Kind:          EventModified,
		Flags:         FlagImportant,
		Category:      CategorySocial,
		CategoryCount: 2,
		UID:           0xCAFE,
	}

	b := ev.Encode()
	assert.Equal(t, []byte{0x01, 0x02, 0x04, 0x02, 0xFE, 0xCA, 0x00, 0x00}, b)

	decoded, err := DecodeEvent(b)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "Added", EventAdded.String())
	assert.Equal(t, "Unknown(9)", EventID(9).String())
	assert.False(t, EventID(3).Known())
	assert.Equal(t, "Entertainment", CategoryEntertainment.String())
	assert.Equal(t, "Unknown(12)", CategoryID(12).String())
	assert.Equal(t, "GetAppAttributes", CommandGetAppAttributes.String())
	assert.Equal(t, "NegativeActionLabel", NotificationAttributeNegativeActionLabel.String())
	assert.Equal(t, "DisplayName", AppAttributeDisplayName.String())
	assert.Equal(t, "Negative", ActionNegative.String())
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("positive")
	require.NoError(t, err)
	assert.Equal(t, ActionPositive, a)

	a, err = ParseAction("-")
	require.NoError(t, err)
	assert.Equal(t, ActionNegative, a)

	_, err = ParseAction("dismiss")
	assert.Error(t, err)
}
