package main

import (
	"testing"

	"github.com/srg/ancs/internal/ancs"
	"github.com/srg/ancs/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type DecodeCommandTestSuite struct {
	CommandTestSuite
}

func (s *DecodeCommandTestSuite) TestDecodeEventText() {
	// GOAL: Verify a Notification Source record is printed field by field in wire order
	//
	// TEST SCENARIO: Added, flags 0x18, Social, count 1, UID 42 → aligned text table

	out, _, err := s.ExecuteCommand(rootCmd, "decode", "event", "00 18 04 01 2a 00 00 00")

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, ""+
		"kind:            Added\n"+
		"uid:             42\n"+
		"category:        Social\n"+
		"category_count:  1\n"+
		"flags:           positive-action,negative-action\n")
}

func (s *DecodeCommandTestSuite) TestDecodeEventSplitArgs() {
	out, _, err := s.ExecuteCommand(rootCmd, "decode", "event", "0x02", "00:00:00", "07-00-00-00")

	s.Require().NoError(err)
	s.Assert().Contains(out, "Removed")
	s.Assert().Contains(out, "uid:             7\n")
}

func (s *DecodeCommandTestSuite) TestDecodeNotificationResponseJSON() {
	// GOAL: Verify a Get Notification Attributes response decodes to JSON with only present fields
	//
	// TEST SCENARIO: UID 42, Title "Alice" → {"command", "uid", "title"}

	out, _, err := s.ExecuteCommand(rootCmd, "decode", "response", "00 2a000000 01 0500 416c696365", "--format", "json")

	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).WithOptions(testutils.WithIgnoreExtraKeys(false)).Assert(out, `{
		"command": "GetNotificationAttributes",
		"uid": 42,
		"title": "Alice"
	}`)
}

func (s *DecodeCommandTestSuite) TestDecodeAppResponseYAML() {
	// "com.chat" NUL, DisplayName "Chat"
	out, _, err := s.ExecuteCommand(rootCmd, "decode", "response", "01 636f6d2e63686174 00 00 0400 43686174", "--format", "yaml")

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, ""+
		"command: GetAppAttributes\n"+
		"app_identifier: com.chat\n"+
		"display_name: Chat\n")
}

func (s *DecodeCommandTestSuite) TestDecodeErrors() {
	_, _, err := s.ExecuteCommand(rootCmd, "decode", "event", "zz")
	s.Assert().ErrorContains(err, "invalid hex input")

	_, _, err = s.ExecuteCommand(rootCmd, "decode", "event", "00 01")
	s.Assert().ErrorIs(err, ancs.ErrTruncated)

	_, _, err = s.ExecuteCommand(rootCmd, "decode", "response", "02 00")
	s.Assert().ErrorIs(err, ancs.ErrUnknownCommand)

	_, _, err = s.ExecuteCommand(rootCmd, "decode", "event", "00", "--format", "cbor")
	s.Assert().ErrorContains(err, "unsupported format")
}

func TestDecodeCommandTestSuite(t *testing.T) {
	suite.Run(t, new(DecodeCommandTestSuite))
}

func TestParseHex(t *testing.T) {
	b, err := parseHex("0x0A 0b:0C-0d")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x0b, 0x0c, 0x0d}, b)

	_, err = parseHex("  ")
	assert.ErrorContains(t, err, "no hex data")

	_, err = parseHex("abc")
	assert.Error(t, err)
}
