package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/ancs/internal/ancs"
	"github.com/srg/ancs/internal/engine"
	"github.com/srg/ancs/internal/testutils"
	"github.com/srg/ancs/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SessionTestSuite struct {
	suite.Suite
	phone   *testutils.Phone
	hook    *logtest.Hook
	session *Session

	mu      sync.Mutex
	emitted []engine.Notification
}

func (s *SessionTestSuite) SetupTest() {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s.hook = hook
	s.phone = testutils.NewPhone(20)
	s.emitted = nil

	s.session = New(s.phone, s.collect, config.DefaultConfig(), logger)
}

func (s *SessionTestSuite) TearDownTest() {
	_ = s.session.Stop()
}

func (s *SessionTestSuite) collect(n engine.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitted = append(s.emitted, n)
}

func (s *SessionTestSuite) notifications() []engine.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Notification(nil), s.emitted...)
}

func (s *SessionTestSuite) waitFor(count int) []engine.Notification {
	s.Require().Eventually(func() bool { return len(s.notifications()) >= count }, 2*time.Second, 5*time.Millisecond,
		"MUST emit %d notifications", count)
	return s.notifications()
}

func (s *SessionTestSuite) TestStartSubscribesDataSourceFirst() {
	// GOAL: Verify the Data Source is listening before the Notification Source starts replaying
	//
	// TEST SCENARIO: Start → enable ds then enable ns → second Start rejected

	s.Require().NoError(s.session.Start(context.Background()))

	s.Assert().Equal([]string{"enable ds", "enable ns"}, s.phone.Ops())
	s.Assert().ErrorIs(s.session.Start(context.Background()), ErrAlreadyStarted)
	s.Assert().NotEqual([16]byte{}, [16]byte(s.session.ID()))
}

func (s *SessionTestSuite) TestStartRollsBackOnFailure() {
	// GOAL: Verify a failed Notification Source subscribe leaves nothing subscribed
	//
	// TEST SCENARIO: ns enable fails → Start error → ds disabled again

	s.phone.NS.EnableErr = errors.New("insufficient authentication")

	err := s.session.Start(context.Background())

	var te *ancs.TransportError
	s.Require().ErrorAs(err, &te)
	s.Assert().Equal([]string{"enable ds", "enable ns", "disable ds"}, s.phone.Ops())
}

func (s *SessionTestSuite) TestEndToEndFragmented() {
	// GOAL: Verify events flow through the loop, assembler and engine with fragmented responses
	//
	// TEST SCENARIO: Phone posts UID 42 for com.chat.app → responses split into 20-byte
	// notifications → Added with app name "Chat" → Removed

	s.phone.AddApp("com.chat.app", "Chat")
	s.Require().NoError(s.session.Start(context.Background()))

	s.phone.Post(ancs.NotificationEvent{Kind: ancs.EventAdded, Category: ancs.CategorySocial, UID: 42}, ancs.NotificationAttributes{
		AppIdentifier: "com.chat.app",
		Title:         "Alice",
		Message:       "Are we still on for lunch tomorrow?",
	})

	got := s.waitFor(1)
	s.Assert().Equal(engine.Added, got[0].Kind)
	s.Assert().Equal(uint32(42), got[0].UID)
	s.Assert().Equal("Chat", got[0].AppName())
	s.Assert().Equal("Are we still on for lunch tomorrow?", got[0].Message)

	s.phone.NS.Notify(ancs.NotificationEvent{Kind: ancs.EventRemoved, UID: 42}.Encode())

	got = s.waitFor(2)
	s.Assert().Equal(engine.Removed, got[1].Kind)
	s.Assert().Eventually(func() bool { return s.session.Stats().Notifications == 0 }, time.Second, 5*time.Millisecond)
}

func (s *SessionTestSuite) TestMalformedRecordLogged() {
	s.Require().NoError(s.session.Start(context.Background()))

	s.phone.NS.Notify([]byte{0x00, 0x01})

	s.Require().Eventually(func() bool {
		for _, e := range s.hook.AllEntries() {
			if e.Message == "Dropping malformed notification source record" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	s.Assert().Empty(s.notifications())
}

func (s *SessionTestSuite) TestPerformAction() {
	// GOAL: Verify actions reach the Control Point only for offered actions
	//
	// TEST SCENARIO: Post with negative action → Negative accepted and written → Positive rejected

	s.Require().NoError(s.session.Start(context.Background()))
	s.phone.Post(ancs.NotificationEvent{Kind: ancs.EventAdded, Flags: ancs.FlagNegativeAction, UID: 9}, ancs.NotificationAttributes{
		Title:               "Call",
		NegativeActionLabel: "Decline",
	})
	got := s.waitFor(1)
	s.Assert().Equal("Decline", got[0].NegativeActionLabel)

	s.Require().NoError(s.session.PerformAction(9, ancs.ActionNegative))
	writes := s.phone.Writes()
	s.Assert().Equal(ancs.EncodeActionRequest(9, ancs.ActionNegative), writes[len(writes)-1])

	s.Assert().ErrorIs(s.session.PerformAction(9, ancs.ActionPositive), engine.ErrActionUnavailable)
}

func (s *SessionTestSuite) TestRetryPendingAppsIdle() {
	s.Require().NoError(s.session.Start(context.Background()))
	writes := len(s.phone.Writes())

	s.Assert().NoError(s.session.RetryPendingApps())
	s.Assert().Len(s.phone.Writes(), writes, "nothing pending MUST write nothing")
}

func (s *SessionTestSuite) TestStopTearsDown() {
	// GOAL: Verify Stop is the single teardown path: loop ends, both channels unsubscribed, state dropped
	//
	// TEST SCENARIO: Start → post → Stop → Done closed, ns and ds disabled, engine empty → Start rejected

	s.Require().NoError(s.session.Start(context.Background()))
	s.phone.Post(ancs.NotificationEvent{Kind: ancs.EventAdded, UID: 3}, ancs.NotificationAttributes{Title: "x"})
	s.waitFor(1)

	s.Require().NoError(s.session.Stop())
	s.Require().NoError(s.session.Stop())

	select {
	case <-s.session.Done():
	default:
		s.Fail("loop MUST have exited")
	}
	s.Assert().Equal([]string{"enable ds", "enable ns", "disable ns", "disable ds"}, s.phone.Ops())
	s.Assert().Equal(engine.Stats{}, s.session.Stats())
	s.Assert().ErrorIs(s.session.Start(context.Background()), ErrStopped)
}

func (s *SessionTestSuite) TestConnectionLossEndsLoop() {
	s.Require().NoError(s.session.Start(context.Background()))

	s.phone.Disconnect()

	s.Require().Eventually(func() bool {
		select {
		case <-s.session.Done():
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func (s *SessionTestSuite) TestContextCancelEndsLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	s.Require().NoError(s.session.Start(ctx))

	cancel()

	s.Require().Eventually(func() bool {
		select {
		case <-s.session.Done():
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func TestControlPoint_WritesAndExpects(t *testing.T) {
	phone := testutils.NewPhone(0)
	assembler := ancs.NewAssembler(0, 0)
	cp := NewControlPoint(phone, assembler, 100, nil)

	require.NoError(t, cp.RequestAppAttributes("com.x", []ancs.AppAttributeID{ancs.AppAttributeDisplayName}))
	require.NoError(t, cp.PerformAction(1, ancs.ActionPositive))

	_, expected := assembler.Pending()
	assert.Equal(t, 1, expected, "actions MUST NOT register an expectation")
	assert.Equal(t, [][]byte{
		ancs.EncodeAppAttributesRequest("com.x", []ancs.AppAttributeID{ancs.AppAttributeDisplayName}),
		ancs.EncodeActionRequest(1, ancs.ActionPositive),
	}, phone.Writes())
}

func TestControlPoint_WriteFailure(t *testing.T) {
	phone := testutils.NewPhone(0)
	cause := ancs.ErrCodeInvalidParameter
	phone.FailWrites(cause)
	assembler := ancs.NewAssembler(0, 0)
	cp := NewControlPoint(phone, assembler, 0, nil)

	err := cp.RequestNotificationAttributes(5, []ancs.NotificationAttributeID{ancs.NotificationAttributeTitle})

	var te *ancs.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "write GetNotificationAttributes", te.Op)
	assert.ErrorIs(t, err, cause)
	_, expected := assembler.Pending()
	assert.Zero(t, expected, "failed write MUST withdraw its expectation")
	assert.Equal(t, ancs.EncodeNotificationAttributesRequest(5, []ancs.NotificationAttributeID{ancs.NotificationAttributeTitle}), phone.Writes()[0])
}
