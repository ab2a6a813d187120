package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/ancs/internal/ancs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// fakeClient implements the ble.Client methods the connection uses. Calling any other
// method panics on the nil embedded interface.
type fakeClient struct {
	ble.Client

	mu           sync.Mutex
	profile      *ble.Profile
	discoverErr  error
	writeErr     error
	writes       [][]byte
	subscribed   map[string]ble.NotificationHandler
	unsubscribed []string
	cancelled    int
	disconnected chan struct{}
}

func newFakeClient(profile *ble.Profile) *fakeClient {
	return &fakeClient{
		profile:      profile,
		subscribed:   make(map[string]ble.NotificationHandler),
		disconnected: make(chan struct{}),
	}
}

func (f *fakeClient) Addr() ble.Addr { return ble.NewAddr("aa:bb:cc:dd:ee:ff") }

func (f *fakeClient) DiscoverProfile(bool) (*ble.Profile, error) {
	return f.profile, f.discoverErr
}

func (f *fakeClient) Subscribe(c *ble.Characteristic, _ bool, h ble.NotificationHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[key(c.UUID)] = h
	return nil
}

func (f *fakeClient) Unsubscribe(c *ble.Characteristic, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, key(c.UUID))
	delete(f.subscribed, key(c.UUID))
	return nil
}

func (f *fakeClient) WriteCharacteristic(c *ble.Characteristic, v []byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, v)
	return nil
}

func (f *fakeClient) CancelConnection() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	return nil
}

func (f *fakeClient) Disconnected() <-chan struct{} { return f.disconnected }

func ancsProfile(nsProp ble.Property) *ble.Profile {
	return &ble.Profile{Services: []*ble.Service{
		{UUID: ble.UUID16(0x180F)},
		{
			UUID: ServiceUUID,
			Characteristics: []*ble.Characteristic{
				{UUID: NotificationSourceUUID, Property: nsProp},
				{UUID: ControlPointUUID, Property: ble.CharWrite},
				{UUID: DataSourceUUID, Property: ble.CharNotify},
			},
		},
	}}
}

type ConnectionTestSuite struct {
	suite.Suite
	client *fakeClient
	conn   *Connection

	originalDeviceFactory func() (ble.Device, error)
	originalDial          func(context.Context, ble.Addr) (ble.Client, error)
}

func (s *ConnectionTestSuite) SetupTest() {
	s.originalDeviceFactory = DeviceFactory
	s.originalDial = dial

	s.client = newFakeClient(ancsProfile(ble.CharNotify))
	DeviceFactory = func() (ble.Device, error) { return nil, nil }
	dial = func(context.Context, ble.Addr) (ble.Client, error) { return s.client, nil }

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	s.conn = NewConnection(logger)
}

func (s *ConnectionTestSuite) TearDownTest() {
	DeviceFactory = s.originalDeviceFactory
	dial = s.originalDial
}

func (s *ConnectionTestSuite) connect() {
	s.Require().NoError(s.conn.Connect(context.Background(), DefaultConnectOptions("aa:bb:cc:dd:ee:ff")))
}

func (s *ConnectionTestSuite) TestConnectDiscoversANCS() {
	// GOAL: Verify a phone exposing ANCS is connected and its characteristics registered
	//
	// TEST SCENARIO: Connect → connected, Done open → second Connect rejected

	s.connect()

	s.Assert().True(s.conn.IsConnected())
	s.Assert().Equal(3, s.conn.chars.Len())
	select {
	case <-s.conn.Done():
		s.Fail("Done MUST stay open while connected")
	default:
	}
	s.Assert().ErrorIs(s.conn.Connect(context.Background(), DefaultConnectOptions("x")), ErrAlreadyConnected)
}

func (s *ConnectionTestSuite) TestConnectRejectsMissingService() {
	s.client.profile = &ble.Profile{}

	err := s.conn.Connect(context.Background(), DefaultConnectOptions("aa:bb:cc:dd:ee:ff"))

	s.Assert().ErrorContains(err, "ANCS service")
	s.Assert().False(s.conn.IsConnected())
	s.Assert().Equal(1, s.client.cancelled, "failed discovery MUST cancel the connection")
}

func (s *ConnectionTestSuite) TestConnectRejectsMissingNotify() {
	s.client.profile = ancsProfile(ble.CharRead)

	err := s.conn.Connect(context.Background(), DefaultConnectOptions("aa:bb:cc:dd:ee:ff"))

	s.Assert().ErrorContains(err, "notification source characteristic")
	s.Assert().ErrorContains(err, "does not support notify")
}

func (s *ConnectionTestSuite) TestConnectDialFailure() {
	dial = func(context.Context, ble.Addr) (ble.Client, error) { return nil, context.DeadlineExceeded }

	err := s.conn.Connect(context.Background(), DefaultConnectOptions("aa:bb:cc:dd:ee:ff"))

	s.Assert().ErrorIs(err, context.DeadlineExceeded)
}

func (s *ConnectionTestSuite) TestNotifiers() {
	// GOAL: Verify the notifiers subscribe the matching characteristic and forward values
	//
	// TEST SCENARIO: Enable NS → client handler delivers bytes → Disable NS → unsubscribed

	s.connect()

	var got []byte
	s.Require().NoError(s.conn.NotificationSource().EnableNotifications(func(b []byte) { got = b }))
	s.client.subscribed[key(NotificationSourceUUID)]([]byte{1, 2, 3})
	s.Assert().Equal([]byte{1, 2, 3}, got)

	s.Require().NoError(s.conn.NotificationSource().DisableNotifications())
	s.Assert().Equal([]string{key(NotificationSourceUUID)}, s.client.unsubscribed)
}

func (s *ConnectionTestSuite) TestWriteControlPoint() {
	s.connect()

	s.Require().NoError(s.conn.WriteControlPoint([]byte{0x02, 0x01, 0x00, 0x00, 0x00, 0x00}))
	s.Assert().Equal([][]byte{{0x02, 0x01, 0x00, 0x00, 0x00, 0x00}}, s.client.writes)
}

func (s *ConnectionTestSuite) TestWriteControlPointMapsANCSErrors() {
	// GOAL: Verify ATT errors in the ANCS range surface as ancs.ControlPointError
	//
	// TEST SCENARIO: 0xA2 → ErrCodeInvalidParameter; 0x03 → wrapped ATT error

	s.connect()

	s.client.writeErr = ble.ATTError(0xA2)
	err := s.conn.WriteControlPoint([]byte{0x00})
	s.Assert().Equal(ancs.ErrCodeInvalidParameter, err)

	s.client.writeErr = ble.ATTError(0x03)
	err = s.conn.WriteControlPoint([]byte{0x00})
	s.Assert().ErrorIs(err, ble.ATTError(0x03))
	s.Assert().ErrorContains(err, "failed to write control point")
}

func (s *ConnectionTestSuite) TestDisconnect() {
	// GOAL: Verify Disconnect unsubscribes notifying characteristics, cancels the link and closes Done
	//
	// TEST SCENARIO: Connect → Disconnect → 2 unsubscribes, 1 cancel, Done closed → writes fail

	s.connect()

	s.Require().NoError(s.conn.Disconnect())

	s.Assert().ElementsMatch([]string{key(NotificationSourceUUID), key(DataSourceUUID)}, s.client.unsubscribed)
	s.Assert().Equal(1, s.client.cancelled)
	_, open := <-s.conn.Done()
	s.Assert().False(open)
	s.Assert().ErrorIs(s.conn.WriteControlPoint([]byte{0}), ErrNotConnected)
	s.Assert().ErrorIs(s.conn.Disconnect(), ErrNotConnected)
}

func (s *ConnectionTestSuite) TestLinkLossClosesDone() {
	s.connect()

	close(s.client.disconnected)

	select {
	case <-s.conn.Done():
	case <-time.After(time.Second):
		s.Fail("Done MUST close on link loss")
	}
}

func TestConnectionTestSuite(t *testing.T) {
	suite.Run(t, new(ConnectionTestSuite))
}

func TestDefaultConnectOptions(t *testing.T) {
	opts := DefaultConnectOptions("AA:BB:CC:DD:EE:FF")

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", opts.DeviceAddress)
	assert.Equal(t, 30*time.Second, opts.ConnectTimeout)
}

func TestNewConnection_NotConnected(t *testing.T) {
	conn := NewConnection(nil)

	require.NotNil(t, conn.logger)
	assert.False(t, conn.IsConnected())
	_, open := <-conn.Done()
	assert.False(t, open, "unconnected Done MUST be closed")
	assert.True(t, errors.Is(conn.WriteControlPoint(nil), ErrNotConnected))
}

func TestUUIDs(t *testing.T) {
	assert.Len(t, ServiceUUID, 16)
	assert.True(t, DataSourceUUID.Equal(ble.MustParse("22eac6e9-24d6-4bb5-be44-b36ace7c7bfb")))
	assert.Equal(t, key(ControlPointUUID), key(ble.MustParse("69D1D8F3-45E1-49A8-9821-9BBDFDAAD9D9")))
}
