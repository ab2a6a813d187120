package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/ancs/internal/ancs"
	"github.com/srg/ancs/internal/groutine"
	"github.com/srg/ancs/internal/subscription"
)

// ANCS service and characteristic UUIDs.
var (
	ServiceUUID            = ble.MustParse(ancs.ServiceUUID)
	NotificationSourceUUID = ble.MustParse(ancs.NotificationSourceUUID)
	ControlPointUUID       = ble.MustParse(ancs.ControlPointUUID)
	DataSourceUUID         = ble.MustParse(ancs.DataSourceUUID)
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
)

// DeviceFactory creates the platform ble.Device (can be overridden in tests)
var DeviceFactory = newDevice

// dial opens the GATT client (can be overridden in tests)
var dial = ble.Dial

// Connection is a GATT client bound to the ANCS service of one phone.
type Connection struct {
	client ble.Client
	chars  *hashmap.Map[string, *ble.Characteristic]
	logger *logrus.Logger

	writeMutex  sync.Mutex
	connMutex   sync.RWMutex
	isConnected bool
	done        chan struct{}
	doneOnce    *sync.Once
}

// ConnectOptions configures the BLE connection
type ConnectOptions struct {
	DeviceAddress  string
	ConnectTimeout time.Duration
}

// DefaultConnectOptions returns defaults for the given phone address
func DefaultConnectOptions(deviceAddress string) *ConnectOptions {
	return &ConnectOptions{
		DeviceAddress:  deviceAddress,
		ConnectTimeout: 30 * time.Second,
	}
}

// NewConnection creates an unconnected ANCS client
func NewConnection(logger *logrus.Logger) *Connection {
	if logger == nil {
		logger = logrus.New()
	}

	done := make(chan struct{})
	close(done)

	return &Connection{
		chars:    hashmap.New[string, *ble.Characteristic](),
		logger:   logger,
		done:     done,
		doneOnce: &sync.Once{},
	}
}

// Connect dials the phone, discovers the ANCS service and validates its characteristics.
func (c *Connection) Connect(ctx context.Context, opts *ConnectOptions) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.isConnected {
		return ErrAlreadyConnected
	}

	d, err := DeviceFactory()
	if err != nil {
		c.logger.WithField("error", err).Error("Failed to create BLE device")
		return fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(d)

	c.logger.WithField("address", opts.DeviceAddress).Info("Connecting to phone...")

	connectCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	client, err := dial(connectCtx, ble.NewAddr(opts.DeviceAddress))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": opts.DeviceAddress,
			"error":   err,
		}).Error("Failed to dial phone")
		return fmt.Errorf("failed to connect to device with address \"%s\": %w", opts.DeviceAddress, err)
	}

	if err := c.attach(client); err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			c.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection after discovery failure")
		}
		return err
	}
	return nil
}

// attach discovers the ANCS characteristics on an open client. Caller holds connMutex.
func (c *Connection) attach(client ble.Client) error {
	c.logger.Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return fmt.Errorf("failed to discover profile: %w", err)
	}

	var service *ble.Service
	for _, s := range profile.Services {
		if s.UUID.Equal(ServiceUUID) {
			service = s
			break
		}
	}
	if service == nil {
		return fmt.Errorf("ANCS service %s not found (is the phone paired?)", ServiceUUID.String())
	}

	required := []struct {
		uuid ble.UUID
		name string
		prop ble.Property
	}{
		{NotificationSourceUUID, "notification source", ble.CharNotify},
		{ControlPointUUID, "control point", ble.CharWrite},
		{DataSourceUUID, "data source", ble.CharNotify},
	}

	chars := hashmap.New[string, *ble.Characteristic]()
	for _, r := range required {
		var found *ble.Characteristic
		for _, char := range service.Characteristics {
			if char.UUID.Equal(r.uuid) {
				found = char
				break
			}
		}
		if found == nil {
			return fmt.Errorf("%s characteristic %s not found", r.name, r.uuid.String())
		}
		if found.Property&r.prop == 0 {
			return fmt.Errorf("%s characteristic %s does not support %s", r.name, r.uuid.String(), propertyName(r.prop))
		}
		chars.Set(key(r.uuid), found)
		c.logger.WithField("characteristic", r.name).Debug("Found ANCS characteristic")
	}

	c.client = client
	c.chars = chars
	c.isConnected = true
	c.done = make(chan struct{})
	c.doneOnce = &sync.Once{}
	c.monitor(client, c.done, c.doneOnce)

	c.logger.WithField("address", client.Addr().String()).Info("ANCS connection established")
	return nil
}

// monitor closes done when the stack reports the link is gone.
func (c *Connection) monitor(client ble.Client, done chan struct{}, once *sync.Once) {
	dc, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		c.logger.Debug("Client does not report disconnection")
		return
	}

	groutine.Go(context.Background(), "ble-connection-monitor", func(ctx context.Context) {
		select {
		case <-dc.Disconnected():
			c.logger.Warn("Phone disconnected")
			once.Do(func() { close(done) })
		case <-done:
		}
	})
}

// Done is closed when the connection is lost or Disconnect is called.
func (c *Connection) Done() <-chan struct{} {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.done
}

// IsConnected returns whether the connection is active
func (c *Connection) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.isConnected
}

// NotificationSource returns the Notification Source for a subscription.Channel.
func (c *Connection) NotificationSource() subscription.Notifier {
	return &notifier{conn: c, uuid: NotificationSourceUUID}
}

// DataSource returns the Data Source for a subscription.Channel.
func (c *Connection) DataSource() subscription.Notifier {
	return &notifier{conn: c, uuid: DataSourceUUID}
}

// WriteControlPoint writes one command with response. ANCS rejections are returned as
// ancs.ControlPointError.
func (c *Connection) WriteControlPoint(data []byte) error {
	client, char, err := c.characteristic(ControlPointUUID)
	if err != nil {
		return err
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	if err := client.WriteCharacteristic(char, data, false); err != nil {
		var attErr ble.ATTError
		if errors.As(err, &attErr) && ancs.IsControlPointError(uint8(attErr)) {
			return ancs.ControlPointError(attErr)
		}
		return fmt.Errorf("failed to write control point: %w", err)
	}

	c.logger.WithField("bytes", len(data)).Debug("Wrote control point command")
	return nil
}

// Disconnect unsubscribes every ANCS characteristic and closes the link. It is the only
// path that drops the client and characteristic handles.
func (c *Connection) Disconnect() error {
	c.connMutex.Lock()
	if !c.isConnected {
		c.connMutex.Unlock()
		return ErrNotConnected
	}
	client := c.client
	chars := c.chars
	done, once := c.done, c.doneOnce

	c.isConnected = false
	c.client = nil
	c.chars = hashmap.New[string, *ble.Characteristic]()
	c.connMutex.Unlock()

	var unsubscribeErrors []string
	chars.Range(func(k string, char *ble.Characteristic) bool {
		if char.Property&ble.CharNotify == 0 {
			return true
		}
		if err := client.Unsubscribe(char, false); err != nil {
			unsubscribeErrors = append(unsubscribeErrors, fmt.Sprintf("%s: %v", k, err))
		}
		return true
	})
	if len(unsubscribeErrors) > 0 {
		c.logger.WithField("errors", strings.Join(unsubscribeErrors, "; ")).Debug("Some characteristics were already unsubscribed")
	}

	err := client.CancelConnection()
	once.Do(func() { close(done) })

	if err != nil {
		c.logger.WithField("error", err).Warn("Phone disconnected with errors")
		return err
	}
	c.logger.Info("Phone disconnected")
	return nil
}

func (c *Connection) characteristic(uuid ble.UUID) (ble.Client, *ble.Characteristic, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	if !c.isConnected {
		return nil, nil, ErrNotConnected
	}
	char, ok := c.chars.Get(key(uuid))
	if !ok {
		return nil, nil, fmt.Errorf("characteristic %s not discovered", uuid.String())
	}
	return c.client, char, nil
}

// notifier adapts one notifying characteristic to subscription.Notifier.
type notifier struct {
	conn *Connection
	uuid ble.UUID
}

func (n *notifier) EnableNotifications(handler func([]byte)) error {
	client, char, err := n.conn.characteristic(n.uuid)
	if err != nil {
		return err
	}
	return client.Subscribe(char, false, handler)
}

func (n *notifier) DisableNotifications() error {
	client, char, err := n.conn.characteristic(n.uuid)
	if err != nil {
		return err
	}
	return client.Unsubscribe(char, false)
}

func key(u ble.UUID) string {
	return strings.ToLower(u.String())
}

func propertyName(p ble.Property) string {
	switch p {
	case ble.CharNotify:
		return "notify"
	case ble.CharWrite:
		return "write"
	default:
		return fmt.Sprintf("property 0x%02X", uint8(p))
	}
}
