package testutils

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/srg/ancs/internal/ancs"
	"github.com/srg/ancs/internal/subscription"
)

// Phone simulates an ANCS publisher. It satisfies session.Conn: Control Point writes are
// answered on the Data Source, split into MTU-sized notifications.
type Phone struct {
	mu       sync.Mutex
	ops      []string
	writes   [][]byte
	apps     map[string]string
	notifs   map[uint32]ancs.NotificationAttributes
	writeErr error
	mtu      int
	done     chan struct{}
	lost     sync.Once

	NS *PhoneCharacteristic
	DS *PhoneCharacteristic
}

// PhoneCharacteristic is a notifying characteristic of Phone.
type PhoneCharacteristic struct {
	name      string
	phone     *Phone
	mu        sync.Mutex
	handler   func([]byte)
	EnableErr error
}

// NewPhone creates a phone answering with responses fragmented to mtu bytes.
func NewPhone(mtu int) *Phone {
	if mtu <= 0 {
		mtu = 20
	}
	p := &Phone{
		apps:   make(map[string]string),
		notifs: make(map[uint32]ancs.NotificationAttributes),
		mtu:    mtu,
		done:   make(chan struct{}),
	}
	p.NS = &PhoneCharacteristic{name: "ns", phone: p}
	p.DS = &PhoneCharacteristic{name: "ds", phone: p}
	return p
}

// AddApp registers the display name returned for appID.
func (p *Phone) AddApp(appID, displayName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.apps[appID] = displayName
}

// Post stores the notification attributes and publishes an event for them.
func (p *Phone) Post(ev ancs.NotificationEvent, attrs ancs.NotificationAttributes) {
	attrs.UID = ev.UID
	p.mu.Lock()
	p.notifs[ev.UID] = attrs
	p.mu.Unlock()
	p.NS.Notify(ev.Encode())
}

// FailWrites makes every Control Point write return err. nil restores success.
func (p *Phone) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Disconnect closes Done.
func (p *Phone) Disconnect() {
	p.lost.Do(func() { close(p.done) })
}

// Ops returns the enable/disable calls in order, e.g. "enable ds".
func (p *Phone) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...)
}

// Writes returns the raw Control Point writes.
func (p *Phone) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.writes...)
}

func (p *Phone) NotificationSource() subscription.Notifier { return p.NS }
func (p *Phone) DataSource() subscription.Notifier         { return p.DS }
func (p *Phone) Done() <-chan struct{}                      { return p.done }

func (p *Phone) WriteControlPoint(data []byte) error {
	p.mu.Lock()
	p.writes = append(p.writes, append([]byte(nil), data...))
	err := p.writeErr
	p.mu.Unlock()
	if err != nil {
		return err
	}

	if resp := p.answer(data); resp != nil {
		for len(resp) > 0 {
			n := min(p.mtu, len(resp))
			p.DS.Notify(resp[:n])
			resp = resp[n:]
		}
	}
	return nil
}

func (p *Phone) answer(req []byte) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ancs.CommandID(req[0]) {
	case ancs.CommandGetNotificationAttributes:
		uid := binary.LittleEndian.Uint32(req[1:5])
		var ids []ancs.NotificationAttributeID
		for i := 5; i < len(req); i++ {
			id := ancs.NotificationAttributeID(req[i])
			ids = append(ids, id)
			if id.HasMaxLength() {
				i += 2
			}
		}
		attrs := p.notifs[uid]
		attrs.UID = uid
		return ancs.EncodeNotificationAttributesResponse(attrs, ids)
	case ancs.CommandGetAppAttributes:
		end := bytes.IndexByte(req[1:], 0)
		appID := string(req[1 : 1+end])
		var ids []ancs.AppAttributeID
		for _, b := range req[2+end:] {
			ids = append(ids, ancs.AppAttributeID(b))
		}
		return ancs.EncodeAppAttributesResponse(ancs.AppAttributes{AppIdentifier: appID, DisplayName: p.apps[appID]}, ids)
	default:
		return nil
	}
}

func (c *PhoneCharacteristic) EnableNotifications(handler func([]byte)) error {
	c.phone.record("enable " + c.name)
	if c.EnableErr != nil {
		return c.EnableErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
	return nil
}

func (c *PhoneCharacteristic) DisableNotifications() error {
	c.phone.record("disable " + c.name)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = nil
	return nil
}

// Notify delivers data to the subscriber, if any.
func (c *PhoneCharacteristic) Notify(data []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(data)
	}
}

func (p *Phone) record(op string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
}
