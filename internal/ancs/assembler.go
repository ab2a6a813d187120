package ancs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"
)

const (
	// DefaultAssemblerCapacity bounds the bytes buffered for one partial response.
	DefaultAssemblerCapacity = 8 * 1024

	// DefaultFragmentTimeout is how long a partial response may wait for its next fragment.
	DefaultFragmentTimeout = 2 * time.Second
)

type expectation struct {
	cmd   CommandID
	count int
}

// Assembler reassembles Data Source responses that arrive split across several GATT
// notifications.
//
// The Control Point registers an expectation for every Get command it writes; the phone
// answers in order, so expectations form a FIFO. An expectation tells the assembler how many
// attribute tuples complete the response. Without one, the buffered bytes are taken as one
// whole response.
//
// All methods are thread-safe.
type Assembler struct {
	mu              sync.Mutex
	buf             *ringbuffer.RingBuffer
	capacity        int
	expectations    []expectation
	lastFragment    time.Time
	fragmentTimeout time.Duration
}

// NewAssembler creates an assembler buffering at most capacity bytes.
// A zero fragmentTimeout keeps partial responses indefinitely.
func NewAssembler(capacity int, fragmentTimeout time.Duration) *Assembler {
	if capacity <= 0 {
		capacity = DefaultAssemblerCapacity
	}
	return &Assembler{
		buf:             ringbuffer.New(capacity),
		capacity:        capacity,
		fragmentTimeout: fragmentTimeout,
	}
}

// Expect registers a response the phone owes for a Get command with attrCount attributes.
// PerformNotificationAction has no Data Source response and is ignored.
func (a *Assembler) Expect(cmd CommandID, attrCount int) {
	if cmd != CommandGetNotificationAttributes && cmd != CommandGetAppAttributes {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expectations = append(a.expectations, expectation{cmd: cmd, count: attrCount})
}

// Withdraw removes the most recent expectation for cmd, undoing Expect when the command
// could not be written.
func (a *Assembler) Withdraw(cmd CommandID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.expectations) - 1; i >= 0; i-- {
		if a.expectations[i].cmd == cmd {
			a.expectations = append(a.expectations[:i], a.expectations[i+1:]...)
			return
		}
	}
}

// Pending returns the number of buffered bytes and outstanding expectations.
func (a *Assembler) Pending() (bytes int, expectations int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.Length(), len(a.expectations)
}

// Reset drops buffered bytes and all expectations.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Reset()
	a.expectations = nil
	a.lastFragment = time.Time{}
}

// Feed appends a fragment and returns every response it completes.
// Errors describe dropped bytes; responses decoded before the failure are still returned.
func (a *Assembler) Feed(fragment []byte, now time.Time) ([]Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error

	if a.buf.Length() > 0 && a.fragmentTimeout > 0 && now.Sub(a.lastFragment) > a.fragmentTimeout {
		stale := a.buf.Length()
		a.buf.Reset()
		a.popExpectation()
		errs = append(errs, truncatedf("partial response of %d bytes timed out after %v", stale, a.fragmentTimeout))
	}
	a.lastFragment = now

	if len(fragment) > a.buf.Free() {
		dropped := a.buf.Length() + len(fragment)
		a.buf.Reset()
		a.popExpectation()
		errs = append(errs, &ProtocolError{Kind: Overflow, Msg: fmt.Sprintf("%d bytes exceed assembler capacity %d", dropped, a.capacity)})
		return nil, errors.Join(errs...)
	}
	if _, err := a.buf.Write(fragment); err != nil {
		a.buf.Reset()
		errs = append(errs, &ProtocolError{Kind: Overflow, Msg: err.Error()})
		return nil, errors.Join(errs...)
	}

	data := make([]byte, a.buf.Length())
	if _, err := a.buf.Read(data); err != nil {
		a.buf.Reset()
		return nil, errors.Join(append(errs, err)...)
	}

	var out []Response
	for len(data) > 0 {
		resp, n, err := a.next(data)
		if errors.Is(err, ErrTruncated) {
			break
		}
		if err != nil {
			errs = append(errs, err)
			data = nil
			break
		}
		out = append(out, resp)
		data = data[n:]
	}

	if len(data) > 0 {
		// Cannot fail: data is never longer than what was just read out.
		_, _ = a.buf.Write(data)
	}

	return out, errors.Join(errs...)
}

// next decodes one response from the head of data and returns its length.
func (a *Assembler) next(data []byte) (Response, int, error) {
	cmd := CommandID(data[0])
	if cmd != CommandGetNotificationAttributes && cmd != CommandGetAppAttributes {
		a.popExpectation()
		return nil, 0, &ProtocolError{Kind: UnknownCommand, Msg: fmt.Sprintf("no data source response for %s", cmd)}
	}

	count := -1
	matched := a.matchExpectation(cmd)
	if matched {
		count = a.expectations[0].count
	}

	var (
		resp Response
		n    int
		err  error
	)
	if cmd == CommandGetNotificationAttributes {
		resp, n, err = decodeNotificationAttributes(data, count)
	} else {
		resp, n, err = decodeAppAttributes(data, count)
	}
	if err != nil {
		if !errors.Is(err, ErrTruncated) && matched {
			a.popExpectation()
		}
		return nil, 0, err
	}

	if matched {
		a.popExpectation()
	}
	return resp, n, nil
}

// matchExpectation drops expectations for responses that never arrived until the head
// expectation matches cmd. It reports whether a matching expectation is at the head.
func (a *Assembler) matchExpectation(cmd CommandID) bool {
	for i, exp := range a.expectations {
		if exp.cmd == cmd {
			a.expectations = a.expectations[i:]
			return true
		}
	}
	return false
}

func (a *Assembler) popExpectation() {
	if len(a.expectations) > 0 {
		a.expectations = a.expectations[1:]
	}
}
