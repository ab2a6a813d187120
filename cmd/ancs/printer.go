package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/fxamacker/cbor/v2"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/srg/ancs/internal/engine"
	"github.com/srg/ancs/pkg/config"
	"gopkg.in/yaml.v3"
)

// PrinterMetrics counts printer traffic. All fields are updated atomically.
type PrinterMetrics struct {
	Printed     int64 // notifications written to the output
	Errors      int64 // encode or write failures
	Overwritten int64 // notifications lost because the output fell behind
}

const (
	printerStopped uint32 = iota
	printerRunning
	printerStopping
)

// Printer decouples the engine handler from the output: Handle only enqueues into an
// overlapped ring buffer, a background goroutine formats and writes.
//
// All methods are thread-safe.
type Printer struct {
	out     io.Writer
	encode  func(outputRecord) error
	buffer  mpmc.RichOverlappedRingBuffer[engine.Notification]
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	metrics PrinterMetrics
	state   uint32

	added    *color.Color
	modified *color.Color
	removed  *color.Color
	dim      *color.Color
}

// NewPrinter creates a printer writing format to out. colors applies to text only.
func NewPrinter(out io.Writer, format string, bufferSize uint32, colors bool) (*Printer, error) {
	if bufferSize == 0 {
		return nil, fmt.Errorf("buffer size must be > 0")
	}

	p := &Printer{
		out:      out,
		buffer:   mpmc.NewOverlappedRingBuffer[engine.Notification](bufferSize),
		wake:     make(chan struct{}, 1),
		added:    color.New(color.FgGreen, color.Bold),
		modified: color.New(color.FgYellow, color.Bold),
		removed:  color.New(color.FgRed, color.Bold),
		dim:      color.New(color.Faint),
	}
	if !colors {
		for _, c := range []*color.Color{p.added, p.modified, p.removed, p.dim} {
			c.DisableColor()
		}
	}

	switch format {
	case config.FormatText:
		p.encode = p.writeText
	case config.FormatJSON:
		enc := json.NewEncoder(out)
		p.encode = func(r outputRecord) error { return enc.Encode(r) }
	case config.FormatYAML:
		p.encode = func(r outputRecord) error {
			data, err := yaml.Marshal(r)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "---\n%s", data)
			return err
		}
	case config.FormatCBOR:
		enc := cbor.NewEncoder(out)
		p.encode = func(r outputRecord) error { return enc.Encode(r) }
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}

	return p, nil
}

// Handle is an engine.Handler. It never blocks.
func (p *Printer) Handle(n engine.Notification) {
	overwrites, err := p.buffer.EnqueueM(n)
	if err != nil {
		atomic.AddInt64(&p.metrics.Errors, 1)
		return
	}
	atomic.AddInt64(&p.metrics.Overwritten, int64(overwrites))

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start runs the output goroutine.
func (p *Printer) Start() error {
	if !atomic.CompareAndSwapUint32(&p.state, printerStopped, printerRunning) {
		return fmt.Errorf("printer is already running")
	}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go func() {
		defer func() {
			atomic.StoreUint32(&p.state, printerStopped)
			close(p.done)
		}()
		for {
			select {
			case <-p.stop:
				p.drain()
				return
			case <-p.wake:
				p.drain()
			}
		}
	}()
	return nil
}

// Stop writes what is still buffered and stops the output goroutine.
func (p *Printer) Stop() error {
	if !atomic.CompareAndSwapUint32(&p.state, printerRunning, printerStopping) {
		if atomic.LoadUint32(&p.state) == printerStopped {
			return nil
		}
	} else {
		close(p.stop)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(5 * time.Second):
		<-p.done
		return fmt.Errorf("printer stop exceeded 5s timeout")
	}
}

// Metrics returns a snapshot of the counters.
func (p *Printer) Metrics() PrinterMetrics {
	return PrinterMetrics{
		Printed:     atomic.LoadInt64(&p.metrics.Printed),
		Errors:      atomic.LoadInt64(&p.metrics.Errors),
		Overwritten: atomic.LoadInt64(&p.metrics.Overwritten),
	}
}

func (p *Printer) drain() {
	for !p.buffer.IsEmpty() {
		n, err := p.buffer.Dequeue()
		if err != nil {
			return
		}
		if err := p.encode(newOutputRecord(n)); err != nil {
			atomic.AddInt64(&p.metrics.Errors, 1)
			continue
		}
		atomic.AddInt64(&p.metrics.Printed, 1)
	}
}

// outputRecord is the serialized form of a notification.
type outputRecord struct {
	Event          string `json:"event" yaml:"event"`
	UID            uint32 `json:"uid" yaml:"uid"`
	App            string `json:"app,omitempty" yaml:"app,omitempty"`
	AppIdentifier  string `json:"app_identifier,omitempty" yaml:"app_identifier,omitempty"`
	Category       string `json:"category" yaml:"category"`
	Flags          string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Title          string `json:"title,omitempty" yaml:"title,omitempty"`
	Subtitle       string `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Message        string `json:"message,omitempty" yaml:"message,omitempty"`
	Date           string `json:"date,omitempty" yaml:"date,omitempty"`
	PositiveAction string `json:"positive_action,omitempty" yaml:"positive_action,omitempty"`
	NegativeAction string `json:"negative_action,omitempty" yaml:"negative_action,omitempty"`
}

func newOutputRecord(n engine.Notification) outputRecord {
	r := outputRecord{
		Event:          n.Kind.String(),
		UID:            n.UID,
		App:            n.App.DisplayName,
		AppIdentifier:  n.AppIdentifier,
		Category:       n.Event.Category.String(),
		Title:          n.Title,
		Subtitle:       n.Subtitle,
		Message:        n.Message,
		PositiveAction: n.PositiveActionLabel,
		NegativeAction: n.NegativeActionLabel,
	}
	if n.Event.Flags != 0 {
		r.Flags = n.Event.Flags.String()
	}
	if !n.Date.IsZero() {
		r.Date = n.Date.Format(time.RFC3339)
	}
	return r
}

func (p *Printer) writeText(r outputRecord) error {
	var label string
	switch r.Event {
	case engine.Added.String():
		label = p.added.Sprint("+ ADDED   ")
	case engine.Modified.String():
		label = p.modified.Sprint("~ MODIFIED")
	default:
		label = p.removed.Sprint("- REMOVED ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d", label, r.UID)
	if app := firstNonEmpty(r.App, r.AppIdentifier); app != "" {
		fmt.Fprintf(&b, " [%s]", app)
	}
	if r.Event != engine.Removed.String() {
		fmt.Fprintf(&b, " %s", p.dim.Sprint(r.Category))
	}
	b.WriteString("\n")

	if title := strings.TrimSpace(strings.Join([]string{r.Title, r.Subtitle}, " ")); title != "" {
		fmt.Fprintf(&b, "    %s\n", title)
	}
	if r.Message != "" {
		fmt.Fprintf(&b, "    %s\n", r.Message)
	}
	if r.PositiveAction != "" || r.NegativeAction != "" {
		var actions []string
		if r.PositiveAction != "" {
			actions = append(actions, "positive: "+r.PositiveAction)
		}
		if r.NegativeAction != "" {
			actions = append(actions, "negative: "+r.NegativeAction)
		}
		fmt.Fprintf(&b, "    %s\n", p.dim.Sprint("actions: "+strings.Join(actions, ", ")))
	}

	_, err := io.WriteString(p.out, b.String())
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
