// Package progress carries workflow status messages and upload byte progress to
// the terminal (spinner, mpb bars), the event bus, or a plain writer.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/tablerag/tablerag-client/internal/constants"
	"github.com/tablerag/tablerag-client/internal/events"
)

// Sink is a status region: it shows the latest one-line message of a workflow.
type Sink interface {
	SetStatus(msg string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(msg string)

// SetStatus calls f(msg).
func (f SinkFunc) SetStatus(msg string) { f(msg) }

// Discard drops every message.
var Discard Sink = SinkFunc(func(string) {})

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

// Multi fans a message out to several sinks. Nil entries are skipped.
type Multi []Sink

// SetStatus forwards msg to every sink in order.
func (m Multi) SetStatus(msg string) {
	for _, s := range m {
		if s != nil {
			s.SetStatus(msg)
		}
	}
}

// WriterSink prints each message on its own line.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// SetStatus writes msg followed by a newline.
func (s *WriterSink) SetStatus(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, msg)
}

// Recorder keeps every message. Safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	msgs []string
}

// SetStatus records msg.
func (r *Recorder) SetStatus(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

// Last returns the latest message, or "" if none.
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}

// BusSink publishes messages as status events for a named region
// ("upload", "cleanup", "chat", ...).
type BusSink struct {
	bus    *events.EventBus
	region string
}

// NewBusSink creates a sink publishing to bus under region.
func NewBusSink(bus *events.EventBus, region string) *BusSink {
	return &BusSink{bus: bus, region: region}
}

// SetStatus publishes a StatusEvent.
func (s *BusSink) SetStatus(msg string) {
	s.bus.PublishStatus(s.region, msg)
}

// StatusSpinner shows the latest message next to a spinner on a terminal.
type StatusSpinner struct {
	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	w    io.Writer
	last string
}

// NewStatusSpinner creates a spinner writing to w.
func NewStatusSpinner(w io.Writer) *StatusSpinner {
	return &StatusSpinner{
		w: w,
		bar: progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionThrottle(constants.SpinnerThrottle),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionClearOnFinish(),
		),
	}
}

// SetStatus replaces the spinner description and advances it.
func (s *StatusSpinner) SetStatus(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = msg
	s.bar.Describe(msg)
	_ = s.bar.Add(1)
}

// Finish clears the spinner and leaves the last message on its own line.
func (s *StatusSpinner) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.bar.Finish()
	if s.last != "" {
		fmt.Fprintln(s.w, s.last)
	}
}

// Last returns the latest message.
func (s *StatusSpinner) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
