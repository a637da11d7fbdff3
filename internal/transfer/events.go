package transfer

import (
	"github.com/google/uuid"
)

// EventKind identifies a lifecycle notification.
type EventKind int

const (
	EventStarted EventKind = iota
	EventLog
	EventProgress
	EventError
	EventAborted
	EventComplete
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventLog:
		return "log"
	case EventProgress:
		return "progress"
	case EventError:
		return "error"
	case EventAborted:
		return "aborted"
	case EventComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Event is a notification emitted by a running transfer.
type Event struct {
	TransferID uuid.UUID
	Kind       EventKind

	// Text is set for log and error events.
	Text string

	// Current and Total are set for progress events.
	Current uint64
	Total   uint64

	// Err is set for error events.
	Err error
}

// Terminal reports whether the event ends its transfer. Exactly one
// terminal event is emitted per transfer.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventError, EventAborted, EventComplete:
		return true
	default:
		return false
	}
}

// Sink consumes transfer events.
type Sink interface {
	HandleEvent(ev Event)
}

// SinkFuncs adapts a set of optional callbacks to Sink. Nil callbacks are
// skipped.
type SinkFuncs struct {
	OnStarted  func(id uuid.UUID)
	OnLog      func(id uuid.UUID, text string)
	OnProgress func(id uuid.UUID, current, total uint64)
	OnError    func(id uuid.UUID, text string)
	OnAborted  func(id uuid.UUID)
	OnComplete func(id uuid.UUID)
}

// HandleEvent dispatches ev to the matching callback.
func (s SinkFuncs) HandleEvent(ev Event) {
	switch ev.Kind {
	case EventStarted:
		if s.OnStarted != nil {
			s.OnStarted(ev.TransferID)
		}
	case EventLog:
		if s.OnLog != nil {
			s.OnLog(ev.TransferID, ev.Text)
		}
	case EventProgress:
		if s.OnProgress != nil {
			s.OnProgress(ev.TransferID, ev.Current, ev.Total)
		}
	case EventError:
		if s.OnError != nil {
			s.OnError(ev.TransferID, ev.Text)
		}
	case EventAborted:
		if s.OnAborted != nil {
			s.OnAborted(ev.TransferID)
		}
	case EventComplete:
		if s.OnComplete != nil {
			s.OnComplete(ev.TransferID)
		}
	}
}

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) HandleEvent(ev Event) {
	for _, s := range m {
		s.HandleEvent(ev)
	}
}

// Dispatch delivers events to sink until the channel is closed. It is meant
// to run on its own goroutine, as the single consumer of a transfer's events.
// It does not watch a context: the producer closes the channel when Run
// returns, so every emitted event is delivered.
func Dispatch(events <-chan Event, sink Sink) {
	for ev := range events {
		if sink != nil {
			sink.HandleEvent(ev)
		}
	}
}

// emitter stamps events with the transfer ID and enqueues them.
type emitter struct {
	id uuid.UUID
	ch chan<- Event
}

func (e emitter) emit(ev Event) {
	if e.ch == nil {
		return
	}
	ev.TransferID = e.id
	e.ch <- ev
}

func (e emitter) started() {
	e.emit(Event{Kind: EventStarted})
}

func (e emitter) log(text string) {
	e.emit(Event{Kind: EventLog, Text: text})
}

func (e emitter) progress(current, total uint64) {
	e.emit(Event{Kind: EventProgress, Current: current, Total: total})
}

func (e emitter) error(err error) {
	e.emit(Event{Kind: EventError, Text: err.Error(), Err: err})
}

func (e emitter) aborted() {
	e.emit(Event{Kind: EventAborted})
}

func (e emitter) complete() {
	e.emit(Event{Kind: EventComplete})
}
