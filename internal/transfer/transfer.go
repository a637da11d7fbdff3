// Package transfer drives bulk flash reads and writes over a sequential
// command/response link. A transfer is split into chunks sized from the
// link's negotiated limits; the device is addressed in 512-byte sectors.
//
// Each transfer runs as a Task. Run blocks until the transfer completes,
// fails or is cancelled, emitting lifecycle events in order on the channel
// supplied by the caller.
package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Direction is the direction of a transfer relative to the device.
type Direction int

const (
	// DirectionRead pulls flash contents from the device into a file.
	DirectionRead Direction = iota
	// DirectionWrite pushes a file into device flash.
	DirectionWrite
)

func (d Direction) String() string {
	switch d {
	case DirectionRead:
		return "read"
	case DirectionWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Task is a single read or write transfer bound to a Transport.
type Task interface {
	// ID identifies the transfer in events and logs.
	ID() uuid.UUID

	// Direction reports whether the task reads or writes flash.
	Direction() Direction

	// Run executes the transfer. Events are sent on events in emission
	// order; a nil channel discards them. Run never closes events.
	Run(ctx context.Context, events chan<- Event) (Result, error)

	// Cancel requests cooperative cancellation. The chunk in flight, if any,
	// always completes before the request is observed.
	Cancel()
}

// Result summarises a finished transfer, whatever its outcome.
type Result struct {
	ID        uuid.UUID
	Direction Direction
	Address   uint32

	// Requested is the byte count asked for by the caller (read) or the
	// input file size (write).
	Requested uint64
	// Total is the byte count the transfer loop aimed for. For reads it is
	// Requested rounded up to a whole sector.
	Total uint64
	// Done is the number of bytes the device reported as transferred.
	Done uint64
	// Blocks is the number of sectors the device address advanced by.
	Blocks uint32
	// Chunks is the number of transport calls that completed.
	Chunks int

	Elapsed time.Duration
}
