package transfer

import "io"

// Capabilities is a snapshot of the link negotiation state. It is read once
// when a transfer starts and never re-queried mid-transfer.
type Capabilities struct {
	Negotiated bool
	// MaxPreferredBlockSize is the largest chunk the device asked for during
	// negotiation. Zero means unset.
	MaxPreferredBlockSize uint32
}

// Transport performs one chunk exchange with the device per call. It is a
// stateful, exclusive handle; callers must not run two transfers against the
// same Transport at once.
//
// Implementations return *ProtocolError when the device rejects an operation
// and *LinkError when the link itself fails.
type Transport interface {
	Capabilities() Capabilities

	// ReadFlash reads length bytes starting at the sector address and writes
	// them to w. It returns the number of bytes transferred.
	ReadFlash(address uint32, length int, w io.Writer) (int, error)

	// WriteFlash writes data starting at the sector address and returns the
	// number of bytes the device acknowledged.
	WriteFlash(address uint32, data []byte) (int, error)
}
