package transfer

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAborted is returned by Run when the transfer was cancelled.
	// Cancellation is not a failure and is reported as an aborted event.
	ErrAborted = errors.New("transfer aborted")

	// ErrUnframedUnsupported is returned for write requests that ask for the
	// reserved unframed mode.
	ErrUnframedUnsupported = errors.New("unframed write mode is not supported")
)

// ErrorKind classifies a transfer failure.
type ErrorKind int

const (
	// KindUnknown is any failure the transport did not classify.
	KindUnknown ErrorKind = iota
	// KindFileOpen means the local input or output file could not be opened.
	KindFileOpen
	// KindAllocation means the chunk buffer could not be obtained.
	KindAllocation
	// KindShortRead means the input file yielded fewer bytes than a chunk needs.
	KindShortRead
	// KindProtocol means the device rejected a chunk.
	KindProtocol
	// KindTransport means the link failed during a chunk.
	KindTransport
	// KindMisaligned means the device acknowledged a partial sector before
	// the final chunk, or less than a whole write chunk, either of which
	// would desynchronise the sector address from the data.
	KindMisaligned
	// KindStalled means the device acknowledged zero bytes for a chunk.
	KindStalled
	// KindFileIO means a local file operation failed after opening.
	KindFileIO
	// KindUnsupported means the request asked for a mode that is not implemented.
	KindUnsupported
	// KindOutOfRange means the transfer would run past the last addressable sector.
	KindOutOfRange
)

func (k ErrorKind) String() string {
	switch k {
	case KindFileOpen:
		return "file open"
	case KindAllocation:
		return "allocation"
	case KindShortRead:
		return "short read"
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	case KindMisaligned:
		return "misaligned"
	case KindStalled:
		return "stalled"
	case KindFileIO:
		return "file io"
	case KindUnsupported:
		return "unsupported"
	case KindOutOfRange:
		return "out of range"
	default:
		return "unknown"
	}
}

// Error describes a failed transfer. Exactly one is reported per failed
// transfer, as the payload of its error event.
type Error struct {
	Kind      ErrorKind
	Direction Direction
	Path      string

	// Chunk context, set for transport-side failures.
	ChunkSize int
	Address   uint32

	// Expected and Actual are byte counts for short reads and misaligned
	// or stalled acknowledgements.
	Expected int
	Actual   int

	Err error
}

func (e *Error) Error() string {
	verb, prep := "reading", "from"
	if e.Direction == DirectionWrite {
		verb, prep = "writing", "at"
	}

	switch e.Kind {
	case KindFileOpen:
		mode := "writing"
		if e.Direction == DirectionWrite {
			mode = "reading"
		}
		return fmt.Sprintf("error opening %s for %s: %v", e.Path, mode, e.Err)
	case KindAllocation:
		return fmt.Sprintf("could not allocate %d bytes for file read buffer: %v", e.Expected, e.Err)
	case KindShortRead:
		return fmt.Sprintf("error reading file: attempted to read %d bytes but only read %d bytes", e.Expected, e.Actual)
	case KindProtocol, KindTransport:
		return fmt.Sprintf("error %s %d bytes %s LBA 0x%08X: %s error: %v", verb, e.ChunkSize, prep, e.Address, e.Kind, e.Err)
	case KindMisaligned:
		if e.Actual%SectorSize == 0 {
			return fmt.Sprintf("error %s %d bytes %s LBA 0x%08X: device acknowledged only %d bytes", verb, e.ChunkSize, prep, e.Address, e.Actual)
		}
		return fmt.Sprintf("error %s %d bytes %s LBA 0x%08X: device acknowledged %d bytes, not a multiple of %d", verb, e.ChunkSize, prep, e.Address, e.Actual, SectorSize)
	case KindStalled:
		return fmt.Sprintf("error %s %d bytes %s LBA 0x%08X: device acknowledged no data", verb, e.ChunkSize, prep, e.Address)
	case KindFileIO:
		return fmt.Sprintf("file error on %s: %v", e.Path, e.Err)
	case KindUnsupported:
		return fmt.Sprintf("%s request rejected: %v", e.Direction, e.Err)
	case KindOutOfRange:
		return fmt.Sprintf("%s request rejected: %v", e.Direction, e.Err)
	default:
		return fmt.Sprintf("unexpected error encountered %s %d bytes %s LBA 0x%08X: %v", verb, e.ChunkSize, prep, e.Address, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ProtocolError is a device-side rejection of an operation.
type ProtocolError struct {
	// Code is the device error code, if the device reported one.
	Code uint32
	Text string
}

func (e *ProtocolError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("device error 0x%02X", e.Code)
	}
	return fmt.Sprintf("device error 0x%02X: %s", e.Code, e.Text)
}

// LinkError is a failure of the link carrying the protocol: serial I/O,
// framing or checksum faults.
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// Classify maps an error returned by a Transport to its kind.
func Classify(err error) ErrorKind {
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return KindProtocol
	}
	var linkErr *LinkError
	if errors.As(err, &linkErr) {
		return KindTransport
	}
	return KindUnknown
}

// IsKind reports whether err is a transfer *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// KindOf returns the kind of a transfer *Error, or classifies err as a
// transport error if it is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Classify(err)
}
