package transfer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// WriteRequest asks for the contents of InPath to be written to flash
// starting at sector Address.
type WriteRequest struct {
	Address uint32
	InPath  string

	// Unframed selects the raw, unframed write mode. It is recognised but
	// not implemented: such requests fail with KindUnsupported.
	Unframed bool
}

// WriteTask pushes a local file into device flash.
type WriteTask struct {
	base
	req WriteRequest
}

var _ Task = (*WriteTask)(nil)

// NewWriteTask creates a write transfer against port.
func NewWriteTask(port Transport, req WriteRequest, opts ...Option) *WriteTask {
	return &WriteTask{
		base: newBase(port, req.Address, DirectionWrite, opts),
		req:  req,
	}
}

// Request returns the request the task was created with.
func (t *WriteTask) Request() WriteRequest {
	return t.req
}

// Run executes the write. A started event is always emitted first.
func (t *WriteTask) Run(ctx context.Context, events chan<- Event) (Result, error) {
	start := time.Now()
	em := emitter{id: t.cfg.ID, ch: events}
	s := &session{}

	em.started()

	if t.req.Unframed {
		return t.fail(em, s, start, &Error{Kind: KindUnsupported, Direction: DirectionWrite, Path: t.req.InPath, Err: ErrUnframedUnsupported})
	}

	in, err := t.cfg.Files.OpenReader(t.req.InPath)
	if err != nil {
		return t.fail(em, s, start, &Error{Kind: KindFileOpen, Direction: DirectionWrite, Path: t.req.InPath, Err: err})
	}
	var buf chunkBuffer
	released := false
	cleanup := func() {
		if released {
			return
		}
		released = true
		buf.release()
		_ = in.Close()
	}
	defer cleanup()

	s.total = uint64(in.Size())
	if terr := t.checkRange(s.total); terr != nil {
		cleanup()
		return t.fail(em, s, start, terr)
	}
	caps := t.port.Capabilities()

	size := ChunkSize(s.total, caps, t.cfg.MaxChunkSize)
	if buf, err = acquireBuffer(size); err != nil {
		cleanup()
		return t.fail(em, s, start, &Error{Kind: KindAllocation, Direction: DirectionWrite, Path: t.req.InPath, Expected: size, Err: err})
	}

	t.log.WithFields(logrus.Fields{
		"total":      s.total,
		"sectors":    Sectors(s.total),
		"negotiated": caps.Negotiated,
		"max_chunk":  EffectiveMax(caps, t.cfg.MaxChunkSize),
		"input":      t.req.InPath,
	}).Info("Starting flash write")
	em.log(fmt.Sprintf("Writing %d bytes at LBA %08X (%d sectors) from %s",
		s.total, t.req.Address, Sectors(s.total), t.req.InPath))

	step := func(addr uint32, chunk int) (int, error) {
		data := buf.bytes(chunk)
		n, err := io.ReadFull(in, data)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return 0, &Error{Kind: KindShortRead, Direction: DirectionWrite, Path: t.req.InPath, Expected: chunk, Actual: n}
			}
			return 0, &Error{Kind: KindFileIO, Direction: DirectionWrite, Path: t.req.InPath, Err: err}
		}
		return t.port.WriteFlash(addr, data)
	}
	if err := t.loop(ctx, em, s, caps, step, cleanup); err != nil {
		return t.result(s, s.total, start), err
	}

	em.log(fmt.Sprintf("Wrote %d bytes at 0x%08X from %s", s.done, t.req.Address, t.req.InPath))
	cleanup()

	res := t.result(s, s.total, start)
	t.log.WithFields(logrus.Fields{
		"bytes":   res.Done,
		"chunks":  res.Chunks,
		"elapsed": res.Elapsed,
	}).Info("Flash write complete")
	em.complete()
	return res, nil
}

func (t *WriteTask) fail(em emitter, s *session, start time.Time, terr *Error) (Result, error) {
	t.log.WithField("kind", terr.Kind.String()).WithError(terr.Err).Error("Flash write failed")
	em.error(terr)
	return t.result(s, s.total, start), terr
}
