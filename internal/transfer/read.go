package transfer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// ReadRequest asks for Length bytes of flash starting at sector Address to
// be saved into OutPath.
type ReadRequest struct {
	Address uint32
	Length  uint64
	OutPath string
}

// ReadTask pulls flash contents from the device into a local file.
type ReadTask struct {
	base
	req ReadRequest
}

var _ Task = (*ReadTask)(nil)

// NewReadTask creates a read transfer against port.
func NewReadTask(port Transport, req ReadRequest, opts ...Option) *ReadTask {
	return &ReadTask{
		base: newBase(port, req.Address, DirectionRead, opts),
		req:  req,
	}
}

// Request returns the request the task was created with.
func (t *ReadTask) Request() ReadRequest {
	return t.req
}

// Run executes the read. If the output file cannot be opened, a single error
// event is emitted and no started event precedes it.
func (t *ReadTask) Run(ctx context.Context, events chan<- Event) (Result, error) {
	start := time.Now()
	em := emitter{id: t.cfg.ID, ch: events}
	s := &session{total: t.req.Length}

	if terr := t.checkRange(t.req.Length); terr != nil {
		t.log.WithError(terr.Err).Error("Read outside device address space")
		em.error(terr)
		return t.result(s, t.req.Length, start), terr
	}

	out, err := t.cfg.Files.CreateWriter(t.req.OutPath)
	if err != nil {
		terr := &Error{Kind: KindFileOpen, Direction: DirectionRead, Path: t.req.OutPath, Err: err}
		t.log.WithError(err).Error("Failed to open output file")
		em.error(terr)
		return t.result(s, t.req.Length, start), terr
	}
	closed := false
	closeOut := func() error {
		if closed {
			return nil
		}
		closed = true
		return out.Close()
	}

	em.started()

	if aligned, adjusted := AlignToSector(t.req.Length); adjusted {
		s.total = aligned
		em.log(fmt.Sprintf("Adjusted read amount to %d for block size alignment to %d bytes per sector", aligned, SectorSize))
	}

	caps := t.port.Capabilities()
	t.log.WithFields(logrus.Fields{
		"requested":  t.req.Length,
		"total":      s.total,
		"sectors":    Sectors(s.total),
		"negotiated": caps.Negotiated,
		"max_chunk":  EffectiveMax(caps, t.cfg.MaxChunkSize),
		"output":     t.req.OutPath,
	}).Info("Starting flash read")
	em.log(fmt.Sprintf("Reading %d bytes from LBA %08X (%d sectors). Writing data to %s",
		s.total, t.req.Address, Sectors(s.total), t.req.OutPath))

	step := func(addr uint32, chunk int) (int, error) {
		return t.port.ReadFlash(addr, chunk, outputWriter{w: out, path: t.req.OutPath})
	}
	if err := t.loop(ctx, em, s, caps, step, func() { _ = closeOut() }); err != nil {
		return t.result(s, t.req.Length, start), err
	}

	em.log(fmt.Sprintf("Read %d bytes from 0x%08X. Contents saved to %s", s.done, t.req.Address, t.req.OutPath))

	if t.cfg.TrimOutput && uint64(out.Written()) > t.req.Length {
		if err := out.Truncate(int64(t.req.Length)); err != nil {
			_ = closeOut()
			return t.result(s, t.req.Length, start), t.fileError(em, err)
		}
	}
	if err := closeOut(); err != nil {
		return t.result(s, t.req.Length, start), t.fileError(em, err)
	}

	res := t.result(s, t.req.Length, start)
	t.log.WithFields(logrus.Fields{
		"bytes":   res.Done,
		"chunks":  res.Chunks,
		"elapsed": res.Elapsed,
	}).Info("Flash read complete")
	em.complete()
	return res, nil
}

func (t *ReadTask) fileError(em emitter, err error) error {
	terr := &Error{Kind: KindFileIO, Direction: DirectionRead, Path: t.req.OutPath, Err: err}
	t.log.WithError(err).Error("Output file error")
	em.error(terr)
	return terr
}

// outputWriter tags failures of the local output file so they are not
// mistaken for link errors when they surface through the transport.
type outputWriter struct {
	w    io.Writer
	path string
}

func (o outputWriter) Write(p []byte) (int, error) {
	n, err := o.w.Write(p)
	if err != nil {
		return n, &Error{Kind: KindFileIO, Direction: DirectionRead, Path: o.path, Err: err}
	}
	return n, nil
}
