package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// stepFunc performs one chunk at a device address and returns the number of
// bytes the device acknowledged.
type stepFunc func(address uint32, chunk int) (int, error)

// base carries what read and write tasks share: configuration, the port,
// the cancel token and the chunk loop.
type base struct {
	cfg     Config
	port    Transport
	address uint32
	dir     Direction
	token   CancelToken
	log     *logrus.Entry
}

func newBase(port Transport, address uint32, dir Direction, opts []Option) base {
	if port == nil {
		panic("transport cannot be nil")
	}
	cfg := buildConfig(opts)
	return base{
		cfg:     cfg,
		port:    port,
		address: address,
		dir:     dir,
		log: cfg.Logger.WithFields(logrus.Fields{
			"transfer_id": cfg.ID.String(),
			"direction":   dir.String(),
			"address":     fmt.Sprintf("0x%08X", address),
		}),
	}
}

func (b *base) ID() uuid.UUID {
	return b.cfg.ID
}

func (b *base) Direction() Direction {
	return b.dir
}

func (b *base) Cancel() {
	b.token.Cancel()
}

// loop drives chunks until the session is finished. On cancellation or
// failure it calls cleanup before emitting the terminal event and returns
// ErrAborted or the *Error. On success it returns nil and leaves cleanup
// and the complete event to the caller.
func (b *base) loop(ctx context.Context, em emitter, s *session, caps Capabilities, step stepFunc, cleanup func()) error {
	for !s.finished() {
		if b.token.stopRequested(ctx) {
			b.log.WithFields(logrus.Fields{
				"done":  s.done,
				"total": s.total,
			}).Info("Transfer aborted")
			em.log(fmt.Sprintf("Aborted %s", b.dir))
			cleanup()
			em.aborted()
			return ErrAborted
		}

		s.chunk = ChunkSize(s.remaining(), caps, b.cfg.MaxChunkSize)
		addr := s.address(b.address)

		n, err := step(addr, s.chunk)
		if err == nil {
			err = b.checkAck(s, addr, n)
		}
		if err != nil {
			terr := b.chunkError(err, addr, s.chunk)
			b.log.WithFields(logrus.Fields{
				"kind":       terr.Kind.String(),
				"chunk_size": s.chunk,
				"lba":        fmt.Sprintf("0x%08X", addr),
			}).WithError(err).Error("Chunk failed")
			cleanup()
			em.error(terr)
			return terr
		}

		s.advance(n)
		b.log.WithFields(logrus.Fields{
			"lba":         fmt.Sprintf("0x%08X", addr),
			"chunk_size":  s.chunk,
			"transferred": n,
			"done":        s.done,
		}).Debug("Chunk transferred")
		em.progress(s.done, s.total)
	}
	return nil
}

// checkAck validates the device's acknowledged byte count for a chunk.
func (b *base) checkAck(s *session, addr uint32, n int) error {
	if n <= 0 {
		return &Error{Kind: KindStalled, Direction: b.dir, ChunkSize: s.chunk, Address: addr, Expected: s.chunk, Actual: n}
	}
	if !b.cfg.StrictAlignment {
		return nil
	}
	// The write step has consumed the whole chunk from the input, so any
	// shortfall would shift the rest of the file to the wrong sectors.
	if b.dir == DirectionWrite && n != s.chunk {
		return &Error{Kind: KindMisaligned, Direction: b.dir, ChunkSize: s.chunk, Address: addr, Expected: s.chunk, Actual: n}
	}
	if n%SectorSize != 0 && uint64(n) < s.remaining() {
		return &Error{Kind: KindMisaligned, Direction: b.dir, ChunkSize: s.chunk, Address: addr, Expected: s.chunk, Actual: n}
	}
	return nil
}

// chunkError turns a step failure into a transfer *Error. Errors the step
// already classified pass through.
func (b *base) chunkError(err error, addr uint32, chunk int) *Error {
	var terr *Error
	if errors.As(err, &terr) {
		if terr.ChunkSize == 0 {
			terr.ChunkSize = chunk
			terr.Address = addr
		}
		return terr
	}
	return &Error{
		Kind:      Classify(err),
		Direction: b.dir,
		ChunkSize: chunk,
		Address:   addr,
		Err:       err,
	}
}

// checkRange rejects a transfer whose last sector lies beyond the 32-bit
// device address space.
func (b *base) checkRange(total uint64) *Error {
	aligned, _ := AlignToSector(total)
	sectors := Sectors(aligned)
	if uint64(b.address)+sectors <= maxSectors {
		return nil
	}
	return &Error{
		Kind:      KindOutOfRange,
		Direction: b.dir,
		Address:   b.address,
		Err:       errors.Errorf("%d sectors from LBA 0x%08X exceed the device address space", sectors, b.address),
	}
}

func (b *base) result(s *session, requested uint64, start time.Time) Result {
	return Result{
		ID:        b.cfg.ID,
		Direction: b.dir,
		Address:   b.address,
		Requested: requested,
		Total:     s.total,
		Done:      s.done,
		Blocks:    s.blocks,
		Chunks:    s.chunks,
		Elapsed:   time.Since(start),
	}
}
