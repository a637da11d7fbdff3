package transfer

// session holds the mutable counters of one running transfer. It lives for
// a single Run call.
type session struct {
	total  uint64
	done   uint64
	chunk  int
	blocks uint32
	chunks int
}

func (s *session) remaining() uint64 {
	return s.total - s.done
}

func (s *session) finished() bool {
	return s.done >= s.total
}

// address returns the device address of the next chunk.
func (s *session) address(base uint32) uint32 {
	return base + s.blocks
}

// advance accounts for a completed chunk. The block counter truncates:
// a partial sector does not move the device address.
func (s *session) advance(transferred int) {
	s.done += uint64(transferred)
	s.blocks += uint32(transferred / SectorSize)
	s.chunks++
}
