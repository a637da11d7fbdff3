package transfer

const (
	// SectorSize is the device sector size. Device addresses count sectors.
	SectorSize = 512

	// DefaultMaxChunkSize is the protocol's absolute chunk limit, used when
	// the link was not negotiated or no preferred size was advertised.
	DefaultMaxChunkSize = 1024

	// maxSectors is the number of sectors a 32-bit device address can reach.
	maxSectors = 1 << 32
)

// ChunkSize returns the size of the next chunk given the bytes remaining.
// A negotiated, non-zero preferred block size caps the chunk; otherwise
// protocolMax does. The result never exceeds remaining.
func ChunkSize(remaining uint64, caps Capabilities, protocolMax int) int {
	limit := uint64(protocolMax)
	if caps.Negotiated && caps.MaxPreferredBlockSize != 0 {
		limit = uint64(caps.MaxPreferredBlockSize)
	}
	if remaining < limit {
		return int(remaining)
	}
	return int(limit)
}

// EffectiveMax returns the chunk size ceiling for caps.
func EffectiveMax(caps Capabilities, protocolMax int) int {
	if caps.Negotiated && caps.MaxPreferredBlockSize != 0 {
		return int(caps.MaxPreferredBlockSize)
	}
	return protocolMax
}

// AlignToSector rounds n up to the next multiple of SectorSize and reports
// whether n had to be adjusted.
func AlignToSector(n uint64) (uint64, bool) {
	rem := n % SectorSize
	if rem == 0 {
		return n, false
	}
	return n + (SectorSize - rem), true
}

// Sectors returns the number of whole sectors in n bytes.
func Sectors(n uint64) uint64 {
	return n / SectorSize
}
