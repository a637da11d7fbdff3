package dload

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	flagByte   = 0x7E
	escapeByte = 0x7D
	escapeMask = 0x20

	// maxFrameSize bounds a decoded frame so a noisy line cannot grow the
	// buffer without limit.
	maxFrameSize = 64 << 10
)

var (
	ErrBadChecksum   = errors.New("frame checksum mismatch")
	ErrShortFrame    = errors.New("frame too short")
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrBadEscape     = errors.New("invalid escape sequence")
)

var crcTable = func() [256]uint16 {
	var table [256]uint16
	for i := range table {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
		table[i] = crc
	}
	return table
}()

// crc16 computes CRC-16/X.25 over data.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = (crc >> 8) ^ crcTable[byte(crc)^b]
	}
	return ^crc
}

// encodeFrame wraps payload in an HDLC frame: a leading flag, the escaped
// payload and checksum, and a trailing flag.
func encodeFrame(payload []byte) []byte {
	var sum [2]byte
	binary.LittleEndian.PutUint16(sum[:], crc16(payload))

	out := make([]byte, 0, len(payload)+len(payload)/8+6)
	out = append(out, flagByte)
	for _, b := range [][]byte{payload, sum[:]} {
		for _, c := range b {
			if c == flagByte || c == escapeByte {
				out = append(out, escapeByte, c^escapeMask)
				continue
			}
			out = append(out, c)
		}
	}
	return append(out, flagByte)
}

// frameReader splits an HDLC byte stream into verified payloads.
type frameReader struct {
	r   *bufio.Reader
	buf []byte
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReader(r)}
}

// next returns the payload of the next non-empty frame. The checksum is
// stripped and verified. A corrupt frame is reported and discarded; the
// following call resumes at the next flag.
func (f *frameReader) next() ([]byte, error) {
	for {
		f.buf = f.buf[:0]
		escaped := false
		var frameErr error

		for {
			c, err := f.r.ReadByte()
			if err != nil {
				return nil, err
			}
			if c == flagByte {
				break
			}
			if frameErr != nil {
				continue
			}
			switch {
			case escaped:
				f.buf = append(f.buf, c^escapeMask)
				escaped = false
			case c == escapeByte:
				escaped = true
			default:
				f.buf = append(f.buf, c)
			}
			if len(f.buf) > maxFrameSize {
				frameErr = ErrFrameTooLarge
			}
		}

		if frameErr != nil {
			return nil, frameErr
		}
		if escaped {
			return nil, ErrBadEscape
		}
		if len(f.buf) == 0 {
			// back-to-back flags
			continue
		}
		if len(f.buf) < 3 {
			return nil, ErrShortFrame
		}

		payload := f.buf[:len(f.buf)-2]
		want := binary.LittleEndian.Uint16(f.buf[len(f.buf)-2:])
		if crc16(payload) != want {
			return nil, ErrBadChecksum
		}
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}
}
