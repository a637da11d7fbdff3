package dload

import (
	"bytes"
	"encoding/binary"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"sdload/internal/transfer"
)

// fakeDevice answers streaming download requests from an in-memory flash.
type fakeDevice struct {
	conn   net.Conn
	frames *frameReader

	mu        sync.Mutex
	flash     []byte
	maxBlock  uint32
	writes    []uint32
	failAt    map[uint32]uint32 // sector address -> error code
	chatty    bool              // send a log packet before each response
	shortRead int               // cap read responses at this many bytes when > 0
	silent    int               // number of requests to ignore
}

func newFakeDevice(t *testing.T, sectors int) (*fakeDevice, net.Conn) {
	t.Helper()
	host, dev := net.Pipe()
	d := &fakeDevice{
		conn:     dev,
		frames:   newFrameReader(dev),
		flash:    make([]byte, sectors*transfer.SectorSize),
		maxBlock: 1024,
		failAt:   make(map[uint32]uint32),
	}
	go d.serve()
	t.Cleanup(func() {
		host.Close()
		dev.Close()
	})
	return d, host
}

func (d *fakeDevice) send(payload []byte) {
	_, _ = d.conn.Write(encodeFrame(payload))
}

func (d *fakeDevice) serve() {
	for {
		req, err := d.frames.next()
		if err != nil {
			return
		}
		d.mu.Lock()
		if d.silent > 0 {
			d.silent--
			d.mu.Unlock()
			continue
		}
		if d.chatty {
			d.send(append([]byte{byte(CmdLog)}, "busy"...))
		}
		d.handle(req)
		d.mu.Unlock()
	}
}

func (d *fakeDevice) handle(req []byte) {
	switch Command(req[0]) {
	case CmdHello:
		d.send(d.helloResponse())
	case CmdRead:
		addr := binary.LittleEndian.Uint32(req[1:5])
		n := int(binary.LittleEndian.Uint16(req[5:7]))
		if code, ok := d.failAt[addr]; ok {
			d.send(errorPacket(code, "read failed"))
			return
		}
		if d.shortRead > 0 && n > d.shortRead {
			n = d.shortRead
		}
		off := int(addr) * transfer.SectorSize
		resp := make([]byte, 5, 5+n)
		resp[0] = byte(CmdReadData)
		binary.LittleEndian.PutUint32(resp[1:], addr)
		d.send(append(resp, d.flash[off:off+n]...))
	case CmdStreamWrite:
		addr := binary.LittleEndian.Uint32(req[1:5])
		if code, ok := d.failAt[addr]; ok {
			d.send(errorPacket(code, "write protected"))
			return
		}
		copy(d.flash[int(addr)*transfer.SectorSize:], req[5:])
		d.writes = append(d.writes, addr)
		resp := make([]byte, 5)
		resp[0] = byte(CmdBlockWritten)
		binary.LittleEndian.PutUint32(resp[1:], addr)
		d.send(resp)
	case CmdNop:
		d.send([]byte{byte(CmdNopResponse)})
	case CmdReset:
		d.send([]byte{byte(CmdResetAck)})
	default:
		d.send([]byte{0x7F})
	}
}

func (d *fakeDevice) helloResponse() []byte {
	var b bytes.Buffer
	b.WriteByte(byte(CmdHelloResponse))
	b.WriteString(targetMagic)
	b.WriteByte(ProtocolVersion)
	b.WriteByte(CompatibleProtocolVersion)
	_ = binary.Write(&b, binary.LittleEndian, d.maxBlock)
	_ = binary.Write(&b, binary.LittleEndian, uint32(0))
	id := "FAKE-NAND"
	b.WriteByte(byte(len(id)))
	b.WriteString(id)
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, uint16(2))
	_ = binary.Write(&b, binary.LittleEndian, []uint32{transfer.SectorSize, transfer.SectorSize})
	b.WriteByte(FeatureUncompressed)
	return b.Bytes()
}

func errorPacket(code uint32, text string) []byte {
	p := make([]byte, 5, 5+len(text))
	p[0] = byte(CmdError)
	binary.LittleEndian.PutUint32(p[1:], code)
	return append(p, text...)
}

// deadlineConn applies a fresh read deadline to every read, the way a
// serial port with a read timeout behaves.
type deadlineConn struct {
	conn    net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
