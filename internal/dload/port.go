// Package dload implements the streaming download protocol used to read and
// write device flash over a serial link. Port satisfies transfer.Transport.
package dload

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sdload/internal/transfer"
)

// ErrNotNegotiated is returned by operations that need a completed hello.
var ErrNotNegotiated = errors.New("hello has not been negotiated")

// Port is an exclusive, stateful handle on one device link.
type Port struct {
	rw     io.ReadWriter
	frames *frameReader

	mu      sync.Mutex
	caps    transfer.Capabilities
	info    HelloInfo
	retries int
	log     *logrus.Entry
}

var _ transfer.Transport = (*Port)(nil)

// PortOption configures a Port.
type PortOption func(*Port)

// WithLogger sets the logger for protocol diagnostics.
func WithLogger(l *logrus.Entry) PortOption {
	return func(p *Port) {
		if l != nil {
			p.log = l
		}
	}
}

// WithHelloRetries sets how many times a timed-out hello is resent.
func WithHelloRetries(n int) PortOption {
	return func(p *Port) {
		if n >= 0 {
			p.retries = n
		}
	}
}

// NewPort wraps rw, which is normally an open serial port.
func NewPort(rw io.ReadWriter, opts ...PortOption) *Port {
	p := &Port{
		rw:      rw,
		frames:  newFrameReader(rw),
		retries: 2,
		log:     logrus.WithField("component", "dload"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Hello negotiates the session and records the device's capabilities.
// A hello that times out is resent up to the configured retry count.
func (p *Port) Hello(ctx context.Context) (HelloInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return HelloInfo{}, err
		}

		resp, err := p.exchange("hello", helloRequest(FeatureUncompressed), CmdHelloResponse)
		if err != nil {
			lastErr = err
			if isTimeout(err) {
				p.log.WithField("attempt", attempt+1).Debug("Hello timed out")
				continue
			}
			return HelloInfo{}, err
		}

		info, err := parseHelloResponse(resp)
		if err != nil {
			return HelloInfo{}, &transfer.LinkError{Op: "hello", Err: err}
		}

		p.info = info
		p.caps = transfer.Capabilities{Negotiated: true, MaxPreferredBlockSize: info.MaxPreferredBlockSize}
		p.log.WithFields(logrus.Fields{
			"version":        info.Version,
			"max_block_size": info.MaxPreferredBlockSize,
			"flash_id":       info.FlashID,
			"base_address":   fmt.Sprintf("0x%08X", info.BaseFlashAddress),
			"sector_count":   len(info.SectorSizes),
		}).Info("Hello negotiated")
		return info, nil
	}
	return HelloInfo{}, lastErr
}

// Capabilities returns the negotiation snapshot. Before Hello it reports
// an unnegotiated link.
func (p *Port) Capabilities() transfer.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.caps
}

// Info returns the last hello response.
func (p *Port) Info() (HelloInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.caps.Negotiated {
		return HelloInfo{}, ErrNotNegotiated
	}
	return p.info, nil
}

// ReadFlash reads length bytes starting at the sector address into w. Reads
// larger than one request can carry are split on sector boundaries. A short
// response ends the call early with the bytes received so far.
func (p *Port) ReadFlash(address uint32, length int, w io.Writer) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	const maxRequest = MaxReadLength &^ (transfer.SectorSize - 1)

	total := 0
	addr := address
	for total < length {
		n := min(length-total, maxRequest)
		resp, err := p.exchange("read", readRequest(addr, uint16(n)), CmdReadData)
		if err != nil {
			return total, err
		}

		got, data, err := parseAddressed(resp)
		if err != nil {
			return total, &transfer.LinkError{Op: "read", Err: err}
		}
		if got != addr {
			return total, &transfer.LinkError{Op: "read", Err: errors.Errorf("response for 0x%08X, expected 0x%08X", got, addr)}
		}
		if len(data) > n {
			return total, &transfer.LinkError{Op: "read", Err: errors.Errorf("device returned %d bytes for a %d byte request", len(data), n)}
		}

		written, err := w.Write(data)
		total += written
		if err != nil {
			return total, errors.Wrap(err, "write read data")
		}
		if len(data) < n {
			break
		}
		addr += uint32(len(data) / transfer.SectorSize)
	}
	return total, nil
}

// WriteFlash streams data to the sector address and waits for the device to
// acknowledge the block.
func (p *Port) WriteFlash(address uint32, data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	resp, err := p.exchange("write", streamWriteRequest(address, data), CmdBlockWritten)
	if err != nil {
		return 0, err
	}
	got, _, err := parseAddressed(resp)
	if err != nil {
		return 0, &transfer.LinkError{Op: "write", Err: err}
	}
	if got != address {
		return 0, &transfer.LinkError{Op: "write", Err: errors.Errorf("acknowledged 0x%08X, expected 0x%08X", got, address)}
	}
	return len(data), nil
}

// Nop checks that the device is still responding.
func (p *Port) Nop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.exchange("nop", []byte{byte(CmdNop)}, CmdNopResponse)
	return err
}

// Reset asks the device to reboot. The port is unusable afterwards.
func (p *Port) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.exchange("reset", []byte{byte(CmdReset)}, CmdResetAck); err != nil {
		return err
	}
	p.caps = transfer.Capabilities{}
	return nil
}

// Close closes the underlying link if it can be closed.
func (p *Port) Close() error {
	if c, ok := p.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// exchange sends one request and waits for the expected response. Device log
// packets received while waiting are logged and skipped. Callers hold mu.
func (p *Port) exchange(op string, req []byte, want Command) ([]byte, error) {
	if _, err := p.rw.Write(encodeFrame(req)); err != nil {
		return nil, &transfer.LinkError{Op: op, Err: err}
	}

	for {
		resp, err := p.frames.next()
		if err != nil {
			return nil, &transfer.LinkError{Op: op, Err: err}
		}

		switch cmd := Command(resp[0]); cmd {
		case want:
			return resp, nil
		case CmdLog:
			p.log.WithField("op", op).Info("Device: " + parseLog(resp))
		case CmdError:
			code, text := parseError(resp)
			return nil, &transfer.ProtocolError{Code: code, Text: text}
		default:
			return nil, &transfer.LinkError{Op: op, Err: errors.Errorf("unexpected %s response", cmd)}
		}
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
