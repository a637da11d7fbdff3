package app

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdload/internal/config"
	"sdload/internal/coordinator"
	"sdload/internal/dload"
	"sdload/internal/transfer"
)

// memSession is an in-memory device with a flat flash array.
type memSession struct {
	flash  []byte
	caps   transfer.Capabilities
	closed bool
	reads  []uint32
	nops   int
	resets int
	// gate, when set, holds every read until it is closed.
	gate chan struct{}
}

func newMemSession(sectors int) *memSession {
	return &memSession{
		flash: make([]byte, sectors*transfer.SectorSize),
		caps:  transfer.Capabilities{Negotiated: true, MaxPreferredBlockSize: 1024},
	}
}

func (m *memSession) Capabilities() transfer.Capabilities { return m.caps }

func (m *memSession) ReadFlash(address uint32, length int, w io.Writer) (int, error) {
	m.reads = append(m.reads, address)
	if m.gate != nil {
		<-m.gate
	}
	off := int(address) * transfer.SectorSize
	if off+length > len(m.flash) {
		return 0, &transfer.ProtocolError{Code: 0x04, Text: "address out of range"}
	}
	return w.Write(m.flash[off : off+length])
}

func (m *memSession) WriteFlash(address uint32, data []byte) (int, error) {
	off := int(address) * transfer.SectorSize
	if off+len(data) > len(m.flash) {
		return 0, &transfer.ProtocolError{Code: 0x04, Text: "address out of range"}
	}
	return copy(m.flash[off:], data), nil
}

func (m *memSession) Info() (dload.HelloInfo, error) {
	return dload.HelloInfo{MaxPreferredBlockSize: m.caps.MaxPreferredBlockSize, FlashID: "MEM"}, nil
}

func (m *memSession) Nop(context.Context) error {
	m.nops++
	return nil
}

func (m *memSession) Reset(context.Context) error {
	m.resets++
	m.caps = transfer.Capabilities{}
	return nil
}

func (m *memSession) Close() error {
	m.closed = true
	return nil
}

func newTestApp(sess *memSession) (*FlashApp, *bytes.Buffer) {
	var out bytes.Buffer
	cfg := config.NewDefaultConfig()
	dial := func(context.Context) (Session, error) { return sess, nil }
	return NewFlashApp(cfg, dial, &out), &out
}

func TestWriteThenRead(t *testing.T) {
	sess := newMemSession(64)
	a, out := newTestApp(sess)
	dir := t.TempDir()

	image := bytes.Repeat([]byte("sdload"), 1000)
	in := filepath.Join(dir, "image.bin")
	require.NoError(t, os.WriteFile(in, image, 0o644))

	res, err := a.Write(testContext(t), &WriteOptions{Address: 8, InPath: in})
	require.NoError(t, err)
	assert.Equal(t, uint64(len(image)), res.Done)
	assert.Equal(t, image, sess.flash[8*512:8*512+len(image)])
	assert.True(t, sess.closed)
	assert.Contains(t, out.String(), "completed successfully")

	dump := filepath.Join(dir, "dump.bin")
	res, err = a.Read(testContext(t), &ReadOptions{Address: 8, Size: uint64(len(image)), OutPath: dump, Trim: true})
	require.NoError(t, err)
	assert.Equal(t, uint64(6144), res.Total)

	got, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.Equal(t, image, got)
}

func TestReadWithoutTrimKeepsWholeSectors(t *testing.T) {
	sess := newMemSession(8)
	a, _ := newTestApp(sess)
	dump := filepath.Join(t.TempDir(), "dump.bin")

	_, err := a.Read(testContext(t), &ReadOptions{Address: 1, Size: 700, OutPath: dump})
	require.NoError(t, err)

	got, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.Len(t, got, 1024)
	assert.Equal(t, []uint32{1}, sess.reads)
}

func TestReadDeviceRejects(t *testing.T) {
	sess := newMemSession(2)
	a, out := newTestApp(sess)

	_, err := a.Read(testContext(t), &ReadOptions{Address: 1, Size: 2048, OutPath: filepath.Join(t.TempDir(), "d.bin")})
	require.True(t, transfer.IsKind(err, transfer.KindProtocol))
	assert.Contains(t, out.String(), "address out of range")
}

func TestOptionValidation(t *testing.T) {
	a, _ := newTestApp(newMemSession(1))

	_, err := a.Read(testContext(t), &ReadOptions{Size: 512})
	assert.Error(t, err)
	_, err = a.Read(testContext(t), &ReadOptions{OutPath: "x"})
	assert.Error(t, err)
	_, err = a.Write(testContext(t), &WriteOptions{})
	assert.Error(t, err)
	_, err = a.Write(testContext(t), &WriteOptions{InPath: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestDialFailure(t *testing.T) {
	cfg := config.NewDefaultConfig()
	a := NewFlashApp(cfg, func(context.Context) (Session, error) {
		return nil, errors.New("no device")
	}, io.Discard)

	_, err := a.Info(testContext(t))
	require.EqualError(t, err, "no device")
}

func TestInfo(t *testing.T) {
	sess := newMemSession(1)
	a, _ := newTestApp(sess)

	info, err := a.Info(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "MEM", info.FlashID)
	assert.Equal(t, 1, sess.nops)
	assert.True(t, sess.closed)
}

func TestWriteWithReset(t *testing.T) {
	sess := newMemSession(8)
	a, _ := newTestApp(sess)
	in := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(in, bytes.Repeat([]byte{0xA5}, 1024), 0o644))

	_, err := a.Write(testContext(t), &WriteOptions{InPath: in})
	require.NoError(t, err)
	assert.Zero(t, sess.resets)

	_, err = a.Write(testContext(t), &WriteOptions{InPath: in, Reset: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sess.resets)
}

func TestWriteFailureSkipsReset(t *testing.T) {
	sess := newMemSession(1)
	a, _ := newTestApp(sess)
	in := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(in, make([]byte, 2048), 0o644))

	_, err := a.Write(testContext(t), &WriteOptions{InPath: in, Reset: true})
	require.True(t, transfer.IsKind(err, transfer.KindProtocol))
	assert.Zero(t, sess.resets)
}

func TestReset(t *testing.T) {
	sess := newMemSession(1)
	a, _ := newTestApp(sess)

	require.NoError(t, a.Reset(testContext(t)))
	assert.Equal(t, 1, sess.resets)
	assert.True(t, sess.closed)
}

func TestPortBusyDuringTransfer(t *testing.T) {
	sess := newMemSession(8)
	sess.gate = make(chan struct{})
	a, _ := newTestApp(sess)
	dir := t.TempDir()

	readErr := make(chan error, 1)
	go func() {
		_, err := a.Read(testContext(t), &ReadOptions{Size: 512, OutPath: filepath.Join(dir, "dump.bin")})
		readErr <- err
	}()
	require.Eventually(t, func() bool { return a.coord.Active() != nil }, time.Second, time.Millisecond)

	_, err := a.Info(testContext(t))
	require.ErrorIs(t, err, coordinator.ErrPortBusy)
	_, err = a.Read(testContext(t), &ReadOptions{Size: 512, OutPath: filepath.Join(dir, "other.bin")})
	require.ErrorIs(t, err, coordinator.ErrPortBusy)
	require.ErrorIs(t, a.Reset(testContext(t)), coordinator.ErrPortBusy)

	close(sess.gate)
	require.NoError(t, <-readErr)
	require.Eventually(t, func() bool { return a.coord.Active() == nil }, time.Second, time.Millisecond)

	_, err = a.Info(testContext(t))
	require.NoError(t, err)
}
