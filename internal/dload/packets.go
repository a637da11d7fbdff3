package dload

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Command identifies a streaming download packet.
type Command byte

const (
	CmdHello         Command = 0x01
	CmdHelloResponse Command = 0x02
	CmdRead          Command = 0x03
	CmdReadData      Command = 0x04
	CmdStreamWrite   Command = 0x07
	CmdBlockWritten  Command = 0x08
	CmdNop           Command = 0x09
	CmdNopResponse   Command = 0x0A
	CmdReset         Command = 0x0B
	CmdResetAck      Command = 0x0C
	CmdError         Command = 0x0D
	CmdLog           Command = 0x0E
)

func (c Command) String() string {
	switch c {
	case CmdHello:
		return "hello"
	case CmdHelloResponse:
		return "hello response"
	case CmdRead:
		return "read"
	case CmdReadData:
		return "read data"
	case CmdStreamWrite:
		return "stream write"
	case CmdBlockWritten:
		return "block written"
	case CmdNop:
		return "nop"
	case CmdNopResponse:
		return "nop response"
	case CmdReset:
		return "reset"
	case CmdResetAck:
		return "reset ack"
	case CmdError:
		return "error"
	case CmdLog:
		return "log"
	default:
		return fmt.Sprintf("command 0x%02X", byte(c))
	}
}

const (
	hostMagic   = "QCOM fast download protocol host"
	targetMagic = "QCOM fast download protocol targ"

	ProtocolVersion           = 0x03
	CompatibleProtocolVersion = 0x03
	FeatureUncompressed       = 0x01

	// MaxReadLength is the largest length a single read request can carry.
	MaxReadLength = 0xFFFF
)

var ErrMalformed = errors.New("malformed packet")

// HelloInfo is the device's answer to a hello.
type HelloInfo struct {
	Version               byte
	CompatibleVersion     byte
	MaxPreferredBlockSize uint32
	BaseFlashAddress      uint32
	FlashID               string
	WindowSize            uint16
	SectorSizes           []uint32
	FeatureBits           byte
}

func helloRequest(features byte) []byte {
	p := make([]byte, 0, 1+len(hostMagic)+3)
	p = append(p, byte(CmdHello))
	p = append(p, hostMagic...)
	return append(p, ProtocolVersion, CompatibleProtocolVersion, features)
}

func parseHelloResponse(p []byte) (HelloInfo, error) {
	var info HelloInfo
	r := bytes.NewReader(p[1:])

	magic := make([]byte, len(targetMagic))
	if _, err := r.Read(magic); err != nil || string(magic) != targetMagic {
		return info, errors.Wrap(ErrMalformed, "hello response magic")
	}

	var head struct {
		Version           byte
		CompatibleVersion byte
		MaxPreferredBlock uint32
		BaseFlashAddress  uint32
		FlashIDLength     byte
	}
	if err := binary.Read(r, binary.LittleEndian, &head); err != nil {
		return info, errors.Wrap(ErrMalformed, "hello response header")
	}
	info.Version = head.Version
	info.CompatibleVersion = head.CompatibleVersion
	info.MaxPreferredBlockSize = head.MaxPreferredBlock
	info.BaseFlashAddress = head.BaseFlashAddress

	id := make([]byte, head.FlashIDLength)
	if _, err := r.Read(id); err != nil && head.FlashIDLength > 0 {
		return info, errors.Wrap(ErrMalformed, "hello response flash id")
	}
	info.FlashID = string(id)

	// Older targets stop after the flash id.
	var tail struct {
		WindowSize      uint16
		NumberOfSectors uint16
	}
	if err := binary.Read(r, binary.LittleEndian, &tail); err != nil {
		return info, nil
	}
	info.WindowSize = tail.WindowSize
	info.SectorSizes = make([]uint32, tail.NumberOfSectors)
	if err := binary.Read(r, binary.LittleEndian, info.SectorSizes); err != nil {
		return info, errors.Wrap(ErrMalformed, "hello response sector sizes")
	}
	if b, err := r.ReadByte(); err == nil {
		info.FeatureBits = b
	}
	return info, nil
}

func readRequest(address uint32, length uint16) []byte {
	p := make([]byte, 7)
	p[0] = byte(CmdRead)
	binary.LittleEndian.PutUint32(p[1:], address)
	binary.LittleEndian.PutUint16(p[5:], length)
	return p
}

// parseAddressed splits a packet of the form cmd, address, data.
func parseAddressed(p []byte) (uint32, []byte, error) {
	if len(p) < 5 {
		return 0, nil, errors.Wrapf(ErrMalformed, "%s packet of %d bytes", Command(p[0]), len(p))
	}
	return binary.LittleEndian.Uint32(p[1:5]), p[5:], nil
}

func streamWriteRequest(address uint32, data []byte) []byte {
	p := make([]byte, 5+len(data))
	p[0] = byte(CmdStreamWrite)
	binary.LittleEndian.PutUint32(p[1:], address)
	copy(p[5:], data)
	return p
}

func parseError(p []byte) (uint32, string) {
	if len(p) < 5 {
		return 0, ""
	}
	return binary.LittleEndian.Uint32(p[1:5]), string(bytes.TrimRight(p[5:], "\x00"))
}

func parseLog(p []byte) string {
	return string(bytes.TrimRight(p[1:], "\x00"))
}
