// Package serial opens the host side of the device link.
package serial

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Options describes how to open a port.
type Options struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

// TimeoutError is returned by Link.Read when no data arrived within the read
// timeout.
type TimeoutError struct {
	Port  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no data within %s", e.Port, e.After)
}

// Timeout marks the error as a timeout for callers that retry.
func (e *TimeoutError) Timeout() bool { return true }

// Link is an open serial port. A read that times out returns a
// *TimeoutError instead of zero bytes.
type Link struct {
	port    serial.Port
	name    string
	timeout time.Duration
}

// openFunc is replaced in tests.
var openFunc = serial.Open

// Open opens and configures the port, discarding any stale input.
func Open(opts Options) (*Link, error) {
	if opts.Port == "" {
		return nil, errors.New("no serial port given")
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := openFunc(opts.Port, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open port %s", opts.Port)
	}

	if opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
			port.Close()
			return nil, errors.Wrap(err, "failed to set read timeout")
		}
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to flush input")
	}

	logrus.WithFields(logrus.Fields{
		"function": "Open",
		"port":     opts.Port,
		"baud":     opts.BaudRate,
		"timeout":  opts.ReadTimeout,
	}).Debug("Serial port opened")

	return &Link{port: port, name: opts.Port, timeout: opts.ReadTimeout}, nil
}

// Name returns the port name.
func (l *Link) Name() string {
	return l.name
}

func (l *Link) Read(p []byte) (int, error) {
	n, err := l.port.Read(p)
	if err != nil {
		return n, errors.Wrapf(err, "read %s", l.name)
	}
	if n == 0 && len(p) > 0 {
		return 0, &TimeoutError{Port: l.name, After: l.timeout}
	}
	return n, nil
}

func (l *Link) Write(p []byte) (int, error) {
	n, err := l.port.Write(p)
	if err != nil {
		return n, errors.Wrapf(err, "write %s", l.name)
	}
	return n, nil
}

func (l *Link) Close() error {
	return l.port.Close()
}

// PortInfo describes a port found on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s  USB %s:%s", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += "  " + p.Product
	}
	if p.SerialNumber != "" {
		s += "  serial=" + p.SerialNumber
	}
	return s
}

// listFunc is replaced in tests.
var listFunc = enumerator.GetDetailedPortsList

// ListPorts returns the serial ports on the host, sorted by name.
func ListPorts() ([]PortInfo, error) {
	details, err := listFunc()
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate ports")
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}
