// Package app wires configuration, the device link and the transfer engine
// into the operations the command line exposes.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sdload/internal/config"
	"sdload/internal/coordinator"
	"sdload/internal/dload"
	"sdload/internal/reporter"
	"sdload/internal/serial"
	"sdload/internal/transfer"
)

// Session is a negotiated connection to a device.
type Session interface {
	transfer.Transport
	Info() (dload.HelloInfo, error)
	Nop(ctx context.Context) error
	Reset(ctx context.Context) error
	Close() error
}

// Dialer opens and negotiates a Session.
type Dialer func(ctx context.Context) (Session, error)

// SerialDialer returns a Dialer that opens the configured serial port and
// performs the hello handshake.
func SerialDialer(cfg *config.Config) Dialer {
	return func(ctx context.Context) (Session, error) {
		link, err := serial.Open(serial.Options{
			Port:        cfg.Serial.Port,
			BaudRate:    cfg.Serial.BaudRate,
			ReadTimeout: cfg.Serial.ReadTimeout,
		})
		if err != nil {
			return nil, err
		}

		port := dload.NewPort(link,
			dload.WithHelloRetries(cfg.Serial.HelloRetries),
			dload.WithLogger(logrus.WithField("port", cfg.Serial.Port)),
		)
		if _, err := port.Hello(ctx); err != nil {
			port.Close()
			return nil, errors.Wrap(err, "hello failed")
		}
		return port, nil
	}
}

// ReadOptions configures a flash read
type ReadOptions struct {
	Address uint32 // Required: start sector
	Size    uint64 // Required: bytes to read
	OutPath string // Required: output file
	Trim    bool   // Truncate output to Size instead of whole sectors
}

// WriteOptions configures a flash write
type WriteOptions struct {
	Address  uint32 // Required: start sector
	InPath   string // Required: image to write
	Unframed bool
	Reset    bool // Reboot the device after a successful write
}

// FlashApp runs flash operations against one device
type FlashApp struct {
	config *config.Config
	dial   Dialer
	coord  *coordinator.Coordinator
	out    io.Writer
	log    *logrus.Entry
}

// NewFlashApp creates a new flash application. Progress is rendered on out.
func NewFlashApp(cfg *config.Config, dial Dialer, out io.Writer) *FlashApp {
	if out == nil {
		out = os.Stderr
	}
	log := logrus.WithField("component", "app")
	coord := coordinator.New(nil,
		coordinator.WithEventBuffer(cfg.Transfer.EventBuffer),
		coordinator.WithLogger(log),
	)
	return &FlashApp{
		config: cfg,
		dial:   dial,
		coord:  coord,
		out:    out,
		log:    log,
	}
}

// Read dumps flash into a local file.
func (a *FlashApp) Read(ctx context.Context, opts *ReadOptions) (transfer.Result, error) {
	if opts.OutPath == "" {
		return transfer.Result{}, fmt.Errorf("output path is required")
	}
	if opts.Size == 0 {
		return transfer.Result{}, fmt.Errorf("size must be greater than 0")
	}

	sess, err := a.open(ctx)
	if err != nil {
		return transfer.Result{}, err
	}
	defer a.closeSession(sess)

	task := transfer.NewReadTask(sess, transfer.ReadRequest{
		Address: opts.Address,
		Length:  opts.Size,
		OutPath: opts.OutPath,
	}, a.taskOptions(transfer.WithTrimOutput(opts.Trim || a.config.Transfer.TrimOutput))...)

	return a.run(ctx, task, "Reading")
}

// Write programs a local file into flash.
func (a *FlashApp) Write(ctx context.Context, opts *WriteOptions) (transfer.Result, error) {
	if opts.InPath == "" {
		return transfer.Result{}, fmt.Errorf("input path is required")
	}
	if _, err := os.Stat(opts.InPath); os.IsNotExist(err) {
		return transfer.Result{}, fmt.Errorf("file does not exist: %s", opts.InPath)
	}

	sess, err := a.open(ctx)
	if err != nil {
		return transfer.Result{}, err
	}
	defer a.closeSession(sess)

	task := transfer.NewWriteTask(sess, transfer.WriteRequest{
		Address:  opts.Address,
		InPath:   opts.InPath,
		Unframed: opts.Unframed,
	}, a.taskOptions()...)

	res, err := a.run(ctx, task, fmt.Sprintf("Writing %s", filepath.Base(opts.InPath)))
	if err != nil || !opts.Reset {
		return res, err
	}
	if err := sess.Reset(ctx); err != nil {
		return res, errors.Wrap(err, "reset after write")
	}
	a.log.Info("Device reset")
	return res, nil
}

// Info negotiates with the device, checks that it still answers and
// returns its hello response.
func (a *FlashApp) Info(ctx context.Context) (dload.HelloInfo, error) {
	sess, err := a.open(ctx)
	if err != nil {
		return dload.HelloInfo{}, err
	}
	defer a.closeSession(sess)

	info, err := sess.Info()
	if err != nil {
		return dload.HelloInfo{}, err
	}
	if err := sess.Nop(ctx); err != nil {
		return dload.HelloInfo{}, errors.Wrap(err, "device not responding")
	}
	return info, nil
}

// Reset negotiates with the device and asks it to reboot.
func (a *FlashApp) Reset(ctx context.Context) error {
	sess, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer a.closeSession(sess)

	if err := sess.Reset(ctx); err != nil {
		return err
	}
	a.log.Info("Device reset")
	return nil
}

// open dials the device unless a transfer already holds the port.
func (a *FlashApp) open(ctx context.Context) (Session, error) {
	if h := a.coord.Active(); h != nil {
		a.log.WithField("active", h.ID().String()).Warn("Port busy")
		return nil, coordinator.ErrPortBusy
	}
	return a.dial(ctx)
}

func (a *FlashApp) taskOptions(extra ...transfer.Option) []transfer.Option {
	opts := []transfer.Option{
		transfer.WithMaxChunkSize(a.config.Transfer.MaxChunkSize),
		transfer.WithStrictAlignment(a.config.Transfer.StrictAlignment),
		transfer.WithLogger(a.log),
	}
	return append(opts, extra...)
}

func (a *FlashApp) run(ctx context.Context, task transfer.Task, operation string) (transfer.Result, error) {
	// The progress bar would interleave with JSON log lines.
	var sink transfer.Sink = reporter.NewConsoleSink(a.out, operation)
	if a.config.Log.JSON {
		sink = reporter.NewLogSink(a.log)
	}
	return a.coord.RunWith(ctx, task, sink)
}

func (a *FlashApp) closeSession(sess Session) {
	if err := sess.Close(); err != nil {
		a.log.WithError(err).Warn("Error closing device session")
	}
}
