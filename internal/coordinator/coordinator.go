// Package coordinator serialises transfers against a single device port and
// pumps each transfer's events to a sink.
package coordinator

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sdload/internal/transfer"
)

// ErrPortBusy is returned by Start while another transfer owns the port.
var ErrPortBusy = errors.New("port is busy with another transfer")

const defaultEventBuffer = 64

// Coordinator grants exclusive use of one port to at most one transfer at a
// time.
type Coordinator struct {
	mu     sync.Mutex
	active *Handle

	sink   transfer.Sink
	buffer int
	log    *logrus.Entry
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithEventBuffer sets the capacity of each transfer's event channel.
func WithEventBuffer(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a coordinator that delivers events to sink. A nil sink
// discards them.
func New(sink transfer.Sink, opts ...Option) *Coordinator {
	c := &Coordinator{
		sink:   sink,
		buffer: defaultEventBuffer,
		log:    logrus.WithField("component", "coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle tracks one running transfer.
type Handle struct {
	task   transfer.Task
	cancel context.CancelFunc
	done   chan struct{}

	result transfer.Result
	err    error
}

// ID returns the transfer ID.
func (h *Handle) ID() uuid.UUID {
	return h.task.ID()
}

// Cancel requests cooperative cancellation. The chunk in flight completes
// first.
func (h *Handle) Cancel() {
	h.task.Cancel()
	h.cancel()
}

// Done is closed once the transfer has finished and every event has been
// delivered.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the transfer has finished and its events are drained.
func (h *Handle) Wait() (transfer.Result, error) {
	<-h.done
	return h.result, h.err
}

// Active returns the running transfer, or nil.
func (c *Coordinator) Active() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Start runs task on its own goroutine and its events on a second one. The
// port is released once both have finished.
func (c *Coordinator) Start(ctx context.Context, task transfer.Task) (*Handle, error) {
	return c.StartWith(ctx, task, c.sink)
}

// StartWith is Start with events delivered to sink instead of the
// coordinator's own.
func (c *Coordinator) StartWith(ctx context.Context, task transfer.Task, sink transfer.Sink) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.log.WithFields(logrus.Fields{
			"function": "Start",
			"active":   c.active.ID().String(),
			"rejected": task.ID().String(),
		}).Warn("Transfer rejected, port busy")
		return nil, ErrPortBusy
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		task:   task,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.active = h

	events := make(chan transfer.Event, c.buffer)
	var g errgroup.Group

	g.Go(func() error {
		defer close(events)
		res, err := task.Run(runCtx, events)
		h.result = res
		return err
	})

	g.Go(func() error {
		transfer.Dispatch(events, sink)
		return nil
	})

	c.log.WithFields(logrus.Fields{
		"function":    "Start",
		"transfer_id": task.ID().String(),
		"direction":   task.Direction().String(),
	}).Debug("Transfer started")

	go func() {
		h.err = g.Wait()
		cancel()

		c.mu.Lock()
		if c.active == h {
			c.active = nil
		}
		c.mu.Unlock()

		c.log.WithFields(logrus.Fields{
			"function":    "Start",
			"transfer_id": task.ID().String(),
		}).WithError(h.err).Debug("Transfer finished, port released")
		close(h.done)
	}()

	return h, nil
}

// Run starts task and waits for it.
func (c *Coordinator) Run(ctx context.Context, task transfer.Task) (transfer.Result, error) {
	return c.RunWith(ctx, task, c.sink)
}

// RunWith starts task with events going to sink and waits for it.
func (c *Coordinator) RunWith(ctx context.Context, task transfer.Task, sink transfer.Sink) (transfer.Result, error) {
	h, err := c.StartWith(ctx, task, sink)
	if err != nil {
		return transfer.Result{}, err
	}
	return h.Wait()
}
