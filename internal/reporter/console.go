package reporter

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"sdload/internal/transfer"
	"sdload/pkg/utils"
)

// ConsoleSink renders a transfer on a terminal: a progress bar, the
// transfer's log lines above it, and a summary at the end.
type ConsoleSink struct {
	out       io.Writer
	operation string // "Reading" or "Writing"
	throttle  time.Duration

	bar       *progressbar.ProgressBar
	total     uint64
	current   uint64
	startTime time.Time
}

var _ transfer.Sink = (*ConsoleSink)(nil)

// NewConsoleSink creates a sink writing to out, normally os.Stderr.
func NewConsoleSink(out io.Writer, operation string) *ConsoleSink {
	return &ConsoleSink{
		out:       out,
		operation: operation,
		throttle:  100 * time.Millisecond,
	}
}

// HandleEvent implements transfer.Sink.
func (c *ConsoleSink) HandleEvent(ev transfer.Event) {
	switch ev.Kind {
	case transfer.EventStarted:
		c.startTime = time.Now()
		c.initProgressBar()
	case transfer.EventLog:
		c.println(ev.Text)
	case transfer.EventProgress:
		c.updateProgress(ev.Current, ev.Total)
	case transfer.EventError:
		c.stopProgress()
		fmt.Fprintf(c.out, "Error: %s\n", ev.Text)
	case transfer.EventAborted:
		c.stopProgress()
		fmt.Fprintf(c.out, "%s aborted after %s\n", c.operation, utils.FormatFileSize(int64(c.current)))
	case transfer.EventComplete:
		c.completeProgress()
		c.showTransferSummary(time.Since(c.startTime))
	}
}

// initProgressBar creates an indeterminate bar; its size is set by the
// first progress event.
func (c *ConsoleSink) initProgressBar() {
	if c.bar != nil {
		return
	}
	c.bar = progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("%s...", c.operation)),
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(c.throttle),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(false),
	)
}

func (c *ConsoleSink) updateProgress(current, total uint64) {
	if c.bar == nil {
		c.initProgressBar()
	}
	if total != c.total {
		c.total = total
		c.bar.ChangeMax64(int64(total))
	}
	c.current = current

	throughput := 0.0
	if elapsed := time.Since(c.startTime).Seconds(); elapsed > 0 {
		throughput = float64(current) / elapsed / (1024 * 1024)
	}
	c.bar.Describe(fmt.Sprintf("%s (%.2f MB/s)", c.operation, throughput))
	_ = c.bar.Set64(int64(current))
}

func (c *ConsoleSink) println(text string) {
	if c.bar != nil {
		_ = c.bar.Clear()
	}
	fmt.Fprintln(c.out, text)
}

func (c *ConsoleSink) stopProgress() {
	if c.bar == nil {
		return
	}
	_ = c.bar.Exit()
	fmt.Fprintln(c.out)
}

func (c *ConsoleSink) completeProgress() {
	if c.bar == nil {
		return
	}
	_ = c.bar.Finish()
}

// showTransferSummary displays a summary of the completed transfer
func (c *ConsoleSink) showTransferSummary(elapsed time.Duration) {
	throughput := 0.0
	if elapsed.Seconds() > 0 {
		throughput = float64(c.current) / elapsed.Seconds() / (1024 * 1024)
	}
	percentage := 100.0
	if c.total > 0 {
		percentage = float64(c.current) / float64(c.total) * 100
	}

	fmt.Fprintf(c.out, "\n=============================================\n")
	fmt.Fprintf(c.out, "%s completed successfully!\n", c.operation)
	fmt.Fprintf(c.out, "+ Total bytes: %s\n", utils.FormatFileSize(int64(c.current)))
	fmt.Fprintf(c.out, "+ Transfer time: %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(c.out, "+ Average throughput: %.2f MB/s\n", throughput)
	fmt.Fprintf(c.out, "+ Completion: %.1f%%\n", percentage)
	fmt.Fprintf(c.out, "=============================================\n")
}
