// Package reporter turns transfer events into terminal output and log
// records.
package reporter

import (
	"github.com/sirupsen/logrus"

	"sdload/internal/transfer"
)

// LogSink mirrors transfer events into logrus. Progress is logged at debug
// level so it stays quiet by default.
type LogSink struct {
	log *logrus.Entry
}

var _ transfer.Sink = (*LogSink)(nil)

// NewLogSink creates a sink logging through entry, or the standard logger
// if entry is nil.
func NewLogSink(entry *logrus.Entry) *LogSink {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogSink{log: entry}
}

// HandleEvent implements transfer.Sink.
func (l *LogSink) HandleEvent(ev transfer.Event) {
	entry := l.log.WithFields(logrus.Fields{
		"transfer_id": ev.TransferID.String(),
		"event":       ev.Kind.String(),
	})

	switch ev.Kind {
	case transfer.EventStarted:
		entry.Info("Transfer started")
	case transfer.EventLog:
		entry.Info(ev.Text)
	case transfer.EventProgress:
		entry.WithFields(logrus.Fields{
			"current": ev.Current,
			"total":   ev.Total,
		}).Debug("Transfer progress")
	case transfer.EventError:
		if ev.Err != nil {
			entry = entry.WithField("kind", transfer.KindOf(ev.Err).String())
		}
		entry.Error(ev.Text)
	case transfer.EventAborted:
		entry.Warn("Transfer aborted")
	case transfer.EventComplete:
		entry.Info("Transfer complete")
	}
}
