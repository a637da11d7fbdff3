package transfer

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"sdload/internal/file"
)

// memReader is an in-memory file.Reader. size may differ from the content
// length to simulate a file that shrinks after open.
type memReader struct {
	*bytes.Reader
	name   string
	size   int64
	closed bool
}

func (r *memReader) Size() int64  { return r.size }
func (r *memReader) Name() string { return r.name }
func (r *memReader) Close() error {
	r.closed = true
	return nil
}

type memWriter struct {
	bytes.Buffer
	path     string
	closed   bool
	writeErr error
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.Buffer.Write(p)
}

func (w *memWriter) Path() string   { return w.path }
func (w *memWriter) Written() int64 { return int64(w.Len()) }
func (w *memWriter) Close() error {
	w.closed = true
	return nil
}

func (w *memWriter) Truncate(size int64) error {
	w.Buffer.Truncate(int(size))
	return nil
}

// memFiles serves one reader and records the writers it creates.
type memFiles struct {
	reader   *memReader
	writers  map[string]*memWriter
	openErr  error
	writeErr error
}

func newMemFiles() *memFiles {
	return &memFiles{writers: make(map[string]*memWriter)}
}

func (m *memFiles) withInput(name string, data []byte) *memFiles {
	m.reader = &memReader{Reader: bytes.NewReader(data), name: name, size: int64(len(data))}
	return m
}

func (m *memFiles) OpenReader(path string) (file.Reader, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	if m.reader == nil {
		return nil, os.ErrNotExist
	}
	return m.reader, nil
}

func (m *memFiles) CreateWriter(path string) (file.Writer, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	w := &memWriter{path: path, writeErr: m.writeErr}
	m.writers[path] = w
	return w, nil
}

func (m *memFiles) GetFileInfo(path string) (file.Info, error) {
	return nil, os.ErrNotExist
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// pattern returns n bytes of deterministic test data.
func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

// fillRead returns a ReadFlash stub that writes the requested amount of
// data and reports it as transferred.
func fillRead(fill byte) func(uint32, int, io.Writer) (int, error) {
	return func(_ uint32, length int, w io.Writer) (int, error) {
		return w.Write(bytes.Repeat([]byte{fill}, length))
	}
}

// runTask runs task and returns its result, error and the events it emitted.
func runTask(t *testing.T, task Task) (Result, error, []Event) {
	t.Helper()
	events := make(chan Event, 256)
	res, err := task.Run(testContext(t), events)
	close(events)

	var got []Event
	for ev := range events {
		require.Equal(t, task.ID(), ev.TransferID)
		got = append(got, ev)
	}
	return res, err, got
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func count(events []Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func logs(events []Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Kind == EventLog {
			out = append(out, ev.Text)
		}
	}
	return out
}

// requireOneTerminal checks that exactly one terminal event was emitted and
// that it is the last event.
func requireOneTerminal(t *testing.T, events []Event, want EventKind) {
	t.Helper()
	terminal := 0
	for _, ev := range events {
		if ev.Terminal() {
			terminal++
		}
	}
	require.Equal(t, 1, terminal)
	require.NotEmpty(t, events)
	require.Equal(t, want, events[len(events)-1].Kind)
}
