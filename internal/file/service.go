package file

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// fileService implements Service on the local file system
type fileService struct{}

// NewService creates a new file service
func NewService() Service {
	return &fileService{}
}

// OpenReader opens a file for binary reading and captures its size
func (f *fileService) OpenReader(filePath string) (Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s for reading", filePath)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "stat %s", filePath)
	}
	if stat.IsDir() {
		file.Close()
		return nil, errors.Errorf("%s is a directory", filePath)
	}

	logrus.WithFields(logrus.Fields{
		"function": "OpenReader",
		"path":     filePath,
		"size":     stat.Size(),
	}).Debug("Opened input file")

	return &fileReader{
		file: file,
		size: stat.Size(),
		name: stat.Name(),
	}, nil
}

// CreateWriter creates a file for binary writing, truncating prior contents.
// The parent directory must already exist.
func (f *fileService) CreateWriter(dstPath string) (Writer, error) {
	file, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s for writing", dstPath)
	}

	logrus.WithFields(logrus.Fields{
		"function": "CreateWriter",
		"path":     dstPath,
	}).Debug("Created output file")

	return &fileWriter{
		file: file,
		path: dstPath,
	}, nil
}

// GetFileInfo returns information about a file
func (f *fileService) GetFileInfo(filePath string) (Info, error) {
	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get file info")
	}

	return &fileInfo{
		name:  stat.Name(),
		size:  stat.Size(),
		path:  filePath,
		isDir: stat.IsDir(),
	}, nil
}

// fileReader implements Reader
type fileReader struct {
	file *os.File
	size int64
	name string
}

func (f *fileReader) Read(p []byte) (n int, err error) {
	return f.file.Read(p)
}

func (f *fileReader) Close() error {
	return f.file.Close()
}

func (f *fileReader) Size() int64 {
	return f.size
}

func (f *fileReader) Name() string {
	return f.name
}

// fileWriter implements Writer
type fileWriter struct {
	file    *os.File
	path    string
	written int64
}

func (f *fileWriter) Write(p []byte) (n int, err error) {
	n, err = f.file.Write(p)
	f.written += int64(n)
	return n, err
}

func (f *fileWriter) Close() error {
	return f.file.Close()
}

func (f *fileWriter) Path() string {
	return f.path
}

func (f *fileWriter) Written() int64 {
	return f.written
}

func (f *fileWriter) Truncate(size int64) error {
	if err := f.file.Truncate(size); err != nil {
		return errors.Wrapf(err, "truncate %s to %d bytes", f.path, size)
	}
	if f.written > size {
		f.written = size
	}
	return nil
}

// fileInfo implements Info
type fileInfo struct {
	name  string
	size  int64
	path  string
	isDir bool
}

func (f *fileInfo) Name() string {
	return f.name
}

func (f *fileInfo) Size() int64 {
	return f.size
}

func (f *fileInfo) Path() string {
	return f.path
}

func (f *fileInfo) IsDir() bool {
	return f.isDir
}
