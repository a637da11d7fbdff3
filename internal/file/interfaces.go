package file

import (
	"io"
)

// Service handles local file access for flash transfers
type Service interface {
	// OpenReader opens an input image for reading and returns its size
	OpenReader(filePath string) (Reader, error)

	// CreateWriter creates or truncates an output dump for writing
	CreateWriter(dstPath string) (Writer, error)

	// GetFileInfo returns information about a file
	GetFileInfo(filePath string) (Info, error)
}

// Reader represents a file opened for reading
type Reader interface {
	io.Reader
	io.Closer

	// Size returns the file size in bytes at open time
	Size() int64

	// Name returns the file name
	Name() string
}

// Writer represents a file opened for writing
type Writer interface {
	io.Writer
	io.Closer

	// Path returns the file path
	Path() string

	// Written returns the number of bytes written so far
	Written() int64

	// Truncate shrinks or extends the file to size bytes
	Truncate(size int64) error
}

// Info contains file metadata
type Info interface {
	// Name returns the file name
	Name() string

	// Size returns the file size in bytes
	Size() int64

	// Path returns the full file path
	Path() string

	// IsDir reports whether the path is a directory
	IsDir() bool
}
