// Package apperr holds the error kinds shared across memo packages.
package apperr

import "errors"

// ErrNotFound is returned by the index on a lookup miss.
var ErrNotFound = errors.New("not found")

// Repository error kinds.
var (
	// ErrDirectoryUnavailable: the documents directory is missing and cannot be created.
	ErrDirectoryUnavailable = errors.New("directory unavailable")
	// ErrWriteFailure: content could not be written to its file.
	ErrWriteFailure = errors.New("write failure")
	// ErrReadFailure: content file exists but could not be read.
	ErrReadFailure = errors.New("read failure")
	// ErrFileNotFound: the index references a file that does not exist.
	ErrFileNotFound = errors.New("file not found")
	// ErrUnknownHandle: the handle has no index record.
	ErrUnknownHandle = errors.New("unknown handle")
	// ErrIndexWriteFailure: content was persisted but the index could not record it.
	ErrIndexWriteFailure = errors.New("index write failure")
)
