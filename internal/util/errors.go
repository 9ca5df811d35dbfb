package util

import "errors"

// Sentinel errors for the failure classes of a load run
var (
	// ErrParse indicates a malformed JSON line, a missing required field or an unreadable file
	ErrParse = errors.New("parse error")

	// ErrEmptyFile indicates a song-metadata file without any record
	ErrEmptyFile = errors.New("empty file")

	// ErrStorage indicates a failed write or query against the warehouse
	ErrStorage = errors.New("storage error")

	// ErrConnection indicates the warehouse could not be reached
	ErrConnection = errors.New("connection failed")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRecovered indicates a panic while processing a single file
	ErrRecovered = errors.New("recovered panic")
)

// IsContained reports whether err only invalidates the current file.
// Parse, empty-file and recovered-panic failures are logged and the batch
// moves on. Everything else aborts the run.
func IsContained(err error) bool {
	return errors.Is(err, ErrParse) || errors.Is(err, ErrEmptyFile) || errors.Is(err, ErrRecovered)
}
