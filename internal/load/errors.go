package load

import (
	"errors"
	"fmt"

	"github.com/franz/songplay-etl/internal/util"
)

// ErrMultipleRecords is returned for a multi-record song file under MultiRecordError
var ErrMultipleRecords = errors.New("song file holds more than one record")

// EmptyFileError reports a song-metadata file without any record
type EmptyFileError struct {
	Path string
}

func (e *EmptyFileError) Error() string {
	return fmt.Sprintf("%s: no records", e.Path)
}

func (e *EmptyFileError) Unwrap() error {
	return util.ErrEmptyFile
}

// FileError locates a failure inside a file.
// Record is the 1-based position of the record being written, 0 when unknown.
type FileError struct {
	Path   string
	Record int
	Err    error
}

func (e *FileError) Error() string {
	if e.Record == 0 {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: record %d: %v", e.Path, e.Record, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// atRecord attaches a file position to err unless it already carries one
func atRecord(path string, record int, err error) error {
	if err == nil {
		return nil
	}
	var fe *FileError
	if errors.As(err, &fe) {
		return err
	}
	return &FileError{Path: path, Record: record, Err: err}
}
