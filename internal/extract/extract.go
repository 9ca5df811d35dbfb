// Package extract turns JSON-lines files into typed records.
//
// A Source is lazy and restartable: every call to All reopens the file and
// decodes it line by line, so a caller can make several passes over one file
// while only ever holding a single record in memory.
package extract

import (
	"bufio"
	"bytes"
	"fmt"
	"iter"

	"github.com/franz/songplay-etl/internal/util"
	"github.com/spf13/afero"
)

// maxLineBytes bounds a single JSON line
const maxLineBytes = 4 * 1024 * 1024

// ParseError reports a file that could not be opened or a line that could not be decoded.
// Line is 1-based; 0 means the file itself could not be read.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

// Unwrap exposes both the parse sentinel and the underlying cause
func (e *ParseError) Unwrap() []error {
	return []error{util.ErrParse, e.Err}
}

// Decoder converts one JSON line into a record
type Decoder[T any] func(line []byte) (T, error)

// Source is a restartable sequence of records backed by one JSON-lines file
type Source[T any] struct {
	fs     afero.Fs
	path   string
	decode Decoder[T]
}

// NewSource creates a Source reading path from fs with the given decoder
func NewSource[T any](fs afero.Fs, path string, decode Decoder[T]) *Source[T] {
	return &Source[T]{fs: fs, path: path, decode: decode}
}

// Songs returns a Source of song-metadata records
func Songs(fs afero.Fs, path string) *Source[SongMetadata] {
	return NewSource(fs, path, DecodeSong)
}

// Logs returns a Source of activity-log records
func Logs(fs afero.Fs, path string) *Source[LogEvent] {
	return NewSource(fs, path, DecodeLogEvent)
}

// Path returns the file the source reads
func (s *Source[T]) Path() string {
	return s.path
}

// All yields the records in file order. Blank lines are skipped.
// The first failure is yielded as a *ParseError and ends the sequence.
func (s *Source[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		f, err := s.fs.Open(s.path)
		if err != nil {
			yield(zero, &ParseError{Path: s.path, Err: err})
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

		line := 0
		for scanner.Scan() {
			line++
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}

			rec, err := s.decode(raw)
			if err != nil {
				yield(zero, &ParseError{Path: s.path, Line: line, Err: err})
				return
			}
			if !yield(rec, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield(zero, &ParseError{Path: s.path, Line: line + 1, Err: err})
		}
	}
}

// Count returns the number of non-blank lines without decoding them
func (s *Source[T]) Count() (int, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return 0, &ParseError{Path: s.path, Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	n, line := 0, 0
	for scanner.Scan() {
		line++
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return n, &ParseError{Path: s.path, Line: line + 1, Err: err}
	}
	return n, nil
}

// Collect reads the whole file into memory
func (s *Source[T]) Collect() ([]T, error) {
	var out []T
	for rec, err := range s.All() {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
