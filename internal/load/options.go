package load

import (
	"fmt"
	"strings"

	"github.com/franz/songplay-etl/internal/util"
)

// MultiRecordPolicy decides what happens to a song-metadata file holding more than one record
type MultiRecordPolicy string

const (
	// MultiRecordFirst loads the first record and warns about the rest
	MultiRecordFirst MultiRecordPolicy = "first"
	// MultiRecordAll loads every record
	MultiRecordAll MultiRecordPolicy = "all"
	// MultiRecordError rejects the file
	MultiRecordError MultiRecordPolicy = "error"
)

// ParseMultiRecordPolicy validates a policy name from configuration.
// An empty name selects MultiRecordFirst.
func ParseMultiRecordPolicy(s string) (MultiRecordPolicy, error) {
	switch p := MultiRecordPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case MultiRecordFirst, MultiRecordAll, MultiRecordError:
		return p, nil
	case "":
		return MultiRecordFirst, nil
	default:
		return "", fmt.Errorf("%w: multi-record policy %q (expected first, all or error)", util.ErrInvalidConfig, s)
	}
}

// DefaultExtensions are the file suffixes treated as JSON-lines input
var DefaultExtensions = []string{".json", ".jsonl", ".ndjson"}

// normalizeExtensions lowercases extensions and adds the leading dot
func normalizeExtensions(exts []string) []string {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}
