package util

import "github.com/dustin/go-humanize"

// FormatBytes renders a byte count for humans (e.g. "1.2 MiB")
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// FormatCount renders a count with thousands separators
func FormatCount(n int64) string {
	return humanize.Comma(n)
}
