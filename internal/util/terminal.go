package util

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal checks if the given file descriptor is a terminal
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// ShowProgress reports whether progress bars should be drawn on stdout.
// Piped output and quiet mode fall back to plain progress lines.
func ShowProgress() bool {
	return IsTerminal(os.Stdout.Fd()) && !IsQuiet()
}

// ProgressWidth sizes a progress bar to a third of the terminal, within [20, 60]
func ProgressWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 40
	}
	return min(max(width/3, 20), 60)
}
